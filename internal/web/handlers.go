package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/vitos/opening_playbook/internal/domain"
	"go.uber.org/zap"
)

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status":    "ok",
		"uptime":    time.Since(s.started).Round(time.Second).String(),
		"plans":     len(s.service.Plans()),
		"positions": len(s.service.Positions()),
	}
	if d, ok := s.service.Guardrail(); ok {
		status["risk_level"] = d.Level
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handlePlans(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.service.Plans())
}

func (s *Server) handlePrepareSession(w http.ResponseWriter, r *http.Request) {
	report, err := s.service.PrepareSession(r.Context())
	if err != nil {
		s.logger.Error("Failed to prepare session", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to prepare session")
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleGuardrail(w http.ResponseWriter, r *http.Request) {
	d, ok := s.service.Guardrail()
	if !ok {
		s.writeError(w, http.StatusNotFound, "guardrail not evaluated yet")
		return
	}
	s.writeJSON(w, http.StatusOK, d)
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.service.Positions())
}

type entryRequest struct {
	Symbol    string           `json:"symbol"`
	OrderType domain.OrderType `json:"order_type"`
}

// handleSubmitEntry sends a manual entry for a planned symbol at the current quote.
func (s *Server) handleSubmitEntry(w http.ResponseWriter, r *http.Request) {
	var req entryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	if req.OrderType == "" {
		req.OrderType = domain.OrderLimit
	}
	if req.Symbol == "" || !req.OrderType.Valid() {
		s.writeError(w, http.StatusBadRequest, "symbol and a valid order_type are required")
		return
	}

	snap, err := s.data.Snapshot(r.Context(), req.Symbol)
	if err != nil {
		s.logger.Warn("No quote for entry", zap.String("symbol", req.Symbol), zap.Error(err))
		s.writeError(w, http.StatusServiceUnavailable, "no quote for "+req.Symbol)
		return
	}

	res, err := s.service.SubmitEntry(r.Context(), req.Symbol, req.OrderType, snap)
	switch {
	case errors.Is(err, domain.ErrNoPlan):
		s.writeError(w, http.StatusNotFound, "no plan for "+req.Symbol)
		return
	case err != nil:
		s.logger.Error("Entry failed", zap.String("symbol", req.Symbol), zap.Error(err))
		s.writeError(w, http.StatusBadGateway, "entry failed")
		return
	}
	status := http.StatusOK
	if !res.Accepted {
		status = http.StatusUnprocessableEntity
	}
	s.writeJSON(w, status, res)
}

func (s *Server) handlePlanHistory(w http.ResponseWriter, r *http.Request) {
	plans, err := s.audit.ListTradePlans(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		s.logger.Error("Failed to list plans", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list plans")
		return
	}
	if plans == nil {
		plans = []domain.TradePlan{}
	}
	s.writeJSON(w, http.StatusOK, plans)
}

func (s *Server) handleGuardrailHistory(w http.ResponseWriter, r *http.Request) {
	decisions, err := s.audit.ListGuardrailDecisions(r.Context(), limitParam(r))
	if err != nil {
		s.logger.Error("Failed to list guardrail decisions", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list guardrail decisions")
		return
	}
	if decisions == nil {
		decisions = []domain.GuardrailDecision{}
	}
	s.writeJSON(w, http.StatusOK, decisions)
}

func (s *Server) handleActionHistory(w http.ResponseWriter, r *http.Request) {
	actions, err := s.audit.ListPositionActions(r.Context(), limitParam(r))
	if err != nil {
		s.logger.Error("Failed to list position actions", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list position actions")
		return
	}
	if actions == nil {
		actions = []domain.PositionAction{}
	}
	s.writeJSON(w, http.StatusOK, actions)
}
