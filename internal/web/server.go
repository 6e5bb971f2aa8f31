package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/vitos/opening_playbook/internal/domain"
	"github.com/vitos/opening_playbook/internal/usecase"
	"go.uber.org/zap"
)

// Server exposes the session state and the audit trail as JSON.
type Server struct {
	router  *http.ServeMux
	server  *http.Server
	audit   domain.AuditRepository
	data    domain.MarketData
	service *usecase.SessionService
	logger  *zap.Logger
	started time.Time
}

func NewServer(
	port int,
	audit domain.AuditRepository,
	data domain.MarketData,
	service *usecase.SessionService,
	logger *zap.Logger,
) *Server {
	s := &Server{
		router:  http.NewServeMux(),
		audit:   audit,
		data:    data,
		service: service,
		logger:  logger,
		started: time.Now(),
	}
	s.routes()
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	// Status
	s.router.HandleFunc("GET /status", s.handleStatus)

	// Session
	s.router.HandleFunc("GET /api/plans", s.handlePlans)
	s.router.HandleFunc("POST /api/session/prepare", s.handlePrepareSession)
	s.router.HandleFunc("GET /api/guardrail", s.handleGuardrail)

	// Positions
	s.router.HandleFunc("GET /api/positions", s.handlePositions)
	s.router.HandleFunc("POST /api/entries", s.handleSubmitEntry)

	// Audit
	s.router.HandleFunc("GET /api/history/plans", s.handlePlanHistory)
	s.router.HandleFunc("GET /api/history/guardrail", s.handleGuardrailHistory)
	s.router.HandleFunc("GET /api/history/actions", s.handleActionHistory)
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info("Starting web server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
