package usecase

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vitos/opening_playbook/internal/domain"
)

type bookEntry struct {
	mu  sync.Mutex // serializes ticks for this position
	pos *domain.Position
}

// PositionBook owns the live positions. Each position is reachable only by ID;
// readers get copies and ticks for one position never interleave.
type PositionBook struct {
	manager *PositionManager
	mu      sync.RWMutex
	entries map[string]*bookEntry
}

func NewPositionBook(manager *PositionManager) *PositionBook {
	if manager == nil {
		manager = NewPositionManager()
	}
	return &PositionBook{
		manager: manager,
		entries: make(map[string]*bookEntry),
	}
}

// Open registers a position for a filled entry of plan.
func (b *PositionBook) Open(plan domain.TradePlan, fill domain.Fill, stop float64) (domain.Position, error) {
	pos, err := domain.NewPosition(uuid.NewString(), plan, fill.Quantity, fill.Price, stop, fill.FilledAt)
	if err != nil {
		return domain.Position{}, err
	}
	b.mu.Lock()
	b.entries[pos.ID] = &bookEntry{pos: pos}
	b.mu.Unlock()
	return pos.Clone(), nil
}

// Tick runs one price update through the position. A FULL_EXIT removes it.
func (b *PositionBook) Tick(id string, price float64, now time.Time) (domain.PositionAction, error) {
	b.mu.RLock()
	e, ok := b.entries[id]
	b.mu.RUnlock()
	if !ok {
		return domain.PositionAction{}, domain.ErrPositionNotFound
	}

	e.mu.Lock()
	if e.pos.Quantity == 0 {
		// closed by a concurrent tick that has not removed it yet
		e.mu.Unlock()
		return domain.PositionAction{}, domain.ErrPositionNotFound
	}
	action := b.manager.OnTick(e.pos, price, now)
	e.mu.Unlock()

	if action.Kind == domain.ActionFullExit {
		b.mu.Lock()
		delete(b.entries, id)
		b.mu.Unlock()
	}
	return action, nil
}

func (b *PositionBook) Get(id string) (domain.Position, bool) {
	b.mu.RLock()
	e, ok := b.entries[id]
	b.mu.RUnlock()
	if !ok {
		return domain.Position{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pos.Clone(), true
}

// List returns copies of every open position, oldest first.
func (b *PositionBook) List() []domain.Position {
	b.mu.RLock()
	entries := make([]*bookEntry, 0, len(b.entries))
	for _, e := range b.entries {
		entries = append(entries, e)
	}
	b.mu.RUnlock()

	out := make([]domain.Position, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.pos.Clone())
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EntryTime.Equal(out[j].EntryTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].EntryTime.Before(out[j].EntryTime)
	})
	return out
}

// IDsForSymbol returns the open position IDs on symbol.
func (b *PositionBook) IDsForSymbol(symbol string) []string {
	var ids []string
	for _, p := range b.List() {
		if p.Symbol == symbol {
			ids = append(ids, p.ID)
		}
	}
	return ids
}
