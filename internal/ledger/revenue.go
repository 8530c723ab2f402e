package ledger

import (
	"sync"

	"github.com/iliyamo/flight-marketplace/internal/model"
)

// Revenue accumulates amounts per calendar day.
type Revenue struct {
	mu     sync.Mutex
	byDate map[model.Date]float64
}

// NewRevenue returns an accumulator seeded with a copy of initial.
func NewRevenue(initial map[model.Date]float64) *Revenue {
	r := &Revenue{byDate: make(map[model.Date]float64, len(initial))}
	for d, v := range initial {
		r.byDate[d] = v
	}
	return r
}

func (r *Revenue) Add(date model.Date, amount float64) {
	r.mu.Lock()
	r.byDate[date] += amount
	r.mu.Unlock()
}

// On returns the total for date, 0 when nothing was recorded.
func (r *Revenue) On(date model.Date) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byDate[date]
}

// All returns a copy of every recorded day.
func (r *Revenue) All() map[model.Date]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[model.Date]float64, len(r.byDate))
	for d, v := range r.byDate {
		out[d] = v
	}
	return out
}

// Replace discards every recorded day and loads a copy of m.
func (r *Revenue) Replace(m map[model.Date]float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byDate = make(map[model.Date]float64, len(m))
	for d, v := range m {
		r.byDate[d] = v
	}
}
