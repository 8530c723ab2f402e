// Package taxsink records the revenue payers declare to the tax authority.
package taxsink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/iliyamo/flight-marketplace/internal/model"
)

var (
	ErrEmptyPayer     = errors.New("taxsink: empty payer")
	ErrNegativeAmount = errors.New("taxsink: negative amount")
)

// Declaration is one payer's declared revenue for one day.
type Declaration struct {
	Payer  string     `json:"payer"`
	Date   model.Date `json:"date"`
	Amount float64    `json:"amount"`
}

// Sink stores the latest declaration per payer and day. A repeated report
// for the same payer and day replaces the earlier amount.
type Sink struct {
	logger *slog.Logger

	mu      sync.RWMutex
	byPayer map[string]map[model.Date]float64
}

func New(logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{logger: logger, byPayer: make(map[string]map[model.Date]float64)}
}

// Report records amount as payer's revenue for date.
func (s *Sink) Report(payer string, date model.Date, amount float64) error {
	if payer == "" {
		return ErrEmptyPayer
	}
	if amount < 0 {
		return fmt.Errorf("%w: %.2f", ErrNegativeAmount, amount)
	}
	s.mu.Lock()
	days, ok := s.byPayer[payer]
	if !ok {
		days = make(map[model.Date]float64)
		s.byPayer[payer] = days
	}
	days[date] = amount
	s.mu.Unlock()
	s.logger.Info("revenue declared", "payer", payer, "date", date, "amount", amount)
	return nil
}

// ReportRevenue lets the sink receive declarations from ledgers directly.
func (s *Sink) ReportRevenue(_ context.Context, payer string, date model.Date, amount float64) error {
	return s.Report(payer, date, amount)
}

// Query returns payer's declaration for date, 0 when none was made.
func (s *Sink) Query(payer string, date model.Date) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byPayer[payer][date]
}

// TotalForDate sums every payer's declaration for date.
func (s *Sink) TotalForDate(date model.Date) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total float64
	for _, days := range s.byPayer {
		total += days[date]
	}
	return total
}

// ForPayer returns payer's declarations ordered by date.
func (s *Sink) ForPayer(payer string) []Declaration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Declaration, 0, len(s.byPayer[payer]))
	for d, v := range s.byPayer[payer] {
		out = append(out, Declaration{Payer: payer, Date: d, Amount: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// All returns a deep copy of every declaration.
func (s *Sink) All() map[string]map[model.Date]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]map[model.Date]float64, len(s.byPayer))
	for p, days := range s.byPayer {
		cp := make(map[model.Date]float64, len(days))
		for d, v := range days {
			cp[d] = v
		}
		out[p] = cp
	}
	return out
}

// Restore replaces the sink's contents with a copy of m.
func (s *Sink) Restore(m map[string]map[model.Date]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byPayer = make(map[string]map[model.Date]float64, len(m))
	for p, days := range m {
		cp := make(map[model.Date]float64, len(days))
		for d, v := range days {
			cp[d] = v
		}
		s.byPayer[p] = cp
	}
}
