package model

import "fmt"

// PriceSchedule describes threshold pricing for one flight: every
// SeatsPerThreshold occupied seats raise the fare by Increment, starting at
// Base and never exceeding Max.
type PriceSchedule struct {
	Base              float64 `json:"base_price" yaml:"base_price"`
	Max               float64 `json:"max_price" yaml:"max_price"`
	SeatsPerThreshold int     `json:"seats_per_threshold" yaml:"seats_per_threshold"`
	Increment         float64 `json:"increment" yaml:"increment"`
}

// Validate rejects schedules that could produce a price outside [Base, Max].
func (p PriceSchedule) Validate() error {
	switch {
	case p.SeatsPerThreshold <= 0:
		return fmt.Errorf("%w: seats per threshold must be positive", ErrInvalidFlight)
	case p.Base < 0:
		return fmt.Errorf("%w: negative base price", ErrInvalidFlight)
	case p.Max < p.Base:
		return fmt.Errorf("%w: max price below base price", ErrInvalidFlight)
	case p.Increment < 0:
		return fmt.Errorf("%w: negative increment", ErrInvalidFlight)
	}
	return nil
}

// PriceAt returns the fare when occupied seats are sold.
func (p PriceSchedule) PriceAt(occupied int) float64 {
	if occupied < 0 {
		occupied = 0
	}
	steps := occupied / p.SeatsPerThreshold
	price := p.Base + float64(steps)*p.Increment
	if price > p.Max {
		return p.Max
	}
	return price
}
