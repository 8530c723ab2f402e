package model

import "errors"

// Failure kinds shared by the inventory, reservation and ledger layers.
// Callers distinguish them with errors.Is; the ledgers wrap them with the
// flight code or reservation id that caused the failure.
var (
	// ErrNotFound is returned when a flight or reservation is unknown.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientInventory is returned when a leg has fewer remaining
	// seats than the party size.
	ErrInsufficientInventory = errors.New("insufficient inventory")

	// ErrAlreadyPaid is returned by a payment or cancellation attempt on a
	// reservation that has already been paid.
	ErrAlreadyPaid = errors.New("already paid")

	// ErrExpired is returned when the reservation's payment deadline has
	// passed or it was cancelled.
	ErrExpired = errors.New("expired")

	// ErrAirlineNotFound is returned when a reservation resolves to no
	// airline known to the caller.
	ErrAirlineNotFound = errors.New("airline not found")

	ErrInvalidPartySize = errors.New("party size must be positive")
	ErrInvalidFlight    = errors.New("invalid flight")
	ErrDuplicate        = errors.New("duplicate")
)
