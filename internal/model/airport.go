package model

import "fmt"

// Airport identifies a departure or arrival point. Airports are immutable
// values and compare by Code.
type Airport struct {
	Code string `json:"code" yaml:"code"`
	Name string `json:"name" yaml:"name"`
	City string `json:"city" yaml:"city"`
}

// Equal reports whether a and other share the same airport code.
func (a Airport) Equal(other Airport) bool { return a.Code == other.Code }

func (a Airport) String() string {
	return fmt.Sprintf("%s - %s (%s)", a.Code, a.Name, a.City)
}
