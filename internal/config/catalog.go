package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/iliyamo/flight-marketplace/internal/model"
)

// Operator roles accepted in the catalog and in issued tokens.
const (
	RoleAirline = "AIRLINE"
	RoleAgent   = "AGENT"
	RoleAdmin   = "ADMIN"
)

// Catalog is the initial marketplace described in YAML.
type Catalog struct {
	Airports  []model.Airport `yaml:"airports"`
	Airlines  []AirlineSpec   `yaml:"airlines"`
	Agents    []AgentSpec     `yaml:"agents"`
	Clients   []ClientSpec    `yaml:"clients"`
	Operators []OperatorSpec  `yaml:"operators"`
}

type AirlineSpec struct {
	Name     string       `yaml:"name"`
	Discount float64      `yaml:"discount"`
	Flights  []FlightSpec `yaml:"flights"`
}

type FlightSpec struct {
	Code       string              `yaml:"code"`
	From       string              `yaml:"from"`
	To         string              `yaml:"to"`
	Departs    time.Time           `yaml:"departs"`
	TotalSeats int                 `yaml:"total_seats"`
	Schedule   model.PriceSchedule `yaml:",inline"`
}

type AgentSpec struct {
	Name       string   `yaml:"name"`
	Commission float64  `yaml:"commission"`
	Airlines   []string `yaml:"airlines"`
}

type ClientSpec struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// OperatorSpec is an account allowed to obtain API tokens. Name must match
// the airline or agent it acts for; SecretHash is a bcrypt hash.
type OperatorSpec struct {
	Name       string `yaml:"name"`
	Role       string `yaml:"role"`
	SecretHash string `yaml:"secret_hash"`
}

// LoadCatalog reads and validates the catalog at path.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Airport returns the airport with code.
func (c *Catalog) Airport(code string) (model.Airport, bool) {
	for _, a := range c.Airports {
		if a.Code == code {
			return a, true
		}
	}
	return model.Airport{}, false
}

// Validate checks references between catalog entries.
func (c *Catalog) Validate() error {
	airports := map[string]bool{}
	for _, a := range c.Airports {
		if a.Code == "" {
			return fmt.Errorf("catalog: airport without code")
		}
		if airports[a.Code] {
			return fmt.Errorf("catalog: duplicate airport %s", a.Code)
		}
		airports[a.Code] = true
	}

	airlines := map[string]bool{}
	for _, al := range c.Airlines {
		if al.Name == "" {
			return fmt.Errorf("catalog: airline without name")
		}
		if airlines[al.Name] {
			return fmt.Errorf("catalog: duplicate airline %s", al.Name)
		}
		airlines[al.Name] = true
		if al.Discount < 0 || al.Discount >= 1 {
			return fmt.Errorf("catalog: airline %s discount %.2f outside [0, 1)", al.Name, al.Discount)
		}
		for _, f := range al.Flights {
			if !airports[f.From] || !airports[f.To] {
				return fmt.Errorf("catalog: flight %s references unknown airport", f.Code)
			}
		}
	}

	names := map[string]bool{}
	for _, ag := range c.Agents {
		if ag.Name == "" || names[ag.Name] {
			return fmt.Errorf("catalog: agent name %q missing or duplicated", ag.Name)
		}
		names[ag.Name] = true
		if ag.Commission < 0 {
			return fmt.Errorf("catalog: agent %s has negative commission", ag.Name)
		}
		for _, name := range ag.Airlines {
			if !airlines[name] {
				return fmt.Errorf("catalog: agent %s references unknown airline %s", ag.Name, name)
			}
		}
	}

	clients := map[string]bool{}
	for _, cl := range c.Clients {
		if cl.ID == "" || clients[cl.ID] {
			return fmt.Errorf("catalog: client id %q missing or duplicated", cl.ID)
		}
		clients[cl.ID] = true
	}

	for _, op := range c.Operators {
		switch op.Role {
		case RoleAirline:
			if !airlines[op.Name] {
				return fmt.Errorf("catalog: operator %s is not an airline", op.Name)
			}
		case RoleAgent:
			if !names[op.Name] {
				return fmt.Errorf("catalog: operator %s is not an agent", op.Name)
			}
		case RoleAdmin:
		default:
			return fmt.Errorf("catalog: operator %s has unknown role %q", op.Name, op.Role)
		}
		if op.SecretHash == "" {
			return fmt.Errorf("catalog: operator %s has no secret hash", op.Name)
		}
	}
	return nil
}
