// Package match scores consensus check records against outstanding
// invoices and resolves one-to-one assignment with duplicate prevention.
package match

import (
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"
)

// Config holds the field weights and acceptance parameters for a matching
// run. The four weights form a convex combination: they must sum to 1.0.
type Config struct {
	AmountWeight float64 `yaml:"amount_weight" mapstructure:"amount_weight"`
	NameWeight   float64 `yaml:"name_weight" mapstructure:"name_weight"`
	DateWeight   float64 `yaml:"date_weight" mapstructure:"date_weight"`
	PayeeWeight  float64 `yaml:"payee_weight" mapstructure:"payee_weight"`

	// Threshold is the minimum composite score that binds a check to an
	// invoice.
	Threshold float64 `yaml:"threshold" mapstructure:"threshold"`

	// DateWindowDays is the decay window D in the date rule
	// max(0, 1 - Δ/D).
	DateWindowDays int `yaml:"date_window_days" mapstructure:"date_window_days"`
}

// DefaultConfig returns the production matching parameters.
func DefaultConfig() Config {
	return Config{
		AmountWeight:   0.40,
		NameWeight:     0.30,
		DateWeight:     0.20,
		PayeeWeight:    0.10,
		Threshold:      0.70,
		DateWindowDays: 10,
	}
}

// WeightSum returns the sum of the four field weights.
func WeightSum(c Config) float64 {
	return c.AmountWeight + c.NameWeight + c.DateWeight + c.PayeeWeight
}

// Validate checks that a Config is internally consistent. A malformed
// config must be rejected before any matching begins.
func Validate(c Config) error {
	var errs []string

	weights := map[string]float64{
		"amount_weight": c.AmountWeight,
		"name_weight":   c.NameWeight,
		"date_weight":   c.DateWeight,
		"payee_weight":  c.PayeeWeight,
	}
	for name, w := range weights {
		if w < 0 {
			errs = append(errs, fmt.Sprintf("%s must be >= 0", name))
		}
	}

	if sum := WeightSum(c); math.Abs(sum-1.0) > 0.001 {
		errs = append(errs, fmt.Sprintf("weights must sum to 1.0, got %.4f", sum))
	}

	if c.Threshold < 0 || c.Threshold > 1 {
		errs = append(errs, fmt.Sprintf("threshold must be in [0,1], got %.4f", c.Threshold))
	}

	if c.DateWindowDays <= 0 {
		errs = append(errs, fmt.Sprintf("date_window_days must be > 0, got %d", c.DateWindowDays))
	}

	if len(errs) > 0 {
		return eris.Errorf("match: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
