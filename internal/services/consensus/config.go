// Package consensus reconciles quotes from several providers into one
// confidence-scored value.
package consensus

import (
	"fmt"

	"github.com/bobmcallan/quorum/internal/models"
)

// Bands maps a discrepancy fraction to a severity. Each boundary belongs to
// the higher band: d < NoneBelow is NONE, d < LowBelow is LOW,
// d < MediumBelow is MEDIUM, anything else HIGH.
type Bands struct {
	Version     string
	NoneBelow   float64
	LowBelow    float64
	MediumBelow float64
}

// DefaultBands returns the canonical 3% / 7% / 15% bands
func DefaultBands() Bands {
	return Bands{
		Version:     "2024.1",
		NoneBelow:   0.03,
		LowBelow:    0.07,
		MediumBelow: 0.15,
	}
}

// Validate checks the bands are strictly increasing and positive
func (b Bands) Validate() error {
	if !(b.NoneBelow > 0 && b.NoneBelow < b.LowBelow && b.LowBelow < b.MediumBelow) {
		return fmt.Errorf("discrepancy bands must satisfy 0 < none(%g) < low(%g) < medium(%g)", b.NoneBelow, b.LowBelow, b.MediumBelow)
	}
	return nil
}

// Classify returns the severity for a discrepancy fraction
func (b Bands) Classify(discrepancy float64) models.Severity {
	switch {
	case discrepancy < b.NoneBelow:
		return models.SeverityNone
	case discrepancy < b.LowBelow:
		return models.SeverityLow
	case discrepancy < b.MediumBelow:
		return models.SeverityMedium
	default:
		return models.SeverityHigh
	}
}

// Config holds the aggregator policy
type Config struct {
	Bands Bands

	// A source is an outlier when its deviation from the median quote exceeds
	// OutlierMultiplier times the median of the others' and is at least
	// OutlierMinDeviation.
	OutlierMultiplier   float64
	OutlierMinDeviation float64

	// ExcludeOutliers drops the flagged source from the weighted mean
	ExcludeOutliers bool

	// SingleSourceCap bounds confidence when only one quote is available
	SingleSourceCap float64

	// ConfidenceDecay is the discrepancy at which confidence halves
	ConfidenceDecay float64
}

// DefaultConfig returns the default aggregator policy
func DefaultConfig() Config {
	return Config{
		Bands:               DefaultBands(),
		OutlierMultiplier:   2.0,
		OutlierMinDeviation: 0.03,
		ExcludeOutliers:     true,
		SingleSourceCap:     0.5,
		ConfidenceDecay:     0.10,
	}
}

// Validate checks the policy values
func (c Config) Validate() error {
	if err := c.Bands.Validate(); err != nil {
		return err
	}
	if c.OutlierMultiplier <= 1 {
		return fmt.Errorf("outlier multiplier must be > 1, got %g", c.OutlierMultiplier)
	}
	if c.OutlierMinDeviation < 0 {
		return fmt.Errorf("outlier min deviation must be >= 0, got %g", c.OutlierMinDeviation)
	}
	if c.SingleSourceCap <= 0 || c.SingleSourceCap > 1 {
		return fmt.Errorf("single source cap must be in (0,1], got %g", c.SingleSourceCap)
	}
	if c.ConfidenceDecay <= 0 {
		return fmt.Errorf("confidence decay must be positive, got %g", c.ConfidenceDecay)
	}
	return nil
}
