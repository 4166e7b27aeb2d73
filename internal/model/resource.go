package model

import (
	"math"

	"github.com/devrev/designer/internal/errors"
)

// Weights scales each cost term before they are summed into the overall cost
type Weights struct {
	Network float64 `json:"weight_network" yaml:"weight_network"`
	Skew    float64 `json:"weight_skew" yaml:"weight_skew"`
	Disk    float64 `json:"weight_disk" yaml:"weight_disk"`
}

// EqualWeights gives every cost term the same influence
func EqualWeights() Weights {
	return Weights{Network: 1, Skew: 1, Disk: 1}
}

// ResourceConfig describes the target cluster a design is evaluated against
type ResourceConfig struct {
	MaxMemoryBytes  int64 `json:"max_memory_bytes" yaml:"max_memory_bytes"`
	SkewIntervals   int   `json:"skew_intervals" yaml:"skew_intervals"`
	AddressSizeBits int   `json:"address_size_bits" yaml:"address_size_bits"`
	NodeCount       int   `json:"node_count" yaml:"node_count"`

	Weights Weights `json:"weights" yaml:",inline"`
}

// Validate rejects configurations no cost can be computed for
func (r *ResourceConfig) Validate() error {
	if r.NodeCount <= 0 {
		return errors.InvalidConfiguration("node_count", "must be positive")
	}
	if r.SkewIntervals <= 0 {
		return errors.InvalidConfiguration("skew_intervals", "must be positive")
	}
	if r.MaxMemoryBytes <= 0 {
		return errors.InvalidConfiguration("max_memory_bytes", "must be positive")
	}
	if r.AddressSizeBits <= 0 || r.AddressSizeBits%8 != 0 {
		return errors.InvalidConfiguration("address_size_bits", "must be a positive multiple of 8")
	}

	w := r.Weights
	for _, term := range []struct {
		name  string
		value float64
	}{{"weight_network", w.Network}, {"weight_skew", w.Skew}, {"weight_disk", w.Disk}} {
		if term.value < 0 || math.IsNaN(term.value) || math.IsInf(term.value, 0) {
			return errors.InvalidConfiguration(term.name, "must be a finite non-negative number")
		}
	}
	if w.Network+w.Skew+w.Disk == 0 {
		return errors.InvalidConfiguration("weights", "must not sum to zero")
	}
	return nil
}

// AddressSizeBytes returns the pointer width in bytes
func (r *ResourceConfig) AddressSizeBytes() int64 {
	return int64(r.AddressSizeBits / 8)
}
