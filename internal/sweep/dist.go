package sweep

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Distribution draws a continuous parameter value from a uniform variate in
// [0, 1). Implementations are bounded: every result lies in [Low, High].
type Distribution interface {
	Sample(u float64) float64
	Bounds() (low, high float64)
}

// Uniform is the continuous uniform distribution on [Low, High].
type Uniform struct {
	Low, High float64
}

func (d Uniform) Sample(u float64) float64 {
	return distuv.Uniform{Min: d.Low, Max: d.High}.Quantile(clampUnit(u))
}

func (d Uniform) Bounds() (float64, float64) { return d.Low, d.High }

// TruncNormal is a normal distribution with mean Mean and standard deviation
// SD, truncated to [Low, High].
type TruncNormal struct {
	Mean, SD  float64
	Low, High float64
}

func (d TruncNormal) Sample(u float64) float64 {
	n := distuv.Normal{Mu: d.Mean, Sigma: d.SD}
	a, b := n.CDF(d.Low), n.CDF(d.High)
	x := n.Quantile(a + clampUnit(u)*(b-a))
	return clamp(x, d.Low, d.High)
}

func (d TruncNormal) Bounds() (float64, float64) { return d.Low, d.High }

// TruncExpon is an exponential distribution with the given Scale, shifted to
// start at Low and truncated at High.
type TruncExpon struct {
	Scale     float64
	Low, High float64
}

func (d TruncExpon) Sample(u float64) float64 {
	e := distuv.Exponential{Rate: 1 / d.Scale}
	top := e.CDF(d.High - d.Low)
	x := d.Low + e.Quantile(clampUnit(u)*top)
	return clamp(x, d.Low, d.High)
}

func (d TruncExpon) Bounds() (float64, float64) { return d.Low, d.High }

// DistSpec is the config form of a Distribution.
type DistSpec struct {
	Kind  string   `yaml:"kind" json:"kind"`
	Low   float64  `yaml:"low" json:"low"`
	High  float64  `yaml:"high" json:"high"`
	Mean  *float64 `yaml:"mean,omitempty" json:"mean,omitempty"`
	SD    *float64 `yaml:"sd,omitempty" json:"sd,omitempty"`
	Scale *float64 `yaml:"scale,omitempty" json:"scale,omitempty"`
}

// Build validates s and returns the matching Distribution.
func (s DistSpec) Build() (Distribution, error) {
	if math.IsNaN(s.Low) || math.IsNaN(s.High) || s.Low >= s.High {
		return nil, fmt.Errorf("distribution %q: low %g must be below high %g", s.Kind, s.Low, s.High)
	}
	switch s.Kind {
	case "uniform":
		return Uniform{Low: s.Low, High: s.High}, nil
	case "truncnorm":
		if s.Mean == nil || s.SD == nil {
			return nil, fmt.Errorf("distribution truncnorm: mean and sd are required")
		}
		if *s.SD <= 0 {
			return nil, fmt.Errorf("distribution truncnorm: sd must be positive, got %g", *s.SD)
		}
		return TruncNormal{Mean: *s.Mean, SD: *s.SD, Low: s.Low, High: s.High}, nil
	case "truncexpon":
		if s.Scale == nil || *s.Scale <= 0 {
			return nil, fmt.Errorf("distribution truncexpon: scale must be positive")
		}
		return TruncExpon{Scale: *s.Scale, Low: s.Low, High: s.High}, nil
	}
	return nil, fmt.Errorf("unknown distribution kind %q", s.Kind)
}

func clampUnit(u float64) float64 {
	return clamp(u, 0, math.Nextafter(1, 0))
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
