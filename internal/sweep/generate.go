package sweep

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// maxCombos is the hard limit on experiments a single grid may expand to.
const maxCombos = 10000

// Setting assigns one value to one key of one smoother's ParameterList.
type Setting struct {
	Group  string `json:"group"`
	Prefix string `json:"prefix,omitempty"`
	Name   string `json:"name"`
	Value  Value  `json:"value"`
}

// Column is the flat table column for the setting: "prefix::name", or just
// the name when the group has no prefix.
func (s Setting) Column() string {
	if s.Prefix == "" {
		return s.Name
	}
	return s.Prefix + "::" + s.Name
}

// Assignment is the ordered set of settings applied for one experiment.
type Assignment []Setting

// ForGroup returns the settings that belong to smoother, in order.
func (a Assignment) ForGroup(smoother string) Assignment {
	var out Assignment
	for _, s := range a {
		if s.Group == smoother {
			out = append(out, s)
		}
	}
	return out
}

// Columns lists the flat column names in assignment order.
func (a Assignment) Columns() []string {
	cols := make([]string, len(a))
	for i, s := range a {
		cols[i] = s.Column()
	}
	return cols
}

// Lookup returns the value for a flat column name.
func (a Assignment) Lookup(column string) (Value, bool) {
	for _, s := range a {
		if s.Column() == column {
			return s.Value, true
		}
	}
	return Value{}, false
}

func (a Assignment) String() string {
	out := ""
	for i, s := range a {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("[%s] %s: %s", s.Group, s.Name, s.Value)
	}
	return out
}

// Experiment is one run of the harness with a fixed assignment. IDs are
// assigned 0..n-1 in generation order and are unique within a sweep.
type Experiment struct {
	ID         int
	Assignment Assignment
}

// Grid expands the full cartesian product over every group's parameters.
// Groups and their params are nested in declaration order with the first
// varying slowest. Continuous parameters cannot appear in a grid.
func Grid(groups []Group) ([]Experiment, error) {
	var dims []dimension
	for _, g := range groups {
		for _, p := range g.Params {
			if p.Continuous() {
				return nil, fmt.Errorf("param %q of %q is continuous; grid search needs discrete values", p.Name, g.Smoother)
			}
			dims = append(dims, dimension{group: g, param: p})
		}
	}
	combos, err := cartesian(dims)
	if err != nil {
		return nil, err
	}
	experiments := make([]Experiment, len(combos))
	for i, a := range combos {
		experiments[i] = Experiment{ID: i, Assignment: a}
	}
	return experiments, nil
}

// Random draws n independent assignments. Continuous draws are rounded to 4
// decimal places; discrete draws are picked uniformly with replacement.
// Groups with SampleCombos pick one combination from their own grid.
func Random(groups []Group, n int, rng *rand.Rand) ([]Experiment, error) {
	if n <= 0 {
		return nil, fmt.Errorf("sample count must be positive, got %d", n)
	}
	if rng == nil {
		return nil, fmt.Errorf("random source is required")
	}

	comboCache := make(map[int][]Assignment)
	for gi, g := range groups {
		if g.Sample != SampleCombos {
			continue
		}
		dims := make([]dimension, len(g.Params))
		for i, p := range g.Params {
			dims[i] = dimension{group: g, param: p}
		}
		combos, err := cartesian(dims)
		if err != nil {
			return nil, fmt.Errorf("group %q: %w", g.Smoother, err)
		}
		comboCache[gi] = combos
	}

	experiments := make([]Experiment, n)
	for i := range experiments {
		var a Assignment
		for gi, g := range groups {
			if combos, ok := comboCache[gi]; ok {
				a = append(a, combos[rng.IntN(len(combos))]...)
				continue
			}
			for _, p := range g.Params {
				a = append(a, Setting{
					Group:  g.Smoother,
					Prefix: g.Prefix,
					Name:   p.Name,
					Value:  drawValue(p, rng),
				})
			}
		}
		experiments[i] = Experiment{ID: i, Assignment: a}
	}
	return experiments, nil
}

func drawValue(p Param, rng *rand.Rand) Value {
	if p.Continuous() {
		return Float(Round4(p.Dist.Sample(rng.Float64())))
	}
	return p.Candidates[rng.IntN(len(p.Candidates))]
}

// NewRand returns a PCG generator seeded from seed, or from the wall clock
// when seed is nil.
func NewRand(seed *uint64) *rand.Rand {
	var s uint64
	if seed != nil {
		s = *seed
	} else {
		s = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(s, s^0x9e3779b97f4a7c15))
}

type dimension struct {
	group Group
	param Param
}

// cartesian builds the product of dims. The last dimension varies fastest.
func cartesian(dims []dimension) ([]Assignment, error) {
	if len(dims) == 0 {
		return nil, fmt.Errorf("no parameters to sweep")
	}

	total := int64(1)
	for _, d := range dims {
		if len(d.param.Candidates) == 0 {
			return nil, fmt.Errorf("param %q has no values", d.param.Name)
		}
		total *= int64(len(d.param.Candidates))
		if total > maxCombos || total < 0 {
			return nil, fmt.Errorf("parameter combinations would exceed safe limit of %d", maxCombos)
		}
	}

	result := make([]Assignment, total)
	for i := range result {
		result[i] = make(Assignment, len(dims))
	}

	repeat := int64(1)
	for dim := len(dims) - 1; dim >= 0; dim-- {
		d := dims[dim]
		cycle := int64(len(d.param.Candidates))
		for i := int64(0); i < total; i++ {
			result[i][dim] = Setting{
				Group:  d.group.Smoother,
				Prefix: d.group.Prefix,
				Name:   d.param.Name,
				Value:  d.param.Candidates[(i/repeat)%cycle],
			}
		}
		repeat *= cycle
	}
	return result, nil
}
