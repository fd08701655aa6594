package sweep

import (
	"fmt"
	"strings"
)

// ParamSpec describes one tunable key inside a smoother's ParameterList.
// Exactly one of Values, Range, Start/End/Step or Dist supplies candidates.
type ParamSpec struct {
	Name   string        `yaml:"name" json:"name"`
	Type   string        `yaml:"type" json:"type"`
	Values []interface{} `yaml:"values,omitempty" json:"values,omitempty"`
	Range  string        `yaml:"range,omitempty" json:"range,omitempty"`
	Start  *float64      `yaml:"start,omitempty" json:"start,omitempty"`
	End    *float64      `yaml:"end,omitempty" json:"end,omitempty"`
	Step   *float64      `yaml:"step,omitempty" json:"step,omitempty"`
	Dist   *DistSpec     `yaml:"dist,omitempty" json:"dist,omitempty"`
}

// Param is a validated ParamSpec: a discrete candidate list or a
// continuous distribution.
type Param struct {
	Name       string
	Kind       Kind
	Candidates []Value
	Dist       Distribution
}

// Continuous reports whether the parameter is drawn from a distribution.
func (p Param) Continuous() bool { return p.Dist != nil }

// Compile validates s and expands its candidates.
func (s ParamSpec) Compile() (Param, error) {
	name := strings.TrimSpace(s.Name)
	if name == "" {
		return Param{}, fmt.Errorf("parameter name is required")
	}
	typ := s.Type
	if typ == "" {
		typ = inferType(s)
	}
	kind, err := ParseKind(typ)
	if err != nil {
		return Param{}, fmt.Errorf("param %q: %w", name, err)
	}
	p := Param{Name: name, Kind: kind}

	sources := 0
	for _, set := range []bool{len(s.Values) > 0, s.Range != "", s.Step != nil, s.Dist != nil} {
		if set {
			sources++
		}
	}
	if sources != 1 {
		return Param{}, fmt.Errorf("param %q: exactly one of values, range, start/end/step or dist is required", name)
	}

	switch {
	case len(s.Values) > 0:
		for i, raw := range s.Values {
			v, err := Coerce(raw, kind)
			if err != nil {
				return Param{}, fmt.Errorf("param %q: value[%d]: %w", name, i, err)
			}
			p.Candidates = append(p.Candidates, v)
		}
	case s.Range != "":
		spec, err := ParseRangeSpec(s.Range)
		if err != nil {
			return Param{}, fmt.Errorf("param %q: %w", name, err)
		}
		if p.Candidates, err = spec.Values(kind); err != nil {
			return Param{}, fmt.Errorf("param %q: %w", name, err)
		}
	case s.Step != nil:
		if s.Start == nil || s.End == nil {
			return Param{}, fmt.Errorf("param %q: start and end are required with step", name)
		}
		spec := RangeSpec{Min: *s.Start, Max: *s.End, Step: *s.Step}
		if p.Candidates, err = spec.Values(kind); err != nil {
			return Param{}, fmt.Errorf("param %q: %w", name, err)
		}
	case s.Dist != nil:
		if kind != KindFloat {
			return Param{}, fmt.Errorf("param %q: distributions require type float64", name)
		}
		if p.Dist, err = s.Dist.Build(); err != nil {
			return Param{}, fmt.Errorf("param %q: %w", name, err)
		}
	}
	return p, nil
}

func inferType(s ParamSpec) string {
	if s.Dist != nil {
		return "float64"
	}
	if len(s.Values) > 0 {
		switch s.Values[0].(type) {
		case int, int64:
			return "int"
		case string:
			return "string"
		}
	}
	return "float64"
}

// SampleMode controls how a group is sampled in random mode.
type SampleMode string

const (
	// SampleParams draws every parameter of the group independently.
	SampleParams SampleMode = "params"
	// SampleCombos draws one whole combination uniformly from the group's grid.
	SampleCombos SampleMode = "combos"
)

// GroupSpec is the config form of a Group.
type GroupSpec struct {
	Smoother string      `yaml:"smoother" json:"smoother"`
	Prefix   string      `yaml:"prefix,omitempty" json:"prefix,omitempty"`
	Sample   SampleMode  `yaml:"sample,omitempty" json:"sample,omitempty"`
	Params   []ParamSpec `yaml:"params" json:"params"`
}

// Group is one smoother's set of tunable parameters.
type Group struct {
	Smoother string
	Prefix   string
	Sample   SampleMode
	Params   []Param
}

// Compile validates the group and all of its parameters.
func (g GroupSpec) Compile() (Group, error) {
	if strings.TrimSpace(g.Smoother) == "" {
		return Group{}, fmt.Errorf("group smoother name is required")
	}
	if len(g.Params) == 0 {
		return Group{}, fmt.Errorf("group %q: at least one param is required", g.Smoother)
	}
	out := Group{Smoother: g.Smoother, Prefix: g.Prefix, Sample: g.Sample}
	if out.Sample == "" {
		out.Sample = SampleParams
	}
	if out.Sample != SampleParams && out.Sample != SampleCombos {
		return Group{}, fmt.Errorf("group %q: unknown sample mode %q", g.Smoother, g.Sample)
	}
	seen := make(map[string]bool)
	for _, ps := range g.Params {
		p, err := ps.Compile()
		if err != nil {
			return Group{}, fmt.Errorf("group %q: %w", g.Smoother, err)
		}
		if seen[p.Name] {
			return Group{}, fmt.Errorf("group %q: duplicate param %q", g.Smoother, p.Name)
		}
		seen[p.Name] = true
		if out.Sample == SampleCombos && p.Continuous() {
			return Group{}, fmt.Errorf("group %q: param %q is continuous but the group samples whole combinations", g.Smoother, p.Name)
		}
		out.Params = append(out.Params, p)
	}
	return out, nil
}

// CompileGroups compiles every group and checks that flattened column names
// never collide.
func CompileGroups(specs []GroupSpec) ([]Group, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("at least one smoother group is required")
	}
	groups := make([]Group, 0, len(specs))
	columns := make(map[string]string)
	for _, spec := range specs {
		g, err := spec.Compile()
		if err != nil {
			return nil, err
		}
		for _, p := range g.Params {
			col := Setting{Prefix: g.Prefix, Name: p.Name}.Column()
			if owner, ok := columns[col]; ok {
				return nil, fmt.Errorf("column %q is produced by both %q and %q; give the groups distinct prefixes", col, owner, g.Smoother)
			}
			columns[col] = g.Smoother
		}
		groups = append(groups, g)
	}
	return groups, nil
}
