package sweep

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// maxValues caps the number of values a single range may expand to.
const maxValues = 10000

// RangeSpec defines a floating-point parameter range for sweeping.
type RangeSpec struct {
	Min  float64
	Max  float64
	Step float64
}

// ParseRangeSpec parses a "min:max:step" string into a RangeSpec.
func ParseRangeSpec(s string) (RangeSpec, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return RangeSpec{}, fmt.Errorf("invalid range format %q: expected min:max:step", s)
	}

	var vals [3]float64
	for i, name := range []string{"min", "max", "step"} {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
		if err != nil {
			return RangeSpec{}, fmt.Errorf("invalid %s value %q: %w", name, parts[i], err)
		}
		vals[i] = v
	}

	if vals[2] <= 0 {
		return RangeSpec{}, fmt.Errorf("step must be positive, got %g", vals[2])
	}
	if vals[0] > vals[1] {
		return RangeSpec{}, fmt.Errorf("range min %g exceeds max %g", vals[0], vals[1])
	}
	return RangeSpec{Min: vals[0], Max: vals[1], Step: vals[2]}, nil
}

// Floats expands the range to every value from Min to Max inclusive, each
// rounded to 4 decimal places. It returns nil for an empty or oversized range.
func (r RangeSpec) Floats() []float64 {
	if r.Step <= 0 || r.Min > r.Max {
		return nil
	}
	expected := int((r.Max-r.Min)/r.Step) + 1
	if expected > maxValues || expected < 0 {
		return nil
	}

	result := make([]float64, 0, expected)
	// index-based stepping avoids accumulating float error
	for i := 0; i <= expected; i++ {
		v := Round4(r.Min + float64(i)*r.Step)
		if v > r.Max+r.Step/1000 {
			break
		}
		result = append(result, v)
	}
	return result
}

// Ints expands the range as integers. Min, Max and Step are truncated.
func (r RangeSpec) Ints() []int64 {
	min, max, step := int64(r.Min), int64(r.Max), int64(r.Step)
	if step <= 0 || min > max {
		return nil
	}
	if (max-min)/step+1 > maxValues {
		return nil
	}
	var result []int64
	for v := min; v <= max; v += step {
		result = append(result, v)
	}
	return result
}

// Values expands the range into Values of the given kind.
func (r RangeSpec) Values(kind Kind) ([]Value, error) {
	var out []Value
	switch kind {
	case KindFloat:
		for _, f := range r.Floats() {
			out = append(out, Float(f))
		}
	case KindInt:
		if r.Min != math.Trunc(r.Min) || r.Max != math.Trunc(r.Max) || r.Step != math.Trunc(r.Step) {
			return nil, fmt.Errorf("int range %g:%g:%g must use whole numbers", r.Min, r.Max, r.Step)
		}
		for _, i := range r.Ints() {
			out = append(out, Int(i))
		}
	default:
		return nil, fmt.Errorf("%s params require explicit values", kind)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("range %g:%g:%g is empty or exceeds %d values", r.Min, r.Max, r.Step, maxValues)
	}
	return out, nil
}

// OverrideValues replaces the candidates of named params with explicit
// lists. overrides has the form "column=list;column=list", where column is
// a param name, which applies to every group holding it, or its prefixed
// "prefix::name" form. A list holding a colon
// is a min:max:step range, otherwise it is comma separated. Each override
// keeps the param's type. specs is left untouched.
func OverrideValues(specs []GroupSpec, overrides string) ([]GroupSpec, error) {
	out := make([]GroupSpec, len(specs))
	for i, g := range specs {
		out[i] = g
		out[i].Params = append([]ParamSpec(nil), g.Params...)
	}

	for _, entry := range strings.Split(overrides, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		target, list, ok := strings.Cut(entry, "=")
		target = strings.TrimSpace(target)
		if !ok || target == "" {
			return nil, fmt.Errorf("invalid override %q: expected name=values", entry)
		}

		matched := 0
		for gi := range out {
			for pi, ps := range out[gi].Params {
				name := strings.TrimSpace(ps.Name)
				if name != target && (Setting{Prefix: out[gi].Prefix, Name: name}).Column() != target {
					continue
				}
				spec := overrideSpec(ps, strings.TrimSpace(list))
				if _, err := spec.Compile(); err != nil {
					return nil, fmt.Errorf("override %q: %w", target, err)
				}
				out[gi].Params[pi] = spec
				matched++
			}
		}
		if matched == 0 {
			return nil, fmt.Errorf("override %q: no such param", target)
		}
	}
	return out, nil
}

func overrideSpec(ps ParamSpec, list string) ParamSpec {
	typ := ps.Type
	if typ == "" {
		typ = inferType(ps)
	}
	spec := ParamSpec{Name: ps.Name, Type: typ}
	if strings.Contains(list, ":") {
		spec.Range = list
		return spec
	}
	for _, v := range strings.Split(list, ",") {
		if v = strings.TrimSpace(v); v != "" {
			spec.Values = append(spec.Values, v)
		}
	}
	return spec
}
