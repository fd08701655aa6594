// Package sweep generates smoother parameter assignments for tuning runs:
// full grids, seeded random draws, and the value/range parsing both share.
package sweep

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind identifies the scalar type carried by a Value.
type Kind int

const (
	KindFloat Kind = iota
	KindInt
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindFloat:
		return "float64"
	case KindInt:
		return "int"
	case KindString:
		return "string"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind maps a config type name onto a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "float64", "float", "double":
		return KindFloat, nil
	case "int", "int64", "integer":
		return KindInt, nil
	case "string", "str":
		return KindString, nil
	}
	return 0, fmt.Errorf("unknown parameter type %q", s)
}

// Value is a single parameter setting as written into the input deck.
type Value struct {
	Kind Kind
	F    float64
	I    int64
	S    string
}

func Float(f float64) Value { return Value{Kind: KindFloat, F: f} }
func Int(i int64) Value     { return Value{Kind: KindInt, I: i} }
func String(s string) Value { return Value{Kind: KindString, S: s} }

// Float64 returns the value as a float, or NaN for strings.
func (v Value) Float64() float64 {
	switch v.Kind {
	case KindFloat:
		return v.F
	case KindInt:
		return float64(v.I)
	}
	return math.NaN()
}

// String formats v the way it appears in YAML and CSV output. Floats always
// carry a decimal point so that 1.0 is never read back as an integer.
func (v Value) String() string {
	switch v.Kind {
	case KindFloat:
		s := strconv.FormatFloat(v.F, 'f', -1, 64)
		if !strings.ContainsAny(s, ".eEnN") {
			s += ".0"
		}
		return s
	case KindInt:
		return strconv.FormatInt(v.I, 10)
	}
	return v.S
}

func (v Value) Equal(o Value) bool {
	return v.Kind == o.Kind && v.F == o.F && v.I == o.I && v.S == o.S
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindFloat:
		// keep 1.0 distinguishable from 1
		return []byte(v.String()), nil
	case KindInt:
		return []byte(strconv.FormatInt(v.I, 10)), nil
	}
	return json.Marshal(v.S)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*v = String(str)
		return nil
	}
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			*v = Int(i)
			return nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid parameter value %s: %w", s, err)
	}
	*v = Float(f)
	return nil
}

// Coerce converts a decoded config scalar (string, float64, int, bool) into a
// Value of the given kind. It fails instead of silently defaulting to zero.
func Coerce(raw interface{}, kind Kind) (Value, error) {
	switch kind {
	case KindFloat:
		switch val := raw.(type) {
		case float64:
			return Float(val), nil
		case int:
			return Float(float64(val)), nil
		case int64:
			return Float(float64(val)), nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
			if err != nil {
				return Value{}, fmt.Errorf("cannot parse %q as float64: %w", val, err)
			}
			return Float(f), nil
		}
	case KindInt:
		switch val := raw.(type) {
		case int:
			return Int(int64(val)), nil
		case int64:
			return Int(val), nil
		case float64:
			if val != math.Trunc(val) {
				return Value{}, fmt.Errorf("cannot use %v as int: not a whole number", val)
			}
			return Int(int64(val)), nil
		case string:
			n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
			if err != nil {
				return Value{}, fmt.Errorf("cannot parse %q as int: %w", val, err)
			}
			return Int(n), nil
		}
	case KindString:
		switch val := raw.(type) {
		case string:
			return String(strings.TrimSpace(val)), nil
		case nil:
		default:
			return String(fmt.Sprintf("%v", val)), nil
		}
	}
	return Value{}, fmt.Errorf("unsupported coercion: %T to %s", raw, kind)
}
