package params

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"unicode/utf16"
)

// Value is a sealed interface over the scalar types a DR parameter may hold.
// Only String, Int, Float and Bool implement it.
type Value interface {
	paramValue()
}

// String is a string parameter value (e.g. metric = "cosine").
type String string

func (String) paramValue() {}

// Int is an integer parameter value (e.g. n_neighbors = 15).
type Int int64

func (Int) paramValue() {}

// Float is a floating point parameter value (e.g. min_dist = 0.1).
// NaN and infinities are rejected at every boundary.
type Float float64

func (Float) paramValue() {}

// Bool is a boolean parameter value (e.g. verbose = false).
type Bool bool

func (Bool) paramValue() {}

// Params maps parameter names to scalar values.
// Use SortedKeys() for deterministic iteration.
type Params map[string]Value

// Clone returns a shallow copy. Values are immutable scalars, so a shallow
// copy is fully independent of the source map.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Has reports whether key is present.
func (p Params) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
func (p Params) SortedKeys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// compareKeysRFC8785 compares strings by UTF-16 code units.
// Go's native string comparison is by UTF-8 bytes, which orders
// supplementary-plane characters differently.
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	minLen := min(len(a16), len(b16))
	for i := 0; i < minLen; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}

// AsFloat returns the numeric value of an Int or Float.
func AsFloat(v Value) (float64, bool) {
	switch val := v.(type) {
	case Int:
		return float64(val), true
	case Float:
		return float64(val), true
	}
	return 0, false
}

// AsInt returns the integer value of an Int, or of a Float with no
// fractional part.
func AsInt(v Value) (int64, bool) {
	switch val := v.(type) {
	case Int:
		return int64(val), true
	case Float:
		f := float64(val)
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return int64(f), true
		}
	}
	return 0, false
}

// FromAny converts a decoded JSON/YAML/CUE scalar into a Value.
// Integral numbers become Int; others become Float.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null is not a parameter value")
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d overflows int64", val)
		}
		return Int(val), nil
	case float32:
		return fromFloat(float64(val))
	case float64:
		return fromFloat(val)
	case json.Number:
		return parseNumber(string(val))
	default:
		return nil, fmt.Errorf("unsupported parameter type %T", v)
	}
}

func fromFloat(f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("non-finite number %v", f)
	}
	return Float(f), nil
}

// parseNumber keeps integer literals exact and everything else as float64.
func parseNumber(s string) (Value, error) {
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return Int(i), nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q: %w", s, err)
	}
	return fromFloat(f)
}

// FromMap converts a generic map into Params.
func FromMap(m map[string]any) (Params, error) {
	out := make(Params, len(m))
	for k, raw := range m {
		v, err := FromAny(raw)
		if err != nil {
			return nil, fmt.Errorf("param %q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

// MarshalJSON encodes Params as canonical JSON.
func (p Params) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(p)
}

// UnmarshalJSON decodes a flat JSON object of scalars.
// Numbers are decoded via json.Number so integers stay exact.
func (p *Params) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	if raw == nil {
		*p = Params{}
		return nil
	}

	out, err := FromMap(raw)
	if err != nil {
		return err
	}
	*p = out
	return nil
}

// Format renders a value the way it appears in canonical JSON.
func Format(v Value) string {
	b, err := marshalValue(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
