package catalog

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/roach88/artdr/internal/errdefs"
	"github.com/roach88/artdr/internal/params"
)

// ParseOverrides splits "key=value" pairs into a raw map.
// A pair without '=' or with an empty key is a ValidationError.
func ParseOverrides(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, kv := range pairs {
		k, v, ok := strings.Cut(kv, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, errdefs.Validation("param", "malformed override %q: want key=value", kv)
		}
		out[k] = v
	}
	return out, nil
}

// Coerce converts raw string overrides into typed params using the method's
// schema. Each value is parsed according to its declared field, never by
// guessing from the string's content.
func (c *Catalog) Coerce(method string, raw map[string]string) (params.Params, error) {
	m, err := c.Method(method)
	if err != nil {
		return nil, err
	}

	out := make(params.Params, len(raw))
	for k, s := range raw {
		f, ok := c.lookupField(m, k)
		if !ok {
			if def, ok := m.defaults[k]; ok {
				v, err := parseLike(def, s)
				if err != nil {
					return nil, errdefs.Validation(k, "%v", err)
				}
				out[k] = v
				continue
			}
			return nil, errdefs.Validation(k, "unknown parameter for method %q", method)
		}
		v, err := parseField(f, s)
		if err != nil {
			return nil, errdefs.Validation(k, "%v", err)
		}
		if v, err = checkField(f, v); err != nil {
			return nil, errdefs.Validation(k, "%v", err)
		}
		out[k] = v
	}
	return out, nil
}

// Check validates already-typed params (from a plan file or API caller)
// against the method's schema and returns them in field-normal form
// (e.g. 15.0 for an integral field becomes Int 15).
func (c *Catalog) Check(method string, p params.Params) (params.Params, error) {
	m, err := c.Method(method)
	if err != nil {
		return nil, err
	}

	out := make(params.Params, len(p))
	for _, k := range p.SortedKeys() {
		v := p[k]
		f, ok := c.lookupField(m, k)
		if !ok {
			if def, ok := m.defaults[k]; ok {
				if !sameKind(def, v) {
					return nil, errdefs.Validation(k, "expected %s, got %s", kindName(def), kindName(v))
				}
				out[k] = v
				continue
			}
			return nil, errdefs.Validation(k, "unknown parameter for method %q", method)
		}
		cv, err := checkField(f, v)
		if err != nil {
			return nil, errdefs.Validation(k, "%v", err)
		}
		out[k] = cv
	}
	return out, nil
}

// lookupField resolves a key against the method's fields, the common
// fields, and finally through the rename table so deprecated names are
// validated by their replacement's schema.
func (c *Catalog) lookupField(m *Method, key string) (Field, bool) {
	if f, ok := m.Field(key); ok {
		return f, true
	}
	for _, f := range c.Common.Fields {
		if f.Name == key {
			return f, true
		}
	}
	if to, ok := c.Renames(m)[key]; ok && to != key {
		return c.lookupField(m, to)
	}
	return Field{}, false
}

func parseField(f Field, s string) (params.Value, error) {
	s = strings.TrimSpace(s)
	switch f.Type {
	case FieldRange:
		n, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return nil, fmt.Errorf("expected a number, got %q", s)
		}
		if f.Integral() && n != math.Trunc(n) {
			return nil, fmt.Errorf("expected an integer, got %q", s)
		}
		// checkField bounds the value before narrowing it to Int.
		return params.Float(n), nil
	case FieldSelect:
		return params.String(unquote(s)), nil
	case FieldCheckbox:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("expected true or false, got %q", s)
		}
		return params.Bool(b), nil
	}
	return nil, fmt.Errorf("unsupported field type %q", f.Type)
}

func checkField(f Field, v params.Value) (params.Value, error) {
	switch f.Type {
	case FieldRange:
		n, ok := params.AsFloat(v)
		if !ok {
			return nil, fmt.Errorf("expected a number, got %s", kindName(v))
		}
		if f.Min != nil && n < *f.Min || f.Max != nil && n > *f.Max {
			return nil, fmt.Errorf("%s out of range [%s, %s]", params.Format(v), fmtBound(f.Min), fmtBound(f.Max))
		}
		if f.Integral() {
			i, ok := params.AsInt(v)
			if !ok {
				return nil, fmt.Errorf("expected an integer, got %s", params.Format(v))
			}
			return params.Int(i), nil
		}
		return params.Float(n), nil
	case FieldSelect:
		s, ok := v.(params.String)
		if !ok {
			return nil, fmt.Errorf("expected one of %v, got %s", f.Options, kindName(v))
		}
		for _, opt := range f.Options {
			if string(s) == opt {
				return s, nil
			}
		}
		return nil, fmt.Errorf("%q is not one of %v", string(s), f.Options)
	case FieldCheckbox:
		if _, ok := v.(params.Bool); !ok {
			return nil, fmt.Errorf("expected a boolean, got %s", kindName(v))
		}
		return v, nil
	}
	return nil, fmt.Errorf("unsupported field type %q", f.Type)
}

// parseLike parses s to the same kind as the default value def.
func parseLike(def params.Value, s string) (params.Value, error) {
	s = strings.TrimSpace(s)
	switch def.(type) {
	case params.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("expected true or false, got %q", s)
		}
		return params.Bool(b), nil
	case params.Int:
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("expected an integer, got %q", s)
		}
		return params.Int(i), nil
	case params.Float:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("expected a number, got %q", s)
		}
		return params.Float(f), nil
	default:
		return params.String(unquote(s)), nil
	}
}

func sameKind(a, b params.Value) bool {
	switch a.(type) {
	case params.Int, params.Float:
		_, ok := params.AsFloat(b)
		return ok
	case params.String:
		_, ok := b.(params.String)
		return ok
	case params.Bool:
		_, ok := b.(params.Bool)
		return ok
	}
	return false
}

func kindName(v params.Value) string {
	switch v.(type) {
	case params.Int:
		return "integer"
	case params.Float:
		return "number"
	case params.String:
		return "string"
	case params.Bool:
		return "boolean"
	}
	return fmt.Sprintf("%T", v)
}

// unquote accepts both bare and JSON-quoted strings ("cosine" or cosine).
func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' {
		var out string
		if err := json.Unmarshal([]byte(s), &out); err == nil {
			return out
		}
	}
	return s
}

func fmtBound(b *float64) string {
	if b == nil {
		return "-"
	}
	return strconv.FormatFloat(*b, 'f', -1, 64)
}
