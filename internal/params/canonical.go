package params

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces RFC 8785 canonical JSON for a parameter set.
// This is the only serialization used for persisted params and for the
// params hash, so identical parameter sets always encode byte-identically.
//
// Differences from json.Marshal:
//  1. Object keys sorted by UTF-16 code units
//  2. No HTML escaping
//  3. Keys and string values are NFC normalized
//  4. Numbers use the ECMAScript shortest round-trip form
//  5. NaN and infinities are rejected
func MarshalCanonical(p Params) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	for i, k := range p.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := marshalString(k)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')

		valBytes, err := marshalValue(p[k])
		if err != nil {
			return nil, fmt.Errorf("value for key %q: %w", k, err)
		}
		buf.Write(valBytes)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Canonicalize returns the normal form of p: keys and string values NFC
// normalized, floats with no fractional part kept as Float. It is
// idempotent and insensitive to map insertion order.
//
// Two keys that normalize to the same NFC form are a conflict and produce
// an error rather than a silent overwrite.
func Canonicalize(p Params) (Params, error) {
	out := make(Params, len(p))
	for _, k := range p.SortedKeys() {
		nk := norm.NFC.String(k)
		if _, dup := out[nk]; dup {
			return nil, fmt.Errorf("param %q collides with another key after normalization", k)
		}
		v := p[k]
		switch val := v.(type) {
		case String:
			v = String(norm.NFC.String(string(val)))
		case Float:
			if math.IsNaN(float64(val)) || math.IsInf(float64(val), 0) {
				return nil, fmt.Errorf("param %q: non-finite number", k)
			}
			if val == 0 {
				v = Float(0) // fold -0
			}
		case Int, Bool:
		case nil:
			return nil, fmt.Errorf("param %q: null value", k)
		default:
			return nil, fmt.Errorf("param %q: unsupported type %T", k, v)
		}
		out[nk] = v
	}
	return out, nil
}

// Encode canonicalizes p and returns its canonical JSON text, the form
// stored in configs.params_json.
func Encode(p Params) (string, error) {
	c, err := Canonicalize(p)
	if err != nil {
		return "", err
	}
	data, err := MarshalCanonical(c)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Decode parses canonical (or any flat) JSON text back into Params.
func Decode(data string) (Params, error) {
	if data == "" || data == "{}" {
		return Params{}, nil
	}
	var p Params
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("decode params: %w", err)
	}
	return p, nil
}

func marshalValue(v Value) ([]byte, error) {
	switch val := v.(type) {
	case String:
		return marshalString(string(val))
	case Int:
		return []byte(strconv.FormatInt(int64(val), 10)), nil
	case Float:
		return formatNumber(float64(val))
	case Bool:
		if val {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case nil:
		return nil, fmt.Errorf("null is forbidden in canonical JSON")
	default:
		return nil, fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
}

// formatNumber follows the ECMAScript Number.prototype.toString rules that
// RFC 8785 references: integers below 1e21 print without exponent, small
// and large magnitudes use the shortest exponent form.
func formatNumber(f float64) ([]byte, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("non-finite numbers are forbidden in canonical JSON: %v", f)
	}
	if f == 0 {
		return []byte("0"), nil
	}
	abs := math.Abs(f)
	if abs >= 1e-6 && abs < 1e21 {
		return []byte(strconv.FormatFloat(f, 'f', -1, 64)), nil
	}
	// Go pads exponents to two digits ("1e-07"); ECMAScript does not.
	s := strconv.FormatFloat(f, 'e', -1, 64)
	mant, exp, _ := strings.Cut(s, "e")
	sign, digits := exp[:1], strings.TrimLeft(exp[1:], "0")
	return []byte(mant + "e" + sign + digits), nil
}

// marshalString produces a JSON string with NFC normalization and no HTML
// escaping. U+2028/U+2029 are left as literal characters.
func marshalString(s string) ([]byte, error) {
	normalized := norm.NFC.String(s)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return nil, err
	}

	result := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
	return unescapeLineSeparators(result), nil
}

// unescapeLineSeparators turns the \u2028 and \u2029 escapes emitted by
// encoding/json back into literal characters. An escape preceded by an odd
// number of backslashes is literal text and is left alone.
func unescapeLineSeparators(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}

	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] == '\\' && i+5 < len(data) && string(data[i+1:i+5]) == "u202" &&
			(data[i+5] == '8' || data[i+5] == '9') {
			backslashes := 0
			for j := len(out) - 1; j >= 0 && out[j] == '\\'; j-- {
				backslashes++
			}
			if backslashes%2 == 0 {
				if data[i+5] == '8' {
					out = append(out, "\u2028"...)
				} else {
					out = append(out, "\u2029"...)
				}
				i += 5
				continue
			}
		}
		out = append(out, data[i])
	}
	return out
}
