package catalog

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/artdr/internal/errdefs"
	"github.com/roach88/artdr/internal/params"
)

//go:embed schema.cue
var schemaSrc string

//go:embed methods.cue
var methodsSrc string

// FieldType is the kind of control a parameter is rendered as.
type FieldType string

const (
	FieldRange    FieldType = "range"
	FieldSelect   FieldType = "select"
	FieldCheckbox FieldType = "checkbox"
)

// Field describes one tunable parameter. The JSON form is what
// `list params` emits.
type Field struct {
	Name    string    `json:"name"`
	Type    FieldType `json:"type"`
	Min     *float64  `json:"min,omitempty"`
	Max     *float64  `json:"max,omitempty"`
	Step    *float64  `json:"step,omitempty"`
	Options []string  `json:"options,omitempty"`
	Value   any       `json:"value"`
}

// Integral reports whether a range field only takes whole numbers.
func (f Field) Integral() bool {
	if f.Type != FieldRange || f.Step == nil || f.Min == nil {
		return false
	}
	return isWhole(*f.Step) && isWhole(*f.Min)
}

// BackendKind selects how a back-end is executed.
type BackendKind string

const (
	KindExec   BackendKind = "exec"
	KindNative BackendKind = "native"
)

// Backend describes one concrete DR implementation.
type Backend struct {
	Name    string      `json:"-"`
	Kind    BackendKind `json:"kind"`
	Module  string      `json:"module,omitempty"`
	Class   string      `json:"class,omitempty"`
	Call    string      `json:"call"`
	Adapter string      `json:"adapter"`
	// Accepts names the method whose parameter set this back-end takes.
	Accepts string `json:"accepts"`
}

// Step is one entry of a method's fallback chain.
type Step struct {
	Backend string            `json:"backend"`
	Rename  map[string]string `json:"rename"`
}

// Method is the declared execution contract of a DR method.
type Method struct {
	Name        string                     `json:"name"`
	Description string                     `json:"description"`
	Fields      []Field                    `json:"fields"`
	RawDefaults map[string]json.RawMessage `json:"defaults"`
	Renames     map[string]string          `json:"renames"`
	Chain       []Step                     `json:"chain"`

	defaults params.Params
}

// Defaults returns a copy of the method's default table.
func (m *Method) Defaults() params.Params {
	return m.defaults.Clone()
}

// Field returns the schema entry for name.
func (m *Method) Field(name string) (Field, bool) {
	for _, f := range m.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Common holds fields and renames that apply to every method.
type Common struct {
	Fields  []Field           `json:"fields"`
	Renames map[string]string `json:"renames"`
}

// Catalog is the compiled set of methods and back-ends.
type Catalog struct {
	Common   Common             `json:"common"`
	Backends map[string]Backend `json:"backends"`
	Methods  []*Method          `json:"methods"`

	byName  map[string]*Method
	accepts map[string]map[string]bool
}

// Default compiles the embedded catalog.
func Default() (*Catalog, error) {
	return Compile(methodsSrc, "methods.cue")
}

// LoadFile compiles a catalog file in place of the embedded one.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Compile(string(data), path)
}

// Compile unifies src with the catalog schema and decodes it.
// Uses the CUE Go API directly; no CLI subprocess.
func Compile(src, filename string) (*Catalog, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(schemaSrc+"\n"+src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	data, err := v.MarshalJSON()
	if err != nil {
		return nil, formatCUEError(err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var c Catalog
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	if err := c.index(); err != nil {
		return nil, err
	}
	return &c, nil
}

// index resolves cross references and builds lookup tables.
func (c *Catalog) index() error {
	c.byName = make(map[string]*Method, len(c.Methods))
	for _, m := range c.Methods {
		if _, dup := c.byName[m.Name]; dup {
			return &CompileError{Field: "methods", Message: fmt.Sprintf("duplicate method %q", m.Name)}
		}
		c.byName[m.Name] = m

		defaults := make(params.Params, len(m.RawDefaults))
		for k, raw := range m.RawDefaults {
			v, err := decodeScalar(raw)
			if err != nil {
				return &CompileError{Field: m.Name + ".defaults." + k, Message: err.Error()}
			}
			defaults[k] = v
		}
		m.defaults = defaults
	}

	for name, b := range c.Backends {
		b.Name = name
		c.Backends[name] = b
		if _, ok := c.byName[b.Accepts]; !ok {
			return &CompileError{Field: "backends." + name, Message: fmt.Sprintf("accepts unknown method %q", b.Accepts)}
		}
	}

	for _, m := range c.Methods {
		for i, s := range m.Chain {
			if _, ok := c.Backends[s.Backend]; !ok {
				return &CompileError{
					Field:   fmt.Sprintf("%s.chain[%d]", m.Name, i),
					Message: fmt.Sprintf("unknown backend %q", s.Backend),
				}
			}
		}
	}

	c.accepts = make(map[string]map[string]bool, len(c.Methods))
	for _, m := range c.Methods {
		set := make(map[string]bool)
		for _, f := range c.Common.Fields {
			set[f.Name] = true
		}
		for _, f := range m.Fields {
			set[f.Name] = true
		}
		for k := range m.defaults {
			set[k] = true
		}
		c.accepts[m.Name] = set
	}
	return nil
}

// Method looks up a method by name. Unknown names are a ValidationError.
func (c *Catalog) Method(name string) (*Method, error) {
	m, ok := c.byName[name]
	if !ok {
		return nil, errdefs.Validation("method", "unknown method %q (available: %v)", name, c.MethodNames())
	}
	return m, nil
}

// MethodNames lists methods in catalog order.
func (c *Catalog) MethodNames() []string {
	names := make([]string, len(c.Methods))
	for i, m := range c.Methods {
		names[i] = m.Name
	}
	return names
}

// Backend looks up a back-end by name.
func (c *Catalog) Backend(name string) (Backend, bool) {
	b, ok := c.Backends[name]
	return b, ok
}

// BackendNames lists back-ends in sorted order.
func (c *Catalog) BackendNames() []string {
	names := make([]string, 0, len(c.Backends))
	for name := range c.Backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Accepts reports whether back-ends accepting method take param key.
func (c *Catalog) Accepts(method, key string) bool {
	return c.accepts[method][key]
}

// Renames returns the deprecated-name table for a method, common renames
// included. Method entries win over common ones.
func (c *Catalog) Renames(m *Method) map[string]string {
	out := make(map[string]string, len(c.Common.Renames)+len(m.Renames))
	for from, to := range c.Common.Renames {
		out[from] = to
	}
	for from, to := range m.Renames {
		out[from] = to
	}
	return out
}

// CompileError reports a malformed catalog.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	positions := errors.Positions(first)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return &CompileError{Field: "cue", Message: first.Error()}
}

func decodeScalar(raw json.RawMessage) (params.Value, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return params.FromAny(v)
}

func isWhole(f float64) bool {
	return f == float64(int64(f))
}
