package registry

import (
	"crypto/md5" //nolint:gosec // content fingerprint, not a security boundary (§9 resolution)
	"fmt"

	"github.com/routio/routio/idl"
)

// computeHash renders a 16-byte digest of content as 32 lowercase hex
// characters; this is the fixed type-tag algorithm (§9 resolution).
func computeHash(content string) string {
	sum := md5.Sum([]byte(content)) //nolint:gosec
	return fmt.Sprintf("%x", sum)
}

// EnumInfo is a registered enumeration, members in declaration order.
type EnumInfo struct {
	Name    string
	Members []string
}

// AggregateInfo is a registered structure or message, fields in
// declaration order.
type AggregateInfo struct {
	Name      string
	Fields    []idl.Field
	IsMessage bool
}

// ExternalInfo is a registered external type with its per-language
// bindings, carried through unchanged from the AST.
type ExternalInfo struct {
	Name      string
	Languages []idl.LanguageBinding
}

// Registry accumulates the types declared in one description file,
// computing each one's content-derived hash and validating field type
// references (§4.7).
type Registry struct {
	file string

	types map[string]*Type
	order []string

	enums      map[string]*EnumInfo
	aggregates map[string]*AggregateInfo
	externals  map[string]*ExternalInfo

	messages []string
}

// New creates a Registry seeded with the built-in type table. file names
// the source being compiled, for error locations.
func New(file string) *Registry {
	r := &Registry{
		file:       file,
		types:      make(map[string]*Type),
		enums:      make(map[string]*EnumInfo),
		aggregates: make(map[string]*AggregateInfo),
		externals:  make(map[string]*ExternalInfo),
	}
	r.registerBuiltins()
	return r
}

func (r *Registry) put(t *Type) {
	if _, exists := r.types[t.Name]; !exists {
		r.order = append(r.order, t.Name)
	}
	r.types[t.Name] = t
}

// Lookup returns the type registered under name, if any.
func (r *Registry) Lookup(name string) (*Type, bool) {
	t, ok := r.types[name]
	return t, ok
}

// Messages returns the names of registered messages in declaration order.
func (r *Registry) Messages() []string {
	return r.messages
}

// Aggregate returns the fields of a registered struct or message.
func (r *Registry) Aggregate(name string) (*AggregateInfo, bool) {
	a, ok := r.aggregates[name]
	return a, ok
}

// Enum returns a registered enum's members.
func (r *Registry) Enum(name string) (*EnumInfo, bool) {
	e, ok := r.enums[name]
	return e, ok
}

// Externals returns the registered external types in declaration order.
func (r *Registry) Externals() []*Type {
	var out []*Type
	for _, name := range r.order {
		if t := r.types[name]; t.IsExternal {
			out = append(out, t)
		}
	}
	return out
}

// Build walks a parsed Description in declaration order, registering
// every enum, structure, message, and external type, and validating
// field type references. Include/Import decls are skipped: they are
// neither recorded as dependency sources nor resolved, so each file is
// registered in isolation.
func (r *Registry) Build(d *idl.Description) error {
	for _, decl := range d.Decls {
		var err error
		switch {
		case decl.Enumerate != nil:
			err = r.RegisterEnum(decl.Enumerate)
		case decl.Structure != nil:
			err = r.RegisterStruct(decl.Structure)
		case decl.Message != nil:
			err = r.RegisterMessage(decl.Message)
		case decl.External != nil:
			err = r.RegisterExternal(decl.External)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) duplicateCheck(name string, span idl.Span) error {
	if _, exists := r.types[name]; exists {
		return newErr(r.file, span.Line, span.Col, KindDuplicateType, "type %q is already defined", name)
	}
	return nil
}

// RegisterEnum registers an enumeration. An empty enumerate is allowed
// and generates an empty enum (§4.7).
func (r *Registry) RegisterEnum(e *idl.Enumerate) error {
	if err := r.duplicateCheck(e.Name, e.Span); err != nil {
		return err
	}
	content := e.Name
	for _, m := range e.Members {
		content += m
	}
	r.enums[e.Name] = &EnumInfo{Name: e.Name, Members: e.Members}
	r.put(&Type{Name: e.Name, Hash: computeHash(content)})
	return nil
}

func (r *Registry) checkFields(owner string, fields []idl.Field) error {
	for _, f := range fields {
		if _, ok := r.types[f.Type]; !ok {
			return newErr(r.file, f.Span.Line, f.Span.Col, KindUnknownType,
				"field %q of %q references unknown type %q", f.Name, owner, f.Type)
		}
		if f.Array != nil && f.Array.FixedLen != nil && *f.Array.FixedLen < 0 {
			return newErr(r.file, f.Array.Span.Line, f.Array.Span.Col, KindBadArrayLen,
				"field %q of %q has a negative array length", f.Name, owner)
		}
	}
	return nil
}

func (r *Registry) registerAggregate(name string, span idl.Span, fields []idl.Field, isMessage bool) error {
	if err := r.duplicateCheck(name, span); err != nil {
		return err
	}
	if err := r.checkFields(name, fields); err != nil {
		return err
	}

	content := name
	for _, f := range fields {
		content += f.Type + f.Name
	}

	r.aggregates[name] = &AggregateInfo{Name: name, Fields: fields, IsMessage: isMessage}
	r.put(&Type{Name: name, Hash: computeHash(content)})
	if isMessage {
		r.messages = append(r.messages, name)
	}
	return nil
}

// RegisterStruct registers a structure declaration.
func (r *Registry) RegisterStruct(s *idl.Structure) error {
	return r.registerAggregate(s.Name, s.Span, s.Fields, false)
}

// RegisterMessage registers a message declaration. Messages are
// structures that additionally carry a publish/subscribe identity on
// the wire, so they hash and validate exactly like structures.
func (r *Registry) RegisterMessage(m *idl.Message) error {
	return r.registerAggregate(m.Name, m.Span, m.Fields, true)
}

// RegisterExternal registers a type implemented outside the description
// language. External types hash by name only (§4.7).
func (r *Registry) RegisterExternal(e *idl.External) error {
	if err := r.duplicateCheck(e.Name, e.Span); err != nil {
		return err
	}

	t := &Type{
		Name:       e.Name,
		Hash:       computeHash(e.Name),
		IsExternal: true,
		Containers: map[string]string{},
		Defaults:   map[string]string{},
		Readers:    map[string]string{},
		Writers:    map[string]string{},
	}
	for _, lang := range e.Languages {
		t.Containers[lang.Language] = lang.Source
		if lang.Default != "" {
			t.Defaults[lang.Language] = lang.Default
		}
		if lang.Reader != "" {
			t.Readers[lang.Language] = lang.Reader
		}
		if lang.Writer != "" {
			t.Writers[lang.Language] = lang.Writer
		}
		t.Sources = append(t.Sources, lang.From...)
	}

	r.externals[e.Name] = &ExternalInfo{Name: e.Name, Languages: e.Languages}
	r.put(t)
	return nil
}
