// Package idl implements the message-description language compiler
// front end: the lexer and recursive-descent parser that produce a typed
// AST (component C6).
package idl

// Span is the source location of an AST node: byte offset plus 1-based
// line and column.
type Span struct {
	Offset int
	Line   int
	Col    int
}

// Value is a literal: number, string, or boolean.
type Value struct {
	Kind   ValueKind
	Number float64
	String string
	Bool   bool
}

// ValueKind discriminates a Value's payload.
type ValueKind int

// Value kinds.
const (
	ValueNumber ValueKind = iota + 1
	ValueString
	ValueBool
)

// KeywordArg is a name=value entry in a keyword-style Properties list.
type KeywordArg struct {
	Name  string
	Value Value
	Span  Span
}

// Properties is a field or declaration's parenthesized argument list: a
// keyword-only list, or positional values optionally followed by a
// switch to keyword form (§4.6). Once keywords begin, no further
// positional value may follow.
type Properties struct {
	Positional []Value
	Keywords   []KeywordArg
	Span       Span
}

// ArraySpec marks a field as an array, with an optional fixed length.
// FixedLen is nil for a dynamically-sized array.
type ArraySpec struct {
	FixedLen *int
	Span     Span
}

// Field is one member of a Structure or Message.
type Field struct {
	Type       string
	Name       string
	Array      *ArraySpec
	Properties *Properties
	Default    *Value
	Span       Span
}

// Enumerate declares a named enumeration; Members are ordered as written.
type Enumerate struct {
	Name    string
	Members []string
	Span    Span
}

// Structure declares a named aggregate with ordered fields.
type Structure struct {
	Name   string
	Fields []Field
	Span   Span
}

// Message declares a named, wire-tagged aggregate with ordered fields.
type Message struct {
	Name   string
	Fields []Field
	Span   Span
}

// Include pulls in another description file, with an optional property
// list (original_source's generator accepts this even though the
// worked examples only show bare import).
type Include struct {
	Path       string
	Properties *Properties
	Span       Span
}

// Import pulls in another description file by bare path.
type Import struct {
	Path string
	Span Span
}

// LanguageBinding is one `language` clause inside an External declaration.
type LanguageBinding struct {
	Language string
	Source   string
	From     []string
	Default  string
	Reader   string
	Writer   string
	Span     Span
}

// External declares a type implemented outside the description language,
// with per-language bindings.
type External struct {
	Name      string
	Languages []LanguageBinding
	Span      Span
}

// Decl is one top-level declaration. Exactly one of the pointer fields is
// non-nil.
type Decl struct {
	Enumerate *Enumerate
	Structure *Structure
	Message   *Message
	Include   *Include
	Import    *Import
	External  *External
}

// Span returns the span of whichever alternative is populated.
func (d Decl) Span() Span {
	switch {
	case d.Enumerate != nil:
		return d.Enumerate.Span
	case d.Structure != nil:
		return d.Structure.Span
	case d.Message != nil:
		return d.Message.Span
	case d.Include != nil:
		return d.Include.Span
	case d.Import != nil:
		return d.Import.Span
	case d.External != nil:
		return d.External.Span
	default:
		return Span{}
	}
}

// Description is the root of a parsed input file (§3 IDL AST).
type Description struct {
	Namespace string
	Decls     []Decl
}
