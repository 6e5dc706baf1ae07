package registry

import "fmt"

// Error is a compiler-stage-2 failure: a type-registry violation located
// at the span of the offending declaration or field (§4.7/§7). It is
// formatted identically to idl.DescriptionError so CLI error reporting
// is uniform across both compiler stages.
type Error struct {
	File    string
	Line    int
	Col     int
	Kind    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (line: %d, col: %d): %s", e.File, e.Line, e.Col, e.Message)
}

// Error kinds (§7 error taxonomy).
const (
	KindDuplicateType = "DuplicateType"
	KindUnknownType   = "UnknownType"
	KindBadArrayLen   = "BadArrayLength"
)

func newErr(file string, line, col int, kind, format string, args ...any) *Error {
	return &Error{File: file, Line: line, Col: col, Kind: kind, Message: fmt.Sprintf(format, args...)}
}
