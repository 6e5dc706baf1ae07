package idl

import "fmt"

// DescriptionError is a fatal parse failure, located precisely enough to
// reproduce the original compiler's diagnostics (§6 CLI error format:
// "file (line: N, col: M): message").
type DescriptionError struct {
	File    string
	Line    int
	Col     int
	Message string
}

func (e *DescriptionError) Error() string {
	return fmt.Sprintf("%s (line: %d, col: %d): %s", e.File, e.Line, e.Col, e.Message)
}

func newError(file string, span Span, format string, args ...any) *DescriptionError {
	return &DescriptionError{
		File:    file,
		Line:    span.Line,
		Col:     span.Col,
		Message: fmt.Sprintf(format, args...),
	}
}
