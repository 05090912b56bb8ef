package compiler

import (
	"fmt"

	"github.com/stealthrocket/stackless/ir"
)

// StructuralError is returned when a body is malformed: a suspension inside
// a cleanup region, a branch outside of a loop, an undefined name.
type StructuralError struct {
	Body string
	Msg  string
}

func (e *StructuralError) Error() string {
	if e.Body == "" {
		return "structural error: " + e.Msg
	}
	return fmt.Sprintf("%s: structural error: %s", e.Body, e.Msg)
}

func structuralErrorf(body *ir.Body, format string, args ...any) error {
	return &StructuralError{Body: body.Name, Msg: fmt.Sprintf(format, args...)}
}

// LivenessViolation is returned when the compiled state machine would not
// preserve the invariants of the state record. It indicates a defect of the
// compiler.
type LivenessViolation struct {
	Body string
	Msg  string
}

func (e *LivenessViolation) Error() string {
	return fmt.Sprintf("%s: liveness violation: %s", e.Body, e.Msg)
}
