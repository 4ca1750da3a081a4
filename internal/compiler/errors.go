package compiler

import (
	"fmt"

	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// CompileError reports a config document that cannot become campaigns.
// Field is a JSON path such as "bundles[2].products".
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

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &CompileError{Field: "config", Message: err.Error()}
	}

	// Return first error with position info
	firstErr := errs[0]
	field := "config"
	if path := firstErr.Path(); len(path) > 0 {
		field = fieldPath(path)
	}

	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   field,
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return &CompileError{Field: field, Message: firstErr.Error()}
}

// fieldPath renders CUE path selectors as a JSON-ish path.
func fieldPath(path []string) string {
	out := ""
	for _, sel := range path {
		if len(sel) > 0 && sel[0] >= '0' && sel[0] <= '9' {
			out += "[" + sel + "]"
			continue
		}
		if out != "" {
			out += "."
		}
		out += sel
	}
	return out
}
