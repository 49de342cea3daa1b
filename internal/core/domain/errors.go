package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound     = errors.New("document not found")
	ErrInvalidInput         = errors.New("invalid input")
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrAnalysisNotReady     = errors.New("analysis not complete")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrTemporary            = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// GenerationParseError reports model output that could not be parsed or did not
// match the stage schema. Stages recover from it locally.
type GenerationParseError struct {
	Stage string
	Raw   string
	Err   error
}

func (e *GenerationParseError) Error() string {
	if e == nil {
		return "generation parse error"
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: malformed generation output", e.Stage)
	}
	return fmt.Sprintf("%s: malformed generation output: %v", e.Stage, e.Err)
}

func (e *GenerationParseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func NewGenerationParseError(stage, raw string, err error) *GenerationParseError {
	return &GenerationParseError{Stage: stage, Raw: raw, Err: err}
}

func IsGenerationParseError(err error) bool {
	var parseErr *GenerationParseError
	return errors.As(err, &parseErr)
}
