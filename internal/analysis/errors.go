package analysis

import (
	"errors"
	"fmt"
)

// Kind says which collaborator failed.
type Kind int

const (
	// SourceUnavailable: the document could not be fetched or decoded.
	SourceUnavailable Kind = iota + 1
	// ModelUnavailable: the language model failed.
	ModelUnavailable
)

func (k Kind) String() string {
	switch k {
	case SourceUnavailable:
		return "source_unavailable"
	case ModelUnavailable:
		return "model_unavailable"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

var (
	ErrSourceUnavailable = errors.New("document source unavailable")
	ErrModelUnavailable  = errors.New("language model unavailable")
)

// Error is the only error the analyzer returns. It wraps the collaborator's
// failure unchanged.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrSourceUnavailable:
		return e.Kind == SourceUnavailable
	case ErrModelUnavailable:
		return e.Kind == ModelUnavailable
	}
	return false
}

func sourceErr(op string, err error) error {
	return &Error{Kind: SourceUnavailable, Op: op, Err: err}
}

func modelErr(op string, err error) error {
	return &Error{Kind: ModelUnavailable, Op: op, Err: err}
}

// KindOf reports the kind of an analysis error anywhere in err's chain.
func KindOf(err error) (Kind, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind, true
	}
	return 0, false
}
