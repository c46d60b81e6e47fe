package xpost

import (
	"errors"
	"fmt"
	"strings"
)

// MissingEnvError is returned when required configuration is missing.
type MissingEnvError struct {
	Provider  string
	Variables []string
}

func (e MissingEnvError) Error() string {
	if len(e.Variables) == 0 {
		return fmt.Sprintf("%s credentials not configured", e.Provider)
	}
	return fmt.Sprintf("%s credentials not configured (missing %s)", e.Provider, strings.Join(e.Variables, ", "))
}

// ValidationError captures provider-specific validation issues.
type ValidationError struct {
	Provider string
	Reason   string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s validation failed: %s", e.Provider, e.Reason)
}

// Kind classifies failures coming back from remote services.
type Kind int

const (
	Unknown Kind = iota
	PermissionDenied
	ServiceUnavailable
	MalformedResponse
	SubmissionRejected
)

func (k Kind) String() string {
	switch k {
	case PermissionDenied:
		return "permission denied"
	case ServiceUnavailable:
		return "service unavailable"
	case MalformedResponse:
		return "malformed response"
	case SubmissionRejected:
		return "submission rejected"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrPermissionDenied   = &Error{Kind: PermissionDenied}
	ErrServiceUnavailable = &Error{Kind: ServiceUnavailable}
	ErrMalformedResponse  = &Error{Kind: MalformedResponse}
	ErrSubmissionRejected = &Error{Kind: SubmissionRejected}
)

// Error is a classified failure from a platform or service call.
type Error struct {
	Kind     Kind
	Op       string
	Provider string
	Err      error
}

// NewError wraps err with a kind. A nil err yields nil.
func NewError(kind Kind, provider, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Provider: provider, Err: err}
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Provider != "" {
		b.WriteString(e.Provider)
		b.WriteString(": ")
	}
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinel errors, which carry only a Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Provider == "" && t.Err == nil && t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or Unknown.
func KindOf(err error) Kind {
	var xe *Error
	if errors.As(err, &xe) {
		return xe.Kind
	}
	return Unknown
}
