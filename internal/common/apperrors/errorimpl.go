package apperrors

import (
	"errors"
	"maps"
	"strings"
)

// appError implements the apperrors.Error interface.
type appError struct {
	msg           string         // primary error message
	base          error          // base error for errors.Is/As compatibility
	wrappedErrors []error        // additional wrapped errors
	statuscode    int            // upstream HTTP status code
	kind          Kind           // error family
	tag           Tag            // condition tag
	fields        map[string]any // context fields
	expandError   bool           // controls error message expansion
	prefix        string         // optional message prefix
	suffix        string         // optional message suffix
}

// Error returns the formatted error message without mutating state.
func (e *appError) Error() string {
	msg := e.msg
	if e.prefix != "" {
		msg = e.prefix + ": " + msg
	}
	if e.suffix != "" {
		msg = msg + ": " + e.suffix
	}
	return msg
}

// ErrorAll returns the full message including wrapped errors if expandError is true.
// Otherwise, returns the same as Error().
func (e *appError) ErrorAll() string {
	if !e.expandError {
		return e.Error()
	}
	var b strings.Builder
	b.WriteString(e.Error())
	for _, err := range e.wrappedErrors {
		if err == nil || err == e.base {
			continue
		}
		b.WriteString("; ")
		b.WriteString(err.Error())
	}
	return b.String()
}

// Unwrap returns the base error for compatibility with errors.Is / errors.As.
func (e *appError) Unwrap() error {
	return e.base
}

// UnwrapAll returns all wrapped errors in the order they were added.
func (e *appError) UnwrapAll() []error {
	return e.wrappedErrors
}

// derive builds a child of e that inherits classification and context.
func (e *appError) derive(msg string, wrapped []error) *appError {
	return &appError{
		msg:           msg,
		base:          e,
		wrappedErrors: wrapped,
		statuscode:    e.statuscode,
		kind:          e.kind,
		tag:           e.tag,
		fields:        maps.Clone(e.fields),
		expandError:   e.expandError,
	}
}

// Msg creates a new error with a new message and wraps the original error.
func (e *appError) Msg(msg string) Error {
	return e.derive(msg, append([]error{e}, e.wrappedErrors...))
}

// New creates a fresh error using the current error as a template.
func (e *appError) New(msg string) Error {
	return e.derive(msg, nil)
}

// MsgErr creates a new error with a message and wraps additional errors.
func (e *appError) MsgErr(msg string, errs ...error) Error {
	return e.derive(msg, append([]error{e}, errs...))
}

// Err creates a new error by attaching additional errors to the current error.
// The new error keeps the original message.
func (e *appError) Err(errs ...error) Error {
	return e.derive(e.msg, append([]error{e}, errs...))
}

// Prefix returns a shallow copy with an updated prefix.
func (e *appError) Prefix(p string) Error {
	cp := *e
	cp.prefix = p
	return &cp
}

// Suffix returns a shallow copy with an updated suffix.
func (e *appError) Suffix(s string) Error {
	cp := *e
	cp.suffix = s
	return &cp
}

// SetExpandError returns a shallow copy with an updated expansion flag.
func (e *appError) SetExpandError(flag bool) Error {
	cp := *e
	cp.expandError = flag
	return &cp
}

// SetStatusCode returns a shallow copy with an updated status code. The code is
// also recorded as a context field so it reaches log sinks and tool results.
func (e *appError) SetStatusCode(code int) Error {
	cp := *e
	cp.statuscode = code
	cp.fields = maps.Clone(e.fields)
	if code != 0 {
		if cp.fields == nil {
			cp.fields = make(map[string]any)
		}
		cp.fields[FieldStatusCode] = code
	}
	return &cp
}

func (e *appError) StatusCode() int {
	return e.statuscode
}

func (e *appError) SetKind(k Kind) Error {
	cp := *e
	cp.kind = k
	return &cp
}

func (e *appError) Kind() Kind {
	return e.kind
}

func (e *appError) SetTag(t Tag) Error {
	cp := *e
	cp.tag = t
	return &cp
}

func (e *appError) Tag() Tag {
	return e.tag
}

// With returns a copy carrying an extra context field. Empty string values are
// dropped so optional context does not clutter the output.
func (e *appError) With(key string, value any) Error {
	if s, ok := value.(string); ok && s == "" {
		return e
	}
	cp := *e
	cp.fields = maps.Clone(e.fields)
	if cp.fields == nil {
		cp.fields = make(map[string]any)
	}
	cp.fields[key] = value
	return &cp
}

func (e *appError) Fields() map[string]any {
	return maps.Clone(e.fields)
}

// New creates a root-level appError with the given message.
func New(msg string) Error {
	return &appError{
		msg: msg,
	}
}

// Is checks if the error is equal to the target error by checking
// both the base error and all wrapped errors.
func (e *appError) Is(target error) bool {
	if target == nil {
		return false
	}
	if errors.Is(e.base, target) {
		return true
	}
	for _, err := range e.wrappedErrors {
		if err == e {
			continue
		}
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
