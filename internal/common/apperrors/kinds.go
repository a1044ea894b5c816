package apperrors

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"
)

// Root errors. Every error surfaced by the backend access layer derives from one
// of these three.
var (
	// ErrAuthentication covers failed token exchanges and repeated authorization failures.
	ErrAuthentication Error = New("authentication failed").SetKind(KindAuthentication)

	// ErrAPI covers non-auth HTTP failures, malformed responses, pagination limits
	// and network-level failures.
	ErrAPI Error = New("api request failed").SetKind(KindAPI)

	// ErrFlightControl covers domain failures not tied to a single HTTP exchange.
	ErrFlightControl Error = New("flight control error").SetKind(KindFlightControl)
)

// KindOf returns the kind of the first Error found in err's chain.
func KindOf(err error) Kind {
	var ae Error
	if errors.As(err, &ae) {
		return ae.Kind()
	}
	return KindUnknown
}

// TagOf returns the tag of the first Error found in err's chain.
func TagOf(err error) Tag {
	var ae Error
	if errors.As(err, &ae) {
		return ae.Tag()
	}
	return TagNone
}

// FieldsOf returns the context fields of the first Error found in err's chain.
func FieldsOf(err error) map[string]any {
	var ae Error
	if errors.As(err, &ae) {
		return ae.Fields()
	}
	return nil
}

// Describe renders err as "<Kind> [<tag>]: <message> (k=v, ...)" with fields in
// key order. The bulky body and output fields are left out. Plain errors are
// rendered by their message.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	var ae Error
	if !errors.As(err, &ae) {
		return err.Error()
	}
	var b strings.Builder
	if ae.Kind() != KindUnknown {
		b.WriteString(string(ae.Kind()))
	} else {
		b.WriteString("Error")
	}
	if ae.Tag() != TagNone {
		fmt.Fprintf(&b, " [%s]", ae.Tag())
	}
	b.WriteString(": ")
	b.WriteString(ae.ErrorAll())

	fields := ae.Fields()
	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			if k == FieldBody || k == FieldOutput {
				continue
			}
			keys = append(keys, k)
		}
		slices.Sort(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
		}
		if len(parts) > 0 {
			b.WriteString(" (")
			b.WriteString(strings.Join(parts, ", "))
			b.WriteString(")")
		}
	}
	return b.String()
}

// Excerpt returns at most n bytes of b as a string, marking truncation. The
// cut never splits a multi-byte rune.
func Excerpt(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	for n > 0 && !utf8.RuneStart(b[n]) {
		n--
	}
	return string(b[:n]) + "..."
}
