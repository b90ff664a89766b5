package mapper

import (
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/searchmapper/pkg/errors"
)

// ErrorKind classifies document parse failures.
type ErrorKind int

const (
	// KindMalformed is bad input; retrying with another mapping won't help.
	KindMalformed ErrorKind = iota
	// KindPolicy is a dynamic mapping policy violation such as strict mode
	// or a type conflict.
	KindPolicy
	// KindForbidden is a structural request the parser refuses.
	KindForbidden
	// KindInternal is an invariant violation.
	KindInternal
)

func (k ErrorKind) String() string {
	switch k {
	case KindMalformed:
		return "malformed"
	case KindPolicy:
		return "policy"
	case KindForbidden:
		return "forbidden"
	case KindInternal:
		return "internal"
	}
	return "unknown"
}

// ParsingError is returned for every failed document parse.
type ParsingError struct {
	Kind  ErrorKind
	Index string
	Type  string
	ID    string
	// Field is the full path of the field being parsed, when known.
	Field   string
	Message string
	Cause   error

	strict bool
}

func (e *ParsingError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Index != "" || e.Type != "" || e.ID != "" {
		fmt.Fprintf(&b, " (index [%s], type [%s], id [%s])", e.Index, e.Type, e.ID)
	}
	if e.Cause != nil && !strings.Contains(e.Message, e.Cause.Error()) {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *ParsingError) Unwrap() error { return e.Cause }

// Is matches the sentinel for the error's kind.
func (e *ParsingError) Is(target error) bool {
	switch target {
	case apperrors.ErrMalformedContent:
		return e.Kind == KindMalformed
	case apperrors.ErrStrictDynamicMapping:
		return e.Kind == KindPolicy && e.strict
	case apperrors.ErrIllegalArgument:
		return e.Kind == KindForbidden
	case apperrors.ErrInternal:
		return e.Kind == KindInternal
	}
	return false
}

// Retryable reports whether a failed parse might succeed against a
// different mapping.
func (e *ParsingError) Retryable() bool {
	return e.Kind == KindPolicy
}

// IsRetryable reports whether err is a ParsingError worth retrying with a
// different mapping, or an ambient error that apperrors considers retryable.
func IsRetryable(err error) bool {
	var pe *ParsingError
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	return apperrors.Retryable(err)
}

func malformedf(field, format string, args ...any) *ParsingError {
	return &ParsingError{Kind: KindMalformed, Field: field, Message: fmt.Sprintf(format, args...)}
}

func forbiddenf(field, format string, args ...any) *ParsingError {
	return &ParsingError{Kind: KindForbidden, Field: field, Message: fmt.Sprintf(format, args...)}
}

func internalf(format string, args ...any) *ParsingError {
	return &ParsingError{Kind: KindInternal, Message: fmt.Sprintf(format, args...)}
}

// strictError names the parent object and the field it refused. The root is
// named after its type.
func strictError(parent *ObjectMapper, field string) *ParsingError {
	within := parent.name
	full := field
	if parent.IsRoot() {
		within = parent.simpleName
	} else {
		full = parent.name + "." + field
	}
	return &ParsingError{
		Kind:    KindPolicy,
		Field:   full,
		Message: fmt.Sprintf("mapping set to strict, dynamic introduction of [%s] within [%s] is not allowed", field, within),
		strict:  true,
	}
}

// conflictError wraps a merge conflict met while building the update.
func conflictError(err error) *ParsingError {
	return &ParsingError{Kind: KindPolicy, Message: "failed to build mapping update", Cause: err}
}

// wrapParseError turns any error raised during a parse into a ParsingError
// carrying the document coordinates.
func wrapParseError(err error, src SourceToParse) *ParsingError {
	var pe *ParsingError
	if !errors.As(err, &pe) {
		kind := KindMalformed
		switch {
		case errors.Is(err, apperrors.ErrMappingConflict):
			kind = KindPolicy
		case errors.Is(err, apperrors.ErrIllegalArgument):
			kind = KindForbidden
		case errors.Is(err, apperrors.ErrInternal):
			kind = KindInternal
		}
		msg := "failed to parse"
		if src.Reader == nil && len(src.Source) == 0 {
			msg = "failed to parse, document is empty"
		}
		pe = &ParsingError{Kind: kind, Message: msg, Cause: err}
	}
	if pe.Index == "" {
		pe.Index = src.Index
	}
	if pe.Type == "" {
		pe.Type = src.Type
	}
	if pe.ID == "" {
		pe.ID = src.ID
	}
	return pe
}
