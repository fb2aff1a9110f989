package shared

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind classifies domain failures so callers can discriminate without string matching.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindReferential
	KindExternal
	KindAlreadyConverted
	KindInvalidTransition
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindReferential:
		return "referential"
	case KindExternal:
		return "external"
	case KindAlreadyConverted:
		return "already_converted"
	case KindInvalidTransition:
		return "invalid_transition"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

var (
	// ErrValidation indicates invalid input; no state was changed.
	ErrValidation = errors.New("validation failed")
	// ErrReferential indicates a delete blocked by dependent records.
	ErrReferential = errors.New("has related records")
	// ErrExternal indicates a collaborator (mail, sms, calendar, lookup, pdf) failed.
	ErrExternal = errors.New("external service failed")
	// ErrAlreadyConverted indicates an estimate was converted before.
	ErrAlreadyConverted = errors.New("estimate already converted")
	// ErrInvalidTransition indicates a status change not allowed from the current state.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a duplicate or concurrent write.
	ErrConflict = errors.New("conflict")
)

var kindSentinels = map[Kind]error{
	KindValidation:        ErrValidation,
	KindReferential:       ErrReferential,
	KindExternal:          ErrExternal,
	KindAlreadyConverted:  ErrAlreadyConverted,
	KindInvalidTransition: ErrInvalidTransition,
	KindNotFound:          ErrNotFound,
	KindConflict:          ErrConflict,
}

// Error is the typed domain error returned by services.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	// Fields holds per-field validation messages.
	Fields map[string]string
	// Blockers counts dependent records per collection for referential errors.
	Blockers map[string]int
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Message != "" {
		b.WriteString(e.Message)
	} else {
		b.WriteString(e.sentinel().Error())
	}
	if len(e.Blockers) > 0 {
		b.WriteString(" (")
		b.WriteString(e.blockerSummary())
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) blockerSummary() string {
	names := make([]string, 0, len(e.Blockers))
	for name := range e.Blockers {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %d", name, e.Blockers[name]))
	}
	return strings.Join(parts, ", ")
}

func (e *Error) sentinel() error {
	if s, ok := kindSentinels[e.Kind]; ok {
		return s
	}
	return errors.New("unknown error")
}

// Is matches the sentinel for the error kind.
func (e *Error) Is(target error) bool {
	s, ok := kindSentinels[e.Kind]
	return ok && s == target
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the Kind of err, or KindUnknown.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	for kind, sentinel := range kindSentinels {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindUnknown
}

// Validation builds a validation error.
func Validation(op, message string) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: message}
}

// ValidationFields builds a validation error carrying per-field messages.
func ValidationFields(op string, fields map[string]string) *Error {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return &Error{Kind: KindValidation, Op: op, Message: "invalid " + strings.Join(names, ", "), Fields: fields}
}

// NotFound builds a not-found error for the named entity.
func NotFound(op, entity, id string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Message: fmt.Sprintf("%s %s not found", entity, id)}
}

// Referential builds a referential-integrity error listing blocking collections.
func Referential(op, entity string, blockers map[string]int) *Error {
	return &Error{Kind: KindReferential, Op: op, Message: entity + " has related records", Blockers: blockers}
}

// External wraps a collaborator failure.
func External(op, service string, err error) *Error {
	return &Error{Kind: KindExternal, Op: op, Message: service + " failed", Err: err}
}

// InvalidTransition builds a lifecycle error.
func InvalidTransition(op string, from, to string) *Error {
	return &Error{Kind: KindInvalidTransition, Op: op, Message: fmt.Sprintf("cannot move from %s to %s", from, to)}
}

// Conflict builds a conflict error.
func Conflict(op, message string) *Error {
	return &Error{Kind: KindConflict, Op: op, Message: message}
}
