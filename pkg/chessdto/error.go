package chessdto

import (
	"errors"
	"fmt"
)

// Kind classifies a DomainError so transport layers can map it without string matching.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindInvalidState Kind = "invalid_state"
	KindIllegalMove  Kind = "illegal_move"
	KindUnauthorized Kind = "unauthorized"
	KindConflict     Kind = "conflict"
	KindStoreFailure Kind = "store_failure"
)

type DomainError struct {
	Kind    Kind
	Code    string
	Message string
	// State carries the entity's actual lifecycle state for InvalidState errors.
	State string
	// Detail and Board are filled for IllegalMove errors.
	Detail    string
	Board     string
	Retryable bool
	Err       error
}

func (e *DomainError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Message
	if msg == "" {
		msg = e.Code
	}
	if msg == "" {
		msg = "chess service error"
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.State != "" {
		msg += " (state=" + e.State + ")"
	}
	if e.Err != nil && e.Kind == KindStoreFailure {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DomainError) Unwrap() error { return e.Err }

// Is matches another DomainError by Code, so sentinel values work with errors.Is.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) || t == nil {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// KindOf returns the Kind of the first DomainError in err's chain, or "" if none.
func KindOf(err error) Kind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// CodeOf returns the Code of the first DomainError in err's chain.
func CodeOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

func NotFound(code, format string, args ...any) *DomainError {
	return &DomainError{Kind: KindNotFound, Code: code, Message: fmt.Sprintf(format, args...)}
}

func InvalidState(code, state, format string, args ...any) *DomainError {
	return &DomainError{Kind: KindInvalidState, Code: code, State: state, Message: fmt.Sprintf(format, args...)}
}

func IllegalMove(detail, board string) *DomainError {
	return &DomainError{Kind: KindIllegalMove, Code: "illegal_move", Message: "illegal move", Detail: detail, Board: board}
}

func Unauthorized(code, format string, args ...any) *DomainError {
	return &DomainError{Kind: KindUnauthorized, Code: code, Message: fmt.Sprintf(format, args...)}
}

func Conflict(code, format string, args ...any) *DomainError {
	return &DomainError{Kind: KindConflict, Code: code, Message: fmt.Sprintf(format, args...), Retryable: true}
}

func StoreFailure(op string, err error) *DomainError {
	return &DomainError{Kind: KindStoreFailure, Code: "store_failure", Message: op, Retryable: true, Err: err}
}
