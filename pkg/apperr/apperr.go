package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies failures that callers are expected to react to.
type Kind string

const (
	ArchiveNotFound     Kind = "ArchiveNotFound"
	NoImagesMatched     Kind = "NoImagesMatched"
	InvalidTransition   Kind = "InvalidTransition"
	EncodeFailure       Kind = "EncodeFailure"
	ValidationError     Kind = "ValidationError"
	LookupInconsistency Kind = "LookupInconsistency"
	NotFound            Kind = "NotFound"
)

// Error carries a Kind alongside a human readable message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds an Error with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error that keeps err in the chain.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps an error to the status code the API answers with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case NotFound, ArchiveNotFound, NoImagesMatched, LookupInconsistency:
		return http.StatusNotFound
	case ValidationError:
		return http.StatusBadRequest
	case InvalidTransition:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
