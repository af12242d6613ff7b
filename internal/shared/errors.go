package shared

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Kind classifies domain errors so transports can render them consistently.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidCredentials
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindInvariant
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInvariant:
		return "invariant_violation"
	case KindValidation:
		return "validation"
	default:
		return "internal"
	}
}

// Error carries a kind and a caller-safe message.
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

func (e *Error) Unwrap() error { return e.Err }

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = &Error{Kind: KindNotFound, Message: "not found"}
	// ErrInvalidCredentials indicates login failure. The message never says which check failed.
	ErrInvalidCredentials = &Error{Kind: KindInvalidCredentials, Message: "incorrect username, password or captcha"}
	// ErrForbidden is returned by the authorization gate.
	ErrForbidden = &Error{Kind: KindForbidden, Message: "forbidden"}
)

func Unauthorized(msg string) *Error { return &Error{Kind: KindUnauthorized, Message: msg} }

func Forbidden(msg string) *Error { return &Error{Kind: KindForbidden, Message: msg} }

func NotFound(msg string) *Error { return &Error{Kind: KindNotFound, Message: msg} }

func Conflict(msg string) *Error { return &Error{Kind: KindConflict, Message: msg} }

func Invariant(msg string) *Error { return &Error{Kind: KindInvariant, Message: msg} }

func Validation(msg string) *Error { return &Error{Kind: KindValidation, Message: msg} }

// KindOf reports the kind of err, KindInternal for anything unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the caller-safe message for err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal server error"
}

const pgUniqueViolation = "23505"

// FromPg maps storage errors onto domain kinds. subject names the entity in messages.
func FromPg(err error, subject string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return &Error{Kind: KindNotFound, Message: subject + " not found", Err: err}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return &Error{Kind: KindConflict, Message: subject + " already exists", Err: err}
	}
	return err
}
