// Package apperror classifies the failures the intake workflow can hit so
// that handlers and the state machine can decide whether to reject, recover
// or just log.
package apperror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Kind is the failure class of an Error.
type Kind string

const (
	// KindValidation is malformed input rejected at the boundary.
	KindValidation Kind = "validation"
	// KindTransientStorage means the store was unreachable or slow.
	KindTransientStorage Kind = "transient_storage"
	// KindDataIntegrity covers writes that would corrupt state and were dropped.
	KindDataIntegrity Kind = "data_integrity"
	// KindNotification is an email/report dispatch failure.
	KindNotification Kind = "notification"
	// KindNotFound is a missing record.
	KindNotFound Kind = "not_found"
)

// Error carries a Kind, the operation that failed and the cause.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Op + ": " + string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Validation returns a KindValidation error.
func Validation(op, format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Integrity returns a KindDataIntegrity error.
func Integrity(op, format string, args ...interface{}) error {
	return &Error{Kind: KindDataIntegrity, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Transient wraps a store failure as KindTransientStorage.
func Transient(op string, err error) error {
	return &Error{Kind: KindTransientStorage, Op: op, Err: err}
}

// Notification wraps a dispatch failure.
func Notification(op string, err error) error {
	return &Error{Kind: KindNotification, Op: op, Err: err}
}

// NotFound returns a KindNotFound error for the named entity.
func NotFound(op, entity string) error {
	return &Error{Kind: KindNotFound, Op: op, Msg: entity + " not found"}
}

// KindOf reports the Kind of err, or "" when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err is an Error of the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPError maps err onto an echo.HTTPError.
func HTTPError(err error) *echo.HTTPError {
	switch KindOf(err) {
	case KindValidation:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case KindDataIntegrity:
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case KindNotFound:
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case KindTransientStorage:
		return echo.NewHTTPError(http.StatusServiceUnavailable, "storage unavailable")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

// Store passes classified errors through and marks anything else as
// transient storage failure. Repositories return NotFound and Integrity
// themselves; everything else from the driver is treated as retryable.
func Store(op string, err error) error {
	if err == nil || KindOf(err) != "" {
		return err
	}
	return Transient(op, err)
}
