package api

import (
    "errors"
    "fmt"
    "net/http"
)

// Kind classifies a failed call so callers can decide how to surface it.
type Kind int

const (
    KindValidation Kind = iota
    KindBadRequest
    KindUnauthorized
    KindForbidden
    KindNotFound
    KindConflict
    KindServer
    KindNetwork
)

func (k Kind) String() string {
    switch k {
    case KindValidation:
        return "validation"
    case KindBadRequest:
        return "bad_request"
    case KindUnauthorized:
        return "unauthorized"
    case KindForbidden:
        return "forbidden"
    case KindNotFound:
        return "not_found"
    case KindConflict:
        return "conflict"
    case KindServer:
        return "server"
    case KindNetwork:
        return "network"
    }
    return "unknown"
}

// Error is the normalized failure returned by every client call.
type Error struct {
    Kind    Kind
    Status  int
    Message string
    cause   error
}

func (e *Error) Error() string {
    if e.Status > 0 {
        return fmt.Sprintf("api: %s (%d): %s", e.Kind, e.Status, e.Message)
    }
    return fmt.Sprintf("api: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// errorFromStatus maps an HTTP status and backend message body to the taxonomy.
func errorFromStatus(status int, message string) *Error {
    kind := KindBadRequest
    switch {
    case status == http.StatusUnauthorized:
        kind = KindUnauthorized
    case status == http.StatusForbidden:
        kind = KindForbidden
    case status == http.StatusNotFound:
        kind = KindNotFound
    case status == http.StatusConflict:
        kind = KindConflict
    case status >= 500:
        kind = KindServer
        if message == "" {
            message = "Network error. Please check your connection."
        }
    }
    if message == "" {
        message = http.StatusText(status)
    }
    return &Error{Kind: kind, Status: status, Message: message}
}

func networkError(err error) *Error {
    return &Error{
        Kind:    KindNetwork,
        Message: "Network error. Please check your connection.",
        cause:   err,
    }
}

// ValidationError reports a client-side check that blocks the request
// before anything is sent.
func ValidationError(format string, args ...any) *Error {
    return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func IsUnauthorized(err error) bool { return hasKind(err, KindUnauthorized) }
func IsNotFound(err error) bool     { return hasKind(err, KindNotFound) }
func IsValidation(err error) bool   { return hasKind(err, KindValidation) }

func hasKind(err error, k Kind) bool {
    var apiErr *Error
    return errors.As(err, &apiErr) && apiErr.Kind == k
}
