package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
)

// Kind categorises an Error for status mapping and the JSON body.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindNotFound     Kind = "not_found"
	KindInternal     Kind = "internal"
)

// Error is a client-facing error with an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	// Fields maps input field names to their problems.
	Fields map[string]string
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus maps the error kind to a response status.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// WithField records a problem with one input field.
func (e *Error) WithField(name, problem string) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[name] = problem
	return e
}

func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

func Unauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message}
}

func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

func Internal(message string, cause error) *Error {
	return &Error{Kind: KindInternal, Message: message, Cause: cause}
}

// As converts any error into an *Error, wrapping unknown errors as internal.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e
	}
	return Internal("internal server error", err)
}

// StatusOf reports the HTTP status of a classified error. ok is false for
// errors that carry no *Error in their chain.
func StatusOf(err error) (status int, ok bool) {
	var e *Error
	if !stderrors.As(err, &e) {
		return 0, false
	}
	return e.HTTPStatus(), true
}

// Response is the JSON body written for errors.
type Response struct {
	Error  string            `json:"error"`
	Kind   Kind              `json:"kind"`
	Fields map[string]string `json:"fields,omitempty"`
}

// WriteJSON logs err and writes it as a JSON error response. Internal causes
// are never sent to the client.
func WriteJSON(w http.ResponseWriter, r *http.Request, err error) {
	e := As(err)
	status := e.HTTPStatus()

	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), e.Message, "error", err, "method", r.Method, "path", r.URL.Path)
	} else {
		slog.WarnContext(r.Context(), "request rejected", "kind", e.Kind, "message", e.Message, "path", r.URL.Path)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{Error: e.Message, Kind: e.Kind, Fields: e.Fields})
}

// InternalError logs err and answers with a generic 500.
func InternalError(w http.ResponseWriter, r *http.Request, err error, message string) {
	slog.ErrorContext(r.Context(), message, "error", err)
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

// BadRequestError logs err and answers 400 with clientMessage.
func BadRequestError(w http.ResponseWriter, r *http.Request, err error, clientMessage string) {
	slog.WarnContext(r.Context(), "bad request", "error", err)
	http.Error(w, clientMessage, http.StatusBadRequest)
}

func LogError(r *http.Request, message string, err error) {
	slog.ErrorContext(r.Context(), message, "error", err)
}

func LogInfo(r *http.Request, message string, args ...any) {
	slog.InfoContext(r.Context(), message, args...)
}
