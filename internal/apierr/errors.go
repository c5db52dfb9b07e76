// Package apierr defines the error taxonomy shared by the auth session and the
// publish pipeline, and the single classifier that maps raw upstream responses
// onto it.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind is a short machine readable identifier for a class of failure.
type Kind string

const (
	KindConfiguration        Kind = "configuration_error"
	KindStateMismatch        Kind = "state_mismatch"
	KindTokenExchange        Kind = "token_exchange_failed"
	KindIdentityLookup       Kind = "identity_lookup_failed"
	KindMissingRefreshToken  Kind = "missing_refresh_token"
	KindRefreshFailed        Kind = "refresh_failed"
	KindValidation           Kind = "validation_error"
	KindMalformedInlineMedia Kind = "malformed_inline_media"
	KindMediaFetch           Kind = "media_fetch_failed"
	KindMediaPermission      Kind = "media_permission_denied"
	KindMediaUploadExhausted Kind = "media_upload_exhausted"
	KindAuthExpired          Kind = "auth_expired"
	KindPermission           Kind = "permission_denied"
	KindRateLimited          Kind = "rate_limited"
	KindPayloadTooLarge      Kind = "payload_too_large"
	KindUpstreamRejected     Kind = "upstream_rejected"
	KindUnknownPublish       Kind = "unknown_publish_error"
)

// Error describes a classified failure. Callers branch on Kind; Message is safe
// to show to a user and Code carries an optional machine code from upstream.
type Error struct {
	// Kind is the taxonomy class of the failure.
	Kind Kind `json:"kind"`
	// Message is a human readable description of the failure.
	Message string `json:"message"`
	// Code is an optional machine code, for example an OAuth error code.
	Code string `json:"code,omitempty"`
	// HTTPStatus records the upstream status when one was received.
	HTTPStatus int `json:"http_status,omitempty"`
	// Retryable marks transient failures eligible for the internal upload retry.
	Retryable bool `json:"retryable"`
	// RetryAfter is an optional back-off hint from the upstream.
	RetryAfter *time.Duration `json:"-"`
	// Cause is the underlying error, if any.
	Cause error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

// Unwrap exposes the underlying cause to errors.Is and errors.As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is reports kind equality, so errors.Is(err, ErrAuthExpired) matches any
// auth-expired error regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Kind == t.Kind
}

// StatusCode returns the upstream HTTP status, or 0 when none was received.
func (e *Error) StatusCode() int {
	if e == nil {
		return 0
	}
	return e.HTTPStatus
}

// Sentinels for errors.Is matching, one per kind.
var (
	ErrConfiguration        = &Error{Kind: KindConfiguration}
	ErrStateMismatch        = &Error{Kind: KindStateMismatch}
	ErrTokenExchange        = &Error{Kind: KindTokenExchange}
	ErrIdentityLookup       = &Error{Kind: KindIdentityLookup}
	ErrMissingRefreshToken  = &Error{Kind: KindMissingRefreshToken}
	ErrRefreshFailed        = &Error{Kind: KindRefreshFailed}
	ErrValidation           = &Error{Kind: KindValidation}
	ErrMalformedInlineMedia = &Error{Kind: KindMalformedInlineMedia}
	ErrMediaFetch           = &Error{Kind: KindMediaFetch}
	ErrMediaPermission      = &Error{Kind: KindMediaPermission}
	ErrMediaUploadExhausted = &Error{Kind: KindMediaUploadExhausted}
	ErrAuthExpired          = &Error{Kind: KindAuthExpired}
	ErrPermission           = &Error{Kind: KindPermission}
	ErrRateLimited          = &Error{Kind: KindRateLimited}
	ErrPayloadTooLarge      = &Error{Kind: KindPayloadTooLarge}
	ErrUpstreamRejected     = &Error{Kind: KindUpstreamRejected}
	ErrUnknownPublish       = &Error{Kind: KindUnknownPublish}
)

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind around cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or "" when err
// carries no classification.
func KindOf(err error) Kind {
	if e, ok := errors.AsType[*Error](err); ok {
		return e.Kind
	}
	return ""
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	return errors.AsType[*Error](err)
}

// HTTPStatusFor maps a kind to the status the HTTP layer answers with.
func HTTPStatusFor(kind Kind) int {
	switch kind {
	case KindValidation, KindMalformedInlineMedia, KindMediaFetch, KindUpstreamRejected, KindMissingRefreshToken:
		return http.StatusBadRequest
	case KindStateMismatch, KindTokenExchange, KindRefreshFailed, KindAuthExpired:
		return http.StatusUnauthorized
	case KindPermission, KindMediaPermission:
		return http.StatusForbidden
	case KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindMediaUploadExhausted, KindIdentityLookup:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
