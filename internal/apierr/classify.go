package apierr

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Operation names the upstream call a response belongs to. The same status can
// mean different things per operation (403 on upload is a missing media scope).
type Operation string

const (
	OpMediaUpload Operation = "media_upload"
	OpPostSubmit  Operation = "post_submit"
	OpIdentity    Operation = "identity_lookup"
)

// duplicateContentCode is the legacy X error code for a duplicate status.
const duplicateContentCode = 187

// now is swapped in tests to pin rate-limit reset arithmetic.
var now = time.Now

// IsTransientStatus reports whether status is one of the designated transient
// server-side statuses eligible for media upload retry.
func IsTransientStatus(status int) bool {
	switch status {
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// Classify maps a non-success upstream response to exactly one taxonomy kind.
// It is total: every operation/status pair yields a non-nil *Error.
func Classify(op Operation, status int, header http.Header, body []byte) *Error {
	msg := upstreamMessage(body)
	e := &Error{HTTPStatus: status, Code: upstreamCode(body)}

	switch {
	case status == http.StatusUnauthorized:
		e.Kind = KindAuthExpired
		e.Message = "Your access token is invalid or expired. Please log in again."
	case status == http.StatusTooManyRequests:
		e.Kind = KindRateLimited
		e.Message = "You have made too many requests. Please try again later."
		e.RetryAfter = retryAfter(header)
	case status == http.StatusRequestEntityTooLarge:
		e.Kind = KindPayloadTooLarge
		e.Message = "Payload exceeds the upstream size limit."
	case op == OpIdentity:
		e.Kind = KindIdentityLookup
		e.Message = orMessage(msg, fmt.Sprintf("identity lookup failed with status %d", status))
	case op == OpMediaUpload && status == http.StatusForbidden:
		e.Kind = KindMediaPermission
		e.Message = "Media upload was denied. Re-authenticate with media write permission."
	case op == OpMediaUpload && IsTransientStatus(status):
		e.Kind = KindUnknownPublish
		e.Retryable = true
		e.Message = orMessage(msg, fmt.Sprintf("media upload failed with transient status %d", status))
	case op == OpPostSubmit && isDuplicateContent(body):
		e.Kind = KindUpstreamRejected
		e.Message = "This post appears to be a duplicate. Please try posting something different."
	case status == http.StatusForbidden:
		e.Kind = KindPermission
		e.Message = "You do not have permission to perform this action. Check your app permissions."
	case msg != "" && status >= 400 && status < 500:
		e.Kind = KindUpstreamRejected
		e.Message = msg
	default:
		e.Kind = KindUnknownPublish
		e.Message = orMessage(msg, fmt.Sprintf("upstream request failed with status %d", status))
	}
	return e
}

// upstreamMessage extracts the most specific human readable message from an
// X problem document or OAuth error body.
func upstreamMessage(body []byte) string {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return ""
	}
	for _, path := range []string{"detail", "errors.0.message", "errors.0.detail", "error_description", "title", "error"} {
		if v := gjson.GetBytes(body, path); v.Type == gjson.String {
			if s := strings.TrimSpace(v.String()); s != "" {
				return s
			}
		}
	}
	return ""
}

func upstreamCode(body []byte) string {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return ""
	}
	for _, path := range []string{"errors.0.code", "type", "error"} {
		if v := gjson.GetBytes(body, path); v.Exists() && v.Type != gjson.JSON {
			if s := strings.TrimSpace(v.String()); s != "" {
				return s
			}
		}
	}
	return ""
}

func isDuplicateContent(body []byte) bool {
	if len(body) == 0 {
		return false
	}
	if gjson.GetBytes(body, "errors.0.code").Int() == duplicateContentCode {
		return true
	}
	return strings.Contains(strings.ToLower(upstreamMessage(body)), "duplicate content")
}

// retryAfter reads Retry-After (seconds or HTTP date) and falls back to the
// x-rate-limit-reset epoch header X sends on 429.
func retryAfter(header http.Header) *time.Duration {
	if header == nil {
		return nil
	}
	if raw := strings.TrimSpace(header.Get("Retry-After")); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs >= 0 {
			return new(time.Duration(secs) * time.Second)
		}
		if at, err := http.ParseTime(raw); err == nil {
			return positive(at.Sub(now()))
		}
	}
	if raw := strings.TrimSpace(header.Get("x-rate-limit-reset")); raw != "" {
		if epoch, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return positive(time.Unix(epoch, 0).Sub(now()))
		}
	}
	return nil
}

func positive(d time.Duration) *time.Duration {
	if d < 0 {
		d = 0
	}
	return &d
}

func orMessage(msg, fallback string) string {
	if msg != "" {
		return msg
	}
	return fallback
}
