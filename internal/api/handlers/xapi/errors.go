package xapi

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/brightmind/post-publisher/internal/apierr"
	"github.com/brightmind/post-publisher/internal/publish"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// errorTitles are the short labels sent in the "error" field.
var errorTitles = map[apierr.Kind]string{
	apierr.KindConfiguration:        "Server configuration error",
	apierr.KindValidation:           "Invalid request",
	apierr.KindMalformedInlineMedia: "Invalid base64 format",
	apierr.KindMediaFetch:           "Failed to download image",
	apierr.KindMediaPermission:      "Media upload not permitted",
	apierr.KindMediaUploadExhausted: "Media upload failed",
	apierr.KindAuthExpired:          "Unauthorized",
	apierr.KindPermission:           "Forbidden",
	apierr.KindRateLimited:          "Rate limit exceeded",
	apierr.KindPayloadTooLarge:      "Payload too large",
	apierr.KindUpstreamRejected:     "Post rejected",
	apierr.KindIdentityLookup:       "Failed to fetch user",
	apierr.KindMissingRefreshToken:  "Missing refresh token",
}

// writeError answers with the status mapped from err's kind. Unclassified
// errors become a 500 without leaking their text.
func writeError(c *gin.Context, err error) {
	if errors.Is(err, context.Canceled) {
		c.AbortWithStatus(499)
		return
	}
	e, ok := apierr.As(err)
	if !ok {
		log.Errorf("xapi: unclassified error on %s: %v", c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "message": "An unexpected error occurred"})
		return
	}

	status, title := statusFor(e)
	if e.RetryAfter != nil {
		c.Header("Retry-After", strconv.FormatInt(int64(math.Ceil(e.RetryAfter.Seconds())), 10))
	}
	if status >= http.StatusInternalServerError {
		log.Errorf("xapi: %s failed: %v", c.FullPath(), err)
	} else {
		log.Debugf("xapi: %s failed: %v", c.FullPath(), err)
	}

	body := gin.H{
		"error":   title,
		"message": e.Message,
		"kind":    e.Kind,
	}
	if e.Code != "" {
		body["code"] = e.Code
	}
	c.JSON(status, body)
}

// statusFor maps e to its HTTP status and title. An oversized image is a
// validation failure but is answered as 413.
func statusFor(e *apierr.Error) (int, string) {
	if e.Kind == apierr.KindValidation && e.Code == publish.CodeMediaTooLarge {
		return http.StatusRequestEntityTooLarge, "Image too large"
	}
	return apierr.HTTPStatusFor(e.Kind), errorTitle(e.Kind)
}

func errorTitle(kind apierr.Kind) string {
	if title, ok := errorTitles[kind]; ok {
		return title
	}
	return "Failed to publish"
}

// bindJSON decodes the body into dst, answering 413 for oversized bodies and
// 400 for anything else that fails to decode.
func bindJSON(c *gin.Context, dst any) bool {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
	if err := c.ShouldBindJSON(dst); err != nil {
		if _, tooLarge := errors.AsType[*http.MaxBytesError](err); tooLarge {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Payload too large", "message": "request body exceeds the size limit"})
			return false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "message": "request body must be valid JSON"})
		return false
	}
	return true
}
