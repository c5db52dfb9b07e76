package publish

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf16"

	"github.com/brightmind/post-publisher/internal/apierr"
)

// Validation error codes surfaced in apierr.Error.Code.
const (
	CodeTextEmpty            = "text_empty"
	CodeTextTooLong          = "text_too_long"
	CodeMediaAmbiguous       = "media_ambiguous"
	CodeMediaMissing         = "media_missing"
	CodeMediaURLInvalid      = "media_url_invalid"
	CodeUnsupportedMediaType = "unsupported_media_type"
	CodeMediaTypeMismatch    = "media_type_mismatch"
	CodeMediaTooLarge        = "media_too_large"
)

var dataURLPattern = regexp.MustCompile(`^data:([A-Za-z0-9.+/-]+);base64,(.+)$`)

// TextLength returns the length of s in UTF-16 code units, which is how X
// counts characters for the post limit.
func TextLength(s string) int {
	return len(utf16.Encode([]rune(s)))
}

// Validate checks a request before any network call and returns the trimmed
// text that will be submitted. maxBytes bounds inline media size.
func Validate(req *Request, maxBytes int64) (string, error) {
	if req == nil {
		return "", validationError(CodeTextEmpty, "post text is required")
	}
	text, err := ValidateText(req.Text)
	if err != nil {
		return "", err
	}
	if req.Media != nil {
		if err = validateMediaSource(req.Media, maxBytes); err != nil {
			return "", err
		}
	}
	return text, nil
}

// ValidateText trims s and enforces the 1 to 280 UTF-16 unit bound.
func ValidateText(s string) (string, error) {
	text := strings.TrimSpace(s)
	if text == "" {
		return "", validationError(CodeTextEmpty, "post text is required")
	}
	if n := TextLength(text); n > MaxTextUnits {
		return "", validationError(CodeTextTooLong, fmt.Sprintf("post text is %d characters, the limit is %d", n, MaxTextUnits))
	}
	return text, nil
}

func validateMediaSource(src *MediaSource, maxBytes int64) error {
	remote := strings.TrimSpace(src.RemoteURL)
	inline := strings.TrimSpace(src.Inline)
	switch {
	case remote != "" && inline != "":
		return validationError(CodeMediaAmbiguous, "provide either an image URL or inline image data, not both")
	case remote == "" && inline == "":
		return validationError(CodeMediaMissing, "an image was attached but neither a URL nor inline data was given")
	case remote != "":
		u, err := url.Parse(remote)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return validationError(CodeMediaURLInvalid, "image URL must be an absolute http or https URL")
		}
		return nil
	default:
		mimeType, payload, err := parseDataURL(inline)
		if err != nil {
			return err
		}
		if !allowedMIME(mimeType) {
			return unsupportedType(mimeType)
		}
		if maxBytes > 0 && decodedLen(payload) > maxBytes {
			return tooLarge(maxBytes)
		}
		return nil
	}
}

// parseDataURL splits data:<mime>;base64,<payload>. Any other shape is a
// MalformedInlineMedia error.
func parseDataURL(raw string) (string, string, error) {
	m := dataURLPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return "", "", apierr.New(apierr.KindMalformedInlineMedia, "inline image must be a base64 data URL (data:<mime>;base64,<payload>)")
	}
	return normalizeMIME(m[1]), m[2], nil
}

// decodedLen is the exact byte length payload decodes to, padded or not.
func decodedLen(payload string) int64 {
	trimmed := strings.TrimRight(payload, "=")
	return int64(base64.RawStdEncoding.DecodedLen(len(trimmed)))
}

func validationError(code, message string) *apierr.Error {
	e := apierr.New(apierr.KindValidation, message)
	e.Code = code
	return e
}

func unsupportedType(mimeType string) *apierr.Error {
	if mimeType == "" {
		mimeType = "unknown"
	}
	return validationError(CodeUnsupportedMediaType, fmt.Sprintf("image type %s is not supported; use JPEG, PNG, GIF or WebP", mimeType))
}

func tooLarge(maxBytes int64) *apierr.Error {
	return validationError(CodeMediaTooLarge, fmt.Sprintf("image exceeds the %d MiB limit", maxBytes>>20))
}
