// Package misc holds small OAuth helpers shared by the auth session, the CLI
// login flow and the HTTP layer.
package misc

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

// minStateBytes is the lower bound of entropy for a CSRF state value.
const minStateBytes = 16

// GenerateRandomState generates a cryptographically secure random state parameter
// for OAuth2 flows to prevent CSRF attacks. The result is hex encoded.
func GenerateRandomState() (string, error) {
	return GenerateRandomStateN(minStateBytes)
}

// GenerateRandomStateN is GenerateRandomState with an explicit byte length.
// Lengths below 16 bytes are raised to 16.
func GenerateRandomStateN(n int) (string, error) {
	if n < minStateBytes {
		n = minStateBytes
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// OAuthCallback captures the parsed OAuth callback parameters.
type OAuthCallback struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// ParseOAuthCallback extracts OAuth parameters from a pasted callback URL or
// bare query string. It returns nil when the input is empty.
func ParseOAuthCallback(input string) (*OAuthCallback, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return nil, nil
	}

	candidate := trimmed
	if !strings.Contains(candidate, "://") {
		switch {
		case strings.HasPrefix(candidate, "?"):
			candidate = "http://localhost/" + candidate
		case strings.ContainsAny(candidate, "/?#:"):
			candidate = "http://" + candidate
		case strings.Contains(candidate, "="):
			candidate = "http://localhost/?" + candidate
		default:
			return nil, fmt.Errorf("invalid callback URL")
		}
	}

	parsedURL, err := url.Parse(candidate)
	if err != nil {
		return nil, err
	}

	values := parsedURL.Query()
	if parsedURL.Fragment != "" {
		if fragment, errFrag := url.ParseQuery(parsedURL.Fragment); errFrag == nil {
			for key, v := range fragment {
				if values.Get(key) == "" && len(v) > 0 {
					values.Set(key, v[0])
				}
			}
		}
	}

	cb := &OAuthCallback{
		Code:             strings.TrimSpace(values.Get("code")),
		State:            strings.TrimSpace(values.Get("state")),
		Error:            strings.TrimSpace(values.Get("error")),
		ErrorDescription: strings.TrimSpace(values.Get("error_description")),
	}
	if cb.Error == "" && cb.ErrorDescription != "" {
		cb.Error, cb.ErrorDescription = cb.ErrorDescription, ""
	}
	if cb.Code == "" && cb.Error == "" {
		return nil, fmt.Errorf("callback URL missing code")
	}
	return cb, nil
}
