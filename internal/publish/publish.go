// Package publish validates post requests, resolves and uploads attached media
// with bounded retry, and submits posts to X.
package publish

import (
	"strings"
)

// MaxTextUnits is the post length limit in UTF-16 code units.
const MaxTextUnits = 280

// AllowedMIMETypes lists the image types X accepts for a single-image post.
var AllowedMIMETypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

// Request is one post to publish.
type Request struct {
	// Text is trimmed before validation and submission.
	Text string `json:"text"`
	// Media is nil for a text-only post.
	Media *MediaSource `json:"media,omitempty"`
}

// MediaSource names where the attached image comes from. Exactly one of
// RemoteURL and Inline must be set.
type MediaSource struct {
	// RemoteURL is an http(s) URL fetched by the pipeline.
	RemoteURL string `json:"url,omitempty"`
	// Inline is a data URL of the form data:<mime>;base64,<payload>.
	Inline string `json:"inline,omitempty"`
}

// Media is a resolved attachment ready for upload.
type Media struct {
	Data     []byte
	MIMEType string
}

// Result describes a published post.
type Result struct {
	PostID  string `json:"postId"`
	PostURL string `json:"postUrl"`
	Text    string `json:"text"`
	MediaID string `json:"mediaId,omitempty"`
}

// normalizeMIME lowercases, strips parameters and maps the image/jpg alias.
func normalizeMIME(raw string) string {
	mt, _, _ := strings.Cut(raw, ";")
	mt = strings.ToLower(strings.TrimSpace(mt))
	if mt == "image/jpg" || mt == "image/pjpeg" {
		return "image/jpeg"
	}
	return mt
}

func allowedMIME(mt string) bool {
	for _, allowed := range AllowedMIMETypes {
		if mt == allowed {
			return true
		}
	}
	return false
}
