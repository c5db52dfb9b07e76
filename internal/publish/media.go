package publish

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/brightmind/post-publisher/internal/apierr"
	log "github.com/sirupsen/logrus"
)

// MediaResolver turns a MediaSource into bytes plus a verified image type.
type MediaResolver struct {
	client       *http.Client
	maxBytes     int64
	fetchTimeout time.Duration
}

// NewMediaResolver creates a resolver. Remote fetches are bounded by
// fetchTimeout and aborted once more than maxBytes have been read.
func NewMediaResolver(client *http.Client, maxBytes int64, fetchTimeout time.Duration) *MediaResolver {
	if client == nil {
		client = http.DefaultClient
	}
	return &MediaResolver{client: client, maxBytes: maxBytes, fetchTimeout: fetchTimeout}
}

// Resolve loads the attachment described by src.
func (r *MediaResolver) Resolve(ctx context.Context, src *MediaSource) (*Media, error) {
	if src == nil {
		return nil, validationError(CodeMediaMissing, "no media source given")
	}
	remote := strings.TrimSpace(src.RemoteURL)
	inline := strings.TrimSpace(src.Inline)
	switch {
	case remote != "" && inline != "":
		return nil, validationError(CodeMediaAmbiguous, "provide either an image URL or inline image data, not both")
	case remote != "":
		return r.fetchRemote(ctx, remote)
	case inline != "":
		return r.decodeInline(inline)
	default:
		return nil, validationError(CodeMediaMissing, "an image was attached but neither a URL nor inline data was given")
	}
}

func (r *MediaResolver) fetchRemote(ctx context.Context, rawURL string) (*Media, error) {
	if r.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.fetchTimeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindMediaFetch, "invalid image URL", err)
	}
	req.Header.Set("Accept", strings.Join(AllowedMIMETypes, ", "))

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindMediaFetch, "failed to download image", err)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.Errorf("publish: close image response body: %v", errClose)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		e := apierr.Newf(apierr.KindMediaFetch, "image download returned status %d", resp.StatusCode)
		e.HTTPStatus = resp.StatusCode
		return nil, e
	}
	if r.maxBytes > 0 && resp.ContentLength > r.maxBytes {
		return nil, tooLarge(r.maxBytes)
	}

	limit := r.maxBytes
	if limit <= 0 {
		limit = 1 << 62
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, apierr.Wrap(apierr.KindMediaFetch, "failed to read image body", err)
	}
	if int64(len(data)) > limit {
		return nil, tooLarge(r.maxBytes)
	}
	if len(data) == 0 {
		return nil, apierr.New(apierr.KindMediaFetch, "image download was empty")
	}

	mimeType, err := verifyImageType(resp.Header.Get("Content-Type"), data)
	if err != nil {
		return nil, err
	}
	log.Debugf("publish: fetched %d byte %s image", len(data), mimeType)
	return &Media{Data: data, MIMEType: mimeType}, nil
}

func (r *MediaResolver) decodeInline(raw string) (*Media, error) {
	declared, payload, err := parseDataURL(raw)
	if err != nil {
		return nil, err
	}
	if !allowedMIME(declared) {
		return nil, unsupportedType(declared)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
	}
	if err != nil {
		return nil, apierr.Wrap(apierr.KindMalformedInlineMedia, "inline image payload is not valid base64", err)
	}
	if r.maxBytes > 0 && int64(len(data)) > r.maxBytes {
		return nil, tooLarge(r.maxBytes)
	}
	if len(data) == 0 {
		return nil, apierr.New(apierr.KindMalformedInlineMedia, "inline image payload is empty")
	}
	mimeType, err := verifyImageType(declared, data)
	if err != nil {
		return nil, err
	}
	return &Media{Data: data, MIMEType: mimeType}, nil
}

// verifyImageType reconciles the declared type with the sniffed one. A missing
// or generic declaration defers to sniffing. Otherwise the content must sniff
// as an allowed image type equal to the declared one.
func verifyImageType(declared string, data []byte) (string, error) {
	declared = normalizeMIME(declared)
	sniffed := normalizeMIME(http.DetectContentType(data))

	if declared == "" || declared == "application/octet-stream" || declared == "binary/octet-stream" {
		if !allowedMIME(sniffed) {
			return "", unsupportedType(sniffed)
		}
		return sniffed, nil
	}
	if !allowedMIME(declared) {
		return "", unsupportedType(declared)
	}
	if !allowedMIME(sniffed) {
		return "", unsupportedType(sniffed)
	}
	if sniffed != declared {
		return "", validationError(CodeMediaTypeMismatch, fmt.Sprintf("image content is %s but was declared as %s", sniffed, declared))
	}
	return declared, nil
}
