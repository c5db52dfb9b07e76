package publish

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/brightmind/post-publisher/internal/apierr"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// mediaCategory tells X the upload is a post attachment.
const mediaCategory = "tweet_image"

// maxUpstreamResponseBytes caps how much of an upstream response is read.
const maxUpstreamResponseBytes = 1 << 20

// Uploader sends media to the X upload endpoint under a RetryPolicy.
type Uploader struct {
	client   *http.Client
	endpoint string
	policy   RetryPolicy
}

// NewUploader creates an uploader for endpoint.
func NewUploader(client *http.Client, endpoint string, policy RetryPolicy) *Uploader {
	if client == nil {
		client = http.DefaultClient
	}
	return &Uploader{client: client, endpoint: endpoint, policy: policy}
}

// Upload returns the media id X assigned. A 403 fails at once with a
// MediaPermission error; transient statuses are retried per the policy.
func (u *Uploader) Upload(ctx context.Context, accessToken string, media *Media) (string, error) {
	if media == nil || len(media.Data) == 0 {
		return "", validationError(CodeMediaMissing, "no media to upload")
	}
	var mediaID string
	err := u.policy.Run(ctx, func(ctx context.Context, attempt int) error {
		id, errUpload := u.uploadOnce(ctx, accessToken, media)
		if errUpload != nil {
			return errUpload
		}
		mediaID = id
		log.Debugf("publish: media uploaded on attempt %d as %s", attempt, id)
		return nil
	})
	if err != nil {
		return "", err
	}
	return mediaID, nil
}

func (u *Uploader) uploadOnce(ctx context.Context, accessToken string, media *Media) (string, error) {
	body, contentType, err := buildUploadForm(media)
	if err != nil {
		return "", apierr.Wrap(apierr.KindUnknownPublish, "failed to encode media upload", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, body)
	if err != nil {
		return "", apierr.Wrap(apierr.KindUnknownPublish, "failed to build media upload request", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := u.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", apierr.Wrap(apierr.KindUnknownPublish, "media upload request failed", err)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.Errorf("publish: close upload response body: %v", errClose)
		}
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamResponseBytes))
	if err != nil {
		return "", apierr.Wrap(apierr.KindUnknownPublish, "failed to read media upload response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", apierr.Classify(apierr.OpMediaUpload, resp.StatusCode, resp.Header, respBody)
	}

	id := mediaIDFrom(respBody)
	if id == "" {
		e := apierr.New(apierr.KindUnknownPublish, "media upload response did not include a media id")
		e.HTTPStatus = resp.StatusCode
		return "", e
	}
	return id, nil
}

// mediaIDFrom accepts both the v2 shape {"data":{"id":...}} and the v1.1
// shape {"media_id_string":...}.
func mediaIDFrom(body []byte) string {
	for _, path := range []string{"data.id", "media_id_string", "id"} {
		if v := gjson.GetBytes(body, path); v.Exists() {
			if s := strings.TrimSpace(v.String()); s != "" {
				return s
			}
		}
	}
	return ""
}

func buildUploadForm(media *Media) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if err := mw.WriteField("media_category", mediaCategory); err != nil {
		return nil, "", err
	}
	if err := mw.WriteField("media_type", media.MIMEType); err != nil {
		return nil, "", err
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="media"; filename="%s"`, uploadFileName(media.MIMEType)))
	h.Set("Content-Type", media.MIMEType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err = part.Write(media.Data); err != nil {
		return nil, "", err
	}
	if err = mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

func uploadFileName(mimeType string) string {
	ext := strings.TrimPrefix(mimeType, "image/")
	if ext == "jpeg" {
		ext = "jpg"
	}
	return "media." + ext
}
