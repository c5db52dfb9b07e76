package publish

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/brightmind/post-publisher/internal/apierr"
	"github.com/brightmind/post-publisher/internal/config"
	"github.com/brightmind/post-publisher/internal/logging"
	"github.com/brightmind/post-publisher/internal/util"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Pipeline publishes posts. It keeps no token or per-request state, so one
// Pipeline serves concurrent publishes for different users.
type Pipeline struct {
	client        *http.Client
	apiBaseURL    string
	statusURLBase string
	maxBytes      int64

	resolver *MediaResolver
	uploader *Uploader
}

// NewPipeline creates a pipeline from cfg using a proxy-aware HTTP client.
func NewPipeline(cfg *config.Config) *Pipeline {
	if cfg == nil {
		cfg = config.Default()
	}
	return NewPipelineWithClient(cfg, util.NewHTTPClient(&cfg.SDKConfig, cfg.X.RequestTimeout), DefaultUploadPolicy(cfg.Publish.Upload))
}

// NewPipelineWithClient creates a pipeline that sends every request through
// client and retries uploads under policy.
func NewPipelineWithClient(cfg *config.Config, client *http.Client, policy RetryPolicy) *Pipeline {
	if cfg == nil {
		cfg = config.Default()
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.X.RequestTimeout}
	}
	// The resolver applies its own timeout, so it gets a client without one.
	fetchClient := &http.Client{Transport: client.Transport}
	return &Pipeline{
		client:        client,
		apiBaseURL:    strings.TrimRight(cfg.X.APIBaseURL, "/"),
		statusURLBase: cfg.X.StatusURLBase,
		maxBytes:      cfg.Publish.MediaMaxBytes,
		resolver:      NewMediaResolver(fetchClient, cfg.Publish.MediaMaxBytes, cfg.Publish.MediaFetchTimeout),
		uploader:      NewUploader(client, cfg.X.UploadURL, policy),
	}
}

// Validate checks req and returns the trimmed text.
func (p *Pipeline) Validate(req *Request) (string, error) {
	return Validate(req, p.maxBytes)
}

// ResolveMedia loads the attachment described by src.
func (p *Pipeline) ResolveMedia(ctx context.Context, src *MediaSource) (*Media, error) {
	return p.resolver.Resolve(ctx, src)
}

// UploadMedia uploads media with bounded retry and returns its media id.
func (p *Pipeline) UploadMedia(ctx context.Context, accessToken string, media *Media) (string, error) {
	return p.uploader.Upload(ctx, accessToken, media)
}

// Publish validates req, uploads its media when present, and submits the
// post. Submission is attempted exactly once; an AuthExpired error is the
// caller's cue to refresh and publish again.
func (p *Pipeline) Publish(ctx context.Context, accessToken string, req *Request) (*Result, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, apierr.New(apierr.KindAuthExpired, "access token is required")
	}
	text, err := p.Validate(req)
	if err != nil {
		return nil, err
	}

	ctx, publishID := logging.EnsureRequestID(ctx)
	entry := log.WithField("request_id", publishID)

	var mediaID string
	if req.Media != nil {
		media, errResolve := p.ResolveMedia(ctx, req.Media)
		if errResolve != nil {
			entry.Warnf("publish: media resolution failed: %v", errResolve)
			return nil, errResolve
		}
		mediaID, err = p.UploadMedia(ctx, accessToken, media)
		if err != nil {
			entry.Warnf("publish: media upload failed: %v", err)
			return nil, err
		}
	}

	postID, postedText, err := p.submitPost(ctx, accessToken, text, mediaID)
	if err != nil {
		entry.Warnf("publish: post submission failed: %v", err)
		return nil, err
	}
	entry.Infof("publish: post %s created", postID)
	return &Result{
		PostID:  postID,
		PostURL: p.statusURLBase + postID,
		Text:    postedText,
		MediaID: mediaID,
	}, nil
}

// submitPost creates the post and returns its id together with the text as the
// platform stored it, falling back to the submitted text.
func (p *Pipeline) submitPost(ctx context.Context, accessToken, text, mediaID string) (string, string, error) {
	body, err := sjson.SetBytes([]byte(`{}`), "text", text)
	if err == nil && mediaID != "" {
		body, err = sjson.SetBytes(body, "media.media_ids", []string{mediaID})
	}
	if err != nil {
		return "", "", apierr.Wrap(apierr.KindUnknownPublish, "failed to encode post body", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiBaseURL+"/2/tweets", strings.NewReader(string(body)))
	if err != nil {
		return "", "", apierr.Wrap(apierr.KindUnknownPublish, "failed to build post request", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", "", ctxErr
		}
		return "", "", apierr.Wrap(apierr.KindUnknownPublish, "post request failed", err)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.Errorf("publish: close post response body: %v", errClose)
		}
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamResponseBytes))
	if err != nil {
		return "", "", apierr.Wrap(apierr.KindUnknownPublish, "failed to read post response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", "", apierr.Classify(apierr.OpPostSubmit, resp.StatusCode, resp.Header, respBody)
	}
	data := gjson.GetBytes(respBody, "data")
	postID := strings.TrimSpace(data.Get("id").String())
	if postID == "" {
		e := apierr.New(apierr.KindUnknownPublish, "post response did not include a post id")
		e.HTTPStatus = resp.StatusCode
		return "", "", e
	}
	if posted := data.Get("text").String(); posted != "" {
		return postID, posted, nil
	}
	return postID, text, nil
}
