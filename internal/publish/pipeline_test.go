package publish

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brightmind/post-publisher/internal/apierr"
	"github.com/brightmind/post-publisher/internal/config"
	"github.com/tidwall/gjson"
)

type fakePlatform struct {
	server      *httptest.Server
	postCalls   atomic.Int32
	uploadCalls atomic.Int32

	mu       sync.Mutex
	lastPost []byte
	lastAuth string

	postStatus int
	postBody   string
	postHeader http.Header
}

func newFakePlatform(t *testing.T) *fakePlatform {
	t.Helper()
	f := &fakePlatform{postStatus: http.StatusCreated}
	mux := http.NewServeMux()
	mux.HandleFunc("/2/tweets", func(w http.ResponseWriter, r *http.Request) {
		f.postCalls.Add(1)
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.lastPost = body
		f.lastAuth = r.Header.Get("Authorization")
		f.mu.Unlock()
		for k, vs := range f.postHeader {
			for _, v := range vs {
				w.Header().Add(k, v)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.postStatus)
		if f.postBody != "" {
			_, _ = w.Write([]byte(f.postBody))
			return
		}
		id := "1880000000000000001"
		_, _ = w.Write([]byte(`{"data":{"id":"` + id + `","text":` + gjson.GetBytes(body, "text").Raw + `}}`))
	})
	mux.HandleFunc("/2/media/upload", func(w http.ResponseWriter, r *http.Request) {
		f.uploadCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"id":"777"}}`))
	})
	mux.HandleFunc("/img.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngBytes)
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakePlatform) pipeline() *Pipeline {
	cfg := config.Default()
	cfg.X.APIBaseURL = f.server.URL
	cfg.X.UploadURL = f.server.URL + "/2/media/upload"
	policy := DefaultUploadPolicy(cfg.Publish.Upload)
	policy.Wait = func(ctx context.Context, d time.Duration) error { return nil }
	return NewPipelineWithClient(cfg, f.server.Client(), policy)
}

func (f *fakePlatform) captured() ([]byte, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastPost, f.lastAuth
}

func TestPublishTextOnly(t *testing.T) {
	f := newFakePlatform(t)
	res, err := f.pipeline().Publish(context.Background(), "token-1", &Request{Text: "  hello  "})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if res.PostID != "1880000000000000001" {
		t.Fatalf("post id = %q", res.PostID)
	}
	if !strings.Contains(res.PostURL, res.PostID) || !strings.HasPrefix(res.PostURL, "https://x.com/i/web/status/") {
		t.Fatalf("post url = %q", res.PostURL)
	}
	if res.Text != "hello" {
		t.Fatalf("text = %q, want trimmed", res.Text)
	}
	body, auth := f.captured()
	if gjson.GetBytes(body, "text").String() != "hello" || gjson.GetBytes(body, "media").Exists() {
		t.Fatalf("post body = %s", body)
	}
	if auth != "Bearer token-1" {
		t.Fatalf("authorization = %q", auth)
	}
	if f.uploadCalls.Load() != 0 {
		t.Fatalf("text-only post uploaded media")
	}
}

func TestPublishReturnsStoredText(t *testing.T) {
	tests := []struct {
		name     string
		postBody string
		want     string
	}{
		{"platform text", `{"data":{"id":"5","text":"see https://t.co/abc"}}`, "see https://t.co/abc"},
		{"no text in response", `{"data":{"id":"5"}}`, "see https://go.dev/doc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakePlatform(t)
			f.postBody = tt.postBody
			res, err := f.pipeline().Publish(context.Background(), "token-1", &Request{Text: "see https://go.dev/doc"})
			if err != nil {
				t.Fatalf("Publish: %v", err)
			}
			if res.Text != tt.want {
				t.Fatalf("text = %q, want %q", res.Text, tt.want)
			}
		})
	}
}

func TestPublishWithMedia(t *testing.T) {
	for name, src := range map[string]func(f *fakePlatform) *MediaSource{
		"remote": func(f *fakePlatform) *MediaSource { return &MediaSource{RemoteURL: f.server.URL + "/img.png"} },
		"inline": func(*fakePlatform) *MediaSource { return &MediaSource{Inline: dataURL("image/png", pngBytes)} },
	} {
		t.Run(name, func(t *testing.T) {
			f := newFakePlatform(t)
			res, err := f.pipeline().Publish(context.Background(), "token-1", &Request{Text: "with image", Media: src(f)})
			if err != nil {
				t.Fatalf("Publish: %v", err)
			}
			if res.MediaID != "777" {
				t.Fatalf("media id = %q", res.MediaID)
			}
			body, _ := f.captured()
			if got := gjson.GetBytes(body, "media.media_ids.0").String(); got != "777" {
				t.Fatalf("post body = %s", body)
			}
		})
	}
}

func TestPublishValidationMakesNoCalls(t *testing.T) {
	f := newFakePlatform(t)
	_, err := f.pipeline().Publish(context.Background(), "token-1", &Request{Text: strings.Repeat("x", 281)})
	if !errors.Is(err, apierr.ErrValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
	if f.postCalls.Load() != 0 || f.uploadCalls.Load() != 0 {
		t.Fatalf("validation failure reached the network")
	}
}

func TestPublishSubmissionErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		header   http.Header
		wantKind apierr.Kind
	}{
		{"unauthorized", 401, `{"title":"Unauthorized","status":401}`, nil, apierr.KindAuthExpired},
		{"forbidden", 403, `{"detail":"You are not permitted to perform this action."}`, nil, apierr.KindPermission},
		{"duplicate", 403, `{"detail":"You are not allowed to create a Tweet with duplicate content."}`, nil, apierr.KindUpstreamRejected},
		{"rate limited", 429, `{"title":"Too Many Requests"}`, http.Header{"Retry-After": {"15"}}, apierr.KindRateLimited},
		{"too large", 413, ``, nil, apierr.KindPayloadTooLarge},
		{"server error", 503, ``, nil, apierr.KindUnknownPublish},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakePlatform(t)
			f.postStatus = tt.status
			f.postBody = tt.body
			if f.postBody == "" {
				f.postBody = "{}"
			}
			f.postHeader = tt.header

			_, err := f.pipeline().Publish(context.Background(), "token-1", &Request{Text: "hello"})
			e, ok := apierr.As(err)
			if !ok || e.Kind != tt.wantKind {
				t.Fatalf("err = %v, want %s", err, tt.wantKind)
			}
			if f.postCalls.Load() != 1 {
				t.Fatalf("post calls = %d, submission must not be retried", f.postCalls.Load())
			}
			if tt.wantKind == apierr.KindRateLimited && (e.RetryAfter == nil || *e.RetryAfter != 15*time.Second) {
				t.Fatalf("retry-after = %v", e.RetryAfter)
			}
		})
	}
}

func TestPublishMissingToken(t *testing.T) {
	f := newFakePlatform(t)
	_, err := f.pipeline().Publish(context.Background(), " ", &Request{Text: "hello"})
	if !errors.Is(err, apierr.ErrAuthExpired) {
		t.Fatalf("err = %v", err)
	}
}

func TestPublishConcurrentRequestsAreIndependent(t *testing.T) {
	f := newFakePlatform(t)
	p := f.pipeline()
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.Publish(context.Background(), "token", &Request{Text: "parallel"}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent publish: %v", err)
	}
	if f.postCalls.Load() != 8 {
		t.Fatalf("post calls = %d", f.postCalls.Load())
	}
}
