package x

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/brightmind/post-publisher/internal/apierr"
)

func TestClampRecentPostLimit(t *testing.T) {
	tests := map[int]int{-1: 10, 0: 10, 1: 1, 25: 25, 100: 100, 500: 100}
	for in, want := range tests {
		if got := ClampRecentPostLimit(in); got != want {
			t.Errorf("ClampRecentPostLimit(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestFetchRecentPosts(t *testing.T) {
	f := newFakeX(t)
	f.timelineBody = `{"data":[` +
		`{"id":"3","text":"newest","created_at":"2026-01-02T03:04:05.000Z","public_metrics":{"like_count":7,"retweet_count":1},"attachments":{"media_keys":["3_9"]}},` +
		`{"id":"2","text":"older"},{"id":"1","text":"oldest"}],` +
		`"meta":{"result_count":3,"next_token":"page-2"}}`

	posts, err := NewXAuth(f.config("")).FetchRecentPosts(context.Background(), "access-1", 2)
	if err != nil {
		t.Fatalf("FetchRecentPosts: %v", err)
	}
	if posts.ResultCount != 2 || len(posts.Posts) != 2 || posts.NextToken != "page-2" {
		t.Fatalf("posts = %+v", posts)
	}
	first := posts.Posts[0]
	if first.ID != "3" || first.Metrics.LikeCount != 7 || len(first.MediaKeys) != 1 || first.CreatedAt.Year() != 2026 {
		t.Fatalf("first = %+v", first)
	}

	f.mu.Lock()
	q := f.timelineQuery
	f.mu.Unlock()
	if q.Get("max_results") != "5" || q.Get("expansions") != "attachments.media_keys" {
		t.Fatalf("timeline query = %v", q)
	}
}

func TestFetchRecentPostsEmptyTimeline(t *testing.T) {
	f := newFakeX(t)
	posts, err := NewXAuth(f.config("")).FetchRecentPosts(context.Background(), "access-1", 0)
	if err != nil {
		t.Fatalf("FetchRecentPosts: %v", err)
	}
	if posts.Posts == nil || posts.ResultCount != 0 {
		t.Fatalf("posts = %+v", posts)
	}
	f.mu.Lock()
	got := f.timelineQuery.Get("max_results")
	f.mu.Unlock()
	if got != "10" {
		t.Fatalf("max_results = %q", got)
	}
}

func TestFetchRecentPostsUnauthorized(t *testing.T) {
	f := newFakeX(t)
	f.identityStatus = http.StatusUnauthorized
	_, err := NewXAuth(f.config("")).FetchRecentPosts(context.Background(), "stale", 10)
	if apierr.KindOf(err) != apierr.KindAuthExpired {
		t.Fatalf("kind = %q, want auth expired", apierr.KindOf(err))
	}
}

func TestFetchRateLimits(t *testing.T) {
	f := newFakeX(t)
	status, err := NewXAuth(f.config("")).FetchRateLimits(context.Background(), "access-1")
	if err != nil {
		t.Fatalf("FetchRateLimits: %v", err)
	}
	rl, ok := status["/2/users/me"]
	if !ok || rl.Limit != 75 || rl.Remaining != 74 || !rl.Reset.Equal(time.Unix(1767225600, 0)) {
		t.Fatalf("status = %+v", status)
	}

	if _, err = NewXAuth(f.config("")).FetchRateLimits(context.Background(), ""); apierr.KindOf(err) != apierr.KindAuthExpired {
		t.Fatalf("missing token: err = %v", err)
	}
}
