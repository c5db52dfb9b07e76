package x

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
)

const (
	// DefaultRecentPostLimit is used when the caller gives no usable limit.
	DefaultRecentPostLimit = 10
	// MaxRecentPostLimit is the largest page the timeline endpoint serves.
	MaxRecentPostLimit = 100
	// minTimelinePage is the smallest max_results the timeline endpoint accepts.
	minTimelinePage = 5
)

// rateLimitResource is the endpoint whose budget FetchRateLimits reports.
const rateLimitResource = "/2/users/me"

// ClampRecentPostLimit applies the default and the upper bound to limit.
func ClampRecentPostLimit(limit int) int {
	if limit <= 0 {
		return DefaultRecentPostLimit
	}
	return min(limit, MaxRecentPostLimit)
}

// FetchRecentPosts returns up to limit of the token holder's most recent posts,
// newest first.
func (a *XAuth) FetchRecentPosts(ctx context.Context, accessToken string, limit int) (*RecentPosts, error) {
	limit = ClampRecentPostLimit(limit)
	identity, err := a.LookupIdentity(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	query := url.Values{
		"max_results":  {strconv.Itoa(max(limit, minTimelinePage))},
		"tweet.fields": {"created_at,public_metrics,attachments"},
		"media.fields": {"url,preview_image_url,type"},
		"expansions":   {"attachments.media_keys"},
	}
	body, _, err := a.accountGet(ctx, accessToken, "/2/users/"+url.PathEscape(identity.ID)+"/tweets", query)
	if err != nil {
		return nil, err
	}

	out := &RecentPosts{
		Posts:     make([]Post, 0, limit),
		NextToken: gjson.GetBytes(body, "meta.next_token").String(),
	}
	gjson.GetBytes(body, "data").ForEach(func(_, item gjson.Result) bool {
		if len(out.Posts) == limit {
			return false
		}
		out.Posts = append(out.Posts, postFrom(item))
		return true
	})
	out.ResultCount = len(out.Posts)
	return out, nil
}

// FetchRateLimits reports the remaining request budget of the token holder as
// advertised by the x-rate-limit-* headers on an account read.
func (a *XAuth) FetchRateLimits(ctx context.Context, accessToken string) (map[string]RateLimit, error) {
	_, header, err := a.accountGet(ctx, accessToken, rateLimitResource, nil)
	if err != nil {
		return nil, err
	}
	status := make(map[string]RateLimit, 1)
	if limit, ok := rateLimitFrom(header); ok {
		status[rateLimitResource] = limit
	}
	return status, nil
}

func rateLimitFrom(header http.Header) (RateLimit, bool) {
	raw := header.Get("x-rate-limit-limit")
	if raw == "" {
		return RateLimit{}, false
	}
	var rl RateLimit
	rl.Limit, _ = strconv.ParseInt(raw, 10, 64)
	rl.Remaining, _ = strconv.ParseInt(header.Get("x-rate-limit-remaining"), 10, 64)
	if reset, err := strconv.ParseInt(header.Get("x-rate-limit-reset"), 10, 64); err == nil && reset > 0 {
		rl.Reset = time.Unix(reset, 0).UTC()
	}
	return rl, true
}

func postFrom(item gjson.Result) Post {
	p := Post{
		ID:   item.Get("id").String(),
		Text: item.Get("text").String(),
		Metrics: PostMetrics{
			RetweetCount:    item.Get("public_metrics.retweet_count").Int(),
			ReplyCount:      item.Get("public_metrics.reply_count").Int(),
			LikeCount:       item.Get("public_metrics.like_count").Int(),
			QuoteCount:      item.Get("public_metrics.quote_count").Int(),
			ImpressionCount: item.Get("public_metrics.impression_count").Int(),
		},
	}
	if at, err := time.Parse(time.RFC3339, item.Get("created_at").String()); err == nil {
		p.CreatedAt = at
	}
	for _, key := range item.Get("attachments.media_keys").Array() {
		p.MediaKeys = append(p.MediaKeys, key.String())
	}
	return p
}
