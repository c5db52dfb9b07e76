// Package xapi implements the /api/x HTTP routes: the OAuth session endpoints
// the browser composer drives and the publish endpoints.
package xapi

import (
	"context"
	"sync"

	xauth "github.com/brightmind/post-publisher/internal/auth/x"
	"github.com/brightmind/post-publisher/internal/config"
	"github.com/brightmind/post-publisher/internal/publish"
	"golang.org/x/sync/singleflight"
)

// maxBodyBytes caps request bodies. Inline images arrive base64 encoded, so
// the cap sits above the 5 MiB media limit.
const maxBodyBytes = 8 << 20

// AuthSession is the OAuth surface the handlers need.
type AuthSession interface {
	Initiate(redirectURI string) (*xauth.AuthorizationRequest, error)
	Exchange(ctx context.Context, code, verifier, redirectURI, receivedState, expectedState string) (*xauth.TokenPair, *xauth.Identity, error)
	Refresh(ctx context.Context, refreshToken string) (*xauth.TokenPair, error)
	Revoke(ctx context.Context, accessToken string)
	FetchProfile(ctx context.Context, accessToken string) (*xauth.Profile, error)
	FetchRecentPosts(ctx context.Context, accessToken string, limit int) (*xauth.RecentPosts, error)
	FetchRateLimits(ctx context.Context, accessToken string) (map[string]xauth.RateLimit, error)
}

// Publisher publishes a post on behalf of the holder of accessToken.
type Publisher interface {
	Publish(ctx context.Context, accessToken string, req *publish.Request) (*publish.Result, error)
}

// Handler serves the /api/x routes. Its collaborators can be swapped at
// runtime by SetConfig when the config file is reloaded.
type Handler struct {
	mu   sync.RWMutex
	cfg  *config.Config
	auth AuthSession
	pub  Publisher

	// refreshes collapses concurrent refreshes of the same refresh token,
	// since the first use rotates it and a second would be rejected.
	refreshes singleflight.Group
}

// NewHandler creates a handler around the given session and publisher.
func NewHandler(cfg *config.Config, auth AuthSession, pub Publisher) *Handler {
	h := &Handler{}
	h.SetConfig(cfg, auth, pub)
	return h
}

// SetConfig replaces the configuration and collaborators.
func (h *Handler) SetConfig(cfg *config.Config, auth AuthSession, pub Publisher) {
	if cfg == nil {
		cfg = config.Default()
	}
	h.mu.Lock()
	h.cfg = cfg
	h.auth = auth
	h.pub = pub
	h.mu.Unlock()
}

func (h *Handler) snapshot() (*config.Config, AuthSession, Publisher) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg, h.auth, h.pub
}
