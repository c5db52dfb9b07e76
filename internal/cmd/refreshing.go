package cmd

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/brightmind/post-publisher/internal/apierr"
	xauth "github.com/brightmind/post-publisher/internal/auth/x"
	"github.com/brightmind/post-publisher/internal/publish"
	log "github.com/sirupsen/logrus"
)

// expirySkew widens the advisory expiry check used for logging.
const expirySkew = 30 * time.Second

// Refresher obtains a new token pair from a refresh token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*xauth.TokenPair, error)
}

// Publisher publishes a post with an access token.
type Publisher interface {
	Publish(ctx context.Context, accessToken string, req *publish.Request) (*publish.Result, error)
}

// FileTokenStore keeps the session in a single JSON file.
type FileTokenStore struct {
	Path string
}

// Load reads the stored session.
func (s *FileTokenStore) Load() (*xauth.XTokenStorage, error) {
	return xauth.LoadTokenFromFile(s.Path)
}

// Save writes the session.
func (s *FileTokenStore) Save(ts *xauth.XTokenStorage) error {
	return ts.SaveTokenToFile(s.Path)
}

// RefreshingPublisher publishes with the stored access token. The recorded
// expiry is advisory; only an AuthExpired answer from the platform triggers a
// refresh. It then refreshes once, persists the rotated pair and publishes
// again. It never refreshes twice for one post.
type RefreshingPublisher struct {
	auth  Refresher
	pub   Publisher
	store *FileTokenStore
	now   func() time.Time

	mu sync.Mutex
}

// NewRefreshingPublisher creates a publisher around store.
func NewRefreshingPublisher(auth Refresher, pub Publisher, store *FileTokenStore) *RefreshingPublisher {
	return &RefreshingPublisher{auth: auth, pub: pub, store: store, now: time.Now}
}

// Publish publishes req on behalf of the stored session.
func (p *RefreshingPublisher) Publish(ctx context.Context, req *publish.Request) (*publish.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ts, err := p.store.Load()
	if err != nil {
		return nil, apierr.Wrap(apierr.KindAuthExpired, "not signed in; run -login first", err)
	}

	if ts.Expired(p.now(), expirySkew) {
		log.Debug("stored access token is past its advisory expiry; trying it anyway")
	}

	res, err := p.pub.Publish(ctx, ts.AccessToken, req)
	if err == nil || !errors.Is(err, apierr.ErrAuthExpired) {
		return res, err
	}
	if ts.RefreshToken == "" {
		return nil, err
	}

	log.Info("access token rejected; refreshing session")
	if errRefresh := p.refresh(ctx, ts); errRefresh != nil {
		return nil, errRefresh
	}
	return p.pub.Publish(ctx, ts.AccessToken, req)
}

func (p *RefreshingPublisher) refresh(ctx context.Context, ts *xauth.XTokenStorage) error {
	pair, err := p.auth.Refresh(ctx, ts.RefreshToken)
	if err != nil {
		return err
	}
	ts.Update(pair, p.now())
	if errSave := p.store.Save(ts); errSave != nil {
		log.Warnf("refreshed session could not be saved: %v", errSave)
	}
	return nil
}
