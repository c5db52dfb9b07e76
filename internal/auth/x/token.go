package x

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/brightmind/post-publisher/internal/misc"
)

// TokenFileName is the default file name used under the auth directory.
const TokenFileName = "x-token.json"

// XTokenStorage is the on-disk form of a signed-in session.
type XTokenStorage struct {
	// AccessToken authorizes API calls on behalf of the user.
	AccessToken string `json:"access_token"`

	// RefreshToken obtains a new access token. Present only with offline.access.
	RefreshToken string `json:"refresh_token,omitempty"`

	// Expire is the RFC 3339 expiry of AccessToken, empty when unknown.
	Expire string `json:"expired,omitempty"`

	// LastRefresh is the RFC 3339 time the pair was last issued.
	LastRefresh string `json:"last_refresh"`

	// UserID and Username identify the signed-in account.
	UserID   string `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`

	// Type is always "x".
	Type string `json:"type"`
}

// NewTokenStorage builds storage for a freshly issued pair.
func NewTokenStorage(pair *TokenPair, identity *Identity, issued time.Time) *XTokenStorage {
	ts := &XTokenStorage{Type: "x"}
	ts.Update(pair, issued)
	if identity != nil {
		ts.UserID = identity.ID
		ts.Username = identity.Handle
	}
	return ts
}

// Update replaces the stored pair. A pair without a refresh token keeps the
// previously stored one.
func (ts *XTokenStorage) Update(pair *TokenPair, issued time.Time) {
	if pair == nil {
		return
	}
	ts.AccessToken = pair.AccessToken
	if pair.RefreshToken != "" {
		ts.RefreshToken = pair.RefreshToken
	}
	ts.LastRefresh = issued.UTC().Format(time.RFC3339)
	ts.Expire = ""
	if at := pair.ExpiresAt(issued); !at.IsZero() {
		ts.Expire = at.UTC().Format(time.RFC3339)
	}
}

// Expired reports whether the stored access token is past its expiry, with
// skew applied. Unknown expiry is treated as not expired.
func (ts *XTokenStorage) Expired(now time.Time, skew time.Duration) bool {
	if ts == nil || ts.Expire == "" {
		return false
	}
	at, err := time.Parse(time.RFC3339, ts.Expire)
	if err != nil {
		return false
	}
	return !now.Add(skew).Before(at)
}

// SaveTokenToFile writes the storage as JSON, readable by the owner only.
func (ts *XTokenStorage) SaveTokenToFile(authFilePath string) error {
	misc.LogSavingCredentials(authFilePath)
	ts.Type = "x"

	if err := os.MkdirAll(filepath.Dir(authFilePath), 0o700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	f, err := os.OpenFile(authFilePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create token file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err = enc.Encode(ts); err != nil {
		return fmt.Errorf("failed to write token to file: %w", err)
	}
	return nil
}

// LoadTokenFromFile reads storage written by SaveTokenToFile.
func LoadTokenFromFile(authFilePath string) (*XTokenStorage, error) {
	data, err := os.ReadFile(authFilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}
	var ts XTokenStorage
	if err = json.Unmarshal(data, &ts); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}
	if ts.AccessToken == "" {
		return nil, errors.New("token file has no access token")
	}
	return &ts, nil
}

// RemoveTokenFile deletes the token file. A missing file is not an error.
func RemoveTokenFile(authFilePath string) error {
	if err := os.Remove(authFilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove token file: %w", err)
	}
	return nil
}
