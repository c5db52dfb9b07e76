package x

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/brightmind/post-publisher/internal/apierr"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const (
	identityFields = "profile_image_url,verified"
	profileFields  = "profile_image_url,verified,description,location,url,created_at,public_metrics"
)

// maxUserResponseBytes caps how much of a users/me response is read.
const maxUserResponseBytes = 1 << 20

// LookupIdentity resolves the account accessToken acts for.
func (a *XAuth) LookupIdentity(ctx context.Context, accessToken string) (*Identity, error) {
	body, err := a.usersMe(ctx, accessToken, identityFields)
	if err != nil {
		return nil, err
	}
	identity := identityFrom(gjson.GetBytes(body, "data"))
	if identity.ID == "" {
		return nil, apierr.New(apierr.KindIdentityLookup, "identity response did not include a user id")
	}
	return identity, nil
}

// FetchProfile returns the extended account view including public metrics.
func (a *XAuth) FetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	body, err := a.usersMe(ctx, accessToken, profileFields)
	if err != nil {
		return nil, err
	}
	data := gjson.GetBytes(body, "data")
	identity := identityFrom(data)
	if identity.ID == "" {
		return nil, apierr.New(apierr.KindIdentityLookup, "profile response did not include a user id")
	}
	profile := &Profile{
		Identity:       *identity,
		Description:    data.Get("description").String(),
		Location:       data.Get("location").String(),
		URL:            data.Get("url").String(),
		FollowersCount: data.Get("public_metrics.followers_count").Int(),
		FollowingCount: data.Get("public_metrics.following_count").Int(),
		PostCount:      data.Get("public_metrics.tweet_count").Int(),
		ListedCount:    data.Get("public_metrics.listed_count").Int(),
	}
	if raw := data.Get("created_at").String(); raw != "" {
		if at, errParse := time.Parse(time.RFC3339, raw); errParse == nil {
			profile.CreatedAt = at
		}
	}
	return profile, nil
}

func (a *XAuth) usersMe(ctx context.Context, accessToken, fields string) ([]byte, error) {
	body, _, err := a.accountGet(ctx, accessToken, "/2/users/me", url.Values{"user.fields": {fields}})
	return body, err
}

// accountGet performs an authenticated read against the account API and
// returns the body together with the response headers.
func (a *XAuth) accountGet(ctx context.Context, accessToken, path string, query url.Values) ([]byte, http.Header, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, nil, apierr.New(apierr.KindAuthExpired, "access token is required")
	}
	endpoint := a.cfg.APIBaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, nil, apierr.Wrap(apierr.KindIdentityLookup, "failed to build account request", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, nil, apierr.Wrap(apierr.KindIdentityLookup, "account request failed", err)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.Errorf("x auth: close account response body: %v", errClose)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUserResponseBytes))
	if err != nil {
		return nil, nil, apierr.Wrap(apierr.KindIdentityLookup, "failed to read account response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, apierr.Classify(apierr.OpIdentity, resp.StatusCode, resp.Header, body)
	}
	if !gjson.ValidBytes(body) {
		return nil, nil, apierr.New(apierr.KindIdentityLookup, fmt.Sprintf("account response is not valid JSON (status %d)", resp.StatusCode))
	}
	return body, resp.Header, nil
}

func identityFrom(data gjson.Result) *Identity {
	return &Identity{
		ID:          data.Get("id").String(),
		Handle:      data.Get("username").String(),
		DisplayName: data.Get("name").String(),
		AvatarURL:   data.Get("profile_image_url").String(),
		Verified:    data.Get("verified").Bool(),
	}
}
