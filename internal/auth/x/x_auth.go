package x

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/brightmind/post-publisher/internal/apierr"
	"github.com/brightmind/post-publisher/internal/config"
	"github.com/brightmind/post-publisher/internal/misc"
	"github.com/brightmind/post-publisher/internal/util"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// stateEntropyBytes is the random byte count behind each CSRF state value.
const stateEntropyBytes = 16

// XAuth runs the authorization code flow with PKCE against X. It holds no
// per-session state: the caller keeps the state and verifier between
// Initiate and Exchange, and keeps the tokens afterwards.
type XAuth struct {
	cfg        *config.XConfig
	httpClient *http.Client
}

// NewXAuth creates an auth session helper using the proxy settings and
// request timeout from cfg.
func NewXAuth(cfg *config.Config) *XAuth {
	if cfg == nil {
		cfg = config.Default()
	}
	return NewXAuthWithClient(cfg, util.NewHTTPClient(&cfg.SDKConfig, cfg.X.RequestTimeout))
}

// NewXAuthWithClient creates an auth session helper that sends every request
// through client.
func NewXAuthWithClient(cfg *config.Config, client *http.Client) *XAuth {
	if cfg == nil {
		cfg = config.Default()
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.X.RequestTimeout}
	}
	xc := cfg.X
	return &XAuth{cfg: &xc, httpClient: client}
}

// Initiate builds the authorization URL for redirectURI, falling back to the
// configured redirect URI when it is empty. The returned verifier must be
// kept secret by the caller; only its S256 challenge is placed in the URL.
func (a *XAuth) Initiate(redirectURI string) (*AuthorizationRequest, error) {
	redirectURI = a.redirectURI(redirectURI)
	if strings.TrimSpace(a.cfg.ClientID) == "" {
		return nil, apierr.New(apierr.KindConfiguration, "X client ID is not configured")
	}
	if redirectURI == "" {
		return nil, apierr.New(apierr.KindConfiguration, "X redirect URI is not configured")
	}

	pkce, err := GeneratePKCECodes()
	if err != nil {
		return nil, apierr.Wrap(apierr.KindConfiguration, "failed to generate PKCE codes", err)
	}
	state, err := misc.GenerateRandomStateN(stateEntropyBytes)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindConfiguration, "failed to generate state", err)
	}

	authURL := a.oauthConfig(redirectURI).AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", pkce.CodeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", pkce.Method),
	)
	log.Debugf("x auth: built authorization url for redirect %s", redirectURI)

	return &AuthorizationRequest{
		AuthorizationURL: authURL,
		State:            state,
		Verifier:         pkce.CodeVerifier,
		RedirectURI:      redirectURI,
	}, nil
}

// Exchange trades an authorization code for a token pair and then resolves the
// identity behind it. The state check happens before any network call.
//
// When the token exchange succeeds but the identity lookup fails, the pair is
// still returned together with an identity lookup error so the caller can
// decide whether to keep it.
func (a *XAuth) Exchange(ctx context.Context, code, verifier, redirectURI, receivedState, expectedState string) (*TokenPair, *Identity, error) {
	if !statesMatch(receivedState, expectedState) {
		return nil, nil, apierr.New(apierr.KindStateMismatch, "state parameter does not match the pending authorization")
	}
	redirectURI = a.redirectURI(redirectURI)
	if strings.TrimSpace(a.cfg.ClientID) == "" || redirectURI == "" {
		return nil, nil, apierr.New(apierr.KindConfiguration, "X client ID and redirect URI must be configured")
	}
	if strings.TrimSpace(code) == "" {
		return nil, nil, apierr.New(apierr.KindTokenExchange, "authorization code is missing")
	}
	if strings.TrimSpace(verifier) == "" {
		return nil, nil, apierr.New(apierr.KindTokenExchange, "code verifier is missing")
	}

	tok, err := a.oauthConfig(redirectURI).Exchange(a.clientContext(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, nil, tokenEndpointError(apierr.KindTokenExchange, "token exchange failed", err)
	}
	pair := tokenPairFrom(tok, "")
	log.Debugf("x auth: exchanged code for access token %s", util.HideAPIKey(pair.AccessToken))

	identity, err := a.LookupIdentity(ctx, pair.AccessToken)
	if err != nil {
		e := apierr.Wrap(apierr.KindIdentityLookup, "signed in, but the account identity could not be loaded", err)
		if inner, ok := apierr.As(err); ok {
			e.HTTPStatus = inner.HTTPStatus
		}
		return pair, nil, e
	}
	return pair, identity, nil
}

// Refresh obtains a new pair from refreshToken. If the response omits a new
// refresh token the supplied one is carried over.
func (a *XAuth) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil, apierr.New(apierr.KindMissingRefreshToken, "refresh token is required")
	}
	if strings.TrimSpace(a.cfg.ClientID) == "" {
		return nil, apierr.New(apierr.KindConfiguration, "X client ID is not configured")
	}

	src := a.oauthConfig(a.cfg.RedirectURI).TokenSource(a.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, tokenEndpointError(apierr.KindRefreshFailed, "token refresh failed", err)
	}
	pair := tokenPairFrom(tok, refreshToken)
	log.Debugf("x auth: refreshed access token %s", util.HideAPIKey(pair.AccessToken))
	return pair, nil
}

// Revoke asks X to invalidate accessToken. It is best effort: failures are
// logged and never returned, and an empty token is a no-op.
func (a *XAuth) Revoke(ctx context.Context, accessToken string) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return
	}
	form := url.Values{
		"token":           {accessToken},
		"token_type_hint": {"access_token"},
		"client_id":       {a.cfg.ClientID},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.RevokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		log.Warnf("x auth: failed to build revoke request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if a.cfg.ClientSecret != "" {
		req.SetBasicAuth(url.QueryEscape(a.cfg.ClientID), url.QueryEscape(a.cfg.ClientSecret))
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		log.Warnf("x auth: revoke request failed: %v", err)
		return
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.Errorf("x auth: close revoke response body: %v", errClose)
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		log.Warnf("x auth: revoke returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		return
	}
	log.Debug("x auth: access token revoked")
}

func (a *XAuth) oauthConfig(redirectURI string) *oauth2.Config {
	// Pin the auth style so the library never tries the token endpoint twice.
	style := oauth2.AuthStyleInParams
	if a.cfg.ClientSecret != "" {
		style = oauth2.AuthStyleInHeader
	}
	return &oauth2.Config{
		ClientID:     a.cfg.ClientID,
		ClientSecret: a.cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:   a.cfg.AuthorizeURL,
			TokenURL:  a.cfg.TokenURL,
			AuthStyle: style,
		},
		RedirectURL: redirectURI,
		Scopes:      a.cfg.Scopes,
	}
}

func (a *XAuth) clientContext(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
}

func (a *XAuth) redirectURI(override string) string {
	if trimmed := strings.TrimSpace(override); trimmed != "" {
		return trimmed
	}
	return strings.TrimSpace(a.cfg.RedirectURI)
}

// statesMatch compares in constant time. An empty expected state never matches.
func statesMatch(received, expected string) bool {
	if expected == "" || received == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(received), []byte(expected)) == 1
}

func tokenPairFrom(tok *oauth2.Token, previousRefresh string) *TokenPair {
	pair := &TokenPair{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    tok.ExpiresIn,
	}
	if pair.RefreshToken == "" {
		pair.RefreshToken = previousRefresh
	}
	if pair.ExpiresIn <= 0 {
		switch v := tok.Extra("expires_in").(type) {
		case float64:
			pair.ExpiresIn = int64(v)
		case string:
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				pair.ExpiresIn = n
			}
		}
	}
	if pair.ExpiresIn <= 0 && !tok.Expiry.IsZero() {
		if remaining := time.Until(tok.Expiry); remaining > 0 {
			pair.ExpiresIn = int64(remaining.Round(time.Second) / time.Second)
		}
	}
	return pair
}

// tokenEndpointError maps an oauth2 token endpoint failure onto kind, keeping
// the upstream OAuth error code and description when the server sent one.
func tokenEndpointError(kind apierr.Kind, prefix string, err error) *apierr.Error {
	e := apierr.Wrap(kind, prefix, err)
	rErr, ok := errors.AsType[*oauth2.RetrieveError](err)
	if !ok {
		e.Message = fmt.Sprintf("%s: %v", prefix, err)
		return e
	}
	if rErr.Response != nil {
		e.HTTPStatus = rErr.Response.StatusCode
	}
	e.Code = rErr.ErrorCode
	switch {
	case rErr.ErrorDescription != "":
		e.Message = fmt.Sprintf("%s: %s", prefix, rErr.ErrorDescription)
	case rErr.ErrorCode != "":
		e.Message = fmt.Sprintf("%s: %s", prefix, rErr.ErrorCode)
	case e.HTTPStatus != 0:
		e.Message = fmt.Sprintf("%s with status %d", prefix, e.HTTPStatus)
	}
	return e
}
