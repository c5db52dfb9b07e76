package x

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/brightmind/post-publisher/internal/apierr"
	"github.com/brightmind/post-publisher/internal/config"
	"golang.org/x/oauth2"
)

type fakeX struct {
	server *httptest.Server

	tokenCalls    atomic.Int32
	identityCalls atomic.Int32
	revokeCalls   atomic.Int32

	mu         sync.Mutex
	lastForm   url.Values
	lastAuth   string
	lastBearer string

	tokenStatus    int
	tokenBody      string
	identityStatus int
	identityBody   string
	revokeStatus   int
	timelineBody   string
	timelineQuery  url.Values
}

func newFakeX(t *testing.T) *fakeX {
	t.Helper()
	f := &fakeX{
		tokenStatus:    http.StatusOK,
		tokenBody:      `{"token_type":"bearer","access_token":"access-1","refresh_token":"refresh-1","expires_in":7200,"scope":"tweet.read tweet.write users.read offline.access"}`,
		identityStatus: http.StatusOK,
		identityBody:   `{"data":{"id":"42","username":"gopher","name":"Go Pher","profile_image_url":"https://pbs.twimg.com/a.png","verified":true}}`,
		revokeStatus:   http.StatusOK,
		timelineBody:   `{"data":[],"meta":{"result_count":0}}`,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/2/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		_ = r.ParseForm()
		f.mu.Lock()
		f.lastForm = r.PostForm
		f.lastAuth = r.Header.Get("Authorization")
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.tokenStatus)
		_, _ = w.Write([]byte(f.tokenBody))
	})
	mux.HandleFunc("/2/oauth2/revoke", func(w http.ResponseWriter, r *http.Request) {
		f.revokeCalls.Add(1)
		_ = r.ParseForm()
		f.mu.Lock()
		f.lastForm = r.PostForm
		f.mu.Unlock()
		w.WriteHeader(f.revokeStatus)
	})
	mux.HandleFunc("/2/users/me", func(w http.ResponseWriter, r *http.Request) {
		f.identityCalls.Add(1)
		f.mu.Lock()
		f.lastBearer = r.Header.Get("Authorization")
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("x-rate-limit-limit", "75")
		w.Header().Set("x-rate-limit-remaining", "74")
		w.Header().Set("x-rate-limit-reset", "1767225600")
		w.WriteHeader(f.identityStatus)
		_, _ = w.Write([]byte(f.identityBody))
	})
	mux.HandleFunc("/2/users/42/tweets", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.timelineQuery = r.URL.Query()
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(f.timelineBody))
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeX) config(secret string) *config.Config {
	cfg := &config.Config{}
	cfg.X = config.XConfig{
		ClientID:     "client-abc",
		ClientSecret: secret,
		RedirectURI:  "http://127.0.0.1:3000/callback",
		AuthorizeURL: "https://x.com/i/oauth2/authorize",
		TokenURL:     f.server.URL + "/2/oauth2/token",
		RevokeURL:    f.server.URL + "/2/oauth2/revoke",
		APIBaseURL:   f.server.URL,
	}
	cfg.ApplyDefaults()
	return cfg
}

func (f *fakeX) captured() (url.Values, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastForm, f.lastAuth
}

func (f *fakeX) bearer() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastBearer
}

func (f *fakeX) totalCalls() int32 {
	return f.tokenCalls.Load() + f.identityCalls.Load() + f.revokeCalls.Load()
}

func TestGeneratePKCECodes(t *testing.T) {
	codes, err := GeneratePKCECodes()
	if err != nil {
		t.Fatalf("GeneratePKCECodes: %v", err)
	}
	if len(codes.CodeVerifier) != 43 {
		t.Fatalf("verifier length = %d, want 43", len(codes.CodeVerifier))
	}
	if codes.Method != "S256" {
		t.Fatalf("method = %q", codes.Method)
	}
	if want := oauth2.S256ChallengeFromVerifier(codes.CodeVerifier); codes.CodeChallenge != want {
		t.Fatalf("challenge = %q, want %q", codes.CodeChallenge, want)
	}
	other, _ := GeneratePKCECodes()
	if other.CodeVerifier == codes.CodeVerifier {
		t.Fatalf("two verifiers are identical")
	}
}

func TestInitiateBuildsS256AuthorizationURL(t *testing.T) {
	f := newFakeX(t)
	a := NewXAuth(f.config(""))

	req, err := a.Initiate("")
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if len(req.State) != 32 {
		t.Fatalf("state length = %d, want 32 hex chars", len(req.State))
	}
	if strings.Contains(req.AuthorizationURL, req.Verifier) {
		t.Fatalf("authorization URL leaks the verifier")
	}

	u, err := url.Parse(req.AuthorizationURL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	if u.Host != "x.com" || u.Path != "/i/oauth2/authorize" {
		t.Fatalf("unexpected authorize endpoint %s", u)
	}
	q := u.Query()
	checks := map[string]string{
		"response_type":         "code",
		"client_id":             "client-abc",
		"redirect_uri":          "http://127.0.0.1:3000/callback",
		"scope":                 "tweet.read tweet.write users.read offline.access",
		"state":                 req.State,
		"code_challenge":        oauth2.S256ChallengeFromVerifier(req.Verifier),
		"code_challenge_method": "S256",
	}
	for key, want := range checks {
		if got := q.Get(key); got != want {
			t.Errorf("%s = %q, want %q", key, got, want)
		}
	}
	if f.totalCalls() != 0 {
		t.Fatalf("Initiate made %d network calls", f.totalCalls())
	}

	again, err := a.Initiate("http://localhost:9999/cb")
	if err != nil {
		t.Fatalf("second Initiate: %v", err)
	}
	if again.State == req.State || again.Verifier == req.Verifier {
		t.Fatalf("state or verifier reused across requests")
	}
	if again.RedirectURI != "http://localhost:9999/cb" {
		t.Fatalf("redirect override ignored: %q", again.RedirectURI)
	}
}

func TestInitiateRequiresClientSetup(t *testing.T) {
	cfg := config.Default()
	_, err := NewXAuth(cfg).Initiate("")
	if apierr.KindOf(err) != apierr.KindConfiguration {
		t.Fatalf("kind = %q, want configuration error", apierr.KindOf(err))
	}

	cfg.X.ClientID = "client-abc"
	_, err = NewXAuth(cfg).Initiate("")
	if apierr.KindOf(err) != apierr.KindConfiguration {
		t.Fatalf("missing redirect: kind = %q", apierr.KindOf(err))
	}
}

func TestExchangeStateMismatchMakesNoRequests(t *testing.T) {
	f := newFakeX(t)
	a := NewXAuth(f.config(""))

	cases := []struct{ received, expected string }{
		{"abc", "abd"},
		{"abc", ""},
		{"", "abc"},
		{"", ""},
	}
	for _, c := range cases {
		pair, identity, err := a.Exchange(context.Background(), "code", "verifier", "", c.received, c.expected)
		if apierr.KindOf(err) != apierr.KindStateMismatch {
			t.Fatalf("received=%q expected=%q: kind = %q", c.received, c.expected, apierr.KindOf(err))
		}
		if pair != nil || identity != nil {
			t.Fatalf("mismatch returned data")
		}
	}
	if f.totalCalls() != 0 {
		t.Fatalf("state mismatch made %d network calls", f.totalCalls())
	}
}

func TestExchangeSuccess(t *testing.T) {
	f := newFakeX(t)
	a := NewXAuth(f.config(""))

	pair, identity, err := a.Exchange(context.Background(), "auth-code", "the-verifier", "", "s1", "s1")
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if pair.AccessToken != "access-1" || pair.RefreshToken != "refresh-1" || pair.ExpiresIn != 7200 {
		t.Fatalf("unexpected pair %+v", pair)
	}
	if identity.ID != "42" || identity.Handle != "gopher" || identity.DisplayName != "Go Pher" || !identity.Verified {
		t.Fatalf("unexpected identity %+v", identity)
	}
	if f.tokenCalls.Load() != 1 {
		t.Fatalf("token calls = %d, want 1", f.tokenCalls.Load())
	}
	if got := f.bearer(); got != "Bearer access-1" {
		t.Fatalf("identity lookup authorization = %q", got)
	}
}

func TestExchangeSendsPublicClientForm(t *testing.T) {
	f := newFakeX(t)
	a := NewXAuth(f.config(""))

	if _, _, err := a.Exchange(context.Background(), "auth-code", "the-verifier", "", "s", "s"); err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	form, auth := f.captured()
	want := map[string]string{
		"grant_type":    "authorization_code",
		"code":          "auth-code",
		"code_verifier": "the-verifier",
		"redirect_uri":  "http://127.0.0.1:3000/callback",
		"client_id":     "client-abc",
	}
	for k, v := range want {
		if got := form.Get(k); got != v {
			t.Errorf("form %s = %q, want %q", k, got, v)
		}
	}
	if form.Has("client_secret") {
		t.Errorf("public client sent client_secret")
	}
	if auth != "" {
		t.Errorf("public client sent Authorization %q", auth)
	}
}

func TestExchangeConfidentialClientUsesBasicAuth(t *testing.T) {
	f := newFakeX(t)
	a := NewXAuth(f.config("s3cret"))

	if _, _, err := a.Exchange(context.Background(), "auth-code", "the-verifier", "", "s", "s"); err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if _, auth := f.captured(); !strings.HasPrefix(auth, "Basic ") {
		t.Fatalf("Authorization = %q, want Basic credentials", auth)
	}
	if f.tokenCalls.Load() != 1 {
		t.Fatalf("token calls = %d, want exactly one", f.tokenCalls.Load())
	}
}

func TestExchangeTokenEndpointRejects(t *testing.T) {
	f := newFakeX(t)
	f.tokenStatus = http.StatusBadRequest
	f.tokenBody = `{"error":"invalid_request","error_description":"Value passed for the authorization code was invalid."}`
	a := NewXAuth(f.config(""))

	pair, _, err := a.Exchange(context.Background(), "bad", "v", "", "s", "s")
	if pair != nil {
		t.Fatalf("pair returned on failure")
	}
	e, ok := apierr.As(err)
	if !ok || e.Kind != apierr.KindTokenExchange {
		t.Fatalf("err = %v, want token exchange error", err)
	}
	if e.Code != "invalid_request" || !strings.Contains(e.Message, "authorization code was invalid") {
		t.Fatalf("upstream detail lost: code=%q message=%q", e.Code, e.Message)
	}
	if e.HTTPStatus != http.StatusBadRequest {
		t.Fatalf("status = %d", e.HTTPStatus)
	}
	if f.identityCalls.Load() != 0 {
		t.Fatalf("identity lookup ran after failed exchange")
	}
}

func TestExchangeIdentityFailureKeepsPair(t *testing.T) {
	f := newFakeX(t)
	f.identityStatus = http.StatusServiceUnavailable
	f.identityBody = `{"title":"Service Unavailable"}`
	a := NewXAuth(f.config(""))

	pair, identity, err := a.Exchange(context.Background(), "code", "v", "", "s", "s")
	if apierr.KindOf(err) != apierr.KindIdentityLookup {
		t.Fatalf("kind = %q, want identity lookup", apierr.KindOf(err))
	}
	if pair == nil || pair.AccessToken != "access-1" {
		t.Fatalf("pair dropped: %+v", pair)
	}
	if identity != nil {
		t.Fatalf("identity = %+v, want nil", identity)
	}
}

func TestRefresh(t *testing.T) {
	t.Run("missing token", func(t *testing.T) {
		f := newFakeX(t)
		_, err := NewXAuth(f.config("")).Refresh(context.Background(), "  ")
		if apierr.KindOf(err) != apierr.KindMissingRefreshToken {
			t.Fatalf("kind = %q", apierr.KindOf(err))
		}
		if f.totalCalls() != 0 {
			t.Fatalf("missing refresh token made a request")
		}
	})

	t.Run("rotated", func(t *testing.T) {
		f := newFakeX(t)
		f.tokenBody = `{"token_type":"bearer","access_token":"access-2","refresh_token":"refresh-2","expires_in":7200}`
		pair, err := NewXAuth(f.config("")).Refresh(context.Background(), "refresh-1")
		if err != nil {
			t.Fatalf("Refresh: %v", err)
		}
		if pair.AccessToken != "access-2" || pair.RefreshToken != "refresh-2" {
			t.Fatalf("pair = %+v", pair)
		}
		form, _ := f.captured()
		if got := form.Get("grant_type"); got != "refresh_token" {
			t.Fatalf("grant_type = %q", got)
		}
		if got := form.Get("refresh_token"); got != "refresh-1" {
			t.Fatalf("refresh_token = %q", got)
		}
	})

	t.Run("not rotated keeps previous", func(t *testing.T) {
		f := newFakeX(t)
		f.tokenBody = `{"token_type":"bearer","access_token":"access-2","expires_in":7200}`
		pair, err := NewXAuth(f.config("")).Refresh(context.Background(), "refresh-1")
		if err != nil {
			t.Fatalf("Refresh: %v", err)
		}
		if pair.RefreshToken != "refresh-1" {
			t.Fatalf("refresh token = %q, want previous", pair.RefreshToken)
		}
	})

	for _, status := range []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusInternalServerError} {
		t.Run("upstream "+http.StatusText(status), func(t *testing.T) {
			f := newFakeX(t)
			f.tokenStatus = status
			f.tokenBody = `{"error":"invalid_grant"}`
			_, err := NewXAuth(f.config("")).Refresh(context.Background(), "refresh-1")
			if apierr.KindOf(err) != apierr.KindRefreshFailed {
				t.Fatalf("kind = %q, want refresh failed", apierr.KindOf(err))
			}
		})
	}
}

func TestRevokeIsBestEffort(t *testing.T) {
	f := newFakeX(t)
	a := NewXAuth(f.config(""))

	a.Revoke(context.Background(), "")
	if f.revokeCalls.Load() != 0 {
		t.Fatalf("empty token triggered a revoke call")
	}

	a.Revoke(context.Background(), "access-1")
	if f.revokeCalls.Load() != 1 {
		t.Fatalf("revoke calls = %d", f.revokeCalls.Load())
	}
	form, _ := f.captured()
	if form.Get("token") != "access-1" || form.Get("token_type_hint") != "access_token" || form.Get("client_id") != "client-abc" {
		t.Fatalf("revoke form = %v", form)
	}

	f.revokeStatus = http.StatusInternalServerError
	a.Revoke(context.Background(), "access-1")

	cfg := f.config("")
	cfg.X.RevokeURL = "http://127.0.0.1:1/unreachable"
	NewXAuth(cfg).Revoke(context.Background(), "access-1")
}

func TestFetchProfile(t *testing.T) {
	f := newFakeX(t)
	f.identityBody = `{"data":{"id":"42","username":"gopher","name":"Go Pher","description":"gophers",` +
		`"created_at":"2020-01-02T03:04:05.000Z","public_metrics":{"followers_count":10,"following_count":3,"tweet_count":99,"listed_count":1}}}`
	profile, err := NewXAuth(f.config("")).FetchProfile(context.Background(), "access-1")
	if err != nil {
		t.Fatalf("FetchProfile: %v", err)
	}
	if profile.ID != "42" || profile.FollowersCount != 10 || profile.PostCount != 99 || profile.Description != "gophers" {
		t.Fatalf("profile = %+v", profile)
	}
	if profile.CreatedAt.Year() != 2020 {
		t.Fatalf("created at = %v", profile.CreatedAt)
	}
}

func TestLookupIdentityUnauthorized(t *testing.T) {
	f := newFakeX(t)
	f.identityStatus = http.StatusUnauthorized
	f.identityBody = `{"title":"Unauthorized","status":401}`
	_, err := NewXAuth(f.config("")).LookupIdentity(context.Background(), "stale")
	if apierr.KindOf(err) != apierr.KindAuthExpired {
		t.Fatalf("kind = %q, want auth expired", apierr.KindOf(err))
	}
}

func TestTokenPairJSONShape(t *testing.T) {
	raw, err := json.Marshal(&TokenPair{AccessToken: "a", RefreshToken: "r", ExpiresIn: 60})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `{"accessToken":"a","refreshToken":"r","expiresIn":60}` {
		t.Fatalf("json = %s", raw)
	}
}
