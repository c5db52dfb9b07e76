package x

import "time"

// PKCECodes holds a verifier and the challenge derived from it.
type PKCECodes struct {
	// CodeVerifier is the secret half. It never appears in the authorization URL.
	CodeVerifier string `json:"code_verifier"`
	// CodeChallenge is base64url(SHA-256(CodeVerifier)) without padding.
	CodeChallenge string `json:"code_challenge"`
	// Method is always "S256".
	Method string `json:"code_challenge_method"`
}

// AuthorizationRequest is what Initiate hands back. The caller keeps State and
// Verifier until the authorization server redirects back.
type AuthorizationRequest struct {
	AuthorizationURL string `json:"authUrl"`
	State            string `json:"state"`
	Verifier         string `json:"codeVerifier"`
	RedirectURI      string `json:"redirectUri"`
}

// TokenPair is the credential set issued by the token endpoint.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	// ExpiresIn is the access token lifetime in seconds, 0 when unknown.
	ExpiresIn int64 `json:"expiresIn"`
}

// ExpiresAt converts ExpiresIn to an absolute time relative to issued.
// It returns the zero time when the lifetime is unknown.
func (p *TokenPair) ExpiresAt(issued time.Time) time.Time {
	if p == nil || p.ExpiresIn <= 0 {
		return time.Time{}
	}
	return issued.Add(time.Duration(p.ExpiresIn) * time.Second)
}

// Identity describes the account an access token acts for.
type Identity struct {
	ID          string `json:"id"`
	Handle      string `json:"username"`
	DisplayName string `json:"name"`
	AvatarURL   string `json:"profileImageUrl,omitempty"`
	Verified    bool   `json:"verified"`
}

// Profile is the extended account view returned by FetchProfile.
type Profile struct {
	Identity
	Description    string    `json:"description,omitempty"`
	Location       string    `json:"location,omitempty"`
	URL            string    `json:"url,omitempty"`
	CreatedAt      time.Time `json:"createdAt,omitzero"`
	FollowersCount int64     `json:"followersCount"`
	FollowingCount int64     `json:"followingCount"`
	PostCount      int64     `json:"tweetCount"`
	ListedCount    int64     `json:"listedCount"`
}

// Post is one entry of the token holder's timeline.
type Post struct {
	ID        string      `json:"id"`
	Text      string      `json:"text"`
	CreatedAt time.Time   `json:"createdAt,omitzero"`
	MediaKeys []string    `json:"mediaKeys,omitempty"`
	Metrics   PostMetrics `json:"publicMetrics"`
}

// PostMetrics are the public engagement counters of a post.
type PostMetrics struct {
	RetweetCount    int64 `json:"retweetCount"`
	ReplyCount      int64 `json:"replyCount"`
	LikeCount       int64 `json:"likeCount"`
	QuoteCount      int64 `json:"quoteCount"`
	ImpressionCount int64 `json:"impressionCount"`
}

// RecentPosts is one page of the token holder's timeline.
type RecentPosts struct {
	Posts       []Post
	ResultCount int
	NextToken   string
}

// RateLimit is the request budget of one endpoint.
type RateLimit struct {
	Limit     int64     `json:"limit"`
	Remaining int64     `json:"remaining"`
	Reset     time.Time `json:"reset,omitzero"`
}
