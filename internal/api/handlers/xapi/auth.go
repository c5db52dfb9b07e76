package xapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/brightmind/post-publisher/internal/api/middleware"
	"github.com/brightmind/post-publisher/internal/apierr"
	xauth "github.com/brightmind/post-publisher/internal/auth/x"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

type initiateRequest struct {
	RedirectURI string `json:"redirectUri"`
}

type tokenRequest struct {
	Code          string `json:"code"`
	CodeVerifier  string `json:"codeVerifier"`
	RedirectURI   string `json:"redirectUri"`
	State         string `json:"state"`
	ExpectedState string `json:"expectedState"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Config returns the public OAuth client id. Secrets never leave the server.
func (h *Handler) Config(c *gin.Context) {
	cfg, _, _ := h.snapshot()
	if strings.TrimSpace(cfg.X.ClientID) == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server configuration error", "message": "X API credentials not configured"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"clientId": cfg.X.ClientID})
}

// Initiate starts an authorization. The body is optional.
func (h *Handler) Initiate(c *gin.Context) {
	_, auth, _ := h.snapshot()
	var req initiateRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	authReq, err := auth.Initiate(strings.TrimSpace(req.RedirectURI))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"authorizationUrl": authReq.AuthorizationURL,
		"state":            authReq.State,
		"codeVerifier":     authReq.Verifier,
	})
}

// Token completes an authorization. State and code failures share one
// generic 401 so the response does not reveal which check failed.
func (h *Handler) Token(c *gin.Context) {
	_, auth, _ := h.snapshot()
	var req tokenRequest
	if !bindJSON(c, &req) {
		return
	}
	if strings.TrimSpace(req.Code) == "" || strings.TrimSpace(req.CodeVerifier) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required parameters", "message": "code and codeVerifier are required"})
		return
	}

	pair, identity, err := auth.Exchange(c.Request.Context(), req.Code, req.CodeVerifier, req.RedirectURI, req.State, req.ExpectedState)
	if err != nil {
		switch apierr.KindOf(err) {
		case apierr.KindIdentityLookup:
			if pair != nil {
				log.Warnf("xapi: token issued but identity lookup failed: %v", err)
				c.JSON(http.StatusOK, tokenResponse(pair, nil))
				return
			}
		case apierr.KindStateMismatch, apierr.KindTokenExchange:
			log.Warnf("xapi: authorization failed: %v", err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication failed", "message": "Authentication failed"})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tokenResponse(pair, identity))
}

// Refresh exchanges a refresh token for a new pair. Concurrent requests for
// the same refresh token share one upstream call.
func (h *Handler) Refresh(c *gin.Context) {
	_, auth, _ := h.snapshot()
	var req refreshRequest
	if !bindJSON(c, &req) {
		return
	}
	refreshToken := strings.TrimSpace(req.RefreshToken)
	if refreshToken == "" {
		writeError(c, apierr.New(apierr.KindMissingRefreshToken, "refreshToken is required"))
		return
	}

	// The shared call must outlive any single caller's cancellation.
	ctx := context.WithoutCancel(c.Request.Context())
	v, err, shared := h.refreshes.Do(refreshToken, func() (any, error) {
		return auth.Refresh(ctx, refreshToken)
	})
	if err != nil {
		if errors.Is(err, apierr.ErrConfiguration) {
			writeError(c, err)
			return
		}
		log.Warnf("xapi: refresh failed: %v", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Token refresh failed", "message": "Please log in again", "kind": apierr.KindOf(err)})
		return
	}
	if shared {
		log.Debug("xapi: refresh result shared between concurrent requests")
	}
	c.JSON(http.StatusOK, tokenResponse(v.(*xauth.TokenPair), nil))
}

// Revoke always reports success; revocation is best effort.
func (h *Handler) Revoke(c *gin.Context) {
	_, auth, _ := h.snapshot()
	auth.Revoke(c.Request.Context(), middleware.AccessToken(c))
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// User returns the profile of the token holder.
func (h *Handler) User(c *gin.Context) {
	_, auth, _ := h.snapshot()
	profile, err := auth.FetchProfile(c.Request.Context(), middleware.AccessToken(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func tokenResponse(pair *xauth.TokenPair, identity *xauth.Identity) gin.H {
	resp := gin.H{
		"accessToken": pair.AccessToken,
		"expiresIn":   pair.ExpiresIn,
	}
	if pair.RefreshToken != "" {
		resp["refreshToken"] = pair.RefreshToken
	}
	if identity != nil {
		resp["user"] = identity
	}
	return resp
}
