package xapi

import (
	"net/http"
	"strconv"

	"github.com/brightmind/post-publisher/internal/api/middleware"
	xauth "github.com/brightmind/post-publisher/internal/auth/x"
	"github.com/gin-gonic/gin"
)

// UserPosts returns the token holder's most recent posts. The limit query
// parameter defaults to 10 and is capped at 100.
func (h *Handler) UserPosts(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	_, auth, _ := h.snapshot()
	page, err := auth.FetchRecentPosts(c.Request.Context(), middleware.AccessToken(c), xauth.ClampRecentPostLimit(limit))
	if err != nil {
		writeError(c, err)
		return
	}
	meta := gin.H{"resultCount": page.ResultCount}
	if page.NextToken != "" {
		meta["nextToken"] = page.NextToken
	}
	c.JSON(http.StatusOK, gin.H{"tweets": page.Posts, "meta": meta})
}

// RateLimits reports the remaining request budget of the token holder.
func (h *Handler) RateLimits(c *gin.Context) {
	_, auth, _ := h.snapshot()
	status, err := auth.FetchRateLimits(c.Request.Context(), middleware.AccessToken(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"resources": status})
}
