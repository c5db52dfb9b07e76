package xapi

import (
	"net/http"
	"strings"

	"github.com/brightmind/post-publisher/internal/api/middleware"
	"github.com/brightmind/post-publisher/internal/publish"
	"github.com/gin-gonic/gin"
)

type postRequest struct {
	Text        string `json:"text"`
	ImageURL    string `json:"imageUrl"`
	ImageBase64 string `json:"imageBase64"`
}

// Post publishes a text-only post.
func (h *Handler) Post(c *gin.Context) {
	var req postRequest
	if !bindJSON(c, &req) {
		return
	}
	h.publish(c, &publish.Request{Text: req.Text})
}

// PostWithMedia publishes a post with one image given as a URL or a base64
// data URL. The image is required on this route.
func (h *Handler) PostWithMedia(c *gin.Context) {
	var req postRequest
	if !bindJSON(c, &req) {
		return
	}
	h.publish(c, &publish.Request{
		Text: req.Text,
		Media: &publish.MediaSource{
			RemoteURL: strings.TrimSpace(req.ImageURL),
			Inline:    strings.TrimSpace(req.ImageBase64),
		},
	})
}

func (h *Handler) publish(c *gin.Context, req *publish.Request) {
	_, _, pub := h.snapshot()
	res, err := pub.Publish(c.Request.Context(), middleware.AccessToken(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	body := gin.H{
		"success":  true,
		"tweetId":  res.PostID,
		"tweetUrl": res.PostURL,
		"text":     res.Text,
	}
	if res.MediaID != "" {
		body["mediaId"] = res.MediaID
	}
	c.JSON(http.StatusOK, body)
}
