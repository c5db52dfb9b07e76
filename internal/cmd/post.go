package cmd

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/brightmind/post-publisher/internal/apierr"
	xauth "github.com/brightmind/post-publisher/internal/auth/x"
	"github.com/brightmind/post-publisher/internal/config"
	"github.com/brightmind/post-publisher/internal/publish"
)

// PostOptions describes a post published from the command line.
type PostOptions struct {
	Text      string
	ImageURL  string
	ImageFile string
}

// DoPost publishes a post with the stored session and reports the outcome.
func DoPost(cfg *config.Config, options *PostOptions) {
	res, err := Post(context.Background(), cfg, options)
	if err != nil {
		if e, ok := apierr.As(err); ok && e.Kind == apierr.KindAuthExpired {
			fmt.Println("Your X session has expired. Run with -login to sign in again.")
		}
		fmt.Printf("Publishing failed: %v\n", err)
		return
	}
	fmt.Printf("Published: %s\n", res.PostURL)
}

// Post builds the request from options and publishes it.
func Post(ctx context.Context, cfg *config.Config, options *PostOptions) (*publish.Result, error) {
	if options == nil {
		options = &PostOptions{}
	}
	req, err := buildRequest(options, cfg.Publish.MediaMaxBytes)
	if err != nil {
		return nil, err
	}
	tokenPath, err := TokenPath(cfg)
	if err != nil {
		return nil, err
	}
	pub := NewRefreshingPublisher(xauth.NewXAuth(cfg), publish.NewPipeline(cfg), &FileTokenStore{Path: tokenPath})
	return pub.Publish(ctx, req)
}

func buildRequest(options *PostOptions, maxBytes int64) (*publish.Request, error) {
	req := &publish.Request{Text: options.Text}
	imageURL := strings.TrimSpace(options.ImageURL)
	imageFile := strings.TrimSpace(options.ImageFile)
	switch {
	case imageURL != "" && imageFile != "":
		return nil, fmt.Errorf("use either -image-url or -image-file, not both")
	case imageURL != "":
		req.Media = &publish.MediaSource{RemoteURL: imageURL}
	case imageFile != "":
		inline, err := fileDataURL(imageFile, maxBytes)
		if err != nil {
			return nil, err
		}
		req.Media = &publish.MediaSource{Inline: inline}
	}
	return req, nil
}

// fileDataURL reads path into a base64 data URL. The type comes from the
// content, falling back to the file extension.
func fileDataURL(path string, maxBytes int64) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	if maxBytes > 0 && info.Size() > maxBytes {
		return "", fmt.Errorf("image %s is %d bytes, the limit is %d MiB", filepath.Base(path), info.Size(), maxBytes>>20)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	mimeType := http.DetectContentType(data)
	if !strings.HasPrefix(mimeType, "image/") {
		if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); byExt != "" {
			mimeType = byExt
		}
	}
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
