package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	xauth "github.com/brightmind/post-publisher/internal/auth/x"
	"github.com/brightmind/post-publisher/internal/config"
	"github.com/brightmind/post-publisher/internal/util"
)

// LoginOptions contains options for the login process.
type LoginOptions struct {
	// NoBrowser prints the authorization URL instead of opening a browser.
	NoBrowser bool

	// Prompt reads a pasted callback URL when the local callback never
	// arrives, for example over SSH. Nil disables the manual fallback.
	Prompt func(prompt string) (string, error)

	// ManualPromptDelay is how long to wait for the callback before prompting.
	ManualPromptDelay time.Duration

	// CallbackTimeout bounds the whole wait for authorization.
	CallbackTimeout time.Duration

	// OpenURL replaces the browser launcher.
	OpenURL func(url string) error
}

func defaultPrompt(prompt string) (string, error) {
	fmt.Println()
	fmt.Print(prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// TokenPath returns the location of the client-held token file.
func TokenPath(cfg *config.Config) (string, error) {
	dir, err := util.ResolveAuthDir(cfg.AuthDir)
	if err != nil {
		return "", err
	}
	if dir == "" {
		dir, err = util.ResolveAuthDir(config.DefaultAuthDir)
		if err != nil {
			return "", err
		}
	}
	return filepath.Join(dir, xauth.TokenFileName), nil
}
