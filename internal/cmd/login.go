package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brightmind/post-publisher/internal/apierr"
	xauth "github.com/brightmind/post-publisher/internal/auth/x"
	"github.com/brightmind/post-publisher/internal/browser"
	"github.com/brightmind/post-publisher/internal/config"
	"github.com/brightmind/post-publisher/internal/misc"
	log "github.com/sirupsen/logrus"
)

const (
	defaultCallbackTimeout   = 5 * time.Minute
	defaultManualPromptDelay = 15 * time.Second
)

// DoLogin runs the PKCE login and reports the outcome on stdout.
func DoLogin(cfg *config.Config, options *LoginOptions) {
	if options == nil {
		options = &LoginOptions{}
	}
	if options.Prompt == nil {
		options.Prompt = defaultPrompt
	}
	savedPath, err := Login(context.Background(), cfg, options)
	if err != nil {
		fmt.Printf("X authentication failed: %v\n", err)
		return
	}
	fmt.Printf("Authentication saved to %s\n", savedPath)
	fmt.Println("X authentication successful!")
}

// Login authorizes through a local callback server on the configured redirect
// URI, exchanges the code and saves the session. It returns the token file path.
func Login(ctx context.Context, cfg *config.Config, opts *LoginOptions) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("x login: configuration is required")
	}
	if opts == nil {
		opts = &LoginOptions{}
	}
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	tokenPath, err := TokenPath(cfg)
	if err != nil {
		return "", err
	}

	oauthServer, err := xauth.NewOAuthServer(cfg.X.RedirectURI)
	if err != nil {
		return "", err
	}
	if err = oauthServer.Start(); err != nil {
		return "", fmt.Errorf("x login: start callback server: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if errStop := oauthServer.Stop(stopCtx); errStop != nil {
			log.Warnf("x oauth server stop error: %v", errStop)
		}
	}()

	authSvc := xauth.NewXAuth(cfg)
	authReq, err := authSvc.Initiate("")
	if err != nil {
		return "", err
	}
	presentAuthURL(authReq.AuthorizationURL, opts)

	fmt.Println("Waiting for X authentication callback...")
	result, err := awaitCallback(ctx, oauthServer, opts)
	if err != nil {
		return "", err
	}
	if result.Error != "" {
		if result.ErrorDescription != "" {
			return "", fmt.Errorf("authorization denied: %s (%s)", result.Error, result.ErrorDescription)
		}
		return "", fmt.Errorf("authorization denied: %s", result.Error)
	}

	log.Debug("X authorization code received; exchanging for tokens")
	pair, identity, err := authSvc.Exchange(ctx, result.Code, authReq.Verifier, authReq.RedirectURI, result.State, authReq.State)
	if err != nil {
		if pair == nil || !errors.Is(err, apierr.ErrIdentityLookup) {
			return "", err
		}
		log.Warnf("signed in, but the account could not be loaded: %v", err)
	}

	storage := xauth.NewTokenStorage(pair, identity, time.Now())
	if err = storage.SaveTokenToFile(tokenPath); err != nil {
		return "", err
	}
	if identity != nil {
		fmt.Printf("Signed in as @%s\n", identity.Handle)
	}
	return tokenPath, nil
}

func presentAuthURL(authURL string, opts *LoginOptions) {
	open := opts.OpenURL
	if open == nil && !opts.NoBrowser {
		if !browser.Available() {
			log.Warn("No browser available; please open the URL manually")
		} else {
			open = browser.OpenURL
		}
	}
	if open != nil {
		fmt.Println("Opening browser for X authentication")
		err := open(authURL)
		if err == nil {
			return
		}
		log.Warnf("Failed to open browser automatically: %v", err)
	}
	fmt.Printf("Visit the following URL to continue authentication:\n%s\n", authURL)
}

// awaitCallback waits for the local redirect. When a Prompt is configured and
// nothing arrives within ManualPromptDelay, the user may paste the callback URL.
func awaitCallback(ctx context.Context, oauthServer *xauth.OAuthServer, opts *LoginOptions) (*misc.OAuthCallback, error) {
	timeout := opts.CallbackTimeout
	if timeout <= 0 {
		timeout = defaultCallbackTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	callbackCh := make(chan *misc.OAuthCallback, 1)
	callbackErrCh := make(chan error, 1)
	go func() {
		result, errWait := oauthServer.WaitForCallback(waitCtx)
		if errWait != nil {
			callbackErrCh <- errWait
			return
		}
		callbackCh <- result
	}()

	var manualPromptC <-chan time.Time
	if opts.Prompt != nil {
		delay := opts.ManualPromptDelay
		if delay <= 0 {
			delay = defaultManualPromptDelay
		}
		timer := time.NewTimer(delay)
		defer timer.Stop()
		manualPromptC = timer.C
	}

	for {
		select {
		case result := <-callbackCh:
			return result, nil
		case err := <-callbackErrCh:
			return nil, err
		case <-manualPromptC:
			manualPromptC = nil
			select {
			case result := <-callbackCh:
				return result, nil
			default:
			}
			input, errPrompt := opts.Prompt("Paste the X callback URL (or press Enter to keep waiting): ")
			if errPrompt != nil {
				return nil, errPrompt
			}
			parsed, errParse := misc.ParseOAuthCallback(input)
			if errParse != nil {
				return nil, errParse
			}
			if parsed != nil {
				return parsed, nil
			}
		}
	}
}
