package x

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/brightmind/post-publisher/internal/misc"
	log "github.com/sirupsen/logrus"
)

const callbackPage = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>{{TITLE}}</title></head>
<body style="font-family: sans-serif; text-align: center; padding-top: 4rem;">
<h1>{{TITLE}}</h1>
<p>{{MESSAGE}}</p>
</body>
</html>`

// OAuthServer is the loopback listener the CLI login uses as its redirect
// target. It serves exactly the path of the configured redirect URI.
type OAuthServer struct {
	addr       string
	path       string
	server     *http.Server
	listener   net.Listener
	resultChan chan *misc.OAuthCallback
	errorChan  chan error
	mu         sync.Mutex
	running    bool
}

// NewOAuthServer creates a callback server for redirectURI, which must be an
// http URL with an explicit host.
func NewOAuthServer(redirectURI string) (*OAuthServer, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect uri: %w", err)
	}
	if u.Scheme != "http" || u.Host == "" {
		return nil, fmt.Errorf("redirect uri %q is not a local http address", redirectURI)
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	addr := u.Host
	if u.Port() == "" {
		addr = net.JoinHostPort(u.Hostname(), "80")
	}
	return &OAuthServer{
		addr:       addr,
		path:       path,
		resultChan: make(chan *misc.OAuthCallback, 1),
		errorChan:  make(chan error, 1),
	}, nil
}

// Start binds the listener and begins serving in the background.
func (s *OAuthServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("server is already running")
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(s.path, s.handleCallback)
	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	s.listener = ln
	s.running = true

	go func(srv *http.Server) {
		if errServe := srv.Serve(ln); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			select {
			case s.errorChan <- fmt.Errorf("callback server failed: %w", errServe):
			default:
			}
		}
	}(s.server)
	log.Debugf("x auth: callback server listening on %s%s", ln.Addr(), s.path)
	return nil
}

// Addr returns the bound listener address, useful when port 0 was requested.
func (s *OAuthServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down.
func (s *OAuthServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := s.server.Shutdown(shutdownCtx)
	s.running = false
	s.server = nil
	s.listener = nil
	return err
}

// WaitForCallback blocks until the redirect arrives, the server fails, or ctx ends.
func (s *OAuthServer) WaitForCallback(ctx context.Context) (*misc.OAuthCallback, error) {
	select {
	case result := <-s.resultChan:
		return result, nil
	case err := <-s.errorChan:
		return nil, err
	case <-ctx.Done():
		return nil, fmt.Errorf("timeout waiting for OAuth callback: %w", ctx.Err())
	}
}

func (s *OAuthServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	query := r.URL.Query()
	result := &misc.OAuthCallback{
		Code:             query.Get("code"),
		State:            query.Get("state"),
		Error:            query.Get("error"),
		ErrorDescription: query.Get("error_description"),
	}
	if result.Error == "" && result.Code == "" {
		result.Error = "no_code"
	}

	select {
	case s.resultChan <- result:
	default:
		log.Warn("x auth: callback already received, ignoring duplicate")
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if result.Error != "" {
		log.Errorf("x auth: authorization failed: %s", result.Error)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(renderCallbackPage("Authentication failed", "You can close this window and try again.")))
		return
	}
	_, _ = w.Write([]byte(renderCallbackPage("Signed in to X", "You can close this window and return to the terminal.")))
}

func renderCallbackPage(title, message string) string {
	r := strings.NewReplacer("{{TITLE}}", title, "{{MESSAGE}}", message)
	return r.Replace(callbackPage)
}
