package util

import (
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

// requestLogTransport logs method, masked URL, masked Authorization, status
// and latency of every upstream request. Bodies are never logged.
type requestLogTransport struct {
	next http.RoundTripper
}

func (t *requestLogTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.next.RoundTrip(req)
	latency := time.Since(start).Round(time.Millisecond)

	u := *req.URL
	u.RawQuery = MaskSensitiveQuery(u.RawQuery)
	auth := "-"
	if v := req.Header.Get("Authorization"); v != "" {
		auth = MaskAuthorizationHeader(v)
	}
	entry := log.WithContext(req.Context())
	if err != nil {
		entry.Debugf("upstream %s %s auth=%s failed after %s: %v", req.Method, u.String(), auth, latency, err)
		return resp, err
	}
	entry.WithField("status", resp.StatusCode).Debugf("upstream %s %s auth=%s %s", req.Method, u.String(), auth, latency)
	return resp, nil
}

// WithRequestLog wraps the client's transport with upstream request logging.
func WithRequestLog(httpClient *http.Client) *http.Client {
	next := httpClient.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	httpClient.Transport = &requestLogTransport{next: next}
	return httpClient
}
