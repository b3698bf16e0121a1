package replay

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Headers tied to the inbound hop or injected by the edge layer. They
// describe the path into the placeholder, not the request itself, and must
// not reach the backend on replay.
var strippedHeaders = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
	"X-Request-Id":        {},
	"X-Real-Ip":           {},
}

var strippedPrefixes = []string{
	"X-Forwarded-",
	"X-Edge-",
}

// Request is an inbound request snapshot, kept for the duration of one wake
// run and replayed verbatim against the backend.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Capture snapshots the triggering request. The URL is rebuilt against the
// backend scheme and domain, since the inbound URL pointed at the
// placeholder.
func Capture(r *http.Request, backendScheme, backendDomain string) (*Request, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read inbound request body: %w", err)
	}

	if backendScheme == "" {
		backendScheme = "https"
	}
	target := url.URL{
		Scheme:   backendScheme,
		Host:     backendDomain,
		Path:     r.URL.Path,
		RawQuery: r.URL.RawQuery,
	}

	header := make(http.Header, len(r.Header))
	for name, values := range r.Header {
		if isStripped(name) {
			continue
		}
		for _, value := range values {
			header.Add(name, value)
		}
	}

	return &Request{
		Method: r.Method,
		URL:    target.String(),
		Header: header,
		Body:   body,
	}, nil
}

func isStripped(name string) bool {
	canonical := http.CanonicalHeaderKey(name)
	if _, ok := strippedHeaders[canonical]; ok {
		return true
	}
	for _, prefix := range strippedPrefixes {
		if strings.HasPrefix(canonical, prefix) {
			return true
		}
	}
	return false
}

// Response is the definitive backend answer handed back to the original
// caller.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// WriteTo copies the backend response onto the placeholder's response
// writer. The body was already buffered, so framing headers are dropped.
func (resp *Response) WriteTo(w http.ResponseWriter) {
	for name, values := range resp.Header {
		switch name {
		case "Connection", "Transfer-Encoding", "Content-Length":
			continue
		}
		for _, value := range values {
			w.Header().Add(name, value)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}
