// Package tunnel exposes the local server through a public endpoint so
// agents and watchers on other machines can reach it.
package tunnel

import (
	"context"
	"net/http"
	"strings"
)

// Tunnel exposes a local HTTP server via a public HTTPS URL.
type Tunnel interface {
	Start(ctx context.Context) (publicURL string, err error)
	Serve(srv *http.Server) error
	Close() error
	PublicURL() string
}

// WebSocketURL turns a tunnel's public URL into the watcher endpoint.
func WebSocketURL(publicURL string) string {
	switch {
	case strings.HasPrefix(publicURL, "https://"):
		return "wss://" + strings.TrimPrefix(publicURL, "https://") + "/ws"
	case strings.HasPrefix(publicURL, "http://"):
		return "ws://" + strings.TrimPrefix(publicURL, "http://") + "/ws"
	}
	return ""
}
