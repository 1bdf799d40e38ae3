package tunnel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"

	ngroklib "golang.ngrok.com/ngrok"
	ngrokconfig "golang.ngrok.com/ngrok/config"
)

// ErrNotStarted is returned by Serve before Start succeeded.
var ErrNotStarted = errors.New("tunnel not started")

type listenFunc func(ctx context.Context, cfg ngrokconfig.Tunnel, opts ...ngroklib.ConnectOption) (net.Listener, error)

// NgrokTunnel implements Tunnel using ngrok.
type NgrokTunnel struct {
	authToken string
	domain    string
	listen    listenFunc

	mu       sync.Mutex
	listener net.Listener
	url      string
}

// NewNgrok creates an ngrok tunnel with the given auth token and optional
// reserved domain.
func NewNgrok(authToken, domain string) *NgrokTunnel {
	return &NgrokTunnel{
		authToken: authToken,
		domain:    domain,
		listen: func(ctx context.Context, cfg ngrokconfig.Tunnel, opts ...ngroklib.ConnectOption) (net.Listener, error) {
			return ngroklib.Listen(ctx, cfg, opts...)
		},
	}
}

// Start opens the ngrok endpoint and returns its public URL.
func (n *NgrokTunnel) Start(ctx context.Context) (string, error) {
	if n.authToken == "" {
		return "", fmt.Errorf("ngrok auth token is required (set tunnel.authtoken in config or BEACON_NGROK_AUTHTOKEN env var)")
	}

	var endpoint ngrokconfig.Tunnel
	if n.domain != "" {
		endpoint = ngrokconfig.HTTPEndpoint(ngrokconfig.WithDomain(n.domain))
	} else {
		endpoint = ngrokconfig.HTTPEndpoint()
	}

	slog.Info("starting ngrok tunnel", "domain", n.domain)

	listener, err := n.listen(ctx, endpoint, ngroklib.WithAuthtoken(n.authToken))
	if err != nil {
		return "", fmt.Errorf("failed to create ngrok tunnel: %w", err)
	}

	url := listener.Addr().String()
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "https://" + url
	}

	n.mu.Lock()
	n.listener = listener
	n.url = url
	n.mu.Unlock()

	slog.Info("ngrok tunnel established", "public_url", url, "ws_url", WebSocketURL(url))
	return url, nil
}

// Serve serves srv on the tunnel listener until it is closed.
func (n *NgrokTunnel) Serve(srv *http.Server) error {
	n.mu.Lock()
	l := n.listener
	n.mu.Unlock()

	if l == nil {
		return ErrNotStarted
	}
	if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("serving on tunnel: %w", err)
	}
	return nil
}

// Close closes the ngrok tunnel.
func (n *NgrokTunnel) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.listener == nil {
		return nil
	}

	slog.Info("closing ngrok tunnel", "public_url", n.url)

	err := n.listener.Close()
	n.listener = nil
	n.url = ""
	if err != nil {
		return fmt.Errorf("failed to close ngrok tunnel: %w", err)
	}
	return nil
}

// PublicURL returns the public URL of the tunnel.
func (n *NgrokTunnel) PublicURL() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.url
}
