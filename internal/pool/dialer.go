package pool

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/proxy"
)

// EndpointTimeout returns the outbound timeout for a given endpoint, per
// spec.md §4.2: 10s default, 15s for friends, 25s for csgo_inventory.
func EndpointTimeout(endpoint Endpoint) time.Duration {
	switch endpoint {
	case EndpointFriends:
		return 15 * time.Second
	case EndpointCSGOInventory:
		return 25 * time.Second
	default:
		return 10 * time.Second
	}
}

// UserAgent is the browser-like user agent all outbound requests carry.
const UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// NewClient builds an *http.Client routed through conn, with the given
// per-request timeout. A direct connection uses the zero-value transport;
// a socks5 connection dials through golang.org/x/net/proxy, mirroring the
// teacher's checkSocks5Connect dialer construction.
func NewClient(conn *Connection, timeout time.Duration) (*http.Client, error) {
	if conn.Kind == KindDirect {
		return &http.Client{Timeout: timeout}, nil
	}

	u, err := url.Parse(conn.URL)
	if err != nil {
		return nil, fmt.Errorf("pool: invalid socks5 url %q: %w", conn.URL, err)
	}

	var auth *proxy.Auth
	if u.User != nil {
		pass, _ := u.User.Password()
		auth = &proxy.Auth{User: u.User.Username(), Password: pass}
	}

	dialer, err := proxy.SOCKS5("tcp", u.Host, auth, &net.Dialer{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("pool: create socks5 dialer: %w", err)
	}
	ctxDialer, ok := dialer.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("pool: socks5 dialer does not support context dialing")
	}

	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return ctxDialer.DialContext(ctx, network, addr)
		},
	}
	return &http.Client{Transport: transport, Timeout: timeout}, nil
}
