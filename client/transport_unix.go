//go:build unix

package client

import (
	"context"
	"net"
	"net/http"
	"time"
)

// socketTransport returns a transport that dials path for every
// connection, ignoring the network address derived from the request URL.
func socketTransport(path string) (http.RoundTripper, error) {
	dialer := &net.Dialer{Timeout: 5 * time.Second}

	t := http.DefaultTransport.(*http.Transport).Clone()
	t.Proxy = nil
	t.DialContext = func(ctx context.Context, _, _ string) (net.Conn, error) {
		return dialer.DialContext(ctx, "unix", path)
	}

	return t, nil
}
