// Package fastclient exposes the client builder.
package fastclient

import (
	"github.com/adamwoolhether/fastclient/client"
)

// New instantiates a *client.Client for baseURL with the provided options.
// If not specified, a TCP transport and the default slog logger are used.
func New(baseURL string, opts ...client.Option) (*client.Client, error) {
	return client.New(baseURL, opts...)
}
