//go:build !unix

package client

import (
	"fmt"
	"net/http"
)

func socketTransport(path string) (http.RoundTripper, error) {
	return nil, fmt.Errorf("%w: %w: %s", ErrInvalidConfig, ErrUnsupportedTransport, path)
}
