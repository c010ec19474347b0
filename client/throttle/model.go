package throttle

import (
	"errors"
	"fmt"
)

// Errors returned by NewRoundTripper and by throttled round trips.
var (
	ErrMustNotBeZero = errors.New("must be greater than zero")
	ErrWaitingFailed = errors.New("no token before the request context ended")
	ErrContextEnded  = errors.New("request context ended around the token wait")
)

// Config sizes the bucket shared by a client's requests and WebSocket
// upgrades: RPS tokens refill each second and at most Burst can be spent
// at once.
type Config struct {
	RPS   int
	Burst int
}

func (c Config) validate() error {
	if c.RPS <= 0 || c.Burst <= 0 {
		return fmt.Errorf("rps[%d] and burst[%d] %w", c.RPS, c.Burst, ErrMustNotBeZero)
	}

	return nil
}
