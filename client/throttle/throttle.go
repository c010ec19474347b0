package throttle

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// throttle is an http.RoundTripper sharing one token bucket between
// plain requests and WebSocket upgrades sent to the upstream.
type throttle struct {
	limiter *rate.Limiter
	cfg     Config
	next    http.RoundTripper
	logFn   func() *slog.Logger
}

// NewRoundTripper returns an http.RoundTripper that throttles outbound requests
// using a token bucket rate limiter. logFn is resolved per request so the
// caller can change verbosity at runtime; returning nil disables throttle logging.
func NewRoundTripper(cfg Config, logFn func() *slog.Logger, next http.RoundTripper) (http.RoundTripper, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if next == nil {
		next = http.DefaultTransport
	}
	if logFn == nil {
		logFn = func() *slog.Logger { return nil }
	}

	t := &throttle{
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		cfg:     cfg,
		next:    next,
		logFn:   logFn,
	}

	return t, nil
}

func (t *throttle) RoundTrip(r *http.Request) (*http.Response, error) {
	ctx := r.Context()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w (before wait): %w", ErrContextEnded, err)
	}

	kind := "request"
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		kind = "upgrade"
	}

	var waited time.Duration
	if logger := t.logFn(); logger != nil && t.limiter.Tokens() < 1 {
		logger.Info("throttle tokens exhausted", "kind", kind, "rate", t.cfg.RPS, "burst", t.cfg.Burst, "path", r.URL.Path)

		defer func() {
			logger.Info("throttle wait complete", "kind", kind, "waited", waited.String())
		}()
	}

	start := time.Now()

	err := t.limiter.Wait(ctx)
	waited = time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWaitingFailed, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w (after wait): %w", ErrContextEnded, err)
	}

	return t.next.RoundTrip(r)
}
