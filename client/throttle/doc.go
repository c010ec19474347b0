// Package throttle rate-limits everything a client sends to its upstream.
//
// [NewRoundTripper] wraps a transport with a token bucket from
// [golang.org/x/time/rate]. Plain requests and WebSocket upgrade requests
// spend tokens from the same bucket, so a burst of new sessions cannot
// starve ordinary traffic of its budget or the other way round.
//
//	rt, err := throttle.NewRoundTripper(throttle.Config{RPS: 10, Burst: 5}, logFn, next)
//
// A request that finds the bucket empty blocks until a token frees up or
// its context ends. In the latter case the error wraps [ErrWaitingFailed]
// and nothing reaches next. logFn is consulted on every request; when it
// returns a logger, waits are reported at info level.
package throttle
