// Package client is the runtime for talking to one upstream over HTTP
// and WebSocket, reachable by TCP or a Unix domain socket.
//
// # Building a Client
//
// Use [New] with the upstream's base URL and functional options:
//
//	c, err := client.New("http://localhost:8000/api/",
//		client.WithSocketPath("/run/app.sock"),
//		client.WithLogLevel(client.LevelInfo),
//	)
//
// Without [WithLogLevel] the level comes from the FASTCLIENT_LOG
// environment variable, read once, and defaults to off.
//
// # Making Requests
//
// [Client.Request] returns a [Response] for any completed exchange,
// whatever its status code:
//
//	resp, err := c.Request(ctx, http.MethodPost, "/items",
//		client.WithQuery(client.QueryPair{Key: "page", Value: "2"}),
//		client.WithCookies(client.Cookie{Name: "session", Value: token}),
//		client.WithBody(client.Text(`{"name":"x"}`)),
//	)
//	body, err := resp.Read(ctx)
//
// # Streaming Bodies
//
// A body can instead be consumed chunk by chunk, once:
//
//	stream, err := resp.Stream()
//	for chunk, err := range stream.All(ctx) {
//		...
//	}
//
// # WebSocket Sessions
//
//	s, err := c.Connect(ctx, "/ws")
//	err = s.SendText(ctx, "ping")
//	msg, err := s.Receive(ctx) // msg.Kind == client.KindText
//	defer s.Close()
//
// Streams and sessions allow one operation at a time. A call made while
// another is in flight fails with [ErrConsumed] instead of interleaving I/O.
package client
