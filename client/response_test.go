package client_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/adamwoolhether/fastclient/client"
)

// consume reads the body with either Read or a fully drained Stream.
type consume func(ctx context.Context, resp *client.Response) ([]byte, error)

func readAll(ctx context.Context, resp *client.Response) ([]byte, error) {
	return resp.Read(ctx)
}

func streamAll(ctx context.Context, resp *client.Response) ([]byte, error) {
	s, err := resp.Stream()
	if err != nil {
		return nil, err
	}
	defer s.Close()

	var buf bytes.Buffer
	for p, err := range s.All(ctx) {
		if err != nil {
			return nil, err
		}
		buf.Write(p)
	}

	return buf.Bytes(), nil
}

func TestResponse_ConsumedOnce(t *testing.T) {
	ts, _ := echoServer(t)
	c := newClient(t, ts.URL)

	testCases := map[string]struct {
		first  consume
		second consume
	}{
		"readThenRead":     {first: readAll, second: readAll},
		"readThenStream":   {first: readAll, second: streamAll},
		"streamThenRead":   {first: streamAll, second: readAll},
		"streamThenStream": {first: streamAll, second: streamAll},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			resp, err := c.Request(t.Context(), http.MethodGet, "/")
			if err != nil {
				t.Fatal(err)
			}

			body, err := tc.first(t.Context(), resp)
			if err != nil {
				t.Fatalf("first consumption failed: %v", err)
			}
			if string(body) != "ok" {
				t.Errorf("expected %q, got %q", "ok", body)
			}

			if _, err := tc.second(t.Context(), resp); !errors.Is(err, client.ErrConsumed) {
				t.Errorf("expected ErrConsumed, got %v", err)
			}
		})
	}
}

func TestResponse_StreamOpenedTwice(t *testing.T) {
	ts, _ := echoServer(t)
	c := newClient(t, ts.URL)

	resp, err := c.RequestStream(t.Context(), http.MethodGet, "/")
	if err != nil {
		t.Fatal(err)
	}

	s, err := resp.Stream()
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if _, err := resp.Stream(); !errors.Is(err, client.ErrConsumed) {
		t.Errorf("expected ErrConsumed, got %v", err)
	}
}

func TestResponse_Header(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("X-Dup", "one")
		w.Header().Add("X-Dup", "two")
		w.Header().Set("X-Single", "v")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer ts.Close()

	c := newClient(t, ts.URL)

	resp, err := c.Request(t.Context(), http.MethodGet, "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Close()

	if resp.StatusCode() != http.StatusAccepted {
		t.Errorf("expected %d, got %d", http.StatusAccepted, resp.StatusCode())
	}

	h := resp.Header()
	if diff := cmp.Diff([]string{"one", "two"}, h.Values("x-dup")); diff != "" {
		t.Errorf("duplicate header mismatch (-want +got):\n%s", diff)
	}

	h.Set("X-Single", "mutated")
	if got := resp.Header().Get("X-Single"); got != "v" {
		t.Errorf("header copy leaked mutation: %q", got)
	}

	// Metadata stays available after the body is consumed.
	if _, err := resp.Read(t.Context()); err != nil {
		t.Fatal(err)
	}
	if got := resp.Header().Get("X-Single"); got != "v" {
		t.Errorf("header unavailable after read: %q", got)
	}
}

func TestResponse_StreamMatchesRead(t *testing.T) {
	payload := bytes.Repeat([]byte("0123456789abcdef"), 10_000)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f := w.(http.Flusher)
		for p := range slices.Chunk(payload, 7_001) {
			_, _ = w.Write(p)
			f.Flush()
		}
	}))
	defer ts.Close()

	c := newClient(t, ts.URL)

	var got [2][]byte
	for i, fn := range []consume{readAll, streamAll} {
		resp, err := c.Request(t.Context(), http.MethodGet, "/")
		if err != nil {
			t.Fatal(err)
		}
		got[i], err = fn(t.Context(), resp)
		if err != nil {
			t.Fatal(err)
		}
	}

	if !bytes.Equal(got[0], payload) {
		t.Errorf("read returned %d bytes, want %d", len(got[0]), len(payload))
	}
	if !bytes.Equal(got[0], got[1]) {
		t.Errorf("stream concatenation (%d bytes) differs from read (%d bytes)", len(got[1]), len(got[0]))
	}
}

func TestResponse_CloseDiscardsBody(t *testing.T) {
	ts, _ := echoServer(t)
	c := newClient(t, ts.URL)

	resp, err := c.Request(t.Context(), http.MethodGet, "/")
	if err != nil {
		t.Fatal(err)
	}

	if err := resp.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := resp.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
	if _, err := resp.Read(t.Context()); !errors.Is(err, client.ErrConsumed) {
		t.Errorf("expected ErrConsumed after close, got %v", err)
	}
}

func TestResponse_ReadCancelled(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("partial"))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer ts.Close()

	c := newClient(t, ts.URL)

	resp, err := c.Request(t.Context(), http.MethodGet, "/")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	_, err = resp.Read(ctx)
	if !errors.Is(err, client.ErrTransport) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline transport error, got %v", err)
	}
	if _, err := resp.Read(t.Context()); !errors.Is(err, client.ErrConsumed) {
		t.Errorf("expected ErrConsumed after failed read, got %v", err)
	}
}
