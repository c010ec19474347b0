package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"nhooyr.io/websocket"

	"github.com/adamwoolhether/fastclient/client"
)

func upstream(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Method", r.Method)
		fmt.Fprintf(w, "%s %s q=%s h=%s c=%s body=%s", r.Method, r.URL.Path, r.URL.RawQuery,
			r.Header.Get("X-Env"), r.Header.Get("Cookie"), b)
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})
	mux.HandleFunc("/ticks", func(w http.ResponseWriter, r *http.Request) {
		for i := range 3 {
			fmt.Fprintf(w, "t%d;", i)
			w.(http.Flusher).Flush()
		}
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		for {
			typ, p, err := conn.Read(r.Context())
			if err != nil {
				return
			}
			if err := conn.Write(r.Context(), typ, bytes.ToUpper(p)); err != nil {
				return
			}
		}
	})
	mux.HandleFunc("/feed", func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		conn.Write(r.Context(), websocket.MessageText, []byte("first"))
		conn.Write(r.Context(), websocket.MessageBinary, []byte{0xde, 0xad})
		conn.Close(websocket.StatusNormalClosure, "")
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv
}

func TestRun_Request(t *testing.T) {
	srv := upstream(t)

	testCases := map[string]struct {
		args   []string
		stdin  string
		exp    string
		expErr bool
	}{
		"get": {
			args: []string{"-base", srv.URL, "/echo"},
			exp:  "GET /echo q= h= c= body=",
		},
		"explicitSubcommand": {
			args: []string{"request", "-base", srv.URL, "-X", "delete", "echo"},
			exp:  "DELETE /echo q= h= c= body=",
		},
		"postWithData": {
			args: []string{"-base", srv.URL, "-d", "payload", "-q", "b=2", "-q", "a=1", "-b", "s=1", "-H", "X-Env: dev", "/echo"},
			exp:  "POST /echo q=b=2&a=1 h=dev c=s=1 body=payload",
		},
		"stdinBody": {
			args:  []string{"-base", srv.URL, "-X", "PUT", "-d", "-", "/echo"},
			stdin: "from stdin",
			exp:   "PUT /echo q= h= c= body=from stdin",
		},
		"stream": {
			args: []string{"-base", srv.URL, "-stream", "/ticks"},
			exp:  "t0;t1;t2;",
		},
		"errorStatusPrints": {
			args: []string{"-base", srv.URL, "/missing"},
			exp:  "gone\n",
		},
		"failFlag": {
			args:   []string{"-base", srv.URL, "-fail", "/missing"},
			exp:    "gone\n",
			expErr: true,
		},
		"missingPath": {
			args:   []string{"-base", srv.URL},
			expErr: true,
		},
		"missingBase": {
			args:   []string{"/echo"},
			expErr: true,
		},
		"badHeader": {
			args:   []string{"-base", srv.URL, "-H", "no-colon", "/echo"},
			expErr: true,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer

			err := run(t.Context(), tc.args, strings.NewReader(tc.stdin), &stdout, &stderr)
			if (err != nil) != tc.expErr {
				t.Fatalf("exp error %v, got %v (stderr: %s)", tc.expErr, err, stderr.String())
			}
			if diff := cmp.Diff(tc.exp, stdout.String()); diff != "" {
				t.Errorf("output mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRun_IncludeHeaders(t *testing.T) {
	srv := upstream(t)

	var stdout, stderr bytes.Buffer
	if err := run(t.Context(), []string{"-base", srv.URL, "-i", "/echo"}, nil, &stdout, &stderr); err != nil {
		t.Fatal(err)
	}

	out := stdout.String()
	if !strings.HasPrefix(out, "200 OK\n") {
		t.Errorf("expected status line, got %q", out)
	}
	if !strings.Contains(out, "X-Method: GET\n") {
		t.Errorf("expected response header, got %q", out)
	}
}

func TestRun_Profile(t *testing.T) {
	srv := upstream(t)

	path := filepath.Join(t.TempDir(), "profile.toml")
	profile := fmt.Sprintf(`
base_url = %q
log_level = "error"
timeout = "5s"

[headers]
X-Env = "from-profile"

[throttle]
rps = 50
burst = 5
`, srv.URL)
	if err := os.WriteFile(path, []byte(profile), 0o600); err != nil {
		t.Fatal(err)
	}

	var stdout, stderr bytes.Buffer
	if err := run(t.Context(), []string{"-config", path, "/echo"}, nil, &stdout, &stderr); err != nil {
		t.Fatal(err)
	}
	if exp := "GET /echo q= h=from-profile c= body="; stdout.String() != exp {
		t.Errorf("expected %q, got %q", exp, stdout.String())
	}

	stdout.Reset()
	if err := run(t.Context(), []string{"-config", path, "-H", "X-Env: from-flag", "/echo"}, nil, &stdout, &stderr); err != nil {
		t.Fatal(err)
	}
	if exp := "GET /echo q= h=from-flag c= body="; stdout.String() != exp {
		t.Errorf("flag should override profile header: %q", stdout.String())
	}
}

func TestRun_WS(t *testing.T) {
	srv := upstream(t)

	testCases := map[string]struct {
		args  []string
		stdin string
		exp   string
	}{
		"argsMessages": {
			args: []string{"ws", "-base", srv.URL, "/ws", "hello", "world"},
			exp:  "HELLO\nWORLD\n",
		},
		"stdinMessages": {
			args:  []string{"ws", "-base", srv.URL, "/ws"},
			stdin: "one\ntwo\n",
			exp:   "ONE\nTWO\n",
		},
		"listen": {
			args: []string{"ws", "-base", srv.URL, "-listen", "/feed"},
			exp:  "first\n[binary] 3q0=\n",
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer

			if err := run(t.Context(), tc.args, strings.NewReader(tc.stdin), &stdout, &stderr); err != nil {
				t.Fatalf("unexpected error: %v (stderr: %s)", err, stderr.String())
			}
			if diff := cmp.Diff(tc.exp, stdout.String()); diff != "" {
				t.Errorf("output mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRun_WSUpgradeFailure(t *testing.T) {
	srv := upstream(t)

	var stdout, stderr bytes.Buffer
	err := run(t.Context(), []string{"ws", "-base", srv.URL, "/missing", "x"}, nil, &stdout, &stderr)
	if !errors.Is(err, client.ErrTransport) {
		t.Errorf("expected ErrTransport, got %v", err)
	}
}

func TestDecodeProfile(t *testing.T) {
	testCases := map[string]struct {
		in     string
		exp    profile
		expErr bool
	}{
		"full": {
			in: `
base_url = "http://localhost:8080/"
socket_path = "/run/app.sock"
log_level = "debug"
timeout = "1m30s"
user_agent = "cli/1.0"

[headers]
Authorization = "Bearer t"

[throttle]
rps = 10
burst = 2

[tracing]
otlp_endpoint = "localhost:4317"
insecure = true
`,
			exp: profile{
				BaseURL:    "http://localhost:8080/",
				SocketPath: "/run/app.sock",
				LogLevel:   "debug",
				Timeout:    duration{90_000_000_000},
				UserAgent:  "cli/1.0",
				Headers:    map[string]string{"Authorization": "Bearer t"},
				Throttle:   throttleProfile{RPS: 10, Burst: 2},
				Tracing:    tracingProfile{Endpoint: "localhost:4317", Insecure: true},
			},
		},
		"unknownField": {
			in:     "base_url = \"http://x\"\nretries = 3\n",
			expErr: true,
		},
		"badDuration": {
			in:     "timeout = \"soon\"\n",
			expErr: true,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			got, err := decodeProfile(strings.NewReader(tc.in))
			if (err != nil) != tc.expErr {
				t.Fatalf("exp error %v, got %v", tc.expErr, err)
			}
			if tc.expErr {
				return
			}
			if diff := cmp.Diff(tc.exp, got); diff != "" {
				t.Errorf("profile mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSetupTracing(t *testing.T) {
	tracer, shutdown, err := setupTracing(t.Context(), tracingProfile{})
	if err != nil {
		t.Fatal(err)
	}
	if tracer != nil {
		t.Error("expected no tracer without an endpoint")
	}
	if err := shutdown(t.Context()); err != nil {
		t.Errorf("noop shutdown: %v", err)
	}

	tracer, shutdown, err = setupTracing(t.Context(), tracingProfile{Endpoint: "127.0.0.1:4317", Insecure: true})
	if err != nil {
		t.Fatal(err)
	}
	if tracer == nil {
		t.Error("expected a tracer for an endpoint")
	}
	_ = shutdown(t.Context())
}
