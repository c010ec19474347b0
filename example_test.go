package fastclient_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/adamwoolhether/fastclient"
	"github.com/adamwoolhether/fastclient/client"
)

func ExampleNew() {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"msg":"hello"}`)
	}))
	defer ts.Close()

	c, err := fastclient.New(ts.URL, client.WithTimeout(5*time.Second), client.WithLogLevel(client.LevelOff))
	if err != nil {
		fmt.Println("build error:", err)
		return
	}

	resp, err := c.Request(context.Background(), http.MethodGet, "/")
	if err != nil {
		fmt.Println("request error:", err)
		return
	}

	body, err := resp.Read(context.Background())
	if err != nil {
		fmt.Println("read error:", err)
		return
	}

	fmt.Println(string(body))
	// Output: {"msg":"hello"}
}
