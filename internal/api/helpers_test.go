package api_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/eargollo/hash256/internal/api"
	"github.com/eargollo/hash256/internal/config"
	"github.com/eargollo/hash256/internal/scheduler"
	"github.com/eargollo/hash256/internal/session"
)

// testServer wraps an httptest server backed by a live control loop.
type testServer struct {
	baseURL string
	client  *http.Client
}

type serverOpts struct {
	cfg       *config.Config
	historyDB *sql.DB
	sched     *scheduler.Scheduler
	readLimit int64
}

// newTestServer starts a control loop and serves the API router over it.
func newTestServer(t *testing.T, opts serverOpts) *testServer {
	t.Helper()
	loop := session.New(session.Config{
		PollInterval: 5 * time.Millisecond,
		ReadLimit:    opts.readLimit,
		Version:      "test",
	}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = loop.Run(ctx)
	}()

	srv := httptest.NewServer(api.Router(opts.cfg, loop, opts.historyDB, opts.sched, "test"))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return &testServer{
		baseURL: srv.URL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// get performs a GET request to path and returns the response.
func (ts *testServer) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := ts.client.Get(ts.baseURL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

// do sends a request with an optional JSON body.
func (ts *testServer) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, ts.baseURL+path, r)
	if err != nil {
		t.Fatalf("build %s %s: %v", method, path, err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := ts.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

// requireStatus fails the test if the response status code != want.
func requireStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("expected status %d, got %d\nbody: %s", want, resp.StatusCode, body)
	}
}

// decodeJSON decodes the response body into v, failing the test on error.
func decodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
}

// requireErrorCode decodes an error envelope and checks its code.
func requireErrorCode(t *testing.T, resp *http.Response, want string) {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	decodeJSON(t, resp, &body)
	if body.Error.Code != want {
		t.Errorf("error code = %q, want %q", body.Error.Code, want)
	}
}

// waitIdle polls /api/status until no run is active.
func (ts *testServer) waitIdle(t *testing.T) session.View {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for {
		var v session.View
		resp := ts.get(t, "/api/status")
		requireStatus(t, resp, http.StatusOK)
		decodeJSON(t, resp, &v)
		if !v.Running {
			return v
		}
		if time.Now().After(deadline) {
			t.Fatalf("run still active: %+v", v)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
