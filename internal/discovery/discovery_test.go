package discovery

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/arena-harness/internal/logging"
	"github.com/DoyleJ11/arena-harness/internal/probe"
	"github.com/DoyleJ11/arena-harness/internal/types"
)

// fakeProber answers from fixed sets and records every call in order.
type fakeProber struct {
	rest  map[string]bool
	ws    map[string]bool
	calls []string
}

func (f *fakeProber) REST(_ context.Context, u string, _ time.Duration) probe.Result {
	f.calls = append(f.calls, "rest "+u)
	if f.rest[u] {
		return probe.Reachable
	}
	return probe.Unreachable
}

func (f *fakeProber) WebSocket(_ context.Context, u string, _ time.Duration) probe.Result {
	f.calls = append(f.calls, "ws "+u)
	if f.ws[u] {
		return probe.Reachable
	}
	return probe.Unreachable
}

func set(urls ...string) map[string]bool {
	m := make(map[string]bool, len(urls))
	for _, u := range urls {
		m[u] = true
	}
	return m
}

func TestDiscover_APIPathAndGameSocket(t *testing.T) {
	fp := &fakeProber{
		rest: set("http://localhost:5500/api"),
		ws:   set("ws://localhost:5500/game"),
	}
	s := NewScanner(fp, logging.Nop(), "localhost", time.Second)

	ep, ok := s.Discover(context.Background(), []int{5500}, []string{"", "/api"})
	require.True(t, ok)
	assert.Equal(t, types.Endpoint{RESTURL: "http://localhost:5500/api", WSURL: "ws://localhost:5500/game"}, ep)
	assert.Equal(t, []string{
		"rest http://localhost:5500",
		"rest http://localhost:5500/api",
		"ws ws://localhost:5500/game",
	}, fp.calls)
}

func TestDiscover_PortMajorOrder(t *testing.T) {
	fp := &fakeProber{}
	s := NewScanner(fp, logging.Nop(), "localhost", time.Second)

	_, ok := s.Discover(context.Background(), []int{1, 2}, []string{"", "/api"})
	require.False(t, ok)
	assert.Equal(t, []string{
		"rest http://localhost:1",
		"rest http://localhost:1/api",
		"rest http://localhost:2",
		"rest http://localhost:2/api",
	}, fp.calls)
}

func TestDiscover_WSVariantOrderAndNoRetries(t *testing.T) {
	fp := &fakeProber{
		rest: set("http://localhost:9000", "http://localhost:9000/game"),
	}
	s := NewScanner(fp, logging.Nop(), "localhost", time.Second)

	_, ok := s.Discover(context.Background(), []int{9000}, []string{"", "/game"})
	require.False(t, ok)
	assert.Equal(t, []string{
		"rest http://localhost:9000",
		"ws ws://localhost:9000/game",
		"ws ws://localhost:9000/socket",
		"ws ws://localhost:9000/ws",
		"ws ws://localhost:9000/",
		"rest http://localhost:9000/game",
	}, fp.calls, "ws variants already tried under the port are not probed again")
}

func TestDiscover_FallsThroughToLaterPort(t *testing.T) {
	fp := &fakeProber{
		rest: set("http://localhost:3000/api", "http://localhost:5500"),
		ws:   set("ws://localhost:3000/ws"),
	}
	s := NewScanner(fp, logging.Nop(), "localhost", time.Second)

	ep, ok := s.Discover(context.Background(), []int{5500, 3000}, []string{"", "/api"})
	require.True(t, ok)
	assert.Equal(t, types.Endpoint{RESTURL: "http://localhost:3000/api", WSURL: "ws://localhost:3000/ws"}, ep)
}

func TestDiscover_ResultDrawnFromCandidates(t *testing.T) {
	ports := []int{5500, 3000}
	paths := []string{"", "/api", "/tf2clone"}
	fp := &fakeProber{
		rest: set("http://localhost:3000/tf2clone"),
		ws:   set("ws://localhost:3000/tf2clone"),
	}
	s := NewScanner(fp, logging.Nop(), "localhost", time.Second)

	ep, ok := s.Discover(context.Background(), ports, paths)
	require.True(t, ok)
	assert.True(t, fp.rest[ep.RESTURL])
	assert.True(t, fp.ws[ep.WSURL])
	assert.Equal(t, "ws://localhost:3000/tf2clone", ep.WSURL)
}

func TestDiscover_FreshOnEveryCall(t *testing.T) {
	fp := &fakeProber{rest: set("http://localhost:1"), ws: set("ws://localhost:1/game")}
	s := NewScanner(fp, logging.Nop(), "localhost", time.Second)

	_, ok := s.Discover(context.Background(), []int{1}, []string{""})
	require.True(t, ok)
	_, ok = s.Discover(context.Background(), []int{1}, []string{""})
	require.True(t, ok)
	assert.Len(t, fp.calls, 4)
}

func TestDiscover_Cancelled(t *testing.T) {
	fp := &fakeProber{}
	s := NewScanner(fp, logging.Nop(), "localhost", time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok := s.Discover(ctx, []int{1, 2}, []string{""})
	assert.False(t, ok)
	assert.Empty(t, fp.calls)
}

func TestDiscover_RealServer(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("/socket", func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		_, _, _ = conn.Read(r.Context())
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	_, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	s := NewScanner(probe.New(logging.Nop()), logging.Nop(), "127.0.0.1", time.Second)
	ep, ok := s.Discover(context.Background(), []int{port}, []string{"/api"})
	require.True(t, ok)
	assert.Equal(t, "http://127.0.0.1:"+portStr+"/api", ep.RESTURL)
	assert.Equal(t, "ws://127.0.0.1:"+portStr+"/socket", ep.WSURL)
}
