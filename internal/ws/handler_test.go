package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/arena-harness/internal/arena"
	"github.com/DoyleJ11/arena-harness/internal/logging"
	"github.com/DoyleJ11/arena-harness/internal/types"
)

func newServer(t *testing.T) (*arena.Arena, string, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	a := arena.New(ctx, logging.Nop())
	r := chi.NewRouter()
	r.Get("/game", Handler(a, logging.Nop()))
	r.Get("/game/{playerID}", Handler(a, logging.Nop()))
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return a, "ws" + strings.TrimPrefix(srv.URL, "http"), cancel
}

func readEnvelope(t *testing.T, c *websocket.Conn) types.Envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := c.Read(ctx)
	require.NoError(t, err)
	var env types.Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func TestHandler_JoinGetsStateAndLeaveIsReported(t *testing.T) {
	for _, path := range []string{"/game?id=p1", "/game/p1", "/game"} {
		t.Run(path, func(t *testing.T) {
			a, base, _ := newServer(t)

			c, _, err := websocket.Dial(context.Background(), base+path, nil)
			require.NoError(t, err)

			assert.Equal(t, types.TypeGameState, readEnvelope(t, c).Type)
			v, ok := a.State(context.Background())
			require.True(t, ok)
			assert.Equal(t, 1, v.NumClients)

			require.NoError(t, c.Close(websocket.StatusNormalClosure, ""))
			require.Eventually(t, func() bool {
				v, ok := a.State(context.Background())
				return ok && v.NumClients == 0
			}, 2*time.Second, 10*time.Millisecond)
		})
	}
}

func TestHandler_ArenaShutdownClosesSocket(t *testing.T) {
	_, base, stop := newServer(t)

	c, _, err := websocket.Dial(context.Background(), base+"/game?id=p1", nil)
	require.NoError(t, err)
	defer c.CloseNow()
	readEnvelope(t, c)

	stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err = c.Read(ctx)
	require.Error(t, err)
	assert.NotErrorIs(t, err, context.DeadlineExceeded, "socket should close, not time out")
}
