package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/DoyleJ11/arena-harness/internal/arena"
	"github.com/DoyleJ11/arena-harness/internal/logging"
	"github.com/DoyleJ11/arena-harness/internal/types"
)

// Handler upgrades /game?id=<player> (or /game/<player>) and bridges the
// socket to the arena. Connections without an id get a fresh one.
func Handler(a *arena.Arena, log logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		playerID := r.URL.Query().Get("id")
		if playerID == "" {
			playerID = chi.URLParam(r, "playerID")
		}
		if playerID == "" {
			playerID = uuid.NewString()
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// Harness clients are not browsers; loopback only.
			InsecureSkipVerify: true,
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		out := make(chan []byte, 32)
		if !a.Send(r.Context(), arena.Join{PlayerID: playerID, Outbox: out}) {
			return
		}
		defer a.Send(context.Background(), arena.Leave{PlayerID: playerID, Outbox: out})
		log.Log("player "+playerID+" connected", false)

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for {
				select {
				case <-writeCtx.Done():
					return
				case frame, ok := <-out:
					if !ok {
						// Arena closed our outbox: replaced, dropped or shut down.
						conn.Close(websocket.StatusGoingAway, "arena closed")
						return
					}
					ctx, cancel := context.WithTimeout(writeCtx, 3*time.Second)
					err := conn.Write(ctx, websocket.MessageText, frame)
					cancel()
					if err != nil {
						conn.CloseNow()
						return
					}
				}
			}
		}()

		// Reader loop
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					log.Log("player "+playerID+" left", false)
				default:
					log.Log("player "+playerID+" dropped: "+err.Error(), true)
				}
				return
			}

			var env types.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				log.Log("bad frame from "+playerID, true)
				continue
			}
			if !a.Send(r.Context(), arena.FromClient{PlayerID: playerID, Env: env}) {
				return
			}
		}
	}
}
