// Package arena is the loopback game server's single room. It is an actor:
// every mutation arrives on the inbox and is applied by one goroutine.
package arena

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/DoyleJ11/arena-harness/internal/logging"
	"github.com/DoyleJ11/arena-harness/internal/types"
)

type Msg interface{ isArenaMsg() }

type Register struct {
	Reg   types.Registration
	Reply chan string // assigned player id
}

func (Register) isArenaMsg() {}

type Join struct {
	PlayerID string
	Outbox   chan []byte // frames for this player's socket
}

func (Join) isArenaMsg() {}

type Leave struct {
	PlayerID string
	Outbox   chan []byte // only removed if it is still the current one
}

func (Leave) isArenaMsg() {}

type FromClient struct {
	PlayerID string
	Env      types.Envelope
}

func (FromClient) isArenaMsg() {}

type Shutdown struct{}

func (Shutdown) isArenaMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isArenaMsg() {}

type View struct {
	Version    int
	NumClients int
	Registered int
	Positions  map[string]types.Vec3
	Health     map[string]int
}

type Arena struct {
	inbox      chan Msg
	clients    map[string]chan []byte
	registered map[string]types.Registration
	positions  map[string]types.Vec3
	health     map[string]int
	version    int
	log        logging.Logger
	ctx        context.Context
	cancel     context.CancelFunc
}

func New(parent context.Context, log logging.Logger) *Arena {
	ctx, cancel := context.WithCancel(parent)

	a := &Arena{
		inbox:      make(chan Msg, 256),
		clients:    make(map[string]chan []byte),
		registered: make(map[string]types.Registration),
		positions:  make(map[string]types.Vec3),
		health:     make(map[string]int),
		log:        log,
		ctx:        ctx,
		cancel:     cancel,
	}

	go a.loop()
	return a
}

// Inbox is how the HTTP and WebSocket layers talk to the arena.
func (a *Arena) Inbox() chan<- Msg { return a.inbox }

// Done closes once the arena has shut down.
func (a *Arena) Done() <-chan struct{} { return a.ctx.Done() }

// Send delivers m unless ctx ends or the arena shuts down first.
func (a *Arena) Send(ctx context.Context, m Msg) bool {
	select {
	case a.inbox <- m:
		return true
	case <-ctx.Done():
		return false
	case <-a.ctx.Done():
		return false
	}
}

// Register assigns a player id. ok is false if the arena is gone.
func (a *Arena) Register(ctx context.Context, reg types.Registration) (string, bool) {
	reply := make(chan string, 1)
	if !a.Send(ctx, Register{Reg: reg, Reply: reply}) {
		return "", false
	}
	select {
	case id := <-reply:
		return id, true
	case <-ctx.Done():
		return "", false
	case <-a.ctx.Done():
		return "", false
	}
}

// State returns a copy of the arena's current view.
func (a *Arena) State(ctx context.Context) (View, bool) {
	reply := make(chan View, 1)
	if !a.Send(ctx, GetState{Reply: reply}) {
		return View{}, false
	}
	select {
	case v := <-reply:
		return v, true
	case <-ctx.Done():
		return View{}, false
	case <-a.ctx.Done():
		return View{}, false
	}
}

func (a *Arena) loop() {
	for {
		select {
		case <-a.ctx.Done():
			a.shutdown()
			return

		case m := <-a.inbox:
			switch msg := m.(type) {
			case Register:
				id := uuid.NewString()
				a.registered[id] = msg.Reg
				a.log.Log("registered "+msg.Reg.Username+" as "+id, false)
				msg.Reply <- id

			case Join:
				if old, ok := a.clients[msg.PlayerID]; ok && old != msg.Outbox {
					close(old) // reconnect replaces the previous socket
				}
				a.clients[msg.PlayerID] = msg.Outbox
				if _, ok := a.health[msg.PlayerID]; !ok {
					a.health[msg.PlayerID] = 100
				}
				a.sendTo(msg.PlayerID, types.TypeGameState, a.gameState())

			case Leave:
				if ch, ok := a.clients[msg.PlayerID]; ok && ch == msg.Outbox {
					close(ch)
					delete(a.clients, msg.PlayerID)
				}

			case FromClient:
				a.apply(msg)

			case GetState:
				msg.Reply <- a.view()

			case Shutdown:
				a.shutdown()
				return
			}
		}
	}
}

func (a *Arena) apply(msg FromClient) {
	switch msg.Env.Type {
	case types.TypePlayerUpdate:
		var u types.PlayerUpdate
		if err := json.Unmarshal(msg.Env.Data, &u); err != nil {
			a.log.Log("bad playerUpdate from "+msg.PlayerID, true)
			return
		}
		a.positions[msg.PlayerID] = u.Position
		a.health[msg.PlayerID] = u.Health
		a.version++

	case types.TypePlayerAction:
		if msg.Env.Action != types.ActionShoot {
			return
		}
		var s types.Shoot
		if err := json.Unmarshal(msg.Env.Data, &s); err != nil {
			a.log.Log("bad shoot from "+msg.PlayerID, true)
			return
		}
		// Damage goes straight to the target; hit detection is not modelled.
		a.sendTo(s.TargetID, types.TypePlayerDamage, types.PlayerDamage{
			Damage:       float64(s.Damage),
			SourcePlayer: a.nameOf(msg.PlayerID),
		})

	case types.TypeChatMessage:
		var c types.ChatOut
		if err := json.Unmarshal(msg.Env.Data, &c); err != nil {
			a.log.Log("bad chat from "+msg.PlayerID, true)
			return
		}
		a.broadcast(types.TypeChatMessage, types.ChatIn{Sender: a.nameOf(msg.PlayerID), Message: c.Message})

	default:
		a.log.Log("ignoring "+string(msg.Env.Type)+" from "+msg.PlayerID, true)
	}
}

func (a *Arena) nameOf(id string) string {
	if reg, ok := a.registered[id]; ok && reg.Username != "" {
		return reg.Username
	}
	return id
}

func (a *Arena) gameState() types.GameState {
	players := make(map[string]types.Vec3, len(a.positions))
	for id, p := range a.positions {
		players[id] = p
	}
	health := make(map[string]int, len(a.health))
	for id, h := range a.health {
		health[id] = h
	}
	return types.GameState{Version: a.version, Players: players, Health: health}
}

func (a *Arena) view() View {
	gs := a.gameState()
	return View{
		Version:    a.version,
		NumClients: len(a.clients),
		Registered: len(a.registered),
		Positions:  gs.Players,
		Health:     gs.Health,
	}
}

func (a *Arena) sendTo(id string, t types.MessageType, data any) {
	ch, ok := a.clients[id]
	if !ok {
		return
	}
	frame, err := types.Encode(t, "", data)
	if err != nil {
		a.log.Error("encode "+string(t), err)
		return
	}
	a.deliver(id, ch, frame)
}

func (a *Arena) broadcast(t types.MessageType, data any) {
	frame, err := types.Encode(t, "", data)
	if err != nil {
		a.log.Error("encode "+string(t), err)
		return
	}
	for id, ch := range a.clients {
		a.deliver(id, ch, frame)
	}
}

func (a *Arena) deliver(id string, ch chan []byte, frame []byte) {
	select {
	case ch <- frame:
		// ok
	default:
		// Client is slow/full - drop them.
		a.log.Log("dropping slow client "+id, false)
		close(ch)
		delete(a.clients, id)
	}
}

func (a *Arena) shutdown() {
	for id, ch := range a.clients {
		close(ch) // no more frames
		delete(a.clients, id)
	}
	a.cancel()
}
