package arena

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DoyleJ11/arena-harness/internal/logging"
	"github.com/DoyleJ11/arena-harness/internal/types"
)

// helper: receive one frame with a timeout so tests never hang
func recvFrame(t *testing.T, ch <-chan []byte, within time.Duration) types.Envelope {
	t.Helper()
	select {
	case frame, ok := <-ch:
		if !ok {
			t.Fatalf("client outbox closed unexpectedly")
		}
		var env types.Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			t.Fatalf("bad frame %q: %v", frame, err)
		}
		return env
	case <-time.After(within):
		t.Fatalf("timed out waiting for frame")
		return types.Envelope{} // unreachable
	}
}

func recvNoFrame(t *testing.T, ch <-chan []byte, within time.Duration) {
	t.Helper()
	select {
	case f, ok := <-ch:
		if !ok {
			return
		}
		t.Fatalf("expected no frame within %v, got %s", within, f)
	case <-time.After(within):
	}
}

func mustEncode(t *testing.T, mt types.MessageType, action string, data any) types.Envelope {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return types.Envelope{Type: mt, Action: action, Data: raw}
}

func TestArena_JoinSendsGameState(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a := New(ctx, logging.Nop())

	out := make(chan []byte, 4)
	a.Inbox() <- Join{PlayerID: "p1", Outbox: out}

	env := recvFrame(t, out, 100*time.Millisecond)
	if env.Type != types.TypeGameState {
		t.Fatalf("want gameState on join, got %s", env.Type)
	}

	view, ok := a.State(ctx)
	if !ok || view.NumClients != 1 {
		t.Fatalf("want 1 client, got %+v (ok=%v)", view, ok)
	}
}

func TestArena_ShootBecomesDamageForTarget(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a := New(ctx, logging.Nop())

	id, ok := a.Register(ctx, types.Registration{Username: "Shooter"})
	if !ok || id == "" {
		t.Fatalf("register failed")
	}

	shooterOut := make(chan []byte, 4)
	targetOut := make(chan []byte, 4)
	a.Inbox() <- Join{PlayerID: id, Outbox: shooterOut}
	a.Inbox() <- Join{PlayerID: "t1", Outbox: targetOut}
	_ = recvFrame(t, shooterOut, 100*time.Millisecond)
	_ = recvFrame(t, targetOut, 100*time.Millisecond)

	a.Inbox() <- FromClient{PlayerID: id, Env: mustEncode(t, types.TypePlayerAction, types.ActionShoot, types.Shoot{TargetID: "t1", Damage: 20})}

	env := recvFrame(t, targetOut, 100*time.Millisecond)
	if env.Type != types.TypePlayerDamage {
		t.Fatalf("want playerDamage, got %s", env.Type)
	}
	var d types.PlayerDamage
	if err := json.Unmarshal(env.Data, &d); err != nil {
		t.Fatalf("decode damage: %v", err)
	}
	if d.Damage != 20 || d.SourcePlayer != "Shooter" {
		t.Fatalf("unexpected damage payload %+v", d)
	}
	recvNoFrame(t, shooterOut, 50*time.Millisecond)
}

func TestArena_ChatBroadcastAndUpdates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a := New(ctx, logging.Nop())

	o1 := make(chan []byte, 4)
	o2 := make(chan []byte, 4)
	a.Inbox() <- Join{PlayerID: "a", Outbox: o1}
	a.Inbox() <- Join{PlayerID: "b", Outbox: o2}
	_ = recvFrame(t, o1, 100*time.Millisecond)
	_ = recvFrame(t, o2, 100*time.Millisecond)

	a.Inbox() <- FromClient{PlayerID: "a", Env: mustEncode(t, types.TypeChatMessage, "", types.ChatOut{Message: "push!"})}
	for _, ch := range []chan []byte{o1, o2} {
		env := recvFrame(t, ch, 100*time.Millisecond)
		var c types.ChatIn
		_ = json.Unmarshal(env.Data, &c)
		if env.Type != types.TypeChatMessage || c.Sender != "a" || c.Message != "push!" {
			t.Fatalf("unexpected chat %+v / %+v", env, c)
		}
	}

	a.Inbox() <- FromClient{PlayerID: "a", Env: mustEncode(t, types.TypePlayerUpdate, "", types.PlayerUpdate{Position: types.Vec3{X: 1, Z: 2}, Health: 80})}
	view, _ := a.State(ctx)
	if view.Version != 1 || view.Positions["a"] != (types.Vec3{X: 1, Z: 2}) || view.Health["a"] != 80 {
		t.Fatalf("update not applied: %+v", view)
	}
}

func TestArena_DropSlowClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a := New(ctx, logging.Nop())

	slow := make(chan []byte, 1)
	a.Inbox() <- Join{PlayerID: "slow", Outbox: slow} // gameState fills the buffer

	a.Inbox() <- FromClient{PlayerID: "x", Env: mustEncode(t, types.TypeChatMessage, "", types.ChatOut{Message: "hi"})}

	view, _ := a.State(ctx)
	if view.NumClients != 0 {
		t.Fatalf("expected slow client to be dropped; NumClients=%d", view.NumClients)
	}
}

func TestArena_Shutdown_ClosesOutboxes(t *testing.T) {
	a := New(context.Background(), logging.Nop())

	out := make(chan []byte, 2)
	a.Inbox() <- Join{PlayerID: "c1", Outbox: out}
	_ = recvFrame(t, out, 100*time.Millisecond)

	a.Inbox() <- Shutdown{}
	select {
	case _, ok := <-out:
		if ok {
			t.Fatalf("expected closed outbox")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("outbox not closed on shutdown")
	}

	if _, ok := a.Register(context.Background(), types.Registration{Username: "late"}); ok {
		t.Fatalf("register after shutdown should fail")
	}
}
