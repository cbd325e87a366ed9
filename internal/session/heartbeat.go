package session

import (
	"context"
	"time"

	"github.com/DoyleJ11/arena-harness/internal/types"
)

// startHeartbeatLocked replaces any running heartbeat. Caller holds s.mu.
func (s *Session) startHeartbeatLocked() {
	if s.heartbeatCancel != nil {
		s.heartbeatCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.heartbeatCancel = cancel
	s.heartbeatDone = done
	go s.heartbeat(ctx, done, s.opts.HeartbeatInterval)
}

// takeHeartbeatLocked detaches the heartbeat handle so it is cancelled
// exactly once, by whoever took it. Caller holds s.mu.
func (s *Session) takeHeartbeatLocked() (context.CancelFunc, chan struct{}) {
	cancel, done := s.heartbeatCancel, s.heartbeatDone
	s.heartbeatCancel, s.heartbeatDone = nil, nil
	return cancel, done
}

// stopHeartbeat must run without s.mu held: the ticking goroutine takes it.
func stopHeartbeat(cancel context.CancelFunc, done chan struct{}) {
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Session) heartbeat(ctx context.Context, done chan struct{}, every time.Duration) {
	defer close(done)
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			update, ok := s.beat(done)
			if !ok {
				return
			}
			s.send(types.TypePlayerUpdate, "", update)
		}
	}
}

// beat advances the random walk. A tick that finds the session no longer
// live clears its own handle and reports false.
func (s *Session) beat(done chan struct{}) (types.PlayerUpdate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.Live() {
		if s.heartbeatDone == done {
			cancel, _ := s.takeHeartbeatLocked()
			cancel()
		}
		return types.PlayerUpdate{}, false
	}

	s.position.X += (s.rng.Float64() - 0.5) * walkStep
	s.position.Z += (s.rng.Float64() - 0.5) * walkStep
	return types.PlayerUpdate{Position: s.position, Health: s.health, Ammo: Ammo}, true
}
