package session

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/coder/websocket"

	"github.com/DoyleJ11/arena-harness/internal/types"
)

// send writes one envelope. In mock mode the message is only logged. When
// the socket is not open the message is dropped; a failed write tears the
// socket down and the read loop finishes the transition to Disconnected.
func (s *Session) send(t types.MessageType, action string, data any) bool {
	payload, err := types.Encode(t, action, data)
	if err != nil {
		s.log.Error("encode message for "+s.DisplayName, err)
		return false
	}

	s.mu.Lock()
	switch {
	case s.state == StateMock:
		s.sent++
		s.mu.Unlock()
		s.log.Log(fmt.Sprintf("[mock] %s sent: %s", s.DisplayName, payload), true)
		return true
	case s.state != StateConnected || s.conn == nil:
		s.dropped++
		s.mu.Unlock()
		return false
	}
	conn := s.conn
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	err = conn.Write(ctx, websocket.MessageText, payload)
	cancel()
	if err != nil {
		s.log.Error("send failed for "+s.DisplayName, err)
		conn.CloseNow()
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
		return false
	}

	s.mu.Lock()
	s.sent++
	s.mu.Unlock()
	return true
}

// SimulateShot fires at target: a playerAction/shoot carrying the shooter's
// position and a unit direction on the ground plane. A nil target sends
// nothing.
func (s *Session) SimulateShot(target *Session) bool {
	if target == nil {
		return false
	}
	from := s.Position()
	to := target.Position()

	s.log.Log(fmt.Sprintf("%s shooting at %s", s.DisplayName, target.DisplayName), false)
	return s.send(types.TypePlayerAction, types.ActionShoot, types.Shoot{
		TargetID:  target.PlayerID(),
		Damage:    ShotDamage,
		Position:  from,
		Direction: groundDirection(from, to),
	})
}

func groundDirection(from, to types.Vec3) types.Vec3 {
	dx, dz := to.X-from.X, to.Z-from.Z
	length := math.Hypot(dx, dz)
	if length == 0 {
		return types.Vec3{}
	}
	return types.Vec3{X: dx / length, Y: 0, Z: dz / length}
}

func (s *Session) SendChat(text string) bool {
	ok := s.send(types.TypeChatMessage, "", types.ChatOut{Message: text})
	if ok {
		s.log.Log(fmt.Sprintf("%s says: %s", s.DisplayName, text), false)
	}
	return ok
}

// HandleMessage dispatches one inbound frame. Bad frames are logged and
// dropped; the returned error is informational and never ends the session.
func (s *Session) HandleMessage(raw []byte) error {
	if !s.Connected() {
		s.log.Log(s.DisplayName+" ignoring message while not connected", true)
		return nil
	}

	var env types.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return s.malformed(err)
	}

	switch env.Type {
	case types.TypeGameState:
		s.log.Log(s.DisplayName+" received game state update", true)

	case types.TypePlayerDamage:
		var d types.PlayerDamage
		if err := decodeData(env.Data, &d); err != nil {
			return s.malformed(err)
		}
		s.applyDamage(d)

	case types.TypeChatMessage:
		var c types.ChatIn
		if err := decodeData(env.Data, &c); err != nil {
			return s.malformed(err)
		}
		sender := c.Sender
		if sender == "" {
			sender = s.DisplayName
		}
		s.log.Log(fmt.Sprintf("chat: %s: %s", sender, c.Message), false)

	case types.TypePointCaptured:
		var p types.PointCaptured
		if err := decodeData(env.Data, &p); err != nil {
			return s.malformed(err)
		}
		s.log.Log(fmt.Sprintf("point %v captured by team %s", p.PointID, p.Team), false)

	default:
		s.log.Log(fmt.Sprintf("%s received message: %q", s.DisplayName, env.Type), true)
	}
	return nil
}

// applyDamage trusts the damage figure and predicts the outcome locally. An
// elimination respawns the player at full health on the spot. The server
// never confirms either step, so this health is a client-side preview; if
// the server owns health, its gameState should overwrite this value.
func (s *Session) applyDamage(d types.PlayerDamage) {
	damage := d.Points()
	s.mu.Lock()
	s.health -= damage
	remaining := s.health
	eliminated := s.health <= 0
	if eliminated {
		s.health = MaxHealth
	}
	s.mu.Unlock()

	s.log.Log(fmt.Sprintf("%s took %d damage from %s (health %d)", s.DisplayName, damage, d.SourcePlayer, remaining), false)
	if eliminated {
		s.log.Log(fmt.Sprintf("%s was eliminated, respawning at %d health", s.DisplayName, MaxHealth), false)
	}
}

func decodeData(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("missing data")
	}
	return json.Unmarshal(data, v)
}

func (s *Session) malformed(err error) error {
	err = fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	s.log.Error("discarding message for "+s.DisplayName, err)
	return err
}
