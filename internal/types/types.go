package types

import (
	"encoding/json"
	"fmt"
	"math"
)

type MessageType string

const (
	// Client -> Server
	TypePlayerUpdate MessageType = "playerUpdate"
	TypePlayerAction MessageType = "playerAction"

	// Both directions
	TypeChatMessage MessageType = "chatMessage"

	// Server -> Client
	TypeGameState     MessageType = "gameState"
	TypePlayerDamage  MessageType = "playerDamage"
	TypePointCaptured MessageType = "pointCaptured"
)

const ActionShoot = "shoot"

// Envelope is the JSON frame carried on the socket in both directions.
// Data stays raw until the receiver knows which payload it holds.
type Envelope struct {
	Type   MessageType     `json:"type"`
	Action string          `json:"action,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Outbound payloads

type PlayerUpdate struct {
	Position Vec3 `json:"position"`
	Health   int  `json:"health"`
	Ammo     int  `json:"ammo"`
}

type Shoot struct {
	TargetID  string `json:"targetId"`
	Damage    int    `json:"damage"`
	Position  Vec3   `json:"position"`
	Direction Vec3   `json:"direction"`
}

type ChatOut struct {
	Message string `json:"message"`
}

// Inbound payloads

// Servers may send fractional damage.
type PlayerDamage struct {
	Damage       float64 `json:"damage"`
	SourcePlayer string  `json:"sourcePlayer"`
}

// Points is Damage rounded to whole health points.
func (d PlayerDamage) Points() int { return int(math.Round(d.Damage)) }

type ChatIn struct {
	Sender  string `json:"sender,omitempty"`
	Message string `json:"message"`
}

type PointCaptured struct {
	PointID any    `json:"pointId"` // servers send both numeric and string ids
	Team    string `json:"team"`
}

type GameState struct {
	Version int             `json:"version"`
	Players map[string]Vec3 `json:"players,omitempty"`
	Health  map[string]int  `json:"health,omitempty"`
}

// Encode wraps data in an Envelope and marshals the whole frame.
func Encode(t MessageType, action string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s data: %w", t, err)
	}
	b, err := json.Marshal(Envelope{Type: t, Action: action, Data: raw})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", t, err)
	}
	return b, nil
}

// Endpoint is one REST + WebSocket pairing. A discovered or operator-supplied
// Endpoint is the server configuration every session connects against.
type Endpoint struct {
	RESTURL string `json:"restUrl"`
	WSURL   string `json:"wsUrl"`
}

func (e Endpoint) String() string {
	return fmt.Sprintf("rest=%s ws=%s", e.RESTURL, e.WSURL)
}

// REST registration

type Registration struct {
	Username    string `json:"username"`
	PlayerClass string `json:"playerClass"`
	Team        string `json:"team"`
}

type RegistrationReply struct {
	PlayerID string `json:"playerId"`
}

type ServerInfo struct {
	Name    string `json:"name"`
	Players int    `json:"players"`
	WSPath  string `json:"wsPath"`
}
