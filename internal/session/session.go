// Package session simulates one player against a game server: health check,
// registration, WebSocket upgrade over ordered fallbacks, heartbeats and
// inbound event handling. A session can also run in mock mode, where nothing
// touches the network.
package session

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/DoyleJ11/arena-harness/internal/logging"
	"github.com/DoyleJ11/arena-harness/internal/probe"
	"github.com/DoyleJ11/arena-harness/internal/types"
)

const (
	MaxHealth  = 100
	Ammo       = 100
	ShotDamage = 20

	walkStep     = 5.0
	worldSize    = 1000.0
	writeTimeout = 3 * time.Second
)

var Classes = []string{"Scout", "Soldier", "Pyro", "Demoman", "Heavy", "Engineer", "Medic", "Sniper", "Spy"}

const (
	TeamRed = "RED"
	TeamBlu = "BLU"
)

type HealthProber interface {
	REST(ctx context.Context, rawURL string, timeout time.Duration) probe.Result
}

type Options struct {
	Log    logging.Logger
	Prober HealthProber
	Client *http.Client

	RequestTimeout    time.Duration
	SocketTimeout     time.Duration
	HeartbeatInterval time.Duration

	Mock bool
	Seed uint64 // 0 picks a random seed
}

type Session struct {
	ID          int
	DisplayName string
	Team        string
	Class       string

	opts Options
	log  logging.Logger

	mu       sync.Mutex
	state    State
	position types.Vec3
	health   int
	playerID string
	rng      *rand.Rand

	conn       *websocket.Conn
	connCancel context.CancelFunc
	attempt    *attempt

	// Non-nil iff state is Connected or Mock.
	heartbeatCancel context.CancelFunc
	heartbeatDone   chan struct{}

	sent    uint64
	dropped uint64
}

func New(id int, opts Options) *Session {
	if opts.Log == nil {
		opts.Log = logging.Nop()
	}
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	if opts.Prober == nil {
		opts.Prober = probe.NewWithClient(opts.Client, opts.Log)
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 3 * time.Second
	}
	if opts.SocketTimeout <= 0 {
		opts.SocketTimeout = 3 * time.Second
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 100 * time.Millisecond
	}
	seed := opts.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	rng := rand.New(rand.NewPCG(seed, uint64(id)))

	team := TeamBlu
	if id%2 == 0 {
		team = TeamRed
	}

	return &Session{
		ID:          id,
		DisplayName: fmt.Sprintf("TestPlayer%d", id),
		Team:        team,
		Class:       Classes[rng.IntN(len(Classes))],
		opts:        opts,
		log:         opts.Log,
		state:       StateIdle,
		position:    types.Vec3{X: rng.Float64() * worldSize, Z: rng.Float64() * worldSize},
		health:      MaxHealth,
		rng:         rng,
	}
}

// Snapshot is a consistent read of a session for display.
type Snapshot struct {
	ID          int
	DisplayName string
	Class       string
	Team        string
	PlayerID    string
	State       State
	Connected   bool
	Health      int
	Position    types.Vec3
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:          s.ID,
		DisplayName: s.DisplayName,
		Class:       s.Class,
		Team:        s.Team,
		PlayerID:    s.playerID,
		State:       s.state,
		Connected:   s.state.Live(),
		Health:      s.health,
		Position:    s.position,
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Connected() bool { return s.State().Live() }

func (s *Session) Mock() bool { return s.opts.Mock }

func (s *Session) PlayerID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playerID
}

func (s *Session) Health() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.health
}

func (s *Session) Position() types.Vec3 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

// Sent counts messages handed to the socket (or swallowed in mock mode).
func (s *Session) Sent() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}

// Dropped counts sends attempted while not connected.
func (s *Session) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *Session) HeartbeatActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heartbeatCancel != nil
}

func (s *Session) transitionLocked(ev EventType) error {
	next, err := Apply(s.state, ev)
	if err != nil {
		return fmt.Errorf("%s: %s on %s: %w", s.DisplayName, ev, s.state, err)
	}
	s.state = next
	return nil
}

// Connect runs the connection state machine against ep once. ep is read
// here and never again, so later configuration changes only affect later
// connects. A *ConnectError reports an exhausted health or socket stage;
// registration failures are absorbed with a fallback id. Disconnect or a
// cancelled ctx stops the attempt between candidates and yields ErrAborted.
func (s *Session) Connect(ctx context.Context, ep types.Endpoint) error {
	if s.opts.Mock {
		return s.connectMock()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	a := &attempt{cancel: cancel}

	s.mu.Lock()
	err := s.transitionLocked(EvtConnect)
	if err == nil {
		s.attempt = a
	}
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAlreadyConnecting, err)
	}

	err = s.connect(ctx, ep)
	s.finishAttempt(ctx, a)
	return err
}

// attempt is the cancel handle of one in-flight Connect.
type attempt struct {
	cancel context.CancelFunc
}

func (s *Session) connect(ctx context.Context, ep types.Endpoint) error {
	s.log.Log(fmt.Sprintf("connecting %s to %s", s.DisplayName, ep), false)

	if tried, ok := s.checkHealth(ctx, ep.RESTURL); !ok {
		if err := s.advance(ctx, EvtHealthFailed); err != nil {
			return err
		}
		return &ConnectError{Session: s.DisplayName, Stage: StageHealth, Tried: tried, Err: ErrUnreachable}
	}
	if err := s.advance(ctx, EvtHealthOK); err != nil {
		return err
	}

	pid, err := s.register(ctx, ep.RESTURL)
	if err != nil {
		pid = fmt.Sprintf("fallback_player_%d", s.ID)
		s.log.Log(fmt.Sprintf("%s: %v; using fallback id %s", s.DisplayName, err, pid), false)
	} else {
		s.log.Log(fmt.Sprintf("%s registered with id %s", s.DisplayName, pid), false)
	}
	s.mu.Lock()
	err = s.advanceLocked(ctx, EvtRegistered)
	if err == nil {
		s.playerID = pid
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}

	conn, connCtx, connCancel, tried, err := s.dialSocket(ctx, ep, pid)
	if err != nil {
		if err := s.advance(ctx, EvtSocketExhausted); err != nil {
			return err
		}
		return &ConnectError{Session: s.DisplayName, Stage: StageSocket, Tried: tried, Err: ErrSocketUnreachable}
	}

	s.mu.Lock()
	if err := s.advanceLocked(ctx, EvtSocketOpen); err != nil {
		s.mu.Unlock()
		connCancel()
		conn.CloseNow()
		return err
	}
	s.conn = conn
	s.connCancel = connCancel
	s.startHeartbeatLocked()
	s.mu.Unlock()

	go s.readLoop(connCtx, conn)
	return nil
}

func (s *Session) advance(ctx context.Context, ev EventType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advanceLocked(ctx, ev)
}

// advanceLocked refuses to move a cancelled attempt. Disconnect cancels the
// attempt under s.mu, so a stale attempt never touches a newer one's state.
func (s *Session) advanceLocked(ctx context.Context, ev EventType) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrAborted, s.DisplayName, err)
	}
	return s.transitionLocked(ev)
}

// finishAttempt releases a's handle. An attempt the caller cancelled midway
// leaves the session Disconnected rather than stuck between stages.
func (s *Session) finishAttempt(ctx context.Context, a *attempt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attempt != a {
		return // taken by Disconnect
	}
	s.attempt = nil
	if ctx.Err() != nil && s.state.Connecting() {
		s.state, _ = Apply(s.state, EvtClosed)
	}
}

func (s *Session) connectMock() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.transitionLocked(EvtConnectMock); err != nil {
		return fmt.Errorf("%w: %w", ErrAlreadyConnecting, err)
	}
	s.playerID = fmt.Sprintf("mock_player_%d", s.ID)
	s.startHeartbeatLocked()
	s.log.Log(fmt.Sprintf("%s connected in mock mode", s.DisplayName), false)
	return nil
}

// Disconnect cancels a connect in flight, stops the heartbeat, closes the
// socket and leaves the session Disconnected. Calling it again is a no-op.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	prev := s.state
	if s.attempt != nil {
		s.attempt.cancel()
		s.attempt = nil
	}
	conn, connCancel := s.conn, s.connCancel
	s.conn, s.connCancel = nil, nil
	hbCancel, hbDone := s.takeHeartbeatLocked()
	s.state, _ = Apply(s.state, EvtClosed)
	s.mu.Unlock()

	stopHeartbeat(hbCancel, hbDone)

	var err error
	if conn != nil {
		if cerr := conn.Close(websocket.StatusNormalClosure, "disconnect"); cerr != nil {
			err = fmt.Errorf("close %s: %w", s.DisplayName, cerr)
		}
	}
	if connCancel != nil {
		connCancel()
	}
	if prev.Live() || prev.Connecting() {
		s.log.Log(fmt.Sprintf("%s disconnected", s.DisplayName), false)
	}
	return err
}

// closed handles a socket that went away on its own. conn guards against a
// stale reader reporting on a connection that was already replaced.
func (s *Session) closed(conn *websocket.Conn, cause error) {
	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		return
	}
	connCancel := s.connCancel
	s.conn, s.connCancel = nil, nil
	hbCancel, hbDone := s.takeHeartbeatLocked()
	s.state, _ = Apply(s.state, EvtClosed)
	s.mu.Unlock()

	conn.CloseNow()
	if connCancel != nil {
		connCancel()
	}
	stopHeartbeat(hbCancel, hbDone)

	status := websocket.CloseStatus(cause)
	if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
		s.log.Log(fmt.Sprintf("connection closed for %s", s.DisplayName), false)
		return
	}
	s.log.Log(fmt.Sprintf("connection closed for %s: %v", s.DisplayName, cause), false)
}

func (s *Session) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			s.closed(conn, err)
			return
		}
		_ = s.HandleMessage(data) // already logged
	}
}
