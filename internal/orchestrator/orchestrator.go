// Package orchestrator owns the pool of simulated sessions: it resolves the
// server configuration, connects the pool (falling back to mock mode as a
// whole), drives the randomized simulation tick and backs the console.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/arena-harness/internal/config"
	"github.com/DoyleJ11/arena-harness/internal/discovery"
	"github.com/DoyleJ11/arena-harness/internal/logging"
	"github.com/DoyleJ11/arena-harness/internal/probe"
	"github.com/DoyleJ11/arena-harness/internal/session"
	"github.com/DoyleJ11/arena-harness/internal/types"
)

// NoExclude is passed to RandomPlayer when no session should be skipped.
// Session ids start at 1.
const NoExclude = 0

const (
	shotChance   = 0.2
	chatChance   = 0.05
	damageChance = 0.1

	mockDamageMin  = 10
	mockDamageSpan = 30
)

var ChatLines = []string{
	"Need a medic!",
	"Let's capture the point!",
	"Spy here!",
	"Engineer, we need a sentry!",
	"Nice work, team!",
}

var (
	ErrNoPlayer   = errors.New("no such player")
	ErrPoolClosed = errors.New("player pool closed while connecting")
)

type Prober interface {
	discovery.Prober
	Probe(ctx context.Context, rawURL string, timeout time.Duration) probe.Result
}

type Orchestrator struct {
	cfg    config.Harness
	log    logging.Logger
	prober Prober
	client *http.Client
	scan   *discovery.Scanner

	// Replaced whole, never mutated; sessions read it once per connect.
	endpoint atomic.Pointer[types.Endpoint]

	mu       sync.Mutex
	sessions []*session.Session
	gen      uint64 // bumped whenever sessions is replaced or cleared
	mock     bool
	players  int
	nextID   int
	rng      *rand.Rand
	info     *types.ServerInfo

	simMu     sync.Mutex
	simCancel context.CancelFunc
	simDone   chan struct{}
}

type Option func(*Orchestrator)

// WithSeed makes the simulation's random choices reproducible.
func WithSeed(seed uint64) Option {
	return func(o *Orchestrator) { o.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

func WithHTTPClient(c *http.Client) Option {
	return func(o *Orchestrator) { o.client = c }
}

func WithProber(p Prober) Option {
	return func(o *Orchestrator) { o.prober = p }
}

func New(cfg config.Harness, log logging.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:     cfg,
		log:     log,
		client:  http.DefaultClient,
		mock:    cfg.Mock,
		players: cfg.Players,
		rng:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.prober == nil {
		o.prober = probe.NewWithClient(o.client, log)
	}
	o.scan = discovery.NewScanner(o.prober, log, cfg.DiscoveryHost, cfg.ProbeTimeout)
	ep := cfg.Endpoint()
	o.endpoint.Store(&ep)
	return o
}

func (o *Orchestrator) Endpoint() types.Endpoint { return *o.endpoint.Load() }

func (o *Orchestrator) SetEndpoint(ep types.Endpoint) { o.endpoint.Store(&ep) }

func (o *Orchestrator) MockMode() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mock
}

func (o *Orchestrator) ServerInfo() (types.ServerInfo, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.info == nil {
		return types.ServerInfo{}, false
	}
	return *o.info, true
}

// Initialize resolves the configuration (unless discovery is skipped or
// mock mode was requested), decides whether the server is usable, and
// connects the configured number of sessions. It returns the number of
// live sessions; only a cancelled ctx is an error.
func (o *Orchestrator) Initialize(ctx context.Context) (int, error) {
	if !o.MockMode() {
		if !o.cfg.SkipDiscovery {
			o.Scan(ctx)
		}
		if !o.checkAvailability(ctx) {
			o.log.Log("server is not reachable; switching to local mock mode", false)
			o.setMock(true)
		} else {
			o.fetchServerInfo(ctx)
		}
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return o.ConnectPlayers(ctx, o.PlayerCount())
}

func (o *Orchestrator) PlayerCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.players
}

// Scan reruns discovery and replaces the configuration on success. Already
// connected sessions keep what they connected with.
func (o *Orchestrator) Scan(ctx context.Context) (types.Endpoint, bool) {
	ep, ok := o.scan.Discover(ctx, o.cfg.DiscoveryPorts, o.cfg.DiscoveryPaths)
	if !ok {
		o.log.Log("could not detect a server automatically", false)
		return types.Endpoint{}, false
	}
	o.SetEndpoint(ep)
	o.log.Log("detected server configuration: "+ep.String(), false)
	return ep, true
}

// checkAvailability probes the configured REST URL variants, then each
// fallback endpoint; a fallback hit replaces the configuration.
func (o *Orchestrator) checkAvailability(ctx context.Context) bool {
	ep := o.Endpoint()
	o.log.Log("testing server at "+ep.RESTURL, false)
	for _, u := range availabilityURLs(ep.RESTURL) {
		if o.prober.REST(ctx, u, o.cfg.RequestTimeout).OK() {
			return true
		}
	}

	fallbacks, _ := o.cfg.Fallbacks() // validated at load
	for _, fb := range fallbacks {
		if ctx.Err() != nil {
			return false
		}
		o.log.Log("trying fallback "+fb.String(), true)
		if o.prober.REST(ctx, fb.RESTURL, o.cfg.RequestTimeout).OK() {
			o.SetEndpoint(fb)
			o.log.Log("using fallback configuration "+fb.String(), false)
			return true
		}
	}
	return false
}

func (o *Orchestrator) setMock(mock bool) {
	o.mu.Lock()
	o.mock = mock
	o.mu.Unlock()
}

func (o *Orchestrator) newSession(id int, mock bool) *session.Session {
	return session.New(id, session.Options{
		Log:               o.log,
		Prober:            o.prober,
		Client:            o.client,
		RequestTimeout:    o.cfg.RequestTimeout,
		SocketTimeout:     o.cfg.SocketTimeout,
		HeartbeatInterval: o.cfg.HeartbeatInterval,
		Mock:              mock,
	})
}

// ConnectPlayers builds a fresh pool of n sessions and connects them
// concurrently. The pool is published before connecting so Shutdown can
// reach sessions still in flight. If none of the real sessions connects,
// the whole pool is torn down and rebuilt in mock mode.
func (o *Orchestrator) ConnectPlayers(ctx context.Context, n int) (int, error) {
	mock := o.MockMode()

	o.log.Log(fmt.Sprintf("connecting %d test players", n), false)
	pool := o.buildPool(n, mock)
	gen, old := o.publish(pool)
	if err := disconnectAll(old); err != nil {
		o.log.Error("closing previous sessions", err)
	}
	ep := o.Endpoint()

	var connected atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range pool {
		g.Go(func() error {
			if err := s.Connect(gctx, ep); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if errors.Is(err, session.ErrAborted) {
					o.log.Log(fmt.Sprintf("test player #%d: %v", i+1, err), true)
					return nil
				}
				o.log.Error(fmt.Sprintf("test player #%d failed to connect", i+1), err)
				return nil // keep going with the rest
			}
			connected.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		o.retire(gen)
		_ = disconnectAll(pool)
		return 0, err
	}
	if !o.current(gen) {
		return 0, ErrPoolClosed
	}

	count := int(connected.Load())
	if count == 0 && !mock {
		o.log.Log("no player could connect; switching to local mock mode", false)
		if err := disconnectAll(pool); err != nil {
			o.log.Error("closing failed sessions", err)
		}
		o.setMock(true)
		mock = true
		pool = o.buildPool(n, true)
		gen, _ = o.publish(pool)
		for _, s := range pool {
			if err := s.Connect(ctx, ep); err == nil {
				count++
			}
		}
		if !o.current(gen) {
			return 0, ErrPoolClosed
		}
	}

	mode := "connected"
	if mock {
		mode = "simulated"
	}
	o.log.Log(fmt.Sprintf("%d of %d players %s", count, n, mode), false)
	if mock {
		o.log.Log("RUNNING IN LOCAL MOCK MODE: the server is not reachable, actions are simulated locally", false)
	}
	return count, nil
}

// publish makes pool the live one and returns its generation along with
// the pool it replaced.
func (o *Orchestrator) publish(pool []*session.Session) (uint64, []*session.Session) {
	o.mu.Lock()
	defer o.mu.Unlock()
	old := o.sessions
	o.sessions = pool
	o.gen++
	return o.gen, old
}

// retire drops the pool of generation gen if it is still the live one.
func (o *Orchestrator) retire(gen uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.gen == gen {
		o.sessions = nil
		o.gen++
	}
}

func (o *Orchestrator) current(gen uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.gen == gen
}

// buildPool allocates ids 1..n from the orchestrator's counter.
func (o *Orchestrator) buildPool(n int, mock bool) []*session.Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nextID = 0
	pool := make([]*session.Session, n)
	for i := range pool {
		o.nextID++
		pool[i] = o.newSession(o.nextID, mock)
	}
	return pool
}

// AddPlayer connects one more session. It joins the pool while connecting
// so Shutdown can cancel it, and leaves again if the connect fails.
func (o *Orchestrator) AddPlayer(ctx context.Context) (*session.Session, error) {
	o.mu.Lock()
	o.nextID++
	s := o.newSession(o.nextID, o.mock)
	o.sessions = append(o.sessions, s)
	o.mu.Unlock()

	o.log.Log(fmt.Sprintf("adding player #%d", s.ID), false)
	if err := s.Connect(ctx, o.Endpoint()); err != nil {
		o.remove(s)
		return nil, fmt.Errorf("add player #%d: %w", s.ID, err)
	}
	o.log.Log(s.DisplayName+" added", false)
	return s, nil
}

func (o *Orchestrator) remove(s *session.Session) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sessions = slices.DeleteFunc(slices.Clone(o.sessions), func(p *session.Session) bool { return p == s })
}

// Reconnect drops session id and connects it again against the current
// configuration.
func (o *Orchestrator) Reconnect(ctx context.Context, id int) error {
	s := o.session(id)
	if s == nil {
		return fmt.Errorf("%w: %d", ErrNoPlayer, id)
	}
	o.log.Log("reconnecting "+s.DisplayName, false)
	if err := s.Disconnect(); err != nil {
		o.log.Error("disconnect before reconnect", err)
	}
	if err := s.Connect(ctx, o.Endpoint()); err != nil {
		return fmt.Errorf("reconnect %s: %w", s.DisplayName, err)
	}
	return nil
}

func (o *Orchestrator) session(id int) *session.Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, s := range o.sessions {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// Sessions returns the pool in insertion order.
func (o *Orchestrator) Sessions() []*session.Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*session.Session, len(o.sessions))
	copy(out, o.sessions)
	return out
}

func (o *Orchestrator) Players() []session.Snapshot {
	pool := o.Sessions()
	out := make([]session.Snapshot, len(pool))
	for i, s := range pool {
		out[i] = s.Snapshot()
	}
	return out
}

// RandomPlayer picks uniformly among connected sessions other than
// excludeID. It returns nil when there is none.
func (o *Orchestrator) RandomPlayer(excludeID int) *session.Session {
	pool := o.Sessions()
	var eligible []*session.Session
	for _, s := range pool {
		if s.ID != excludeID && s.Connected() {
			eligible = append(eligible, s)
		}
	}
	if len(eligible) == 0 {
		return nil
	}
	o.mu.Lock()
	i := o.rng.IntN(len(eligible))
	o.mu.Unlock()
	return eligible[i]
}

// RandomPair picks a shooter and a distinct target, or ok=false.
func (o *Orchestrator) RandomPair() (from, to *session.Session, ok bool) {
	from = o.RandomPlayer(NoExclude)
	if from == nil {
		return nil, nil, false
	}
	to = o.RandomPlayer(from.ID)
	if to == nil {
		return nil, nil, false
	}
	return from, to, true
}

// Chat sends text from the first connected session.
func (o *Orchestrator) Chat(text string) bool {
	for _, s := range o.Sessions() {
		if s.Connected() {
			return s.SendChat(text)
		}
	}
	return false
}

// Shoot has two distinct random sessions exchange a simulated shot.
func (o *Orchestrator) Shoot() (from, to *session.Session, ok bool) {
	from, to, ok = o.RandomPair()
	if !ok {
		return nil, nil, false
	}
	return from, to, from.SimulateShot(to)
}

func (o *Orchestrator) chance(p float64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.rng.Float64() < p
}

func (o *Orchestrator) intN(n int) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.rng.IntN(n)
}

// SimulateTick rolls each action independently: a shot between two
// sessions, a chat line, and in mock mode a damage event injected straight
// into a session's inbound handler, since no server exists to send one.
func (o *Orchestrator) SimulateTick() {
	if o.chance(shotChance) {
		o.Shoot()
	}

	if o.chance(chatChance) {
		if s := o.RandomPlayer(NoExclude); s != nil {
			s.SendChat(ChatLines[o.intN(len(ChatLines))])
		}
	}

	if o.MockMode() && o.chance(damageChance) {
		o.InjectDamage(mockDamageMin + o.intN(mockDamageSpan))
	}
}

// InjectDamage delivers a synthetic playerDamage to a random session, as
// if a second random session had hit it.
func (o *Orchestrator) InjectDamage(damage int) bool {
	target, source, ok := o.RandomPair()
	if !ok {
		return false
	}
	o.log.Log(fmt.Sprintf("simulation: %s dealt %d damage to %s", source.DisplayName, damage, target.DisplayName), false)

	frame, err := types.Encode(types.TypePlayerDamage, "", types.PlayerDamage{Damage: float64(damage), SourcePlayer: source.DisplayName})
	if err != nil {
		o.log.Error("encode synthetic damage", err)
		return false
	}
	return target.HandleMessage(frame) == nil
}

// StartSimulation launches the tick loop. It reports false if one is
// already running.
func (o *Orchestrator) StartSimulation() bool {
	o.simMu.Lock()
	defer o.simMu.Unlock()
	if o.simCancel != nil {
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	o.simCancel, o.simDone = cancel, done
	go o.simulate(ctx, done)
	o.log.Log("starting action simulation", false)
	return true
}

// StopSimulation cancels the tick loop and waits for it to exit.
func (o *Orchestrator) StopSimulation() bool {
	o.simMu.Lock()
	cancel, done := o.simCancel, o.simDone
	o.simCancel, o.simDone = nil, nil
	o.simMu.Unlock()
	if cancel == nil {
		return false
	}
	cancel()
	<-done
	o.log.Log("simulation stopped", false)
	return true
}

func (o *Orchestrator) SimulationActive() bool {
	o.simMu.Lock()
	defer o.simMu.Unlock()
	return o.simCancel != nil
}

func (o *Orchestrator) simulate(ctx context.Context, done chan struct{}) {
	defer close(done)
	timer := time.NewTimer(o.nextTick())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			o.SimulateTick()
			timer.Reset(o.nextTick())
		}
	}
}

// nextTick is SimInterval shifted by up to ±SimJitter.
func (o *Orchestrator) nextTick() time.Duration {
	base := o.cfg.SimInterval
	if base <= 0 {
		base = 2 * time.Second
	}
	jitter := o.cfg.SimJitter
	if jitter <= 0 {
		return base
	}
	o.mu.Lock()
	offset := time.Duration(o.rng.Int64N(int64(2*jitter)+1)) - jitter
	o.mu.Unlock()
	if d := base + offset; d > 0 {
		return d
	}
	return base
}

// Shutdown stops the simulation and disconnects every session.
func (o *Orchestrator) Shutdown() error {
	o.StopSimulation()
	o.log.Log("disconnecting players", false)

	o.mu.Lock()
	pool := o.sessions
	o.sessions = nil
	o.gen++
	o.mu.Unlock()

	err := disconnectAll(pool)
	o.log.Log("test finished", false)
	return err
}

func disconnectAll(pool []*session.Session) error {
	var err error
	for _, s := range pool {
		err = multierr.Append(err, s.Disconnect())
	}
	return err
}
