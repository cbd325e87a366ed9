// Package config loads harness and stub server settings from the environment,
// optionally seeded from a .env file in the working directory.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/DoyleJ11/arena-harness/internal/types"
)

const (
	MinPlayers = 1
	MaxPlayers = 10
)

var ErrInvalidConfig = errors.New("invalid config")

type Harness struct {
	RESTURL string `env:"HARNESS_REST_URL" envDefault:"http://localhost:5500/api"`
	WSURL   string `env:"HARNESS_WS_URL" envDefault:"ws://localhost:5500/game"`
	Players int    `env:"HARNESS_PLAYERS" envDefault:"3"`
	Mock    bool   `env:"HARNESS_MOCK"`
	Debug   bool   `env:"HARNESS_DEBUG" envDefault:"true"`

	SkipDiscovery  bool     `env:"HARNESS_SKIP_DISCOVERY"`
	DiscoveryHost  string   `env:"HARNESS_DISCOVERY_HOST" envDefault:"localhost"`
	DiscoveryPorts []int    `env:"HARNESS_DISCOVERY_PORTS" envDefault:"5500,3000,8080,4000,9000" envSeparator:","`
	DiscoveryPaths []string `env:"HARNESS_DISCOVERY_PATHS" envDefault:",/api,/game,/tf2clone" envSeparator:","`

	// Each entry is "restURL|wsURL".
	FallbackEndpoints []string `env:"HARNESS_FALLBACK_ENDPOINTS" envDefault:"http://localhost:5500|ws://localhost:5500,http://localhost:5500/api|ws://localhost:5500/ws,http://localhost:5500/api|ws://localhost:5500/socket,http://localhost:3000/api|ws://localhost:3000/game" envSeparator:","`

	ProbeTimeout      time.Duration `env:"HARNESS_PROBE_TIMEOUT" envDefault:"2s"`
	RequestTimeout    time.Duration `env:"HARNESS_REQUEST_TIMEOUT" envDefault:"3s"`
	SocketTimeout     time.Duration `env:"HARNESS_SOCKET_TIMEOUT" envDefault:"3s"`
	HeartbeatInterval time.Duration `env:"HARNESS_HEARTBEAT_INTERVAL" envDefault:"100ms"`
	SimInterval       time.Duration `env:"HARNESS_SIM_INTERVAL" envDefault:"2s"`
	SimJitter         time.Duration `env:"HARNESS_SIM_JITTER" envDefault:"500ms"`
}

type Stub struct {
	Addr      string `env:"STUB_ADDR" envDefault:":5500"`
	APIPrefix string `env:"STUB_API_PREFIX" envDefault:"/api"`
	WSPath    string `env:"STUB_WS_PATH" envDefault:"/game"`
	Debug     bool   `env:"STUB_DEBUG"`
}

// LoadHarness reads an optional .env file and then the environment.
func LoadHarness() (Harness, error) {
	var cfg Harness
	if err := load(&cfg); err != nil {
		return Harness{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Harness{}, err
	}
	return cfg, nil
}

func LoadStub() (Stub, error) {
	var cfg Stub
	if err := load(&cfg); err != nil {
		return Stub{}, err
	}
	return cfg, nil
}

func load(target any) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func (c Harness) Validate() error {
	if c.Players < MinPlayers || c.Players > MaxPlayers {
		return fmt.Errorf("%w: players must be %d..%d, got %d", ErrInvalidConfig, MinPlayers, MaxPlayers, c.Players)
	}
	if len(c.DiscoveryPorts) == 0 || len(c.DiscoveryPaths) == 0 {
		return fmt.Errorf("%w: discovery needs at least one port and one path", ErrInvalidConfig)
	}
	if _, err := c.Fallbacks(); err != nil {
		return err
	}
	return nil
}

// Endpoint is the configured REST/WS pairing before any discovery runs.
func (c Harness) Endpoint() types.Endpoint {
	return types.Endpoint{RESTURL: c.RESTURL, WSURL: c.WSURL}
}

// Fallbacks parses FallbackEndpoints in their configured order.
func (c Harness) Fallbacks() ([]types.Endpoint, error) {
	out := make([]types.Endpoint, 0, len(c.FallbackEndpoints))
	for _, raw := range c.FallbackEndpoints {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		rest, ws, ok := strings.Cut(raw, "|")
		if !ok || rest == "" || ws == "" {
			return nil, fmt.Errorf("%w: fallback endpoint %q is not rest|ws", ErrInvalidConfig, raw)
		}
		out = append(out, types.Endpoint{RESTURL: rest, WSURL: ws})
	}
	return out, nil
}
