package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/arena-harness/internal/types"
)

func TestLoadHarness_Defaults(t *testing.T) {
	t.Chdir(t.TempDir()) // no stray .env

	cfg, err := LoadHarness()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:5500/api", cfg.RESTURL)
	assert.Equal(t, "ws://localhost:5500/game", cfg.WSURL)
	assert.Equal(t, 3, cfg.Players)
	assert.True(t, cfg.Debug)
	assert.False(t, cfg.Mock)
	assert.Equal(t, []int{5500, 3000, 8080, 4000, 9000}, cfg.DiscoveryPorts)
	assert.Equal(t, []string{"", "/api", "/game", "/tf2clone"}, cfg.DiscoveryPaths)
	assert.Equal(t, 100*time.Millisecond, cfg.HeartbeatInterval)

	fb, err := cfg.Fallbacks()
	require.NoError(t, err)
	require.Len(t, fb, 4)
	assert.Equal(t, types.Endpoint{RESTURL: "http://localhost:5500", WSURL: "ws://localhost:5500"}, fb[0])
}

func TestLoadHarness_Overrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HARNESS_PLAYERS", "5")
	t.Setenv("HARNESS_MOCK", "true")
	t.Setenv("HARNESS_DISCOVERY_PORTS", "7000")

	cfg, err := LoadHarness()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Players)
	assert.True(t, cfg.Mock)
	assert.Equal(t, []int{7000}, cfg.DiscoveryPorts)
}

func TestLoadHarness_ParseError(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HARNESS_PLAYERS", "lots")

	_, err := LoadHarness()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env:")
}

func TestValidate(t *testing.T) {
	base := Harness{
		Players:        3,
		DiscoveryPorts: []int{5500},
		DiscoveryPaths: []string{""},
	}

	cases := []struct {
		name    string
		mutate  func(*Harness)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Harness) {}},
		{name: "zero players", mutate: func(h *Harness) { h.Players = 0 }, wantErr: true},
		{name: "too many players", mutate: func(h *Harness) { h.Players = 11 }, wantErr: true},
		{name: "no ports", mutate: func(h *Harness) { h.DiscoveryPorts = nil }, wantErr: true},
		{name: "bad fallback", mutate: func(h *Harness) { h.FallbackEndpoints = []string{"http://x"} }, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr {
				require.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestLoadStub_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadStub()
	require.NoError(t, err)
	assert.Equal(t, ":5500", cfg.Addr)
	assert.Equal(t, "/api", cfg.APIPrefix)
	assert.Equal(t, "/game", cfg.WSPath)
}
