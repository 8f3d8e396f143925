package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meetcreator/roomdrop/internal/peer"
)

func clearEnv(t *testing.T) {
	for _, key := range []string{"SERVER_URL", "STUN_SERVER", "PEER_NAME", "CODEC", "NEGOTIATION_TIMEOUT", "PORT", "MDNS"} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, DefaultServer, cfg.ServerURL)
	assert.Equal(t, DefaultSTUN, cfg.STUNServer)
	assert.Equal(t, "json", cfg.Codec)
	assert.Equal(t, peer.DefaultNegotiationTimeout, cfg.NegotiationTimeout)
	assert.NotEmpty(t, cfg.Name)
}

func TestLoadPriority(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVER_URL", "https://env.example.com")
	t.Setenv("PEER_NAME", "env-name")
	t.Setenv("CODEC", "msgpack")
	t.Setenv("NEGOTIATION_TIMEOUT", "45s")

	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, "wss://env.example.com/ws", cfg.ServerURL)
	assert.Equal(t, "env-name", cfg.Name)
	assert.Equal(t, "msgpack", cfg.Codec)
	assert.Equal(t, 45*time.Second, cfg.NegotiationTimeout)

	cfg, err = Load(Options{
		Server:  "ws://flag.local:4000/ws",
		Name:    "flag-name",
		Codec:   "json",
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, "ws://flag.local:4000/ws", cfg.ServerURL)
	assert.Equal(t, "flag-name", cfg.Name)
	assert.Equal(t, "json", cfg.Codec)
	assert.Equal(t, 5*time.Second, cfg.NegotiationTimeout)
}

func TestLoadDiscoverLeavesServerEmpty(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(Options{Discover: true})
	require.NoError(t, err)
	assert.Empty(t, cfg.ServerURL)
	assert.True(t, cfg.Discover)

	cfg, err = Load(Options{Discover: true, Server: "relay.lan:3000"})
	require.NoError(t, err)
	assert.Equal(t, "wss://relay.lan:3000/ws", cfg.ServerURL)
}

func TestLoadRejectsBadValues(t *testing.T) {
	clearEnv(t)

	_, err := Load(Options{Codec: "xml"})
	assert.Error(t, err)

	t.Setenv("NEGOTIATION_TIMEOUT", "soon")
	_, err = Load(Options{})
	assert.Error(t, err)
}

func TestNormalizeServerURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ws://localhost:3000/ws", "ws://localhost:3000/ws"},
		{"http://localhost:3000", "ws://localhost:3000/ws"},
		{"https://relay.example.com/", "wss://relay.example.com/ws"},
		{"relay.example.com", "wss://relay.example.com/ws"},
		{"wss://relay.example.com/signal", "wss://relay.example.com/signal"},
	}
	for _, tt := range tests {
		got, err := NormalizeServerURL(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"", "ftp://relay.example.com", "ws://"} {
		_, err := NormalizeServerURL(bad)
		assert.Error(t, err, bad)
	}
}

func TestGetSTUNServers(t *testing.T) {
	cfg := &Config{STUNServer: "stun:a:3478,stun:b:3478"}
	assert.Equal(t, []string{"stun:a:3478", "stun:b:3478"}, cfg.GetSTUNServers())

	cfg.STUNServer = "none"
	assert.Nil(t, cfg.GetSTUNServers())
}

func TestLoadRelay(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadRelay()
	require.NoError(t, err)
	assert.Equal(t, DefaultRelayPort, cfg.Port)
	assert.Equal(t, ":3000", cfg.Addr())
	assert.False(t, cfg.MDNS)

	t.Setenv("PORT", "8080")
	t.Setenv("MDNS", "true")
	cfg, err = LoadRelay()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.True(t, cfg.MDNS)

	t.Setenv("PORT", "http")
	_, err = LoadRelay()
	assert.Error(t, err)
}
