package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/meetcreator/roomdrop/internal/names"
	"github.com/meetcreator/roomdrop/internal/peer"
	"github.com/meetcreator/roomdrop/internal/protocol"
)

// Default configuration values
const (
	DefaultServer    = "ws://localhost:3000/ws"
	DefaultSTUN      = "stun:stun.l.google.com:19302"
	DefaultCodec     = protocol.CodecJSON
	DefaultRelayPort = 3000
)

// Config holds client configuration
type Config struct {
	// ServerURL is the relay websocket endpoint. Empty when Discover is set
	// and no server was given; the caller resolves it over mDNS.
	ServerURL string
	Discover  bool

	Name       string
	STUNServer string
	Codec      string

	NegotiationTimeout time.Duration
}

// Options for loading config with CLI flag overrides
type Options struct {
	Server   string
	Discover bool
	Name     string
	STUN     string
	Codec    string
	Timeout  time.Duration
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	// Server: CLI flag > env > default. Discovery only replaces the default.
	server := firstNonEmpty(opts.Server, os.Getenv("SERVER_URL"))
	if server == "" && !opts.Discover {
		server = DefaultServer
	}
	if server != "" {
		normalized, err := NormalizeServerURL(server)
		if err != nil {
			return nil, err
		}
		server = normalized
	}

	name := firstNonEmpty(opts.Name, os.Getenv("PEER_NAME"))
	if name == "" {
		name = names.Peer()
	}

	stun := firstNonEmpty(opts.STUN, os.Getenv("STUN_SERVER"), DefaultSTUN)

	codec := firstNonEmpty(opts.Codec, os.Getenv("CODEC"), DefaultCodec)
	if _, err := protocol.CodecByName(codec); err != nil {
		return nil, err
	}

	timeout := opts.Timeout
	if timeout == 0 {
		if v := os.Getenv("NEGOTIATION_TIMEOUT"); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return nil, fmt.Errorf("invalid NEGOTIATION_TIMEOUT %q: %w", v, err)
			}
			timeout = d
		}
	}
	if timeout <= 0 {
		timeout = peer.DefaultNegotiationTimeout
	}

	return &Config{
		ServerURL:          server,
		Discover:           opts.Discover,
		Name:               name,
		STUNServer:         stun,
		Codec:              codec,
		NegotiationTimeout: timeout,
	}, nil
}

// GetSTUNServers returns STUN server URLs. "none" disables STUN entirely,
// which keeps transfers on the local network.
func (c *Config) GetSTUNServers() []string {
	if c.STUNServer == "" || strings.EqualFold(c.STUNServer, "none") {
		return nil
	}
	return strings.Split(c.STUNServer, ",")
}

// NormalizeServerURL turns what a user is likely to type into a websocket
// URL: http(s) schemes become ws(s), and a bare host gets wss:// and /ws.
func NormalizeServerURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("server URL cannot be empty")
	}
	if !strings.Contains(raw, "://") {
		raw = "wss://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid server URL %q: %w", raw, err)
	}

	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server URL scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("server URL %q has no host", raw)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	return u.String(), nil
}

// RelayConfig holds relay process configuration
type RelayConfig struct {
	Port int
	MDNS bool
}

// Addr is the listen address for the relay's HTTP server.
func (c *RelayConfig) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// LoadRelay reads the relay configuration from the environment.
func LoadRelay() (*RelayConfig, error) {
	cfg := &RelayConfig{Port: DefaultRelayPort}

	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return nil, fmt.Errorf("invalid PORT %q", v)
		}
		cfg.Port = port
	}

	if v := os.Getenv("MDNS"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid MDNS %q: %w", v, err)
		}
		cfg.MDNS = enabled
	}

	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
