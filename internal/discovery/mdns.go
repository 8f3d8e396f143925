package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/brutella/dnssd"
)

const (
	ServiceType = "_roomdrop._tcp"
	Domain      = "local"

	textPath    = "path"
	textVersion = "version"
)

var ErrNotFound = errors.New("no relay found on the local network")

// Relay is a relay instance seen on the LAN.
type Relay struct {
	Name    string
	Addr    net.IP
	Port    int
	Path    string
	Version string
}

// URL is the websocket endpoint of the relay.
func (r Relay) URL() string {
	path := r.Path
	if path == "" {
		path = "/ws"
	}
	return "ws://" + net.JoinHostPort(r.Addr.String(), strconv.Itoa(r.Port)) + path
}

// Announce advertises a relay listening on port until ctx is cancelled.
func Announce(ctx context.Context, name string, port int, version string) error {
	cfg := dnssd.Config{
		Name:   name,
		Type:   ServiceType,
		Domain: Domain,
		// The responder fills in the addresses of every interface.
		IPs:  nil,
		Text: map[string]string{textPath: "/ws", textVersion: version},
		Port: port,
	}

	service, err := dnssd.NewService(cfg)
	if err != nil {
		return fmt.Errorf("failed to create mDNS service: %w", err)
	}

	rp, err := dnssd.NewResponder()
	if err != nil {
		return fmt.Errorf("failed to create mDNS responder: %w", err)
	}

	if _, err := rp.Add(service); err != nil {
		return fmt.Errorf("failed to add mDNS service: %w", err)
	}

	slog.Info("announcing relay over mDNS", "name", name, "type", ServiceType, "port", port)
	if err := rp.Respond(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to respond to mDNS queries: %w", err)
	}
	return nil
}

// Lookup returns the first relay that answers before ctx expires.
func Lookup(ctx context.Context) (Relay, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	found := make(chan Relay, 1)
	add := func(e dnssd.BrowseEntry) {
		relay, ok := relayFromEntry(e)
		if !ok {
			return
		}
		select {
		case found <- relay:
		default:
		}
	}

	errc := make(chan error, 1)
	go func() {
		errc <- dnssd.LookupType(ctx, ServiceType+"."+Domain+".", add, func(dnssd.BrowseEntry) {})
	}()

	select {
	case relay := <-found:
		slog.Debug("found relay", "name", relay.Name, "url", relay.URL())
		return relay, nil
	case err := <-errc:
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return Relay{}, fmt.Errorf("mDNS lookup failed: %w", err)
		}
		return Relay{}, ErrNotFound
	case <-ctx.Done():
		return Relay{}, ErrNotFound
	}
}

func relayFromEntry(e dnssd.BrowseEntry) (Relay, bool) {
	if len(e.IPs) == 0 || e.Port == 0 {
		return Relay{}, false
	}

	addr := e.IPs[0]
	for _, ip := range e.IPs {
		if ip.To4() != nil {
			addr = ip
			break
		}
	}

	return Relay{
		Name:    e.Name,
		Addr:    addr,
		Port:    e.Port,
		Path:    e.Text[textPath],
		Version: e.Text[textVersion],
	}, true
}
