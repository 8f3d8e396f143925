package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/meetcreator/roomdrop/internal/config"
	"github.com/meetcreator/roomdrop/internal/discovery"
	"github.com/meetcreator/roomdrop/internal/peer"
	"github.com/meetcreator/roomdrop/internal/protocol"
	"github.com/meetcreator/roomdrop/internal/signaling"
	"github.com/meetcreator/roomdrop/internal/transfer"
	"github.com/meetcreator/roomdrop/internal/ui"
	"github.com/meetcreator/roomdrop/internal/webrtc"
)

const (
	discoveryTimeout = 5 * time.Second
	welcomeTimeout   = 10 * time.Second
	joinTimeout      = 10 * time.Second
)

var (
	ErrRelayClosed   = errors.New("relay connection closed")
	ErrRelayRejected = errors.New("relay rejected the request")
	ErrNoPeer        = errors.New("no matching peer in the room")
)

// ConnectionContext is one live relay connection with its routed events.
type ConnectionContext struct {
	Config  *config.Config
	Client  *signaling.Client
	Handler *signaling.Handler
	Self    string
	Room    string
	Roster  *Roster
}

// NewConnectionContext resolves the relay, connects, and waits for the
// relay to assign us an id.
func NewConnectionContext(ctx context.Context, cfg *config.Config) (*ConnectionContext, error) {
	serverURL := cfg.ServerURL
	if serverURL == "" {
		lookupCtx, cancel := context.WithTimeout(ctx, discoveryTimeout)
		relay, err := discovery.Lookup(lookupCtx)
		cancel()
		if err != nil {
			return nil, transfer.NewError("discover relay", err)
		}
		serverURL = relay.URL()
		slog.Info("using discovered relay", "name", relay.Name, "url", serverURL)
	}

	codec, err := protocol.CodecByName(cfg.Codec)
	if err != nil {
		return nil, transfer.NewError("select codec", err)
	}

	client := signaling.NewClient(serverURL, codec)
	if err := client.Connect(ctx); err != nil {
		return nil, transfer.NewError("connect to relay", err)
	}

	handler := signaling.NewHandler(client)
	go handler.Start()

	cc := &ConnectionContext{
		Config:  cfg,
		Client:  client,
		Handler: handler,
		Roster:  NewRoster(),
	}

	timer := time.NewTimer(welcomeTimeout)
	defer timer.Stop()

	select {
	case id := <-handler.Welcome:
		cc.Self = id
		slog.Debug("relay assigned id", "id", id)
		return cc, nil
	case <-handler.Done():
		cc.Close()
		return nil, transfer.NewError("connect to relay", ErrRelayClosed)
	case <-timer.C:
		cc.Close()
		return nil, transfer.WrapError("connect to relay", transfer.ErrTimeout, "no welcome from relay")
	case <-ctx.Done():
		cc.Close()
		return nil, ctx.Err()
	}
}

// JoinRoom joins room under our display name and returns the other members.
func (c *ConnectionContext) JoinRoom(ctx context.Context, room string) ([]protocol.Peer, error) {
	meta := map[string]string{protocol.MetaName: c.Config.Name}
	if err := c.Client.JoinRoom(room, meta); err != nil {
		return nil, transfer.NewError("join room", err)
	}

	timer := time.NewTimer(joinTimeout)
	defer timer.Stop()

	for {
		select {
		case ev := <-c.Handler.Peers:
			if ev.Room != room {
				continue
			}
			c.Room = room
			c.Roster.Reset(ev.Peers)
			return c.Roster.Others(c.Self), nil
		case msg := <-c.Handler.Error:
			return nil, transfer.WrapError("join room", ErrRelayRejected, msg)
		case <-c.Handler.Done():
			return nil, transfer.NewError("join room", ErrRelayClosed)
		case <-timer.C:
			return nil, transfer.WrapError("join room", transfer.ErrTimeout, "no reply from relay")
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// NewSession builds a peer session that signals through this relay
// connection.
func (c *ConnectionContext) NewSession(cfg peer.Config) *peer.Session {
	api := webrtc.NewAPI(webrtc.Config{
		STUNServers: c.Config.GetSTUNServers(),
		MDNS:        c.Config.Discover,
	})
	cfg.Signaler = c.Client
	cfg.NewConn = api.NewConn
	cfg.NegotiationTimeout = c.Config.NegotiationTimeout
	return peer.NewSession(cfg)
}

// Route feeds relay events to session and onPresence until ctx ends or the
// relay goes away. It returns ErrRelayClosed in the latter case.
func (c *ConnectionContext) Route(ctx context.Context, session *peer.Session, onPresence func(signaling.PresenceEvent)) error {
	for {
		select {
		case ev := <-c.Handler.Signal:
			session.HandleSignal(ev.From, ev.Signal)
		case ev := <-c.Handler.Presence:
			if ev.Room != c.Room {
				continue
			}
			if ev.Joined {
				c.Roster.Add(ev.Peer)
			} else {
				c.Roster.Remove(ev.Peer.ID)
			}
			if onPresence != nil {
				onPresence(ev)
			}
		case msg := <-c.Handler.Error:
			slog.Warn("relay reported an error", "error", msg)
		case <-c.Handler.Done():
			return ErrRelayClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *ConnectionContext) Close() {
	if c.Client != nil {
		c.Client.Close()
	}
}

// Roster tracks the members of the room we are in.
type Roster struct {
	mu    sync.Mutex
	peers map[string]protocol.Peer
}

func NewRoster() *Roster {
	return &Roster{peers: make(map[string]protocol.Peer)}
}

func (r *Roster) Reset(peers []protocol.Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers = make(map[string]protocol.Peer, len(peers))
	for _, p := range peers {
		r.peers[p.ID] = p
	}
}

func (r *Roster) Add(p protocol.Peer) {
	r.mu.Lock()
	r.peers[p.ID] = p
	r.mu.Unlock()
}

func (r *Roster) Remove(id string) {
	r.mu.Lock()
	delete(r.peers, id)
	r.mu.Unlock()
}

// Others lists every member except self, ordered by name.
func (r *Roster) Others(self string) []protocol.Peer {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]protocol.Peer, 0, len(r.peers))
	for id, p := range r.peers {
		if id != self {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name() != out[j].Name() {
			return out[i].Name() < out[j].Name()
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Name returns the display name for id, or id itself if unknown.
func (r *Roster) Name(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.peers[id]; ok {
		return p.Name()
	}
	return id
}

// Resolve finds the peer a user meant by target, matching ids first and
// then display names. An empty target picks the only other member.
func (r *Roster) Resolve(self, target string) (protocol.Peer, error) {
	others := r.Others(self)

	if target == "" {
		switch len(others) {
		case 0:
			return protocol.Peer{}, ErrNoPeer
		case 1:
			return others[0], nil
		default:
			return protocol.Peer{}, fmt.Errorf("%d peers in the room, pick one with --to", len(others))
		}
	}

	for _, p := range others {
		if p.ID == target {
			return p, nil
		}
	}

	var matches []protocol.Peer
	for _, p := range others {
		if p.Name() == target {
			matches = append(matches, p)
		}
	}
	switch len(matches) {
	case 0:
		return protocol.Peer{}, fmt.Errorf("%w: %q", ErrNoPeer, target)
	case 1:
		return matches[0], nil
	default:
		return protocol.Peer{}, fmt.Errorf("name %q is ambiguous, use the peer id", target)
	}
}

func printPeers(peers []protocol.Peer, self string) {
	fmt.Fprintln(ui.Output, ui.PeerTableView(peers, self))
}
