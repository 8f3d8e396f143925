package signaling

import (
	"log/slog"

	"github.com/meetcreator/roomdrop/internal/protocol"
)

// PeersEvent is the membership snapshot received after joining a room.
type PeersEvent struct {
	Room  string
	Peers []protocol.Peer
}

// PresenceEvent reports a peer joining or leaving a room we are in.
type PresenceEvent struct {
	Room   string
	Peer   protocol.Peer
	Joined bool
}

// SignalEvent is a negotiation payload forwarded by the relay.
type SignalEvent struct {
	From   string
	Signal protocol.Signal
}

// Handler routes incoming relay frames to typed channels.
type Handler struct {
	client   *Client
	Welcome  chan string
	Peers    chan PeersEvent
	Presence chan PresenceEvent
	Signal   chan SignalEvent
	Error    chan string
	done     chan struct{}
}

// NewHandler creates a handler for client's incoming frames.
func NewHandler(client *Client) *Handler {
	return &Handler{
		client:   client,
		Welcome:  make(chan string, 1),
		Peers:    make(chan PeersEvent, 4),
		Presence: make(chan PresenceEvent, 32),
		Signal:   make(chan SignalEvent, 32),
		Error:    make(chan string, 4),
		done:     make(chan struct{}),
	}
}

// Start routes frames until the relay connection drops.
func (h *Handler) Start() {
	defer close(h.done)

	for msg := range h.client.Incoming() {
		switch msg.Type {
		case protocol.MessageTypeWelcome:
			offer(h.Welcome, msg.ID, msg.Type)

		case protocol.MessageTypePeers:
			offer(h.Peers, PeersEvent{Room: msg.Room, Peers: msg.Peers}, msg.Type)

		case protocol.MessageTypePeerJoined:
			if msg.Peer == nil {
				slog.Warn("peer-joined without peer", "room", msg.Room)
				continue
			}
			h.deliverPresence(PresenceEvent{Room: msg.Room, Peer: *msg.Peer, Joined: true})

		case protocol.MessageTypePeerLeft:
			h.deliverPresence(PresenceEvent{Room: msg.Room, Peer: protocol.Peer{ID: msg.ID}})

		case protocol.MessageTypeSignal:
			h.handleSignal(msg)

		case protocol.MessageTypeError:
			offer(h.Error, msg.Error, msg.Type)

		default:
			slog.Debug("ignoring relay frame", "type", msg.Type)
		}
	}
}

// Done is closed once the relay connection has dropped and every frame has
// been routed.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}

// handleSignal validates the envelope and hands it on. Signals are never
// dropped for lack of buffer space; the consumer is expected to keep up.
func (h *Handler) handleSignal(msg *protocol.Message) {
	if len(msg.Signal) == 0 || msg.From == "" {
		slog.Warn("dropping signal without sender or payload")
		return
	}
	sig, err := msg.Signal.Decode()
	if err == nil {
		err = sig.Validate()
	}
	if err != nil {
		slog.Warn("dropping invalid signal", "from", msg.From, "kind", msg.Signal.Kind(), "error", err)
		return
	}

	select {
	case h.Signal <- SignalEvent{From: msg.From, Signal: sig}:
	case <-h.client.done:
	}
}

// deliverPresence blocks like handleSignal: a dropped join or leave would
// leave the consumer's view of the room wrong until the next snapshot.
func (h *Handler) deliverPresence(ev PresenceEvent) {
	select {
	case h.Presence <- ev:
	case <-h.client.done:
	}
}

func offer[T any](ch chan T, v T, kind string) {
	select {
	case ch <- v:
	default:
		slog.Warn("relay event dropped, nobody listening", "type", kind)
	}
}
