package relay

import (
	"context"
	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/meetcreator/roomdrop/internal/protocol"
)

// ForwardResult is the outcome of forwarding one signal. It is never sent
// back to the signalling peer; forwarding is fire-and-forget on the wire.
type ForwardResult int

const (
	Delivered ForwardResult = iota
	PeerNotFound
	// Dropped means the target is connected but its send buffer is full.
	Dropped
)

func (r ForwardResult) String() string {
	switch r {
	case Delivered:
		return "delivered"
	case PeerNotFound:
		return "peer-not-found"
	case Dropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Inbound is a frame read from a client, or the error decoding it.
type Inbound struct {
	Client  *Client
	Message *protocol.Message
	Err     error
}

// Stats is a point-in-time view of the hub.
type Stats struct {
	Clients int
	Rooms   int
}

// Hub is the central brain of the relay. A single goroutine (Run) owns the
// room registry and the client table, so no locking is needed around them.
type Hub struct {
	registry *Registry
	clients  map[string]*Client

	// Register and Unregister announce connection lifecycle events.
	Register   chan *Client
	Unregister chan *Client

	// Broadcast carries every frame read from any client.
	Broadcast chan *Inbound

	calls chan func()
	done  chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		registry:   NewRegistry(),
		clients:    make(map[string]*Client),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Broadcast:  make(chan *Inbound),
		calls:      make(chan func()),
		done:       make(chan struct{}),
	}
}

// Run processes hub events until ctx is cancelled. On exit every client's
// send channel is closed, which makes its write pump hang up.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		for id, c := range h.clients {
			delete(h.clients, id)
			close(c.Send)
		}
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.Register:
			h.clients[c.ID] = c
			slog.Info("client registered", "peer", c.ID, "codec", c.Codec.Name(), "addr", remoteAddr(c))
			h.deliver(c, &protocol.Message{Type: protocol.MessageTypeWelcome, ID: c.ID})

		case c := <-h.Unregister:
			h.remove(c)

		case in := <-h.Broadcast:
			h.handle(in)

		case f := <-h.calls:
			f()
		}
	}
}

// Serve registers conn with the hub and starts its read and write pumps.
// It returns nil if the hub has already stopped.
func (h *Hub) Serve(conn *websocket.Conn, codec protocol.Codec) *Client {
	c := NewClient(h, conn, codec)
	if !h.register(c) {
		conn.Close()
		return nil
	}

	go c.WritePump()
	go c.ReadPump()
	return c
}

// Forward delivers sig from one peer to another and reports what happened.
func (h *Hub) Forward(from, to string, payload protocol.Payload) ForwardResult {
	result := PeerNotFound
	h.call(func() { result = h.forward(from, to, payload) })
	return result
}

// Members returns the peers currently joined to room.
func (h *Hub) Members(room string) []protocol.Peer {
	var peers []protocol.Peer
	h.call(func() {
		for _, id := range h.registry.Members(room) {
			p, _ := h.registry.Peer(id)
			peers = append(peers, p)
		}
	})
	return peers
}

func (h *Hub) Stats() Stats {
	var s Stats
	h.call(func() {
		s = Stats{Clients: len(h.clients), Rooms: h.registry.RoomCount()}
	})
	return s
}

// register hands c to the hub. It reports false once the hub has stopped.
func (h *Hub) register(c *Client) bool {
	select {
	case h.Register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregister(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) dispatch(in *Inbound) bool {
	select {
	case h.Broadcast <- in:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) call(f func()) {
	finished := make(chan struct{})
	select {
	case h.calls <- func() { f(); close(finished) }:
		<-finished
	case <-h.done:
	}
}

func (h *Hub) handle(in *Inbound) {
	c := in.Client
	if h.clients[c.ID] != c {
		return
	}

	if in.Err != nil {
		slog.Warn("malformed frame", "peer", c.ID, "error", in.Err)
		h.deliver(c, protocol.NewError("malformed frame"))
		return
	}

	msg := in.Message
	switch msg.Type {
	case protocol.MessageTypeJoinRoom:
		h.join(c, msg.Room, msg.Meta)

	case protocol.MessageTypeLeaveRoom:
		h.leaveRoom(c, msg.Room)

	case protocol.MessageTypeSignal:
		if msg.To == "" || len(msg.Signal) == 0 {
			slog.Debug("signal without target or payload", "peer", c.ID)
			return
		}
		h.forward(c.ID, msg.To, msg.Signal)

	default:
		slog.Warn("unknown message type", "peer", c.ID, "type", msg.Type)
		h.deliver(c, protocol.NewError("unknown message type: "+msg.Type))
	}
}

func (h *Hub) join(c *Client, room string, meta map[string]string) {
	if room == "" {
		h.deliver(c, protocol.NewError("room name required"))
		return
	}

	others := h.registry.Join(c.ID, room, meta)
	slog.Info("peer joined room", "peer", c.ID, "room", room, "members", len(others)+1)

	h.deliver(c, &protocol.Message{
		Type:  protocol.MessageTypePeers,
		Room:  room,
		Peers: others,
	})

	self, _ := h.registry.Peer(c.ID)
	notice := &protocol.Message{
		Type: protocol.MessageTypePeerJoined,
		Room: room,
		Peer: &self,
	}
	for _, p := range others {
		if other, ok := h.clients[p.ID]; ok {
			h.deliver(other, notice)
		}
	}
}

func (h *Hub) leaveRoom(c *Client, room string) {
	remaining, ok := h.registry.LeaveRoom(c.ID, room)
	if !ok {
		return
	}
	slog.Info("peer left room", "peer", c.ID, "room", room)
	h.notifyLeft(c.ID, room, remaining)
}

func (h *Hub) forward(from, to string, payload protocol.Payload) ForwardResult {
	target, ok := h.clients[to]
	if !ok {
		slog.Debug("signal target not connected", "from", from, "to", to, "kind", payload.Kind())
		return PeerNotFound
	}

	result := h.deliver(target, &protocol.Message{
		Type:   protocol.MessageTypeSignal,
		From:   from,
		Signal: payload,
	})
	slog.Debug("signal forwarded", "from", from, "to", to, "kind", payload.Kind(), "result", result)
	return result
}

// remove drops c from the hub and tells every room it was in.
func (h *Hub) remove(c *Client) {
	if h.clients[c.ID] != c {
		return
	}
	delete(h.clients, c.ID)

	for room, remaining := range h.registry.Leave(c.ID) {
		slog.Info("peer left room", "peer", c.ID, "room", room)
		h.notifyLeft(c.ID, room, remaining)
	}

	slog.Info("client unregistered", "peer", c.ID, "addr", remoteAddr(c))
	close(c.Send)
}

func (h *Hub) notifyLeft(peerID, room string, remaining []string) {
	notice := &protocol.Message{
		Type: protocol.MessageTypePeerLeft,
		Room: room,
		ID:   peerID,
	}
	for _, id := range remaining {
		if other, ok := h.clients[id]; ok {
			h.deliver(other, notice)
		}
	}
}

// deliver queues msg for c without blocking the hub.
func (h *Hub) deliver(c *Client, msg *protocol.Message) ForwardResult {
	select {
	case c.Send <- msg:
		return Delivered
	default:
		slog.Warn("send buffer full, dropping frame", "peer", c.ID, "type", msg.Type)
		return Dropped
	}
}

func remoteAddr(c *Client) string {
	if c.Conn == nil {
		return ""
	}
	return c.Conn.RemoteAddr().String()
}
