package relay

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/meetcreator/roomdrop/internal/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. SDP with trickled
	// candidates stays well below this.
	maxMessageSize = 64 * 1024

	sendBufferSize = 256
)

// Client is the relay side of one websocket connection (a peer).
type Client struct {
	// ID is assigned on connect and never reused.
	ID string

	Hub   *Hub
	Conn  *websocket.Conn
	Codec protocol.Codec

	// Send is a buffered channel of outbound frames. Only the hub writes to
	// it and only WritePump reads from it.
	Send chan *protocol.Message
}

// NewClient wraps conn and assigns it a fresh peer id.
func NewClient(hub *Hub, conn *websocket.Conn, codec protocol.Codec) *Client {
	return &Client{
		ID:    uuid.NewString(),
		Hub:   hub,
		Conn:  conn,
		Codec: codec,
		Send:  make(chan *protocol.Message, sendBufferSize),
	}
}

// ReadPump pumps frames from the websocket connection to the hub.
//
// There is at most one reader per connection: everything is read from the
// goroutine running ReadPump.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("websocket read failed", "peer", c.ID, "error", err)
			}
			return
		}

		in := &Inbound{Client: c}
		var msg protocol.Message
		if err := c.Codec.Unmarshal(data, &msg); err != nil {
			in.Err = err
		} else {
			in.Message = &msg
		}

		if !c.Hub.dispatch(in) {
			return
		}
	}
}

// WritePump pumps frames from the hub to the websocket connection and keeps
// the connection alive with pings.
//
// There is at most one writer per connection: everything is written from the
// goroutine running WritePump.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := c.Codec.Marshal(msg)
			if err != nil {
				slog.Error("failed to encode frame", "peer", c.ID, "type", msg.Type, "error", err)
				continue
			}
			if err := c.Conn.WriteMessage(c.Codec.FrameType(), data); err != nil {
				slog.Debug("websocket write failed", "peer", c.ID, "error", err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
