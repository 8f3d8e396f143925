package protocol

// Message defines the structure for all websocket frames exchanged between
// clients and the relay. Only the fields relevant to Type are set.
type Message struct {
	Type string `json:"type" msgpack:"type"`

	// ID is the peer id assigned by the relay (welcome) or the id of a
	// departing peer (peer-left).
	ID string `json:"id,omitempty" msgpack:"id,omitempty"`

	Room  string            `json:"room,omitempty" msgpack:"room,omitempty"`
	Meta  map[string]string `json:"meta,omitempty" msgpack:"meta,omitempty"`
	Peers []Peer            `json:"peers,omitempty" msgpack:"peers,omitempty"`
	Peer  *Peer             `json:"peer,omitempty" msgpack:"peer,omitempty"`

	// To is set by the sending client, From is stamped by the relay.
	To     string  `json:"to,omitempty" msgpack:"to,omitempty"`
	From   string  `json:"from,omitempty" msgpack:"from,omitempty"`
	Signal Payload `json:"signal,omitempty" msgpack:"signal,omitempty"`

	Error string `json:"error,omitempty" msgpack:"error,omitempty"`
}

// Message type constants.
const (
	MessageTypeJoinRoom  = "join-room"
	MessageTypeLeaveRoom = "leave-room"
	MessageTypeSignal    = "signal"

	MessageTypeWelcome    = "welcome"
	MessageTypePeers      = "peers"
	MessageTypePeerJoined = "peer-joined"
	MessageTypePeerLeft   = "peer-left"
	MessageTypeError      = "error"
)

// MetaName is the metadata key holding a peer's display name.
const MetaName = "name"

// Peer is a room member as seen by other members.
type Peer struct {
	ID   string            `json:"id" msgpack:"id"`
	Meta map[string]string `json:"meta,omitempty" msgpack:"meta,omitempty"`
}

// Name returns the display name from the peer's metadata, falling back to its id.
func (p Peer) Name() string {
	if name := p.Meta[MetaName]; name != "" {
		return name
	}
	return p.ID
}

// NewJoin builds a join-room request.
func NewJoin(room string, meta map[string]string) *Message {
	return &Message{Type: MessageTypeJoinRoom, Room: room, Meta: meta}
}

// NewLeave builds a leave-room request.
func NewLeave(room string) *Message {
	return &Message{Type: MessageTypeLeaveRoom, Room: room}
}

// NewSignal builds a signal envelope addressed to a peer.
func NewSignal(to string, sig Signal) *Message {
	return &Message{Type: MessageTypeSignal, To: to, Signal: sig.Payload()}
}

// NewError builds an error notice.
func NewError(msg string) *Message {
	return &Message{Type: MessageTypeError, Error: msg}
}
