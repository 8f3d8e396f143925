package peer

import (
	"context"
	"time"

	"github.com/meetcreator/roomdrop/internal/protocol"
	"github.com/meetcreator/roomdrop/internal/transfer"
)

const DefaultNegotiationTimeout = 30 * time.Second

// Signaler delivers negotiation payloads to a remote peer, normally through
// the relay.
type Signaler interface {
	SendSignal(to string, sig protocol.Signal) error
}

// ConnState is the health of the underlying peer connection.
type ConnState int

const (
	ConnStateNew ConnState = iota
	ConnStateConnecting
	ConnStateConnected
	ConnStateDisconnected
	ConnStateFailed
	ConnStateClosed
)

func (s ConnState) String() string {
	switch s {
	case ConnStateNew:
		return "new"
	case ConnStateConnecting:
		return "connecting"
	case ConnStateConnected:
		return "connected"
	case ConnStateDisconnected:
		return "disconnected"
	case ConnStateFailed:
		return "failed"
	case ConnStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Conn is the negotiation primitive: one peer connection able to produce
// and consume session descriptions and candidates and to carry channels.
type Conn interface {
	CreateChannel(label string) (transfer.Channel, error)
	// CreateOffer and CreateAnswer apply the description locally and return
	// its SDP.
	CreateOffer() (string, error)
	CreateAnswer() (string, error)
	SetRemoteDescription(kind protocol.SignalKind, sdp string) error
	AddCandidate(c protocol.Candidate) error
	OnCandidate(f func(protocol.Candidate))
	OnChannel(f func(transfer.Channel))
	OnStateChange(f func(ConnState))
	Close() error
}

// ConnFactory creates a fresh Conn for each connection attempt.
type ConnFactory func() (Conn, error)

type Role int

const (
	RoleCaller Role = iota
	RoleCallee
)

func (r Role) String() string {
	if r == RoleCaller {
		return "caller"
	}
	return "callee"
}

// NegotiationState tracks the offer/answer exchange of one connection.
type NegotiationState int

const (
	NegotiationAwaitingAccept NegotiationState = iota
	NegotiationOffering
	NegotiationAnswering
	NegotiationConnected
	NegotiationClosed
)

func (s NegotiationState) String() string {
	switch s {
	case NegotiationAwaitingAccept:
		return "awaiting-accept"
	case NegotiationOffering:
		return "offering"
	case NegotiationAnswering:
		return "answering"
	case NegotiationConnected:
		return "connected"
	default:
		return "closed"
	}
}

type ChannelState int

const (
	ChannelNone ChannelState = iota
	ChannelConnecting
	ChannelOpen
	ChannelClosed
)

func (s ChannelState) String() string {
	switch s {
	case ChannelNone:
		return "none"
	case ChannelConnecting:
		return "connecting"
	case ChannelOpen:
		return "open"
	default:
		return "closed"
	}
}

// Info is a snapshot of the active connection.
type Info struct {
	Remote      string
	Role        Role
	Negotiation NegotiationState
	Channel     ChannelState
}

// Result reports how a connection ended. Err is nil for a completed
// transfer.
type Result struct {
	Remote   string
	Role     Role
	Received int
	Err      error
}

// AcceptFunc decides whether to answer an incoming offer. ctx is cancelled
// if the connection is torn down while the decision is pending.
type AcceptFunc func(ctx context.Context, from string) bool

type Config struct {
	Signaler Signaler
	NewConn  ConnFactory

	// Accept is consulted for every incoming offer. Nil accepts all.
	Accept             AcceptFunc
	NegotiationTimeout time.Duration
	// Clock times negotiation. Nil means the system clock.
	Clock transfer.Clock

	// Sender configures the outgoing pump. A zero Grace means
	// transfer.DefaultGrace.
	Sender transfer.SenderOptions

	OnArtifact func(from string, art transfer.Artifact)
	OnProgress func(from string, received, total int64)
	OnClosed   func(Result)
}
