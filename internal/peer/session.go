package peer

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/meetcreator/roomdrop/internal/protocol"
	"github.com/meetcreator/roomdrop/internal/transfer"
)

var ErrSessionClosed = errors.New("session closed")

// Session owns the client's single active connection. Signals from the
// relay are fed in through HandleSignal; outgoing transfers start with Call.
type Session struct {
	cfg Config

	mu     sync.Mutex
	active *connection
	closed bool
}

func NewSession(cfg Config) *Session {
	if cfg.NegotiationTimeout <= 0 {
		cfg.NegotiationTimeout = DefaultNegotiationTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = transfer.SystemClock
	}
	if cfg.Sender.Grace == 0 {
		cfg.Sender.Grace = transfer.DefaultGrace
	}
	return &Session{cfg: cfg}
}

// begin reserves the connection slot for remote.
func (s *Session) begin(ctx context.Context, remote string, role Role) (*connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.active != nil {
		return nil, transfer.ErrConnectionActive
	}
	c := newConnection(ctx, s, remote, role)
	s.active = c
	return c, nil
}

func (s *Session) release(c *connection) {
	s.mu.Lock()
	if s.active == c {
		s.active = nil
	}
	s.mu.Unlock()
}

// current returns the active connection if it belongs to remote.
func (s *Session) current(remote string) *connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil || s.active.remote != remote {
		return nil
	}
	return s.active
}

// Active reports whether a connection is in progress.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}

// Info describes the active connection, if any.
func (s *Session) Info() (Info, bool) {
	s.mu.Lock()
	c := s.active
	s.mu.Unlock()
	if c == nil {
		return Info{}, false
	}
	return c.info(), true
}

// Call connects to remote as the caller and sends src once the channel
// opens. It blocks until the transfer finishes or the connection is torn
// down.
func (s *Session) Call(ctx context.Context, remote string, src transfer.Source) error {
	if src.Reader == nil {
		return transfer.NewError("call", transfer.ErrNoSource)
	}

	c, err := s.begin(ctx, remote, RoleCaller)
	if err != nil {
		return transfer.NewError("call", err)
	}
	slog.Debug("calling", "peer", remote, "file", src.Name)

	conn, err := s.cfg.NewConn()
	if err != nil {
		c.teardown(transfer.WrapError("create connection", transfer.ErrNegotiation, err.Error()))
		return c.wait()
	}
	if !c.attach(conn) {
		return c.wait()
	}

	ch, err := conn.CreateChannel(transfer.Label)
	if err != nil {
		c.teardown(transfer.WrapError("create channel", transfer.ErrNegotiation, err.Error()))
		return c.wait()
	}
	c.watchChannel(ch)

	sdp, err := conn.CreateOffer()
	if err != nil {
		c.teardown(transfer.WrapError("create offer", transfer.ErrNegotiation, err.Error()))
		return c.wait()
	}
	c.setState(NegotiationOffering)
	if err := s.cfg.Signaler.SendSignal(remote, protocol.NewOffer(sdp)); err != nil {
		c.teardown(transfer.WrapError("send offer", transfer.ErrNegotiation, err.Error()))
		return c.wait()
	}
	c.localDescriptionSent()

	select {
	case <-c.opened:
	case <-s.cfg.Clock.After(s.cfg.NegotiationTimeout):
		slog.Warn("negotiation timed out", "peer", remote, "after", s.cfg.NegotiationTimeout)
		c.bye("timeout")
		c.teardown(transfer.WrapError("connect", transfer.ErrTimeout, "data channel did not open in time"))
		return c.wait()
	case <-c.done:
		return c.wait()
	case <-ctx.Done():
		c.bye("cancelled")
		c.teardown(transfer.NewError("connect", ctx.Err()))
		return c.wait()
	}

	sender := transfer.NewSender(ch, s.cfg.Sender)
	if err := sender.Send(c.ctx, src); err != nil {
		if ctx.Err() != nil {
			c.bye("cancelled")
		}
		c.teardown(err)
		return c.wait()
	}

	c.teardown(nil)
	return c.wait()
}

// HandleSignal applies a signal received from the relay.
func (s *Session) HandleSignal(from string, sig protocol.Signal) {
	if err := sig.Validate(); err != nil {
		slog.Warn("dropping signal", "peer", from, "error", err)
		return
	}

	if sig.Kind == protocol.SignalOffer {
		s.handleOffer(from, sig.SDP)
		return
	}

	c := s.current(from)
	if c == nil {
		slog.Debug("discarding signal for no active connection", "peer", from, "kind", sig.Kind)
		return
	}

	switch sig.Kind {
	case protocol.SignalAnswer:
		c.applyAnswer(sig.SDP)
	case protocol.SignalCandidate:
		c.addCandidate(*sig.Candidate)
	case protocol.SignalReject:
		slog.Info("peer declined", "peer", from, "reason", sig.Reason)
		c.teardown(transfer.WrapError("connect", transfer.ErrDeclined, sig.Reason))
	case protocol.SignalBye:
		slog.Info("peer hung up", "peer", from, "reason", sig.Reason)
		c.teardown(transfer.WrapError("connection", transfer.ErrPeerDisconnected, sig.Reason))
	}
}

func (s *Session) handleOffer(from, sdp string) {
	c, err := s.begin(context.Background(), from, RoleCallee)
	if err != nil {
		slog.Info("rejecting offer", "peer", from, "error", err)
		if errors.Is(err, transfer.ErrConnectionActive) {
			if err := s.cfg.Signaler.SendSignal(from, protocol.NewReject("busy")); err != nil {
				slog.Warn("failed to send reject", "peer", from, "error", err)
			}
		}
		return
	}
	go c.answer(sdp)
}

// Close tears down the active connection, tells the remote peer, and makes
// the session refuse new ones.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	c := s.active
	s.mu.Unlock()

	if c != nil {
		c.bye("closing")
		c.teardown(transfer.NewError("connection", transfer.ErrCancelled))
	}
}
