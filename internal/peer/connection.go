package peer

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/meetcreator/roomdrop/internal/protocol"
	"github.com/meetcreator/roomdrop/internal/transfer"
)

// connection is one attempt to reach one remote peer, from reservation to
// teardown.
type connection struct {
	s      *Session
	remote string
	role   Role

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	conn        Conn
	channel     transfer.Channel
	asm         *transfer.Assembler
	state       NegotiationState
	chState     ChannelState
	remoteSet   bool
	remoteQueue []protocol.Candidate
	localSent   bool
	localQueue  []protocol.Candidate
	received    int
	closed      bool

	opened    chan struct{}
	openOnce  sync.Once
	done      chan struct{}
	closeOnce sync.Once
	err       error
}

func newConnection(ctx context.Context, s *Session, remote string, role Role) *connection {
	ctx, cancel := context.WithCancel(ctx)
	c := &connection{
		s:      s,
		remote: remote,
		role:   role,
		ctx:    ctx,
		cancel: cancel,
		state:  NegotiationAwaitingAccept,
		opened: make(chan struct{}),
		done:   make(chan struct{}),
	}
	if role == RoleCaller {
		c.state = NegotiationOffering
	}
	return c
}

func (c *connection) info() Info {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Info{Remote: c.remote, Role: c.role, Negotiation: c.state, Channel: c.chState}
}

func (c *connection) setState(st NegotiationState) {
	c.mu.Lock()
	if !c.closed {
		c.state = st
	}
	c.mu.Unlock()
}

// attach binds conn to the connection. It reports false, after closing conn,
// if the connection was torn down in the meantime.
func (c *connection) attach(conn Conn) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return false
	}
	c.conn = conn
	c.mu.Unlock()

	conn.OnCandidate(c.localCandidate)
	conn.OnStateChange(func(st ConnState) {
		slog.Debug("connection state changed", "peer", c.remote, "state", st)
		switch st {
		case ConnStateDisconnected, ConnStateFailed, ConnStateClosed:
			go c.teardown(transfer.WrapError("connection", transfer.ErrPeerDisconnected, st.String()))
		}
	})
	return true
}

// localCandidate forwards a gathered candidate, holding it back until our
// offer or answer has been sent so the remote side has a connection to
// apply it to.
func (c *connection) localCandidate(cand protocol.Candidate) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if !c.localSent {
		c.localQueue = append(c.localQueue, cand)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.sendCandidate(cand)
}

func (c *connection) localDescriptionSent() {
	c.mu.Lock()
	c.localSent = true
	queued := c.localQueue
	c.localQueue = nil
	c.mu.Unlock()

	for _, cand := range queued {
		c.sendCandidate(cand)
	}
}

func (c *connection) sendCandidate(cand protocol.Candidate) {
	if err := c.s.cfg.Signaler.SendSignal(c.remote, protocol.NewCandidate(cand)); err != nil {
		slog.Warn("failed to send candidate", "peer", c.remote, "error", err)
	}
}

// addCandidate applies a remote candidate, queueing it until the remote
// description is in place.
func (c *connection) addCandidate(cand protocol.Candidate) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.conn == nil || !c.remoteSet {
		c.remoteQueue = append(c.remoteQueue, cand)
		c.mu.Unlock()
		return
	}
	conn := c.conn
	c.mu.Unlock()

	if err := conn.AddCandidate(cand); err != nil {
		slog.Warn("discarding candidate", "peer", c.remote, "error", err)
	}
}

func (c *connection) remoteDescriptionSet() {
	c.mu.Lock()
	c.remoteSet = true
	queued := c.remoteQueue
	c.remoteQueue = nil
	conn := c.conn
	c.mu.Unlock()

	for _, cand := range queued {
		if err := conn.AddCandidate(cand); err != nil {
			slog.Warn("discarding queued candidate", "peer", c.remote, "error", err)
		}
	}
}

func (c *connection) applyAnswer(sdp string) {
	c.mu.Lock()
	if c.closed || c.role != RoleCaller || c.conn == nil || c.remoteSet {
		c.mu.Unlock()
		slog.Warn("discarding unexpected answer", "peer", c.remote)
		return
	}
	conn := c.conn
	c.mu.Unlock()

	if err := conn.SetRemoteDescription(protocol.SignalAnswer, sdp); err != nil {
		c.teardown(transfer.WrapError("apply answer", transfer.ErrNegotiation, err.Error()))
		return
	}
	c.remoteDescriptionSet()
}

// answer runs the callee side: consult Accept, then apply the offer and
// reply with an answer.
func (c *connection) answer(offer string) {
	cfg := c.s.cfg

	if cfg.Accept != nil && !cfg.Accept(c.ctx, c.remote) {
		if c.ctx.Err() != nil {
			return
		}
		slog.Info("declining offer", "peer", c.remote)
		if err := cfg.Signaler.SendSignal(c.remote, protocol.NewReject("declined")); err != nil {
			slog.Warn("failed to send reject", "peer", c.remote, "error", err)
		}
		c.teardown(transfer.NewError("answer", transfer.ErrDeclined))
		return
	}
	if c.ctx.Err() != nil {
		return
	}

	conn, err := cfg.NewConn()
	if err != nil {
		c.teardown(transfer.WrapError("create connection", transfer.ErrNegotiation, err.Error()))
		return
	}
	if !c.attach(conn) {
		return
	}
	conn.OnChannel(c.attachReceiver)

	if err := conn.SetRemoteDescription(protocol.SignalOffer, offer); err != nil {
		c.teardown(transfer.WrapError("apply offer", transfer.ErrNegotiation, err.Error()))
		return
	}
	c.remoteDescriptionSet()

	sdp, err := conn.CreateAnswer()
	if err != nil {
		c.teardown(transfer.WrapError("create answer", transfer.ErrNegotiation, err.Error()))
		return
	}
	c.setState(NegotiationAnswering)
	if err := cfg.Signaler.SendSignal(c.remote, protocol.NewAnswer(sdp)); err != nil {
		c.teardown(transfer.WrapError("send answer", transfer.ErrNegotiation, err.Error()))
		return
	}
	c.localDescriptionSent()

	select {
	case <-c.opened:
	case <-c.done:
	case <-cfg.Clock.After(cfg.NegotiationTimeout):
		slog.Warn("negotiation timed out", "peer", c.remote, "after", cfg.NegotiationTimeout)
		c.bye("timeout")
		c.teardown(transfer.WrapError("connect", transfer.ErrTimeout, "data channel did not open in time"))
	}
}

// attachReceiver wires the channel surfaced by the caller to an assembler.
func (c *connection) attachReceiver(ch transfer.Channel) {
	if ch.Label() != transfer.Label {
		slog.Warn("unexpected channel label", "peer", c.remote, "label", ch.Label())
	}

	cfg := c.s.cfg
	asm := transfer.NewAssembler(func(art transfer.Artifact) {
		c.mu.Lock()
		c.received++
		c.mu.Unlock()
		if cfg.OnArtifact != nil {
			cfg.OnArtifact(c.remote, art)
		}
	})
	if cfg.OnProgress != nil {
		asm.OnProgress(func(received, total int64) {
			cfg.OnProgress(c.remote, received, total)
		})
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		ch.Close()
		return
	}
	c.asm = asm
	c.mu.Unlock()

	ch.OnMessage(asm.HandleFrame)
	c.watchChannel(ch)
}

func (c *connection) watchChannel(ch transfer.Channel) {
	c.mu.Lock()
	c.channel = ch
	if c.chState == ChannelNone {
		c.chState = ChannelConnecting
	}
	c.mu.Unlock()

	ch.OnOpen(func() {
		c.mu.Lock()
		if !c.closed {
			c.state = NegotiationConnected
			c.chState = ChannelOpen
		}
		c.mu.Unlock()
		slog.Debug("channel open", "peer", c.remote, "label", ch.Label())
		c.openOnce.Do(func() { close(c.opened) })
	})
	ch.OnClose(func() {
		go c.teardown(transfer.NewError("channel", transfer.ErrChannelClosed))
	})
}

// bye tells the remote peer we are hanging up. Delivery is best effort.
func (c *connection) bye(reason string) {
	if err := c.s.cfg.Signaler.SendSignal(c.remote, protocol.NewBye(reason)); err != nil {
		slog.Debug("failed to send bye", "peer", c.remote, "error", err)
	}
}

// teardown closes everything belonging to the connection exactly once and
// frees the session's slot. A callee that already delivered a file treats
// the remote hanging up as success.
func (c *connection) teardown(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		if err != nil && c.role == RoleCallee && c.received > 0 && remoteHangup(err) {
			err = nil
		}
		c.closed = true
		c.state = NegotiationClosed
		c.chState = ChannelClosed
		c.err = err
		ch, conn, asm, received := c.channel, c.conn, c.asm, c.received
		c.mu.Unlock()

		c.cancel()
		if asm != nil && asm.Reset() {
			slog.Warn("discarding partially received file", "peer", c.remote)
		}
		if ch != nil {
			ch.Close()
		}
		if conn != nil {
			conn.Close()
		}
		c.s.release(c)

		if err != nil {
			slog.Info("connection closed", "peer", c.remote, "role", c.role, "error", err)
		} else {
			slog.Debug("connection closed", "peer", c.remote, "role", c.role)
		}
		close(c.done)

		if c.s.cfg.OnClosed != nil {
			c.s.cfg.OnClosed(Result{Remote: c.remote, Role: c.role, Received: received, Err: err})
		}
	})
}

// wait blocks until teardown has finished and returns its error.
func (c *connection) wait() error {
	<-c.done
	return c.err
}

func remoteHangup(err error) bool {
	return errors.Is(err, transfer.ErrPeerDisconnected) || errors.Is(err, transfer.ErrChannelClosed)
}
