package peer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/meetcreator/roomdrop/internal/protocol"
	"github.com/meetcreator/roomdrop/internal/transfer"
	"github.com/meetcreator/roomdrop/internal/transfer/transfertest"
)

// fakeNet links fake connections by the SDP they exchange. Applying an
// answer connects the caller's channel to the callee and opens it.
type fakeNet struct {
	mu       sync.Mutex
	offers   map[string]*fakeConn
	next     int
	buffered uint64
	conns    []*fakeConn
}

func newFakeNet() *fakeNet {
	return &fakeNet{offers: make(map[string]*fakeConn)}
}

func (n *fakeNet) conn(i int) *fakeConn {
	n.mu.Lock()
	defer n.mu.Unlock()
	if i >= len(n.conns) {
		return nil
	}
	return n.conns[i]
}

func (n *fakeNet) factory() ConnFactory {
	return func() (Conn, error) {
		n.mu.Lock()
		defer n.mu.Unlock()
		n.next++
		c := &fakeConn{net: n, id: n.next}
		n.conns = append(n.conns, c)
		return c, nil
	}
}

type fakeConn struct {
	net *fakeNet
	id  int

	mu         sync.Mutex
	local      *transfertest.Chan
	remoteEnd  *transfertest.Chan
	peer       *fakeConn
	remoteSet  bool
	candidates []protocol.Candidate
	closed     bool
	onCand     func(protocol.Candidate)
	onChannel  func(transfer.Channel)
	onState    func(ConnState)
}

func (c *fakeConn) CreateChannel(label string) (transfer.Channel, error) {
	a, b := transfertest.Pipe(label)
	a.SetBufferedAmount(c.net.buffered)
	c.mu.Lock()
	c.local, c.remoteEnd = a, b
	c.mu.Unlock()
	return a, nil
}

func (c *fakeConn) CreateOffer() (string, error) {
	sdp := fmt.Sprintf("offer-%d", c.id)
	c.net.mu.Lock()
	c.net.offers[sdp] = c
	c.net.mu.Unlock()
	c.gather()
	return sdp, nil
}

func (c *fakeConn) CreateAnswer() (string, error) {
	c.mu.Lock()
	peer := c.peer
	c.mu.Unlock()
	if peer == nil {
		return "", errors.New("no remote offer")
	}
	c.gather()
	return fmt.Sprintf("answer-%d-%d", c.id, peer.id), nil
}

// gather emits one host candidate, like an ICE agent would after the local
// description is set.
func (c *fakeConn) gather() {
	c.mu.Lock()
	f := c.onCand
	c.mu.Unlock()
	if f != nil {
		f(protocol.Candidate{Candidate: fmt.Sprintf("candidate:%d 1 udp 1 127.0.0.1 %d typ host", c.id, 5000+c.id)})
	}
}

func (c *fakeConn) SetRemoteDescription(kind protocol.SignalKind, sdp string) error {
	switch kind {
	case protocol.SignalOffer:
		c.net.mu.Lock()
		caller := c.net.offers[sdp]
		c.net.mu.Unlock()
		if caller == nil {
			return errors.New("unknown offer")
		}
		c.mu.Lock()
		c.peer = caller
		c.remoteSet = true
		c.mu.Unlock()
		return nil

	case protocol.SignalAnswer:
		var callee *fakeConn
		c.net.mu.Lock()
		for _, other := range c.net.conns {
			if other != c && other.peerIs(c) {
				callee = other
			}
		}
		c.net.mu.Unlock()
		if callee == nil {
			return errors.New("answer from nowhere")
		}

		c.mu.Lock()
		c.peer = callee
		c.remoteSet = true
		local, remote := c.local, c.remoteEnd
		c.mu.Unlock()

		callee.surface(remote)
		c.setState(ConnStateConnected)
		callee.setState(ConnStateConnected)
		local.Open()
		return nil
	}
	return errors.New("unsupported description")
}

func (c *fakeConn) peerIs(other *fakeConn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peer == other
}

func (c *fakeConn) surface(ch transfer.Channel) {
	c.mu.Lock()
	f := c.onChannel
	c.mu.Unlock()
	if f != nil {
		f(ch)
	}
}

func (c *fakeConn) setState(st ConnState) {
	c.mu.Lock()
	f := c.onState
	c.mu.Unlock()
	if f != nil {
		f(st)
	}
}

func (c *fakeConn) AddCandidate(cand protocol.Candidate) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.remoteSet {
		return errors.New("remote description not set")
	}
	c.candidates = append(c.candidates, cand)
	return nil
}

// sentFrames counts frames sent on the caller's channel end.
func (c *fakeConn) sentFrames() int {
	c.mu.Lock()
	local := c.local
	c.mu.Unlock()
	if local == nil {
		return 0
	}
	return len(local.Sent())
}

func (c *fakeConn) Candidates() []protocol.Candidate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Candidate(nil), c.candidates...)
}

func (c *fakeConn) OnCandidate(f func(protocol.Candidate)) {
	c.mu.Lock()
	c.onCand = f
	c.mu.Unlock()
}

func (c *fakeConn) OnChannel(f func(transfer.Channel)) {
	c.mu.Lock()
	c.onChannel = f
	c.mu.Unlock()
}

func (c *fakeConn) OnStateChange(f func(ConnState)) {
	c.mu.Lock()
	c.onState = f
	c.mu.Unlock()
}

// Fail simulates the network path dying under both ends.
func (c *fakeConn) Fail() {
	c.mu.Lock()
	peer := c.peer
	c.mu.Unlock()
	c.setState(ConnStateFailed)
	if peer != nil {
		peer.setState(ConnStateFailed)
	}
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	local := c.local
	c.mu.Unlock()
	if local != nil {
		local.Close()
	}
	return nil
}

type envelope struct {
	from, to string
	signal   protocol.Signal
}

// switchboard stands in for the relay: it records every signal and hands it
// to the addressed session, in order, on a per-session goroutine.
type switchboard struct {
	mu       sync.Mutex
	sessions map[string]chan envelope
	log      []envelope
}

func newSwitchboard() *switchboard {
	return &switchboard{sessions: make(map[string]chan envelope)}
}

func (sb *switchboard) attach(id string, s *Session) {
	ch := make(chan envelope, 256)
	sb.mu.Lock()
	sb.sessions[id] = ch
	sb.mu.Unlock()
	go func() {
		for env := range ch {
			s.HandleSignal(env.from, env.signal)
		}
	}()
}

func (sb *switchboard) signaler(from string) Signaler {
	return signalerFunc(func(to string, sig protocol.Signal) error {
		env := envelope{from: from, to: to, signal: sig}
		sb.mu.Lock()
		sb.log = append(sb.log, env)
		ch := sb.sessions[to]
		sb.mu.Unlock()
		if ch != nil {
			ch <- env
		}
		return nil
	})
}

// sent returns the signals of kind sent from one peer to another.
func (sb *switchboard) sent(from, to string, kind protocol.SignalKind) []protocol.Signal {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	var out []protocol.Signal
	for _, env := range sb.log {
		if env.from == from && env.to == to && env.signal.Kind == kind {
			out = append(out, env.signal)
		}
	}
	return out
}

type signalerFunc func(to string, sig protocol.Signal) error

func (f signalerFunc) SendSignal(to string, sig protocol.Signal) error {
	return f(to, sig)
}
