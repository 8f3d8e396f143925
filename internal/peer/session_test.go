package peer

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meetcreator/roomdrop/internal/protocol"
	"github.com/meetcreator/roomdrop/internal/transfer"
	"github.com/meetcreator/roomdrop/internal/transfer/transfertest"
)

type recorder struct {
	mu        sync.Mutex
	artifacts []transfer.Artifact
	closed    chan Result
}

func newRecorder() *recorder {
	return &recorder{closed: make(chan Result, 8)}
}

func (r *recorder) artifact(_ string, art transfer.Artifact) {
	r.mu.Lock()
	r.artifacts = append(r.artifacts, art)
	r.mu.Unlock()
}

func (r *recorder) received() []transfer.Artifact {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]transfer.Artifact(nil), r.artifacts...)
}

func (r *recorder) result(t *testing.T) Result {
	t.Helper()
	select {
	case res := <-r.closed:
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("connection never closed")
		return Result{}
	}
}

type pair struct {
	sb         *switchboard
	net        *fakeNet
	alice, bob *Session
	bobRec     *recorder
}

func newPair(t *testing.T, accept AcceptFunc, sender transfer.SenderOptions) *pair {
	t.Helper()
	p := &pair{sb: newSwitchboard(), net: newFakeNet(), bobRec: newRecorder()}
	if sender.Grace == 0 {
		sender.Grace = -1
	}

	p.alice = NewSession(Config{
		Signaler:           p.sb.signaler("alice"),
		NewConn:            p.net.factory(),
		NegotiationTimeout: 2 * time.Second,
		Sender:             sender,
	})
	p.bob = NewSession(Config{
		Signaler:           p.sb.signaler("bob"),
		NewConn:            p.net.factory(),
		Accept:             accept,
		NegotiationTimeout: 2 * time.Second,
		OnArtifact:         p.bobRec.artifact,
		OnClosed:           func(r Result) { p.bobRec.closed <- r },
	})
	p.sb.attach("alice", p.alice)
	p.sb.attach("bob", p.bob)
	t.Cleanup(func() {
		p.alice.Close()
		p.bob.Close()
	})
	return p
}

func source(data []byte) transfer.Source {
	return transfer.Source{Name: "report.pdf", Size: int64(len(data)), Reader: bytes.NewReader(data)}
}

func TestCallTransfersFile(t *testing.T) {
	p := newPair(t, nil, transfer.SenderOptions{})
	data := bytes.Repeat([]byte("roomdrop"), 5*1024)

	require.NoError(t, p.alice.Call(context.Background(), "bob", source(data)))
	assert.False(t, p.alice.Active())

	res := p.bobRec.result(t)
	assert.NoError(t, res.Err)
	assert.Equal(t, RoleCallee, res.Role)
	assert.Equal(t, "alice", res.Remote)
	assert.Equal(t, 1, res.Received)

	arts := p.bobRec.received()
	require.Len(t, arts, 1)
	assert.Equal(t, "report.pdf", arts[0].Name)
	assert.Equal(t, data, arts[0].Data)
	assert.False(t, p.bob.Active())

	require.Len(t, p.sb.sent("alice", "bob", protocol.SignalOffer), 1)
	require.Len(t, p.sb.sent("bob", "alice", protocol.SignalAnswer), 1)
	assert.NotEmpty(t, p.sb.sent("alice", "bob", protocol.SignalCandidate))
	assert.NotEmpty(t, p.sb.sent("bob", "alice", protocol.SignalCandidate))
}

func TestCallAcceptSeesCaller(t *testing.T) {
	asked := make(chan string, 1)
	p := newPair(t, func(_ context.Context, from string) bool {
		asked <- from
		return true
	}, transfer.SenderOptions{})

	require.NoError(t, p.alice.Call(context.Background(), "bob", source([]byte("hi"))))
	assert.Equal(t, "alice", <-asked)
	assert.Len(t, p.bobRec.received(), 1)
}

func TestDeclinedCallFails(t *testing.T) {
	p := newPair(t, func(context.Context, string) bool { return false }, transfer.SenderOptions{})

	err := p.alice.Call(context.Background(), "bob", source([]byte("hi")))
	assert.ErrorIs(t, err, transfer.ErrDeclined)
	assert.False(t, p.alice.Active())

	rejects := p.sb.sent("bob", "alice", protocol.SignalReject)
	require.Len(t, rejects, 1)
	assert.Equal(t, "declined", rejects[0].Reason)
	assert.Empty(t, p.sb.sent("bob", "alice", protocol.SignalAnswer))

	res := p.bobRec.result(t)
	assert.ErrorIs(t, res.Err, transfer.ErrDeclined)
	assert.Empty(t, p.bobRec.received())
}

func TestUnansweredCallTimesOut(t *testing.T) {
	sb := newSwitchboard()
	clock := transfertest.NewClock()
	alice := NewSession(Config{
		Signaler:           sb.signaler("alice"),
		NewConn:            newFakeNet().factory(),
		NegotiationTimeout: 30 * time.Second,
		Clock:              clock,
	})

	errc := make(chan error, 1)
	go func() { errc <- alice.Call(context.Background(), "nobody", source([]byte("hi"))) }()
	require.Eventually(t, func() bool { return clock.Pending() == 1 }, time.Second, time.Millisecond)

	clock.Advance(29 * time.Second)
	assert.True(t, alice.Active())

	clock.Advance(time.Second)
	assert.ErrorIs(t, <-errc, transfer.ErrTimeout)
	assert.False(t, alice.Active())

	byes := sb.sent("alice", "nobody", protocol.SignalBye)
	require.Len(t, byes, 1)
	assert.Equal(t, "timeout", byes[0].Reason)
}

func TestSecondCallRejectedWhileActive(t *testing.T) {
	sb := newSwitchboard()
	alice := NewSession(Config{
		Signaler: sb.signaler("alice"),
		NewConn:  newFakeNet().factory(),
	})

	errc := make(chan error, 1)
	go func() { errc <- alice.Call(context.Background(), "nobody", source([]byte("one"))) }()
	require.Eventually(t, alice.Active, time.Second, time.Millisecond)

	err := alice.Call(context.Background(), "someone", source([]byte("two")))
	assert.ErrorIs(t, err, transfer.ErrConnectionActive)

	info, ok := alice.Info()
	require.True(t, ok)
	assert.Equal(t, "nobody", info.Remote)
	assert.Equal(t, RoleCaller, info.Role)

	alice.Close()
	assert.ErrorIs(t, <-errc, transfer.ErrCancelled)

	err = alice.Call(context.Background(), "nobody", source([]byte("three")))
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestOfferWhileBusyIsRejected(t *testing.T) {
	sb := newSwitchboard()
	alice := NewSession(Config{
		Signaler: sb.signaler("alice"),
		NewConn:  newFakeNet().factory(),
	})
	t.Cleanup(alice.Close)

	go alice.Call(context.Background(), "nobody", source([]byte("one")))
	require.Eventually(t, alice.Active, time.Second, time.Millisecond)

	alice.HandleSignal("carol", protocol.NewOffer("offer-99"))

	rejects := sb.sent("alice", "carol", protocol.SignalReject)
	require.Len(t, rejects, 1)
	assert.Equal(t, "busy", rejects[0].Reason)

	info, _ := alice.Info()
	assert.Equal(t, "nobody", info.Remote)
}

func TestCallCancelledByContext(t *testing.T) {
	sb := newSwitchboard()
	alice := NewSession(Config{
		Signaler: sb.signaler("alice"),
		NewConn:  newFakeNet().factory(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- alice.Call(ctx, "nobody", source([]byte("x"))) }()
	require.Eventually(t, alice.Active, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
	assert.Len(t, sb.sent("alice", "nobody", protocol.SignalBye), 1)
}

// The remote side is driven by hand so a candidate can arrive before the
// answer.
func TestCandidatesQueuedUntilAnswerApplied(t *testing.T) {
	sb := newSwitchboard()
	net := newFakeNet()
	alice := NewSession(Config{
		Signaler: sb.signaler("alice"),
		NewConn:  net.factory(),
		Clock:    transfertest.NewClock(),
	})
	t.Cleanup(alice.Close)

	go alice.Call(context.Background(), "bob", source([]byte("x")))
	require.Eventually(t, func() bool {
		return len(sb.sent("alice", "bob", protocol.SignalOffer)) == 1
	}, time.Second, time.Millisecond)

	cand := protocol.Candidate{Candidate: "candidate:7 1 udp 1 10.0.0.7 7000 typ host"}
	alice.HandleSignal("bob", protocol.NewCandidate(cand))
	alice.HandleSignal("mallory", protocol.NewCandidate(protocol.Candidate{Candidate: "candidate:bad"}))

	callerConn := net.conn(0)
	assert.Empty(t, callerConn.Candidates())

	// Stand up a callee connection so the answer can be applied.
	calleeConn, err := net.factory()()
	require.NoError(t, err)
	require.NoError(t, calleeConn.SetRemoteDescription(protocol.SignalOffer, sb.sent("alice", "bob", protocol.SignalOffer)[0].SDP))
	answer, err := calleeConn.CreateAnswer()
	require.NoError(t, err)

	alice.HandleSignal("bob", protocol.NewAnswer(answer))
	assert.Equal(t, []protocol.Candidate{cand}, callerConn.Candidates())

	info, ok := alice.Info()
	require.True(t, ok)
	assert.Equal(t, RoleCaller, info.Role)
}

func TestStrayCandidateWithoutConnectionIsIgnored(t *testing.T) {
	sb := newSwitchboard()
	alice := NewSession(Config{
		Signaler: sb.signaler("alice"),
		NewConn:  newFakeNet().factory(),
	})

	alice.HandleSignal("bob", protocol.NewCandidate(protocol.Candidate{Candidate: "candidate:1"}))
	alice.HandleSignal("bob", protocol.NewAnswer("answer-1-2"))
	alice.HandleSignal("bob", protocol.Signal{Kind: "wave"})

	assert.False(t, alice.Active())
	sb.mu.Lock()
	assert.Empty(t, sb.log)
	sb.mu.Unlock()
}

func TestFailureMidTransferDiscardsPartial(t *testing.T) {
	clock := transfertest.NewClock()
	p := newPair(t, nil, transfer.SenderOptions{Clock: clock})
	p.net.buffered = 1 << 20

	errc := make(chan error, 1)
	go func() { errc <- p.alice.Call(context.Background(), "bob", source(make([]byte, 64*1024))) }()

	require.Eventually(t, func() bool {
		c := p.net.conn(0)
		return c != nil && c.sentFrames() == 1
	}, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return clock.Pending() == 1 }, time.Second, time.Millisecond)

	p.net.conn(0).Fail()

	assert.ErrorIs(t, <-errc, transfer.ErrPeerDisconnected)

	// The callee sees either the failure or the channel closing first.
	res := p.bobRec.result(t)
	assert.True(t, errors.Is(res.Err, transfer.ErrPeerDisconnected) || errors.Is(res.Err, transfer.ErrChannelClosed), "got %v", res.Err)
	assert.Empty(t, p.bobRec.received())
	assert.False(t, p.bob.Active())
}

func TestByeTearsDownCallee(t *testing.T) {
	release := make(chan struct{})
	p := newPair(t, func(ctx context.Context, _ string) bool {
		select {
		case <-ctx.Done():
		case <-release:
		}
		return true
	}, transfer.SenderOptions{})
	defer close(release)

	p.bob.HandleSignal("alice", protocol.NewOffer("offer-0"))
	require.Eventually(t, p.bob.Active, time.Second, time.Millisecond)

	info, ok := p.bob.Info()
	require.True(t, ok)
	assert.Equal(t, NegotiationAwaitingAccept, info.Negotiation)

	p.bob.HandleSignal("alice", protocol.NewBye("cancelled"))

	res := p.bobRec.result(t)
	assert.ErrorIs(t, res.Err, transfer.ErrPeerDisconnected)
	assert.False(t, p.bob.Active())
	assert.Empty(t, p.sb.sent("bob", "alice", protocol.SignalAnswer))
}
