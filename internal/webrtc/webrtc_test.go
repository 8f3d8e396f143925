package webrtc

import (
	"bytes"
	"context"
	"testing"
	"time"

	pion "github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meetcreator/roomdrop/internal/peer"
	"github.com/meetcreator/roomdrop/internal/protocol"
	"github.com/meetcreator/roomdrop/internal/transfer"
)

// linkedSignaler delivers signals to another session in order, the way
// the relay would.
type linkedSignaler struct {
	from   string
	target **peer.Session
	queue  chan func()
}

func link(from string, target **peer.Session) *linkedSignaler {
	s := &linkedSignaler{from: from, target: target, queue: make(chan func(), 256)}
	go func() {
		for f := range s.queue {
			f()
		}
	}()
	return s
}

func (s *linkedSignaler) SendSignal(to string, sig protocol.Signal) error {
	s.queue <- func() { (*s.target).HandleSignal(s.from, sig) }
	return nil
}

func TestConnStateMapping(t *testing.T) {
	assert.Equal(t, peer.ConnStateConnected, connState(pion.PeerConnectionStateConnected))
	assert.Equal(t, peer.ConnStateFailed, connState(pion.PeerConnectionStateFailed))
	assert.Equal(t, peer.ConnStateDisconnected, connState(pion.PeerConnectionStateDisconnected))
	assert.Equal(t, peer.ConnStateClosed, connState(pion.PeerConnectionStateClosed))
	assert.Equal(t, peer.ConnStateNew, connState(pion.PeerConnectionStateNew))
}

func TestSetRemoteDescriptionRejectsNonDescriptions(t *testing.T) {
	conn, err := NewAPI(Config{}).NewConn()
	require.NoError(t, err)
	defer conn.Close()

	err = conn.SetRemoteDescription(protocol.SignalBye, "v=0")
	assert.ErrorIs(t, err, protocol.ErrInvalidSignal)
}

func TestLoopbackTransfer(t *testing.T) {
	if testing.Short() {
		t.Skip("opens real peer connections")
	}

	api := NewAPI(Config{})
	var alice, bob *peer.Session
	artifacts := make(chan transfer.Artifact, 1)

	alice = peer.NewSession(peer.Config{
		Signaler:           link("alice", &bob),
		NewConn:            api.NewConn,
		NegotiationTimeout: 10 * time.Second,
		Sender:             transfer.SenderOptions{Grace: 200 * time.Millisecond},
	})
	bob = peer.NewSession(peer.Config{
		Signaler:           link("bob", &alice),
		NewConn:            api.NewConn,
		NegotiationTimeout: 10 * time.Second,
		OnArtifact: func(_ string, art transfer.Artifact) {
			artifacts <- art
		},
	})
	t.Cleanup(func() {
		alice.Close()
		bob.Close()
	})

	data := bytes.Repeat([]byte("0123456789abcdef"), 20*1024)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	err := alice.Call(ctx, "bob", transfer.Source{
		Name:   "blob.bin",
		Size:   int64(len(data)),
		Reader: bytes.NewReader(data),
	})
	require.NoError(t, err)

	select {
	case art := <-artifacts:
		assert.Equal(t, "blob.bin", art.Name)
		assert.Equal(t, data, art.Data)
	case <-time.After(5 * time.Second):
		t.Fatal("receiver produced no artifact")
	}
}
