package webrtc

import (
	"fmt"

	"github.com/pion/ice/v4"
	pion "github.com/pion/webrtc/v4"

	"github.com/meetcreator/roomdrop/internal/peer"
	"github.com/meetcreator/roomdrop/internal/protocol"
	"github.com/meetcreator/roomdrop/internal/transfer"
)

// Config holds the ICE settings shared by every connection.
type Config struct {
	STUNServers []string
	// MDNS hides host addresses behind .local names and resolves the
	// peer's, which keeps LAN transfers working without STUN.
	MDNS bool
}

// API creates pion peer connections. One API is shared by all connections
// of a process.
type API struct {
	api *pion.API
	cfg Config
}

func NewAPI(cfg Config) *API {
	settings := pion.SettingEngine{}
	if cfg.MDNS {
		settings.SetICEMulticastDNSMode(ice.MulticastDNSModeQueryAndGather)
	} else {
		settings.SetICEMulticastDNSMode(ice.MulticastDNSModeDisabled)
	}

	return &API{
		api: pion.NewAPI(pion.WithSettingEngine(settings)),
		cfg: cfg,
	}
}

// NewConn creates a fresh peer connection. It has the signature of
// peer.ConnFactory.
func (a *API) NewConn() (peer.Conn, error) {
	var servers []pion.ICEServer
	if len(a.cfg.STUNServers) > 0 {
		servers = append(servers, pion.ICEServer{URLs: a.cfg.STUNServers})
	}

	pc, err := a.api.NewPeerConnection(pion.Configuration{ICEServers: servers})
	if err != nil {
		return nil, transfer.NewError("create peer connection", err)
	}
	return &Conn{pc: pc}, nil
}

// Conn adapts a pion PeerConnection to peer.Conn.
type Conn struct {
	pc *pion.PeerConnection
}

// CreateChannel opens an ordered, reliable data channel.
func (c *Conn) CreateChannel(label string) (transfer.Channel, error) {
	ordered := true
	dc, err := c.pc.CreateDataChannel(label, &pion.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return nil, transfer.NewError("create data channel", err)
	}
	return &Channel{dc: dc}, nil
}

// CreateOffer uses trickle ICE: it does not wait for gathering.
func (c *Conn) CreateOffer() (string, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return "", transfer.NewError("create offer", err)
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return "", transfer.NewError("set local description", err)
	}
	return offer.SDP, nil
}

func (c *Conn) CreateAnswer() (string, error) {
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return "", transfer.NewError("create answer", err)
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return "", transfer.NewError("set local description", err)
	}
	return answer.SDP, nil
}

func (c *Conn) SetRemoteDescription(kind protocol.SignalKind, sdp string) error {
	var typ pion.SDPType
	switch kind {
	case protocol.SignalOffer:
		typ = pion.SDPTypeOffer
	case protocol.SignalAnswer:
		typ = pion.SDPTypeAnswer
	default:
		return transfer.WrapError("set remote description", protocol.ErrInvalidSignal, fmt.Sprintf("kind %q", kind))
	}
	if err := c.pc.SetRemoteDescription(pion.SessionDescription{Type: typ, SDP: sdp}); err != nil {
		return transfer.NewError("set remote description", err)
	}
	return nil
}

func (c *Conn) AddCandidate(cand protocol.Candidate) error {
	return c.pc.AddICECandidate(pion.ICECandidateInit{
		Candidate:        cand.Candidate,
		SDPMid:           cand.SDPMid,
		SDPMLineIndex:    cand.SDPMLineIndex,
		UsernameFragment: cand.UsernameFragment,
	})
}

// OnCandidate reports local candidates. The end-of-gathering marker is
// swallowed.
func (c *Conn) OnCandidate(f func(protocol.Candidate)) {
	c.pc.OnICECandidate(func(ic *pion.ICECandidate) {
		if ic == nil {
			return
		}
		init := ic.ToJSON()
		f(protocol.Candidate{
			Candidate:        init.Candidate,
			SDPMid:           init.SDPMid,
			SDPMLineIndex:    init.SDPMLineIndex,
			UsernameFragment: init.UsernameFragment,
		})
	})
}

func (c *Conn) OnChannel(f func(transfer.Channel)) {
	c.pc.OnDataChannel(func(dc *pion.DataChannel) {
		f(&Channel{dc: dc})
	})
}

func (c *Conn) OnStateChange(f func(peer.ConnState)) {
	c.pc.OnConnectionStateChange(func(s pion.PeerConnectionState) {
		f(connState(s))
	})
}

func (c *Conn) Close() error {
	return c.pc.Close()
}

func connState(s pion.PeerConnectionState) peer.ConnState {
	switch s {
	case pion.PeerConnectionStateConnecting:
		return peer.ConnStateConnecting
	case pion.PeerConnectionStateConnected:
		return peer.ConnStateConnected
	case pion.PeerConnectionStateDisconnected:
		return peer.ConnStateDisconnected
	case pion.PeerConnectionStateFailed:
		return peer.ConnStateFailed
	case pion.PeerConnectionStateClosed:
		return peer.ConnStateClosed
	default:
		return peer.ConnStateNew
	}
}

// Channel adapts a pion DataChannel to transfer.Channel.
type Channel struct {
	dc *pion.DataChannel
}

func (c *Channel) Label() string { return c.dc.Label() }

func (c *Channel) IsOpen() bool {
	return c.dc.ReadyState() == pion.DataChannelStateOpen
}

func (c *Channel) Send(data []byte) error     { return c.dc.Send(data) }
func (c *Channel) SendText(text string) error { return c.dc.SendText(text) }
func (c *Channel) BufferedAmount() uint64     { return c.dc.BufferedAmount() }

func (c *Channel) SetBufferedAmountLowThreshold(th uint64) {
	c.dc.SetBufferedAmountLowThreshold(th)
}

func (c *Channel) OnBufferedAmountLow(f func()) { c.dc.OnBufferedAmountLow(f) }
func (c *Channel) OnOpen(f func())              { c.dc.OnOpen(f) }
func (c *Channel) OnClose(f func())             { c.dc.OnClose(f) }

func (c *Channel) OnMessage(f func(transfer.Frame)) {
	c.dc.OnMessage(func(msg pion.DataChannelMessage) {
		f(transfer.Frame{Text: msg.IsString, Data: msg.Data})
	})
}

func (c *Channel) Close() error { return c.dc.Close() }

var (
	_ peer.Conn        = (*Conn)(nil)
	_ transfer.Channel = (*Channel)(nil)
)
