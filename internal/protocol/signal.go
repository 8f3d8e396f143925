package protocol

import (
	"errors"
	"fmt"
)

// SignalKind discriminates the variants of Signal.
type SignalKind string

const (
	SignalOffer     SignalKind = "offer"
	SignalAnswer    SignalKind = "answer"
	SignalCandidate SignalKind = "candidate"
	SignalReject    SignalKind = "reject"
	SignalBye       SignalKind = "bye"
)

var ErrInvalidSignal = errors.New("invalid signal")

// Signal is the negotiation payload carried inside a signal envelope.
// Kind selects which of the remaining fields is meaningful:
//
//	offer, answer  SDP
//	candidate      Candidate
//	reject, bye    Reason (optional)
//
// On the wire a Signal travels as a Payload, which the relay forwards
// without decoding.
type Signal struct {
	Kind      SignalKind `json:"kind" msgpack:"kind"`
	SDP       string     `json:"sdp,omitempty" msgpack:"sdp,omitempty"`
	Candidate *Candidate `json:"candidate,omitempty" msgpack:"candidate,omitempty"`
	Reason    string     `json:"reason,omitempty" msgpack:"reason,omitempty"`
}

// Candidate mirrors the browser RTCIceCandidateInit dictionary.
type Candidate struct {
	Candidate        string  `json:"candidate" msgpack:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty" msgpack:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty" msgpack:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty" msgpack:"usernameFragment,omitempty"`
}

func NewOffer(sdp string) Signal {
	return Signal{Kind: SignalOffer, SDP: sdp}
}

func NewAnswer(sdp string) Signal {
	return Signal{Kind: SignalAnswer, SDP: sdp}
}

func NewCandidate(c Candidate) Signal {
	return Signal{Kind: SignalCandidate, Candidate: &c}
}

func NewReject(reason string) Signal {
	return Signal{Kind: SignalReject, Reason: reason}
}

func NewBye(reason string) Signal {
	return Signal{Kind: SignalBye, Reason: reason}
}

// Validate checks that the fields required by Kind are present.
func (s Signal) Validate() error {
	switch s.Kind {
	case SignalOffer, SignalAnswer:
		if s.SDP == "" {
			return fmt.Errorf("%w: %s without sdp", ErrInvalidSignal, s.Kind)
		}
	case SignalCandidate:
		if s.Candidate == nil {
			return fmt.Errorf("%w: candidate without payload", ErrInvalidSignal)
		}
	case SignalReject, SignalBye:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidSignal, s.Kind)
	}
	return nil
}
