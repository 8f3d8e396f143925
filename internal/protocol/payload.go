package protocol

import (
	"encoding/json"
	"fmt"
)

// Payload is a signal as it travels through the relay: a generic map that
// both codecs round-trip without knowing its fields. The relay forwards it
// untouched; only clients decode it into a Signal.
type Payload map[string]any

// Kind returns the payload's kind field, or "" if it has none.
func (p Payload) Kind() string {
	kind, _ := p["kind"].(string)
	return kind
}

// Decode converts the payload into a Signal. Fields Signal does not know
// are ignored. Decode does not validate; call Signal.Validate for that.
func (p Payload) Decode() (Signal, error) {
	var sig Signal
	data, err := json.Marshal(p)
	if err != nil {
		return sig, fmt.Errorf("%w: %v", ErrInvalidSignal, err)
	}
	if err := json.Unmarshal(data, &sig); err != nil {
		return sig, fmt.Errorf("%w: %v", ErrInvalidSignal, err)
	}
	return sig, nil
}

// Payload converts s into its wire form.
func (s Signal) Payload() Payload {
	p := Payload{"kind": string(s.Kind)}
	if s.SDP != "" {
		p["sdp"] = s.SDP
	}
	if s.Reason != "" {
		p["reason"] = s.Reason
	}
	if c := s.Candidate; c != nil {
		cand := map[string]any{"candidate": c.Candidate}
		if c.SDPMid != nil {
			cand["sdpMid"] = *c.SDPMid
		}
		if c.SDPMLineIndex != nil {
			cand["sdpMLineIndex"] = *c.SDPMLineIndex
		}
		if c.UsernameFragment != nil {
			cand["usernameFragment"] = *c.UsernameFragment
		}
		p["candidate"] = cand
	}
	return p
}
