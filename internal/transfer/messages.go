package transfer

import (
	"encoding/json"
	"fmt"
)

const ControlTypeMeta = "meta"

// Control is a text-frame control message. Only meta is defined: it
// announces the file whose chunks follow.
type Control struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime,omitempty"`
}

func NewMeta(name string, size int64, mimeType string) Control {
	return Control{Type: ControlTypeMeta, Name: name, Size: size, MimeType: mimeType}
}

func (c Control) Encode() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", NewError("encode control", err)
	}
	return string(data), nil
}

// DecodeControl parses a text frame. Unknown types and negative sizes are
// reported as ErrInvalidControl.
func DecodeControl(data []byte) (Control, error) {
	var c Control
	if err := json.Unmarshal(data, &c); err != nil {
		return Control{}, WrapError("decode control", ErrInvalidControl, err.Error())
	}
	switch c.Type {
	case ControlTypeMeta:
		if c.Size < 0 {
			return Control{}, WrapError("decode control", ErrInvalidControl, fmt.Sprintf("negative size %d", c.Size))
		}
	default:
		return Control{}, WrapError("decode control", ErrInvalidControl, fmt.Sprintf("unknown type %q", c.Type))
	}
	return c, nil
}
