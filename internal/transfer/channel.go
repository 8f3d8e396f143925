package transfer

import "time"

// Label is the name of the single data channel a caller opens.
const Label = "file"

const (
	DefaultChunkSize    = 16 * 1024
	MinChunkSize        = 4 * 1024
	MaxChunkSize        = 64 * 1024
	DefaultFallbackWait = 3 * time.Second
	DefaultGrace        = 1 * time.Second
)

// Frame is one data channel message. Text frames carry control messages,
// binary frames carry chunk payloads.
type Frame struct {
	Text bool
	Data []byte
}

// Channel is the ordered, reliable message channel a transfer runs over.
// Callback registration replaces any previous callback of the same kind.
type Channel interface {
	Label() string
	IsOpen() bool
	Send(data []byte) error
	SendText(text string) error
	BufferedAmount() uint64
	SetBufferedAmountLowThreshold(th uint64)
	OnBufferedAmountLow(f func())
	OnOpen(f func())
	OnClose(f func())
	OnMessage(f func(Frame))
	Close() error
}

// Clock is the time source used for flow control and grace delays.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SystemClock is the wall clock.
var SystemClock Clock = realClock{}
