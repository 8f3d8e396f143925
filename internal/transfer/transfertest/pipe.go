// Package transfertest provides in-memory stand-ins for a data channel and a
// clock.
package transfertest

import (
	"sync"

	"github.com/meetcreator/roomdrop/internal/transfer"
)

const inboxSize = 4096

// Chan is one end of an in-memory ordered channel. Frames sent on one end
// are delivered, in order, to the other end's OnMessage callback on a
// dedicated goroutine. Frames still queued when the pipe closes are
// delivered before OnClose fires.
type Chan struct {
	mu        sync.Mutex
	label     string
	peer      *Chan
	open      bool
	closed    bool
	buffered  uint64
	threshold uint64
	sent      []transfer.Frame
	onLow     func()
	onOpen    func()
	onClose   func()
	onMessage func(transfer.Frame)

	inbox     chan transfer.Frame
	done      chan struct{}
	closeOnce *sync.Once
}

// Pipe returns two linked, not yet open channel ends.
func Pipe(label string) (*Chan, *Chan) {
	once := &sync.Once{}
	a := &Chan{label: label, inbox: make(chan transfer.Frame, inboxSize), done: make(chan struct{}), closeOnce: once}
	b := &Chan{label: label, inbox: make(chan transfer.Frame, inboxSize), done: make(chan struct{}), closeOnce: once}
	a.peer, b.peer = b, a
	go a.run()
	go b.run()
	return a, b
}

func (c *Chan) run() {
	for {
		select {
		case f := <-c.inbox:
			c.dispatch(f)
		case <-c.done:
			for {
				select {
				case f := <-c.inbox:
					c.dispatch(f)
				default:
					c.mu.Lock()
					h := c.onClose
					c.mu.Unlock()
					if h != nil {
						h()
					}
					return
				}
			}
		}
	}
}

func (c *Chan) dispatch(f transfer.Frame) {
	c.mu.Lock()
	h := c.onMessage
	c.mu.Unlock()
	if h != nil {
		h(f)
	}
}

// Open marks both ends open and fires their OnOpen callbacks.
func (c *Chan) Open() {
	for _, end := range []*Chan{c, c.peer} {
		end.mu.Lock()
		end.open = true
		h := end.onOpen
		end.mu.Unlock()
		if h != nil {
			go h()
		}
	}
}

func (c *Chan) Label() string { return c.label }

func (c *Chan) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open && !c.closed
}

func (c *Chan) Send(data []byte) error {
	return c.send(transfer.Frame{Data: append([]byte(nil), data...)})
}

func (c *Chan) SendText(text string) error {
	return c.send(transfer.Frame{Text: true, Data: []byte(text)})
}

func (c *Chan) send(f transfer.Frame) error {
	c.mu.Lock()
	if !c.open || c.closed {
		c.mu.Unlock()
		return transfer.ErrChannelClosed
	}
	c.sent = append(c.sent, f)
	c.mu.Unlock()

	select {
	case c.peer.inbox <- f:
		return nil
	case <-c.peer.done:
		return transfer.ErrChannelClosed
	}
}

// Sent returns every frame sent from this end.
func (c *Chan) Sent() []transfer.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]transfer.Frame(nil), c.sent...)
}

func (c *Chan) BufferedAmount() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buffered
}

// SetBufferedAmount pretends n bytes are waiting to leave this end.
func (c *Chan) SetBufferedAmount(n uint64) {
	c.mu.Lock()
	c.buffered = n
	c.mu.Unlock()
}

// Drain empties the outbound buffer, firing OnBufferedAmountLow if it was
// above the threshold.
func (c *Chan) Drain() {
	c.mu.Lock()
	crossed := c.buffered > c.threshold
	c.buffered = 0
	h := c.onLow
	c.mu.Unlock()
	if crossed && h != nil {
		h()
	}
}

func (c *Chan) SetBufferedAmountLowThreshold(th uint64) {
	c.mu.Lock()
	c.threshold = th
	c.mu.Unlock()
}

func (c *Chan) OnBufferedAmountLow(f func()) {
	c.mu.Lock()
	c.onLow = f
	c.mu.Unlock()
}

func (c *Chan) OnOpen(f func()) {
	c.mu.Lock()
	c.onOpen = f
	fire := c.open && !c.closed
	c.mu.Unlock()
	if fire {
		go f()
	}
}

func (c *Chan) OnClose(f func()) {
	c.mu.Lock()
	c.onClose = f
	c.mu.Unlock()
}

func (c *Chan) OnMessage(f func(transfer.Frame)) {
	c.mu.Lock()
	c.onMessage = f
	c.mu.Unlock()
}

// Close closes both ends.
func (c *Chan) Close() error {
	c.closeOnce.Do(func() {
		for _, end := range []*Chan{c, c.peer} {
			end.mu.Lock()
			end.closed = true
			end.mu.Unlock()
			close(end.done)
		}
	})
	return nil
}

var _ transfer.Channel = (*Chan)(nil)
