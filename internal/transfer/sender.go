package transfer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"
)

// Source is the file offered to the remote peer.
type Source struct {
	Name     string
	Size     int64
	MimeType string
	Reader   io.Reader
}

type SenderOptions struct {
	// ChunkSize is the payload size of each binary frame, clamped to
	// [MinChunkSize, MaxChunkSize]. With Adaptive it is only the starting
	// point.
	ChunkSize int
	Adaptive  bool

	// LowWater is the buffered amount below which the next chunk may be
	// sent. Zero means one chunk.
	LowWater     uint64
	FallbackWait time.Duration

	// Grace is how long to wait after the last chunk before returning, so
	// the tail can leave the buffer before the connection is closed.
	Grace time.Duration
	Clock Clock

	OnProgress func(sent, total int64)
}

func (o SenderOptions) withDefaults() SenderOptions {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	o.ChunkSize = max(MinChunkSize, min(MaxChunkSize, o.ChunkSize))
	if o.LowWater == 0 {
		o.LowWater = uint64(o.ChunkSize)
	}
	if o.FallbackWait <= 0 {
		o.FallbackWait = DefaultFallbackWait
	}
	if o.Grace < 0 {
		o.Grace = 0
	}
	if o.Clock == nil {
		o.Clock = SystemClock
	}
	return o
}

// Sender streams one source over a channel as a meta frame followed by
// binary chunks.
type Sender struct {
	ch         Channel
	opts       SenderOptions
	gate       *flowGate
	controller *ChunkSizeController
}

func NewSender(ch Channel, opts SenderOptions) *Sender {
	opts = opts.withDefaults()
	s := &Sender{
		ch:   ch,
		opts: opts,
		gate: newFlowGate(ch, opts.LowWater, opts.FallbackWait, opts.Clock),
	}
	if opts.Adaptive {
		s.controller = NewChunkSizeController(opts.ChunkSize, opts.Clock)
	}
	return s
}

func (s *Sender) chunkSize() int {
	if s.controller != nil {
		return s.controller.ChunkSize()
	}
	return s.opts.ChunkSize
}

// Send transmits src and then waits out the grace delay. It stops between
// chunks when ctx is cancelled or the channel closes.
func (s *Sender) Send(ctx context.Context, src Source) error {
	if src.Reader == nil || src.Size < 0 {
		return NewError("send", ErrNoSource)
	}
	if !s.ch.IsOpen() {
		return NewFileError("send", src.Name, ErrChannelNotOpen)
	}

	meta, err := NewMeta(src.Name, src.Size, src.MimeType).Encode()
	if err != nil {
		return err
	}
	if err := s.ch.SendText(meta); err != nil {
		return NewFileError("send meta", src.Name, err)
	}
	slog.Debug("sent meta", "name", src.Name, "size", src.Size)

	r := io.LimitReader(src.Reader, src.Size)
	var sent int64

	for sent < src.Size {
		if err := s.gate.Wait(ctx); err != nil {
			return NewFileError("send", src.Name, err)
		}
		if err := ctx.Err(); err != nil {
			return NewFileError("send", src.Name, err)
		}
		if !s.ch.IsOpen() {
			return NewFileError("send", src.Name, ErrChannelClosed)
		}

		chunk := make([]byte, s.chunkSize())
		n, err := io.ReadFull(r, chunk)
		if n > 0 {
			if sendErr := s.ch.Send(chunk[:n]); sendErr != nil {
				return NewFileError("send chunk", src.Name, sendErr)
			}
			sent += int64(n)
			if s.controller != nil {
				s.controller.Record(int64(n))
			}
			if s.opts.OnProgress != nil {
				s.opts.OnProgress(sent, src.Size)
			}
		}

		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return NewFileError("read", src.Name, err)
		}
	}

	if sent < src.Size {
		return NewFileError("read", src.Name, ErrShortSource)
	}

	slog.Debug("all chunks queued", "name", src.Name, "bytes", sent)

	if s.opts.Grace > 0 {
		select {
		case <-s.opts.Clock.After(s.opts.Grace):
		case <-ctx.Done():
		}
	}
	return nil
}
