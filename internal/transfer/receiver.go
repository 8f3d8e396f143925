package transfer

import (
	"bytes"
	"log/slog"
	"sync"
)

// Artifact is a fully received file.
type Artifact struct {
	Name     string
	MimeType string
	Size     int64
	Data     []byte
}

// Assembler collects the chunks following a meta frame and produces an
// Artifact once the announced size has been reached. Bytes past the
// announced size that arrive in the completing chunk are kept.
type Assembler struct {
	mu         sync.Mutex
	active     bool
	meta       Control
	received   int64
	chunks     [][]byte
	onComplete func(Artifact)
	onProgress func(received, total int64)
}

func NewAssembler(onComplete func(Artifact)) *Assembler {
	return &Assembler{onComplete: onComplete}
}

// OnProgress registers a callback invoked after every chunk with clamped
// progress.
func (a *Assembler) OnProgress(f func(received, total int64)) {
	a.mu.Lock()
	a.onProgress = f
	a.mu.Unlock()
}

// HandleFrame feeds one channel frame. Protocol violations are logged and
// dropped; they never disturb the session in progress.
func (a *Assembler) HandleFrame(f Frame) {
	if f.Text {
		a.handleControl(f.Data)
		return
	}
	a.handleChunk(f.Data)
}

func (a *Assembler) handleControl(data []byte) {
	ctrl, err := DecodeControl(data)
	if err != nil {
		slog.Warn("dropping control frame", "error", err)
		return
	}

	a.mu.Lock()
	if a.active {
		slog.Warn("meta received mid-transfer, discarding partial file",
			"previous", a.meta.Name, "received", a.received, "size", a.meta.Size)
	}
	a.reset()
	a.active = true
	a.meta = ctrl
	slog.Debug("receiving", "name", ctrl.Name, "size", ctrl.Size)

	if ctrl.Size == 0 {
		art := a.finish()
		a.mu.Unlock()
		a.complete(art)
		return
	}
	a.mu.Unlock()
}

func (a *Assembler) handleChunk(data []byte) {
	a.mu.Lock()
	if !a.active {
		a.mu.Unlock()
		slog.Warn("dropping chunk", "error", ErrChunkBeforeMeta, "bytes", len(data))
		return
	}

	// The channel may reuse its read buffer.
	a.chunks = append(a.chunks, bytes.Clone(data))
	a.received += int64(len(data))

	received, total := min(a.received, a.meta.Size), a.meta.Size
	progress := a.onProgress

	var art *Artifact
	if a.received >= a.meta.Size {
		art = a.finish()
	}
	a.mu.Unlock()

	if progress != nil {
		progress(received, total)
	}
	if art != nil {
		a.complete(art)
	}
}

// finish concatenates the chunks and resets. Callers hold a.mu.
func (a *Assembler) finish() *Artifact {
	art := &Artifact{
		Name:     a.meta.Name,
		MimeType: a.meta.MimeType,
		Size:     a.received,
		Data:     bytes.Join(a.chunks, nil),
	}
	if art.Data == nil {
		art.Data = []byte{}
	}
	a.reset()
	return art
}

func (a *Assembler) complete(art *Artifact) {
	slog.Debug("file complete", "name", art.Name, "bytes", art.Size)
	if a.onComplete != nil {
		a.onComplete(*art)
	}
}

func (a *Assembler) reset() {
	a.active = false
	a.meta = Control{}
	a.received = 0
	a.chunks = nil
}

// Reset drops any partial file and reports whether there was one.
func (a *Assembler) Reset() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	partial := a.active
	a.reset()
	return partial
}

// Progress reports received bytes, clamped to the announced size, and that
// size. Both are zero when nothing is in flight.
func (a *Assembler) Progress() (received, total int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.active {
		return 0, 0
	}
	return min(a.received, a.meta.Size), a.meta.Size
}

// Active reports whether a file is partially received.
func (a *Assembler) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}
