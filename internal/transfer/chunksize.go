package transfer

import (
	"sync"
	"time"
)

// Throughput bands for adaptive chunk sizing, in bytes per second.
const (
	speedVerySlow = 50 * 1024
	speedSlow     = 200 * 1024
	speedMedium   = 500 * 1024
	speedFast     = 1024 * 1024
)

const resizeInterval = 500 * time.Millisecond

// ChunkSizeController picks a chunk size between MinChunkSize and
// MaxChunkSize from the measured send rate.
type ChunkSizeController struct {
	mu         sync.Mutex
	clock      Clock
	chunkSize  int
	pending    int64
	lastUpdate time.Time
	speed      float64
}

func NewChunkSizeController(initial int, clock Clock) *ChunkSizeController {
	if clock == nil {
		clock = SystemClock
	}
	if initial <= 0 {
		initial = DefaultChunkSize
	}
	return &ChunkSizeController{
		clock:      clock,
		chunkSize:  max(MinChunkSize, min(MaxChunkSize, initial)),
		lastUpdate: clock.Now(),
	}
}

func (c *ChunkSizeController) ChunkSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chunkSize
}

// Speed returns the smoothed send rate in bytes per second.
func (c *ChunkSizeController) Speed() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speed
}

// Record accounts n sent bytes and resizes every interval or after ten
// chunks' worth of data.
func (c *ChunkSizeController) Record(n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pending += n
	elapsed := c.clock.Now().Sub(c.lastUpdate)
	if elapsed >= resizeInterval || c.pending >= int64(c.chunkSize*10) {
		c.resize(elapsed)
	}
}

func (c *ChunkSizeController) resize(elapsed time.Duration) {
	if elapsed <= 0 {
		return
	}

	current := float64(c.pending) / elapsed.Seconds()
	if c.speed > 0 {
		c.speed = c.speed*0.7 + current*0.3
	} else {
		c.speed = current
	}

	// Move a quarter of the way to the target to avoid oscillation.
	target := targetChunkSize(c.speed, c.chunkSize)
	next := c.chunkSize + int(float64(target-c.chunkSize)*0.25)
	c.chunkSize = max(MinChunkSize, min(MaxChunkSize, next))

	c.pending = 0
	c.lastUpdate = c.clock.Now()
}

func targetChunkSize(speed float64, current int) int {
	switch {
	case speed <= 0:
		return current
	case speed < speedVerySlow:
		return MinChunkSize
	case speed < speedSlow:
		return 8 * 1024
	case speed < speedMedium:
		return 16 * 1024
	case speed < speedFast:
		return 32 * 1024
	default:
		return MaxChunkSize
	}
}
