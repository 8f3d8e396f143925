package transfer

import (
	"context"
	"log/slog"
	"time"
)

// flowGate holds the sender back while the channel's outbound buffer is
// above the low-water mark. If the low-buffer callback never fires the gate
// opens anyway after the fallback wait.
type flowGate struct {
	ch       Channel
	lowWater uint64
	fallback time.Duration
	clock    Clock
	low      chan struct{}
}

func newFlowGate(ch Channel, lowWater uint64, fallback time.Duration, clock Clock) *flowGate {
	g := &flowGate{
		ch:       ch,
		lowWater: lowWater,
		fallback: fallback,
		clock:    clock,
		low:      make(chan struct{}, 1),
	}
	ch.SetBufferedAmountLowThreshold(lowWater)
	ch.OnBufferedAmountLow(func() {
		select {
		case g.low <- struct{}{}:
		default:
		}
	})
	return g
}

func (g *flowGate) Wait(ctx context.Context) error {
	if g.ch.BufferedAmount() <= g.lowWater {
		return nil
	}

	// Discard a notification left over from an earlier drain and look again.
	select {
	case <-g.low:
	default:
	}
	if g.ch.BufferedAmount() <= g.lowWater {
		return nil
	}

	select {
	case <-g.low:
		return nil
	case <-g.clock.After(g.fallback):
		slog.Debug("buffer still above low-water mark, sending anyway",
			"label", g.ch.Label(), "buffered", g.ch.BufferedAmount(), "lowWater", g.lowWater)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
