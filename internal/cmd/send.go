package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/meetcreator/roomdrop/internal/files"
	"github.com/meetcreator/roomdrop/internal/peer"
	"github.com/meetcreator/roomdrop/internal/protocol"
	"github.com/meetcreator/roomdrop/internal/signaling"
	"github.com/meetcreator/roomdrop/internal/transfer"
	"github.com/meetcreator/roomdrop/internal/ui"
	"github.com/meetcreator/roomdrop/internal/utils"
)

var (
	flagTo        string
	flagChunkSize int
	flagAdaptive  bool
)

var sendCmd = &cobra.Command{
	Use:     "send <room> <file>",
	Aliases: []string{"s"},
	Short:   "Send a file to a peer in a room",
	Long: `Send a file directly to a peer in a room.

With a single other peer in the room the file goes to them. Otherwise pick
the receiver by id or display name with --to. If nobody matching is in the
room yet, roomdrop waits for them to join.

Examples:
  roomdrop send golden-otter-taco-comet report.pdf
  roomdrop send office notes.txt --to sleepy-otter
  roomdrop send office video.mp4 --discover`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendFile(cmd.Context(), args[0], args[1])
	},
}

func sendFile(ctx context.Context, room, path string) error {
	if flagChunkSize < transfer.MinChunkSize || flagChunkSize > transfer.MaxChunkSize {
		return fmt.Errorf("--chunk-size must be between %d and %d bytes", transfer.MinChunkSize, transfer.MaxChunkSize)
	}

	info, err := files.Validate(path)
	if err != nil {
		return err
	}

	cfg, err := LoadConfig()
	if err != nil {
		return err
	}

	stopSpinner := ui.RunConnectionSpinner("Connecting to relay...")
	conn, err := NewConnectionContext(ctx, cfg)
	stopSpinner()
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.JoinRoom(ctx, room); err != nil {
		return err
	}
	fmt.Fprintln(ui.Output, ui.RoomBanner(room, cfg.Name))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	progress := ui.NewTransferUI(ui.ModeSend, "", cancel)
	session := conn.NewSession(peer.Config{
		// A sender only sends.
		Accept: func(context.Context, string) bool { return false },
		Sender: transfer.SenderOptions{
			ChunkSize:  flagChunkSize,
			Adaptive:   flagAdaptive,
			OnProgress: progress.UpdateProgress,
		},
	})
	defer session.Close()

	changed := make(chan struct{}, 1)
	routeErr := make(chan error, 1)
	go func() {
		routeErr <- conn.Route(ctx, session, func(ev signaling.PresenceEvent) {
			if ev.Joined {
				slog.Info("peer joined", "room", ev.Room, "peer", ev.Peer.ID, "name", ev.Peer.Name())
			}
			select {
			case changed <- struct{}{}:
			default:
			}
		})
	}()

	target, err := waitForTarget(ctx, conn, flagTo, changed, routeErr)
	if err != nil {
		return err
	}

	src, closer, err := info.Open()
	if err != nil {
		return err
	}
	defer closer.Close()

	progress.SetPeer(target.Name())
	progress.SetFile(info.Name, info.Size)
	progress.SetState("Waiting for " + target.Name() + " to accept...")

	start := time.Now()
	progress.Start()
	err = session.Call(ctx, target.ID, src)
	progress.Finish(err)
	if err != nil {
		return err
	}

	elapsed := time.Since(start)
	ui.RenderTransferSummary("Transfer Summary", ui.TransferSummary{
		Status:   ui.IconSuccess + " Complete",
		File:     info.Name,
		Peer:     target.Name(),
		Size:     info.Size,
		Duration: utils.FormatTimeDuration(elapsed),
		Speed:    utils.FormatSpeed(float64(info.Size) / max(elapsed.Seconds(), 0.001)),
	})
	return nil
}

// waitForTarget resolves the receiver, waiting for room membership to
// change while nobody matches.
func waitForTarget(ctx context.Context, conn *ConnectionContext, to string, changed <-chan struct{}, routeErr <-chan error) (protocol.Peer, error) {
	var stop func()
	defer func() {
		if stop != nil {
			stop()
		}
	}()

	for {
		p, err := conn.Roster.Resolve(conn.Self, to)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, ErrNoPeer) {
			return protocol.Peer{}, err
		}

		if stop == nil {
			msg := "Waiting for a receiver to join..."
			if to != "" {
				msg = fmt.Sprintf("Waiting for %s to join...", to)
			}
			stop = ui.RunWaitingSpinner(msg)
		}

		select {
		case <-changed:
		case err := <-routeErr:
			return protocol.Peer{}, err
		case <-ctx.Done():
			return protocol.Peer{}, ctx.Err()
		}
	}
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().StringVar(&flagTo, "to", "", "Receiver peer id or display name")
	sendCmd.Flags().IntVar(&flagChunkSize, "chunk-size", transfer.DefaultChunkSize, "Bytes per data channel message")
	sendCmd.Flags().BoolVar(&flagAdaptive, "adaptive", false, "Resize chunks to match measured throughput")
}
