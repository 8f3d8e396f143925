package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/meetcreator/roomdrop/internal/peer"
	"github.com/meetcreator/roomdrop/internal/signaling"
	"github.com/meetcreator/roomdrop/internal/transfer"
	"github.com/meetcreator/roomdrop/internal/ui"
	"github.com/meetcreator/roomdrop/internal/utils"
)

var (
	flagReceiverDir  string
	flagReceiverYes  bool
	flagReceiverKeep bool
)

var receiveCmd = &cobra.Command{
	Use:     "receive <room>",
	Aliases: []string{"r"},
	Short:   "Wait in a room and receive files",
	Long: `Join a room and wait for someone to send a file.

Each incoming connection is confirmed first unless --yes is given. By default
roomdrop exits after the first transfer; --keep stays in the room for more.

Examples:
  roomdrop receive golden-otter-taco-comet
  roomdrop receive office --dir ~/Downloads --yes --keep`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return receiveFiles(cmd.Context(), args[0])
	},
}

// receiver drives the UI for one incoming connection at a time.
type receiver struct {
	conn     *ConnectionContext
	dir      string
	prompter *ui.Prompter

	mu      sync.Mutex
	waiting func()
	display *ui.TransferUI
	start   time.Time
	saved   string
	saveErr error
	art     transfer.Artifact

	results chan peer.Result
}

func receiveFiles(ctx context.Context, room string) error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}

	if flagReceiverDir != "" {
		if err := os.MkdirAll(flagReceiverDir, 0o755); err != nil {
			return transfer.NewError("create output dir", err)
		}
	}

	stopSpinner := ui.RunConnectionSpinner("Connecting to relay...")
	conn, err := NewConnectionContext(ctx, cfg)
	stopSpinner()
	if err != nil {
		return err
	}
	defer conn.Close()

	peers, err := conn.JoinRoom(ctx, room)
	if err != nil {
		return err
	}
	fmt.Fprintln(ui.Output, ui.RoomBanner(room, cfg.Name))
	printPeers(peers, conn.Self)

	r := &receiver{
		conn:     conn,
		dir:      flagReceiverDir,
		prompter: ui.NewPrompter(os.Stdin, ui.Output),
		results:  make(chan peer.Result, 4),
	}

	session := conn.NewSession(peer.Config{
		Accept:     r.accept,
		OnProgress: r.progress,
		OnArtifact: r.artifact,
		OnClosed:   r.closed,
	})
	defer session.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	routeErr := make(chan error, 1)
	go func() {
		routeErr <- conn.Route(ctx, session, func(ev signaling.PresenceEvent) {
			if ev.Joined {
				ui.PrintInfof("%s joined", ev.Peer.Name())
			} else {
				slog.Debug("peer left", "room", ev.Room, "peer", ev.Peer.ID)
			}
		})
	}()

	r.wait("Waiting for a sender...")
	defer r.stopWaiting()

	for {
		select {
		case res := <-r.results:
			if res.Err != nil && !flagReceiverKeep {
				return res.Err
			}
			if res.Err != nil {
				ui.PrintError(res.Err.Error())
			}
			if !flagReceiverKeep {
				return nil
			}
			r.wait("Waiting for the next sender...")
		case err := <-routeErr:
			return err
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		}
	}
}

func (r *receiver) wait(msg string) {
	stop := ui.RunWaitingSpinner(msg)
	r.mu.Lock()
	r.waiting = stop
	r.mu.Unlock()
}

func (r *receiver) stopWaiting() {
	r.mu.Lock()
	stop := r.waiting
	r.waiting = nil
	r.mu.Unlock()
	if stop != nil {
		stop()
	}
}

func (r *receiver) accept(ctx context.Context, from string) bool {
	r.stopWaiting()
	name := r.conn.Roster.Name(from)
	if !flagReceiverYes {
		ok, err := r.prompter.Confirm(ctx, fmt.Sprintf("Accept a file from %s?", name))
		if err != nil {
			slog.Debug("prompt abandoned", "peer", from, "error", err)
			return false
		}
		if !ok {
			return false
		}
	}

	display := ui.NewTransferUI(ui.ModeReceive, name, nil)
	display.SetState("Connecting to " + name + "...")

	r.mu.Lock()
	r.display = display
	r.start = time.Now()
	r.saved = ""
	r.saveErr = nil
	r.art = transfer.Artifact{}
	r.mu.Unlock()

	display.Start()
	return true
}

func (r *receiver) progress(_ string, received, total int64) {
	r.mu.Lock()
	display := r.display
	r.mu.Unlock()
	if display != nil {
		display.UpdateProgress(received, total)
	}
}

func (r *receiver) artifact(from string, art transfer.Artifact) {
	path, err := transfer.SaveArtifact(r.dir, art)
	if err != nil {
		slog.Error("failed to save file", "peer", from, "file", art.Name, "error", err)
		r.mu.Lock()
		r.saveErr = transfer.NewFileError("save", art.Name, err)
		r.mu.Unlock()
		return
	}

	r.mu.Lock()
	r.saved = path
	r.art = art
	if r.display != nil {
		r.display.SetFile(art.Name, art.Size)
	}
	r.mu.Unlock()
}

func (r *receiver) closed(res peer.Result) {
	r.mu.Lock()
	display, start, saved, art := r.display, r.start, r.saved, r.art
	if res.Err == nil && r.saveErr != nil {
		res.Err = r.saveErr
	}
	r.display = nil
	r.saveErr = nil
	r.mu.Unlock()

	if display != nil {
		display.Finish(res.Err)
	}

	if res.Err == nil && saved != "" {
		elapsed := time.Since(start)
		ui.RenderTransferSummary("Transfer Summary", ui.TransferSummary{
			Status:   ui.IconSuccess + " Complete",
			File:     art.Name,
			Peer:     r.conn.Roster.Name(res.Remote),
			Size:     art.Size,
			Duration: utils.FormatTimeDuration(elapsed),
			Speed:    utils.FormatSpeed(float64(art.Size) / max(elapsed.Seconds(), 0.001)),
			SavedTo:  saved,
		})
	}

	// An offer we declined is not a transfer the user waited for.
	if errors.Is(res.Err, transfer.ErrDeclined) {
		r.wait("Waiting for a sender...")
		return
	}

	select {
	case r.results <- res:
	default:
		slog.Warn("transfer result dropped", "peer", res.Remote)
	}
}

func init() {
	rootCmd.AddCommand(receiveCmd)

	receiveCmd.Flags().StringVarP(&flagReceiverDir, "dir", "d", "", "Directory to save received files in")
	receiveCmd.Flags().BoolVarP(&flagReceiverYes, "yes", "y", false, "Accept every incoming transfer without asking")
	receiveCmd.Flags().BoolVar(&flagReceiverKeep, "keep", false, "Stay in the room after a transfer")
}
