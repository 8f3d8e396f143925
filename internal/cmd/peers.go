package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/meetcreator/roomdrop/internal/names"
	"github.com/meetcreator/roomdrop/internal/ui"
)

var peersCmd = &cobra.Command{
	Use:     "peers <room>",
	Aliases: []string{"p", "ls"},
	Short:   "List who is in a room",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		stopSpinner := ui.RunConnectionSpinner("Connecting to relay...")
		conn, err := NewConnectionContext(ctx, cfg)
		stopSpinner()
		if err != nil {
			return err
		}
		defer conn.Close()

		peers, err := conn.JoinRoom(ctx, args[0])
		if err != nil {
			return err
		}
		if err := conn.Client.LeaveRoom(args[0]); err != nil {
			return err
		}

		fmt.Fprintln(ui.Output, ui.RoomBanner(args[0], cfg.Name))
		printPeers(peers, conn.Self)
		return nil
	},
}

var roomCmd = &cobra.Command{
	Use:   "room",
	Short: "Print a fresh, hard to guess room name",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(ui.Output, names.Room())
	},
}

func init() {
	rootCmd.AddCommand(peersCmd)
	rootCmd.AddCommand(roomCmd)
}
