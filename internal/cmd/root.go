package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/meetcreator/roomdrop/internal/config"
	"github.com/meetcreator/roomdrop/internal/transfer"
	"github.com/meetcreator/roomdrop/internal/version"
)

var (
	flagServer   string
	flagDiscover bool
	flagName     string
	flagSTUN     string
	flagCodec    string
	flagTimeout  time.Duration
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "roomdrop",
	Short: "Send a file to anyone in the same room over a direct WebRTC connection",
	Long: `roomdrop meets peers in named rooms on a small signaling relay and then
moves files between them directly over WebRTC data channels. The relay only
forwards connection setup; file bytes never pass through it.`,
	Version:       version.Version,
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagServer, "server", "", "Relay websocket URL (env SERVER_URL)")
	pf.BoolVar(&flagDiscover, "discover", false, "Find a relay on the local network over mDNS")
	pf.StringVar(&flagName, "name", "", "Display name shown to other peers (env PEER_NAME)")
	pf.StringVar(&flagSTUN, "stun", "", "Comma separated STUN servers, or \"none\" (env STUN_SERVER)")
	pf.StringVar(&flagCodec, "codec", "", "Relay frame encoding: json or msgpack (env CODEC)")
	pf.DurationVar(&flagTimeout, "timeout", 0, "How long to wait for a peer connection (env NEGOTIATION_TIMEOUT)")
}

// LoadConfig merges the global flags with the environment.
func LoadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.Options{
		Server:   flagServer,
		Discover: flagDiscover,
		Name:     flagName,
		STUN:     flagSTUN,
		Codec:    flagCodec,
		Timeout:  flagTimeout,
	})
	if err != nil {
		return nil, transfer.NewError("load config", err)
	}
	return cfg, nil
}

// Execute runs the command tree. Interrupts cancel the command's context so
// an active transfer can say goodbye to its peer before exiting.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := fang.Execute(ctx, rootCmd); err != nil {
		stop()
		os.Exit(1)
	}
}
