package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/meetcreator/roomdrop/internal/config"
	"github.com/meetcreator/roomdrop/internal/discovery"
	"github.com/meetcreator/roomdrop/internal/logging"
	"github.com/meetcreator/roomdrop/internal/relay"
	"github.com/meetcreator/roomdrop/internal/server"
	"github.com/meetcreator/roomdrop/internal/version"
)

const shutdownTimeout = 5 * time.Second

func main() {
	logging.Init(slog.LevelInfo)

	cfg, err := config.LoadRelay()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Create the Hub and run its event loop. It outlives the HTTP server
	// so that stopping it is what hangs up the remaining websockets.
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hub := relay.NewHub()
	go hub.Run(hubCtx)

	// 2. Optionally advertise ourselves on the LAN
	if cfg.MDNS {
		name, _ := os.Hostname()
		if name == "" {
			name = "roomdrop"
		}
		go func() {
			if err := discovery.Announce(ctx, name, cfg.Port, version.Version); err != nil {
				slog.Error("mDNS announcement stopped", "error", err)
			}
		}()
	}

	// 3. Serve the websocket and health routes
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.NewRouter(hub),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("starting relay", "addr", srv.Addr, "version", version.Version, "mdns", cfg.MDNS)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("relay stopped", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		stats := hub.Stats()
		slog.Info("shutting down relay", "clients", stats.Clients, "rooms", stats.Rooms)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("graceful shutdown failed", "error", err)
		}
		stopHub()
	}
}
