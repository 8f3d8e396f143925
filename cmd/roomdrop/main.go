package main

import (
	"log/slog"

	"github.com/meetcreator/roomdrop/internal/cmd"
	"github.com/meetcreator/roomdrop/internal/logging"
)

func main() {
	// The CLI stays quiet unless LOG_LEVEL asks otherwise.
	logging.Init(slog.LevelError)
	cmd.Execute()
}
