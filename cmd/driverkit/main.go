package main

import (
	"log/slog"
	"os"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Logger for errors that happen before or outside the configured one.
	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if err := newRootCmd().Execute(); err != nil {
		bootLogger.Error("driverkit", "err", err)
		os.Exit(1)
	}
}
