// ABOUTME: Entry point for compliancectl, the compliance dashboard API client
// ABOUTME: Initializes structured logging and dispatches to the cli package

package main

import (
	"log/slog"
	"os"

	"github.com/lmmcdev/compliance-frontend-sub001/cli"
	"github.com/lmmcdev/compliance-frontend-sub001/logger"
)

func main() {
	// Initialize structured logging
	logger.Init()

	if err := cli.BuildCLI().Execute(); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}
