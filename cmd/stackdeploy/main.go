package main

import (
	"errors"
	"os"

	"github.com/artpar/stackdeploy/internal/cli"
	"github.com/artpar/stackdeploy/internal/core/config"
	"github.com/artpar/stackdeploy/internal/logging"
	"github.com/artpar/stackdeploy/internal/shell/cluster"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess      = 0
	ExitError        = 1 // generic and usage errors
	ExitConfigError  = 2 // deployment configuration rejected
	ExitClusterError = 3 // platform API failure
)

func main() {
	os.Exit(run())
}

func run() int {
	logger := logging.NewLogger(os.Stderr, logging.LevelInfo, "text")

	err := cli.Execute(os.Args[1:], logger)
	if err == nil {
		return ExitSuccess
	}

	logger.Error("command failed", "error", err)

	var apiErr *cluster.APIError
	switch {
	case config.IsConfigurationError(err):
		return ExitConfigError
	case errors.As(err, &apiErr),
		errors.Is(err, cluster.ErrNotFound),
		errors.Is(err, cluster.ErrUnauthorized):
		return ExitClusterError
	default:
		return ExitError
	}
}
