// Package modules assembles the built-in entity modules.
package modules

import (
	"log/slog"

	"github.com/artpar/stackdeploy/internal/core/config"
	"github.com/artpar/stackdeploy/internal/modules/accounts"
	"github.com/artpar/stackdeploy/internal/modules/apps"
	"github.com/artpar/stackdeploy/internal/modules/certs"
	"github.com/artpar/stackdeploy/internal/modules/jobs"
	"github.com/artpar/stackdeploy/internal/modules/repositories"
	"github.com/artpar/stackdeploy/internal/modules/s3files"
	"github.com/artpar/stackdeploy/internal/modules/secrets"
	"github.com/artpar/stackdeploy/internal/shell/cluster"
)

// Builtin returns the standard module set, all backed by the same cluster
// client. The s3files module talks to its own endpoints and only shares the
// logger.
func Builtin(client *cluster.Client, logger *slog.Logger) []config.Module {
	if logger == nil {
		logger = slog.Default()
	}
	return []config.Module{
		apps.New(client, logger),
		jobs.New(client, logger),
		secrets.New(client, logger),
		certs.New(client, logger),
		repositories.New(client, logger),
		s3files.New(nil, logger),
		accounts.New(client, logger),
	}
}
