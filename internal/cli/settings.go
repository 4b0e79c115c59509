package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/artpar/stackdeploy/internal/shell/cluster"
)

// =============================================================================
// Tool Settings
// =============================================================================

// Settings holds the tool configuration, as opposed to the deployment
// document: where the cluster is and how to talk to it.
type Settings struct {
	Cluster ClusterSettings `mapstructure:"cluster"`
	Log     LogSettings     `mapstructure:"log"`
}

// ClusterSettings holds platform connection configuration.
type ClusterSettings struct {
	URL      string        `mapstructure:"url"`
	Token    string        `mapstructure:"token"`
	Insecure bool          `mapstructure:"insecure"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// LogSettings holds logging defaults, overridable per run via flags.
type LogSettings struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadSettings loads tool configuration from an optional file and the
// environment. Every key can be set via STACKDEPLOY_ variables, for example
// STACKDEPLOY_CLUSTER_TOKEN.
func LoadSettings(configPath string) (*Settings, error) {
	v := viper.New()

	v.SetDefault("cluster.url", "")
	v.SetDefault("cluster.token", "")
	v.SetDefault("cluster.insecure", false)
	v.SetDefault("cluster.timeout", "30s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// Only a malformed file is fatal, a missing one falls back to
			// defaults and environment.
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix("STACKDEPLOY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &settings, nil
}

// clusterClient builds the platform client from the resolved settings.
func clusterClient(settings *Settings, logger *slog.Logger) (*cluster.Client, error) {
	if settings.Cluster.URL == "" {
		return nil, errors.New("cluster url not configured, set STACKDEPLOY_CLUSTER_URL or cluster.url in the config file")
	}
	return cluster.NewClient(cluster.Config{
		BaseURL:               settings.Cluster.URL,
		Token:                 settings.Cluster.Token,
		Timeout:               settings.Cluster.Timeout,
		InsecureSkipTLSVerify: settings.Cluster.Insecure,
	}, logger), nil
}
