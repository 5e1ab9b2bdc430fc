package common

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application banner and logs the resolved listen address
func PrintBanner(config *Config, logger arbor.ILogger) {
	banner.PrintSimple("Enricher", GetVersion())
	logger.Info().
		Str("version", GetFullVersion()).
		Str("host", config.Server.Host).
		Int("port", config.Server.Port).
		Str("artifacts_dir", config.Storage.ArtifactsDir).
		Msg("Configuration loaded")
}
