// Package logging provides structured logging for dockd.
//
// This package wraps Go's standard log/slog package. Every entry carries
// service=dockd and the build version.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("starting dockd", "api_port", cfg.API.Port)
//	composerLog := logger.Component("composer")
//
// Never log broker passwords or the InfluxDB token.
package logging
