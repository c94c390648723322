// Package config handles loading and validating dockd configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with DOCKD_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Broker credentials and the InfluxDB token should be supplied through the
// environment rather than the config file.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Dock.QuirksFile)
package config
