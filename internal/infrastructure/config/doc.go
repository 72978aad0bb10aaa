// Package config handles loading and validating Gray Logic Home configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling, including the usage tariff
//
// Sensitive values (MQTT password, InfluxDB token, JWT secret) should be
// provided through GRAYLOGIC_* environment variables rather than the file.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	loc, _ := cfg.Site.Location()
package config
