// Package config handles loading and validating the litter box bridge
// configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with LITTERBOX_* environment variables
//   - Validation of required fields
//   - Default value handling, including the vendor app credentials
//
// Security Considerations:
//   - The cloud password, JWT secret, MQTT password and InfluxDB token
//     should be set via environment variables
//   - The config file should have restricted permissions (0600)
//   - API users carry Argon2id hashes, never plaintext passwords
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	refresh, discard := cfg.PropertiesWindows()
package config
