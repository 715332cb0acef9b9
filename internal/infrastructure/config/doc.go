// Package config handles loading and validating the observation archive
// configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Loading a .env file placed next to the YAML file
//   - Overriding with OBSARCHIVE_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (DSNs, passwords, tokens) should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	db, err := database.Open(cfg.DatabaseConfig())
package config
