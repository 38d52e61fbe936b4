// Package config handles loading and validating CareWatch Core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with CAREWATCH_* environment variables
//   - Validation of required fields
//   - Default value handling (cache TTLs, scope refresh schedule)
//
// Security Considerations:
//   - Backend tokens and the JWT secret should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/carewatch.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ttl := cfg.Cache.TTL("persons")
package config
