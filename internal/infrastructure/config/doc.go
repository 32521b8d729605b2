// Package config handles loading and validating auth core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (AUTHCORE_*)
//   - Validation of required fields
//   - Default value handling
//
// Session lifetimes (access/refresh TTL, inactivity timeout) are NOT part
// of this file-based configuration. They are runtime-tunable rows served by
// the sessionconfig package.
//
// Security Considerations:
//   - Sensitive values (JWT secret, broker passwords, tokens) should be set via environment variables
//   - The config file should have restricted permissions (0600)
//   - The JWT secret must be at least 32 characters
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.API.Port)
package config
