// Package config handles loading and validating EMS console configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with EMS_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (JWT secret, push token, MQTT password) should be set via environment variables
//   - User passwords are stored as Argon2id PHC hashes, never in plaintext
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Store.Backend)
package config
