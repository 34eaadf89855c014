// Package config handles loading and validating savecair bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (SAVECAIR_*)
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - The gateway password should be set via SAVECAIR_GATEWAY_PASSWORD
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load(config.Path())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Gateway.IAMID)
package config
