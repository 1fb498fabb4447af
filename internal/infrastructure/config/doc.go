// Package config handles loading and validating the JCI Hitachi core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - The account password should be set via JCIHITACHI_ACCOUNT_PASSWORD
//   - The config file should have restricted permissions (0600)
//   - Cloud tokens and temporary credentials are never written to configuration
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Cloud.Region)
package config
