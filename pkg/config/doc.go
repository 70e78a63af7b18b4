// Package config provides configuration management for the broker.
//
// Configuration is read from a YAML file, completed with defaults,
// overridden by environment variables and validated:
//
//	cfg, err := config.LoadConfigWithEnvOverrides("broker.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention BROKER_SECTION_FIELD:
//
//   - BROKER_SERVER_LISTEN_ADDRESS overrides server.listen_address
//   - BROKER_THROTTLE_FAIL_OPEN overrides throttle.fail_open
//   - BROKER_THROTTLE_LIMIT_PRIORITY overrides throttle.limit_priority (comma separated)
//   - BROKER_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//   - BROKER_DIRECTORY_GIT_AUTH_TOKEN overrides directory.git.auth.token
//
// # Validation
//
// Validation collects every problem into a ValidationError:
//
//	configuration validation failed with 2 errors:
//	  - throttle.limit_priority[1]: unknown scope "tenant" (allowed: api_key, endpoint, service)
//	  - counters.backend: unsupported backend "redis" (must be memory or sqlite)
//
// # Example Configuration
//
//	server:
//	  listen_address: "0.0.0.0:8080"
//
//	directory:
//	  file_path: "./directory.yaml"
//	  watch: true
//
// To sync the directory from Git instead of a local file:
//
//	directory:
//	  git:
//	    enabled: true
//	    repository: https://git.example.com/ops/broker-directory.git
//	    branch: main
//	    path: prod/directory.yaml
//	    auth:
//	      type: token # token read from BROKER_DIRECTORY_GIT_AUTH_TOKEN
//
//	throttle:
//	  enabled: true
//	  fail_open: true
//	  limit_priority: [api_key, endpoint, service]
//	  counter_scope_priority: [endpoint, service, api_key, client_ip]
//
//	counters:
//	  backend: sqlite
//	  sqlite:
//	    path: data/counters.db
//
//	dispatch:
//	  default_timeout: 30s
//	  handlers:
//	    billing:
//	      type: http
//	      url: http://billing.internal:8080/invoke
//
// For application-wide access use Initialize once at startup and GetConfig
// afterwards. Tests should pass explicit Config values instead.
package config
