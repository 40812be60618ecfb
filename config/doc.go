// Package config handles configuration loading for coxswain.
//
// Configuration is loaded from YAML files with ${VAR_NAME} environment
// variable expansion and time.ParseDuration syntax for durations:
//
//	provider:
//	  name: "anthropic"
//	  model: "claude-sonnet-4-5"
//	  api_key: "${ANTHROPIC_API_KEY}"
//
//	session:
//	  gateway_timeout: "2m"
//	  command_timeout: "5m"
//	  inactivity_timeout: "30m"
//
//	executor:
//	  working_dir: "/work"
//
//	database:
//	  path: "/var/lib/coxswain/journal.db"
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
