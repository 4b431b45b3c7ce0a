// Package config handles configuration loading for parley-gateway.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${PARLEY_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	auth:
//	  token_ttl: "720h"
//	bot:
//	  reply_timeout: "60s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//
// Database:
//
//	database:
//	  path: "/var/lib/parley/gateway.db"
//
// Authentication:
//
//	auth:
//	  jwt_secret: "${PARLEY_JWT_SECRET}"  # required
//	  token_ttl: "720h"
//
// Bot responder:
//
//	bot:
//	  provider: "openai"        # or "echo" (default)
//	  api_key: "${OPENAI_API_KEY}"
//	  model: "gpt-4o-mini"
//	  system_prompt: "You are a helpful assistant."
//	  reply_timeout: "60s"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Usage
//
//	cfg, err := config.Load("/etc/parley/gateway.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
