// Package config handles configuration loading for coven-wrapper.
//
// # Sources
//
// Configuration is assembled in this order, later sources winning:
//
//  1. An optional file (COVEN_WRAPPER_CONFIG). Files ending in .toml are
//     decoded as TOML, anything else as YAML. ${VAR_NAME} references are
//     expanded before decoding.
//  2. Environment variables, one per field (see the envconfig tags).
//  3. Built-in defaults for anything still unset.
//
// # Environment
//
//	PORT                     public listener port (8080)
//	SETUP_PASSWORD           required; protects /setup
//	OPENCLAW_GATEWAY_TOKEN   external bearer token override
//	OPENCLAW_STATE_DIR       gateway state directory (~/.openclaw)
//	OPENCLAW_WORKSPACE_DIR   gateway workspace (<state>/workspace)
//	OPENCLAW_CLI             gateway CLI executable (openclaw)
//	INTERNAL_GATEWAY_HOST    child bind host (127.0.0.1)
//	INTERNAL_GATEWAY_PORT    child port (18789)
//	GATEWAY_READY_TIMEOUT    readiness deadline (20s)
//	GATEWAY_POLL_INTERVAL    pause between probe rounds (250ms)
//	GATEWAY_RESTART_GRACE    pause after termination on restart (1500ms)
//	GATEWAY_PROCESS_PATTERN  regexp for untracked gateway executables
//	LOG_LEVEL, LOG_FORMAT    info/text by default
//
// # Durations
//
// Duration values use Go's time.ParseDuration syntax ("20s", "250ms"). A bare
// integer is read as milliseconds.
//
// # Example
//
//	server:
//	  port: 8080
//	setup:
//	  password: "${SETUP_PASSWORD}"
//	gateway:
//	  state_dir: "/data/.openclaw"
//	  ready_timeout: "30s"
//	logging:
//	  level: "debug"
//	  format: "json"
package config
