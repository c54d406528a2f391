// Package config handles configuration loading for coven-chat.
//
// # Overview
//
// Configuration is loaded from YAML or TOML files with environment variable
// expansion. Every field has a default, so running without a file works.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from COVEN_CHAT_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/coven/chat.yaml
//  3. ~/.config/coven/chat.yaml
//
// Files ending in .toml are decoded as TOML. A .env file in the same
// directory is loaded first; variables already present in the environment
// are not overridden.
//
// # Environment Variable Expansion
//
//	api:
//	  api_base_url: "${COVEN_API_URL}"
//
// Unset variables expand to the empty string.
//
// # Configuration Sections
//
//	api:
//	  auth_base_url: "https://bugswriter.ai"
//	  api_base_url: "https://sys.bugswriter.ai"
//	  timeout: "30s"
//
//	database:
//	  path: "~/.local/share/coven/chat.db"
//
//	stream:
//	  max_line_bytes: 4194304
//	  idle_timeout: "5m"
//
//	chat:
//	  duplicate_window: "2s"
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Usage
//
//	cfg, err := config.LoadOrDefault(config.Path())
//	if err != nil {
//	    return err
//	}
package config
