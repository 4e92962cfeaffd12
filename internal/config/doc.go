// Package config handles configuration loading for chatline and its
// development backend.
//
// # Overview
//
// Configuration is loaded from YAML (or TOML, by .toml extension) files with
// environment variable expansion. Fields a file leaves out keep the values of
// Default.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from CHATLINE_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/chatline/config.yaml
//  3. ~/.config/chatline/config.yaml
//
// A missing file at location 2 or 3 is not an error.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	user:
//	  token: "${CHATLINE_TOKEN}"
//
// # Configuration Sections
//
//	server:
//	  url: "http://127.0.0.1:8765"
//	  chat_path: "/api/chat"
//
//	user:
//	  handle: "alice"
//	  token: "${CHATLINE_TOKEN}"
//
//	session:
//	  history_limit: 50       # entries printed by `chatline history`
//	  dedupe_ttl: "10m"       # how long a delivered message id is remembered
//	  dedupe_size: 4096
//	  send_timeout: "10s"
//	  ready_timeout: "5s"     # wait for the chat channel before sending
//	  untitled_title: "New Chat"
//
//	backend:
//	  addr: "127.0.0.1:8765"
//	  database_path: "./chatline-backend.db"
//	  chunk_delay: "30ms"
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// Duration values use Go's time.ParseDuration syntax.
package config
