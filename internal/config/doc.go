// Package config loads and validates the helix-backend configuration.
//
// Configuration is YAML. Environment variables in ${VAR_NAME} form are
// expanded before parsing, so secrets stay out of the file:
//
//	server:
//	  http_addr: ":8002"
//	database:
//	  path: "helix.db"
//	auth:
//	  jwt_secret: "${HELIX_JWT_SECRET}"
//	agent:
//	  script: "scenarios.toml"
//	  token_delay: "15ms"
//	chat:
//	  max_message_length: 32000
//	  compress_threshold: 40
//	logging:
//	  level: "info"
//	  format: "text"
//
// Duration fields are written as Go duration strings ("15ms", "2s") and
// parsed at load time. Load applies defaults, then validates; a config that
// loads is a config the server can start with.
package config
