// Package logging provides structured logging for the auth core.
//
// Loggers wrap log/slog with a JSON or text handler, attach service and
// version to every entry, and can write to a size-rotated file through
// lumberjack.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, file
//	  file:
//	    path: "./logs/authcore.log"
//	    max_size: 100    # MB
//	    max_backups: 5
//	    max_age: 30      # days
//
// # Security
//
// Attributes named password, password_hash, secret, token, access_token,
// refresh_token or authorization are written as [REDACTED] at any group
// depth. Log usernames and token IDs instead.
package logging
