// Package logging provides structured logging for the EMS console.
//
// It wraps the standard log/slog package so that every component logs with
// the same handler, level filter and default fields (service, version).
//
// Logging is configured via the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Never log secrets: JWT secrets, push tokens and password hashes stay out of log fields.
package logging
