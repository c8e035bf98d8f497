// Package logging provides structured logging configuration for the
// superserver.
//
// This package wraps log/slog so every component logs the same way. It
// supports configurable log levels, text or JSON output and an optional
// rotating log file.
//
// # Usage
//
//	logger, closeLog := logging.Open(logging.Config{
//	    Level:  logging.LevelInfo,
//	    Format: logging.FormatText,
//	    File:   &logging.FileConfig{Path: "/var/log/superserver.log", MaxSizeMB: 50},
//	})
//	defer closeLog()
//
//	logger.Info("server started", "protocol", "echo", "port", 2007)
//	logger.Error("failed to bind", "error", err)
//
// # Log Levels
//
// Four log levels are supported:
//   - Debug: per-connection events (open, close, idle timeout, rate limited)
//   - Info: server lifecycle
//   - Warn: handler failures and reload notices
//   - Error: bind and accept failures
//
// # Integration
//
// Components accept a *slog.Logger through an option or setter. If no
// logger is provided, they use logging.Nop().
package logging
