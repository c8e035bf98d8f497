package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Level represents a log level.
type Level = slog.Level

// Log levels.
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// Format represents the log output format.
type Format string

// Output formats.
const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Config holds logging configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level Level

	// Format is the output format (text or json).
	Format Format

	// Output is the writer to send logs to. Defaults to os.Stderr.
	Output io.Writer

	// AddSource adds source file and line to log entries.
	AddSource bool

	// File additionally writes every entry to a rotating log file.
	File *FileConfig
}

// FileConfig configures rotating file output.
type FileConfig struct {
	// Path of the active log file. Rotated files are kept next to it.
	Path string

	// MaxSizeMB is the size at which the file is rotated. 0 means 100 MB.
	MaxSizeMB int

	// MaxBackups is the number of rotated files to keep. 0 keeps all.
	MaxBackups int

	// MaxAgeDays removes rotated files older than this. 0 disables.
	MaxAgeDays int

	// Compress gzips rotated files.
	Compress bool
}

// New creates a new slog.Logger with the given configuration.
// File output is ignored; use Open to get a logger that also writes to a file.
func New(cfg Config) *slog.Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	return slog.New(newHandler(cfg, cfg.Output))
}

// Open creates a logger like New and, when cfg.File is set, fans every
// entry out to a rotating file as well. The returned close function releases
// the file and must be called on shutdown.
func Open(cfg Config) (*slog.Logger, func() error) {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	if cfg.File == nil || cfg.File.Path == "" {
		return New(cfg), func() error { return nil }
	}

	file := &lumberjack.Logger{
		Filename:   filepath.Clean(cfg.File.Path),
		MaxSize:    cfg.File.MaxSizeMB,
		MaxBackups: cfg.File.MaxBackups,
		MaxAge:     cfg.File.MaxAgeDays,
		Compress:   cfg.File.Compress,
	}

	handler := NewMultiHandler(
		newHandler(cfg, cfg.Output),
		newHandler(cfg, file),
	)
	return slog.New(handler), file.Close
}

func newHandler(cfg Config, w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
	}
	switch cfg.Format {
	case FormatJSON:
		return slog.NewJSONHandler(w, opts)
	default:
		return slog.NewTextHandler(w, opts)
	}
}

// Nop returns a no-op logger that discards all output.
// Use this when a logger is required but logging is disabled.
func Nop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// ParseLevel parses a log level string, ignoring case.
// Valid values: "debug", "info", "warn", "warning", "error".
// Returns LevelInfo if the string is not recognized.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// ParseFormat parses a log format string, ignoring case.
// Valid values: "text", "json".
// Returns FormatText if the string is not recognized.
func ParseFormat(s string) Format {
	if strings.EqualFold(s, string(FormatJSON)) {
		return FormatJSON
	}
	return FormatText
}
