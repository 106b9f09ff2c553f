// Package logging builds the explicit logging context handed to every component
// of a run. It is created before the run and closed (flushed) when the run ends.
package logging

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/fileevent-populator/internal/config"
)

const (
	defaultMaxSizeMB  = 100
	defaultMaxBackups = 3
)

// Context owns the run logger and the file writer behind it.
type Context struct {
	Logger zerolog.Logger
	file   *lumberjack.Logger
}

// Close flushes and closes the log file, if one was opened.
func (c *Context) Close() error {
	if c == nil || c.file == nil {
		return nil
	}
	return c.file.Close()
}

// FilePath returns the resolved log file path, or "" when file logging is off.
func (c *Context) FilePath() string {
	if c == nil || c.file == nil {
		return ""
	}
	return c.file.Filename
}

// Builder provides a fluent interface for building a logging Context
type Builder struct {
	cfg     config.LogConfig
	appName string
	console io.Writer
	now     func() time.Time
}

// NewBuilder creates a builder that logs to stderr.
func NewBuilder() *Builder {
	return &Builder{
		appName: "app",
		console: os.Stderr,
		now:     time.Now,
	}
}

// WithConfig sets the logging configuration
func (b *Builder) WithConfig(cfg config.LogConfig) *Builder {
	b.cfg = cfg
	return b
}

// WithAppName sets the name substituted for {app_name} in the file path
func (b *Builder) WithAppName(name string) *Builder {
	b.appName = name
	return b
}

// WithConsole replaces the console writer; nil disables console output.
func (b *Builder) WithConsole(w io.Writer) *Builder {
	b.console = w
	return b
}

// Build creates the logging context
func (b *Builder) Build() (*Context, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(b.cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var writers []io.Writer
	if b.console != nil {
		writers = append(writers, consoleWriter(b.console, b.cfg.Format, false))
	}

	ctx := &Context{}
	if b.cfg.File != "" {
		path := ResolveFilePath(b.cfg.File, b.appName, b.now())
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		ctx.file = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    orDefault(b.cfg.MaxSizeMB, defaultMaxSizeMB),
			MaxBackups: orDefault(b.cfg.MaxBackups, defaultMaxBackups),
			LocalTime:  true,
		}
		writers = append(writers, consoleWriter(ctx.file, b.cfg.Format, true))
	}

	if len(writers) == 0 {
		return nil, errors.New("no log output configured")
	}

	ctx.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Str("app", b.appName).
		Logger()

	return ctx, nil
}

// New builds a logging context from configuration, logging to stderr and the optional file.
func New(cfg config.LogConfig, appName string) (*Context, error) {
	return NewBuilder().WithConfig(cfg).WithAppName(appName).Build()
}

// ResolveFilePath substitutes {app_name} and {timestamp} (YYYYMMDD) in a log file pattern.
func ResolveFilePath(pattern, appName string, now time.Time) string {
	replacer := strings.NewReplacer(
		"{app_name}", appName,
		"{timestamp}", now.Format("20060102"),
	)
	return replacer.Replace(pattern)
}

func consoleWriter(out io.Writer, format string, noColor bool) io.Writer {
	switch strings.ToLower(format) {
	case "json":
		return out
	case "text":
		return zerolog.ConsoleWriter{Out: out, NoColor: true, TimeFormat: time.RFC3339}
	default:
		return zerolog.ConsoleWriter{Out: out, NoColor: noColor, TimeFormat: time.RFC3339}
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
