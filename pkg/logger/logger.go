package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/itchyny/timefmt-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
)

var (
	// Log is the global logger instance
	Log zerolog.Logger
)

func init() {
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	zerolog.TimeFieldFormat = time.RFC3339Nano

	Log = zerolog.New(consoleWriter(os.Stdout)).
		Level(zerolog.InfoLevel).
		With().
		Timestamp().
		Logger()
}

// Options configures New.
type Options struct {
	Level   string
	Format  string // console or json
	File    string // strftime template, rendered against Now
	Verbose bool   // forces debug level
	Now     time.Time
	Stdout  io.Writer
}

// New builds a logger writing to stdout and, when File is set, to the rendered
// log file as well. The returned closer releases the file.
func New(opts Options) (zerolog.Logger, io.Closer, error) {
	out := opts.Stdout
	if out == nil {
		out = os.Stdout
	}
	if opts.Format != "json" {
		out = consoleWriter(out)
	}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		now := opts.Now
		if now.IsZero() {
			now = time.Now()
		}
		path := timefmt.Format(now, opts.File)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("open log file: %w", err)
		}
		out = zerolog.MultiLevelWriter(out, f)
		closer = f
	}

	level := parseLevel(opts.Level)
	if opts.Verbose {
		level = zerolog.DebugLevel
	}

	l := zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Logger()
	return l, closer, nil
}

// RunID names a run after its process date.
func RunID(processDate time.Time) string {
	return timefmt.Format(processDate, "s3_segregation_%Y%m%d")
}

func parseLevel(levelStr string) zerolog.Level {
	if levelStr == "" {
		return zerolog.InfoLevel
	}
	level, err := zerolog.ParseLevel(levelStr)
	if err != nil {
		Log.Warn().Str("level", levelStr).Msg("invalid log level, defaulting to info")
		return zerolog.InfoLevel
	}
	return level
}

func consoleWriter(out io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: "2006-01-02 15:04:05",
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
