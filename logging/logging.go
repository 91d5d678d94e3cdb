// Package logging wires engine diagnostics into slog or golog.
package logging

import (
	"cmp"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joshuapare/arenakit/arena"
)

// L receives everything the Slog adapter forwards. It discards until Init
// enables it.
var L = slog.New(slog.NewTextHandler(io.Discard, nil))

// current is the dated file behind L, closed when Init replaces it.
var current *os.File

// LevelTrace sits below slog.LevelDebug and carries engine START/END traces.
const LevelTrace = slog.LevelDebug - 4

const (
	defaultName      = "arenakit"
	defaultRetention = 30 * 24 * time.Hour
	logSuffix        = ".log"
	dateLayout       = "2006-01-02"
)

// Options configures Init.
type Options struct {
	Enabled   bool          // false discards all output
	Name      string        // log file prefix; default "arenakit"
	LogDir    string        // default ~/.<Name>/logs
	Level     slog.Level    // zero value is slog.LevelInfo
	Stderr    bool          // text to stderr instead of JSON to a dated file
	Retention time.Duration // dated files older than this are removed; default 30 days
}

// Init replaces L according to opts, closing the file a previous Init opened.
func Init(opts Options) error {
	if err := closeCurrent(); err != nil {
		return err
	}
	if !opts.Enabled {
		L = slog.New(slog.NewTextHandler(io.Discard, nil))
		return nil
	}
	hopts := &slog.HandlerOptions{Level: opts.Level, ReplaceAttr: replaceLevel}
	if opts.Stderr {
		L = slog.New(slog.NewTextHandler(os.Stderr, hopts))
		return nil
	}

	name := cmp.Or(opts.Name, defaultName)
	dir := opts.LogDir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		dir = filepath.Join(home, "."+name, "logs")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	now := time.Now()
	retention := opts.Retention
	if retention <= 0 {
		retention = defaultRetention
	}
	removeExpired(dir, name, now.Add(-retention))

	f, err := os.OpenFile(logFile(dir, name, now), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	L = slog.New(slog.NewJSONHandler(f, hopts))
	current = f
	return nil
}

// closeCurrent discards L and closes its file, if any.
func closeCurrent() error {
	if current == nil {
		return nil
	}
	L = slog.New(slog.NewTextHandler(io.Discard, nil))
	err := current.Close()
	current = nil
	return err
}

func logFile(dir, name string, day time.Time) string {
	return filepath.Join(dir, name+"-"+day.Format(dateLayout)+logSuffix)
}

// replaceLevel prints LevelTrace as "TRACE" rather than "DEBUG-4".
func replaceLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
			a.Value = slog.StringValue("TRACE")
		}
	}
	return a
}

// removeExpired deletes name-YYYY-MM-DD.log files dated before cutoff.
// Errors are ignored; a stale file only costs disk space.
func removeExpired(dir, name string, cutoff time.Time) {
	matches, err := filepath.Glob(filepath.Join(dir, name+"-*"+logSuffix))
	if err != nil {
		return
	}
	prefix := name + "-"
	for _, path := range matches {
		stamp := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), prefix), logSuffix)
		day, err := time.Parse(dateLayout, stamp)
		if err != nil {
			continue
		}
		if day.Before(cutoff) {
			os.Remove(path)
		}
	}
}

// Level maps an engine severity to a slog level.
func Level(sev arena.Severity) slog.Level {
	switch sev {
	case arena.SeverityTrace:
		return LevelTrace
	case arena.SeverityDebug:
		return slog.LevelDebug
	case arena.SeverityInformation:
		return slog.LevelInfo
	case arena.SeverityWarning:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// Slog is an arena.Logger writing to a slog.Logger. A nil Logger field means
// the package logger L at the time of the call.
//
// Engine messages start with the engine type ("allocator_buddies_system: ");
// Slog moves that prefix into an "engine" attribute.
type Slog struct {
	Logger *slog.Logger
}

func (s Slog) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return L
}

func (s Slog) Log(sev arena.Severity, msg string) {
	args := []any{"severity", sev.String()}
	if engine, rest, ok := strings.Cut(msg, ": "); ok && strings.HasPrefix(engine, "allocator_") {
		args = append(args, "engine", engine)
		msg = rest
	}
	s.logger().Log(context.Background(), Level(sev), msg, args...)
}

func (s Slog) Enabled(sev arena.Severity) bool {
	return s.logger().Enabled(context.Background(), Level(sev))
}

var (
	_ arena.Logger       = Slog{}
	_ arena.LevelEnabler = Slog{}
)
