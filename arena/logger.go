package arena

import "fmt"

// Severity is the level of a diagnostic emitted by an engine.
type Severity uint8

const (
	SeverityTrace Severity = iota
	SeverityDebug
	SeverityInformation
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityTrace:
		return "trace"
	case SeverityDebug:
		return "debug"
	case SeverityInformation:
		return "information"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	}
	return fmt.Sprintf("severity(%d)", uint8(s))
}

// Logger receives engine diagnostics.
type Logger interface {
	Log(sev Severity, msg string)
}

// LevelEnabler is an optional Logger extension. Engines skip building block
// maps and byte dumps for severities the logger would drop.
type LevelEnabler interface {
	Enabled(sev Severity) bool
}

// LoggerFunc adapts a function to the Logger interface.
type LoggerFunc func(sev Severity, msg string)

func (f LoggerFunc) Log(sev Severity, msg string) { f(sev, msg) }

// logEnabled reports whether l wants messages at sev.
func logEnabled(l Logger, sev Severity) bool {
	if l == nil {
		return false
	}
	if e, ok := l.(LevelEnabler); ok {
		return e.Enabled(sev)
	}
	return true
}
