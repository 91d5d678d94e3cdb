package logging

import (
	"sync/atomic"

	log "github.com/bnclabs/golog"

	"github.com/joshuapare/arenakit/arena"
)

var gologok = int64(0)

// EnableGolog turns the Golog adapter on or off. It starts off, so engines
// handed a Golog stay quiet until an application opts in.
func EnableGolog(on bool) {
	if on {
		atomic.StoreInt64(&gologok, 1)
	} else {
		atomic.StoreInt64(&gologok, 0)
	}
}

// Golog is an arena.Logger writing through the golog package-level logger.
type Golog struct{}

func (Golog) Log(sev arena.Severity, msg string) {
	if atomic.LoadInt64(&gologok) == 0 {
		return
	}
	switch sev {
	case arena.SeverityTrace:
		log.Tracef("%s\n", msg)
	case arena.SeverityDebug:
		log.Debugf("%s\n", msg)
	case arena.SeverityInformation:
		log.Infof("%s\n", msg)
	case arena.SeverityWarning:
		log.Warnf("%s\n", msg)
	default:
		log.Errorf("%s\n", msg)
	}
}

func (Golog) Enabled(arena.Severity) bool {
	return atomic.LoadInt64(&gologok) > 0
}
