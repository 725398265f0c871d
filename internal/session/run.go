package session

import (
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"

	"github.com/danmuck/nbdctl/internal/observability"
)

// Runner drives the session through READY, RUNNING and, in foreground mode,
// STOPPING and STOPPED.
type Runner struct {
	Executor *Executor
	Stdout   io.Writer
	// Signals overrides the interrupt source in tests. When nil, Run installs
	// a SIGINT/SIGTERM handler itself.
	Signals chan os.Signal
}

// Run reports the session and either returns immediately (daemon mode,
// leaving the backend and binding alive for the generated script to undo
// later) or blocks until interrupted and tears down inline (foreground
// mode). A second interrupt while teardown is running is ignored.
func (r *Runner) Run(s *Session, p *Plan) error {
	stdout := r.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	s.SetState(Ready)
	s.SetState(Running)
	observability.RecordSessionStarted(s.Mode.String())
	r.report(s, stdout)

	if s.Mode == Daemon {
		return nil
	}

	sig := r.Signals
	if sig == nil {
		sig = make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, unix.SIGTERM)
	}

	<-sig
	if r.Signals == nil {
		// Teardown is underway; a second interrupt must not re-enter it.
		signal.Ignore(os.Interrupt, unix.SIGTERM)
	}

	log.Info().Str("node", s.DeviceNode).Msg("interrupt received, tearing down")
	s.SetState(Stopping)
	r.Executor.Execute(p)
	s.SetState(Stopped)
	return nil
}

// report emits the success output. The device node always goes to stdout as
// a single line; in quiet mode that line is the only output of the entire
// invocation. The auxiliary paths go through the logger so quiet mode drops
// them.
func (r *Runner) report(s *Session, stdout io.Writer) {
	fmt.Fprintln(stdout, s.DeviceNode)
	if s.Quiet {
		return
	}
	ev := log.Info().Str("node", s.DeviceNode).Str("teardown_script", s.Script.Path)
	if s.Log.Path != "" {
		ev = ev.Str("log", s.Log.Path)
	}
	if s.Mode == Daemon {
		ev.Msg("device attached, run the teardown script to detach")
	} else {
		ev.Msg("device attached, interrupt to detach")
	}
}
