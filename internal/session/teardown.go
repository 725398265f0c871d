package session

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"

	"github.com/danmuck/nbdctl/internal/observability"
	"github.com/danmuck/nbdctl/internal/tools"
)

// StepKind is the closed set of teardown operations. The inline executor and
// the generated script interpret the same step list, so the two paths cannot
// drift apart.
type StepKind int

const (
	StepDetachDevice StepKind = iota
	StepSignalBackend
	StepWaitBackend
	StepRemoveFile
	StepSelfDelete
)

func (k StepKind) String() string {
	switch k {
	case StepDetachDevice:
		return "detach_device"
	case StepSignalBackend:
		return "signal_backend"
	case StepWaitBackend:
		return "wait_backend"
	case StepRemoveFile:
		return "remove_file"
	default:
		return "self_delete"
	}
}

type Step struct {
	Kind StepKind
	Path string
}

// Plan is the ordered teardown sequence for one armed session: detach the
// device, terminate the backend, wait for it to exit, remove the owned
// files, delete the script itself.
type Plan struct {
	Client     string
	DeviceNode string
	BackendPID int
	ScriptPath string
	Steps      []Step
}

// BuildPlan captures the session's identifiers into a teardown plan. Call it
// after the backend handshake, once BackendPID is known.
func BuildPlan(client string, s *Session) *Plan {
	steps := []Step{
		{Kind: StepDetachDevice},
		{Kind: StepSignalBackend},
		{Kind: StepWaitBackend},
		{Kind: StepRemoveFile, Path: s.Socket.Path},
	}
	if s.Log.Owned {
		steps = append(steps, Step{Kind: StepRemoveFile, Path: s.Log.Path})
	}
	steps = append(steps, Step{Kind: StepSelfDelete})

	return &Plan{
		Client:     client,
		DeviceNode: s.DeviceNode,
		BackendPID: s.BackendPID,
		ScriptPath: s.Script.Path,
		Steps:      steps,
	}
}

// Script renders the plan as a self-contained, self-deleting shell script.
// Every step tolerates having already run, so a second invocation is a
// no-op, and an already-exited backend does not break the sequence.
func (p *Plan) Script() []byte {
	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	fmt.Fprintf(&b, "# teardown for %s, generated by nbdctl\n", p.DeviceNode)
	b.WriteString(`if [ "$(id -u)" -ne 0 ]; then exec sudo "$0" "$@"; fi` + "\n")

	for _, step := range p.Steps {
		switch step.Kind {
		case StepDetachDevice:
			fmt.Fprintf(&b, "%s -d %s >/dev/null 2>&1\n", shellEscape(p.Client), shellEscape(p.DeviceNode))
		case StepSignalBackend:
			fmt.Fprintf(&b, "kill %d 2>/dev/null\n", p.BackendPID)
		case StepWaitBackend:
			fmt.Fprintf(&b, "while kill -0 %d 2>/dev/null; do sleep 0.2; done\n", p.BackendPID)
		case StepRemoveFile:
			fmt.Fprintf(&b, "rm -f %s\n", shellEscape(step.Path))
		case StepSelfDelete:
			b.WriteString(`rm -f "$0"` + "\n")
		}
	}
	return []byte(b.String())
}

// WriteScript writes the rendered script without execute permission first
// and grants it only once the content is complete.
func (p *Plan) WriteScript() error {
	if err := os.WriteFile(p.ScriptPath, p.Script(), 0o600); err != nil {
		return fmt.Errorf("%w: write teardown script: %v", ErrProvision, err)
	}
	if err := os.Chmod(p.ScriptPath, 0o700); err != nil {
		return fmt.Errorf("%w: chmod teardown script: %v", ErrProvision, err)
	}
	return nil
}

// Executor runs a plan in-process. It is the foreground-interrupt and
// bind-failure path; the generated script is the deferred daemon path.
type Executor struct {
	Runner tools.CommandRunner
	// Signal defaults to unix.Kill. Sending signal 0 probes liveness.
	Signal       func(pid int, sig unix.Signal) error
	PollInterval time.Duration

	mu  sync.Mutex
	ran bool
}

// Execute interprets the plan's steps in order. Step failures are logged and
// skipped, never fatal: the backend may already have exited and files may
// already be gone. A second Execute is a no-op.
func (e *Executor) Execute(p *Plan) {
	e.mu.Lock()
	if e.ran {
		e.mu.Unlock()
		log.Debug().Msg("teardown already executed")
		return
	}
	e.ran = true
	e.mu.Unlock()

	signalFn := e.Signal
	if signalFn == nil {
		signalFn = func(pid int, sig unix.Signal) error { return unix.Kill(pid, sig) }
	}
	interval := e.PollInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	for _, step := range p.Steps {
		observability.RecordTeardownStep(step.Kind.String())
		switch step.Kind {
		case StepDetachDevice:
			if _, stderr, _, err := e.Runner.Run(p.Client, "-d", p.DeviceNode); err != nil {
				log.Warn().Err(err).Str("node", p.DeviceNode).
					Str("stderr", strings.TrimSpace(string(stderr))).Msg("teardown: detach failed")
			}
		case StepSignalBackend:
			if err := signalFn(p.BackendPID, unix.SIGTERM); err != nil {
				log.Debug().Err(err).Int("pid", p.BackendPID).Msg("teardown: backend already gone")
			}
		case StepWaitBackend:
			for signalFn(p.BackendPID, 0) == nil {
				time.Sleep(interval)
			}
		case StepRemoveFile:
			removeIgnoringAbsent(step.Path)
		case StepSelfDelete:
			removeIgnoringAbsent(p.ScriptPath)
		}
		log.Debug().Str("step", step.Kind.String()).Msg("teardown step done")
	}
}

func removeIgnoringAbsent(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("path", path).Msg("teardown: could not remove")
	}
}

func shellEscape(value string) string {
	if value == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(value, "'", `'"'"'`) + "'"
}
