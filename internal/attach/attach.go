package attach

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"

	"github.com/danmuck/nbdctl/internal/backend"
	"github.com/danmuck/nbdctl/internal/device"
	"github.com/danmuck/nbdctl/internal/hostenv"
	"github.com/danmuck/nbdctl/internal/observability"
	"github.com/danmuck/nbdctl/internal/session"
	"github.com/danmuck/nbdctl/internal/tools"
)

// Exit codes of the nbdctl CLI.
const (
	ExitOK          = 0
	ExitUsage       = 1
	ExitEnvironment = 2
	ExitResource    = 3
	ExitLaunch      = 4
)

// Options configures one attach session. Zero values mean "derive a
// default"; the test hooks (Runner, Stdout, Confirm, Signals, DevDir,
// ProcModules, TempDir) default to the real host environment.
type Options struct {
	Foreground bool
	Quiet      bool

	DeviceNode string
	LogPath    string
	SocketPath string
	ScriptPath string

	Backend     string
	BackendArgs []string

	ClientDirs   []string
	PollInterval time.Duration
	StatusAddr   string

	Runner      tools.CommandRunner
	Stdout      io.Writer
	Stderr      io.Writer
	Confirm     func(path string) bool
	Signals     chan os.Signal
	Signal      func(pid int, sig unix.Signal) error
	DevDir      string
	ProcModules string
	TempDir     string
}

// Run executes the full attach pipeline. Every resource created along the
// way is released exactly once on every failure path: provisioning failures
// roll back partial creations, a launch failure rolls back everything, and
// a bind failure runs the full teardown plan inline, terminating the
// already-launched backend.
func Run(ctx context.Context, opts Options) error {
	runner := opts.Runner
	if runner == nil {
		runner = tools.ExecRunner{}
	}

	ensurer := hostenv.NewModuleEnsurer(runner)
	if opts.ProcModules != "" {
		ensurer.ProcPath = opts.ProcModules
	}
	if err := ensurer.Ensure(); err != nil {
		return err
	}

	locator := hostenv.NewClientLocator(runner)
	if len(opts.ClientDirs) > 0 {
		locator.FallbackDirs = opts.ClientDirs
	}
	client, err := locator.Locate()
	if err != nil {
		return err
	}

	discoverer := device.Discoverer{Client: client, Runner: runner, DevDir: opts.DevDir}
	node, err := discoverer.Discover(opts.DeviceNode)
	if err != nil {
		return err
	}

	mode := session.Daemon
	if opts.Foreground {
		mode = session.Foreground
	}
	s, err := session.Provision(session.ProvisionOptions{
		DeviceNode: node,
		ScriptPath: opts.ScriptPath,
		LogPath:    opts.LogPath,
		SocketPath: opts.SocketPath,
		Mode:       mode,
		Quiet:      opts.Quiet,
		Confirm:    opts.Confirm,
		TempDir:    opts.TempDir,
	})
	if err != nil {
		return err
	}

	launcher := backend.Launcher{Runner: runner}
	if opts.Foreground && !opts.Quiet && s.Log.Path == "" {
		// Attached session without a log file: the backend keeps the
		// caller's error stream for its diagnostics.
		launcher.Stderr = opts.Stderr
		if launcher.Stderr == nil {
			launcher.Stderr = os.Stderr
		}
	}
	hs, err := launcher.Launch(opts.Backend, opts.BackendArgs, s.Socket.Path, s.Log.Path)
	if err != nil {
		s.Rollback()
		observability.RecordLaunchFailure()
		return err
	}
	s.BackendPID = hs.PID
	s.BlockSize = hs.BlockSize

	// The session is armed: from here every failure runs the teardown plan,
	// which terminates the backend and removes the owned files.
	executor := &session.Executor{Runner: runner, Signal: opts.Signal, PollInterval: opts.PollInterval}
	plan := session.BuildPlan(client, s)
	if err := plan.WriteScript(); err != nil {
		executor.Execute(plan)
		return err
	}

	waiter := backend.Waiter{PollInterval: opts.PollInterval}
	if err := waiter.Await(ctx, s.Socket.Path); err != nil {
		executor.Execute(plan)
		return err
	}

	binder := device.Binder{Client: client, Runner: runner}
	if err := binder.Bind(node, s.Socket.Path, hs.BlockSize); err != nil {
		executor.Execute(plan)
		return err
	}

	if opts.Foreground && opts.StatusAddr != "" {
		observability.NewStatusServer(opts.StatusAddr, s.Snapshot).Start()
	}

	runnerFSM := &session.Runner{Executor: executor, Stdout: opts.Stdout, Signals: opts.Signals}
	return runnerFSM.Run(s, plan)
}

// ExitCode maps a pipeline error to the CLI's exit code contract.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, session.ErrUserAborted):
		return ExitUsage
	case errors.Is(err, hostenv.ErrModuleLoadFailed), errors.Is(err, hostenv.ErrClientNotFound):
		return ExitEnvironment
	case errors.Is(err, device.ErrNoDevice), errors.Is(err, session.ErrProvision):
		return ExitResource
	case errors.Is(err, backend.ErrLaunchFailed), errors.Is(err, device.ErrBindFailed):
		return ExitLaunch
	default:
		log.Debug().Err(err).Msg("unclassified failure")
		return ExitUsage
	}
}
