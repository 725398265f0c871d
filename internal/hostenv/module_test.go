package hostenv

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/nbdctl/internal/testutil/testlog"
)

type moduleFakeRunner struct {
	commands [][]string
	exitCode int32
	stderr   []byte
	err      error
}

func (r *moduleFakeRunner) Run(name string, args ...string) ([]byte, []byte, int32, error) {
	cmd := []string{name}
	cmd = append(cmd, args...)
	r.commands = append(r.commands, cmd)
	return nil, r.stderr, r.exitCode, r.err
}

func writeProcModules(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "modules")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write proc modules: %v", err)
	}
	return path
}

func TestEnsureSkipsModprobeWhenLoaded(t *testing.T) {
	testlog.Start(t)
	runner := &moduleFakeRunner{}
	e := NewModuleEnsurer(runner)
	e.ProcPath = writeProcModules(t, "loop 40960 0 - Live\nnbd 45056 2 - Live\n")

	if err := e.Ensure(); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if len(runner.commands) != 0 {
		t.Fatalf("expected no commands, got %v", runner.commands)
	}
}

func TestEnsureLoadsModuleWhenAbsent(t *testing.T) {
	testlog.Start(t)
	runner := &moduleFakeRunner{}
	e := NewModuleEnsurer(runner)
	e.ProcPath = writeProcModules(t, "loop 40960 0 - Live\nnbdkit_dummy 1 0 - Live\n")

	if err := e.Ensure(); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if len(runner.commands) != 1 {
		t.Fatalf("expected one command, got %v", runner.commands)
	}
	if runner.commands[0][0] != "modprobe" || runner.commands[0][1] != "nbd" {
		t.Fatalf("unexpected command: %v", runner.commands[0])
	}
}

func TestEnsureReportsModprobeFailure(t *testing.T) {
	testlog.Start(t)
	runner := &moduleFakeRunner{
		exitCode: 1,
		stderr:   []byte("modprobe: FATAL: Module nbd not found\n"),
		err:      errors.New("exit status 1"),
	}
	e := NewModuleEnsurer(runner)
	e.ProcPath = writeProcModules(t, "loop 40960 0 - Live\n")

	err := e.Ensure()
	if !errors.Is(err, ErrModuleLoadFailed) {
		t.Fatalf("expected ErrModuleLoadFailed, got %v", err)
	}
}

func TestEnsureFallsBackToLsmod(t *testing.T) {
	testlog.Start(t)
	runner := &lsmodFakeRunner{lsmod: "Module Size Used by\nnbd 45056 0\n"}
	e := NewModuleEnsurer(runner)
	e.ProcPath = filepath.Join(t.TempDir(), "does-not-exist")

	if err := e.Ensure(); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if len(runner.commands) != 1 || runner.commands[0][0] != "lsmod" {
		t.Fatalf("expected a single lsmod probe, got %v", runner.commands)
	}
}

type lsmodFakeRunner struct {
	commands [][]string
	lsmod    string
}

func (r *lsmodFakeRunner) Run(name string, args ...string) ([]byte, []byte, int32, error) {
	cmd := []string{name}
	cmd = append(cmd, args...)
	r.commands = append(r.commands, cmd)
	if name == "lsmod" {
		return []byte(r.lsmod), nil, 0, nil
	}
	return nil, nil, 0, nil
}
