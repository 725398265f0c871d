package hostenv

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/nbdctl/internal/testutil/testlog"
)

type whichFakeRunner struct {
	commands [][]string
	stdout   []byte
	err      error
}

func (r *whichFakeRunner) Run(name string, args ...string) ([]byte, []byte, int32, error) {
	cmd := []string{name}
	cmd = append(cmd, args...)
	r.commands = append(r.commands, cmd)
	if r.err != nil {
		return nil, nil, 1, r.err
	}
	return r.stdout, nil, 0, nil
}

func TestLocatePrefersPathLookup(t *testing.T) {
	testlog.Start(t)
	runner := &whichFakeRunner{}
	l := NewClientLocator(runner)
	l.LookPath = func(string) (string, error) { return "/usr/bin/nbd-client", nil }

	path, err := l.Locate()
	if err != nil {
		t.Fatalf("locate: %v", err)
	}
	if path != "/usr/bin/nbd-client" {
		t.Fatalf("unexpected path: %q", path)
	}
	if len(runner.commands) != 0 {
		t.Fatalf("expected no elevated lookup, got %v", runner.commands)
	}
}

func TestLocateFallsBackToSbinDirs(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	candidate := filepath.Join(dir, "nbd-client")
	if err := os.WriteFile(candidate, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("write candidate: %v", err)
	}

	l := NewClientLocator(&whichFakeRunner{err: errors.New("no sudo")})
	l.LookPath = func(string) (string, error) { return "", errors.New("not in PATH") }
	l.FallbackDirs = []string{t.TempDir(), dir}

	path, err := l.Locate()
	if err != nil {
		t.Fatalf("locate: %v", err)
	}
	if path != candidate {
		t.Fatalf("unexpected path: %q", path)
	}
}

func TestLocateSkipsNonExecutableCandidates(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "nbd-client"), []byte("data"), 0o644); err != nil {
		t.Fatalf("write candidate: %v", err)
	}

	l := NewClientLocator(&whichFakeRunner{err: errors.New("no sudo")})
	l.LookPath = func(string) (string, error) { return "", errors.New("not in PATH") }
	l.FallbackDirs = []string{dir}

	if _, err := l.Locate(); !errors.Is(err, ErrClientNotFound) {
		t.Fatalf("expected ErrClientNotFound, got %v", err)
	}
}

func TestLocateUsesElevatedLookupLast(t *testing.T) {
	testlog.Start(t)
	runner := &whichFakeRunner{stdout: []byte("/opt/sbin/nbd-client\n")}
	l := NewClientLocator(runner)
	l.LookPath = func(string) (string, error) { return "", errors.New("not in PATH") }
	l.FallbackDirs = []string{t.TempDir()}

	path, err := l.Locate()
	if err != nil {
		t.Fatalf("locate: %v", err)
	}
	if path != "/opt/sbin/nbd-client" {
		t.Fatalf("unexpected path: %q", path)
	}
	if len(runner.commands) != 1 || runner.commands[0][0] != "sudo" || runner.commands[0][1] != "which" {
		t.Fatalf("unexpected elevated lookup: %v", runner.commands)
	}
}

func TestLocateFailsWhenNothingMatches(t *testing.T) {
	testlog.Start(t)
	l := NewClientLocator(&whichFakeRunner{err: errors.New("no sudo")})
	l.LookPath = func(string) (string, error) { return "", errors.New("not in PATH") }
	l.FallbackDirs = []string{t.TempDir()}

	if _, err := l.Locate(); !errors.Is(err, ErrClientNotFound) {
		t.Fatalf("expected ErrClientNotFound, got %v", err)
	}
}
