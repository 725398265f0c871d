package tools

import (
	"bytes"
	"errors"
	"io"
	"os/exec"
)

// CommandRunner abstracts external command execution. Every command the
// orchestrator issues against the host (modprobe, lsmod, nbd-client, the
// backend binary) goes through this interface so tests can substitute fakes.
type CommandRunner interface {
	Run(name string, args ...string) ([]byte, []byte, int32, error)
}

// ExecRunner executes commands on the local host.
type ExecRunner struct{}

// Run executes the command and captures stdout and stderr separately. The
// returned exit code is 0 on success, the command's own code on failure, and
// 127 when the binary could not be started at all.
func (r ExecRunner) Run(name string, args ...string) ([]byte, []byte, int32, error) {
	cmd := exec.Command(name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.Bytes(), stderr.Bytes(), 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return stdout.Bytes(), stderr.Bytes(), int32(exitErr.ExitCode()), err
	}

	exitCode := int32(1)
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		exitCode = 127
	}
	return stdout.Bytes(), stderr.Bytes(), exitCode, err
}

// StreamingRunner is the stderr-passthrough variant of CommandRunner: stdout
// is still captured for parsing, stderr stays attached to the caller's
// stream.
type StreamingRunner interface {
	RunStreaming(stderr io.Writer, name string, args ...string) ([]byte, int32, error)
}

// RunStreaming executes the command with stderr wired to the given stream.
// An *os.File stream is handed to the child as a descriptor, so a daemonized
// grandchild keeping stderr open does not block the wait. Exit-code mapping
// matches Run.
func (r ExecRunner) RunStreaming(stderrDst io.Writer, name string, args ...string) ([]byte, int32, error) {
	cmd := exec.Command(name, args...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = stderrDst

	err := cmd.Run()
	if err == nil {
		return stdout.Bytes(), 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return stdout.Bytes(), int32(exitErr.ExitCode()), err
	}

	exitCode := int32(1)
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		exitCode = 127
	}
	return stdout.Bytes(), exitCode, err
}
