package hostenv

import (
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/rs/zerolog/log"
)

const sudoBinary = "sudo"

// RunningAsRoot reports whether the process already has the rights needed
// for kernel operations (module loading, device binding).
func RunningAsRoot() bool {
	return os.Geteuid() == 0
}

// ReexecWithSudo re-runs the entire invocation under sudo, wiring the
// caller's stdio straight through so overwrite prompts and the success line
// behave as if the elevated child were the original process. It returns the
// child's exit code. Elevation failure surfaces sudo's own error.
func ReexecWithSudo(argv []string) (int, error) {
	if len(argv) == 0 {
		return 1, fmt.Errorf("hostenv: empty argv for re-exec")
	}

	path, err := exec.LookPath(sudoBinary)
	if err != nil {
		return 1, fmt.Errorf("hostenv: sudo not available: %w", err)
	}

	log.Debug().Strs("argv", argv).Msg("re-executing under sudo")

	cmd := exec.Command(path, argv...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	err = cmd.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return 1, fmt.Errorf("hostenv: sudo re-exec: %w", err)
}
