package hostenv

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/nbdctl/internal/tools"
)

var ErrModuleLoadFailed = errors.New("hostenv: nbd module load failed")

const (
	defaultModuleName = "nbd"
	defaultProcPath   = "/proc/modules"
)

// ModuleEnsurer checks that the nbd driver module is loaded and loads it on
// demand. Loading requires root; the privilege gate runs first.
type ModuleEnsurer struct {
	Runner   tools.CommandRunner
	Module   string
	ProcPath string
}

func NewModuleEnsurer(r tools.CommandRunner) ModuleEnsurer {
	return ModuleEnsurer{Runner: r, Module: defaultModuleName, ProcPath: defaultProcPath}
}

// Ensure returns nil once the module is loaded. A failed modprobe is
// ErrModuleLoadFailed; the orchestrator never proceeds without the driver.
func (e ModuleEnsurer) Ensure() error {
	if e.loaded() {
		log.Debug().Str("module", e.module()).Msg("kernel module already loaded")
		return nil
	}

	log.Info().Str("module", e.module()).Msg("loading kernel module")
	_, stderr, exitCode, err := e.Runner.Run("modprobe", e.module())
	if err != nil {
		return fmt.Errorf("%w: modprobe exit=%d stderr=%q", ErrModuleLoadFailed,
			exitCode, strings.TrimSpace(string(stderr)))
	}
	return nil
}

func (e ModuleEnsurer) module() string {
	if e.Module != "" {
		return e.Module
	}
	return defaultModuleName
}

// loaded scans /proc/modules for the driver, falling back to lsmod when the
// proc file cannot be read. A scan failure reports not-loaded; modprobe on an
// already-loaded module is a no-op, so the worst case is one extra exec.
func (e ModuleEnsurer) loaded() bool {
	procPath := e.ProcPath
	if procPath == "" {
		procPath = defaultProcPath
	}

	f, err := os.Open(procPath)
	if err == nil {
		defer f.Close()
		return scanModules(bufio.NewScanner(f), e.module())
	}

	stdout, _, _, err := e.Runner.Run("lsmod")
	if err != nil {
		return false
	}
	return scanModules(bufio.NewScanner(strings.NewReader(string(stdout))), e.module())
}

func scanModules(sc *bufio.Scanner, module string) bool {
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) > 0 && fields[0] == module {
			return true
		}
	}
	return false
}
