package hostenv

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/nbdctl/internal/tools"
)

var ErrClientNotFound = errors.New("hostenv: nbd-client not found")

const defaultClientBinary = "nbd-client"

// sbin directories are commonly absent from non-root PATHs, which is where
// nbd-client usually lives.
var defaultFallbackDirs = []string{"/usr/local/sbin", "/usr/sbin", "/sbin"}

// ClientLocator resolves the kernel-attach utility. Search order: standard
// PATH lookup, fixed fallback directories, then an elevated lookup through
// sudo (root's PATH may differ from the invoking user's).
type ClientLocator struct {
	Runner       tools.CommandRunner
	Binary       string
	FallbackDirs []string
	LookPath     func(string) (string, error)
}

func NewClientLocator(r tools.CommandRunner) ClientLocator {
	return ClientLocator{
		Runner:       r,
		Binary:       defaultClientBinary,
		FallbackDirs: defaultFallbackDirs,
		LookPath:     exec.LookPath,
	}
}

func (l ClientLocator) Locate() (string, error) {
	binary := l.Binary
	if binary == "" {
		binary = defaultClientBinary
	}
	lookPath := l.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}

	if path, err := lookPath(binary); err == nil {
		return path, nil
	}

	for _, dir := range l.FallbackDirs {
		candidate := filepath.Join(dir, binary)
		if isExecutable(candidate) {
			log.Debug().Str("path", candidate).Msg("found client in fallback dir")
			return candidate, nil
		}
	}

	if l.Runner != nil {
		stdout, _, _, err := l.Runner.Run(sudoBinary, "which", binary)
		if err == nil {
			if path := strings.TrimSpace(string(stdout)); path != "" {
				log.Debug().Str("path", path).Msg("found client via elevated lookup")
				return path, nil
			}
		}
	}

	return "", fmt.Errorf("%w: %s", ErrClientNotFound, binary)
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Mode()&0111 != 0
}
