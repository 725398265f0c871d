package backend

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/nbdctl/internal/tools"
)

var ErrLaunchFailed = errors.New("backend: launch failed")

// Handshake is the pair a backend reports once it has daemonized and is
// ready to serve. Immutable once captured; the kernel bind requires it.
type Handshake struct {
	PID       int
	BlockSize int
}

type Launcher struct {
	Runner tools.CommandRunner
	// Stderr, when set and no log path is given, stays attached to the
	// backend for its entire lifetime instead of being captured. Attached
	// foreground sessions wire the caller's stderr here.
	Stderr io.Writer
}

// Launch starts the backend with the fixed trailing flag set: quiet,
// socket path, optional log path, daemonize. The daemonized backend prints
// exactly "<pid> <blocksize>" on stdout and exits 0; anything else is a
// launch failure and the caller must roll the session back. With no log path
// and Stderr set, backend diagnostics pass through to Stderr instead of
// being captured.
func (l Launcher) Launch(exe string, args []string, socketPath, logPath string) (Handshake, error) {
	full := append([]string{}, args...)
	full = append(full, "-q", "-u", socketPath)
	if logPath != "" {
		full = append(full, "-l", logPath)
	}
	full = append(full, "-d")

	log.Debug().Str("backend", exe).Strs("args", full).Msg("launching backend")

	var (
		stdout, stderr []byte
		exitCode       int32
		err            error
	)
	streamer, streamable := l.Runner.(tools.StreamingRunner)
	if streamable && l.Stderr != nil && logPath == "" {
		stdout, exitCode, err = streamer.RunStreaming(l.Stderr, exe, full...)
	} else {
		stdout, stderr, exitCode, err = l.Runner.Run(exe, full...)
	}
	if err != nil {
		return Handshake{}, fmt.Errorf("%w: %s exit=%d stderr=%q", ErrLaunchFailed,
			exe, exitCode, strings.TrimSpace(string(stderr)))
	}

	hs, err := parseHandshake(stdout)
	if err != nil {
		return Handshake{}, fmt.Errorf("%w: %v", ErrLaunchFailed, err)
	}

	log.Info().Int("pid", hs.PID).Int("block_size", hs.BlockSize).Msg("backend started")
	return hs, nil
}

func parseHandshake(out []byte) (Handshake, error) {
	fields := strings.Fields(string(out))
	if len(fields) != 2 {
		return Handshake{}, fmt.Errorf("expected \"<pid> <blocksize>\" handshake, got %q",
			strings.TrimSpace(string(out)))
	}
	pid, err := strconv.Atoi(fields[0])
	if err != nil || pid <= 0 {
		return Handshake{}, fmt.Errorf("invalid backend pid %q", fields[0])
	}
	blockSize, err := strconv.Atoi(fields[1])
	if err != nil || blockSize <= 0 {
		return Handshake{}, fmt.Errorf("invalid block size %q", fields[1])
	}
	return Handshake{PID: pid, BlockSize: blockSize}, nil
}
