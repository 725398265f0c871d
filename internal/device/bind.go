package device

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/nbdctl/internal/tools"
)

var ErrBindFailed = errors.New("device: kernel bind failed")

// Binder attaches a device node to a backend's unix socket with the block
// size negotiated during the backend handshake.
type Binder struct {
	Client string
	Runner tools.CommandRunner
}

// Bind invokes the client utility's attach mode. The utility's own output is
// captured and discarded; only a failure's stderr is surfaced. Callers must
// not invoke Bind before the handshake has completed and the socket exists.
func (b Binder) Bind(node, socketPath string, blockSize int) error {
	args := []string{"-unix", socketPath, node, "-b", strconv.Itoa(blockSize)}

	log.Debug().Str("node", node).Str("socket", socketPath).Int("block_size", blockSize).
		Msg("binding device node")

	_, stderr, exitCode, err := b.Runner.Run(b.Client, args...)
	if err != nil {
		return fmt.Errorf("%w: %s exit=%d stderr=%q", ErrBindFailed,
			node, exitCode, strings.TrimSpace(string(stderr)))
	}
	return nil
}
