package device

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/nbdctl/internal/tools"
)

var ErrNoDevice = errors.New("device: no usable device node")

const defaultDevDir = "/dev"

// Discoverer finds a usable nbd device node. A node is usable when it does
// not exist yet or when the client utility's probe mode reports it unbound.
type Discoverer struct {
	Client string
	Runner tools.CommandRunner
	DevDir string
}

// Discover validates an explicit node or scans nbd0, nbd1, ... in strictly
// ascending order, first eligible wins. The scan terminates at the first
// absent node, so enumeration is bounded by the driver's configured device
// count.
func (d Discoverer) Discover(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("%w: %s does not exist", ErrNoDevice, explicit)
		}
		return explicit, nil
	}

	devDir := d.DevDir
	if devDir == "" {
		devDir = defaultDevDir
	}

	for i := 0; ; i++ {
		node := filepath.Join(devDir, fmt.Sprintf("nbd%d", i))
		if _, err := os.Stat(node); err != nil {
			log.Debug().Str("node", node).Msg("selecting absent device node")
			return node, nil
		}
		if !d.bound(node) {
			log.Debug().Str("node", node).Msg("selecting unbound device node")
			return node, nil
		}
	}
}

// bound probes a node with `nbd-client -c`. Exit 0 means the node has a live
// binding (the probe prints the serving pid); any other outcome means free.
func (d Discoverer) bound(node string) bool {
	_, _, exitCode, err := d.Runner.Run(d.Client, "-c", node)
	return err == nil && exitCode == 0
}
