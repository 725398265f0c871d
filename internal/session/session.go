package session

import (
	"os"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/nbdctl/internal/observability"
)

type Mode int

const (
	Foreground Mode = iota
	Daemon
)

func (m Mode) String() string {
	if m == Daemon {
		return "daemon"
	}
	return "foreground"
}

type State int

const (
	Starting State = iota
	Ready
	Running
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return "stopped"
	}
}

// Handle tracks one ephemeral artifact. Owned marks artifacts this session
// created; only owned handles are deleted on rollback or teardown.
type Handle struct {
	Path  string
	Owned bool
}

// Session is the process-lifetime state of one attach-to-detach lifecycle.
// It is populated incrementally: provisioning fills the handles, the backend
// handshake fills BackendPID and BlockSize. Once BackendPID is set the
// session is armed: any later failure must run teardown, never silently exit.
type Session struct {
	DeviceNode string
	Socket     Handle
	Log        Handle
	Script     Handle
	BackendPID int
	BlockSize  int
	Mode       Mode
	Quiet      bool

	mu    sync.Mutex
	state State
	owned []string
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) SetState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	log.Debug().Str("state", st.String()).Msg("session state")
}

// Armed reports whether a backend process is attached to this session.
func (s *Session) Armed() bool {
	return s.BackendPID > 0
}

// own records a created artifact for reverse-order rollback.
func (s *Session) own(path string) {
	s.owned = append(s.owned, path)
}

// Rollback deletes every artifact this session created, most recent first.
// Caller-supplied paths were never recorded and are left untouched. Rollback
// is safe to call on a partially provisioned session and is a no-op the
// second time.
func (s *Session) Rollback() {
	for i := len(s.owned) - 1; i >= 0; i-- {
		path := s.owned[i]
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", path).Msg("rollback: could not remove")
			continue
		}
		log.Debug().Str("path", path).Msg("rollback: removed")
	}
	if len(s.owned) > 0 {
		observability.RecordRollback()
	}
	s.owned = nil
}

// Snapshot exposes the session to the status endpoint.
func (s *Session) Snapshot() observability.SessionSnapshot {
	return observability.SessionSnapshot{
		State:      s.State().String(),
		DeviceNode: s.DeviceNode,
		SocketPath: s.Socket.Path,
		LogPath:    s.Log.Path,
		ScriptPath: s.Script.Path,
		BackendPID: s.BackendPID,
		BlockSize:  s.BlockSize,
	}
}
