package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

var (
	ErrUserAborted = errors.New("session: overwrite declined")
	ErrProvision   = errors.New("session: resource provisioning failed")
)

// ProvisionOptions carries the caller-supplied paths (empty means derive a
// default) and the session mode. Confirm decides overwrite prompts; nil
// installs the interactive tty prompt, which auto-confirms when stdin is not
// a terminal.
type ProvisionOptions struct {
	DeviceNode string
	ScriptPath string
	LogPath    string
	SocketPath string
	Mode       Mode
	Quiet      bool
	Confirm    func(path string) bool
	TempDir    string
}

// Provision creates and validates the session's three ephemeral artifacts:
// teardown script, log destination, rendezvous socket. Writability is
// verified before an artifact is marked owned. Any failure after partial
// creation rolls the already-created artifacts back, in reverse creation
// order, before returning.
func Provision(opts ProvisionOptions) (*Session, error) {
	s := &Session{
		DeviceNode: opts.DeviceNode,
		Mode:       opts.Mode,
		Quiet:      opts.Quiet,
		state:      Starting,
	}

	confirm := opts.Confirm
	if confirm == nil {
		confirm = promptOverwrite
	}
	tempDir := opts.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}

	if err := s.provisionScript(opts.ScriptPath, confirm, tempDir); err != nil {
		s.Rollback()
		return nil, err
	}
	if err := s.provisionLog(opts.LogPath, tempDir); err != nil {
		s.Rollback()
		return nil, err
	}
	if err := s.provisionSocket(opts.SocketPath, confirm, tempDir); err != nil {
		s.Rollback()
		return nil, err
	}

	// The socket path must not exist when the backend binds it; a stale file
	// from an earlier session would make the bind fail.
	if err := os.Remove(s.Socket.Path); err != nil && !os.IsNotExist(err) {
		s.Rollback()
		return nil, fmt.Errorf("%w: clear socket path %s: %v", ErrProvision, s.Socket.Path, err)
	}

	log.Debug().
		Str("script", s.Script.Path).
		Str("log", s.Log.Path).
		Str("socket", s.Socket.Path).
		Msg("session resources provisioned")
	return s, nil
}

// provisionScript reserves the teardown script path. In daemon mode the
// default is a human-readable name derived from the device node, since the
// user must find and run it later; in foreground mode teardown happens
// in-process and a private temp path suffices.
func (s *Session) provisionScript(explicit string, confirm func(string) bool, tempDir string) error {
	if explicit == "" && s.Mode == Foreground {
		f, err := os.CreateTemp(tempDir, "nbdctl-teardown-*.sh")
		if err != nil {
			return fmt.Errorf("%w: teardown script: %v", ErrProvision, err)
		}
		f.Close()
		s.Script = Handle{Path: f.Name(), Owned: true}
		s.own(f.Name())
		return nil
	}

	path := explicit
	if path == "" {
		path = filepath.Join(tempDir, "nbd-"+filepath.Base(s.DeviceNode)+".sh")
	}
	created, err := reservePath(path, confirm)
	if err != nil {
		return fmt.Errorf("teardown script %s: %w", path, err)
	}
	s.Script = Handle{Path: path, Owned: created}
	if created {
		s.own(path)
	}
	return nil
}

// provisionLog resolves the backend's log destination. An empty path means
// the backend inherits the caller's error stream (foreground) or logs to a
// private temp file (daemon). An explicit path is used as-is and never
// owned.
func (s *Session) provisionLog(explicit string, tempDir string) error {
	if explicit != "" {
		if err := writableDir(filepath.Dir(explicit)); err != nil {
			return fmt.Errorf("%w: log path %s: %v", ErrProvision, explicit, err)
		}
		s.Log = Handle{Path: explicit, Owned: false}
		return nil
	}
	if s.Mode == Foreground {
		// Attached session: backend diagnostics flow to stderr unless quiet,
		// where they are dropped. Either way no file is created.
		return nil
	}
	f, err := os.CreateTemp(tempDir, "nbdctl-log-*")
	if err != nil {
		return fmt.Errorf("%w: log file: %v", ErrProvision, err)
	}
	f.Close()
	s.Log = Handle{Path: f.Name(), Owned: true}
	s.own(f.Name())
	return nil
}

func (s *Session) provisionSocket(explicit string, confirm func(string) bool, tempDir string) error {
	if explicit == "" {
		f, err := os.CreateTemp(tempDir, "nbdctl-*.sock")
		if err != nil {
			return fmt.Errorf("%w: socket path: %v", ErrProvision, err)
		}
		f.Close()
		s.Socket = Handle{Path: f.Name(), Owned: true}
		s.own(f.Name())
		return nil
	}

	if _, err := reservePath(explicit, confirm); err != nil {
		return fmt.Errorf("socket %s: %w", explicit, err)
	}
	// Even a caller-supplied socket path is owned: the file at that path is
	// (re)created by the backend for this session only, and a confirmed
	// overwrite hands the stale file over to us.
	s.Socket = Handle{Path: explicit, Owned: true}
	s.own(explicit)
	return nil
}

// reservePath checks writability of the parent directory and creates an
// empty placeholder at path. A pre-existing file requires confirmation;
// declining aborts the session. Returns whether the file was newly created.
func reservePath(path string, confirm func(string) bool) (bool, error) {
	if err := writableDir(filepath.Dir(path)); err != nil {
		return false, fmt.Errorf("%w: %v", ErrProvision, err)
	}

	if _, err := os.Stat(path); err == nil {
		if !confirm(path) {
			return false, ErrUserAborted
		}
		return false, nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrProvision, err)
	}
	f.Close()
	return true, nil
}

func writableDir(dir string) error {
	if dir == "" {
		dir = "."
	}
	if err := unix.Access(dir, unix.W_OK); err != nil {
		return fmt.Errorf("directory %s not writable: %v", dir, err)
	}
	return nil
}

// promptOverwrite asks on the controlling terminal. When stdin is not a tty
// (daemonized or scripted invocation) the overwrite is auto-confirmed.
func promptOverwrite(path string) bool {
	info, err := os.Stdin.Stat()
	if err != nil || info.Mode()&os.ModeCharDevice == 0 {
		return true
	}
	fmt.Fprintf(os.Stderr, "%s exists, overwrite? [y/N] ", path)
	var answer string
	fmt.Fscanln(os.Stdin, &answer)
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
