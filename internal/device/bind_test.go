package device

import (
	"errors"
	"reflect"
	"testing"

	"github.com/danmuck/nbdctl/internal/testutil/testlog"
)

type bindFakeRunner struct {
	commands [][]string
	exitCode int32
	stderr   []byte
	err      error
}

func (r *bindFakeRunner) Run(name string, args ...string) ([]byte, []byte, int32, error) {
	cmd := []string{name}
	cmd = append(cmd, args...)
	r.commands = append(r.commands, cmd)
	return nil, r.stderr, r.exitCode, r.err
}

func TestBindInvokesAttachMode(t *testing.T) {
	testlog.Start(t)
	runner := &bindFakeRunner{}
	b := Binder{Client: "/usr/sbin/nbd-client", Runner: runner}

	if err := b.Bind("/dev/nbd1", "/tmp/nbd.sock", 1024); err != nil {
		t.Fatalf("bind: %v", err)
	}

	want := []string{"/usr/sbin/nbd-client", "-unix", "/tmp/nbd.sock", "/dev/nbd1", "-b", "1024"}
	if len(runner.commands) != 1 || !reflect.DeepEqual(runner.commands[0], want) {
		t.Fatalf("unexpected command: %v", runner.commands)
	}
}

func TestBindSurfacesFailure(t *testing.T) {
	testlog.Start(t)
	runner := &bindFakeRunner{
		exitCode: 1,
		stderr:   []byte("Error: Socket failed\n"),
		err:      errors.New("exit status 1"),
	}
	b := Binder{Client: "nbd-client", Runner: runner}

	err := b.Bind("/dev/nbd0", "/tmp/nbd.sock", 512)
	if !errors.Is(err, ErrBindFailed) {
		t.Fatalf("expected ErrBindFailed, got %v", err)
	}
}
