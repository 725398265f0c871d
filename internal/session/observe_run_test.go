package session_test

import (
	"bytes"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/danmuck/nbdctl/internal/session"
	"github.com/danmuck/nbdctl/internal/testutil/testlog"
)

func startedSessions(t *testing.T, mode string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "nbdctl_session_started_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "mode" && label.GetValue() == mode {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestRunRecordsStartedSessionOnceRunning(t *testing.T) {
	testlog.Start(t)
	s, err := session.Provision(session.ProvisionOptions{
		DeviceNode: "/dev/nbd5",
		Mode:       session.Daemon,
		Confirm:    func(string) bool { return true },
		TempDir:    t.TempDir(),
	})
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	s.BackendPID = 6161
	p := session.BuildPlan("nbd-client", s)

	before := startedSessions(t, "daemon")

	var out bytes.Buffer
	r := &session.Runner{Executor: &session.Executor{}, Stdout: &out}
	if err := r.Run(s, p); err != nil {
		t.Fatalf("run: %v", err)
	}

	if s.State() != session.Running {
		t.Fatalf("expected running, got %v", s.State())
	}
	after := startedSessions(t, "daemon")
	if after != before+1 {
		t.Fatalf("started counter not incremented with the running transition: before=%v after=%v", before, after)
	}
}
