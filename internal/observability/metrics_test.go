package observability

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	RegisterMetrics()
	RegisterMetrics()

	RecordSessionStarted("foreground")
	RecordSessionStarted("daemon")
	RecordLaunchFailure()
	RecordTeardownStep("detach_device")
	RecordRollback()
}

func TestStatusEndpoints(t *testing.T) {
	snap := SessionSnapshot{
		State:      "running",
		DeviceNode: "/dev/nbd2",
		SocketPath: "/tmp/nbdctl-1.sock",
		ScriptPath: "/tmp/nbd-nbd2.sh",
		BackendPID: 777,
		BlockSize:  1024,
	}
	srv := NewStatusServer("127.0.0.1:0", func() SessionSnapshot { return snap })
	r := srv.router()

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/session", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("session: %d", rec.Code)
	}
	var got SessionSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if got != snap {
		t.Fatalf("unexpected snapshot: %+v", got)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "nbdctl_session_started_total") {
		t.Fatalf("metrics output missing session counter")
	}
}
