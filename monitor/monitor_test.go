package monitor

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMonitor_Counters(t *testing.T) {
	m := NewMonitor("test")
	m.IncRoomsCreated()
	m.IncRoomsCreated()
	m.IncOutcome("loss")
	m.IncVoucher("win")
	m.IncCommitConflict()

	if got := testutil.ToFloat64(m.Metrics().RoomsCreated); got != 2 {
		t.Errorf("Expected 2 rooms created, got %v", got)
	}
	if got := testutil.ToFloat64(m.Metrics().Outcomes.WithLabelValues("loss")); got != 1 {
		t.Errorf("Expected 1 loss outcome, got %v", got)
	}
	if got := testutil.ToFloat64(m.Metrics().CommitConflicts); got != 1 {
		t.Errorf("Expected 1 conflict, got %v", got)
	}
}

func TestMonitor_SeparateRegistries(t *testing.T) {
	// Two monitors must not collide on registration.
	NewMonitor("dup")
	NewMonitor("dup")
}

func TestMonitor_Nil(t *testing.T) {
	var m *Monitor
	m.IncRoomsCreated()
	m.IncOutcome("forfeit")
	m.TrackRequest("/x")(http.StatusOK)
}

func TestMonitor_TrackRequest(t *testing.T) {
	m := NewMonitor("test")
	done := m.TrackRequest("/api/pvp/room-status")
	if got := testutil.ToFloat64(m.Metrics().InFlight); got != 1 {
		t.Errorf("Expected 1 in flight, got %v", got)
	}
	done(http.StatusOK)
	if got := testutil.ToFloat64(m.Metrics().InFlight); got != 0 {
		t.Errorf("Expected 0 in flight, got %v", got)
	}
}

func TestMonitor_Handler(t *testing.T) {
	m := NewMonitor("blink")
	m.IncRoomsJoined()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "blink_rooms_joined_total 1") {
		t.Errorf("Expected joined counter in metrics output")
	}
}
