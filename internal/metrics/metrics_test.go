package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorsCarryRoleAndServe(t *testing.T) {
	m := New("server")
	m.ObserveFrame(3 * time.Millisecond)
	m.Reconciliations.WithLabelValues("corrected").Add(2)
	m.Packets.WithLabelValues("Input").Inc()

	if got := testutil.ToFloat64(m.Frames); got != 1 {
		t.Fatalf("frames = %v", got)
	}
	if got := testutil.ToFloat64(m.Reconciliations.WithLabelValues("corrected")); got != 2 {
		t.Fatalf("reconciliations = %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	text := string(body)
	for _, want := range []string{
		`netsync_frames_total{role="server"} 1`,
		`netsync_packets_received_total{kind="Input",role="server"} 1`,
		`netsync_frame_duration_seconds_count{role="server"} 1`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("exposition missing %q", want)
		}
	}
}

func TestObserveFrameNilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveFrame(time.Millisecond)
}
