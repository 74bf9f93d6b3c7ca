package main

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"driftpursuit/netsync/internal/entity"
	"driftpursuit/netsync/internal/protocol"
	"driftpursuit/netsync/internal/replay"
)

func TestPilotWeavesSteering(t *testing.T) {
	now := time.Unix(0, 0)
	in := pilot(0.75, 4*time.Second, func() time.Time { return now })

	if c := in.Controls(); c.Throttle != 0.75 || c.Steer != 0 {
		t.Fatalf("controls at start = %+v", c)
	}
	now = now.Add(time.Second)
	if c := in.Controls(); math.Abs(float64(c.Steer-1)) > 1e-6 {
		t.Fatalf("steer at quarter period = %v", c.Steer)
	}
	straight := pilot(1, 0, func() time.Time { return now })
	if c := straight.Controls(); c.Steer != 0 {
		t.Fatalf("straight pilot steered %v", c.Steer)
	}
}

func TestReplayCommandPrintsTrajectory(t *testing.T) {
	rec, err := replay.NewRecorder(t.TempDir(), "cli", 20*time.Millisecond, 100*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("recorder: %v", err)
	}
	for _, m := range []protocol.Message{
		protocol.NewEntity{State: entity.State{EID: 3, Color: 0x004488, Tick: 50}},
		protocol.Snapshot{State: entity.State{EID: 3, X: 4, Tick: 55}},
	} {
		packet, err := protocol.Encode(m)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		var tick uint32 = 50
		if s, ok := m.(protocol.Snapshot); ok {
			tick = s.State.Tick
		}
		if err := rec.Record(tick*20, tick, packet); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var out bytes.Buffer
	cmd := replayCmd()
	cmd.SetOut(&out)
	plotPath := filepath.Join(t.TempDir(), "trajectory.png")
	cmd.SetArgs([]string{rec.Directory(), "--step", "50ms", "--png", plotPath, "--size", "64"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	text := out.String()
	if !strings.Contains(text, `session "cli"`) || !strings.Contains(text, "#004488") {
		t.Fatalf("unexpected output:\n%s", text)
	}
	if !strings.Contains(text, "4.000") {
		t.Fatalf("final position missing:\n%s", text)
	}
	if info, err := os.Stat(plotPath); err != nil || info.Size() == 0 {
		t.Fatalf("plot not written: %v", err)
	}
}

func TestReplayCommandRejectsUnknownMode(t *testing.T) {
	cmd := replayCmd()
	cmd.SetArgs([]string{t.TempDir(), "--interpolation", "cubic"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "cubic") {
		t.Fatalf("expected interpolation error, got %v", err)
	}
}
