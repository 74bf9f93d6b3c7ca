package replay

import (
	"math"
	"testing"
	"time"

	"driftpursuit/netsync/internal/entity"
	"driftpursuit/netsync/internal/interp"
	"driftpursuit/netsync/internal/protocol"
)

func recordSession(t *testing.T) *Loader {
	t.Helper()
	rec, err := NewRecorder(t.TempDir(), "playback", 20*time.Millisecond, 100*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("recorder: %v", err)
	}
	spawn := entity.State{EID: 0, Color: 0x440000, Tick: 50}
	if err := rec.Record(1000, 50, mustEncode(t, protocol.NewEntity{State: spawn})); err != nil {
		t.Fatalf("record spawn: %v", err)
	}
	for _, s := range []entity.State{{EID: 0, X: 5, Tick: 55}, {EID: 0, X: 10, Tick: 60}} {
		if err := rec.Record(s.Tick*20, s.Tick, mustEncode(t, protocol.Snapshot{State: s})); err != nil {
			t.Fatalf("record snapshot: %v", err)
		}
	}
	//1.- A snapshot for an entity never announced is not rendered.
	if err := rec.Record(1200, 60, mustEncode(t, protocol.Snapshot{State: entity.State{EID: 7, Tick: 60}})); err != nil {
		t.Fatalf("record orphan: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	loader, err := Open(rec.Directory())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return loader
}

func TestPlaybackInterpolatesRecordedSnapshots(t *testing.T) {
	loader := recordSession(t)
	frames, err := loader.Playback(PlaybackOptions{Mode: interp.Linear})
	if err != nil {
		t.Fatalf("playback: %v", err)
	}
	//1.- One frame per fixed tick from 900ms (one snapshot interval behind) to 1200ms.
	if len(frames) != 16 {
		t.Fatalf("frames = %d", len(frames))
	}
	want := map[float64]float32{900: 0, 1000: 0, 1040: 2, 1100: 5, 1160: 8, 1200: 10}
	for _, f := range frames {
		x, ok := want[f.RenderMs]
		if !ok {
			continue
		}
		if len(f.States) != 1 {
			t.Fatalf("frame %v has %d states", f.RenderMs, len(f.States))
		}
		s := f.States[0]
		if math.Abs(float64(s.X-x)) > 1e-4 || s.Color != 0x440000 {
			t.Fatalf("frame %v = %+v, want x %v", f.RenderMs, s, x)
		}
	}
}

func TestPlaybackHonoursStepAndDelay(t *testing.T) {
	loader := recordSession(t)
	frames, err := loader.Playback(PlaybackOptions{Mode: interp.Quadratic, Step: 100 * time.Millisecond, Delay: 200 * time.Millisecond})
	if err != nil {
		t.Fatalf("playback: %v", err)
	}
	if len(frames) != 5 || frames[0].RenderMs != 800 || frames[4].RenderMs != 1200 {
		t.Fatalf("frames = %+v", frames)
	}
}

func TestPlaybackOfEmptySession(t *testing.T) {
	rec, err := NewRecorder(t.TempDir(), "empty", 0, 0, nil)
	if err != nil {
		t.Fatalf("recorder: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	loader, err := Open(rec.Directory())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	frames, err := loader.Playback(PlaybackOptions{})
	if err != nil || len(frames) != 0 {
		t.Fatalf("frames=%v err=%v", frames, err)
	}
}
