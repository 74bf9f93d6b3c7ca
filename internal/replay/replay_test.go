package replay

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"driftpursuit/netsync/internal/entity"
	"driftpursuit/netsync/internal/protocol"
)

func steppingClock(start time.Time, step time.Duration) func() time.Time {
	now := start
	return func() time.Time {
		current := now
		now = now.Add(step)
		return current
	}
}

func mustEncode(t *testing.T, m protocol.Message) []byte {
	t.Helper()
	packet, err := protocol.Encode(m)
	if err != nil {
		t.Fatalf("encode %s: %v", m.Kind(), err)
	}
	return packet
}

func TestWriterRoundTripsThroughLoader(t *testing.T) {
	tmp := t.TempDir()
	clock := steppingClock(time.Date(2024, 7, 10, 12, 0, 0, 0, time.UTC), 50*time.Millisecond)

	writer, manifest, err := NewWriter(tmp, "Lobby #1", clock)
	if err != nil {
		t.Fatalf("create writer: %v", err)
	}
	if manifest.FlushIntervalMs != 200 {
		t.Fatalf("flush interval = %d", manifest.FlushIntervalMs)
	}
	if base := filepath.Base(writer.Directory()); !strings.HasPrefix(base, "Lobby1-") {
		t.Fatalf("session directory = %q", base)
	}
	writer.SetTiming(20*time.Millisecond, 100*time.Millisecond)

	//1.- Interleave events and frames; frames arrive out of server order to exercise sorting.
	if err := writer.AppendFrame(5, 100, []byte{0x01}); err != nil {
		t.Fatalf("append frame: %v", err)
	}
	if err := writer.AppendEvent(5, 100, "NewEntity", []byte("spawn")); err != nil {
		t.Fatalf("append event: %v", err)
	}
	for i := uint32(0); i < 6; i++ {
		if err := writer.AppendFrame(10+i, 200+20*i, []byte{byte(i), 0xAA}); err != nil {
			t.Fatalf("append frame %d: %v", i, err)
		}
	}
	if err := writer.AppendEvent(1, 20, "SetTime", []byte{0x06}); err != nil {
		t.Fatalf("append event: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	loader, err := Open(writer.Directory())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	header := loader.Header()
	if header.SessionID != "Lobby1" || header.FixedDtMs != 20 || header.SnapshotIntervalMs != 100 {
		t.Fatalf("header = %+v", header)
	}

	records := loader.Records()
	if len(records) != 9 {
		t.Fatalf("records = %d, want 9", len(records))
	}
	//2.- Server time orders the timeline and events lead frames on ties.
	if records[0].Kind != "SetTime" || records[1].Source != SourceEvent || records[2].Source != SourceFrame {
		t.Fatalf("unexpected ordering: %+v", records[:3])
	}
	for i := 1; i < len(records); i++ {
		if records[i].ServerMs < records[i-1].ServerMs {
			t.Fatalf("records not sorted at %d", i)
		}
	}
	last := records[len(records)-1]
	if last.Tick != 15 || last.ServerMs != 300 || string(last.Packet) != string([]byte{5, 0xAA}) {
		t.Fatalf("last frame = %+v", last)
	}
	if last.CapturedAt.IsZero() {
		t.Fatal("frame capture time lost")
	}
}

func TestLoaderToleratesMissingHeader(t *testing.T) {
	tmp := t.TempDir()
	writer, _, err := NewWriter(tmp, "crash", nil)
	if err != nil {
		t.Fatalf("create writer: %v", err)
	}
	if err := writer.AppendEvent(0, 0, "Join", []byte{0x01}); err != nil {
		t.Fatalf("append event: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := os.Remove(filepath.Join(writer.Directory(), headerName)); err != nil {
		t.Fatalf("remove header: %v", err)
	}

	loader, err := Open(writer.Directory())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if loader.Header().SchemaVersion != 0 {
		t.Fatalf("expected zero header, got %+v", loader.Header())
	}
	if len(loader.Records()) != 1 {
		t.Fatalf("records = %d", len(loader.Records()))
	}
}

func TestReplayStopsAtFirstError(t *testing.T) {
	loader := &Loader{records: []Record{{Kind: "a"}, {Kind: "b"}, {Kind: "c"}}}
	stop := errors.New("stop")
	seen := 0
	err := loader.Replay(func(r Record) error {
		seen++
		if r.Kind == "b" {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) || seen != 2 {
		t.Fatalf("err=%v seen=%d", err, seen)
	}
	if err := loader.Replay(nil); err == nil {
		t.Fatal("expected error for nil callback")
	}
}

func TestRecorderRoutesByKind(t *testing.T) {
	tmp := t.TempDir()
	rec, err := NewRecorder(tmp, "match", 20*time.Millisecond, 100*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("recorder: %v", err)
	}
	state := entity.State{EID: 3, X: 1, Y: 2, Tick: 42}
	packets := [][]byte{
		mustEncode(t, protocol.NewEntity{State: state}),
		mustEncode(t, protocol.SetControlledEntity{EID: 3}),
		mustEncode(t, protocol.Snapshot{State: state}),
		mustEncode(t, protocol.SetTime{ServerMs: 840}),
		{0xFF},
	}
	for _, p := range packets {
		if err := rec.Record(840, 42, p); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	stats := rec.Stats()
	if stats.Events != 3 || stats.Frames != 1 || stats.Skipped != 1 || stats.Errors != 0 {
		t.Fatalf("stats = %+v", stats)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	loader, err := Open(rec.Directory())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	var frames []Record
	for _, r := range loader.Records() {
		if r.Source == SourceFrame {
			frames = append(frames, r)
		}
	}
	if len(frames) != 1 || frames[0].Tick != 42 {
		t.Fatalf("frames = %+v", frames)
	}
	snap, err := protocol.DecodeSnapshot(frames[0].Packet)
	if err != nil || snap.State.EID != 3 {
		t.Fatalf("decoded snapshot %+v err=%v", snap, err)
	}
}

func TestNilRecorderIsInert(t *testing.T) {
	var rec *Recorder
	if err := rec.Record(0, 0, []byte{0x01}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if rec.Directory() != "" || rec.Close() != nil {
		t.Fatal("nil recorder should be inert")
	}
	var w *Writer
	if err := w.AppendFrame(0, 0, nil); !errors.Is(err, ErrNotInitialised) {
		t.Fatalf("err = %v", err)
	}
}

func TestHeaderValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", headerName)
	if err := WriteHeader(path, Header{SchemaVersion: 1}); err == nil {
		t.Fatal("expected missing file pointer to fail")
	}
	want := Header{SchemaVersion: HeaderSchemaVersion, SessionID: "s", FixedDtMs: 20, FilePointer: manifestName}
	if err := WriteHeader(path, want); err != nil {
		t.Fatalf("write header: %v", err)
	}
	got, err := ReadHeader(path)
	if err != nil || got != want {
		t.Fatalf("read header %+v err=%v", got, err)
	}
}
