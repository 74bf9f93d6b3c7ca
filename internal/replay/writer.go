// Package replay records the packets a server sends so a session can be inspected and
// re-interpolated offline.
package replay

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

var sessionCleaner = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

const (
	// flushInterval batches frames so the zstd stream sees larger writes.
	flushInterval = 200 * time.Millisecond

	manifestName = "manifest.json"
	headerName   = "header.json"
	eventsName   = "events.jsonl.sz"
	framesName   = "frames.bin.zst"

	// frameHeaderSize is tick u32, server ms u32, captured unix nanos u64 and payload length u32.
	frameHeaderSize = 4 + 4 + 8 + 4
)

// ErrNotInitialised is returned by methods called on a nil Writer.
var ErrNotInitialised = errors.New("replay: writer not initialised")

type pendingFrame struct {
	tick       uint32
	serverMs   uint32
	capturedAt time.Time
	packet     []byte
}

// Manifest describes the session bundle layout so tooling can locate artefacts.
type Manifest struct {
	Version         int    `json:"version"`
	CreatedAt       string `json:"created_at"`
	FlushIntervalMs int    `json:"flush_interval_ms"`
	EventsPath      string `json:"events_path"`
	FramesPath      string `json:"frames_path"`
}

// eventRecord is one line of the snappy-compressed event log.
type eventRecord struct {
	Tick       uint32 `json:"tick"`
	ServerMs   uint32 `json:"server_ms"`
	CapturedAt string `json:"captured_at"`
	Kind       string `json:"kind"`
	PacketB64  string `json:"packet_b64"`
}

// Writer streams reliable messages to a snappy JSONL log and snapshot packets to a zstd frame
// file inside one session directory.
type Writer struct {
	mu          sync.Mutex
	dir         string
	now         func() time.Time
	eventFile   *os.File
	eventStream *snappy.Writer
	frameFile   *os.File
	frameStream *zstd.Encoder
	pending     []pendingFrame
	lastFlush   time.Time
	header      Header
}

// NewWriter creates <root>/<session>-<timestamp>/ and opens the compressed sinks.
func NewWriter(root, sessionID string, clock func() time.Time) (*Writer, Manifest, error) {
	if root == "" {
		return nil, Manifest{}, errors.New("replay: root directory must be provided")
	}
	if clock == nil {
		clock = time.Now
	}
	cleaned := sessionCleaner.ReplaceAllString(sessionID, "")
	if cleaned == "" {
		cleaned = "session"
	}
	created := clock().UTC()
	dir := filepath.Join(root, fmt.Sprintf("%s-%s", cleaned, created.Format("20060102T150405Z")))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, Manifest{}, err
	}

	w := &Writer{dir: dir, now: clock, header: Header{SchemaVersion: HeaderSchemaVersion, SessionID: cleaned, FilePointer: manifestName}}
	var err error
	//1.- Open both sinks; on any failure release whatever was already opened.
	defer func() {
		if err != nil {
			w.closeSinks()
		}
	}()
	if w.eventFile, err = os.Create(filepath.Join(dir, eventsName)); err != nil {
		return nil, Manifest{}, err
	}
	w.eventStream = snappy.NewBufferedWriter(w.eventFile)
	if w.frameFile, err = os.Create(filepath.Join(dir, framesName)); err != nil {
		return nil, Manifest{}, err
	}
	if w.frameStream, err = zstd.NewWriter(w.frameFile, zstd.WithZeroFrames(true)); err != nil {
		return nil, Manifest{}, err
	}

	manifest := Manifest{
		Version:         1,
		CreatedAt:       created.Format(time.RFC3339Nano),
		FlushIntervalMs: int(flushInterval / time.Millisecond),
		EventsPath:      eventsName,
		FramesPath:      framesName,
	}
	var data []byte
	if data, err = json.MarshalIndent(manifest, "", "  "); err != nil {
		return nil, Manifest{}, err
	}
	if err = os.WriteFile(filepath.Join(dir, manifestName), data, 0o644); err != nil {
		return nil, Manifest{}, err
	}
	return w, manifest, nil
}

// Directory returns the session directory.
func (w *Writer) Directory() string {
	if w == nil {
		return ""
	}
	return w.dir
}

// SetTiming records the timing constants needed to interpret the ticks offline.
func (w *Writer) SetTiming(fixedDt, snapshotInterval time.Duration) {
	if w == nil {
		return
	}
	w.mu.Lock()
	w.header.FixedDtMs = uint32(fixedDt / time.Millisecond)
	w.header.SnapshotIntervalMs = uint32(snapshotInterval / time.Millisecond)
	w.mu.Unlock()
}

// AppendEvent writes one reliable message as a JSON line and flushes the snappy block.
func (w *Writer) AppendEvent(tick, serverMs uint32, kind string, packet []byte) error {
	if w == nil {
		return ErrNotInitialised
	}
	captured := w.now().UTC()
	line, err := json.Marshal(eventRecord{
		Tick:       tick,
		ServerMs:   serverMs,
		CapturedAt: captured.Format(time.RFC3339Nano),
		Kind:       kind,
		PacketB64:  base64.StdEncoding.EncodeToString(packet),
	})
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.eventStream.Write(append(line, '\n')); err != nil {
		return err
	}
	return w.eventStream.Flush()
}

// AppendFrame stages one snapshot packet; staged frames are written every flush interval.
func (w *Writer) AppendFrame(tick, serverMs uint32, packet []byte) error {
	if w == nil {
		return ErrNotInitialised
	}
	captured := w.now().UTC()
	clone := append([]byte(nil), packet...)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = append(w.pending, pendingFrame{tick: tick, serverMs: serverMs, capturedAt: captured, packet: clone})
	if w.lastFlush.IsZero() {
		w.lastFlush = captured
		return nil
	}
	if captured.Sub(w.lastFlush) >= flushInterval {
		if err := w.flushLocked(); err != nil {
			return err
		}
		w.lastFlush = captured
	}
	return nil
}

// Flush writes staged frames regardless of cadence.
func (w *Writer) Flush() error {
	if w == nil {
		return ErrNotInitialised
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.flushLocked(); err != nil {
		return err
	}
	w.lastFlush = w.now().UTC()
	return nil
}

// Close writes the header, flushes every stream and releases the files. Every step is
// attempted; the errors are joined.
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	errs := []error{
		WriteHeader(filepath.Join(w.dir, headerName), w.header),
		w.flushLocked(),
	}
	return errors.Join(append(errs, w.closeSinks()...)...)
}

func (w *Writer) closeSinks() []error {
	var errs []error
	if w.eventStream != nil {
		errs = append(errs, w.eventStream.Close())
	}
	if w.eventFile != nil {
		errs = append(errs, w.eventFile.Close())
	}
	if w.frameStream != nil {
		errs = append(errs, w.frameStream.Close())
	}
	if w.frameFile != nil {
		errs = append(errs, w.frameFile.Close())
	}
	return errs
}

// flushLocked writes staged frames, each behind a fixed little-endian header.
func (w *Writer) flushLocked() error {
	header := make([]byte, frameHeaderSize)
	for _, f := range w.pending {
		binary.LittleEndian.PutUint32(header[0:4], f.tick)
		binary.LittleEndian.PutUint32(header[4:8], f.serverMs)
		binary.LittleEndian.PutUint64(header[8:16], uint64(f.capturedAt.UnixNano()))
		binary.LittleEndian.PutUint32(header[16:20], uint32(len(f.packet)))
		if _, err := w.frameStream.Write(header); err != nil {
			return err
		}
		if _, err := w.frameStream.Write(f.packet); err != nil {
			return err
		}
	}
	w.pending = w.pending[:0]
	return nil
}
