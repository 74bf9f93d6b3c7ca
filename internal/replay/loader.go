package replay

import (
	"bufio"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"

	"driftpursuit/netsync/internal/protocol"
)

// Record source labels.
const (
	SourceEvent = "event"
	SourceFrame = "frame"
)

// Record is one recorded packet.
type Record struct {
	Source     string
	Kind       string
	Tick       uint32
	ServerMs   uint32
	CapturedAt time.Time
	Packet     []byte
}

// Loader holds a recorded session ordered by server time.
type Loader struct {
	header  Header
	records []Record
}

// Open reads a session directory written by Writer. A missing header (a session that did not
// close cleanly) is tolerated.
func Open(dir string) (*Loader, error) {
	if dir == "" {
		return nil, errors.New("replay: session directory must be provided")
	}
	var manifest Manifest
	data, err := os.ReadFile(filepath.Join(dir, manifestName))
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("replay: manifest: %w", err)
	}

	l := &Loader{}
	if header, err := ReadHeader(filepath.Join(dir, headerName)); err == nil {
		l.header = header
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("replay: header: %w", err)
	}

	events, err := readEvents(filepath.Join(dir, manifest.EventsPath))
	if err != nil {
		return nil, err
	}
	frames, err := readFrames(filepath.Join(dir, manifest.FramesPath))
	if err != nil {
		return nil, err
	}
	l.records = append(events, frames...)
	//1.- Events sort before frames at the same server time so entities exist before their snapshots.
	sort.SliceStable(l.records, func(i, j int) bool {
		a, b := l.records[i], l.records[j]
		if a.ServerMs != b.ServerMs {
			return a.ServerMs < b.ServerMs
		}
		return a.Source == SourceEvent && b.Source == SourceFrame
	})
	return l, nil
}

func readEvents(path string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	var out []Record
	scanner := bufio.NewScanner(snappy.NewReader(file))
	for scanner.Scan() {
		var ev eventRecord
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			return nil, fmt.Errorf("replay: event line %d: %w", len(out)+1, err)
		}
		captured, err := time.Parse(time.RFC3339Nano, ev.CapturedAt)
		if err != nil {
			return nil, fmt.Errorf("replay: event captured_at: %w", err)
		}
		packet, err := base64.StdEncoding.DecodeString(ev.PacketB64)
		if err != nil {
			return nil, fmt.Errorf("replay: event packet: %w", err)
		}
		out = append(out, Record{Source: SourceEvent, Kind: ev.Kind, Tick: ev.Tick, ServerMs: ev.ServerMs, CapturedAt: captured, Packet: packet})
	}
	return out, scanner.Err()
}

func readFrames(path string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	dec, err := zstd.NewReader(file)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var out []Record
	header := make([]byte, frameHeaderSize)
	for {
		if _, err := io.ReadFull(dec, header); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return nil, fmt.Errorf("replay: frame %d header: %w", len(out), err)
		}
		size := binary.LittleEndian.Uint32(header[16:20])
		packet := make([]byte, size)
		if _, err := io.ReadFull(dec, packet); err != nil {
			return nil, fmt.Errorf("replay: frame %d payload: %w", len(out), err)
		}
		out = append(out, Record{
			Source:     SourceFrame,
			Kind:       protocol.KindSnapshot.String(),
			Tick:       binary.LittleEndian.Uint32(header[0:4]),
			ServerMs:   binary.LittleEndian.Uint32(header[4:8]),
			CapturedAt: time.Unix(0, int64(binary.LittleEndian.Uint64(header[8:16]))).UTC(),
			Packet:     packet,
		})
	}
}

// Header returns the session header, zero when the recording did not close cleanly.
func (l *Loader) Header() Header {
	if l == nil {
		return Header{}
	}
	return l.header
}

// Replay calls apply for every record in server time order and stops at the first error.
func (l *Loader) Replay(apply func(Record) error) error {
	if l == nil {
		return errors.New("replay: loader not initialised")
	}
	if apply == nil {
		return errors.New("replay: callback must be provided")
	}
	for _, rec := range l.records {
		if err := apply(rec); err != nil {
			return err
		}
	}
	return nil
}

// Records returns a copy of the loaded timeline.
func (l *Loader) Records() []Record {
	if l == nil {
		return nil
	}
	return append([]Record(nil), l.records...)
}
