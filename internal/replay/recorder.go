package replay

import (
	"sync"
	"time"

	"driftpursuit/netsync/internal/protocol"
)

// Stats summarises what a Recorder has captured.
type Stats struct {
	Events  int64
	Frames  int64
	Bytes   int64
	Skipped int64
	Errors  int64
}

// Recorder routes outgoing server packets into a Writer: snapshots become frames, every other
// message becomes an event.
type Recorder struct {
	mu     sync.Mutex
	writer *Writer
	stats  Stats
}

// NewRecorder opens a session under root.
func NewRecorder(root, sessionID string, fixedDt, snapshotInterval time.Duration, clock func() time.Time) (*Recorder, error) {
	w, _, err := NewWriter(root, sessionID, clock)
	if err != nil {
		return nil, err
	}
	w.SetTiming(fixedDt, snapshotInterval)
	return &Recorder{writer: w}, nil
}

// Directory returns the session directory.
func (r *Recorder) Directory() string {
	if r == nil {
		return ""
	}
	return r.writer.Directory()
}

// Record captures one packet sent at serverMs. Packets that do not decode are skipped.
func (r *Recorder) Record(serverMs, tick uint32, packet []byte) error {
	if r == nil {
		return nil
	}
	kind, err := protocol.KindOf(packet)
	if err != nil {
		r.count(func(s *Stats) { s.Skipped++ })
		return nil
	}
	if kind == protocol.KindSnapshot {
		snap, err := protocol.DecodeSnapshot(packet)
		if err != nil {
			r.count(func(s *Stats) { s.Skipped++ })
			return nil
		}
		err = r.writer.AppendFrame(snap.State.Tick, serverMs, packet)
		r.count(func(s *Stats) {
			s.Frames++
			s.Bytes += int64(len(packet))
			if err != nil {
				s.Errors++
			}
		})
		return err
	}
	err = r.writer.AppendEvent(tick, serverMs, kind.String(), packet)
	r.count(func(s *Stats) {
		s.Events++
		s.Bytes += int64(len(packet))
		if err != nil {
			s.Errors++
		}
	})
	return err
}

func (r *Recorder) count(fn func(*Stats)) {
	r.mu.Lock()
	fn(&r.stats)
	r.mu.Unlock()
}

// Stats returns a copy of the counters.
func (r *Recorder) Stats() Stats {
	if r == nil {
		return Stats{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Close flushes and closes the session.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	return r.writer.Close()
}
