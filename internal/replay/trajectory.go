package replay

import (
	"errors"
	"fmt"
	"time"

	"driftpursuit/netsync/internal/config"
	"driftpursuit/netsync/internal/entity"
	"driftpursuit/netsync/internal/interp"
	"driftpursuit/netsync/internal/protocol"
)

// Frame is every entity rendered at one point of a recorded session.
type Frame struct {
	RenderMs float64
	States   []entity.State
}

// PlaybackOptions control how a recording is rendered.
type PlaybackOptions struct {
	Mode interp.Mode
	// Step is the render cadence; zero renders once per fixed tick.
	Step time.Duration
	// Delay is how far rendering trails the recorded server time; zero uses the snapshot
	// interval of the session.
	Delay time.Duration
}

type track struct {
	color  uint32
	buffer *interp.Buffer
}

// Playback renders the recorded snapshots through interpolation buffers the way a client
// with zero round trip would have seen them.
func (l *Loader) Playback(opts PlaybackOptions) ([]Frame, error) {
	if l == nil {
		return nil, errors.New("replay: loader not initialised")
	}
	fixedDt := time.Duration(l.header.FixedDtMs) * time.Millisecond
	if fixedDt <= 0 {
		fixedDt = config.DefaultFixedDt
	}
	if opts.Step <= 0 {
		opts.Step = fixedDt
	}
	if opts.Delay <= 0 {
		opts.Delay = time.Duration(l.header.SnapshotIntervalMs) * time.Millisecond
		if opts.Delay <= 0 {
			opts.Delay = config.DefaultSnapshotInterval
		}
	}
	if len(l.records) == 0 {
		return nil, nil
	}

	tracks := entity.NewRegistry[track]()
	delayMs := float64(opts.Delay) / float64(time.Millisecond)
	stepMs := float64(opts.Step) / float64(time.Millisecond)
	last := float64(l.records[len(l.records)-1].ServerMs)

	var frames []Frame
	next := 0
	for renderMs := float64(l.records[0].ServerMs) - delayMs; renderMs <= last; renderMs += stepMs {
		//1.- Deliver every packet the server had sent by the time this frame is rendered.
		for next < len(l.records) && float64(l.records[next].ServerMs) <= renderMs+delayMs {
			if err := ingest(tracks, l.records[next], fixedDt); err != nil {
				return nil, err
			}
			next++
		}
		if renderMs < 0 {
			continue
		}
		//2.- Sample every entity that has reached its blend window.
		frame := Frame{RenderMs: renderMs}
		for i := 0; i < tracks.Len(); i++ {
			t := tracks.At(i)
			t.buffer.Advance(renderMs)
			if s, ok := t.buffer.Sample(renderMs, opts.Mode); ok {
				s.Color = t.color
				frame.States = append(frame.States, s)
			}
		}
		if len(frame.States) > 0 {
			frames = append(frames, frame)
		}
	}
	return frames, nil
}

func ingest(tracks *entity.Registry[track], rec Record, fixedDt time.Duration) error {
	kind, err := protocol.KindOf(rec.Packet)
	if err != nil {
		return nil
	}
	switch kind {
	case protocol.KindNewEntity:
		msg, err := protocol.DecodeNewEntity(rec.Packet)
		if err != nil {
			return fmt.Errorf("replay: tick %d: %w", rec.Tick, err)
		}
		if tracks.Has(msg.State.EID) {
			return nil
		}
		buf := interp.NewBuffer(fixedDt)
		buf.Push(msg.State)
		tracks.Add(msg.State.EID, track{color: msg.State.Color, buffer: buf})
	case protocol.KindSnapshot:
		msg, err := protocol.DecodeSnapshot(rec.Packet)
		if err != nil {
			return fmt.Errorf("replay: tick %d: %w", rec.Tick, err)
		}
		t, err := tracks.Get(msg.State.EID)
		if err != nil {
			return nil
		}
		t.buffer.Push(msg.State)
	}
	return nil
}
