package simulation

import (
	"context"
	"time"
)

// FrameFunc runs one frame of a peer: poll, dispatch, simulate, publish.
type FrameFunc func(now time.Time)

// Loop calls a frame function at a fixed interval. Every frame runs on the same goroutine, so
// the state touched by the frame function needs no locking.
type Loop struct {
	interval time.Duration
	frame    FrameFunc
	monitor  *TickMonitor
	now      func() time.Time
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewLoop configures a loop that targets the provided frames per second.
func NewLoop(targetHz float64, frame FrameFunc) *Loop {
	if targetHz <= 0 {
		targetHz = 60
	}
	if frame == nil {
		frame = func(time.Time) {}
	}
	interval := time.Duration(float64(time.Second) / targetHz)
	if interval <= 0 {
		interval = time.Second / 60
	}
	return &Loop{
		interval: interval,
		frame:    frame,
		now:      time.Now,
	}
}

// WithMonitor records the wall time of every frame into m.
func (l *Loop) WithMonitor(m *TickMonitor) *Loop {
	if l != nil {
		l.monitor = m
	}
	return l
}

// Run blocks, calling the frame function once per interval until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	if l == nil {
		return nil
	}
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		//1.- Run a frame immediately so the first one is not delayed by a full interval.
		started := l.now()
		l.frame(started)
		l.monitor.Observe(l.now().Sub(started))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Start runs the loop on its own goroutine until the context is cancelled or Stop is invoked.
func (l *Loop) Start(ctx context.Context) {
	if l == nil {
		return
	}
	ctx, l.cancel = context.WithCancel(ctx)
	l.done = make(chan struct{})
	go func() {
		defer close(l.done)
		_ = l.Run(ctx)
	}()
}

// Stop cancels the loop and waits for the goroutine to exit.
func (l *Loop) Stop() {
	if l == nil {
		return
	}
	if l.cancel != nil {
		l.cancel()
	}
	if l.done != nil {
		<-l.done
		l.done = nil
	}
}

// Interval exposes the configured frame interval.
func (l *Loop) Interval() time.Duration {
	if l == nil {
		return 0
	}
	return l.interval
}
