package transport

import (
	"encoding/binary"
	"sync"
	"time"
)

// rttEstimator smooths round-trip samples the way ENet does: the mean moves an eighth of the
// way towards each sample and the variance a quarter of the way.
type rttEstimator struct {
	mu       sync.Mutex
	mean     time.Duration
	variance time.Duration
	seeded   bool
}

func (e *rttEstimator) seed(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d < 0 {
		d = 0
	}
	e.mean = d
	e.variance = d / 2
	e.seeded = true
}

func (e *rttEstimator) observe(sample time.Duration) {
	if sample < 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.seeded {
		e.mean = sample
		e.variance = sample / 2
		e.seeded = true
		return
	}
	diff := sample - e.mean
	e.mean += diff / 8
	if diff < 0 {
		diff = -diff
	}
	e.variance += (diff - e.variance) / 4
}

func (e *rttEstimator) get() (time.Duration, time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mean, e.variance
}

// pingPayload stamps a ping with the sender's clock so the pong carries it back.
func pingPayload(now time.Time) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(now.UnixNano()))
	return buf
}

func pongSample(payload []byte, now time.Time) (time.Duration, bool) {
	if len(payload) != 8 {
		return 0, false
	}
	sent := time.Unix(0, int64(binary.BigEndian.Uint64(payload)))
	d := now.Sub(sent)
	if d < 0 {
		return 0, false
	}
	return d, true
}
