package logging

import (
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Throttled writes at most a burst of messages per interval and counts the ones it suppressed.
// The next written line reports the suppressed count.
type Throttled struct {
	logger     *Logger
	limiter    *rate.Limiter
	suppressed atomic.Int64
}

// NewThrottled allows burst messages and then one per interval.
func NewThrottled(logger *Logger, interval time.Duration, burst int) *Throttled {
	if burst < 1 {
		burst = 1
	}
	return &Throttled{logger: logger, limiter: rate.NewLimiter(rate.Every(interval), burst)}
}

// Warn logs at warn level if the budget allows it.
func (t *Throttled) Warn(message string, fields ...Field) bool {
	return t.emit(WarnLevel, message, fields)
}

// Debug logs at debug level if the budget allows it.
func (t *Throttled) Debug(message string, fields ...Field) bool {
	return t.emit(DebugLevel, message, fields)
}

// Suppressed returns how many messages were dropped since the last written one.
func (t *Throttled) Suppressed() int64 {
	if t == nil {
		return 0
	}
	return t.suppressed.Load()
}

func (t *Throttled) emit(level Level, message string, fields []Field) bool {
	if t == nil {
		return false
	}
	if !t.limiter.Allow() {
		t.suppressed.Add(1)
		return false
	}
	if n := t.suppressed.Swap(0); n > 0 {
		fields = append(fields, Int64("suppressed", n))
	}
	t.logger.log(level, message, fields...)
	return true
}
