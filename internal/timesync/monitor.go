package timesync

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"driftpursuit/netsync/internal/logging"
)

// DriftWarning is the drift above which samples are logged at warn level.
const DriftWarning = 50 * time.Millisecond

// Local is the client clock being checked.
type Local interface {
	NowMs() uint32
	Synced() bool
}

// Sample is one comparison between the local and the server clock.
type Sample struct {
	ServerMs uint32
	LocalMs  uint32
	// Drift is local minus (server plus the expected lead). Zero means the clock runs exactly
	// as far ahead as the handshake intended.
	Drift time.Duration
}

// Dial opens a client connection that compresses requests with snappy.
func Dial(target string) (*grpc.ClientConn, error) {
	return grpc.NewClient(target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.UseCompressor(CompressorName)),
	)
}

// Monitor consumes the clock stream and reports drift.
type Monitor struct {
	conn     grpc.ClientConnInterface
	local    Local
	lead     func() time.Duration
	gauge    prometheus.Gauge
	log      *logging.Logger
	warn     *logging.Throttled
	onSample func(Sample)
}

// MonitorOption customises a Monitor.
type MonitorOption func(*Monitor)

// WithGauge publishes the drift in seconds.
func WithGauge(g prometheus.Gauge) MonitorOption {
	return func(m *Monitor) { m.gauge = g }
}

// WithSampleHook observes every sample.
func WithSampleHook(fn func(Sample)) MonitorOption {
	return func(m *Monitor) { m.onSample = fn }
}

// NewMonitor compares local against the stream on conn. lead returns how far the local clock was
// set ahead of the server at synchronisation, usually clock.Clock.Lead.
func NewMonitor(conn grpc.ClientConnInterface, local Local, lead func() time.Duration, logger *logging.Logger, opts ...MonitorOption) *Monitor {
	if logger == nil {
		logger = logging.L()
	}
	if lead == nil {
		lead = func() time.Duration { return 0 }
	}
	m := &Monitor{conn: conn, local: local, lead: lead, log: logger, warn: logging.NewThrottled(logger, 10*time.Second, 1)}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Run reads samples until ctx ends or the server closes the stream.
func (m *Monitor) Run(ctx context.Context) error {
	stream, err := m.conn.NewStream(ctx, &clockStreamDesc, StreamMethod)
	if err != nil {
		return err
	}
	client := &grpc.GenericClientStream[emptypb.Empty, wrapperspb.UInt32Value]{ClientStream: stream}
	if err := client.SendMsg(&emptypb.Empty{}); err != nil {
		return err
	}
	if err := client.CloseSend(); err != nil {
		return err
	}
	for {
		msg, err := client.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		m.observe(msg.GetValue())
	}
}

func (m *Monitor) observe(serverMs uint32) {
	//1.- Samples before the handshake carry no information about drift.
	if m.local == nil || !m.local.Synced() {
		return
	}
	local := m.local.NowMs()
	expected := int64(serverMs) + m.lead().Milliseconds()
	sample := Sample{ServerMs: serverMs, LocalMs: local, Drift: time.Duration(int64(local)-expected) * time.Millisecond}
	if m.gauge != nil {
		m.gauge.Set(sample.Drift.Seconds())
	}
	if sample.Drift > DriftWarning || sample.Drift < -DriftWarning {
		m.warn.Warn("clock drift beyond threshold", logging.Duration("drift", sample.Drift), logging.Uint32("server_ms", serverMs))
	} else {
		m.log.Debug("clock drift sample", logging.Duration("drift", sample.Drift))
	}
	if m.onSample != nil {
		m.onSample(sample)
	}
}
