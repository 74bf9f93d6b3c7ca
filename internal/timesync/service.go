// Package timesync streams the server clock over gRPC so clients can watch how far their synced
// clock drifts after the one-shot SetTime handshake.
package timesync

import (
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"driftpursuit/netsync/internal/logging"
)

const (
	serviceName = "netsync.timesync.Clock"
	streamName  = "Stream"
	// StreamMethod is the full method name of the clock stream.
	StreamMethod = "/" + serviceName + "/" + streamName
)

// Source provides the server's millisecond clock.
type Source interface {
	NowMs() uint32
}

// ClockServer is the server side of the clock stream.
type ClockServer interface {
	Stream(*emptypb.Empty, grpc.ServerStreamingServer[wrapperspb.UInt32Value]) error
}

var clockStreamDesc = grpc.StreamDesc{
	StreamName:    streamName,
	Handler:       streamHandler,
	ServerStreams: true,
}

// ServiceDesc describes the clock service for grpc.Server registration.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*ClockServer)(nil),
	Streams:     []grpc.StreamDesc{clockStreamDesc},
	Metadata:    "netsync/timesync",
}

func streamHandler(srv any, stream grpc.ServerStream) error {
	req := new(emptypb.Empty)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(ClockServer).Stream(req, &grpc.GenericServerStream[emptypb.Empty, wrapperspb.UInt32Value]{ServerStream: stream})
}

// Register attaches svc to a gRPC server.
func Register(r grpc.ServiceRegistrar, svc ClockServer) {
	r.RegisterService(&ServiceDesc, svc)
}

// Service pushes the server time at a fixed cadence.
type Service struct {
	clock    Source
	interval time.Duration
	log      *logging.Logger
}

// NewService streams clock samples every interval.
func NewService(clock Source, interval time.Duration, logger *logging.Logger) *Service {
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = logging.L()
	}
	return &Service{clock: clock, interval: interval, log: logger}
}

// Stream sends one sample immediately and then one per interval until the client leaves.
func (s *Service) Stream(_ *emptypb.Empty, stream grpc.ServerStreamingServer[wrapperspb.UInt32Value]) error {
	if s == nil || s.clock == nil {
		return status.Error(codes.Unavailable, "clock stream unavailable")
	}
	ctx := stream.Context()
	s.log.Debug("clock stream opened")
	defer s.log.Debug("clock stream closed")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if err := stream.Send(wrapperspb.UInt32(s.clock.NowMs())); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

var _ ClockServer = (*Service)(nil)
