package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"

	"driftpursuit/netsync/internal/clock"
	"driftpursuit/netsync/internal/config"
	httpapi "driftpursuit/netsync/internal/http"
	"driftpursuit/netsync/internal/logging"
	"driftpursuit/netsync/internal/metrics"
	"driftpursuit/netsync/internal/replay"
	"driftpursuit/netsync/internal/server"
	"driftpursuit/netsync/internal/simulation"
	"driftpursuit/netsync/internal/timesync"
	"driftpursuit/netsync/internal/transport"
)

const (
	shutdownTimeout  = 5 * time.Second
	retentionSweep   = 10 * time.Minute
	readHeaderBudget = 5 * time.Second
)

func serverCmd() *cobra.Command {
	var session string
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the authoritative simulation and accept players on /ws",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup("netsync-server")
			if err != nil {
				return err
			}
			defer logger.Sync()
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return runServer(ctx, cfg, logger, session)
		},
	}
	cmd.Flags().StringVar(&session, "session", "session", "name of the recorded session when NETSYNC_REPLAY_DIR is set")
	return cmd
}

// readiness reports peers from the transport and whether every listener came up.
type readiness struct {
	host    *transport.Host
	started time.Time

	mu  sync.Mutex
	err error
}

func (r *readiness) Peers() int            { return r.host.Len() }
func (r *readiness) Uptime() time.Duration { return time.Since(r.started) }

func (r *readiness) StartupError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *readiness) fail(err error) {
	r.mu.Lock()
	if r.err == nil {
		r.err = err
	}
	r.mu.Unlock()
}

func runServer(ctx context.Context, cfg *config.Config, logger *logging.Logger, session string) error {
	//1.- Transport, clock and metrics shared by the frame loop and the side listeners.
	host := transport.NewHost(transport.Options{
		QueueSize:                cfg.PeerQueue,
		UnreliableBytesPerSecond: cfg.UnreliableBytesPerSecond,
		Logger:                   logger,
	})
	defer host.Close()
	clk := clock.NewServer(nil)
	m := metrics.New("server")
	ready := &readiness{host: host, started: time.Now()}

	//2.- Optional recording with on-disk retention.
	var recorder *replay.Recorder
	var cleaner *replay.Cleaner
	if cfg.ReplayDir != "" {
		var err error
		recorder, err = replay.NewRecorder(cfg.ReplayDir, session, cfg.Sync.FixedDt, cfg.Sync.SnapshotInterval, nil)
		if err != nil {
			return fmt.Errorf("open replay recorder: %w", err)
		}
		defer func() {
			if err := recorder.Close(); err != nil {
				logger.Error("close replay recorder", logging.Error(err))
			}
		}()
		cleaner = replay.NewCleaner(cfg.ReplayDir, replay.RetentionPolicy{MaxSessions: cfg.ReplayKeep, MaxAge: cfg.ReplayMaxAge}, logger)
		go cleaner.Run(ctx, retentionSweep)
		logger.Info("recording session", logging.String("directory", recorder.Directory()))
	}

	maxLead := cfg.MaxInputLead
	if maxLead == 0 {
		maxLead = -1
	}
	srv := server.New(host, clk, server.Options{
		Sync:         cfg.Sync,
		PollTimeout:  cfg.PollTimeout,
		MaxInputLead: maxLead,
		Logger:       logger,
		Metrics:      m,
		Recorder:     recorder,
	})

	//3.- HTTP: websocket upgrades next to the operational endpoints.
	opts := httpapi.Options{
		Logger:    logger,
		Readiness: ready,
		Metrics:   m.Handler(),
		Socket:    host,

		CORSOrigins: cfg.CORSOrigins,
	}
	if cfg.UpgradesPerSecond > 0 {
		opts.UpgradeLimiter = rate.NewLimiter(rate.Limit(cfg.UpgradesPerSecond), cfg.UpgradeBurst)
	}
	if recorder != nil {
		opts.ReplayStats = func() httpapi.ReplayStats {
			return httpapi.ReplayStats{Recording: recorder.Stats(), Storage: cleaner.Stats()}
		}
	}
	httpServer := &http.Server{
		Addr:              cfg.Address,
		Handler:           httpapi.NewRouter(opts),
		ReadHeaderTimeout: readHeaderBudget,
	}

	//4.- gRPC: the clock stream clients use to watch their drift.
	grpcServer := grpc.NewServer()
	timesync.Register(grpcServer, timesync.NewService(clk, cfg.DriftInterval, logger))

	listener, err := net.Listen("tcp", cfg.GRPCAddress)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	errs := make(chan error, 2)
	go func() {
		logger.Info("http listening", logging.String("address", cfg.Address))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			ready.fail(err)
			errs <- fmt.Errorf("http: %w", err)
		}
	}()
	go func() {
		logger.Info("grpc listening", logging.String("address", cfg.GRPCAddress))
		if err := grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			ready.fail(err)
			errs <- fmt.Errorf("grpc: %w", err)
		}
	}()

	//5.- The frame loop owns the simulation until shutdown.
	monitor := simulation.NewTickMonitor(cfg.Sync.FrameInterval)
	monitor.OnObserve(m.ObserveFrame)
	loop := simulation.NewLoop(frameRate(cfg), srv.Frame).WithMonitor(monitor)
	loop.Start(ctx)
	logger.Info("server started",
		logging.Duration("fixed_dt", cfg.Sync.FixedDt),
		logging.Duration("snapshot_interval", cfg.Sync.SnapshotInterval),
	)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errs:
		logger.Error("listener failed", logging.Error(runErr))
	}

	loop.Stop()
	stats := monitor.Stats()
	logger.Info("server stopping",
		logging.Int("frames", stats.Frames),
		logging.Int("overruns", stats.Overruns),
		logging.Duration("max_frame", stats.Max),
	)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", logging.Error(err))
	}
	grpcServer.GracefulStop()
	return runErr
}
