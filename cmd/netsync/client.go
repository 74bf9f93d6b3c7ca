package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"driftpursuit/netsync/internal/client"
	"driftpursuit/netsync/internal/clock"
	"driftpursuit/netsync/internal/config"
	"driftpursuit/netsync/internal/entity"
	httpapi "driftpursuit/netsync/internal/http"
	"driftpursuit/netsync/internal/interp"
	"driftpursuit/netsync/internal/logging"
	"driftpursuit/netsync/internal/metrics"
	"driftpursuit/netsync/internal/simulation"
	"driftpursuit/netsync/internal/timesync"
	"driftpursuit/netsync/internal/transport"
)

const dialTimeout = 10 * time.Second

// clientFlags drive the scripted pilot of the headless client.
type clientFlags struct {
	throttle    float32
	weave       time.Duration
	clockAddr   string
	metricsAddr string
	report      time.Duration
}

func clientCmd() *cobra.Command {
	var f clientFlags
	cmd := &cobra.Command{
		Use:   "client",
		Short: "Join a server with a scripted pilot and log what it renders",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup("netsync-client")
			if err != nil {
				return err
			}
			defer logger.Sync()
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return runClient(ctx, cfg, logger, f)
		},
	}
	cmd.Flags().Float32Var(&f.throttle, "throttle", 0.5, "constant throttle in [-1, 1]")
	cmd.Flags().DurationVar(&f.weave, "weave", 4*time.Second, "period of a sinusoidal steering pattern; zero flies straight")
	cmd.Flags().StringVar(&f.clockAddr, "clock-addr", "127.0.0.1"+config.DefaultGRPCAddr, "server clock stream for drift monitoring; empty disables it")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "serve client metrics on this address")
	cmd.Flags().DurationVar(&f.report, "report", time.Second, "how often the rendered view is logged")
	return cmd
}

// pilot steers along a sine wave so prediction and interpolation have something to follow.
func pilot(throttle float32, weave time.Duration, now func() time.Time) client.InputFunc {
	started := now()
	return func() entity.Controls {
		c := entity.Controls{Throttle: throttle}
		if weave > 0 {
			phase := float64(now().Sub(started)) / float64(weave)
			c.Steer = float32(math.Sin(2 * math.Pi * phase))
		}
		return c
	}
}

func runClient(ctx context.Context, cfg *config.Config, logger *logging.Logger, f clientFlags) error {
	mode, ok := interp.ParseMode(cfg.Interpolation)
	if !ok {
		return fmt.Errorf("unknown interpolation %q", cfg.Interpolation)
	}
	name := cfg.PlayerName
	if name == "" {
		name = "pilot"
	}

	host := transport.NewHost(transport.Options{QueueSize: cfg.PeerQueue, Logger: logger})
	defer host.Close()
	m := metrics.New("client")
	clk := clock.New(nil)
	c := client.New(host, pilot(f.throttle, f.weave, time.Now), clk, client.Options{
		Name:          name,
		Sync:          cfg.Sync,
		Interpolation: mode,
		PollTimeout:   cfg.PollTimeout,
		Logger:        logger,
		Metrics:       m,
	})

	dialCtx, cancelDial := context.WithTimeout(ctx, dialTimeout)
	peer, err := host.Dial(dialCtx, cfg.ServerURL)
	cancelDial()
	if err != nil {
		return fmt.Errorf("dial %s: %w", cfg.ServerURL, err)
	}
	logger.Info("dialled server", logging.String("url", cfg.ServerURL), logging.Duration("handshake_rtt", peer.RTT()))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	//1.- Optional side channels: drift monitoring over gRPC and a metrics endpoint.
	if f.clockAddr != "" {
		conn, err := timesync.Dial(f.clockAddr)
		if err != nil {
			return fmt.Errorf("dial clock stream: %w", err)
		}
		defer conn.Close()
		monitor := timesync.NewMonitor(conn, clk, clk.Lead, logger, timesync.WithGauge(m.ClockDrift))
		go func() {
			if err := monitor.Run(ctx); err != nil {
				logger.Warn("clock stream ended", logging.Error(err))
			}
		}()
	}
	if f.metricsAddr != "" {
		srv := &http.Server{
			Addr:              f.metricsAddr,
			Handler:           httpapi.NewRouter(httpapi.Options{Logger: logger, Metrics: m.Handler()}),
			ReadHeaderTimeout: readHeaderBudget,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("metrics listener failed", logging.Error(err))
			}
		}()
		defer srv.Close()
	}

	//2.- The frame loop ends when the server goes away.
	var lastReport time.Time
	frame := func(now time.Time) {
		view := c.Frame(now)
		m.RTT.Set(peer.RTT().Seconds())
		if !c.Connected() {
			cancel()
			return
		}
		if now.Sub(lastReport) >= f.report && view.Synced {
			lastReport = now
			report(logger, view)
		}
	}
	monitor := simulation.NewTickMonitor(cfg.Sync.FrameInterval)
	monitor.OnObserve(m.ObserveFrame)
	err = simulation.NewLoop(frameRate(cfg), frame).WithMonitor(monitor).Run(ctx)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	stats := monitor.Stats()
	logger.Info("client stopped", logging.Int("frames", stats.Frames), logging.Int("overruns", stats.Overruns))
	return err
}

func report(logger *logging.Logger, view client.View) {
	fields := []logging.Field{
		logging.Float64("render_ms", view.RenderMs),
		logging.Int("remotes", len(view.Remotes)),
	}
	if view.HasOwn {
		fields = append(fields,
			logging.Uint32("tick", view.Own.Tick),
			logging.Float64("x", float64(view.Own.X)),
			logging.Float64("y", float64(view.Own.Y)),
			logging.Float64("speed", float64(view.Own.Speed)),
		)
	}
	logger.Info("view", fields...)
}
