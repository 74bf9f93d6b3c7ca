package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultAddr is the address the server's HTTP and websocket listener binds to.
	DefaultAddr = ":10131"
	// DefaultGRPCAddr is where the clock drift stream is served.
	DefaultGRPCAddr = ":10132"
	// DefaultServerURL is the websocket endpoint clients dial.
	DefaultServerURL = "ws://127.0.0.1:10131/ws"
	// DefaultPollTimeout bounds how long a frame waits for network events.
	DefaultPollTimeout = 10 * time.Millisecond
	// DefaultInterpolation selects how remote entities are blended.
	DefaultInterpolation = "linear"
	// DefaultPeerQueue is the per-peer outbound frame queue length.
	DefaultPeerQueue = 256
	// DefaultDriftInterval is how often the server streams its clock for drift monitoring.
	DefaultDriftInterval = time.Second
	// DefaultReplayKeep caps the number of recorded sessions kept on disk.
	DefaultReplayKeep = 20
	// DefaultReplayMaxAge removes recorded sessions older than this.
	DefaultReplayMaxAge = 7 * 24 * time.Hour
	// DefaultMaxInputLead is how far ahead of the simulation an input may be queued.
	DefaultMaxInputLead = 2 * time.Second
	// DefaultUpgradesPerSecond limits websocket handshakes accepted by the server.
	DefaultUpgradesPerSecond = 20
	// DefaultUpgradeBurst is the handshake allowance available at once.
	DefaultUpgradeBurst = 40

	// DefaultFixedDt is the simulation step. Must be a whole number of milliseconds.
	DefaultFixedDt = 20 * time.Millisecond
	// DefaultSnapshotInterval is how often the server broadcasts snapshots.
	DefaultSnapshotInterval = 100 * time.Millisecond
	// DefaultRenderSafetyMargin pads the interpolation delay.
	DefaultRenderSafetyMargin = 3 * DefaultFixedDt
	// DefaultClockOffset keeps client ticks ahead of the server so inputs arrive in time.
	DefaultClockOffset = 3 * DefaultFixedDt
	// DefaultFrameInterval is the frame loop cadence (60 FPS).
	DefaultFrameInterval = time.Second / 60

	// DefaultLogLevel controls verbosity.
	DefaultLogLevel = "info"
	// DefaultLogPath is where structured logs are written.
	DefaultLogPath = "netsync.log"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 100
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 10
	// DefaultLogMaxAgeDays controls how long rotated log files are kept on disk.
	DefaultLogMaxAgeDays = 7
	// DefaultLogCompress toggles gzip compression for rotated log files.
	DefaultLogCompress = true
)

// Config captures all runtime tunables for the server and client.
type Config struct {
	Address       string
	GRPCAddress   string
	ServerURL     string
	PlayerName    string
	PollTimeout   time.Duration
	Interpolation string
	ReplayDir     string
	ReplayKeep    int
	ReplayMaxAge  time.Duration
	DriftInterval time.Duration
	MaxInputLead  time.Duration
	CORSOrigins   []string

	PeerQueue                int
	UnreliableBytesPerSecond int
	UpgradesPerSecond        int
	UpgradeBurst             int

	Sync    SyncConfig
	Logging LoggingConfig
}

// SyncConfig holds the timing constants both peers must agree on.
type SyncConfig struct {
	FixedDt            time.Duration
	SnapshotInterval   time.Duration
	RenderSafetyMargin time.Duration
	ClockOffset        time.Duration
	FrameInterval      time.Duration
}

// DefaultSync returns the stock timing constants.
func DefaultSync() SyncConfig {
	return SyncConfig{
		FixedDt:            DefaultFixedDt,
		SnapshotInterval:   DefaultSnapshotInterval,
		RenderSafetyMargin: DefaultRenderSafetyMargin,
		ClockOffset:        DefaultClockOffset,
		FrameInterval:      DefaultFrameInterval,
	}
}

// FixedDtSeconds returns the step in seconds as the simulation consumes it.
func (s SyncConfig) FixedDtSeconds() float32 {
	return float32(s.FixedDt.Seconds())
}

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// env reads NETSYNC_* overrides and collects every problem instead of stopping at the first.
type env struct {
	problems []string
}

func (e *env) fail(format string, args ...any) {
	e.problems = append(e.problems, fmt.Sprintf(format, args...))
}

func (e *env) duration(key string, dst *time.Duration, allowZero bool) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 || (d == 0 && !allowZero) {
		e.fail("%s must be a positive duration, got %q", key, raw)
		return
	}
	*dst = d
}

func (e *env) integer(key string, dst *int, min int) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < min {
		e.fail("%s must be an integer >= %d, got %q", key, min, raw)
		return
	}
	*dst = v
}

func (e *env) boolean(key string, dst *bool) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		e.fail("%s must be a boolean value, got %q", key, raw)
		return
	}
	*dst = v
}

// Load reads the configuration from environment variables, applying defaults and returning
// one error describing every invalid override.
func Load() (*Config, error) {
	cfg := &Config{
		Address:       getString("NETSYNC_ADDR", DefaultAddr),
		GRPCAddress:   getString("NETSYNC_GRPC_ADDR", DefaultGRPCAddr),
		ServerURL:     getString("NETSYNC_SERVER_URL", DefaultServerURL),
		PlayerName:    strings.TrimSpace(os.Getenv("NETSYNC_PLAYER_NAME")),
		PollTimeout:   DefaultPollTimeout,
		Interpolation: strings.ToLower(getString("NETSYNC_INTERPOLATION", DefaultInterpolation)),
		ReplayDir:     strings.TrimSpace(os.Getenv("NETSYNC_REPLAY_DIR")),
		ReplayKeep:    DefaultReplayKeep,
		ReplayMaxAge:  DefaultReplayMaxAge,
		DriftInterval: DefaultDriftInterval,
		MaxInputLead:  DefaultMaxInputLead,
		CORSOrigins:   splitList(os.Getenv("NETSYNC_CORS_ORIGINS")),
		PeerQueue:     DefaultPeerQueue,

		UpgradesPerSecond: DefaultUpgradesPerSecond,
		UpgradeBurst:      DefaultUpgradeBurst,

		Sync: DefaultSync(),
		Logging: LoggingConfig{
			Level:      getString("NETSYNC_LOG_LEVEL", DefaultLogLevel),
			Path:       getString("NETSYNC_LOG_PATH", DefaultLogPath),
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
			Compress:   DefaultLogCompress,
		},
	}

	var e env
	e.duration("NETSYNC_POLL_TIMEOUT", &cfg.PollTimeout, true)
	e.duration("NETSYNC_DRIFT_INTERVAL", &cfg.DriftInterval, false)
	e.duration("NETSYNC_MAX_INPUT_LEAD", &cfg.MaxInputLead, true)
	e.integer("NETSYNC_PEER_QUEUE", &cfg.PeerQueue, 1)
	e.integer("NETSYNC_REPLAY_KEEP", &cfg.ReplayKeep, 0)
	e.duration("NETSYNC_REPLAY_MAX_AGE", &cfg.ReplayMaxAge, true)
	e.integer("NETSYNC_UNRELIABLE_BPS", &cfg.UnreliableBytesPerSecond, 0)
	e.integer("NETSYNC_UPGRADES_PER_SECOND", &cfg.UpgradesPerSecond, 0)
	e.integer("NETSYNC_UPGRADE_BURST", &cfg.UpgradeBurst, 1)

	e.duration("NETSYNC_FIXED_DT", &cfg.Sync.FixedDt, false)
	e.duration("NETSYNC_SNAPSHOT_INTERVAL", &cfg.Sync.SnapshotInterval, false)
	e.duration("NETSYNC_RENDER_MARGIN", &cfg.Sync.RenderSafetyMargin, true)
	e.duration("NETSYNC_CLOCK_OFFSET", &cfg.Sync.ClockOffset, true)
	e.duration("NETSYNC_FRAME_INTERVAL", &cfg.Sync.FrameInterval, false)

	e.integer("NETSYNC_LOG_MAX_SIZE_MB", &cfg.Logging.MaxSizeMB, 1)
	e.integer("NETSYNC_LOG_MAX_BACKUPS", &cfg.Logging.MaxBackups, 0)
	e.integer("NETSYNC_LOG_MAX_AGE_DAYS", &cfg.Logging.MaxAgeDays, 0)
	e.boolean("NETSYNC_LOG_COMPRESS", &cfg.Logging.Compress)

	//1.- Ticks are counted in whole milliseconds on the wire.
	if cfg.Sync.FixedDt%time.Millisecond != 0 {
		e.fail("NETSYNC_FIXED_DT must be a whole number of milliseconds, got %v", cfg.Sync.FixedDt)
	}
	if cfg.Interpolation != "linear" && cfg.Interpolation != "quadratic" {
		e.fail("NETSYNC_INTERPOLATION must be linear or quadratic, got %q", cfg.Interpolation)
	}

	if len(e.problems) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(e.problems, "; "))
	}
	return cfg, nil
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
