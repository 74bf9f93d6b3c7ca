package config

import (
	"strings"
	"testing"
	"time"
)

var allKeys = []string{
	"NETSYNC_ADDR", "NETSYNC_GRPC_ADDR", "NETSYNC_SERVER_URL", "NETSYNC_PLAYER_NAME",
	"NETSYNC_POLL_TIMEOUT", "NETSYNC_INTERPOLATION", "NETSYNC_REPLAY_DIR", "NETSYNC_DRIFT_INTERVAL",
	"NETSYNC_PEER_QUEUE", "NETSYNC_UNRELIABLE_BPS", "NETSYNC_FIXED_DT", "NETSYNC_SNAPSHOT_INTERVAL",
	"NETSYNC_RENDER_MARGIN", "NETSYNC_CLOCK_OFFSET", "NETSYNC_FRAME_INTERVAL",
	"NETSYNC_LOG_LEVEL", "NETSYNC_LOG_PATH", "NETSYNC_LOG_MAX_SIZE_MB", "NETSYNC_LOG_MAX_BACKUPS",
	"NETSYNC_LOG_MAX_AGE_DAYS", "NETSYNC_LOG_COMPRESS", "NETSYNC_REPLAY_KEEP", "NETSYNC_REPLAY_MAX_AGE",
	"NETSYNC_UPGRADES_PER_SECOND", "NETSYNC_UPGRADE_BURST", "NETSYNC_MAX_INPUT_LEAD",
	"NETSYNC_CORS_ORIGINS",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range allKeys {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Address != DefaultAddr || cfg.ServerURL != DefaultServerURL {
		t.Fatalf("unexpected addresses %q %q", cfg.Address, cfg.ServerURL)
	}
	if cfg.Sync != DefaultSync() {
		t.Fatalf("unexpected sync constants %+v", cfg.Sync)
	}
	if cfg.Sync.FixedDt != 20*time.Millisecond || cfg.Sync.ClockOffset != 60*time.Millisecond {
		t.Fatalf("unexpected timing %+v", cfg.Sync)
	}
	if cfg.Interpolation != "linear" || cfg.ReplayDir != "" {
		t.Fatalf("unexpected optional settings %+v", cfg)
	}
	if cfg.Logging.Path != DefaultLogPath || !cfg.Logging.Compress {
		t.Fatalf("unexpected logging %+v", cfg.Logging)
	}
	if got := cfg.Sync.FixedDtSeconds(); got != 0.02 {
		t.Fatalf("FixedDtSeconds = %v", got)
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("NETSYNC_ADDR", "127.0.0.1:9000")
	t.Setenv("NETSYNC_PLAYER_NAME", " pilot ")
	t.Setenv("NETSYNC_INTERPOLATION", "Quadratic")
	t.Setenv("NETSYNC_POLL_TIMEOUT", "0s")
	t.Setenv("NETSYNC_FIXED_DT", "10ms")
	t.Setenv("NETSYNC_SNAPSHOT_INTERVAL", "50ms")
	t.Setenv("NETSYNC_UNRELIABLE_BPS", "4096")
	t.Setenv("NETSYNC_LOG_COMPRESS", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Address != "127.0.0.1:9000" || cfg.PlayerName != "pilot" {
		t.Fatalf("unexpected overrides %+v", cfg)
	}
	if cfg.Interpolation != "quadratic" || cfg.PollTimeout != 0 {
		t.Fatalf("unexpected loop settings %+v", cfg)
	}
	if cfg.Sync.FixedDt != 10*time.Millisecond || cfg.Sync.SnapshotInterval != 50*time.Millisecond {
		t.Fatalf("unexpected sync %+v", cfg.Sync)
	}
	if cfg.UnreliableBytesPerSecond != 4096 || cfg.Logging.Compress {
		t.Fatalf("unexpected transport/logging %+v", cfg)
	}
}

func TestLoadCollectsEveryProblem(t *testing.T) {
	clearEnv(t)
	t.Setenv("NETSYNC_FIXED_DT", "1500us")
	t.Setenv("NETSYNC_PEER_QUEUE", "0")
	t.Setenv("NETSYNC_INTERPOLATION", "cubic")
	t.Setenv("NETSYNC_LOG_COMPRESS", "maybe")

	_, err := Load()
	if err == nil {
		t.Fatal("expected an error")
	}
	for _, key := range []string{"NETSYNC_FIXED_DT", "NETSYNC_PEER_QUEUE", "NETSYNC_INTERPOLATION", "NETSYNC_LOG_COMPRESS"} {
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("error %q does not mention %s", err, key)
		}
	}
}

func TestLoadReplayAndUpgradeSettings(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.ReplayKeep != DefaultReplayKeep || cfg.ReplayMaxAge != DefaultReplayMaxAge {
		t.Fatalf("unexpected replay defaults %d %v", cfg.ReplayKeep, cfg.ReplayMaxAge)
	}
	if cfg.UpgradesPerSecond != DefaultUpgradesPerSecond || cfg.UpgradeBurst != DefaultUpgradeBurst {
		t.Fatalf("unexpected upgrade defaults %d %d", cfg.UpgradesPerSecond, cfg.UpgradeBurst)
	}
	if cfg.MaxInputLead != DefaultMaxInputLead {
		t.Fatalf("unexpected input lead %v", cfg.MaxInputLead)
	}

	t.Setenv("NETSYNC_REPLAY_KEEP", "0")
	t.Setenv("NETSYNC_REPLAY_MAX_AGE", "48h")
	t.Setenv("NETSYNC_UPGRADES_PER_SECOND", "0")
	t.Setenv("NETSYNC_UPGRADE_BURST", "5")
	t.Setenv("NETSYNC_CORS_ORIGINS", " http://a.local, ,http://b.local ")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.ReplayKeep != 0 || cfg.ReplayMaxAge != 48*time.Hour {
		t.Fatalf("unexpected replay overrides %d %v", cfg.ReplayKeep, cfg.ReplayMaxAge)
	}
	if cfg.UpgradesPerSecond != 0 || cfg.UpgradeBurst != 5 {
		t.Fatalf("unexpected upgrade overrides %d %d", cfg.UpgradesPerSecond, cfg.UpgradeBurst)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "http://b.local" {
		t.Fatalf("unexpected cors origins %q", cfg.CORSOrigins)
	}

	t.Setenv("NETSYNC_UPGRADE_BURST", "0")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "NETSYNC_UPGRADE_BURST") {
		t.Fatalf("expected burst error, got %v", err)
	}
}
