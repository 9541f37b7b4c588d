package backpressure

import (
	"os"
	"strconv"
)

// Config holds the backpressure state machine's tunables, immutable
// after State initialization. Defaults and validation rules are ported
// verbatim from tracer_backend/src/backpressure/backpressure.cpp
// (bp_default_config / bp_config_validate).
type Config struct {
	PressureThresholdPercent uint32
	RecoveryThresholdPercent uint32
	RecoveryStableNs         uint64
	DropLogInterval          uint32
}

// DefaultConfig returns the backend's hard-coded defaults: 25% pressure
// threshold, 50% recovery threshold, a one second stable-recovery
// window, and a drop log every 64th dropped event.
func DefaultConfig() Config {
	return Config{
		PressureThresholdPercent: 25,
		RecoveryThresholdPercent: 50,
		RecoveryStableNs:         1_000_000_000,
		DropLogInterval:          64,
	}
}

// ConfigFromEnv builds a Config from BP_PRESSURE_THRESHOLD,
// BP_RECOVERY_THRESHOLD and BP_DROP_LOG_INTERVAL, falling back silently
// to defaults for any variable that is unset or not a non-negative
// integer, then validating (and, if necessary, repairing) the result.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	if v, ok := parseEnvUint32("BP_PRESSURE_THRESHOLD"); ok {
		cfg.PressureThresholdPercent = v
	}
	if v, ok := parseEnvUint32("BP_RECOVERY_THRESHOLD"); ok {
		cfg.RecoveryThresholdPercent = v
	}
	if v, ok := parseEnvUint32("BP_DROP_LOG_INTERVAL"); ok {
		cfg.DropLogInterval = v
	}

	cfg.Validate()
	return cfg
}

func parseEnvUint32(name string) (uint32, bool) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}

// Validate repairs any invalid field in place using defaults (or a
// nearby valid value) and reports whether the configuration was already
// valid. Rules, in order:
//   - pressure == 0 or >= 100 resets to the default pressure threshold
//   - recovery == 0 or > 100 resets to the default recovery threshold
//   - pressure >= recovery is repaired to pressure+5, unless pressure is
//     already >= 95, in which case both thresholds reset to defaults
//   - drop_log_interval == 0 resets to the default interval
//   - recovery_stable_ns == 0 resets to the default window
func (cfg *Config) Validate() bool {
	valid := true
	defaults := DefaultConfig()

	if cfg.PressureThresholdPercent == 0 || cfg.PressureThresholdPercent >= 100 {
		cfg.PressureThresholdPercent = defaults.PressureThresholdPercent
		valid = false
	}

	if cfg.RecoveryThresholdPercent == 0 || cfg.RecoveryThresholdPercent > 100 {
		cfg.RecoveryThresholdPercent = defaults.RecoveryThresholdPercent
		valid = false
	}

	if cfg.PressureThresholdPercent >= cfg.RecoveryThresholdPercent {
		if cfg.PressureThresholdPercent < 95 {
			cfg.RecoveryThresholdPercent = cfg.PressureThresholdPercent + 5
		} else {
			cfg.PressureThresholdPercent = defaults.PressureThresholdPercent
			cfg.RecoveryThresholdPercent = defaults.RecoveryThresholdPercent
		}
		valid = false
	}

	if cfg.DropLogInterval == 0 {
		cfg.DropLogInterval = defaults.DropLogInterval
		valid = false
	}

	if cfg.RecoveryStableNs == 0 {
		cfg.RecoveryStableNs = defaults.RecoveryStableNs
		valid = false
	}

	return valid
}
