// Package config loads the JSON-file configuration the heartbeat daemon
// reads at startup, applying the same read-validate-defaults idiom used for
// environment-variable configuration elsewhere in this ecosystem, adapted
// here to a JSON document since the substrate's configuration is
// per-deployment filesystem state rather than process environment.
package config

import (
	"encoding/json"
	"os"
)

// ScanMode selects how the heartbeat daemon discovers which
// agents/plans to operate on.
type ScanMode string

const (
	ScanAuto          ScanMode = "auto"
	ScanAllowlistOnly ScanMode = "allowlist_only"
)

// SchemaValidation configures optional JSON Schema enforcement.
type SchemaValidation struct {
	Enabled        bool   `json:"enabled"`
	SchemasBaseDir string `json:"schemas_base_dir"`
}

// PlansConfig configures which plans a daemon considers in scope.
type PlansConfig struct {
	ScanMode  ScanMode `json:"scan_mode"`
	Allowlist []string `json:"allowlist,omitempty"`
}

// HeartbeatConfig is the heartbeat_config.json document read from each
// agent's root directory.
type HeartbeatConfig struct {
	SchemaVersion            string           `json:"schema_version,omitempty"`
	AgentID                  string           `json:"agent_id,omitempty"`
	Plans                    PlansConfig      `json:"plans"`
	SchemaValidation         SchemaValidation `json:"schema_validation"`
	MaxNewMessagesPerTick    int              `json:"max_new_messages_per_tick"`
	MaxResumeMessagesPerTick int              `json:"max_resume_messages_per_tick"`
	PollIntervalSeconds      float64          `json:"poll_interval_seconds"`
}

const (
	defaultMaxNewMessagesPerTick    = 50
	defaultMaxResumeMessagesPerTick = 10
	defaultPollIntervalSeconds      = 1.0
)

// Default returns the zero-configuration defaults used when no
// heartbeat_config.json is present: auto-scan plans, schema validation
// off, and the substrate's standard per-tick throughput caps.
func Default() HeartbeatConfig {
	return HeartbeatConfig{
		Plans:                    PlansConfig{ScanMode: ScanAuto},
		SchemaValidation:         SchemaValidation{Enabled: false},
		MaxNewMessagesPerTick:    defaultMaxNewMessagesPerTick,
		MaxResumeMessagesPerTick: defaultMaxResumeMessagesPerTick,
		PollIntervalSeconds:      defaultPollIntervalSeconds,
	}
}

// Load reads and validates a heartbeat_config.json file at path, applying
// defaults for any field the file omits. A missing file is not an error:
// it returns Default().
func Load(path string) (HeartbeatConfig, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if cfg.MaxNewMessagesPerTick <= 0 {
		cfg.MaxNewMessagesPerTick = defaultMaxNewMessagesPerTick
	}
	if cfg.MaxResumeMessagesPerTick <= 0 {
		cfg.MaxResumeMessagesPerTick = defaultMaxResumeMessagesPerTick
	}
	if cfg.PollIntervalSeconds <= 0 {
		cfg.PollIntervalSeconds = defaultPollIntervalSeconds
	}
	if cfg.Plans.ScanMode == "" {
		cfg.Plans.ScanMode = ScanAuto
	}
	return cfg, nil
}
