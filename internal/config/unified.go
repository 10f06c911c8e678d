package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/tidwall/jsonc"
)

// DefaultPort is the engine-facing port used when neither the invocation
// parameters nor the config file carry one.
const DefaultPort = 12345

// UnifiedConfig is the single configuration file format for painter-bridge.jsonc
type UnifiedConfig struct {
	Server     ServerSection     `json:"server"`
	Engine     EngineSection     `json:"engine"`
	Supervisor SupervisorSection `json:"supervisor"`
	Scripting  ScriptingSection  `json:"scripting"`
	Staleness  StalenessSection  `json:"staleness"`
	Settings   SettingsSection   `json:"settings"`
	Logging    LoggingSection    `json:"logging"`
	MCP        MCPSection        `json:"mcp"`
}

// ServerSection contains the engine-facing listener and the side HTTP endpoints
type ServerSection struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	// HTTPAddress serves /health, /ready, /metrics and /mcp. Empty disables it.
	HTTPAddress string `json:"http_address"`
}

// EngineSection holds fallback launch values used when the invocation
// parameters are absent. Both must be set for the fallback to apply.
type EngineSection struct {
	Interpreter   string `json:"interpreter"`
	StartupScript string `json:"startup_script"`
}

// SupervisorSection configures the engine restart throttle
type SupervisorSection struct {
	RestartBurst    int    `json:"restart_burst"`
	RestartInterval string `json:"restart_interval"`
}

// ScriptingSection gates EXECUTE_STATEMENT
type ScriptingSection struct {
	Enabled     bool   `json:"enabled"`
	Interpreter string `json:"interpreter"`
}

// StalenessSection configures the imported-resource staleness sweep
type StalenessSection struct {
	Enabled  *bool  `json:"enabled"`
	Schedule string `json:"schedule"`
}

// SettingsSection configures the project settings store
type SettingsSection struct {
	DataDir string `json:"data_dir"`
}

// LoggingSection configures log output
type LoggingSection struct {
	Dir           string `json:"dir"`
	JSON          bool   `json:"json"`
	Debug         bool   `json:"debug"`
	RetentionDays int    `json:"retention_days"`
}

// MCPSection enables the MCP tool surface on the side HTTP server
type MCPSection struct {
	Enabled bool `json:"enabled"`
}

// Default returns a config with every default applied
func Default() *UnifiedConfig {
	cfg := &UnifiedConfig{}
	applyUnifiedDefaults(cfg)
	return cfg
}

// LoadUnifiedConfig loads configuration from a single painter-bridge.jsonc file
func LoadUnifiedConfig(configPath string) (*UnifiedConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", configPath, err)
	}

	var cfg UnifiedConfig
	if err := json.Unmarshal(jsonc.ToJSON(data), &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", configPath, err)
	}

	applyUnifiedDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating %s: %w", configPath, err)
	}

	return &cfg, nil
}

func applyUnifiedDefaults(cfg *UnifiedConfig) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}

	if cfg.Supervisor.RestartBurst == 0 {
		cfg.Supervisor.RestartBurst = 5
	}
	if cfg.Supervisor.RestartInterval == "" {
		cfg.Supervisor.RestartInterval = "10s"
	}

	if cfg.Staleness.Enabled == nil {
		enabled := true
		cfg.Staleness.Enabled = &enabled
	}
	if cfg.Staleness.Schedule == "" {
		cfg.Staleness.Schedule = "@every 1m"
	}

	if cfg.Settings.DataDir == "" {
		cfg.Settings.DataDir = "data"
	}

	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = "logs"
	}
	if cfg.Logging.RetentionDays == 0 {
		cfg.Logging.RetentionDays = 14
	}
}

// Validate checks values that cannot be defaulted
func (u *UnifiedConfig) Validate() error {
	if u.Server.Port < 0 || u.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", u.Server.Port)
	}
	if _, err := u.RestartInterval(); err != nil {
		return err
	}
	if u.Supervisor.RestartBurst < 0 {
		return fmt.Errorf("supervisor.restart_burst must be positive")
	}
	return nil
}

// RestartInterval parses supervisor.restart_interval
func (u *UnifiedConfig) RestartInterval() (time.Duration, error) {
	d, err := time.ParseDuration(u.Supervisor.RestartInterval)
	if err != nil {
		return 0, fmt.Errorf("supervisor.restart_interval %q is invalid: %w", u.Supervisor.RestartInterval, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("supervisor.restart_interval must be positive")
	}
	return d, nil
}

// StalenessEnabled reports whether the staleness sweep should run
func (u *UnifiedConfig) StalenessEnabled() bool {
	return u.Staleness.Enabled == nil || *u.Staleness.Enabled
}
