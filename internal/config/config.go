package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
)

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Agent    AgentConfig    `koanf:"agent"`
	Store    StoreConfig    `koanf:"store"`
	Relay    RelayConfig    `koanf:"relay"`
	Curation CurationConfig `koanf:"curation"`
	Topics   TopicsConfig   `koanf:"topics"`
}

type ServerConfig struct {
	Port            int    `koanf:"port"`
	LogLevel        string `koanf:"log_level"`
	ReadTimeout     string `koanf:"read_timeout"`
	IdleTimeout     string `koanf:"idle_timeout"`
	ShutdownTimeout string `koanf:"shutdown_timeout"`
}

type AgentConfig struct {
	BaseURL        string `koanf:"base_url"`
	TutorID        string `koanf:"tutor_id"`
	TutorName      string `koanf:"tutor_name"`
	CuratorID      string `koanf:"curator_id"`
	CuratorName    string `koanf:"curator_name"`
	RequestTimeout string `koanf:"request_timeout"`
}

type StoreConfig struct {
	DataPath         string `koanf:"data_path"`
	LockTimeout      string `koanf:"lock_timeout"`
	LockRetry        string `koanf:"lock_retry"`
	LockMaxRetry     int    `koanf:"lock_max_retry"`
	InboxSize        int    `koanf:"inbox_size"`
	ActivityLogLimit int    `koanf:"activity_log_limit"`
}

type RelayConfig struct {
	ReasoningDebounce string `koanf:"reasoning_debounce"`
	ToolResultLimit   int    `koanf:"tool_result_limit"`
}

type CurationConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Schedule string `koanf:"schedule"`
	Cooldown string `koanf:"cooldown"`
}

type TopicsConfig struct {
	CatalogPath string `koanf:"catalog_path"`
}

const (
	DefaultServerPort             = 5999
	DefaultServerLogLevel         = "info"
	DefaultServerReadTimeout      = "10s"
	DefaultServerIdleTimeout      = "60s"
	DefaultServerShutdownTimeout  = "5s"
	DefaultAgentBaseURL           = "http://localhost:8283"
	DefaultAgentTutorName         = "Gideon"
	DefaultAgentCuratorName       = "Curator"
	DefaultAgentRequestTimeout    = "120s"
	DefaultStoreLockTimeout       = "30s"
	DefaultStoreLockRetry         = "100ms"
	DefaultStoreLockMaxRetry      = 300
	DefaultStoreInboxSize         = 100
	DefaultStoreActivityLogLimit  = 100
	DefaultRelayReasoningDebounce = "100ms"
	DefaultRelayToolResultLimit   = 200
	DefaultCurationSchedule       = "@every 6h"
	DefaultCurationCooldown       = "30m"
)

func Load(cmd *cobra.Command) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"server.port":              DefaultServerPort,
		"server.log_level":         DefaultServerLogLevel,
		"server.read_timeout":      DefaultServerReadTimeout,
		"server.idle_timeout":      DefaultServerIdleTimeout,
		"server.shutdown_timeout":  DefaultServerShutdownTimeout,
		"agent.base_url":           DefaultAgentBaseURL,
		"agent.tutor_name":         DefaultAgentTutorName,
		"agent.curator_name":       DefaultAgentCuratorName,
		"agent.request_timeout":    DefaultAgentRequestTimeout,
		"store.data_path":          filepath.Join(os.Getenv("HOME"), ".gideon", "data"),
		"store.lock_timeout":       DefaultStoreLockTimeout,
		"store.lock_retry":         DefaultStoreLockRetry,
		"store.lock_max_retry":     DefaultStoreLockMaxRetry,
		"store.inbox_size":         DefaultStoreInboxSize,
		"store.activity_log_limit": DefaultStoreActivityLogLimit,
		"relay.reasoning_debounce": DefaultRelayReasoningDebounce,
		"relay.tool_result_limit":  DefaultRelayToolResultLimit,
		"curation.enabled":         true,
		"curation.schedule":        DefaultCurationSchedule,
		"curation.cooldown":        DefaultCurationCooldown,
		"topics.catalog_path":      "",
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	configPath := ""
	if cmd != nil {
		if flag := cmd.Flags().Lookup("config"); flag != nil {
			configPath = strings.TrimSpace(flag.Value.String())
		}
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, err
		}
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			globalPath := filepath.Join(home, ".gideon", "config.yaml")
			if err := k.Load(file.Provider(globalPath), yaml.Parser()); err != nil {
				slog.Debug("Global config not found or invalid", "path", globalPath, "error", err)
			}
		}
	}

	k.Load(env.Provider("GIDEON_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "GIDEON_")), "_", ".", -1)
	}), nil)

	if cmd != nil {
		k.Load(posflag.Provider(cmd.Flags(), ".", k), nil)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	// The Letta setup scripts already export LETTA_BASE_URL; honor it when the
	// config itself does not override the agent endpoint.
	if url := os.Getenv("LETTA_BASE_URL"); url != "" && cfg.Agent.BaseURL == DefaultAgentBaseURL {
		cfg.Agent.BaseURL = url
	}

	return &cfg, nil
}

// DurationOrDefault parses value as a time.Duration, taking defaultValue when
// value is blank. Duration-typed config fields stay strings so koanf can layer
// them; callers parse at the point of use.
func DurationOrDefault(value, defaultValue string) (time.Duration, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		s = strings.TrimSpace(defaultValue)
	}
	if s == "" {
		return 0, fmt.Errorf("no duration value given")
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return d, nil
}
