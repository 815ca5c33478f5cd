package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the relay's startup configuration. It is built once in main and
// never mutated afterwards.
type Config struct {
	Platform string `yaml:"platform"`
	Account  string `yaml:"account"` // email / app ID / app-level token, depending on platform
	Secret   string `yaml:"secret"`  // password / bot token / app secret

	Verbose        bool   `yaml:"verbose"`
	Mute           bool   `yaml:"mute"`
	RevealSenderID bool   `yaml:"revealSenderId"`
	AllowAll       bool   `yaml:"allowAll"`
	AllowedIDs     IDList `yaml:"allowedIds"`

	Program        string `yaml:"program"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"` // 0 = wait for the assistant forever
	LogLevel       string `yaml:"logLevel,omitempty"`
	MetricsAddr    string `yaml:"metricsAddr,omitempty"` // serve /metrics here; empty disables
}

// Platforms lists the supported chat backends.
var Platforms = []string{"telegram", "slack", "discord", "feishu", "console"}

// DefaultConfigDir returns the default config directory (~/.jarvis-relay).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".jarvis-relay"
	}
	return filepath.Join(home, ".jarvis-relay")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Load reads a YAML config file on top of Defaults(). It does not validate:
// callers layer flags on top first and then call Validate.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(groups[1])
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match
		}
		return val
	})
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	known := false
	for _, p := range Platforms {
		if cfg.Platform == p {
			known = true
			break
		}
	}
	if !known {
		errs = append(errs, fmt.Sprintf("platform must be one of: %s", strings.Join(Platforms, ", ")))
	}
	if strings.TrimSpace(cfg.Program) == "" {
		errs = append(errs, "program must not be empty")
	}
	if cfg.TimeoutSeconds < 0 {
		errs = append(errs, "timeoutSeconds must be >= 0")
	}
	switch strings.ToLower(cfg.LogLevel) {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "logLevel must be one of: debug, info, warn, error")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Level returns the slog level for cfg. Verbose mode logs at debug level
// unless logLevel says otherwise.
func (c *Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	if c.Verbose {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// MissingCredentials names the credentials the platform needs but cfg lacks.
func (c *Config) MissingCredentials() []string {
	var missing []string
	switch c.Platform {
	case "telegram", "discord":
		if c.Secret == "" {
			missing = append(missing, "bot token (secret)")
		}
	case "slack":
		if c.Account == "" {
			missing = append(missing, "app-level token (account)")
		}
		if c.Secret == "" {
			missing = append(missing, "bot token (secret)")
		}
	case "feishu":
		if c.Account == "" {
			missing = append(missing, "app ID (account)")
		}
		if c.Secret == "" {
			missing = append(missing, "app secret (secret)")
		}
	}
	return missing
}
