package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

// --- Validate ---

func TestValidate_ValidConfig(t *testing.T) {
	cfg := Defaults()
	if err := Validate(cfg); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestDefaults_MatchCommandLineDefaults(t *testing.T) {
	cfg := Defaults()
	if !cfg.Verbose || !cfg.Mute || !cfg.AllowAll {
		t.Fatalf("verbose, mute and allowAll should default to true: %+v", cfg)
	}
	if cfg.RevealSenderID {
		t.Fatal("revealSenderId should default to false")
	}
	if len(cfg.AllowedIDs) != 0 {
		t.Fatalf("allowedIds should default to empty, got %v", cfg.AllowedIDs)
	}
	if cfg.Program != "jarvis" {
		t.Fatalf("program: got %q", cfg.Program)
	}
}

func TestValidate_UnknownPlatform(t *testing.T) {
	cfg := Defaults()
	cfg.Platform = "messenger"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unknown platform")
	}
}

func TestValidate_AllPlatforms(t *testing.T) {
	for _, p := range Platforms {
		cfg := Defaults()
		cfg.Platform = p
		if err := Validate(cfg); err != nil {
			t.Fatalf("platform %q should be valid: %v", p, err)
		}
	}
}

func TestValidate_EmptyProgram(t *testing.T) {
	cfg := Defaults()
	cfg.Program = "  "
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for empty program")
	}
}

func TestValidate_NegativeTimeout(t *testing.T) {
	cfg := Defaults()
	cfg.TimeoutSeconds = -1
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for negative timeout")
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := Defaults()
	cfg.LogLevel = "loud"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for invalid log level")
	}
}

func TestLevel(t *testing.T) {
	cfg := Defaults()
	if cfg.Level() != slog.LevelDebug {
		t.Errorf("verbose default: got %v", cfg.Level())
	}
	cfg.Verbose = false
	if cfg.Level() != slog.LevelInfo {
		t.Errorf("quiet: got %v", cfg.Level())
	}
	cfg.LogLevel = "warn"
	if cfg.Level() != slog.LevelWarn {
		t.Errorf("explicit warn: got %v", cfg.Level())
	}
}

// --- Load ---

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `platform: slack
account: xapp-1
secret: xoxb-2
verbose: false
allowAll: false
allowedIds: ["123", 456]
timeoutSeconds: 30
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Platform != "slack" || cfg.Account != "xapp-1" || cfg.Secret != "xoxb-2" {
		t.Fatalf("unexpected credentials: %+v", cfg)
	}
	if cfg.Verbose || cfg.AllowAll {
		t.Fatalf("verbose and allowAll should be false: %+v", cfg)
	}
	if !cfg.Mute {
		t.Fatal("mute should keep its default")
	}
	if len(cfg.AllowedIDs) != 2 || cfg.AllowedIDs[0] != "123" || cfg.AllowedIDs[1] != "456" {
		t.Fatalf("allowedIds: got %v", cfg.AllowedIDs)
	}
	if cfg.TimeoutSeconds != 30 {
		t.Fatalf("timeoutSeconds: got %d", cfg.TimeoutSeconds)
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("JARVIS_RELAY_TEST_SECRET", "from-env")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := "secret: ${JARVIS_RELAY_TEST_SECRET}\nprogram: ${JARVIS_RELAY_TEST_UNSET:-/opt/jarvis}\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Secret != "from-env" {
		t.Fatalf("secret: got %q", cfg.Secret)
	}
	if cfg.Program != "/opt/jarvis" {
		t.Fatalf("program: got %q", cfg.Program)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	os.WriteFile(path, []byte("platform: [unclosed\n"), 0o644)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoad_LeavesValidationToCaller(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("platform: icq\n"), 0o644)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Platform != "icq" {
		t.Fatalf("platform = %q, want the file's value", cfg.Platform)
	}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestExpandEnvVars_KeepsUnknown(t *testing.T) {
	got := ExpandEnvVars("a ${JARVIS_RELAY_TEST_NOPE} b")
	if got != "a ${JARVIS_RELAY_TEST_NOPE} b" {
		t.Fatalf("got %q", got)
	}
}

// --- Sanitize ---

func TestSanitize_MasksSecret(t *testing.T) {
	cfg := Defaults()
	cfg.Secret = "123456789:ABCdefGHIjklMNOpqrSTUvwxyz"

	sanitized := Sanitize(cfg)
	if sanitized.Secret == cfg.Secret {
		t.Fatal("secret should be masked")
	}
	if cfg.Secret != "123456789:ABCdefGHIjklMNOpqrSTUvwxyz" {
		t.Fatal("original config should not be modified")
	}
}

func TestSanitize_ShortSecret(t *testing.T) {
	cfg := Defaults()
	cfg.Secret = "short"
	if got := Sanitize(cfg).Secret; got != "***" {
		t.Fatalf("short secret should be '***', got %q", got)
	}
}

func TestSanitize_SlackAppToken(t *testing.T) {
	cfg := Defaults()
	cfg.Platform = "slack"
	cfg.Account = "xapp-1-A0000000000-abcdefgh"
	if got := Sanitize(cfg).Account; got == cfg.Account {
		t.Fatal("slack app-level token should be masked")
	}

	cfg.Platform = "feishu"
	cfg.Account = "cli_a1b2c3d4e5f6"
	if got := Sanitize(cfg).Account; got != cfg.Account {
		t.Fatalf("feishu app ID is not secret, got %q", got)
	}
}

func TestMissingCredentials(t *testing.T) {
	tests := []struct {
		platform string
		account  string
		secret   string
		want     int
	}{
		{"telegram", "", "", 1},
		{"telegram", "", "token", 0},
		{"discord", "ignored", "", 1},
		{"slack", "", "", 2},
		{"slack", "xapp", "xoxb", 0},
		{"feishu", "cli_x", "", 1},
		{"console", "", "", 0},
	}
	for _, tt := range tests {
		cfg := Defaults()
		cfg.Platform = tt.platform
		cfg.Account = tt.account
		cfg.Secret = tt.secret
		if got := cfg.MissingCredentials(); len(got) != tt.want {
			t.Errorf("%s(%q, %q): got %v, want %d missing", tt.platform, tt.account, tt.secret, got, tt.want)
		}
	}
}
