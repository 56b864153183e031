package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Remote.Provider != "gemini" {
		t.Errorf("expected default provider 'gemini', got '%s'", cfg.Remote.Provider)
	}
	if cfg.Classifier.ConfidenceThreshold != 0.6 {
		t.Errorf("expected threshold 0.6, got %v", cfg.Classifier.ConfidenceThreshold)
	}
	if cfg.Classifier.RetrainInterval != 10 {
		t.Errorf("expected retrain interval 10, got %d", cfg.Classifier.RetrainInterval)
	}
	if cfg.Remote.ContextWindow != 5 {
		t.Errorf("expected context window 5, got %d", cfg.Remote.ContextWindow)
	}
	if cfg.Probe.ReachabilityURL != "https://www.google.com" {
		t.Errorf("unexpected reachability url '%s'", cfg.Probe.ReachabilityURL)
	}
	if cfg.Actions.Execute {
		t.Error("expected actions to be dry-run by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadFromPath(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), ".jarvis", "config.yaml")

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Error("config file was not created")
	}
	if cfg.Remote.Provider != "gemini" {
		t.Errorf("expected provider 'gemini', got '%s'", cfg.Remote.Provider)
	}

	cfg2, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("failed to load existing config: %v", err)
	}
	if cfg2.Classifier.RetrainInterval != cfg.Classifier.RetrainInterval {
		t.Error("config values changed on reload")
	}
}

func TestSaveToPath(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	cfg := Default()
	cfg.Remote.Provider = "openai"
	cfg.Remote.Model = "gpt-4o-mini"
	cfg.Actions.Execute = true
	cfg.Actions.Commands = map[string][]string{"open_chrome": {"xdg-open", "https://google.com"}}

	if err := cfg.SaveToPath(configPath); err != nil {
		t.Fatalf("failed to save config: %v", err)
	}

	loaded, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("failed to load saved config: %v", err)
	}

	if loaded.Remote.Provider != "openai" {
		t.Errorf("expected provider 'openai', got '%s'", loaded.Remote.Provider)
	}
	if !loaded.Actions.Execute {
		t.Error("expected Execute to be true")
	}
	argv := loaded.Actions.Commands["open_chrome"]
	if len(argv) != 2 || argv[0] != "xdg-open" {
		t.Errorf("unexpected command argv %v", argv)
	}
}

func TestEnvOverride(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv("JARVIS_CLASSIFIER_CONFIDENCE_THRESHOLD", "0.75")
	t.Setenv("JARVIS_REMOTE_PROVIDER", "ollama")

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Classifier.ConfidenceThreshold != 0.75 {
		t.Errorf("expected env threshold 0.75, got %v", cfg.Classifier.ConfidenceThreshold)
	}
	if cfg.Remote.Provider != "ollama" {
		t.Errorf("expected env provider 'ollama', got '%s'", cfg.Remote.Provider)
	}
}

func TestEnsureDirectories(t *testing.T) {
	tempDir := t.TempDir()

	cfg := &Config{
		Storage: StorageConfig{
			DataDir:      filepath.Join(tempDir, ".jarvis"),
			DBPath:       filepath.Join(tempDir, ".jarvis", "data", "jarvis.db"),
			RegistryPath: filepath.Join(tempDir, ".jarvis", "intents.yaml"),
		},
		Logging: LoggingConfig{
			File: filepath.Join(tempDir, ".jarvis", "logs", "jarvis.log"),
		},
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("failed to ensure directories: %v", err)
	}

	for _, dir := range []string{
		filepath.Join(tempDir, ".jarvis"),
		filepath.Join(tempDir, ".jarvis", "data"),
		filepath.Join(tempDir, ".jarvis", "logs"),
	} {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			t.Errorf("directory %s was not created", dir)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"valid default", func(c *Config) {}, false},
		{"unknown provider", func(c *Config) { c.Remote.Provider = "bard" }, true},
		{"zero remote timeout", func(c *Config) { c.Remote.TimeoutSec = 0 }, true},
		{"negative context window", func(c *Config) { c.Remote.ContextWindow = -1 }, true},
		{"threshold above one", func(c *Config) { c.Classifier.ConfidenceThreshold = 1.5 }, true},
		{"zero retrain interval", func(c *Config) { c.Classifier.RetrainInterval = 0 }, true},
		{"zero smoothing", func(c *Config) { c.Classifier.Smoothing = 0 }, true},
		{"ngram too large", func(c *Config) { c.Classifier.NgramMax = 4 }, true},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, true},
		{"empty db path", func(c *Config) { c.Storage.DBPath = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDurations(t *testing.T) {
	cfg := Default()

	if cfg.RemoteTimeout() != 30*time.Second {
		t.Errorf("expected 30s remote timeout, got %v", cfg.RemoteTimeout())
	}
	if cfg.ProbeTimeout() != 5*time.Second {
		t.Errorf("expected 5s probe timeout, got %v", cfg.ProbeTimeout())
	}
	if cfg.MonitorInterval() != 0 {
		t.Errorf("expected monitor disabled, got %v", cfg.MonitorInterval())
	}
}

func TestResolveAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "from-env")

	cfg := Default()
	if got := cfg.ResolveAPIKey(); got != "from-env" {
		t.Errorf("expected env key, got '%s'", got)
	}

	cfg.Remote.APIKey = "from-file"
	if got := cfg.ResolveAPIKey(); got != "from-file" {
		t.Errorf("expected configured key, got '%s'", got)
	}
}

func TestExpandPath(t *testing.T) {
	homeDir, _ := os.UserHomeDir()

	if got := expandPath("~/.jarvis/jarvis.db"); got != filepath.Join(homeDir, ".jarvis/jarvis.db") {
		t.Errorf("unexpected expansion '%s'", got)
	}
	if got := expandPath("/abs/path"); got != "/abs/path" {
		t.Errorf("absolute path should not change, got '%s'", got)
	}
}
