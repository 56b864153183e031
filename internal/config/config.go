package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration for jarvis.
// It is loaded from ~/.jarvis/config.yaml and can be overridden by environment variables.
type Config struct {
	Remote     RemoteConfig     `mapstructure:"remote" yaml:"remote"`
	Probe      ProbeConfig      `mapstructure:"probe" yaml:"probe"`
	Classifier ClassifierConfig `mapstructure:"classifier" yaml:"classifier"`
	Storage    StorageConfig    `mapstructure:"storage" yaml:"storage"`
	Actions    ActionsConfig    `mapstructure:"actions" yaml:"actions"`
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
}

// RemoteConfig configures the remote generation service used in ONLINE mode.
type RemoteConfig struct {
	// Provider selects the adapter: "gemini", "openai" or "ollama".
	Provider string `mapstructure:"provider" yaml:"provider"`
	Model    string `mapstructure:"model" yaml:"model"`
	// APIKey falls back to GEMINI_API_KEY / OPENAI_API_KEY when empty.
	APIKey   string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	// TimeoutSec bounds a single remote generation call.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`
	// ContextWindow is the number of recent exchanges included in the prompt.
	ContextWindow int    `mapstructure:"context_window" yaml:"context_window"`
	SystemPrompt  string `mapstructure:"system_prompt" yaml:"system_prompt"`
	// ProbeBeforeDispatch runs a connectivity probe ahead of every online call.
	ProbeBeforeDispatch bool `mapstructure:"probe_before_dispatch" yaml:"probe_before_dispatch"`
}

// ProbeConfig configures the connectivity probe.
type ProbeConfig struct {
	TimeoutSec      int    `mapstructure:"timeout_sec" yaml:"timeout_sec"`
	ReachabilityURL string `mapstructure:"reachability_url" yaml:"reachability_url"`
	// MonitorIntervalSec enables the background observer when > 0.
	// The observer only reports; it never changes the router mode.
	MonitorIntervalSec int `mapstructure:"monitor_interval_sec" yaml:"monitor_interval_sec"`
}

// ClassifierConfig configures the offline classifier and its retraining.
type ClassifierConfig struct {
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold" yaml:"confidence_threshold"`
	RetrainInterval     int     `mapstructure:"retrain_interval" yaml:"retrain_interval"`
	Smoothing           float64 `mapstructure:"smoothing" yaml:"smoothing"`
	NgramMax            int     `mapstructure:"ngram_max" yaml:"ngram_max"`
	// Seed drives response template selection. 0 seeds from the clock.
	Seed int64 `mapstructure:"seed" yaml:"seed"`
}

// StorageConfig holds on-disk locations.
type StorageConfig struct {
	DataDir      string `mapstructure:"data_dir" yaml:"data_dir"`
	DBPath       string `mapstructure:"db_path" yaml:"db_path"`
	RegistryPath string `mapstructure:"registry_path" yaml:"registry_path"`
}

// ActionsConfig configures the action backend.
type ActionsConfig struct {
	// Execute runs launch commands. When false, launches are only logged.
	Execute bool `mapstructure:"execute" yaml:"execute"`
	// Commands maps an action id to the argv used to perform it.
	Commands      map[string][]string `mapstructure:"commands" yaml:"commands,omitempty"`
	WeatherAPIKey string              `mapstructure:"weather_api_key" yaml:"weather_api_key,omitempty"`
	WeatherCity   string              `mapstructure:"weather_city" yaml:"weather_city"`
}

// ServerConfig configures the HTTP text boundary.
type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
}

// DefaultSystemPrompt is the persona line prepended to every online prompt.
const DefaultSystemPrompt = "You are JARVIS, an advanced AI assistant. Keep responses concise and helpful."

// Default returns a Config with sensible defaults.
func Default() *Config {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	dataDir := filepath.Join(homeDir, ".jarvis")

	return &Config{
		Remote: RemoteConfig{
			Provider:            "gemini",
			Model:               "gemini-1.5-flash",
			TimeoutSec:          30,
			ContextWindow:       5,
			SystemPrompt:        DefaultSystemPrompt,
			ProbeBeforeDispatch: true,
		},
		Probe: ProbeConfig{
			TimeoutSec:      5,
			ReachabilityURL: "https://www.google.com",
		},
		Classifier: ClassifierConfig{
			ConfidenceThreshold: 0.6,
			RetrainInterval:     10,
			Smoothing:           0.01,
			NgramMax:            2,
		},
		Storage: StorageConfig{
			DataDir:      dataDir,
			DBPath:       filepath.Join(dataDir, "jarvis.db"),
			RegistryPath: filepath.Join(dataDir, "intents.yaml"),
		},
		Actions: ActionsConfig{
			WeatherCity: "London",
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8765",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  filepath.Join(dataDir, "logs", "jarvis.log"),
		},
	}
}

// DefaultPath returns ~/.jarvis/config.yaml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".jarvis", "config.yaml"), nil
}

// Load loads configuration from the default location.
func Load() (*Config, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific path. A missing file is
// created with defaults first.
func LoadFromPath(path string) (*Config, error) {
	path = expandPath(path)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeConfigFile(path, Default()); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Example: JARVIS_CLASSIFIER_CONFIDENCE_THRESHOLD=0.7
	v.SetEnvPrefix("JARVIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, Default())

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Storage.DataDir = expandPath(cfg.Storage.DataDir)
	cfg.Storage.DBPath = expandPath(cfg.Storage.DBPath)
	cfg.Storage.RegistryPath = expandPath(cfg.Storage.RegistryPath)
	cfg.Logging.File = expandPath(cfg.Logging.File)

	return &cfg, nil
}

// setDefaults registers every scalar key so env overrides apply even when an
// older config file lacks the key.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("remote.provider", d.Remote.Provider)
	v.SetDefault("remote.model", d.Remote.Model)
	v.SetDefault("remote.api_key", "")
	v.SetDefault("remote.endpoint", "")
	v.SetDefault("remote.timeout_sec", d.Remote.TimeoutSec)
	v.SetDefault("remote.context_window", d.Remote.ContextWindow)
	v.SetDefault("remote.system_prompt", d.Remote.SystemPrompt)
	v.SetDefault("remote.probe_before_dispatch", d.Remote.ProbeBeforeDispatch)
	v.SetDefault("probe.timeout_sec", d.Probe.TimeoutSec)
	v.SetDefault("probe.reachability_url", d.Probe.ReachabilityURL)
	v.SetDefault("probe.monitor_interval_sec", d.Probe.MonitorIntervalSec)
	v.SetDefault("classifier.confidence_threshold", d.Classifier.ConfidenceThreshold)
	v.SetDefault("classifier.retrain_interval", d.Classifier.RetrainInterval)
	v.SetDefault("classifier.smoothing", d.Classifier.Smoothing)
	v.SetDefault("classifier.ngram_max", d.Classifier.NgramMax)
	v.SetDefault("classifier.seed", d.Classifier.Seed)
	v.SetDefault("storage.data_dir", d.Storage.DataDir)
	v.SetDefault("storage.db_path", d.Storage.DBPath)
	v.SetDefault("storage.registry_path", d.Storage.RegistryPath)
	v.SetDefault("actions.execute", d.Actions.Execute)
	v.SetDefault("actions.weather_api_key", "")
	v.SetDefault("actions.weather_city", d.Actions.WeatherCity)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.file", d.Logging.File)
}

// SaveToPath writes the configuration as YAML.
func (c *Config) SaveToPath(path string) error {
	path = expandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return writeConfigFile(path, c)
}

// EnsureDirectories creates the data, log and database directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDir,
		filepath.Dir(c.Storage.DBPath),
		filepath.Dir(c.Storage.RegistryPath),
		filepath.Dir(c.Logging.File),
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	switch c.Remote.Provider {
	case "gemini", "openai", "ollama":
	default:
		return fmt.Errorf("invalid remote.provider '%s', must be one of: gemini, openai, ollama", c.Remote.Provider)
	}

	if c.Remote.TimeoutSec <= 0 {
		return fmt.Errorf("remote.timeout_sec must be positive")
	}
	if c.Remote.ContextWindow < 0 {
		return fmt.Errorf("remote.context_window cannot be negative")
	}
	if c.Probe.TimeoutSec <= 0 {
		return fmt.Errorf("probe.timeout_sec must be positive")
	}
	if c.Probe.MonitorIntervalSec < 0 {
		return fmt.Errorf("probe.monitor_interval_sec cannot be negative")
	}

	if c.Classifier.ConfidenceThreshold < 0 || c.Classifier.ConfidenceThreshold > 1 {
		return fmt.Errorf("classifier.confidence_threshold must be between 0 and 1")
	}
	if c.Classifier.RetrainInterval < 1 {
		return fmt.Errorf("classifier.retrain_interval must be at least 1")
	}
	if c.Classifier.Smoothing <= 0 {
		return fmt.Errorf("classifier.smoothing must be positive")
	}
	if c.Classifier.NgramMax < 1 || c.Classifier.NgramMax > 3 {
		return fmt.Errorf("classifier.ngram_max must be between 1 and 3")
	}

	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path cannot be empty")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level '%s', must be one of: debug, info, warn, error", c.Logging.Level)
	}

	return nil
}

// RemoteTimeout returns the per-call remote deadline.
func (c *Config) RemoteTimeout() time.Duration {
	return time.Duration(c.Remote.TimeoutSec) * time.Second
}

// ProbeTimeout returns the overall connectivity probe deadline.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Probe.TimeoutSec) * time.Second
}

// MonitorInterval returns the background observer period, 0 when disabled.
func (c *Config) MonitorInterval() time.Duration {
	return time.Duration(c.Probe.MonitorIntervalSec) * time.Second
}

// ResolveAPIKey returns the configured key or the provider's environment key.
func (c *Config) ResolveAPIKey() string {
	if c.Remote.APIKey != "" {
		return c.Remote.APIKey
	}
	switch c.Remote.Provider {
	case "gemini":
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			return key
		}
		return os.Getenv("GOOGLE_API_KEY")
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	}
	return ""
}

// ResolveWeatherKey returns the configured OpenWeatherMap key or WEATHER_API_KEY.
func (c *Config) ResolveWeatherKey() string {
	if c.Actions.WeatherAPIKey != "" {
		return c.Actions.WeatherAPIKey
	}
	return os.Getenv("WEATHER_API_KEY")
}

func writeConfigFile(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[1:])
	}
	return path
}
