// Command jarvis is a hybrid online/offline conversational assistant.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/normanking/jarvis/internal/assistant"
	"github.com/normanking/jarvis/internal/config"
	"github.com/normanking/jarvis/internal/logging"
	"github.com/normanking/jarvis/internal/router"
)

var (
	version     = "0.1.0"
	cfgPath     string
	verbose     bool
	offline     bool
	ephemeral   bool
	consoleLogs bool
	log         *logging.Logger
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "jarvis",
		Short: "JARVIS - hybrid online/offline voice-style assistant",
		Long: `JARVIS answers through a remote generation service while online and falls
back to a local intent classifier when the service is unreachable.

Start chatting:      jarvis
One-shot question:   jarvis ask "what time is it"
HTTP boundary:       jarvis serve
Configuration:       jarvis config show`,
		PersistentPreRunE: initLogging,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if log != nil {
				_ = log.Close()
			}
		},
		RunE:          runChat,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default ~/.jarvis/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&offline, "offline", false, "start in offline mode without probing")
	rootCmd.PersistentFlags().BoolVar(&ephemeral, "ephemeral", false, "keep history and model in memory only")
	rootCmd.PersistentFlags().BoolVar(&consoleLogs, "log-console", false, "also write logs to stderr")
	addChatFlags(rootCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "JARVIS v%s\n", version)
		},
	})

	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(retrainCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(intentsCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(probeCmd())

	return rootCmd
}

// ═══════════════════════════════════════════════════════════════════════════════
// LOGGING INITIALIZATION
// ═══════════════════════════════════════════════════════════════════════════════

func initLogging(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		// Still log somewhere so the failure is visible.
		cfg = config.Default()
	}

	var lc *logging.Config
	if verbose {
		lc = logging.VerboseConfig()
	} else {
		lc = logging.DefaultConfig()
		lc.Level = logging.ParseLevel(cfg.Logging.Level)
	}
	lc.FilePath = cfg.Logging.File
	if lc.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(lc.FilePath), 0755); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to create log directory: %v\n", err)
		}
	}

	log = logging.New(lc)
	// The chat REPL owns stdout and stderr; logs go to the file unless asked.
	if !verbose && !consoleLogs {
		log.SetOutput(io.Discard)
	}
	logging.SetGlobal(log)

	loadEnvFile(envPath(cfg))

	log.Debug("config path: %s", getConfigPath())
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// ENVIRONMENT AND CONFIG
// ═══════════════════════════════════════════════════════════════════════════════

func envPath(cfg *config.Config) string {
	return filepath.Join(cfg.Storage.DataDir, ".env")
}

// loadEnvFile loads API keys from path into the process environment.
// Variables already set win over the file.
func loadEnvFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		idx := strings.Index(line, "=")
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.Trim(strings.TrimSpace(line[idx+1:]), `"'`)

		if os.Getenv(key) == "" && value != "" {
			os.Setenv(key, value)
			if log != nil {
				log.Debug("loaded %s from %s", key, path)
			}
		}
	}
}

func getConfigPath() string {
	if cfgPath != "" {
		return cfgPath
	}
	path, err := config.DefaultPath()
	if err != nil {
		return "~/.jarvis/config.yaml"
	}
	return path
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFromPath(getConfigPath())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// openAssistant loads the config and wires an assistant from the global
// flags. The caller must Close it.
func openAssistant(ctx context.Context) (*assistant.Assistant, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	opts := []assistant.Option{assistant.WithLogger(log)}
	if offline {
		opts = append(opts, assistant.WithInitialState(router.StateOffline))
	}
	if ephemeral {
		opts = append(opts, assistant.WithEphemeralStorage())
	}

	a, err := assistant.New(ctx, cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize: %w", err)
	}
	return a, nil
}
