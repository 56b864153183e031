package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/normanking/jarvis/internal/bus"
	"github.com/normanking/jarvis/internal/intent"
	"github.com/normanking/jarvis/internal/server"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ASK COMMAND (One-shot query)
// ═══════════════════════════════════════════════════════════════════════════════

func askCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask [utterance]",
		Short: "Answer one utterance and exit",
		Long: `Route a single utterance exactly like the interactive session would.

Examples:
  jarvis ask "what time is it"
  jarvis --offline ask "open browser"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			a, err := openAssistant(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			resp := a.Route(ctx, strings.Join(args, " "))
			out := cmd.OutOrStdout()
			if resp.Notice != "" {
				fmt.Fprintf(out, "System: %s\n", resp.Notice)
			}
			fmt.Fprintln(out, resp.Text)
			return nil
		},
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// SERVE COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func serveCmd() *cobra.Command {
	var addr string
	var allowAll bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API, metrics and event stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := openAssistant(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			cfg := server.DefaultConfig()
			cfg.Addr = a.Config().Server.Addr
			if addr != "" {
				cfg.Addr = addr
			}
			cfg.AllowAllOrigins = allowAll
			if rt := a.Config().RemoteTimeout() + 10*time.Second; rt > cfg.RequestTimeout {
				cfg.RequestTimeout = rt
			}

			observer := bus.NewObserver(a.Bus(), log)
			defer observer.Stop()

			srv := server.New(cfg, a,
				server.WithMetricsHandler(a.Metrics().Handler()),
				server.WithEventStream(observer),
				server.WithLogger(log),
			)

			fmt.Fprintf(cmd.OutOrStdout(), "JARVIS listening on http://%s (%s mode)\n", cfg.Addr, a.State())

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return srv.ListenAndServe(gctx) })
			g.Go(func() error { return a.Monitor().Run(gctx) })
			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().BoolVar(&allowAll, "cors-all", false, "allow all CORS origins")
	return cmd
}

// ═══════════════════════════════════════════════════════════════════════════════
// RETRAIN COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func retrainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retrain",
		Short: "Rebuild the offline classifier from the registry and history",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openAssistant(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			out := a.Retrain(ctx)
			if out.Err != nil {
				return fmt.Errorf("retrain failed: %w", out.Err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Retrain %s: %d samples in %s\n", out.Result, out.Samples, out.Duration.Round(time.Millisecond))
			if out.Snapshot != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Snapshot: %s (%d labels)\n", out.Snapshot.ID, len(out.Snapshot.Model.Labels))
			}
			return nil
		},
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// HISTORY COMMANDS
// ═══════════════════════════════════════════════════════════════════════════════

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect or maintain the conversation log",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "Show recent exchanges",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openAssistant(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			entries := a.History(limit)
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No conversation history.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tMODE\tINTENT\tUSER\tRESPONSE")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					e.Timestamp.Local().Format("2006-01-02 15:04:05"),
					e.Mode,
					orDash(e.IntentID),
					truncate(e.UserInput, 40),
					truncate(e.Response, 60),
				)
			}
			return tw.Flush()
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries (0 = all)")
	cmd.AddCommand(list)

	var outPath string
	export := &cobra.Command{
		Use:   "export",
		Short: "Write the conversation log as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openAssistant(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if outPath == "" || outPath == "-" {
				return a.ExportHistory(cmd.OutOrStdout())
			}
			f, err := os.Create(outPath)
			if err != nil {
				return err
			}
			if err := a.ExportHistory(f); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d entries to %s\n", len(a.History(0)), outPath)
			return nil
		},
	}
	export.Flags().StringVarP(&outPath, "output", "o", "", "output file (default stdout)")
	cmd.AddCommand(export)

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete every conversation entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openAssistant(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.ClearHistory(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d entries.\n", n)
			return nil
		},
	})

	return cmd
}

// ═══════════════════════════════════════════════════════════════════════════════
// INTENTS COMMANDS
// ═══════════════════════════════════════════════════════════════════════════════

func intentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "intents",
		Short: "Inspect the intent registry",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "List intents, patterns and actions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			reg, err := intent.LoadOrCreate(cfg.Storage.RegistryPath)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Registry: %s (%d intents)\n\n", cfg.Storage.RegistryPath, reg.Len())
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tACTION\tPATTERNS")
			for _, in := range reg.Intents() {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", in.ID, in.Action, strings.Join(in.Patterns, ", "))
			}
			return tw.Flush()
		},
	})

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the built-in registry to the registry file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			path := cfg.Storage.RegistryPath
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := intent.Save(path, intent.Default()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote built-in registry to %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing registry")
	cmd.AddCommand(initCmd)

	return cmd
}

// ═══════════════════════════════════════════════════════════════════════════════
// CONFIG COMMANDS
// ═══════════════════════════════════════════════════════════════════════════════

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "JARVIS Configuration:")
			fmt.Fprintln(out, "─────────────────────")
			fmt.Fprintf(out, "Provider:        %s (%s)\n", cfg.Remote.Provider, cfg.Remote.Model)
			fmt.Fprintf(out, "API key:         %s\n", maskKey(cfg.ResolveAPIKey()))
			fmt.Fprintf(out, "Remote timeout:  %s\n", cfg.RemoteTimeout())
			fmt.Fprintf(out, "Probe timeout:   %s\n", cfg.ProbeTimeout())
			fmt.Fprintf(out, "Threshold:       %.2f\n", cfg.Classifier.ConfidenceThreshold)
			fmt.Fprintf(out, "Retrain every:   %d appends\n", cfg.Classifier.RetrainInterval)
			fmt.Fprintf(out, "Database:        %s\n", cfg.Storage.DBPath)
			fmt.Fprintf(out, "Registry:        %s\n", cfg.Storage.RegistryPath)
			fmt.Fprintf(out, "Execute actions: %t\n", cfg.Actions.Execute)
			fmt.Fprintf(out, "Server address:  %s\n", cfg.Server.Addr)
			fmt.Fprintf(out, "Log level:       %s\n", cfg.Logging.Level)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), getConfigPath())
		},
	})

	return cmd
}

// ═══════════════════════════════════════════════════════════════════════════════
// PROBE COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func probeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Check whether the remote service is usable",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openAssistant(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			res := a.Probe(ctx)
			out := cmd.OutOrStdout()
			if res.Available {
				fmt.Fprintf(out, "✅ %s reachable (%s)\n", a.Provider().Name(), res.Duration.Round(time.Millisecond))
				return nil
			}
			fmt.Fprintf(out, "❌ %s unavailable: %s\n", a.Provider().Name(), res.Reason())
			return nil
		},
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ═══════════════════════════════════════════════════════════════════════════════

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func maskKey(key string) string {
	switch {
	case key == "":
		return "(not set)"
	case len(key) <= 8:
		return "****"
	default:
		return key[:4] + "..." + key[len(key)-4:]
	}
}
