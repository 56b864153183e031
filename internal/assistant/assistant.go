// Package assistant assembles the router and its collaborators from a
// configuration. An Assistant is the single context object handed to the
// command line and the HTTP server; nothing in the core reads package-level
// state.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/normanking/jarvis/internal/actions"
	"github.com/normanking/jarvis/internal/bus"
	"github.com/normanking/jarvis/internal/classifier"
	"github.com/normanking/jarvis/internal/config"
	"github.com/normanking/jarvis/internal/connectivity"
	"github.com/normanking/jarvis/internal/convlog"
	"github.com/normanking/jarvis/internal/data"
	"github.com/normanking/jarvis/internal/intent"
	"github.com/normanking/jarvis/internal/llm"
	"github.com/normanking/jarvis/internal/logging"
	"github.com/normanking/jarvis/internal/metrics"
	"github.com/normanking/jarvis/internal/retrain"
	"github.com/normanking/jarvis/internal/router"
)

// snapshotsKept is how many persisted classifier snapshots survive a prune.
const snapshotsKept = 5

// Assistant owns every long-lived component.
type Assistant struct {
	cfg *config.Config
	log *logging.Logger

	bus        *bus.Bus
	store      *data.Store
	registry   *intent.Holder
	classifier *classifier.Classifier
	history    *convlog.Log
	retrainer  *retrain.Retrainer
	provider   llm.Provider
	probe      *connectivity.Probe
	actions    *actions.Dispatcher
	router     *router.Router
	prom       *metrics.Prometheus
	collector  *metrics.Collector
}

// Option configures New.
type Option func(*options)

type options struct {
	log       *logging.Logger
	provider  llm.Provider
	launcher  actions.Launcher
	ephemeral bool
	initial   *router.State
	clock     func() time.Time
}

// WithLogger sets the root logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithProvider replaces the configured remote provider.
func WithProvider(p llm.Provider) Option {
	return func(o *options) { o.provider = p }
}

// WithLauncher replaces the launcher chosen from actions.execute.
func WithLauncher(l actions.Launcher) Option {
	return func(o *options) { o.launcher = l }
}

// WithEphemeralStorage keeps history and snapshots in an in-memory database
// and uses the built-in intent registry instead of the registry file.
func WithEphemeralStorage() Option {
	return func(o *options) { o.ephemeral = true }
}

// WithInitialState starts the router in s without probing.
func WithInitialState(s router.State) Option {
	return func(o *options) { o.initial = &s }
}

// WithClock overrides the time source of the log, actions and router.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

// New wires an assistant from cfg. It bootstraps the classifier before
// returning so the first utterance is served by a trained snapshot.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (_ *Assistant, err error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	o := options{log: logging.Global(), clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	a := &Assistant{
		cfg: cfg,
		log: o.log.WithComponent("assistant"),
		bus: bus.New(),
	}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	// Storage
	if o.ephemeral {
		a.store, err = data.OpenMemory()
	} else {
		if err = cfg.EnsureDirectories(); err != nil {
			return nil, err
		}
		a.store, err = data.Open(cfg.Storage.DBPath)
	}
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	// Intents
	reg := intent.Default()
	if !o.ephemeral {
		reg, err = intent.LoadOrCreate(cfg.Storage.RegistryPath)
		if err != nil {
			return nil, fmt.Errorf("load intent registry: %w", err)
		}
	}
	a.registry = intent.NewHolder(reg)
	a.log.Info("loaded %d intents", reg.Len())

	a.classifier = classifier.New(a.registry,
		classifier.WithConfidenceThreshold(cfg.Classifier.ConfidenceThreshold),
		classifier.WithLogger(o.log),
	)

	a.history, err = convlog.Open(ctx, a.store, convlog.WithLogger(o.log), convlog.WithClock(o.clock))
	if err != nil {
		return nil, err
	}

	a.retrainer = retrain.New(a.classifier, a.registry, a.history,
		retrain.WithInterval(cfg.Classifier.RetrainInterval),
		retrain.WithTrainOptions(classifier.TrainOptions{
			Smoothing: cfg.Classifier.Smoothing,
			NgramMax:  cfg.Classifier.NgramMax,
		}),
		retrain.WithStore(a.store),
		retrain.WithLogger(o.log),
		retrain.WithObserver(a.onRetrain),
	)

	// Metrics subscribe before anything publishes.
	a.prom = metrics.NewPrometheus()
	a.collector = metrics.NewCollector(a.bus, a.prom, "")
	a.collector.Start()

	if out := a.retrainer.Bootstrap(ctx); out.Err != nil && a.classifier.Current() == nil {
		a.log.Warn("bootstrap training failed, statistical tier disabled: %v", out.Err)
	}

	// Remote service and connectivity
	a.provider = o.provider
	if a.provider == nil {
		a.provider, err = llm.New(cfg.Remote.Provider, &llm.ProviderConfig{
			Name:     cfg.Remote.Provider,
			Endpoint: cfg.Remote.Endpoint,
			APIKey:   cfg.ResolveAPIKey(),
			Model:    cfg.Remote.Model,
			Timeout:  cfg.RemoteTimeout(),
		})
		if err != nil {
			return nil, err
		}
	}
	a.probe = connectivity.NewProbe(a.provider,
		connectivity.WithReachabilityURL(cfg.Probe.ReachabilityURL),
		connectivity.WithTimeout(cfg.ProbeTimeout()),
		connectivity.WithLogger(o.log),
	)

	// Actions
	cmds, err := actions.ResolveCommands(cfg.Actions.Commands)
	if err != nil {
		return nil, err
	}
	launcher := o.launcher
	if launcher == nil {
		if cfg.Actions.Execute {
			launcher = actions.ExecLauncher{Log: o.log}
		} else {
			launcher = actions.LogLauncher{Log: o.log}
		}
	}
	actOpts := []actions.Option{
		actions.WithLauncher(launcher),
		actions.WithCommands(cmds),
		actions.WithClock(o.clock),
		actions.WithLogger(o.log),
	}
	if key := cfg.ResolveWeatherKey(); key != "" {
		actOpts = append(actOpts, actions.WithWeather(actions.NewWeatherClient(key, cfg.Actions.WeatherCity)))
	}
	if cfg.Classifier.Seed != 0 {
		actOpts = append(actOpts, actions.WithSeed(cfg.Classifier.Seed))
	}
	a.actions, err = actions.New(actOpts...)
	if err != nil {
		return nil, err
	}

	routerOpts := []router.Option{
		router.WithSystemPrompt(cfg.Remote.SystemPrompt),
		router.WithContextWindow(cfg.Remote.ContextWindow),
		router.WithRemoteTimeout(cfg.RemoteTimeout()),
		router.WithProbeBeforeDispatch(cfg.Remote.ProbeBeforeDispatch),
		router.WithClock(o.clock),
		router.WithLogger(o.log),
	}
	if o.initial != nil {
		routerOpts = append(routerOpts, router.WithInitialState(*o.initial))
	}
	a.router, err = router.New(ctx, router.Deps{
		Provider:   a.provider,
		Checker:    a.probe,
		Classifier: a.classifier,
		Registry:   a.registry,
		Actions:    a.actions,
		History:    a.history,
		Retrainer:  a.retrainer,
		Bus:        a.bus,
	}, routerOpts...)
	if err != nil {
		return nil, err
	}

	a.collector.SetMode(a.router.State().String())
	a.log.Info("ready: %s mode, provider %s, %s/%s", a.router.State(), a.provider.Name(), runtime.GOOS, runtime.GOARCH)
	return a, nil
}

// onRetrain publishes retrain outcomes and prunes old snapshots.
func (a *Assistant) onRetrain(out retrain.Outcome) {
	e := bus.NewEvent(bus.EventRetrainSkipped)
	if out.Result == retrain.ResultPublished {
		e.Type = bus.EventRetrainCompleted
	}
	e.Outcome = string(out.Result)
	e.Content = string(out.Trigger)
	e.DurationMs = out.Duration.Milliseconds()
	if out.Snapshot != nil {
		e.Details = out.Snapshot.ID
	}
	if out.Err != nil {
		e.Error = out.Err.Error()
	}
	if err := a.bus.Publish(e); err != nil {
		a.log.Debug("publish retrain outcome: %v", err)
	}

	if out.Result == retrain.ResultPublished && a.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if n, err := a.store.PruneSnapshots(ctx, snapshotsKept); err != nil {
			a.log.Warn("prune snapshots: %v", err)
		} else if n > 0 {
			a.log.Debug("pruned %d old snapshots", n)
		}
	}
}

// Route answers one utterance.
func (a *Assistant) Route(ctx context.Context, utterance string) router.Response {
	return a.router.Route(ctx, utterance)
}

// Toggle runs the manual mode switch.
func (a *Assistant) Toggle(ctx context.Context) router.ToggleResult {
	return a.router.Toggle(ctx)
}

// State returns the router mode.
func (a *Assistant) State() router.State {
	return a.router.State()
}

// Stats returns the router counters.
func (a *Assistant) Stats() router.Stats {
	return a.router.Stats()
}

// History returns the last limit entries, or all of them when limit <= 0.
func (a *Assistant) History(limit int) []convlog.Entry {
	if limit <= 0 {
		return a.history.ReadAll()
	}
	return a.history.Recent(limit)
}

// ExportHistory writes the log as JSON.
func (a *Assistant) ExportHistory(w io.Writer) error {
	return a.history.Export(w)
}

// ClearHistory empties the conversation log. The current snapshot stays in
// effect until the next retrain.
func (a *Assistant) ClearHistory(ctx context.Context) (int, error) {
	n, err := a.history.Clear(ctx)
	e := bus.NewEvent(bus.EventHistoryCleared)
	e.Details = fmt.Sprintf("removed=%d", n)
	if err != nil {
		e.Error = err.Error()
	}
	if perr := a.bus.Publish(e); perr != nil {
		a.log.Debug("publish %s: %v", e.Type, perr)
	}
	return n, err
}

// Retrain rebuilds the classifier synchronously.
func (a *Assistant) Retrain(ctx context.Context) retrain.Outcome {
	return a.retrainer.RetrainNow(ctx)
}

// ReloadRegistry re-reads the registry file and retrains on the new seed.
// On error the previous registry stays in effect.
func (a *Assistant) ReloadRegistry(ctx context.Context) (*intent.Registry, retrain.Outcome, error) {
	reg, err := a.registry.Reload(a.cfg.Storage.RegistryPath)
	if err != nil {
		return nil, retrain.Outcome{}, fmt.Errorf("reload intent registry: %w", err)
	}
	a.log.Info("reloaded %d intents from %s", reg.Len(), a.cfg.Storage.RegistryPath)
	return reg, a.retrainer.RetrainNow(ctx), nil
}

// Probe runs one connectivity check without changing the mode.
func (a *Assistant) Probe(ctx context.Context) connectivity.Result {
	return a.probe.Run(ctx)
}

// Monitor returns the background connectivity observer configured by
// probe.monitor_interval_sec. Its Run returns immediately when disabled.
func (a *Assistant) Monitor() *connectivity.Monitor {
	return connectivity.NewMonitor(a.probe, a.cfg.MonitorInterval(), a.bus, a.log)
}

// Bus returns the event bus.
func (a *Assistant) Bus() *bus.Bus { return a.bus }

// Metrics returns the Prometheus series.
func (a *Assistant) Metrics() *metrics.Prometheus { return a.prom }

// Collector returns the session metrics collector.
func (a *Assistant) Collector() *metrics.Collector { return a.collector }

// Registry returns the intent registry in effect.
func (a *Assistant) Registry() *intent.Registry { return a.registry.Current() }

// Classifier returns the classifier.
func (a *Assistant) Classifier() *classifier.Classifier { return a.classifier }

// Provider returns the remote generation provider.
func (a *Assistant) Provider() llm.Provider { return a.provider }

// Config returns the configuration the assistant was built from.
func (a *Assistant) Config() *config.Config { return a.cfg }

// Close waits for background retrains and releases storage.
func (a *Assistant) Close() error {
	if a.retrainer != nil {
		a.retrainer.Wait()
	}
	if a.history != nil {
		a.history.Close()
	}
	if a.collector != nil {
		a.collector.Stop()
	}

	var errs []error
	if a.bus != nil {
		errs = append(errs, a.bus.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}
