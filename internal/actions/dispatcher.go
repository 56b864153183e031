// Package actions performs the effect behind a recognised intent (telling
// the time, launching an application, fetching the weather, powering off)
// and produces the spoken reply.
package actions

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/normanking/jarvis/internal/intent"
	"github.com/normanking/jarvis/internal/logging"
)

const (
	// ErrorReply is what the user hears when an action fails.
	ErrorReply = "I encountered an error while processing your request."

	// UnsupportedReply answers an action no handler covers.
	UnsupportedReply = "I understand your request but I'm not sure how to help with that offline."

	// fallbackTemplate is used when an intent carries no responses.
	fallbackTemplate = "Processing your request..."

	shutdownReply = "System will shutdown in 10 seconds. Say 'cancel shutdown' to abort."
	restartReply  = "System will restart in 10 seconds. Say 'cancel restart' to abort."
)

// Request is one action invocation.
type Request struct {
	Intent    intent.Intent
	Utterance string
	// Online reports the router state; some actions only work online.
	Online bool
}

// Handler performs an action and returns the reply. A handler may return a
// reply together with an error when it has something specific to say about
// the failure.
type Handler func(ctx context.Context, d *Dispatcher, req Request) (string, error)

// ExecutionError wraps a handler failure.
type ExecutionError struct {
	Action intent.ActionID
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("action %s failed: %v", e.Action, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Dispatcher maps every ActionID to a handler. It is safe for concurrent use.
type Dispatcher struct {
	handlers map[intent.ActionID]Handler
	launcher Launcher
	commands map[intent.ActionID][]string
	weather  *WeatherClient
	now      func() time.Time
	log      *logging.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLauncher sets the launcher used by launch and power actions.
func WithLauncher(l Launcher) Option {
	return func(d *Dispatcher) { d.launcher = l }
}

// WithCommands replaces the argv table.
func WithCommands(cmds map[intent.ActionID][]string) Option {
	return func(d *Dispatcher) { d.commands = cmds }
}

// WithWeather sets the weather client.
func WithWeather(w *WeatherClient) Option {
	return func(d *Dispatcher) { d.weather = w }
}

// WithClock overrides time.Now for time/date replies.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// WithSeed makes template selection reproducible.
func WithSeed(seed int64) Option {
	return func(d *Dispatcher) { d.rng = rand.New(rand.NewSource(seed)) }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(d *Dispatcher) { d.log = l }
}

// WithHandler overrides the handler for one action.
func WithHandler(id intent.ActionID, h Handler) Option {
	return func(d *Dispatcher) { d.handlers[id] = h }
}

func defaultHandlers() map[intent.ActionID]Handler {
	return map[intent.ActionID]Handler{
		intent.ActionGetWeather:       handleWeather,
		intent.ActionOpenBrowser:      handleLaunch,
		intent.ActionOpenCamera:       handleLaunch,
		intent.ActionOpenFileExplorer: handleLaunch,
		intent.ActionGetTime:          handleClock("15:04"),
		intent.ActionGetDate:          handleClock("January 02, 2006"),
		intent.ActionShutdown:         handlePower(shutdownReply, "Cannot shutdown system"),
		intent.ActionRestart:          handlePower(restartReply, "Cannot restart system"),
		intent.ActionRespond:          handleRespond,
	}
}

// New builds a dispatcher and verifies that every ActionID has a handler.
func New(opts ...Option) (*Dispatcher, error) {
	d := &Dispatcher{
		handlers: defaultHandlers(),
		commands: DefaultCommands(runtime.GOOS),
		now:      time.Now,
		log:      logging.Global(),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.launcher == nil {
		d.launcher = LogLauncher{Log: d.log}
	}
	d.log = d.log.WithComponent("actions")

	for _, id := range intent.AllActions() {
		if d.handlers[id] == nil {
			return nil, fmt.Errorf("no handler for action %s", id)
		}
	}
	return d, nil
}

// Dispatch runs the handler for req.Intent.Action. On failure the returned
// error is an *ExecutionError; the reply is then either handler-specific
// text or empty, in which case the caller should answer ErrorReply.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (reply string, err error) {
	h, ok := d.handlers[req.Intent.Action]
	if !ok {
		return UnsupportedReply, nil
	}

	defer func() {
		if r := recover(); r != nil {
			reply, err = "", fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			d.log.Error("%s (%s): %v", req.Intent.ID, req.Intent.Action, err)
			err = &ExecutionError{Action: req.Intent.Action, Err: err}
		}
	}()

	return h(ctx, d, req)
}

// Pick returns a random element of templates, or "" when empty.
func (d *Dispatcher) Pick(templates []string) string {
	if len(templates) == 0 {
		return ""
	}
	d.rngMu.Lock()
	defer d.rngMu.Unlock()
	return templates[d.rng.Intn(len(templates))]
}

func (d *Dispatcher) template(in intent.Intent) string {
	if t := d.Pick(in.Responses); t != "" {
		return t
	}
	return fallbackTemplate
}

func (d *Dispatcher) launch(ctx context.Context, id intent.ActionID) error {
	argv, ok := d.commands[id]
	if !ok || len(argv) == 0 {
		return fmt.Errorf("no command configured for %s", id)
	}
	return d.launcher.Launch(ctx, id, argv)
}

func handleRespond(_ context.Context, d *Dispatcher, req Request) (string, error) {
	return d.template(req.Intent), nil
}

func handleClock(layout string) Handler {
	return func(_ context.Context, d *Dispatcher, req Request) (string, error) {
		return d.template(req.Intent) + " " + d.now().Format(layout), nil
	}
}

func handleLaunch(ctx context.Context, d *Dispatcher, req Request) (string, error) {
	if err := d.launch(ctx, req.Intent.Action); err != nil {
		return "", err
	}
	return d.template(req.Intent), nil
}

func handlePower(reply, failure string) Handler {
	return func(ctx context.Context, d *Dispatcher, req Request) (string, error) {
		if err := d.launch(ctx, req.Intent.Action); err != nil {
			return fmt.Sprintf("%s: %v", failure, err), err
		}
		return reply, nil
	}
}

func handleWeather(ctx context.Context, d *Dispatcher, req Request) (string, error) {
	if !req.Online || !d.weather.Configured() {
		return OfflineWeatherReply, nil
	}
	text, err := d.weather.Current(ctx)
	if err != nil {
		d.log.Warn("weather lookup failed: %v", err)
		return OfflineWeatherReply, nil
	}
	return text, nil
}
