package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/normanking/jarvis/internal/actions"
	"github.com/normanking/jarvis/internal/bus"
	"github.com/normanking/jarvis/internal/classifier"
	"github.com/normanking/jarvis/internal/connectivity"
	"github.com/normanking/jarvis/internal/convlog"
	"github.com/normanking/jarvis/internal/intent"
	"github.com/normanking/jarvis/internal/llm"
	"github.com/normanking/jarvis/internal/logging"
)

const (
	// DefaultContextWindow is how many recent exchanges go into a prompt.
	DefaultContextWindow = 5

	// DefaultRemoteTimeout bounds one remote call.
	DefaultRemoteTimeout = 30 * time.Second

	// NoInputReply answers an empty utterance.
	NoInputReply = "I didn't catch that. Could you say it again?"

	switchedOfflineMessage = "Switched to Offline mode"
	cannotSwitchMessage    = "Cannot switch to Online mode - Check internet connection and API keys"
)

// Conversation is the log the router appends to and reads context from.
type Conversation interface {
	Append(ctx context.Context, e convlog.Entry) (convlog.Entry, error)
	Recent(k int) []convlog.Entry
}

// Classifier resolves an utterance to an intent or generic class.
type Classifier interface {
	Classify(text string) classifier.Result
}

// Dispatcher performs intent actions and picks canned replies.
type Dispatcher interface {
	Dispatch(ctx context.Context, req actions.Request) (string, error)
	Pick(templates []string) string
}

// Notifier is told about every append; the retrainer implements it.
type Notifier interface {
	Notify() bool
}

// Deps are the collaborators a Router needs.
type Deps struct {
	Provider   llm.Provider
	Checker    connectivity.Checker
	Classifier Classifier
	Registry   *intent.Holder
	Actions    Dispatcher
	History    Conversation
	Retrainer  Notifier
	Bus        bus.Publisher
}

// Router is the ONLINE/OFFLINE state machine. Route and Toggle are
// serialized: one utterance is handled end to end before the next starts.
type Router struct {
	mu    sync.Mutex
	state State

	provider   llm.Provider
	checker    connectivity.Checker
	classifier Classifier
	registry   *intent.Holder
	actions    Dispatcher
	history    Conversation
	retrainer  Notifier
	bus        bus.Publisher

	systemPrompt        string
	contextWindow       int
	remoteTimeout       time.Duration
	probeBeforeDispatch bool
	initial             *State
	now                 func() time.Time
	log                 *logging.Logger

	statsMu sync.RWMutex
	stats   Stats
}

// Option configures a Router.
type Option func(*Router)

// WithSystemPrompt sets the persona line of every remote prompt.
func WithSystemPrompt(p string) Option {
	return func(r *Router) { r.systemPrompt = p }
}

// WithContextWindow sets how many recent exchanges are sent as context.
func WithContextWindow(n int) Option {
	return func(r *Router) {
		if n >= 0 {
			r.contextWindow = n
		}
	}
}

// WithRemoteTimeout bounds each remote call.
func WithRemoteTimeout(d time.Duration) Option {
	return func(r *Router) {
		if d > 0 {
			r.remoteTimeout = d
		}
	}
}

// WithProbeBeforeDispatch probes connectivity ahead of every remote call.
func WithProbeBeforeDispatch(enabled bool) Option {
	return func(r *Router) { r.probeBeforeDispatch = enabled }
}

// WithInitialState skips the construction-time probe.
func WithInitialState(s State) Option {
	return func(r *Router) { r.initial = &s }
}

// WithClock overrides time.Now for latency measurements.
func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Router) { r.log = l }
}

// New builds a router. Unless WithInitialState is given, the initial state
// is the result of one probe.
func New(ctx context.Context, deps Deps, opts ...Option) (*Router, error) {
	if deps.Classifier == nil || deps.Registry == nil || deps.Actions == nil || deps.History == nil {
		return nil, errors.New("router: classifier, registry, actions and history are required")
	}

	r := &Router{
		provider:      deps.Provider,
		checker:       deps.Checker,
		classifier:    deps.Classifier,
		registry:      deps.Registry,
		actions:       deps.Actions,
		history:       deps.History,
		retrainer:     deps.Retrainer,
		bus:           deps.Bus,
		contextWindow: DefaultContextWindow,
		remoteTimeout: DefaultRemoteTimeout,
		now:           time.Now,
		log:           logging.Global(),
		stats: Stats{
			Fallbacks: make(map[FallbackReason]int64),
			ByTier:    make(map[classifier.Tier]int64),
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.WithComponent("router")
	if r.checker == nil {
		r.checker = connectivity.CheckerFunc(func(context.Context) bool { return false })
	}
	if r.bus == nil {
		r.bus = bus.Discard
	}

	switch {
	case r.initial != nil:
		r.state = *r.initial
	case r.checker.Check(ctx):
		r.state = StateOnline
	default:
		r.state = StateOffline
	}
	r.log.Info("starting in %s mode", r.state)
	return r, nil
}

// State returns the current mode.
func (r *Router) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Route answers one utterance. It always returns a reply; failures degrade
// toward the offline path and are reported in the Response.
func (r *Router) Route(ctx context.Context, utterance string) Response {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := r.now()
	text := strings.TrimSpace(utterance)

	if text == "" {
		resp := Response{
			Text:    NoInputReply,
			Mode:    r.state.Mode(),
			Tier:    classifier.TierNone,
			NoInput: true,
		}
		resp.Duration = r.now().Sub(start)
		r.recordRoute(resp)
		return resp
	}

	startedOnline := r.state == StateOnline
	var resp Response

	if startedOnline {
		reply, reason, err := r.askRemote(ctx, text)
		switch reason {
		case "":
			resp = Response{Text: reply, Mode: convlog.ModeOnline, Tier: TierRemote}
		case FallbackCanceled:
			r.log.Debug("caller canceled online attempt: %v; answering offline once", err)
			resp = r.answerOffline(ctx, text, false)
			resp.Mode = convlog.ModeOffline
			resp.FallbackReason = reason
		default:
			r.log.Warn("online attempt failed (%s): %v; answering offline", reason, err)
			r.setState(StateOffline, "fallback:"+string(reason))
			r.publish(bus.Fallback(string(reason), err))

			resp = r.answerOffline(ctx, text, false)
			resp.Mode = convlog.ModeOffline
			resp.FellBack = true
			resp.FallbackReason = reason
			resp.Notice = fallbackNotice(reason)
		}
	} else {
		resp = r.answerOffline(ctx, text, false)
		resp.Mode = convlog.ModeOffline
	}

	entry, err := r.history.Append(ctx, convlog.Entry{
		UserInput:   text,
		Response:    resp.Text,
		Mode:        resp.Mode,
		IntentID:    resp.IntentID,
		Tier:        string(resp.Tier),
		ActionError: resp.ActionError,
	})
	var persistErr *convlog.PersistenceError
	switch {
	case err == nil:
	case errors.As(err, &persistErr):
		r.bumpPersistErrors()
	default:
		r.log.Error("append conversation entry: %v", err)
	}
	resp.EntryID = entry.ID

	// The entry counts even when only the in-memory copy exists.
	if entry.ID != "" && r.retrainer != nil {
		r.retrainer.Notify()
	}

	resp.Duration = r.now().Sub(start)
	r.recordRoute(resp)
	r.publish(bus.RouteCompleted(string(resp.Mode), resp.IntentID, string(resp.Tier), resp.Confidence, resp.Duration))
	return resp
}

// Toggle is the manual mode switch. OFFLINE→ONLINE requires a passing
// probe; ONLINE→OFFLINE always succeeds.
func (r *Router) Toggle(ctx context.Context) ToggleResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateOnline {
		r.setState(StateOffline, "toggle")
		r.bumpToggle(ToggleSwitchedOffline)
		return ToggleResult{
			Outcome: ToggleSwitchedOffline,
			State:   StateOffline,
			Mode:    convlog.ModeOffline,
			Message: switchedOfflineMessage,
		}
	}

	if !r.checker.Check(ctx) {
		r.log.Info("toggle rejected: remote service unavailable")
		r.bumpToggle(ToggleCannotSwitch)
		r.publish(bus.ToggleRejected(r.lastStage()))
		return ToggleResult{
			Outcome: ToggleCannotSwitch,
			State:   StateOffline,
			Mode:    convlog.ModeOffline,
			Message: cannotSwitchMessage,
		}
	}

	r.setState(StateOnline, "toggle")
	r.bumpToggle(ToggleSwitchedOnline)
	return ToggleResult{
		Outcome: ToggleSwitchedOnline,
		State:   StateOnline,
		Mode:    convlog.ModeOnline,
		Message: fmt.Sprintf("Switched to Online mode - %s connected", serviceLabel(r.provider)),
	}
}

// Stats returns a copy of the routing counters.
func (r *Router) Stats() Stats {
	r.statsMu.RLock()
	defer r.statsMu.RUnlock()
	return r.stats.clone()
}

// setState must be called with r.mu held.
func (r *Router) setState(s State, cause string) {
	if r.state == s {
		return
	}
	from := r.state
	r.state = s
	r.log.Info("mode %s -> %s (%s)", from, s, cause)
	r.publish(bus.ModeChanged(from.String(), s.String(), cause))
}

func (r *Router) lastStage() string {
	if p, ok := r.checker.(interface {
		LastResult() (connectivity.Result, bool)
	}); ok {
		if res, ok := p.LastResult(); ok {
			return string(res.Stage)
		}
	}
	return ""
}

func (r *Router) publish(e bus.Event) {
	if err := r.bus.Publish(e); err != nil {
		r.log.Debug("publish %s: %v", e.Type, err)
	}
}

func (r *Router) recordRoute(resp Response) {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()

	s := &r.stats
	s.Total++
	switch {
	case resp.NoInput:
		s.NoInput++
	case resp.Mode == convlog.ModeOnline:
		s.Online++
	default:
		s.Offline++
	}
	if resp.FellBack {
		s.Fallbacks[resp.FallbackReason]++
	}
	if !resp.NoInput {
		s.ByTier[resp.Tier]++
	}
	if resp.ActionError != "" {
		s.ActionFailures++
	}
	total := time.Duration(s.Total)
	s.AverageLatency = (s.AverageLatency*(total-1) + resp.Duration) / total
}

func (r *Router) bumpPersistErrors() {
	r.statsMu.Lock()
	r.stats.PersistErrors++
	r.statsMu.Unlock()
}

func (r *Router) bumpToggle(o ToggleOutcome) {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	switch o {
	case ToggleSwitchedOnline:
		r.stats.ToggledOnline++
	case ToggleSwitchedOffline:
		r.stats.ToggledOffline++
	case ToggleCannotSwitch:
		r.stats.ToggleRejected++
	}
}

func serviceLabel(p llm.Provider) string {
	if p == nil {
		return "remote service"
	}
	switch p.Name() {
	case "gemini":
		return "Gemini AI"
	case "openai":
		return "OpenAI"
	case "ollama":
		return "Ollama"
	default:
		return p.Name()
	}
}
