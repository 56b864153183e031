package router

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/jarvis/internal/actions"
	"github.com/normanking/jarvis/internal/bus"
	"github.com/normanking/jarvis/internal/classifier"
	"github.com/normanking/jarvis/internal/connectivity"
	"github.com/normanking/jarvis/internal/convlog"
	"github.com/normanking/jarvis/internal/intent"
	"github.com/normanking/jarvis/internal/llm"
	"github.com/normanking/jarvis/internal/logging"
	"github.com/normanking/jarvis/internal/retrain"
)

// ============================================================================
// Fixtures
// ============================================================================

type switchChecker struct {
	ok    atomic.Bool
	calls atomic.Int32
}

func (c *switchChecker) Check(context.Context) bool {
	c.calls.Add(1)
	return c.ok.Load()
}

type countingNotifier struct{ n atomic.Int32 }

func (c *countingNotifier) Notify() bool {
	c.n.Add(1)
	return false
}

type failingLauncher struct{}

func (failingLauncher) Launch(context.Context, intent.ActionID, []string) error {
	return errors.New("no display")
}

type eventSink struct {
	mu     sync.Mutex
	events []bus.Event
}

func (s *eventSink) Publish(e bus.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *eventSink) types() []bus.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]bus.EventType, len(s.events))
	for i, e := range s.events {
		out[i] = e.Type
	}
	return out
}

type fixture struct {
	router   *Router
	provider *llm.MockProvider
	checker  *switchChecker
	log      *convlog.Log
	notifier *countingNotifier
	events   *eventSink
}

func newFixture(t *testing.T, online bool, opts ...Option) *fixture {
	t.Helper()
	return newFixtureWith(t, online, nil, opts...)
}

func newFixtureWith(t *testing.T, online bool, launcher actions.Launcher, opts ...Option) *fixture {
	t.Helper()
	if launcher == nil {
		launcher = actions.LogLauncher{Log: logging.Nop()}
	}
	return newFixtureActions(t, online, []actions.Option{actions.WithLauncher(launcher)}, opts...)
}

func newFixtureActions(t *testing.T, online bool, actOpts []actions.Option, opts ...Option) *fixture {
	t.Helper()
	ctx := context.Background()

	holder := intent.NewHolder(intent.Default())
	cls := classifier.New(holder, classifier.WithLogger(logging.Nop()))

	history, err := convlog.Open(ctx, nil, convlog.WithLogger(logging.Nop()))
	require.NoError(t, err)

	rt := retrain.New(cls, holder, history, retrain.WithLogger(logging.Nop()))
	out := rt.Bootstrap(ctx)
	require.Equal(t, retrain.ResultPublished, out.Result)

	disp, err := actions.New(append([]actions.Option{
		actions.WithLauncher(actions.LogLauncher{Log: logging.Nop()}),
		actions.WithSeed(7),
		actions.WithClock(func() time.Time { return time.Date(2024, 1, 2, 15, 4, 0, 0, time.UTC) }),
		actions.WithLogger(logging.Nop()),
	}, actOpts...)...)
	require.NoError(t, err)

	f := &fixture{
		provider: llm.NewMockProvider("Online answer"),
		checker:  &switchChecker{},
		log:      history,
		notifier: &countingNotifier{},
		events:   &eventSink{},
	}
	f.checker.ok.Store(online)

	base := []Option{WithLogger(logging.Nop())}
	f.router, err = New(ctx, Deps{
		Provider:   f.provider,
		Checker:    f.checker,
		Classifier: cls,
		Registry:   holder,
		Actions:    disp,
		History:    history,
		Retrainer:  f.notifier,
		Bus:        f.events,
	}, append(base, opts...)...)
	require.NoError(t, err)
	return f
}

// ============================================================================
// Construction
// ============================================================================

func TestInitialStateFollowsProbe(t *testing.T) {
	assert.Equal(t, StateOnline, newFixture(t, true).router.State())
	assert.Equal(t, StateOffline, newFixture(t, false).router.State())
}

func TestWithInitialStateSkipsProbe(t *testing.T) {
	f := newFixture(t, true, WithInitialState(StateOffline))
	assert.Equal(t, StateOffline, f.router.State())
	assert.Zero(t, f.checker.calls.Load())
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(context.Background(), Deps{})
	assert.Error(t, err)
}

// ============================================================================
// Offline routing
// ============================================================================

func TestRouteOffline(t *testing.T) {
	f := newFixture(t, false)

	tests := []struct {
		input    string
		intentID string
		tier     classifier.Tier
		check    func(t *testing.T, text string)
	}{
		{"what time is it", "time", classifier.TierStatistical, func(t *testing.T, text string) {
			assert.True(t, strings.HasSuffix(text, "15:04"), text)
		}},
		{"open chrome", "open_browser", classifier.TierStatistical, nil},
		{"hello there", "", classifier.TierKeyword, func(t *testing.T, text string) {
			assert.Contains(t, classifier.KeywordResponses[classifier.ClassGreeting], text)
		}},
		{"tell me a joke", "", classifier.TierDefault, func(t *testing.T, text string) {
			assert.Contains(t, classifier.KeywordResponses[classifier.ClassDefault], text)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			resp := f.router.Route(context.Background(), tt.input)
			assert.Equal(t, convlog.ModeOffline, resp.Mode)
			assert.Equal(t, tt.intentID, resp.IntentID)
			assert.Equal(t, tt.tier, resp.Tier)
			assert.NotEmpty(t, resp.Text)
			assert.False(t, resp.FellBack)
			if tt.check != nil {
				tt.check(t, resp.Text)
			}
		})
	}

	assert.Zero(t, f.provider.Calls())
	assert.Equal(t, 4, f.log.Len())
}

func TestRouteOfflineActionFailure(t *testing.T) {
	f := newFixtureWith(t, false, failingLauncher{})

	resp := f.router.Route(context.Background(), "open camera")
	assert.Equal(t, "open_camera", resp.IntentID)
	assert.Equal(t, actions.ErrorReply, resp.Text)
	assert.NotEmpty(t, resp.ActionError)

	entries := f.log.ReadAll()
	require.Len(t, entries, 1)
	assert.Equal(t, "open_camera", entries[0].IntentID)
	assert.NotEmpty(t, entries[0].ActionError)
	assert.Equal(t, int64(1), f.router.Stats().ActionFailures)
}

// ============================================================================
// Online routing and fallback
// ============================================================================

func TestRouteOnline(t *testing.T) {
	f := newFixture(t, true, WithSystemPrompt("SYS"))

	resp := f.router.Route(context.Background(), "  who wrote hamlet  ")
	assert.Equal(t, "Online answer", resp.Text)
	assert.Equal(t, convlog.ModeOnline, resp.Mode)
	assert.Equal(t, TierRemote, resp.Tier)
	assert.Empty(t, resp.IntentID)

	req := f.provider.LastRequest()
	require.NotNil(t, req)
	assert.Equal(t, "SYS\n\nHuman: who wrote hamlet\nAssistant:", req.Messages[0].Content)

	entries := f.log.ReadAll()
	require.Len(t, entries, 1)
	assert.Equal(t, "who wrote hamlet", entries[0].UserInput)
	assert.Equal(t, convlog.ModeOnline, entries[0].Mode)
	assert.False(t, entries[0].Labeled())
}

func TestRouteOnlineFallbacks(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(f *fixture)
		reason FallbackReason
		notice string
	}{
		{"service error", func(f *fixture) { f.provider.Set("", errors.New("500")) }, FallbackError, "Switched to Offline mode - API error"},
		{"empty reply", func(f *fixture) { f.provider.Set("  ", nil) }, FallbackEmpty, "Switched to Offline mode - API error"},
		{"timeout", func(f *fixture) { f.provider.Delay = time.Second }, FallbackTimeout, "Switched to Offline mode - API error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, true, WithRemoteTimeout(20*time.Millisecond))
			tt.setup(f)

			start := time.Now()
			resp := f.router.Route(context.Background(), "what time is it")
			assert.Less(t, time.Since(start), 500*time.Millisecond)

			assert.Equal(t, convlog.ModeOffline, resp.Mode)
			assert.True(t, resp.FellBack)
			assert.Equal(t, tt.reason, resp.FallbackReason)
			assert.Equal(t, tt.notice, resp.Notice)
			assert.Equal(t, "time", resp.IntentID)
			assert.NotEmpty(t, resp.Text)
			assert.Equal(t, StateOffline, f.router.State())

			entries := f.log.ReadAll()
			require.Len(t, entries, 1)
			assert.Equal(t, convlog.ModeOffline, entries[0].Mode)

			assert.Equal(t, []bus.EventType{bus.EventModeChanged, bus.EventFallback, bus.EventRouteCompleted}, f.events.types())
			assert.Equal(t, int64(1), f.router.Stats().Fallbacks[tt.reason])
		})
	}
}

func TestProbeBeforeDispatch(t *testing.T) {
	f := newFixture(t, true, WithProbeBeforeDispatch(true))
	f.checker.ok.Store(false)

	resp := f.router.Route(context.Background(), "hello")
	assert.Equal(t, FallbackProbe, resp.FallbackReason)
	assert.Equal(t, "Switched to Offline mode - Connection lost", resp.Notice)
	assert.Zero(t, f.provider.Calls())
}

func TestFallbackAnswersWithoutNetworkActions(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"main":{"temp":14.5},"weather":[{"description":"rain"}]}`))
	}))
	defer srv.Close()

	wc := actions.NewWeatherClient("owm-key", "London")
	wc.Endpoint = srv.URL
	f := newFixtureActions(t, true, []actions.Option{actions.WithWeather(wc)})
	f.provider.Set("", errors.New("remote down"))

	resp := f.router.Route(context.Background(), "what is the weather")
	assert.True(t, resp.FellBack)
	assert.Equal(t, convlog.ModeOffline, resp.Mode)
	assert.Equal(t, "weather", resp.IntentID)
	assert.Equal(t, actions.OfflineWeatherReply, resp.Text)
	assert.Equal(t, StateOffline, f.router.State())
	assert.Zero(t, hits.Load(), "no live lookup once the network was judged unusable")
}

func TestCallerCancelKeepsOnlineState(t *testing.T) {
	f := newFixture(t, true)
	f.provider.Delay = 200 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	resp := f.router.Route(ctx, "what time is it")
	assert.Equal(t, convlog.ModeOffline, resp.Mode)
	assert.Equal(t, "time", resp.IntentID)
	assert.False(t, resp.FellBack)
	assert.Empty(t, resp.Notice)
	assert.Equal(t, FallbackCanceled, resp.FallbackReason)
	assert.Equal(t, StateOnline, f.router.State())
	assert.NotContains(t, f.events.types(), bus.EventModeChanged)
	assert.NotContains(t, f.events.types(), bus.EventFallback)
	assert.Len(t, f.log.ReadAll(), 1)

	f.provider.Delay = 0
	resp = f.router.Route(context.Background(), "hello")
	assert.Equal(t, convlog.ModeOnline, resp.Mode)
	assert.Equal(t, "Online answer", resp.Text)
}

func TestCallerCancelDuringProbeKeepsOnlineState(t *testing.T) {
	f := newFixture(t, true, WithProbeBeforeDispatch(true))
	f.checker.ok.Store(false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp := f.router.Route(ctx, "hello")
	assert.Equal(t, FallbackCanceled, resp.FallbackReason)
	assert.Equal(t, StateOnline, f.router.State())
	assert.Zero(t, f.provider.Calls())
}

func TestNoAutomaticReturnToOnline(t *testing.T) {
	f := newFixture(t, true)
	f.provider.Set("", errors.New("down"))
	f.router.Route(context.Background(), "hi")
	require.Equal(t, StateOffline, f.router.State())

	f.provider.Set("back", nil)
	resp := f.router.Route(context.Background(), "hi again")
	assert.Equal(t, convlog.ModeOffline, resp.Mode)
	assert.Equal(t, StateOffline, f.router.State())
	assert.Equal(t, 1, f.provider.Calls())
}

func TestPromptUsesRecentWindow(t *testing.T) {
	f := newFixture(t, true, WithSystemPrompt("SYS"), WithContextWindow(2))

	for _, u := range []string{"one", "two", "three"} {
		f.router.Route(context.Background(), u)
	}
	prompt := f.provider.LastRequest().Messages[0].Content

	assert.NotContains(t, prompt, "Human: one\n")
	assert.Contains(t, prompt, "Human: two\nAssistant: Online answer\n\n")
	assert.True(t, strings.HasSuffix(prompt, "Human: three\nAssistant:"))
}

func TestBuildPrompt(t *testing.T) {
	recent := []convlog.Entry{
		{UserInput: "hi", Response: "Hello!"},
		{UserInput: "time?", Response: "It's currently 10:00"},
	}
	got := BuildPrompt("You are JARVIS.", recent, "thanks")
	want := "You are JARVIS.\n\n" +
		"Human: hi\nAssistant: Hello!\n\n" +
		"Human: time?\nAssistant: It's currently 10:00\n\n" +
		"Human: thanks\nAssistant:"
	assert.Equal(t, want, got)

	assert.Equal(t, "Human: x\nAssistant:", BuildPrompt("", nil, "x"))
}

// ============================================================================
// Empty input
// ============================================================================

func TestRouteEmptyInput(t *testing.T) {
	f := newFixture(t, true)

	for _, in := range []string{"", "   ", "\t\n"} {
		resp := f.router.Route(context.Background(), in)
		assert.True(t, resp.NoInput)
		assert.Equal(t, NoInputReply, resp.Text)
		assert.Equal(t, classifier.TierNone, resp.Tier)
		assert.Equal(t, convlog.ModeOnline, resp.Mode)
	}

	assert.Zero(t, f.log.Len())
	assert.Zero(t, f.notifier.n.Load())
	assert.Zero(t, f.provider.Calls())
	assert.Equal(t, int64(3), f.router.Stats().NoInput)
}

// ============================================================================
// Toggle
// ============================================================================

func TestToggle(t *testing.T) {
	f := newFixture(t, false)

	res := f.router.Toggle(context.Background())
	assert.Equal(t, ToggleCannotSwitch, res.Outcome)
	assert.Equal(t, StateOffline, res.State)
	assert.Equal(t, "Cannot switch to Online mode - Check internet connection and API keys", res.Message)
	assert.Equal(t, StateOffline, f.router.State())

	f.checker.ok.Store(true)
	res = f.router.Toggle(context.Background())
	assert.Equal(t, ToggleSwitchedOnline, res.Outcome)
	assert.Equal(t, "Switched to Online mode - mock connected", res.Message)
	assert.Equal(t, StateOnline, f.router.State())

	f.checker.ok.Store(false)
	res = f.router.Toggle(context.Background())
	assert.Equal(t, ToggleSwitchedOffline, res.Outcome)
	assert.Equal(t, "Switched to Offline mode", res.Message)
	assert.Equal(t, StateOffline, f.router.State())

	stats := f.router.Stats()
	assert.Equal(t, int64(1), stats.ToggleRejected)
	assert.Equal(t, int64(1), stats.ToggledOnline)
	assert.Equal(t, int64(1), stats.ToggledOffline)

	assert.Equal(t, []bus.EventType{bus.EventToggleRejected, bus.EventModeChanged, bus.EventModeChanged}, f.events.types())
	assert.Zero(t, f.log.Len())
}

func TestToggleRejectedReportsProbeStage(t *testing.T) {
	f := newFixture(t, false)
	probe := connectivity.NewProbe(&llm.MockProvider{NoKey: true}, connectivity.WithLogger(logging.Nop()))
	f.router.checker = probe

	f.router.Toggle(context.Background())
	require.NotEmpty(t, f.events.events)
	assert.Equal(t, string(connectivity.StageCredential), f.events.events[0].Details)
}

func TestServiceLabel(t *testing.T) {
	assert.Equal(t, "remote service", serviceLabel(nil))
	assert.Equal(t, "Gemini AI", serviceLabel(llm.NewGeminiProvider(nil)))
	assert.Equal(t, "OpenAI", serviceLabel(llm.NewOpenAIProvider(nil)))
}

// ============================================================================
// Log and retrain interaction
// ============================================================================

func TestEveryRouteAppendsAndNotifies(t *testing.T) {
	f := newFixture(t, false)

	inputs := []string{"what's the date", "hi", "reboot system", "", "open folder"}
	for _, in := range inputs {
		f.router.Route(context.Background(), in)
	}

	entries := f.log.ReadAll()
	require.Len(t, entries, 4)
	assert.Equal(t, int32(4), f.notifier.n.Load())

	for i := 1; i < len(entries); i++ {
		assert.False(t, entries[i].Timestamp.Before(entries[i-1].Timestamp))
	}
	assert.Equal(t, "date", entries[0].IntentID)
	assert.Empty(t, entries[1].IntentID)
}

func TestConcurrentRoutesAreSerialized(t *testing.T) {
	f := newFixture(t, false)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp := f.router.Route(context.Background(), "what time is it")
			assert.NotEmpty(t, resp.Text)
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, f.log.Len())
	assert.Equal(t, int64(20), f.router.Stats().Total)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "online", StateOnline.String())
	assert.Equal(t, "offline", StateOffline.String())
	assert.Equal(t, convlog.ModeOnline, StateOnline.Mode())
}
