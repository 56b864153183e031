package actions

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/jarvis/internal/intent"
	"github.com/normanking/jarvis/internal/logging"
)

type recordingLauncher struct {
	mu    sync.Mutex
	calls [][]string
	err   error
}

func (r *recordingLauncher) Launch(_ context.Context, _ intent.ActionID, argv []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, argv)
	return r.err
}

func fixedClock() time.Time {
	return time.Date(2024, time.March, 7, 9, 5, 0, 0, time.UTC)
}

func newTestDispatcher(t *testing.T, opts ...Option) (*Dispatcher, *recordingLauncher) {
	t.Helper()
	l := &recordingLauncher{}
	base := []Option{
		WithLauncher(l),
		WithClock(fixedClock),
		WithSeed(1),
		WithLogger(logging.Nop()),
		WithCommands(DefaultCommands("linux")),
	}
	d, err := New(append(base, opts...)...)
	require.NoError(t, err)
	return d, l
}

func defaultIntent(t *testing.T, id string) intent.Intent {
	t.Helper()
	in, err := intent.Default().Get(id)
	require.NoError(t, err)
	return in
}

func TestNewRequiresEveryAction(t *testing.T) {
	_, err := New(WithLogger(logging.Nop()), WithHandler(intent.ActionGetDate, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get_date")
}

func TestTimeAndDate(t *testing.T) {
	d, _ := newTestDispatcher(t)

	reply, err := d.Dispatch(context.Background(), Request{Intent: defaultIntent(t, "time")})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(reply, " 09:05"), reply)
	assert.True(t, strings.HasPrefix(reply, "The current time is") || strings.HasPrefix(reply, "It's currently"), reply)

	reply, err = d.Dispatch(context.Background(), Request{Intent: defaultIntent(t, "date")})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(reply, " March 07, 2024"), reply)
}

func TestLaunchActions(t *testing.T) {
	d, l := newTestDispatcher(t)

	for _, id := range []string{"open_browser", "open_camera", "open_file"} {
		in := defaultIntent(t, id)
		reply, err := d.Dispatch(context.Background(), Request{Intent: in})
		require.NoError(t, err, id)
		assert.Contains(t, in.Responses, reply)
	}

	require.Len(t, l.calls, 3)
	assert.Equal(t, []string{"google-chrome"}, l.calls[0])
	assert.Equal(t, []string{"cheese"}, l.calls[1])
	assert.Equal(t, []string{"nautilus"}, l.calls[2])
}

func TestLaunchFailureIsExecutionError(t *testing.T) {
	d, l := newTestDispatcher(t)
	l.err = errors.New("not installed")

	reply, err := d.Dispatch(context.Background(), Request{Intent: defaultIntent(t, "open_camera")})
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, intent.ActionOpenCamera, execErr.Action)
	assert.Empty(t, reply)
}

func TestPowerActions(t *testing.T) {
	d, l := newTestDispatcher(t)

	reply, err := d.Dispatch(context.Background(), Request{Intent: defaultIntent(t, "shutdown")})
	require.NoError(t, err)
	assert.Equal(t, "System will shutdown in 10 seconds. Say 'cancel shutdown' to abort.", reply)

	reply, err = d.Dispatch(context.Background(), Request{Intent: defaultIntent(t, "restart")})
	require.NoError(t, err)
	assert.Equal(t, "System will restart in 10 seconds. Say 'cancel restart' to abort.", reply)

	l.err = errors.New("permission denied")
	reply, err = d.Dispatch(context.Background(), Request{Intent: defaultIntent(t, "shutdown")})
	require.Error(t, err)
	assert.Equal(t, "Cannot shutdown system: permission denied", reply)
}

func TestMissingCommand(t *testing.T) {
	d, _ := newTestDispatcher(t, WithCommands(map[intent.ActionID][]string{}))

	_, err := d.Dispatch(context.Background(), Request{Intent: defaultIntent(t, "open_browser")})
	assert.Error(t, err)
}

func TestRespondAndFallbackTemplate(t *testing.T) {
	d, _ := newTestDispatcher(t)

	reply, err := d.Dispatch(context.Background(), Request{Intent: intent.Intent{
		ID: "joke", Action: intent.ActionRespond, Responses: []string{"Knock knock."},
	}})
	require.NoError(t, err)
	assert.Equal(t, "Knock knock.", reply)

	reply, err = d.Dispatch(context.Background(), Request{Intent: intent.Intent{ID: "bare", Action: intent.ActionRespond}})
	require.NoError(t, err)
	assert.Equal(t, "Processing your request...", reply)
}

func TestUnknownAction(t *testing.T) {
	d, _ := newTestDispatcher(t)
	reply, err := d.Dispatch(context.Background(), Request{Intent: intent.Intent{ID: "x", Action: "teleport"}})
	require.NoError(t, err)
	assert.Equal(t, UnsupportedReply, reply)
}

func TestHandlerPanicRecovered(t *testing.T) {
	d, _ := newTestDispatcher(t, WithHandler(intent.ActionRespond, func(context.Context, *Dispatcher, Request) (string, error) {
		panic("boom")
	}))

	_, err := d.Dispatch(context.Background(), Request{Intent: intent.Intent{ID: "x", Action: intent.ActionRespond}})
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
}

func TestSeededPickIsReproducible(t *testing.T) {
	templates := []string{"a", "b", "c", "d", "e"}
	d1, _ := newTestDispatcher(t, WithSeed(42))
	d2, _ := newTestDispatcher(t, WithSeed(42))

	for i := 0; i < 20; i++ {
		assert.Equal(t, d1.Pick(templates), d2.Pick(templates))
	}
	assert.Empty(t, d1.Pick(nil))
}

func TestWeather(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"main":{"temp":14.5},"weather":[{"description":"light rain"}]}`))
	}))
	defer srv.Close()

	wc := NewWeatherClient("owm-key", "Paris")
	wc.Endpoint = srv.URL
	d, _ := newTestDispatcher(t, WithWeather(wc))
	in := defaultIntent(t, "weather")

	reply, err := d.Dispatch(context.Background(), Request{Intent: in, Online: true})
	require.NoError(t, err)
	assert.Equal(t, "The current temperature is 14.5°C with light rain.", reply)
	assert.Contains(t, gotQuery, "q=Paris")
	assert.Contains(t, gotQuery, "units=metric")

	reply, err = d.Dispatch(context.Background(), Request{Intent: in, Online: false})
	require.NoError(t, err)
	assert.Equal(t, OfflineWeatherReply, reply)
}

func TestWeatherFailureFallsBackToOfflineReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	wc := NewWeatherClient("bad", "London")
	wc.Endpoint = srv.URL
	d, _ := newTestDispatcher(t, WithWeather(wc))

	reply, err := d.Dispatch(context.Background(), Request{Intent: defaultIntent(t, "weather"), Online: true})
	require.NoError(t, err)
	assert.Equal(t, OfflineWeatherReply, reply)

	d2, _ := newTestDispatcher(t)
	reply, err = d2.Dispatch(context.Background(), Request{Intent: defaultIntent(t, "weather"), Online: true})
	require.NoError(t, err)
	assert.Equal(t, OfflineWeatherReply, reply)
}

func TestResolveCommands(t *testing.T) {
	cmds, err := ResolveCommands(map[string][]string{"open_chrome": {"firefox"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"firefox"}, cmds[intent.ActionOpenBrowser])
	assert.Equal(t, DefaultCommands(runtime.GOOS)[intent.ActionRestart], cmds[intent.ActionRestart])

	_, err = ResolveCommands(map[string][]string{"teleport": {"x"}})
	assert.ErrorIs(t, err, intent.ErrUnknownAction)

	_, err = ResolveCommands(map[string][]string{"open_camera": {}})
	assert.Error(t, err)
}

func TestDefaultCommandsCoverLaunchActions(t *testing.T) {
	for _, goos := range []string{"linux", "darwin", "windows"} {
		cmds := DefaultCommands(goos)
		for _, id := range []intent.ActionID{
			intent.ActionOpenBrowser, intent.ActionOpenCamera, intent.ActionOpenFileExplorer,
			intent.ActionShutdown, intent.ActionRestart,
		} {
			assert.NotEmpty(t, cmds[id], "%s/%s", goos, id)
		}
	}
}

func TestLogLauncher(t *testing.T) {
	assert.NoError(t, LogLauncher{Log: logging.Nop()}.Launch(context.Background(), intent.ActionShutdown, []string{"shutdown"}))
	assert.Error(t, ExecLauncher{}.Launch(context.Background(), intent.ActionShutdown, nil))
}
