// Package connectivity answers one question: can the assistant use the
// remote generation service right now? A Probe checks, in order, that a
// credential is configured, that the network is reachable and that the
// service answers a trivial request, all inside a single deadline.
package connectivity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/normanking/jarvis/internal/llm"
	"github.com/normanking/jarvis/internal/logging"
)

const (
	// DefaultTimeout bounds a whole probe.
	DefaultTimeout = 5 * time.Second

	// DefaultReachabilityURL is fetched by the reachability stage.
	DefaultReachabilityURL = "https://www.google.com"

	// ServicePrompt is the minimal request sent by the service stage.
	ServicePrompt = "Hello"
)

// Checker reports whether the remote service is usable. Implementations
// never return errors; every failure reduces to false.
type Checker interface {
	Check(ctx context.Context) bool
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) bool

// Check calls f(ctx).
func (f CheckerFunc) Check(ctx context.Context) bool {
	return f(ctx)
}

// Stage names the probe step that decided the result.
type Stage string

const (
	StageCredential   Stage = "credential"
	StageReachability Stage = "reachability"
	StageService      Stage = "service"
	// StageOK is reported when every stage passed.
	StageOK Stage = "ok"
)

// Result describes one probe run.
type Result struct {
	Available bool          `json:"available"`
	Stage     Stage         `json:"stage"`
	Err       error         `json:"-"`
	CheckedAt time.Time     `json:"checked_at"`
	Duration  time.Duration `json:"duration"`
}

// Reason returns the failure text, empty on success.
func (r Result) Reason() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

var errNoCredential = errors.New("no api key configured")

// Probe is a Checker backed by an llm.Provider.
type Probe struct {
	provider llm.Provider
	client   *http.Client
	url      string
	timeout  time.Duration
	log      *logging.Logger
	now      func() time.Time

	mu   sync.RWMutex
	last Result
	runs int
}

// Option configures a Probe.
type Option func(*Probe)

// WithReachabilityURL sets the URL fetched by the reachability stage. An
// empty URL skips the stage.
func WithReachabilityURL(url string) Option {
	return func(p *Probe) { p.url = url }
}

// WithTimeout sets the overall deadline.
func WithTimeout(d time.Duration) Option {
	return func(p *Probe) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithHTTPClient replaces the client used for reachability.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Probe) { p.client = c }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(p *Probe) { p.log = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Probe) { p.now = now }
}

// NewProbe creates a probe for provider.
func NewProbe(provider llm.Provider, opts ...Option) *Probe {
	p := &Probe{
		provider: provider,
		client:   &http.Client{},
		url:      DefaultReachabilityURL,
		timeout:  DefaultTimeout,
		log:      logging.Global(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.WithComponent("probe")
	return p
}

// Check runs the probe and reports availability.
func (p *Probe) Check(ctx context.Context) bool {
	return p.Run(ctx).Available
}

// Run executes every stage under one deadline and records the result.
func (p *Probe) Run(ctx context.Context) (res Result) {
	start := p.now()
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			res = Result{Stage: StageService, Err: fmt.Errorf("probe panic: %v", r)}
		}
		res.CheckedAt = start.UTC()
		res.Duration = p.now().Sub(start)
		p.record(res)
	}()

	if p.provider == nil || !p.provider.Available() {
		return Result{Stage: StageCredential, Err: errNoCredential}
	}
	if err := p.reachable(ctx); err != nil {
		return Result{Stage: StageReachability, Err: err}
	}
	if _, err := llm.Complete(ctx, p.provider, ServicePrompt); err != nil {
		return Result{Stage: StageService, Err: err}
	}
	return Result{Available: true, Stage: StageOK}
}

func (p *Probe) reachable(ctx context.Context) error {
	if p.url == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d", p.url, resp.StatusCode)
	}
	return nil
}

func (p *Probe) record(res Result) {
	p.mu.Lock()
	p.last = res
	p.runs++
	p.mu.Unlock()

	if res.Available {
		p.log.Info("remote service available (%s)", res.Duration.Round(time.Millisecond))
		return
	}
	p.log.Warn("remote service unavailable at %s stage: %v", res.Stage, res.Err)
}

// LastResult returns the most recent result. ok is false before the first run.
func (p *Probe) LastResult() (Result, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last, p.runs > 0
}
