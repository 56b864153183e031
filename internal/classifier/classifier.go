// Package classifier maps utterances to intents for OFFLINE mode.
//
// Classification is tiered. The statistical tier (TF-IDF + naive Bayes over
// the current snapshot) is tried first and accepted only above a confidence
// threshold. The pattern tier walks the intent registry in declaration order
// looking for a pattern substring. The keyword tier buckets whatever remains
// into greeting, thanks, farewell or default.
package classifier

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/normanking/jarvis/internal/intent"
	"github.com/normanking/jarvis/internal/logging"
)

// DefaultConfidenceThreshold is the minimum posterior for the statistical tier.
const DefaultConfidenceThreshold = 0.6

// Tier indicates which classification stage produced a result.
type Tier string

const (
	// TierNone is reported for empty input; no tier ran.
	TierNone Tier = "none"
	// TierStatistical indicates the trained model was confident enough.
	TierStatistical Tier = "statistical"
	// TierPattern indicates a registry pattern occurred in the utterance.
	TierPattern Tier = "pattern"
	// TierKeyword indicates a generic greeting/thanks/farewell match.
	TierKeyword Tier = "keyword"
	// TierDefault indicates nothing matched.
	TierDefault Tier = "default"
)

// Result is the outcome of Classify.
type Result struct {
	// IntentID is empty when no intent matched.
	IntentID   string  `json:"intent_id,omitempty"`
	Confidence float64 `json:"confidence"`
	Tier       Tier    `json:"tier"`
	// Class is set for TierKeyword and TierDefault results.
	Class   Class `json:"class,omitempty"`
	NoInput bool  `json:"no_input,omitempty"`
	// StatisticalErr records why the statistical tier declined, if it did.
	StatisticalErr error `json:"-"`
}

// Matched reports whether an intent was identified.
func (r Result) Matched() bool {
	return r.IntentID != ""
}

// Stats counts classifications per tier.
type Stats struct {
	Total           int64          `json:"total"`
	ByTier          map[Tier]int64 `json:"by_tier"`
	StatisticalErrs int64          `json:"statistical_errors"`
}

// Classifier is safe for concurrent use. The snapshot is swapped atomically
// by Publish; readers see either the old or the new model, never a mix.
type Classifier struct {
	registry  *intent.Holder
	threshold float64
	snapshot  atomic.Pointer[Snapshot]
	log       *logging.Logger

	mu    sync.Mutex
	stats Stats
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithConfidenceThreshold sets the statistical tier acceptance threshold.
func WithConfidenceThreshold(threshold float64) Option {
	return func(c *Classifier) {
		c.threshold = threshold
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Classifier) {
		c.log = l.WithComponent("classifier")
	}
}

// New creates a classifier over the given registry. It has no snapshot until
// Publish is called; until then the statistical tier always declines.
func New(registry *intent.Holder, opts ...Option) *Classifier {
	c := &Classifier{
		registry:  registry,
		threshold: DefaultConfidenceThreshold,
		log:       logging.Global().WithComponent("classifier"),
		stats:     Stats{ByTier: make(map[Tier]int64)},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Publish atomically replaces the active snapshot.
func (c *Classifier) Publish(s *Snapshot) {
	c.snapshot.Store(s)
}

// Current returns the active snapshot, nil before the first Publish.
func (c *Classifier) Current() *Snapshot {
	return c.snapshot.Load()
}

// Threshold returns the statistical acceptance threshold.
func (c *Classifier) Threshold() float64 {
	return c.threshold
}

// Classify runs the tiers in order and always returns a result.
func (c *Classifier) Classify(text string) Result {
	if strings.TrimSpace(text) == "" {
		return Result{Tier: TierNone, NoInput: true}
	}

	reg := c.registry.Current()

	res, err := c.statistical(text, reg)
	if err == nil {
		c.record(res, nil)
		return res
	}

	if in, ok := reg.MatchPattern(text); ok {
		res = Result{IntentID: in.ID, Confidence: 1, Tier: TierPattern, StatisticalErr: err}
		c.record(res, err)
		return res
	}

	class := MatchKeyword(text)
	tier := TierKeyword
	if class == ClassDefault {
		tier = TierDefault
	}
	res = Result{Tier: tier, Class: class, StatisticalErr: err}
	c.record(res, err)
	return res
}

// errBelowThreshold marks a prediction that was made but not trusted.
type errBelowThreshold struct {
	label      string
	confidence float64
	threshold  float64
}

func (e errBelowThreshold) Error() string {
	return fmt.Sprintf("confidence %.3f for %q below threshold %.2f", e.confidence, e.label, e.threshold)
}

// statistical consults the current snapshot. Any failure, including a panic
// inside the model, is reported as an error so the next tier runs.
func (c *Classifier) statistical(text string, reg *intent.Registry) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("statistical tier panicked: %v", r)
		}
	}()

	snap := c.snapshot.Load()
	if snap == nil || snap.Model == nil {
		return Result{}, ErrNotTrained
	}

	p, err := snap.Model.Predict(text)
	if err != nil {
		return Result{}, err
	}
	if p.Confidence < c.threshold {
		return Result{}, errBelowThreshold{label: p.Label, confidence: p.Confidence, threshold: c.threshold}
	}
	if !reg.Has(p.Label) {
		return Result{}, fmt.Errorf("%w: model label %q", intent.ErrUnknownIntent, p.Label)
	}

	return Result{IntentID: p.Label, Confidence: p.Confidence, Tier: TierStatistical}, nil
}

func (c *Classifier) record(res Result, statErr error) {
	c.mu.Lock()
	c.stats.Total++
	c.stats.ByTier[res.Tier]++
	if statErr != nil && statErr != ErrNoFeatures && statErr != ErrNotTrained {
		if _, below := statErr.(errBelowThreshold); !below {
			c.stats.StatisticalErrs++
		}
	}
	c.mu.Unlock()

	c.log.Debug("tier=%s intent=%q class=%s confidence=%.3f", res.Tier, res.IntentID, res.Class, res.Confidence)
	if statErr != nil {
		c.log.Debug("statistical tier declined: %v", statErr)
	}
}

// Stats returns a copy of the classification counters.
func (c *Classifier) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := Stats{
		Total:           c.stats.Total,
		StatisticalErrs: c.stats.StatisticalErrs,
		ByTier:          make(map[Tier]int64, len(c.stats.ByTier)),
	}
	for k, v := range c.stats.ByTier {
		out.ByTier[k] = v
	}
	return out
}
