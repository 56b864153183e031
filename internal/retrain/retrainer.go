// Package retrain rebuilds the offline classifier from the intent registry
// and the labeled conversation history. A rebuild is triggered once every N
// appends, runs off the request path, and publishes the new snapshot
// atomically; a failed or skipped rebuild leaves the previous snapshot in
// effect.
package retrain

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/normanking/jarvis/internal/classifier"
	"github.com/normanking/jarvis/internal/convlog"
	"github.com/normanking/jarvis/internal/intent"
	"github.com/normanking/jarvis/internal/logging"
)

// DefaultInterval is the number of appends between retrains.
const DefaultInterval = 10

// SnapshotStore persists trained snapshots.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap *classifier.Snapshot) error
	LatestSnapshot(ctx context.Context) (*classifier.Snapshot, error)
}

// History supplies labeled conversation entries.
type History interface {
	Labeled() []convlog.Entry
}

// Trigger says what started a retrain.
type Trigger string

const (
	TriggerInterval  Trigger = "interval"
	TriggerManual    Trigger = "manual"
	TriggerBootstrap Trigger = "bootstrap"
)

// Result is the disposition of a retrain cycle.
type Result string

const (
	ResultPublished        Result = "published"
	ResultSkippedEmpty     Result = "skipped_empty"
	ResultSkippedUnchanged Result = "skipped_unchanged"
	ResultSkippedStale     Result = "skipped_stale"
	ResultFailed           Result = "failed"
)

// Outcome describes one retrain cycle.
type Outcome struct {
	Trigger  Trigger
	Result   Result
	Samples  int
	Snapshot *classifier.Snapshot
	Duration time.Duration
	Err      error
}

// Retrainer owns the append counter and the snapshot lifecycle.
type Retrainer struct {
	classifier *classifier.Classifier
	registry   *intent.Holder
	history    History
	store      SnapshotStore
	interval   int
	opts       classifier.TrainOptions
	now        func() time.Time
	log        *logging.Logger
	observers  []func(Outcome)

	mu        sync.Mutex
	counter   int
	generated uint64

	trainMu   sync.Mutex
	published uint64

	wg sync.WaitGroup
}

// Option configures a Retrainer.
type Option func(*Retrainer)

// WithInterval sets how many appends trigger a retrain.
func WithInterval(n int) Option {
	return func(r *Retrainer) {
		if n > 0 {
			r.interval = n
		}
	}
}

// WithTrainOptions sets model hyperparameters.
func WithTrainOptions(opts classifier.TrainOptions) Option {
	return func(r *Retrainer) {
		r.opts = opts
	}
}

// WithStore enables snapshot persistence.
func WithStore(s SnapshotStore) Option {
	return func(r *Retrainer) {
		r.store = s
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Retrainer) {
		r.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Retrainer) {
		r.log = l.WithComponent("retrainer")
	}
}

// WithObserver registers a callback invoked after every cycle.
func WithObserver(fn func(Outcome)) Option {
	return func(r *Retrainer) {
		r.observers = append(r.observers, fn)
	}
}

// New creates a Retrainer that publishes into c.
func New(c *classifier.Classifier, registry *intent.Holder, history History, opts ...Option) *Retrainer {
	r := &Retrainer{
		classifier: c,
		registry:   registry,
		history:    history,
		interval:   DefaultInterval,
		opts:       classifier.DefaultTrainOptions(),
		now:        time.Now,
		log:        logging.Global().WithComponent("retrainer"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Interval returns the configured retrain interval.
func (r *Retrainer) Interval() int {
	return r.interval
}

// Pending returns how many appends have been counted since the last trigger.
func (r *Retrainer) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counter
}

// Notify counts one conversation append. Every interval-th call starts one
// background retrain and resets the count. The training set is captured
// before Notify returns, so the triggering entry is always included.
func (r *Retrainer) Notify() bool {
	r.mu.Lock()
	r.counter++
	if r.counter < r.interval {
		r.mu.Unlock()
		return false
	}
	r.counter = 0
	r.generated++
	gen := r.generated
	r.mu.Unlock()

	samples := r.TrainingSet()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(context.Background(), TriggerInterval, gen, samples)
	}()
	return true
}

// RetrainNow runs a cycle synchronously.
func (r *Retrainer) RetrainNow(ctx context.Context) Outcome {
	r.mu.Lock()
	r.generated++
	gen := r.generated
	r.mu.Unlock()

	return r.run(ctx, TriggerManual, gen, r.TrainingSet())
}

// Bootstrap makes a snapshot available before the first utterance. A
// persisted snapshot is used when it matches the current training set;
// otherwise the classifier is trained synchronously.
func (r *Retrainer) Bootstrap(ctx context.Context) Outcome {
	samples := r.TrainingSet()

	if r.store != nil {
		snap, err := r.store.LatestSnapshot(ctx)
		switch {
		case err == nil && snap.Fingerprint == classifier.Fingerprint(samples):
			r.classifier.Publish(snap)
			r.log.Info("loaded snapshot %s (%d samples, trained %s)", snap.ID, snap.Samples, snap.TrainedAt.Format(time.RFC3339))
			return Outcome{Trigger: TriggerBootstrap, Result: ResultPublished, Samples: snap.Samples, Snapshot: snap}
		case err == nil:
			r.log.Info("persisted snapshot %s is out of date, retraining", snap.ID)
		default:
			r.log.Warn("no usable persisted snapshot: %v", err)
		}
	}

	r.mu.Lock()
	r.generated++
	gen := r.generated
	r.mu.Unlock()

	out := r.run(ctx, TriggerBootstrap, gen, samples)
	out.Trigger = TriggerBootstrap
	return out
}

// TrainingSet returns the registry seed pairs followed by the labeled
// history, both in order.
func (r *Retrainer) TrainingSet() []classifier.Sample {
	var samples []classifier.Sample
	for _, s := range r.registry.Current().Seeds() {
		samples = append(samples, classifier.Sample{Text: s.Text, Label: s.IntentID})
	}
	if r.history != nil {
		for _, e := range r.history.Labeled() {
			samples = append(samples, classifier.Sample{Text: e.UserInput, Label: e.IntentID})
		}
	}
	return samples
}

// Wait blocks until every in-flight background retrain has finished.
func (r *Retrainer) Wait() {
	r.wg.Wait()
}

func (r *Retrainer) run(ctx context.Context, trigger Trigger, gen uint64, samples []classifier.Sample) (out Outcome) {
	start := r.now()
	out = Outcome{Trigger: trigger, Samples: len(samples)}
	defer func() {
		out.Duration = r.now().Sub(start)
		r.notifyObservers(out)
	}()

	r.trainMu.Lock()
	defer r.trainMu.Unlock()

	if gen < r.published {
		out.Result = ResultSkippedStale
		r.log.Debug("generation %d superseded by %d, skipping", gen, r.published)
		return out
	}

	if len(samples) == 0 {
		out.Result = ResultSkippedEmpty
		r.log.Info("training set is empty, keeping current snapshot")
		return out
	}

	fp := classifier.Fingerprint(samples)
	if cur := r.classifier.Current(); cur != nil && cur.Fingerprint == fp {
		out.Result = ResultSkippedUnchanged
		out.Snapshot = cur
		r.published = gen
		r.log.Debug("training set unchanged (%s), keeping snapshot %s", fp[:12], cur.ID)
		return out
	}

	snap, err := classifier.Build(samples, r.opts, r.now())
	if err != nil {
		out.Err = err
		if errors.Is(err, classifier.ErrEmptyTrainingSet) {
			out.Result = ResultSkippedEmpty
			r.log.Info("no trainable samples, keeping current snapshot")
			return out
		}
		out.Result = ResultFailed
		r.log.Error("retrain failed, keeping current snapshot: %v", err)
		return out
	}

	r.classifier.Publish(snap)
	r.published = gen
	out.Result = ResultPublished
	out.Snapshot = snap
	r.log.Info("published snapshot %s (%s, %d samples)", snap.ID, trigger, len(samples))

	if r.store != nil {
		sctx, cancel := logging.Detach(ctx, 10*time.Second)
		defer cancel()
		if err := r.store.SaveSnapshot(sctx, snap); err != nil {
			r.log.Error("persist snapshot %s failed: %v", snap.ID, err)
		}
	}
	return out
}

func (r *Retrainer) notifyObservers(out Outcome) {
	for _, fn := range r.observers {
		fn(out)
	}
}
