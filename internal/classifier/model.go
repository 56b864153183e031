package classifier

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	// ErrEmptyTrainingSet is returned when Train receives no usable samples.
	ErrEmptyTrainingSet = errors.New("empty training set")
	// ErrNoFeatures is returned when an utterance shares no feature with the
	// trained vocabulary.
	ErrNoFeatures = errors.New("no known features in input")
	// ErrNotTrained is returned when no snapshot has been published yet.
	ErrNotTrained = errors.New("classifier not trained")
)

// Sample is one labeled training utterance.
type Sample struct {
	Text  string `json:"text"`
	Label string `json:"label"`
}

// TrainOptions tunes model construction.
type TrainOptions struct {
	// Smoothing is the additive smoothing applied to feature likelihoods.
	Smoothing float64
	// NgramMax is the largest word n-gram extracted.
	NgramMax int
}

// DefaultTrainOptions returns smoothing 0.01 over unigrams and bigrams.
func DefaultTrainOptions() TrainOptions {
	return TrainOptions{Smoothing: 0.01, NgramMax: 2}
}

// Model is a TF-IDF vectorizer feeding a multinomial naive Bayes classifier.
// It is immutable after Train and safe for concurrent Predict calls. Fields
// are exported for persistence.
type Model struct {
	NgramMax int            `json:"ngram_max"`
	Vocab    map[string]int `json:"vocab"`
	IDF      []float64      `json:"idf"`
	Labels   []string       `json:"labels"`
	LogPrior []float64      `json:"log_prior"`
	// LogLik[c][f] is log P(feature f | label c).
	LogLik [][]float64 `json:"log_lik"`
}

// Prediction is the most probable label and its posterior probability.
type Prediction struct {
	Label      string
	Confidence float64
}

// Train fits a model on samples. Samples with empty text or label, or with
// no extractable features, are ignored.
func Train(samples []Sample, opts TrainOptions) (*Model, error) {
	if opts.NgramMax < 1 {
		opts.NgramMax = 1
	}
	if opts.Smoothing <= 0 {
		opts.Smoothing = DefaultTrainOptions().Smoothing
	}

	type doc struct {
		feats []string
		label string
	}
	docs := make([]doc, 0, len(samples))
	for _, s := range samples {
		if s.Label == "" {
			continue
		}
		feats := Features(s.Text, opts.NgramMax)
		if len(feats) == 0 {
			continue
		}
		docs = append(docs, doc{feats: feats, label: s.Label})
	}
	if len(docs) == 0 {
		return nil, ErrEmptyTrainingSet
	}

	// Vocabulary and labels are sorted so identical inputs yield identical models.
	vocabSet := make(map[string]struct{})
	labelSet := make(map[string]struct{})
	for _, d := range docs {
		labelSet[d.label] = struct{}{}
		for _, f := range d.feats {
			vocabSet[f] = struct{}{}
		}
	}
	terms := sortedKeys(vocabSet)
	labels := sortedKeys(labelSet)

	m := &Model{
		NgramMax: opts.NgramMax,
		Vocab:    make(map[string]int, len(terms)),
		IDF:      make([]float64, len(terms)),
		Labels:   labels,
		LogPrior: make([]float64, len(labels)),
		LogLik:   make([][]float64, len(labels)),
	}
	for i, t := range terms {
		m.Vocab[t] = i
	}
	labelIdx := make(map[string]int, len(labels))
	for i, l := range labels {
		labelIdx[l] = i
	}

	// Smoothed inverse document frequency: ln((1+n)/(1+df)) + 1.
	df := make([]int, len(terms))
	for _, d := range docs {
		seen := make(map[int]struct{}, len(d.feats))
		for _, f := range d.feats {
			j := m.Vocab[f]
			if _, ok := seen[j]; !ok {
				seen[j] = struct{}{}
				df[j]++
			}
		}
	}
	n := float64(len(docs))
	for j := range terms {
		m.IDF[j] = math.Log((1+n)/(1+float64(df[j]))) + 1
	}

	featSum := make([][]float64, len(labels))
	for c := range labels {
		featSum[c] = make([]float64, len(terms))
	}
	classCount := make([]float64, len(labels))
	for _, d := range docs {
		c := labelIdx[d.label]
		classCount[c]++
		for _, t := range m.vectorize(d.feats) {
			featSum[c][t.index] += t.weight
		}
	}

	v := float64(len(terms))
	for c := range labels {
		m.LogPrior[c] = math.Log(classCount[c] / n)

		total := 0.0
		for _, w := range featSum[c] {
			total += w
		}
		denom := total + opts.Smoothing*v

		m.LogLik[c] = make([]float64, len(terms))
		for j := range terms {
			m.LogLik[c][j] = math.Log((featSum[c][j] + opts.Smoothing) / denom)
		}
	}

	return m, nil
}

// term is one non-zero entry of a sparse feature vector.
type term struct {
	index  int
	weight float64
}

// vectorize returns the l2-normalised TF-IDF weights of the known features,
// ordered by vocabulary index.
func (m *Model) vectorize(feats []string) []term {
	counts := make(map[int]float64, len(feats))
	for _, f := range feats {
		if j, ok := m.Vocab[f]; ok {
			counts[j]++
		}
	}
	if len(counts) == 0 {
		return nil
	}

	vec := make([]term, 0, len(counts))
	for j, c := range counts {
		vec = append(vec, term{index: j, weight: c * m.IDF[j]})
	}
	sort.Slice(vec, func(a, b int) bool { return vec[a].index < vec[b].index })

	norm := 0.0
	for _, t := range vec {
		norm += t.weight * t.weight
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i].weight /= norm
	}
	return vec
}

// Predict returns the most probable label for text with its softmax
// normalised posterior.
func (m *Model) Predict(text string) (Prediction, error) {
	if m == nil || len(m.Labels) == 0 {
		return Prediction{}, ErrNotTrained
	}
	if len(m.LogLik) != len(m.Labels) || len(m.LogPrior) != len(m.Labels) {
		return Prediction{}, fmt.Errorf("corrupt model: %d labels, %d priors, %d likelihood rows",
			len(m.Labels), len(m.LogPrior), len(m.LogLik))
	}

	x := m.vectorize(Features(text, m.NgramMax))
	if len(x) == 0 {
		return Prediction{}, ErrNoFeatures
	}

	scores := make([]float64, len(m.Labels))
	best := 0
	for c := range m.Labels {
		s := m.LogPrior[c]
		for _, t := range x {
			s += t.weight * m.LogLik[c][t.index]
		}
		scores[c] = s
		if s > scores[best] {
			best = c
		}
	}

	sum := 0.0
	for _, s := range scores {
		sum += math.Exp(s - scores[best])
	}

	return Prediction{Label: m.Labels[best], Confidence: 1 / sum}, nil
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
