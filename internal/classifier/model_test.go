package classifier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/jarvis/internal/intent"
)

func seedSamples(r *intent.Registry) []Sample {
	var out []Sample
	for _, s := range r.Seeds() {
		out = append(out, Sample{Text: s.Text, Label: s.IntentID})
	}
	return out
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		input    string
		expected []string
	}{
		{"What time is it?", []string{"time"}},
		{"Shut DOWN computer", []string{"shut", "computer"}},
		{"today's date", []string{"today", "date"}},
		{"a b c", []string{}},
		{"", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := Tokenize(tt.input)
			if len(tt.expected) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestFeatures_Bigrams(t *testing.T) {
	assert.Equal(t,
		[]string{"reboot", "system", "reboot system"},
		Features("please reboot the system", 2))
	assert.Equal(t, []string{"reboot", "system"}, Features("reboot system", 1))
}

func TestTrain_EmptySet(t *testing.T) {
	_, err := Train(nil, DefaultTrainOptions())
	assert.ErrorIs(t, err, ErrEmptyTrainingSet)

	_, err = Train([]Sample{{Text: "the of and", Label: "x"}, {Text: "weather", Label: ""}}, DefaultTrainOptions())
	assert.ErrorIs(t, err, ErrEmptyTrainingSet)
}

func TestTrain_SeedPatternsAreConfident(t *testing.T) {
	reg := intent.Default()
	m, err := Train(seedSamples(reg), DefaultTrainOptions())
	require.NoError(t, err)

	for _, seed := range reg.Seeds() {
		t.Run(seed.Text, func(t *testing.T) {
			p, err := m.Predict(seed.Text)
			require.NoError(t, err)
			assert.Equal(t, seed.IntentID, p.Label)
			assert.GreaterOrEqual(t, p.Confidence, DefaultConfidenceThreshold)
		})
	}
}

func TestPredict_Paraphrases(t *testing.T) {
	m, err := Train(seedSamples(intent.Default()), DefaultTrainOptions())
	require.NoError(t, err)

	tests := []struct {
		input    string
		expected string
	}{
		{"what's the weather like", "weather"},
		{"can you launch my camera", "open_camera"},
		{"please reboot", "restart"},
		{"what is the time", "time"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			p, err := m.Predict(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, p.Label)
		})
	}
}

func TestPredict_NoFeatures(t *testing.T) {
	m, err := Train(seedSamples(intent.Default()), DefaultTrainOptions())
	require.NoError(t, err)

	_, err = m.Predict("tell me a joke")
	assert.ErrorIs(t, err, ErrNoFeatures)
}

func TestPredict_AmbiguousIsNotConfident(t *testing.T) {
	m, err := Train(seedSamples(intent.Default()), DefaultTrainOptions())
	require.NoError(t, err)

	p, err := m.Predict("open something")
	require.NoError(t, err)
	assert.Less(t, p.Confidence, DefaultConfidenceThreshold)
}

func TestPredict_NilModel(t *testing.T) {
	var m *Model
	_, err := m.Predict("weather")
	assert.ErrorIs(t, err, ErrNotTrained)
}

func TestTrain_Deterministic(t *testing.T) {
	samples := seedSamples(intent.Default())
	a, err := Train(samples, DefaultTrainOptions())
	require.NoError(t, err)
	b, err := Train(samples, DefaultTrainOptions())
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestFingerprint(t *testing.T) {
	a := []Sample{{Text: "time", Label: "time"}, {Text: "date", Label: "date"}}
	b := []Sample{{Text: "date", Label: "date"}, {Text: "time", Label: "time"}}

	assert.Equal(t, Fingerprint(a), Fingerprint(append([]Sample(nil), a...)))
	assert.NotEqual(t, Fingerprint(a), Fingerprint(b))
	// The separator keeps ("ab","c") distinct from ("a","bc").
	assert.NotEqual(t,
		Fingerprint([]Sample{{Text: "c", Label: "ab"}}),
		Fingerprint([]Sample{{Text: "bc", Label: "a"}}))
}

func TestBuild(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	samples := seedSamples(intent.Default())

	snap, err := Build(samples, DefaultTrainOptions(), now)
	require.NoError(t, err)

	assert.NotEmpty(t, snap.ID)
	assert.Equal(t, len(samples), snap.Samples)
	assert.Equal(t, Fingerprint(samples), snap.Fingerprint)
	assert.Equal(t, now, snap.TrainedAt)
}
