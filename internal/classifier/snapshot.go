package classifier

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// Snapshot is an immutable trained model plus the fingerprint of the
// training set that produced it.
type Snapshot struct {
	ID          string    `json:"id"`
	Model       *Model    `json:"model"`
	Fingerprint string    `json:"fingerprint"`
	Samples     int       `json:"samples"`
	TrainedAt   time.Time `json:"trained_at"`
}

// Fingerprint hashes the ordered training set. Two sets with the same pairs
// in the same order share a fingerprint.
func Fingerprint(samples []Sample) string {
	h := sha256.New()
	for _, s := range samples {
		h.Write([]byte(s.Label))
		h.Write([]byte{0})
		h.Write([]byte(s.Text))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Build trains a model on samples and wraps it in a new snapshot.
func Build(samples []Sample, opts TrainOptions, now time.Time) (*Snapshot, error) {
	m, err := Train(samples, opts)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		ID:          uuid.NewString(),
		Model:       m,
		Fingerprint: Fingerprint(samples),
		Samples:     len(samples),
		TrainedAt:   now.UTC(),
	}, nil
}
