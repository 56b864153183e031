package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/normanking/jarvis/internal/classifier"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT OPERATIONS
// ═══════════════════════════════════════════════════════════════════════════════

var (
	// ErrNoSnapshot is returned when no snapshot has been persisted.
	ErrNoSnapshot = errors.New("no persisted snapshot")
	// ErrCorruptSnapshot is returned when the newest snapshot cannot be decoded.
	ErrCorruptSnapshot = errors.New("persisted snapshot is unreadable")
)

// SaveSnapshot persists a trained snapshot.
func (s *Store) SaveSnapshot(ctx context.Context, snap *classifier.Snapshot) error {
	if snap == nil || snap.Model == nil {
		return fmt.Errorf("snapshot has no model")
	}

	model, err := json.Marshal(snap.Model)
	if err != nil {
		return fmt.Errorf("marshal model: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO classifier_snapshots (id, fingerprint, samples, trained_at, model)
		VALUES (?, ?, ?, ?, ?)
	`, snap.ID, snap.Fingerprint, snap.Samples, snap.TrainedAt.UTC().Format(time.RFC3339Nano), model)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// LatestSnapshot loads the most recently saved snapshot.
func (s *Store) LatestSnapshot(ctx context.Context) (*classifier.Snapshot, error) {
	var (
		snap      classifier.Snapshot
		trainedAt string
		model     []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, fingerprint, samples, trained_at, model
		FROM classifier_snapshots
		ORDER BY seq DESC
		LIMIT 1
	`).Scan(&snap.ID, &snap.Fingerprint, &snap.Samples, &trainedAt, &model)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}

	snap.TrainedAt, err = time.Parse(time.RFC3339Nano, trainedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: trained_at: %v", ErrCorruptSnapshot, err)
	}

	var m classifier.Model
	if err := json.Unmarshal(model, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	if err := checkModel(&m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	snap.Model = &m

	return &snap, nil
}

// PruneSnapshots keeps only the newest keep snapshots.
func (s *Store) PruneSnapshots(ctx context.Context, keep int) (int64, error) {
	if keep < 1 {
		keep = 1
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM classifier_snapshots
		WHERE seq NOT IN (SELECT seq FROM classifier_snapshots ORDER BY seq DESC LIMIT ?)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	return res.RowsAffected()
}

// checkModel rejects a decoded model whose tables do not line up, since
// Predict indexes them without bounds checks.
func checkModel(m *classifier.Model) error {
	n := len(m.Vocab)
	switch {
	case len(m.Labels) == 0:
		return errors.New("no labels")
	case len(m.LogLik) != len(m.Labels), len(m.LogPrior) != len(m.Labels):
		return errors.New("label tables differ in length")
	case len(m.IDF) != n:
		return errors.New("idf does not match vocabulary")
	}
	for c, row := range m.LogLik {
		if len(row) != n {
			return fmt.Errorf("log_lik row %d has %d entries, want %d", c, len(row), n)
		}
	}
	for term, idx := range m.Vocab {
		if idx < 0 || idx >= n {
			return fmt.Errorf("term %q index %d out of range", term, idx)
		}
	}
	return nil
}
