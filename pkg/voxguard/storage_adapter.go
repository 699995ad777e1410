package voxguard

import (
	"context"

	"github.com/himanishpuri/VoxGuard/pkg/voxguard/storage"
)

// storageAdapter adapts storage.DBClient to the Ledger interface.
type storageAdapter struct {
	db *storage.DBClient
}

// NewSQLiteLedger opens (or creates) a SQLite prediction ledger.
func NewSQLiteLedger(dbPath string) (Ledger, error) {
	db, err := storage.NewDBClientWithPath(dbPath)
	if err != nil {
		return nil, err
	}
	return &storageAdapter{db: db}, nil
}

func (s *storageAdapter) Record(ctx context.Context, rec *Record) error {
	row := storage.Prediction{
		ID:          rec.ID,
		Filename:    rec.Filename,
		Source:      rec.Source,
		Label:       string(rec.Label),
		Probability: rec.Probability,
		Threshold:   rec.Threshold,
		Frames:      rec.Frames,
		DurationMs:  rec.DurationMs,
		CreatedAt:   rec.CreatedAt,
	}
	if err := s.db.Record(ctx, &row); err != nil {
		return err
	}
	rec.ID = row.ID
	rec.CreatedAt = row.CreatedAt
	return nil
}

func (s *storageAdapter) Recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.db.Recent(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Record, len(rows))
	for i, r := range rows {
		out[i] = Record{
			ID:          r.ID,
			Filename:    r.Filename,
			Source:      r.Source,
			Label:       Label(r.Label),
			Probability: r.Probability,
			Threshold:   r.Threshold,
			Frames:      r.Frames,
			DurationMs:  r.DurationMs,
			CreatedAt:   r.CreatedAt,
		}
	}
	return out, nil
}

func (s *storageAdapter) Stats(ctx context.Context) (Stats, error) {
	st, err := s.db.Stats(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Total:          st.Total,
		Real:           st.ByLabel[string(LabelReal)],
		DeepFake:       st.ByLabel[string(LabelDeepFake)],
		AvgProbability: st.AvgProbability,
		Last:           st.Last,
	}, nil
}

func (s *storageAdapter) Close() error {
	return s.db.Close()
}

// nopLedger is used when no database is configured.
type nopLedger struct{}

func (nopLedger) Record(context.Context, *Record) error          { return nil }
func (nopLedger) Recent(context.Context, int) ([]Record, error) { return nil, nil }
func (nopLedger) Stats(context.Context) (Stats, error)          { return Stats{}, nil }
func (nopLedger) Close() error                                  { return nil }
