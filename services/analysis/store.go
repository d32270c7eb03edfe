package analysis

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mapsentiment-backend/services/analysis/db"
)

// Store is the persistent cache of analysis results, keyed by the
// canonical location hash. Writes replace whole entries, a refresh never
// merges into an existing row.
type Store struct {
	qry *db.Queries
	// when mandatory, store outages fail the pipeline instead of
	// degrading to cache misses
	mandatory bool
	// zero means entries never expire on their own
	maxAge time.Duration
	now    func() time.Time
}

func NewStore(database *sql.DB, mandatory bool, maxAge time.Duration) *Store {
	return &Store{
		qry:       db.New(database),
		mandatory: mandatory,
		maxAge:    maxAge,
		now:       time.Now,
	}
}

// Get looks up a cached result. A miss is (zero, false, nil). Backend
// outages degrade to a miss unless the store is mandatory.
func (s *Store) Get(ctx context.Context, key string) (AnalysisResult, bool, error) {
	row, err := s.qry.GetAnalysis(ctx, key)
	if errors.Is(err, sql.ErrNoRows) {
		return AnalysisResult{}, false, nil
	}
	if err != nil {
		if s.mandatory {
			return AnalysisResult{}, false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		slog.WarnContext(ctx, "cache read failed, treating as miss", "key", key, "err", err)
		return AnalysisResult{}, false, nil
	}

	if s.maxAge > 0 && s.now().Sub(time.Unix(row.CreatedAt, 0)) > s.maxAge {
		return AnalysisResult{}, false, nil
	}

	var result AnalysisResult
	if err := json.Unmarshal([]byte(row.Payload), &result); err != nil {
		slog.WarnContext(ctx, "corrupt cache payload, treating as miss", "key", key, "err", err)
		return AnalysisResult{}, false, nil
	}
	return result, true, nil
}

// Put overwrites the entry for key wholesale, stamping the current time.
func (s *Store) Put(ctx context.Context, key, locationUrl string, result AnalysisResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}

	err = s.qry.UpsertAnalysis(ctx, db.UpsertAnalysisParams{
		Key:          key,
		LocationUrl:  locationUrl,
		BusinessName: result.BusinessName,
		Payload:      string(payload),
		CreatedAt:    s.now().Unix(),
	})
	if err != nil {
		if s.mandatory {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		slog.WarnContext(ctx, "cache write failed, result not persisted", "key", key, "err", err)
		return nil
	}
	return nil
}
