package analysis

import (
	"context"
	"testing"
	"time"

	"mapsentiment-backend/lib/sentiment"
	"mapsentiment-backend/lib/testutil"
	"mapsentiment-backend/services/analysis/db"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T, mandatory bool, maxAge time.Duration) *Store {
	res, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "analysis-store",
		DbSchema: db.Schema,
	})
	t.Cleanup(cleanup)
	return NewStore(res.DB, mandatory, maxAge)
}

func sampleResult() AnalysisResult {
	return AnalysisResult{
		BusinessName:  "Cafe Rio",
		TotalReviews:  2,
		AverageRating: 3.0,
		SentimentSummary: map[sentiment.Label]int{
			sentiment.Positive: 1,
			sentiment.Negative: 1,
			sentiment.Neutral:  0,
		},
		Reviews: []ReviewRecord{
			{Username: "Alice", Rating: 5, ReviewText: "Great!", Sentiment: sentiment.Positive, Confidence: 0.97},
			{Username: "Bob", Rating: 1, ReviewText: "Terrible", Sentiment: sentiment.Negative, Confidence: 0.91},
		},
	}
}

func TestStoreRoundTrip(t *testing.T) {
	store := setupStore(t, false, 0)
	ctx := context.Background()

	_, hit, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, hit)

	want := sampleResult()
	require.NoError(t, store.Put(ctx, "key1", "https://www.google.com/maps/place/Cafe+Rio", want))

	got, hit, err := store.Get(ctx, "key1")
	require.NoError(t, err)
	require.True(t, hit)
	require.Empty(t, cmp.Diff(want, got))
}

func TestStorePutReplacesWholeEntry(t *testing.T) {
	store := setupStore(t, false, 0)
	ctx := context.Background()

	first := sampleResult()
	require.NoError(t, store.Put(ctx, "key1", "url", first))

	second := sampleResult()
	second.TotalReviews = 50
	second.Reviews = second.Reviews[:1]
	require.NoError(t, store.Put(ctx, "key1", "url", second))

	got, hit, err := store.Get(ctx, "key1")
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, 50, got.TotalReviews)
	require.Len(t, got.Reviews, 1)
}

func TestStoreMaxAgeExpiry(t *testing.T) {
	store := setupStore(t, false, time.Hour)
	ctx := context.Background()

	written := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return written }
	require.NoError(t, store.Put(ctx, "key1", "url", sampleResult()))

	store.now = func() time.Time { return written.Add(30 * time.Minute) }
	_, hit, err := store.Get(ctx, "key1")
	require.NoError(t, err)
	require.True(t, hit)

	store.now = func() time.Time { return written.Add(2 * time.Hour) }
	_, hit, err = store.Get(ctx, "key1")
	require.NoError(t, err)
	require.False(t, hit)
}

func TestStoreCorruptPayloadIsMiss(t *testing.T) {
	res, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "analysis-store",
		DbSchema: db.Schema,
	})
	t.Cleanup(cleanup)
	store := NewStore(res.DB, false, 0)
	ctx := context.Background()

	err := db.New(res.DB).UpsertAnalysis(ctx, db.UpsertAnalysisParams{
		Key:          "key1",
		LocationUrl:  "url",
		BusinessName: "Cafe Rio",
		Payload:      "{not json",
		CreatedAt:    time.Now().Unix(),
	})
	require.NoError(t, err)

	_, hit, err := store.Get(ctx, "key1")
	require.NoError(t, err)
	require.False(t, hit)
}

func TestStoreOutage(t *testing.T) {
	res, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "analysis-store",
		DbSchema: db.Schema,
	})
	t.Cleanup(cleanup)
	res.DB.Close()

	optional := NewStore(res.DB, false, 0)
	_, hit, err := optional.Get(context.Background(), "key1")
	require.NoError(t, err)
	require.False(t, hit)
	require.NoError(t, optional.Put(context.Background(), "key1", "url", sampleResult()))

	mandatory := NewStore(res.DB, true, 0)
	_, _, err = mandatory.Get(context.Background(), "key1")
	require.ErrorIs(t, err, ErrStoreUnavailable)
	err = mandatory.Put(context.Background(), "key1", "url", sampleResult())
	require.ErrorIs(t, err, ErrStoreUnavailable)
}
