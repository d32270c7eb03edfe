package analysis_test

import (
	"context"
	"errors"
	"testing"

	"mapsentiment-backend/lib/browser"
	"mapsentiment-backend/lib/locator"
	"mapsentiment-backend/lib/scrapers/gmaps"
	"mapsentiment-backend/lib/sentiment"
	"mapsentiment-backend/lib/testutil"
	"mapsentiment-backend/services/analysis"
	"mapsentiment-backend/services/analysis/db"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
)

var testLocation = locator.Location{
	RawURL:    "https://maps.app.goo.gl/abc123",
	FinalURL:  "https://www.google.com/maps/place/Cafe+Rio/@40.1,-111.6,17z",
	Canonical: "place/cafe rio",
}

type stubResolver struct {
	loc locator.Location
	err error
}

func (r stubResolver) Resolve(ctx context.Context, rawUrl string) (locator.Location, error) {
	return r.loc, r.err
}

type stubSession struct {
	closed *int
}

func (s stubSession) Close() { *s.closed++ }

type stubSessions struct {
	acquired int
	closed   int
	err      error
}

func (s *stubSessions) Acquire(ctx context.Context) (analysis.Session, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.acquired++
	return stubSession{closed: &s.closed}, nil
}

type stubScraper struct {
	calls    int
	business gmaps.Business
	reviews  []gmaps.Review
	err      error
}

func (s *stubScraper) Scrape(ctx context.Context, session analysis.Session, loc locator.Location, limit int) (gmaps.Business, []gmaps.Review, error) {
	s.calls++
	if s.err != nil {
		return gmaps.Business{}, nil, s.err
	}
	if len(s.reviews) > limit {
		return s.business, s.reviews[:limit], nil
	}
	return s.business, s.reviews, nil
}

type stubClassifier struct{}

func (stubClassifier) Classify(ctx context.Context, text string) (sentiment.Result, error) {
	switch text {
	case "":
		return sentiment.Result{Label: sentiment.Neutral, Confidence: sentiment.EmptyTextConfidence}, nil
	case "Best tacos in town!":
		return sentiment.Result{Label: sentiment.Positive, Confidence: 0.97}, nil
	case "Cold food, rude staff.":
		return sentiment.Result{Label: sentiment.Negative, Confidence: 0.91}, nil
	default:
		return sentiment.Result{Label: sentiment.Neutral, Confidence: 0.55}, nil
	}
}

var threeReviews = []gmaps.Review{
	{Username: "Alice", Rating: 5, Text: "Best tacos in town!"},
	{Username: "Bob", Rating: 1, Text: "Cold food, rude staff."},
	{Username: "Carol", Rating: 3, Text: ""},
}

func setup(t *testing.T, scraper *stubScraper, config analysis.Config) (analysis.Service, *stubSessions) {
	res, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "analysis",
		DbSchema: db.Schema,
	})
	t.Cleanup(cleanup)

	sessions := &stubSessions{}
	svc := analysis.NewService(
		stubResolver{loc: testLocation},
		sessions,
		scraper,
		stubClassifier{},
		res.DB,
		config,
	)
	return svc, sessions
}

func TestAnalyzePipeline(t *testing.T) {
	scraper := &stubScraper{
		business: gmaps.Business{Name: "Cafe Rio", TotalReviews: 3},
		reviews:  threeReviews,
	}
	svc, sessions := setup(t, scraper, analysis.Config{})

	result, err := svc.Analyze(context.Background(), analysis.AnalyzeRequest{
		LocationURL: testLocation.RawURL,
		Limit:       10,
	})
	require.NoError(t, err)

	require.Equal(t, "Cafe Rio", result.BusinessName)
	require.Equal(t, 3, result.TotalReviews)
	require.InDelta(t, 3.0, result.AverageRating, 0.001)
	require.False(t, result.Cached)

	require.Equal(t, map[sentiment.Label]int{
		sentiment.Positive: 1,
		sentiment.Negative: 1,
		sentiment.Neutral:  1,
	}, result.SentimentSummary)

	total := 0
	for _, n := range result.SentimentSummary {
		total += n
	}
	require.Equal(t, len(result.Reviews), total)

	require.Len(t, result.Reviews, 3)
	require.Equal(t, "Alice", result.Reviews[0].Username)
	require.Equal(t, sentiment.Positive, result.Reviews[0].Sentiment)
	require.Equal(t, sentiment.EmptyTextConfidence, result.Reviews[2].Confidence)

	require.Equal(t, 1, sessions.acquired)
	require.Equal(t, 1, sessions.closed)
}

func TestAnalyzeCacheHitSkipsScrape(t *testing.T) {
	scraper := &stubScraper{
		business: gmaps.Business{Name: "Cafe Rio", TotalReviews: 3, AverageRating: 4.2},
		reviews:  threeReviews,
	}
	svc, _ := setup(t, scraper, analysis.Config{})

	first, err := svc.Analyze(context.Background(), analysis.AnalyzeRequest{
		LocationURL: testLocation.RawURL,
		Limit:       10,
	})
	require.NoError(t, err)
	require.False(t, first.Cached)
	require.Equal(t, 1, scraper.calls)

	second, err := svc.Analyze(context.Background(), analysis.AnalyzeRequest{
		LocationURL: testLocation.RawURL,
		Limit:       10,
	})
	require.NoError(t, err)
	require.True(t, second.Cached)
	require.Equal(t, 1, scraper.calls)

	diff := cmp.Diff(first, second, cmpopts.IgnoreFields(analysis.AnalysisResult{}, "Cached"))
	require.Empty(t, diff)
}

func TestAnalyzeForceUpdateRescrapes(t *testing.T) {
	scraper := &stubScraper{
		business: gmaps.Business{Name: "Cafe Rio", TotalReviews: 3, AverageRating: 4.2},
		reviews:  threeReviews,
	}
	svc, _ := setup(t, scraper, analysis.Config{})

	first, err := svc.Analyze(context.Background(), analysis.AnalyzeRequest{
		LocationURL: testLocation.RawURL,
		Limit:       10,
	})
	require.NoError(t, err)

	second, err := svc.Analyze(context.Background(), analysis.AnalyzeRequest{
		LocationURL: testLocation.RawURL,
		Limit:       10,
		ForceUpdate: true,
	})
	require.NoError(t, err)
	require.Equal(t, 2, scraper.calls)
	require.False(t, second.Cached)

	// stable input, so a forced refresh lands on the same result
	diff := cmp.Diff(first, second, cmpopts.IgnoreFields(analysis.AnalysisResult{}, "Cached"))
	require.Empty(t, diff)
}

func TestAnalyzeRejectsNonPositiveLimit(t *testing.T) {
	scraper := &stubScraper{}
	svc, _ := setup(t, scraper, analysis.Config{})

	for _, limit := range []int{0, -5} {
		_, err := svc.Analyze(context.Background(), analysis.AnalyzeRequest{
			LocationURL: testLocation.RawURL,
			Limit:       limit,
		})
		require.ErrorIs(t, err, analysis.ErrInvalidLimit)
	}
	require.Equal(t, 0, scraper.calls)
}

func TestAnalyzeResolutionFailure(t *testing.T) {
	res, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "analysis",
		DbSchema: db.Schema,
	})
	t.Cleanup(cleanup)

	scraper := &stubScraper{}
	svc := analysis.NewService(
		stubResolver{err: locator.ErrNotALocation},
		&stubSessions{},
		scraper,
		stubClassifier{},
		res.DB,
		analysis.Config{},
	)

	_, err := svc.Analyze(context.Background(), analysis.AnalyzeRequest{
		LocationURL: "https://example.com/not-a-map",
		Limit:       10,
	})
	require.ErrorIs(t, err, analysis.ErrResolution)
	require.Equal(t, 0, scraper.calls)
}

func TestAnalyzeScrapeErrorsAreTyped(t *testing.T) {
	cases := []struct {
		name    string
		scrape  error
		wantErr error
	}{
		{"layout mismatch", gmaps.ErrLayoutMismatch, analysis.ErrScrape},
		{"deadline", context.DeadlineExceeded, analysis.ErrTimeout},
		{"rejected cookies", browser.ErrAuthenticationRequired, analysis.ErrAuthenticationRequired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			scraper := &stubScraper{err: tc.scrape}
			svc, sessions := setup(t, scraper, analysis.Config{})

			_, err := svc.Analyze(context.Background(), analysis.AnalyzeRequest{
				LocationURL: testLocation.RawURL,
				Limit:       10,
			})
			require.ErrorIs(t, err, tc.wantErr)
			// the session budget is released even on failure
			require.Equal(t, sessions.acquired, sessions.closed)
		})
	}
}

func TestAnalyzeZeroReviewsIsValid(t *testing.T) {
	scraper := &stubScraper{
		business: gmaps.Business{Name: "Brand New Cafe", TotalReviews: 0, AverageRating: 0},
	}
	svc, _ := setup(t, scraper, analysis.Config{})

	result, err := svc.Analyze(context.Background(), analysis.AnalyzeRequest{
		LocationURL: testLocation.RawURL,
		Limit:       10,
	})
	require.NoError(t, err)
	require.Empty(t, result.Reviews)
	require.Equal(t, 0, result.TotalReviews)
	require.Equal(t, map[sentiment.Label]int{
		sentiment.Positive: 0,
		sentiment.Negative: 0,
		sentiment.Neutral:  0,
	}, result.SentimentSummary)
}

func TestAnalyzeStoreOutageDegrades(t *testing.T) {
	res, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "analysis",
		DbSchema: db.Schema,
	})
	t.Cleanup(cleanup)
	// a closed handle fails every query, simulating a store outage
	res.DB.Close()

	scraper := &stubScraper{
		business: gmaps.Business{Name: "Cafe Rio", TotalReviews: 3, AverageRating: 4.2},
		reviews:  threeReviews,
	}
	svc := analysis.NewService(
		stubResolver{loc: testLocation},
		&stubSessions{},
		scraper,
		stubClassifier{},
		res.DB,
		analysis.Config{},
	)

	result, err := svc.Analyze(context.Background(), analysis.AnalyzeRequest{
		LocationURL: testLocation.RawURL,
		Limit:       10,
	})
	require.NoError(t, err)
	require.False(t, result.Cached)
	require.Equal(t, "Cafe Rio", result.BusinessName)
	require.Equal(t, 1, scraper.calls)
}

func TestAnalyzeMandatoryStoreOutageFails(t *testing.T) {
	res, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "analysis",
		DbSchema: db.Schema,
	})
	t.Cleanup(cleanup)
	res.DB.Close()

	svc := analysis.NewService(
		stubResolver{loc: testLocation},
		&stubSessions{},
		&stubScraper{business: gmaps.Business{Name: "Cafe Rio"}},
		stubClassifier{},
		res.DB,
		analysis.Config{RequireStore: true},
	)

	_, err := svc.Analyze(context.Background(), analysis.AnalyzeRequest{
		LocationURL: testLocation.RawURL,
		Limit:       10,
	})
	require.ErrorIs(t, err, analysis.ErrStoreUnavailable)
}

func TestAnalyzeFallbackToCacheServesStale(t *testing.T) {
	scraper := &stubScraper{
		business: gmaps.Business{Name: "Cafe Rio", TotalReviews: 3, AverageRating: 4.2},
		reviews:  threeReviews,
	}
	svc, _ := setup(t, scraper, analysis.Config{FallbackToCache: true})

	first, err := svc.Analyze(context.Background(), analysis.AnalyzeRequest{
		LocationURL: testLocation.RawURL,
		Limit:       10,
	})
	require.NoError(t, err)

	scraper.err = gmaps.ErrLayoutMismatch
	stale, err := svc.Analyze(context.Background(), analysis.AnalyzeRequest{
		LocationURL: testLocation.RawURL,
		Limit:       10,
		ForceUpdate: true,
	})
	require.NoError(t, err)
	require.True(t, stale.Cached)

	diff := cmp.Diff(first, stale, cmpopts.IgnoreFields(analysis.AnalysisResult{}, "Cached"))
	require.Empty(t, diff)
}

func TestAnalyzeFallbackDisabledSurfacesError(t *testing.T) {
	scraper := &stubScraper{
		business: gmaps.Business{Name: "Cafe Rio", TotalReviews: 3, AverageRating: 4.2},
		reviews:  threeReviews,
	}
	svc, _ := setup(t, scraper, analysis.Config{})

	_, err := svc.Analyze(context.Background(), analysis.AnalyzeRequest{
		LocationURL: testLocation.RawURL,
		Limit:       10,
	})
	require.NoError(t, err)

	scraper.err = gmaps.ErrLayoutMismatch
	_, err = svc.Analyze(context.Background(), analysis.AnalyzeRequest{
		LocationURL: testLocation.RawURL,
		Limit:       10,
		ForceUpdate: true,
	})
	require.ErrorIs(t, err, analysis.ErrScrape)
}

func TestAnalyzeLimitTruncatesReviews(t *testing.T) {
	scraper := &stubScraper{
		business: gmaps.Business{Name: "Cafe Rio", TotalReviews: 3, AverageRating: 4.2},
		reviews:  threeReviews,
	}
	svc, _ := setup(t, scraper, analysis.Config{})

	result, err := svc.Analyze(context.Background(), analysis.AnalyzeRequest{
		LocationURL: testLocation.RawURL,
		Limit:       2,
	})
	require.NoError(t, err)
	require.Len(t, result.Reviews, 2)
	// the header count is the business total, not the collected count
	require.Equal(t, 3, result.TotalReviews)
}

func TestAnalyzeSessionAcquireFailure(t *testing.T) {
	res, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "analysis",
		DbSchema: db.Schema,
	})
	t.Cleanup(cleanup)

	svc := analysis.NewService(
		stubResolver{loc: testLocation},
		&stubSessions{err: browser.ErrAuthenticationRequired},
		&stubScraper{},
		stubClassifier{},
		res.DB,
		analysis.Config{},
	)

	_, err := svc.Analyze(context.Background(), analysis.AnalyzeRequest{
		LocationURL: testLocation.RawURL,
		Limit:       10,
	})
	require.ErrorIs(t, err, analysis.ErrAuthenticationRequired)
}

func TestAnalyzeErrorsAreNotCached(t *testing.T) {
	scraper := &stubScraper{err: errors.New("tab crashed")}
	svc, _ := setup(t, scraper, analysis.Config{})

	_, err := svc.Analyze(context.Background(), analysis.AnalyzeRequest{
		LocationURL: testLocation.RawURL,
		Limit:       10,
	})
	require.ErrorIs(t, err, analysis.ErrScrape)

	// the failure left nothing behind, the next call scrapes again
	scraper.err = nil
	scraper.business = gmaps.Business{Name: "Cafe Rio", TotalReviews: 3, AverageRating: 4.2}
	scraper.reviews = threeReviews
	result, err := svc.Analyze(context.Background(), analysis.AnalyzeRequest{
		LocationURL: testLocation.RawURL,
		Limit:       10,
	})
	require.NoError(t, err)
	require.False(t, result.Cached)
	require.Equal(t, 2, scraper.calls)
}
