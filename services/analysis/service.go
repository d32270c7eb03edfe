package analysis

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mapsentiment-backend/lib/browser"
	"mapsentiment-backend/lib/locator"
	"mapsentiment-backend/lib/scrapers/gmaps"
	"mapsentiment-backend/lib/sentiment"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/analysis")
var meter = otel.Meter("services/analysis")
var scrapeCounter, _ = meter.Int64Counter("scrape_invocations")
var cacheHitCounter, _ = meter.Int64Counter("cache_hits")

// Resolver turns a raw location url into a canonical location.
type Resolver interface {
	Resolve(ctx context.Context, rawUrl string) (locator.Location, error)
}

// Session is a scoped browser session. The orchestrator only ever closes
// it, scraping specifics live behind Scraper.
type Session interface {
	Close()
}

// SessionSource hands out browser sessions within the process budget.
type SessionSource interface {
	Acquire(ctx context.Context) (Session, error)
}

// Scraper extracts the business header and raw reviews from a location.
type Scraper interface {
	Scrape(ctx context.Context, session Session, loc locator.Location, limit int) (gmaps.Business, []gmaps.Review, error)
}

type Config struct {
	// fail the pipeline on store outages instead of degrading to misses
	RequireStore bool `json:"require_store"`
	// cache entries older than this count as misses, zero means entries
	// only ever refresh through force_update
	MaxCacheAgeSeconds int `json:"max_cache_age_seconds"`
	// classification fan-out bound
	Workers int `json:"workers"`
	// serve the last known good entry when a refresh fails, off by
	// default: failures are surfaced, not masked
	FallbackToCache bool `json:"fallback_to_cache"`
}

type Service struct {
	resolver   Resolver
	sessions   SessionSource
	scraper    Scraper
	classifier sentiment.Classifier
	store      *Store
	config     Config
}

func NewService(
	resolver Resolver,
	sessions SessionSource,
	scraper Scraper,
	classifier sentiment.Classifier,
	database *sql.DB,
	config Config,
) Service {
	return Service{
		resolver:   resolver,
		sessions:   sessions,
		scraper:    scraper,
		classifier: classifier,
		store: NewStore(
			database,
			config.RequireStore,
			time.Duration(config.MaxCacheAgeSeconds)*time.Second,
		),
		config: config,
	}
}

type AnalyzeRequest struct {
	LocationURL string
	Limit       int
	ForceUpdate bool
}

// Analyze is the single entry point of the pipeline:
// resolve -> cache check -> scrape -> classify -> aggregate -> write back.
// A cache hit with ForceUpdate unset short-circuits everything after the
// lookup. Failures are typed (see errors.go), never cached, and never
// silently replaced with stale data unless FallbackToCache opts in.
func (s Service) Analyze(ctx context.Context, req AnalyzeRequest) (AnalysisResult, error) {
	ctx, span := tracer.Start(ctx, "Analyze")
	defer span.End()
	span.SetAttributes(
		attribute.String("location_url", req.LocationURL),
		attribute.Int("limit", req.Limit),
		attribute.Bool("force_update", req.ForceUpdate),
	)

	if req.Limit <= 0 {
		err := fmt.Errorf("%w: got %d", ErrInvalidLimit, req.Limit)
		span.SetStatus(codes.Error, err.Error())
		return AnalysisResult{}, err
	}

	loc, err := s.resolver.Resolve(ctx, req.LocationURL)
	if err != nil {
		err = mapResolveError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return AnalysisResult{}, err
	}
	key := loc.CacheKey()
	span.SetAttributes(attribute.String("cache_key", key))

	if !req.ForceUpdate {
		cached, hit, err := s.store.Get(ctx, key)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return AnalysisResult{}, err
		}
		if hit {
			cacheHitCounter.Add(ctx, 1)
			slog.InfoContext(ctx, "serving cached analysis", "key", key)
			cached.Cached = true
			return cached, nil
		}
	}

	result, err := s.refresh(ctx, loc, req.Limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		if s.config.FallbackToCache {
			if fallback, hit, ferr := s.store.Get(ctx, key); ferr == nil && hit {
				slog.WarnContext(ctx, "refresh failed, serving last known good entry",
					"key", key, "err", err)
				fallback.Cached = true
				return fallback, nil
			}
		}
		return AnalysisResult{}, err
	}

	if err := s.store.Put(ctx, key, loc.FinalURL, result); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return AnalysisResult{}, err
	}
	return result, nil
}

// refresh runs the scrape -> classify -> aggregate leg of the pipeline.
func (s Service) refresh(ctx context.Context, loc locator.Location, limit int) (AnalysisResult, error) {
	session, err := s.sessions.Acquire(ctx)
	if err != nil {
		return AnalysisResult{}, mapStageError(err)
	}
	defer session.Close()

	scrapeCounter.Add(ctx, 1)
	business, reviews, err := s.scraper.Scrape(ctx, session, loc, limit)
	if err != nil {
		return AnalysisResult{}, mapStageError(err)
	}

	texts := make([]string, len(reviews))
	for i, review := range reviews {
		texts[i] = review.Text
	}
	// the pool drains completely before aggregation, a partially
	// classified set is never visible downstream
	scores, err := sentiment.ClassifyAll(ctx, s.classifier, texts, s.config.Workers)
	if err != nil {
		return AnalysisResult{}, mapStageError(err)
	}

	return Aggregate(business, reviews, scores), nil
}

func mapResolveError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(err, locator.ErrNotALocation) || errors.Is(err, locator.ErrUnreachable) {
		return fmt.Errorf("%w: %v", ErrResolution, err)
	}
	return fmt.Errorf("%w: %v", ErrResolution, err)
}

func mapStageError(err error) error {
	switch {
	case errors.Is(err, browser.ErrAuthenticationRequired):
		return err
	case errors.Is(err, ErrTimeout):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case errors.Is(err, gmaps.ErrLayoutMismatch):
		return fmt.Errorf("%w: %v", ErrScrape, err)
	default:
		return fmt.Errorf("%w: %v", ErrScrape, err)
	}
}

// BrowserSessions adapts a browser.Manager to the SessionSource interface.
func BrowserSessions(manager *browser.Manager) SessionSource {
	return browserSessionSource{manager: manager}
}

type browserSessionSource struct {
	manager *browser.Manager
}

func (s browserSessionSource) Acquire(ctx context.Context) (Session, error) {
	return s.manager.Acquire(ctx)
}

// GmapsScraper adapts the chromedp-backed scraper to the Scraper interface.
func GmapsScraper(scraper *gmaps.Scraper) Scraper {
	return gmapsScraper{inner: scraper}
}

type gmapsScraper struct {
	inner *gmaps.Scraper
}

func (s gmapsScraper) Scrape(ctx context.Context, session Session, loc locator.Location, limit int) (gmaps.Business, []gmaps.Review, error) {
	browserSession, ok := session.(*browser.Session)
	if !ok {
		return gmaps.Business{}, nil, fmt.Errorf("session %T is not a browser session", session)
	}
	return s.inner.Scrape(ctx, browserSession, loc, limit)
}
