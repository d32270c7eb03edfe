package gmaps

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mapsentiment-backend/lib/browser"
	"mapsentiment-backend/lib/locator"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("lib/scrapers/gmaps")

// ErrLayoutMismatch is returned when the place page loaded but the
// extraction selectors found nothing, which usually means the site markup
// changed underneath us. It carries a diagnostic, it is never retried here.
var ErrLayoutMismatch = errors.New("page layout did not match extraction selectors")

// Business is the header metadata of a place page, read once per scrape.
type Business struct {
	Name          string
	TotalReviews  int
	AverageRating float64
}

// Review is one raw extracted review record, prior to classification.
type Review struct {
	Username string
	Rating   int
	Text     string
	PostedAt string
}

type Options struct {
	// consecutive scroll rounds yielding no new reviews before the list
	// is considered exhausted, zero means 5
	StallBound int
	// bound on the whole navigation + pagination run, zero means 90s
	NavTimeout time.Duration
}

type Scraper struct {
	opts Options
}

func New(opts Options) *Scraper {
	if opts.StallBound <= 0 {
		opts.StallBound = 5
	}
	if opts.NavTimeout <= 0 {
		opts.NavTimeout = time.Second * 90
	}
	return &Scraper{opts: opts}
}

// Scrape opens the resolved location in the session's browser, reads the
// business header once, then pages through the reviews panel until limit
// reviews are collected, the list ends, or the stall bound trips. Fewer
// reviews than limit is a success, not an error.
func (s *Scraper) Scrape(ctx context.Context, session *browser.Session, loc locator.Location, limit int) (Business, []Review, error) {
	ctx, span := tracer.Start(ctx, "Scrape")
	defer span.End()
	span.SetAttributes(
		attribute.String("canonical", loc.Canonical),
		attribute.Int("limit", limit),
	)

	driver := newChromedpDriver(session, s.opts.NavTimeout)
	defer driver.close()

	business, reviews, err := s.run(ctx, driver, loc.FinalURL, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Business{}, nil, err
	}

	span.SetAttributes(attribute.Int("reviews", len(reviews)))
	return business, reviews, nil
}

// headerSnapshot is what the header extraction script reports back.
type headerSnapshot struct {
	Found       bool   `json:"found"`
	Name        string `json:"name"`
	RatingText  string `json:"rating"`
	ReviewsText string `json:"reviews"`
	SignedIn    bool   `json:"signedIn"`
}

// pageDriver is the minimal surface the pagination loop needs from a live
// browser tab. Tests substitute a scripted fake.
type pageDriver interface {
	navigate(ctx context.Context, url string) error
	header(ctx context.Context) (headerSnapshot, error)
	openReviews(ctx context.Context) error
	reviewsHTML(ctx context.Context) (string, error)
	scroll(ctx context.Context) error
	pause(ctx context.Context) error
	authenticated() bool
}

func (s *Scraper) run(ctx context.Context, driver pageDriver, url string, limit int) (Business, []Review, error) {
	if err := driver.navigate(ctx, url); err != nil {
		return Business{}, nil, fmt.Errorf("failed to open location page: %w", err)
	}
	if err := driver.pause(ctx); err != nil {
		return Business{}, nil, err
	}

	snapshot, err := driver.header(ctx)
	if err != nil {
		return Business{}, nil, fmt.Errorf("failed to read page header: %w", err)
	}
	if !snapshot.Found {
		return Business{}, nil, fmt.Errorf("%w: place header missing at %s", ErrLayoutMismatch, url)
	}
	if driver.authenticated() && !snapshot.SignedIn {
		// cookies were installed but the site treats us as signed out,
		// the stored session has expired
		return Business{}, nil, fmt.Errorf("%w: stored cookies were rejected", browser.ErrAuthenticationRequired)
	}

	business := businessFromSnapshot(snapshot)
	slog.InfoContext(ctx, "place located",
		"business", business.Name,
		"total_reviews", business.TotalReviews,
	)

	if err := driver.openReviews(ctx); err != nil {
		return Business{}, nil, fmt.Errorf("failed to open reviews panel: %w", err)
	}
	if err := driver.pause(ctx); err != nil {
		return Business{}, nil, err
	}

	pages := &pager{
		driver:     driver,
		limit:      limit,
		stallBound: s.opts.StallBound,
		seen:       map[string]bool{},
	}
	var reviews []Review
	for {
		batch, done, err := pages.next(ctx)
		if err != nil {
			return Business{}, nil, err
		}
		reviews = append(reviews, batch...)
		if done {
			break
		}
	}

	return business, reviews, nil
}

// pager yields batches of new unique reviews until the limit, the end of
// the list, or the stall bound. It is single-use: a finished pager cannot
// be restarted mid-scrape.
type pager struct {
	driver     pageDriver
	limit      int
	stallBound int
	seen       map[string]bool
	collected  int
	stalls     int
}

func (p *pager) next(ctx context.Context) ([]Review, bool, error) {
	html, err := p.driver.reviewsHTML(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to snapshot reviews panel: %w", err)
	}

	parsed, err := ParseReviews(html)
	if err != nil {
		return nil, false, err
	}

	var fresh []Review
	for _, review := range parsed {
		if p.collected+len(fresh) >= p.limit {
			break
		}
		key := dedupeKey(review)
		if p.seen[key] {
			continue
		}
		p.seen[key] = true
		fresh = append(fresh, review)
	}
	p.collected += len(fresh)

	slog.DebugContext(ctx, "pagination progress",
		"collected", p.collected,
		"limit", p.limit,
		"stalls", p.stalls,
	)

	if p.collected >= p.limit {
		return fresh, true, nil
	}

	if len(fresh) == 0 {
		p.stalls++
		if p.stalls >= p.stallBound {
			slog.InfoContext(ctx, "review list exhausted",
				"collected", p.collected,
				"requested", p.limit,
			)
			return fresh, true, nil
		}
	} else {
		p.stalls = 0
	}

	if err := p.driver.scroll(ctx); err != nil {
		return nil, false, fmt.Errorf("failed to scroll reviews panel: %w", err)
	}
	if err := p.driver.pause(ctx); err != nil {
		return nil, false, err
	}
	return fresh, false, nil
}

// dedupeKey guards against re-extracting the same review across scroll
// iterations. There is no stable external review id, so identity is the
// composite of who said what with which rating.
func dedupeKey(r Review) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("%s|%d|%s", r.Username, r.Rating, r.Text)))
	return hex.EncodeToString(sum[:])
}
