package gmaps

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"mapsentiment-backend/lib/browser"

	"github.com/chromedp/chromedp"
)

// chromedpDriver runs the pagination loop against a live browser tab. The
// whole scrape shares one deadline derived from the session context.
type chromedpDriver struct {
	session *browser.Session
	tab     context.Context
	cancel  context.CancelFunc
}

func newChromedpDriver(session *browser.Session, timeout time.Duration) *chromedpDriver {
	tab, cancel := context.WithTimeout(session.Context(), timeout)
	return &chromedpDriver{
		session: session,
		tab:     tab,
		cancel:  cancel,
	}
}

func (d *chromedpDriver) navigate(_ context.Context, url string) error {
	return chromedp.Run(d.tab,
		chromedp.Navigate(url),
		chromedp.Evaluate(consentScript, nil),
	)
}

func (d *chromedpDriver) header(_ context.Context) (headerSnapshot, error) {
	var raw string
	if err := chromedp.Run(d.tab, chromedp.Evaluate(headerScript, &raw)); err != nil {
		return headerSnapshot{}, err
	}
	var snapshot headerSnapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return headerSnapshot{}, fmt.Errorf("%w: header script returned %q", ErrLayoutMismatch, raw)
	}
	return snapshot, nil
}

func (d *chromedpDriver) openReviews(_ context.Context) error {
	// some place pages render reviews inline without a tab, a missing tab
	// is treated as already open
	var clicked bool
	return chromedp.Run(d.tab, chromedp.Evaluate(openReviewsScript, &clicked))
}

func (d *chromedpDriver) reviewsHTML(_ context.Context) (string, error) {
	var html string
	err := chromedp.Run(d.tab,
		chromedp.Evaluate(expandReviewsScript, nil),
		chromedp.Evaluate(reviewsHTMLScript, &html),
	)
	return html, err
}

func (d *chromedpDriver) scroll(_ context.Context) error {
	return chromedp.Run(d.tab, chromedp.Evaluate(scrollReviewsScript, nil))
}

func (d *chromedpDriver) pause(_ context.Context) error {
	return d.session.Pause(d.tab)
}

func (d *chromedpDriver) authenticated() bool {
	return d.session.Authenticated()
}

func (d *chromedpDriver) close() {
	d.cancel()
}
