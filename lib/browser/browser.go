package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/mazen160/go-random"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("lib/browser")

// ErrAuthenticationRequired signals that the stored session state is
// missing or was rejected by the target site. Regenerating it is a manual
// operation (see the capture-auth CLI command), never attempted here.
var ErrAuthenticationRequired = errors.New("browser session requires authentication state")

type Config struct {
	Headless bool `json:"headless"`
	// maximum number of concurrently open browser sessions, zero means 1
	MaxSessions int `json:"max_sessions"`
	// path to the serialized cookie blob produced by the capture flow,
	// optional unless RequireAuth is set
	AuthStateFile string `json:"auth_state_file"`
	RequireAuth   bool   `json:"require_auth"`
	// randomized pacing bounds between navigation steps
	MinPauseMs int `json:"min_pause_ms"`
	MaxPauseMs int `json:"max_pause_ms"`
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// masks the most common automation fingerprints before any page script runs
const stealthScript = `
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en', 'es'] });
Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3] });
`

// Manager owns the process-wide browser session budget. Each Acquire opens
// a fresh browser with authentication state installed, each Close tears the
// whole thing down again.
type Manager struct {
	config Config
	slots  chan struct{}
}

func NewManager(config Config) *Manager {
	maxSessions := config.MaxSessions
	if maxSessions <= 0 {
		maxSessions = 1
	}
	if config.MinPauseMs <= 0 {
		config.MinPauseMs = 1000
	}
	if config.MaxPauseMs <= config.MinPauseMs {
		config.MaxPauseMs = config.MinPauseMs + 2000
	}
	return &Manager{
		config: config,
		slots:  make(chan struct{}, maxSessions),
	}
}

type Session struct {
	ctx         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	release     func()
	config      Config
	authed      bool
	closed      bool
}

// Acquire blocks until a session slot is free, then launches a browser with
// anti-detection measures applied and stored authentication state loaded.
// Callers must Close the session on every exit path.
func (m *Manager) Acquire(ctx context.Context) (*Session, error) {
	ctx, span := tracer.Start(ctx, "Acquire")
	defer span.End()

	select {
	case m.slots <- struct{}{}:
	case <-ctx.Done():
		span.SetStatus(codes.Error, ctx.Err().Error())
		return nil, ctx.Err()
	}
	release := func() { <-m.slots }

	state, err := LoadAuthState(m.config.AuthStateFile)
	if err != nil && m.config.RequireAuth {
		release()
		err = fmt.Errorf("%w: %v", ErrAuthenticationRequired, err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if err != nil {
		slog.WarnContext(ctx, "no auth state loaded, scraping anonymously", "err", err)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", m.config.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("lang", "en-US"),
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(defaultUserAgent),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	session := &Session{
		ctx:         tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
		release:     release,
		config:      m.config,
		authed:      len(state) > 0,
	}

	actions := chromedp.Tasks{installStealth()}
	if len(state) > 0 {
		actions = append(actions, installCookies(state))
	}
	if err := chromedp.Run(tabCtx, actions); err != nil {
		session.Close()
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to launch browser session: %w", err)
	}

	slog.InfoContext(ctx, "browser session acquired",
		"headless", m.config.Headless,
		"authenticated", session.authed,
	)
	return session, nil
}

// Context returns the chromedp tab context scraping actions run against.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Authenticated reports whether stored cookies were installed at launch.
func (s *Session) Authenticated() bool {
	return s.authed
}

// Pause sleeps a randomized interval within the configured pacing bounds.
func (s *Session) Pause(ctx context.Context) error {
	ms, err := random.IntRange(s.config.MinPauseMs, s.config.MaxPauseMs)
	if err != nil {
		ms = s.config.MinPauseMs
	}
	select {
	case <-time.After(time.Duration(ms) * time.Millisecond):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close tears down the tab and the browser process and frees the session
// slot. Safe to call more than once.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.cancelTab()
	s.cancelAlloc()
	s.release()
}
