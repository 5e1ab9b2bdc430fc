package browser

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/enricher/internal/interfaces"
	"github.com/ternarybob/enricher/internal/models"
)

// DefaultOperationTimeout bounds a single browser operation
const DefaultOperationTimeout = 60 * time.Second

// Config holds the launch options of a worker's browser
type Config struct {
	Headless         bool
	ProfileDir       string
	UserAgent        string
	OperationTimeout time.Duration
	NoSandbox        bool
}

// Session is one chromedp browser on a persistent profile, owned by a single job
type Session struct {
	allocatorCancel context.CancelFunc
	browserCancel   context.CancelFunc
	page            *Page
	logger          arbor.ILogger
}

// NewSession launches the browser and checks it responds
func NewSession(config Config, logger arbor.ILogger) (*Session, error) {
	if config.OperationTimeout <= 0 {
		config.OperationTimeout = DefaultOperationTimeout
	}

	allocatorOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", config.Headless),
		chromedp.Flag("disable-gpu", config.Headless),
		chromedp.Flag("no-sandbox", config.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(1366, 900),
	)
	if config.UserAgent != "" {
		allocatorOpts = append(allocatorOpts, chromedp.UserAgent(config.UserAgent))
	}
	if config.ProfileDir != "" {
		if err := os.MkdirAll(config.ProfileDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create browser profile directory: %w", err)
		}
		allocatorOpts = append(allocatorOpts, chromedp.UserDataDir(config.ProfileDir))
	}

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), allocatorOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)

	startTime := time.Now()

	// The first Run allocates the browser and binds its lifetime to that context
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocatorCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	testCtx, testCancel := context.WithTimeout(browserCtx, config.OperationTimeout)
	defer testCancel()

	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		allocatorCancel()
		return nil, fmt.Errorf("browser failed startup test: %w", err)
	}

	p := &Page{
		ctx:       browserCtx,
		timeout:   config.OperationTimeout,
		navEvents: make(chan struct{}, 1),
	}
	chromedp.ListenTarget(browserCtx, func(ev interface{}) {
		if _, ok := ev.(*page.EventDomContentEventFired); ok {
			select {
			case p.navEvents <- struct{}{}:
			default:
			}
		}
	})

	logger.Info().
		Bool("headless", config.Headless).
		Str("profile_dir", config.ProfileDir).
		Dur("startup_time", time.Since(startTime)).
		Msg("Browser session started")

	return &Session{
		allocatorCancel: allocatorCancel,
		browserCancel:   browserCancel,
		page:            p,
		logger:          logger,
	}, nil
}

// Open adapts NewSession to the session factory signature the worker uses
func Open(config Config, logger arbor.ILogger) (interfaces.BrowserSession, error) {
	return NewSession(config, logger)
}

func (s *Session) Page() interfaces.Page {
	return s.page
}

// SetCookies injects cookies before the first navigation to the search site.
// Individual failures are logged and skipped.
func (s *Session) SetCookies(ctx context.Context, cookies []models.Cookie) error {
	if len(cookies) == 0 {
		return nil
	}

	runCtx, cancel := s.page.operation(ctx, s.page.timeout)
	defer cancel()

	if err := chromedp.Run(runCtx, network.Enable()); err != nil {
		return fmt.Errorf("failed to enable network domain: %w", err)
	}

	injected := 0
	err := chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, cookie := range cookies {
			if err := network.SetCookie(cookie.Name, cookie.Value).
				WithDomain(cookie.Domain).
				WithPath(cookie.Path).
				Do(ctx); err != nil {
				s.logger.Warn().
					Err(err).
					Str("cookie_name", cookie.Name).
					Str("domain", cookie.Domain).
					Msg("Failed to inject cookie")
				continue
			}
			injected++
		}
		return nil
	}))
	if err != nil {
		return fmt.Errorf("failed to inject cookies: %w", err)
	}

	s.logger.Debug().
		Int("injected", injected).
		Int("total", len(cookies)).
		Msg("Cookies injected")
	return nil
}

// Close shuts the browser down. Safe to call more than once.
func (s *Session) Close() error {
	if s.browserCancel != nil {
		s.browserCancel()
		s.browserCancel = nil
	}
	if s.allocatorCancel != nil {
		s.allocatorCancel()
		s.allocatorCancel = nil
	}
	return nil
}
