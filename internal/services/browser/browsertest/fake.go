// Package browsertest provides in-memory Page and BrowserSession doubles.
package browsertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/enricher/internal/interfaces"
	"github.com/ternarybob/enricher/internal/models"
)

// Page is a scripted page. Selectors not listed as visible are treated as absent.
type Page struct {
	mu sync.Mutex

	Visible map[string]bool
	TextsBy map[string][]string
	TextBy  map[string]string
	HTMLBy  map[string]string
	Values  map[string]string
	// Errors makes any operation on the selector fail
	Errors map[string]error
	// Navigates reports whether ClickAndWaitNavigation observes a load
	Navigates bool
	// OnSubmit runs after each ClickAndWaitNavigation, e.g. to load the next result
	OnSubmit func(p *Page)

	focused   string
	Typed     map[string]string
	Clicks    []string
	Visited   []string
	Backspace int
}

// NewPage returns an empty page
func NewPage() *Page {
	return &Page{
		Visible: make(map[string]bool),
		TextsBy: make(map[string][]string),
		TextBy:  make(map[string]string),
		HTMLBy:  make(map[string]string),
		Values:  make(map[string]string),
		Errors:  make(map[string]error),
		Typed:   make(map[string]string),
	}
}

func (p *Page) failure(selector string) error {
	if err, ok := p.Errors[selector]; ok {
		return err
	}
	return nil
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failure(url); err != nil {
		return err
	}
	p.Visited = append(p.Visited, url)
	return nil
}

func (p *Page) IsVisible(ctx context.Context, selector string, timeout time.Duration) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return selector != "" && p.Visible[selector]
}

func (p *Page) Texts(ctx context.Context, selector string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failure(selector); err != nil {
		return nil, err
	}
	return append([]string(nil), p.TextsBy[selector]...), nil
}

func (p *Page) Text(ctx context.Context, selector string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failure(selector); err != nil {
		return "", err
	}
	return p.TextBy[selector], nil
}

func (p *Page) HTML(ctx context.Context, selector string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failure(selector); err != nil {
		return "", err
	}
	return p.HTMLBy[selector], nil
}

func (p *Page) Value(ctx context.Context, selector string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failure(selector); err != nil {
		return "", err
	}
	return p.Values[selector], nil
}

func (p *Page) Focus(ctx context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failure(selector); err != nil {
		return err
	}
	p.focused = selector
	return nil
}

func (p *Page) Click(ctx context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failure(selector); err != nil {
		return err
	}
	p.Clicks = append(p.Clicks, selector)
	return nil
}

func (p *Page) ClickAndWaitNavigation(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	if err := p.Click(ctx, selector); err != nil {
		return false, err
	}
	p.mu.Lock()
	onSubmit := p.OnSubmit
	navigated := p.Navigates
	p.mu.Unlock()
	if onSubmit != nil {
		onSubmit(p)
	}
	return navigated, nil
}

// Press appends keys to the focused input's value; Backspace removes one rune
func (p *Page) Press(ctx context.Context, keys string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.focused == "" {
		return fmt.Errorf("no element focused")
	}
	if keys == interfaces.KeyBackspace {
		p.Backspace++
		runes := []rune(p.Values[p.focused])
		if len(runes) > 0 {
			p.Values[p.focused] = string(runes[:len(runes)-1])
		}
		return nil
	}
	p.Values[p.focused] += keys
	p.Typed[p.focused] += keys
	return nil
}

// Lock runs fn while holding the page lock, for OnSubmit scripts
func (p *Page) Lock(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn()
}

// Session wraps a Page
type Session struct {
	FakePage  *Page
	Cookies   []models.Cookie
	CookieErr error
	Closed    bool
}

func NewSession(page *Page) *Session {
	return &Session{FakePage: page}
}

func (s *Session) Page() interfaces.Page {
	return s.FakePage
}

func (s *Session) SetCookies(ctx context.Context, cookies []models.Cookie) error {
	if s.CookieErr != nil {
		return s.CookieErr
	}
	s.Cookies = append(s.Cookies, cookies...)
	return nil
}

func (s *Session) Close() error {
	s.Closed = true
	return nil
}

// TypedInto returns the keys typed into selector, ignoring backspaces
func (p *Page) TypedInto(selector string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Typed[selector]
}
