package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// Page implements interfaces.Page on a chromedp tab.
// Every call is bounded by the operation timeout and by the caller's ctx.
type Page struct {
	ctx       context.Context
	timeout   time.Duration
	navEvents chan struct{}
}

// operation derives a chromedp context from the tab that also ends when ctx does
func (p *Page) operation(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 || timeout > p.timeout {
		timeout = p.timeout
	}
	runCtx, cancel := context.WithTimeout(p.ctx, timeout)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := p.operation(ctx, p.timeout)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := p.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (p *Page) IsVisible(ctx context.Context, selector string, timeout time.Duration) bool {
	if selector == "" {
		return false
	}
	runCtx, cancel := p.operation(ctx, timeout)
	defer cancel()
	return chromedp.Run(runCtx, chromedp.WaitVisible(selector, chromedp.ByQuery)) == nil
}

func (p *Page) Texts(ctx context.Context, selector string) ([]string, error) {
	var texts []string
	if err := p.run(ctx, chromedp.Evaluate(textsScript(selector), &texts)); err != nil {
		return nil, fmt.Errorf("read texts %s: %w", selector, err)
	}
	return texts, nil
}

func (p *Page) Text(ctx context.Context, selector string) (string, error) {
	var text string
	if err := p.run(ctx, chromedp.Text(selector, &text, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read text %s: %w", selector, err)
	}
	return text, nil
}

func (p *Page) HTML(ctx context.Context, selector string) (string, error) {
	var html string
	if err := p.run(ctx, chromedp.OuterHTML(selector, &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read html %s: %w", selector, err)
	}
	return html, nil
}

func (p *Page) Value(ctx context.Context, selector string) (string, error) {
	var value string
	if err := p.run(ctx, chromedp.Value(selector, &value, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read value %s: %w", selector, err)
	}
	return value, nil
}

func (p *Page) Focus(ctx context.Context, selector string) error {
	if err := p.run(ctx, chromedp.Focus(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("focus %s: %w", selector, err)
	}
	return nil
}

func (p *Page) Click(ctx context.Context, selector string) error {
	if err := p.run(ctx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	return nil
}

func (p *Page) ClickAndWaitNavigation(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	p.drainNavigation()

	if err := p.Click(ctx, selector); err != nil {
		return false, err
	}

	return p.waitNavigation(ctx, timeout)
}

// drainNavigation drops a load event left over from an earlier navigation
func (p *Page) drainNavigation() {
	select {
	case <-p.navEvents:
	default:
	}
}

// waitNavigation reports whether a load event arrives within timeout.
// A timeout is not an error: some result pages update without navigating.
func (p *Page) waitNavigation(ctx context.Context, timeout time.Duration) (bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-p.navEvents:
		return true, nil
	case <-timer.C:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (p *Page) Press(ctx context.Context, keys string) error {
	if err := p.run(ctx, chromedp.KeyEvent(keys)); err != nil {
		return fmt.Errorf("press keys: %w", err)
	}
	return nil
}

// textsScript returns the innerText of every match of selector
func textsScript(selector string) string {
	quoted, _ := json.Marshal(selector)
	return fmt.Sprintf(`Array.from(document.querySelectorAll(%s)).map(e => (e.innerText || e.textContent || "").trim())`, quoted)
}
