package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/enricher/internal/models"
)

// KeyBackspace is the key sequence for a single Backspace press
const KeyBackspace = "\b"

// Page is the browser capability the extraction engine drives.
// Selectors are opaque descriptors passed through to the engine.
type Page interface {
	Navigate(ctx context.Context, url string) error
	// IsVisible waits up to timeout for the first match to be visible
	IsVisible(ctx context.Context, selector string, timeout time.Duration) bool
	// Texts returns the visible text of every match, in document order
	Texts(ctx context.Context, selector string) ([]string, error)
	// Text returns the visible text of the first match
	Text(ctx context.Context, selector string) (string, error)
	// HTML returns the outer HTML of the first match
	HTML(ctx context.Context, selector string) (string, error)
	Value(ctx context.Context, selector string) (string, error)
	Focus(ctx context.Context, selector string) error
	Click(ctx context.Context, selector string) error
	// ClickAndWaitNavigation clicks and waits up to timeout for a document load.
	// A timeout is not an error; navigated reports whether a load was seen.
	ClickAndWaitNavigation(ctx context.Context, selector string, timeout time.Duration) (navigated bool, err error)
	// Press sends keys to the focused element
	Press(ctx context.Context, keys string) error
}

// BrowserSession owns one browser for the lifetime of a job
type BrowserSession interface {
	Page() Page
	SetCookies(ctx context.Context, cookies []models.Cookie) error
	Close() error
}
