// Package extraction drives the search page for one record and pulls contact
// details out of the result.
package extraction

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/enricher/internal/interfaces"
	"github.com/ternarybob/enricher/internal/models"
)

// Query is the search input for one record
type Query struct {
	Name    string
	Company string
}

// Engine runs searches and extractions against one page
type Engine struct {
	page      interfaces.Page
	selectors models.SelectorConfig
	timings   Timings
	logger    arbor.ILogger
}

// NewEngine creates an engine. Selectors are expected to be validated already.
func NewEngine(page interfaces.Page, selectors models.SelectorConfig, timings Timings, logger arbor.ILogger) *Engine {
	return &Engine{
		page:      page,
		selectors: selectors,
		timings:   timings,
		logger:    logger,
	}
}

// Search resets the form (unless first), types the query and submits it
func (e *Engine) Search(ctx context.Context, query Query, first bool) error {
	if !first {
		if err := e.reset(ctx); err != nil {
			return fmt.Errorf("failed to reset search form: %w", err)
		}
	}

	if err := e.typeInto(ctx, e.selectors.NameInput, query.Name); err != nil {
		return fmt.Errorf("failed to enter name: %w", err)
	}
	if err := e.typeInto(ctx, e.selectors.CompanyInput, query.Company); err != nil {
		return fmt.Errorf("failed to enter company: %w", err)
	}

	navigated, err := e.page.ClickAndWaitNavigation(ctx, e.selectors.SubmitButton, e.timings.NavigationTimeout)
	if err != nil {
		return fmt.Errorf("failed to submit search: %w", err)
	}
	if !navigated {
		e.logger.Debug().Msg("No navigation after submit, continuing")
	}

	return sleep(ctx, e.timings.SubmitSettle.Pick())
}

// reset clears the company tag and backspaces the name input
func (e *Engine) reset(ctx context.Context) error {
	if remove := e.selectors.MultiValueRemove; remove != "" && e.page.IsVisible(ctx, remove, e.timings.Probe) {
		if err := e.page.Click(ctx, remove); err != nil {
			return err
		}
	}

	value, err := e.page.Value(ctx, e.selectors.NameInput)
	if err != nil {
		return err
	}
	if value != "" {
		if err := e.page.Focus(ctx, e.selectors.NameInput); err != nil {
			return err
		}
		for range []rune(value) {
			if err := e.page.Press(ctx, interfaces.KeyBackspace); err != nil {
				return err
			}
			if err := sleep(ctx, e.timings.Backspace.Pick()); err != nil {
				return err
			}
		}
	}

	return sleep(ctx, e.timings.ClearSettle.Pick())
}

func (e *Engine) typeInto(ctx context.Context, selector, text string) error {
	if err := e.page.Focus(ctx, selector); err != nil {
		return err
	}
	for _, r := range text {
		if err := e.page.Press(ctx, string(r)); err != nil {
			return err
		}
		if err := sleep(ctx, e.timings.Keystroke.Pick()); err != nil {
			return err
		}
	}
	return nil
}

// Extract reads the result of the last search. The dedicated locators are tried
// first; the container text is scanned only when they yield nothing.
func (e *Engine) Extract(ctx context.Context) (*models.ExtractionResult, error) {
	result := &models.ExtractionResult{}

	if item := e.selectors.EmailItem; item != "" && e.page.IsVisible(ctx, item, e.timings.EmailVisible) {
		texts, err := e.page.Texts(ctx, item)
		if err != nil {
			return nil, err
		}
		for _, text := range texts {
			if text = strings.TrimSpace(text); text != "" && !IsMasked(text) {
				result.Emails = append(result.Emails, text)
			}
		}
	}

	if reveal := e.selectors.PhoneRevealButton; reveal != "" && e.page.IsVisible(ctx, reveal, e.timings.Probe) {
		if err := e.page.Click(ctx, reveal); err != nil {
			return nil, fmt.Errorf("failed to reveal phone: %w", err)
		}
		if err := sleep(ctx, e.timings.RevealWait.Pick()); err != nil {
			return nil, err
		}
	}

	if item := e.selectors.PhoneItem; item != "" && e.page.IsVisible(ctx, item, e.timings.Probe) {
		text, err := e.page.Text(ctx, item)
		if err != nil {
			return nil, err
		}
		if text = strings.TrimSpace(text); text != "" && !IsMasked(text) {
			result.Phones = append(result.Phones, text)
		}
	}

	if !result.IsEmpty() {
		result.Source = models.ExtractionSourceLocators
		return result, nil
	}

	container := e.selectors.ResultContainer
	if container == "" || !e.page.IsVisible(ctx, container, e.timings.ContainerVisible) {
		return result, nil
	}

	text, err := e.page.Text(ctx, container)
	if err != nil {
		return nil, err
	}
	result.Emails = FindEmails(text)
	result.Phones = FindPhones(text)

	html, err := e.page.HTML(ctx, container)
	if err != nil {
		e.logger.Warn().Err(err).Msg("Failed to read result container html")
	} else if emails, phones, err := FindLinks(html); err != nil {
		e.logger.Warn().Err(err).Msg("Failed to parse result container html")
	} else {
		result.Emails = append(result.Emails, emails...)
		result.Phones = append(result.Phones, phones...)
	}

	result.Emails = dedupe(result.Emails)
	result.Phones = dedupe(result.Phones)
	if !result.IsEmpty() {
		result.Source = models.ExtractionSourceFallback
	}
	return result, nil
}
