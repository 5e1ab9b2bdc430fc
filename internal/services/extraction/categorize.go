package extraction

import (
	"strings"

	"github.com/ternarybob/enricher/internal/models"
)

// OverflowDelimiter joins the values beyond the first of each category
const OverflowDelimiter = "; "

// DefaultPersonalDomains are the consumer mail providers treated as personal addresses
var DefaultPersonalDomains = []string{
	"gmail.com", "yahoo.com", "hotmail.com", "outlook.com",
	"aol.com", "icloud.com", "protonmail.com", "zoho.com",
}

// Categorizer splits extracted emails into personal and work addresses by domain
type Categorizer struct {
	personal map[string]struct{}
}

// NewCategorizer builds a categorizer over the default domains plus extra
func NewCategorizer(extra ...string) *Categorizer {
	c := &Categorizer{personal: make(map[string]struct{})}
	for _, d := range DefaultPersonalDomains {
		c.personal[d] = struct{}{}
	}
	for _, d := range extra {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			c.personal[d] = struct{}{}
		}
	}
	return c
}

// IsPersonal reports whether the address belongs to a personal mail provider
func (c *Categorizer) IsPersonal(email string) bool {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return false
	}
	_, ok := c.personal[strings.ToLower(email[at+1:])]
	return ok
}

// Categorize partitions a result. The first of each category is primary; the rest
// overflow into the "other" field.
func (c *Categorizer) Categorize(result *models.ExtractionResult) models.Enrichment {
	var personal, work []string
	for _, email := range dedupe(result.Emails) {
		if c.IsPersonal(email) {
			personal = append(personal, email)
		} else {
			work = append(work, email)
		}
	}
	phones := dedupe(result.Phones)

	var out models.Enrichment
	out.PersonalEmail, out.OtherPersonalEmails = split(personal)
	out.WorkEmail, out.OtherWorkEmails = split(work)
	out.WorkEmailFound = out.WorkEmail != ""
	out.PhoneNumber, out.OtherPhoneNumbers = split(phones)
	return out
}

func split(values []string) (first, rest string) {
	if len(values) == 0 {
		return "", ""
	}
	return values[0], strings.Join(values[1:], OverflowDelimiter)
}
