package extraction

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[a-z]{2,}`)
	phonePattern = regexp.MustCompile(`(\+\d{1,3}[-.\s]?)?\d{6,15}`)
)

// maskChars are the characters the search site uses to obscure unrevealed values
const maskChars = "*•"

// IsMasked reports whether s contains a mask character
func IsMasked(s string) bool {
	return strings.ContainsAny(s, maskChars)
}

// unmasked drops every whitespace-delimited token that contains a mask character,
// so a pattern cannot match the visible digits of a partially hidden value.
func unmasked(text string) string {
	tokens := strings.Fields(text)
	kept := tokens[:0]
	for _, token := range tokens {
		if !IsMasked(token) {
			kept = append(kept, token)
		}
	}
	return strings.Join(kept, " ")
}

// FindEmails returns the email addresses in text, in order of appearance
func FindEmails(text string) []string {
	return emailPattern.FindAllString(unmasked(text), -1)
}

// FindPhones returns the phone numbers in text, in order of appearance
func FindPhones(text string) []string {
	matches := phonePattern.FindAllString(unmasked(text), -1)
	phones := make([]string, 0, len(matches))
	for _, m := range matches {
		if m = strings.TrimSpace(m); m != "" {
			phones = append(phones, m)
		}
	}
	return phones
}

// FindLinks returns the targets of mailto: and tel: anchors in an HTML fragment
func FindLinks(html string) (emails []string, phones []string, err error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, nil, err
	}

	doc.Find(`a[href^="mailto:"]`).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if target := linkTarget(href, "mailto:"); target != "" && !IsMasked(target) {
			emails = append(emails, target)
		}
	})
	doc.Find(`a[href^="tel:"]`).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if target := linkTarget(href, "tel:"); target != "" && !IsMasked(target) {
			phones = append(phones, target)
		}
	})
	return emails, phones, nil
}

func linkTarget(href, scheme string) string {
	target := strings.TrimPrefix(strings.TrimSpace(href), scheme)
	target, _, _ = strings.Cut(target, "?")
	if decoded, err := url.PathUnescape(target); err == nil {
		target = decoded
	}
	return strings.TrimSpace(target)
}

// dedupe removes case-insensitive duplicates and blanks, keeping first occurrences
func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}
