package browser

import (
	"strings"

	"github.com/ternarybob/enricher/internal/models"
)

// ParseCookies splits a raw "a=1; b=2" cookie string into cookies scoped to domain.
// Each pair splits on its first '='; empty names are skipped.
func ParseCookies(raw, domain string) []models.Cookie {
	var cookies []models.Cookie
	for _, pair := range strings.Split(raw, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, value, _ := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		cookies = append(cookies, models.Cookie{
			Name:   name,
			Value:  strings.TrimSpace(value),
			Domain: domain,
			Path:   "/",
		})
	}
	return cookies
}
