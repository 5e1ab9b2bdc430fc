package models

import (
	"errors"
	"net/url"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Default input column positions when no column name is configured
const (
	DefaultNameColumnIndex    = 0
	DefaultCompanyColumnIndex = 1
)

// SelectorConfig holds the extraction descriptors and column mapping for the target site.
// Descriptor values are opaque CSS selectors; the keys match the JSON blob accepted on upload.
type SelectorConfig struct {
	SearchPageURL     string `json:"SEARCH_PAGE_URL,omitempty" toml:"SEARCH_PAGE_URL" validate:"required,url"`
	NameInput         string `json:"NAME_INPUT_SELECTOR,omitempty" toml:"NAME_INPUT_SELECTOR" validate:"required"`
	CompanyInput      string `json:"COMPANY_INPUT_SELECTOR,omitempty" toml:"COMPANY_INPUT_SELECTOR" validate:"required"`
	SubmitButton      string `json:"SUBMIT_BUTTON_SELECTOR,omitempty" toml:"SUBMIT_BUTTON_SELECTOR" validate:"required"`
	ResultContainer   string `json:"RESULT_CONTAINER_SELECTOR,omitempty" toml:"RESULT_CONTAINER_SELECTOR"`
	EmailItem         string `json:"EMAIL_ITEM_SELECTOR,omitempty" toml:"EMAIL_ITEM_SELECTOR"`
	PhoneRevealButton string `json:"PHONE_REVEAL_BUTTON_SELECTOR,omitempty" toml:"PHONE_REVEAL_BUTTON_SELECTOR"`
	PhoneItem         string `json:"PHONE_ITEM_SELECTOR,omitempty" toml:"PHONE_ITEM_SELECTOR"`
	MultiValueRemove  string `json:"MULTI_VALUE_REMOVE_SELECTOR,omitempty" toml:"MULTI_VALUE_REMOVE_SELECTOR"`

	NameColumn         string `json:"FULL_NAME_COLUMN,omitempty" toml:"FULL_NAME_COLUMN"`
	CompanyColumn      string `json:"COMPANY_NAME_COLUMN,omitempty" toml:"COMPANY_NAME_COLUMN"`
	NameColumnIndex    *int   `json:"FULL_NAME_COLUMN_INDEX,omitempty" toml:"FULL_NAME_COLUMN_INDEX" validate:"omitempty,min=0"`
	CompanyColumnIndex *int   `json:"COMPANY_NAME_COLUMN_INDEX,omitempty" toml:"COMPANY_NAME_COLUMN_INDEX" validate:"omitempty,min=0"`

	CookieDomain string `json:"COOKIE_DOMAIN,omitempty" toml:"COOKIE_DOMAIN"`
}

var selectorValidator = newSelectorValidator()

func newSelectorValidator() *validator.Validate {
	v := validator.New()
	// Report fields by their configuration key rather than the Go field name
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// Validate checks the required descriptors, returning a *ConfigurationError
func (c *SelectorConfig) Validate() error {
	err := selectorValidator.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		fields := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			fields = append(fields, fe.Field())
		}
		return &ConfigurationError{Fields: fields, Err: err}
	}
	return &ConfigurationError{Err: err}
}

// Merge returns c with every non-empty field of override applied
func (c SelectorConfig) Merge(override SelectorConfig) SelectorConfig {
	out := c.Clone()
	set := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	set(&out.SearchPageURL, override.SearchPageURL)
	set(&out.NameInput, override.NameInput)
	set(&out.CompanyInput, override.CompanyInput)
	set(&out.SubmitButton, override.SubmitButton)
	set(&out.ResultContainer, override.ResultContainer)
	set(&out.EmailItem, override.EmailItem)
	set(&out.PhoneRevealButton, override.PhoneRevealButton)
	set(&out.PhoneItem, override.PhoneItem)
	set(&out.MultiValueRemove, override.MultiValueRemove)
	set(&out.NameColumn, override.NameColumn)
	set(&out.CompanyColumn, override.CompanyColumn)
	set(&out.CookieDomain, override.CookieDomain)
	if override.NameColumnIndex != nil {
		out.NameColumnIndex = intPtr(*override.NameColumnIndex)
	}
	if override.CompanyColumnIndex != nil {
		out.CompanyColumnIndex = intPtr(*override.CompanyColumnIndex)
	}
	return out
}

// Clone copies the config including pointer fields
func (c SelectorConfig) Clone() SelectorConfig {
	out := c
	if c.NameColumnIndex != nil {
		out.NameColumnIndex = intPtr(*c.NameColumnIndex)
	}
	if c.CompanyColumnIndex != nil {
		out.CompanyColumnIndex = intPtr(*c.CompanyColumnIndex)
	}
	return out
}

// NameIndex returns the configured name column position
func (c *SelectorConfig) NameIndex() int {
	if c.NameColumnIndex != nil {
		return *c.NameColumnIndex
	}
	return DefaultNameColumnIndex
}

// CompanyIndex returns the configured company column position
func (c *SelectorConfig) CompanyIndex() int {
	if c.CompanyColumnIndex != nil {
		return *c.CompanyColumnIndex
	}
	return DefaultCompanyColumnIndex
}

// ResolveCookieDomain returns the domain injected cookies are scoped to:
// the configured domain, else the search page host with a leading dot.
func (c *SelectorConfig) ResolveCookieDomain() string {
	if c.CookieDomain != "" {
		return c.CookieDomain
	}
	u, err := url.Parse(c.SearchPageURL)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	return "." + strings.TrimPrefix(u.Hostname(), "www.")
}

func intPtr(v int) *int {
	return &v
}
