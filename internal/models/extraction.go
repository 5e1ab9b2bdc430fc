package models

// ExtractionSource names the extraction path that produced a result
type ExtractionSource string

const (
	ExtractionSourceNone     ExtractionSource = ""
	ExtractionSourceLocators ExtractionSource = "locators"
	ExtractionSourceFallback ExtractionSource = "fallback"
)

// ExtractionResult holds the raw emails and phones found for one record, in page order
type ExtractionResult struct {
	Emails []string
	Phones []string
	Source ExtractionSource
}

// IsEmpty reports whether nothing was extracted
func (r *ExtractionResult) IsEmpty() bool {
	return len(r.Emails) == 0 && len(r.Phones) == 0
}

// Enrichment is an ExtractionResult partitioned into the output fields
type Enrichment struct {
	PersonalEmail       string
	OtherPersonalEmails string
	WorkEmail           string
	OtherWorkEmails     string
	WorkEmailFound      bool
	PhoneNumber         string
	OtherPhoneNumbers   string
}

// Output column values written for work email status
const (
	WorkEmailStatusFound    = "Found"
	WorkEmailStatusNotFound = "Not Found"
)

// Cookie is one name=value pair scoped to the target domain
type Cookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain"`
	Path   string `json:"path"`
}
