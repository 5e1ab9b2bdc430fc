package enrichment

import (
	"github.com/ternarybob/enricher/internal/models"
	"github.com/ternarybob/enricher/internal/table"
)

// Reserved output columns. Only those present in the input header are written.
const (
	ColumnPersonalEmail       = "Personal Email"
	ColumnOtherPersonalEmails = "Other Personal Emails"
	ColumnWorkEmail           = "Work Email"
	ColumnWorkEmailStatus     = "Work Email Status"
	ColumnOtherWorkEmails     = "Other Work Emails"
	ColumnPhoneNumber         = "Phone Number"
	ColumnOtherPhoneNumbers   = "Other Phone Numbers"
	ColumnNotes               = "Notes"
)

// Merge writes an enrichment into the record's reserved columns.
// Empty values never overwrite what the record already holds, and a work email
// already in the record is never marked Not Found.
func Merge(rec table.Record, e models.Enrichment) {
	setIfPresent(rec, ColumnPersonalEmail, e.PersonalEmail)
	setIfPresent(rec, ColumnOtherPersonalEmails, e.OtherPersonalEmails)
	setIfPresent(rec, ColumnWorkEmail, e.WorkEmail)
	setIfPresent(rec, ColumnOtherWorkEmails, e.OtherWorkEmails)
	setIfPresent(rec, ColumnPhoneNumber, e.PhoneNumber)
	setIfPresent(rec, ColumnOtherPhoneNumbers, e.OtherPhoneNumbers)

	switch {
	case e.WorkEmailFound:
		rec.Set(ColumnWorkEmailStatus, models.WorkEmailStatusFound)
	case rec.Get(ColumnWorkEmail) != "":
		// A work email kept from the input keeps its status
	default:
		rec.Set(ColumnWorkEmailStatus, models.WorkEmailStatusNotFound)
	}
}

// MarkFailed records a per-record error in the notes column
func MarkFailed(rec table.Record, err *models.RecordError) {
	rec.Set(ColumnNotes, err.Note())
}

func setIfPresent(rec table.Record, column, value string) {
	if value != "" {
		rec.Set(column, value)
	}
}
