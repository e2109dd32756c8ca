package model

import "time"

// InvoiceRecord is one outstanding billing entry from the external system
// of record. Read-only to the matching core; RecordID lets sinks write the
// outcome back to the source system.
type InvoiceRecord struct {
	RecordID      string    `json:"record_id"`
	InvoiceNumber string    `json:"invoice_number"`
	AmountCents   int64     `json:"amount_cents"`
	Date          time.Time `json:"date"`
	Payee         string    `json:"payee"`
	ResidentName  string    `json:"resident_name"`
	// RawPayee preserves the payee exactly as the source delivered it
	// (may contain markup).
	RawPayee string `json:"raw_payee,omitempty"`
}
