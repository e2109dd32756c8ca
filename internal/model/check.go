// Package model defines the data types shared across the reconciliation
// pipeline: oracle extractions, consensus check records, invoices, match
// results, and run ledger entities.
package model

import "time"

// FieldKey identifies one extracted check field.
type FieldKey string

const (
	FieldCheckNumber     FieldKey = "check_number"
	FieldAmount          FieldKey = "amount"
	FieldDate            FieldKey = "date"
	FieldPayee           FieldKey = "payee"
	FieldRemitter        FieldKey = "remitter"
	FieldRemitterAddress FieldKey = "remitter_address"
	FieldMemo            FieldKey = "memo"
	FieldBankName        FieldKey = "bank_name"
)

// AllFields returns every check field key in canonical order.
func AllFields() []FieldKey {
	return []FieldKey{
		FieldCheckNumber,
		FieldAmount,
		FieldDate,
		FieldPayee,
		FieldRemitter,
		FieldRemitterAddress,
		FieldMemo,
		FieldBankName,
	}
}

// CheckImage is one scanned check ready for extraction.
type CheckImage struct {
	// Name identifies the image's origin (file path, FTP entry, PDF page).
	Name      string
	MediaType string // "image/png" or "image/jpeg"
	Data      []byte
}

// RawExtraction is a single oracle response for one check image. Every
// field is untrusted free text exactly as the oracle produced it; empty
// means the oracle did not report the field.
type RawExtraction struct {
	CheckNumber     string `json:"check_number"`
	Amount          string `json:"amount"`
	Date            string `json:"date"`
	Payee           string `json:"payee"`
	Remitter        string `json:"remitter"`
	RemitterAddress string `json:"remitter_address"`
	Memo            string `json:"memo"`
	BankName        string `json:"bank_name"`

	// SampleIndex records which of the N oracle calls produced this response.
	SampleIndex int `json:"-"`
	// RawText marks a payload recovered from annotated free text rather
	// than a clean JSON body.
	RawText bool `json:"-"`
}

// Value returns the raw string for a field key.
func (r *RawExtraction) Value(key FieldKey) string {
	switch key {
	case FieldCheckNumber:
		return r.CheckNumber
	case FieldAmount:
		return r.Amount
	case FieldDate:
		return r.Date
	case FieldPayee:
		return r.Payee
	case FieldRemitter:
		return r.Remitter
	case FieldRemitterAddress:
		return r.RemitterAddress
	case FieldMemo:
		return r.Memo
	case FieldBankName:
		return r.BankName
	}
	return ""
}

// Set assigns the raw string for a field key. Unknown keys are ignored.
func (r *RawExtraction) Set(key FieldKey, value string) {
	switch key {
	case FieldCheckNumber:
		r.CheckNumber = value
	case FieldAmount:
		r.Amount = value
	case FieldDate:
		r.Date = value
	case FieldPayee:
		r.Payee = value
	case FieldRemitter:
		r.Remitter = value
	case FieldRemitterAddress:
		r.RemitterAddress = value
	case FieldMemo:
		r.Memo = value
	case FieldBankName:
		r.BankName = value
	}
}

// Field is a consensus-resolved free-text check field. Agreement is the
// fraction of oracle samples whose normalized value matched the winner.
type Field struct {
	Value     string  `json:"value,omitempty"`
	Agreement float64 `json:"agreement"`
	Resolved  bool    `json:"resolved"`
}

// MoneyField is a consensus-resolved monetary field in integer cents.
type MoneyField struct {
	Cents     int64   `json:"cents,omitempty"`
	Agreement float64 `json:"agreement"`
	Resolved  bool    `json:"resolved"`
}

// DateField is a consensus-resolved calendar date at UTC midnight.
type DateField struct {
	Date      time.Time `json:"date,omitempty"`
	Agreement float64   `json:"agreement"`
	Resolved  bool      `json:"resolved"`
}

// CheckRecord is the consensus output for one check image. Treat as
// immutable once built; it is owned by the caller of the consensus builder.
type CheckRecord struct {
	// Source names the image the record was extracted from.
	Source string `json:"source"`

	CheckNumber     Field      `json:"check_number"`
	Amount          MoneyField `json:"amount"`
	Date            DateField  `json:"date"`
	Payee           Field      `json:"payee"`
	Remitter        Field      `json:"remitter"`
	RemitterAddress Field      `json:"remitter_address"`
	Memo            Field      `json:"memo"`
	BankName        Field      `json:"bank_name"`

	// Confidence is the arithmetic mean of per-field agreement scores,
	// with unresolved fields contributing 0.
	Confidence float64 `json:"confidence"`
}

// ResolvedCount returns how many of the check's fields carry a resolved
// value.
func (c *CheckRecord) ResolvedCount() int {
	n := 0
	for _, resolved := range []bool{
		c.CheckNumber.Resolved,
		c.Amount.Resolved,
		c.Date.Resolved,
		c.Payee.Resolved,
		c.Remitter.Resolved,
		c.RemitterAddress.Resolved,
		c.Memo.Resolved,
		c.BankName.Resolved,
	} {
		if resolved {
			n++
		}
	}
	return n
}
