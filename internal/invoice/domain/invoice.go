// Package domain holds the extracted invoice aggregate.
package domain

import (
	"time"

	"github.com/lib/pq"
)

// Extraction flag values recorded on invoices and line items.
const (
	FlagPartialExtraction   = "PARTIAL_EXTRACTION"
	FlagNumericParseFailure = "NUMERIC_PARSE_FAILURE"
	FlagTotalMismatch       = "LINE_TOTAL_MISMATCH"
	FlagContactConflict     = "CONTACT_CONFLICT"
)

// Invoice is one processed document with its extracted header fields
// and extraction metadata.
type Invoice struct {
	ID            string         `db:"id" json:"id"`
	VendorID      string         `db:"vendor_id" json:"vendor_id"`
	RestaurantID  *string        `db:"restaurant_id" json:"restaurant_id,omitempty"`
	Filename      string         `db:"filename" json:"filename"`
	InvoiceNumber *string        `db:"invoice_number" json:"invoice_number,omitempty"`
	InvoiceDate   *string        `db:"invoice_date" json:"invoice_date,omitempty"`
	OrderDate     *string        `db:"order_date" json:"order_date,omitempty"`
	TotalAmount   *float64       `db:"total_amount" json:"total_amount,omitempty"`
	EngineUsed    string         `db:"engine_used" json:"engine_used"`
	Escalated     bool           `db:"escalated" json:"escalated"`
	Partial       bool           `db:"partial" json:"partial"`
	Flags         pq.StringArray `db:"flags" json:"flags,omitempty"`
	RawText       string         `db:"raw_text" json:"-"`
	TextLength    int            `db:"text_length" json:"text_length"`
	PageCount     int            `db:"page_count" json:"page_count"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`

	LineItems []LineItem `db:"-" json:"line_items,omitempty"`
}

// LineItem is one extracted invoice line. Unset fields are nil: a
// partial match keeps the item with the missing fields flagged.
// VendorName is denormalized from the owning vendor so item queries
// can filter by vendor without a join.
type LineItem struct {
	ID          string         `db:"id" json:"id"`
	InvoiceID   string         `db:"invoice_id" json:"invoice_id"`
	VendorName  string         `db:"vendor_name" json:"vendor_name"`
	LineNumber  int            `db:"line_number" json:"line_number"`
	Description *string        `db:"description" json:"description,omitempty"`
	Quantity    *float64       `db:"quantity" json:"quantity,omitempty"`
	Unit        *string        `db:"unit" json:"unit,omitempty"`
	UnitPrice   *float64       `db:"unit_price" json:"unit_price,omitempty"`
	LineTotal   *float64       `db:"line_total" json:"line_total,omitempty"`
	Category    string         `db:"category" json:"category"`
	Flags       pq.StringArray `db:"flags" json:"flags,omitempty"`
}

// HasFlag reports whether the invoice carries the given flag.
func (i *Invoice) HasFlag(flag string) bool {
	for _, f := range i.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// AddFlag appends a flag once.
func (i *Invoice) AddFlag(flag string) {
	if !i.HasFlag(flag) {
		i.Flags = append(i.Flags, flag)
	}
}

// HasFlag reports whether the line item carries the given flag.
func (li *LineItem) HasFlag(flag string) bool {
	for _, f := range li.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// AddFlag appends a flag once.
func (li *LineItem) AddFlag(flag string) {
	if !li.HasFlag(flag) {
		li.Flags = append(li.Flags, flag)
	}
}
