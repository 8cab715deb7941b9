package messaging

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types
const (
	// Invoice events
	EventInvoiceProcessed = "invoice.processed"
	EventInvoiceFailed    = "invoice.failed"

	// Vendor events
	EventVendorCreated   = "vendor.created"
	EventTemplateUpdated = "template.updated"
)

// Exchange names
const (
	ExchangeInvoiceEvents = "invoice.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            GenerateEventID(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Invoice Events

// InvoiceProcessedEvent is published when an invoice has been extracted and persisted
type InvoiceProcessedEvent struct {
	InvoiceID     string   `json:"invoice_id"`
	VendorID      string   `json:"vendor_id"`
	VendorName    string   `json:"vendor_name"`
	Filename      string   `json:"filename"`
	InvoiceNumber string   `json:"invoice_number,omitempty"`
	TotalAmount   *float64 `json:"total_amount,omitempty"`
	LineItemCount int      `json:"line_item_count"`
	EngineUsed    string   `json:"engine_used"`
	Escalated     bool     `json:"escalated"`
	Partial       bool     `json:"partial"`
	Flags         []string `json:"flags,omitempty"`
}

// InvoiceFailedEvent is published when extraction of an invoice fails
type InvoiceFailedEvent struct {
	Filename  string `json:"filename"`
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
	Stage     string `json:"stage"`
}

// Vendor Events

// VendorCreatedEvent is published when a new vendor is registered
type VendorCreatedEvent struct {
	VendorID       string `json:"vendor_id"`
	Name           string `json:"name"`
	NormalizedName string `json:"normalized_name"`
	Synthesized    bool   `json:"synthesized"`
}

// TemplateUpdatedEvent is published when a vendor's extraction template changes
type TemplateUpdatedEvent struct {
	VendorID     string `json:"vendor_id"`
	VendorName   string `json:"vendor_name"`
	SlotsDefined int    `json:"slots_defined"`
	Source       string `json:"source"` // "synthesis" or "manual"
}

// GenerateEventID generates a unique event ID
func GenerateEventID() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), time.Now().Nanosecond()%10000)
}
