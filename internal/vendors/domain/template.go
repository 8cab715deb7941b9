package domain

import (
	"fmt"
	"regexp"
)

// Template slot indices. The pattern array is positionally indexed;
// these constants are the only way code refers to a slot.
const (
	SlotInvoiceNumber      = 0
	SlotInvoiceDate        = 1
	SlotInvoiceTotalAmount = 2
	SlotOrderDate          = 3
	SlotLineItemBlockStart = 4
	SlotLineItemBlockEnd   = 5
	SlotLineItemSplit      = 6
	SlotQuantity           = 7
	SlotDescription        = 8
	SlotUnit               = 9
	SlotUnitPrice          = 10
	SlotLineTotal          = 11

	// SlotCount is the fixed length of the pattern array.
	SlotCount = 12
)

// slotNames maps slot indices to field names for error reporting.
var slotNames = [SlotCount]string{
	"invoice_number",
	"invoice_date",
	"invoice_total_amount",
	"order_date",
	"line_item_block_start",
	"line_item_block_end",
	"line_item_split",
	"quantity",
	"description",
	"unit",
	"unit_price",
	"line_total",
}

// SlotName returns the field name for a slot index.
func SlotName(i int) string {
	if i < 0 || i >= SlotCount {
		return fmt.Sprintf("slot_%d", i)
	}
	return slotNames[i]
}

// Slot is a tagged-optional extraction pattern. An undefined slot means
// the vendor's invoices do not carry that field; the empty-string
// sentinel exists only at the storage boundary.
type Slot struct {
	Pattern string `json:"pattern"`
	Defined bool   `json:"defined"`
}

// Template is a vendor's positionally indexed pattern array.
type Template struct {
	Slots [SlotCount]Slot `json:"slots"`
}

// DefinedSlot returns a defined slot holding the given pattern.
func DefinedSlot(pattern string) Slot {
	return Slot{Pattern: pattern, Defined: true}
}

// TemplateFromPatterns builds a template from a raw pattern array as
// stored at rest: an empty string marks an undefined slot.
func TemplateFromPatterns(patterns [SlotCount]string) Template {
	var t Template
	for i, p := range patterns {
		if p != "" {
			t.Slots[i] = DefinedSlot(p)
		}
	}
	return t
}

// Patterns converts the template to its at-rest representation with
// empty-string sentinels for undefined slots.
func (t Template) Patterns() [SlotCount]string {
	var out [SlotCount]string
	for i, s := range t.Slots {
		if s.Defined {
			out[i] = s.Pattern
		}
	}
	return out
}

// DefinedCount returns the number of defined slots.
func (t Template) DefinedCount() int {
	n := 0
	for _, s := range t.Slots {
		if s.Defined {
			n++
		}
	}
	return n
}

// Merge overlays incoming defined slots onto the template. Incoming
// undefined slots never erase existing defined ones, so template
// knowledge only grows. Returns the merged template and whether any
// slot changed.
func (t Template) Merge(incoming Template) (Template, bool) {
	merged := t
	changed := false
	for i, s := range incoming.Slots {
		if !s.Defined {
			continue
		}
		if !merged.Slots[i].Defined || merged.Slots[i].Pattern != s.Pattern {
			merged.Slots[i] = s
			changed = true
		}
	}
	return merged, changed
}

// markerSlots need no capture group: they only locate block boundaries.
func markerSlot(i int) bool {
	return i == SlotLineItemBlockStart || i == SlotLineItemBlockEnd || i == SlotLineItemSplit
}

// requiredSlots must be defined for a template to be usable.
var requiredSlots = []int{SlotInvoiceNumber, SlotInvoiceDate, SlotInvoiceTotalAmount}

// Validate checks that the template is usable: required slots are
// defined, every defined pattern compiles, and every defined
// non-marker pattern has at least one capture group.
func (t Template) Validate() error {
	for _, i := range requiredSlots {
		if !t.Slots[i].Defined {
			return fmt.Errorf("required slot %s is undefined", SlotName(i))
		}
	}
	for i, s := range t.Slots {
		if !s.Defined {
			continue
		}
		re, err := regexp.Compile(s.Pattern)
		if err != nil {
			return fmt.Errorf("slot %s: invalid pattern: %w", SlotName(i), err)
		}
		if !markerSlot(i) && re.NumSubexp() < 1 {
			return fmt.Errorf("slot %s: pattern needs a capture group", SlotName(i))
		}
	}
	return nil
}
