package extractor

import (
	"fmt"
	"regexp"
	"strings"

	invdomain "github.com/invoiceflow/invoiceflow-backend/internal/invoice/domain"
	vdomain "github.com/invoiceflow/invoiceflow-backend/internal/vendors/domain"
)

// Header holds the document-level fields pulled from the invoice text.
type Header struct {
	InvoiceNumber *string  `json:"invoice_number"`
	InvoiceDate   *string  `json:"invoice_date"`
	OrderDate     *string  `json:"order_date"`
	TotalAmount   *float64 `json:"total_amount"`
}

// Result is the outcome of applying a vendor template to OCR text.
// Field-level failures are collected in FieldErrors rather than
// aborting the extraction.
type Result struct {
	Header      Header               `json:"header"`
	LineItems   []invdomain.LineItem `json:"line_items"`
	FieldErrors map[string]string    `json:"field_errors,omitempty"`
	Flags       []string             `json:"flags,omitempty"`
	Partial     bool                 `json:"partial"`
}

func (r *Result) addFlag(flag string) {
	for _, f := range r.Flags {
		if f == flag {
			return
		}
	}
	r.Flags = append(r.Flags, flag)
}

var blankLineRe = regexp.MustCompile(`\n\s*\n`)

// Extract applies the template's slot patterns to OCR text. It is a
// pure function of its inputs: the same text and template always
// produce the same result.
func Extract(text string, tpl vdomain.Template) *Result {
	res := &Result{FieldErrors: map[string]string{}}

	compiled := compileSlots(tpl, res)

	extractHeader(text, compiled, res)

	block := isolateBlock(text, compiled)
	chunks := splitChunks(block, compiled[vdomain.SlotLineItemSplit])

	lineNo := 0
	for _, chunk := range chunks {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		item, ok := extractItem(chunk, compiled)
		if !ok {
			continue
		}
		lineNo++
		item.LineNumber = lineNo
		if item.HasFlag(invdomain.FlagPartialExtraction) {
			res.addFlag(invdomain.FlagPartialExtraction)
		}
		if item.HasFlag(invdomain.FlagNumericParseFailure) {
			res.addFlag(invdomain.FlagNumericParseFailure)
		}
		if item.HasFlag(invdomain.FlagTotalMismatch) {
			res.addFlag(invdomain.FlagTotalMismatch)
		}
		res.LineItems = append(res.LineItems, item)
	}

	if res.Partial {
		res.addFlag(invdomain.FlagPartialExtraction)
	}
	return res
}

// compileSlots compiles every defined pattern. A pattern that fails to
// compile is reported as a field error and treated as undefined.
func compileSlots(tpl vdomain.Template, res *Result) [vdomain.SlotCount]*regexp.Regexp {
	var compiled [vdomain.SlotCount]*regexp.Regexp
	for i, slot := range tpl.Slots {
		if !slot.Defined {
			continue
		}
		re, err := regexp.Compile("(?m)" + slot.Pattern)
		if err != nil {
			res.FieldErrors[vdomain.SlotName(i)] = fmt.Sprintf("invalid pattern: %v", err)
			continue
		}
		compiled[i] = re
	}
	return compiled
}

// extractVal returns the first capture group of the first match,
// trimmed of surrounding whitespace.
func extractVal(re *regexp.Regexp, text string) (string, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil || len(m) < 2 {
		return "", false
	}
	v := strings.TrimSpace(m[1])
	if v == "" {
		return "", false
	}
	return v, true
}

var requiredHeaderSlots = []int{vdomain.SlotInvoiceNumber, vdomain.SlotInvoiceDate, vdomain.SlotInvoiceTotalAmount}

func extractHeader(text string, compiled [vdomain.SlotCount]*regexp.Regexp, res *Result) {
	get := func(slot int) *string {
		re := compiled[slot]
		if re == nil {
			return nil
		}
		v, ok := extractVal(re, text)
		if !ok {
			res.FieldErrors[vdomain.SlotName(slot)] = "no match in document text"
			return nil
		}
		return &v
	}

	res.Header.InvoiceNumber = get(vdomain.SlotInvoiceNumber)
	res.Header.InvoiceDate = get(vdomain.SlotInvoiceDate)
	res.Header.OrderDate = get(vdomain.SlotOrderDate)

	if raw := get(vdomain.SlotInvoiceTotalAmount); raw != nil {
		amount, err := ParseAmount(*raw)
		if err != nil {
			res.FieldErrors[vdomain.SlotName(vdomain.SlotInvoiceTotalAmount)] = err.Error()
			res.addFlag(invdomain.FlagNumericParseFailure)
		} else {
			res.Header.TotalAmount = &amount
		}
	}

	for _, slot := range requiredHeaderSlots {
		name := vdomain.SlotName(slot)
		missing := false
		switch slot {
		case vdomain.SlotInvoiceNumber:
			missing = res.Header.InvoiceNumber == nil
		case vdomain.SlotInvoiceDate:
			missing = res.Header.InvoiceDate == nil
		case vdomain.SlotInvoiceTotalAmount:
			missing = res.Header.TotalAmount == nil
		}
		if missing {
			res.Partial = true
			if _, reported := res.FieldErrors[name]; !reported {
				res.FieldErrors[name] = "required field not extracted"
			}
		}
	}
}

// isolateBlock locates the line item region. With both boundary
// markers defined the block runs from the end of the start match to
// the start of the end match. If either marker is undefined the block
// is the remainder of the text after the last header match.
func isolateBlock(text string, compiled [vdomain.SlotCount]*regexp.Regexp) string {
	startRe := compiled[vdomain.SlotLineItemBlockStart]
	endRe := compiled[vdomain.SlotLineItemBlockEnd]

	if startRe != nil && endRe != nil {
		start := 0
		if loc := startRe.FindStringIndex(text); loc != nil {
			start = loc[1]
		}
		end := len(text)
		if loc := endRe.FindStringIndex(text[start:]); loc != nil {
			end = start + loc[0]
		}
		return text[start:end]
	}

	latest := 0
	for _, slot := range []int{vdomain.SlotInvoiceNumber, vdomain.SlotInvoiceDate, vdomain.SlotInvoiceTotalAmount, vdomain.SlotOrderDate} {
		re := compiled[slot]
		if re == nil {
			continue
		}
		if loc := re.FindStringIndex(text); loc != nil && loc[1] > latest {
			latest = loc[1]
		}
	}
	return text[latest:]
}

// splitChunks divides the block into candidate item chunks, using the
// split pattern when defined and blank line boundaries otherwise.
func splitChunks(block string, splitRe *regexp.Regexp) []string {
	if splitRe != nil {
		return splitRe.Split(block, -1)
	}
	return blankLineRe.Split(block, -1)
}

var itemSlots = []int{vdomain.SlotQuantity, vdomain.SlotDescription, vdomain.SlotUnit, vdomain.SlotUnitPrice, vdomain.SlotLineTotal}

const totalTolerance = 0.01

// extractItem applies the item-level slots to one chunk. A chunk where
// no defined slot matched is not an item and is dropped; a chunk where
// some slots matched is kept, with missed fields flagged.
func extractItem(chunk string, compiled [vdomain.SlotCount]*regexp.Regexp) (invdomain.LineItem, bool) {
	var item invdomain.LineItem

	defined := 0
	matched := 0
	values := map[int]string{}
	for _, slot := range itemSlots {
		re := compiled[slot]
		if re == nil {
			continue
		}
		defined++
		if v, ok := extractVal(re, chunk); ok {
			matched++
			values[slot] = v
		}
	}
	if matched == 0 {
		return item, false
	}

	if v, ok := values[vdomain.SlotDescription]; ok {
		item.Description = &v
		item.Category = Categorize(v)
	} else {
		item.Category = CategoryUncategorized
	}
	if v, ok := values[vdomain.SlotUnit]; ok {
		item.Unit = &v
	}
	if v, ok := values[vdomain.SlotQuantity]; ok {
		if q, err := ParseQuantity(v); err != nil {
			item.AddFlag(invdomain.FlagNumericParseFailure)
		} else {
			item.Quantity = &q
		}
	}
	if v, ok := values[vdomain.SlotUnitPrice]; ok {
		if p, err := ParseAmount(v); err != nil {
			item.AddFlag(invdomain.FlagNumericParseFailure)
		} else {
			item.UnitPrice = &p
		}
	}
	if v, ok := values[vdomain.SlotLineTotal]; ok {
		if t, err := ParseAmount(v); err != nil {
			item.AddFlag(invdomain.FlagNumericParseFailure)
		} else {
			item.LineTotal = &t
		}
	}

	if matched < defined {
		item.AddFlag(invdomain.FlagPartialExtraction)
	}

	// Arithmetic is checked, never corrected.
	if item.Quantity != nil && item.UnitPrice != nil && item.LineTotal != nil {
		expected := *item.Quantity * *item.UnitPrice
		diff := expected - *item.LineTotal
		if diff < 0 {
			diff = -diff
		}
		if diff > totalTolerance {
			item.AddFlag(invdomain.FlagTotalMismatch)
		}
	}

	return item, true
}
