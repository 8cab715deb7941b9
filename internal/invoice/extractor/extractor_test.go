package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	invdomain "github.com/invoiceflow/invoiceflow-backend/internal/invoice/domain"
	vdomain "github.com/invoiceflow/invoiceflow-backend/internal/vendors/domain"
	"github.com/invoiceflow/invoiceflow-backend/pkg/testutil"
)

func sampleTemplate(t *testing.T) vdomain.Template {
	t.Helper()
	tpl := vdomain.TemplateFromPatterns(testutil.SampleTemplatePatterns())
	require.NoError(t, tpl.Validate())
	return tpl
}

func TestExtract_SampleInvoice(t *testing.T) {
	res := Extract(testutil.SampleInvoiceText, sampleTemplate(t))

	require.NotNil(t, res.Header.InvoiceNumber)
	assert.Equal(t, "4471", *res.Header.InvoiceNumber)
	require.NotNil(t, res.Header.InvoiceDate)
	assert.Equal(t, "03/15/2026", *res.Header.InvoiceDate)
	require.NotNil(t, res.Header.OrderDate)
	assert.Equal(t, "03/12/2026", *res.Header.OrderDate)
	require.NotNil(t, res.Header.TotalAmount)
	assert.InDelta(t, 81.25, *res.Header.TotalAmount, 0.0001)

	assert.False(t, res.Partial)
	assert.Empty(t, res.FieldErrors)

	require.Len(t, res.LineItems, 3)

	first := res.LineItems[0]
	assert.Equal(t, 1, first.LineNumber)
	require.NotNil(t, first.Quantity)
	assert.InDelta(t, 2, *first.Quantity, 0.0001)
	require.NotNil(t, first.Unit)
	assert.Equal(t, "lb", *first.Unit)
	require.NotNil(t, first.Description)
	assert.Equal(t, "Tomatoes", *first.Description)
	require.NotNil(t, first.UnitPrice)
	assert.InDelta(t, 1.50, *first.UnitPrice, 0.0001)
	require.NotNil(t, first.LineTotal)
	assert.InDelta(t, 3.00, *first.LineTotal, 0.0001)
	assert.Equal(t, "produce", first.Category)
	assert.Empty(t, first.Flags)

	assert.Equal(t, "Lettuce", *res.LineItems[1].Description)
	assert.Equal(t, "Olive Oil", *res.LineItems[2].Description)
}

func TestExtract_LineNumbersStrictlyIncreasing(t *testing.T) {
	res := Extract(testutil.SampleInvoiceText, sampleTemplate(t))
	require.NotEmpty(t, res.LineItems)
	for i, item := range res.LineItems {
		assert.Equal(t, i+1, item.LineNumber)
	}
}

func TestExtract_Idempotent(t *testing.T) {
	tpl := sampleTemplate(t)
	a := Extract(testutil.SampleInvoiceText, tpl)
	b := Extract(testutil.SampleInvoiceText, tpl)
	assert.Equal(t, a, b)
}

func TestExtract_MissingRequiredFieldIsPartial(t *testing.T) {
	patterns := testutil.SampleTemplatePatterns()
	patterns[vdomain.SlotInvoiceNumber] = `Reference No:\s*(\d+)`
	tpl := vdomain.TemplateFromPatterns(patterns)

	res := Extract(testutil.SampleInvoiceText, tpl)

	assert.Nil(t, res.Header.InvoiceNumber)
	assert.True(t, res.Partial)
	assert.Contains(t, res.FieldErrors, "invoice_number")
	assert.Contains(t, res.Flags, invdomain.FlagPartialExtraction)

	// The rest of the document still extracts.
	require.NotNil(t, res.Header.TotalAmount)
	assert.Len(t, res.LineItems, 3)
}

func TestExtract_TotalMismatchFlagged(t *testing.T) {
	text := `Invoice #: 9001
Invoice Date: 04/01/2026

ITEMS
3 ea Lettuce $2.00 $9.00
END ITEMS

Total Due: $9.00`

	res := Extract(text, sampleTemplate(t))

	require.Len(t, res.LineItems, 1)
	item := res.LineItems[0]
	assert.Contains(t, []string(item.Flags), invdomain.FlagTotalMismatch)
	// The extracted total is kept as written, not corrected.
	require.NotNil(t, item.LineTotal)
	assert.InDelta(t, 9.00, *item.LineTotal, 0.0001)
}

func TestExtract_WithinToleranceNotFlagged(t *testing.T) {
	text := `Invoice #: 9002
Invoice Date: 04/01/2026

ITEMS
3 ea Lettuce $2.00 $6.00
END ITEMS

Total Due: $6.00`

	res := Extract(text, sampleTemplate(t))
	require.Len(t, res.LineItems, 1)
	assert.NotContains(t, []string(res.LineItems[0].Flags), invdomain.FlagTotalMismatch)
}

func TestExtract_BlankLineChunking(t *testing.T) {
	patterns := [vdomain.SlotCount]string{
		`Invoice:\s*(\S+)`,
		`Date:\s*(\S+)`,
		`Total:\s*\$([\d.]+)`,
		``, ``, ``, ``,
		`Qty\s+([\d.]+)`,
		`Item\s+(.+)`,
		``,
		``,
		`Amount\s+\$([\d.]+)`,
	}
	tpl := vdomain.TemplateFromPatterns(patterns)

	text := `Invoice: A-1
Date: 05/01/2026
Total: $30.00

Item Apples
Qty 2
Amount $10.00

Item Pears
Qty 4
Amount $20.00`

	res := Extract(text, tpl)

	require.Len(t, res.LineItems, 2)
	assert.Equal(t, "Apples", *res.LineItems[0].Description)
	assert.Equal(t, 1, res.LineItems[0].LineNumber)
	assert.Equal(t, "Pears", *res.LineItems[1].Description)
	assert.Equal(t, 2, res.LineItems[1].LineNumber)
}

func TestExtract_ChunkWithNoMatchesDropped(t *testing.T) {
	text := `Invoice #: 9003
Invoice Date: 04/02/2026

ITEMS
2 lb Tomatoes $1.50 $3.00
-- subtotal section --
END ITEMS

Total Due: $3.00`

	res := Extract(text, sampleTemplate(t))
	require.Len(t, res.LineItems, 1)
	assert.Equal(t, "Tomatoes", *res.LineItems[0].Description)
}

func TestExtract_PartialItemKeptAndFlagged(t *testing.T) {
	text := `Invoice #: 9004
Invoice Date: 04/03/2026

ITEMS
2 lb Tomatoes $1.50 $3.00
Delivery Fee $5.00
END ITEMS

Total Due: $8.00`

	res := Extract(text, sampleTemplate(t))

	require.Len(t, res.LineItems, 2)
	fee := res.LineItems[1]
	assert.Contains(t, []string(fee.Flags), invdomain.FlagPartialExtraction)
	require.NotNil(t, fee.LineTotal)
	assert.InDelta(t, 5.00, *fee.LineTotal, 0.0001)
	assert.Nil(t, fee.Quantity)
	assert.Contains(t, res.Flags, invdomain.FlagPartialExtraction)
}

func TestExtract_NumericParseFailureFlagged(t *testing.T) {
	patterns := testutil.SampleTemplatePatterns()
	patterns[vdomain.SlotInvoiceTotalAmount] = `Total Due:\s*(\S+)`
	tpl := vdomain.TemplateFromPatterns(patterns)

	text := `Invoice #: 9005
Invoice Date: 04/04/2026

ITEMS
2 lb Tomatoes $1.50 $3.00
END ITEMS

Total Due: pending`

	res := Extract(text, tpl)

	assert.Nil(t, res.Header.TotalAmount)
	assert.True(t, res.Partial)
	assert.Contains(t, res.Flags, invdomain.FlagNumericParseFailure)
	assert.Contains(t, res.FieldErrors, "invoice_total_amount")
}

func TestExtract_UndefinedBlockMarkersUseRemainder(t *testing.T) {
	patterns := testutil.SampleTemplatePatterns()
	patterns[vdomain.SlotLineItemBlockStart] = ``
	patterns[vdomain.SlotLineItemBlockEnd] = ``
	patterns[vdomain.SlotLineItemSplit] = ``
	tpl := vdomain.TemplateFromPatterns(patterns)

	text := `Invoice #: 9006
Invoice Date: 04/05/2026
Total Due: $3.00

2 lb Tomatoes $1.50 $3.00`

	res := Extract(text, tpl)

	require.Len(t, res.LineItems, 1)
	assert.Equal(t, "Tomatoes", *res.LineItems[0].Description)
}

func TestExtract_InvalidPatternReportedAsFieldError(t *testing.T) {
	patterns := testutil.SampleTemplatePatterns()
	patterns[vdomain.SlotOrderDate] = `Order Date: ([`
	tpl := vdomain.TemplateFromPatterns(patterns)

	res := Extract(testutil.SampleInvoiceText, tpl)

	assert.Nil(t, res.Header.OrderDate)
	assert.Contains(t, res.FieldErrors, "order_date")
	// Required fields are unaffected.
	assert.False(t, res.Partial)
}
