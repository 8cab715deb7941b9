// Package service coordinates the extraction pipeline: rasterize the
// document, OCR it, resolve the vendor, apply the vendor's template
// and persist the result.
package service

import (
	"context"

	"github.com/lib/pq"

	invdomain "github.com/invoiceflow/invoiceflow-backend/internal/invoice/domain"
	"github.com/invoiceflow/invoiceflow-backend/internal/invoice/extractor"
	"github.com/invoiceflow/invoiceflow-backend/internal/invoice/repository"
	"github.com/invoiceflow/invoiceflow-backend/internal/ocr"
	"github.com/invoiceflow/invoiceflow-backend/internal/raster"
	vdomain "github.com/invoiceflow/invoiceflow-backend/internal/vendors/domain"
	"github.com/invoiceflow/invoiceflow-backend/internal/vendors/identifier"
	"github.com/invoiceflow/invoiceflow-backend/internal/vendors/store"
	"github.com/invoiceflow/invoiceflow-backend/internal/vendors/synthesis"
	"github.com/invoiceflow/invoiceflow-backend/pkg/errors"
	"github.com/invoiceflow/invoiceflow-backend/pkg/logger"
	"github.com/invoiceflow/invoiceflow-backend/pkg/messaging"
)

// EventPublisher publishes domain events. Satisfied by messaging.Publisher.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, data interface{}) error
}

// Document is one uploaded invoice document. RestaurantID is the
// client's restaurant reference, carried onto the stored invoice.
type Document struct {
	Filename     string
	RestaurantID string
	Data         []byte
}

// ProcessedInvoice is the pipeline result for one document.
type ProcessedInvoice struct {
	Invoice     *invdomain.Invoice `json:"invoice"`
	Vendor      vdomain.Vendor     `json:"vendor"`
	NewVendor   bool               `json:"new_vendor"`
	FieldErrors map[string]string  `json:"field_errors,omitempty"`
}

// InvoiceService runs the extraction pipeline
type InvoiceService struct {
	renderer  raster.Renderer
	gateway   *ocr.Gateway
	vendors   *store.Store
	synth     synthesis.Synthesizer
	invoices  *repository.InvoiceRepository
	publisher EventPublisher
	logger    *logger.Logger
}

// NewInvoiceService creates the pipeline coordinator
func NewInvoiceService(
	renderer raster.Renderer,
	gateway *ocr.Gateway,
	vendors *store.Store,
	synth synthesis.Synthesizer,
	invoices *repository.InvoiceRepository,
	publisher EventPublisher,
	log *logger.Logger,
) *InvoiceService {
	return &InvoiceService{
		renderer:  renderer,
		gateway:   gateway,
		vendors:   vendors,
		synth:     synth,
		invoices:  invoices,
		publisher: publisher,
		logger:    log,
	}
}

// run tracks vendors synthesized within one processing run so that
// near-duplicate documents yield exactly one vendor and template.
type run struct {
	synthesized map[string]string // normalized name -> vendor ID
}

func newRun() *run {
	return &run{synthesized: map[string]string{}}
}

// Process runs the full pipeline for a single document.
func (s *InvoiceService) Process(ctx context.Context, doc Document) (*ProcessedInvoice, error) {
	return s.processOne(ctx, doc, newRun())
}

// BatchItem is the per-document outcome of a batch run.
type BatchItem struct {
	Filename string            `json:"filename"`
	Result   *ProcessedInvoice `json:"result,omitempty"`
	Err      error             `json:"-"`
}

// ProcessBatch runs the pipeline over several documents sequentially.
// A failing document never aborts the batch, and unknown vendors
// appearing in more than one document are synthesized only once.
func (s *InvoiceService) ProcessBatch(ctx context.Context, docs []Document) []BatchItem {
	r := newRun()
	items := make([]BatchItem, 0, len(docs))
	for _, doc := range docs {
		result, err := s.processOne(ctx, doc, r)
		items = append(items, BatchItem{Filename: doc.Filename, Result: result, Err: err})
	}
	return items
}

func (s *InvoiceService) processOne(ctx context.Context, doc Document, r *run) (*ProcessedInvoice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := s.renderer.Render(ctx, doc.Data, 0)
	if err != nil {
		s.publishFailure(ctx, doc.Filename, "raster", err)
		return nil, err
	}

	ocrRes, err := s.gateway.Route(ctx, img)
	if err != nil {
		s.publishFailure(ctx, doc.Filename, "ocr", err)
		return nil, err
	}

	s.logger.Info().
		Str("filename", doc.Filename).
		Str("engine", ocrRes.EngineUsed).
		Bool("escalated", ocrRes.Escalated).
		Int("text_length", len(ocrRes.Text)).
		Msg("document recognized")

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sig := identifier.Extract(ocrRes.Text)

	entry, newVendor, err := s.resolveVendor(ctx, ocrRes.Text, sig, r)
	if err != nil {
		s.publishFailure(ctx, doc.Filename, "vendor", err)
		return nil, err
	}

	var contactConflicts []string
	if !newVendor {
		contactConflicts = s.enrichContact(ctx, &entry, sig)
	}

	tpl, err := s.resolveTemplate(ctx, &entry, ocrRes.Text)
	if err != nil {
		s.publishFailure(ctx, doc.Filename, "template", err)
		return nil, err
	}

	res := extractor.Extract(ocrRes.Text, tpl)

	for i := range res.LineItems {
		res.LineItems[i].VendorName = entry.Vendor.Name
	}

	inv := &invdomain.Invoice{
		VendorID:      entry.Vendor.ID,
		Filename:      doc.Filename,
		InvoiceNumber: res.Header.InvoiceNumber,
		InvoiceDate:   res.Header.InvoiceDate,
		OrderDate:     res.Header.OrderDate,
		TotalAmount:   res.Header.TotalAmount,
		EngineUsed:    ocrRes.EngineUsed,
		Escalated:     ocrRes.Escalated,
		Partial:       res.Partial,
		Flags:         pq.StringArray(res.Flags),
		RawText:       ocrRes.Text,
		TextLength:    len(ocrRes.Text),
		PageCount:     1,
		LineItems:     res.LineItems,
	}
	if doc.RestaurantID != "" {
		inv.RestaurantID = &doc.RestaurantID
	}
	if len(contactConflicts) > 0 {
		inv.AddFlag(invdomain.FlagContactConflict)
	}

	// The vendor is already committed; a cancellation here must not
	// leave a half-written invoice behind.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := s.invoices.Create(ctx, inv); err != nil {
		s.publishFailure(ctx, doc.Filename, "persist", err)
		return nil, err
	}

	s.publishProcessed(ctx, inv, entry.Vendor)

	return &ProcessedInvoice{
		Invoice:     inv,
		Vendor:      entry.Vendor,
		NewVendor:   newVendor,
		FieldErrors: res.FieldErrors,
	}, nil
}

// resolveVendor matches the document against known vendors, falling
// back to synthesis for an unknown one. The run guard ensures one
// synthesis per unknown vendor per run.
func (s *InvoiceService) resolveVendor(ctx context.Context, text string, sig identifier.Signals, r *run) (store.Entry, bool, error) {
	if entry, ok := s.vendors.FindBySignals(sig); ok {
		return entry, false, nil
	}

	if sig.Name == "" {
		return store.Entry{}, false, errors.VendorNotIdentified()
	}

	normalized := identifier.Normalize(sig.Name)
	if vendorID, seen := r.synthesized[normalized]; seen {
		if entry, ok := s.vendors.FindByID(vendorID); ok {
			return entry, false, nil
		}
	}

	tpl, err := s.synth.Synthesize(ctx, text)
	if err != nil {
		return store.Entry{}, false, err
	}

	vendor := vdomain.Vendor{Name: sig.Name, NormalizedName: normalized}
	applyContact(&vendor, sig)

	entry, err := s.vendors.Create(ctx, vendor, tpl, "synthesis")
	if err != nil {
		return store.Entry{}, false, err
	}
	r.synthesized[normalized] = entry.Vendor.ID

	s.publish(ctx, messaging.EventVendorCreated, messaging.VendorCreatedEvent{
		VendorID:       entry.Vendor.ID,
		Name:           entry.Vendor.Name,
		NormalizedName: entry.Vendor.NormalizedName,
		Synthesized:    true,
	})
	s.publish(ctx, messaging.EventTemplateUpdated, messaging.TemplateUpdatedEvent{
		VendorID:     entry.Vendor.ID,
		VendorName:   entry.Vendor.Name,
		SlotsDefined: tpl.DefinedCount(),
		Source:       "synthesis",
	})

	return entry, true, nil
}

func applyContact(v *vdomain.Vendor, sig identifier.Signals) {
	if sig.Address != "" {
		v.Address = &sig.Address
	}
	if sig.Phone != "" {
		v.Phone = &sig.Phone
	}
	if sig.Email != "" {
		v.ContactEmail = &sig.Email
	}
	if sig.Website != "" {
		v.Website = &sig.Website
	}
}

// enrichContact updates the vendor's contact columns from signals in
// the document text. Conflicting observations are reported, not
// applied; enrichment failures never fail the document.
func (s *InvoiceService) enrichContact(ctx context.Context, entry *store.Entry, sig identifier.Signals) []string {
	info := vdomain.ContactInfo{
		Address: sig.Address,
		Phone:   sig.Phone,
		Email:   sig.Email,
		Website: sig.Website,
	}
	if info == (vdomain.ContactInfo{}) {
		return nil
	}

	conflicts, err := s.vendors.EnrichContact(ctx, entry.Vendor.ID, info)
	if err != nil {
		s.logger.Warn().Err(err).Str("vendor_id", entry.Vendor.ID).Msg("contact enrichment failed")
		return nil
	}
	if refreshed, ok := s.vendors.FindByID(entry.Vendor.ID); ok {
		*entry = refreshed
	}
	return conflicts
}

// resolveTemplate returns the vendor's template, synthesizing one for
// a known vendor that has none yet.
func (s *InvoiceService) resolveTemplate(ctx context.Context, entry *store.Entry, text string) (vdomain.Template, error) {
	if entry.Template != nil {
		return *entry.Template, nil
	}

	tpl, err := s.synth.Synthesize(ctx, text)
	if err != nil {
		return vdomain.Template{}, err
	}

	merged, _, err := s.vendors.UpsertTemplate(ctx, entry.Vendor.ID, tpl, "synthesis")
	if err != nil {
		return vdomain.Template{}, err
	}
	entry.Template = &merged

	s.publish(ctx, messaging.EventTemplateUpdated, messaging.TemplateUpdatedEvent{
		VendorID:     entry.Vendor.ID,
		VendorName:   entry.Vendor.Name,
		SlotsDefined: merged.DefinedCount(),
		Source:       "synthesis",
	})
	return merged, nil
}

// CheckDuplicate reports whether the vendor already has an invoice
// with the number. Informational only; duplicates are never rejected.
func (s *InvoiceService) CheckDuplicate(ctx context.Context, vendorID, invoiceNumber string) (bool, error) {
	return s.invoices.CheckDuplicate(ctx, vendorID, invoiceNumber)
}

// GetInvoice returns an invoice with its line items
func (s *InvoiceService) GetInvoice(ctx context.Context, id string) (*invdomain.Invoice, error) {
	return s.invoices.GetByID(ctx, id)
}

// ListInvoices returns invoices newest first, optionally by vendor
func (s *InvoiceService) ListInvoices(ctx context.Context, vendorID string, limit, offset int) ([]*invdomain.Invoice, int, error) {
	invoices, err := s.invoices.List(ctx, vendorID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.invoices.Count(ctx, vendorID)
	if err != nil {
		return nil, 0, err
	}
	return invoices, total, nil
}

// ListVendors returns all known vendors with their template state
func (s *InvoiceService) ListVendors() []store.Entry {
	return s.vendors.List()
}

// GetTemplate returns a vendor's template
func (s *InvoiceService) GetTemplate(vendorID string) (vdomain.Vendor, *vdomain.Template, error) {
	entry, ok := s.vendors.FindByID(vendorID)
	if !ok {
		return vdomain.Vendor{}, nil, errors.NotFound("vendor")
	}
	return entry.Vendor, entry.Template, nil
}

// UpdateTemplate merges a manually supplied template into the
// vendor's stored one. The merge is monotonic: defined slots are
// never erased by undefined incoming ones.
func (s *InvoiceService) UpdateTemplate(ctx context.Context, vendorID string, incoming vdomain.Template) (vdomain.Template, error) {
	if err := incoming.Validate(); err != nil {
		return vdomain.Template{}, errors.Validation(map[string]string{"template": err.Error()})
	}

	entry, ok := s.vendors.FindByID(vendorID)
	if !ok {
		return vdomain.Template{}, errors.NotFound("vendor")
	}

	merged, changed, err := s.vendors.UpsertTemplate(ctx, vendorID, incoming, "manual")
	if err != nil {
		return vdomain.Template{}, err
	}
	if changed {
		s.publish(ctx, messaging.EventTemplateUpdated, messaging.TemplateUpdatedEvent{
			VendorID:     vendorID,
			VendorName:   entry.Vendor.Name,
			SlotsDefined: merged.DefinedCount(),
			Source:       "manual",
		})
	}
	return merged, nil
}

// publish sends an event, logging failures instead of propagating
// them: a broken broker never fails the pipeline.
func (s *InvoiceService) publish(ctx context.Context, eventType string, data interface{}) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, eventType, data); err != nil {
		s.logger.Warn().Err(err).Str("event_type", eventType).Msg("event publish failed")
	}
}

func (s *InvoiceService) publishProcessed(ctx context.Context, inv *invdomain.Invoice, vendor vdomain.Vendor) {
	event := messaging.InvoiceProcessedEvent{
		InvoiceID:     inv.ID,
		VendorID:      inv.VendorID,
		VendorName:    vendor.Name,
		Filename:      inv.Filename,
		LineItemCount: len(inv.LineItems),
		EngineUsed:    inv.EngineUsed,
		Escalated:     inv.Escalated,
		Partial:       inv.Partial,
		Flags:         []string(inv.Flags),
		TotalAmount:   inv.TotalAmount,
	}
	if inv.InvoiceNumber != nil {
		event.InvoiceNumber = *inv.InvoiceNumber
	}
	s.publish(ctx, messaging.EventInvoiceProcessed, event)
}

func (s *InvoiceService) publishFailure(ctx context.Context, filename, stage string, cause error) {
	event := messaging.InvoiceFailedEvent{
		Filename: filename,
		Stage:    stage,
		Message:  cause.Error(),
	}
	var appErr *errors.AppError
	if errors.As(cause, &appErr) {
		event.ErrorCode = appErr.Code
	}
	s.publish(ctx, messaging.EventInvoiceFailed, event)
}
