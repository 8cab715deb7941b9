// Package handler exposes the extraction pipeline over HTTP.
package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/invoiceflow/invoiceflow-backend/internal/invoice/service"
	vdomain "github.com/invoiceflow/invoiceflow-backend/internal/vendors/domain"
	"github.com/invoiceflow/invoiceflow-backend/internal/vendors/store"
	"github.com/invoiceflow/invoiceflow-backend/pkg/errors"
	"github.com/invoiceflow/invoiceflow-backend/pkg/httputil"
	"github.com/invoiceflow/invoiceflow-backend/pkg/logger"
)

const maxUploadSize = 20 << 20 // 20MB

// Handler handles invoice extraction HTTP requests
type Handler struct {
	service *service.InvoiceService
	log     *logger.Logger
}

// NewHandler creates a new invoice handler
func NewHandler(svc *service.InvoiceService, log *logger.Logger) *Handler {
	return &Handler{service: svc, log: log}
}

// RegisterRoutes mounts the API routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/invoices", func(r chi.Router) {
			r.Post("/extract", h.Extract)
			r.Get("/", h.ListInvoices)
			r.Get("/duplicate", h.CheckDuplicate)
			r.Get("/{id}", h.GetInvoice)
		})
		r.Route("/vendors", func(r chi.Router) {
			r.Get("/", h.ListVendors)
			r.Get("/{id}/template", h.GetTemplate)
			r.Put("/{id}/template", h.UpdateTemplate)
		})
	})
}

// Extract handles POST /api/v1/invoices/extract
// Accepts multipart form with:
// - file: the invoice image (PNG or JPEG)
// - restaurant_id: client restaurant reference, stored on the invoice
func (h *Handler) Extract(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		httputil.Error(w, errors.BadRequest("file too large or invalid multipart form"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.Error(w, errors.BadRequest("missing file in request"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		httputil.Error(w, errors.BadRequest("failed to read uploaded file"))
		return
	}
	if len(data) == 0 {
		httputil.Error(w, errors.BadRequest("uploaded file is empty"))
		return
	}

	restaurantID := r.FormValue("restaurant_id")
	if restaurantID != "" {
		h.log.Info().Str("restaurant_id", restaurantID).Str("filename", header.Filename).Msg("extraction requested")
	}

	result, err := h.service.Process(r.Context(), service.Document{
		Filename:     header.Filename,
		RestaurantID: restaurantID,
		Data:         data,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// ListInvoices handles GET /api/v1/invoices
func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	vendorID := r.URL.Query().Get("vendor_id")
	limit := queryInt(r, "limit", 50)
	if limit <= 0 {
		limit = 50
	}
	offset := queryInt(r, "offset", 0)

	invoices, total, err := h.service.ListInvoices(r.Context(), vendorID, limit, offset)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	meta := &httputil.Meta{
		Page:    offset/limit + 1,
		PerPage: limit,
		Total:   int64(total),
	}
	if total > 0 {
		meta.TotalPages = (total + limit - 1) / limit
	}
	httputil.JSONWithMeta(w, http.StatusOK, invoices, meta)
}

// GetInvoice handles GET /api/v1/invoices/{id}
func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := h.service.GetInvoice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, inv)
}

// checkDuplicateRequest carries the duplicate lookup query parameters
type checkDuplicateRequest struct {
	VendorID      string `validate:"required"`
	InvoiceNumber string `validate:"required"`
}

// CheckDuplicate handles GET /api/v1/invoices/duplicate
func (h *Handler) CheckDuplicate(w http.ResponseWriter, r *http.Request) {
	req := checkDuplicateRequest{
		VendorID:      r.URL.Query().Get("vendor_id"),
		InvoiceNumber: r.URL.Query().Get("invoice_number"),
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	exists, err := h.service.CheckDuplicate(r.Context(), req.VendorID, req.InvoiceNumber)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]interface{}{
		"vendor_id":      req.VendorID,
		"invoice_number": req.InvoiceNumber,
		"duplicate":      exists,
	})
}

// vendorResponse is the list/detail shape for vendors
type vendorResponse struct {
	Vendor       vdomain.Vendor `json:"vendor"`
	HasTemplate  bool           `json:"has_template"`
	SlotsDefined int            `json:"slots_defined"`
}

func toVendorResponse(e store.Entry) vendorResponse {
	resp := vendorResponse{Vendor: e.Vendor}
	if e.Template != nil {
		resp.HasTemplate = true
		resp.SlotsDefined = e.Template.DefinedCount()
	}
	return resp
}

// ListVendors handles GET /api/v1/vendors
func (h *Handler) ListVendors(w http.ResponseWriter, r *http.Request) {
	entries := h.service.ListVendors()
	vendors := make([]vendorResponse, 0, len(entries))
	for _, e := range entries {
		vendors = append(vendors, toVendorResponse(e))
	}
	httputil.JSON(w, http.StatusOK, vendors)
}

// templateResponse carries a vendor's patterns. Undefined slots are
// empty strings, matching the storage representation.
type templateResponse struct {
	VendorID     string                    `json:"vendor_id"`
	VendorName   string                    `json:"vendor_name"`
	Patterns     [vdomain.SlotCount]string `json:"patterns"`
	SlotsDefined int                       `json:"slots_defined"`
}

// GetTemplate handles GET /api/v1/vendors/{id}/template
func (h *Handler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	vendor, tpl, err := h.service.GetTemplate(chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	if tpl == nil {
		httputil.Error(w, errors.NotFound("template"))
		return
	}

	httputil.JSON(w, http.StatusOK, templateResponse{
		VendorID:     vendor.ID,
		VendorName:   vendor.Name,
		Patterns:     tpl.Patterns(),
		SlotsDefined: tpl.DefinedCount(),
	})
}

// updateTemplateRequest is the manual template upsert payload
type updateTemplateRequest struct {
	Patterns [vdomain.SlotCount]string `json:"patterns" validate:"required"`
}

// UpdateTemplate handles PUT /api/v1/vendors/{id}/template
func (h *Handler) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	vendorID := chi.URLParam(r, "id")

	var req updateTemplateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, errors.BadRequest("invalid request body"))
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	merged, err := h.service.UpdateTemplate(r.Context(), vendorID, vdomain.TemplateFromPatterns(req.Patterns))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	vendor, _, err := h.service.GetTemplate(vendorID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, templateResponse{
		VendorID:     vendor.ID,
		VendorName:   vendor.Name,
		Patterns:     merged.Patterns(),
		SlotsDefined: merged.DefinedCount(),
	})
}

func queryInt(r *http.Request, key string, def int) int {
	if raw := r.URL.Query().Get(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			return v
		}
	}
	return def
}
