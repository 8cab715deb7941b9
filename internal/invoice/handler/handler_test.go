package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	invrepo "github.com/invoiceflow/invoiceflow-backend/internal/invoice/repository"
	"github.com/invoiceflow/invoiceflow-backend/internal/invoice/service"
	"github.com/invoiceflow/invoiceflow-backend/internal/ocr"
	"github.com/invoiceflow/invoiceflow-backend/internal/quality"
	"github.com/invoiceflow/invoiceflow-backend/internal/raster"
	vdomain "github.com/invoiceflow/invoiceflow-backend/internal/vendors/domain"
	vrepo "github.com/invoiceflow/invoiceflow-backend/internal/vendors/repository"
	"github.com/invoiceflow/invoiceflow-backend/internal/vendors/store"
	"github.com/invoiceflow/invoiceflow-backend/pkg/database"
	"github.com/invoiceflow/invoiceflow-backend/pkg/logger"
	"github.com/invoiceflow/invoiceflow-backend/pkg/testutil"
)

type stubEngine struct {
	name string
	text string
}

func (e *stubEngine) Name() string { return e.name }

func (e *stubEngine) Recognize(ctx context.Context, in ocr.Input) (ocr.Result, error) {
	return ocr.Result{Text: e.text, Confidence: 0.9}, nil
}

type stubSynth struct{}

func (stubSynth) Synthesize(ctx context.Context, text string) (vdomain.Template, error) {
	return vdomain.TemplateFromPatterns(testutil.SampleTemplatePatterns()), nil
}

type fixture struct {
	router    chi.Router
	vendorDB  *testutil.MockDB
	invoiceDB *testutil.MockDB
	vendors   *store.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logger.New("test", "test")

	vendorDB := testutil.NewMockDB(t)
	vendors := store.New(vrepo.NewVendorRepository(database.NewFromDB(vendorDB.DB, log)), log)

	invoiceDB := testutil.NewMockDB(t)
	invoices := invrepo.NewInvoiceRepository(database.NewFromDB(invoiceDB.DB, log))

	thresholds := quality.Thresholds{
		SharpnessMin:  0.0001,
		ContrastMin:   0.01,
		BrightnessMin: 0.05,
		BrightnessMax: 0.95,
	}
	fast := &stubEngine{name: ocr.EngineFast, text: testutil.SampleInvoiceText}
	accurate := &stubEngine{name: ocr.EngineAccurate, text: testutil.SampleInvoiceText}
	gateway := ocr.NewGateway(fast, accurate, thresholds, 4, []string{"eng"}, log)

	svc := service.NewInvoiceService(
		raster.NewImageRenderer(), gateway, vendors, stubSynth{},
		invoices, testutil.NewMockPublisher(), log,
	)

	router := chi.NewRouter()
	NewHandler(svc, log).RegisterRoutes(router)

	return &fixture{router: router, vendorDB: vendorDB, invoiceDB: invoiceDB, vendors: vendors}
}

func vendorColumns() []string {
	return []string{
		"id", "name", "normalized_name", "address", "phone",
		"contact_email", "website", "created_at", "updated_at",
		"patterns", "tpl_source", "tpl_updated_at",
	}
}

func (f *fixture) loadKnownVendor(t *testing.T) {
	t.Helper()
	now := time.Now()
	patterns := testutil.SampleTemplatePatterns()
	rows := testutil.MockRows(vendorColumns()...).
		AddRow("v-1", "Fresh Farms Produce Co.", "freshfarmsproduceco",
			"123 Market Street, Springfield", nil, nil, nil, now, now,
			pq.StringArray(patterns[:]), "synthesis", now)
	f.vendorDB.ExpectQuery("SELECT v.*, t.patterns AS patterns").WillReturnRows(rows)
	require.NoError(t, f.vendors.Load(context.Background()))
}

func TestExtract(t *testing.T) {
	f := newFixture(t)
	defer f.vendorDB.Close()
	defer f.invoiceDB.Close()
	f.loadKnownVendor(t)

	f.invoiceDB.ExpectBegin()
	f.invoiceDB.ExpectQuery("INSERT INTO invoices").
		WillReturnRows(testutil.MockRows("created_at").AddRow(time.Now()))
	for i := 0; i < 3; i++ {
		f.invoiceDB.ExpectExec("INSERT INTO line_items").
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	f.invoiceDB.ExpectCommit()

	req := testutil.NewMultipartRequest(t, http.MethodPost, "/api/v1/invoices/extract",
		"file", "invoice.png", testutil.EncodePNG(testutil.SharpTestImage(64, 64)))
	rr := testutil.ExecuteRequest(f.router, req)

	testutil.AssertStatus(t, rr, http.StatusOK)
	testutil.AssertBodyContains(t, rr, "4471")
	testutil.AssertBodyContains(t, rr, "Fresh Farms Produce Co.")
}

func TestExtract_StoresRestaurantID(t *testing.T) {
	f := newFixture(t)
	defer f.vendorDB.Close()
	defer f.invoiceDB.Close()
	f.loadKnownVendor(t)

	f.invoiceDB.ExpectBegin()
	f.invoiceDB.ExpectQuery("INSERT INTO invoices").
		WillReturnRows(testutil.MockRows("created_at").AddRow(time.Now()))
	for i := 0; i < 3; i++ {
		f.invoiceDB.ExpectExec("INSERT INTO line_items").
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	f.invoiceDB.ExpectCommit()

	req := testutil.NewMultipartRequestWithFields(t, http.MethodPost, "/api/v1/invoices/extract",
		"file", "invoice.png", testutil.EncodePNG(testutil.SharpTestImage(64, 64)),
		map[string]string{"restaurant_id": "rest-77"})
	rr := testutil.ExecuteRequest(f.router, req)

	testutil.AssertStatus(t, rr, http.StatusOK)
	testutil.AssertBodyContains(t, rr, `"restaurant_id":"rest-77"`)
	testutil.AssertBodyContains(t, rr, `"vendor_name":"Fresh Farms Produce Co."`)
}

func TestExtract_MissingFile(t *testing.T) {
	f := newFixture(t)
	defer f.vendorDB.Close()
	defer f.invoiceDB.Close()

	req := testutil.NewHTTPRequest(http.MethodPost, "/api/v1/invoices/extract", nil)
	rr := testutil.ExecuteRequest(f.router, req)

	testutil.AssertStatus(t, rr, http.StatusBadRequest)
}

func TestExtract_InvalidImage(t *testing.T) {
	f := newFixture(t)
	defer f.vendorDB.Close()
	defer f.invoiceDB.Close()
	f.loadKnownVendor(t)

	req := testutil.NewMultipartRequest(t, http.MethodPost, "/api/v1/invoices/extract",
		"file", "broken.png", []byte("not an image"))
	rr := testutil.ExecuteRequest(f.router, req)

	testutil.AssertStatus(t, rr, http.StatusUnprocessableEntity)
	testutil.AssertBodyContains(t, rr, "RASTERIZE_FAILED")
}

func TestGetInvoice_NotFound(t *testing.T) {
	f := newFixture(t)
	defer f.vendorDB.Close()
	defer f.invoiceDB.Close()

	f.invoiceDB.ExpectQuery("SELECT \\* FROM invoices").
		WillReturnRows(testutil.MockRows("id"))

	req := testutil.NewHTTPRequest(http.MethodGet, "/api/v1/invoices/missing", nil)
	rr := testutil.ExecuteRequest(f.router, req)

	testutil.AssertStatus(t, rr, http.StatusNotFound)
}

func TestCheckDuplicate(t *testing.T) {
	f := newFixture(t)
	defer f.vendorDB.Close()
	defer f.invoiceDB.Close()

	f.invoiceDB.ExpectQuery("SELECT EXISTS").
		WithArgs("v-1", "4471").
		WillReturnRows(testutil.MockRows("exists").AddRow(true))

	req := testutil.NewHTTPRequest(http.MethodGet,
		"/api/v1/invoices/duplicate?vendor_id=v-1&invoice_number=4471", nil)
	rr := testutil.ExecuteRequest(f.router, req)

	testutil.AssertStatus(t, rr, http.StatusOK)
	testutil.AssertBodyContains(t, rr, `"duplicate":true`)
}

func TestCheckDuplicate_MissingParams(t *testing.T) {
	f := newFixture(t)
	defer f.vendorDB.Close()
	defer f.invoiceDB.Close()

	req := testutil.NewHTTPRequest(http.MethodGet, "/api/v1/invoices/duplicate", nil)
	rr := testutil.ExecuteRequest(f.router, req)

	testutil.AssertStatus(t, rr, http.StatusBadRequest)
	testutil.AssertBodyContains(t, rr, "VALIDATION_ERROR")
}

func TestListVendors(t *testing.T) {
	f := newFixture(t)
	defer f.vendorDB.Close()
	defer f.invoiceDB.Close()
	f.loadKnownVendor(t)

	req := testutil.NewHTTPRequest(http.MethodGet, "/api/v1/vendors/", nil)
	rr := testutil.ExecuteRequest(f.router, req)

	testutil.AssertStatus(t, rr, http.StatusOK)
	testutil.AssertBodyContains(t, rr, "freshfarmsproduceco")
	testutil.AssertBodyContains(t, rr, `"has_template":true`)
}

func TestGetTemplate(t *testing.T) {
	f := newFixture(t)
	defer f.vendorDB.Close()
	defer f.invoiceDB.Close()
	f.loadKnownVendor(t)

	req := testutil.NewHTTPRequest(http.MethodGet, "/api/v1/vendors/v-1/template", nil)
	rr := testutil.ExecuteRequest(f.router, req)

	testutil.AssertStatus(t, rr, http.StatusOK)

	var body struct {
		Data templateResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "v-1", body.Data.VendorID)
	assert.Equal(t, testutil.SampleTemplatePatterns(), body.Data.Patterns)
}

func TestGetTemplate_UnknownVendor(t *testing.T) {
	f := newFixture(t)
	defer f.vendorDB.Close()
	defer f.invoiceDB.Close()

	req := testutil.NewHTTPRequest(http.MethodGet, "/api/v1/vendors/missing/template", nil)
	rr := testutil.ExecuteRequest(f.router, req)

	testutil.AssertStatus(t, rr, http.StatusNotFound)
}

func TestUpdateTemplate_InvalidTemplate(t *testing.T) {
	f := newFixture(t)
	defer f.vendorDB.Close()
	defer f.invoiceDB.Close()
	f.loadKnownVendor(t)

	patterns := testutil.SampleTemplatePatterns()
	patterns[vdomain.SlotInvoiceNumber] = ""
	req := testutil.NewHTTPRequest(http.MethodPut, "/api/v1/vendors/v-1/template",
		updateTemplateRequest{Patterns: patterns})
	rr := testutil.ExecuteRequest(f.router, req)

	testutil.AssertStatus(t, rr, http.StatusBadRequest)
	testutil.AssertBodyContains(t, rr, "VALIDATION_ERROR")
}

func TestUpdateTemplate_EmptyPatterns(t *testing.T) {
	f := newFixture(t)
	defer f.vendorDB.Close()
	defer f.invoiceDB.Close()
	f.loadKnownVendor(t)

	// All-blank patterns never reach the merge.
	req := testutil.NewHTTPRequest(http.MethodPut, "/api/v1/vendors/v-1/template",
		updateTemplateRequest{})
	rr := testutil.ExecuteRequest(f.router, req)

	testutil.AssertStatus(t, rr, http.StatusBadRequest)
	testutil.AssertBodyContains(t, rr, "VALIDATION_ERROR")
}

