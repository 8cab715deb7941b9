package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invoiceflow/invoiceflow-backend/internal/vendors/domain"
	"github.com/invoiceflow/invoiceflow-backend/internal/vendors/identifier"
	"github.com/invoiceflow/invoiceflow-backend/internal/vendors/repository"
	"github.com/invoiceflow/invoiceflow-backend/pkg/database"
	"github.com/invoiceflow/invoiceflow-backend/pkg/logger"
	"github.com/invoiceflow/invoiceflow-backend/pkg/testutil"
)

func newStore(t *testing.T) (*Store, *testutil.MockDB) {
	mockDB := testutil.NewMockDB(t)
	db := database.NewFromDB(mockDB.DB, logger.New("test", "test"))
	repo := repository.NewVendorRepository(db)
	return New(repo, logger.New("test", "test")), mockDB
}

func vendorColumns() []string {
	return []string{
		"id", "name", "normalized_name", "address", "phone",
		"contact_email", "website", "created_at", "updated_at",
		"patterns", "tpl_source", "tpl_updated_at",
	}
}

func TestStore_LoadAndFind(t *testing.T) {
	s, mockDB := newStore(t)
	defer mockDB.Close()

	now := time.Now()
	patterns := testutil.SampleTemplatePatterns()

	rows := testutil.MockRows(vendorColumns()...).
		AddRow("v-1", "Fresh Farms Produce Co.", "freshfarmsproduceco",
			nil, nil, nil, nil, now, now,
			pq.StringArray(patterns[:]), "synthesis", now).
		AddRow("v-2", "No Template Vendor", "notemplatevendor",
			nil, nil, nil, nil, now, now,
			nil, nil, nil)

	mockDB.ExpectQuery("SELECT v.*, t.patterns AS patterns").WillReturnRows(rows)

	require.NoError(t, s.Load(context.Background()))

	e, ok := s.Find("freshfarmsproduceco")
	require.True(t, ok)
	assert.Equal(t, "v-1", e.Vendor.ID)
	require.NotNil(t, e.Template)
	assert.True(t, e.Template.Slots[domain.SlotInvoiceNumber].Defined)

	e, ok = s.Find("notemplatevendor")
	require.True(t, ok)
	assert.Nil(t, e.Template)

	_, ok = s.Find("unknown")
	assert.False(t, ok)

	mockDB.ExpectationsWereMet(t)
}

func TestStore_Create_WriteThrough(t *testing.T) {
	s, mockDB := newStore(t)
	defer mockDB.Close()

	now := time.Now()
	mockDB.ExpectBegin()
	mockDB.ExpectQuery("INSERT INTO vendors").
		WillReturnRows(testutil.MockRows("created_at", "updated_at").AddRow(now, now))
	mockDB.ExpectExec("INSERT INTO vendor_templates").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	tpl := domain.TemplateFromPatterns(testutil.SampleTemplatePatterns())
	e, err := s.Create(context.Background(), domain.Vendor{
		Name:           "Fresh Farms Produce Co.",
		NormalizedName: "freshfarmsproduceco",
	}, tpl, "synthesis")
	require.NoError(t, err)
	assert.NotEmpty(t, e.Vendor.ID)

	// Second create for the same normalized name hits the index, not the DB.
	e2, err := s.Create(context.Background(), domain.Vendor{
		Name:           "FRESH FARMS PRODUCE CO",
		NormalizedName: "freshfarmsproduceco",
	}, tpl, "synthesis")
	require.NoError(t, err)
	assert.Equal(t, e.Vendor.ID, e2.Vendor.ID)

	mockDB.ExpectationsWereMet(t)
}

func TestStore_Create_DBFailureDoesNotIndex(t *testing.T) {
	s, mockDB := newStore(t)
	defer mockDB.Close()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("INSERT INTO vendors").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "vendors_normalized_name_key"})
	mockDB.ExpectRollback()

	tpl := domain.TemplateFromPatterns(testutil.SampleTemplatePatterns())
	_, err := s.Create(context.Background(), domain.Vendor{
		Name:           "Fresh Farms",
		NormalizedName: "freshfarms",
	}, tpl, "synthesis")
	require.Error(t, err)

	_, ok := s.Find("freshfarms")
	assert.False(t, ok)
}

func TestStore_Create_TemplateFailureRollsBackVendor(t *testing.T) {
	s, mockDB := newStore(t)
	defer mockDB.Close()

	now := time.Now()
	mockDB.ExpectBegin()
	mockDB.ExpectQuery("INSERT INTO vendors").
		WillReturnRows(testutil.MockRows("created_at", "updated_at").AddRow(now, now))
	mockDB.ExpectExec("INSERT INTO vendor_templates").
		WillReturnError(&pq.Error{Code: "23502", Column: "patterns"})
	mockDB.ExpectRollback()

	tpl := domain.TemplateFromPatterns(testutil.SampleTemplatePatterns())
	_, err := s.Create(context.Background(), domain.Vendor{
		Name:           "Fresh Farms",
		NormalizedName: "freshfarms",
	}, tpl, "synthesis")
	require.Error(t, err)

	// No vendor row survives, so a retry can synthesize cleanly.
	_, ok := s.Find("freshfarms")
	assert.False(t, ok)

	now2 := time.Now()
	mockDB.ExpectBegin()
	mockDB.ExpectQuery("INSERT INTO vendors").
		WillReturnRows(testutil.MockRows("created_at", "updated_at").AddRow(now2, now2))
	mockDB.ExpectExec("INSERT INTO vendor_templates").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	e, err := s.Create(context.Background(), domain.Vendor{
		Name:           "Fresh Farms",
		NormalizedName: "freshfarms",
	}, tpl, "synthesis")
	require.NoError(t, err)
	assert.NotEmpty(t, e.Vendor.ID)
	mockDB.ExpectationsWereMet(t)
}

func TestStore_UpsertTemplate_MonotonicMerge(t *testing.T) {
	s, mockDB := newStore(t)
	defer mockDB.Close()

	now := time.Now()
	patterns := testutil.SampleTemplatePatterns()
	rows := testutil.MockRows(vendorColumns()...).
		AddRow("v-1", "Fresh Farms", "freshfarms",
			nil, nil, nil, nil, now, now,
			pq.StringArray(patterns[:]), "synthesis", now)
	mockDB.ExpectQuery("SELECT v.*, t.patterns AS patterns").WillReturnRows(rows)
	require.NoError(t, s.Load(context.Background()))

	mockDB.ExpectExec("INSERT INTO vendor_templates").
		WillReturnResult(sqlmock.NewResult(0, 1))

	var incoming domain.Template
	incoming.Slots[domain.SlotLineItemSplit] = domain.DefinedSlot(`---`)

	merged, changed, err := s.UpsertTemplate(context.Background(), "v-1", incoming, "manual")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, merged.Slots[domain.SlotLineItemSplit].Defined)
	// Existing slots survived the merge.
	assert.True(t, merged.Slots[domain.SlotInvoiceNumber].Defined)

	// The index reflects the merge.
	e, ok := s.FindByID("v-1")
	require.True(t, ok)
	assert.True(t, e.Template.Slots[domain.SlotLineItemSplit].Defined)

	mockDB.ExpectationsWereMet(t)
}

func TestStore_UpsertTemplate_NoChangeSkipsDB(t *testing.T) {
	s, mockDB := newStore(t)
	defer mockDB.Close()

	now := time.Now()
	patterns := testutil.SampleTemplatePatterns()
	rows := testutil.MockRows(vendorColumns()...).
		AddRow("v-1", "Fresh Farms", "freshfarms",
			nil, nil, nil, nil, now, now,
			pq.StringArray(patterns[:]), "synthesis", now)
	mockDB.ExpectQuery("SELECT v.*, t.patterns AS patterns").WillReturnRows(rows)
	require.NoError(t, s.Load(context.Background()))

	// Re-upserting the same template is a no-op: no DB write expected.
	same := domain.TemplateFromPatterns(patterns)
	_, changed, err := s.UpsertTemplate(context.Background(), "v-1", same, "manual")
	require.NoError(t, err)
	assert.False(t, changed)

	mockDB.ExpectationsWereMet(t)
}

func TestStore_FindBySignals_Priority(t *testing.T) {
	s, mockDB := newStore(t)
	defer mockDB.Close()

	now := time.Now()
	email := "orders@freshfarms.example"
	website := "https://freshfarms.example"

	rows := testutil.MockRows(vendorColumns()...).
		AddRow("v-1", "Fresh Farms", "freshfarms",
			nil, nil, email, website, now, now, nil, nil, nil).
		AddRow("v-2", "Other Vendor", "othervendor",
			nil, nil, nil, nil, now, now, nil, nil, nil)
	mockDB.ExpectQuery("SELECT v.*, t.patterns AS patterns").WillReturnRows(rows)
	require.NoError(t, s.Load(context.Background()))

	// Website beats a name that would match a different vendor.
	e, ok := s.FindBySignals(identifier.Signals{
		Name:    "Other Vendor",
		Website: website,
	})
	require.True(t, ok)
	assert.Equal(t, "v-1", e.Vendor.ID)

	// Name fallback.
	e, ok = s.FindBySignals(identifier.Signals{Name: "OTHER VENDOR"})
	require.True(t, ok)
	assert.Equal(t, "v-2", e.Vendor.ID)

	_, ok = s.FindBySignals(identifier.Signals{Name: "Unknown Co"})
	assert.False(t, ok)
}

func TestStore_TemplateWriteHeldByNameLock(t *testing.T) {
	s, mockDB := newStore(t)
	defer mockDB.Close()

	now := time.Now()
	patterns := testutil.SampleTemplatePatterns()
	rows := testutil.MockRows(vendorColumns()...).
		AddRow("v-1", "Fresh Farms", "freshfarms",
			nil, nil, nil, nil, now, now,
			pq.StringArray(patterns[:]), "synthesis", now)
	mockDB.ExpectQuery("SELECT v.*, t.patterns AS patterns").WillReturnRows(rows)
	require.NoError(t, s.Load(context.Background()))

	mockDB.ExpectExec("INSERT INTO vendor_templates").
		WillReturnResult(sqlmock.NewResult(0, 1))

	// Writes for an indexed vendor contend on the normalized-name lock,
	// the same key Create locks.
	lock := s.vendorLock("freshfarms")
	lock.Lock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		var incoming domain.Template
		incoming.Slots[domain.SlotLineItemSplit] = domain.DefinedSlot(`---`)
		_, _, err := s.UpsertTemplate(context.Background(), "v-1", incoming, "manual")
		assert.NoError(t, err)
	}()

	select {
	case <-done:
		t.Fatal("template write proceeded while the vendor lock was held")
	case <-time.After(50 * time.Millisecond):
	}

	lock.Unlock()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("template write never completed")
	}
	mockDB.ExpectationsWereMet(t)
}

func TestStore_EnrichContact(t *testing.T) {
	s, mockDB := newStore(t)
	defer mockDB.Close()

	now := time.Now()
	addr := "1 Old Street"
	rows := testutil.MockRows(vendorColumns()...).
		AddRow("v-1", "Fresh Farms", "freshfarms",
			addr, nil, nil, nil, now, now, nil, nil, nil)
	mockDB.ExpectQuery("SELECT v.*, t.patterns AS patterns").WillReturnRows(rows)
	require.NoError(t, s.Load(context.Background()))

	mockDB.ExpectQuery("UPDATE vendors").
		WillReturnRows(testutil.MockRows("updated_at").AddRow(time.Now()))

	conflicts, err := s.EnrichContact(context.Background(), "v-1", domain.ContactInfo{
		Address: "2 New Street",
		Phone:   "555-1234",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"address"}, conflicts)

	e, _ := s.FindByID("v-1")
	// Existing address untouched, phone filled.
	assert.Equal(t, addr, *e.Vendor.Address)
	require.NotNil(t, e.Vendor.Phone)
	assert.Equal(t, "555-1234", *e.Vendor.Phone)

	mockDB.ExpectationsWereMet(t)
}
