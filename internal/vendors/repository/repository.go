// Package repository persists vendors and their extraction templates.
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/invoiceflow/invoiceflow-backend/internal/vendors/domain"
	"github.com/invoiceflow/invoiceflow-backend/pkg/database"
	"github.com/invoiceflow/invoiceflow-backend/pkg/errors"
)

// VendorRepository handles vendor and template persistence
type VendorRepository struct {
	db *database.DB
}

// NewVendorRepository creates a new vendor repository
func NewVendorRepository(db *database.DB) *VendorRepository {
	return &VendorRepository{db: db}
}

// Create inserts a vendor. The normalized name must be unique; a
// duplicate maps to a conflict error.
func (r *VendorRepository) Create(ctx context.Context, v *domain.Vendor) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}

	query := `
		INSERT INTO vendors (id, name, normalized_name, address, phone, contact_email, website)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		v.ID, v.Name, v.NormalizedName, v.Address, v.Phone, v.ContactEmail, v.Website,
	).Scan(&v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// CreateWithTemplate inserts a vendor and its template in one
// transaction. A template failure rolls the vendor row back, so a
// vendor never exists without its template.
func (r *VendorRepository) CreateWithTemplate(ctx context.Context, v *domain.Vendor, tpl domain.Template, source string) error {
	return r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		txRepo := r.WithTx(tx)
		if err := txRepo.Create(ctx, v); err != nil {
			return err
		}
		return txRepo.SaveTemplate(ctx, v.ID, tpl, source)
	})
}

// GetByID gets a vendor by ID
func (r *VendorRepository) GetByID(ctx context.Context, id string) (*domain.Vendor, error) {
	var v domain.Vendor
	query := `SELECT * FROM vendors WHERE id = $1`
	if err := r.db.GetContext(ctx, &v, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("vendor")
		}
		return nil, err
	}
	return &v, nil
}

// GetByNormalizedName gets a vendor by its dedup key
func (r *VendorRepository) GetByNormalizedName(ctx context.Context, normalized string) (*domain.Vendor, error) {
	var v domain.Vendor
	query := `SELECT * FROM vendors WHERE normalized_name = $1`
	if err := r.db.GetContext(ctx, &v, query, normalized); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("vendor")
		}
		return nil, err
	}
	return &v, nil
}

// List returns all vendors ordered by name
func (r *VendorRepository) List(ctx context.Context) ([]*domain.Vendor, error) {
	var vendors []*domain.Vendor
	query := `SELECT * FROM vendors ORDER BY name`
	if err := r.db.SelectContext(ctx, &vendors, query); err != nil {
		return nil, err
	}
	return vendors, nil
}

// UpdateContact persists the vendor's contact columns
func (r *VendorRepository) UpdateContact(ctx context.Context, v *domain.Vendor) error {
	query := `
		UPDATE vendors
		SET address = $2, phone = $3, contact_email = $4, website = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		v.ID, v.Address, v.Phone, v.ContactEmail, v.Website,
	).Scan(&v.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return errors.NotFound("vendor")
		}
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// SaveTemplate upserts a vendor's template. Undefined slots are stored
// as empty strings so the array stays positionally indexed at rest.
func (r *VendorRepository) SaveTemplate(ctx context.Context, vendorID string, tpl domain.Template, source string) error {
	patterns := tpl.Patterns()

	query := `
		INSERT INTO vendor_templates (vendor_id, patterns, source)
		VALUES ($1, $2, $3)
		ON CONFLICT (vendor_id)
		DO UPDATE SET patterns = EXCLUDED.patterns, source = EXCLUDED.source, updated_at = NOW()
	`
	_, err := r.db.ExecContext(ctx, query, vendorID, pq.Array(patterns[:]), source)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// GetTemplate loads a vendor's template
func (r *VendorRepository) GetTemplate(ctx context.Context, vendorID string) (domain.Template, error) {
	var raw pq.StringArray
	query := `SELECT patterns FROM vendor_templates WHERE vendor_id = $1`
	if err := r.db.GetContext(ctx, &raw, query, vendorID); err != nil {
		if err == sql.ErrNoRows {
			return domain.Template{}, errors.NotFound("template")
		}
		return domain.Template{}, err
	}
	return templateFromRaw(raw)
}

// VendorWithTemplate pairs a vendor row with its template, if any.
type VendorWithTemplate struct {
	Vendor   domain.Vendor
	Template *domain.Template
}

type vendorTemplateRow struct {
	domain.Vendor
	Patterns  pq.StringArray `db:"patterns"`
	TplSource *string        `db:"tpl_source"`
	TplTime   *time.Time     `db:"tpl_updated_at"`
}

// LoadAll loads every vendor joined with its template. Used to warm the
// in-memory template store at startup.
func (r *VendorRepository) LoadAll(ctx context.Context) ([]VendorWithTemplate, error) {
	query := `
		SELECT v.*, t.patterns AS patterns, t.source AS tpl_source, t.updated_at AS tpl_updated_at
		FROM vendors v
		LEFT JOIN vendor_templates t ON t.vendor_id = v.id
		ORDER BY v.name
	`

	var rows []vendorTemplateRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, err
	}

	out := make([]VendorWithTemplate, 0, len(rows))
	for _, row := range rows {
		entry := VendorWithTemplate{Vendor: row.Vendor}
		if row.Patterns != nil {
			tpl, err := templateFromRaw(row.Patterns)
			if err != nil {
				return nil, err
			}
			entry.Template = &tpl
		}
		out = append(out, entry)
	}
	return out, nil
}

// WithTx returns a repository bound to the given transaction.
func (r *VendorRepository) WithTx(tx *sqlx.Tx) *TxVendorRepository {
	return &TxVendorRepository{tx: tx}
}

// TxVendorRepository performs vendor writes inside a transaction.
type TxVendorRepository struct {
	tx *sqlx.Tx
}

// Create inserts a vendor within the transaction.
func (r *TxVendorRepository) Create(ctx context.Context, v *domain.Vendor) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}

	query := `
		INSERT INTO vendors (id, name, normalized_name, address, phone, contact_email, website)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`
	err := r.tx.QueryRowxContext(ctx, query,
		v.ID, v.Name, v.NormalizedName, v.Address, v.Phone, v.ContactEmail, v.Website,
	).Scan(&v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// SaveTemplate upserts a template within the transaction.
func (r *TxVendorRepository) SaveTemplate(ctx context.Context, vendorID string, tpl domain.Template, source string) error {
	patterns := tpl.Patterns()

	query := `
		INSERT INTO vendor_templates (vendor_id, patterns, source)
		VALUES ($1, $2, $3)
		ON CONFLICT (vendor_id)
		DO UPDATE SET patterns = EXCLUDED.patterns, source = EXCLUDED.source, updated_at = NOW()
	`
	_, err := r.tx.ExecContext(ctx, query, vendorID, pq.Array(patterns[:]), source)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

func templateFromRaw(raw pq.StringArray) (domain.Template, error) {
	if len(raw) != domain.SlotCount {
		return domain.Template{}, errors.Internal("stored template has wrong slot count")
	}
	var patterns [domain.SlotCount]string
	copy(patterns[:], raw)
	return domain.TemplateFromPatterns(patterns), nil
}
