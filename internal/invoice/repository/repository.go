// Package repository persists extracted invoices and their line items.
package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/invoiceflow/invoiceflow-backend/internal/invoice/domain"
	"github.com/invoiceflow/invoiceflow-backend/pkg/database"
	"github.com/invoiceflow/invoiceflow-backend/pkg/errors"
)

// InvoiceRepository handles invoice persistence
type InvoiceRepository struct {
	db *database.DB
}

// NewInvoiceRepository creates a new invoice repository
func NewInvoiceRepository(db *database.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// Create inserts an invoice and its line items in one transaction.
// A duplicate (vendor_id, invoice_number) pair maps to a conflict.
func (r *InvoiceRepository) Create(ctx context.Context, inv *domain.Invoice) error {
	if inv.ID == "" {
		inv.ID = uuid.New().String()
	}

	err := r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO invoices (
				id, vendor_id, restaurant_id, filename, invoice_number, invoice_date,
				order_date, total_amount, engine_used, escalated, partial, flags,
				raw_text, text_length, page_count
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			RETURNING created_at
		`
		err := tx.QueryRowxContext(ctx, query,
			inv.ID, inv.VendorID, inv.RestaurantID, inv.Filename, inv.InvoiceNumber,
			inv.InvoiceDate, inv.OrderDate, inv.TotalAmount, inv.EngineUsed,
			inv.Escalated, inv.Partial, inv.Flags, inv.RawText, inv.TextLength,
			inv.PageCount,
		).Scan(&inv.CreatedAt)
		if err != nil {
			return err
		}

		itemQuery := `
			INSERT INTO line_items (
				id, invoice_id, vendor_name, line_number, description, quantity,
				unit, unit_price, line_total, category, flags
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`
		for i := range inv.LineItems {
			item := &inv.LineItems[i]
			if item.ID == "" {
				item.ID = uuid.New().String()
			}
			item.InvoiceID = inv.ID
			if _, err := tx.ExecContext(ctx, itemQuery,
				item.ID, item.InvoiceID, item.VendorName, item.LineNumber,
				item.Description, item.Quantity, item.Unit, item.UnitPrice,
				item.LineTotal, item.Category, item.Flags,
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// CheckDuplicate reports whether the vendor already has an invoice
// with the given number.
func (r *InvoiceRepository) CheckDuplicate(ctx context.Context, vendorID, invoiceNumber string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM invoices WHERE vendor_id = $1 AND invoice_number = $2)`
	if err := r.db.GetContext(ctx, &exists, query, vendorID, invoiceNumber); err != nil {
		return false, err
	}
	return exists, nil
}

// GetByID returns an invoice with its line items in line order
func (r *InvoiceRepository) GetByID(ctx context.Context, id string) (*domain.Invoice, error) {
	var inv domain.Invoice
	query := `SELECT * FROM invoices WHERE id = $1`
	if err := r.db.GetContext(ctx, &inv, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("invoice")
		}
		return nil, err
	}

	itemQuery := `SELECT * FROM line_items WHERE invoice_id = $1 ORDER BY line_number`
	if err := r.db.SelectContext(ctx, &inv.LineItems, itemQuery, id); err != nil {
		return nil, err
	}
	return &inv, nil
}

// List returns invoices newest first, optionally filtered by vendor.
// Line items are not loaded.
func (r *InvoiceRepository) List(ctx context.Context, vendorID string, limit, offset int) ([]*domain.Invoice, error) {
	if limit <= 0 {
		limit = 50
	}

	var invoices []*domain.Invoice
	if vendorID != "" {
		query := `
			SELECT * FROM invoices WHERE vendor_id = $1
			ORDER BY created_at DESC LIMIT $2 OFFSET $3
		`
		if err := r.db.SelectContext(ctx, &invoices, query, vendorID, limit, offset); err != nil {
			return nil, err
		}
		return invoices, nil
	}

	query := `SELECT * FROM invoices ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	if err := r.db.SelectContext(ctx, &invoices, query, limit, offset); err != nil {
		return nil, err
	}
	return invoices, nil
}

// Count returns the invoice count, optionally filtered by vendor
func (r *InvoiceRepository) Count(ctx context.Context, vendorID string) (int, error) {
	var count int
	if vendorID != "" {
		query := `SELECT COUNT(*) FROM invoices WHERE vendor_id = $1`
		if err := r.db.GetContext(ctx, &count, query, vendorID); err != nil {
			return 0, err
		}
		return count, nil
	}
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM invoices`); err != nil {
		return 0, err
	}
	return count, nil
}
