// Package domain holds the vendor aggregate: identity, contact details
// and the per-vendor extraction template.
package domain

import (
	"time"
)

// Vendor is a supplier whose invoices the system can extract.
type Vendor struct {
	ID             string    `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	NormalizedName string    `db:"normalized_name" json:"normalized_name"`
	Address        *string   `db:"address" json:"address,omitempty"`
	Phone          *string   `db:"phone" json:"phone,omitempty"`
	ContactEmail   *string   `db:"contact_email" json:"contact_email,omitempty"`
	Website        *string   `db:"website" json:"website,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// ContactInfo carries contact details observed in document text.
type ContactInfo struct {
	Address string
	Phone   string
	Email   string
	Website string
}

// EnrichContact fills unset contact fields from the observed info.
// Existing values are never overwritten; a differing observation is
// returned as a conflict for review instead.
func (v *Vendor) EnrichContact(info ContactInfo) (changed bool, conflicts []string) {
	if info.Address != "" {
		if v.Address == nil || *v.Address == "" {
			v.Address = &info.Address
			changed = true
		} else if *v.Address != info.Address {
			conflicts = append(conflicts, "address")
		}
	}
	if info.Phone != "" {
		if v.Phone == nil || *v.Phone == "" {
			v.Phone = &info.Phone
			changed = true
		} else if *v.Phone != info.Phone {
			conflicts = append(conflicts, "phone")
		}
	}
	if info.Email != "" {
		if v.ContactEmail == nil || *v.ContactEmail == "" {
			v.ContactEmail = &info.Email
			changed = true
		} else if *v.ContactEmail != info.Email {
			conflicts = append(conflicts, "contact_email")
		}
	}
	if info.Website != "" {
		if v.Website == nil || *v.Website == "" {
			v.Website = &info.Website
			changed = true
		} else if *v.Website != info.Website {
			conflicts = append(conflicts, "website")
		}
	}
	return changed, conflicts
}
