// Package store keeps the process-wide vendor and template index.
// Lookups are served from memory; writes go through the repository
// first and only then update the index, so the index never gets ahead
// of the database.
package store

import (
	"context"
	"sync"

	"github.com/invoiceflow/invoiceflow-backend/internal/vendors/domain"
	"github.com/invoiceflow/invoiceflow-backend/internal/vendors/identifier"
	"github.com/invoiceflow/invoiceflow-backend/internal/vendors/repository"
	"github.com/invoiceflow/invoiceflow-backend/pkg/logger"
)

// Entry is one vendor with its template, if known.
type Entry struct {
	Vendor   domain.Vendor
	Template *domain.Template
}

// Store is the in-memory vendor index with write-through persistence.
// A global RWMutex guards the index maps; a per-vendor mutex serializes
// template writes for one vendor while writes on different vendors
// proceed concurrently.
type Store struct {
	repo   *repository.VendorRepository
	logger *logger.Logger

	mu           sync.RWMutex
	byNormalized map[string]*Entry
	byID         map[string]*Entry

	lockMu      sync.Mutex
	vendorLocks map[string]*sync.Mutex
}

// New creates an empty store backed by the repository.
func New(repo *repository.VendorRepository, log *logger.Logger) *Store {
	return &Store{
		repo:         repo,
		logger:       log,
		byNormalized: make(map[string]*Entry),
		byID:         make(map[string]*Entry),
		vendorLocks:  make(map[string]*sync.Mutex),
	}
}

// Load warms the index from the database. Called once at startup.
func (s *Store) Load(ctx context.Context) error {
	rows, err := s.repo.LoadAll(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.byNormalized = make(map[string]*Entry, len(rows))
	s.byID = make(map[string]*Entry, len(rows))
	for _, row := range rows {
		e := &Entry{Vendor: row.Vendor, Template: row.Template}
		s.byNormalized[row.Vendor.NormalizedName] = e
		s.byID[row.Vendor.ID] = e
	}

	s.logger.Info().Int("vendors", len(rows)).Msg("vendor index loaded")
	return nil
}

// vendorLock returns the mutex guarding writes for one vendor key.
func (s *Store) vendorLock(key string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	m, ok := s.vendorLocks[key]
	if !ok {
		m = &sync.Mutex{}
		s.vendorLocks[key] = m
	}
	return m
}

// lockKey resolves the write-lock key for a vendor ID. Locks are keyed
// by normalized name, the only key Create can lock before an ID exists;
// unindexed vendors fall back to the ID.
func (s *Store) lockKey(vendorID string) string {
	if e, ok := s.FindByID(vendorID); ok {
		return e.Vendor.NormalizedName
	}
	return vendorID
}

// Find looks a vendor up by normalized name.
func (s *Store) Find(normalizedName string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byNormalized[normalizedName]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// FindByID looks a vendor up by ID.
func (s *Store) FindByID(id string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byID[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// FindBySignals resolves a vendor from contact signals in priority
// order: website, email, phone, address, then normalized name.
func (s *Store) FindBySignals(sig identifier.Signals) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	match := func(pred func(v domain.Vendor) bool) (Entry, bool) {
		for _, e := range s.byNormalized {
			if pred(e.Vendor) {
				return *e, true
			}
		}
		return Entry{}, false
	}

	if sig.Website != "" {
		if e, ok := match(func(v domain.Vendor) bool {
			return v.Website != nil && *v.Website == sig.Website
		}); ok {
			return e, true
		}
	}
	if sig.Email != "" {
		if e, ok := match(func(v domain.Vendor) bool {
			return v.ContactEmail != nil && *v.ContactEmail == sig.Email
		}); ok {
			return e, true
		}
	}
	if sig.Phone != "" {
		if e, ok := match(func(v domain.Vendor) bool {
			return v.Phone != nil && *v.Phone == sig.Phone
		}); ok {
			return e, true
		}
	}
	if sig.Address != "" {
		if e, ok := match(func(v domain.Vendor) bool {
			return v.Address != nil && *v.Address == sig.Address
		}); ok {
			return e, true
		}
	}
	if sig.Name != "" {
		if e, ok := s.byNormalized[identifier.Normalize(sig.Name)]; ok {
			return *e, true
		}
	}
	return Entry{}, false
}

// List returns a snapshot of all vendors.
func (s *Store) List() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, len(s.byNormalized))
	for _, e := range s.byNormalized {
		out = append(out, *e)
	}
	return out
}

// Create persists a new vendor with its template and indexes it. If a
// concurrent Create for the same normalized name won the race, the
// existing entry is returned instead of an error.
func (s *Store) Create(ctx context.Context, vendor domain.Vendor, tpl domain.Template, source string) (Entry, error) {
	lock := s.vendorLock(vendor.NormalizedName)
	lock.Lock()
	defer lock.Unlock()

	if e, ok := s.Find(vendor.NormalizedName); ok {
		return e, nil
	}

	if err := s.repo.CreateWithTemplate(ctx, &vendor, tpl, source); err != nil {
		return Entry{}, err
	}

	e := &Entry{Vendor: vendor, Template: &tpl}

	s.mu.Lock()
	s.byNormalized[vendor.NormalizedName] = e
	s.byID[vendor.ID] = e
	s.mu.Unlock()

	return *e, nil
}

// UpsertTemplate merges the incoming template into the vendor's
// existing one (monotonic: incoming undefined slots never erase
// defined ones), persists, then updates the index. Returns the merged
// template and whether anything changed.
func (s *Store) UpsertTemplate(ctx context.Context, vendorID string, incoming domain.Template, source string) (domain.Template, bool, error) {
	lock := s.vendorLock(s.lockKey(vendorID))
	lock.Lock()
	defer lock.Unlock()

	current, ok := s.FindByID(vendorID)
	if !ok {
		// Not indexed: fall back to the database.
		tpl, err := s.repo.GetTemplate(ctx, vendorID)
		if err == nil {
			current.Template = &tpl
		}
	}

	base := domain.Template{}
	if current.Template != nil {
		base = *current.Template
	}

	merged, changed := base.Merge(incoming)
	if !changed {
		return merged, false, nil
	}

	if err := s.repo.SaveTemplate(ctx, vendorID, merged, source); err != nil {
		return domain.Template{}, false, err
	}

	s.mu.Lock()
	if e, ok := s.byID[vendorID]; ok {
		tplCopy := merged
		e.Template = &tplCopy
	}
	s.mu.Unlock()

	return merged, true, nil
}

// EnrichContact fills unset contact fields on the vendor from observed
// signals, persisting when something changed. Conflicting observations
// are returned for review, never applied.
func (s *Store) EnrichContact(ctx context.Context, vendorID string, info domain.ContactInfo) ([]string, error) {
	lock := s.vendorLock(s.lockKey(vendorID))
	lock.Lock()
	defer lock.Unlock()

	e, ok := s.FindByID(vendorID)
	if !ok {
		return nil, nil
	}

	vendor := e.Vendor
	changed, conflicts := vendor.EnrichContact(info)
	if !changed {
		return conflicts, nil
	}

	if err := s.repo.UpdateContact(ctx, &vendor); err != nil {
		return conflicts, err
	}

	s.mu.Lock()
	if entry, ok := s.byID[vendorID]; ok {
		entry.Vendor = vendor
	}
	s.mu.Unlock()

	return conflicts, nil
}
