package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Upserter writes detail records into the store with create-or-update semantics.
// It owns created_at / updated_at bookkeeping for the sync path.
type Upserter struct {
	store Store
	now   func() time.Time
}

// NewUpserter creates an Upserter over the given store.
func NewUpserter(store Store) *Upserter {
	return &Upserter{store: store, now: time.Now}
}

// Normalize trims whitespace and drops blank skill tags so that
// formatting noise from the API never overwrites stored values.
func Normalize(rec JobDetailRecord) JobDetailRecord {
	rec.RefNr = strings.TrimSpace(rec.RefNr)
	rec.Title = strings.TrimSpace(rec.Title)
	rec.Employer = strings.TrimSpace(rec.Employer)
	rec.Description = strings.TrimSpace(rec.Description)
	rec.Compensation = strings.TrimSpace(rec.Compensation)
	rec.ContractDuration = strings.TrimSpace(rec.ContractDuration)
	rec.PublishedAt = strings.TrimSpace(rec.PublishedAt)
	rec.StartDate = strings.TrimSpace(rec.StartDate)
	rec.LogoURL = strings.TrimSpace(rec.LogoURL)
	rec.Location.City = strings.TrimSpace(rec.Location.City)
	rec.Location.PostalCode = strings.TrimSpace(rec.Location.PostalCode)

	if len(rec.Skills) > 0 {
		skills := make([]string, 0, len(rec.Skills))
		seen := make(map[string]bool, len(rec.Skills))
		for _, s := range rec.Skills {
			s = strings.TrimSpace(s)
			if s == "" || seen[s] {
				continue
			}
			seen[s] = true
			skills = append(skills, s)
		}
		rec.Skills = skills
	}
	return rec
}

// Upsert stores rec keyed by its reference number.
// An existing entry keeps its created_at and any field rec leaves empty.
// New entries start with an empty contact in the unknown state.
func (u *Upserter) Upsert(ctx context.Context, rec *JobDetailRecord) (*CatalogEntry, error) {
	if rec == nil {
		return nil, fmt.Errorf("upsert: nil record")
	}
	normalized := Normalize(*rec)
	if normalized.RefNr == "" {
		return nil, fmt.Errorf("upsert: record has no reference number")
	}

	existing, err := u.store.GetEntry(ctx, normalized.RefNr)
	if err != nil {
		return nil, fmt.Errorf("upsert %s: read existing: %w", normalized.RefNr, err)
	}

	now := u.now().UTC()
	entry := &CatalogEntry{
		RefNr:         normalized.RefNr,
		Detail:        normalized,
		ContactStatus: ContactUnknown,
		CreatedAt:     now,
		UpdatedAt:     now,
		LastSyncedAt:  now,
	}
	if existing != nil {
		entry.Detail = MergeDetail(existing.Detail, normalized)
		entry.CreatedAt = existing.CreatedAt
		entry.Contact = existing.Contact
		entry.ContactStatus = existing.ContactStatus
		entry.LastContactFetch = existing.LastContactFetch
	}

	if err := u.store.PutEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("upsert %s: write: %w", normalized.RefNr, err)
	}
	return entry, nil
}
