package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jonathan/job-catalog/internal/catalog"
)

// -----------------------------------------------------------------------------
// Catalog Entry Methods
// -----------------------------------------------------------------------------

// GetEntry retrieves a catalog entry by reference number
func (db *DB) GetEntry(ctx context.Context, refNr string) (*catalog.CatalogEntry, error) {
	var e catalog.CatalogEntry
	var dataJSON, contactJSON []byte
	var status string

	err := db.pool.QueryRow(ctx,
		`SELECT refnr, data, contact, contact_status, created_at, updated_at,
		        last_synced_at, last_contact_fetch
		 FROM catalog_entries WHERE refnr = $1`,
		refNr,
	).Scan(&e.RefNr, &dataJSON, &contactJSON, &status, &e.CreatedAt, &e.UpdatedAt,
		&e.LastSyncedAt, &e.LastContactFetch)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get catalog entry: %w", err)
	}

	if err := json.Unmarshal(dataJSON, &e.Detail); err != nil {
		return nil, fmt.Errorf("failed to decode entry data for %s: %w", refNr, err)
	}
	if len(contactJSON) > 0 {
		if err := json.Unmarshal(contactJSON, &e.Contact); err != nil {
			return nil, fmt.Errorf("failed to decode entry contact for %s: %w", refNr, err)
		}
	}
	e.ContactStatus = catalog.ContactStatus(status)

	return &e, nil
}

// PutEntry creates or updates the detail fields of a catalog entry.
// On conflict created_at and all contact columns are left untouched.
func (db *DB) PutEntry(ctx context.Context, entry *catalog.CatalogEntry) error {
	dataJSON, err := json.Marshal(entry.Detail)
	if err != nil {
		return fmt.Errorf("failed to marshal entry data: %w", err)
	}
	contactJSON, err := json.Marshal(entry.Contact)
	if err != nil {
		return fmt.Errorf("failed to marshal entry contact: %w", err)
	}
	status := entry.ContactStatus
	if status == "" {
		status = catalog.ContactUnknown
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO catalog_entries (refnr, data, contact, contact_status,
		                              created_at, updated_at, last_synced_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (refnr) DO UPDATE SET
		     data = EXCLUDED.data,
		     updated_at = EXCLUDED.updated_at,
		     last_synced_at = EXCLUDED.last_synced_at`,
		entry.RefNr, dataJSON, contactJSON, string(status),
		entry.CreatedAt, entry.UpdatedAt, entry.LastSyncedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to put catalog entry %s: %w", entry.RefNr, err)
	}
	return nil
}

// PatchContact stores a lookup result on an existing entry.
// Returns catalog.ErrNotFound when the entry does not exist.
func (db *DB) PatchContact(ctx context.Context, refNr string, contact *catalog.ContactInfo, status catalog.ContactStatus, at time.Time) error {
	if contact == nil {
		contact = &catalog.ContactInfo{}
	}
	contactJSON, err := json.Marshal(contact)
	if err != nil {
		return fmt.Errorf("failed to marshal contact: %w", err)
	}

	tag, err := db.pool.Exec(ctx,
		`UPDATE catalog_entries
		 SET contact = $2, contact_status = $3, last_contact_fetch = $4, updated_at = $4
		 WHERE refnr = $1`,
		refNr, contactJSON, string(status), at,
	)
	if err != nil {
		return fmt.Errorf("failed to patch contact for %s: %w", refNr, err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}
