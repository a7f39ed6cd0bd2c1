package catalog

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by PatchContact when no entry exists for the reference number.
var ErrNotFound = errors.New("catalog entry not found")

// Store is the keyed document store shared by both pipelines.
//
// GetEntry returns (nil, nil) when the entry does not exist.
// PutEntry must never modify the contact fields or created_at of an existing row.
// PatchContact only updates the contact fields and never creates a row.
type Store interface {
	GetEntry(ctx context.Context, refNr string) (*CatalogEntry, error)
	PutEntry(ctx context.Context, entry *CatalogEntry) error
	PatchContact(ctx context.Context, refNr string, contact *ContactInfo, status ContactStatus, at time.Time) error
}
