package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/job-catalog/internal/catalog"
)

// MemoryStore is an in-process implementation of the catalog store and the
// sync run history. It follows the same write rules as the Postgres tables and
// is used by tests and by the CLI when no database is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]catalog.CatalogEntry
	runs    map[uuid.UUID]SyncRun
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]catalog.CatalogEntry),
		runs:    make(map[uuid.UUID]SyncRun),
	}
}

// GetEntry returns a copy of the stored entry, or (nil, nil).
func (m *MemoryStore) GetEntry(_ context.Context, refNr string) (*catalog.CatalogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[refNr]
	if !ok {
		return nil, nil
	}
	return cloneEntry(e), nil
}

// PutEntry inserts or updates the detail fields of an entry.
func (m *MemoryStore) PutEntry(_ context.Context, entry *catalog.CatalogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := *cloneEntry(*entry)
	if prev, ok := m.entries[entry.RefNr]; ok {
		next.CreatedAt = prev.CreatedAt
		next.Contact = prev.Contact
		next.ContactStatus = prev.ContactStatus
		next.LastContactFetch = prev.LastContactFetch
	} else if next.ContactStatus == "" {
		next.ContactStatus = catalog.ContactUnknown
	}
	m.entries[entry.RefNr] = next
	return nil
}

// PatchContact updates the contact fields of an existing entry.
func (m *MemoryStore) PatchContact(_ context.Context, refNr string, contact *catalog.ContactInfo, status catalog.ContactStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[refNr]
	if !ok {
		return catalog.ErrNotFound
	}
	if contact == nil {
		contact = &catalog.ContactInfo{}
	}
	e.Contact = cloneContact(*contact)
	e.ContactStatus = status
	fetched := at
	e.LastContactFetch = &fetched
	e.UpdatedAt = at
	m.entries[refNr] = e
	return nil
}

// Len returns the number of stored entries.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// CreateSyncRun records a new run.
func (m *MemoryStore) CreateSyncRun(_ context.Context, run *SyncRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.Status == "" {
		run.Status = RunStatusRunning
	}
	run.StartedAt = time.Now().UTC()
	m.runs[run.ID] = *run
	return nil
}

// CompleteSyncRun stores the final state of a run.
func (m *MemoryStore) CompleteSyncRun(_ context.Context, run *SyncRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	run.CompletedAt = &now
	m.runs[run.ID] = *run
	return nil
}

// ListSyncRuns returns runs newest first.
func (m *MemoryStore) ListSyncRuns(_ context.Context, limit int) ([]SyncRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	runs := make([]SyncRun, 0, len(m.runs))
	for _, r := range m.runs {
		runs = append(runs, r)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func cloneEntry(e catalog.CatalogEntry) *catalog.CatalogEntry {
	out := e
	out.Detail = catalog.MergeDetail(catalog.JobDetailRecord{}, e.Detail)
	out.Contact = cloneContact(e.Contact)
	if e.LastContactFetch != nil {
		t := *e.LastContactFetch
		out.LastContactFetch = &t
	}
	return &out
}

func cloneContact(c catalog.ContactInfo) catalog.ContactInfo {
	out := c
	if c.Address != nil {
		a := *c.Address
		out.Address = &a
	}
	return out
}
