package db

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/job-catalog/internal/catalog"
)

func TestMemoryStore_GetMissingEntry(t *testing.T) {
	m := NewMemoryStore()
	e, err := m.GetEntry(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestMemoryStore_PutEntryKeepsCreatedAtAndContact(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(24 * time.Hour)

	require.NoError(t, m.PutEntry(ctx, &catalog.CatalogEntry{
		RefNr: "r1", Detail: catalog.JobDetailRecord{RefNr: "r1", Title: "A"},
		CreatedAt: t0, UpdatedAt: t0, LastSyncedAt: t0,
	}))
	require.NoError(t, m.PatchContact(ctx, "r1", &catalog.ContactInfo{Phone: "030 1"}, catalog.ContactFound, t0))

	require.NoError(t, m.PutEntry(ctx, &catalog.CatalogEntry{
		RefNr: "r1", Detail: catalog.JobDetailRecord{RefNr: "r1", Title: "B"},
		ContactStatus: catalog.ContactUnknown,
		CreatedAt:     t1, UpdatedAt: t1, LastSyncedAt: t1,
	}))

	e, err := m.GetEntry(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "B", e.Detail.Title)
	assert.Equal(t, t0, e.CreatedAt)
	assert.Equal(t, t1, e.UpdatedAt)
	assert.Equal(t, "030 1", e.Contact.Phone)
	assert.Equal(t, catalog.ContactFound, e.ContactStatus)
	assert.Equal(t, 1, m.Len())
}

func TestMemoryStore_NewEntryDefaultsToUnknown(t *testing.T) {
	m := NewMemoryStore()
	require.NoError(t, m.PutEntry(context.Background(), &catalog.CatalogEntry{RefNr: "r1"}))
	e, err := m.GetEntry(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, catalog.ContactUnknown, e.ContactStatus)
}

func TestMemoryStore_PatchContactRequiresEntry(t *testing.T) {
	m := NewMemoryStore()
	err := m.PatchContact(context.Background(), "missing", &catalog.ContactInfo{Email: "a@b.de"}, catalog.ContactFound, time.Now())
	assert.ErrorIs(t, err, catalog.ErrNotFound)
	assert.Equal(t, 0, m.Len())
}

func TestMemoryStore_PatchContactNilMeansNone(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, m.PutEntry(ctx, &catalog.CatalogEntry{RefNr: "r1"}))

	at := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, m.PatchContact(ctx, "r1", nil, catalog.ContactNone, at))

	e, err := m.GetEntry(ctx, "r1")
	require.NoError(t, err)
	assert.True(t, e.Contact.IsEmpty())
	assert.Equal(t, catalog.ContactNone, e.ContactStatus)
	require.NotNil(t, e.LastContactFetch)
	assert.Equal(t, at, *e.LastContactFetch)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, m.PutEntry(ctx, &catalog.CatalogEntry{
		RefNr:  "r1",
		Detail: catalog.JobDetailRecord{RefNr: "r1", Skills: []string{"A"}},
	}))
	require.NoError(t, m.PatchContact(ctx, "r1", &catalog.ContactInfo{Address: &catalog.Address{City: "Berlin"}}, catalog.ContactFound, time.Now()))

	e, err := m.GetEntry(ctx, "r1")
	require.NoError(t, err)
	e.Detail.Skills[0] = "changed"
	e.Contact.Address.City = "changed"

	again, err := m.GetEntry(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "A", again.Detail.Skills[0])
	assert.Equal(t, "Berlin", again.Contact.Address.City)
}

func TestMemoryStore_SyncRuns(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	first := &SyncRun{Trigger: TriggerScheduled}
	require.NoError(t, m.CreateSyncRun(ctx, first))
	assert.NotEqual(t, uuid.Nil, first.ID)
	assert.Equal(t, RunStatusRunning, first.Status)

	time.Sleep(2 * time.Millisecond)
	second := &SyncRun{Trigger: TriggerManual}
	require.NoError(t, m.CreateSyncRun(ctx, second))

	first.Status = RunStatusDone
	first.Processed = 3
	first.Saved = 3
	require.NoError(t, m.CompleteSyncRun(ctx, first))
	assert.NotNil(t, first.CompletedAt)

	runs, err := m.ListSyncRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID, "newest first")
	assert.Equal(t, RunStatusDone, runs[1].Status)
	assert.Equal(t, 3, runs[1].Saved)

	limited, err := m.ListSyncRuns(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
