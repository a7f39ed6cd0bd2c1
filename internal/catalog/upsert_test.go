package catalog_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/job-catalog/internal/catalog"
	"github.com/jonathan/job-catalog/internal/db"
)

func fullRecord(refNr string) *catalog.JobDetailRecord {
	return &catalog.JobDetailRecord{
		RefNr:            refNr,
		Title:            "Koch (m/w/d)",
		Employer:         "Gasthaus Adler",
		Location:         catalog.Location{City: "Berlin", PostalCode: "10115", Coordinates: &catalog.Coordinates{Lat: 52.5, Lon: 13.4}},
		Description:      "Wir suchen Verstärkung.",
		Skills:           []string{"Kochen", "Hygiene"},
		Compensation:     "nach Tarif",
		ContractDuration: "unbefristet",
		PublishedAt:      "2026-10-01",
		StartDate:        "2026-11-01",
		LogoURL:          "https://example.org/logo.png",
	}
}

func TestUpsert_CreatesEntryWithUnknownContact(t *testing.T) {
	store := db.NewMemoryStore()
	u := catalog.NewUpserter(store)

	entry, err := u.Upsert(context.Background(), fullRecord("r1"))
	require.NoError(t, err)
	assert.Equal(t, "r1", entry.RefNr)
	assert.Equal(t, catalog.ContactUnknown, entry.ContactStatus)
	assert.True(t, entry.Contact.IsEmpty())
	assert.False(t, entry.CreatedAt.IsZero())
	assert.Equal(t, entry.CreatedAt, entry.UpdatedAt)
	assert.Nil(t, entry.LastContactFetch)

	stored, err := store.GetEntry(context.Background(), "r1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "Koch (m/w/d)", stored.Detail.Title)
}

func TestUpsert_PreservesCreatedAtAcrossSyncs(t *testing.T) {
	store := db.NewMemoryStore()
	u := catalog.NewUpserter(store)
	ctx := context.Background()

	first, err := u.Upsert(ctx, fullRecord("r1"))
	require.NoError(t, err)
	before, err := store.GetEntry(ctx, "r1")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	second, err := u.Upsert(ctx, fullRecord("r1"))
	require.NoError(t, err)
	after, err := store.GetEntry(ctx, "r1")
	require.NoError(t, err)

	assert.Equal(t, before.CreatedAt, after.CreatedAt)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.True(t, after.UpdatedAt.After(before.UpdatedAt))
	assert.True(t, after.LastSyncedAt.After(before.LastSyncedAt))
}

func TestUpsert_AbsentFieldsDoNotEraseKnownValues(t *testing.T) {
	store := db.NewMemoryStore()
	u := catalog.NewUpserter(store)
	ctx := context.Background()

	_, err := u.Upsert(ctx, fullRecord("r1"))
	require.NoError(t, err)

	// enrichment failed this time: only the stub fields are known
	stubOnly := catalog.FromStub(catalog.ListingStub{RefNr: "r1", Title: "Koch", Employer: "Gasthaus Adler"})
	_, err = u.Upsert(ctx, stubOnly)
	require.NoError(t, err)

	got, err := store.GetEntry(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "Koch", got.Detail.Title, "present values overwrite")
	assert.Equal(t, "Wir suchen Verstärkung.", got.Detail.Description)
	assert.Equal(t, []string{"Kochen", "Hygiene"}, got.Detail.Skills)
	assert.Equal(t, "nach Tarif", got.Detail.Compensation)
	assert.Equal(t, "Berlin", got.Detail.Location.City)
	require.NotNil(t, got.Detail.Location.Coordinates)
	assert.Equal(t, "https://example.org/logo.png", got.Detail.LogoURL)
}

func TestUpsert_KeepsContactFromLookup(t *testing.T) {
	store := db.NewMemoryStore()
	u := catalog.NewUpserter(store)
	ctx := context.Background()

	_, err := u.Upsert(ctx, fullRecord("r1"))
	require.NoError(t, err)

	fetchedAt := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	contact := &catalog.ContactInfo{Email: "jobs@gasthaus.test"}
	require.NoError(t, store.PatchContact(ctx, "r1", contact, catalog.ContactFound, fetchedAt))

	_, err = u.Upsert(ctx, fullRecord("r1"))
	require.NoError(t, err)

	got, err := store.GetEntry(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "jobs@gasthaus.test", got.Contact.Email)
	assert.Equal(t, catalog.ContactFound, got.ContactStatus)
	require.NotNil(t, got.LastContactFetch)
	assert.Equal(t, fetchedAt, *got.LastContactFetch)
}

func TestUpsert_NormalizesWhitespace(t *testing.T) {
	store := db.NewMemoryStore()
	u := catalog.NewUpserter(store)

	rec := &catalog.JobDetailRecord{RefNr: "  r1 ", Title: " Koch ", Skills: []string{" Kochen", "", "Kochen", "Backen "}}
	entry, err := u.Upsert(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, "r1", entry.RefNr)
	assert.Equal(t, "Koch", entry.Detail.Title)
	assert.Equal(t, []string{"Kochen", "Backen"}, entry.Detail.Skills)
}

func TestUpsert_RejectsInvalidRecords(t *testing.T) {
	u := catalog.NewUpserter(db.NewMemoryStore())

	_, err := u.Upsert(context.Background(), nil)
	assert.Error(t, err)

	_, err = u.Upsert(context.Background(), &catalog.JobDetailRecord{Title: "no key"})
	assert.Error(t, err)
}

type failingStore struct {
	catalog.Store
	getErr error
	putErr error
}

func (f failingStore) GetEntry(ctx context.Context, refNr string) (*catalog.CatalogEntry, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.Store.GetEntry(ctx, refNr)
}

func (f failingStore) PutEntry(ctx context.Context, entry *catalog.CatalogEntry) error {
	if f.putErr != nil {
		return f.putErr
	}
	return f.Store.PutEntry(ctx, entry)
}

func TestUpsert_PropagatesStoreErrors(t *testing.T) {
	boom := errors.New("store down")

	_, err := catalog.NewUpserter(failingStore{Store: db.NewMemoryStore(), getErr: boom}).Upsert(context.Background(), fullRecord("r1"))
	assert.ErrorIs(t, err, boom)

	_, err = catalog.NewUpserter(failingStore{Store: db.NewMemoryStore(), putErr: boom}).Upsert(context.Background(), fullRecord("r1"))
	assert.ErrorIs(t, err, boom)
}
