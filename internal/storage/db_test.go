package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lpoflow/internal"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func enqueue(t *testing.T, db *DB, hash string) internal.QueueItem {
	t.Helper()
	item, err := db.InsertQueueItem(internal.QueueRequest{
		Origin:        internal.OriginManual,
		Filename:      "order.pdf",
		FilePath:      "/tmp/order.pdf",
		CustomerEmail: "orders@acme.example",
		ContentHash:   hash,
	})
	require.NoError(t, err)
	return item
}

func TestInsertQueueItemDefaults(t *testing.T) {
	db := openTestDB(t)

	item := enqueue(t, db, "hash-1")
	assert.Equal(t, internal.StatusPending, item.Status)
	assert.Equal(t, internal.ExportNone, item.ExportStatus)
	assert.Nil(t, item.ProcessedAt)
	assert.False(t, item.CreatedAt.IsZero())
}

func TestHasQueueItemWithHash(t *testing.T) {
	db := openTestDB(t)
	enqueue(t, db, "hash-1")

	found, err := db.HasQueueItemWithHash("hash-1")
	require.NoError(t, err)
	assert.True(t, found)

	found, err = db.HasQueueItemWithHash("hash-2")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestClaimQueueItemIsCompareAndSet(t *testing.T) {
	db := openTestDB(t)
	item := enqueue(t, db, "hash-1")

	claimed, err := db.ClaimQueueItem(item.ID)
	require.NoError(t, err)
	assert.True(t, claimed)

	// A second claim must lose.
	claimed, err = db.ClaimQueueItem(item.ID)
	require.NoError(t, err)
	assert.False(t, claimed)

	got, err := db.GetQueueItem(item.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, internal.StatusProcessing, got.Status)
	assert.NotNil(t, got.ProcessedAt)
}

func TestMarkCompletedOpensExportLifecycle(t *testing.T) {
	db := openTestDB(t)
	item := enqueue(t, db, "hash-1")

	_, err := db.ClaimQueueItem(item.ID)
	require.NoError(t, err)

	parse := &internal.ParseResult{
		PONumber: "PO-1001",
		Items:    []internal.LineItem{{LPOName: "SUNFLOWER OIL TIN", SystemName: "Sunflower Oil 4x4LTR Tin", Quantity: 3}},
	}
	require.NoError(t, db.MarkCompleted(item.ID, parse))

	got, err := db.GetQueueItem(item.ID)
	require.NoError(t, err)
	assert.Equal(t, internal.StatusCompleted, got.Status)
	assert.Equal(t, internal.ExportPending, got.ExportStatus)
	require.NotNil(t, got.ParseResult)
	assert.Equal(t, "PO-1001", got.ParseResult.PONumber)
}

func TestTransitionsAreGuarded(t *testing.T) {
	db := openTestDB(t)
	item := enqueue(t, db, "hash-1")

	// Completing a still-pending item must not be possible.
	err := db.MarkCompleted(item.ID, &internal.ParseResult{})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = db.ClaimQueueItem(item.ID)
	require.NoError(t, err)
	require.NoError(t, db.MarkFailed(item.ID, nil, "no items found"))

	// Failed is terminal.
	err = db.MarkCompleted(item.ID, &internal.ParseResult{})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	got, err := db.GetQueueItem(item.ID)
	require.NoError(t, err)
	assert.Equal(t, internal.StatusFailed, got.Status)
	assert.Equal(t, internal.ExportNone, got.ExportStatus)
	assert.Equal(t, "no items found", got.ErrorMessage)
}

func TestMarkExportedIsAtomic(t *testing.T) {
	db := openTestDB(t)

	a := enqueue(t, db, "hash-a")
	b := enqueue(t, db, "hash-b")
	for _, id := range []int64{a.ID, b.ID} {
		_, err := db.ClaimQueueItem(id)
		require.NoError(t, err)
		require.NoError(t, db.MarkCompleted(id, &internal.ParseResult{}))
	}

	require.NoError(t, db.MarkExported([]int64{a.ID, b.ID}, "batch-1", "/out/batch-1.csv"))

	// A second export including an already-exported item must change
	// nothing.
	c := enqueue(t, db, "hash-c")
	_, err := db.ClaimQueueItem(c.ID)
	require.NoError(t, err)
	require.NoError(t, db.MarkCompleted(c.ID, &internal.ParseResult{}))

	err = db.MarkExported([]int64{c.ID, a.ID}, "batch-2", "/out/batch-2.csv")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	got, err := db.GetQueueItem(c.ID)
	require.NoError(t, err)
	assert.Equal(t, internal.ExportPending, got.ExportStatus)
	assert.Empty(t, got.ExportRef)

	got, err = db.GetQueueItem(a.ID)
	require.NoError(t, err)
	assert.Equal(t, "batch-1", got.ExportRef)
}

func TestListExportableFiltersIDs(t *testing.T) {
	db := openTestDB(t)

	a := enqueue(t, db, "hash-a")
	b := enqueue(t, db, "hash-b")
	_, err := db.ClaimQueueItem(a.ID)
	require.NoError(t, err)
	require.NoError(t, db.MarkCompleted(a.ID, &internal.ParseResult{}))

	items, err := db.ListExportable(nil, 100)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, a.ID, items[0].ID)

	// b is still pending, so an explicit selection skips it.
	items, err = db.ListExportable([]int64{a.ID, b.ID}, 100)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, a.ID, items[0].ID)
}

func TestCustomersAndMappings(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.UpsertCustomer(internal.Customer{
		Email: "orders@acme.example", Name: "Acme Trading LLC", PaymentTermsDays: 30, Currency: "AED", Active: true,
	}))
	require.NoError(t, db.UpsertCustomer(internal.Customer{
		Email: "orders@acme.example", Name: "Acme Trading LLC - Marina", PaymentTermsDays: 30, Currency: "AED", Active: true,
	}))

	customers, err := db.ListCustomersByEmail("ORDERS@acme.example")
	require.NoError(t, err)
	require.Len(t, customers, 2)
	assert.Equal(t, "Acme Trading LLC", customers[0].Name)

	require.NoError(t, db.UpsertProductMapping(internal.ProductMapping{
		CustomerEmail: "orders@acme.example",
		LPOName:       "SUNFLOWER OIL TIN",
		SystemName:    "Sunflower Oil 4x4LTR Tin",
		UnitPrice:     94.5, Unit: "TIN", VATRate: 5, Active: true,
	}))
	require.NoError(t, db.UpsertProductMapping(internal.ProductMapping{
		CustomerEmail: "orders@acme.example",
		LPOName:       "SUNFLOWER OIL TIN",
		SystemName:    "Sunflower Oil 4x4LTR Tin",
		UnitPrice:     96.0, Unit: "TIN", VATRate: 5, Active: true,
	}))

	mappings, err := db.ListProductMappings("orders@acme.example")
	require.NoError(t, err)
	require.Len(t, mappings, 1)
	assert.Equal(t, 96.0, mappings[0].UnitPrice)
}

func TestQueueStats(t *testing.T) {
	db := openTestDB(t)

	a := enqueue(t, db, "hash-a")
	enqueue(t, db, "hash-b")
	_, err := db.ClaimQueueItem(a.ID)
	require.NoError(t, err)
	require.NoError(t, db.MarkCompleted(a.ID, &internal.ParseResult{}))

	stats, err := db.QueueStats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.ByStatus[internal.StatusPending])
	assert.Equal(t, 1, stats.ByStatus[internal.StatusCompleted])
	assert.Equal(t, 1, stats.ByExportStatus[internal.ExportPending])
}

func TestResolveParsingFailure(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.InsertParsingFailure(internal.ParsingFailure{
		Filename:    "order.pdf",
		FailureType: internal.FailureUnmappedProducts,
	}))
	failures, err := db.ListParsingFailures(true, 10)
	require.NoError(t, err)
	require.Len(t, failures, 1)

	require.NoError(t, db.ResolveParsingFailure(failures[0].ID, "mapping added"))
	assert.Error(t, db.ResolveParsingFailure(failures[0].ID, "again"))

	failures, err = db.ListParsingFailures(true, 10)
	require.NoError(t, err)
	assert.Empty(t, failures)
}

func TestMetadataRoundTrip(t *testing.T) {
	db := openTestDB(t)

	got, err := db.GetMetadata("missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, db.SetMetadata("k", "v1"))
	require.NoError(t, db.SetMetadata("k", "v2"))
	got, err = db.GetMetadata("k")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "v2", *got)
}
