package connectors

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"lpoflow/internal"
	"lpoflow/internal/catalog"
	"lpoflow/internal/config"
	"lpoflow/internal/ingest"
	"lpoflow/internal/storage"
)

type stubConnector struct {
	messages  []internal.FetchedMailMessage
	lastSince time.Time
}

func (s *stubConnector) FetchInbox(label string, since time.Time, max int) ([]internal.FetchedMailMessage, error) {
	s.lastSince = since
	return s.messages, nil
}

func rawOrderMessage(id string) internal.FetchedMailMessage {
	raw := "From: orders@acme.example\r\n" +
		"Subject: Purchase Order " + id + "\r\n" +
		"Message-Id: <" + id + "@acme.example>\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"3 TIN SUNFLOWER OIL TIN\r\n"
	return internal.FetchedMailMessage{Provider: "imap", MessageID: "<" + id + "@acme.example>", Raw: []byte(raw)}
}

func newFetchFixture(t *testing.T, stub *stubConnector) (*FetchService, *storage.DB) {
	t.Helper()
	dir := t.TempDir()
	db, err := storage.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.UpsertCustomer(internal.Customer{
		Email: "orders@acme.example", Name: "Acme Trading LLC", Active: true,
	}))

	log := zaptest.NewLogger(t)
	filter := ingest.NewFilter(db, catalog.NewStore(db), log)
	cfg := config.Config{
		AttachmentsDir:     filepath.Join(dir, "attachments"),
		CutoffTime:         "17:00",
		CutoffSkipWeekends: true,
		ListenerLabel:      "INBOX",
		ListenerFetchMax:   50,
	}
	svc, err := NewFetchService(db, stub, filter, log, cfg)
	require.NoError(t, err)
	svc.now = func() time.Time { return time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC) }
	return svc, db
}

func TestFetchAndEnqueueQueuesOrders(t *testing.T) {
	stub := &stubConnector{messages: []internal.FetchedMailMessage{rawOrderMessage("po-1")}}
	svc, db := newFetchFixture(t, stub)

	queued, err := svc.FetchAndEnqueue()
	require.NoError(t, err)
	assert.Equal(t, 1, queued)

	items, err := db.ListQueueItemsByStatus(internal.StatusPending, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, internal.OriginInboundMessage, items[0].Origin)
	assert.Equal(t, "orders@acme.example", items[0].CustomerEmail)

	// The same message on the next pass is deduplicated.
	queued, err = svc.FetchAndEnqueue()
	require.NoError(t, err)
	assert.Zero(t, queued)
}

func TestFetchAndEnqueueAdvancesWindow(t *testing.T) {
	stub := &stubConnector{}
	svc, db := newFetchFixture(t, stub)

	_, err := svc.FetchAndEnqueue()
	require.NoError(t, err)

	// Monday 17:00 is the last weekday cutoff before Tuesday 10:00.
	assert.True(t, stub.lastSince.Equal(time.Date(2026, 8, 24, 17, 0, 0, 0, time.UTC)), "got %v", stub.lastSince)

	last, err := db.LastCutoffCheck()
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.True(t, last.Equal(svc.now()))

	// The recorded check now bounds the next window.
	svc.now = func() time.Time { return time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC) }
	_, err = svc.FetchAndEnqueue()
	require.NoError(t, err)
	assert.True(t, stub.lastSince.Equal(time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)), "got %v", stub.lastSince)
}
