package connectors

import (
	"time"

	"lpoflow/internal"
)

// MailConnector fetches unread messages from one mailbox folder,
// bounded by a recency filter and a batch cap.
type MailConnector interface {
	FetchInbox(label string, since time.Time, max int) ([]internal.FetchedMailMessage, error)
}
