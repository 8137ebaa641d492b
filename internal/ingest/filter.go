package ingest

import (
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"lpoflow/internal"
	"lpoflow/internal/catalog"
	"lpoflow/internal/storage"
)

// allowedExtensions limits which attachments ever become queue items.
var allowedExtensions = map[string]struct{}{
	".pdf": {}, ".xlsx": {}, ".xls": {}, ".html": {}, ".htm": {},
	".txt": {}, ".csv": {}, ".docx": {}, ".doc": {},
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".bmp": {}, ".tiff": {},
}

// RejectReason says why a message produced no queue items. Rejections
// are not errors and leave no record.
type RejectReason string

const (
	RejectDuplicate     RejectReason = "duplicate"
	RejectUnknownSender RejectReason = "unknown_sender"
	RejectIntent        RejectReason = "intent"
	RejectNoAttachments RejectReason = "no_usable_attachments"
)

// Filter is the gate between the mailbox and the queue.
type Filter struct {
	db      *storage.DB
	catalog *catalog.Store
	log     *zap.Logger
}

func NewFilter(db *storage.DB, cat *catalog.Store, log *zap.Logger) *Filter {
	return &Filter{db: db, catalog: cat, log: log}
}

// Evaluate inspects one parsed message and returns the queue requests
// it should produce. A rejected message returns a reason and an empty
// slice; no state is mutated on rejection.
func (f *Filter) Evaluate(msg internal.InboundMessage) ([]internal.QueueRequest, RejectReason, error) {
	hash := MessageHash(msg)

	duplicate, err := f.db.HasQueueItemWithHash(hash)
	if err != nil {
		return nil, "", err
	}
	if duplicate {
		f.log.Debug("message already ingested", zap.String("messageId", msg.MessageID))
		return nil, RejectDuplicate, nil
	}

	known, err := f.catalog.IsKnownSender(msg.SenderEmail)
	if err != nil {
		return nil, "", err
	}
	if !known {
		f.log.Debug("sender not on record", zap.String("sender", msg.SenderEmail))
		return nil, RejectUnknownSender, nil
	}

	if ClassifyIntent(msg.Subject, msg.BodyText, len(msg.Attachments) > 0) != IntentOrder {
		f.log.Debug("message does not look like an order",
			zap.String("sender", msg.SenderEmail),
			zap.String("subject", msg.Subject))
		return nil, RejectIntent, nil
	}

	var requests []internal.QueueRequest
	for _, att := range msg.Attachments {
		ext := strings.ToLower(filepath.Ext(att.Filename))
		if _, ok := allowedExtensions[ext]; !ok {
			f.log.Debug("skipping attachment type", zap.String("filename", att.Filename))
			continue
		}
		// The first accepted attachment carries the message-level hash,
		// so a re-delivered message always collides with it regardless
		// of how many attachments were filtered before it. Further
		// attachments are their own units of work with their own dedup
		// identity.
		attHash := hash
		if len(requests) > 0 {
			attHash = MessageHash(internal.InboundMessage{
				MessageID: msg.MessageID + "#" + att.Filename,
			})
		}
		requests = append(requests, internal.QueueRequest{
			Origin:        internal.OriginInboundMessage,
			OriginRef:     msg.MessageID,
			Filename:      att.Filename,
			FilePath:      att.Path,
			CustomerEmail: msg.SenderEmail,
			ContentHash:   attHash,
		})
	}

	if len(requests) == 0 {
		return nil, RejectNoAttachments, nil
	}
	return requests, "", nil
}

// Enqueue persists the evaluated requests. Split from Evaluate so the
// decision is testable without a live queue.
func (f *Filter) Enqueue(requests []internal.QueueRequest) ([]internal.QueueItem, error) {
	items := make([]internal.QueueItem, 0, len(requests))
	for _, req := range requests {
		item, err := f.db.InsertQueueItem(req)
		if err != nil {
			return items, err
		}
		f.log.Info("queued document",
			zap.Int64("id", item.ID),
			zap.String("filename", item.Filename),
			zap.String("customer", item.CustomerEmail))
		items = append(items, item)
	}
	return items, nil
}
