package connectors

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"lpoflow/internal/config"
	"lpoflow/internal/ingest"
	"lpoflow/internal/schedule"
	"lpoflow/internal/storage"
)

// FetchService pulls new mailbox messages through the ingestion filter
// into the queue.
type FetchService struct {
	db        *storage.DB
	connector MailConnector
	filter    *ingest.Filter
	log       *zap.Logger

	label          string
	fetchMax       int
	attachmentsDir string
	cutoff         schedule.TimeOfDay
	skipWeekends   bool

	now func() time.Time
}

func NewFetchService(db *storage.DB, connector MailConnector, filter *ingest.Filter, log *zap.Logger, cfg config.Config) (*FetchService, error) {
	cutoff, err := schedule.ParseTimeOfDay(cfg.CutoffTime)
	if err != nil {
		return nil, fmt.Errorf("cutoff time: %w", err)
	}
	return &FetchService{
		db:             db,
		connector:      connector,
		filter:         filter,
		log:            log,
		label:          cfg.ListenerLabel,
		fetchMax:       cfg.ListenerFetchMax,
		attachmentsDir: cfg.AttachmentsDir,
		cutoff:         cutoff,
		skipWeekends:   cfg.CutoffSkipWeekends,
		now:            time.Now,
	}, nil
}

// FetchAndEnqueue runs one mailbox pass over the current search
// window. The window starts at the later of the last recorded check
// and the last cutoff, and always ends now, so restarts neither miss
// messages nor rescan the whole mailbox.
func (s *FetchService) FetchAndEnqueue() (int, error) {
	now := s.now()
	lastChecked, err := s.db.LastCutoffCheck()
	if err != nil {
		return 0, err
	}
	since, until := schedule.SearchWindow(now, lastChecked, s.cutoff, s.skipWeekends)

	messages, err := s.connector.FetchInbox(s.label, since, s.fetchMax)
	if err != nil {
		return 0, fmt.Errorf("fetch inbox: %w", err)
	}
	s.log.Info("mailbox pass",
		zap.Time("since", since),
		zap.Time("until", until),
		zap.Int("messages", len(messages)))

	queued := 0
	for _, raw := range messages {
		msg, err := ingest.ParseRawMessage(raw, s.attachmentsDir)
		if err != nil {
			s.log.Warn("unparseable message skipped",
				zap.String("messageId", raw.MessageID), zap.Error(err))
			continue
		}

		requests, reason, err := s.filter.Evaluate(msg)
		if err != nil {
			return queued, err
		}
		if reason != "" {
			continue
		}
		items, err := s.filter.Enqueue(requests)
		if err != nil {
			return queued, err
		}
		queued += len(items)
	}

	if err := s.db.SetLastCutoffCheck(until); err != nil {
		return queued, err
	}
	return queued, nil
}
