package listener

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"lpoflow/internal/catalog"
	"lpoflow/internal/config"
	"lpoflow/internal/connectors"
	gmailconnector "lpoflow/internal/connectors/gmail"
	imapconnector "lpoflow/internal/connectors/imap"
	"lpoflow/internal/export"
	"lpoflow/internal/extract"
	"lpoflow/internal/ingest"
	"lpoflow/internal/pipeline"
	"lpoflow/internal/storage"
)

// Service runs the full fetch-process-export cycle on an interval
// until its context is cancelled.
type Service struct {
	db  *storage.DB
	cfg config.Config
	log *zap.Logger
}

func NewService(db *storage.DB, cfg config.Config, log *zap.Logger) *Service {
	return &Service{db: db, cfg: cfg, log: log}
}

func (s *Service) Run(ctx context.Context) error {
	svc, err := s.buildPipeline()
	if err != nil {
		return err
	}

	interval := time.Duration(s.cfg.ListenerIntervalSec) * time.Second
	for {
		result, err := svc.RunCycle(true, s.cfg.ListenerAutoExport)
		if err != nil {
			s.log.Error("listener cycle failed", zap.Error(err))
		} else {
			s.log.Info("listener cycle done",
				zap.Int("fetched", result.Fetched),
				zap.Int("processed", result.Processed),
				zap.Int("exported", result.Exported))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

func (s *Service) buildPipeline() (*pipeline.Service, error) {
	cat := catalog.NewStore(s.db)
	svc := pipeline.NewService(s.db, cat, extract.NewFileExtractor(), s.log, s.cfg)

	connector, err := s.makeConnector()
	if err != nil {
		return nil, err
	}
	filter := ingest.NewFilter(s.db, cat, s.log)
	fetcher, err := connectors.NewFetchService(s.db, connector, filter, s.log, s.cfg)
	if err != nil {
		return nil, err
	}
	svc.SetFetcher(fetcher)
	svc.SetExporter(export.NewBatcher(s.db, s.log, s.cfg.ExportDir, s.cfg.ExportFormat))
	return svc, nil
}

func (s *Service) makeConnector() (connectors.MailConnector, error) {
	switch strings.ToLower(strings.TrimSpace(s.cfg.ListenerProvider)) {
	case "gmail":
		return gmailconnector.NewConnector(s.cfg)
	case "imap":
		return imapconnector.NewConnector(s.cfg)
	default:
		return nil, fmt.Errorf("unsupported listener provider: %s", s.cfg.ListenerProvider)
	}
}
