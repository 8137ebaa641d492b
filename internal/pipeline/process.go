package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"lpoflow/internal"
	"lpoflow/internal/catalog"
	"lpoflow/internal/config"
	"lpoflow/internal/extract"
	"lpoflow/internal/resolve"
	"lpoflow/internal/storage"
	"lpoflow/internal/util"
)

const failurePreviewLen = 1000

// Fetcher pulls new inbound messages into the queue.
type Fetcher interface {
	FetchAndEnqueue() (int, error)
}

// Exporter renders completed items into an accounting batch.
type Exporter interface {
	ExportPending() (int, error)
}

// Service drives queue items from pending to a terminal state.
type Service struct {
	db        *storage.DB
	catalog   *catalog.Store
	extractor extract.Extractor
	matcher   *resolve.Matcher
	log       *zap.Logger

	batchSize int
	uploadDir string

	fetcher  Fetcher
	exporter Exporter
}

func NewService(db *storage.DB, cat *catalog.Store, extractor extract.Extractor, log *zap.Logger, cfg config.Config) *Service {
	batchSize := cfg.ListenerProcessBatch
	if batchSize <= 0 {
		batchSize = 20
	}
	return &Service{
		db:        db,
		catalog:   cat,
		extractor: extractor,
		matcher:   resolve.NewMatcher(cfg.MatchScoreThreshold),
		log:       log,
		batchSize: batchSize,
		uploadDir: cfg.AttachmentsDir,
	}
}

// SetFetcher wires the mail side; without it RunCycle only processes
// what is already queued.
func (s *Service) SetFetcher(f Fetcher) { s.fetcher = f }

func (s *Service) SetExporter(e Exporter) { s.exporter = e }

// CycleResult is what one run of the pipeline accomplished.
type CycleResult struct {
	Fetched   int
	Processed int
	Exported  int
}

// RunCycle performs one bounded pass: optionally fetch new messages,
// process pending items oldest first, optionally export what
// completed. Fetch and export failures do not abort the rest of the
// cycle.
func (s *Service) RunCycle(fetchNew, autoExport bool) (CycleResult, error) {
	var result CycleResult

	if fetchNew && s.fetcher != nil {
		fetched, err := s.fetcher.FetchAndEnqueue()
		if err != nil {
			s.log.Error("mail fetch failed", zap.Error(err))
		}
		result.Fetched = fetched
	}

	processed, err := s.ProcessPending()
	if err != nil {
		return result, err
	}
	result.Processed = processed

	if autoExport && s.exporter != nil {
		exported, err := s.exporter.ExportPending()
		if err != nil {
			s.log.Error("auto export failed", zap.Error(err))
		}
		result.Exported = exported
	}

	return result, nil
}

// ProcessPending claims and processes up to one batch of pending
// items. Items already completed or failed are never pulled again.
func (s *Service) ProcessPending() (int, error) {
	items, err := s.db.ListQueueItemsByStatus(internal.StatusPending, s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list pending: %w", err)
	}

	processed := 0
	for _, item := range items {
		claimed, err := s.db.ClaimQueueItem(item.ID)
		if err != nil {
			return processed, fmt.Errorf("claim item %d: %w", item.ID, err)
		}
		if !claimed {
			continue
		}
		s.processClaimed(item)
		processed++
	}
	return processed, nil
}

// processClaimed owns the item exclusively; every outcome, including a
// panic-free extractor error, lands it in a terminal state.
func (s *Service) processClaimed(item internal.QueueItem) {
	log := s.log.With(zap.Int64("id", item.ID), zap.String("filename", item.Filename))

	doc, err := s.extractor.Extract(item.FilePath)
	if err != nil {
		s.fail(item, nil, internal.FailureParsingError, err.Error(), "")
		log.Warn("extraction failed", zap.Error(err))
		return
	}
	preview := textPreview(doc.Text)

	customers, err := s.catalog.CustomersByEmail(item.CustomerEmail)
	if err != nil {
		s.fail(item, nil, internal.FailureParsingError, err.Error(), preview)
		return
	}
	resolved, err := resolve.ResolveCustomer(doc.Text, item.CustomerEmail, customers, s.branchesFor(item.CustomerEmail))
	if err != nil {
		s.fail(item, nil, internal.FailureCustomerNotFound, err.Error(), preview)
		log.Warn("customer not resolved", zap.String("email", item.CustomerEmail))
		return
	}

	mappings, err := s.catalog.Mappings(item.CustomerEmail)
	if err != nil {
		s.fail(item, nil, internal.FailureParsingError, err.Error(), preview)
		return
	}

	rawItems, warnings := resolve.DiscoverItems(doc.Text, doc.Tables, mappings)
	if len(rawItems) == 0 {
		s.fail(item, &internal.ParseResult{
			Customer:    resolved,
			Warnings:    warnings,
			TextPreview: preview,
		}, internal.FailureNoItemsExtracted, "no line items found in document", preview)
		log.Warn("no items extracted")
		return
	}

	lines := resolve.ResolveProducts(rawItems, mappings, s.matcher)
	parse := &internal.ParseResult{
		Customer:    resolved,
		PONumber:    resolve.ExtractPONumber(doc.Text),
		Items:       lines,
		Totals:      resolve.ComputeTotals(lines),
		Warnings:    warnings,
		TextPreview: preview,
	}
	if resolved.ByFallback {
		parse.Warnings = append(parse.Warnings,
			fmt.Sprintf("no branch identifier matched, defaulted to %q", resolved.Customer.Name))
	}

	if unmapped := parse.UnmappedNames(); len(unmapped) > 0 {
		message := fmt.Sprintf("%d unmapped product(s): %s", len(unmapped), strings.Join(unmapped, "; "))
		s.failWithResult(item, parse, internal.FailureUnmappedProducts, message, preview, unmapped)
		log.Warn("unmapped products", zap.Strings("products", unmapped))
		return
	}

	if err := s.db.MarkCompleted(item.ID, parse); err != nil {
		log.Error("could not complete item", zap.Error(err))
		return
	}
	log.Info("document processed",
		zap.String("customer", resolved.Customer.Name),
		zap.String("poNumber", parse.PONumber),
		zap.Int("items", len(lines)))
}

func (s *Service) branchesFor(email string) []internal.BranchIdentifier {
	branches, err := s.catalog.Branches(email)
	if err != nil {
		s.log.Warn("branch lookup failed", zap.String("email", email), zap.Error(err))
		return nil
	}
	return branches
}

func (s *Service) fail(item internal.QueueItem, parse *internal.ParseResult, ftype internal.FailureType, message, preview string) {
	s.failWithResult(item, parse, ftype, message, preview, nil)
}

func (s *Service) failWithResult(item internal.QueueItem, parse *internal.ParseResult, ftype internal.FailureType, message, preview string, unmapped []string) {
	if err := s.db.MarkFailed(item.ID, parse, message); err != nil {
		s.log.Error("could not fail item", zap.Int64("id", item.ID), zap.Error(err))
		return
	}
	failure := internal.ParsingFailure{
		Filename:         item.Filename,
		CustomerEmail:    item.CustomerEmail,
		FailureType:      ftype,
		ErrorMessage:     message,
		TextPreview:      preview,
		UnmappedProducts: unmapped,
	}
	if err := s.db.InsertParsingFailure(failure); err != nil {
		s.log.Error("could not record parsing failure", zap.Int64("id", item.ID), zap.Error(err))
	}
}

// Submit queues a manually uploaded document. The file is copied into
// the managed upload directory and deduplicated by content digest, so
// uploading the same file twice is refused rather than double-billed.
func (s *Service) Submit(path, customerEmail string) (internal.QueueItem, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return internal.QueueItem{}, fmt.Errorf("read upload: %w", err)
	}

	sum := sha256.Sum256(content)
	hash := hex.EncodeToString(sum[:])
	duplicate, err := s.db.HasQueueItemWithHash(hash)
	if err != nil {
		return internal.QueueItem{}, err
	}
	if duplicate {
		return internal.QueueItem{}, fmt.Errorf("identical document already queued")
	}

	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return internal.QueueItem{}, err
	}
	filename := filepath.Base(path)
	stored := filepath.Join(s.uploadDir, hash[:12]+"-"+filename)
	if err := os.WriteFile(stored, content, 0o644); err != nil {
		return internal.QueueItem{}, fmt.Errorf("store upload: %w", err)
	}

	item, err := s.db.InsertQueueItem(internal.QueueRequest{
		Origin:        internal.OriginManual,
		Filename:      filename,
		FilePath:      stored,
		CustomerEmail: strings.ToLower(strings.TrimSpace(customerEmail)),
		ContentHash:   hash,
	})
	if err != nil {
		return internal.QueueItem{}, err
	}
	s.log.Info("document submitted", zap.Int64("id", item.ID), zap.String("filename", filename))
	return item, nil
}

// Stats exposes queue counts for operators.
func (s *Service) Stats() (internal.QueueStats, error) {
	return s.db.QueueStats()
}

func textPreview(text string) string {
	return util.Truncate(strings.TrimSpace(text), failurePreviewLen)
}
