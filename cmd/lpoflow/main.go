package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"lpoflow/internal"
	"lpoflow/internal/catalog"
	"lpoflow/internal/config"
	"lpoflow/internal/connectors"
	gmailconnector "lpoflow/internal/connectors/gmail"
	imapconnector "lpoflow/internal/connectors/imap"
	"lpoflow/internal/export"
	"lpoflow/internal/extract"
	"lpoflow/internal/ingest"
	"lpoflow/internal/listener"
	"lpoflow/internal/pipeline"
	"lpoflow/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	log, err := zap.NewProduction()
	must(err)
	defer log.Sync()

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	cat := catalog.NewStore(db)
	svc := pipeline.NewService(db, cat, extract.NewFileExtractor(), log, cfg)

	cmd := os.Args[1]
	switch cmd {
	case "submit":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		file := fs.String("file", "", "document to queue")
		customer := fs.String("customer", "", "customer contact email")
		_ = fs.Parse(os.Args[2:])
		if *file == "" || *customer == "" {
			must(fmt.Errorf("--file and --customer are required"))
		}
		item, err := svc.Submit(*file, *customer)
		must(err)
		fmt.Printf("queued id=%d filename=%s\n", item.ID, item.Filename)
	case "process":
		processed, err := svc.ProcessPending()
		must(err)
		fmt.Printf("processed %d item(s)\n", processed)
	case "export":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		ids := fs.String("ids", "", "comma-separated queue item ids (default: all pending)")
		format := fs.String("format", cfg.ExportFormat, "csv|xlsx")
		_ = fs.Parse(os.Args[2:])
		batcher := export.NewBatcher(db, log, cfg.ExportDir, *format)
		result, err := batcher.Export(parseIDs(*ids))
		must(err)
		if result.ExportedCount == 0 {
			fmt.Println("nothing to export")
			return
		}
		fmt.Printf("exported %d invoice(s) batch=%s file=%s\n", result.ExportedCount, result.BatchRef, result.Path)
	case "stats":
		stats, err := svc.Stats()
		must(err)
		fmt.Printf("total: %d\n", stats.Total)
		for _, status := range []internal.Status{internal.StatusPending, internal.StatusProcessing, internal.StatusCompleted, internal.StatusFailed} {
			fmt.Printf("  %-12s %d\n", status, stats.ByStatus[status])
		}
		fmt.Printf("export pending: %d\n", stats.ByExportStatus[internal.ExportPending])
		fmt.Printf("exported:       %d\n", stats.ByExportStatus[internal.ExportExported])
	case "failures":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		limit := fs.Int("limit", 20, "max rows")
		resolve := fs.Int64("resolve", 0, "mark a failure id resolved")
		notes := fs.String("notes", "", "resolution notes")
		_ = fs.Parse(os.Args[2:])
		if *resolve > 0 {
			must(db.ResolveParsingFailure(*resolve, *notes))
			fmt.Printf("failure %d resolved\n", *resolve)
			return
		}
		failures, err := db.ListParsingFailures(true, *limit)
		must(err)
		for _, f := range failures {
			fmt.Printf("[%s] %s (%s): %s\n", f.FailureType, f.Filename, f.CustomerEmail, f.ErrorMessage)
			for _, p := range f.UnmappedProducts {
				fmt.Printf("    unmapped: %s\n", p)
			}
		}
	case "mail:fetch":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", cfg.ListenerProvider, "imap|gmail")
		_ = fs.Parse(os.Args[2:])
		conn, err := makeConnector(cfg, *provider)
		must(err)
		filter := ingest.NewFilter(db, cat, log)
		fetch, err := connectors.NewFetchService(db, conn, filter, log, cfg)
		must(err)
		queued, err := fetch.FetchAndEnqueue()
		must(err)
		fmt.Printf("mail fetch done provider=%s queued=%d\n", *provider, queued)
	case "run":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		fetchNew := fs.Bool("fetch", false, "fetch new mail first")
		autoExport := fs.Bool("export", cfg.ListenerAutoExport, "export completed items")
		_ = fs.Parse(os.Args[2:])
		if *fetchNew {
			conn, err := makeConnector(cfg, cfg.ListenerProvider)
			must(err)
			filter := ingest.NewFilter(db, cat, log)
			fetch, err := connectors.NewFetchService(db, conn, filter, log, cfg)
			must(err)
			svc.SetFetcher(fetch)
		}
		svc.SetExporter(export.NewBatcher(db, log, cfg.ExportDir, cfg.ExportFormat))
		result, err := svc.RunCycle(*fetchNew, *autoExport)
		must(err)
		fmt.Printf("cycle done fetched=%d processed=%d exported=%d\n", result.Fetched, result.Processed, result.Exported)
	case "listen":
		s := listener.NewService(db, cfg, log)
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		must(s.Run(ctx))
	default:
		usage()
		os.Exit(1)
	}
}

func makeConnector(cfg config.Config, provider string) (connectors.MailConnector, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "gmail":
		return gmailconnector.NewConnector(cfg)
	case "imap":
		return imapconnector.NewConnector(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

func parseIDs(raw string) []int64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var out []int64
	for _, part := range strings.Split(raw, ",") {
		var id int64
		if _, err := fmt.Sscanf(strings.TrimSpace(part), "%d", &id); err == nil && id > 0 {
			out = append(out, id)
		}
	}
	return out
}

func usage() {
	fmt.Println("usage: lpoflow <command>")
	fmt.Println("  submit --file F --customer EMAIL   queue a document")
	fmt.Println("  process                            process pending queue items")
	fmt.Println("  export [--ids 1,2] [--format csv]  write an export batch")
	fmt.Println("  stats                              queue counts")
	fmt.Println("  failures [--limit N]               unresolved parsing failures")
	fmt.Println("  mail:fetch [--provider imap]       one mailbox pass")
	fmt.Println("  run [--fetch] [--export]           one full cycle")
	fmt.Println("  listen                             run cycles on an interval")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
