package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"smsledger/internal/amqp"
	"smsledger/internal/audit"
	"smsledger/internal/cli"
	"smsledger/internal/config"
	"smsledger/internal/core"
	"smsledger/internal/log"
	"smsledger/internal/services"
	"smsledger/internal/storage"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "ingest":
		err = runIngest(ctx, logger, os.Args[2:])
	case "parse":
		err = runParse(logger, os.Args[2:])
	case "load":
		err = runLoad(ctx, logger, os.Args[2:])
	case "enqueue":
		err = runEnqueue(ctx, logger, os.Args[2:])
	case "migrate":
		err = runMigrate(ctx, logger)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		logger.Error("Command failed", "command", os.Args[1], log.FieldError, err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("smsledger: mobile-money SMS backups to a transaction ledger")
	fmt.Println("\nUsage:")
	fmt.Println("  smsledger <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  ingest    Parse an SMS backup XML and store its transactions")
	fmt.Println("  parse     Parse an SMS backup XML into a JSON interchange file")
	fmt.Println("  load      Store the transactions of a JSON interchange file")
	fmt.Println("  enqueue   Ask the worker to ingest a backup file via AMQP")
	fmt.Println("  migrate   Apply database migrations and print the schema version")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'smsledger <command> -h' for more information on a command.")
}

// pipeline holds what ingest and load share.
type pipeline struct {
	cfg       *config.Config
	store     *storage.SQLiteRepository
	auditFile *audit.FileSink
	audited   *audit.Collector
	assembler *services.Assembler
	service   *services.IngestService
}

func newPipeline(logger *log.Logger) (*pipeline, error) {
	cfg := cli.LoadAndValidateConfig(logger)
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	p := &pipeline{
		cfg:       cfg,
		store:     cli.InitSQLite(logger, cfg.SQLiteDBPath),
		auditFile: cli.OpenAuditSink(logger, cfg.AuditLogPath),
		audited:   audit.NewCollector(),
	}
	p.assembler = services.NewAssembler(audit.Tee{p.auditFile, p.audited}, loc)
	p.service = services.NewIngestService(p.assembler, p.store, logger)
	return p, nil
}

func (p *pipeline) Close() {
	_ = p.auditFile.Close()
	_ = p.store.Close()
}

func runIngest(ctx context.Context, logger *log.Logger, args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	publish := fs.Bool("publish", false, "announce inserted rows on the AMQP sync queue")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: smsledger ingest [-publish] <backup.xml>")
		fs.PrintDefaults()
	}
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(2)
	}

	p, err := newPipeline(logger)
	if err != nil {
		return err
	}
	defer p.Close()

	if *publish && p.cfg.AMQPEnabled() {
		client, err := amqp.NewClient(p.cfg.AMQPURL, p.cfg.AMQPExchange, p.cfg.AMQPSyncQueue)
		if err != nil {
			return fmt.Errorf("connect to AMQP: %w", err)
		}
		defer client.Close()
		p.service.WithPublisher(client, p.cfg.AMQPSyncQueue)
	}

	summary, err := p.service.IngestFile(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	printSummary(summary, p.audited)
	return nil
}

func runParse(logger *log.Logger, args []string) error {
	fs := flag.NewFlagSet("parse", flag.ExitOnError)
	out := fs.String("o", "parsed_sms_data.json", "output JSON file")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: smsledger parse [-o out.json] <backup.xml>")
		fs.PrintDefaults()
	}
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(2)
	}

	cfg := config.Load()
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	sink, err := audit.OpenFile(cfg.AuditLogPath)
	if err != nil {
		return err
	}
	defer sink.Close()

	collector := audit.NewCollector()
	records, err := services.NewAssembler(audit.Tee{sink, collector}, loc).ParseFile(fs.Arg(0))
	if err != nil {
		return err
	}

	f, err := os.Create(*out)
	if err != nil {
		return fmt.Errorf("create %s: %w", *out, err)
	}
	if err := services.WriteInterchange(f, records); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", *out, err)
	}

	logger.Info("Backup parsed", log.FieldSource, fs.Arg(0), log.FieldParsed, len(records), log.FieldAudited, collector.Len())
	fmt.Printf("Parsed %d transactions into %s (%d audited)\n", len(records), *out, collector.Len())
	return nil
}

func runLoad(ctx context.Context, logger *log.Logger, args []string) error {
	fs := flag.NewFlagSet("load", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: smsledger load <parsed.json>")
	}
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(2)
	}

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("open interchange file: %w", err)
	}
	defer f.Close()
	records, err := services.ReadInterchange(f)
	if err != nil {
		return err
	}

	p, err := newPipeline(logger)
	if err != nil {
		return err
	}
	defer p.Close()

	summary, err := p.service.IngestRecords(ctx, fs.Arg(0), records)
	if err != nil {
		return err
	}
	printSummary(summary, nil)
	return nil
}

func runEnqueue(ctx context.Context, logger *log.Logger, args []string) error {
	fs := flag.NewFlagSet("enqueue", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: smsledger enqueue <path-visible-to-worker>")
	}
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(2)
	}

	cfg := cli.LoadAndValidateConfig(logger)
	if !cfg.AMQPEnabled() {
		return fmt.Errorf("AMQP_URL is not set")
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPIngestQueue)
	if err != nil {
		return fmt.Errorf("connect to AMQP: %w", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	requestID, err := client.PublishIngestRequest(ctx, cfg.AMQPIngestQueue, fs.Arg(0))
	if err != nil {
		return err
	}
	logger.Info("Ingest request published", log.FieldRequestID, requestID, log.FieldSource, fs.Arg(0))
	fmt.Println(requestID)
	return nil
}

func runMigrate(ctx context.Context, logger *log.Logger) error {
	cfg := cli.LoadAndValidateConfig(logger)
	store := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}
	version, dirty, err := storage.SchemaVersion(cfg.SQLiteDBPath)
	if err != nil {
		return err
	}
	fmt.Printf("schema version %d (dirty=%v)\n", version, dirty)
	return nil
}

func printSummary(s core.IngestSummary, audited *audit.Collector) {
	fmt.Printf("Batch %s from %s\n", s.BatchID, s.Source)
	fmt.Printf("  parsed %d, inserted %d, skipped %d, failed %d\n", s.Parsed, s.Inserted, s.Skipped, s.Failed)

	if audited != nil && audited.Len() > 0 {
		counts := audited.Counts()
		reasons := make([]string, 0, len(counts))
		for r := range counts {
			reasons = append(reasons, r)
		}
		sort.Strings(reasons)
		fmt.Printf("  %d messages written to the audit log:\n", audited.Len())
		for _, r := range reasons {
			fmt.Printf("    %4d  %s\n", counts[r], r)
		}
	}

	if len(s.ByCategory) == 0 {
		return
	}
	fmt.Println("\nStored totals by category:")
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "category\tcount\tamount (RWF)\t")
	for _, c := range s.ByCategory {
		fmt.Fprintf(tw, "%s\t%d\t%s\t\n", c.Category, c.Count, core.FormatAmount(c.Total))
	}
	_ = tw.Flush()
}
