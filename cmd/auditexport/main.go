// Command auditexport uploads a window of audit events to object storage.
//
//	auditexport -since 24h [-until 2026-01-02T00:00:00Z] [-d dsn] [-b bucket]
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/abhidhakal/cipher-drop/internal/flagx"
	"github.com/abhidhakal/cipher-drop/internal/logging"
	"github.com/abhidhakal/cipher-drop/internal/server/auditexport"
	"github.com/abhidhakal/cipher-drop/internal/server/config"
	"github.com/abhidhakal/cipher-drop/internal/server/repositories/repomanager"
)

func parseWindow(args []string, now time.Time) (time.Time, time.Time, error) {
	fs := flag.NewFlagSet("auditexport", flag.ContinueOnError)
	since := fs.Duration("since", 24*time.Hour, "export events newer than this")
	until := fs.String("until", "", "end of the window, RFC 3339 (default now)")
	if err := fs.Parse(flagx.FilterArgs(args, []string{"-since", "-until"})); err != nil {
		return time.Time{}, time.Time{}, err
	}

	to := now
	if *until != "" {
		t, err := time.Parse(time.RFC3339, *until)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		to = t
	}
	return to.Add(-*since), to, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadExportConfig()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := logging.NewJSONLogger(os.Stdout, cfg.LogLevel)

	from, to, err := parseWindow(os.Args[1:], time.Now())
	if err != nil {
		log.Fatalf("invalid window: %v", err)
	}

	db, err := repomanager.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer db.Close()

	client, err := auditexport.NewS3Client(ctx, cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	exporter := auditexport.NewExporter(rm.Audit(db), client, cfg.S3Bucket, logger.With("module", "auditexport"))

	res, err := exporter.Export(ctx, from, to)
	if err != nil {
		logger.Error(ctx, "export failed", "error", err)
		return
	}
	logger.Info(ctx, "export finished", "key", res.Key, "count", res.Count)
}
