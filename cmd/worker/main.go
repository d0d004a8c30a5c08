package main

// Process a contact CSV from the command line:
//   go run ./cmd/worker -in contacts.csv

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/yahyamohmuedpro99/csv-formater/internal/contacts"
	"github.com/yahyamohmuedpro99/csv-formater/internal/gemini"
	"github.com/yahyamohmuedpro99/csv-formater/internal/keys"
	"github.com/yahyamohmuedpro99/csv-formater/internal/outreach"
	"github.com/yahyamohmuedpro99/csv-formater/internal/shared/config"
)

func main() {
	inPath := flag.String("in", "", "input contacts CSV")
	outPath := flag.String("out", "output_ai_transformed.csv", "processed output CSV")
	listmonkPath := flag.String("listmonk-out", "", "optional listmonk-format output CSV")
	flag.Parse()

	if *inPath == "" {
		log.Fatal("worker: -in is required")
	}

	cfg := config.Load()
	if len(cfg.GeminiAPIKeys) == 0 {
		log.Fatal("worker: GEMINI_API_KEYS is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	in, err := os.Open(*inPath)
	if err != nil {
		log.Fatalf("worker: open input: %v", err)
	}
	records, err := contacts.ReadCSV(in)
	in.Close()
	if err != nil {
		log.Fatalf("worker: read input: %v", err)
	}
	if len(records) == 0 {
		log.Fatal("worker: input has no data rows")
	}

	ledger := keys.NewFileStore(cfg.KeyUsageFile)
	rotator, err := keys.NewRotator(ctx, cfg.GeminiAPIKeys, cfg.KeyQuota, ledger)
	if err != nil {
		log.Fatalf("worker: %v", err)
	}
	client, err := gemini.NewClient(cfg.GeminiModel)
	if err != nil {
		log.Fatalf("worker: %v", err)
	}

	retrier := outreach.NewRetrier(rotator, client)
	if cfg.MaxAttempts > 0 {
		retrier.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.BaseDelay > 0 {
		retrier.BaseDelay = cfg.BaseDelay
	}
	sink := contacts.NewCSVSink(*outPath)
	dispatcher := outreach.NewDispatcher(retrier, sink)
	if cfg.BatchSize > 0 {
		dispatcher.BatchSize = cfg.BatchSize
	}

	outcome, runErr := dispatcher.Run(ctx, records)
	log.Printf("worker: attempted=%d succeeded=%d failed=%d", outcome.Attempted, outcome.Succeeded, outcome.Attempted-outcome.Succeeded)
	if runErr != nil {
		log.Fatalf("worker: run stopped early: %v", runErr)
	}

	if *listmonkPath != "" && outcome.Succeeded > 0 {
		src, err := os.Open(*outPath)
		if err != nil {
			log.Fatalf("worker: open processed output: %v", err)
		}
		defer src.Close()

		dst, err := os.Create(*listmonkPath)
		if err != nil {
			log.Fatalf("worker: create listmonk output: %v", err)
		}
		defer dst.Close()

		if err := contacts.TransformForListmonk(src, dst); err != nil {
			log.Fatalf("worker: listmonk transform: %v", err)
		}
		log.Printf("worker: wrote listmonk file %s", *listmonkPath)
	}
}
