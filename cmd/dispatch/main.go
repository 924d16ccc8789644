package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"i2v-dispatch/cmd"
	"i2v-dispatch/internal/api"
	"i2v-dispatch/internal/assets"
	"i2v-dispatch/internal/config"
	"i2v-dispatch/internal/dispatch"
	"i2v-dispatch/internal/notify"
	"i2v-dispatch/internal/storage"

	"github.com/getsentry/sentry-go"
	"github.com/schollz/progressbar/v3"
)

const exitNoDevices = 2

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-env file] <source> <destination>\n", os.Args[0])
		flag.PrintDefaults()
	}

	cmd.LoadEnvFile()

	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(1)
	}

	src, err := storage.ParseLocation(flag.Arg(0))
	if err != nil {
		log.Fatalf("Invalid source: %v", err)
	}
	dst, err := storage.ParseLocation(flag.Arg(1))
	if err != nil {
		log.Fatalf("Invalid destination: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	params, err := cfg.Params()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	var reporter *notify.FailureReporter
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.SentryDSN, Environment: cfg.Environment}); err != nil {
			log.Fatalf("sentry.Init: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
		reporter = notify.NewFailureReporter(sentry.CurrentHub())
	}

	store, err := cmd.NewStorageProvider(cfg, src, dst)
	if err != nil {
		log.Fatalf("Failed to create storage provider: %v", err)
	}

	var bar *progressbar.ProgressBar
	opts := dispatch.Options{
		WorkDir:         cfg.WorkDir,
		ObserveInterval: cfg.MonitorInterval,
		OnListed: func(total int) {
			if cfg.ShowProgress && total > 0 {
				bar = progressbar.Default(int64(total), "generating videos")
			}
		},
		OnOutcome: func(outcome dispatch.Outcome) {
			if bar != nil {
				_ = bar.Add(1)
			}
			if reporter != nil {
				reporter.ReportOutcome(outcome)
			}
		},
	}

	var ledger api.RunLedger
	if recorder := cmd.OpenLedger(cfg); recorder != nil {
		opts.Recorder = recorder
		ledger = recorder
	}

	dispatcher := dispatch.New(
		assets.NewLister(store), store, cmd.NewDeviceEnvironment(cfg), cmd.NewModelLoader(cfg), params, opts,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.StatusPort > 0 {
		server := api.NewServer(cfg.StatusPort, api.NewStatusService(dispatcher, ledger))
		go func() {
			log.Printf("status server listening on %s", server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("status server stopped: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Printf("error shutting down status server: %v", err)
			}
		}()
	}

	summary, err := dispatcher.Run(ctx, src, dst)
	if err != nil {
		stop()
		log.Fatalf("Dispatch failed: %v", err)
	}

	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}

	printSummary(summary)

	if cfg.RunWebhookURL != "" {
		if err := notify.NewWebhookNotifier(cfg.RunWebhookURL).NotifyRunFinished(context.WithoutCancel(ctx), summary); err != nil {
			log.Printf("Failed to notify run webhook: %v", err)
		}
	}

	if summary.NoDevices {
		stop()
		os.Exit(exitNoDevices)
	}
}

func printSummary(summary dispatch.Summary) {
	fmt.Printf("run %s finished in %s\n", summary.RunId, summary.EndTime.Sub(summary.StartTime).Round(time.Second))
	if summary.NoDevices {
		fmt.Printf("no devices available: %d jobs were not processed\n", summary.Total)
		return
	}

	fmt.Printf("devices: %d\n", summary.DeviceCount)
	fmt.Printf("processed: %d/%d (succeeded: %d, failed: %d)\n", summary.Processed, summary.Total, summary.Succeeded, summary.Failed)

	if len(summary.Failures) == 0 {
		return
	}

	fmt.Println("failed inputs:")
	for _, failure := range summary.Failures {
		fmt.Printf("  %s [device %d, %s]: %v\n", failure.Job.Input, failure.Device, failure.Stage, failure.Err)
	}
}
