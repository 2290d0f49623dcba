package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/vulx-io/vulx/internal/api"
	"github.com/vulx-io/vulx/internal/config"
	"github.com/vulx-io/vulx/internal/database"
	"github.com/vulx-io/vulx/internal/engines"
	"github.com/vulx-io/vulx/internal/models"
	"github.com/vulx-io/vulx/internal/notify"
	"github.com/vulx-io/vulx/internal/orchestrator"
	"github.com/vulx-io/vulx/internal/queue"
	"github.com/vulx-io/vulx/internal/repository"
	"github.com/vulx-io/vulx/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.Connect(database.FromAppConfig(cfg))
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	q, err := queue.NewClient(queue.Config{URL: cfg.RedisAddr()})
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer q.Close()

	scans := repository.NewScanRepository(db)
	findings := repository.NewFindingRepository(db)

	orch := orchestrator.New(
		engines.NewTemplateEngine(templateConfig(cfg)),
		engines.NewFuzzerEngine(fuzzerConfig(cfg)),
		engines.NewDASTEngine(dastConfig(cfg)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Live orchestrator runs report their transitions on the same
	// channel the worker publishes to.
	orch.OnStatusChange(func(scanID string, state models.ScanState, progress int, message string) {
		q.PublishProgress(ctx, models.ProgressEvent{
			ScanID:   scanID,
			State:    state,
			Progress: progress,
			Message:  message,
		})
	})

	w := worker.New(q, scans, findings, orch, notify.NewClient(cfg.APIURL), nil)
	go w.Run(ctx)

	hub := api.NewHub()
	go relayProgress(ctx, q, hub)

	server := api.NewServer(cfg, q, scans, findings, db, hub)
	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down scan engine")
}

// relayProgress feeds queue progress events into the WebSocket hub,
// resubscribing if the event channel closes.
func relayProgress(ctx context.Context, q *queue.Client, hub *api.Hub) {
	for ctx.Err() == nil {
		events, unsubscribe := q.SubscribeProgress(ctx)
		for event := range events {
			hub.Publish(event)
		}
		unsubscribe()
		if ctx.Err() == nil {
			time.Sleep(time.Second)
		}
	}
}

func templateConfig(cfg *config.Config) engines.TemplateConfig {
	tc := engines.DefaultTemplateConfig()
	tc.BinaryPath = cfg.NucleiPath
	tc.TemplatesPath = cfg.NucleiTemplates
	return tc
}

func fuzzerConfig(cfg *config.Config) engines.FuzzerConfig {
	fc := engines.DefaultFuzzerConfig()
	fc.BinaryPath = cfg.SchemathesisPath
	return fc
}

func dastConfig(cfg *config.Config) engines.DASTConfig {
	dc := engines.DefaultDASTConfig()
	dc.Host = cfg.ZAPHost
	dc.Port = cfg.ZAPPort
	dc.APIKey = cfg.ZAPAPIKey
	if cfg.ZAPMaxScanDuration > 0 {
		dc.MaxDuration = time.Duration(cfg.ZAPMaxScanDuration) * time.Second
	}
	return dc
}
