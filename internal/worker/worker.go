// Package worker runs the scan job loop: dequeue, analyze, reconcile,
// persist, notify. One job is fully processed before the next dequeue;
// horizontal scale comes from running more worker instances.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/vulx-io/vulx/internal/auth"
	"github.com/vulx-io/vulx/internal/logger"
	"github.com/vulx-io/vulx/internal/models"
	"github.com/vulx-io/vulx/internal/openapi"
	"github.com/vulx-io/vulx/internal/orchestrator"
	"github.com/vulx-io/vulx/internal/queue"
)

// ScanStore is the scan-row persistence the worker needs.
type ScanStore interface {
	UpdateStatus(scanID, status string) error
	MarkCompleted(scanID, status string) error
	GetProjectEnvironment(scanID string) (projectID, environment string, err error)
}

// FindingStore persists findings and answers history queries.
type FindingStore interface {
	Insert(rec models.FindingRecord) error
	PreviousStates(projectID, environment string) (map[string]models.FindingRecord, error)
}

// JobQueue is the Redis seam, satisfied by *queue.Client.
type JobQueue interface {
	Dequeue(ctx context.Context) (models.ScanJob, error)
	PublishProgress(ctx context.Context, event models.ProgressEvent)
}

// Notifier announces completed scans to the platform API.
type Notifier interface {
	ScanComplete(ctx context.Context, scanID string) error
}

// TargetResolver reports whether a scan carries a live target and, if
// so, its configuration. Spec-only scans return ok=false and get static
// analysis only.
type TargetResolver func(ctx context.Context, scanID string) (target models.ScanTarget, scanType models.ScanType, authCfg *auth.Config, ok bool)

type Worker struct {
	queue    JobQueue
	scans    ScanStore
	findings FindingStore
	orch     *orchestrator.Orchestrator
	notifier Notifier
	resolve  TargetResolver

	log     *logger.Logger
	backoff time.Duration
}

func New(q JobQueue, scans ScanStore, findings FindingStore, orch *orchestrator.Orchestrator, notifier Notifier, resolve TargetResolver) *Worker {
	return &Worker{
		queue:    q,
		scans:    scans,
		findings: findings,
		orch:     orch,
		notifier: notifier,
		resolve:  resolve,
		log:      logger.NewLogger("WORKER"),
		backoff:  5 * time.Second,
	}
}

// Run loops until ctx is cancelled. Queue errors back off; job errors
// fail only that scan.
func (w *Worker) Run(ctx context.Context) {
	w.log.Info("Worker started, waiting for scan jobs on", queue.ScanQueueKey)

	for {
		if ctx.Err() != nil {
			w.log.Info("Worker stopping")
			return
		}

		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrEmpty) {
				continue
			}
			if ctx.Err() != nil {
				w.log.Info("Worker stopping")
				return
			}
			w.log.Error("Queue error, backing off", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.backoff):
			}
			continue
		}

		w.ProcessJob(ctx, job)
	}
}

// ProcessJob runs one scan job end to end.
func (w *Worker) ProcessJob(ctx context.Context, job models.ScanJob) {
	w.log.Info("Processing scan", job.ScanID)
	w.publish(ctx, job.ScanID, models.StateInitializing, 5, "Scan picked up by worker")

	if err := w.scans.UpdateStatus(job.ScanID, models.ScanStatusProcessing); err != nil {
		w.log.Error("Failed to mark scan processing", err)
		return
	}

	projectID, environment, err := w.scans.GetProjectEnvironment(job.ScanID)
	if err != nil {
		w.log.Warn("Failed to load scan scope, reconciliation disabled", err)
		projectID, environment = "", ""
	}

	doc, err := openapi.Parse(ctx, []byte(job.SpecContent))
	if err != nil {
		w.fail(ctx, job.ScanID, "Failed to parse OpenAPI specification: "+err.Error())
		return
	}

	w.publish(ctx, job.ScanID, models.StateAnalyzing, 85, "Running static analysis")
	findings := openapi.NewAnalyzer(doc).Scan()
	w.log.Info("Static analysis complete", len(findings), "findings")

	// A live target configuration upgrades the job to a dynamic scan.
	if w.resolve != nil && w.orch != nil {
		if target, scanType, authCfg, ok := w.resolve(ctx, job.ScanID); ok {
			result := w.orch.Scan(ctx, target, scanType, authCfg, job.ScanID)
			if result.Status == models.StateFailed {
				w.fail(ctx, job.ScanID, "Dynamic scan failed: "+result.Summary.Error)
				return
			}
			findings = orchestrator.Deduplicate(append(findings, result.Findings...))
		}
	}

	previous := map[string]models.FindingRecord{}
	if projectID != "" {
		states, err := w.findings.PreviousStates(projectID, environment)
		if err != nil {
			w.log.Warn("Failed to load previous finding states, inserting as new", err)
		} else {
			previous = states
		}
	}

	result := Reconcile(job.ScanID, findings, previous)
	w.log.Info("Reconciled findings",
		"new", result.New,
		"regressions", result.Regressions,
		"inherited", result.Inherited,
		"suppressed", result.Suppressed,
	)

	for _, rec := range result.Records {
		if err := w.findings.Insert(rec); err != nil {
			w.fail(ctx, job.ScanID, "Failed to persist findings: "+err.Error())
			return
		}
	}

	if err := w.scans.MarkCompleted(job.ScanID, models.ScanStatusCompleted); err != nil {
		w.log.Error("Failed to mark scan completed", err)
		return
	}
	w.publish(ctx, job.ScanID, models.StateCompleted, 100, "Scan completed")
	w.log.Info("Scan completed", job.ScanID, "with", len(result.Records), "findings")

	if w.notifier != nil {
		if err := w.notifier.ScanComplete(ctx, job.ScanID); err != nil {
			w.log.Warn("Failed to trigger completion notification", err)
		}
	}
}

func (w *Worker) fail(ctx context.Context, scanID, message string) {
	w.log.Error("Scan failed: "+scanID, errors.New(message))
	if err := w.scans.UpdateStatus(scanID, models.ScanStatusFailed); err != nil {
		w.log.Error("Failed to mark scan failed", err)
	}
	w.publish(ctx, scanID, models.StateFailed, 0, message)
}

func (w *Worker) publish(ctx context.Context, scanID string, state models.ScanState, progress int, message string) {
	if w.queue == nil {
		return
	}
	w.queue.PublishProgress(ctx, models.ProgressEvent{
		ScanID:    scanID,
		State:     state,
		Progress:  progress,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
}
