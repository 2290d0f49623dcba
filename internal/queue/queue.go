// Package queue is the Redis seam between the platform and the worker:
// the scan job list and the progress event channel.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vulx-io/vulx/internal/logger"
	"github.com/vulx-io/vulx/internal/models"
)

const (
	// ScanQueueKey is the list the platform RPUSHes scan jobs onto.
	ScanQueueKey = "vulx:scan-queue"
	// EventsChannel carries progress events to the WebSocket relay.
	EventsChannel = "vulx:scan-events"

	// DequeueTimeout is the BLPOP block interval; the worker re-polls
	// on every expiry so shutdown signals are observed.
	DequeueTimeout = 5 * time.Second
)

// ErrEmpty reports that a blocking dequeue timed out with no job.
var ErrEmpty = errors.New("queue: no job available")

// Config holds Redis connection settings.
type Config struct {
	URL        string
	Password   string
	DB         int
	MaxRetries int
	PoolSize   int
}

// Client wraps the Redis operations the scan engine needs.
type Client struct {
	client *redis.Client
	log    *logger.Logger
}

// NewClient connects and pings; an unreachable Redis fails fast.
func NewClient(cfg Config) (*Client, error) {
	opts := &redis.Options{
		Addr:       cfg.URL,
		Password:   cfg.Password,
		DB:         cfg.DB,
		MaxRetries: cfg.MaxRetries,
		PoolSize:   cfg.PoolSize,
	}

	if cfg.URL != "" {
		if parsed, err := redis.ParseURL(cfg.URL); err == nil {
			opts = parsed
			if cfg.Password != "" {
				opts.Password = cfg.Password
			}
			if cfg.DB != 0 {
				opts.DB = cfg.DB
			}
			if cfg.MaxRetries > 0 {
				opts.MaxRetries = cfg.MaxRetries
			}
			if cfg.PoolSize > 0 {
				opts.PoolSize = cfg.PoolSize
			}
		}
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log := logger.NewLogger("QUEUE")
	log.Info("Connected to Redis", opts.Addr)
	return &Client{client: client, log: log}, nil
}

// NewClientFromRedis wraps an existing client, mainly for tests.
func NewClientFromRedis(client *redis.Client) *Client {
	return &Client{client: client, log: logger.NewLogger("QUEUE")}
}

// Enqueue pushes a scan job onto the queue.
func (c *Client) Enqueue(ctx context.Context, job models.ScanJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal scan job: %w", err)
	}
	if err := c.client.RPush(ctx, ScanQueueKey, payload).Err(); err != nil {
		return fmt.Errorf("failed to enqueue scan job: %w", err)
	}
	return nil
}

// Dequeue blocks up to DequeueTimeout for the next job. A timeout
// returns ErrEmpty; callers loop. Malformed payloads also return
// ErrEmpty after logging, so one bad job never wedges the worker.
func (c *Client) Dequeue(ctx context.Context) (models.ScanJob, error) {
	var job models.ScanJob

	res, err := c.client.BLPop(ctx, DequeueTimeout, ScanQueueKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return job, ErrEmpty
		}
		return job, fmt.Errorf("failed to dequeue: %w", err)
	}
	// BLPOP returns [key, value].
	if len(res) < 2 {
		return job, ErrEmpty
	}

	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		c.log.Warn("Discarding malformed scan job payload", err)
		return job, ErrEmpty
	}
	if job.ScanID == "" {
		c.log.Warn("Discarding scan job without scanId", nil)
		return job, ErrEmpty
	}
	return job, nil
}

// PublishProgress broadcasts a progress event. Publish failures are
// logged and dropped: progress is best-effort.
func (c *Client) PublishProgress(ctx context.Context, event models.ProgressEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		c.log.Error("Failed to marshal progress event", err)
		return
	}
	if err := c.client.Publish(ctx, EventsChannel, payload).Err(); err != nil {
		c.log.Error("Failed to publish progress event", err)
	}
}

// SubscribeProgress streams progress events until ctx is cancelled.
// Undecodable messages are skipped.
func (c *Client) SubscribeProgress(ctx context.Context) (<-chan models.ProgressEvent, func()) {
	sub := c.client.Subscribe(ctx, EventsChannel)
	events := make(chan models.ProgressEvent)

	go func() {
		defer close(events)
		for msg := range sub.Channel() {
			var event models.ProgressEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				c.log.Debug("Skipping undecodable progress event", err)
				continue
			}
			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, func() { _ = sub.Close() }
}

// Ping reports broker health for the health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	return c.client.Close()
}
