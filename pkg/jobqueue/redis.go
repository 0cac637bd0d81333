package jobqueue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jwalitptl/trainer-api/pkg/logger"
	"github.com/jwalitptl/trainer-api/pkg/metrics"
)

const (
	scheduleKey = "jobs:scheduled"
	payloadKey  = "jobs:payload"
)

// RedisQueue stores scheduled jobs in a sorted set scored by their
// unix-milli due instant, payloads in a companion hash. ZREM is the
// claim: whichever process removes the member runs the job, so
// multiple pollers never double-fire.
type RedisQueue struct {
	client  *redis.Client
	logger  *logger.Logger
	metrics *metrics.Metrics
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
}

func NewRedisQueue(cfg RedisConfig, log *logger.Logger, m *metrics.Metrics) (*RedisQueue, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisQueue{
		client:  client,
		logger:  log.WithComponent("jobqueue"),
		metrics: m,
	}, nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, delay time.Duration, payload []byte) (string, error) {
	jobID := uuid.NewString()
	due := time.Now().Add(delay).UnixMilli()

	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, payloadKey, jobID, payload)
	pipe.ZAdd(ctx, scheduleKey, redis.Z{Score: float64(due), Member: jobID})
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}

	if q.metrics != nil {
		q.metrics.JobsEnqueued.Inc()
	}
	return jobID, nil
}

func (q *RedisQueue) Cancel(ctx context.Context, jobID string) error {
	removed, err := q.client.ZRem(ctx, scheduleKey, jobID).Result()
	if err != nil {
		return fmt.Errorf("failed to cancel job: %w", err)
	}
	q.client.HDel(ctx, payloadKey, jobID)
	if removed == 0 {
		return ErrJobNotFound
	}
	if q.metrics != nil {
		q.metrics.JobsCancelled.Inc()
	}
	return nil
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}

// PollerConfig tunes the due-job dispatcher.
type PollerConfig struct {
	PollInterval time.Duration
	BatchSize    int
	Workers      int
}

// Poller repeatedly claims due jobs and hands them to a handler on a
// bounded worker pool.
type Poller struct {
	queue   *RedisQueue
	handler Handler
	config  PollerConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
	sem     chan struct{}
}

func NewPoller(queue *RedisQueue, handler Handler, cfg PollerConfig, log *logger.Logger, m *metrics.Metrics) *Poller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}

	return &Poller{
		queue:   queue,
		handler: handler,
		config:  cfg,
		logger:  log.WithComponent("jobqueue-poller"),
		metrics: m,
		sem:     make(chan struct{}, cfg.Workers),
	}
}

// Start blocks, polling for due jobs until ctx is cancelled.
func (p *Poller) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.logger.Info("starting job poller")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("shutting down job poller")
			return
		case <-ticker.C:
			if err := p.dispatchDue(ctx); err != nil {
				p.logger.Error(err, "failed to dispatch due jobs")
			}
		}
	}
}

func (p *Poller) dispatchDue(ctx context.Context) error {
	now := time.Now().UnixMilli()
	members, err := p.queue.client.ZRangeByScoreWithScores(ctx, scheduleKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now, 10),
		Count: int64(p.config.BatchSize),
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to range due jobs: %w", err)
	}

	for _, member := range members {
		jobID, ok := member.Member.(string)
		if !ok {
			continue
		}

		// Single-winner claim: a cancel or a competing poller may have
		// removed the member already.
		removed, err := p.queue.client.ZRem(ctx, scheduleKey, jobID).Result()
		if err != nil {
			p.logger.Error(err, "failed to claim job", "job_id", jobID)
			continue
		}
		if removed == 0 {
			continue
		}

		payload, err := p.queue.client.HGet(ctx, payloadKey, jobID).Bytes()
		p.queue.client.HDel(ctx, payloadKey, jobID)
		if err != nil {
			p.logger.Error(err, "failed to load job payload", "job_id", jobID)
			continue
		}

		if p.metrics != nil {
			p.metrics.JobsFired.Inc()
			lag := float64(now-int64(member.Score)) / 1000
			if lag > 0 {
				p.metrics.QueuePollLag.Observe(lag)
			}
		}

		p.sem <- struct{}{}
		go func(jobID string, payload []byte) {
			defer func() { <-p.sem }()
			if err := p.handler(ctx, jobID, payload); err != nil {
				if p.metrics != nil {
					p.metrics.JobHandlerError.Inc()
				}
				p.logger.Error(err, "job handler failed", "job_id", jobID)
			}
		}(jobID, payload)
	}

	return nil
}
