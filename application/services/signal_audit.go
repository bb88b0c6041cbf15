package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"feedrank/application/ports"
	"feedrank/domain/core/entities"
)

// AuditQueueConfig tunes the signal audit queue
type AuditQueueConfig struct {
	QueueSize     int
	Workers       int
	BatchSize     int
	MaxAttempts   int
	FlushInterval time.Duration
	BaseBackoff   time.Duration
}

// DefaultAuditQueueConfig returns the default audit queue settings
func DefaultAuditQueueConfig() AuditQueueConfig {
	return AuditQueueConfig{
		QueueSize:     10000,
		Workers:       2,
		BatchSize:     25,
		MaxAttempts:   3,
		FlushInterval: 2 * time.Second,
		BaseBackoff:   100 * time.Millisecond,
	}
}

// AuditSink accepts signal logs for asynchronous persistence
type AuditSink interface {
	Enqueue(logs ...*entities.SignalLog) int
}

// SignalAuditQueue persists signal logs off the request path. Enqueue never
// blocks: when the bounded queue is full the rows are dropped and counted.
// Workers write in batches and retry failed batches with exponential backoff.
type SignalAuditQueue struct {
	repo    ports.SignalLogRepository
	metrics ports.MetricsRecorder
	logger  *zap.Logger
	cfg     AuditQueueConfig

	queue    chan *entities.SignalLog
	stopChan chan struct{}
	wg       sync.WaitGroup

	mu      sync.RWMutex
	closed  bool
	started bool

	ctx    context.Context
	cancel context.CancelFunc

	enqueued atomic.Int64
	written  atomic.Int64
	dropped  atomic.Int64
}

// NewSignalAuditQueue creates a new audit queue; call Start to begin writing
func NewSignalAuditQueue(repo ports.SignalLogRepository, metrics ports.MetricsRecorder, cfg AuditQueueConfig, logger *zap.Logger) *SignalAuditQueue {
	def := DefaultAuditQueueConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = def.BaseBackoff
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &SignalAuditQueue{
		repo:     repo,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
		queue:    make(chan *entities.SignalLog, cfg.QueueSize),
		stopChan: make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the workers
func (q *SignalAuditQueue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true

	q.logger.Info("Starting signal audit queue",
		zap.Int("workers", q.cfg.Workers),
		zap.Int("queueSize", q.cfg.QueueSize),
		zap.Int("batchSize", q.cfg.BatchSize),
	)
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
}

// Enqueue offers logs to the queue and returns how many were accepted
func (q *SignalAuditQueue) Enqueue(logs ...*entities.SignalLog) int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.drop("stopped", len(logs))
		return 0
	}

	accepted := 0
	for _, l := range logs {
		select {
		case q.queue <- l:
			accepted++
		default:
			q.drop("queue_full", len(logs)-accepted)
			q.enqueued.Add(int64(accepted))
			return accepted
		}
	}
	q.enqueued.Add(int64(accepted))
	return accepted
}

// Stop refuses new logs, lets workers drain the queue and waits for them.
// If ctx expires first, in-flight retries are abandoned.
func (q *SignalAuditQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	started := q.started
	close(q.stopChan)
	q.mu.Unlock()

	q.logger.Info("Stopping signal audit queue", zap.Int("pending", len(q.queue)))
	if !started {
		q.cancel()
		return nil
	}

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		q.logger.Info("Signal audit queue stopped",
			zap.Int64("written", q.written.Load()),
			zap.Int64("dropped", q.dropped.Load()),
		)
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		return ctx.Err()
	}
}

// Stats returns counters for health reporting
func (q *SignalAuditQueue) Stats() map[string]interface{} {
	return map[string]interface{}{
		"enqueued": q.enqueued.Load(),
		"written":  q.written.Load(),
		"dropped":  q.dropped.Load(),
		"pending":  len(q.queue),
	}
}

func (q *SignalAuditQueue) worker(id int) {
	defer q.wg.Done()

	ticker := time.NewTicker(q.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]*entities.SignalLog, 0, q.cfg.BatchSize)
	for {
		select {
		case l := <-q.queue:
			batch = append(batch, l)
			if len(batch) >= q.cfg.BatchSize {
				q.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				q.flush(batch)
				batch = batch[:0]
			}
		case <-q.stopChan:
			// No sends happen after stopChan closes, so draining empties the queue.
			for {
				select {
				case l := <-q.queue:
					batch = append(batch, l)
					if len(batch) >= q.cfg.BatchSize {
						q.flush(batch)
						batch = batch[:0]
					}
				default:
					if len(batch) > 0 {
						q.flush(batch)
					}
					q.logger.Debug("Audit worker drained", zap.Int("worker", id))
					return
				}
			}
		}
	}
}

func (q *SignalAuditQueue) flush(batch []*entities.SignalLog) {
	rows := make([]*entities.SignalLog, len(batch))
	copy(rows, batch)

	backoff := q.cfg.BaseBackoff
	for attempt := 1; attempt <= q.cfg.MaxAttempts; attempt++ {
		err := q.repo.SaveBatch(q.ctx, rows)
		if err == nil {
			q.written.Add(int64(len(rows)))
			return
		}

		if attempt == q.cfg.MaxAttempts || q.ctx.Err() != nil {
			q.logger.Warn("Discarding signal logs after failed writes",
				zap.Int("rows", len(rows)),
				zap.Int("attempts", attempt),
				zap.Error(err),
			)
			q.drop("write_failed", len(rows))
			return
		}

		q.logger.Debug("Signal log write failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		select {
		case <-time.After(backoff):
		case <-q.ctx.Done():
		}
		backoff *= 2
	}
}

func (q *SignalAuditQueue) drop(reason string, n int) {
	if n <= 0 {
		return
	}
	q.dropped.Add(int64(n))
	if q.metrics != nil {
		q.metrics.AuditDropped(reason, n)
	}
}
