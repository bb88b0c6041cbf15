package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"feedrank/domain/core/entities"
	"feedrank/infrastructure/persistence/memory"
)

func signalLogs(n int) []*entities.SignalLog {
	logs := make([]*entities.SignalLog, n)
	for i := range logs {
		logs[i] = &entities.SignalLog{ID: fmt.Sprintf("log-%d", i), PostID: fmt.Sprintf("p-%d", i), Rank: i + 1}
	}
	return logs
}

func TestSignalAuditQueue_WritesAndDrains(t *testing.T) {
	// Arrange
	store := memory.NewStore()
	queue := NewSignalAuditQueue(store.SignalLogs(), nil, AuditQueueConfig{
		QueueSize:     100,
		Workers:       2,
		BatchSize:     10,
		FlushInterval: time.Hour,
	}, zap.NewNop())
	queue.Start()

	// Act
	accepted := queue.Enqueue(signalLogs(35)...)
	require.NoError(t, queue.Stop(context.Background()))

	// Assert
	assert.Equal(t, 35, accepted)
	assert.Len(t, store.StoredSignalLogs(), 35)
	stats := queue.Stats()
	assert.Equal(t, int64(35), stats["written"])
	assert.Equal(t, int64(0), stats["dropped"])
}

func TestSignalAuditQueue_DropsWhenFull(t *testing.T) {
	metrics := newRecordingMetrics()
	queue := NewSignalAuditQueue(memory.NewStore().SignalLogs(), metrics, AuditQueueConfig{QueueSize: 5}, zap.NewNop())

	// not started, so nothing drains the channel
	accepted := queue.Enqueue(signalLogs(8)...)

	assert.Equal(t, 5, accepted)
	assert.Equal(t, 3, metrics.droppedFor("queue_full"))
}

func TestSignalAuditQueue_RejectsAfterStop(t *testing.T) {
	metrics := newRecordingMetrics()
	queue := NewSignalAuditQueue(memory.NewStore().SignalLogs(), metrics, DefaultAuditQueueConfig(), zap.NewNop())
	queue.Start()
	require.NoError(t, queue.Stop(context.Background()))

	accepted := queue.Enqueue(signalLogs(2)...)

	assert.Equal(t, 0, accepted)
	assert.Equal(t, 2, metrics.droppedFor("stopped"))
}

func TestSignalAuditQueue_RetriesThenSucceeds(t *testing.T) {
	repo := new(MockSignalLogRepository)
	repo.On("SaveBatch", mock.Anything, mock.Anything).Return(errors.New("throttled")).Once()
	repo.On("SaveBatch", mock.Anything, mock.Anything).Return(nil).Once()

	queue := NewSignalAuditQueue(repo, nil, AuditQueueConfig{
		Workers:     1,
		BatchSize:   3,
		MaxAttempts: 3,
		BaseBackoff: time.Millisecond,
	}, zap.NewNop())
	queue.Start()

	queue.Enqueue(signalLogs(3)...)
	require.NoError(t, queue.Stop(context.Background()))

	assert.Equal(t, int64(3), queue.Stats()["written"])
	repo.AssertNumberOfCalls(t, "SaveBatch", 2)
}

func TestSignalAuditQueue_DiscardsAfterMaxAttempts(t *testing.T) {
	repo := new(MockSignalLogRepository)
	repo.On("SaveBatch", mock.Anything, mock.Anything).Return(errors.New("unavailable"))
	metrics := newRecordingMetrics()

	queue := NewSignalAuditQueue(repo, metrics, AuditQueueConfig{
		Workers:     1,
		BatchSize:   2,
		MaxAttempts: 3,
		BaseBackoff: time.Millisecond,
	}, zap.NewNop())
	queue.Start()

	queue.Enqueue(signalLogs(2)...)
	require.NoError(t, queue.Stop(context.Background()))

	repo.AssertNumberOfCalls(t, "SaveBatch", 3)
	assert.Equal(t, 2, metrics.droppedFor("write_failed"))
}

func TestSignalAuditQueue_ConcurrentEnqueue(t *testing.T) {
	store := memory.NewStore()
	queue := NewSignalAuditQueue(store.SignalLogs(), nil, AuditQueueConfig{QueueSize: 1000, Workers: 4}, zap.NewNop())
	queue.Start()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			queue.Enqueue(signalLogs(20)...)
		}()
	}
	wg.Wait()
	require.NoError(t, queue.Stop(context.Background()))

	assert.Len(t, store.StoredSignalLogs(), 200)
}
