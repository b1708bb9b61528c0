package jobmodule

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/curatarr/curatarr/internal/database"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&database.Job{}, &database.JobDependency{}))
	return NewQueue(db, nil)
}

func TestEnqueueDefaults(t *testing.T) {
	q := newTestQueue(t)

	id, err := q.Enqueue(TypeDirectoryScan, map[string]string{"dir": "/lib/m"}, EnqueueOptions{})
	require.NoError(t, err)

	job, err := q.Get(id)
	require.NoError(t, err)
	assert.Equal(t, database.JobPending, job.Status)
	assert.Equal(t, 5, job.Priority)
	assert.Equal(t, 3, job.MaxRetries)
	assert.Contains(t, job.Payload, `"dir":"/lib/m"`)
}

func TestEnqueueRejectsEmptyType(t *testing.T) {
	q := newTestQueue(t)
	_, err := q.Enqueue("", nil, EnqueueOptions{})
	assert.Error(t, err)
}

func TestPickNextPriorityThenAge(t *testing.T) {
	q := newTestQueue(t)

	low, err := q.Enqueue(TypePublish, nil, EnqueueOptions{Priority: 9})
	require.NoError(t, err)
	firstNormal, err := q.Enqueue(TypePublish, nil, EnqueueOptions{Priority: 5})
	require.NoError(t, err)
	secondNormal, err := q.Enqueue(TypePublish, nil, EnqueueOptions{Priority: 5})
	require.NoError(t, err)
	critical, err := q.Enqueue(TypePublish, nil, EnqueueOptions{Priority: 1})
	require.NoError(t, err)

	var order []uint
	for {
		job, err := q.PickNext("w1")
		require.NoError(t, err)
		if job == nil {
			break
		}
		order = append(order, job.ID)
		require.NoError(t, q.Complete(job.ID, nil))
	}

	assert.Equal(t, []uint{critical, firstNormal, secondNormal, low}, order)
}

func TestPickNextSetsProcessingState(t *testing.T) {
	q := newTestQueue(t)

	id, err := q.Enqueue(TypeCleanup, nil, EnqueueOptions{})
	require.NoError(t, err)

	job, err := q.PickNext("w7")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, id, job.ID)
	assert.Equal(t, database.JobProcessing, job.Status)
	assert.Equal(t, "w7", job.WorkerID)
	require.NotNil(t, job.StartedAt)
	assert.LessOrEqual(t, job.RetryCount, job.MaxRetries)

	// Nothing else to pick while the job is processing.
	next, err := q.PickNext("w8")
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestDependencyGating(t *testing.T) {
	q := newTestQueue(t)

	scanID, err := q.Enqueue(TypeDirectoryScan, nil, EnqueueOptions{})
	require.NoError(t, err)
	enrichID, err := q.Enqueue(TypeEnrichMetadata, nil, EnqueueOptions{Priority: 1, DependsOn: []uint{scanID}})
	require.NoError(t, err)

	// The dependent job is invisible while its dependency is incomplete,
	// even though it has higher priority.
	job, err := q.PickNext("w1")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, scanID, job.ID)

	next, err := q.PickNext("w2")
	require.NoError(t, err)
	assert.Nil(t, next)

	require.NoError(t, q.Complete(scanID, nil))

	job, err = q.PickNext("w1")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, enrichID, job.ID)
}

func TestFailRetriesWithBackoff(t *testing.T) {
	q := newTestQueue(t)

	id, err := q.Enqueue(TypeDownloadTrailer, nil, EnqueueOptions{MaxRetries: 2})
	require.NoError(t, err)

	job, err := q.PickNext("w1")
	require.NoError(t, err)
	require.NotNil(t, job)

	before := time.Now()
	require.NoError(t, q.Fail(id, "connection reset", false))

	job, err = q.Get(id)
	require.NoError(t, err)
	assert.Equal(t, database.JobRetrying, job.Status)
	assert.Equal(t, 1, job.RetryCount)
	assert.Equal(t, "connection reset", job.Error)
	require.NotNil(t, job.NextRetryAt)

	// First retry backs off two seconds.
	delay := job.NextRetryAt.Sub(before)
	assert.InDelta(t, 2.0, delay.Seconds(), 1.0)

	// Not yet due.
	next, err := q.PickNext("w1")
	require.NoError(t, err)
	assert.Nil(t, next)

	// Force the retry due and exhaust the budget.
	past := time.Now().Add(-time.Second)
	require.NoError(t, q.db.Model(&database.Job{}).Where("id = ?", id).Update("next_retry_at", past).Error)

	job, err = q.PickNext("w1")
	require.NoError(t, err)
	require.NotNil(t, job)

	require.NoError(t, q.Fail(id, "connection reset", false))
	require.NoError(t, q.db.Model(&database.Job{}).Where("id = ?", id).Update("next_retry_at", past).Error)
	job, err = q.PickNext("w1")
	require.NoError(t, err)
	require.NotNil(t, job)

	require.NoError(t, q.Fail(id, "connection reset", false))

	job, err = q.Get(id)
	require.NoError(t, err)
	assert.Equal(t, database.JobFailed, job.Status)
	require.NotNil(t, job.CompletedAt)
}

func TestFailPermanentSkipsRetry(t *testing.T) {
	q := newTestQueue(t)

	id, err := q.Enqueue(TypeEnrichMetadata, nil, EnqueueOptions{})
	require.NoError(t, err)
	_, err = q.PickNext("w1")
	require.NoError(t, err)

	require.NoError(t, q.Fail(id, "movie not found at provider", true))

	job, err := q.Get(id)
	require.NoError(t, err)
	assert.Equal(t, database.JobFailed, job.Status)
	assert.Equal(t, 0, job.RetryCount)
}

func TestTerminalFailureCascadesToDependents(t *testing.T) {
	q := newTestQueue(t)

	scanID, err := q.Enqueue(TypeDirectoryScan, nil, EnqueueOptions{})
	require.NoError(t, err)
	enrichID, err := q.Enqueue(TypeEnrichMetadata, nil, EnqueueOptions{DependsOn: []uint{scanID}})
	require.NoError(t, err)
	publishID, err := q.Enqueue(TypePublish, nil, EnqueueOptions{DependsOn: []uint{enrichID}})
	require.NoError(t, err)

	_, err = q.PickNext("w1")
	require.NoError(t, err)
	require.NoError(t, q.Fail(scanID, "directory vanished", true))

	for _, id := range []uint{enrichID, publishID} {
		job, err := q.Get(id)
		require.NoError(t, err)
		assert.Equal(t, database.JobFailed, job.Status, "job %d", id)
		assert.Contains(t, job.Error, "dependency job")
	}
}

func TestCancel(t *testing.T) {
	q := newTestQueue(t)

	id, err := q.Enqueue(TypePublish, nil, EnqueueOptions{})
	require.NoError(t, err)
	require.NoError(t, q.Cancel(id))

	job, err := q.Get(id)
	require.NoError(t, err)
	assert.Equal(t, database.JobFailed, job.Status)
	assert.Equal(t, "cancelled", job.Error)

	// Processing jobs cannot be cancelled.
	id2, err := q.Enqueue(TypePublish, nil, EnqueueOptions{})
	require.NoError(t, err)
	_, err = q.PickNext("w1")
	require.NoError(t, err)
	assert.Error(t, q.Cancel(id2))
}

func TestPrune(t *testing.T) {
	q := newTestQueue(t)

	doneID, err := q.Enqueue(TypeCleanup, nil, EnqueueOptions{})
	require.NoError(t, err)
	_, err = q.PickNext("w1")
	require.NoError(t, err)
	require.NoError(t, q.Complete(doneID, nil))

	pendingID, err := q.Enqueue(TypeCleanup, nil, EnqueueOptions{})
	require.NoError(t, err)

	// Age the completed job past the cutoff.
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, q.db.Model(&database.Job{}).Where("id = ?", doneID).Update("completed_at", old).Error)

	pruned, err := q.Prune(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	_, err = q.Get(doneID)
	assert.Error(t, err)
	_, err = q.Get(pendingID)
	assert.NoError(t, err)
}

func TestResetStale(t *testing.T) {
	q := newTestQueue(t)

	id, err := q.Enqueue(TypeNotifyKodi, nil, EnqueueOptions{})
	require.NoError(t, err)
	_, err = q.PickNext("w1")
	require.NoError(t, err)

	require.NoError(t, q.ResetStale(context.Background()))

	job, err := q.Get(id)
	require.NoError(t, err)
	assert.Equal(t, database.JobPending, job.Status)
	assert.Empty(t, job.WorkerID)
	assert.Nil(t, job.StartedAt)
}
