package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contest-live-service/models"
)

func TestQueueInsertsNewestFirst(t *testing.T) {
	q := NewQueueService(5, nil)
	q.apply(pendingRun(1, 1, 0, 1*time.Minute))
	q.apply(pendingRun(2, 2, 0, 2*time.Minute))
	q.apply(pendingRun(3, 1, 1, 3*time.Minute))

	runs := q.Current()
	require.Len(t, runs, 3)
	assert.Equal(t, 3, runs[0].ID)
	assert.Equal(t, 2, runs[1].ID)
	assert.Equal(t, 1, runs[2].ID)
}

func TestQueueReplacesInPlaceByID(t *testing.T) {
	q := NewQueueService(5, nil)
	q.apply(pendingRun(1, 1, 0, 1*time.Minute))
	q.apply(pendingRun(2, 2, 0, 2*time.Minute))

	// 评测结果到达: 位置不变, 内容更新
	q.apply(judgedRun(1, 1, 0, 1*time.Minute, true))

	runs := q.Current()
	require.Len(t, runs, 2)
	assert.Equal(t, 2, runs[0].ID)
	assert.Equal(t, 1, runs[1].ID)
	assert.True(t, runs[1].Judged)
}

func TestQueueEvictsOldestBeyondWindow(t *testing.T) {
	q := NewQueueService(3, nil)
	for id := 1; id <= 5; id++ {
		q.apply(pendingRun(id, 1, 0, time.Duration(id)*time.Minute))
	}

	runs := q.Current()
	require.Len(t, runs, 3)
	assert.Equal(t, 5, runs[0].ID)
	assert.Equal(t, 3, runs[2].ID)
}

func TestQueueSetFromSnapshotReversesInput(t *testing.T) {
	q := NewQueueService(5, nil)
	q.SetFromSnapshot([]models.Run{
		pendingRun(1, 1, 0, 1*time.Minute),
		pendingRun(2, 2, 0, 2*time.Minute),
		pendingRun(3, 1, 1, 3*time.Minute),
	})

	runs := q.Current()
	require.Len(t, runs, 3)
	assert.Equal(t, 3, runs[0].ID, "newest ends up first")
	assert.Equal(t, 1, runs[2].ID)
}

func TestQueuePublishesSnapshotPerRunEvent(t *testing.T) {
	events := make(chan Event, 8)
	q := NewQueueService(3, events)
	snapshots := q.Subscribe(8)
	go q.Run()
	defer q.Stop()

	events <- Event{Kind: EventSnapshot} // 非 Run 事件被忽略
	events <- Event{Kind: EventRun, Run: pendingRun(1, 1, 0, time.Minute)}

	select {
	case snapshot := <-snapshots:
		require.Len(t, snapshot.Runs, 1)
		assert.Equal(t, 1, snapshot.Runs[0].ID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for queue snapshot")
	}
}
