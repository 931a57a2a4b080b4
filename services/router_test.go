package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contest-live-service/models"
)

// stubAdapter 测试用数据源
type stubAdapter struct {
	snapshots chan models.ContestSnapshot
	runs      chan models.Run
	analytics chan models.AnalyticsMessage
}

func newStubAdapter() *stubAdapter {
	return &stubAdapter{
		snapshots: make(chan models.ContestSnapshot, 16),
		runs:      make(chan models.Run, 16),
		analytics: make(chan models.AnalyticsMessage, 16),
	}
}

func (a *stubAdapter) Snapshots() <-chan models.ContestSnapshot  { return a.snapshots }
func (a *stubAdapter) Runs() <-chan models.Run                   { return a.runs }
func (a *stubAdapter) Analytics() <-chan models.AnalyticsMessage { return a.analytics }
func (a *stubAdapter) Start() error                              { return nil }
func (a *stubAdapter) Stop()                                     {}

func (a *stubAdapter) closeAll() {
	close(a.snapshots)
	close(a.runs)
	close(a.analytics)
}

func nextEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-events:
		require.True(t, ok, "subscription closed unexpectedly")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestRouterMasksFrozenRunsUntilOver(t *testing.T) {
	adapter := newStubAdapter()
	router := NewEventRouter(adapter)
	events := router.Subscribe(16)
	go router.Run()
	defer router.Stop()

	snap := testSnapshot(1) // RUNNING, FreezeTime = 4h
	adapter.snapshots <- snap
	assert.Equal(t, EventSnapshot, nextEvent(t, events).Kind)

	// 封榜前的提交原样通过
	adapter.runs <- judgedRun(1, 1, 0, 30*time.Minute, true)
	ev := nextEvent(t, events)
	assert.True(t, ev.Run.Judged)

	// 封榜区间的提交被抹去评测细节
	adapter.runs <- judgedRun(2, 1, 1, 4*time.Hour+10*time.Minute, true)
	ev = nextEvent(t, events)
	assert.False(t, ev.Run.Judged)
	assert.False(t, ev.Run.Accepted)
	assert.Equal(t, 4*time.Hour+10*time.Minute, ev.Run.Time, "existence info preserved")

	// 比赛结束后不再抹除
	snap.Contest.Status = models.StatusOver
	adapter.snapshots <- snap
	nextEvent(t, events)

	adapter.runs <- judgedRun(2, 1, 1, 4*time.Hour+10*time.Minute, true)
	ev = nextEvent(t, events)
	assert.True(t, ev.Run.Judged)
}

func TestRouterHoldsRunsUntilFirstSnapshot(t *testing.T) {
	adapter := newStubAdapter()
	router := NewEventRouter(adapter)
	events := router.Subscribe(16)
	go router.Run()
	defer router.Stop()

	// 配置未知时无法判断封榜区间: 提交先扣住
	adapter.runs <- judgedRun(1, 1, 0, 4*time.Hour+10*time.Minute, true)
	select {
	case ev := <-events:
		t.Fatalf("run forwarded before contest config known: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}

	adapter.snapshots <- testSnapshot(1)
	assert.Equal(t, EventSnapshot, nextEvent(t, events).Kind)

	// 快照到达后放出, 且按封榜规则抹除评测细节
	ev := nextEvent(t, events)
	assert.Equal(t, EventRun, ev.Kind)
	assert.False(t, ev.Run.Judged)
	assert.False(t, ev.Run.Accepted)
	assert.Equal(t, 4*time.Hour+10*time.Minute, ev.Run.Time)
}

func TestRouterReplaysSnapshotToLateSubscribers(t *testing.T) {
	adapter := newStubAdapter()
	router := NewEventRouter(adapter)
	early := router.Subscribe(16)
	go router.Run()
	defer router.Stop()

	adapter.snapshots <- testSnapshot(2)
	nextEvent(t, early)

	late := router.Subscribe(16)
	ev := nextEvent(t, late)
	assert.Equal(t, EventSnapshot, ev.Kind)
	assert.Len(t, ev.Snapshot.Teams, 2)
}

func TestRouterForwardsAnalytics(t *testing.T) {
	adapter := newStubAdapter()
	router := NewEventRouter(adapter)
	events := router.Subscribe(16)
	go router.Run()
	defer router.Stop()

	adapter.analytics <- models.AnalyticsMessage{Kind: "custom", Text: "hello"}
	ev := nextEvent(t, events)
	assert.Equal(t, EventAnalytics, ev.Kind)
	assert.Equal(t, "hello", ev.Analytics.Text)
}

func replayFinalBoard(t *testing.T, snap models.ContestSnapshot, runs []models.Run) models.Scoreboard {
	t.Helper()
	adapter := newStubAdapter()
	router := NewEventRouter(adapter)
	engine := NewScoreboardEngine(models.OptimismNormal, router.Subscribe(64))
	boards := engine.Subscribe(64)
	go router.Run()
	go engine.Run()

	adapter.snapshots <- snap
	for _, run := range runs {
		adapter.runs <- run
	}
	adapter.closeAll()

	var last models.Scoreboard
	for board := range boards {
		last = board
	}
	require.NotEmpty(t, last.Rows)
	return last
}

func TestPipelineReplayIsIdempotent(t *testing.T) {
	// 同一事件序列喂两遍, 最终榜必须一致
	snap := testSnapshot(3)
	runs := []models.Run{
		judgedRun(1, 1, 0, 10*time.Minute, true),
		judgedRun(2, 2, 0, 12*time.Minute, false),
		judgedRun(3, 2, 0, 20*time.Minute, true),
		pendingRun(4, 3, 1, 40*time.Minute),
		judgedRun(5, 1, 1, 55*time.Minute, true),
	}

	first := replayFinalBoard(t, snap, runs)
	second := replayFinalBoard(t, snap, runs)
	assert.Equal(t, first.Rows, second.Rows)
}

func TestRouterClosesSubscribersWhenSourceEnds(t *testing.T) {
	adapter := newStubAdapter()
	router := NewEventRouter(adapter)
	events := router.Subscribe(16)
	go router.Run()

	adapter.closeAll()

	select {
	case _, ok := <-events:
		assert.False(t, ok, "subscription should close with the source")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for close")
	}
}
