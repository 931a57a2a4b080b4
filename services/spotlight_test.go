package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contest-live-service/models"
)

func nextSelection(t *testing.T, selections <-chan SpotlightSelection) SpotlightSelection {
	t.Helper()
	select {
	case sel := <-selections:
		return sel
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for spotlight selection")
		return SpotlightSelection{}
	}
}

func TestSpotlightPicksHighestScore(t *testing.T) {
	s := NewSpotlightSelector(time.Hour, nil, nil)
	selections := s.Subscribe(8)

	s.addScore(1, spotlightAcceptedScore, "accepted_run")
	s.addScore(2, spotlightAcceptedScore*3, "accepted_run")
	s.rotate()

	sel := nextSelection(t, selections)
	assert.Equal(t, 2, sel.TeamID)
	assert.Equal(t, []string{"accepted_run"}, sel.Reasons)
}

func TestSpotlightCooldownBlocksRepeatWinner(t *testing.T) {
	s := NewSpotlightSelector(time.Hour, nil, nil)
	selections := s.Subscribe(8)

	s.addScore(1, 50, "accepted_run")
	s.addScore(2, 10, "accepted_run")
	s.rotate()
	assert.Equal(t, 1, nextSelection(t, selections).TeamID)

	// 冠军在冷却中, 即使重新积累更高分数也轮不到
	s.addScore(1, 100, "accepted_run")
	s.rotate()
	assert.Equal(t, 2, nextSelection(t, selections).TeamID)
}

func TestSpotlightDecayDropsStaleCandidates(t *testing.T) {
	s := NewSpotlightSelector(time.Hour, nil, nil)
	selections := s.Subscribe(8)

	s.addScore(1, 50, "accepted_run")
	s.addScore(2, spotlightMinScore, "rank_change") // 一轮衰减后低于下限
	s.rotate()
	nextSelection(t, selections)

	_, alive := s.candidates[2]
	assert.False(t, alive, "decayed candidate should be dropped")
}

func TestSpotlightExternalRequestOutweighsActivity(t *testing.T) {
	events := make(chan Event, 8)
	s := NewSpotlightSelector(50*time.Millisecond, events, nil)
	selections := s.Subscribe(8)
	go s.Run()
	defer s.Stop()

	events <- Event{Kind: EventRun, Run: judgedRun(1, 1, 0, 10*time.Minute, true)}
	s.Request(InterestRequest{TeamID: 7})

	sel := nextSelection(t, selections)
	assert.Equal(t, 7, sel.TeamID, "external request beats natural activity")
	assert.Contains(t, sel.Reasons, "external_request")
}

func TestSpotlightIgnoresRequestsAfterContestOver(t *testing.T) {
	s := NewSpotlightSelector(time.Hour, nil, nil)

	snap := testSnapshot(1)
	snap.Contest.Status = models.StatusOver
	s.observeEvent(Event{Kind: EventSnapshot, Snapshot: snap})
	assert.True(t, s.contestOver)
}

func TestSpotlightScoresRankImprovement(t *testing.T) {
	s := NewSpotlightSelector(time.Hour, nil, nil)

	board := models.Scoreboard{Rows: []models.ScoreboardRow{
		{TeamID: 1, Rank: 5},
		{TeamID: 2, Rank: 1},
	}}
	s.observeScoreboard(board)
	assert.Empty(t, s.candidates, "first sighting sets baseline only")

	board = models.Scoreboard{Rows: []models.ScoreboardRow{
		{TeamID: 1, Rank: 2},
		{TeamID: 2, Rank: 1},
	}}
	s.observeScoreboard(board)

	c, ok := s.candidates[1]
	require.True(t, ok)
	assert.Equal(t, spotlightRankScore*3, c.score)
	_, gained := s.candidates[2]
	assert.False(t, gained, "unchanged rank earns nothing")
}

func TestSpotlightAcceptedRunCountedOnce(t *testing.T) {
	s := NewSpotlightSelector(time.Hour, nil, nil)

	run := judgedRun(1, 1, 0, 10*time.Minute, true)
	s.observeEvent(Event{Kind: EventRun, Run: run})
	s.observeEvent(Event{Kind: EventRun, Run: run})

	c, ok := s.candidates[1]
	require.True(t, ok)
	assert.Equal(t, spotlightAcceptedScore, c.score)
}
