package services

import (
	"os"
	"path/filepath"
	"testing"
	"text/template"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contest-live-service/models"
)

func testTemplates(t *testing.T) map[string]*template.Template {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "analytics.yaml")
	content := `accepted_run: "{{.Team}} solves {{.Problem}}"
first_to_solve: "{{.Team}} first to solve {{.Problem}}"
lead_change: "{{.Team}} leads with {{.Solved}}"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	templates, err := LoadAnalyticsTemplates(path)
	require.NoError(t, err)
	return templates
}

func drainAnalytics(out <-chan models.AnalyticsMessage) []models.AnalyticsMessage {
	var msgs []models.AnalyticsMessage
	for {
		select {
		case msg := <-out:
			msgs = append(msgs, msg)
		default:
			return msgs
		}
	}
}

func TestLoadAnalyticsTemplatesMissingFile(t *testing.T) {
	_, err := LoadAnalyticsTemplates("/no/such/file.yaml")
	assert.Error(t, err)
}

func TestAnalyticsGeneratesAcceptedAndFirstToSolve(t *testing.T) {
	g := NewAnalyticsGenerator(testTemplates(t), nil, nil)

	snap := testSnapshot(1)
	g.observeEvent(Event{Kind: EventSnapshot, Snapshot: snap})

	run := judgedRun(1, 1, 0, 10*time.Minute, true)
	run.FirstSolved = true
	g.observeEvent(Event{Kind: EventRun, Run: run})

	msgs := drainAnalytics(g.Out())
	require.Len(t, msgs, 2)
	assert.Equal(t, AnalyticsFirstToSolve, msgs[0].Kind)
	assert.Equal(t, "Alpha first to solve A", msgs[0].Text)
	assert.Equal(t, AnalyticsAcceptedRun, msgs[1].Kind)
	assert.Equal(t, "Alpha solves A", msgs[1].Text)
	require.NotNil(t, msgs[1].RunID)
	assert.Equal(t, 1, *msgs[1].RunID)
}

func TestAnalyticsDeduplicatesByRunID(t *testing.T) {
	g := NewAnalyticsGenerator(testTemplates(t), nil, nil)
	g.observeEvent(Event{Kind: EventSnapshot, Snapshot: testSnapshot(1)})

	run := judgedRun(1, 1, 0, 10*time.Minute, true)
	g.observeEvent(Event{Kind: EventRun, Run: run})
	g.observeEvent(Event{Kind: EventRun, Run: run})

	msgs := drainAnalytics(g.Out())
	assert.Len(t, msgs, 1)
}

func TestAnalyticsLeadChange(t *testing.T) {
	g := NewAnalyticsGenerator(testTemplates(t), nil, nil)
	g.observeEvent(Event{Kind: EventSnapshot, Snapshot: testSnapshot(2)})

	board := models.Scoreboard{Rows: []models.ScoreboardRow{
		{TeamID: 1, Rank: 1, Solved: 2, Penalty: 40},
		{TeamID: 2, Rank: 2, Solved: 1, Penalty: 20},
	}}
	g.observeScoreboard(board)

	// 榜首不变不再生成
	g.observeScoreboard(board)

	board.Rows[0], board.Rows[1] = board.Rows[1], board.Rows[0]
	board.Rows[0].Solved = 3
	g.observeScoreboard(board)

	msgs := drainAnalytics(g.Out())
	require.Len(t, msgs, 2)
	assert.Equal(t, AnalyticsLeadChange, msgs[0].Kind)
	assert.Equal(t, "Alpha leads with 2", msgs[0].Text)
	assert.Equal(t, "Beta leads with 3", msgs[1].Text)
}

func TestAnalyticsIgnoresZeroSolveLeader(t *testing.T) {
	g := NewAnalyticsGenerator(testTemplates(t), nil, nil)
	g.observeEvent(Event{Kind: EventSnapshot, Snapshot: testSnapshot(1)})

	g.observeScoreboard(models.Scoreboard{Rows: []models.ScoreboardRow{
		{TeamID: 1, Rank: 1, Solved: 0},
	}})
	assert.Empty(t, drainAnalytics(g.Out()))
}

func TestAnalyticsSkipsMissingTemplateKind(t *testing.T) {
	g := NewAnalyticsGenerator(map[string]*template.Template{}, nil, nil)
	g.observeEvent(Event{Kind: EventSnapshot, Snapshot: testSnapshot(1)})
	g.observeEvent(Event{Kind: EventRun, Run: judgedRun(1, 1, 0, 10*time.Minute, true)})

	assert.Empty(t, drainAnalytics(g.Out()))
}

func TestAnalyticsForwardsUpstreamMessages(t *testing.T) {
	g := NewAnalyticsGenerator(nil, nil, nil)
	g.observeEvent(Event{Kind: EventAnalytics, Analytics: models.AnalyticsMessage{
		Kind: "commentary", Text: "what a save",
	}})

	msgs := drainAnalytics(g.Out())
	require.Len(t, msgs, 1)
	assert.Equal(t, "what a save", msgs[0].Text)
}
