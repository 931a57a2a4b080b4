package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contest-live-service/models"
)

func testServer() *Server {
	return &Server{state: NewStateCache()}
}

func TestContestEndpointBeforeConfigKnown(t *testing.T) {
	s := testServer()
	rec := httptest.NewRecorder()
	s.handleGetContest(rec, httptest.NewRequest(http.MethodGet, "/api/contest", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestContestEndpointReturnsSnapshot(t *testing.T) {
	s := testServer()
	s.state.SetContest(models.ContestSnapshot{
		Contest: models.Contest{Status: models.StatusRunning, Duration: 5 * time.Hour},
		Teams:   []models.Team{{ID: 1, Name: "Alpha"}},
	})

	rec := httptest.NewRecorder()
	s.handleGetContest(rec, httptest.NewRequest(http.MethodGet, "/api/contest", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var snap models.ContestSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, models.StatusRunning, snap.Contest.Status)
	assert.Len(t, snap.Teams, 1)
}

func TestScoreboardEndpointValidatesVariant(t *testing.T) {
	s := testServer()

	req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/api/scoreboard/bogus", nil),
		map[string]string{"variant": "bogus"})
	rec := httptest.NewRecorder()
	s.handleGetScoreboard(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScoreboardEndpointPerVariant(t *testing.T) {
	s := testServer()
	s.state.SetScoreboard(models.Scoreboard{
		Level: models.OptimismOptimistic,
		Rows:  []models.ScoreboardRow{{TeamID: 1, Rank: 1, Solved: 2}},
	})

	req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/api/scoreboard/optimistic", nil),
		map[string]string{"variant": "optimistic"})
	rec := httptest.NewRecorder()
	s.handleGetScoreboard(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	// 其它变体尚未计算
	req = mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/api/scoreboard/normal", nil),
		map[string]string{"variant": "normal"})
	rec = httptest.NewRecorder()
	s.handleGetScoreboard(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAnalyticsEndpointReturnsRecentMessages(t *testing.T) {
	s := testServer()
	s.state.AddAnalytics(models.AnalyticsMessage{Kind: "accepted_run", Text: "Alpha solves A"})

	rec := httptest.NewRecorder()
	s.handleGetAnalytics(rec, httptest.NewRequest(http.MethodGet, "/api/analytics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var msgs []models.AnalyticsMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msgs))
	require.Len(t, msgs, 1)
	assert.Equal(t, "Alpha solves A", msgs[0].Text)
}

func TestStateCacheKeepsBoundedAnalyticsHistory(t *testing.T) {
	cache := NewStateCache()
	for i := 0; i < analyticsHistory+20; i++ {
		cache.AddAnalytics(models.AnalyticsMessage{Kind: "accepted_run"})
	}
	assert.Len(t, cache.Analytics(), analyticsHistory)
}
