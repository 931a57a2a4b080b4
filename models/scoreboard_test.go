package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMedalTierByCumulativeRank(t *testing.T) {
	settings := MedalSettings{Medals: []MedalGroup{
		{Tier: "gold", Count: 4},
		{Tier: "silver", Count: 4},
		{Tier: "bronze", Count: 4},
	}}

	assert.Equal(t, "gold", settings.TierByRank(1))
	assert.Equal(t, "gold", settings.TierByRank(4))
	assert.Equal(t, "silver", settings.TierByRank(5))
	assert.Equal(t, "bronze", settings.TierByRank(12))
	assert.Equal(t, "", settings.TierByRank(13))
}

func TestContestFreezeWindow(t *testing.T) {
	contest := Contest{Duration: 5 * time.Hour, FreezeTime: 4 * time.Hour}

	assert.False(t, contest.IsFrozenAt(3*time.Hour+59*time.Minute))
	assert.True(t, contest.IsFrozenAt(4*time.Hour))
	assert.True(t, contest.IsFrozenAt(5*time.Hour))

	noFreeze := Contest{Duration: 5 * time.Hour}
	assert.False(t, noFreeze.IsFrozenAt(4*time.Hour))
}

func TestStatusAdvancesOnly(t *testing.T) {
	assert.True(t, StatusBefore.CanAdvanceTo(StatusRunning))
	assert.True(t, StatusRunning.CanAdvanceTo(StatusOver))
	assert.True(t, StatusRunning.CanAdvanceTo(StatusRunning))
	assert.False(t, StatusOver.CanAdvanceTo(StatusRunning))
	assert.False(t, StatusRunning.CanAdvanceTo(StatusBefore))
}

func TestMaskedStripsJudgementDetail(t *testing.T) {
	run := Run{
		ID: 7, TeamID: 3, ProblemIndex: 2, Time: 4 * time.Hour,
		Judged: true, Accepted: true, AddsPenalty: false,
		Result: "AC", PassedCases: []int{1, 2, 3}, FirstSolved: true,
	}

	masked := run.Masked()
	assert.Equal(t, run.ID, masked.ID)
	assert.Equal(t, run.Time, masked.Time)
	assert.False(t, masked.Judged)
	assert.False(t, masked.Accepted)
	assert.Empty(t, masked.Result)
	assert.Nil(t, masked.PassedCases)
	assert.False(t, masked.FirstSolved)
}
