package models

import (
	"time"
)

// ProblemResult 某队伍在单个题目上的展示结果
type ProblemResult struct {
	WrongAttempts   int           `json:"wrong_attempts"`
	PendingAttempts int           `json:"pending_attempts"`
	Solved          bool          `json:"solved"`
	FirstToSolve    bool          `json:"first_to_solve"`
	LastSubmitTime  time.Duration `json:"last_submit_time"`
}

// ScoreboardRow 记分板中的一行, 每次触发事件都整体重算而不做增量修补
type ScoreboardRow struct {
	TeamID       int             `json:"team_id"`
	Rank         int             `json:"rank"`
	Solved       int             `json:"solved"`
	Penalty      int             `json:"penalty"`
	LastAccepted time.Duration   `json:"last_accepted"`
	Medal        string          `json:"medal,omitempty"`
	Problems     []ProblemResult `json:"problems"`
}

// Scoreboard 一次完整的记分板快照, 连同计算时依据的比赛状态
type Scoreboard struct {
	Level   OptimismLevel   `json:"level"`
	Contest Contest         `json:"contest"`
	Rows    []ScoreboardRow `json:"rows"`
}

// MedalGroup 奖牌档位及对应名额
type MedalGroup struct {
	Tier  string `json:"tier" yaml:"tier"`
	Count int    `json:"count" yaml:"count"`
}

// MedalSettings 奖牌配置, 按累计名额从排名映射到档位
type MedalSettings struct {
	Medals []MedalGroup `json:"medals" yaml:"medals"`
}

// TierByRank 按名次返回奖牌档位, 超出全部名额返回空串
func (m MedalSettings) TierByRank(rank int) string {
	for _, group := range m.Medals {
		if rank <= group.Count {
			return group.Tier
		}
		rank -= group.Count
	}
	return ""
}
