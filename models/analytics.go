package models

import (
	"time"
)

// AnalyticsMessage 面向转播的解说消息, 只追加不修改
type AnalyticsMessage struct {
	Time         time.Time `json:"time"`
	Kind         string    `json:"kind,omitempty"`
	Text         string    `json:"text"`
	TeamID       *int      `json:"team_id,omitempty"`
	ProblemIndex *int      `json:"problem_index,omitempty"`
	RunID        *int      `json:"run_id,omitempty"`
}
