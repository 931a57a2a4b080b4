package models

import (
	"time"
)

// Run 一次提交及其当前已知的评测状态
// 内部 ID 在首次看到该提交时分配, 之后保持稳定
// 封榜后 (Time >= Contest.FreezeTime) 不再更新评测细节
type Run struct {
	ID           int           `json:"id"`
	TeamID       int           `json:"team_id"`
	ProblemIndex int           `json:"problem_index"`
	Time         time.Duration `json:"time"`
	Judged       bool          `json:"judged"`
	Accepted     bool          `json:"accepted"`
	AddsPenalty  bool          `json:"adds_penalty"`
	Result       string        `json:"result"`
	LastUpdate   time.Duration `json:"last_update"`
	PassedCases  []int         `json:"passed_cases,omitempty"`
	FirstSolved  bool          `json:"first_solved"`
}

// Masked 返回抹去评测细节的副本, 只保留存在性和时间信息
// 用于封榜期间向公开视图投递
func (r Run) Masked() Run {
	masked := r
	masked.Judged = false
	masked.Accepted = false
	masked.AddsPenalty = false
	masked.Result = ""
	masked.PassedCases = nil
	masked.FirstSolved = false
	return masked
}
