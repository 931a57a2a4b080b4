package models

import (
	"time"
)

// ContestStatus 比赛状态
type ContestStatus string

const (
	StatusBefore  ContestStatus = "BEFORE"
	StatusRunning ContestStatus = "RUNNING"
	StatusOver    ContestStatus = "OVER"
	StatusUnknown ContestStatus = "UNKNOWN"
)

// order 用于状态单调性检查: BEFORE -> RUNNING -> OVER, 不允许回退
func (s ContestStatus) order() int {
	switch s {
	case StatusBefore:
		return 1
	case StatusRunning:
		return 2
	case StatusOver:
		return 3
	}
	return 0
}

// CanAdvanceTo 状态只能前进不能回退
func (s ContestStatus) CanAdvanceTo(next ContestStatus) bool {
	return next.order() >= s.order()
}

// ResultType 比赛计分模式
type ResultType string

const (
	ResultICPC ResultType = "ICPC"
	ResultIOI  ResultType = "IOI"
)

// OptimismLevel 记分板乐观级别, 决定未评测提交的处理方式
type OptimismLevel string

const (
	OptimismNormal      OptimismLevel = "normal"
	OptimismOptimistic  OptimismLevel = "optimistic"
	OptimismPessimistic OptimismLevel = "pessimistic"
)

// Contest 比赛基本信息
// FreezeTime 是相对比赛开始的封榜时刻 (FreezeTime <= Duration),
// 提交时间 >= FreezeTime 的 Run 在比赛结束前不公开评测细节
type Contest struct {
	StartTime  time.Time     `json:"start_time"`
	Duration   time.Duration `json:"duration"`
	FreezeTime time.Duration `json:"freeze_time"`
	Status     ContestStatus `json:"status"`
	ResultType ResultType    `json:"result_type"`
}

// IsFrozenAt 判断给定的比赛相对时间是否处于封榜区间
func (c Contest) IsFrozenAt(t time.Duration) bool {
	return c.FreezeTime > 0 && t >= c.FreezeTime
}

// Team 参赛队伍
// ID 由上游队伍标识稳定哈希得到, 断线重连后保持一致
type Team struct {
	ID         int      `json:"id"`
	ExternalID string   `json:"external_id"`
	Name       string   `json:"name"`
	ShortName  string   `json:"short_name"`
	Groups     []string `json:"groups,omitempty"`
	HashTag    string   `json:"hashtag,omitempty"`
	Photo      string   `json:"photo,omitempty"`
	Video      string   `json:"video,omitempty"`
	Screens    []string `json:"screens,omitempty"`
	Cameras    []string `json:"cameras,omitempty"`
}

// Problem 题目
// Index 是内部 0 基序号, 与上游 ordinal 显式映射, 不直接复用
type Problem struct {
	Index      int    `json:"index"`
	ExternalID string `json:"external_id"`
	Letter     string `json:"letter"`
	Name       string `json:"name"`
	Color      string `json:"color,omitempty"`
	TestCount  int    `json:"test_count,omitempty"`
}

// JudgementType 评测结果类型, 每场比赛的集合是封闭的
type JudgementType struct {
	Code    string `json:"code"`
	Solved  bool   `json:"solved"`
	Penalty bool   `json:"penalty"`
}

// ContestSnapshot 完整的比赛配置快照
// 配置流整体替换而非增量更新, 每次发布都完整描述当前状态
type ContestSnapshot struct {
	Contest  Contest   `json:"contest"`
	Teams    []Team    `json:"teams"`
	Problems []Problem `json:"problems"`
}
