package services

import (
	"sort"
	"time"

	"github.com/cockroachdb/errors"

	"contest-live-service/logger"
	"contest-live-service/models"
)

// ContestState 单场比赛的规范模型构建器
// 由适配器任务串行驱动, 除 runIDAllocator 外不含跨任务共享状态
//
// 封榜规则: 以提交自身的比赛时间为准 (而不是评测事件到达时间),
// 提交时间 >= FreezeTime 的评测结果被扣留, 比赛结束 (OVER) 时统一放出
type ContestState struct {
	contest models.Contest

	problems     map[string]models.Problem // 上游题目 ID -> 题目
	problemOrder []string
	teams        map[string]models.Team // 上游队伍 ID -> 队伍
	types        map[string]models.JudgementType

	runIDs         *runIDAllocator
	runs           map[int]*models.Run // 内部 ID -> Run arena
	judgementToSub map[string]string   // 评测 ID -> 上游提交 ID
	withheld       map[int]withheldJudgement

	// 每题最早 AC, 用于维护 first-to-solve 标记
	firstSolvedRun  map[int]int
	firstSolvedTime map[int]time.Duration
}

type withheldJudgement struct {
	judgementType models.JudgementType
	result        string
	endTime       time.Duration
}

// NewContestState 创建空的比赛状态
func NewContestState() *ContestState {
	return &ContestState{
		contest: models.Contest{
			Status:     models.StatusUnknown,
			ResultType: models.ResultICPC,
		},
		problems:        make(map[string]models.Problem),
		teams:           make(map[string]models.Team),
		types:           make(map[string]models.JudgementType),
		runIDs:          newRunIDAllocator(),
		runs:            make(map[int]*models.Run),
		judgementToSub:  make(map[string]string),
		withheld:        make(map[int]withheldJudgement),
		firstSolvedRun:  make(map[int]int),
		firstSolvedTime: make(map[int]time.Duration),
	}
}

// Contest 当前比赛信息
func (s *ContestState) Contest() models.Contest {
	return s.contest
}

// ProcessContest 更新比赛基本信息
// freezeBeforeEnd 是距结束的封榜时长, 内部换算为相对开始的封榜时刻
func (s *ContestState) ProcessContest(start time.Time, duration, freezeBeforeEnd time.Duration, resultType models.ResultType) {
	s.contest.StartTime = start
	s.contest.Duration = duration
	if freezeBeforeEnd > 0 && freezeBeforeEnd <= duration {
		s.contest.FreezeTime = duration - freezeBeforeEnd
	}
	if resultType != "" {
		s.contest.ResultType = resultType
	}
}

// ProcessStatus 更新比赛状态, 只允许前进不允许回退
// 状态变为 OVER 时放出封榜期间扣留的评测结果, 返回需要重新发布的 Run
func (s *ContestState) ProcessStatus(status models.ContestStatus) []models.Run {
	if !s.contest.Status.CanAdvanceTo(status) {
		logger.Errorf("[ContestState] Ignoring status regression %s -> %s", s.contest.Status, status)
		return nil
	}
	if status == s.contest.Status {
		return nil
	}
	s.contest.Status = status
	if status != models.StatusOver {
		return nil
	}
	return s.releaseWithheld()
}

func (s *ContestState) releaseWithheld() []models.Run {
	if len(s.withheld) == 0 {
		return nil
	}
	ids := make([]int, 0, len(s.withheld))
	for id := range s.withheld {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var updated []models.Run
	for _, id := range ids {
		w := s.withheld[id]
		run := s.runs[id]
		if run == nil {
			continue
		}
		s.applyJudgement(run, w.judgementType, w.result, w.endTime)
		updated = append(updated, s.markFirstSolved(run)...)
	}
	s.withheld = make(map[int]withheldJudgement)
	logger.Printf("[ContestState] Released %d withheld judgements after contest end", len(ids))
	return updated
}

// ProcessProblem 注册题目, 内部序号按首次出现顺序显式分配, 不复用上游序号
func (s *ContestState) ProcessProblem(externalID, letter, name, color string, testCount int) {
	if existing, ok := s.problems[externalID]; ok {
		// 题目创建后不可变, 只允许刷新展示信息
		existing.Letter = letter
		existing.Name = name
		existing.Color = color
		existing.TestCount = testCount
		s.problems[externalID] = existing
		return
	}
	s.problems[externalID] = models.Problem{
		Index:      len(s.problemOrder),
		ExternalID: externalID,
		Letter:     letter,
		Name:       name,
		Color:      color,
		TestCount:  testCount,
	}
	s.problemOrder = append(s.problemOrder, externalID)
}

// ProcessTeam 注册或刷新队伍, 内部 ID 由上游 ID 稳定哈希得到
func (s *ContestState) ProcessTeam(team models.Team) {
	team.ID = TeamIDFor(team.ExternalID)
	s.teams[team.ExternalID] = team
}

// ProcessJudgementType 注册评测结果类型
func (s *ContestState) ProcessJudgementType(code string, solved, penalty bool) {
	s.types[code] = models.JudgementType{Code: code, Solved: solved, Penalty: penalty}
}

// ProcessSubmission 处理新提交事件, 返回该提交的当前投影
// 重复投递同一外部 ID 不会分配新的内部 ID
func (s *ContestState) ProcessSubmission(externalID, problemID, teamID string, contestTime time.Duration) (models.Run, error) {
	problem, ok := s.problems[problemID]
	if !ok {
		return models.Run{}, errors.Wrapf(ErrUnknownProblem, "problem_id=%s", problemID)
	}
	team, ok := s.teams[teamID]
	if !ok {
		return models.Run{}, errors.Wrapf(ErrUnknownTeam, "team_id=%s", teamID)
	}

	id := s.runIDs.Get(externalID)
	if run, ok := s.runs[id]; ok {
		return *run, nil
	}
	run := &models.Run{
		ID:           id,
		TeamID:       team.ID,
		ProblemIndex: problem.Index,
		Time:         contestTime,
		LastUpdate:   contestTime,
	}
	s.runs[id] = run
	return *run, nil
}

// ProcessJudgement 处理评测事件, 返回需要发布的 Run 投影
// 封榜提交的结果被扣留, 只更新存在性信息
func (s *ContestState) ProcessJudgement(judgementID, submissionID, typeCode string, endTime time.Duration) ([]models.Run, error) {
	internalID, ok := s.runIDs.Lookup(submissionID)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownSubmission, "submission_id=%s", submissionID)
	}
	run := s.runs[internalID]
	s.judgementToSub[judgementID] = submissionID

	if typeCode == "" {
		// 评测尚未出结果, 仅推进更新时间
		if endTime > run.LastUpdate {
			run.LastUpdate = endTime
		}
		return []models.Run{*run}, nil
	}

	jt, ok := s.types[typeCode]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownJudgementType, "judgement_type_id=%s", typeCode)
	}

	if s.frozen(run.Time) {
		s.withheld[run.ID] = withheldJudgement{judgementType: jt, result: typeCode, endTime: endTime}
		return []models.Run{*run}, nil
	}

	s.applyJudgement(run, jt, typeCode, endTime)
	return s.markFirstSolved(run), nil
}

// ProcessTestCase 处理单个测试点事件
// 封榜提交的测试点结果同样不公开
func (s *ContestState) ProcessTestCase(judgementID string, ordinal int, passed bool, contestTime time.Duration) (models.Run, error) {
	submissionID, ok := s.judgementToSub[judgementID]
	if !ok {
		return models.Run{}, errors.Wrapf(ErrUnknownJudgement, "judgement_id=%s", judgementID)
	}
	internalID, _ := s.runIDs.Lookup(submissionID)
	run := s.runs[internalID]

	if s.frozen(run.Time) {
		return *run, nil
	}
	if contestTime > run.LastUpdate {
		run.LastUpdate = contestTime
	}
	if passed {
		run.PassedCases = append(run.PassedCases, ordinal)
	}
	return *run, nil
}

func (s *ContestState) frozen(t time.Duration) bool {
	return s.contest.Status != models.StatusOver && s.contest.IsFrozenAt(t)
}

func (s *ContestState) applyJudgement(run *models.Run, jt models.JudgementType, result string, endTime time.Duration) {
	run.Judged = true
	run.Accepted = jt.Solved
	run.AddsPenalty = jt.Penalty
	run.Result = result
	if endTime > run.LastUpdate {
		run.LastUpdate = endTime
	}
}

// markFirstSolved 维护每题最早 AC 标记
// 若出现更早的 AC, 原持有者被降级并一并返回以重新发布
func (s *ContestState) markFirstSolved(run *models.Run) []models.Run {
	if !run.Accepted {
		return []models.Run{*run}
	}
	current, has := s.firstSolvedRun[run.ProblemIndex]
	if has && s.firstSolvedTime[run.ProblemIndex] <= run.Time && current != run.ID {
		return []models.Run{*run}
	}

	updated := []models.Run{}
	if has && current != run.ID {
		prev := s.runs[current]
		prev.FirstSolved = false
		updated = append(updated, *prev)
	}
	run.FirstSolved = true
	s.firstSolvedRun[run.ProblemIndex] = run.ID
	s.firstSolvedTime[run.ProblemIndex] = run.Time
	return append(updated, *run)
}

// Snapshot 当前完整比赛配置快照
func (s *ContestState) Snapshot() models.ContestSnapshot {
	problems := make([]models.Problem, 0, len(s.problems))
	for _, extID := range s.problemOrder {
		problems = append(problems, s.problems[extID])
	}

	teams := make([]models.Team, 0, len(s.teams))
	for _, team := range s.teams {
		teams = append(teams, team)
	}
	sort.Slice(teams, func(i, j int) bool { return teams[i].Name < teams[j].Name })

	return models.ContestSnapshot{
		Contest:  s.contest,
		Teams:    teams,
		Problems: problems,
	}
}

// Runs 全部提交的当前投影, 按内部 ID 升序, 供回放驱动收集历史
func (s *ContestState) Runs() []models.Run {
	runs := make([]models.Run, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, *run)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].ID < runs[j].ID })
	return runs
}
