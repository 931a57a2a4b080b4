package services

import (
	"sort"
	"sync"

	"contest-live-service/logger"
	"contest-live-service/models"
)

// scoreboardPredicates 三个变体共享同一算法, 差别只在对未评测提交的假设
// isLast 表示该提交是否是同队同题按时间排序的最后一次尝试
type scoreboardPredicates struct {
	accepted    func(run models.Run, isLast bool) bool
	pending     func(run models.Run, isLast bool) bool
	addsPenalty func(run models.Run, isLast bool) bool
}

func predicatesFor(level models.OptimismLevel) scoreboardPredicates {
	switch level {
	case models.OptimismOptimistic:
		// 乐观: 最后一次未评测尝试按 AC 处理, 更早的未评测尝试按罚时处理
		return scoreboardPredicates{
			accepted: func(run models.Run, isLast bool) bool {
				return run.Accepted || (!run.Judged && isLast)
			},
			pending: func(run models.Run, isLast bool) bool { return false },
			addsPenalty: func(run models.Run, isLast bool) bool {
				return run.AddsPenalty || (!run.Judged && !isLast)
			},
		}
	case models.OptimismPessimistic:
		// 悲观: 未评测尝试一律按罚时处理
		return scoreboardPredicates{
			accepted: func(run models.Run, isLast bool) bool { return run.Accepted },
			pending:  func(run models.Run, isLast bool) bool { return false },
			addsPenalty: func(run models.Run, isLast bool) bool {
				return !run.Judged || run.AddsPenalty
			},
		}
	default:
		return scoreboardPredicates{
			accepted: func(run models.Run, isLast bool) bool { return run.Accepted },
			pending:  func(run models.Run, isLast bool) bool { return !run.Judged },
			addsPenalty: func(run models.Run, isLast bool) bool {
				return run.Judged && run.AddsPenalty
			},
		}
	}
}

// ScoreboardEngine 一个乐观级别一个实例, 各自消费合并事件流
// 每次触发都从 Run 全集整体重算并原子发布新快照, 不做增量修补
type ScoreboardEngine struct {
	level  models.OptimismLevel
	preds  scoreboardPredicates
	events <-chan Event

	runs     map[int]models.Run
	snapshot *models.ContestSnapshot
	medals   models.MedalSettings

	medalMu      sync.Mutex
	medalPending *models.MedalSettings
	medalCh      chan struct{}

	mu   sync.Mutex
	subs []chan models.Scoreboard
	done chan struct{}
}

// NewScoreboardEngine 创建引擎, events 通常来自 EventRouter.Subscribe
func NewScoreboardEngine(level models.OptimismLevel, events <-chan Event) *ScoreboardEngine {
	return &ScoreboardEngine{
		level:   level,
		preds:   predicatesFor(level),
		events:  events,
		runs:    make(map[int]models.Run),
		medalCh: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Subscribe 订阅记分板快照流
func (e *ScoreboardEngine) Subscribe(buffer int) <-chan models.Scoreboard {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch := make(chan models.Scoreboard, buffer)
	e.subs = append(e.subs, ch)
	return ch
}

// SetMedals 在线更新奖牌配置, 无需重启
// 可被多个请求并发调用, 永不阻塞, 只保留最新一份待应用配置
func (e *ScoreboardEngine) SetMedals(settings models.MedalSettings) {
	e.medalMu.Lock()
	e.medalPending = &settings
	e.medalMu.Unlock()

	select {
	case e.medalCh <- struct{}{}:
	default:
	}
}

// takeMedals 取走待应用配置
func (e *ScoreboardEngine) takeMedals() (models.MedalSettings, bool) {
	e.medalMu.Lock()
	defer e.medalMu.Unlock()
	if e.medalPending == nil {
		return models.MedalSettings{}, false
	}
	settings := *e.medalPending
	e.medalPending = nil
	return settings, true
}

// Stop 停止引擎
func (e *ScoreboardEngine) Stop() {
	close(e.done)
}

// Run 主循环: 收到新 Run / 新配置快照 / 新奖牌配置时重算并发布
// 已知未评测的 Run 再次以未评测状态出现时不触发重算
// 配置未知前到达的 Run 先缓冲, 不发布
func (e *ScoreboardEngine) Run() {
	for {
		select {
		case ev, ok := <-e.events:
			if !ok {
				e.closeSubs()
				return
			}
			switch ev.Kind {
			case EventSnapshot:
				snap := ev.Snapshot
				e.snapshot = &snap
			case EventRun:
				old, seen := e.runs[ev.Run.ID]
				e.runs[ev.Run.ID] = ev.Run
				if seen && !old.Judged && !ev.Run.Judged {
					continue
				}
			case EventAnalytics:
				continue
			}

		case <-e.medalCh:
			settings, ok := e.takeMedals()
			if !ok {
				continue
			}
			e.medals = settings

		case <-e.done:
			e.closeSubs()
			return
		}

		if e.snapshot == nil {
			continue
		}
		e.publish(e.compute())
	}
}

// compute 从 Run 全集重算完整记分板
func (e *ScoreboardEngine) compute() models.Scoreboard {
	snap := *e.snapshot

	// 同队同题的尝试按 (提交时间, 内部 ID) 升序参与扫描
	allRuns := make([]models.Run, 0, len(e.runs))
	for _, run := range e.runs {
		allRuns = append(allRuns, run)
	}
	sort.Slice(allRuns, func(i, j int) bool {
		if allRuns[i].Time != allRuns[j].Time {
			return allRuns[i].Time < allRuns[j].Time
		}
		return allRuns[i].ID < allRuns[j].ID
	})

	byTeam := make(map[int][]models.Run)
	for _, run := range allRuns {
		byTeam[run.TeamID] = append(byTeam[run.TeamID], run)
	}

	names := make(map[int]string, len(snap.Teams))
	rows := make([]models.ScoreboardRow, 0, len(snap.Teams))
	for _, team := range snap.Teams {
		names[team.ID] = team.Name
		rows = append(rows, e.computeRow(len(snap.Problems), team.ID, byTeam[team.ID]))
	}

	// 行序: 题数降序, 罚时升序, 最后 AC 时间升序, 队名只用于稳定行序
	sort.Slice(rows, func(i, j int) bool {
		if !rowsEqual(rows[i], rows[j]) {
			return rowLess(rows[i], rows[j])
		}
		return names[rows[i].TeamID] < names[rows[j].TeamID]
	})

	// 三键相同的行共享名次, 名次在组间连续递增
	rank := 1
	for i := range rows {
		if i > 0 && !rowsEqual(rows[i-1], rows[i]) {
			rank++
		}
		rows[i].Rank = rank
		if rows[i].Solved > 0 {
			rows[i].Medal = e.medals.TierByRank(rank)
		}
	}

	return models.Scoreboard{Level: e.level, Contest: snap.Contest, Rows: rows}
}

// computeRow 单个队伍的一行: 逐题扫描该题的尝试直到首个 (按变体定义的) AC
func (e *ScoreboardEngine) computeRow(problemsCount, teamID int, teamRuns []models.Run) models.ScoreboardRow {
	byProblem := make(map[int][]models.Run)
	for _, run := range teamRuns {
		byProblem[run.ProblemIndex] = append(byProblem[run.ProblemIndex], run)
	}

	row := models.ScoreboardRow{
		TeamID:   teamID,
		Problems: make([]models.ProblemResult, problemsCount),
	}

	for p := 0; p < problemsCount; p++ {
		problemRuns := byProblem[p]
		count := len(problemRuns)

		okIndex := -1
		for i, run := range problemRuns {
			if e.preds.accepted(run, i == count-1) {
				okIndex = i
				break
			}
		}

		before := problemRuns
		var okRun *models.Run
		if okIndex >= 0 {
			before = problemRuns[:okIndex]
			okRun = &problemRuns[okIndex]
		}

		result := models.ProblemResult{}
		for i, run := range before {
			if e.preds.addsPenalty(run, i == count-1) {
				result.WrongAttempts++
			}
			if e.preds.pending(run, i == count-1) {
				result.PendingAttempts++
			}
		}
		if okRun != nil {
			result.Solved = true
			result.FirstToSolve = okRun.FirstSolved
			result.LastSubmitTime = okRun.Time
		} else if len(before) > 0 {
			result.LastSubmitTime = before[len(before)-1].Time
		}
		row.Problems[p] = result

		// 未解出的题不计分也不计罚时, 但尝试计数照常展示
		if result.Solved {
			row.Solved++
			row.Penalty += int(okRun.Time.Minutes()) + 20*result.WrongAttempts
			if okRun.Time > row.LastAccepted {
				row.LastAccepted = okRun.Time
			}
		}
	}

	return row
}

// rowLess 排名三键的严格序
func rowLess(a, b models.ScoreboardRow) bool {
	if a.Solved != b.Solved {
		return a.Solved > b.Solved
	}
	if a.Penalty != b.Penalty {
		return a.Penalty < b.Penalty
	}
	return a.LastAccepted < b.LastAccepted
}

// rowsEqual 排名三键是否相同 (相同则共享名次)
func rowsEqual(a, b models.ScoreboardRow) bool {
	return a.Solved == b.Solved && a.Penalty == b.Penalty && a.LastAccepted == b.LastAccepted
}

func (e *ScoreboardEngine) publish(board models.Scoreboard) {
	e.mu.Lock()
	subs := e.subs
	e.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub <- board:
		case <-e.done:
			return
		}
	}
}

func (e *ScoreboardEngine) closeSubs() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, sub := range e.subs {
		close(sub)
	}
	e.subs = nil
	logger.Printf("[Scoreboard:%s] Engine stopped", e.level)
}
