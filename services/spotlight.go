package services

import (
	"sort"
	"sync"
	"time"

	"contest-live-service/logger"
	"contest-live-service/models"
)

// 聚焦打分默认权重, 外部请求必须盖过自然活动
const (
	spotlightAcceptedScore = 10.0
	spotlightRankScore     = 5.0
	spotlightRequestScore  = 100.0
	spotlightDecayFactor   = 0.5
	spotlightMinScore      = 1.0
	spotlightCooldown      = 2 // 被选中后冷却的轮数
)

// SpotlightSelection 当前应聚焦的队伍
type SpotlightSelection struct {
	TeamID  int      `json:"team_id"`
	Score   float64  `json:"score"`
	Reasons []string `json:"reasons"`
}

// InterestRequest 外部 (导播) 请求聚焦某支队伍
type InterestRequest struct {
	TeamID int     `json:"team_id"`
	Score  float64 `json:"score,omitempty"`
}

type spotlightCandidate struct {
	score   float64
	reasons map[string]bool
}

// SpotlightSelector 结合记分板变化和外部请求选择聚焦队伍
// 刚 AC 的队伍至少保持一轮候选资格; 外部请求在一个轮换周期内兑现
// (比赛已结束则忽略); 冷却机制避免单支队伍霸屏
type SpotlightSelector struct {
	interval time.Duration
	events   <-chan Event
	boards   <-chan models.Scoreboard
	requests chan InterestRequest

	candidates   map[int]*spotlightCandidate
	cooldown     map[int]int
	prevRank     map[int]int
	acceptedSeen map[int]bool
	contestOver  bool

	mu   sync.Mutex
	subs []chan SpotlightSelection
	done chan struct{}
}

// NewSpotlightSelector 创建选择器
// events 提供提交流, boards 提供 NORMAL 记分板流
func NewSpotlightSelector(interval time.Duration, events <-chan Event, boards <-chan models.Scoreboard) *SpotlightSelector {
	return &SpotlightSelector{
		interval:     interval,
		events:       events,
		boards:       boards,
		requests:     make(chan InterestRequest, 16),
		candidates:   make(map[int]*spotlightCandidate),
		cooldown:     make(map[int]int),
		prevRank:     make(map[int]int),
		acceptedSeen: make(map[int]bool),
		done:         make(chan struct{}),
	}
}

// Subscribe 订阅聚焦选择流
func (s *SpotlightSelector) Subscribe(buffer int) <-chan SpotlightSelection {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan SpotlightSelection, buffer)
	s.subs = append(s.subs, ch)
	return ch
}

// Request 外部请求聚焦, 非阻塞
func (s *SpotlightSelector) Request(req InterestRequest) {
	select {
	case s.requests <- req:
	default:
		logger.Errorln("[Spotlight] Request queue full, interest request dropped")
	}
}

// Stop 停止选择器
func (s *SpotlightSelector) Stop() {
	close(s.done)
}

// Run 主循环: 事件累积候选分数, 定时轮换选出当前聚焦队伍
func (s *SpotlightSelector) Run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-s.events:
			if !ok {
				s.closeSubs()
				return
			}
			s.observeEvent(ev)

		case board, ok := <-s.boards:
			if !ok {
				s.closeSubs()
				return
			}
			s.observeScoreboard(board)

		case req := <-s.requests:
			if s.contestOver {
				logger.Printf("[Spotlight] Contest over, ignoring interest request for team %d", req.TeamID)
				continue
			}
			score := req.Score
			if score <= 0 {
				score = spotlightRequestScore
			}
			s.addScore(req.TeamID, score, "external_request")

		case <-ticker.C:
			s.rotate()

		case <-s.done:
			s.closeSubs()
			return
		}
	}
}

func (s *SpotlightSelector) observeEvent(ev Event) {
	switch ev.Kind {
	case EventSnapshot:
		s.contestOver = ev.Snapshot.Contest.Status == models.StatusOver
	case EventRun:
		run := ev.Run
		if run.Accepted && !s.acceptedSeen[run.ID] {
			s.acceptedSeen[run.ID] = true
			s.addScore(run.TeamID, spotlightAcceptedScore, "accepted_run")
		}
	}
}

func (s *SpotlightSelector) observeScoreboard(board models.Scoreboard) {
	for _, row := range board.Rows {
		prev, seen := s.prevRank[row.TeamID]
		if seen && row.Rank < prev {
			s.addScore(row.TeamID, spotlightRankScore*float64(prev-row.Rank), "rank_change")
		}
		s.prevRank[row.TeamID] = row.Rank
	}
}

func (s *SpotlightSelector) addScore(teamID int, score float64, reason string) {
	c, ok := s.candidates[teamID]
	if !ok {
		c = &spotlightCandidate{reasons: make(map[string]bool)}
		s.candidates[teamID] = c
	}
	c.score += score
	c.reasons[reason] = true
}

// rotate 选出当前最高分且不在冷却中的候选, 其余候选分数衰减
func (s *SpotlightSelector) rotate() {
	for teamID, left := range s.cooldown {
		if left <= 1 {
			delete(s.cooldown, teamID)
		} else {
			s.cooldown[teamID] = left - 1
		}
	}

	bestTeam := -1
	var best *spotlightCandidate
	for teamID, c := range s.candidates {
		if _, cooling := s.cooldown[teamID]; cooling {
			continue
		}
		if best == nil || c.score > best.score {
			bestTeam = teamID
			best = c
		}
	}
	if best == nil {
		return
	}

	reasons := make([]string, 0, len(best.reasons))
	for reason := range best.reasons {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)

	selection := SpotlightSelection{TeamID: bestTeam, Score: best.score, Reasons: reasons}
	delete(s.candidates, bestTeam)
	s.cooldown[bestTeam] = spotlightCooldown

	// 未选中的候选衰减, 太旧的活动不再参与竞争
	for teamID, c := range s.candidates {
		c.score *= spotlightDecayFactor
		if c.score < spotlightMinScore {
			delete(s.candidates, teamID)
		}
	}

	s.publish(selection)
}

func (s *SpotlightSelector) publish(selection SpotlightSelection) {
	s.mu.Lock()
	subs := s.subs
	s.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub <- selection:
		case <-s.done:
			return
		}
	}
}

func (s *SpotlightSelector) closeSubs() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		close(sub)
	}
	s.subs = nil
}
