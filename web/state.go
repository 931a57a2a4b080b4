package web

import (
	"sync"

	"contest-live-service/models"
	"contest-live-service/services"
)

const analyticsHistory = 100

// StateCache 保存每条派生流最近一次成功发布的快照
// 消费者永远只看到完整一致的快照, 不会看到半成品
type StateCache struct {
	mu          sync.RWMutex
	contest     *models.ContestSnapshot
	scoreboards map[models.OptimismLevel]models.Scoreboard
	queue       *services.QueueSnapshot
	spotlight   *services.SpotlightSelection
	analytics   []models.AnalyticsMessage
}

// NewStateCache 创建缓存
func NewStateCache() *StateCache {
	return &StateCache{
		scoreboards: make(map[models.OptimismLevel]models.Scoreboard),
	}
}

// SetContest 更新比赛快照
func (c *StateCache) SetContest(snap models.ContestSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.contest = &snap
}

// Contest 最近的比赛快照
func (c *StateCache) Contest() (models.ContestSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.contest == nil {
		return models.ContestSnapshot{}, false
	}
	return *c.contest, true
}

// SetScoreboard 更新某个变体的记分板
func (c *StateCache) SetScoreboard(board models.Scoreboard) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scoreboards[board.Level] = board
}

// Scoreboard 某个变体最近的记分板
func (c *StateCache) Scoreboard(level models.OptimismLevel) (models.Scoreboard, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	board, ok := c.scoreboards[level]
	return board, ok
}

// SetQueue 更新提交队列快照
func (c *StateCache) SetQueue(snapshot services.QueueSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = &snapshot
}

// Queue 最近的提交队列快照
func (c *StateCache) Queue() (services.QueueSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.queue == nil {
		return services.QueueSnapshot{}, false
	}
	return *c.queue, true
}

// SetSpotlight 更新聚焦选择
func (c *StateCache) SetSpotlight(selection services.SpotlightSelection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.spotlight = &selection
}

// Spotlight 最近的聚焦选择
func (c *StateCache) Spotlight() (services.SpotlightSelection, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.spotlight == nil {
		return services.SpotlightSelection{}, false
	}
	return *c.spotlight, true
}

// AddAnalytics 追加解说消息, 只保留最近若干条
func (c *StateCache) AddAnalytics(msg models.AnalyticsMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.analytics = append(c.analytics, msg)
	if len(c.analytics) > analyticsHistory {
		c.analytics = c.analytics[len(c.analytics)-analyticsHistory:]
	}
}

// Analytics 最近的解说消息
func (c *StateCache) Analytics() []models.AnalyticsMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.AnalyticsMessage, len(c.analytics))
	copy(out, c.analytics)
	return out
}
