package services

import (
	"sync"

	"contest-live-service/models"
)

// QueueSnapshot 最近提交队列的一次完整快照, 最新的在最前
type QueueSnapshot struct {
	Runs []models.Run `json:"runs"`
}

// QueueService 维护最近 N 条提交的滑动窗口, 供直播提交队列组件消费
// 一次 Run 更新要么新插入, 要么按 ID 原地替换, 要么按 ID 移除
type QueueService struct {
	size   int
	events <-chan Event

	runs []models.Run // 最新在前

	mu   sync.Mutex
	subs []chan QueueSnapshot
	done chan struct{}
}

// NewQueueService 创建队列服务, size 是窗口大小
func NewQueueService(size int, events <-chan Event) *QueueService {
	return &QueueService{
		size:   size,
		events: events,
		done:   make(chan struct{}),
	}
}

// Subscribe 订阅队列快照流
func (q *QueueService) Subscribe(buffer int) <-chan QueueSnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	ch := make(chan QueueSnapshot, buffer)
	q.subs = append(q.subs, ch)
	return ch
}

// Stop 停止服务
func (q *QueueService) Stop() {
	close(q.done)
}

// Run 主循环
func (q *QueueService) Run() {
	for {
		select {
		case ev, ok := <-q.events:
			if !ok {
				q.closeSubs()
				return
			}
			if ev.Kind != EventRun {
				continue
			}
			q.apply(ev.Run)
			q.publish()

		case <-q.done:
			q.closeSubs()
			return
		}
	}
}

// apply 插入或原地替换, 超出窗口时移除最旧的
func (q *QueueService) apply(run models.Run) {
	for i := range q.runs {
		if q.runs[i].ID == run.ID {
			q.runs[i] = run
			return
		}
	}
	q.runs = append([]models.Run{run}, q.runs...)
	if len(q.runs) > q.size {
		q.remove(q.runs[len(q.runs)-1].ID)
	}
}

// remove 按 ID 移除
func (q *QueueService) remove(id int) {
	filtered := q.runs[:0]
	for _, run := range q.runs {
		if run.ID != id {
			filtered = append(filtered, run)
		}
	}
	q.runs = filtered
}

// SetFromSnapshot 整体替换队列内容
// 输入按最旧在前给出, 展示约定是最新在前, 所以反转
func (q *QueueService) SetFromSnapshot(runs []models.Run) {
	reversed := make([]models.Run, len(runs))
	for i, run := range runs {
		reversed[len(runs)-1-i] = run
	}
	q.runs = reversed
	q.publish()
}

// Current 当前队列内容的副本
func (q *QueueService) Current() []models.Run {
	out := make([]models.Run, len(q.runs))
	copy(out, q.runs)
	return out
}

func (q *QueueService) publish() {
	snapshot := QueueSnapshot{Runs: q.Current()}

	q.mu.Lock()
	subs := q.subs
	q.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub <- snapshot:
		case <-q.done:
			return
		}
	}
}

func (q *QueueService) closeSubs() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, sub := range q.subs {
		close(sub)
	}
	q.subs = nil
}
