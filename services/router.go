package services

import (
	"sync"

	"contest-live-service/logger"
	"contest-live-service/models"
)

// EventKind 合并流中的事件类别
type EventKind int

const (
	EventSnapshot EventKind = iota
	EventRun
	EventAnalytics
)

// Event 路由器向所有派生服务投递的统一事件
type Event struct {
	Kind      EventKind
	Snapshot  models.ContestSnapshot
	Run       models.Run
	Analytics models.AnalyticsMessage
}

// EventRouter 将适配器的配置流/提交流/解说流合并为单一有序投递
// 所有订阅者看到相同的相对顺序; 单条流内保持发射顺序, 跨流不做全局重排
//
// 路由器在投递前强制封榜不变量: 提交时间进入封榜区间的 Run
// 在比赛结束前只保留存在性和时间信息
//
// 订阅通道有界, 溢出策略是挂起生产者 (背压) 而不是丢弃
type EventRouter struct {
	adapter SourceAdapter

	mu           sync.Mutex
	subs         []chan Event
	lastSnapshot *models.ContestSnapshot
	pending      []models.Run // 首个配置快照到达前收到的提交

	done chan struct{}
}

// NewEventRouter 创建路由器
func NewEventRouter(adapter SourceAdapter) *EventRouter {
	return &EventRouter{
		adapter: adapter,
		done:    make(chan struct{}),
	}
}

// Subscribe 注册一个派生服务
// 晚订阅者先收到最近一次配置快照, 避免没有基础状态就接收后续事件
func (r *EventRouter) Subscribe(buffer int) <-chan Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := make(chan Event, buffer)
	if r.lastSnapshot != nil {
		ch <- Event{Kind: EventSnapshot, Snapshot: *r.lastSnapshot}
	}
	r.subs = append(r.subs, ch)
	return ch
}

// Run 主循环, 由独立 goroutine 运行
// 适配器的全部输出通道关闭后结束并关闭所有订阅通道
func (r *EventRouter) Run() {
	snapshots := r.adapter.Snapshots()
	runs := r.adapter.Runs()
	analytics := r.adapter.Analytics()

	for snapshots != nil || runs != nil || analytics != nil {
		select {
		case snap, ok := <-snapshots:
			if !ok {
				snapshots = nil
				continue
			}
			r.publishSnapshot(snap)

		case run, ok := <-runs:
			if !ok {
				runs = nil
				continue
			}
			r.publishRun(run)

		case msg, ok := <-analytics:
			if !ok {
				analytics = nil
				continue
			}
			r.deliver(Event{Kind: EventAnalytics, Analytics: msg})

		case <-r.done:
			r.closeSubs()
			return
		}
	}

	logger.Println("[EventRouter] Source streams closed, shutting down")
	r.closeSubs()
}

// Stop 停止路由器
func (r *EventRouter) Stop() {
	close(r.done)
}

func (r *EventRouter) publishSnapshot(snap models.ContestSnapshot) {
	r.mu.Lock()
	r.lastSnapshot = &snap
	flushed := r.pending
	r.pending = nil
	r.mu.Unlock()

	r.deliver(Event{Kind: EventSnapshot, Snapshot: snap})
	for _, run := range flushed {
		r.deliver(Event{Kind: EventRun, Run: r.maskFrozen(run)})
	}
}

// publishRun 配置未知前不能判断封榜区间, 先扣住, 首个快照到达后再投递
func (r *EventRouter) publishRun(run models.Run) {
	r.mu.Lock()
	if r.lastSnapshot == nil {
		r.pending = append(r.pending, run)
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()
	r.deliver(Event{Kind: EventRun, Run: r.maskFrozen(run)})
}

// maskFrozen 封榜强制执行: 公开管道中封榜提交不携带评测细节
func (r *EventRouter) maskFrozen(run models.Run) models.Run {
	r.mu.Lock()
	snap := r.lastSnapshot
	r.mu.Unlock()

	if snap == nil {
		return run.Masked()
	}
	contest := snap.Contest
	if contest.Status != models.StatusOver && contest.IsFrozenAt(run.Time) {
		return run.Masked()
	}
	return run
}

func (r *EventRouter) deliver(ev Event) {
	r.mu.Lock()
	subs := r.subs
	r.mu.Unlock()

	// 阻塞发送: 慢消费者让生产者挂起而不是悄悄丢事件
	for _, sub := range subs {
		select {
		case sub <- ev:
		case <-r.done:
			return
		}
	}
}

func (r *EventRouter) closeSubs() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sub := range r.subs {
		close(sub)
	}
	r.subs = nil
}
