package services

import (
	"hash/fnv"
	"sync"

	"github.com/cockroachdb/errors"

	"contest-live-service/models"
)

// 数据完整性错误: 事件引用了尚未出现的实体, 策略是记录并丢弃该事件
var (
	ErrUnknownTeam          = errors.New("run references unknown team")
	ErrUnknownProblem       = errors.New("run references unknown problem")
	ErrUnknownJudgementType = errors.New("judgement references unknown judgement type")
	ErrUnknownSubmission    = errors.New("judgement references unknown submission")
	ErrUnknownJudgement     = errors.New("test case references unknown judgement")
)

// SourceAdapter 上游比赛系统适配器
// 每个上游协议一个实现, 在启动时由配置选择
// 配置流是整体替换式快照, Run 流中每个元素是单个提交的完整投影
type SourceAdapter interface {
	// Snapshots 比赛配置快照流
	Snapshots() <-chan models.ContestSnapshot
	// Runs 提交事件流
	Runs() <-chan models.Run
	// Analytics 上游自带的解说消息流 (可选, 没有则返回空通道)
	Analytics() <-chan models.AnalyticsMessage
	// Start 启动适配器, 连接失败由适配器内部重试, 不向外传播
	Start() error
	// Stop 停止适配器并关闭所有输出通道
	Stop()
}

// TeamIDFor 由上游队伍标识稳定哈希出内部 ID, 断线重连后保持一致
func TeamIDFor(externalID string) int {
	h := fnv.New32a()
	h.Write([]byte(externalID))
	return int(h.Sum32() & 0x7fffffff)
}

// runIDAllocator 外部提交 ID 到内部顺序 ID 的映射
// 首次看到某个外部 ID 时分配, 并发首见必须互斥, 同一外部 ID 不能拿到两个内部 ID
type runIDAllocator struct {
	mu   sync.Mutex
	ids  map[string]int
	next int
}

func newRunIDAllocator() *runIDAllocator {
	return &runIDAllocator{ids: make(map[string]int), next: 1}
}

// Get 返回外部 ID 对应的内部 ID, 不存在则分配下一个
func (a *runIDAllocator) Get(externalID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if id, ok := a.ids[externalID]; ok {
		return id
	}
	id := a.next
	a.next++
	a.ids[externalID] = id
	return id
}

// Lookup 只查询不分配
func (a *runIDAllocator) Lookup(externalID string) (int, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	id, ok := a.ids[externalID]
	return id, ok
}
