package services

import (
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"contest-live-service/logger"
	"contest-live-service/models"
)

// ErrContestNotOver 回放要求完整封闭的数据集
var ErrContestNotOver = errors.New("emulation requires a contest that is already over")

// EmulationDriver 按原始相对时序回放一段完整的提交历史
// 实现 SourceAdapter, 下游服务与真实直播完全无法区分
//
// 每条提交先在其提交时刻以未评测状态出现, 再在其评测时刻更新;
// 封榜提交的评测结果推迟到比赛结束快照之后放出
type EmulationDriver struct {
	snapshot  models.ContestSnapshot
	history   []models.Run
	speed     float64
	startTime time.Time

	snapshots chan models.ContestSnapshot
	runs      chan models.Run
	analytics chan models.AnalyticsMessage

	done     chan struct{}
	stopOnce sync.Once
}

// NewEmulationDriver 创建回放驱动
// 传入的比赛必须已经结束 (OVER), 否则这是配置错误, 调用方应当在启动时终止
func NewEmulationDriver(snapshot models.ContestSnapshot, history []models.Run, speed float64, startTime time.Time) (*EmulationDriver, error) {
	if snapshot.Contest.Status != models.StatusOver {
		return nil, errors.Wrapf(ErrContestNotOver, "status=%s", snapshot.Contest.Status)
	}
	if speed <= 0 {
		return nil, errors.Newf("invalid emulation speed %f", speed)
	}
	if startTime.IsZero() {
		startTime = time.Now()
	}

	return &EmulationDriver{
		snapshot:  snapshot,
		history:   history,
		speed:     speed,
		startTime: startTime,
		snapshots: make(chan models.ContestSnapshot, 16),
		runs:      make(chan models.Run, 1024),
		analytics: make(chan models.AnalyticsMessage),
		done:      make(chan struct{}),
	}, nil
}

func (d *EmulationDriver) Snapshots() <-chan models.ContestSnapshot { return d.snapshots }
func (d *EmulationDriver) Runs() <-chan models.Run                  { return d.runs }
func (d *EmulationDriver) Analytics() <-chan models.AnalyticsMessage {
	return d.analytics
}

// Start 开始回放
func (d *EmulationDriver) Start() error {
	logger.Printf("[Emulation] Replaying %d runs at speed x%.1f, simulated start %s",
		len(d.history), d.speed, d.startTime.Format(time.RFC3339))
	go d.replay()
	return nil
}

// Stop 停止回放
// 输出通道由回放任务自己在退出时关闭, 避免停止时与发射竞争
func (d *EmulationDriver) Stop() {
	d.stopOnce.Do(func() {
		close(d.done)
	})
}

// 时间线条目: 同一时刻的条目按 seq 保持确定顺序
type emulationStep struct {
	at       time.Duration
	seq      int
	run      *models.Run
	snapshot *models.ContestSnapshot
}

func (d *EmulationDriver) replay() {
	defer func() {
		close(d.snapshots)
		close(d.runs)
		close(d.analytics)
	}()

	contest := d.snapshot.Contest

	// 起始快照: 比赛以模拟开始时间重新进入 RUNNING 状态
	running := d.snapshot
	running.Contest.StartTime = d.startTime
	running.Contest.Status = models.StatusRunning
	if !d.emitSnapshot(running) {
		return
	}

	steps := d.buildTimeline(contest)
	for _, step := range steps {
		target := d.startTime.Add(time.Duration(float64(step.at) / d.speed))
		if wait := time.Until(target); wait > 0 {
			select {
			case <-time.After(wait):
			case <-d.done:
				return
			}
		}
		if step.snapshot != nil {
			if !d.emitSnapshot(*step.snapshot) {
				return
			}
			continue
		}
		if !d.emitRun(*step.run) {
			return
		}
	}

	logger.Println("[Emulation] Replay finished")
}

// buildTimeline 展开回放时间线
// 封榜提交的评测结果排在结束快照之后, 重现真实封榜解除的顺序
func (d *EmulationDriver) buildTimeline(contest models.Contest) []emulationStep {
	const frozenSeqBase = 1 << 20

	var steps []emulationStep
	seq := 0
	frozenSeq := frozenSeqBase

	for i := range d.history {
		run := d.history[i]

		pending := run.Masked()
		pending.LastUpdate = pending.Time
		steps = append(steps, emulationStep{at: run.Time, seq: seq, run: &pending})
		seq++

		if !run.Judged {
			continue
		}
		judged := run
		at := judged.LastUpdate
		if at < judged.Time {
			at = judged.Time
		}
		if contest.IsFrozenAt(run.Time) {
			steps = append(steps, emulationStep{at: contest.Duration, seq: frozenSeq, run: &judged})
			frozenSeq++
		} else {
			steps = append(steps, emulationStep{at: at, seq: seq, run: &judged})
			seq++
		}
	}

	// 结束快照在封榜放出之前
	over := d.snapshot
	over.Contest.StartTime = d.startTime
	over.Contest.Status = models.StatusOver
	steps = append(steps, emulationStep{at: contest.Duration, seq: frozenSeqBase - 1, snapshot: &over})

	sort.SliceStable(steps, func(i, j int) bool {
		if steps[i].at != steps[j].at {
			return steps[i].at < steps[j].at
		}
		return steps[i].seq < steps[j].seq
	})
	return steps
}

func (d *EmulationDriver) emitSnapshot(snap models.ContestSnapshot) bool {
	select {
	case d.snapshots <- snap:
		return true
	case <-d.done:
		return false
	}
}

func (d *EmulationDriver) emitRun(run models.Run) bool {
	select {
	case d.runs <- run:
		return true
	case <-d.done:
		return false
	}
}
