package services

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/streadway/amqp"

	"contest-live-service/config"
	"contest-live-service/database"
	"contest-live-service/logger"
	"contest-live-service/models"
)

// FeedEvent 上游事件信封, NDJSON 事件流的单条记录
type FeedEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type feedContest struct {
	ID          string `json:"id"`
	StartTime   string `json:"start_time"`
	DurationSec int64  `json:"duration_seconds"`
	FreezeSec   int64  `json:"freeze_seconds"`
	ResultType  string `json:"result_type"`
}

type feedState struct {
	Status string `json:"status"`
}

type feedProblem struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Name      string `json:"name"`
	RGB       string `json:"rgb"`
	TestCount int    `json:"test_data_count"`
}

type feedTeam struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	ShortName string   `json:"short_name"`
	Groups    []string `json:"groups"`
	HashTag   string   `json:"hashtag"`
	Photo     string   `json:"photo"`
	Video     string   `json:"video"`
	Screens   []string `json:"screens"`
	Cameras   []string `json:"cameras"`
}

type feedJudgementType struct {
	ID      string `json:"id"`
	Solved  bool   `json:"solved"`
	Penalty bool   `json:"penalty"`
}

type feedSubmission struct {
	ID            string `json:"id"`
	ProblemID     string `json:"problem_id"`
	TeamID        string `json:"team_id"`
	ContestTimeMs int64  `json:"contest_time_ms"`
}

type feedJudgement struct {
	ID              string `json:"id"`
	SubmissionID    string `json:"submission_id"`
	JudgementTypeID string `json:"judgement_type_id"`
	EndTimeMs       int64  `json:"end_contest_time_ms"`
}

type feedTestCase struct {
	JudgementID   string `json:"judgement_id"`
	Ordinal       int    `json:"ordinal"`
	Passed        bool   `json:"passed"`
	ContestTimeMs int64  `json:"contest_time_ms"`
}

type feedAnalytics struct {
	Kind   string `json:"kind"`
	Text   string `json:"text"`
	TeamID string `json:"team_id"`
}

// ReconnectConfig 重连配置
type ReconnectConfig struct {
	MaxRetries    int           // 最大重试次数 (0 = 无限重试)
	InitialDelay  time.Duration // 初始延迟
	MaxDelay      time.Duration // 最大延迟
	BackoffFactor float64       // 退避因子
}

// DefaultReconnectConfig 默认重连配置
func DefaultReconnectConfig() *ReconnectConfig {
	return &ReconnectConfig{
		MaxRetries:    0,
		InitialDelay:  1 * time.Second,
		MaxDelay:      60 * time.Second,
		BackoffFactor: 2.0,
	}
}

// CCSAdapter 参考适配器: 消费 AMQP 上的 JSON 比赛事件流
// 连接失败在内部重试, 恢复后继续从上游的完整引导快照重建状态
type CCSAdapter struct {
	config   *config.Config
	state    *ContestState
	recorder *FeedRecorder // 可选, nil 则不归档

	snapshots chan models.ContestSnapshot
	runs      chan models.Run
	analytics chan models.AnalyticsMessage

	conn      *amqp.Connection
	channel   *amqp.Channel
	done      chan struct{}
	stopOnce  sync.Once
	closeOnce sync.Once
}

// NewCCSAdapter 创建适配器, recorder 可为 nil
func NewCCSAdapter(cfg *config.Config, recorder *FeedRecorder) *CCSAdapter {
	return &CCSAdapter{
		config:   cfg,
		state:    NewContestState(),
		recorder: recorder,
		// 适配器到路由器的缓冲足够大以容忍上游突发
		snapshots: make(chan models.ContestSnapshot, 64),
		runs:      make(chan models.Run, 4096),
		analytics: make(chan models.AnalyticsMessage, 256),
		done:      make(chan struct{}),
	}
}

func (a *CCSAdapter) Snapshots() <-chan models.ContestSnapshot { return a.snapshots }
func (a *CCSAdapter) Runs() <-chan models.Run                  { return a.runs }
func (a *CCSAdapter) Analytics() <-chan models.AnalyticsMessage {
	return a.analytics
}

// Start 建立连接并开始消费, 随后自动维持重连
func (a *CCSAdapter) Start() error {
	msgs, err := a.connectAndConsume()
	if err != nil {
		return fmt.Errorf("initial connection failed: %w", err)
	}

	go a.consume(msgs)
	go a.monitorConnection(DefaultReconnectConfig())

	logger.Println("[CCSAdapter] Started with auto-reconnect enabled")
	return nil
}

// Stop 停止适配器
// 输出通道由消费任务退出时关闭, 不在这里关, 避免与进行中的发射竞争
func (a *CCSAdapter) Stop() {
	a.stopOnce.Do(func() {
		close(a.done)
		if a.channel != nil {
			a.channel.Close()
		}
		if a.conn != nil {
			a.conn.Close()
		}
	})
}

// closeOutputs 只在确认不再发射后调用
func (a *CCSAdapter) closeOutputs() {
	a.closeOnce.Do(func() {
		close(a.snapshots)
		close(a.runs)
		close(a.analytics)
	})
}

func (a *CCSAdapter) connectAndConsume() (<-chan amqp.Delivery, error) {
	logger.Printf("[CCSAdapter] Connecting to %s...", a.config.FeedURL)

	conn, err := amqp.Dial(a.config.FeedURL)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}
	a.conn = conn

	channel, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}
	a.channel = channel

	if err := channel.Qos(100, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	queue, err := channel.QueueDeclare(
		"",    // name (auto-generated)
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	for _, routingKey := range a.config.RoutingKeys {
		if err := channel.QueueBind(queue.Name, routingKey, a.config.FeedQueue, false, nil); err != nil {
			return nil, fmt.Errorf("failed to bind queue: %w", err)
		}
		logger.Printf("[CCSAdapter] Bound to routing key: %s", routingKey)
	}

	msgs, err := channel.Consume(queue.Name, "", true, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to consume: %w", err)
	}

	logger.Println("[CCSAdapter] Connected, consuming contest events")
	return msgs, nil
}

// monitorConnection 监控连接状态并指数退避重连
func (a *CCSAdapter) monitorConnection(cfg *ReconnectConfig) {
	retryCount := 0
	currentDelay := cfg.InitialDelay

	for {
		closeErr := <-a.conn.NotifyClose(make(chan *amqp.Error))
		if closeErr == nil {
			logger.Println("[CCSAdapter] Connection closed normally")
			return
		}

		select {
		case <-a.done:
			return
		default:
		}

		logger.Errorf("[CCSAdapter] Connection lost: %v", closeErr)

		if cfg.MaxRetries > 0 && retryCount >= cfg.MaxRetries {
			logger.Errorf("[CCSAdapter] Max retries (%d) reached, giving up", cfg.MaxRetries)
			return
		}

		retryCount++
		logger.Printf("[CCSAdapter] Reconnecting in %v (attempt %d)...", currentDelay, retryCount)
		time.Sleep(currentDelay)

		msgs, err := a.reconnect()
		if err != nil {
			logger.Errorf("[CCSAdapter] Reconnect failed: %v", err)
			currentDelay = time.Duration(float64(currentDelay) * cfg.BackoffFactor)
			if currentDelay > cfg.MaxDelay {
				currentDelay = cfg.MaxDelay
			}
			continue
		}

		go a.consume(msgs)
		logger.Println("[CCSAdapter] Reconnected successfully")
		retryCount = 0
		currentDelay = cfg.InitialDelay
	}
}

func (a *CCSAdapter) reconnect() (<-chan amqp.Delivery, error) {
	if a.channel != nil {
		a.channel.Close()
		a.channel = nil
	}
	if a.conn != nil {
		a.conn.Close()
		a.conn = nil
	}
	return a.connectAndConsume()
}

func (a *CCSAdapter) consume(msgs <-chan amqp.Delivery) {
	// 连接丢失导致的退出不关闭输出, 重连后新的消费任务继续发射
	defer func() {
		select {
		case <-a.done:
			a.closeOutputs()
		default:
		}
	}()

	for msg := range msgs {
		select {
		case <-a.done:
			return
		default:
		}
		a.handleDelivery(msg)
	}
}

func (a *CCSAdapter) handleDelivery(msg amqp.Delivery) {
	var event FeedEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		logger.Errorf("[CCSAdapter] Malformed feed event dropped: %v", err)
		return
	}

	if a.recorder != nil {
		a.recorder.Store(database.FeedMessage{
			ContestID:  a.config.ContestID,
			EventType:  event.Type,
			RoutingKey: msg.RoutingKey,
			Payload:    string(msg.Body),
		})
	}

	if err := a.Dispatch(event); err != nil {
		// 数据完整性错误: 记录并丢弃, 引用之后补齐时同一提交的后续事件照常处理
		logger.Errorf("[CCSAdapter] Dropped %s event: %v", event.Type, err)
	}
}

// Dispatch 将单条事件应用到比赛状态并向下游发布更新
// 回放准备路径复用同一套解析逻辑, 保证实时与重播语义一致
func (a *CCSAdapter) Dispatch(event FeedEvent) error {
	result, err := ApplyFeedEvent(a.state, event)
	if err != nil {
		return err
	}

	if result.SnapshotChanged {
		a.emitSnapshot()
	}
	for _, run := range result.Runs {
		a.emitRun(run)
	}
	if result.Analytics != nil {
		select {
		case a.analytics <- *result.Analytics:
		case <-a.done:
		}
	}
	return nil
}

// FeedEventResult 应用单条事件后需要向下游发布的内容
type FeedEventResult struct {
	SnapshotChanged bool
	Runs            []models.Run
	Analytics       *models.AnalyticsMessage
}

// ApplyFeedEvent 解析单条上游事件并应用到比赛状态
func ApplyFeedEvent(state *ContestState, event FeedEvent) (FeedEventResult, error) {
	var result FeedEventResult

	switch event.Type {
	case "contest":
		var data feedContest
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return result, errors.Wrap(err, "decode contest")
		}
		start, err := time.Parse(time.RFC3339, data.StartTime)
		if err != nil && data.StartTime != "" {
			return result, errors.Wrap(err, "parse start_time")
		}
		state.ProcessContest(
			start,
			time.Duration(data.DurationSec)*time.Second,
			time.Duration(data.FreezeSec)*time.Second,
			models.ResultType(data.ResultType),
		)
		result.SnapshotChanged = true

	case "state":
		var data feedState
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return result, errors.Wrap(err, "decode state")
		}
		result.Runs = state.ProcessStatus(models.ContestStatus(data.Status))
		result.SnapshotChanged = true

	case "problem":
		var data feedProblem
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return result, errors.Wrap(err, "decode problem")
		}
		state.ProcessProblem(data.ID, data.Label, data.Name, data.RGB, data.TestCount)
		result.SnapshotChanged = true

	case "team":
		var data feedTeam
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return result, errors.Wrap(err, "decode team")
		}
		state.ProcessTeam(models.Team{
			ExternalID: data.ID,
			Name:       data.Name,
			ShortName:  data.ShortName,
			Groups:     data.Groups,
			HashTag:    data.HashTag,
			Photo:      data.Photo,
			Video:      data.Video,
			Screens:    data.Screens,
			Cameras:    data.Cameras,
		})
		result.SnapshotChanged = true

	case "judgement-type":
		var data feedJudgementType
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return result, errors.Wrap(err, "decode judgement-type")
		}
		state.ProcessJudgementType(data.ID, data.Solved, data.Penalty)

	case "submission":
		var data feedSubmission
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return result, errors.Wrap(err, "decode submission")
		}
		run, err := state.ProcessSubmission(
			data.ID, data.ProblemID, data.TeamID,
			time.Duration(data.ContestTimeMs)*time.Millisecond,
		)
		if err != nil {
			return result, err
		}
		result.Runs = []models.Run{run}

	case "judgement":
		var data feedJudgement
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return result, errors.Wrap(err, "decode judgement")
		}
		updated, err := state.ProcessJudgement(
			data.ID, data.SubmissionID, data.JudgementTypeID,
			time.Duration(data.EndTimeMs)*time.Millisecond,
		)
		if err != nil {
			return result, err
		}
		result.Runs = updated

	case "run":
		var data feedTestCase
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return result, errors.Wrap(err, "decode run")
		}
		run, err := state.ProcessTestCase(
			data.JudgementID, data.Ordinal, data.Passed,
			time.Duration(data.ContestTimeMs)*time.Millisecond,
		)
		if err != nil {
			return result, err
		}
		result.Runs = []models.Run{run}

	case "analytics":
		var data feedAnalytics
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return result, errors.Wrap(err, "decode analytics")
		}
		msg := models.AnalyticsMessage{Time: time.Now(), Kind: data.Kind, Text: data.Text}
		if data.TeamID != "" {
			teamID := TeamIDFor(data.TeamID)
			msg.TeamID = &teamID
		}
		result.Analytics = &msg

	default:
		logger.Printf("[CCSAdapter] Ignoring unknown event type: %s", event.Type)
	}

	return result, nil
}

// BuildHistoryFromFeed 将归档的完整事件流重建为回放输入
// 单条坏事件记录并跳过, 不中断重建
func BuildHistoryFromFeed(events []FeedEvent) (models.ContestSnapshot, []models.Run) {
	state := NewContestState()
	for _, event := range events {
		if _, err := ApplyFeedEvent(state, event); err != nil {
			logger.Errorf("[Emulation] Dropped archived %s event: %v", event.Type, err)
		}
	}
	return state.Snapshot(), state.Runs()
}

// State 适配器当前的规范模型, 供回放准备路径收集完整历史
func (a *CCSAdapter) State() *ContestState {
	return a.state
}

func (a *CCSAdapter) emitSnapshot() {
	select {
	case a.snapshots <- a.state.Snapshot():
	case <-a.done:
	}
}

func (a *CCSAdapter) emitRun(run models.Run) {
	select {
	case a.runs <- run:
	case <-a.done:
	}
}
