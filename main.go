package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"

	"contest-live-service/config"
	"contest-live-service/database"
	"contest-live-service/logger"
	"contest-live-service/models"
	"contest-live-service/services"
	"contest-live-service/web"
)

func main() {
	logger.Println("Starting Contest Live Service...")

	// 加载配置
	cfg := config.Load()

	// 连接事件归档数据库 (可选)
	var recorder *services.FeedRecorder
	if cfg.DatabaseURL != "" {
		db, err := database.Connect(cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		if err := database.Migrate(db); err != nil {
			logger.Fatalf("Failed to migrate database: %v", err)
		}
		logger.Println("Database connected and migrated")

		recorder = services.NewFeedRecorder(db)
	}

	// 选择数据源: 实时接入或归档回放
	adapter := buildAdapter(cfg, recorder)

	// 事件路由器: 唯一的事实来源, 所有派生视图都从这里订阅
	router := services.NewEventRouter(adapter)

	// 三个乐观级别的记分板引擎
	normal := services.NewScoreboardEngine(models.OptimismNormal, router.Subscribe(1024))
	optimistic := services.NewScoreboardEngine(models.OptimismOptimistic, router.Subscribe(1024))
	pessimistic := services.NewScoreboardEngine(models.OptimismPessimistic, router.Subscribe(1024))

	// 提交队列
	queue := services.NewQueueService(cfg.QueueSize, router.Subscribe(1024))

	// 聚焦选择器: 跟踪 NORMAL 记分板的排名变化
	spotlight := services.NewSpotlightSelector(cfg.SpotlightInterval, router.Subscribe(1024), normal.Subscribe(64))

	// 解说生成器: 模板加载失败不致命, 只转发上游解说
	templates, err := services.LoadAnalyticsTemplates(cfg.AnalyticsTemplates)
	if err != nil {
		logger.Errorf("Failed to load analytics templates from %s: %v (generation disabled)", cfg.AnalyticsTemplates, err)
		templates = nil
	}
	analytics := services.NewAnalyticsGenerator(templates, router.Subscribe(1024), normal.Subscribe(64))

	// WebSocket Hub 与快照缓存
	wsHub := web.NewHub()
	go wsHub.Run()

	state := web.NewStateCache()

	// 运行所有处理环路
	var wg conc.WaitGroup
	wg.Go(router.Run)
	wg.Go(normal.Run)
	wg.Go(optimistic.Run)
	wg.Go(pessimistic.Run)
	wg.Go(queue.Run)
	wg.Go(spotlight.Run)
	wg.Go(analytics.Run)

	// 各派生流桥接到缓存与广播
	wg.Go(func() { bridgeContest(router.Subscribe(256), state, wsHub) })
	wg.Go(func() { bridgeScoreboard(normal.Subscribe(64), state, wsHub) })
	wg.Go(func() { bridgeScoreboard(optimistic.Subscribe(64), state, wsHub) })
	wg.Go(func() { bridgeScoreboard(pessimistic.Subscribe(64), state, wsHub) })
	wg.Go(func() { bridgeQueue(queue.Subscribe(64), state, wsHub) })
	wg.Go(func() { bridgeSpotlight(spotlight.Subscribe(64), state, wsHub) })
	wg.Go(func() { bridgeAnalytics(analytics.Out(), state, wsHub) })

	// 启动数据源
	go func() {
		if err := adapter.Start(); err != nil {
			logger.Fatalf("Event source failed to start: %v", err)
		}
	}()
	logger.Printf("Event source started (mode: %s)", cfg.Source)

	// 启动Web服务器
	server := web.NewServer(cfg, wsHub, state, spotlight, normal)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Web server error: %v", err)
		}
	}()
	logger.Printf("Web server started on port %s", cfg.Port)

	logger.Println("Service is running. Press Ctrl+C to stop.")

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Println("Shutting down service...")

	// 停止顺序: 先源头, 再路由器, 下游环路随通道关闭自然退出
	adapter.Stop()
	router.Stop()
	spotlight.Stop()
	analytics.Stop()
	server.Stop()
	wg.Wait()

	logger.Println("Service stopped")
}

// buildAdapter 按配置选择数据源
// 回放模式的前置条件不满足时直接启动失败, 不降级
func buildAdapter(cfg *config.Config, recorder *services.FeedRecorder) services.SourceAdapter {
	switch cfg.Source {
	case "emulation":
		if recorder == nil {
			logger.Fatalf("Emulation mode requires DATABASE_URL for the archived feed")
		}
		if cfg.ContestID == "" {
			logger.Fatalf("Emulation mode requires CONTEST_ID")
		}

		events, err := recorder.LoadFeed(cfg.ContestID)
		if err != nil {
			logger.Fatalf("Failed to load archived feed for %s: %v", cfg.ContestID, err)
		}
		logger.Printf("[Emulation] Loaded %d archived events for contest %s", len(events), cfg.ContestID)

		snapshot, history := services.BuildHistoryFromFeed(events)

		startTime := time.Now()
		if cfg.EmulationStartTime != "" {
			startTime, err = time.Parse(time.RFC3339, cfg.EmulationStartTime)
			if err != nil {
				logger.Fatalf("Invalid EMULATION_START_TIME: %v", err)
			}
		}

		driver, err := services.NewEmulationDriver(snapshot, history, cfg.EmulationSpeed, startTime)
		if err != nil {
			logger.Fatalf("Cannot start emulation: %v", err)
		}
		return driver

	default:
		return services.NewCCSAdapter(cfg, recorder)
	}
}

func bridgeContest(events <-chan services.Event, state *web.StateCache, hub *web.Hub) {
	for event := range events {
		if event.Kind != services.EventSnapshot {
			continue
		}
		state.SetContest(event.Snapshot)
		hub.Broadcast(&web.WSMessage{
			Type:      web.FeedContest,
			Timestamp: time.Now().Unix(),
			Data:      event.Snapshot,
		})
	}
}

func bridgeScoreboard(boards <-chan models.Scoreboard, state *web.StateCache, hub *web.Hub) {
	for board := range boards {
		state.SetScoreboard(board)
		hub.Broadcast(&web.WSMessage{
			Type:      web.FeedScoreboard,
			Variant:   string(board.Level),
			Timestamp: time.Now().Unix(),
			Data:      board,
		})
	}
}

func bridgeQueue(snapshots <-chan services.QueueSnapshot, state *web.StateCache, hub *web.Hub) {
	for snapshot := range snapshots {
		state.SetQueue(snapshot)
		hub.Broadcast(&web.WSMessage{
			Type:      web.FeedQueue,
			Timestamp: time.Now().Unix(),
			Data:      snapshot,
		})
	}
}

func bridgeSpotlight(selections <-chan services.SpotlightSelection, state *web.StateCache, hub *web.Hub) {
	for selection := range selections {
		state.SetSpotlight(selection)
		hub.Broadcast(&web.WSMessage{
			Type:      web.FeedSpotlight,
			Timestamp: time.Now().Unix(),
			Data:      selection,
		})
	}
}

func bridgeAnalytics(messages <-chan models.AnalyticsMessage, state *web.StateCache, hub *web.Hub) {
	for msg := range messages {
		state.AddAnalytics(msg)
		hub.Broadcast(&web.WSMessage{
			Type:      web.FeedAnalytics,
			Timestamp: time.Now().Unix(),
			Data:      msg,
		})
	}
}
