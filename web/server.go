package web

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"contest-live-service/config"
	"contest-live-service/logger"
	"contest-live-service/services"
)

type Server struct {
	config     *config.Config
	wsHub      *Hub
	state      *StateCache
	spotlight  *services.SpotlightSelector
	scoreboard *services.ScoreboardEngine // NORMAL 变体, 奖牌配置在线更新走这里
	httpServer *http.Server
	upgrader   websocket.Upgrader
}

// NewServer 创建 Web 服务器
func NewServer(cfg *config.Config, hub *Hub, state *StateCache, spotlight *services.SpotlightSelector, scoreboard *services.ScoreboardEngine) *Server {
	return &Server{
		config:     cfg,
		wsHub:      hub,
		state:      state,
		spotlight:  spotlight,
		scoreboard: scoreboard,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有来源(生产环境需要限制)
			},
		},
	}
}

func (s *Server) Start() error {
	router := mux.NewRouter()

	// API 路由: 只读镜像最近一次成功发布的快照
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/contest", s.handleGetContest).Methods("GET")
	api.HandleFunc("/scoreboard/{variant}", s.handleGetScoreboard).Methods("GET")
	api.HandleFunc("/queue", s.handleGetQueue).Methods("GET")
	api.HandleFunc("/spotlight", s.handleGetSpotlight).Methods("GET")
	api.HandleFunc("/spotlight/request", s.handleSpotlightRequest).Methods("POST")
	api.HandleFunc("/analytics", s.handleGetAnalytics).Methods("GET")
	api.HandleFunc("/settings/medals", s.handleSetMedals).Methods("POST")

	// WebSocket 路由
	router.HandleFunc("/ws", s.handleWebSocket)

	// CORS 配置
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	handler := c.Handler(router)

	s.httpServer = &http.Server{
		Addr:         ":" + s.config.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s.httpServer.ListenAndServe()
}

func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		logger.Errorf("Server shutdown error: %v", err)
	}
}

// handleWebSocket 升级连接并注册到 Hub
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("WebSocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		hub:  s.wsHub,
		conn: conn,
		send: make(chan []byte, 256),
	}
	s.wsHub.register <- client

	go client.writePump()
	go client.readPump()
}
