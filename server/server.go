package server

import (
	"context"
	"net/http"
	"time"

	"VcFM/config"
	"VcFM/core/archive"
	"VcFM/core/engine"
	"VcFM/core/playlist"
	"VcFM/core/provider"
	"VcFM/logger"
	"VcFM/repository"

	"github.com/gorilla/mux"
)

// Server 运维与房间控制的 HTTP 入口
type Server struct {
	cfg      *config.Config
	engine   *engine.Engine
	hub      *Hub
	repo     repository.RoomRepository
	store    *playlist.Store
	provider *provider.Client
	archiver *archive.Archiver

	httpServer *http.Server
}

// New 创建服务器并装配路由
func New(cfg *config.Config, eng *engine.Engine, hub *Hub, repo repository.RoomRepository,
	store *playlist.Store, prov *provider.Client, archiver *archive.Archiver) *Server {
	s := &Server{
		cfg:      cfg,
		engine:   eng,
		hub:      hub,
		repo:     repo,
		store:    store,
		provider: prov,
		archiver: archiver,
	}

	router := mux.NewRouter()

	// CORS 中间件
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "86400")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	router.HandleFunc("/api/health", s.HealthHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/search", s.SearchHandler).Methods(http.MethodGet)

	// 房间注册
	router.HandleFunc("/api/rooms", s.ListRoomsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/rooms", s.RegisterRoomHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/rooms/{id}", s.DisableRoomHandler).Methods(http.MethodDelete)
	router.HandleFunc("/api/rooms/{id}/operators", s.AddOperatorHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/rooms/{id}/operators/{userId}", s.RemoveOperatorHandler).Methods(http.MethodDelete)

	// 队列与播放
	router.HandleFunc("/api/rooms/{id}/queue", s.QueueHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/rooms/{id}/queue/{key}", s.DeleteEntryHandler).Methods(http.MethodDelete)
	router.HandleFunc("/api/rooms/{id}/now", s.NowHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/rooms/{id}/play", s.PlayHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/rooms/{id}/next", s.NextHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/rooms/{id}/previous", s.PreviousHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/rooms/{id}/pause", s.PauseHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/rooms/{id}/resume", s.ResumeHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/rooms/{id}/stop", s.StopHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/rooms/{id}/seek", s.SeekHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/rooms/{id}/jump", s.JumpHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/rooms/{id}/rule", s.CycleRuleHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/rooms/{id}/archive", s.ArchiveHandler).Methods(http.MethodPost)

	// WebSocket 订阅
	router.HandleFunc("/ws/rooms/{id}", s.WebSocketHandler).Methods(http.MethodGet)

	s.httpServer = &http.Server{
		Addr:         cfg.OpsAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Start 启动 HTTP 服务，阻塞直到服务退出
func (s *Server) Start() error {
	logger.Info("HTTP 服务启动", logger.String("addr", s.cfg.OpsAddr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown 优雅关闭
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
