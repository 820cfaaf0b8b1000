package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"VcFM/cache"
	"VcFM/config"
	"VcFM/core/access"
	"VcFM/core/archive"
	"VcFM/core/engine"
	"VcFM/core/media"
	"VcFM/core/playlist"
	"VcFM/core/provider"
	"VcFM/core/stream"
	"VcFM/db"
	"VcFM/logger"
	"VcFM/model"
	"VcFM/repository"
	"VcFM/server"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "vcfm",
	Short: "VcFM 是面向语音房间的点播队列服务",
	Run: func(cmd *cobra.Command, args []string) {
		run()
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(os.Getenv("LOG_LEVEL")),
		OutputPath: "logs/vcfm.log",
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	})

	redisClient, err := db.NewRedis(cfg)
	if err != nil {
		logger.Fatal("连接 Redis 失败", logger.ErrorField(err))
	}
	defer redisClient.Close()

	gormDB, err := db.NewGorm(cfg)
	if err != nil {
		logger.Fatal("连接 MySQL 失败", logger.ErrorField(err))
	}
	defer db.CloseGorm(gormDB)

	if err := db.AutoMigrateModels(gormDB, &model.RegisteredRoom{}, &model.RoomOperator{}); err != nil {
		logger.Fatal("数据库迁移失败", logger.ErrorField(err))
	}

	store := playlist.NewStore(redisClient, cfg.BotID)
	roomRepo := repository.NewGormRoomRepository(gormDB)

	transport := stream.NewLocalTransport()
	ctrl := stream.NewController(store, transport, stream.LocalBuilder{},
		cfg.JoinSettleDelay, cfg.StreamSettleDelay, cfg.MaxJoinRetries)

	prov := provider.NewClient(cfg.ProviderBaseURL)
	prov.ProbeDuration = media.NewProber(cfg.FFprobePath).Duration
	fetcher := media.NewFetcher(cfg.MediaDir)
	pipeline := access.NewPipeline(roomRepo, transport)
	eng := engine.NewEngine(store, ctrl, transport, prov, fetcher, pipeline)

	archiver, err := archive.NewArchiver(cfg, store)
	if err != nil {
		logger.Fatal("初始化归档存储失败", logger.ErrorField(err))
	}

	presence := cache.NewPresenceCache(redisClient)
	hub := server.NewHub(eng, presence)
	reactor := stream.NewReactor(store, ctrl, hub)
	srv := server.New(cfg, eng, hub, roomRepo, store, prov, archiver)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go transport.Run(ctx)
	go reactor.Run(ctx, transport.Events())
	go hub.Run()

	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("HTTP 服务异常退出", logger.ErrorField(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("收到退出信号，开始关闭")
	cancel()
	hub.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP 服务关闭失败", logger.ErrorField(err))
	}
	logger.Info("服务已退出")
}
