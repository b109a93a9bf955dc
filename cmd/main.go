package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Gopher0727/ProjectChat/config"
	"github.com/Gopher0727/ProjectChat/internal/authz"
	"github.com/Gopher0727/ProjectChat/internal/events"
	"github.com/Gopher0727/ProjectChat/internal/handlers"
	"github.com/Gopher0727/ProjectChat/internal/pkg/kafka"
	"github.com/Gopher0727/ProjectChat/internal/repositories"
	"github.com/Gopher0727/ProjectChat/internal/routers"
	"github.com/Gopher0727/ProjectChat/internal/services"
	"github.com/Gopher0727/ProjectChat/internal/storage"
	"github.com/Gopher0727/ProjectChat/internal/utils"
	"github.com/Gopher0727/ProjectChat/internal/ws"
	"github.com/Gopher0727/ProjectChat/middleware/jwt"
	logger "github.com/Gopher0727/ProjectChat/middleware/log"
	"github.com/Gopher0727/ProjectChat/middleware/ratelimit"
	"github.com/Gopher0727/ProjectChat/utils/snowflake"
)

func main() {
	configPath := flag.String("config", "./config.toml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("配置初始化失败: %v", err)
	}

	appLogger, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		log.Fatalf("日志初始化失败: %v", err)
	}
	defer appLogger.Close()

	if err := run(cfg, appLogger); err != nil {
		appLogger.Fatal("server exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, appLogger *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 初始化 PostgreSQL
	db, err := storage.InitPostgres(cfg)
	if err != nil {
		return err
	}
	store := repositories.NewGormStore(db)

	// 初始化 Redis
	rdb, err := storage.InitRedis(ctx, cfg)
	if err != nil {
		return err
	}
	defer rdb.Close()

	ids, err := snowflake.NewNode(cfg.Chat.NodeID)
	if err != nil {
		return err
	}

	// 协程池，用于事件分发
	pool := utils.NewWorkerPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize, appLogger)
	pool.Start()
	defer pool.Stop()

	// WebSocket Hub；开启中继时跨节点投递
	hub := ws.NewHub(ws.HubConfig{
		TypingTTL:     cfg.Chat.TypingTTL,
		SweepInterval: cfg.Chat.TypingSweepInterval,
	}, appLogger)
	hub.Start(ctx)
	defer hub.Shutdown()

	var deliverer ws.Deliverer = hub
	if cfg.Chat.RelayEnabled {
		relay := ws.NewRelay(rdb, cfg.Chat.RelayChannel, hub, appLogger)
		ready := make(chan struct{})
		go func() {
			if err := relay.Run(ctx, ready); err != nil {
				appLogger.Error("relay stopped", zap.Error(err))
			}
		}()
		select {
		case <-ready:
		case <-time.After(5 * time.Second):
			appLogger.Warn("relay subscription not confirmed, continuing")
		}
		deliverer = relay
	}

	listeners := []events.Listener{
		ws.NewListener(deliverer),
		events.NewNotificationListener(rdb, cfg.Chat.NotificationInbox),
	}

	switch cfg.Chat.AuditSink {
	case "db":
		listeners = append(listeners, events.NewAuditListener(events.NewStoreAuditSink(store, ids)))
	case "mongo":
		mc, err := storage.InitMongo(ctx, &cfg.Mongo)
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = mc.Close(closeCtx)
		}()
		listeners = append(listeners, events.NewAuditListener(events.NewMongoAuditSink(mc.Collection)))
	}

	// Kafka 不可用时降级运行，不影响聊天主流程
	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(&cfg.Kafka)
		if err != nil {
			appLogger.Warn("kafka producer unavailable, analytics disabled", zap.Error(err))
		} else {
			defer producer.Close()
			listeners = append(listeners, events.NewAnalyticsListener(kafka.RetryingProducer{Producer: producer}, cfg.Kafka.Topic))
		}
	}

	dispatcher := events.NewDispatcher(appLogger, listeners...).WithPool(pool)
	appLogger.Info("event listeners registered", zap.Strings("listeners", dispatcher.Listeners()))

	// 初始化服务层
	deps := services.Deps{
		Store:  store,
		Oracle: authz.NewClaimsOracle(),
		Events: dispatcher,
		IDs:    ids,
		Logger: appLogger.Named("services"),
	}
	channelService := services.NewChannelService(deps)
	messageService := services.NewMessageService(deps, cfg.Chat.EditWindow)
	reactionService := services.NewReactionService(deps)
	directService := services.NewDirectMessageService(deps)
	presenceService := services.NewPresenceService(deps, cfg.Chat.PresenceWindow)
	profileService := services.NewProfileService(deps)

	// 配置并创建 Gin 引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()

	opts := routers.Options{
		Tokens:   jwt.NewTokenManager(cfg.JWT.Secret, cfg.JWT.ExpireHours),
		Profiles: profileService,
		Logger:   appLogger,
	}
	if cfg.RateLimit.Enabled {
		opts.Limiter = ratelimit.NewRedisLimiter(rdb, appLogger, true)
		opts.LimitPerMinute = cfg.RateLimit.LimitPerMinute
	}

	routers.SetupRoutes(r, routers.Handlers{
		Channels: handlers.NewChannelHandler(channelService, hub, appLogger),
		Messages: handlers.NewMessageHandler(messageService, reactionService, appLogger),
		Direct:   handlers.NewDirectHandler(directService, appLogger),
		Presence: handlers.NewPresenceHandler(presenceService, appLogger),
		WS:       ws.NewHandler(hub, channelService, messageService, presenceService, cfg.Websocket, appLogger),
	}, opts)

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLogger.Info("正在启动服务器", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	appLogger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
