package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/coursenotify/internal/dispatch/application"
	"github.com/wyfcoding/coursenotify/internal/dispatch/domain"
	"github.com/wyfcoding/coursenotify/internal/dispatch/infrastructure/messaging"
	"github.com/wyfcoding/coursenotify/internal/dispatch/infrastructure/persistence/mysql"
	"github.com/wyfcoding/coursenotify/internal/dispatch/infrastructure/render"
	"github.com/wyfcoding/coursenotify/internal/dispatch/infrastructure/sender"
	dispatchconsumer "github.com/wyfcoding/coursenotify/internal/dispatch/interfaces/consumer"
	httpserver "github.com/wyfcoding/coursenotify/internal/dispatch/interfaces/http"
	"github.com/wyfcoding/pkg/cache"
	"github.com/wyfcoding/pkg/config"
	database "github.com/wyfcoding/pkg/databases"
	"github.com/wyfcoding/pkg/limiter"
	"github.com/wyfcoding/pkg/logging"
	"github.com/wyfcoding/pkg/messagequeue/kafka"
	"github.com/wyfcoding/pkg/messagequeue/outbox"
	"github.com/wyfcoding/pkg/metrics"
	"github.com/wyfcoding/pkg/middleware"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"
)

var configPath = flag.String("config", "configs/dispatch/config.toml", "config file path")

// Config 在基础配置上增加 dispatch 调优段
type Config struct {
	config.Config `mapstructure:",squash"`

	Dispatch struct {
		// PendingWindowHours 重复消息取消的尾窗（小时），零值取引擎默认
		PendingWindowHours int `mapstructure:"pending_window_hours"`
		// Topic 投递指令主题，空值取默认主题
		Topic string `mapstructure:"topic"`
	} `mapstructure:"dispatch"`
}

func main() {
	flag.Parse()

	// 1. Config
	var cfg Config
	if err := config.Load(*configPath, &cfg); err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 2. Logger
	logCfg := &logging.Config{
		Service:    cfg.Server.Name,
		Module:     "dispatch",
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	}
	logger := logging.NewFromConfig(*logCfg)
	slog.SetDefault(logger.Logger)

	// 3. Metrics
	metricsImpl := metrics.NewMetrics(cfg.Server.Name)
	if cfg.Metrics.Enabled {
		go metricsImpl.ExposeHttp(cfg.Metrics.Port)
	}

	// 4. Infrastructure
	db, err := database.NewDB(cfg.Data.Database, cfg.CircuitBreaker, logger, metricsImpl)
	if err != nil {
		slog.Error("failed to connect database", "error", err)
		os.Exit(1)
	}

	if cfg.Server.Environment == "dev" {
		if err := db.RawDB().AutoMigrate(
			&mysql.UserPO{}, &mysql.ChannelPO{}, &mysql.PolicyPO{}, &mysql.OverridePO{},
			&mysql.NotificationPO{}, &mysql.MessagePO{}, &mysql.DelayedMessagePO{},
			&mysql.StreamItemPO{}, &mysql.FeatureFlagPO{}, &outbox.OutboxMessage{},
		); err != nil {
			slog.Error("failed to migrate database", "error", err)
		}
	}

	redisCache, err := cache.NewRedisCache(cfg.Data.Redis,cfg.CircuitBreaker, logger, metricsImpl)
	if err != nil {
		slog.Error("failed to init redis", "error", err)
		os.Exit(1)
	}
	rateLimiter := limiter.NewRedisLimiter(redisCache.GetClient(), cfg.RateLimit.Rate, time.Second)

	// 5. Kafka & Outbox
	kafkaProducer := kafka.NewProducer(cfg.MessageQueue.Kafka,logger, metricsImpl)
	outboxMgr := outbox.NewManager(db.RawDB(), logger.Logger)
	pusher := func(ctx context.Context, topic, key string, payload []byte) error {
		return kafkaProducer.PublishToTopic(ctx, topic, []byte(key), payload)
	}
	outboxProcessor := outbox.NewProcessor(outboxMgr, pusher, 100, 2*time.Second)
	outboxPub := messaging.NewOutboxPublisher(outboxMgr, db.RawDB())

	// 6. Repositories
	userRepo := mysql.NewUserRepository(db.RawDB())
	messageRepo := mysql.NewMessageRepository(db.RawDB(), outboxPub)
	policyRepo := mysql.NewPolicyRepository(db.RawDB())
	notificationRepo := mysql.NewNotificationRepository(db.RawDB())
	featureRepo := mysql.NewFeatureRepository(db.RawDB())
	streamRepo := mysql.NewStreamItemRepository(db.RawDB())
	delayedRepo := mysql.NewDelayedMessageRepository(db.RawDB())

	// 7. Application Services
	renderer, err := render.NewTemplateRenderer()
	if err != nil {
		slog.Error("failed to init renderer", "error", err)
		os.Exit(1)
	}
	dispatchTopic := cfg.Dispatch.Topic
	if dispatchTopic == "" {
		dispatchTopic = sender.TopicDispatch
	}
	dispatcher := sender.NewKafkaBatchDispatcher(kafkaProducer, dispatchTopic)

	deps := application.CreatorDeps{
		Users:      userRepo,
		Messages:   messageRepo,
		Policies:   policyRepo,
		Delayed:    delayedRepo,
		Streams:    streamRepo,
		Features:   featureRepo,
		Renderer:   renderer,
		Dispatcher: dispatcher,
	}
	dispatchSvc := application.NewDispatchService(notificationRepo, deps, application.CreatorOptions{
		PendingDuplicateWindow: time.Duration(cfg.Dispatch.PendingWindowHours) * time.Hour,
	})

	var emailSender domain.Sender
	if host := os.Getenv("SMTP_HOST"); host != "" {
		emailSender = sender.NewSMTPSender(host, os.Getenv("SMTP_PORT"),
			os.Getenv("SMTP_USERNAME"), os.Getenv("SMTP_PASSWORD"), os.Getenv("SMTP_FROM"))
	} else {
		emailSender = sender.NewMockEmailSender()
	}
	senders := map[domain.PathType]domain.Sender{
		domain.PathTypeEmail: emailSender,
		domain.PathTypeSMS:   sender.NewMockSMSSender(),
		domain.PathTypePush:  sender.NewMockPushSender(),
	}
	deliverySvc := application.NewDeliveryService(messageRepo, senders)

	// 8. Delivery Consumer
	consumerCfg := cfg.MessageQueue.Kafka
	consumerCfg.Topic = dispatchTopic
	if consumerCfg.GroupID == "" {
		consumerCfg.GroupID = "dispatch-delivery-group"
	}
	deliveryConsumer := kafka.NewConsumer(consumerCfg,logger, metricsImpl)
	deliveryHandler := dispatchconsumer.NewDeliveryEventHandler(deliverySvc)
	deliveryConsumer.Start(context.Background(), 3, deliveryHandler.HandleDeliveryCommand)

	// 9. Interfaces
	grpcSrv := grpc.NewServer()
	reflection.Register(grpcSrv)

	gin.SetMode(gin.ReleaseMode)
	if cfg.Server.Environment == "dev" {
		gin.SetMode(gin.DebugMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.HttpMetricsMiddleware(metricsImpl))
	r.Use(middleware.CORS())

	sys := r.Group("/sys")
	{
		sys.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status":    "UP",
				"service":   cfg.Server.Name,
				"timestamp": time.Now().Unix(),
			})
		})
		sys.GET("/ready", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "READY"})
		})
	}
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(metricsImpl.Handler()))
	}

	r.Use(middleware.RateLimitWithLimiter(rateLimiter))

	httpHandler := httpserver.NewDispatchHandler(dispatchSvc)
	httpHandler.RegisterRoutes(r)

	// 10. Start
	g, ctx := errgroup.WithContext(context.Background())

	g.Go(func() error {
		outboxProcessor.Start()
		<-ctx.Done()
		outboxProcessor.Stop()
		return nil
	})

	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.Server.GRPC.Port)
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			return err
		}
		slog.Info("gRPC server starting", "addr", addr)
		return grpcSrv.Serve(lis)
	})

	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.Server.HTTP.Port)
		server := &http.Server{Addr: addr, Handler: r}
		slog.Info("HTTP server starting", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
			slog.Info("shutting down servers...")
		case <-ctx.Done():
			slog.Info("context cancelled, shutting down...")
		}
		grpcSrv.GracefulStop()
		_ = deliveryConsumer.Close()
		redisCache.Close()
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("server exited with error", "error", err)
	}
}
