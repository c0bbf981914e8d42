package main

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fekuna/omnipos-inventory-sync/config"
	"github.com/fekuna/omnipos-inventory-sync/internal/auth"
	"github.com/fekuna/omnipos-inventory-sync/internal/inventory"
	"github.com/fekuna/omnipos-inventory-sync/internal/telemetry"
	"github.com/fekuna/omnipos-inventory-sync/pkg/logger"

	invClient "github.com/fekuna/omnipos-inventory-sync/internal/inventory/client"
	invEngine "github.com/fekuna/omnipos-inventory-sync/internal/inventory/engine"
	invH "github.com/fekuna/omnipos-inventory-sync/internal/inventory/handler"
	invListener "github.com/fekuna/omnipos-inventory-sync/internal/inventory/listener"
	invStream "github.com/fekuna/omnipos-inventory-sync/internal/inventory/stream"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

func main() {
	// 1. Load Configuration
	_ = godotenv.Load() // Load .env file if it exists
	cfg := config.LoadEnv()

	// 2. Initialize Logger
	logConfig := &logger.ZapLoggerConfig{
		IsDevelopment:     false,
		Encoding:          cfg.Logger.Encoding,
		Level:             cfg.Logger.Level,
		DisableCaller:     cfg.Logger.DisableCaller,
		DisableStacktrace: cfg.Logger.DisableStacktrace,
	}
	if cfg.Server.AppEnv == "development" {
		logConfig.IsDevelopment = true
		logConfig.Encoding = "console"
		logConfig.Level = "debug"
	}

	appLogger := logger.NewZapLogger(logConfig)
	defer appLogger.Sync()

	// 3. Metrics
	metrics, err := telemetry.New()
	if err != nil {
		appLogger.Warn("Could not register sync metrics", zap.Error(err))
		metrics = telemetry.Nop()
	}

	// 4. Backend REST client
	backend := invClient.NewRESTClient(invClient.Options{
		BaseURL:   cfg.Backend.BaseURL,
		Token:     cfg.Backend.Token,
		Timeout:   cfg.Backend.Timeout,
		RateLimit: cfg.Backend.RateLimit,
		Burst:     cfg.Backend.Burst,
	}, appLogger)

	// 5. Push transport
	source, closeSource := newSource(cfg, appLogger)
	defer closeSource()

	// 6. Engine
	engine, err := invEngine.New(backend, source, invEngine.Options{
		DefaultStock:   cfg.Sync.DefaultStock,
		PageSize:       cfg.Sync.PageSize,
		BackendTimeout: cfg.Backend.Timeout,
		Stream: invListener.Config{
			IdleTimeout:       cfg.Stream.IdleTimeout,
			ReconnectInterval: cfg.Stream.ReconnectInterval,
		},
	}, metrics, appLogger)
	if err != nil {
		appLogger.Fatal("Could not build inventory engine", zap.Error(err))
	}

	initCtx, cancelInit := context.WithTimeout(context.Background(), cfg.Backend.Timeout+5*time.Second)
	if err := engine.Init(initCtx); err != nil {
		// The dashboard shows an empty list with an error banner; keep serving.
		appLogger.Error("Inventory engine started without products", zap.Error(err))
	}
	cancelInit()

	// 7. Start gRPC Server
	port := cfg.Server.GRPCPort
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}

	lis, err := net.Listen("tcp", port)
	if err != nil {
		log.Fatalf("failed to listen: %v", err)
	}

	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(auth.ContextInterceptor()),
	)

	invH.RegisterProductViewServer(grpcServer, invH.NewProductViewHandler(engine, engine.UseCase(), appLogger))

	healthServer := health.NewServer()
	healthServer.SetServingStatus(invH.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	reflection.Register(grpcServer)

	appLogger.Info("Starting gRPC server",
		zap.String("port", port),
		zap.String("transport", source.Name()),
		zap.String("backend", cfg.Backend.BaseURL))

	// Graceful Shutdown
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			appLogger.Fatal("failed to serve", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")
	healthServer.Shutdown()
	grpcServer.GracefulStop()
	engine.Dispose()
	appLogger.Info("Server stopped")
}

func newSource(cfg *config.Config, appLogger logger.ZapLogger) (inventory.Source, func()) {
	switch cfg.Stream.Transport {
	case "websocket":
		return invStream.NewWebSocketSource(cfg.Stream.WebSocketURL, cfg.Backend.Token, cfg.Backend.Timeout), func() {}
	case "kafka":
		appLogger.Info("Using Kafka stock stream", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
		return invStream.NewKafkaSource(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID), func() {}
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		appLogger.Info("Using Redis stock stream", zap.String("addr", cfg.Redis.Addr), zap.String("channel", cfg.Redis.Channel))
		return invStream.NewRedisSource(client, cfg.Redis.Channel), func() { _ = client.Close() }
	case "sse", "":
		url := strings.TrimRight(cfg.Backend.BaseURL, "/") + cfg.Stream.SSEPath
		return invStream.NewSSESource(nil, url, cfg.Backend.Token), func() {}
	default:
		appLogger.Fatal("Unknown stream transport", zap.String("transport", cfg.Stream.Transport))
		return nil, nil
	}
}
