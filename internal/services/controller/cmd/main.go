package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/LeonardoBeccarini/sdcc_greenhouse/internal/config"
	"github.com/LeonardoBeccarini/sdcc_greenhouse/internal/model/messages"
	"github.com/LeonardoBeccarini/sdcc_greenhouse/internal/services/controller"
	"github.com/LeonardoBeccarini/sdcc_greenhouse/internal/services/gateway/app"
	"github.com/LeonardoBeccarini/sdcc_greenhouse/internal/services/health"
	"github.com/LeonardoBeccarini/sdcc_greenhouse/internal/services/persistence"
	"github.com/LeonardoBeccarini/sdcc_greenhouse/internal/services/realtime"
	"github.com/LeonardoBeccarini/sdcc_greenhouse/pkg/logger"
	"github.com/LeonardoBeccarini/sdcc_greenhouse/pkg/rabbitmq"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	lg, err := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Service.Name)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// === SQL (alerts, action logs, settings) ===
	db, err := persistence.OpenSQL(cfg.Database)
	if err != nil {
		lg.Fatal("database", zap.Error(err))
	}
	store, err := persistence.NewSQLStore(db, lg.Named("sql"))
	if err != nil {
		lg.Fatal("database migrate", zap.Error(err))
	}
	defer func() { _ = store.Close() }()

	// === InfluxDB + Redis (readings) ===
	influx := influxdb2.NewClient(cfg.Influx.URL, cfg.Influx.Token)
	defer influx.Close()
	var series persistence.SeriesStore
	if is, err := persistence.NewInfluxStore(influx, cfg.Influx, lg.Named("influx")); err != nil {
		lg.Warn("influx disabled", zap.Error(err))
	} else {
		series = is
	}
	rdb := persistence.NewRedisClient(cfg.Redis)
	defer func() { _ = rdb.Close() }()
	cache := persistence.NewLatestCache(rdb, cfg.Redis.TTL)
	if err := cache.Ping(ctx); err != nil {
		lg.Warn("redis unreachable, latest reading cache degraded", zap.Error(err))
	}
	readings := persistence.NewReadings(series, cache, lg.Named("readings"))

	// === realtime hub ===
	hub := realtime.NewHub(cfg.Service.AllowedOrigins, lg.Named("ws"))
	go hub.Run(ctx)

	// === MQTT ===
	// The pipeline and consumer are created after the first connect; the hook reads them atomically.
	var (
		pipelineRef atomic.Pointer[controller.Pipeline]
		consumerRef atomic.Pointer[rabbitmq.MultiConsumer]
	)
	rmq := cfg.MQTT.Rabbit()
	rmq.WillTopic = cfg.Topics.BackendStatus
	rmq.WillPayload = messages.BackendOfflineWill()
	rmq.OnConnect = func(c mqtt.Client) {
		if cons := consumerRef.Load(); cons != nil {
			cons.Subscribe(c)
		}
		if p := pipelineRef.Load(); p != nil {
			p.AnnouncePresence("online")
		}
	}

	mqttCtx, mqttCancel := context.WithCancel(context.Background())
	defer mqttCancel()
	client, err := rabbitmq.NewRabbitMQConn(mqttCtx, rmq, lg.Named("mqtt"))
	if err != nil {
		lg.Fatal("mqtt connect", zap.Error(err))
	}
	publisher := rabbitmq.NewPublisher(client, lg.Named("mqtt"))

	// === engine ===
	metrics := controller.NewMetrics(prometheus.DefaultRegisterer)
	pipeline := controller.NewPipeline(controller.Options{
		DeviceID:   cfg.Service.DeviceID,
		Topics:     cfg.Topics,
		Thresholds: cfg.Thresholds,
		DedupTTL:   cfg.Service.DedupTTL,
		DeviceTTL:  cfg.Service.DeviceTTL,
	}, controller.Deps{
		Publisher: publisher,
		Fanout:    hub,
		Readings:  readings,
		Alerts:    store,
		Logs:      store,
		Settings:  store,
		Metrics:   metrics,
		Logger:    lg.Named("controller"),
	})
	if t, ok, err := store.LoadThresholds(ctx); err != nil {
		lg.Warn("load stored thresholds", zap.Error(err))
	} else if ok {
		pipeline.RestoreThresholds(t)
		lg.Info("thresholds restored from database", zap.Any("thresholds", t))
	}
	hub.SetStatusProvider(func() any { return pipeline.ActuatorStatus() })

	consumer := rabbitmq.NewMultiConsumer(client, cfg.Topics.Subscriptions(), pipeline.HandleMessage, lg.Named("mqtt"))
	pipelineRef.Store(pipeline)
	consumerRef.Store(consumer)
	go consumer.ConsumeMessage(ctx)
	pipeline.AnnouncePresence("online")

	go pipeline.Devices().Run(ctx)

	// === retention ===
	go persistence.NewSweeper(store, cfg.Retention, lg.Named("retention")).Run(ctx)

	// === HTTP ===
	checker := health.NewChecker(publisher, store, readings, hub.ClientCount)
	gw := app.NewGateway(app.Config{
		HTTPTimeout:    cfg.Service.HTTPTimeout,
		AllowedOrigins: cfg.Service.AllowedOrigins,
		Logger:         lg.Named("http"),
	}, pipeline, readings, store)
	router := gw.NewRouter()
	router.Get("/ws", hub.ServeWS)
	router.Handle("/metrics", promhttp.Handler())
	router.Handle("/health", checker.HealthHandler())
	router.Handle("/healthz", checker.LiveHandler())
	router.Handle("/readyz", checker.ReadyHandler())

	hs := &http.Server{
		Addr:              cfg.Service.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		lg.Info("http listening", zap.String("addr", cfg.Service.HTTPAddr))
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("http server", zap.Error(err))
		}
	}()

	// === gRPC health ===
	grpcHealth := health.NewGRPCServer()
	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, grpcHealth)
	lis, err := net.Listen("tcp", cfg.Service.GRPCAddr)
	if err != nil {
		lg.Fatal("grpc listen", zap.String("addr", cfg.Service.GRPCAddr), zap.Error(err))
	}
	go func() {
		lg.Info("grpc health listening", zap.String("addr", cfg.Service.GRPCAddr))
		if err := gs.Serve(lis); err != nil {
			lg.Error("grpc serve", zap.Error(err))
		}
	}()
	go checker.Watch(ctx, grpcHealth, 5*time.Second, lg.Named("health"))

	<-ctx.Done()
	lg.Info("shutting down")

	shCtx, cancel := context.WithTimeout(context.Background(), cfg.Service.ShutdownTimeout)
	defer cancel()
	_ = hs.Shutdown(shCtx)
	gs.GracefulStop()

	pipeline.AnnouncePresence("offline")
	mqttCancel()
	// give the disconnect a moment to flush
	time.Sleep(300 * time.Millisecond)
}
