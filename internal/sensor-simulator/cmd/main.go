package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/sdcc_greenhouse/internal/config"
	sensorSimulator "github.com/LeonardoBeccarini/sdcc_greenhouse/internal/sensor-simulator"
	"github.com/LeonardoBeccarini/sdcc_greenhouse/pkg/logger"
	"github.com/LeonardoBeccarini/sdcc_greenhouse/pkg/rabbitmq"
)

func main() {
	deviceID := flag.String("device-id", "esp8266_001", "device identifier")
	clientID := flag.String("client-id", "greenhouse-device-sim", "MQTT client ID")
	interval := flag.Duration("interval", 5*time.Second, "publish interval")
	ambient := flag.Float64("ambient", 26, "mean ambient temperature")
	lat := flag.Float64("lat", 41.51109, "latitude, used to seed soil moisture")
	lon := flag.Float64("lon", 12.37007, "longitude, used to seed soil moisture")
	flag.Parse()

	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	lg, err := logger.New(cfg.Logging.Level, cfg.Logging.Format, "device-simulator")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env := sensorSimulator.NewEnvironment(*ambient, nil)
	if err := env.SeedFromSoilGrids(ctx, *lat, *lon); err != nil {
		lg.Warn("soilgrids seed failed, using default", zap.Error(err))
	}

	rmq := cfg.MQTT.Rabbit()
	rmq.ClientID = *clientID
	client, err := rabbitmq.NewRabbitMQConn(ctx, rmq, lg.Named("mqtt"))
	if err != nil {
		lg.Fatal("mqtt connect", zap.Error(err))
	}

	publisher := rabbitmq.NewPublisher(client, lg.Named("mqtt"))
	consumer := rabbitmq.NewMultiConsumer(client, sensorSimulator.CommandTopics(cfg.Topics), nil, lg.Named("mqtt"))
	sim := sensorSimulator.NewSimulator(*deviceID, env, cfg.Topics, consumer, publisher, lg)

	sim.Start(ctx, *interval)
}
