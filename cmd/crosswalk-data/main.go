package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/TalApelfeld/AI-Smart-Crosswalk/common/database"
	"github.com/TalApelfeld/AI-Smart-Crosswalk/common/logger"
	mqttcommon "github.com/TalApelfeld/AI-Smart-Crosswalk/common/mqtt"
	rediscommon "github.com/TalApelfeld/AI-Smart-Crosswalk/common/redis"
	"github.com/TalApelfeld/AI-Smart-Crosswalk/internal/actuation"
	"github.com/TalApelfeld/AI-Smart-Crosswalk/internal/config"
	"github.com/TalApelfeld/AI-Smart-Crosswalk/internal/consumer"
	"github.com/TalApelfeld/AI-Smart-Crosswalk/internal/events"
	httpapi "github.com/TalApelfeld/AI-Smart-Crosswalk/internal/http"
	"github.com/TalApelfeld/AI-Smart-Crosswalk/internal/repository"
	"github.com/TalApelfeld/AI-Smart-Crosswalk/internal/service"
	"github.com/TalApelfeld/AI-Smart-Crosswalk/internal/store"
	"github.com/TalApelfeld/AI-Smart-Crosswalk/internal/tasks"
)

const shutdownTimeout = 5 * time.Second

type repos struct {
	alerts     repository.AlertsRepository
	crosswalks repository.CrosswalksRepository
	cameras    repository.CamerasRepository
	leds       repository.LEDsRepository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	lg, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "crosswalk-data")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer lg.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	checks := map[string]httpapi.HealthCheck{}

	// Postgres when available, in-memory repositories otherwise.
	var db *sql.DB
	if cfg.DBEnabled {
		if d, err := database.NewPostgresDB(ctx, &cfg.Database); err == nil {
			db = d
			lg.Info("DB enabled for crosswalk-data")
			if missing, err := database.MissingTables(ctx, db); err != nil {
				lg.Warn("Could not verify schema", zap.Error(err))
			} else if len(missing) > 0 {
				lg.Warn("Schema incomplete, run crosswalk-migrate", zap.Strings("missing_tables", missing))
			}
		} else {
			lg.Warn("DB enabled but connection failed, falling back to memory store", zap.Error(err))
		}
	}
	var r repos
	if db != nil {
		r = repos{
			alerts:     repository.NewPostgresAlertsRepository(db),
			crosswalks: repository.NewPostgresCrosswalksRepository(db),
			cameras:    repository.NewPostgresCamerasRepository(db),
			leds:       repository.NewPostgresLEDsRepository(db),
		}
		checks["postgres"] = db.PingContext
	} else {
		r = repos{
			alerts:     repository.NewMemoryAlertsRepo(),
			crosswalks: repository.NewMemoryCrosswalksRepo(),
			cameras:    repository.NewMemoryCamerasRepo(),
			leds:       repository.NewMemoryLEDsRepo(),
		}
	}

	var (
		redisClient *redis.Client
		lock        service.LocationLocker
	)
	if cfg.RedisEnabled {
		if c, err := rediscommon.Connect(ctx, &cfg.Redis); err != nil {
			lg.Warn("Redis unreachable, location lock disabled", zap.Error(err))
		} else {
			redisClient = c
			lock = store.NewLocationLock(store.NewRedisKV(redisClient), cfg.Resolver.LockTTL)
			checks["redis"] = func(ctx context.Context) error { return rediscommon.Ping(ctx, redisClient) }
		}
	}

	hub := events.NewHub(lg)
	publishers := events.Multi{hub}
	if redisClient != nil && cfg.EventStream.Name != "" {
		publishers = append(publishers, events.NewStreamPublisher(redisClient, cfg.EventStream.Name, cfg.EventStream.MaxLen))
	}

	var mqttClient *mqttcommon.Client
	if cfg.MQTT.Enabled {
		if c, err := mqttcommon.NewClient(&cfg.MQTT.MQTTConfig, lg); err == nil {
			mqttClient = c
			publishers = append(publishers, events.NewMQTTPublisher(c, cfg.MQTT.EventTopicPrefix, cfg.MQTT.QoS))
			checks["mqtt"] = connectedCheck("mqtt", c.IsConnected)
		} else {
			lg.Warn("MQTT enabled but connection failed", zap.Error(err))
		}
	}

	var natsPub *events.NATSPublisher
	if cfg.NATS.Enabled {
		if p, err := events.NewNATSPublisher(&cfg.NATS.NATSConfig, cfg.NATS.SubjectPrefix, lg); err == nil {
			natsPub = p
			publishers = append(publishers, p)
			checks["nats"] = connectedCheck("nats", p.IsConnected)
		} else {
			lg.Warn("NATS enabled but connection failed", zap.Error(err))
		}
	}

	runner := tasks.NewRunner(cfg.Tasks.Workers, cfg.Tasks.QueueSize, cfg.Tasks.Timeout, lg)
	dispatcher := actuation.NewDispatcher(r.crosswalks, cfg.LED.Timeout, publishers, lg)

	alertSvc := service.NewAlertService(r.alerts, r.crosswalks, lg)
	crosswalkSvc := service.NewCrosswalkService(r.crosswalks, r.cameras, r.leds, lg)
	resolver := service.NewCrosswalkResolver(r.crosswalks, r.cameras, r.leds, lock, lg)
	ingestSvc := service.NewIngestService(resolver, r.crosswalks, alertSvc, dispatcher, runner, publishers, lg)

	var detections *consumer.DetectionConsumer
	if mqttClient != nil {
		detections = consumer.NewDetectionConsumer(mqttClient, ingestSvc, cfg.MQTT.DetectionTopic, cfg.MQTT.QoS, lg)
		if err := detections.Start(); err != nil {
			lg.Error("Failed to start detection consumer", zap.Error(err))
			detections = nil
		}
	}

	router := httpapi.NewRouter(lg)
	router.RegisterAlertRoutes(httpapi.NewAlertsHandler(alertSvc, ingestSvc, lg))
	router.RegisterCrosswalkRoutes(httpapi.NewCrosswalksHandler(crosswalkSvc, alertSvc, dispatcher, lg))
	router.RegisterDeviceRoutes(
		httpapi.NewCamerasHandler(service.NewCameraService(r.cameras, r.crosswalks, lg), lg),
		httpapi.NewLEDsHandler(service.NewLEDService(r.leds, r.crosswalks, lg), lg),
	)
	router.RegisterLiveRoutes(hub)
	router.RegisterHealthRoutes(httpapi.NewHealthHandler(runner.Stats, checks))

	srv := service.NewServer(cfg.HTTP.Addr, http.MaxBytesHandler(router, cfg.HTTP.MaxBodySize), lg)

	if err := srv.Run(ctx, shutdownTimeout); err != nil {
		lg.Error("HTTP server failed", zap.Error(err))
	}
	lg.Info("Shutting down")

	// Intake has stopped; drain background work.
	if detections != nil {
		detections.Stop()
	}
	if err := runner.Shutdown(shutdownTimeout); err != nil {
		lg.Warn("Background tasks not drained", zap.Error(err), zap.Any("stats", runner.Stats()))
	}

	hub.Close()
	if mqttClient != nil {
		mqttClient.Disconnect()
	}
	if natsPub != nil {
		natsPub.Close()
	}
	if redisClient != nil {
		_ = rediscommon.Close(redisClient)
	}
	if db != nil {
		_ = database.Close(db)
	}
}

func connectedCheck(name string, connected func() bool) httpapi.HealthCheck {
	return func(context.Context) error {
		if !connected() {
			return fmt.Errorf("%s disconnected", name)
		}
		return nil
	}
}
