package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-kivik/kivik/v4/couchdb"

	"github.com/go-kivik/kivik/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"signage-fleet-server/internal/catalog"
	"signage-fleet-server/internal/config"
	"signage-fleet-server/internal/events"
	"signage-fleet-server/internal/handler"
	"signage-fleet-server/internal/logging"
	"signage-fleet-server/internal/metrics"
	"signage-fleet-server/internal/repository"
	"signage-fleet-server/internal/scheduler"
	"signage-fleet-server/internal/service"
	"signage-fleet-server/internal/weather"
	"signage-fleet-server/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	logging.Setup(cfg.Logging, cfg.Server.Env)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	db, err := repository.Open(cfg.Database)
	if err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}
	store := repository.NewStore(db)
	if err := store.Migrate(ctx); err != nil {
		logrus.Fatalf("Failed to migrate database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logrus.Fatalf("Invalid REDIS_URL: %v", err)
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logrus.Fatalf("Failed to connect to Redis: %v", err)
		}
	} else {
		logrus.Warn("REDIS_URL not set, tickets are kept in process memory")
	}
	tickets := repository.NewTicketRepository(redisClient)

	var couch *kivik.Client
	var catalogSource service.CatalogSource
	if cfg.Couch.URL != "" {
		couch, err = kivik.New("couch", cfg.Couch.URL)
		if err != nil {
			logrus.Fatalf("Failed to connect to CouchDB: %v", err)
		}
		exists, err := couch.DBExists(ctx, cfg.Couch.Database)
		if err != nil {
			logrus.Fatalf("Failed to check catalog database: %v", err)
		}
		if !exists {
			logrus.WithField("db", cfg.Couch.Database).Warn("Catalog database does not exist yet, digital menus show media only")
		}
		catalogSource = repository.NewCatalogRepository(couch, cfg.Couch.Database)
	}

	var weatherSource service.WeatherSource
	if cfg.Weather.BaseURL != "" {
		weatherSource = weather.NewClient(cfg.Weather)
	}

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.RabbitMQ.URL != "" {
		amqpPublisher := events.NewAMQPPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue, 0)
		go amqpPublisher.Run(ctx)
		publisher = amqpPublisher
	}

	metrics.MustRegister()

	wsManager := websocket.NewManager(websocket.Options{
		WriteWait:      cfg.WebSocket.WriteWait,
		PongWait:       cfg.WebSocket.PongWait,
		PingPeriod:     cfg.WebSocket.PingPeriod,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		SendBuffer:     cfg.WebSocket.SendBuffer,
	})

	notifier := service.NewNotifier(wsManager)
	tokenService := service.NewTokenService(cfg.JWT.Secret, cfg.JWT.Expiration, cfg.JWT.RefreshTokenExpiration)
	sessionService := service.NewSessionService(store, tokenService, notifier, publisher)
	playlistService := service.NewPlaylistService(store, catalogSource, weatherSource, notifier, cfg.Playlist.CacheTTL)
	pairingService := service.NewPairingService(store, tickets, sessionService, notifier, publisher, cfg.Pairing, cfg.Server.PublicURL)
	deviceService := service.NewDeviceService(store, sessionService, playlistService, notifier, publisher)
	companyService := service.NewCompanyService(store, sessionService, playlistService, notifier)

	campaignScheduler := scheduler.New(service.NewCampaignTransitions(notifier, playlistService, publisher))
	campaignService := service.NewCampaignService(store, campaignScheduler, playlistService, notifier)

	snapshots, err := deviceService.Snapshots(ctx)
	if err != nil {
		logrus.Fatalf("Failed to load device statuses: %v", err)
	}
	wsManager.Prime(snapshots)
	wsManager.SetMessageHandler(playlistService)
	wsManager.SetPresenceRecorder(deviceService)
	go wsManager.Run(ctx)

	scheduled, err := campaignScheduler.Rehydrate(ctx, store.Campaigns)
	if err != nil {
		logrus.Fatalf("Failed to schedule campaigns: %v", err)
	}
	logrus.WithField("timers", scheduled).Info("Campaign scheduler ready")

	if couch != nil && cfg.Couch.Watch {
		catalogSync := service.NewCatalogSync(store, catalogSource, playlistService, notifier)
		if err := catalogSync.Prime(ctx); err != nil {
			logrus.WithError(err).Warn("Failed to load product group owners")
		}
		watcher := catalog.NewWatcher(couch, cfg.Couch.Database, catalogSync)
		go watcher.Run(ctx)
	}

	maintenance, err := scheduler.NewMaintenance(cfg.Maintenance.Schedule, cfg.Maintenance.TokenRetention, store.Tokens)
	if err != nil {
		logrus.Fatalf("Failed to set up maintenance: %v", err)
	}
	maintenance.Start()

	r := handler.NewRouter(cfg, handler.Handlers{
		Pairing:       handler.NewPairingHandler(pairingService, cfg.Server.IsProduction()),
		DeviceSession: handler.NewDeviceSessionHandler(deviceService, pairingService, playlistService),
		Devices:       handler.NewDeviceHandler(deviceService),
		Companies:     handler.NewCompanyHandler(companyService),
		Campaigns:     handler.NewCampaignHandler(campaignService),
		WebSocket: handler.NewWebSocketHandler(
			wsManager,
			pairingService,
			cfg.JWT.OperatorSecret,
			cfg.WebSocket.ReadBufferSize,
			cfg.WebSocket.WriteBufferSize,
		),
	}, sessionService, store)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.WithFields(logrus.Fields{
			"addr":   addr,
			"env":    cfg.Server.Env,
			"db":     cfg.Database.Driver,
			"redis":  redisClient != nil,
			"couch":  couch != nil,
			"broker": cfg.RabbitMQ.URL != "",
		}).Info("Starting Signage Fleet Server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	campaignScheduler.Stop()
	maintenance.Stop(shutdownCtx)
	stop()

	if err := tickets.Close(); err != nil {
		logrus.WithError(err).Warn("Failed to close ticket store")
	}
	if couch != nil {
		couch.Close()
	}
	if err := store.Close(); err != nil {
		logrus.WithError(err).Warn("Failed to close database")
	}

	logrus.Info("Server stopped gracefully")
}
