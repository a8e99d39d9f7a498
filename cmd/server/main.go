package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/ammar1510/rideshare/internal/api"
	"github.com/ammar1510/rideshare/internal/auth"
	"github.com/ammar1510/rideshare/internal/booking"
	"github.com/ammar1510/rideshare/internal/config"
	"github.com/ammar1510/rideshare/internal/database"
	"github.com/ammar1510/rideshare/internal/directory"
	"github.com/ammar1510/rideshare/internal/events"
	"github.com/ammar1510/rideshare/internal/logger"
	"github.com/ammar1510/rideshare/internal/messaging"
	"github.com/ammar1510/rideshare/internal/notifications"
	"github.com/ammar1510/rideshare/internal/realtime"
	"github.com/ammar1510/rideshare/internal/websocket"
)

var log = logger.New("server")

func fatal(format string, args ...interface{}) {
	log.Error(format, args...)
	logger.Sync()
	os.Exit(1)
}

func main() {
	if err := config.LoadEnvFile(); err != nil {
		log.Warn(".env file not found, using environment variables")
	}
	cfg := config.Load()
	logger.SetMinLevel(logger.ParseLevel(cfg.LogLevel))
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		fatal("Invalid configuration: %v", err)
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	auth.InitJWTKey([]byte(cfg.JWTSecret))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dsn, _ := cfg.DSN()
	dbType := database.DatabaseType(cfg.DB.Type)
	db, err := database.NewDatabase(dbType, dsn)
	if err != nil {
		fatal("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Info("Connected to %s database", dbType)

	hub := openChangeFeed(ctx, db, dsn)

	var cache directory.Cache
	if cfg.Redis.Addr != "" {
		cli := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := cli.Ping(ctx).Err(); err != nil {
			log.Warn("Redis at %s unreachable, profiles are not cached: %v", cfg.Redis.Addr, err)
			cli.Close()
		} else {
			rc := directory.NewRedisCache(cli, cfg.Redis.ProfileCacheTTL)
			defer rc.Close()
			cache = rc
			log.Info("Caching profiles in redis at %s for %s", cfg.Redis.Addr, cfg.Redis.ProfileCacheTTL)
		}
	}

	var outbox notifications.Outbox
	if len(cfg.Kafka.Brokers) > 0 {
		publisher := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.NotificationTopic)
		defer publisher.Close()
		outbox = publisher
		log.Info("Publishing notifications to kafka topic %s", cfg.Kafka.NotificationTopic)
	}

	profiles := directory.New(db, cache)
	messages := messaging.NewService(db)
	store := notifications.NewStore(db, outbox)
	lifecycle := booking.NewLifecycle(db, store, profiles)

	wsManager := websocket.NewManager(hub, messages, store)
	wsManager.CheckOrigin = originChecker(cfg.AllowedOrigins)
	go wsManager.Run(ctx)

	router := gin.Default()
	router.Use(cors.New(corsConfig(cfg.AllowedOrigins)))

	api.RegisterRoutes(router, api.Handlers{
		Auth:          api.NewAuthHandler(db, profiles),
		Profiles:      api.NewProfileHandler(profiles),
		Messages:      api.NewMessageHandler(messages, messaging.NewIndex(db, db, profiles)),
		Notifications: api.NewNotificationHandler(store),
		Bookings:      api.NewBookingHandler(lifecycle),
		WS:            wsManager,
		Hub:           hub,
	})

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Info("Server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	// Give the server 5 seconds to finish processing remaining requests
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown: %v", err)
	}

	log.Info("Server exited properly")
}

// openChangeFeed connects the hub to the backend's row changes: LISTEN/NOTIFY
// for postgres, direct publishing for the in-memory store
func openChangeFeed(ctx context.Context, db database.DBInterface, dsn string) *realtime.Hub {
	if mem, ok := db.(*database.MemoryDB); ok {
		hub := realtime.NewHub(nil)
		mem.SetPublisher(hub.Publish)
		return hub
	}

	pg, ok := db.(*database.PostgresDB)
	if !ok {
		fatal("No change feed for database %T", db)
	}
	if err := database.Migrate(ctx, pg.DB); err != nil {
		fatal("Failed to apply schema: %v", err)
	}

	listener := database.NewListener(dsn, pg)
	hub := realtime.NewHub(listener)
	listener.Start(hub.Publish)
	go func() {
		<-ctx.Done()
		listener.Close()
	}()
	return hub
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		log.Warn("ALLOWED_ORIGINS is empty, allowing every origin")
		cfg.AllowAllOrigins = true
		cfg.AllowCredentials = false
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}

// originChecker limits websocket upgrades to the configured origins.
// Requests without an Origin header come from non-browser clients.
func originChecker(origins []string) func(*http.Request) bool {
	if len(origins) == 0 {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || slices.Contains(origins, origin) {
			return true
		}
		log.Warn("Rejected websocket origin %s", origin)
		return false
	}
}
