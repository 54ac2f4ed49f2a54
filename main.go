package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/codecollab/collab-server/handlers"
	"github.com/codecollab/collab-server/internal/config"
	"github.com/codecollab/collab-server/internal/database"
	"github.com/codecollab/collab-server/internal/document/handler"
	"github.com/codecollab/collab-server/internal/document/repository"
	"github.com/codecollab/collab-server/internal/document/service"
	"github.com/codecollab/collab-server/internal/oidc"
	"github.com/codecollab/collab-server/internal/realtime"
	"github.com/codecollab/collab-server/internal/storage"
	"github.com/codecollab/collab-server/internal/tokens"
	"github.com/codecollab/collab-server/internal/users"
	"github.com/codecollab/collab-server/pkg/logger"
	"github.com/codecollab/collab-server/pkg/metrics"
	"github.com/codecollab/collab-server/pkg/middleware"
)

func main() {
	// initialize logging (can be controlled with LOG_LEVEL env: debug|info|warn|error|fatal)
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Init(cfg.LogLevel)
	logger.Infof("config loaded: keycloak=%v mongo=%v redis=%v minio=%v", cfg.Keycloak.URL != "", cfg.MongoDB.URI != "", cfg.Redis.Host != "", cfg.MinIO.Enabled())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ready := handlers.NewReadiness()

	r := gin.New()
	// Lightweight CORS middleware: set common headers and respond to OPTIONS.
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(200)
			return
		}
		c.Next()
	})
	r.Use(gin.Logger(), gin.Recovery())

	// Redis backs the shared rate limiter and the cross-instance room relay
	var redisClient *redis.Client
	if addr := cfg.Redis.Addr(); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s): %v", addr, err)
			_ = client.Close()
		} else {
			redisClient = client
			defer redisClient.Close()
			logger.Infof("connected to Redis at %s", addr)
		}
		ready.Add("redis", redisCheck(redisClient))
	}

	verifier := buildVerifier(ctx, cfg)
	if verifier == nil {
		ready.Add("identity", nil)
	} else {
		ready.Add("identity", func(context.Context) error { return nil })
	}

	// Document store and user directory: MongoDB when configured, memory otherwise
	var (
		docRepo  repository.Repository
		userRepo users.UserRepository
	)
	if cfg.MongoDB.URI != "" {
		client, err := database.Connect(ctx, database.MongoOptions{
			URI:      cfg.MongoDB.URI,
			Timeout:  cfg.MongoDB.Timeout,
			Attempts: 5,
		})
		if err != nil {
			logger.Fatalf("could not connect to MongoDB: %v", err)
		}
		defer func() { _ = client.Disconnect(context.Background()) }()
		db := client.Database(cfg.MongoDB.Database)

		mongoDocs := repository.NewMongoRepo(db.Collection("documents"), db.Collection("messages"))
		mongoUsers := users.NewMongoUserRepository(db.Collection("users"))
		if err := mongoDocs.EnsureIndexes(ctx); err != nil {
			logger.Fatalf("failed to create document indexes: %v", err)
		}
		if err := mongoUsers.EnsureIndexes(ctx); err != nil {
			logger.Warnf("failed to create user indexes: %v", err)
		}
		docRepo, userRepo = mongoDocs, mongoUsers
		ready.Add("mongodb", func(ctx context.Context) error { return client.Ping(ctx, nil) })
		logger.Infof("using MongoDB database %q", cfg.MongoDB.Database)
	} else {
		logger.Warnf("MONGODB_URI not set: documents and users are kept in memory")
		docRepo, userRepo = repository.NewMemoryRepo(), users.NewMemoryUserRepository()
		ready.Add("store", func(context.Context) error { return nil })
	}
	userSvc := users.NewService(userRepo)

	// Session registry, optionally relayed across instances
	rooms := realtime.NewRegistry(logger.With("component", "rooms"))
	if cfg.Realtime.RelayEnabled {
		if redisClient == nil {
			logger.Warnf("WS_RELAY_ENABLED set but Redis is unavailable: rooms stay local to this instance")
		} else {
			relay := realtime.NewRedisRelay(redisClient, cfg.Realtime.RelayPrefix, rooms, logger.With("component", "relay"))
			if err := relay.Start(ctx); err != nil {
				logger.Fatalf("failed to start room relay: %v", err)
			}
			rooms.SetRelay(relay)
			logger.Infof("room relay enabled on %s*", cfg.Realtime.RelayPrefix)
		}
	}

	svc := service.New(docRepo, userSvc, rooms, logger.With("component", "coordinator"))
	share := service.NewShareGateway(docRepo, cfg.Share.MaxAttempts, logger.With("component", "share"))

	if cfg.MinIO.Enabled() {
		store, err := storage.NewMinIOStorage(ctx, &cfg.MinIO)
		if err != nil {
			logger.Warnf("export storage unavailable: %v", err)
			ready.Add("minio", nil)
		} else {
			svc.SetExporter(store)
			ready.Add("minio", func(context.Context) error { return nil })
			logger.Infof("exports go to bucket %q at %s", cfg.MinIO.Bucket, cfg.MinIO.Endpoint)
		}
	}

	// Optional global rate limiter (per-user when authenticated, otherwise per-IP)
	var limiter gin.HandlerFunc
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && redisClient != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			limiter = middleware.RedisRateLimitMiddleware(redisClient, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win)
		} else {
			limiter = middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
		}
		logger.Infof("rate limiter enabled (redis=%v)", cfg.RateLimit.UseRedis && redisClient != nil)
	}

	handlers.RegisterHealth(r, ready)
	handlers.RegisterSwagger(r)
	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	var extra []gin.HandlerFunc
	if limiter != nil {
		extra = append(extra, limiter)
	}
	if verifier != nil {
		auth := middleware.AuthMiddleware(verifier)
		handler.New(svc, share, logger.With("component", "http")).Register(api, auth, extra...)
		handlers.RegisterMe(api.Group("/v1"), auth, userSvc)

		policy, _ := realtime.ParseOverflowPolicy(cfg.Realtime.OverflowPolicy)
		ws := handler.NewWSHandler(svc, verifier, handler.WSOptions{
			Conn: realtime.ConnConfig{
				WriteWait:      cfg.Realtime.WriteWait,
				PongWait:       cfg.Realtime.PongWait,
				PingPeriod:     cfg.Realtime.PingPeriod,
				MaxMessageSize: cfg.Realtime.MaxMessageSize,
			},
			QueueSize:  cfg.Realtime.SendQueueSize,
			Overflow:   policy,
			EventRPS:   cfg.Realtime.EventRPS,
			EventBurst: cfg.Realtime.EventBurst,
		}, logger.With("component", "ws"))
		r.GET("/ws", ws.Serve)
	} else {
		logger.Warnf("no identity verifier: only public share links and ops endpoints are served")
		handler.New(svc, share, logger.With("component", "http")).Register(api, func(c *gin.Context) {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "authentication not configured"})
		}, extra...)
	}

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infof("starting collaboration service on %s (env: %s)", addr, cfg.Server.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server forced to shutdown: %v", err)
	}
	logger.Infof("server stopped")
}

// buildVerifier picks the identity verifier: Keycloak OIDC, then the HS256
// secret, then the insecure claims parser when explicitly allowed.
func buildVerifier(ctx context.Context, cfg *config.Config) middleware.Verifier {
	if cfg.Keycloak.URL != "" && cfg.Keycloak.ClientID != "" {
		issuer := cfg.Keycloak.URL
		if cfg.Keycloak.Realm != "" {
			issuer = strings.TrimRight(cfg.Keycloak.URL, "/") + "/realms/" + cfg.Keycloak.Realm
		}
		ver, err := oidc.NewVerifier(ctx, issuer, cfg.Keycloak.ClientID)
		if err == nil {
			logger.Infof("using OIDC verifier for issuer %s", ver.Issuer())
			return ver
		}
		logger.Warnf("failed to initialize OIDC verifier: %v", err)
	}
	if cfg.JWT.Secret != "" {
		logger.Infof("using HS256 token verifier")
		return tokens.NewHS256Verifier(cfg.JWT.Secret)
	}
	if cfg.JWT.AllowInsecureToken {
		logger.Warn("enabling insecure token verifier (integration mode)")
		return oidc.NewInsecureVerifier()
	}
	return nil
}

func redisCheck(client *redis.Client) handlers.Check {
	if client == nil {
		return nil
	}
	return func(ctx context.Context) error { return client.Ping(ctx).Err() }
}
