package main

import (
	"context"
	"errors"
	"log"
	"time"

	"marketchat/config"
	"marketchat/internal/events"
	"marketchat/internal/handler"
	"marketchat/internal/identity"
	"marketchat/internal/redis"
	"marketchat/internal/repository"
	"marketchat/internal/repository/memory"
	"marketchat/internal/server"
	"marketchat/internal/services"
	"marketchat/internal/storage"
	"marketchat/internal/websocket"
	"marketchat/pkg/database"
	"marketchat/pkg/logger"
)

func main() {
	cfg := config.LoadConfig()

	mode := logger.DevelopmentMode
	if cfg.AppMode == server.ReleaseMode {
		mode = logger.ProductionMode
	}
	l := logger.New(mode)
	logger.SetGlobalLogger(l)
	defer l.Sync()

	ctx := context.Background()

	store, health := openStore(ctx, cfg, l)
	defer database.Close()

	var (
		bus      events.Bus = events.NewLocalBus()
		slots    services.CallSlots
		limiter  services.RateLimiter
		presence websocket.Presence
	)
	rdb := redis.NewClient(redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := redis.Ping(ctx, rdb); err != nil {
		l.Warnf("⚠️ Redis unavailable, running single-node without rate limits: %v", err)
		_ = rdb.Close()
	} else {
		defer rdb.Close()
		rl := redis.DefaultRateLimitConfig()
		rl.MessageLimit = cfg.MessageRateLimit
		rl.CallLimit = cfg.CallRateLimit
		bus = events.NewRedisBus(rdb, l)
		slots = redis.NewCallSlotStore(rdb)
		limiter = redis.NewRateLimiter(rdb, rl)
		presence = redis.NewPresenceStore(rdb, 0)
		l.Infof("✅ Redis connected at %s:%s", cfg.RedisHost, cfg.RedisPort)
	}

	verifier, err := newVerifier(ctx, cfg)
	if err != nil {
		log.Fatalf("❌ Identity verifier: %v", err)
	}

	msgOpts := []services.MessageServiceOption{
		services.WithMaxUpload(int64(cfg.MaxUploadMB) << 20),
	}
	if limiter != nil {
		msgOpts = append(msgOpts, services.WithRateLimiter(limiter))
	}
	if cfg.S3Bucket != "" {
		media, err := storage.NewClient(ctx, storage.S3Config{
			Region:     cfg.S3Region,
			Bucket:     cfg.S3Bucket,
			AccessKey:  cfg.S3AccessKey,
			SecretKey:  cfg.S3SecretKey,
			Endpoint:   cfg.S3Endpoint,
			PublicBase: cfg.S3PublicBase,
		})
		if err != nil {
			log.Fatalf("❌ S3 client: %v", err)
		}
		msgOpts = append(msgOpts, services.WithMediaStore(media))
	} else {
		l.Warnf("⚠️ S3_BUCKET not set, media uploads disabled")
	}

	publisher := services.NewEventPublisher(bus, l)
	linker := services.NewMembershipLinker(store.Memberships, cfg.LinkRetryAttempts, cfg.LinkRetryBackoff, l)
	personaService := services.NewPersonaService(store.Personas, l)
	directory := services.NewRoomDirectory(store.Personas, store.Memberships, store.Rooms, l)
	roomService := services.NewRoomService(store.Personas, store.Rooms, linker, publisher, l)
	messageService := services.NewMessageService(store.Rooms, store.Messages, bus, l, msgOpts...)
	callService := services.NewCallService(store.Rooms, store.Calls, slots, limiter, bus, cfg.CallRingTimeout, l)

	srv := server.New(cfg, l)
	srv.SetupRoutes(&server.Handlers{
		Personas: handler.NewPersonaHandler(personaService, directory),
		Rooms:    handler.NewRoomHandler(personaService, roomService),
		Messages: handler.NewMessageHandler(personaService, messageService, int64(cfg.MaxUploadMB)<<20),
		Calls:    handler.NewCallHandler(personaService, callService),
		Live:     websocket.NewHandler(verifier, personaService, roomService, bus, presence, l),
	}, verifier, health)

	if err := srv.Start(); err != nil {
		log.Fatalf("❌ Server: %v", err)
	}
}

func openStore(ctx context.Context, cfg *config.Config, l *logger.Logger) (*repository.Store, server.HealthFunc) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		l.Warnf("⚠️ Using the in-memory store, data is lost on restart")
		return memory.New().Repositories(), nil
	}

	db, err := database.Connect(ctx, cfg)
	if err != nil {
		log.Fatalf("❌ Database connection failed: %v", err)
	}
	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := repository.InitSchema(initCtx, db); err != nil {
		log.Fatalf("❌ Schema init failed: %v", err)
	}
	l.Infof("✅ Database ready")
	return repository.NewPostgresStore(db), database.HealthCheck
}

func newVerifier(ctx context.Context, cfg *config.Config) (identity.Verifier, error) {
	switch cfg.IdentityProvider {
	case config.IdentityProviderFirebase:
		return identity.NewFirebaseVerifier(ctx, cfg.FirebaseProjectID, cfg.FirebaseCredentialsFile)
	case config.IdentityProviderJWT:
		if cfg.JWTSecret == "" {
			return nil, errors.New("JWT_SECRET is required")
		}
		return identity.NewJWTVerifier(cfg.JWTSecret), nil
	default:
		return nil, errors.New("unknown IDENTITY_PROVIDER " + cfg.IdentityProvider)
	}
}
