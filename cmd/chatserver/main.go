package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tavarakyyti/chat/internal/chat"
	"github.com/tavarakyyti/chat/internal/config"
	"github.com/tavarakyyti/chat/internal/httpapi"
	"github.com/tavarakyyti/chat/internal/identity"
	"github.com/tavarakyyti/chat/internal/messaging"
	"github.com/tavarakyyti/chat/internal/ratelimit"
	"github.com/tavarakyyti/chat/internal/realtime"
	"github.com/tavarakyyti/chat/internal/report"
	"github.com/tavarakyyti/chat/internal/storage/memory"
	"github.com/tavarakyyti/chat/internal/storage/postgres"
	"github.com/tavarakyyti/chat/internal/upload"
	"github.com/tavarakyyti/chat/internal/ws"
)

type stores struct {
	conversations chat.ConversationStore
	messages      chat.MessageStore
	reports       report.Store
	db            *sql.DB
}

func openStores(ctx context.Context, cfg config.StoreConfig) (*stores, error) {
	if cfg.Driver != config.DriverPostgres {
		return &stores{
			conversations: memory.NewConversationStore(),
			messages:      memory.NewMessageStore(),
			reports:       memory.NewReportStore(),
		}, nil
	}

	if err := postgres.MigrateUp(cfg.DatabaseURL); err != nil {
		return nil, err
	}
	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	return &stores{
		conversations: postgres.NewConversationStore(db),
		messages:      postgres.NewMessageStore(db),
		reports:       postgres.NewReportStore(db),
		db:            db,
	}, nil
}

func openBus(cfg config.NATSConfig) (messaging.Bus, error) {
	if cfg.URL == "" {
		return messaging.NewLocalBus(), nil
	}
	natsConfig := messaging.DefaultNATSConfig()
	natsConfig.URL = cfg.URL
	return messaging.NewNATSClient(natsConfig)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	ctx := context.Background()

	st, err := openStores(ctx, cfg.Store)
	if err != nil {
		log.Fatalf("failed to open %s store: %v", cfg.Store.Driver, err)
	}

	bus, err := openBus(cfg.NATS)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	broadcaster := realtime.NewBroadcaster(bus)
	conversations := chat.NewConversationService(st.conversations)
	messages := chat.NewMessageService(st.conversations, st.messages, broadcaster)
	conversations.SetSystemPoster(messages)

	// --- Redis (shared message rate limit) ---
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			cancel()
			log.Fatalf("failed to connect to Redis: %v", err)
		}
		cancel()
		messages.SetLimiter(ratelimit.NewMessageLimiter(ratelimit.NewLimiter(rdb), ratelimit.Rule{
			Key:    ratelimit.RuleMessage.Key,
			Limit:  cfg.RateLimit.MessageLimit,
			Window: cfg.RateLimit.MessageWindow,
		}))
	}

	// --- Attachments ---
	var objects upload.ObjectStore = upload.NewMemoryStore()
	var gridfs *upload.GridFSStore
	if cfg.Upload.MongoURI != "" {
		gridfs, err = upload.NewGridFSStore(ctx, upload.GridFSConfig{
			URI:      cfg.Upload.MongoURI,
			Database: cfg.Upload.Database,
			Bucket:   cfg.Upload.Bucket,
		})
		if err != nil {
			log.Fatalf("failed to open attachment store: %v", err)
		}
		objects = gridfs
	}
	uploads := upload.NewService(objects, upload.Config{
		MaxBytes: cfg.Upload.MaxBytes,
		BaseURL:  cfg.Upload.PublicBaseURL,
	})

	verifier := identity.NewVerifier(cfg.Auth.JWTSecret)

	// --- Realtime ---
	gateway := realtime.NewGateway(conversations, messages)
	if err := broadcaster.Attach(gateway); err != nil {
		log.Fatalf("failed to subscribe to room events: %v", err)
	}
	dispatcher := ws.NewMessageDispatcher()
	gateway.Register(dispatcher)

	wsConfig := ws.DefaultServerConfig()
	wsConfig.MaxConnections = cfg.WS.MaxConnections
	wsConfig.ReadTimeout = cfg.WS.ReadTimeout
	wsConfig.WriteTimeout = cfg.WS.WriteTimeout
	wsConfig.Heartbeat.Interval = cfg.WS.HeartbeatInterval
	wsConfig.Heartbeat.Timeout = cfg.WS.HeartbeatTimeout

	wsServer := ws.NewServer(wsConfig, verifier, dispatcher.Dispatch)
	wsServer.SetOnDisconnect(gateway.Disconnect)
	wsServer.Start()

	handler := httpapi.NewHandler(httpapi.Deps{
		Conversations: conversations,
		Messages:      messages,
		Reports:       report.NewService(st.reports),
		Uploads:       uploads,
		Verifier:      verifier,
		Limiter: ratelimit.NewHTTPLimiter(ratelimit.HTTPConfig{
			RPS:   cfg.RateLimit.HTTPPerSec,
			Burst: cfg.RateLimit.HTTPBurst,
		}),
		WS:      wsServer,
		Health:  wsServer.HandleHealth,
		Origins: cfg.Server.WebOrigins,
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("chat server starting")
	log.Printf("  %s", cfg)

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, initiating graceful shutdown...", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown error: %v", err)
	}
	// Hijacked WebSocket connections are not tracked by http.Server.
	if err := wsServer.Shutdown(); err != nil {
		log.Printf("ws shutdown error: %v", err)
	}
	bus.Close()
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			log.Printf("redis close error: %v", err)
		}
	}
	if gridfs != nil {
		if err := gridfs.Close(shutdownCtx); err != nil {
			log.Printf("mongodb close error: %v", err)
		}
	}
	if st.db != nil {
		if err := st.db.Close(); err != nil {
			log.Printf("postgres close error: %v", err)
		}
	}
	log.Printf("shutdown complete")
}
