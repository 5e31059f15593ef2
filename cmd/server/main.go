package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatwire/auth"
	"chatwire/bridge"
	"chatwire/crypto"
	"chatwire/internal"
	"chatwire/presence"
	"chatwire/server"
	"chatwire/services"
	"chatwire/store"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component and owns the process lifecycle so deferred
// cleanup executes before exit.
func run() error {
	// 1. Configuration & logger. The config is built once and passed
	// explicitly; nothing reads the environment after this point.
	_ = godotenv.Load()

	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: internal.LevelFromString(config.LogLevel),
	}))

	// 2. Storage. Unavailability here is fatal to the process.
	db, err := store.Open(config.DBPath)
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing database...")
		_ = db.Close()
	}()

	// 3. Crypto engine. A missing master key falls back to an ephemeral
	// one: stored history will not survive a restart.
	var engine *crypto.Engine
	if config.MasterKeyHex != "" {
		if engine, err = crypto.NewEngine(config.MasterKeyHex); err != nil {
			return err
		}
	} else {
		if engine, err = crypto.NewEphemeralEngine(); err != nil {
			return err
		}
		log.Warn("MASTER_KEY_HEX not set, using an ephemeral key for this process only")
	}

	// 4. Repositories & services
	userRepo := store.NewUserRepository(db)
	sessionRepo := store.NewSessionRepository(db)
	groupRepo := store.NewGroupRepository(db)
	friendRepo := store.NewFriendRepository(db)
	messageRepo := store.NewMessageRepository(db)

	hasher := auth.NewPasswordHasher(config.SaltLength)
	sessionExpiry := time.Duration(config.SessionExpiryDays) * 24 * time.Hour
	authService := services.NewAuthService(userRepo, sessionRepo, hasher, sessionExpiry, log)
	chatService := services.NewChatService(userRepo, groupRepo, messageRepo, engine, log)
	socialService := services.NewSocialService(userRepo, groupRepo, friendRepo, log)

	registry := presence.NewRegistry(log)

	// 5. Fan-out bridge. Without a broker the bridge serves local
	// sockets only.
	var broker *redis.Client
	if config.BrokerURL != "" {
		opts, err := redis.ParseURL(config.BrokerURL)
		if err != nil {
			return fmt.Errorf("broker URL: %w", err)
		}
		broker = redis.NewClient(opts)
		defer broker.Close()
	} else {
		log.Warn("BROKER_URL not set, running in single-instance mode")
	}
	fanout := bridge.New(log, authService, userRepo, groupRepo, broker)

	// 6. Context & signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go fanout.Subscribe(ctx)

	// 7. Realtime endpoint on the secondary port
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", fanout.ServeWS)
	wsServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", config.Host, config.RealtimePort()),
		Handler: mux,
	}
	go func() {
		log.Info("Realtime endpoint listening", "address", wsServer.Addr)
		if err := wsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Realtime endpoint failed", "error", err)
			stop()
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = wsServer.Shutdown(shutdownCtx)
	}()

	// 8. Primary TCP protocol listener, blocks until shutdown
	srv := server.New(
		log,
		server.Config{
			Host:             config.Host,
			Port:             config.Port,
			MaxMessageLength: config.MaxMessageLength,
			ReadTimeout:      config.ReadTimeout,
			WriteTimeout:     config.WriteTimeout,
		},
		authService, chatService, socialService,
		userRepo, registry, fanout,
	)
	if err := srv.ListenAndServe(ctx); err != nil {
		return err
	}

	log.Info("Program stopped cleanly")
	return nil
}
