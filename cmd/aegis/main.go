package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"

	"github.com/phishguard/aegis/adapters/events"
	"github.com/phishguard/aegis/adapters/store"
	"github.com/phishguard/aegis/adapters/tokenizer"
	"github.com/phishguard/aegis/internal/config"
	"github.com/phishguard/aegis/ports"
	"github.com/phishguard/aegis/service"
	transport "github.com/phishguard/aegis/transport/http"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the config file")
	flag.Parse()

	cfg := config.MustLoad(*configPath)
	logger := newLogger(cfg.Env)

	if err := run(cfg, logger); err != nil {
		logger.Error("service stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	signKey, err := loadSigningKey(cfg.Auth.SigningKeyFile, logger)
	if err != nil {
		return fmt.Errorf("failed to load signing key: %w", err)
	}

	credStore, publisher, err := buildBackends(cfg, logger)
	if err != nil {
		return err
	}

	authService := service.NewAuthService(
		credStore,
		tokenizer.NewJWTTokenizer(signKey, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL),
		events.NewWatermillPublisher(publisher),
		logger,
		service.Config{
			RefreshTokenTTL: cfg.Auth.RefreshTokenTTL,
			VerifyTokenTTL:  cfg.Auth.VerifyTokenTTL,
			ResetTokenTTL:   cfg.Auth.ResetTokenTTL,
		},
	)

	server := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      transport.SetupRouter(authService),
		ReadTimeout:  cfg.HTTPServer.ReadTimeout,
		WriteTimeout: cfg.HTTPServer.WriteTimeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "address", cfg.HTTPServer.Address, "env", cfg.Env)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

// buildBackends wires the credential store and the mail event publisher. A
// configured Redis URL backs both; otherwise everything runs in-process.
func buildBackends(cfg *config.Config, logger *slog.Logger) (ports.CredentialStore, message.Publisher, error) {
	if cfg.Redis.URL == "" {
		logger.Warn("no redis url configured, using in-memory store")
		pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NewSlogLogger(logger))
		return store.NewMemoryStore(), pubSub, nil
	}

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	publisher, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{Client: client},
		watermill.NewSlogLogger(logger),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create redis publisher: %w", err)
	}

	return store.NewRedisStore(client), publisher, nil
}

// loadSigningKey reads a PEM-encoded ECDSA P-256 private key, or generates
// an ephemeral one when no file is configured. Ephemeral keys invalidate
// every outstanding token on restart.
func loadSigningKey(path string, logger *slog.Logger) (*ecdsa.PrivateKey, error) {
	if path == "" {
		logger.Warn("no signing key configured, generating an ephemeral key")
		return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	}

	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(payload)
	if block == nil {
		return nil, errors.New("no PEM block in signing key file")
	}

	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	return key, nil
}

func newLogger(env string) *slog.Logger {
	if env == "local" {
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
}
