package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"

	"aggregat4/linkbook/internal/cache"
	"aggregat4/linkbook/internal/config"
	"aggregat4/linkbook/internal/crawler"
	"aggregat4/linkbook/internal/domain"
	"aggregat4/linkbook/internal/logger"
	"aggregat4/linkbook/internal/metadata"
	"aggregat4/linkbook/internal/middleware"
	"aggregat4/linkbook/internal/repository"
	"aggregat4/linkbook/internal/server"
	"aggregat4/linkbook/internal/service"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		panic(fmt.Errorf("error loading .env file: %w", err))
	}
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.PrettyLog)
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Error("Server stopped with error", logger.Error(err))
		os.Exit(1)
	}
}

func run(cfg domain.Configuration, log logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := &repository.Store{Log: log}
	if err := store.InitAndVerifyDb(cfg.DBFilename); err != nil {
		return err
	}
	defer store.Close()

	oidcSettings := config.RequireOidc()
	oidcMiddleware, err := middleware.NewOidcMiddleware(ctx, oidcSettings.IdpServer, oidcSettings.ClientID,
		oidcSettings.ClientSecret, oidcSettings.RedirectURI, log)
	if err != nil {
		return fmt.Errorf("initialising OIDC: %w", err)
	}

	metadataCache, closeCache, err := newMetadataCache(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeCache()
	fetcher := metadata.NewFetcher(&http.Client{}, metadataCache, log, metadata.OptionsFromConfig(cfg))
	bookmarks := service.NewBookmarks(store, fetcher, cfg, time.Now, log)
	defer bookmarks.Wait()

	quitChannel := make(chan struct{})
	defer close(quitChannel)
	crawler.New(store, cfg, log).Run(quitChannel)

	e := server.NewEcho(&server.Controller{
		Bookmarks: bookmarks,
		Settings:  service.NewSettings(store, time.Now, log),
		Store:     store,
		Config:    cfg,
		Log:       log,
	}, oidcMiddleware)

	serverErr := make(chan error, 1)
	go func() {
		log.Info("Starting server", logger.Int("port", cfg.ServerPort))
		serverErr <- e.Start(":" + strconv.Itoa(cfg.ServerPort))
	}()
	select {
	case err = <-serverErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// newMetadataCache uses redis when an address is configured so several instances share fetched
// metadata, and an in-process cache otherwise.
func newMetadataCache(ctx context.Context, cfg domain.Configuration, log logger.Logger) (cache.Cache[metadata.PageMetadata], func(), error) {
	ttl := time.Duration(cfg.MetadataCacheTTLSeconds) * time.Second
	if cfg.RedisAddr == "" {
		return cache.NewTTL[metadata.PageMetadata](ttl, time.Now), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connecting to redis at %s: %w", cfg.RedisAddr, err)
	}
	log.Info("Using redis metadata cache", logger.String("addr", cfg.RedisAddr))
	return cache.NewRedis[metadata.PageMetadata](client, "metadata", ttl, log), func() { _ = client.Close() }, nil
}
