package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"aggregat4/linkbook/internal/config"
	"aggregat4/linkbook/internal/importer"
	"aggregat4/linkbook/internal/logger"
	"aggregat4/linkbook/internal/repository"
	"aggregat4/linkbook/internal/service"
)

func main() {
	var importFile, importUserId, importFormat string
	flag.StringVar(&importFile, "importFile", "", "A bookmarks.html or JSON file to import in the database")
	flag.StringVar(&importUserId, "importUserId", "", "The user id (OIDC subject) to import the bookmarks for")
	flag.StringVar(&importFormat, "format", "", "html, json or pinboard; guessed from the file name when empty")
	flag.Parse()

	if importFile == "" || importUserId == "" {
		fmt.Fprintln(os.Stderr, "require importFile and importUserId parameters when importing")
		flag.Usage()
		os.Exit(2)
	}
	if err := config.LoadDotEnv(); err != nil {
		panic(fmt.Errorf("error loading .env file: %w", err))
	}
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.PrettyLog)
	defer func() { _ = log.Sync() }()

	format, err := importer.DetectFormat(importFile, importFormat)
	if err != nil {
		log.Error("Unknown import format", logger.Error(err))
		os.Exit(1)
	}
	store := &repository.Store{Log: log}
	if err = store.InitAndVerifyDb(cfg.DBFilename); err != nil {
		log.Error("Opening database failed", logger.Error(err))
		os.Exit(1)
	}
	defer store.Close()

	// no metadata fetching for bulk imports
	bookmarks := service.NewBookmarks(store, nil, cfg, time.Now, log)
	count, err := importer.ImportFile(context.Background(), bookmarks, importFile, importUserId, format, log)
	if err != nil {
		log.Error("Error importing bookmarks", logger.Int("imported", count), logger.Error(err))
		store.Close()
		os.Exit(1)
	}
	log.Info("Import finished", logger.Int("imported", count), logger.String("user", importUserId))
}
