package main

import (
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/pflag"

	"github.com/conorfennell/drillcard/internal/catalog"
	"github.com/conorfennell/drillcard/internal/config"
	"github.com/conorfennell/drillcard/internal/remote"
	"github.com/conorfennell/drillcard/internal/storage"
	"github.com/conorfennell/drillcard/internal/web"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.DBPath)

	cards, err := catalog.LoadWithRepos(cfg.CatalogDirs, cfg.CatalogRepos, cfg.ReposDir)
	if err != nil {
		log.Fatalf("Failed to load catalog: %v", err)
	}
	if len(cards) == 0 {
		slog.Warn("catalog is empty, nothing to practice", "dirs", cfg.CatalogDirs)
	}

	// Sync is optional: with no remote store the app still works, keeping
	// progress in the local database only.
	var store remote.Store
	if cfg.RedisAddr != "" {
		rs, err := remote.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			slog.Warn("remote store unreachable, running offline", "addr", cfg.RedisAddr, "error", err)
		} else {
			defer rs.Close()
			store = rs
		}
	}

	srv := web.NewServer(db, cards, store)
	slog.Info("listening", "addr", cfg.Listen, "cards", len(cards), "sync", store != nil)
	log.Fatal(http.ListenAndServe(cfg.Listen, srv))
}
