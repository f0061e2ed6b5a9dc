package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"marketplace/internal/config"
	"marketplace/internal/db"
	"marketplace/internal/logger"

	"github.com/joho/godotenv"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "migration command: up|down|status|version|redo|list")
	flag.Parse()

	if *cmd == "list" {
		files, err := db.MigrationFiles()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to read migrations: %v\n", err)
			os.Exit(1)
		}
		for _, name := range files {
			fmt.Println(name)
		}
		return
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	logg = logger.New(logger.Options{ServiceName: "migrate", Level: logger.ParseLevel(cfg.App.LogLevel)})
	ctx := logg.WithFields(context.Background(), map[string]any{"env": cfg.App.Env, "cmd": *cmd})

	database, err := db.Connect(ctx, cfg.DB)
	if err != nil {
		logg.Error(ctx, "failed to connect database", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := db.Migrate(ctx, database.DB, *cmd, flag.Args()...); err != nil {
		logg.Error(ctx, "migration failed", err)
		os.Exit(1)
	}
	logg.Info(ctx, "migration finished")
}
