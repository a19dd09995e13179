package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/safar/go-card-store/internal/config"
	"github.com/safar/go-card-store/internal/database"
	"github.com/safar/go-card-store/internal/logger"
	"github.com/safar/go-card-store/internal/migrate"
	"go.uber.org/zap"
)

func main() {
	statusOnly := flag.Bool("status", false, "print applied and pending migrations without applying")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall deadline")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	lg, err := logger.New(cfg.Logger)
	if err != nil {
		log.Fatalf("Init logger: %v", err)
	}
	defer lg.Sync()

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		lg.Fatal("connect to database", zap.Error(err))
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	m := migrate.New(db, lg)

	if !*statusOnly {
		applied, err := m.Run(ctx)
		if err != nil {
			lg.Error("migration failed", zap.Int("applied", applied), zap.Error(err))
			os.Exit(1)
		}
		lg.Info("migrations complete", zap.Int("applied", applied))
	}

	done, err := m.Status(ctx)
	if err != nil {
		lg.Fatal("read migration status", zap.Error(err))
	}
	for _, a := range done {
		fmt.Printf("%4d  %-28s applied %s\n", a.Version, a.Name, a.AppliedAt.Format(time.RFC3339))
	}

	pending, err := m.Pending(ctx)
	if err != nil {
		lg.Fatal("read pending migrations", zap.Error(err))
	}
	for _, p := range pending {
		fmt.Printf("%4d  %-28s pending\n", p.Version, p.Name)
	}
}
