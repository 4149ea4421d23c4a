// Command kommo-sync pushes the current state of one lead to Kommo. It is
// the manual counterpart of the queue worker, useful after fixing a mapping.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/xavierca1/ligue-crm/internal/config"
	"github.com/xavierca1/ligue-crm/internal/infra/database"
	"github.com/xavierca1/ligue-crm/internal/infra/integration/kommo"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: kommo-sync <lead-id>")
		os.Exit(2)
	}

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	if cfg.KommoAPIToken == "" {
		logger.Fatal("KOMMO_API_TOKEN deve estar configurado no .env")
	}

	db, err := database.NewDBConnection(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database unavailable", zap.Error(err))
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	lead, err := database.NewLeadRepository(db).FindByID(ctx, os.Args[1])
	if err != nil {
		logger.Fatal("load lead", zap.String("lead_id", os.Args[1]), zap.Error(err))
	}

	client := kommo.NewClient(cfg.KommoAPIToken, cfg.KommoBaseURL, cfg.KommoStatusIDs, logger)
	if err := client.SyncStatus(ctx, lead); err != nil {
		logger.Fatal("sync failed", zap.Error(err))
	}

	fmt.Printf("Lead %s (%s) sincronizado com o Kommo\n", lead.Name, lead.Status)
}
