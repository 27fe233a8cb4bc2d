package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tropicaldog17/finledger/internal/config"
	"github.com/tropicaldog17/finledger/internal/db"
	"github.com/tropicaldog17/finledger/internal/handlers"
	"github.com/tropicaldog17/finledger/internal/logger"
	"github.com/tropicaldog17/finledger/internal/repositories"
	"github.com/tropicaldog17/finledger/internal/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logger.ForEnv(cfg.LogEnv)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Database connection
	database, err := db.Connect(cfg.DB)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close()

	if err := database.Health(); err != nil {
		log.Fatal("Database health check failed", zap.Error(err))
	}
	if err := database.Migrate(context.Background()); err != nil {
		log.Fatal("Failed to migrate database", zap.Error(err))
	}
	log.Info("Database connection established", zap.String("driver", cfg.DB.Driver))

	// Repositories
	assetRepo := repositories.NewAssetRepository(database)
	accountRepo := repositories.NewAccountRepository(database)
	ledgerRepo := repositories.NewLedgerRepository(database)
	valueRepo := repositories.NewAssetValueRepository(database)

	// Services
	catalog := services.NewCatalogService(assetRepo, accountRepo, log)
	ledger := services.NewLedgerService(ledgerRepo)
	prices := services.NewPriceTable(valueRepo)
	valuation := services.NewValuationService(ledger, prices, accountRepo, assetRepo)
	ingest := services.NewIngestService(ledger, prices, catalog, log)
	rebalancer := services.NewRebalanceService(ledger, prices, assetRepo, log)

	var populator handlers.PricePopulator
	if provider := services.NewProviderFromConfig(cfg); provider != nil {
		populator = services.NewPricePopulationService(provider, prices, assetRepo, services.PopulationOptions{
			RatePerSec: cfg.PopulateRatePerSec,
			MaxRetries: cfg.PopulateMaxRetries,
		}, log)
		log.Info("Price population enabled", zap.String("provider", provider.Name()))
	}

	router := handlers.NewRouter(handlers.Handlers{
		Valuation: handlers.NewValuationHandler(valuation, catalog, log),
		Assets:    handlers.NewAssetHandler(catalog, prices, populator, log),
		Ingest:    handlers.NewIngestHandler(ingest, catalog, log),
		Rebalance: handlers.NewRebalanceHandler(rebalancer, catalog, log),
		Health:    database.Health,
	}, log)

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Server starting", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error("Graceful shutdown failed", zap.Error(err))
	}
	log.Info("Server stopped")
}
