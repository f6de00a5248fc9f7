package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"settlement-service/config"
	"settlement-service/internal/api"
	"settlement-service/internal/broker"
	"settlement-service/internal/fees"
	"settlement-service/internal/redisclient"
	"settlement-service/internal/service"
	"settlement-service/internal/store"
	"settlement-service/internal/util"
	"settlement-service/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting settlement service")

	tp, err := util.InitTracer("settlement-service", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicSettlement)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	feeConfig, err := loadFeeConfig(cfg.Fees)
	if err != nil {
		log.Fatalf("Invalid fee configuration: %v", err)
	}

	cartService := service.NewCartService(db)
	orderService := service.NewOrderService(db, eventPublisher, service.NoShipping{}, feeConfig, cfg.Fees.OrderNumberPrefix)
	walletService := service.NewWalletService(db, redisClient, eventPublisher)
	payoutService := service.NewPayoutService(db, walletService, redisClient, eventPublisher)
	orchestrator := service.NewSettlementOrchestrator(db, redisClient, walletService)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	collaboratorConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicCollaborate, cfg.Kafka.ConsumerGroup)
	settlementWorker := worker.NewSettlementWorker(collaboratorConsumer, orchestrator)
	go func() {
		if err := settlementWorker.Start(workerCtx); err != nil {
			log.Printf("Settlement worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(cartService, orderService, walletService, payoutService)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	settlementWorker.Stop()

	log.Println("Server exited")
}

func loadFeeConfig(cfg config.FeesConfig) (fees.Config, error) {
	marketplaceRate, err := decimal.NewFromString(cfg.MarketplaceFeeRate)
	if err != nil {
		return fees.Config{}, fmt.Errorf("invalid marketplace fee rate %q: %w", cfg.MarketplaceFeeRate, err)
	}
	withholdingRate, err := decimal.NewFromString(cfg.WithholdingTaxRate)
	if err != nil {
		return fees.Config{}, fmt.Errorf("invalid withholding tax rate %q: %w", cfg.WithholdingTaxRate, err)
	}
	return fees.Config{
		MarketplaceFeeRate: marketplaceRate,
		WithholdingTaxRate: withholdingRate,
		CommissionEnabled:  cfg.CommissionEnabled,
	}, nil
}
