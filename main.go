package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BinateWizard/smartfirex-cpe/config"
	"github.com/BinateWizard/smartfirex-cpe/log"
	"github.com/BinateWizard/smartfirex-cpe/models"
	"github.com/BinateWizard/smartfirex-cpe/services"

	"go.uber.org/zap"
)

func main() {
	// Initialize structured logger
	logger := log.GetInstance()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// Validate required configuration
	if cfg.FirebaseDbUrl == "" || cfg.FirebaseServiceAccountJSON == "" {
		logger.Fatal("Firebase configuration is required")
	}
	if cfg.TelegramBotToken == "" || cfg.TelegramChatID == "" {
		logger.Fatal("Telegram configuration is required")
	}

	// Initialize services
	firebaseService, err := services.NewFirebaseService(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize Firebase service", zap.Error(err))
	}
	defer firebaseService.Close()

	telegramService, err := services.NewTelegramService(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize Telegram service", zap.Error(err))
	}

	rabbitService, err := services.NewRabbitMQService(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize RabbitMQ service", zap.Error(err))
	}
	defer rabbitService.Close()

	classifier := services.NewAlertClassifier()

	var siren services.SirenController = services.NewHardwareSirenService(logger, cfg.HardwareAlertURL)
	if cfg.HardwareAlertURL == "" {
		logger.Warn("HARDWARE_ALERT_URL not set, siren and vibration commands will fail locally")
	} else {
		logger.Info("Hardware siren service initialized", zap.String("url", cfg.HardwareAlertURL))
	}

	dispatcher := services.NewAlertDispatcher(siren, telegramService, logger)

	watcherManager := services.NewWatcherManager(classifier, firebaseService, dispatcher.Dispatch, logger)

	recorder := services.NewRecorder(classifier, firebaseService, firebaseService, firebaseService, logger)

	offline := services.NewOfflineRegistrationService(firebaseService, firebaseService, logger)

	// Send startup notification
	if err := telegramService.SendStartupMessage(); err != nil {
		logger.Warn("Failed to send startup message", zap.Error(err))
	}

	logger.Info("SmartFireX CPE alert service started",
		zap.Duration("feed_poll_interval", cfg.FeedPollInterval),
		zap.String("rabbitmq_queue", cfg.RabbitMQQueue),
		zap.String("http_listen_addr", cfg.HTTPListenAddr),
	)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Channel to signal when cleanup is complete
	cleanupDone := make(chan bool, 1)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, stopping services")

		cancel()

		select {
		case <-cleanupDone:
			logger.Info("Cleanup completed successfully")
		case <-time.After(5 * time.Second):
			logger.Warn("Cleanup timeout, forcing exit")
		}

		logger.Info("SmartFireX CPE alert service stopped")
		os.Exit(0)
	}()

	// Live feed: RabbitMQ -> watcher -> dispatcher. Updates for the same
	// device are handled synchronously inside the watcher, so classification
	// and latch update never overlap per device.
	updateChan := make(chan *models.DeviceStateUpdate, 100)

	go func() {
		if err := rabbitService.Consume(ctx, updateChan); err != nil {
			logger.Error("RabbitMQ consumer stopped", zap.Error(err))
		}
	}()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-updateChan:
				if !ok {
					return
				}
				watcherManager.HandleUpdate(ctx, update)
			}
		}
	}()

	// Durable feed: RTDB polling -> recorder. The recorder keeps its own
	// latch and reaches its own classification, independent of any watcher.
	err = firebaseService.SubscribeToDeviceFeed(ctx, func(update *models.DeviceStateUpdate) {
		if err := recorder.HandleUpdate(ctx, update); err != nil {
			logger.Error("Recorder failed to handle update",
				zap.String("device_id", update.DeviceID),
				zap.Error(err),
			)
		}
	})
	if err != nil {
		logger.Fatal("Failed to subscribe to device feed", zap.Error(err))
	}

	// Offline-registration entry point
	mux := http.NewServeMux()
	mux.Handle("/api/v1/notifications/offline", offline.Handler())

	httpServer := &http.Server{
		Addr:    cfg.HTTPListenAddr,
		Handler: mux,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPListenAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	logger.Info("Monitoring started, waiting for device states")

	// Wait for shutdown signal
	<-ctx.Done()

	// Perform cleanup
	logger.Info("Starting cleanup")

	watcherManager.StopAll()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down HTTP server", zap.Error(err))
	}

	if err := rabbitService.Close(); err != nil {
		logger.Error("Error closing RabbitMQ service", zap.Error(err))
	}

	if err := firebaseService.Close(); err != nil {
		logger.Error("Error closing Firebase service", zap.Error(err))
	} else {
		logger.Info("Firebase service closed")
	}

	// Signal cleanup completion
	cleanupDone <- true
}
