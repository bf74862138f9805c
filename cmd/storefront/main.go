package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/app"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

// setupLogger включает JSON-логи и уровень из конфигурации.
// Неизвестный уровень не ломает запуск: остаётся info.
func setupLogger(level string) error {
	log.SetFormatter(&log.JSONFormatter{})
	parsed, err := log.ParseLevel(level)
	if err != nil {
		log.SetLevel(log.InfoLevel)
		return err
	}
	log.SetLevel(parsed)
	return nil
}

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		_ = setupLogger("info")
		log.WithError(err).Fatal("некорректная конфигурация")
	}
	if err := setupLogger(cfg.LogLevel); err != nil {
		log.WithError(err).WithField("log_level", cfg.LogLevel).Warn("неизвестный уровень логирования, используем info")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"grpc_addr":      cfg.GRPCAddr,
		"metrics_addr":   cfg.MetricsAddr,
		"storage_driver": cfg.StorageDriver,
		"backend":        cfg.BackendURL != "",
		"kafka":          cfg.KafkaBrokers != "",
		"version":        version.String(),
	}).Info("запускаем storefront")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("storefront остановлен")
}
