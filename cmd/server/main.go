package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/kinohall/cinema-ticketing/internal/config"
	"github.com/kinohall/cinema-ticketing/internal/database"
	"github.com/kinohall/cinema-ticketing/internal/gateway"
	"github.com/kinohall/cinema-ticketing/internal/handler"
	"github.com/kinohall/cinema-ticketing/internal/lock"
	"github.com/kinohall/cinema-ticketing/internal/logger"
	"github.com/kinohall/cinema-ticketing/internal/middleware"
	"github.com/kinohall/cinema-ticketing/internal/queue"
	"github.com/kinohall/cinema-ticketing/internal/repository"
	"github.com/kinohall/cinema-ticketing/internal/router"
	"github.com/kinohall/cinema-ticketing/internal/service"
	"github.com/kinohall/cinema-ticketing/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger.Set(logger.New(cfg.Env))
	defer logger.Sync()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		logger.Fatal("database connect failed", zap.Error(err))
	}
	defer db.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := database.Bootstrap(ctx, db); err != nil {
		cancel()
		logger.Fatal("schema bootstrap failed", zap.Error(err))
	}
	cancel()

	// Redis backs the advisory locks and the rate limiter.  Both degrade
	// gracefully, so a missing Redis only costs contention shedding.
	rdb := config.NewRedisClient()
	var locker lock.Locker = lock.NopLocker{}
	if rdb != nil {
		locker = lock.NewRedisLocker(rdb)
	}

	st := repository.NewSQLStore(db)
	users := repository.NewUserRepo(db)

	registry := gateway.NewRegistry(gateway.NewMockPay(cfg.MockpaySecret))
	if cfg.HMACPaySecret != "" {
		registry = gateway.NewRegistry(
			gateway.NewMockPay(cfg.MockpaySecret),
			gateway.NewHMACPay(cfg.HMACPayClient, cfg.HMACPaySecret),
		)
	}

	holds := service.NewHoldService(st, locker, cfg.HoldTTL)
	orders := service.NewOrderService(st, service.NewStoreCatalog(st), service.NewStoreVouchers(st), queue.PaidNotifier{})
	payments := service.NewPaymentService(st, registry, orders)

	sweeper := worker.NewSweeper(holds, orders, payments, locker, worker.Config{
		HoldInterval:    cfg.HoldSweep,
		PaymentInterval: cfg.PaymentSweep,
		TicketInterval:  cfg.TicketSweep,
		TicketMaxAge:    cfg.TicketMaxAge,
	})
	sweeper.Start()
	defer sweeper.Stop()

	go queue.StartOrderPaidConsumer()

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())

	rateLimit := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)
	router.Register(e, router.Handlers{
		Auth:       handler.NewAuthHandler(cfg, users),
		Screenings: handler.NewScreeningHandler(st),
		Holds:      handler.NewHoldHandler(holds),
		Orders:     handler.NewOrderHandler(orders),
		Payments:   handler.NewPaymentHandler(payments),
		Admin:      handler.NewAdminHandler(st, payments, sweeper),
	}, cfg.JWTSecret, rateLimit)

	go func() {
		addr := ":" + cfg.Port
		logger.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server start failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
	}
}
