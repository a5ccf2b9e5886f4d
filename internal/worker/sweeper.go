// Package worker runs the background expiry sweeps.
package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kinohall/cinema-ticketing/internal/lock"
	"github.com/kinohall/cinema-ticketing/internal/logger"
	"github.com/kinohall/cinema-ticketing/internal/service"
)

// Config sets the sweep cadence.  Zero values fall back to defaults.
type Config struct {
	HoldInterval    time.Duration
	PaymentInterval time.Duration
	TicketInterval  time.Duration
	TicketMaxAge    time.Duration
}

func (c *Config) fill() {
	if c.HoldInterval <= 0 {
		c.HoldInterval = 30 * time.Second
	}
	if c.PaymentInterval <= 0 {
		c.PaymentInterval = time.Minute
	}
	if c.TicketInterval <= 0 {
		c.TicketInterval = 30 * time.Second
	}
	if c.TicketMaxAge <= 0 {
		c.TicketMaxAge = 10 * time.Minute
	}
}

// Sweeper periodically expires stale holds, payments of dead orders
// and stuck tickets.  Every pass is also callable directly, which
// backs the admin trigger endpoints.  Sweeps are safety nets behind
// the lazy checks in the services: a slow or stopped sweeper degrades
// latency of seat reuse, never correctness.
type Sweeper struct {
	holds    *service.HoldService
	orders   *service.OrderService
	payments *service.PaymentService
	locker   lock.Locker
	cfg      Config

	stopCh chan struct{}
	doneCh chan struct{}
}

func NewSweeper(holds *service.HoldService, orders *service.OrderService, payments *service.PaymentService, locker lock.Locker, cfg Config) *Sweeper {
	cfg.fill()
	if locker == nil {
		locker = lock.NopLocker{}
	}
	return &Sweeper{
		holds:    holds,
		orders:   orders,
		payments: payments,
		locker:   locker,
		cfg:      cfg,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the sweep loop on its own goroutine.
func (s *Sweeper) Start() {
	go s.run()
}

// Stop signals the loop to exit and waits for the pass in flight to
// finish.
func (s *Sweeper) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

func (s *Sweeper) run() {
	defer close(s.doneCh)

	holdTicker := time.NewTicker(s.cfg.HoldInterval)
	payTicker := time.NewTicker(s.cfg.PaymentInterval)
	ticketTicker := time.NewTicker(s.cfg.TicketInterval)
	defer holdTicker.Stop()
	defer payTicker.Stop()
	defer ticketTicker.Stop()

	logger.Info("sweeper started",
		zap.Duration("hold_interval", s.cfg.HoldInterval),
		zap.Duration("payment_interval", s.cfg.PaymentInterval),
		zap.Duration("ticket_interval", s.cfg.TicketInterval))

	for {
		select {
		case <-s.stopCh:
			logger.Info("sweeper stopped")
			return
		case <-holdTicker.C:
			s.guarded("sweep:holds", s.SweepHolds)
		case <-payTicker.C:
			s.guarded("sweep:payments", s.SweepPayments)
		case <-ticketTicker.C:
			s.guarded("sweep:tickets", s.SweepTickets)
		}
	}
}

// guarded runs one pass under an advisory lock so multiple instances
// do not sweep the same rows at once.  Losing the lock skips the
// round; errors are logged and the loop keeps going.
func (s *Sweeper) guarded(key string, pass func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	lk, err := s.locker.Acquire(ctx, key, time.Minute)
	if err != nil {
		if !errors.Is(err, lock.ErrNotAcquired) {
			logger.Debug("sweep lock unavailable", zap.String("key", key), zap.Error(err))
		}
		return
	}
	defer lk.Release(ctx)

	if err := pass(ctx); err != nil {
		logger.Error("sweep pass failed", zap.String("key", key), zap.Error(err))
	}
}

// SweepHolds expires overdue holds and frees their seats.
func (s *Sweeper) SweepHolds(ctx context.Context) error {
	stats, err := s.holds.CleanupExpiredHolds(ctx)
	if err != nil {
		return err
	}
	if stats.Expired > 0 {
		logger.Info("expired holds swept",
			zap.Int("expired", stats.Expired), zap.Int("released", stats.Released))
	}
	return nil
}

// SweepPayments fails pending payments of expired orders.
func (s *Sweeper) SweepPayments(ctx context.Context) error {
	n, err := s.payments.SweepExpiredPayments(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		logger.Info("expired payments swept", zap.Int("failed", n))
	}
	return nil
}

// SweepTickets fails stale pending tickets and expires fully failed
// orders.
func (s *Sweeper) SweepTickets(ctx context.Context) error {
	n, err := s.orders.SweepStaleTickets(ctx, s.cfg.TicketMaxAge)
	if err != nil {
		return err
	}
	if n > 0 {
		logger.Info("stale tickets swept", zap.Int("failed", n))
	}
	return nil
}
