package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/kinohall/cinema-ticketing/internal/lock"
	"github.com/kinohall/cinema-ticketing/internal/logger"
	"github.com/kinohall/cinema-ticketing/internal/model"
	"github.com/kinohall/cinema-ticketing/internal/store"
)

// DefaultHoldTTL is how long a seat hold blocks other users before it
// can be reclaimed.
const DefaultHoldTTL = 10 * time.Minute

// HoldService owns the seat-hold lifecycle: creating time-boxed holds
// under contention, releasing them, and expiring stale ones.  All
// seat-state reads and writes happen inside a single transaction per
// call; the advisory lock in front of it only trims contention and is
// never required for correctness.
type HoldService struct {
	store  store.Store
	locker lock.Locker
	ttl    time.Duration
}

func NewHoldService(s store.Store, locker lock.Locker, ttl time.Duration) *HoldService {
	if locker == nil {
		locker = lock.NopLocker{}
	}
	if ttl <= 0 {
		ttl = DefaultHoldTTL
	}
	return &HoldService{store: s, locker: locker, ttl: ttl}
}

// HoldResult is returned from CreateHolds.  All holds of one request
// share the expiry and the token.
type HoldResult struct {
	ScreeningID uint64
	HoldIDs     []uint64
	HoldToken   string
	ExpiresAt   time.Time
}

// SweepStats reports what a cleanup pass did.
type SweepStats struct {
	Released int // seat-status rows reset to AVAILABLE
	Expired  int // holds flipped to EXPIRED
}

// CreateHolds places a hold on every requested seat or on none of
// them.  Stale holds found on the way (expired, or attached to dead
// orders) are released in the same transaction, so inventory the
// sweeper has not reached yet self-heals here.  A conflict aborts the
// whole request and names the blocking seats.
func (s *HoldService) CreateHolds(ctx context.Context, screeningID uint64, seatIDs []uint64, userID uint64) (*HoldResult, error) {
	seatIDs = dedupeIDs(seatIDs)
	if len(seatIDs) == 0 {
		return nil, ErrSeatNotFound
	}

	now := time.Now().UTC()
	screening, err := s.store.GetScreening(ctx, screeningID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrScreeningNotFound
		}
		return nil, fmt.Errorf("load screening: %w", err)
	}
	if screening.HasStarted(now) {
		return nil, ErrScreeningStarted
	}

	// Advisory only: a failed acquire (lock held or Redis down) falls
	// through to the transaction, which is the real guard.
	if lk, err := s.locker.Acquire(ctx, lock.SeatSetKey(screeningID, seatIDs), 5*time.Second); err == nil {
		defer lk.Release(ctx)
	} else if !errors.Is(err, lock.ErrNotAcquired) {
		logger.Debug("seat lock unavailable, relying on transaction", zap.Error(err))
	}

	token, err := randomToken(16)
	if err != nil {
		return nil, fmt.Errorf("generate hold token: %w", err)
	}

	expiresAt := now.Add(s.ttl)
	var holdIDs []uint64
	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		seats, err := tx.SeatsByIDs(ctx, seatIDs)
		if err != nil {
			return fmt.Errorf("load seats: %w", err)
		}
		if len(seats) != len(seatIDs) {
			return ErrSeatNotFound
		}
		for _, seat := range seats {
			if seat.HallID != screening.HallID {
				return ErrSeatNotFound
			}
		}

		conflicted := make(map[uint64]bool)

		// Classify existing holds on exactly the requested seats.
		holds, err := tx.OpenHoldsBySeats(ctx, screeningID, seatIDs)
		if err != nil {
			return fmt.Errorf("load holds: %w", err)
		}
		for i := range holds {
			h := holds[i]
			blocking, err := s.holdBlocks(ctx, tx, &h, now)
			if err != nil {
				return err
			}
			if blocking {
				conflicted[h.SeatID] = true
				continue
			}
			// Stale hold: free it right here instead of waiting for the
			// sweeper.
			if err := releaseHold(ctx, tx, &h, model.HoldReleased); err != nil {
				return err
			}
		}

		// Second line of defense: a SOLD status blocks even when the
		// hold row is already gone.
		statuses, err := tx.LatestStatusBySeats(ctx, screeningID, seatIDs)
		if err != nil {
			return fmt.Errorf("load seat statuses: %w", err)
		}
		for seatID, st := range statuses {
			if st.Status == model.SeatSold {
				conflicted[seatID] = true
			}
		}

		if len(conflicted) > 0 {
			return &SeatConflictError{Seats: sortedIDs(conflicted)}
		}

		holdIDs = make([]uint64, 0, len(seatIDs))
		for _, seatID := range seatIDs {
			h := model.SeatHold{
				ScreeningID: screeningID,
				SeatID:      seatID,
				UserID:      userID,
				Status:      model.HoldActive,
				HoldToken:   token,
				ExpiresAt:   expiresAt,
			}
			if err := tx.CreateHold(ctx, &h); err != nil {
				return fmt.Errorf("create hold: %w", err)
			}
			holdIDs = append(holdIDs, h.ID)
			uid := userID
			exp := expiresAt
			if err := tx.AppendSeatStatus(ctx, &model.SeatStatus{
				ScreeningID:   screeningID,
				SeatID:        seatID,
				Status:        model.SeatHeld,
				HolderUserID:  &uid,
				HoldExpiresAt: &exp,
			}); err != nil {
				return fmt.Errorf("append seat status: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &HoldResult{
		ScreeningID: screeningID,
		HoldIDs:     holdIDs,
		HoldToken:   token,
		ExpiresAt:   expiresAt,
	}, nil
}

// holdBlocks decides whether an existing open hold prevents a new
// hold on its seat.  A hold blocks when it is unexpired and orderless,
// or when its order is PAID, or when its order is PENDING and the
// hold is unexpired.  Everything else is stale.
func (s *HoldService) holdBlocks(ctx context.Context, tx store.Tx, h *model.SeatHold, now time.Time) (bool, error) {
	if h.OrderID == nil {
		return !h.Expired(now), nil
	}
	order, err := tx.GetOrder(ctx, *h.OrderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return !h.Expired(now), nil
		}
		return false, fmt.Errorf("load hold order: %w", err)
	}
	switch order.Status {
	case model.OrderPaid:
		return true, nil
	case model.OrderPending:
		return !h.Expired(now), nil
	}
	return false, nil
}

// ReleaseHolds releases the given holds and frees their seats.  It is
// idempotent: already released or expired holds are skipped, and a
// SOLD seat is never downgraded.
func (s *HoldService) ReleaseHolds(ctx context.Context, holdIDs []uint64) error {
	if len(holdIDs) == 0 {
		return nil
	}
	return s.store.WithTx(ctx, func(tx store.Tx) error {
		holds, err := tx.HoldsByIDs(ctx, holdIDs)
		if err != nil {
			return fmt.Errorf("load holds: %w", err)
		}
		for i := range holds {
			h := holds[i]
			if !h.Open() {
				continue
			}
			if err := releaseHold(ctx, tx, &h, model.HoldReleased); err != nil {
				return err
			}
		}
		return nil
	})
}

// CleanupExpiredHolds expires every open hold past its deadline,
// except holds whose order is PAID: those seats are legitimately sold
// and stay untouched.
func (s *HoldService) CleanupExpiredHolds(ctx context.Context) (SweepStats, error) {
	now := time.Now().UTC()
	var stats SweepStats
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		holds, err := tx.ExpiredOpenHolds(ctx, now)
		if err != nil {
			return fmt.Errorf("load expired holds: %w", err)
		}
		for i := range holds {
			h := holds[i]
			if h.OrderID != nil {
				order, err := tx.GetOrder(ctx, *h.OrderID)
				if err != nil && !errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("load hold order: %w", err)
				}
				if err == nil && order.Status == model.OrderPaid {
					continue
				}
			}
			freed, err := releaseHoldCounted(ctx, tx, &h, model.HoldExpired)
			if err != nil {
				return err
			}
			stats.Expired++
			if freed {
				stats.Released++
			}
		}
		return nil
	})
	if err != nil {
		return SweepStats{}, err
	}
	return stats, nil
}

// releaseHold flips an open hold to newStatus and, when the seat's
// latest status row is HELD, appends an AVAILABLE row.  SOLD is never
// overwritten here.
func releaseHold(ctx context.Context, tx store.Tx, h *model.SeatHold, newStatus string) error {
	_, err := releaseHoldCounted(ctx, tx, h, newStatus)
	return err
}

func releaseHoldCounted(ctx context.Context, tx store.Tx, h *model.SeatHold, newStatus string) (bool, error) {
	h.Status = newStatus
	if err := tx.UpdateHold(ctx, h); err != nil {
		return false, fmt.Errorf("update hold: %w", err)
	}
	statuses, err := tx.LatestStatusBySeats(ctx, h.ScreeningID, []uint64{h.SeatID})
	if err != nil {
		return false, fmt.Errorf("load seat status: %w", err)
	}
	st, ok := statuses[h.SeatID]
	if !ok || st.Status != model.SeatHeld {
		return false, nil
	}
	if err := tx.AppendSeatStatus(ctx, &model.SeatStatus{
		ScreeningID: h.ScreeningID,
		SeatID:      h.SeatID,
		Status:      model.SeatAvailable,
	}); err != nil {
		return false, fmt.Errorf("append seat status: %w", err)
	}
	return true, nil
}

func dedupeIDs(ids []uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(ids))
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

func sortedIDs(set map[uint64]bool) []uint64 {
	out := make([]uint64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
