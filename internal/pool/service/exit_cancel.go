package service

import (
	"context"
	"strings"
	"time"

	auditdomain "github.com/axiomprotocol/susu/internal/audit/domain"
	"github.com/axiomprotocol/susu/internal/config"
	membershipdomain "github.com/axiomprotocol/susu/internal/membership/domain"
	pooldomain "github.com/axiomprotocol/susu/internal/pool/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Exit implements domain.Service. Leaving a pending pool just removes
// the roster entry and compacts payout positions. Leaving an active
// pool is a forfeit: the member's remaining cycles get zero-amount
// placeholder rows, their escrowed money stays in the pool, and any
// cycle those placeholders complete settles immediately.
func (s *Service) Exit(ctx context.Context, poolID snowflake.ID, identity string) error {
	defer s.observe("exit", time.Now())

	identity = strings.TrimSpace(identity)
	if identity == "" {
		s.metrics.RecordCommandError("exit")
		return pooldomain.ErrInvalidIdentity
	}

	unlock := s.lock(poolID)
	defer unlock()

	now := s.clock.Now()
	var (
		phase    string
		finished bool
	)

	err := s.db.Transaction(func(tx *gorm.DB) error {
		pool, err := s.loadPool(ctx, tx, poolID)
		if err != nil {
			return err
		}
		if pool.Terminal() {
			return pooldomain.ErrPoolTerminal
		}

		switch pool.Status {
		case pooldomain.PoolStatusPending:
			phase = "pending"
			if err := s.members.Remove(ctx, tx, pool.ID, identity); err != nil {
				return err
			}

		case pooldomain.PoolStatusActive:
			phase = "active"
			if _, err := s.members.MarkExited(ctx, tx, pool.ID, identity, now); err != nil {
				return err
			}
			if err := s.contributions.RecordForfeits(ctx, tx, pool.ID, identity, pool.CurrentCycle, pool.MemberTarget, now); err != nil {
				return err
			}
		}

		if err := s.audit.Record(ctx, tx, auditdomain.PoolEvent{
			PoolID:     pool.ID,
			Action:     auditdomain.ActionMemberExited,
			Actor:      identity,
			Cycle:      pool.CurrentCycle,
			Metadata:   datatypes.JSONMap{"phase": phase},
			OccurredAt: now,
		}); err != nil {
			return err
		}

		if pool.Status == pooldomain.PoolStatusActive {
			// The forfeit placeholders may have completed the current
			// cycle, or a run of them.
			if _, err := s.settle(ctx, tx, pool, now); err != nil {
				return err
			}
			finished = pool.Status == pooldomain.PoolStatusCompleted

			pool.UpdatedAt = now
			return tx.WithContext(ctx).Save(pool).Error
		}
		return nil
	})
	if err != nil {
		s.metrics.RecordCommandError("exit")
		return err
	}

	s.cache.Invalidate(poolID)
	s.metrics.RecordMemberExit(phase)
	if finished {
		s.metrics.RecordPoolCompleted()
	}
	s.log.Info("member exited",
		zap.String("pool_id", poolID.String()),
		zap.String("identity", identity),
		zap.String("phase", phase),
	)
	return nil
}

// Cancel implements domain.Service. Cancelling a pending pool is pure
// bookkeeping. Cancelling an active pool unwinds the current cycle's
// escrow: under the refund policy each still-active member gets their
// base contribution back, and whatever remains (exited members' money,
// or everything under the forfeit policy) sweeps to the treasury so
// the escrow account zeroes out.
func (s *Service) Cancel(ctx context.Context, poolID snowflake.ID, reason string) error {
	defer s.observe("cancel", time.Now())

	reason = strings.TrimSpace(reason)
	if reason == "" {
		s.metrics.RecordCommandError("cancel")
		return pooldomain.ErrMissingReason
	}

	unlock := s.lock(poolID)
	defer unlock()

	now := s.clock.Now()
	refundMode := s.policy.Get().CancellationRefund

	err := s.db.Transaction(func(tx *gorm.DB) error {
		pool, err := s.loadPool(ctx, tx, poolID)
		if err != nil {
			return err
		}
		if pool.Terminal() {
			return pooldomain.ErrPoolTerminal
		}

		if pool.Status == pooldomain.PoolStatusActive {
			if err := s.unwindEscrow(ctx, tx, pool, refundMode); err != nil {
				return err
			}
		}

		pool.Status = pooldomain.PoolStatusCancelled
		pool.CancelledAt = &now
		pool.CancelReason = reason
		pool.UpdatedAt = now
		if err := tx.WithContext(ctx).Save(pool).Error; err != nil {
			return err
		}

		return s.audit.Record(ctx, tx, auditdomain.PoolEvent{
			PoolID: pool.ID,
			Action: auditdomain.ActionPoolCancelled,
			Actor:  pool.Creator,
			Cycle:  pool.CurrentCycle,
			Metadata: datatypes.JSONMap{
				"reason":      reason,
				"refund_mode": string(refundMode),
			},
			OccurredAt: now,
		})
	})
	if err != nil {
		s.metrics.RecordCommandError("cancel")
		return err
	}

	s.cache.Invalidate(poolID)
	s.metrics.RecordPoolCancelled()
	s.log.Info("pool cancelled",
		zap.String("pool_id", poolID.String()),
		zap.String("reason", reason),
	)
	return nil
}

// unwindEscrow empties the pool escrow for the in-flight cycle. The
// escrow holds exactly one base contribution per paid, non-forfeited
// row of the current cycle; settled cycles already drained theirs.
func (s *Service) unwindEscrow(ctx context.Context, tx *gorm.DB, pool *pooldomain.Pool, refundMode config.RefundMode) error {
	rows, err := s.contributions.ListCycle(ctx, tx, pool.ID, pool.CurrentCycle)
	if err != nil {
		return err
	}

	var sweep int64
	for _, row := range rows {
		if row.Forfeited {
			continue
		}

		refund := false
		if refundMode == config.RefundModeRefund {
			member, err := s.members.Get(ctx, tx, pool.ID, row.Identity)
			if err != nil {
				return err
			}
			refund = member != nil && member.Status == membershipdomain.MemberStatusActive
		}

		if refund {
			if err := s.ledger.Transfer(ctx, tx, pool.Token, pool.EscrowAccount(), row.Identity, pool.ContributionAmount, "cancellation refund"); err != nil {
				return err
			}
			continue
		}
		sweep += pool.ContributionAmount
	}

	if sweep > 0 {
		return s.ledger.Transfer(ctx, tx, pool.Token, pool.EscrowAccount(), s.cfg.TreasuryAccount, sweep, "cancellation sweep")
	}
	return nil
}
