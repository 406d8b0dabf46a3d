package service

import (
	"context"
	"time"

	auditdomain "github.com/axiomprotocol/susu/internal/audit/domain"
	membershipdomain "github.com/axiomprotocol/susu/internal/membership/domain"
	pooldomain "github.com/axiomprotocol/susu/internal/pool/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SweepOverdue implements domain.Service. A member who lets the grace
// window close without paying is ejected: they lose their payout slot
// and their remaining cycles become forfeits, exactly as if they had
// exited. One failing pool does not stop the sweep of the others.
func (s *Service) SweepOverdue(ctx context.Context) (int, error) {
	defer s.observe("sweep", time.Now())

	var ids []snowflake.ID
	if err := s.db.WithContext(ctx).Raw(
		`SELECT id FROM pools WHERE status = ?`,
		pooldomain.PoolStatusActive,
	).Scan(&ids).Error; err != nil {
		return 0, err
	}

	total := 0
	for _, id := range ids {
		ejected, err := s.sweepPool(ctx, id)
		if err != nil {
			s.metrics.RecordCommandError("sweep")
			s.log.Error("sweep failed for pool",
				zap.String("pool_id", id.String()),
				zap.Error(err),
			)
			continue
		}
		total += ejected
	}
	return total, nil
}

func (s *Service) sweepPool(ctx context.Context, poolID snowflake.ID) (int, error) {
	unlock := s.lock(poolID)
	defer unlock()

	now := s.clock.Now()
	var (
		ejected  int
		finished bool
	)

	err := s.db.Transaction(func(tx *gorm.DB) error {
		pool, err := s.loadPool(ctx, tx, poolID)
		if err != nil {
			return err
		}
		if pool.Status != pooldomain.PoolStatusActive || pool.CycleStartedAt == nil {
			return nil
		}

		graceEnd := pool.CycleStartedAt.Add(pool.CycleSpan() + pool.GraceSpan())
		if !now.After(graceEnd) {
			return nil
		}

		members, err := s.members.List(ctx, tx, pool.ID)
		if err != nil {
			return err
		}

		for _, member := range members {
			if member.Status != membershipdomain.MemberStatusActive {
				continue
			}
			record, err := s.contributions.Get(ctx, tx, pool.ID, pool.CurrentCycle, member.Identity)
			if err != nil {
				return err
			}
			if record != nil {
				continue
			}

			if _, err := s.members.MarkEjected(ctx, tx, pool.ID, member.Identity, now); err != nil {
				return err
			}
			if err := s.contributions.RecordForfeits(ctx, tx, pool.ID, member.Identity, pool.CurrentCycle, pool.MemberTarget, now); err != nil {
				return err
			}
			if err := s.audit.Record(ctx, tx, auditdomain.PoolEvent{
				PoolID:     pool.ID,
				Action:     auditdomain.ActionMemberEjected,
				Actor:      member.Identity,
				Cycle:      pool.CurrentCycle,
				OccurredAt: now,
			}); err != nil {
				return err
			}
			ejected++
		}

		if ejected == 0 {
			return nil
		}

		if _, err := s.settle(ctx, tx, pool, now); err != nil {
			return err
		}
		finished = pool.Status == pooldomain.PoolStatusCompleted

		pool.UpdatedAt = now
		return tx.WithContext(ctx).Save(pool).Error
	})
	if err != nil {
		return 0, err
	}

	if ejected > 0 {
		s.cache.Invalidate(poolID)
		for i := 0; i < ejected; i++ {
			s.metrics.RecordMemberExit("ejected")
		}
		if finished {
			s.metrics.RecordPoolCompleted()
		}
		s.log.Info("overdue members ejected",
			zap.String("pool_id", poolID.String()),
			zap.Int("ejected", ejected),
		)
	}
	return ejected, nil
}
