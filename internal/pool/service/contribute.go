package service

import (
	"context"
	"strings"
	"time"

	auditdomain "github.com/axiomprotocol/susu/internal/audit/domain"
	contributiondomain "github.com/axiomprotocol/susu/internal/contribution/domain"
	"github.com/axiomprotocol/susu/internal/fees"
	membershipdomain "github.com/axiomprotocol/susu/internal/membership/domain"
	payoutdomain "github.com/axiomprotocol/susu/internal/payout/domain"
	pooldomain "github.com/axiomprotocol/susu/internal/pool/domain"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Contribute implements domain.Service. The base amount moves into the
// pool escrow through the member's allowance; a late surcharge, when
// due, goes straight to the treasury. When this contribution completes
// the cycle the payout settles inside the same transaction, so a
// ledger failure during disbursement rolls the contribution back too.
func (s *Service) Contribute(ctx context.Context, req pooldomain.ContributeRequest) (*pooldomain.ContributeResult, error) {
	defer s.observe("contribute", time.Now())

	identity := strings.TrimSpace(req.Identity)
	if identity == "" {
		s.metrics.RecordCommandError("contribute")
		return nil, pooldomain.ErrInvalidIdentity
	}

	unlock := s.lock(req.PoolID)
	defer unlock()

	now := s.clock.Now()
	var (
		result   pooldomain.ContributeResult
		late     bool
		total    int64
		settled  []*payoutdomain.Payout
		finished bool
	)

	err := s.db.Transaction(func(tx *gorm.DB) error {
		pool, err := s.loadPool(ctx, tx, req.PoolID)
		if err != nil {
			return err
		}
		if pool.Terminal() {
			return pooldomain.ErrPoolTerminal
		}
		if pool.Status != pooldomain.PoolStatusActive {
			return pooldomain.ErrPoolNotActive
		}

		member, err := s.members.Get(ctx, tx, pool.ID, identity)
		if err != nil {
			return err
		}
		if member == nil {
			return membershipdomain.ErrNotAMember
		}
		if member.Status != membershipdomain.MemberStatusActive {
			return membershipdomain.ErrMemberExited
		}

		cycleEnd := pool.CycleStartedAt.Add(pool.CycleSpan())
		graceEnd := cycleEnd.Add(pool.GraceSpan())
		if now.After(graceEnd) {
			return pooldomain.ErrWindowClosed
		}
		late = now.After(cycleEnd)

		base := pool.ContributionAmount
		var surcharge int64
		if late {
			surcharge = fees.LateSurcharge(base, pool.LateFeeBps)
		}
		total = base + surcharge

		if err := s.ledger.TransferFrom(ctx, tx, pool.Token, s.cfg.EngineAccount, identity, pool.EscrowAccount(), base, "cycle contribution"); err != nil {
			return err
		}
		if surcharge > 0 {
			if err := s.ledger.TransferFrom(ctx, tx, pool.Token, s.cfg.EngineAccount, identity, s.cfg.TreasuryAccount, surcharge, "late surcharge"); err != nil {
				return err
			}
		}

		contribution, err := s.contributions.Record(ctx, tx, contributiondomain.RecordRequest{
			PoolID:   pool.ID,
			Cycle:    pool.CurrentCycle,
			Identity: identity,
			Amount:   total,
			WasLate:  late,
			PaidAt:   now,
		})
		if err != nil {
			return err
		}
		result.Contribution = contribution

		if err := s.members.RecordContribution(ctx, tx, pool.ID, identity, total, surcharge); err != nil {
			return err
		}

		pool.TotalContributed += total
		pool.TotalFees += surcharge

		if err := s.audit.Record(ctx, tx, auditdomain.PoolEvent{
			PoolID: pool.ID,
			Action: auditdomain.ActionContribution,
			Actor:  identity,
			Cycle:  pool.CurrentCycle,
			Metadata: datatypes.JSONMap{
				"amount":    total,
				"late":      late,
				"surcharge": surcharge,
			},
			OccurredAt: now,
		}); err != nil {
			return err
		}

		settled, err = s.settle(ctx, tx, pool, now)
		if err != nil {
			return err
		}
		finished = pool.Status == pooldomain.PoolStatusCompleted

		pool.UpdatedAt = now
		return tx.WithContext(ctx).Save(pool).Error
	})
	if err != nil {
		s.metrics.RecordCommandError("contribute")
		return nil, err
	}

	s.cache.Invalidate(req.PoolID)
	s.metrics.RecordContribution(late, total)
	for _, payout := range settled {
		s.metrics.RecordPayout(payout.Forfeited, payout.Net)
	}
	if finished {
		s.metrics.RecordPoolCompleted()
	}
	if len(settled) > 0 {
		result.Payout = settled[0]
	}
	return &result, nil
}

// settle disburses every consecutive complete cycle, starting with the
// current one. Forfeit placeholders count toward completeness, so one
// real contribution (or an exit) can cascade through several cycles
// when the remaining slots were all forfeited. The pool struct is
// mutated in place; the caller persists it.
func (s *Service) settle(ctx context.Context, tx *gorm.DB, pool *pooldomain.Pool, now time.Time) ([]*payoutdomain.Payout, error) {
	var settled []*payoutdomain.Payout

	for pool.Status == pooldomain.PoolStatusActive {
		count, err := s.contributions.Count(ctx, tx, pool.ID, pool.CurrentCycle)
		if err != nil {
			return nil, err
		}
		if count < pool.MemberTarget {
			break
		}

		paid, err := s.contributions.CountPaid(ctx, tx, pool.ID, pool.CurrentCycle)
		if err != nil {
			return nil, err
		}

		recipient, err := s.members.AtPosition(ctx, tx, pool.ID, pool.CurrentCycle)
		if err != nil {
			return nil, err
		}
		if recipient == nil {
			return nil, payoutdomain.ErrNoRecipient
		}

		payout, err := s.payouts.Process(ctx, tx, payoutdomain.ProcessRequest{
			PoolID:             pool.ID,
			Token:              pool.Token,
			EscrowAccount:      pool.EscrowAccount(),
			TreasuryAccount:    s.cfg.TreasuryAccount,
			Cycle:              pool.CurrentCycle,
			MemberTarget:       pool.MemberTarget,
			PaidCount:          paid,
			ContributionAmount: pool.ContributionAmount,
			ProtocolFeeBps:     pool.ProtocolFeeBps,
			Recipient:          recipient.Identity,
			RecipientActive:    recipient.Status == membershipdomain.MemberStatusActive,
			Now:                now,
		})
		if err != nil {
			return nil, err
		}
		settled = append(settled, payout)

		if !payout.Forfeited {
			if err := s.members.MarkPaidOut(ctx, tx, pool.ID, recipient.Identity, payout.Net); err != nil {
				return nil, err
			}
		}

		pool.TotalPaidOut += payout.Net
		pool.TotalFees += payout.Fee
		pool.LastPayoutAt = &now

		if err := s.audit.Record(ctx, tx, auditdomain.PoolEvent{
			PoolID: pool.ID,
			Action: auditdomain.ActionPayout,
			Actor:  recipient.Identity,
			Cycle:  pool.CurrentCycle,
			Metadata: datatypes.JSONMap{
				"gross":     payout.Gross,
				"fee":       payout.Fee,
				"net":       payout.Net,
				"forfeited": payout.Forfeited,
			},
			OccurredAt: now,
		}); err != nil {
			return nil, err
		}

		if pool.CurrentCycle >= pool.MemberTarget {
			pool.Status = pooldomain.PoolStatusCompleted
			pool.CompletedAt = &now
			if err := s.audit.Record(ctx, tx, auditdomain.PoolEvent{
				PoolID:     pool.ID,
				Action:     auditdomain.ActionPoolCompleted,
				Actor:      pool.Creator,
				Cycle:      pool.CurrentCycle,
				OccurredAt: now,
			}); err != nil {
				return nil, err
			}
			s.log.Info("pool completed", zap.String("pool_id", pool.ID.String()))
			break
		}

		pool.CurrentCycle++
		pool.CycleStartedAt = &now
	}

	return settled, nil
}
