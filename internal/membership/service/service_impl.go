package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	membershipdomain "github.com/axiomprotocol/susu/internal/membership/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

func NewService(p Params) membershipdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("membership.service"),
		genID: p.GenID,
	}
}

// Join implements domain.Service.
func (s *Service) Join(ctx context.Context, tx *gorm.DB, poolID snowflake.ID, identity string, capacity int, now time.Time) (*membershipdomain.Member, error) {
	if tx == nil {
		tx = s.db
	}

	// Any prior record blocks a rejoin, exited members included.
	existing, err := s.find(ctx, tx, poolID, identity)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, membershipdomain.ErrAlreadyMember
	}

	count, err := s.Count(ctx, tx, poolID)
	if err != nil {
		return nil, err
	}
	if count >= capacity {
		return nil, membershipdomain.ErrPoolFull
	}

	member := &membershipdomain.Member{
		ID:             s.genID.Generate(),
		PoolID:         poolID,
		Identity:       identity,
		PayoutPosition: count + 1,
		JoinedAt:       now,
		Status:         membershipdomain.MemberStatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := tx.WithContext(ctx).Create(member).Error; err != nil {
		return nil, err
	}
	return member, nil
}

// Remove implements domain.Service.
func (s *Service) Remove(ctx context.Context, tx *gorm.DB, poolID snowflake.ID, identity string) error {
	if tx == nil {
		tx = s.db
	}

	member, err := s.find(ctx, tx, poolID, identity)
	if err != nil {
		return err
	}
	if member == nil {
		return membershipdomain.ErrNotAMember
	}

	if err := tx.WithContext(ctx).Exec(
		`DELETE FROM pool_members WHERE pool_id = ? AND identity = ?`,
		poolID,
		identity,
	).Error; err != nil {
		return err
	}

	// Close the gap so positions stay a contiguous 1..n before start.
	return tx.WithContext(ctx).Exec(
		`UPDATE pool_members
		 SET payout_position = payout_position - 1, updated_at = ?
		 WHERE pool_id = ? AND payout_position > ?`,
		time.Now().UTC(),
		poolID,
		member.PayoutPosition,
	).Error
}

// MarkExited implements domain.Service.
func (s *Service) MarkExited(ctx context.Context, tx *gorm.DB, poolID snowflake.ID, identity string, now time.Time) (*membershipdomain.Member, error) {
	if tx == nil {
		tx = s.db
	}

	member, err := s.find(ctx, tx, poolID, identity)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, membershipdomain.ErrNotAMember
	}
	if member.Status != membershipdomain.MemberStatusActive {
		return nil, membershipdomain.ErrMemberExited
	}

	if err := tx.WithContext(ctx).Exec(
		`UPDATE pool_members
		 SET status = ?, exited_at = ?, updated_at = ?
		 WHERE pool_id = ? AND identity = ?`,
		membershipdomain.MemberStatusExited,
		now,
		now,
		poolID,
		identity,
	).Error; err != nil {
		return nil, err
	}

	member.Status = membershipdomain.MemberStatusExited
	member.ExitedAt = &now
	return member, nil
}

// MarkEjected implements domain.Service.
func (s *Service) MarkEjected(ctx context.Context, tx *gorm.DB, poolID snowflake.ID, identity string, now time.Time) (*membershipdomain.Member, error) {
	if tx == nil {
		tx = s.db
	}

	member, err := s.find(ctx, tx, poolID, identity)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, membershipdomain.ErrNotAMember
	}
	if member.Status != membershipdomain.MemberStatusActive {
		return nil, membershipdomain.ErrMemberExited
	}

	if err := tx.WithContext(ctx).Exec(
		`UPDATE pool_members
		 SET status = ?, missed_payments = missed_payments + 1, exited_at = ?, updated_at = ?
		 WHERE pool_id = ? AND identity = ?`,
		membershipdomain.MemberStatusEjected,
		now,
		now,
		poolID,
		identity,
	).Error; err != nil {
		return nil, err
	}

	member.Status = membershipdomain.MemberStatusEjected
	member.MissedPayments++
	member.ExitedAt = &now
	return member, nil
}

// AssignRandomOrder implements domain.Service.
func (s *Service) AssignRandomOrder(ctx context.Context, tx *gorm.DB, poolID snowflake.ID, permutation []int) error {
	if tx == nil {
		tx = s.db
	}

	members, err := s.listTx(ctx, tx, poolID)
	if err != nil {
		return err
	}
	if len(members) != len(permutation) {
		return membershipdomain.ErrInvalidOrder
	}

	seen := make(map[int]bool, len(permutation))
	for _, p := range permutation {
		if p < 1 || p > len(permutation) || seen[p] {
			return membershipdomain.ErrInvalidOrder
		}
		seen[p] = true
	}

	now := time.Now().UTC()
	for i, member := range members {
		if err := tx.WithContext(ctx).Exec(
			`UPDATE pool_members SET payout_position = ?, updated_at = ? WHERE id = ?`,
			permutation[i],
			now,
			member.ID,
		).Error; err != nil {
			return err
		}
	}
	return nil
}

// RecordContribution implements domain.Service.
func (s *Service) RecordContribution(ctx context.Context, tx *gorm.DB, poolID snowflake.ID, identity string, amount, lateFee int64) error {
	if tx == nil {
		tx = s.db
	}
	result := tx.WithContext(ctx).Exec(
		`UPDATE pool_members
		 SET contributed_total = contributed_total + ?, late_fees_paid = late_fees_paid + ?, updated_at = ?
		 WHERE pool_id = ? AND identity = ?`,
		amount,
		lateFee,
		time.Now().UTC(),
		poolID,
		identity,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return membershipdomain.ErrNotAMember
	}
	return nil
}

// MarkPaidOut implements domain.Service.
func (s *Service) MarkPaidOut(ctx context.Context, tx *gorm.DB, poolID snowflake.ID, identity string, amount int64) error {
	if tx == nil {
		tx = s.db
	}
	result := tx.WithContext(ctx).Exec(
		`UPDATE pool_members
		 SET received_total = received_total + ?, has_received_payout = ?, updated_at = ?
		 WHERE pool_id = ? AND identity = ?`,
		amount,
		true,
		time.Now().UTC(),
		poolID,
		identity,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return membershipdomain.ErrNotAMember
	}
	return nil
}

// Get implements domain.Service.
func (s *Service) Get(ctx context.Context, tx *gorm.DB, poolID snowflake.ID, identity string) (*membershipdomain.Member, error) {
	if tx == nil {
		tx = s.db
	}
	return s.find(ctx, tx, poolID, identity)
}

// List implements domain.Service.
func (s *Service) List(ctx context.Context, tx *gorm.DB, poolID snowflake.ID) ([]membershipdomain.Member, error) {
	if tx == nil {
		tx = s.db
	}
	return s.listTx(ctx, tx, poolID)
}

// PayoutOrder implements domain.Service.
func (s *Service) PayoutOrder(ctx context.Context, poolID snowflake.ID) ([]membershipdomain.Member, error) {
	var members []membershipdomain.Member
	err := s.db.WithContext(ctx).
		Where("pool_id = ?", poolID).
		Order("payout_position ASC").
		Find(&members).Error
	return members, err
}

// AtPosition implements domain.Service.
func (s *Service) AtPosition(ctx context.Context, tx *gorm.DB, poolID snowflake.ID, position int) (*membershipdomain.Member, error) {
	if tx == nil {
		tx = s.db
	}
	var member membershipdomain.Member
	err := tx.WithContext(ctx).
		Where("pool_id = ? AND payout_position = ?", poolID, position).
		First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &member, nil
}

// Count implements domain.Service.
func (s *Service) Count(ctx context.Context, tx *gorm.DB, poolID snowflake.ID) (int, error) {
	if tx == nil {
		tx = s.db
	}
	var count int64
	if err := tx.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM pool_members WHERE pool_id = ?`,
		poolID,
	).Scan(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// PoolIDs implements domain.Service.
func (s *Service) PoolIDs(ctx context.Context, identity string) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := s.db.WithContext(ctx).Raw(
		`SELECT pool_id FROM pool_members WHERE identity = ? ORDER BY joined_at ASC`,
		identity,
	).Scan(&ids).Error
	return ids, err
}

func (s *Service) find(ctx context.Context, tx *gorm.DB, poolID snowflake.ID, identity string) (*membershipdomain.Member, error) {
	var member membershipdomain.Member
	err := tx.WithContext(ctx).
		Where("pool_id = ? AND identity = ?", poolID, identity).
		First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &member, nil
}

func (s *Service) listTx(ctx context.Context, tx *gorm.DB, poolID snowflake.ID) ([]membershipdomain.Member, error) {
	var members []membershipdomain.Member
	err := tx.WithContext(ctx).
		Where("pool_id = ?", poolID).
		Order("joined_at ASC, id ASC").
		Find(&members).Error
	return members, err
}
