package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	contributiondomain "github.com/axiomprotocol/susu/internal/contribution/domain"
	"github.com/oklog/ulid/v2"
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

func NewService(p Params) contributiondomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("contribution.service"),
		genID: p.GenID,
	}
}

// Record implements domain.Service.
func (s *Service) Record(ctx context.Context, tx *gorm.DB, req contributiondomain.RecordRequest) (*contributiondomain.Contribution, error) {
	if tx == nil {
		tx = s.db
	}
	if req.Cycle < 1 {
		return nil, contributiondomain.ErrInvalidCycle
	}

	existing, err := s.find(ctx, tx, req.PoolID, req.Cycle, req.Identity)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, contributiondomain.ErrAlreadyContributed
	}

	record := &contributiondomain.Contribution{
		ID:        s.genID.Generate(),
		PoolID:    req.PoolID,
		Cycle:     req.Cycle,
		Identity:  req.Identity,
		Amount:    req.Amount,
		WasLate:   req.WasLate,
		Forfeited: req.Forfeited,
		Reference: ulid.Make().String(),
		PaidAt:    req.PaidAt,
		CreatedAt: req.PaidAt,
	}
	if err := tx.WithContext(ctx).Create(record).Error; err != nil {
		return nil, err
	}
	return record, nil
}

// RecordForfeits implements domain.Service.
func (s *Service) RecordForfeits(ctx context.Context, tx *gorm.DB, poolID snowflake.ID, identity string, fromCycle, toCycle int, now time.Time) error {
	if tx == nil {
		tx = s.db
	}
	for cycle := fromCycle; cycle <= toCycle; cycle++ {
		existing, err := s.find(ctx, tx, poolID, cycle, identity)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		if _, err := s.Record(ctx, tx, contributiondomain.RecordRequest{
			PoolID:    poolID,
			Cycle:     cycle,
			Identity:  identity,
			Amount:    0,
			Forfeited: true,
			PaidAt:    now,
		}); err != nil {
			return err
		}
	}
	return nil
}

// HasContributed implements domain.Service.
func (s *Service) HasContributed(ctx context.Context, poolID snowflake.ID, cycle int, identity string) (bool, error) {
	record, err := s.find(ctx, s.db, poolID, cycle, identity)
	if err != nil {
		return false, err
	}
	return record != nil && !record.Forfeited, nil
}

// Count implements domain.Service.
func (s *Service) Count(ctx context.Context, tx *gorm.DB, poolID snowflake.ID, cycle int) (int, error) {
	if tx == nil {
		tx = s.db
	}
	var count int64
	if err := tx.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM pool_contributions WHERE pool_id = ? AND cycle = ?`,
		poolID,
		cycle,
	).Scan(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// CountPaid implements domain.Service.
func (s *Service) CountPaid(ctx context.Context, tx *gorm.DB, poolID snowflake.ID, cycle int) (int, error) {
	if tx == nil {
		tx = s.db
	}
	var count int64
	if err := tx.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM pool_contributions WHERE pool_id = ? AND cycle = ? AND forfeited = ?`,
		poolID,
		cycle,
		false,
	).Scan(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// Get implements domain.Service.
func (s *Service) Get(ctx context.Context, tx *gorm.DB, poolID snowflake.ID, cycle int, identity string) (*contributiondomain.Contribution, error) {
	if tx == nil {
		tx = s.db
	}
	return s.find(ctx, tx, poolID, cycle, identity)
}

// ListCycle implements domain.Service.
func (s *Service) ListCycle(ctx context.Context, tx *gorm.DB, poolID snowflake.ID, cycle int) ([]contributiondomain.Contribution, error) {
	if tx == nil {
		tx = s.db
	}
	var records []contributiondomain.Contribution
	err := tx.WithContext(ctx).
		Where("pool_id = ? AND cycle = ?", poolID, cycle).
		Order("paid_at ASC, id ASC").
		Find(&records).Error
	return records, err
}

func (s *Service) find(ctx context.Context, tx *gorm.DB, poolID snowflake.ID, cycle int, identity string) (*contributiondomain.Contribution, error) {
	var record contributiondomain.Contribution
	err := tx.WithContext(ctx).
		Where("pool_id = ? AND cycle = ? AND identity = ?", poolID, cycle, identity).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}
