package service

import (
	"context"

	"github.com/axiomprotocol/susu/internal/audit/domain"
	"github.com/axiomprotocol/susu/internal/clock"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) Record(ctx context.Context, tx *gorm.DB, event domain.PoolEvent) error {
	if tx == nil {
		tx = s.db
	}

	if event.ID == 0 {
		event.ID = s.genID.Generate()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.clock.Now()
	}

	if err := tx.WithContext(ctx).Create(&event).Error; err != nil {
		s.log.Error("failed to record pool event",
			zap.String("pool_id", event.PoolID.String()),
			zap.String("action", string(event.Action)),
			zap.Error(err),
		)
		return err
	}

	return nil
}

func (s *Service) ListEvents(ctx context.Context, poolID snowflake.ID) ([]domain.PoolEvent, error) {
	var events []domain.PoolEvent
	if err := s.db.WithContext(ctx).
		Where("pool_id = ?", poolID).
		Order("occurred_at ASC, id ASC").
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
