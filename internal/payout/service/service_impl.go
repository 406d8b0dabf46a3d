package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/axiomprotocol/susu/internal/fees"
	payoutdomain "github.com/axiomprotocol/susu/internal/payout/domain"
	tokendomain "github.com/axiomprotocol/susu/internal/token/domain"
	"github.com/oklog/ulid/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Ledger tokendomain.Ledger
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	ledger tokendomain.Ledger
}

func NewService(p Params) payoutdomain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("payout.service"),
		genID:  p.GenID,
		ledger: p.Ledger,
	}
}

// Expected implements domain.Service. Callers pass the original
// member target for the projected pot, or the cycle's paid count for
// the realized one.
func (s *Service) Expected(contributors int, contributionAmount, protocolFeeBps int64) payoutdomain.Expected {
	gross := contributionAmount * int64(contributors)
	fee := fees.ProtocolFee(gross, protocolFeeBps)
	return payoutdomain.Expected{
		Gross: gross,
		Fee:   fee,
		Net:   gross - fee,
	}
}

// Process implements domain.Service.
func (s *Service) Process(ctx context.Context, tx *gorm.DB, req payoutdomain.ProcessRequest) (*payoutdomain.Payout, error) {
	if tx == nil {
		tx = s.db
	}
	if strings.TrimSpace(req.Recipient) == "" {
		return nil, payoutdomain.ErrNoRecipient
	}

	existing, err := s.find(ctx, tx, req.PoolID, req.Cycle)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, payoutdomain.ErrAlreadyProcessed
	}

	// The realized pot is what the escrow actually holds for this
	// cycle: forfeited slots contributed nothing, so they shrink the
	// disbursement even though the projection stays at full target.
	realized := s.Expected(req.PaidCount, req.ContributionAmount, req.ProtocolFeeBps)

	if realized.Fee > 0 {
		if err := s.ledger.Transfer(ctx, tx, req.Token, req.EscrowAccount, req.TreasuryAccount, realized.Fee, "protocol fee"); err != nil {
			return nil, err
		}
	}

	recipient := req.Recipient
	forfeited := !req.RecipientActive
	if forfeited {
		// Exited slot holders never receive a payout; the net sweeps
		// to the treasury so escrow still zeroes out each cycle.
		recipient = req.TreasuryAccount
	}
	if realized.Net > 0 {
		if err := s.ledger.Transfer(ctx, tx, req.Token, req.EscrowAccount, recipient, realized.Net, "cycle payout"); err != nil {
			return nil, err
		}
	}

	payout := &payoutdomain.Payout{
		ID:        s.genID.Generate(),
		PoolID:    req.PoolID,
		Cycle:     req.Cycle,
		Recipient: req.Recipient,
		Gross:     realized.Gross,
		Fee:       realized.Fee,
		Net:       realized.Net,
		Forfeited: forfeited,
		Reference: ulid.Make().String(),
		PaidAt:    req.Now,
		CreatedAt: req.Now,
	}
	if err := tx.WithContext(ctx).Create(payout).Error; err != nil {
		return nil, err
	}

	s.log.Info("payout processed",
		zap.String("pool_id", req.PoolID.String()),
		zap.Int("cycle", req.Cycle),
		zap.String("recipient", req.Recipient),
		zap.Int64("net", realized.Net),
		zap.Int64("fee", realized.Fee),
		zap.Bool("forfeited", forfeited),
	)
	return payout, nil
}

// Get implements domain.Service.
func (s *Service) Get(ctx context.Context, poolID snowflake.ID, cycle int) (*payoutdomain.Payout, error) {
	return s.find(ctx, s.db, poolID, cycle)
}

// List implements domain.Service.
func (s *Service) List(ctx context.Context, poolID snowflake.ID) ([]payoutdomain.Payout, error) {
	var payouts []payoutdomain.Payout
	err := s.db.WithContext(ctx).
		Where("pool_id = ?", poolID).
		Order("cycle ASC").
		Find(&payouts).Error
	return payouts, err
}

func (s *Service) find(ctx context.Context, tx *gorm.DB, poolID snowflake.ID, cycle int) (*payoutdomain.Payout, error) {
	var payout payoutdomain.Payout
	err := tx.WithContext(ctx).
		Where("pool_id = ? AND cycle = ?", poolID, cycle).
		First(&payout).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payout, nil
}
