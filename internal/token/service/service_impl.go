package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	tokendomain "github.com/axiomprotocol/susu/internal/token/domain"
	"github.com/google/uuid"
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

func NewService(p Params) tokendomain.Ledger {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("token.service"),
		genID: p.GenID,
	}
}

// BalanceOf implements domain.Ledger.
func (s *Service) BalanceOf(ctx context.Context, token, identity string) (int64, error) {
	if err := validateAccountParams(token, identity); err != nil {
		return 0, err
	}

	var balance int64
	if err := s.db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(balance), 0) FROM token_accounts WHERE token = ? AND identity = ?`,
		token,
		identity,
	).Scan(&balance).Error; err != nil {
		return 0, err
	}
	return balance, nil
}

// Mint credits an identity out of thin air. Operational and test
// funding only; real deployments replace this ledger with the chain.
func (s *Service) Mint(ctx context.Context, token, identity string, amount int64) error {
	if err := validateAccountParams(token, identity); err != nil {
		return err
	}
	if amount <= 0 {
		return tokendomain.ErrInvalidAmount
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.credit(ctx, tx, token, identity, amount); err != nil {
			return err
		}
		return s.journal(ctx, tx, token, "mint", identity, amount, "mint")
	})
}

// Approve sets (not increments) the spender's remaining allowance.
func (s *Service) Approve(ctx context.Context, token, owner, spender string, amount int64) error {
	if err := validateAccountParams(token, owner); err != nil {
		return err
	}
	if strings.TrimSpace(spender) == "" {
		return tokendomain.ErrInvalidIdentity
	}
	if amount < 0 {
		return tokendomain.ErrInvalidAmount
	}

	now := time.Now().UTC()
	return s.db.WithContext(ctx).Exec(
		`INSERT INTO token_allowances (id, owner, spender, token, remaining, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (owner, spender, token) DO UPDATE SET remaining = ?, updated_at = ?`,
		s.genID.Generate(),
		owner,
		spender,
		token,
		amount,
		now,
		now,
		amount,
		now,
	).Error
}

// Allowance implements domain.Ledger.
func (s *Service) Allowance(ctx context.Context, token, owner, spender string) (int64, error) {
	var remaining int64
	if err := s.db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(remaining), 0) FROM token_allowances WHERE owner = ? AND spender = ? AND token = ?`,
		owner,
		spender,
		token,
	).Scan(&remaining).Error; err != nil {
		return 0, err
	}
	return remaining, nil
}

// Transfer moves amount from one identity to another within the
// caller's transaction.
func (s *Service) Transfer(ctx context.Context, tx *gorm.DB, token, from, to string, amount int64, memo string) error {
	if tx == nil {
		tx = s.db
	}
	if err := validateTransferParams(token, from, to, amount); err != nil {
		return err
	}

	if err := s.debit(ctx, tx, token, from, amount); err != nil {
		return err
	}
	if err := s.credit(ctx, tx, token, to, amount); err != nil {
		return err
	}
	return s.journal(ctx, tx, token, from, to, amount, memo)
}

// TransferFrom moves amount on behalf of spender, consuming the
// owner's allowance first.
func (s *Service) TransferFrom(ctx context.Context, tx *gorm.DB, token, spender, from, to string, amount int64, memo string) error {
	if tx == nil {
		tx = s.db
	}
	if strings.TrimSpace(spender) == "" {
		return tokendomain.ErrInvalidIdentity
	}
	if err := validateTransferParams(token, from, to, amount); err != nil {
		return err
	}

	result := tx.WithContext(ctx).Exec(
		`UPDATE token_allowances
		 SET remaining = remaining - ?, updated_at = ?
		 WHERE owner = ? AND spender = ? AND token = ? AND remaining >= ?`,
		amount,
		time.Now().UTC(),
		from,
		spender,
		token,
		amount,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return tokendomain.ErrInsufficientAllowance
	}

	return s.Transfer(ctx, tx, token, from, to, amount, memo)
}

func (s *Service) debit(ctx context.Context, tx *gorm.DB, token, identity string, amount int64) error {
	result := tx.WithContext(ctx).Exec(
		`UPDATE token_accounts
		 SET balance = balance - ?, updated_at = ?
		 WHERE token = ? AND identity = ? AND balance >= ?`,
		amount,
		time.Now().UTC(),
		token,
		identity,
		amount,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return tokendomain.ErrInsufficientFunds
	}
	return nil
}

func (s *Service) credit(ctx context.Context, tx *gorm.DB, token, identity string, amount int64) error {
	now := time.Now().UTC()
	return tx.WithContext(ctx).Exec(
		`INSERT INTO token_accounts (id, identity, token, balance, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (identity, token) DO UPDATE SET balance = token_accounts.balance + ?, updated_at = ?`,
		s.genID.Generate(),
		identity,
		token,
		amount,
		now,
		now,
		amount,
		now,
	).Error
}

func (s *Service) journal(ctx context.Context, tx *gorm.DB, token, from, to string, amount int64, memo string) error {
	return tx.WithContext(ctx).Create(&tokendomain.Transfer{
		ID:           s.genID.Generate(),
		Reference:    uuid.NewString(),
		Token:        token,
		FromIdentity: from,
		ToIdentity:   to,
		Amount:       amount,
		Memo:         memo,
		CreatedAt:    time.Now().UTC(),
	}).Error
}

func validateAccountParams(token, identity string) error {
	if strings.TrimSpace(token) == "" {
		return tokendomain.ErrInvalidToken
	}
	if strings.TrimSpace(identity) == "" {
		return tokendomain.ErrInvalidIdentity
	}
	return nil
}

func validateTransferParams(token, from, to string, amount int64) error {
	if err := validateAccountParams(token, from); err != nil {
		return err
	}
	if strings.TrimSpace(to) == "" {
		return tokendomain.ErrInvalidIdentity
	}
	if from == to {
		return tokendomain.ErrSameAccount
	}
	if amount <= 0 {
		return tokendomain.ErrInvalidAmount
	}
	return nil
}
