package domain

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// Ledger moves token balances. Transfer methods accept the caller's
// transaction handle so a payout's fee and net movements commit or
// roll back together with the command that triggered them. A definite
// failure is final: callers must surface it, never retry.
type Ledger interface {
	BalanceOf(ctx context.Context, token, identity string) (int64, error)
	Mint(ctx context.Context, token, identity string, amount int64) error
	Approve(ctx context.Context, token, owner, spender string, amount int64) error
	Allowance(ctx context.Context, token, owner, spender string) (int64, error)
	Transfer(ctx context.Context, tx *gorm.DB, token, from, to string, amount int64, memo string) error
	TransferFrom(ctx context.Context, tx *gorm.DB, token, spender, from, to string, amount int64, memo string) error
}

var (
	ErrInvalidAmount         = errors.New("invalid_amount")
	ErrSameAccount           = errors.New("same_account")
	ErrInvalidIdentity       = errors.New("invalid_identity")
	ErrInvalidToken          = errors.New("invalid_token")
	ErrInsufficientFunds     = errors.New("insufficient_funds")
	ErrInsufficientAllowance = errors.New("insufficient_allowance")
)
