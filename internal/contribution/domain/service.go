package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type RecordRequest struct {
	PoolID    snowflake.ID
	Cycle     int
	Identity  string
	Amount    int64
	WasLate   bool
	Forfeited bool
	PaidAt    time.Time
}

// Service owns contribution records. Writes take the caller's
// transaction.
type Service interface {
	Record(ctx context.Context, tx *gorm.DB, req RecordRequest) (*Contribution, error)
	// RecordForfeits inserts zero-amount placeholder rows for every
	// cycle in [fromCycle, toCycle] that identity has not paid.
	RecordForfeits(ctx context.Context, tx *gorm.DB, poolID snowflake.ID, identity string, fromCycle, toCycle int, now time.Time) error
	HasContributed(ctx context.Context, poolID snowflake.ID, cycle int, identity string) (bool, error)
	// Count includes forfeit placeholders; CountPaid does not.
	Count(ctx context.Context, tx *gorm.DB, poolID snowflake.ID, cycle int) (int, error)
	CountPaid(ctx context.Context, tx *gorm.DB, poolID snowflake.ID, cycle int) (int, error)
	Get(ctx context.Context, tx *gorm.DB, poolID snowflake.ID, cycle int, identity string) (*Contribution, error)
	// ListCycle returns the cycle's rows, forfeits included.
	ListCycle(ctx context.Context, tx *gorm.DB, poolID snowflake.ID, cycle int) ([]Contribution, error)
}

var (
	ErrAlreadyContributed = errors.New("already_contributed")
	ErrInvalidCycle       = errors.New("invalid_cycle")
)
