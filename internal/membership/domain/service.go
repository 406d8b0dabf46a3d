package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Service manages the per-pool roster. Mutating methods take the
// caller's transaction so roster changes commit atomically with the
// lifecycle command that caused them.
type Service interface {
	// Join appends identity to the roster with the next sequential
	// payout position. capacity is the pool's member target.
	Join(ctx context.Context, tx *gorm.DB, poolID snowflake.ID, identity string, capacity int, now time.Time) (*Member, error)
	// Remove deletes a pending-pool member and compacts the positions
	// above theirs. No monetary effect.
	Remove(ctx context.Context, tx *gorm.DB, poolID snowflake.ID, identity string) error
	// MarkExited flips an active-pool member to EXITED.
	MarkExited(ctx context.Context, tx *gorm.DB, poolID snowflake.ID, identity string, now time.Time) (*Member, error)
	// MarkEjected flips a member to EJECTED after a missed
	// contribution deadline and bumps their missed-payment count.
	MarkEjected(ctx context.Context, tx *gorm.DB, poolID snowflake.ID, identity string, now time.Time) (*Member, error)
	// AssignRandomOrder rewrites payout positions from the supplied
	// permutation of 1..n, indexed by current position.
	AssignRandomOrder(ctx context.Context, tx *gorm.DB, poolID snowflake.ID, permutation []int) error

	RecordContribution(ctx context.Context, tx *gorm.DB, poolID snowflake.ID, identity string, amount, lateFee int64) error
	MarkPaidOut(ctx context.Context, tx *gorm.DB, poolID snowflake.ID, identity string, amount int64) error

	Get(ctx context.Context, tx *gorm.DB, poolID snowflake.ID, identity string) (*Member, error)
	List(ctx context.Context, tx *gorm.DB, poolID snowflake.ID) ([]Member, error)
	PayoutOrder(ctx context.Context, poolID snowflake.ID) ([]Member, error)
	AtPosition(ctx context.Context, tx *gorm.DB, poolID snowflake.ID, position int) (*Member, error)
	Count(ctx context.Context, tx *gorm.DB, poolID snowflake.ID) (int, error)
	PoolIDs(ctx context.Context, identity string) ([]snowflake.ID, error)
}

var (
	ErrPoolFull      = errors.New("pool_full")
	ErrAlreadyMember = errors.New("already_member")
	ErrNotAMember    = errors.New("not_a_member")
	ErrMemberExited  = errors.New("member_exited")
	ErrInvalidOrder  = errors.New("invalid_payout_order")
)
