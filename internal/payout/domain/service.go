package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// ProcessRequest carries everything Process needs; the lifecycle
// service resolves the pool and recipient before calling so this
// package stays free of the pool aggregate.
type ProcessRequest struct {
	PoolID             snowflake.ID
	Token              string
	EscrowAccount      string
	TreasuryAccount    string
	Cycle        int
	MemberTarget int
	// PaidCount is the number of real (non-forfeited) contributions
	// recorded for the cycle. The escrow holds exactly PaidCount base
	// contributions, so the realized pot is PaidCount * amount even
	// though the projected pot stays MemberTarget * amount.
	PaidCount          int
	ContributionAmount int64
	ProtocolFeeBps     int64
	Recipient          string
	// RecipientActive is false when the slot holder exited; their net
	// is forfeited to the treasury.
	RecipientActive bool
	Now             time.Time
}

// Service disburses a completed cycle. Process runs inside the
// caller's transaction: both ledger transfers and the payout record
// commit or roll back as one unit, and a ledger failure aborts the
// triggering contribution with it.
type Service interface {
	Expected(contributors int, contributionAmount, protocolFeeBps int64) Expected
	Process(ctx context.Context, tx *gorm.DB, req ProcessRequest) (*Payout, error)
	Get(ctx context.Context, poolID snowflake.ID, cycle int) (*Payout, error)
	List(ctx context.Context, poolID snowflake.ID) ([]Payout, error)
}

var (
	ErrNoRecipient      = errors.New("no_recipient")
	ErrAlreadyProcessed = errors.New("payout_already_processed")
)
