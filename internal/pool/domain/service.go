package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	contributiondomain "github.com/axiomprotocol/susu/internal/contribution/domain"
	membershipdomain "github.com/axiomprotocol/susu/internal/membership/domain"
	payoutdomain "github.com/axiomprotocol/susu/internal/payout/domain"
	"github.com/axiomprotocol/susu/pkg/db/pagination"
)

type CreatePoolRequest struct {
	Creator            string         `json:"creator"`
	Name               string         `json:"name"`
	Token              string         `json:"token"`
	MemberTarget       int            `json:"member_target"`
	ContributionAmount int64          `json:"contribution_amount"`
	CycleDuration      time.Duration  `json:"cycle_duration"`
	GracePeriod        time.Duration  `json:"grace_period"`
	StartTime          time.Time      `json:"start_time"`
	RandomizedOrder    bool           `json:"randomized_order"`
	OpenJoin           bool           `json:"open_join"`
	VaultMode          bool           `json:"vault_mode"`
	ProtocolFeeBps     int64          `json:"protocol_fee_bps"`
	LateFeeBps         int64          `json:"late_fee_bps"`
	PermutationSeed    int64          `json:"permutation_seed"`
	Metadata           map[string]any `json:"metadata,omitempty"`
}

type JoinPoolRequest struct {
	PoolID   snowflake.ID
	Identity string
	// Inviter must equal the pool creator on invite-only pools.
	Inviter string
}

type ContributeRequest struct {
	PoolID   snowflake.ID
	Identity string
}

// ContributeResult reports what a contribute call did. Payout is
// non-nil when this contribution completed the cycle and triggered
// the disbursement synchronously.
type ContributeResult struct {
	Contribution *contributiondomain.Contribution `json:"contribution"`
	Payout       *payoutdomain.Payout             `json:"payout,omitempty"`
}

type ListPoolsRequest struct {
	Status    string
	Creator   string
	PageToken string
	PageSize  int
}

type ListPoolsResponse struct {
	pagination.PageInfo
	Pools []Pool `json:"pools"`
}

// Service is the lifecycle state machine: the single entry point for
// every pool command and query. Commands against one pool are
// serialized; distinct pools proceed independently.
type Service interface {
	Create(ctx context.Context, req CreatePoolRequest) (*Pool, error)
	Join(ctx context.Context, req JoinPoolRequest) (*membershipdomain.Member, error)
	Start(ctx context.Context, poolID snowflake.ID) (*Pool, error)
	Contribute(ctx context.Context, req ContributeRequest) (*ContributeResult, error)
	Exit(ctx context.Context, poolID snowflake.ID, identity string) error
	Cancel(ctx context.Context, poolID snowflake.ID, reason string) error
	// SweepOverdue ejects members who missed a closed contribution
	// window across all active pools and settles any cycle their
	// forfeits completed. Returns the number of ejections.
	SweepOverdue(ctx context.Context) (int, error)

	Get(ctx context.Context, poolID snowflake.ID) (*Pool, error)
	List(ctx context.Context, req ListPoolsRequest) (ListPoolsResponse, error)
	Members(ctx context.Context, poolID snowflake.ID) ([]membershipdomain.Member, error)
	Member(ctx context.Context, poolID snowflake.ID, identity string) (*membershipdomain.Member, error)
	PayoutOrder(ctx context.Context, poolID snowflake.ID) ([]membershipdomain.Member, error)
	UserPools(ctx context.Context, identity string) ([]Pool, error)
	Contribution(ctx context.Context, poolID snowflake.ID, cycle int, identity string) (*contributiondomain.Contribution, error)
	HasContributed(ctx context.Context, poolID snowflake.ID, cycle int, identity string) (bool, error)
	CurrentRecipient(ctx context.Context, poolID snowflake.ID) (*membershipdomain.Member, error)
	ExpectedPayout(ctx context.Context, poolID snowflake.ID) (payoutdomain.Expected, error)
	CycleInfo(ctx context.Context, poolID snowflake.ID) (CycleInfo, error)
	TotalPools(ctx context.Context) (int64, error)
}

var (
	// validation
	ErrInvalidCreator      = errors.New("invalid_creator")
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidToken        = errors.New("invalid_token")
	ErrInvalidMemberCount  = errors.New("invalid_member_count")
	ErrInvalidContribution = errors.New("invalid_contribution_amount")
	ErrInvalidCycleLength  = errors.New("invalid_cycle_duration")
	ErrInvalidGracePeriod  = errors.New("invalid_grace_period")
	ErrStartTimeInPast     = errors.New("start_time_in_past")
	ErrInvalidFeeBps       = errors.New("invalid_fee_bps")
	ErrInvalidIdentity     = errors.New("invalid_identity")
	ErrMissingReason       = errors.New("missing_cancel_reason")

	// state
	ErrPoolNotFound   = errors.New("pool_not_found")
	ErrPoolNotPending = errors.New("pool_not_pending")
	ErrPoolNotActive  = errors.New("pool_not_active")
	ErrPoolTerminal   = errors.New("pool_terminal")
	ErrInviteOnly     = errors.New("invite_only")

	// timing
	ErrStartTimeNotReached = errors.New("start_time_not_reached")
	ErrPoolNotFull         = errors.New("pool_not_full")
	ErrWindowClosed        = errors.New("contribution_window_closed")
)
