package service

import (
	"context"
	"testing"
	"time"

	auditdomain "github.com/axiomprotocol/susu/internal/audit/domain"
	"github.com/axiomprotocol/susu/internal/config"
	contributiondomain "github.com/axiomprotocol/susu/internal/contribution/domain"
	membershipdomain "github.com/axiomprotocol/susu/internal/membership/domain"
	pooldomain "github.com/axiomprotocol/susu/internal/pool/domain"
	tokendomain "github.com/axiomprotocol/susu/internal/token/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContributeCompletesCycle(t *testing.T) {
	e := newEngine(t, config.DefaultPolicy())
	ctx := context.Background()
	roster := []string{"alice", "bob", "carol", "dave", "erin"}

	pool := e.activePool(t, basePoolRequest(e, "alice"), roster...)

	for _, identity := range roster[:4] {
		result := e.contribute(t, pool.ID, identity)
		assert.Nil(t, result.Payout)
	}

	// The fifth contribution completes the cycle and settles it in the
	// same transaction.
	result := e.contribute(t, pool.ID, "erin")
	require.NotNil(t, result.Payout)
	assert.Equal(t, 1, result.Payout.Cycle)
	assert.Equal(t, "alice", result.Payout.Recipient)
	assert.Equal(t, int64(500), result.Payout.Gross)
	assert.Equal(t, int64(5), result.Payout.Fee)
	assert.Equal(t, int64(495), result.Payout.Net)
	assert.False(t, result.Payout.Forfeited)

	assert.Equal(t, int64(10_395), e.balance(t, "alice"))
	assert.Equal(t, int64(9_900), e.balance(t, "erin"))
	assert.Equal(t, int64(5), e.balance(t, e.cfg.TreasuryAccount))
	assert.Equal(t, int64(0), e.balance(t, pool.EscrowAccount()))

	updated, err := e.pools.Get(ctx, pool.ID)
	require.NoError(t, err)
	assert.Equal(t, pooldomain.PoolStatusActive, updated.Status)
	assert.Equal(t, 2, updated.CurrentCycle)
	assert.Equal(t, int64(500), updated.TotalContributed)
	assert.Equal(t, int64(495), updated.TotalPaidOut)
	assert.Equal(t, int64(5), updated.TotalFees)
	require.NotNil(t, updated.LastPayoutAt)

	recipient, err := e.pools.Member(ctx, pool.ID, "alice")
	require.NoError(t, err)
	assert.True(t, recipient.HasReceivedPayout)
	assert.Equal(t, int64(495), recipient.ReceivedTotal)
	assert.Equal(t, int64(100), recipient.ContributedTotal)

	next, err := e.pools.CurrentRecipient(ctx, pool.ID)
	require.NoError(t, err)
	assert.Equal(t, "bob", next.Identity)
}

func TestContributeGuards(t *testing.T) {
	e := newEngine(t, config.DefaultPolicy())
	ctx := context.Background()

	pending, err := e.pools.Create(ctx, basePoolRequest(e, "alice"))
	require.NoError(t, err)

	_, err = e.pools.Contribute(ctx, pooldomain.ContributeRequest{PoolID: pending.ID, Identity: "alice"})
	assert.ErrorIs(t, err, pooldomain.ErrPoolNotActive)

	_, err = e.pools.Contribute(ctx, pooldomain.ContributeRequest{PoolID: 42, Identity: "alice"})
	assert.ErrorIs(t, err, pooldomain.ErrPoolNotFound)

	req := basePoolRequest(e, "alice")
	req.Name = "Active Pool"
	pool := e.activePool(t, req, "alice", "bob", "carol")

	_, err = e.pools.Contribute(ctx, pooldomain.ContributeRequest{PoolID: pool.ID, Identity: ""})
	assert.ErrorIs(t, err, pooldomain.ErrInvalidIdentity)

	_, err = e.pools.Contribute(ctx, pooldomain.ContributeRequest{PoolID: pool.ID, Identity: "mallory"})
	assert.ErrorIs(t, err, membershipdomain.ErrNotAMember)

	e.contribute(t, pool.ID, "bob")
	_, err = e.pools.Contribute(ctx, pooldomain.ContributeRequest{PoolID: pool.ID, Identity: "bob"})
	assert.ErrorIs(t, err, contributiondomain.ErrAlreadyContributed)
}

func TestContributeRollsBackOnLedgerFailure(t *testing.T) {
	e := newEngine(t, config.DefaultPolicy())
	ctx := context.Background()

	req := basePoolRequest(e, "alice")
	req.MemberTarget = 3
	pool, err := e.pools.Create(ctx, req)
	require.NoError(t, err)

	e.fund(t, "alice")
	// bob can afford the contribution but never approved the engine;
	// carol approved but cannot cover the amount.
	require.NoError(t, e.ledger.Mint(ctx, testToken, "bob", 10_000))
	require.NoError(t, e.ledger.Mint(ctx, testToken, "carol", 50))
	require.NoError(t, e.ledger.Approve(ctx, testToken, "carol", e.cfg.EngineAccount, 1_000))

	for _, identity := range []string{"alice", "bob", "carol"} {
		_, err := e.pools.Join(ctx, pooldomain.JoinPoolRequest{PoolID: pool.ID, Identity: identity})
		require.NoError(t, err)
	}
	e.clk.Advance(time.Hour)
	_, err = e.pools.Start(ctx, pool.ID)
	require.NoError(t, err)

	e.contribute(t, pool.ID, "alice")

	_, err = e.pools.Contribute(ctx, pooldomain.ContributeRequest{PoolID: pool.ID, Identity: "bob"})
	assert.ErrorIs(t, err, tokendomain.ErrInsufficientAllowance)

	_, err = e.pools.Contribute(ctx, pooldomain.ContributeRequest{PoolID: pool.ID, Identity: "carol"})
	assert.ErrorIs(t, err, tokendomain.ErrInsufficientFunds)

	// failed contributions left no trace
	for _, identity := range []string{"bob", "carol"} {
		contributed, err := e.pools.HasContributed(ctx, pool.ID, 1, identity)
		require.NoError(t, err)
		assert.False(t, contributed)
	}
	assert.Equal(t, int64(100), e.balance(t, pool.EscrowAccount()))
}

func TestLateContribution(t *testing.T) {
	e := newEngine(t, config.DefaultPolicy())
	ctx := context.Background()

	req := basePoolRequest(e, "alice")
	req.GracePeriod = 2 * time.Hour
	req.LateFeeBps = 500
	pool := e.activePool(t, req, "alice", "bob", "carol")

	result := e.contribute(t, pool.ID, "alice")
	assert.False(t, result.Contribution.WasLate)

	// one hour past nominal cycle end, inside the grace window
	e.clk.Advance(25 * time.Hour)
	result = e.contribute(t, pool.ID, "bob")
	assert.True(t, result.Contribution.WasLate)
	assert.Equal(t, int64(105), result.Contribution.Amount)

	assert.Equal(t, int64(9_895), e.balance(t, "bob"))
	assert.Equal(t, int64(5), e.balance(t, e.cfg.TreasuryAccount))
	// only the base amount reaches escrow
	assert.Equal(t, int64(200), e.balance(t, pool.EscrowAccount()))

	member, err := e.pools.Member(ctx, pool.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(5), member.LateFeesPaid)
	assert.Equal(t, int64(105), member.ContributedTotal)

	e.clk.Advance(3 * time.Hour)
	_, err = e.pools.Contribute(ctx, pooldomain.ContributeRequest{PoolID: pool.ID, Identity: "carol"})
	assert.ErrorIs(t, err, pooldomain.ErrWindowClosed)
}

func TestFullLifecycleToCompletion(t *testing.T) {
	e := newEngine(t, config.DefaultPolicy())
	ctx := context.Background()

	req := basePoolRequest(e, "alice")
	req.MemberTarget = 2
	req.ProtocolFeeBps = 0
	pool := e.activePool(t, req, "alice", "bob")

	e.contribute(t, pool.ID, "alice")
	first := e.contribute(t, pool.ID, "bob")
	require.NotNil(t, first.Payout)
	assert.Equal(t, "alice", first.Payout.Recipient)
	assert.Equal(t, int64(200), first.Payout.Net)

	e.contribute(t, pool.ID, "alice")
	second := e.contribute(t, pool.ID, "bob")
	require.NotNil(t, second.Payout)
	assert.Equal(t, "bob", second.Payout.Recipient)
	assert.Equal(t, int64(200), second.Payout.Net)

	done, err := e.pools.Get(ctx, pool.ID)
	require.NoError(t, err)
	assert.Equal(t, pooldomain.PoolStatusCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, int64(400), done.TotalContributed)
	assert.Equal(t, int64(400), done.TotalPaidOut)

	// a zero-fee pool is a pure rotation: everyone ends where they began
	assert.Equal(t, int64(10_000), e.balance(t, "alice"))
	assert.Equal(t, int64(10_000), e.balance(t, "bob"))
	assert.Equal(t, int64(0), e.balance(t, pool.EscrowAccount()))

	_, err = e.pools.Contribute(ctx, pooldomain.ContributeRequest{PoolID: pool.ID, Identity: "alice"})
	assert.ErrorIs(t, err, pooldomain.ErrPoolTerminal)
	_, err = e.pools.Join(ctx, pooldomain.JoinPoolRequest{PoolID: pool.ID, Identity: "carol"})
	assert.ErrorIs(t, err, pooldomain.ErrPoolTerminal)
	err = e.pools.Cancel(ctx, pool.ID, "too late")
	assert.ErrorIs(t, err, pooldomain.ErrPoolTerminal)

	events, err := e.audit.ListEvents(ctx, pool.ID)
	require.NoError(t, err)
	actions := make([]auditdomain.Action, len(events))
	for i, event := range events {
		actions[i] = event.Action
	}
	assert.Equal(t, []auditdomain.Action{
		auditdomain.ActionPoolCreated,
		auditdomain.ActionMemberJoined,
		auditdomain.ActionMemberJoined,
		auditdomain.ActionPoolStarted,
		auditdomain.ActionContribution,
		auditdomain.ActionContribution,
		auditdomain.ActionPayout,
		auditdomain.ActionContribution,
		auditdomain.ActionContribution,
		auditdomain.ActionPayout,
		auditdomain.ActionPoolCompleted,
	}, actions)
}

func TestExitActiveForfeitsRemainingCycles(t *testing.T) {
	e := newEngine(t, config.DefaultPolicy())
	ctx := context.Background()

	pool := e.activePool(t, basePoolRequest(e, "alice"), "alice", "bob", "carol")

	e.contribute(t, pool.ID, "alice")
	e.contribute(t, pool.ID, "bob")

	// carol leaves mid-cycle: her slot forfeits for every remaining
	// cycle, which completes cycle 1 with a shrunken pot of 200.
	require.NoError(t, e.pools.Exit(ctx, pool.ID, "carol"))

	assert.Equal(t, int64(10_098), e.balance(t, "alice")) // 10000 - 100 + 198
	assert.Equal(t, int64(2), e.balance(t, e.cfg.TreasuryAccount))

	updated, err := e.pools.Get(ctx, pool.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.CurrentCycle)

	carol, err := e.pools.Member(ctx, pool.ID, "carol")
	require.NoError(t, err)
	assert.Equal(t, membershipdomain.MemberStatusExited, carol.Status)
	require.NotNil(t, carol.ExitedAt)

	_, err = e.pools.Contribute(ctx, pooldomain.ContributeRequest{PoolID: pool.ID, Identity: "carol"})
	assert.ErrorIs(t, err, membershipdomain.ErrMemberExited)
	err = e.pools.Exit(ctx, pool.ID, "carol")
	assert.ErrorIs(t, err, membershipdomain.ErrMemberExited)

	// cycle 2 pays bob from the two remaining contributors
	e.contribute(t, pool.ID, "alice")
	second := e.contribute(t, pool.ID, "bob")
	require.NotNil(t, second.Payout)
	assert.Equal(t, "bob", second.Payout.Recipient)
	assert.Equal(t, int64(198), second.Payout.Net)

	// cycle 3 belongs to carol's forfeited slot: the net sweeps to the
	// treasury and the record keeps her as the slot holder.
	e.contribute(t, pool.ID, "alice")
	third := e.contribute(t, pool.ID, "bob")
	require.NotNil(t, third.Payout)
	assert.True(t, third.Payout.Forfeited)
	assert.Equal(t, "carol", third.Payout.Recipient)
	assert.Equal(t, int64(198), third.Payout.Net)

	done, err := e.pools.Get(ctx, pool.ID)
	require.NoError(t, err)
	assert.Equal(t, pooldomain.PoolStatusCompleted, done.Status)

	assert.Equal(t, int64(9_898), e.balance(t, "alice"))
	assert.Equal(t, int64(9_898), e.balance(t, "bob"))
	assert.Equal(t, int64(10_000), e.balance(t, "carol"))
	assert.Equal(t, int64(204), e.balance(t, e.cfg.TreasuryAccount))
	assert.Equal(t, int64(0), e.balance(t, pool.EscrowAccount()))
}

func TestCancelPending(t *testing.T) {
	e := newEngine(t, config.DefaultPolicy())
	ctx := context.Background()

	pool, err := e.pools.Create(ctx, basePoolRequest(e, "alice"))
	require.NoError(t, err)

	err = e.pools.Cancel(ctx, pool.ID, "  ")
	assert.ErrorIs(t, err, pooldomain.ErrMissingReason)

	require.NoError(t, e.pools.Cancel(ctx, pool.ID, "never filled"))

	cancelled, err := e.pools.Get(ctx, pool.ID)
	require.NoError(t, err)
	assert.Equal(t, pooldomain.PoolStatusCancelled, cancelled.Status)
	assert.Equal(t, "never filled", cancelled.CancelReason)
	require.NotNil(t, cancelled.CancelledAt)

	_, err = e.pools.Join(ctx, pooldomain.JoinPoolRequest{PoolID: pool.ID, Identity: "bob"})
	assert.ErrorIs(t, err, pooldomain.ErrPoolTerminal)
	err = e.pools.Cancel(ctx, pool.ID, "again")
	assert.ErrorIs(t, err, pooldomain.ErrPoolTerminal)
}

func TestCancelActiveRefundsCurrentCycle(t *testing.T) {
	e := newEngine(t, config.DefaultPolicy())
	ctx := context.Background()

	pool := e.activePool(t, basePoolRequest(e, "alice"), "alice", "bob", "carol")

	e.contribute(t, pool.ID, "alice")
	e.contribute(t, pool.ID, "bob")
	// bob paid and then left; his escrowed contribution is forfeit
	require.NoError(t, e.pools.Exit(ctx, pool.ID, "bob"))

	require.NoError(t, e.pools.Cancel(ctx, pool.ID, "dispute"))

	// alice is refunded, bob's money sweeps to the treasury
	assert.Equal(t, int64(10_000), e.balance(t, "alice"))
	assert.Equal(t, int64(9_900), e.balance(t, "bob"))
	assert.Equal(t, int64(100), e.balance(t, e.cfg.TreasuryAccount))
	assert.Equal(t, int64(0), e.balance(t, pool.EscrowAccount()))

	cancelled, err := e.pools.Get(ctx, pool.ID)
	require.NoError(t, err)
	assert.Equal(t, pooldomain.PoolStatusCancelled, cancelled.Status)
}

func TestCancelActiveForfeitPolicy(t *testing.T) {
	policy := config.DefaultPolicy()
	policy.CancellationRefund = config.RefundModeForfeit
	e := newEngine(t, policy)
	ctx := context.Background()

	pool := e.activePool(t, basePoolRequest(e, "alice"), "alice", "bob", "carol")
	e.contribute(t, pool.ID, "alice")

	require.NoError(t, e.pools.Cancel(ctx, pool.ID, "rug check"))

	assert.Equal(t, int64(9_900), e.balance(t, "alice"))
	assert.Equal(t, int64(100), e.balance(t, e.cfg.TreasuryAccount))
	assert.Equal(t, int64(0), e.balance(t, pool.EscrowAccount()))
}

func TestSweepOverdueEjectsMissedMembers(t *testing.T) {
	e := newEngine(t, config.DefaultPolicy())
	ctx := context.Background()

	pool := e.activePool(t, basePoolRequest(e, "alice"), "alice", "bob", "carol")

	e.contribute(t, pool.ID, "alice")

	// window still open: nothing to do
	ejected, err := e.pools.SweepOverdue(ctx)
	require.NoError(t, err)
	assert.Zero(t, ejected)

	// push past cycle end plus grace
	e.clk.Advance(26 * time.Hour)
	ejected, err = e.pools.SweepOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, ejected)

	for _, identity := range []string{"bob", "carol"} {
		member, err := e.pools.Member(ctx, pool.ID, identity)
		require.NoError(t, err)
		assert.Equal(t, membershipdomain.MemberStatusEjected, member.Status)
		assert.Equal(t, 1, member.MissedPayments)
		require.NotNil(t, member.ExitedAt)
	}

	// the ejections completed cycle 1 with alice's lone contribution
	assert.Equal(t, int64(9_999), e.balance(t, "alice")) // 10000 - 100 + 99
	assert.Equal(t, int64(1), e.balance(t, e.cfg.TreasuryAccount))

	updated, err := e.pools.Get(ctx, pool.ID)
	require.NoError(t, err)
	assert.Equal(t, pooldomain.PoolStatusActive, updated.Status)
	assert.Equal(t, 2, updated.CurrentCycle)

	_, err = e.pools.Contribute(ctx, pooldomain.ContributeRequest{PoolID: pool.ID, Identity: "bob"})
	assert.ErrorIs(t, err, membershipdomain.ErrMemberExited)

	// alice rides out the remaining cycles alone; the ejected slots'
	// payouts sweep to the treasury.
	second := e.contribute(t, pool.ID, "alice")
	require.NotNil(t, second.Payout)
	assert.True(t, second.Payout.Forfeited)
	assert.Equal(t, "bob", second.Payout.Recipient)

	third := e.contribute(t, pool.ID, "alice")
	require.NotNil(t, third.Payout)
	assert.True(t, third.Payout.Forfeited)
	assert.Equal(t, "carol", third.Payout.Recipient)

	done, err := e.pools.Get(ctx, pool.ID)
	require.NoError(t, err)
	assert.Equal(t, pooldomain.PoolStatusCompleted, done.Status)

	assert.Equal(t, int64(9_799), e.balance(t, "alice"))
	assert.Equal(t, int64(201), e.balance(t, e.cfg.TreasuryAccount))
	assert.Equal(t, int64(0), e.balance(t, pool.EscrowAccount()))
}
