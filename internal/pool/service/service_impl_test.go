package service

import (
	"context"
	"testing"
	"time"

	auditdomain "github.com/axiomprotocol/susu/internal/audit/domain"
	auditservice "github.com/axiomprotocol/susu/internal/audit/service"
	"github.com/axiomprotocol/susu/internal/cache"
	"github.com/axiomprotocol/susu/internal/clock"
	"github.com/axiomprotocol/susu/internal/config"
	contributionservice "github.com/axiomprotocol/susu/internal/contribution/service"
	"github.com/axiomprotocol/susu/internal/entropy"
	membershipdomain "github.com/axiomprotocol/susu/internal/membership/domain"
	membershipservice "github.com/axiomprotocol/susu/internal/membership/service"
	"github.com/axiomprotocol/susu/internal/migration"
	payoutservice "github.com/axiomprotocol/susu/internal/payout/service"
	pooldomain "github.com/axiomprotocol/susu/internal/pool/domain"
	tokendomain "github.com/axiomprotocol/susu/internal/token/domain"
	tokenservice "github.com/axiomprotocol/susu/internal/token/service"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testToken = "USDX"

type engine struct {
	pools  pooldomain.Service
	ledger tokendomain.Ledger
	audit  auditdomain.Service
	clk    *clock.FakeClock
	cfg    config.Config
	db     *gorm.DB
}

func newEngine(t *testing.T, policy config.Policy) *engine {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	// A single connection keeps the in-memory database shared across
	// every statement the services issue.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, migration.AutoMigrate(db))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	logger := zap.NewNop()
	clk := clock.NewFakeClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	cfg := config.Config{
		TreasuryAccount: "treasury",
		EngineAccount:   "susu-engine",
	}

	ledger := tokenservice.NewService(tokenservice.Params{DB: db, Log: logger, GenID: node})
	members := membershipservice.NewService(membershipservice.Params{DB: db, Log: logger, GenID: node})
	contributions := contributionservice.NewService(contributionservice.Params{DB: db, Log: logger, GenID: node})
	payouts := payoutservice.NewService(payoutservice.Params{DB: db, Log: logger, GenID: node, Ledger: ledger})
	audit := auditservice.NewService(auditservice.Params{DB: db, Log: logger, GenID: node, Clock: clk})

	pools := NewService(Params{
		DB:            db,
		Log:           logger,
		GenID:         node,
		Clock:         clk,
		Entropy:       entropy.NewHashSource(),
		Config:        cfg,
		Policy:        config.NewStaticPolicyHolder(policy),
		Ledger:        ledger,
		Members:       members,
		Contributions: contributions,
		Payouts:       payouts,
		Audit:         audit,
		Cache:         cache.NewPoolReadCache(),
	})

	return &engine{
		pools:  pools,
		ledger: ledger,
		audit:  audit,
		clk:    clk,
		cfg:    cfg,
		db:     db,
	}
}

// fund mints a working balance for each identity and approves the
// engine account to pull contributions from it.
func (e *engine) fund(t *testing.T, identities ...string) {
	t.Helper()
	ctx := context.Background()
	for _, identity := range identities {
		require.NoError(t, e.ledger.Mint(ctx, testToken, identity, 10_000))
		require.NoError(t, e.ledger.Approve(ctx, testToken, identity, e.cfg.EngineAccount, 1_000_000))
	}
}

func (e *engine) balance(t *testing.T, identity string) int64 {
	t.Helper()
	balance, err := e.ledger.BalanceOf(context.Background(), testToken, identity)
	require.NoError(t, err)
	return balance
}

func basePoolRequest(e *engine, creator string) pooldomain.CreatePoolRequest {
	return pooldomain.CreatePoolRequest{
		Creator:            creator,
		Name:               "Friday Susu",
		Token:              testToken,
		MemberTarget:       3,
		ContributionAmount: 100,
		CycleDuration:      24 * time.Hour,
		GracePeriod:        time.Hour,
		StartTime:          e.clk.Now().Add(time.Hour),
		OpenJoin:           true,
		ProtocolFeeBps:     100,
	}
}

// activePool creates a pool sized to the given roster, joins and funds
// everyone, and starts it. The first identity is the creator.
func (e *engine) activePool(t *testing.T, req pooldomain.CreatePoolRequest, identities ...string) *pooldomain.Pool {
	t.Helper()
	ctx := context.Background()

	req.MemberTarget = len(identities)
	pool, err := e.pools.Create(ctx, req)
	require.NoError(t, err)

	e.fund(t, identities...)
	for _, identity := range identities {
		_, err := e.pools.Join(ctx, pooldomain.JoinPoolRequest{PoolID: pool.ID, Identity: identity})
		require.NoError(t, err)
	}

	e.clk.Advance(time.Hour)
	started, err := e.pools.Start(ctx, pool.ID)
	require.NoError(t, err)
	return started
}

func (e *engine) contribute(t *testing.T, poolID snowflake.ID, identity string) *pooldomain.ContributeResult {
	t.Helper()
	result, err := e.pools.Contribute(context.Background(), pooldomain.ContributeRequest{
		PoolID:   poolID,
		Identity: identity,
	})
	require.NoError(t, err)
	return result
}

func TestCreatePool(t *testing.T) {
	e := newEngine(t, config.DefaultPolicy())
	ctx := context.Background()

	pool, err := e.pools.Create(ctx, basePoolRequest(e, "alice"))
	require.NoError(t, err)

	assert.Equal(t, pooldomain.PoolStatusPending, pool.Status)
	assert.Equal(t, "friday-susu", pool.Slug)
	assert.Equal(t, pooldomain.OrderModeSequential, pool.OrderMode)
	assert.Equal(t, 0, pool.CurrentCycle)
	assert.Equal(t, int64(0), pool.PermutationSeed)
	assert.NotZero(t, pool.ID)

	fetched, err := e.pools.Get(ctx, pool.ID)
	require.NoError(t, err)
	assert.Equal(t, pool.ID, fetched.ID)

	total, err := e.pools.TotalPools(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestCreatePoolRandomizedSeedsItself(t *testing.T) {
	e := newEngine(t, config.DefaultPolicy())

	req := basePoolRequest(e, "alice")
	req.RandomizedOrder = true
	pool, err := e.pools.Create(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, pooldomain.OrderModeRandomized, pool.OrderMode)
	assert.NotZero(t, pool.PermutationSeed)
}

func TestCreatePoolValidation(t *testing.T) {
	e := newEngine(t, config.DefaultPolicy())
	ctx := context.Background()

	cases := []struct {
		name    string
		mutate  func(*pooldomain.CreatePoolRequest)
		wantErr error
	}{
		{"empty creator", func(r *pooldomain.CreatePoolRequest) { r.Creator = "  " }, pooldomain.ErrInvalidCreator},
		{"empty name", func(r *pooldomain.CreatePoolRequest) { r.Name = "" }, pooldomain.ErrInvalidName},
		{"empty token", func(r *pooldomain.CreatePoolRequest) { r.Token = "" }, pooldomain.ErrInvalidToken},
		{"target below minimum", func(r *pooldomain.CreatePoolRequest) { r.MemberTarget = 1 }, pooldomain.ErrInvalidMemberCount},
		{"target above open cap", func(r *pooldomain.CreatePoolRequest) { r.MemberTarget = 51 }, pooldomain.ErrInvalidMemberCount},
		{"target above vault cap", func(r *pooldomain.CreatePoolRequest) {
			r.VaultMode = true
			r.MemberTarget = 21
		}, pooldomain.ErrInvalidMemberCount},
		{"zero contribution", func(r *pooldomain.CreatePoolRequest) { r.ContributionAmount = 0 }, pooldomain.ErrInvalidContribution},
		{"zero cycle", func(r *pooldomain.CreatePoolRequest) { r.CycleDuration = 0 }, pooldomain.ErrInvalidCycleLength},
		{"negative grace", func(r *pooldomain.CreatePoolRequest) { r.GracePeriod = -time.Minute }, pooldomain.ErrInvalidGracePeriod},
		{"grace swallows cycle", func(r *pooldomain.CreatePoolRequest) { r.GracePeriod = r.CycleDuration }, pooldomain.ErrInvalidGracePeriod},
		{"start in past", func(r *pooldomain.CreatePoolRequest) { r.StartTime = e.clk.Now().Add(-time.Minute) }, pooldomain.ErrStartTimeInPast},
		{"start right now", func(r *pooldomain.CreatePoolRequest) { r.StartTime = e.clk.Now() }, pooldomain.ErrStartTimeInPast},
		{"protocol fee out of range", func(r *pooldomain.CreatePoolRequest) { r.ProtocolFeeBps = 10_001 }, pooldomain.ErrInvalidFeeBps},
		{"negative late fee", func(r *pooldomain.CreatePoolRequest) { r.LateFeeBps = -1 }, pooldomain.ErrInvalidFeeBps},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := basePoolRequest(e, "alice")
			tc.mutate(&req)
			_, err := e.pools.Create(ctx, req)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestJoinRoster(t *testing.T) {
	e := newEngine(t, config.DefaultPolicy())
	ctx := context.Background()

	pool, err := e.pools.Create(ctx, basePoolRequest(e, "alice"))
	require.NoError(t, err)

	for i, identity := range []string{"alice", "bob", "carol"} {
		member, err := e.pools.Join(ctx, pooldomain.JoinPoolRequest{PoolID: pool.ID, Identity: identity})
		require.NoError(t, err)
		assert.Equal(t, i+1, member.PayoutPosition)
		assert.Equal(t, membershipdomain.MemberStatusActive, member.Status)
	}

	_, err = e.pools.Join(ctx, pooldomain.JoinPoolRequest{PoolID: pool.ID, Identity: "bob"})
	assert.ErrorIs(t, err, membershipdomain.ErrAlreadyMember)

	_, err = e.pools.Join(ctx, pooldomain.JoinPoolRequest{PoolID: pool.ID, Identity: "dave"})
	assert.ErrorIs(t, err, membershipdomain.ErrPoolFull)

	_, err = e.pools.Join(ctx, pooldomain.JoinPoolRequest{PoolID: pool.ID, Identity: " "})
	assert.ErrorIs(t, err, pooldomain.ErrInvalidIdentity)

	members, err := e.pools.Members(ctx, pool.ID)
	require.NoError(t, err)
	require.Len(t, members, 3)

	member, err := e.pools.Member(ctx, pool.ID, "carol")
	require.NoError(t, err)
	assert.Equal(t, 3, member.PayoutPosition)

	_, err = e.pools.Member(ctx, pool.ID, "dave")
	assert.ErrorIs(t, err, membershipdomain.ErrNotAMember)

	userPools, err := e.pools.UserPools(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, userPools, 1)
	assert.Equal(t, pool.ID, userPools[0].ID)
}

func TestJoinInviteOnly(t *testing.T) {
	e := newEngine(t, config.DefaultPolicy())
	ctx := context.Background()

	req := basePoolRequest(e, "alice")
	req.OpenJoin = false
	pool, err := e.pools.Create(ctx, req)
	require.NoError(t, err)

	_, err = e.pools.Join(ctx, pooldomain.JoinPoolRequest{PoolID: pool.ID, Identity: "bob"})
	assert.ErrorIs(t, err, pooldomain.ErrInviteOnly)

	_, err = e.pools.Join(ctx, pooldomain.JoinPoolRequest{PoolID: pool.ID, Identity: "bob", Inviter: "mallory"})
	assert.ErrorIs(t, err, pooldomain.ErrInviteOnly)

	_, err = e.pools.Join(ctx, pooldomain.JoinPoolRequest{PoolID: pool.ID, Identity: "bob", Inviter: "alice"})
	require.NoError(t, err)
}

func TestStartPreconditions(t *testing.T) {
	e := newEngine(t, config.DefaultPolicy())
	ctx := context.Background()

	pool, err := e.pools.Create(ctx, basePoolRequest(e, "alice"))
	require.NoError(t, err)

	for _, identity := range []string{"alice", "bob"} {
		_, err := e.pools.Join(ctx, pooldomain.JoinPoolRequest{PoolID: pool.ID, Identity: identity})
		require.NoError(t, err)
	}

	_, err = e.pools.Start(ctx, pool.ID)
	assert.ErrorIs(t, err, pooldomain.ErrStartTimeNotReached)

	e.clk.Advance(time.Hour)
	_, err = e.pools.Start(ctx, pool.ID)
	assert.ErrorIs(t, err, pooldomain.ErrPoolNotFull)

	_, err = e.pools.Join(ctx, pooldomain.JoinPoolRequest{PoolID: pool.ID, Identity: "carol"})
	require.NoError(t, err)

	started, err := e.pools.Start(ctx, pool.ID)
	require.NoError(t, err)
	assert.Equal(t, pooldomain.PoolStatusActive, started.Status)
	assert.Equal(t, 1, started.CurrentCycle)
	require.NotNil(t, started.CycleStartedAt)
	assert.Equal(t, e.clk.Now(), started.CycleStartedAt.UTC())

	_, err = e.pools.Start(ctx, pool.ID)
	assert.ErrorIs(t, err, pooldomain.ErrPoolNotPending)

	_, err = e.pools.Join(ctx, pooldomain.JoinPoolRequest{PoolID: pool.ID, Identity: "dave"})
	assert.ErrorIs(t, err, pooldomain.ErrPoolNotPending)

	_, err = e.pools.Start(ctx, snowflake.ID(42))
	assert.ErrorIs(t, err, pooldomain.ErrPoolNotFound)
}

func TestRandomizedOrderIsDeterministic(t *testing.T) {
	e := newEngine(t, config.DefaultPolicy())
	ctx := context.Background()
	roster := []string{"alice", "bob", "carol", "dave"}

	makePool := func(name string) snowflake.ID {
		req := basePoolRequest(e, "alice")
		req.Name = name
		req.MemberTarget = len(roster)
		req.RandomizedOrder = true
		req.PermutationSeed = 42
		req.StartTime = e.clk.Now().Add(time.Hour)
		pool, err := e.pools.Create(ctx, req)
		require.NoError(t, err)
		for _, identity := range roster {
			_, err := e.pools.Join(ctx, pooldomain.JoinPoolRequest{PoolID: pool.ID, Identity: identity})
			require.NoError(t, err)
		}
		return pool.ID
	}

	first := makePool("first")
	second := makePool("second")

	e.clk.Advance(time.Hour)
	_, err := e.pools.Start(ctx, first)
	require.NoError(t, err)
	_, err = e.pools.Start(ctx, second)
	require.NoError(t, err)

	orderOf := func(id snowflake.ID) []string {
		order, err := e.pools.PayoutOrder(ctx, id)
		require.NoError(t, err)
		identities := make([]string, len(order))
		positions := map[int]bool{}
		for i, member := range order {
			identities[i] = member.Identity
			positions[member.PayoutPosition] = true
		}
		// positions must be a permutation of 1..n
		for p := 1; p <= len(order); p++ {
			assert.True(t, positions[p])
		}
		return identities
	}

	assert.Equal(t, orderOf(first), orderOf(second))
	assert.ElementsMatch(t, roster, orderOf(first))
}

func TestExitPendingCompactsPositions(t *testing.T) {
	e := newEngine(t, config.DefaultPolicy())
	ctx := context.Background()

	req := basePoolRequest(e, "alice")
	req.MemberTarget = 4
	pool, err := e.pools.Create(ctx, req)
	require.NoError(t, err)

	for _, identity := range []string{"alice", "bob", "carol"} {
		_, err := e.pools.Join(ctx, pooldomain.JoinPoolRequest{PoolID: pool.ID, Identity: identity})
		require.NoError(t, err)
	}

	require.NoError(t, e.pools.Exit(ctx, pool.ID, "bob"))

	members, err := e.pools.Members(ctx, pool.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "alice", members[0].Identity)
	assert.Equal(t, 1, members[0].PayoutPosition)
	assert.Equal(t, "carol", members[1].Identity)
	assert.Equal(t, 2, members[1].PayoutPosition)

	// A pending exit deletes the roster row, so rejoining is allowed.
	member, err := e.pools.Join(ctx, pooldomain.JoinPoolRequest{PoolID: pool.ID, Identity: "bob"})
	require.NoError(t, err)
	assert.Equal(t, 3, member.PayoutPosition)

	err = e.pools.Exit(ctx, pool.ID, "dave")
	assert.ErrorIs(t, err, membershipdomain.ErrNotAMember)
}

func TestListPools(t *testing.T) {
	e := newEngine(t, config.DefaultPolicy())
	ctx := context.Background()

	for _, name := range []string{"one", "two", "three", "four", "five"} {
		req := basePoolRequest(e, "alice")
		req.Name = name
		_, err := e.pools.Create(ctx, req)
		require.NoError(t, err)
	}
	req := basePoolRequest(e, "bob")
	req.Name = "theirs"
	cancelled, err := e.pools.Create(ctx, req)
	require.NoError(t, err)
	require.NoError(t, e.pools.Cancel(ctx, cancelled.ID, "never filled"))

	page, err := e.pools.List(ctx, pooldomain.ListPoolsRequest{PageSize: 4})
	require.NoError(t, err)
	require.Len(t, page.Pools, 4)
	assert.True(t, page.HasMore)
	// newest first
	assert.Equal(t, "theirs", page.Pools[0].Name)

	rest, err := e.pools.List(ctx, pooldomain.ListPoolsRequest{PageSize: 4, PageToken: page.NextPageToken})
	require.NoError(t, err)
	require.Len(t, rest.Pools, 2)
	assert.False(t, rest.HasMore)

	byCreator, err := e.pools.List(ctx, pooldomain.ListPoolsRequest{Creator: "bob"})
	require.NoError(t, err)
	require.Len(t, byCreator.Pools, 1)
	assert.Equal(t, "theirs", byCreator.Pools[0].Name)

	byStatus, err := e.pools.List(ctx, pooldomain.ListPoolsRequest{Status: "cancelled"})
	require.NoError(t, err)
	require.Len(t, byStatus.Pools, 1)
	assert.Equal(t, cancelled.ID, byStatus.Pools[0].ID)
}

func TestActivePoolQueries(t *testing.T) {
	e := newEngine(t, config.DefaultPolicy())
	ctx := context.Background()

	pool := e.activePool(t, basePoolRequest(e, "alice"), "alice", "bob", "carol")

	info, err := e.pools.CycleInfo(ctx, pool.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, info.Cycle)
	assert.Equal(t, 3, info.Expected)
	assert.Equal(t, 0, info.Contributions)
	assert.False(t, info.PayoutProcessed)
	assert.Equal(t, info.StartAt.Add(24*time.Hour), info.EndAt)
	assert.Equal(t, info.EndAt.Add(time.Hour), info.GraceEndAt)

	expected, err := e.pools.ExpectedPayout(ctx, pool.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(300), expected.Gross)
	assert.Equal(t, int64(3), expected.Fee)
	assert.Equal(t, int64(297), expected.Net)

	recipient, err := e.pools.CurrentRecipient(ctx, pool.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", recipient.Identity)

	contributed, err := e.pools.HasContributed(ctx, pool.ID, 1, "bob")
	require.NoError(t, err)
	assert.False(t, contributed)

	e.contribute(t, pool.ID, "bob")
	contributed, err = e.pools.HasContributed(ctx, pool.ID, 1, "bob")
	require.NoError(t, err)
	assert.True(t, contributed)

	info, err = e.pools.CycleInfo(ctx, pool.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, info.Contributions)

	record, err := e.pools.Contribution(ctx, pool.ID, 1, "bob")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, int64(100), record.Amount)
	assert.False(t, record.WasLate)
}

func TestCycleInfoRequiresActivePool(t *testing.T) {
	e := newEngine(t, config.DefaultPolicy())
	ctx := context.Background()

	pool, err := e.pools.Create(ctx, basePoolRequest(e, "alice"))
	require.NoError(t, err)

	_, err = e.pools.CycleInfo(ctx, pool.ID)
	assert.ErrorIs(t, err, pooldomain.ErrPoolNotActive)

	_, err = e.pools.CurrentRecipient(ctx, pool.ID)
	assert.ErrorIs(t, err, pooldomain.ErrPoolNotActive)
}
