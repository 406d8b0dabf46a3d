package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	tokendomain "github.com/axiomprotocol/susu/internal/token/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupLedger(t *testing.T) (tokendomain.Ledger, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&tokendomain.Account{},
		&tokendomain.Allowance{},
		&tokendomain.Transfer{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	ledger := NewService(Params{DB: db, Log: zap.NewNop(), GenID: node})
	return ledger, db
}

func TestMintAndBalance(t *testing.T) {
	ledger, _ := setupLedger(t)
	ctx := context.Background()

	require.NoError(t, ledger.Mint(ctx, "USDX", "alice", 1_000))
	require.NoError(t, ledger.Mint(ctx, "USDX", "alice", 500))

	balance, err := ledger.BalanceOf(ctx, "USDX", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1_500), balance)

	// other tokens are independent
	balance, err = ledger.BalanceOf(ctx, "EURX", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)
}

func TestTransfer(t *testing.T) {
	ledger, _ := setupLedger(t)
	ctx := context.Background()

	require.NoError(t, ledger.Mint(ctx, "USDX", "alice", 1_000))
	require.NoError(t, ledger.Transfer(ctx, nil, "USDX", "alice", "bob", 400, "test"))

	aliceBalance, err := ledger.BalanceOf(ctx, "USDX", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(600), aliceBalance)

	bobBalance, err := ledger.BalanceOf(ctx, "USDX", "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(400), bobBalance)
}

func TestTransferInsufficientFunds(t *testing.T) {
	ledger, _ := setupLedger(t)
	ctx := context.Background()

	require.NoError(t, ledger.Mint(ctx, "USDX", "alice", 100))

	err := ledger.Transfer(ctx, nil, "USDX", "alice", "bob", 200, "test")
	assert.ErrorIs(t, err, tokendomain.ErrInsufficientFunds)

	// balance untouched
	balance, err := ledger.BalanceOf(ctx, "USDX", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)
}

func TestTransferValidation(t *testing.T) {
	ledger, _ := setupLedger(t)
	ctx := context.Background()

	assert.ErrorIs(t, ledger.Transfer(ctx, nil, "USDX", "alice", "alice", 100, ""), tokendomain.ErrSameAccount)
	assert.ErrorIs(t, ledger.Transfer(ctx, nil, "USDX", "alice", "bob", 0, ""), tokendomain.ErrInvalidAmount)
	assert.ErrorIs(t, ledger.Transfer(ctx, nil, "", "alice", "bob", 100, ""), tokendomain.ErrInvalidToken)
}

func TestTransferFromConsumesAllowance(t *testing.T) {
	ledger, _ := setupLedger(t)
	ctx := context.Background()

	require.NoError(t, ledger.Mint(ctx, "USDX", "alice", 1_000))
	require.NoError(t, ledger.Approve(ctx, "USDX", "alice", "engine", 300))

	require.NoError(t, ledger.TransferFrom(ctx, nil, "USDX", "engine", "alice", "pool:1", 200, "contribution"))

	remaining, err := ledger.Allowance(ctx, "USDX", "alice", "engine")
	require.NoError(t, err)
	assert.Equal(t, int64(100), remaining)

	// the next pull exceeds what is left
	err = ledger.TransferFrom(ctx, nil, "USDX", "engine", "alice", "pool:1", 200, "contribution")
	assert.ErrorIs(t, err, tokendomain.ErrInsufficientAllowance)
}

func TestTransferFromRollsBackWithTransaction(t *testing.T) {
	ledger, db := setupLedger(t)
	ctx := context.Background()

	require.NoError(t, ledger.Mint(ctx, "USDX", "alice", 1_000))
	require.NoError(t, ledger.Approve(ctx, "USDX", "alice", "engine", 1_000))

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := ledger.TransferFrom(ctx, tx, "USDX", "engine", "alice", "pool:1", 500, "contribution"); err != nil {
			return err
		}
		return assert.AnError
	})
	require.Error(t, err)

	// the aborted transaction must leave balance and allowance intact
	balance, err := ledger.BalanceOf(ctx, "USDX", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1_000), balance)

	remaining, err := ledger.Allowance(ctx, "USDX", "alice", "engine")
	require.NoError(t, err)
	assert.Equal(t, int64(1_000), remaining)
}
