// Package domain contains the fungible-token ledger models. The
// engine treats the ledger as a collaborator: balances, allowances and
// an append-only transfer journal.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Account is one identity's balance in one token.
type Account struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	Identity  string       `gorm:"type:text;not null;uniqueIndex:ux_token_accounts_identity,priority:1"`
	Token     string       `gorm:"type:text;not null;uniqueIndex:ux_token_accounts_identity,priority:2"`
	Balance   int64        `gorm:"not null;default:0"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Account) TableName() string { return "token_accounts" }

// Allowance caps what a spender may pull from an owner's balance.
type Allowance struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	Owner     string       `gorm:"type:text;not null;uniqueIndex:ux_token_allowances,priority:1"`
	Spender   string       `gorm:"type:text;not null;uniqueIndex:ux_token_allowances,priority:2"`
	Token     string       `gorm:"type:text;not null;uniqueIndex:ux_token_allowances,priority:3"`
	Remaining int64        `gorm:"not null;default:0"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Allowance) TableName() string { return "token_allowances" }

// Transfer is one journal row per balance movement.
type Transfer struct {
	ID           snowflake.ID `gorm:"primaryKey"`
	Reference    string       `gorm:"type:text;not null;uniqueIndex"`
	Token        string       `gorm:"type:text;not null;index"`
	FromIdentity string       `gorm:"type:text;not null;index"`
	ToIdentity   string       `gorm:"type:text;not null;index"`
	Amount       int64        `gorm:"not null"`
	Memo         string       `gorm:"type:text"`
	CreatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Transfer) TableName() string { return "token_transfers" }
