// Package domain contains payout records and disbursement math.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Payout is the immutable record of one cycle's disbursement.
// Forfeited marks a cycle whose recipient had exited; the net went to
// the treasury instead.
type Payout struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	PoolID    snowflake.ID `gorm:"not null;index;uniqueIndex:ux_pool_payouts,priority:1"`
	Cycle     int          `gorm:"not null;uniqueIndex:ux_pool_payouts,priority:2"`
	Recipient string       `gorm:"type:text;not null;index"`
	Gross     int64        `gorm:"not null"`
	Fee       int64        `gorm:"not null"`
	Net       int64        `gorm:"not null"`
	Forfeited bool         `gorm:"not null;default:false"`
	Reference string       `gorm:"type:text;not null"`
	PaidAt    time.Time    `gorm:"not null"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Payout) TableName() string { return "pool_payouts" }

// Expected is the projected split of the current cycle's pot.
type Expected struct {
	Gross int64 `json:"gross"`
	Fee   int64 `json:"fee"`
	Net   int64 `json:"net"`
}
