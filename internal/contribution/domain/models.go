// Package domain contains per-cycle contribution records.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Contribution is one member's payment for one cycle. At most one row
// exists per (pool, cycle, identity). Forfeited rows are zero-amount
// placeholders created when a member exits an active pool so the
// cycle's completeness check still reaches the member target.
type Contribution struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	PoolID    snowflake.ID `gorm:"not null;index;uniqueIndex:ux_contributions,priority:1"`
	Cycle     int          `gorm:"not null;uniqueIndex:ux_contributions,priority:2"`
	Identity  string       `gorm:"type:text;not null;uniqueIndex:ux_contributions,priority:3"`
	Amount    int64        `gorm:"not null"`
	WasLate   bool         `gorm:"not null;default:false"`
	Forfeited bool         `gorm:"not null;default:false"`
	Reference string       `gorm:"type:text;not null"`
	PaidAt    time.Time    `gorm:"not null"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Contribution) TableName() string { return "pool_contributions" }
