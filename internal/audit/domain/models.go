// Package domain contains the pool event log.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Action string

const (
	ActionPoolCreated   Action = "pool.created"
	ActionMemberJoined  Action = "pool.member_joined"
	ActionPoolStarted   Action = "pool.started"
	ActionContribution  Action = "pool.contribution"
	ActionPayout        Action = "pool.payout"
	ActionMemberExited  Action = "pool.member_exited"
	ActionMemberEjected Action = "pool.member_ejected"
	ActionPoolCompleted Action = "pool.completed"
	ActionPoolCancelled Action = "pool.cancelled"
)

// PoolEvent is one append-only audit row.
type PoolEvent struct {
	ID         snowflake.ID      `gorm:"primaryKey"`
	PoolID     snowflake.ID      `gorm:"not null;index"`
	Action     Action            `gorm:"type:text;not null;index"`
	Actor      string            `gorm:"type:text;not null"`
	Cycle      int               `gorm:"not null;default:0"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb"`
	OccurredAt time.Time         `gorm:"not null"`
	CreatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (PoolEvent) TableName() string { return "pool_events" }

// Service records and serves pool events. Record takes the caller's
// transaction so audit rows vanish with an aborted command.
type Service interface {
	Record(ctx context.Context, tx *gorm.DB, event PoolEvent) error
	ListEvents(ctx context.Context, poolID snowflake.ID) ([]PoolEvent, error)
}
