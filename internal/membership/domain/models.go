// Package domain contains roster models for pool membership.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// MemberStatus represents a participant's standing within one pool.
type MemberStatus string

const (
	MemberStatusActive MemberStatus = "ACTIVE"
	MemberStatusExited MemberStatus = "EXITED"
	MemberStatusEjected MemberStatus = "EJECTED"
)

// Member captures one participant's standing within one pool.
type Member struct {
	ID                snowflake.ID `gorm:"primaryKey"`
	PoolID            snowflake.ID `gorm:"not null;index;uniqueIndex:ux_pool_members,priority:1"`
	Identity          string       `gorm:"type:text;not null;index;uniqueIndex:ux_pool_members,priority:2"`
	PayoutPosition    int          `gorm:"not null"`
	JoinedAt          time.Time    `gorm:"not null"`
	Status            MemberStatus `gorm:"type:text;not null"`
	ContributedTotal  int64        `gorm:"not null;default:0"`
	ReceivedTotal     int64        `gorm:"not null;default:0"`
	MissedPayments    int          `gorm:"not null;default:0"`
	LateFeesPaid      int64        `gorm:"not null;default:0"`
	HasReceivedPayout bool         `gorm:"not null;default:false"`
	ExitedAt          *time.Time   `gorm:""`
	CreatedAt         time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Member) TableName() string { return "pool_members" }
