// Package domain contains the pool aggregate and its lifecycle
// contract.
package domain

import (
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// PoolStatus represents lifecycle states for a savings pool.
type PoolStatus string

const (
	PoolStatusPending   PoolStatus = "PENDING"
	PoolStatusActive    PoolStatus = "ACTIVE"
	PoolStatusCompleted PoolStatus = "COMPLETED"
	PoolStatusCancelled PoolStatus = "CANCELLED"
)

// OrderMode decides how payout positions are assigned.
type OrderMode string

const (
	OrderModeSequential OrderMode = "SEQUENTIAL"
	OrderModeRandomized OrderMode = "RANDOMIZED"
)

// Pool is one rotating-savings arrangement. Creation-time attributes
// are immutable; runtime attributes move only through lifecycle
// commands. Pools are never deleted, only status-transitioned.
type Pool struct {
	ID      snowflake.ID `gorm:"primaryKey"`
	Creator string       `gorm:"type:text;not null;index"`
	Name    string       `gorm:"type:text;not null"`
	Slug    string       `gorm:"type:text;not null;index"`
	Token   string       `gorm:"type:text;not null"`

	MemberTarget       int   `gorm:"not null"`
	ContributionAmount int64 `gorm:"not null"`
	// CycleDuration and GracePeriod are stored in seconds.
	CycleDuration   int64     `gorm:"not null"`
	GracePeriod     int64     `gorm:"not null"`
	StartTime       time.Time `gorm:"not null"`
	OrderMode       OrderMode `gorm:"type:text;not null"`
	OpenJoin        bool      `gorm:"not null;default:true"`
	VaultMode       bool      `gorm:"not null;default:false"`
	ProtocolFeeBps  int64     `gorm:"not null"`
	LateFeeBps      int64     `gorm:"not null"`
	PermutationSeed int64     `gorm:"not null;default:0"`

	Status         PoolStatus `gorm:"type:text;not null"`
	CurrentCycle   int        `gorm:"not null;default:0"`
	CycleStartedAt *time.Time `gorm:""`
	LastPayoutAt   *time.Time `gorm:""`
	CompletedAt    *time.Time `gorm:""`
	CancelledAt    *time.Time `gorm:""`
	CancelReason   string     `gorm:"type:text"`

	TotalContributed int64 `gorm:"not null;default:0"`
	TotalPaidOut     int64 `gorm:"not null;default:0"`
	TotalFees        int64 `gorm:"not null;default:0"`

	Metadata  datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Pool) TableName() string { return "pools" }

// EscrowAccount is the ledger identity holding the pool's in-flight
// cycle contributions.
func (p *Pool) EscrowAccount() string {
	return "pool:" + strconv.FormatInt(int64(p.ID), 10)
}

// Terminal reports whether the pool accepts further commands.
func (p *Pool) Terminal() bool {
	return p.Status == PoolStatusCompleted || p.Status == PoolStatusCancelled
}

// CycleSpan returns the nominal cycle duration.
func (p *Pool) CycleSpan() time.Duration {
	return time.Duration(p.CycleDuration) * time.Second
}

// GraceSpan returns the tolerance window after nominal cycle end.
func (p *Pool) GraceSpan() time.Duration {
	return time.Duration(p.GracePeriod) * time.Second
}

// CycleInfo is the derived snapshot of the current cycle.
type CycleInfo struct {
	Cycle           int       `json:"cycle"`
	StartAt         time.Time `json:"start_at"`
	EndAt           time.Time `json:"end_at"`
	GraceEndAt      time.Time `json:"grace_end_at"`
	Contributions   int       `json:"contributions"`
	Expected        int       `json:"expected"`
	PayoutProcessed bool      `json:"payout_processed"`
}
