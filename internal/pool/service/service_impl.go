// Package service implements the pool lifecycle state machine. Every
// command runs in one database transaction under a per-pool mutex, so
// commands against one pool are strictly serialized while distinct
// pools proceed independently.
package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	auditdomain "github.com/axiomprotocol/susu/internal/audit/domain"
	"github.com/axiomprotocol/susu/internal/cache"
	"github.com/axiomprotocol/susu/internal/clock"
	"github.com/axiomprotocol/susu/internal/config"
	contributiondomain "github.com/axiomprotocol/susu/internal/contribution/domain"
	"github.com/axiomprotocol/susu/internal/entropy"
	"github.com/axiomprotocol/susu/internal/fees"
	membershipdomain "github.com/axiomprotocol/susu/internal/membership/domain"
	"github.com/axiomprotocol/susu/internal/observability/metrics"
	payoutdomain "github.com/axiomprotocol/susu/internal/payout/domain"
	pooldomain "github.com/axiomprotocol/susu/internal/pool/domain"
	tokendomain "github.com/axiomprotocol/susu/internal/token/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Entropy       entropy.Source
	Config        config.Config
	Policy        *config.PolicyHolder
	Ledger        tokendomain.Ledger
	Members       membershipdomain.Service
	Contributions contributiondomain.Service
	Payouts       payoutdomain.Service
	Audit         auditdomain.Service
	Cache         cache.PoolReadCache
	Metrics       *metrics.Metrics `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	entropy       entropy.Source
	cfg           config.Config
	policy        *config.PolicyHolder
	ledger        tokendomain.Ledger
	members       membershipdomain.Service
	contributions contributiondomain.Service
	payouts       payoutdomain.Service
	audit         auditdomain.Service
	cache         cache.PoolReadCache
	metrics       *metrics.Metrics

	mu    sync.Mutex
	locks map[snowflake.ID]*sync.Mutex
}

func NewService(p Params) pooldomain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("pool.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		entropy:       p.Entropy,
		cfg:           p.Config,
		policy:        p.Policy,
		ledger:        p.Ledger,
		members:       p.Members,
		contributions: p.Contributions,
		payouts:       p.Payouts,
		audit:         p.Audit,
		cache:         p.Cache,
		metrics:       p.Metrics,
		locks:         make(map[snowflake.ID]*sync.Mutex),
	}
}

// lock serializes commands against one pool. The mutex map only grows
// with the number of distinct pools touched by this process, which is
// bounded and small relative to row counts.
func (s *Service) lock(poolID snowflake.ID) func() {
	s.mu.Lock()
	m, ok := s.locks[poolID]
	if !ok {
		m = &sync.Mutex{}
		s.locks[poolID] = m
	}
	s.mu.Unlock()

	m.Lock()
	return m.Unlock
}

func (s *Service) observe(command string, started time.Time) {
	s.metrics.ObserveCommand(command, time.Since(started).Seconds())
}

// Create implements domain.Service.
func (s *Service) Create(ctx context.Context, req pooldomain.CreatePoolRequest) (*pooldomain.Pool, error) {
	defer s.observe("create", time.Now())

	now := s.clock.Now()
	policy := s.policy.Get()

	if err := validateCreate(req, policy, now); err != nil {
		s.metrics.RecordCommandError("create")
		return nil, err
	}

	orderMode := pooldomain.OrderModeSequential
	if req.RandomizedOrder {
		orderMode = pooldomain.OrderModeRandomized
	}

	seed := req.PermutationSeed
	if req.RandomizedOrder && seed == 0 {
		seed = int64(s.genID.Generate())
	}

	pool := &pooldomain.Pool{
		ID:      s.genID.Generate(),
		Creator: strings.TrimSpace(req.Creator),
		Name:    strings.TrimSpace(req.Name),
		Slug:    slug.Make(req.Name),
		Token:   strings.TrimSpace(req.Token),

		MemberTarget:       req.MemberTarget,
		ContributionAmount: req.ContributionAmount,
		CycleDuration:      int64(req.CycleDuration / time.Second),
		GracePeriod:        int64(req.GracePeriod / time.Second),
		StartTime:          req.StartTime.UTC(),
		OrderMode:          orderMode,
		OpenJoin:           req.OpenJoin,
		VaultMode:          req.VaultMode,
		ProtocolFeeBps:     req.ProtocolFeeBps,
		LateFeeBps:         req.LateFeeBps,
		PermutationSeed:    seed,

		Status:    pooldomain.PoolStatusPending,
		Metadata:  datatypes.JSONMap(req.Metadata),
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Create(pool).Error; err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, auditdomain.PoolEvent{
			PoolID: pool.ID,
			Action: auditdomain.ActionPoolCreated,
			Actor:  pool.Creator,
			Metadata: datatypes.JSONMap{
				"member_target":       pool.MemberTarget,
				"contribution_amount": pool.ContributionAmount,
				"token":               pool.Token,
			},
			OccurredAt: now,
		})
	})
	if err != nil {
		s.metrics.RecordCommandError("create")
		return nil, err
	}

	s.metrics.RecordPoolCreated()
	s.log.Info("pool created",
		zap.String("pool_id", pool.ID.String()),
		zap.String("creator", pool.Creator),
		zap.Int("member_target", pool.MemberTarget),
	)
	return pool, nil
}

func validateCreate(req pooldomain.CreatePoolRequest, policy config.Policy, now time.Time) error {
	if strings.TrimSpace(req.Creator) == "" {
		return pooldomain.ErrInvalidCreator
	}
	if strings.TrimSpace(req.Name) == "" {
		return pooldomain.ErrInvalidName
	}
	if strings.TrimSpace(req.Token) == "" {
		return pooldomain.ErrInvalidToken
	}

	maxMembers := policy.MaxMembersOpen
	if req.VaultMode {
		maxMembers = policy.MaxMembersVault
	}
	if req.MemberTarget < policy.MinMembers || req.MemberTarget > maxMembers {
		return pooldomain.ErrInvalidMemberCount
	}

	if req.ContributionAmount <= 0 {
		return pooldomain.ErrInvalidContribution
	}
	if req.CycleDuration <= 0 {
		return pooldomain.ErrInvalidCycleLength
	}
	if req.GracePeriod < 0 || req.GracePeriod >= req.CycleDuration {
		return pooldomain.ErrInvalidGracePeriod
	}
	if !req.StartTime.After(now) {
		return pooldomain.ErrStartTimeInPast
	}
	if !fees.ValidBps(req.ProtocolFeeBps) || req.ProtocolFeeBps > policy.MaxFeeBps {
		return pooldomain.ErrInvalidFeeBps
	}
	if !fees.ValidBps(req.LateFeeBps) || req.LateFeeBps > policy.MaxFeeBps {
		return pooldomain.ErrInvalidFeeBps
	}
	return nil
}

// Join implements domain.Service.
func (s *Service) Join(ctx context.Context, req pooldomain.JoinPoolRequest) (*membershipdomain.Member, error) {
	defer s.observe("join", time.Now())

	identity := strings.TrimSpace(req.Identity)
	if identity == "" {
		s.metrics.RecordCommandError("join")
		return nil, pooldomain.ErrInvalidIdentity
	}

	unlock := s.lock(req.PoolID)
	defer unlock()

	now := s.clock.Now()
	var member *membershipdomain.Member

	err := s.db.Transaction(func(tx *gorm.DB) error {
		pool, err := s.loadPool(ctx, tx, req.PoolID)
		if err != nil {
			return err
		}
		if pool.Terminal() {
			return pooldomain.ErrPoolTerminal
		}
		if pool.Status != pooldomain.PoolStatusPending {
			return pooldomain.ErrPoolNotPending
		}
		if !pool.OpenJoin && strings.TrimSpace(req.Inviter) != pool.Creator {
			return pooldomain.ErrInviteOnly
		}

		member, err = s.members.Join(ctx, tx, pool.ID, identity, pool.MemberTarget, now)
		if err != nil {
			return err
		}

		return s.audit.Record(ctx, tx, auditdomain.PoolEvent{
			PoolID:     pool.ID,
			Action:     auditdomain.ActionMemberJoined,
			Actor:      identity,
			Metadata:   datatypes.JSONMap{"payout_position": member.PayoutPosition},
			OccurredAt: now,
		})
	})
	if err != nil {
		s.metrics.RecordCommandError("join")
		return nil, err
	}

	s.cache.Invalidate(req.PoolID)
	s.metrics.RecordMemberJoined()
	return member, nil
}

// Start implements domain.Service.
func (s *Service) Start(ctx context.Context, poolID snowflake.ID) (*pooldomain.Pool, error) {
	defer s.observe("start", time.Now())

	unlock := s.lock(poolID)
	defer unlock()

	now := s.clock.Now()
	var pool *pooldomain.Pool

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		pool, err = s.loadPool(ctx, tx, poolID)
		if err != nil {
			return err
		}
		if pool.Terminal() {
			return pooldomain.ErrPoolTerminal
		}
		if pool.Status != pooldomain.PoolStatusPending {
			return pooldomain.ErrPoolNotPending
		}
		if now.Before(pool.StartTime) {
			return pooldomain.ErrStartTimeNotReached
		}

		count, err := s.members.Count(ctx, tx, pool.ID)
		if err != nil {
			return err
		}
		if count < pool.MemberTarget {
			return pooldomain.ErrPoolNotFull
		}

		if pool.OrderMode == pooldomain.OrderModeRandomized {
			perm := s.entropy.Permute(pool.PermutationSeed, pool.MemberTarget)
			if err := s.members.AssignRandomOrder(ctx, tx, pool.ID, perm); err != nil {
				return err
			}
		}

		pool.Status = pooldomain.PoolStatusActive
		pool.CurrentCycle = 1
		pool.CycleStartedAt = &now
		pool.UpdatedAt = now
		if err := tx.WithContext(ctx).Save(pool).Error; err != nil {
			return err
		}

		return s.audit.Record(ctx, tx, auditdomain.PoolEvent{
			PoolID: pool.ID,
			Action: auditdomain.ActionPoolStarted,
			Actor:  pool.Creator,
			Cycle:  1,
			Metadata: datatypes.JSONMap{
				"order_mode":       string(pool.OrderMode),
				"permutation_seed": pool.PermutationSeed,
			},
			OccurredAt: now,
		})
	})
	if err != nil {
		s.metrics.RecordCommandError("start")
		return nil, err
	}

	s.cache.Invalidate(poolID)
	s.metrics.RecordPoolStarted()
	s.log.Info("pool started",
		zap.String("pool_id", pool.ID.String()),
		zap.String("order_mode", string(pool.OrderMode)),
	)
	return pool, nil
}

func (s *Service) loadPool(ctx context.Context, tx *gorm.DB, poolID snowflake.ID) (*pooldomain.Pool, error) {
	if tx == nil {
		tx = s.db
	}
	var pool pooldomain.Pool
	err := tx.WithContext(ctx).Where("id = ?", poolID).First(&pool).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pooldomain.ErrPoolNotFound
		}
		return nil, err
	}
	return &pool, nil
}
