package service

import (
	"context"
	"strconv"
	"strings"

	contributiondomain "github.com/axiomprotocol/susu/internal/contribution/domain"
	membershipdomain "github.com/axiomprotocol/susu/internal/membership/domain"
	payoutdomain "github.com/axiomprotocol/susu/internal/payout/domain"
	pooldomain "github.com/axiomprotocol/susu/internal/pool/domain"
	"github.com/axiomprotocol/susu/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
)

const (
	defaultPageSize = 10
	maxPageSize     = 250
)

// Get implements domain.Service.
func (s *Service) Get(ctx context.Context, poolID snowflake.ID) (*pooldomain.Pool, error) {
	if cached, ok := s.cache.GetPool(poolID); ok {
		return &cached, nil
	}

	pool, err := s.loadPool(ctx, nil, poolID)
	if err != nil {
		return nil, err
	}
	s.cache.SetPool(*pool)
	return pool, nil
}

// List implements domain.Service. Pools page newest-first on a
// snowflake-ID cursor.
func (s *Service) List(ctx context.Context, req pooldomain.ListPoolsRequest) (pooldomain.ListPoolsResponse, error) {
	limit := req.PageSize
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	query := s.db.WithContext(ctx).Model(&pooldomain.Pool{})
	if status := strings.TrimSpace(req.Status); status != "" {
		query = query.Where("status = ?", strings.ToUpper(status))
	}
	if creator := strings.TrimSpace(req.Creator); creator != "" {
		query = query.Where("creator = ?", creator)
	}

	if req.PageToken != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return pooldomain.ListPoolsResponse{}, err
		}
		afterID, err := strconv.ParseInt(cursor.ID, 10, 64)
		if err != nil {
			return pooldomain.ListPoolsResponse{}, err
		}
		query = query.Where("id < ?", afterID)
	}

	var pools []pooldomain.Pool
	if err := query.Order("id DESC").Limit(limit + 1).Find(&pools).Error; err != nil {
		return pooldomain.ListPoolsResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(pools, limit, func(p pooldomain.Pool) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{ID: strconv.FormatInt(int64(p.ID), 10)})
		return token
	})
	if len(pools) > limit {
		pools = pools[:limit]
	}

	return pooldomain.ListPoolsResponse{
		PageInfo: *pageInfo,
		Pools:    pools,
	}, nil
}

// Members implements domain.Service.
func (s *Service) Members(ctx context.Context, poolID snowflake.ID) ([]membershipdomain.Member, error) {
	if _, err := s.Get(ctx, poolID); err != nil {
		return nil, err
	}
	return s.members.List(ctx, nil, poolID)
}

// Member implements domain.Service.
func (s *Service) Member(ctx context.Context, poolID snowflake.ID, identity string) (*membershipdomain.Member, error) {
	member, err := s.members.Get(ctx, nil, poolID, identity)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, membershipdomain.ErrNotAMember
	}
	return member, nil
}

// PayoutOrder implements domain.Service.
func (s *Service) PayoutOrder(ctx context.Context, poolID snowflake.ID) ([]membershipdomain.Member, error) {
	if cached, ok := s.cache.GetPayoutOrder(poolID); ok {
		return cached, nil
	}

	if _, err := s.Get(ctx, poolID); err != nil {
		return nil, err
	}
	order, err := s.members.PayoutOrder(ctx, poolID)
	if err != nil {
		return nil, err
	}
	s.cache.SetPayoutOrder(poolID, order)
	return order, nil
}

// UserPools implements domain.Service.
func (s *Service) UserPools(ctx context.Context, identity string) ([]pooldomain.Pool, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, pooldomain.ErrInvalidIdentity
	}

	ids, err := s.members.PoolIDs(ctx, identity)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	var pools []pooldomain.Pool
	err = s.db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("created_at ASC").
		Find(&pools).Error
	return pools, err
}

// Contribution implements domain.Service.
func (s *Service) Contribution(ctx context.Context, poolID snowflake.ID, cycle int, identity string) (*contributiondomain.Contribution, error) {
	return s.contributions.Get(ctx, nil, poolID, cycle, identity)
}

// HasContributed implements domain.Service.
func (s *Service) HasContributed(ctx context.Context, poolID snowflake.ID, cycle int, identity string) (bool, error) {
	return s.contributions.HasContributed(ctx, poolID, cycle, identity)
}

// CurrentRecipient implements domain.Service.
func (s *Service) CurrentRecipient(ctx context.Context, poolID snowflake.ID) (*membershipdomain.Member, error) {
	pool, err := s.Get(ctx, poolID)
	if err != nil {
		return nil, err
	}
	if pool.Status != pooldomain.PoolStatusActive {
		return nil, pooldomain.ErrPoolNotActive
	}

	recipient, err := s.members.AtPosition(ctx, nil, poolID, pool.CurrentCycle)
	if err != nil {
		return nil, err
	}
	if recipient == nil {
		return nil, payoutdomain.ErrNoRecipient
	}
	return recipient, nil
}

// ExpectedPayout implements domain.Service.
func (s *Service) ExpectedPayout(ctx context.Context, poolID snowflake.ID) (payoutdomain.Expected, error) {
	pool, err := s.Get(ctx, poolID)
	if err != nil {
		return payoutdomain.Expected{}, err
	}
	return s.payouts.Expected(pool.MemberTarget, pool.ContributionAmount, pool.ProtocolFeeBps), nil
}

// CycleInfo implements domain.Service.
func (s *Service) CycleInfo(ctx context.Context, poolID snowflake.ID) (pooldomain.CycleInfo, error) {
	pool, err := s.Get(ctx, poolID)
	if err != nil {
		return pooldomain.CycleInfo{}, err
	}
	if pool.Status != pooldomain.PoolStatusActive || pool.CycleStartedAt == nil {
		return pooldomain.CycleInfo{}, pooldomain.ErrPoolNotActive
	}

	count, err := s.contributions.Count(ctx, nil, poolID, pool.CurrentCycle)
	if err != nil {
		return pooldomain.CycleInfo{}, err
	}
	payout, err := s.payouts.Get(ctx, poolID, pool.CurrentCycle)
	if err != nil {
		return pooldomain.CycleInfo{}, err
	}

	start := *pool.CycleStartedAt
	end := start.Add(pool.CycleSpan())
	return pooldomain.CycleInfo{
		Cycle:           pool.CurrentCycle,
		StartAt:         start,
		EndAt:           end,
		GraceEndAt:      end.Add(pool.GraceSpan()),
		Contributions:   count,
		Expected:        pool.MemberTarget,
		PayoutProcessed: payout != nil,
	}, nil
}

// TotalPools implements domain.Service.
func (s *Service) TotalPools(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&pooldomain.Pool{}).Count(&count).Error
	return count, err
}
