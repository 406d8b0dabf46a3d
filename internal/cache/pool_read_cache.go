package cache

import (
	"time"

	membershipdomain "github.com/axiomprotocol/susu/internal/membership/domain"
	pooldomain "github.com/axiomprotocol/susu/internal/pool/domain"
	"github.com/bwmarrin/snowflake"
)

const (
	defaultPoolTTL  = 5 * time.Second
	defaultOrderTTL = 30 * time.Second
)

// PoolReadCache stores hot-path pool lookups. Entries are short-lived
// and invalidated on every state-changing command, so readers observe
// at worst a few seconds of staleness on pure query paths.
type PoolReadCache interface {
	GetPool(id snowflake.ID) (pooldomain.Pool, bool)
	SetPool(pool pooldomain.Pool)
	GetPayoutOrder(id snowflake.ID) ([]membershipdomain.Member, bool)
	SetPayoutOrder(id snowflake.ID, order []membershipdomain.Member)
	Invalidate(id snowflake.ID)
}

type poolReadCache struct {
	pools    Cache[snowflake.ID, pooldomain.Pool]
	orders   Cache[snowflake.ID, []membershipdomain.Member]
	poolTTL  time.Duration
	orderTTL time.Duration
}

// NewPoolReadCache returns an in-memory cache tuned for pool queries.
func NewPoolReadCache() PoolReadCache {
	return &poolReadCache{
		pools:    NewTTLCache[snowflake.ID, pooldomain.Pool](),
		orders:   NewTTLCache[snowflake.ID, []membershipdomain.Member](),
		poolTTL:  defaultPoolTTL,
		orderTTL: defaultOrderTTL,
	}
}

func (c *poolReadCache) GetPool(id snowflake.ID) (pooldomain.Pool, bool) {
	return c.pools.Get(id)
}

func (c *poolReadCache) SetPool(pool pooldomain.Pool) {
	if pool.ID == 0 {
		return
	}
	c.pools.Set(pool.ID, pool, c.poolTTL)
}

func (c *poolReadCache) GetPayoutOrder(id snowflake.ID) ([]membershipdomain.Member, bool) {
	return c.orders.Get(id)
}

func (c *poolReadCache) SetPayoutOrder(id snowflake.ID, order []membershipdomain.Member) {
	if len(order) == 0 {
		return
	}
	c.orders.Set(id, order, c.orderTTL)
}

func (c *poolReadCache) Invalidate(id snowflake.ID) {
	c.pools.Delete(id)
	c.orders.Delete(id)
}
