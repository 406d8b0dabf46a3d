// Package scheduler runs the deadline sweep: a periodic job that
// ejects members who missed a closed contribution window so stalled
// pools keep moving without waiting for the next inbound command.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/axiomprotocol/susu/internal/clock"
	pooldomain "github.com/axiomprotocol/susu/internal/pool/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("scheduler requires pool service, clock and logger")

type Params struct {
	fx.In

	Log    *zap.Logger
	Clock  clock.Clock
	Pools  pooldomain.Service
	Config Config `optional:"true"`
}

type Scheduler struct {
	log   *zap.Logger
	cfg   Config
	clock clock.Clock
	pools pooldomain.Service
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.Pools == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:   p.Log.Named("scheduler"),
		cfg:   p.Config.withDefaults(),
		clock: p.Clock,
		pools: p.Pools,
	}, nil
}

// RunForever sweeps on the configured interval until ctx is done.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep pass.
func (s *Scheduler) RunOnce(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, s.cfg.SweepTimeout)
	defer cancel()

	started := s.clock.Now()
	ejected, err := s.pools.SweepOverdue(ctx)
	if err != nil {
		s.log.Error("deadline sweep failed", zap.Error(err))
		return
	}
	if ejected > 0 {
		s.log.Info("deadline sweep ejected members",
			zap.Int("ejected", ejected),
			zap.Duration("took", s.clock.Now().Sub(started)),
		)
	}
}
