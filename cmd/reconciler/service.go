package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/perkmint/perkmint-backend/internal/reconcile"
	"github.com/perkmint/perkmint-backend/pkg/config"
	"github.com/perkmint/perkmint-backend/pkg/logger"
)

const (
	defaultPollMs         = 2000
	defaultRepairInterval = time.Minute
	maxBackoff            = 30 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

type dbPinger interface {
	Ping(context.Context) error
}

type ledgerPinger interface {
	Ping(context.Context) error
}

type reconciler interface {
	CorrelateOnce(ctx context.Context) (*reconcile.PassStats, error)
	RepairOrphans(ctx context.Context) (*reconcile.PassStats, error)
}

type ServiceParams struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         dbPinger
	Ledger     ledgerPinger
	Reconciler reconciler
}

type Service struct {
	cfg            *config.Config
	logg           *logger.Logger
	db             dbPinger
	ledger         ledgerPinger
	reconciler     reconciler
	pollInterval   time.Duration
	repairInterval time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Ledger == nil {
		return nil, errors.New("ledger client is required")
	}
	if params.Reconciler == nil {
		return nil, errors.New("reconcile service is required")
	}

	pollMs := params.Config.Reconciler.PollIntervalMS
	if pollMs <= 0 {
		pollMs = defaultPollMs
	}

	return &Service{
		cfg:            params.Config,
		logg:           params.Logger,
		db:             params.DB,
		ledger:         params.Ledger,
		reconciler:     params.Reconciler,
		pollInterval:   time.Duration(pollMs) * time.Millisecond,
		repairInterval: defaultRepairInterval,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	if err := pingDependency(ctx, s.logg, "database", s.db.Ping); err != nil {
		return err
	}
	if err := pingDependency(ctx, s.logg, "ledger", s.ledger.Ping); err != nil {
		return err
	}
	return nil
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

// Run drives the reconciliation loop: correlate every tick, repair orphans on
// the slower repair interval. Stale-pending expiry belongs to the cron worker.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	interval := s.pollInterval
	if interval <= 0 {
		interval = time.Duration(defaultPollMs) * time.Millisecond
	}
	backoff := interval

	// Zero lastRepair forces an orphan scan on startup so downtime gaps are
	// closed before regular polling resumes.
	var lastRepair time.Time

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "reconciler context canceled")
			return ctx.Err()
		default:
		}

		stats, err := s.reconciler.CorrelateOnce(ctx)
		if err != nil {
			s.logg.Error(ctx, "correlate pass error", err)
			backoff = nextBackoff(backoff, interval, maxBackoff)
			if err := s.sleep(ctx, withJitter(backoff)); err != nil {
				return err
			}
			continue
		}

		backoff = interval

		if time.Since(lastRepair) >= s.repairInterval {
			if repairStats, err := s.reconciler.RepairOrphans(ctx); err != nil {
				s.logg.Error(ctx, "orphan repair pass error", err)
			} else {
				lastRepair = time.Now()
				if repairStats.Repaired > 0 {
					s.logg.Info(s.logg.WithFields(ctx, map[string]any{
						"scanned":  repairStats.Scanned,
						"repaired": repairStats.Repaired,
					}), "orphan repair pass completed")
				}
			}
		}

		// Terminal outcomes mean there may be more backlog behind the batch.
		if stats.Confirmed+stats.Failed > 0 {
			continue
		}

		if err := s.sleep(ctx, withJitter(interval)); err != nil {
			return err
		}
	}
}

func (s *Service) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	jitter := time.Duration(jitterSource.Int63n(int64(jitterWindow)))
	return d + jitter
}
