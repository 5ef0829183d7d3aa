package app

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
)

// DefaultRevalueSpec runs revaluation when no schedule is configured.
const DefaultRevalueSpec = "@every 30s"

// Job is a unit of scheduled work.
type Job interface {
	Run(ctx context.Context) error
	Name() string
}

// Scheduler runs jobs on cron schedules.
type Scheduler struct {
	cron   *cron.Cron
	logger *common.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a stopped scheduler. Overlapping runs of the same job
// are skipped rather than queued.
func NewScheduler(logger *common.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// AddJob registers job on spec. An empty spec uses DefaultRevalueSpec.
func (s *Scheduler) AddJob(spec string, job Job) error {
	if spec == "" {
		spec = DefaultRevalueSpec
	}
	_, err := s.cron.AddFunc(spec, func() {
		start := time.Now()
		if err := job.Run(s.ctx); err != nil {
			s.logger.Warn().Err(err).Str("job", job.Name()).Msg("Scheduled job failed")
			return
		}
		s.logger.Debug().Str("job", job.Name()).Dur("elapsed", time.Since(start)).Msg("Scheduled job completed")
	})
	if err != nil {
		return err
	}
	s.logger.Info().Str("schedule", spec).Str("job", job.Name()).Msg("Job registered")
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().Msg("Scheduler started")
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("Scheduler stopped")
}

// revalueJob revalues every portfolio so snapshots keep accruing between trades.
type revalueJob struct {
	ledger    interfaces.LedgerStore
	valuation interfaces.ValuationService
	logger    *common.Logger
}

func (j *revalueJob) Name() string { return "revalue" }

// Run revalues each user in turn. One user's failure does not stop the rest.
func (j *revalueJob) Run(ctx context.Context) error {
	users, err := j.ledger.ListUserIDs(ctx)
	if err != nil {
		return err
	}
	failed := 0
	for _, userID := range users {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := j.valuation.Revalue(ctx, userID); err != nil {
			failed++
			j.logger.Warn().Err(err).Str("user_id", userID).Msg("Revalue failed")
		}
	}
	j.logger.Debug().Int("users", len(users)).Int("failed", failed).Msg("Revalue pass complete")
	return nil
}
