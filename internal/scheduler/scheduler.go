package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// sweepTimeout is the soft deadline for one sweep. The poller checks it
// between subscribers, never mid-subscriber.
const sweepTimeout = 15 * time.Minute

type Scheduler struct {
	ctx    context.Context
	cron   *cron.Cron
	poller *Poller
	spec   string
	log    *slog.Logger
}

func New(ctx context.Context, poller *Poller, spec string, log *slog.Logger) *Scheduler {
	return &Scheduler{
		ctx:    ctx,
		cron:   cron.New(cron.WithLocation(time.UTC)),
		poller: poller,
		spec:   spec,
		log:    log,
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.sweep); err != nil {
		return err
	}

	s.cron.Start()

	return nil
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
}

func (s *Scheduler) sweep() {
	ctx, cancel := context.WithTimeout(s.ctx, sweepTimeout)
	defer cancel()

	if s.ctx.Err() != nil {
		s.log.InfoContext(ctx, "Scheduler context is done",
			"error", s.ctx.Err())

		return
	}

	s.poller.RunOnce(ctx)
}
