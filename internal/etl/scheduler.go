package etl

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/agenthands/pulse/internal/predicthq"
)

// IndexSyncFunc pushes the unindexed backlog to the external vector index.
type IndexSyncFunc func(ctx context.Context) (int, error)

// Scheduler runs the periodic background work: the hourly ingest over the
// trailing window and the external index sync. Both are opt-in.
type Scheduler struct {
	cron     *cron.Cron
	pipeline *Pipeline
	sync     IndexSyncFunc
	logger   *zap.Logger
}

func NewScheduler(pipeline *Pipeline, sync IndexSyncFunc, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		pipeline: pipeline,
		sync:     sync,
		logger:   logger,
	}
}

// EnableHourlyETL schedules an ingest of events starting today, every hour
// on the hour.
func (s *Scheduler) EnableHourlyETL(maxEvents int) error {
	_, err := s.cron.AddFunc("0 * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()

		params := Params{
			MaxEvents: maxEvents,
			Filter: predicthq.FetchFilter{
				StartDate: time.Now().UTC().Format("2006-01-02"),
			},
			UseCache: true,
		}
		rec, err := s.pipeline.Trigger(ctx, params)
		if err != nil {
			s.logger.Error("scheduled etl trigger failed", zap.Error(err))
			return
		}
		s.logger.Info("scheduled etl run started", zap.String("job_id", rec.ID))
	})
	return err
}

// EnableIndexSync schedules the vector index sync every 30 minutes.
func (s *Scheduler) EnableIndexSync() error {
	_, err := s.cron.AddFunc("*/30 * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		pushed, err := s.sync(ctx)
		if err != nil {
			s.logger.Error("scheduled index sync failed", zap.Error(err))
			return
		}
		if pushed > 0 {
			s.logger.Info("scheduled index sync complete", zap.Int("pushed", pushed))
		}
	})
	return err
}

func (s *Scheduler) Start() {
	s.logger.Info("scheduler started")
	s.cron.Start()
}

// Stop waits for in-flight scheduled runs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}
