package netgear

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// cronLogger forwards the scheduler's own logs to zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Trace().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}

// Schedule runs the rebooter checks at fixed times of day.
type Schedule struct {
	cron *cron.Cron
	spec string
}

func NewSchedule(cfg Config, r *Rebooter) (*Schedule, error) {
	cfg = cfg.withDefaults()

	loc := time.Local

	if cfg.Timezone != "" {
		var err error

		if loc, err = time.LoadLocation(cfg.Timezone); err != nil {
			return nil, fmt.Errorf("invalid timezone: %w", err)
		}
	}

	c := cron.New(
		cron.WithSeconds(),
		cron.WithLocation(loc),
		cron.WithLogger(cronLogger{}),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{})),
	)

	_, err := c.AddFunc(cfg.Schedule, func() {
		log.Debug().Str("Schedule", cfg.Schedule).Msg("netgear: scheduled check")
		r.Check(context.Background())
	})

	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", cfg.Schedule, err)
	}

	return &Schedule{cron: c, spec: cfg.Schedule}, nil
}

// Next returns the time of the next scheduled check after t.
func (s *Schedule) Next(t time.Time) time.Time {
	entries := s.cron.Entries()

	if len(entries) == 0 {
		return time.Time{}
	}

	return entries[0].Schedule.Next(t)
}

// Run blocks until the context is done, waiting for a running check to finish before returning.
func (s *Schedule) Run(ctx context.Context) error {
	log.Info().
		Str("Schedule", s.spec).
		Time("Next", s.Next(time.Now())).
		Msg("Starting netgear reboot schedule")

	s.cron.Start()
	<-ctx.Done()

	<-s.cron.Stop().Done()
	return nil
}
