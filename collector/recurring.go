package collector

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type scheduled struct {
  Source
  interval time.Duration
}

// Recurring collects every registered source at its own interval until stopped. Sources are
// independent: a slow or failing source never delays the others.
type Recurring struct {
  // Per-collection timeout, defaults to DefaultTimeout.
  Timeout time.Duration

  mu sync.Mutex
  sources []scheduled

  // collector has been Start()ed
  started bool
}

func NewRecurring() *Recurring {
  return &Recurring{Timeout: DefaultTimeout}
}

func (s *Recurring) Add(src Source, interval time.Duration) {
  s.mu.Lock()
  defer s.mu.Unlock()

  if s.started {
    panic("attempted to add a source to a running collector.Recurring")
  }

  if interval <= 0 {
    panic("collector.Recurring: interval must be positive")
  }

  s.sources = append(s.sources, scheduled{Source: src, interval: interval})
}

// Start collects from every source immediately and then once per interval, blocking until the
// context is done.
func (s *Recurring) Start(ctx context.Context) error {
  s.mu.Lock()

  if s.started {
    s.mu.Unlock()
    panic("attempted to call collector.Recurring.Start() twice")
  }

  s.started = true
  sources := s.sources
  s.mu.Unlock()

  eg, ctx := errgroup.WithContext(ctx)

  for _, src := range sources {
    src := src

    log.Info().
      Stringer("Source", src).
      Dur("Interval", src.interval).
      Dur("Timeout", s.Timeout).
      Msg("Starting recurring collector")

    eg.Go(func() error {
      s.run(ctx, src)
      return nil
    })
  }

  err := eg.Wait()

  log.Info().Msg("Recurring collector is shutting down")

  return err
}

func (s *Recurring) run(ctx context.Context, src scheduled) {
  for {
    log.Trace().Stringer("Source", src).Msg("Recurring collector tick: collecting...")

    res := collect(ctx, src.Source, s.Timeout)

    if res.Error != nil && ctx.Err() == nil {
      log.Warn().
        Stringer("Source", src).
        Err(res.Error).
        Msg("Collection failed for source")
    } else if res.Error == nil {
      log.Debug().
        Stringer("Source", src).
        Dur("Duration", res.Duration).
        Msg("Successfully collected data from source")
    }

    select {
    case <-ctx.Done():
      return
    case <-time.After(src.interval):
    }
  }
}
