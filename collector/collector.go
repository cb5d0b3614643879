package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robertof/home-adapters/utils"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
  DefaultTimeout = 2 * time.Minute
)

var collectionsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
  Name: "home_adapters_collections_total",
  Help: "Collections run per source, by outcome.",
}, []string{"source", "result"})

func RegisterMetrics(reg prometheus.Registerer) {
  reg.MustRegister(collectionsCounter)
}

// Source is something that refreshes its own state when collected, e.g. a sensor or a cloud
// account. Collect is never called concurrently for the same source.
type Source interface {
  fmt.Stringer
  Collect(ctx context.Context) error
}

type sourceFunc struct {
  name string
  fn func(ctx context.Context) error
}

func (s sourceFunc) String() string {
  return s.name
}

func (s sourceFunc) Collect(ctx context.Context) error {
  return s.fn(ctx)
}

func SourceFunc(name string, fn func(ctx context.Context) error) Source {
  return sourceFunc{name: name, fn: fn}
}

type Result struct {
  Source Source
  Error error
  Duration time.Duration
}

func (r Result) String() string {
  if r.Error != nil {
    return fmt.Sprintf("Result[source=%v, error=%v]", r.Source, r.Error)
  }

  return fmt.Sprintf("Result[source=%v, duration=%v]", r.Source, r.Duration)
}

func collect(ctx context.Context, s Source, timeout time.Duration) Result {
  if timeout > 0 {
    var cancel func()
    ctx, cancel = context.WithTimeout(ctx, timeout)
    defer cancel()
  }

  start := time.Now()
  err := s.Collect(ctx)

  res := Result{Source: s, Error: err, Duration: time.Since(start)}

  if err != nil {
    collectionsCounter.WithLabelValues(s.String(), "error").Inc()
  } else {
    collectionsCounter.WithLabelValues(s.String(), "success").Inc()
  }

  return res
}

// CollectOnce runs every source once, in parallel, and returns one result per source in the same
// order. Each source gets at most timeout to complete (no limit if <= 0).
func CollectOnce(ctx context.Context, sources []Source, timeout time.Duration) []Result {
  log.Debug().
    Array("Sources", utils.StringerArray(sources)).
    Dur("Timeout", timeout).
    Msg("Collecting from sources")

  out := make([]Result, len(sources))

  // results are written to distinct slots, no locking needed.
  var eg errgroup.Group

  for i, s := range sources {
    i, s := i, s

    eg.Go(func() error {
      out[i] = collect(ctx, s, timeout)

      log.Trace().
        Stringer("Source", s).
        Stringer("Result", out[i]).
        Msg("Received result for source")

      return nil
    })
  }

  eg.Wait()

  return out
}
