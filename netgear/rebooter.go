package netgear

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robertof/home-adapters/homeassistant"
	"github.com/rs/zerolog/log"
)

const (
	DefaultHost           = "routerlogin.net"
	DefaultPort           = 5000
	DefaultUsername       = "admin"
	DefaultSchedule       = "22 6 2,4,9,13 * * *"
	DefaultPresenceEntity = "group.tracker"
	DefaultCooldown       = 30 * time.Hour
	DefaultPresenceGrace  = time.Hour
)

type Config struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	// Full SOAP endpoint, overrides Host and Port.
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// Cron expression with a leading seconds field.
	Schedule       string        `yaml:"schedule"`
	Timezone       string        `yaml:"timezone"`
	PresenceEntity string        `yaml:"presence_entity"`
	Cooldown       time.Duration `yaml:"cooldown"`
	PresenceGrace  time.Duration `yaml:"presence_grace"`
}

func (c Config) withDefaults() Config {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Username == "" {
		c.Username = DefaultUsername
	}
	if c.Schedule == "" {
		c.Schedule = DefaultSchedule
	}
	if c.PresenceEntity == "" {
		c.PresenceEntity = DefaultPresenceEntity
	}
	if c.Cooldown <= 0 {
		c.Cooldown = DefaultCooldown
	}
	if c.PresenceGrace <= 0 {
		c.PresenceGrace = DefaultPresenceGrace
	}
	return c
}

type Presence struct {
	State       string
	LastUpdated time.Time
}

type PresenceSource interface {
	Presence(ctx context.Context) (Presence, error)
}

type PresenceFunc func(ctx context.Context) (Presence, error)

func (f PresenceFunc) Presence(ctx context.Context) (Presence, error) {
	return f(ctx)
}

// HomeAssistantPresence reads presence from a Home Assistant entity, typically a group of device
// trackers.
func HomeAssistantPresence(c *homeassistant.Client, entityID string) PresenceSource {
	return PresenceFunc(func(ctx context.Context) (Presence, error) {
		e, err := c.State(ctx, entityID)
		if err != nil {
			return Presence{}, err
		}

		return Presence{State: e.State, LastUpdated: e.LastUpdated}, nil
	})
}

type CheckResult uint8

const (
	ResultRebooted CheckResult = iota
	ResultRebootFailed
	ResultSkippedPresence
	ResultSkippedCooldown
	ResultPresenceUnknown
)

func (r CheckResult) String() string {
	switch r {
	case ResultRebooted:
		return "rebooted"
	case ResultRebootFailed:
		return "reboot_failed"
	case ResultSkippedPresence:
		return "skipped_presence"
	case ResultSkippedCooldown:
		return "skipped_cooldown"
	case ResultPresenceUnknown:
		return "presence_unknown"
	default:
		panic("unknown check result: " + strconv.Itoa(int(r)))
	}
}

var (
	checksCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "netgear_checks_total",
		Help: "Scheduled reboot checks by outcome.",
	}, []string{"result"})

	rebootsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "netgear_reboots_total",
		Help: "Successful router reboots.",
	})
)

func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(checksCounter, rebootsCounter)
}

// Rebooter reboots the router when nobody is home, at most once per cooldown period.
type Rebooter struct {
	router        Router
	presence      PresenceSource
	cooldown      time.Duration
	presenceGrace time.Duration
	now           func() time.Time

	// serializes checks, held across presence lookup and reboot.
	checkMu sync.Mutex

	mu          sync.Mutex
	lastTrigger time.Time
}

func NewRebooter(cfg Config, router Router, presence PresenceSource) *Rebooter {
	cfg = cfg.withDefaults()

	return &Rebooter{
		router:        router,
		presence:      presence,
		cooldown:      cfg.Cooldown,
		presenceGrace: cfg.PresenceGrace,
		now:           time.Now,
	}
}

// LastTrigger is the time of the last successful reboot, zero if there was none.
func (r *Rebooter) LastTrigger() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.lastTrigger
}

// Check reboots the router unless someone is (or was recently) home or the last successful reboot
// is too recent. Failures are logged; a failed reboot leaves the cooldown untouched.
func (r *Rebooter) Check(ctx context.Context) CheckResult {
	r.checkMu.Lock()
	defer r.checkMu.Unlock()

	result := r.check(ctx)
	checksCounter.WithLabelValues(result.String()).Inc()

	return result
}

func (r *Rebooter) check(ctx context.Context) CheckResult {
	now := r.now()

	p, err := r.presence.Presence(ctx)
	if err != nil {
		log.Error().Err(err).Msg("netgear: cannot determine presence, not rebooting")
		return ResultPresenceUnknown
	}

	if sinceUpdate := now.Sub(p.LastUpdated); p.State == homeassistant.StateHome || sinceUpdate < r.presenceGrace {
		log.Info().
			Str("State", p.State).
			Dur("SinceLastUpdate", sinceUpdate).
			Msg("netgear: someone is or was recently home, not rebooting")
		return ResultSkippedPresence
	}

	if last := r.LastTrigger(); !last.IsZero() {
		if since := now.Sub(last); since < r.cooldown {
			log.Info().
				Dur("SinceLastReboot", since).
				Dur("Cooldown", r.cooldown).
				Msg("netgear: rebooted too recently, not rebooting")
			return ResultSkippedCooldown
		}
	}

	if err := r.router.Reboot(ctx); err != nil {
		log.Error().Err(err).Msg("netgear: reboot failed")
		return ResultRebootFailed
	}

	triggered := r.now()

	r.mu.Lock()
	r.lastTrigger = triggered
	r.mu.Unlock()

	rebootsCounter.Inc()
	log.Info().Time("LastTrigger", triggered).Msg("netgear: router rebooted")

	return ResultRebooted
}
