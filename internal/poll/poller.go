package poll

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"buzzer-service/internal/domain"
)

// Fetcher is the read path the poller drives, typically *Client.
type Fetcher interface {
	FetchOrder(ctx context.Context, scopeID uuid.UUID) ([]domain.OrderEntry, error)
}

// DefaultInterval matches the observed refresh cadence of the admin views.
const DefaultInterval = 3 * time.Second

// DefaultMaxFailures is how many consecutive failed ticks are tolerated
// before automatic polling suspends and a manual Refresh is required.
const DefaultMaxFailures = 3

// Snapshot is the poller's externally visible state. Entries always hold the
// last successful fetch, even while Err is set: a transient failure must
// never blank an admin's view of the ranking.
type Snapshot struct {
	Entries   []domain.OrderEntry
	FetchedAt time.Time
	Err       error
	Failures  int
	Suspended bool
}

// Poller periodically fetches the ranking for one scope. Each tick is
// independent; a failed tick keeps the previous data and bumps the
// consecutive-failure counter. Once the counter reaches maxFailures the
// poller stops fetching until Refresh is called, so a degraded backend is
// not hammered. All polling state is owned here, not in package globals.
type Poller struct {
	fetcher     Fetcher
	scopeID     uuid.UUID
	interval    time.Duration
	maxFailures int
	clock       clockwork.Clock
	log         zerolog.Logger

	mu      sync.Mutex
	snap    Snapshot
	updates chan Snapshot
}

func NewPoller(fetcher Fetcher, scopeID uuid.UUID, interval time.Duration, maxFailures int, clock clockwork.Clock, log zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if maxFailures <= 0 {
		maxFailures = DefaultMaxFailures
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Poller{
		fetcher:     fetcher,
		scopeID:     scopeID,
		interval:    interval,
		maxFailures: maxFailures,
		clock:       clock,
		log:         log,
		updates:     make(chan Snapshot, 8),
	}
}

// Run polls until ctx is cancelled. The first fetch happens immediately;
// later ones on the fixed interval. Suspended ticks do not touch the network.
func (p *Poller) Run(ctx context.Context) {
	p.tick(ctx)

	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if p.Snapshot().Suspended {
				continue
			}
			p.tick(ctx)
		}
	}
}

// Refresh forces an immediate fetch, clearing the failure counter and
// resuming automatic polling. It reports the fetch's own outcome.
func (p *Poller) Refresh(ctx context.Context) error {
	p.mu.Lock()
	p.snap.Failures = 0
	p.snap.Suspended = false
	p.mu.Unlock()
	return p.tick(ctx)
}

// Snapshot returns the current state.
func (p *Poller) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap
}

// Updates delivers a snapshot after every tick. Slow consumers see the
// newest state; intermediate snapshots may be dropped.
func (p *Poller) Updates() <-chan Snapshot {
	return p.updates
}

func (p *Poller) tick(ctx context.Context) error {
	entries, err := p.fetcher.FetchOrder(ctx, p.scopeID)

	p.mu.Lock()
	if err != nil {
		p.snap.Err = err
		p.snap.Failures++
		if p.snap.Failures >= p.maxFailures {
			p.snap.Suspended = true
		}
	} else {
		p.snap.Entries = entries
		p.snap.Err = nil
		p.snap.Failures = 0
		p.snap.Suspended = false
		p.snap.FetchedAt = p.clock.Now()
	}
	snap := p.snap
	p.mu.Unlock()

	if err != nil {
		p.log.Warn().Err(err).
			Str("scope_id", p.scopeID.String()).
			Int("failures", snap.Failures).
			Bool("suspended", snap.Suspended).
			Msg("order poll failed")
	}

	select {
	case p.updates <- snap:
	default:
		// Drop the stale snapshot so a slow consumer never blocks ticking.
		select {
		case <-p.updates:
		default:
		}
		p.updates <- snap
	}
	return err
}
