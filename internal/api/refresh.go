package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/usagedeck/usagedeck-console/internal/analytics"
	"github.com/usagedeck/usagedeck-console/internal/backend"
	"github.com/usagedeck/usagedeck-console/internal/infrastructure/config"
	"github.com/usagedeck/usagedeck-console/internal/infrastructure/logging"
	"github.com/usagedeck/usagedeck-console/internal/session"
)

// ErrSuperseded is returned when a refresh completed after a newer one was
// already issued. Its result is discarded, never committed.
var ErrSuperseded = errors.New("refresh superseded by newer selection")

// defaultFetchTimeout bounds one refresh round trip when config is silent.
const defaultFetchTimeout = 30 * time.Second

// broadcaster is the slice of the hub the coordinator needs.
type broadcaster interface {
	Broadcast(channel string, payload any)
}

// Snapshot is the coordinator's published state: the last committed view
// model plus a notice when the most recent refresh failed and the view is
// stale.
type Snapshot struct {
	Selection analytics.RangeSelector `json:"selection"`
	View      *analytics.ViewModel    `json:"view"`
	Notice    string                  `json:"notice,omitempty"`
	UpdatedAt time.Time               `json:"updatedAt"`
}

// Coordinator serialises analytics refreshes.
//
// Each refresh carries a generation token. Changing the range selector
// issues a new generation and cancels the in-flight fetch; a response
// carrying a superseded generation is discarded so a slow old fetch can
// never overwrite a newer selection's data.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Coordinator struct {
	backend      *backend.Client
	logger       *logging.Logger
	hub          broadcaster
	fetchTimeout time.Duration

	mu        sync.Mutex
	gen       string
	cancel    context.CancelFunc
	selection analytics.RangeSelector
	view      *analytics.ViewModel
	notice    string
	updatedAt time.Time
}

// NewCoordinator creates a refresh coordinator publishing to hub.
func NewCoordinator(client *backend.Client, logger *logging.Logger, hub broadcaster, cfg config.RefreshConfig) *Coordinator {
	timeout := time.Duration(cfg.FetchTimeout) * time.Second
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &Coordinator{
		backend:      client,
		logger:       logger,
		hub:          hub,
		fetchTimeout: timeout,
		selection:    analytics.Range30Days,
	}
}

// Selection returns the most recently requested range selector.
func (c *Coordinator) Selection() analytics.RangeSelector {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selection
}

// Snapshot returns the last published state. The view is nil until the
// first successful refresh.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Selection: c.selection,
		View:      c.view,
		Notice:    c.notice,
		UpdatedAt: c.updatedAt,
	}
}

// Refresh fetches usage for the selector scoped to the caller and commits
// the normalised result.
//
// The current and immediately preceding window are fetched concurrently;
// the previous window feeds period-over-period growth when the backend did
// not precompute it. A failed fetch keeps the last good view and sets the
// snapshot's notice instead of wiping the dashboard. A fetch that loses the
// race to a newer selection returns ErrSuperseded.
func (c *Coordinator) Refresh(ctx context.Context, sel analytics.RangeSelector, role session.Role, tenantID string) (Snapshot, error) {
	fetchCtx, gen, cancel := c.begin(ctx, sel)
	defer cancel()

	q := analytics.Plan(sel, time.Now().UTC(), role, tenantID, analytics.PlanOptions{})
	prevQ := analytics.PreviousWindow(q)

	var current, previous *analytics.UsageResponse
	g, gctx := errgroup.WithContext(fetchCtx)
	g.Go(func() error {
		resp, err := c.backend.Usage(gctx, q)
		if err != nil {
			return err
		}
		current = resp
		return nil
	})
	g.Go(func() error {
		// Comparison window is best-effort; trends just go missing.
		resp, err := c.backend.Usage(gctx, prevQ)
		if err == nil {
			previous = resp
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return c.fail(gen, err)
	}

	vm := analytics.Normalize(current)
	if current.Growth == nil && previous != nil {
		vm.Growth = growthFrom(current, previous)
	}

	return c.commit(gen, vm)
}

// begin issues a new generation, cancelling any in-flight fetch.
func (c *Coordinator) begin(ctx context.Context, sel analytics.RangeSelector) (context.Context, string, context.CancelFunc) {
	fetchCtx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	gen := uuid.NewString()

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.gen = gen
	c.cancel = cancel
	c.selection = sel
	c.mu.Unlock()

	return fetchCtx, gen, cancel
}

// commit publishes a successful refresh unless a newer generation exists.
func (c *Coordinator) commit(gen string, vm *analytics.ViewModel) (Snapshot, error) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return Snapshot{}, ErrSuperseded
	}
	c.view = vm
	c.notice = ""
	c.updatedAt = time.Now().UTC()
	snap := Snapshot{
		Selection: c.selection,
		View:      c.view,
		UpdatedAt: c.updatedAt,
	}
	c.mu.Unlock()

	c.hub.Broadcast(ChannelAnalytics, snap)
	return snap, nil
}

// fail records a refresh failure, keeping the last good view.
func (c *Coordinator) fail(gen string, err error) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen != gen {
		return Snapshot{}, ErrSuperseded
	}

	// A cancelled fetch means a newer selection took over, not a failure.
	if errors.Is(err, context.Canceled) {
		return Snapshot{}, ErrSuperseded
	}

	c.logger.Warn("analytics refresh failed", "error", err)

	// Nothing committed yet: there is no last good view to fall back on,
	// so the failure surfaces to the caller directly.
	if c.view == nil {
		return Snapshot{}, err
	}

	c.notice = "analytics refresh failed; showing last known data"

	return Snapshot{
		Selection: c.selection,
		View:      c.view,
		Notice:    c.notice,
		UpdatedAt: c.updatedAt,
	}, nil
}

// growthFrom derives period-over-period growth percentages from the
// previous window's totals. A zero previous total yields zero growth
// rather than a division by zero.
func growthFrom(cur, prev *analytics.UsageResponse) analytics.GrowthMetrics {
	pct := func(now, before float64) float64 {
		if before == 0 {
			return 0
		}
		return (now - before) / before * 100
	}
	return analytics.GrowthMetrics{
		RequestsGrowth: pct(float64(cur.TotalRequests), float64(prev.TotalRequests)),
		TokensGrowth:   pct(float64(cur.TotalTokens), float64(prev.TotalTokens)),
		CostGrowth:     pct(cur.TotalCost, prev.TotalCost),
	}
}
