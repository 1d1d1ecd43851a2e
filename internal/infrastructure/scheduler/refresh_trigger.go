package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/erp/connector/internal/domain/integration"
)

// RefreshTriggerConfig holds configuration for the token refresh sweep
type RefreshTriggerConfig struct {
	// Interval is how often the sweep runs
	Interval time.Duration
	// Ahead refreshes tokens expiring within this window
	Ahead time.Duration
	// BatchSize bounds the integrations queued per sweep
	BatchSize int
}

// DefaultRefreshTriggerConfig returns default refresh trigger configuration
func DefaultRefreshTriggerConfig() RefreshTriggerConfig {
	return RefreshTriggerConfig{
		Interval:  5 * time.Minute,
		Ahead:     10 * time.Minute,
		BatchSize: 200,
	}
}

// RefreshTrigger periodically queues refresh jobs for oauth integrations
// whose access token is about to expire.
type RefreshTrigger struct {
	config       RefreshTriggerConfig
	scheduler    *Scheduler
	integrations integration.IntegrationRepository
	logger       *zap.Logger

	now       func() time.Time
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewRefreshTrigger creates a new refresh trigger
func NewRefreshTrigger(
	config RefreshTriggerConfig,
	scheduler *Scheduler,
	integrations integration.IntegrationRepository,
	logger *zap.Logger,
) *RefreshTrigger {
	defaults := DefaultRefreshTriggerConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.Ahead <= 0 {
		config.Ahead = defaults.Ahead
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	return &RefreshTrigger{
		config:       config,
		scheduler:    scheduler,
		integrations: integrations,
		logger:       logger,
		now:          time.Now,
	}
}

// Start starts the sweep loop
func (c *RefreshTrigger) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = true
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go c.runLoop(ctx)

	c.logger.Info("Refresh trigger started",
		zap.Duration("interval", c.config.Interval),
		zap.Duration("ahead", c.config.Ahead),
	)

	return nil
}

// Stop stops the sweep loop
func (c *RefreshTrigger) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = false
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("Refresh trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *RefreshTrigger) runLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.Sweep(ctx); err != nil {
				c.logger.Error("Refresh sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep queues a refresh for every integration expiring within the window
// and returns how many were queued.
func (c *RefreshTrigger) Sweep(ctx context.Context) (int, error) {
	expiring, err := c.integrations.FindExpiring(ctx, c.now().Add(c.config.Ahead), c.config.BatchSize)
	if err != nil {
		return 0, err
	}

	queued := 0
	for _, i := range expiring {
		if !i.Credentials.CanRefresh() {
			continue
		}
		if err := c.scheduler.EnqueueRefresh(i.TenantID, i.ID, i.Marketplace); err != nil {
			c.logger.Warn("Failed to queue token refresh",
				zap.String("integration_id", i.ID.String()),
				zap.Error(err),
			)
			continue
		}
		queued++
	}

	if len(expiring) > 0 {
		c.logger.Info("Refresh sweep queued jobs",
			zap.Int("expiring", len(expiring)),
			zap.Int("queued", queued),
		)
	}
	return queued, nil
}
