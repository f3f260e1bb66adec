package airthings

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Publisher receives every successful sync result.
type Publisher interface {
	Publish(ctx context.Context, devices map[string]Device) error
}

// Poller drives a Syncer on a fixed interval and fans results out to
// publishers. Failed passes are retried on the next tick.
type Poller struct {
	syncer     *Syncer
	interval   time.Duration
	publishers []Publisher
	logger     zerolog.Logger

	mu      sync.Mutex
	lastErr error
}

func NewPoller(syncer *Syncer, interval time.Duration, logger zerolog.Logger, publishers ...Publisher) *Poller {
	return &Poller{
		syncer:     syncer,
		interval:   interval,
		publishers: publishers,
		logger:     logger,
	}
}

// Start runs one pass right away and then one per interval until ctx is
// done. It does not block.
func (p *Poller) Start(ctx context.Context) {
	if p.interval <= 0 {
		return
	}
	go func() {
		_, _ = p.SyncNow(ctx)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, _ = p.SyncNow(ctx)
			}
		}
	}()
}

// SyncNow runs a pass outside the schedule and publishes the result.
func (p *Poller) SyncNow(ctx context.Context) (map[string]Device, error) {
	devices, err := p.syncer.Sync(ctx)
	p.mu.Lock()
	p.lastErr = err
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}

	for _, publisher := range p.publishers {
		if err := publisher.Publish(ctx, devices); err != nil {
			p.logger.Warn().Err(err).Msg("publish device state failed")
		}
	}
	return devices, nil
}

// LastError is the error of the most recent pass, nil after a success.
func (p *Poller) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// Latest returns the result of the last successful pass.
func (p *Poller) Latest() (map[string]Device, time.Time, bool) {
	return p.syncer.Latest()
}

func (p *Poller) State() SyncState {
	return p.syncer.State()
}
