package airthings

import (
	"context"
	"errors"
	"maps"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// SyncState is the lifecycle of a sync pass.
type SyncState string

const (
	StateUnauthenticated SyncState = "UNAUTHENTICATED"
	StateAuthenticating  SyncState = "AUTHENTICATING"
	StateAuthenticated   SyncState = "AUTHENTICATED"
	StateSyncing         SyncState = "SYNCING"
	StateSynced          SyncState = "SYNCED"
	StateFailed          SyncState = "FAILED"
)

// API is the remote surface a Syncer drives. *Client implements it.
type API interface {
	EnsureToken(ctx context.Context) error
	Accounts(ctx context.Context) ([]string, error)
	Devices(ctx context.Context, accountID string) ([]DeviceRecord, error)
	AllSensors(ctx context.Context, accountID string, maxPages int) ([]SensorsRecord, error)
}

// SyncOptions tune a Syncer. Zero values fall back to sequential accounts,
// 100 pages and no account caching.
type SyncOptions struct {
	MaxConcurrency  int
	MaxPages        int
	AccountCacheTTL time.Duration
}

// Syncer runs the authenticate, list, fetch and reconcile pipeline and keeps
// the result of the last successful pass.
type Syncer struct {
	api    API
	opts   SyncOptions
	logger zerolog.Logger
	now    func() time.Time

	run sync.Mutex

	mu         sync.RWMutex
	state      SyncState
	latest     map[string]Device
	latestAt   time.Time
	accounts   []string
	accountsAt time.Time
}

func NewSyncer(api API, opts SyncOptions, logger zerolog.Logger) *Syncer {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 1
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 100
	}
	return &Syncer{
		api:    api,
		opts:   opts,
		logger: logger,
		now:    time.Now,
		state:  StateUnauthenticated,
	}
}

// State reports where the current or most recent pass is.
func (s *Syncer) State() SyncState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Latest returns a copy of the last successful result and when it finished.
// ok is false until a pass succeeds.
func (s *Syncer) Latest() (devices map[string]Device, at time.Time, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return nil, time.Time{}, false
	}
	return maps.Clone(s.latest), s.latestAt, true
}

// InvalidateAccounts forces the next pass to list accounts again.
func (s *Syncer) InvalidateAccounts() {
	s.mu.Lock()
	s.accounts = nil
	s.accountsAt = time.Time{}
	s.mu.Unlock()
}

// Sync runs one full pass. Passes are serialized. On error nothing partial
// is returned and the previous successful result is kept.
func (s *Syncer) Sync(ctx context.Context) (map[string]Device, error) {
	s.run.Lock()
	defer s.run.Unlock()

	started := s.now()
	devices, err := s.sync(ctx)
	elapsed := s.now().Sub(started)
	syncDuration.Observe(elapsed.Seconds())

	if err != nil {
		if ctx.Err() != nil && !errors.Is(err, ErrCanceled) {
			err = canceled(ctx)
		}
		s.setState(StateFailed)
		s.InvalidateAccounts()
		syncTotal.WithLabelValues("failure").Inc()
		s.logger.Error().Err(err).Dur("elapsed", elapsed).Msg("airthings sync failed")
		return nil, err
	}

	finished := s.now()
	s.mu.Lock()
	s.state = StateSynced
	s.latest = devices
	s.latestAt = finished
	s.mu.Unlock()

	syncTotal.WithLabelValues("success").Inc()
	lastSuccess.Set(float64(finished.Unix()))
	syncedDevices.Set(float64(len(devices)))
	s.logger.Info().Int("devices", len(devices)).Dur("elapsed", elapsed).Msg("airthings sync complete")

	return maps.Clone(devices), nil
}

func (s *Syncer) sync(ctx context.Context) (map[string]Device, error) {
	if ctx.Err() != nil {
		return nil, canceled(ctx)
	}

	s.setState(StateAuthenticating)
	if err := s.api.EnsureToken(ctx); err != nil {
		return nil, err
	}
	s.setState(StateAuthenticated)

	s.setState(StateSyncing)
	accounts, err := s.accountIDs(ctx)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return map[string]Device{}, nil
	}

	perAccount := make([]map[string]Device, len(accounts))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.opts.MaxConcurrency)
	for i, accountID := range accounts {
		i, accountID := i, accountID
		group.Go(func() error {
			devices, err := s.syncAccount(groupCtx, accountID)
			if err != nil {
				return err
			}
			perAccount[i] = devices
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]Device)
	for _, devices := range perAccount {
		maps.Copy(merged, devices)
	}
	return merged, nil
}

func (s *Syncer) syncAccount(ctx context.Context, accountID string) (map[string]Device, error) {
	logger := s.logger.With().Str("account", accountID).Logger()

	records, err := s.api.Devices(ctx, accountID)
	if err != nil {
		return nil, err
	}
	readings, err := s.api.AllSensors(ctx, accountID, s.opts.MaxPages)
	if err != nil {
		return nil, err
	}

	devices := Reconcile(records, readings, logger)
	logger.Debug().
		Int("records", len(records)).
		Int("readings", len(readings)).
		Int("devices", len(devices)).
		Msg("account reconciled")
	return devices, nil
}

func (s *Syncer) accountIDs(ctx context.Context) ([]string, error) {
	if ttl := s.opts.AccountCacheTTL; ttl > 0 {
		s.mu.RLock()
		cached, fetchedAt := s.accounts, s.accountsAt
		s.mu.RUnlock()
		if cached != nil && s.now().Before(fetchedAt.Add(ttl)) {
			return cached, nil
		}
	}

	accounts, err := s.api.Accounts(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.Debug().Int("accounts", len(accounts)).Msg("fetched airthings accounts")

	if s.opts.AccountCacheTTL > 0 {
		s.mu.Lock()
		s.accounts = accounts
		s.accountsAt = s.now()
		s.mu.Unlock()
	}
	return accounts, nil
}

func (s *Syncer) setState(state SyncState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}
