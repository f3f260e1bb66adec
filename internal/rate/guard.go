package rate

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimitError is returned when calls are blocked before reaching the
// provider.
type RateLimitError struct {
	Provider string
	Reason   string
	RetryAt  time.Time
}

func (e RateLimitError) Error() string {
	if e.RetryAt.IsZero() {
		return fmt.Sprintf("%s rate limited: %s", e.Provider, e.Reason)
	}
	return fmt.Sprintf("%s rate limited: %s (retry at %s)", e.Provider, e.Reason, e.RetryAt.UTC().Format(time.RFC3339))
}

type Decision struct {
	Allowed bool
	Reason  string
	RetryAt time.Time
}

type bucket struct {
	capacity int
	tokens   float64
	last     time.Time
}

// limitState tracks observed limits.
type limitState struct {
	remaining   map[Window]int
	limits      map[Window]int
	budgetFloor map[Window]int
	buckets     map[Window]*bucket
	hasHeaders  map[Window]bool
	// observed is when header data for a window last arrived; resets is the
	// reset instant the provider reported with it, if any.
	observed   map[Window]time.Time
	resets     map[Window]time.Time
	cooldown   time.Time
	lastStatus int
}

// Guard enforces rate limits for a provider.
type Guard struct {
	decl Declaration
	mu   sync.Mutex
	// state is mutated under mu
	state limitState
}

// WrapHTTP wraps an http.Client with rate-limit enforcement.
func WrapHTTP(decl Declaration, base *http.Client) *http.Client {
	if base == nil {
		base = &http.Client{}
	}
	client := *base
	transport := client.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	client.Transport = &roundTripper{
		base:  transport,
		guard: NewGuard(decl),
	}
	return &client
}

func NewGuard(decl Declaration) *Guard {
	state := limitState{
		remaining:   make(map[Window]int),
		limits:      make(map[Window]int),
		budgetFloor: make(map[Window]int),
		buckets:     make(map[Window]*bucket),
		hasHeaders:  make(map[Window]bool),
		observed:    make(map[Window]time.Time),
		resets:      make(map[Window]time.Time),
	}
	for window, limit := range decl.Limits() {
		state.limits[window] = limit
		state.remaining[window] = limit
		state.buckets[window] = &bucket{
			capacity: limit,
			tokens:   float64(limit),
			last:     time.Now(),
		}
	}
	for window, floor := range decl.BudgetFloors() {
		state.budgetFloor[window] = floor
	}

	return &Guard{
		decl:  decl,
		state: state,
	}
}

type roundTripper struct {
	base  http.RoundTripper
	guard *Guard
}

func (rt *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	decision := rt.guard.ShouldCall(time.Now())
	if !decision.Allowed {
		rejectedTotal.WithLabelValues(rt.guard.decl.ProviderName(), decision.Reason).Inc()
		if req.Body != nil {
			req.Body.Close()
		}
		return nil, RateLimitError{
			Provider: rt.guard.decl.ProviderName(),
			Reason:   decision.Reason,
			RetryAt:  decision.RetryAt,
		}
	}

	resp, err := rt.base.RoundTrip(req)
	if err != nil {
		return resp, err
	}

	rt.guard.RecordResponse(resp.StatusCode, resp.Header)
	return resp, nil
}

func (g *Guard) ShouldCall(now time.Time) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.decl.HasLimits() {
		return Decision{Allowed: false, Reason: "disabled"}
	}

	if !g.state.cooldown.IsZero() && now.Before(g.state.cooldown) {
		return Decision{Allowed: false, Reason: "cooldown", RetryAt: g.state.cooldown}
	}

	for window, limit := range g.state.limits {
		floor := g.state.budgetFloor[window]
		if g.state.hasHeaders[window] && g.headersExpired(window, now) {
			g.resetWindow(window, limit, now)
		}
		if g.state.hasHeaders[window] {
			if g.state.remaining[window] <= floor {
				return Decision{Allowed: false, Reason: "budget", RetryAt: g.windowRetryAt(window)}
			}
			g.state.remaining[window]--
			continue
		}
		if limit <= 0 {
			return Decision{Allowed: false, Reason: "disabled"}
		}
		if !consumeToken(g.state.buckets[window], window.Duration(), now) {
			retryAt := g.state.buckets[window].last.Add(window.Duration() / time.Duration(limit))
			return Decision{Allowed: false, Reason: "budget", RetryAt: retryAt}
		}
	}

	return Decision{Allowed: true}
}

// headersExpired reports whether the provider's view of a window is out of
// date: its reset instant has passed, or nothing was heard for a full window.
func (g *Guard) headersExpired(window Window, now time.Time) bool {
	if reset := g.state.resets[window]; !reset.IsZero() {
		return !now.Before(reset)
	}
	return now.Sub(g.state.observed[window]) >= window.Duration()
}

// resetWindow drops header data for a window and refills its bucket.
func (g *Guard) resetWindow(window Window, limit int, now time.Time) {
	g.state.hasHeaders[window] = false
	delete(g.state.resets, window)
	delete(g.state.observed, window)
	g.state.remaining[window] = limit
	if limit > 0 {
		g.state.buckets[window] = &bucket{capacity: limit, tokens: float64(limit), last: now}
	}
	remainingGauge.WithLabelValues(g.decl.ProviderName(), window.String()).Set(float64(limit))
}

func (g *Guard) windowRetryAt(window Window) time.Time {
	if reset := g.state.resets[window]; reset.After(g.state.cooldown) {
		return reset
	}
	if !g.state.cooldown.IsZero() {
		return g.state.cooldown
	}
	if observed, ok := g.state.observed[window]; ok {
		return observed.Add(window.Duration())
	}
	return time.Time{}
}

func (g *Guard) RecordResponse(status int, headers http.Header) {
	g.mu.Lock()
	defer g.mu.Unlock()

	provider := g.decl.ProviderName()
	g.state.lastStatus = status
	lastStatusGauge.WithLabelValues(provider).Set(float64(status))

	cfg := g.decl.Headers()
	now := time.Now()

	if wait := retryAfter(headers, cfg.RetryAfter, now); wait > 0 {
		g.state.cooldown = now.Add(wait)
		retryAfterGauge.WithLabelValues(provider).Set(wait.Seconds())
	} else if status == http.StatusTooManyRequests {
		if reset := resetAt(headerInt(headers, cfg.Reset), now); !reset.IsZero() {
			g.state.cooldown = reset
			retryAfterGauge.WithLabelValues(provider).Set(reset.Sub(now).Seconds())
		}
	}

	remaining := headerInt(headers, cfg.Remaining)
	if remaining < 0 {
		return
	}
	window := cfg.Window
	if limit := headerInt(headers, cfg.Limit); limit > 0 {
		g.state.limits[window] = limit
	}
	g.state.remaining[window] = remaining
	g.state.hasHeaders[window] = true
	g.state.observed[window] = now
	reset := resetAt(headerInt(headers, cfg.Reset), now)
	if reset.After(now) {
		g.state.resets[window] = reset
	} else {
		delete(g.state.resets, window)
	}
	remainingGauge.WithLabelValues(provider, window.String()).Set(float64(remaining))

	if remaining <= g.state.budgetFloor[window] && reset.After(g.state.cooldown) {
		g.state.cooldown = reset
	}
}

// snapshot returns a copy of the observed state.
func (g *Guard) snapshot() limitState {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := limitState{
		remaining:  make(map[Window]int, len(g.state.remaining)),
		limits:     make(map[Window]int, len(g.state.limits)),
		resets:     make(map[Window]time.Time, len(g.state.resets)),
		cooldown:   g.state.cooldown,
		lastStatus: g.state.lastStatus,
	}
	for w, v := range g.state.remaining {
		out.remaining[w] = v
	}
	for w, v := range g.state.limits {
		out.limits[w] = v
	}
	for w, v := range g.state.resets {
		out.resets[w] = v
	}
	return out
}

// resetAt accepts either an epoch timestamp or a delay in seconds.
func resetAt(value int, now time.Time) time.Time {
	switch {
	case value <= 0:
		return time.Time{}
	case value > 1_000_000_000:
		return time.Unix(int64(value), 0)
	default:
		return now.Add(time.Duration(value) * time.Second)
	}
}

// retryAfter reads a Retry-After header given either as delay seconds or as
// an HTTP date.
func retryAfter(h http.Header, key string, now time.Time) time.Duration {
	if seconds := headerInt(h, key); seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if key == "" {
		return 0
	}
	if at, err := http.ParseTime(h.Get(key)); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}

func headerInt(h http.Header, key string) int {
	if key == "" {
		return -1
	}
	val := h.Get(key)
	if val == "" {
		return -1
	}
	out, err := strconv.Atoi(val)
	if err != nil {
		return -1
	}
	return out
}

func consumeToken(b *bucket, window time.Duration, now time.Time) bool {
	if b.last.IsZero() {
		b.last = now
	}
	elapsed := now.Sub(b.last).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	refillRate := float64(b.capacity) / window.Seconds()
	b.tokens = min(float64(b.capacity), b.tokens+elapsed*refillRate)
	b.last = now
	if b.tokens >= 1 {
		b.tokens -= 1
		return true
	}
	return false
}
