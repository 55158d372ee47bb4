package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// DefaultWindow is the rolling window used when none is configured.
const DefaultWindow = time.Minute

var limiterWait = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "grader",
	Subsystem: "ratelimit",
	Name:      "wait_seconds",
	Help:      "Time callers spent blocked before a request slot was granted",
	Buckets:   []float64{0, 0.1, 0.5, 1, 5, 15, 30, 60},
}, []string{"limiter"})

// Option customises a SlidingWindow.
type Option func(*SlidingWindow)

// WithName labels the limiter in metrics and logs.
func WithName(name string) Option {
	return func(l *SlidingWindow) {
		l.name = name
	}
}

// WithLogger attaches a logger used to report throttling.
func WithLogger(logger zerolog.Logger) Option {
	return func(l *SlidingWindow) {
		l.logger = logger
	}
}

// WithClock replaces the time source and the sleep primitive. Intended for tests.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(l *SlidingWindow) {
		if now != nil {
			l.now = now
		}
		if sleep != nil {
			l.sleep = sleep
		}
	}
}

// SlidingWindow admits at most limit requests in any rolling window. Callers
// over the limit are delayed, never rejected.
type SlidingWindow struct {
	mu     sync.Mutex
	stamps []time.Time

	limit  int
	window time.Duration
	name   string
	logger zerolog.Logger
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

// New builds a limiter allowing limit requests per window. A non-positive
// limit disables throttling.
func New(limit int, window time.Duration, opts ...Option) *SlidingWindow {
	if window <= 0 {
		window = DefaultWindow
	}

	l := &SlidingWindow{
		limit:  limit,
		window: window,
		name:   "default",
		logger: zerolog.Nop(),
		now:    time.Now,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.limit > 0 {
		l.stamps = make([]time.Time, 0, l.limit)
	}

	return l
}

// Name reports the limiter label.
func (l *SlidingWindow) Name() string {
	return l.name
}

// Limit reports the configured number of requests per window.
func (l *SlidingWindow) Limit() int {
	return l.limit
}

// Acquire blocks until one more request fits in the window and records it.
// The only error returned is the context error when ctx ends while waiting.
func (l *SlidingWindow) Acquire(ctx context.Context) error {
	if l == nil || l.limit <= 0 {
		return nil
	}

	start := l.now()
	for {
		l.mu.Lock()
		now := l.now()
		l.evict(now)
		if len(l.stamps) < l.limit {
			l.stamps = append(l.stamps, now)
			l.mu.Unlock()
			l.observe(now.Sub(start))
			return nil
		}
		wait := l.stamps[0].Add(l.window).Sub(now)
		l.mu.Unlock()

		l.logger.Debug().
			Str("limiter", l.name).
			Dur("wait", wait).
			Msg("rate limit reached, waiting for window to advance")

		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// InFlight reports how many requests are inside the current window.
func (l *SlidingWindow) InFlight() int {
	if l == nil || l.limit <= 0 {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.evict(l.now())
	return len(l.stamps)
}

// evict drops stamps that have aged out of the window. Caller holds mu.
func (l *SlidingWindow) evict(now time.Time) {
	cut := 0
	for cut < len(l.stamps) && now.Sub(l.stamps[cut]) >= l.window {
		cut++
	}
	if cut > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[cut:]...)
	}
}

func (l *SlidingWindow) observe(waited time.Duration) {
	if waited < 0 {
		waited = 0
	}
	limiterWait.WithLabelValues(l.name).Observe(waited.Seconds())
	if waited > 0 {
		l.logger.Debug().Str("limiter", l.name).Dur("waited", waited).Msg("rate limit slot granted")
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
