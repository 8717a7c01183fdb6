// Package limiter queues outbound generation calls and releases them to a
// transport at a bounded rate: a burst allowance plus a steady per-window cap.
package limiter

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	DefaultMaxRequestsPerMinute = 50
	DefaultMaxBurstRequests     = 15
	DefaultWindow               = time.Minute
	DefaultAdmissionBuffer      = 100 * time.Millisecond
	DefaultInterRequestDelay    = 50 * time.Millisecond
)

// ErrGenerationFailed is returned when the transport fails without an error value.
var ErrGenerationFailed = errors.New("generation failed")

// Transport performs the actual outbound call for one queued request.
type Transport[P, R any] func(ctx context.Context, payload P) (R, error)

// Config controls the admission policy of a RequestLimiter
type Config struct {
	// MaxRequestsPerMinute is the steady-state cap within Window
	MaxRequestsPerMinute int
	// MaxBurstRequests dispatches are always admitted regardless of the cap
	MaxBurstRequests int
	// Window is the rolling window the dispatch log is counted over
	Window time.Duration
	// AdmissionBuffer is added to the computed wake-up time
	AdmissionBuffer time.Duration
	// InterRequestDelay is the minimum spacing between two dispatches
	InterRequestDelay time.Duration
	// DispatchTimeout bounds a single transport call; zero means no bound
	DispatchTimeout time.Duration
}

// DefaultConfig returns the limits granted by the image provider.
func DefaultConfig() Config {
	return Config{
		MaxRequestsPerMinute: DefaultMaxRequestsPerMinute,
		MaxBurstRequests:     DefaultMaxBurstRequests,
		Window:               DefaultWindow,
		AdmissionBuffer:      DefaultAdmissionBuffer,
		InterRequestDelay:    DefaultInterRequestDelay,
	}
}

// Outcome is the settlement of one queued request.
type Outcome[R any] struct {
	Value R
	Err   error
}

// Limits reports the configured admission limits
type Limits struct {
	MaxPerMinute int `json:"max_per_minute"`
	MaxBurst     int `json:"max_burst"`
}

// Status is a snapshot of the limiter counters
type Status struct {
	QueueLength          int    `json:"queue_length"`
	IsProcessingActive   bool   `json:"is_processing_active"`
	RequestsInLastMinute int    `json:"requests_in_last_minute"`
	Limits               Limits `json:"limits"`
}

type queuedRequest[P, R any] struct {
	id         string
	enqueuedAt time.Time
	ctx        context.Context
	payload    P
	done       chan Outcome[R]
}

// Option customizes a RequestLimiter
type Option func(*options)

type options struct {
	now  func() time.Time
	name string
}

// WithClock replaces time.Now as the source of dispatch timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithName sets the prefix used in log lines.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// RequestLimiter serializes calls to a Transport. Requests are dispatched in
// submission order by a single loop that runs only while the queue is non-empty.
type RequestLimiter[P, R any] struct {
	transport Transport[P, R]
	cfg       Config
	now       func() time.Time
	name      string
	pacer     *rate.Limiter

	mu           sync.Mutex
	queue        []*queuedRequest[P, R]
	dispatched   []time.Time
	processing   bool
	loopsStarted int
}

// New creates a RequestLimiter. Zero limits and a zero window take defaults.
func New[P, R any](transport Transport[P, R], cfg Config, opts ...Option) *RequestLimiter[P, R] {
	if cfg.MaxRequestsPerMinute <= 0 {
		cfg.MaxRequestsPerMinute = DefaultMaxRequestsPerMinute
	}
	if cfg.MaxBurstRequests <= 0 {
		cfg.MaxBurstRequests = DefaultMaxBurstRequests
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}

	o := options{now: time.Now, name: "RequestLimiter"}
	for _, opt := range opts {
		opt(&o)
	}

	pace := rate.Inf
	if cfg.InterRequestDelay > 0 {
		pace = rate.Every(cfg.InterRequestDelay)
	}

	return &RequestLimiter[P, R]{
		transport: transport,
		cfg:       cfg,
		now:       o.now,
		name:      o.name,
		pacer:     rate.NewLimiter(pace, 1),
	}
}

// Enqueue queues payload and returns a channel that receives exactly one
// Outcome once the request has been dispatched and the transport returned.
// The transport sees ctx's values but not its cancellation: a queued request
// cannot be withdrawn.
func (l *RequestLimiter[P, R]) Enqueue(ctx context.Context, payload P) <-chan Outcome[R] {
	req := &queuedRequest[P, R]{
		id:         uuid.NewString(),
		enqueuedAt: l.now(),
		ctx:        context.WithoutCancel(ctx),
		payload:    payload,
		done:       make(chan Outcome[R], 1),
	}

	l.mu.Lock()
	l.queue = append(l.queue, req)
	queueLength := len(l.queue)
	start := !l.processing
	if start {
		l.processing = true
		l.loopsStarted++
	}
	l.mu.Unlock()

	log.Printf("[%s] Queued request %s (queue length %d)", l.name, req.id, queueLength)
	if start {
		go l.run()
	}
	return req.done
}

// Submit queues payload and waits for its outcome. If ctx ends first the
// request stays queued and its eventual outcome is discarded.
func (l *RequestLimiter[P, R]) Submit(ctx context.Context, payload P) (R, error) {
	done := l.Enqueue(ctx, payload)
	select {
	case outcome := <-done:
		return outcome.Value, outcome.Err
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
}

// Status reports the current counters without mutating them.
func (l *RequestLimiter[P, R]) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	recent := 0
	for _, ts := range l.dispatched {
		if now.Sub(ts) < l.cfg.Window {
			recent++
		}
	}

	return Status{
		QueueLength:          len(l.queue),
		IsProcessingActive:   l.processing,
		RequestsInLastMinute: recent,
		Limits: Limits{
			MaxPerMinute: l.cfg.MaxRequestsPerMinute,
			MaxBurst:     l.cfg.MaxBurstRequests,
		},
	}
}

func (l *RequestLimiter[P, R]) run() {
	for {
		// Wait only fails for a cancelled context or n > burst.
		_ = l.pacer.Wait(context.Background())

		req, wait, ok := l.next()
		if !ok {
			return
		}
		if req == nil {
			log.Printf("[%s] Rate limit reached, waiting %v", l.name, wait)
			sleep(wait)
			continue
		}
		l.dispatch(req)
	}
}

// next takes the head of the queue if it may be dispatched now. When it may
// not, it returns how long to wait. ok is false once the queue is drained,
// at which point the loop has released the processing flag.
func (l *RequestLimiter[P, R]) next() (*queuedRequest[P, R], time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.queue) == 0 {
		l.processing = false
		return nil, 0, false
	}

	// prune before computing the admission time, never after
	now := l.now()
	l.prune(now)
	if at, allowed := l.admission(now); !allowed {
		return nil, at.Sub(now), true
	}

	req := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	l.dispatched = append(l.dispatched, now)
	return req, 0, true
}

func (l *RequestLimiter[P, R]) prune(now time.Time) {
	keep := 0
	for keep < len(l.dispatched) && now.Sub(l.dispatched[keep]) >= l.cfg.Window {
		keep++
	}
	if keep > 0 {
		l.dispatched = append(l.dispatched[:0], l.dispatched[keep:]...)
	}
}

// admission reports whether a dispatch is allowed at now and, if not, the
// earliest time it will be.
func (l *RequestLimiter[P, R]) admission(now time.Time) (time.Time, bool) {
	recent := len(l.dispatched)
	if recent < l.cfg.MaxBurstRequests {
		return now, true
	}
	if recent < l.cfg.MaxRequestsPerMinute {
		return now, true
	}
	return l.dispatched[0].Add(l.cfg.Window + l.cfg.AdmissionBuffer), false
}

func (l *RequestLimiter[P, R]) dispatch(req *queuedRequest[P, R]) {
	log.Printf("[%s] Dispatching request %s after %v in queue", l.name, req.id, l.now().Sub(req.enqueuedAt))

	value, err := l.invoke(req)
	if err != nil {
		log.Printf("[%s] Request %s failed: %v", l.name, req.id, err)
	}
	req.done <- Outcome[R]{Value: value, Err: err}
}

func (l *RequestLimiter[P, R]) invoke(req *queuedRequest[P, R]) (R, error) {
	if l.cfg.DispatchTimeout <= 0 {
		return l.call(req.ctx, req.payload)
	}

	ctx, cancel := context.WithTimeout(req.ctx, l.cfg.DispatchTimeout)
	defer cancel()

	result := make(chan Outcome[R], 1)
	go func() {
		value, err := l.call(ctx, req.payload)
		result <- Outcome[R]{Value: value, Err: err}
	}()

	select {
	case outcome := <-result:
		return outcome.Value, outcome.Err
	case <-ctx.Done():
		var zero R
		return zero, fmt.Errorf("dispatch timed out after %v: %w", l.cfg.DispatchTimeout, ctx.Err())
	}
}

func (l *RequestLimiter[P, R]) call(ctx context.Context, payload P) (value R, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero R
			value = zero
			if e, ok := r.(error); ok {
				err = e
			} else {
				err = ErrGenerationFailed
			}
		}
	}()
	return l.transport(ctx, payload)
}

func sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	<-timer.C
}
