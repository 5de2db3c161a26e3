package sim

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"atc-sim/internal/log"
	"atc-sim/internal/rand"
)

const (
	DefaultTickInterval  = 200 * time.Millisecond
	DefaultClockInterval = time.Second

	opQueueSize   = 64
	subscriberBuf = 16
)

var ErrEngineStopped = errors.New("engine stopped")

type Config struct {
	Seed          int64 // 0 picks a time-based seed
	TickInterval  time.Duration
	ClockInterval time.Duration
	Rules         Rules
	Logger        *log.Logger
}

// Engine owns one game session. A single goroutine (Run) holds the State;
// operator actions and both periodic ticks are applied there one at a
// time, each producing a new State that is published to subscribers.
//
// Operations submitted through the Engine's methods are applied in the
// order they were submitted. A tick that becomes due at the same time as
// an operation may be applied before or after it.
type Engine struct {
	rules         Rules
	rnd           *rand.Rand
	lg            *log.Logger
	tickInterval  time.Duration
	clockInterval time.Duration

	ops  chan func()
	done chan struct{}

	// Owned by the Run goroutine.
	state       State
	subs        map[*subscription]struct{}
	simTicker   *time.Ticker
	clockTicker *time.Ticker
}

func NewEngine(cfg Config) *Engine {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.ClockInterval <= 0 {
		cfg.ClockInterval = DefaultClockInterval
	}
	if cfg.Rules == (Rules{}) {
		cfg.Rules = DefaultRules()
	}

	e := &Engine{
		rules:         cfg.Rules,
		rnd:           rand.New(cfg.Seed),
		lg:            cfg.Logger,
		tickInterval:  cfg.TickInterval,
		clockInterval: cfg.ClockInterval,
		ops:           make(chan func(), opQueueSize),
		done:          make(chan struct{}),
		subs:          make(map[*subscription]struct{}),
	}
	e.state = NewState(e.rnd, e.rules)
	return e
}

// Run processes operations and ticks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	defer close(e.done)
	defer e.stopTimers()

	for {
		select {
		case <-ctx.Done():
			e.drain()
			for sub := range e.subs {
				sub.close()
			}
			return nil

		case op := <-e.ops:
			op()

		case <-tickerC(e.simTicker):
			next, rep := Advance(e.state, e.rnd, e.rules)
			e.logTick(rep)
			e.apply(next)

		case <-tickerC(e.clockTicker):
			e.apply(Step(e.state, TickClock, e.rnd, e.rules))
		}
	}
}

// Done is closed once Run has returned.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// drain runs operations that were queued before cancellation.
func (e *Engine) drain() {
	for {
		select {
		case op := <-e.ops:
			op()
		default:
			return
		}
	}
}

// tickerC returns nil for a stopped ticker so that its select case
// never fires.
func tickerC(t *time.Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

// apply installs next, starts or stops the tickers on a play/pause
// transition and publishes the result.
func (e *Engine) apply(next State) {
	wasPlaying := e.state.Playing
	e.state = next

	switch {
	case next.Playing && !wasPlaying:
		e.simTicker = time.NewTicker(e.tickInterval)
		e.clockTicker = time.NewTicker(e.clockInterval)
	case !next.Playing && wasPlaying:
		e.stopTimers()
	}

	for sub := range e.subs {
		if !sub.send(next) {
			delete(e.subs, sub)
		}
	}
}

func (e *Engine) stopTimers() {
	if e.simTicker != nil {
		e.simTicker.Stop()
		e.simTicker = nil
	}
	if e.clockTicker != nil {
		e.clockTicker.Stop()
		e.clockTicker = nil
	}
}

func (e *Engine) logTick(rep TickReport) {
	for _, a := range rep.Removed {
		e.lg.Debug("aircraft left airspace", slog.String("id", a.ID), slog.String("callsign", a.CallSign))
	}
	if a := rep.Spawned; a != nil {
		e.lg.Debug("aircraft spawned", slog.String("id", a.ID), slog.String("callsign", a.CallSign),
			slog.Float64("heading", a.Heading), slog.Int("altitude", a.Altitude))
	}
	for _, c := range rep.Conflicts {
		e.lg.Info("separation conflict", slog.String("a", c.A), slog.String("b", c.B),
			slog.Float64("distance", c.Distance), slog.Int("altitude_diff", c.AltitudeDiff))
	}
}

func (e *Engine) submit(ctx context.Context, op func()) error {
	// a stopped engine still has queue space; never leave an op there
	select {
	case <-e.done:
		return ErrEngineStopped
	default:
	}
	select {
	case e.ops <- op:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrEngineStopped
	}
}

// query runs fn on the Run goroutine and waits for its result.
func query[T any](ctx context.Context, e *Engine, fn func() T) (T, error) {
	var zero T
	reply := make(chan T, 1)
	if err := e.submit(ctx, func() { reply <- fn() }); err != nil {
		return zero, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-e.done:
		return zero, ErrEngineStopped
	}
}

// update submits a state transition without waiting for it to be applied.
// Transitions submitted after the engine stopped are dropped.
func (e *Engine) update(fn func(State) State) {
	_ = e.submit(context.Background(), func() { e.apply(fn(e.state)) })
}

// Snapshot returns the current state.
func (e *Engine) Snapshot(ctx context.Context) (State, error) {
	return query(ctx, e, func() State { return e.state })
}

// Select toggles the operator's focus on the aircraft with the given id.
func (e *Engine) Select(id string) {
	e.update(func(s State) State { return Select(s, id) })
}

// IssueCommand applies a validated command to its aircraft's targets.
func (e *Engine) IssueCommand(cmd Command) {
	e.update(func(s State) State { return ApplyCommand(s, cmd) })
}

// TogglePlay pauses a running game or resumes a paused one.
func (e *Engine) TogglePlay() {
	e.update(TogglePlay)
}

// Reset starts the session over and returns the state it replaced.
func (e *Engine) Reset(ctx context.Context) (State, error) {
	return query(ctx, e, func() State {
		prev := e.state
		e.apply(Reset(e.rnd, e.rules))
		return prev
	})
}

type subscription struct {
	mu     sync.Mutex
	ch     chan State
	closed bool
}

// send delivers st unless the subscription is closed, dropping the frame
// when the receiver is behind. It reports whether the subscription is open.
func (s *subscription) send(st State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- st:
	default:
		// slow subscriber -> drop frame
	}
	return true
}

func (s *subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Subscribe returns a channel that receives the current state and then
// every new state. Frames are dropped if the receiver falls behind. The
// channel is closed by the returned cancel func or when the engine stops.
// If the engine has stopped, the channel is already closed and the error
// is ErrEngineStopped.
func (e *Engine) Subscribe(ctx context.Context) (<-chan State, func(), error) {
	sub := &subscription{ch: make(chan State, subscriberBuf)}
	unsub := func() {
		sub.close()
		_ = e.submit(context.Background(), func() { delete(e.subs, sub) })
	}

	_, err := query(ctx, e, func() struct{} {
		if sub.send(e.state) {
			e.subs[sub] = struct{}{}
		}
		return struct{}{}
	})
	if err != nil {
		// a registration still queued finds the subscription closed
		sub.close()
		return sub.ch, func() {}, err
	}
	return sub.ch, unsub, nil
}
