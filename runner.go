package recurrence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// RunnerConfig holds the configuration for a Runner.
type RunnerConfig struct {
	// Dispatcher is required.
	Dispatcher *Dispatcher

	// Now supplies the clock for dispatch sweeps. Defaults to time.Now;
	// injected so tests can drive the runner through simulated time.
	Now func() time.Time

	// Event handlers (all optional)

	// OnStart is called when the runner starts.
	OnStart func(ctx context.Context) error

	// OnStop is called when the runner stops.
	OnStop func(ctx context.Context) error

	// OnIdle is called once when a sweep fires nothing after a sweep that
	// fired something, i.e. on the transition into the idle state.
	OnIdle func(ctx context.Context) error

	// OnError is called when a sweep itself fails (listing due schedules).
	// Per-schedule failures go through the dispatcher's own OnError.
	OnError func(ctx context.Context, err error)

	// Timing configuration

	// PollInterval is the wait between dispatch sweeps. Default: 1 minute.
	PollInterval time.Duration

	// IdleDelay is an extra wait after a sweep that fired nothing. Default: 0.
	IdleDelay time.Duration

	// Logger defaults to the zero logger, which writes nothing.
	Logger zerolog.Logger
}

// Runner periodically invokes a Dispatcher. It is the in-process stand-in
// for an external cron trigger; deployments with their own timer can call
// Dispatcher.DispatchDue directly and skip the runner entirely.
type Runner struct {
	dispatcher *Dispatcher
	config     RunnerConfig

	// State tracking
	running    atomic.Bool
	processing atomic.Bool
	idle       atomic.Bool

	// Lifecycle management
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewRunner creates a new Runner with the given configuration.
// Returns an error if the configuration is invalid.
func NewRunner(config RunnerConfig) (*Runner, error) {
	if config.Dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}

	// Set defaults
	if config.PollInterval == 0 {
		config.PollInterval = time.Minute
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &Runner{
		dispatcher: config.Dispatcher,
		config:     config,
	}, nil
}

// Start begins periodic dispatching.
// It's safe to call Start multiple times; subsequent calls are no-ops.
// The runner runs until Stop is called or the context is canceled.
func (r *Runner) Start(ctx context.Context) error {
	// Only start once
	if r.running.Swap(true) {
		return nil
	}

	r.ctx, r.cancel = context.WithCancel(ctx)

	if r.config.OnStart != nil {
		if err := r.config.OnStart(r.ctx); err != nil {
			r.running.Store(false)
			return fmt.Errorf("OnStart handler failed: %w", err)
		}
	}

	r.wg.Add(1)
	go r.run()

	return nil
}

// Stop gracefully stops the runner.
// It waits for any in-flight sweep to finish before returning.
// It's safe to call Stop multiple times.
func (r *Runner) Stop(ctx context.Context) error {
	var err error
	r.stopOnce.Do(func() {
		r.running.Store(false)
		if r.cancel != nil {
			r.cancel()
		}

		done := make(chan struct{})
		go func() {
			r.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			// Clean shutdown
		case <-ctx.Done():
			err = ctx.Err()
			return
		}

		if r.config.OnStop != nil {
			if stopErr := r.config.OnStop(context.Background()); stopErr != nil && err == nil {
				err = fmt.Errorf("OnStop handler failed: %w", stopErr)
			}
		}
	})
	return err
}

// IsRunning returns true if the runner is running.
func (r *Runner) IsRunning() bool {
	return r.running.Load()
}

// IsProcessing returns true if a dispatch sweep is in progress.
func (r *Runner) IsProcessing() bool {
	return r.processing.Load()
}

// IsIdle returns true if the last sweep fired nothing.
func (r *Runner) IsIdle() bool {
	return r.idle.Load()
}

// run is the main sweep loop.
func (r *Runner) run() {
	defer r.wg.Done()

	for r.running.Load() {
		// Sweep first so a freshly started runner picks up overdue
		// schedules immediately.
		r.sweep()

		if !r.running.Load() {
			return
		}

		select {
		case <-time.After(r.config.PollInterval):
		case <-r.ctx.Done():
			return
		}
	}
}

// sweep runs one dispatch pass over all due schedules.
func (r *Runner) sweep() {
	r.processing.Store(true)
	defer r.processing.Store(false)

	results, err := r.dispatcher.DispatchDue(r.ctx, r.config.Now())
	if err != nil {
		r.handleError(fmt.Errorf("dispatch sweep failed: %w", err))
		return
	}

	fired := 0
	for _, res := range results {
		if res.Fired {
			fired++
		}
	}
	if fired > 0 {
		r.idle.Store(false)
		r.config.Logger.Debug().Int("fired", fired).Int("evaluated", len(results)).Msg("dispatch sweep")
		return
	}

	// Trigger OnIdle only once when transitioning to idle state
	if !r.idle.Swap(true) {
		if r.config.OnIdle != nil {
			if err := r.config.OnIdle(r.ctx); err != nil {
				r.handleError(fmt.Errorf("OnIdle handler failed: %w", err))
			}
		}
	}
	if r.config.IdleDelay > 0 {
		select {
		case <-time.After(r.config.IdleDelay):
		case <-r.ctx.Done():
		}
	}
}

// handleError calls the OnError handler if configured.
func (r *Runner) handleError(err error) {
	r.config.Logger.Error().Err(err).Msg("runner error")
	if r.config.OnError != nil {
		r.config.OnError(r.ctx, err)
	}
}
