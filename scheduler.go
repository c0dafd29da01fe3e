package identity

import (
	"context"
	"sync"
	"time"
)

// DefaultPurgeInterval is how often the stale account purge fires
const DefaultPurgeInterval = 24 * time.Hour

// PurgeScheduler runs the stale account purge on a fixed interval,
// decoupled from request handling. Each run gets its own transaction
// through Lifecycle.PurgeStaleAccounts; overlapping or repeated runs
// are safe because the underlying delete is idempotent.
type PurgeScheduler struct {
	lifecycle *Lifecycle
	interval  time.Duration
	logger    Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPurgeScheduler returns a scheduler with the default daily cadence
func NewPurgeScheduler(lifecycle *Lifecycle) *PurgeScheduler {
	return &PurgeScheduler{
		lifecycle: lifecycle,
		interval:  DefaultPurgeInterval,
		logger:    defLogger{},
	}
}

// WithInterval changes the purge cadence
func (s *PurgeScheduler) WithInterval(interval time.Duration) *PurgeScheduler {
	if interval > 0 {
		s.interval = interval
	}
	return s
}

// WithLogger overrides the logger
func (s *PurgeScheduler) WithLogger(logger Logger) *PurgeScheduler {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// Start launches the ticker loop. Calling Start on a running scheduler
// is a no-op. The loop stops when ctx is cancelled or Stop is called.
func (s *PurgeScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(ctx, s.done)
}

// Stop halts the loop and waits for an in-flight run to finish
func (s *PurgeScheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	<-done
}

func (s *PurgeScheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *PurgeScheduler) runOnce(ctx context.Context) {
	purged, err := s.lifecycle.PurgeStaleAccounts(ctx)
	if err != nil {
		s.logger.Error("stale account purge failed: %v", err)
		return
	}

	if purged > 0 {
		s.logger.Info("purged %d stale unactivated accounts", purged)
	}
}
