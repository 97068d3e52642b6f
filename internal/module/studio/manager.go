package studio

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gemkit/server/internal/shared/config"
	apperrors "github.com/gemkit/server/internal/shared/errors"
	"github.com/gemkit/server/internal/shared/metrics"
)

// runEntry pairs a run with its lock. All mutation goes through withRun so
// the reducer consumer is the only writer while a run is in flight.
type runEntry struct {
	mu  sync.Mutex
	run Run
}

func (e *runEntry) withRun(fn func(*Run)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.run)
}

// snapshot returns a deep copy safe to serialize outside the lock.
func (e *runEntry) snapshot() Run {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp := e.run
	cp.Aggregate = e.run.Aggregate.Clone()
	if e.run.Progress != nil {
		p := *e.run.Progress
		cp.Progress = &p
	}
	return cp
}

// Manager owns the in-memory run registry: it admits runs under a
// concurrency cap, feeds each run's updates through a single reducer
// consumer, and evicts terminal runs after the retention window.
type Manager struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]*runEntry

	orchestrator *Orchestrator
	metrics      *metrics.Metrics
	cfg          config.PipelineConfig
	log          *zap.Logger

	semaphore chan struct{}

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewManager creates a run manager.
func NewManager(orchestrator *Orchestrator, m *metrics.Metrics, cfg config.PipelineConfig, log *zap.Logger) *Manager {
	if cfg.MaxConcurrentRuns <= 0 {
		cfg.MaxConcurrentRuns = 4
	}
	if cfg.RunRetention <= 0 {
		cfg.RunRetention = time.Hour
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Manager{
		runs:         make(map[uuid.UUID]*runEntry),
		orchestrator: orchestrator,
		metrics:      m,
		cfg:          cfg,
		log:          log,
		semaphore:    make(chan struct{}, cfg.MaxConcurrentRuns),
		stopCh:       make(chan struct{}),
	}
}

// Start launches the retention cleanup loop.
func (m *Manager) Start() {
	m.wg.Add(1)
	go m.cleanupLoop()
}

// Stop stops accepting work and waits for in-flight runs.
func (m *Manager) Stop() {
	close(m.stopCh)
	m.wg.Wait()
}

// Submit registers a new run and starts it in the background.
func (m *Manager) Submit(ctx context.Context, input RunInput) (Run, error) {
	if len(input.Images) == 0 {
		return Run{}, apperrors.Validation("at least one image is required")
	}

	now := time.Now()
	entry := &runEntry{run: Run{
		ID:        uuid.New(),
		Status:    RunStatusPending,
		Aggregate: NewAggregate(len(input.Images)),
		Progress: &Progress{
			Stage: StageUploading,
			Total: TotalSteps(len(input.Images)),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}}

	m.mu.Lock()
	m.runs[entry.run.ID] = entry
	m.mu.Unlock()

	m.wg.Add(1)
	go m.executeRun(entry, input)

	return entry.snapshot(), nil
}

// Get retrieves a run snapshot by ID.
func (m *Manager) Get(id uuid.UUID) (Run, error) {
	m.mu.RLock()
	entry, ok := m.runs[id]
	m.mu.RUnlock()

	if !ok {
		return Run{}, apperrors.NotFound("run")
	}
	return entry.snapshot(), nil
}

// Export renders the text export of a completed run.
func (m *Manager) Export(id uuid.UUID) (string, error) {
	run, err := m.Get(id)
	if err != nil {
		return "", err
	}
	if run.Status != RunStatusCompleted {
		return "", apperrors.Validation("run is not completed")
	}
	return ExportText(run.Aggregate), nil
}

// executeRun drives one run: semaphore admission, the reducer consumer, the
// pipeline itself, and terminal bookkeeping.
func (m *Manager) executeRun(entry *runEntry, input RunInput) {
	defer m.wg.Done()

	select {
	case <-m.stopCh:
		entry.withRun(func(run *Run) {
			run.Status = RunStatusFailed
			run.Error = "server shutting down"
			run.UpdatedAt = time.Now()
		})
		return
	case m.semaphore <- struct{}{}:
		defer func() { <-m.semaphore }()
	}

	entry.withRun(func(run *Run) {
		run.Status = RunStatusRunning
		run.UpdatedAt = time.Now()
	})

	updates := make(chan Update, 64)
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		applyUpdates(updates, entry.withRun)
	}()

	start := time.Now()
	err := m.orchestrator.Execute(context.Background(), input, func(u Update) {
		updates <- u
	})
	close(updates)
	<-consumerDone

	now := time.Now()
	entry.withRun(func(run *Run) {
		run.UpdatedAt = now
		run.CompletedAt = &now
		if err != nil {
			run.Status = RunStatusFailed
			run.Error = err.Error()
		} else {
			run.Status = RunStatusCompleted
		}
	})

	if m.metrics != nil {
		status := string(RunStatusCompleted)
		if err != nil {
			status = string(RunStatusFailed)
		}
		m.metrics.RecordRun(status, now.Sub(start))
	}

	if err != nil {
		m.log.Error("run failed",
			zap.String("run_id", entry.run.ID.String()),
			zap.Error(err),
		)
	} else {
		m.log.Info("run completed",
			zap.String("run_id", entry.run.ID.String()),
			zap.Duration("duration", now.Sub(start)),
		)
	}

	m.clearProgressLater(entry)
}

// clearProgressLater drops the progress block a short while after the run
// settles, so late pollers see the terminal state once before it disappears.
func (m *Manager) clearProgressLater(entry *runEntry) {
	wait := m.cfg.ProgressClearWait
	if wait <= 0 {
		entry.withRun(func(run *Run) { run.Progress = nil })
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		select {
		case <-m.stopCh:
		case <-time.After(wait):
		}
		entry.withRun(func(run *Run) { run.Progress = nil })
	}()
}

// cleanupLoop evicts terminal runs older than the retention window.
func (m *Manager) cleanupLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.evictExpired(time.Now())
		}
	}
}

func (m *Manager) evictExpired(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, entry := range m.runs {
		run := entry.snapshot()
		if !run.Status.IsTerminal() || run.CompletedAt == nil {
			continue
		}
		if now.Sub(*run.CompletedAt) > m.cfg.RunRetention {
			delete(m.runs, id)
			m.log.Debug("run evicted", zap.String("run_id", id.String()))
		}
	}
}
