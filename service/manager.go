package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"transcribe-worker/dto"
	"transcribe-worker/entities"
	"transcribe-worker/repository"
)

// JobEventListener receives job state-change events. Listeners run
// synchronously inside the poll cycle; each call is isolated so a panicking
// listener never aborts emission to the others.
type JobEventListener func(event dto.JobEvent)

// JobManager owns the in-memory set of actively tracked transcription jobs
// and drives a recurring poll cycle over it. The persistent store stays the
// single source of truth: every cycle re-reads each job before acting, so a
// concurrent synchronous poll (or another process) advancing a job is never
// raced past terminal.
type JobManager struct {
	repo     repository.Repository
	poller   Poller
	interval time.Duration
	log      zerolog.Logger

	mu           sync.Mutex
	jobs         map[uuid.UUID]*entities.Job
	listeners    map[int]JobEventListener
	nextListener int
	ticker       *time.Ticker
	tickerStop   chan struct{}
	polling      bool
	started      bool
	stopped      bool
}

func NewJobManager(repo repository.Repository, poller Poller, interval time.Duration, log zerolog.Logger) *JobManager {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &JobManager{
		repo:      repo,
		poller:    poller,
		interval:  interval,
		log:       log,
		jobs:      make(map[uuid.UUID]*entities.Job),
		listeners: make(map[int]JobEventListener),
	}
}

// Track registers a job for polling. Terminal jobs are ignored. A fresh cycle
// fires immediately so a newly submitted job does not wait a full interval
// for its first poll.
func (m *JobManager) Track(job *entities.Job) {
	if job == nil || job.Status.Terminal() {
		return
	}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.jobs[job.ID] = job
	m.ensurePollingLocked()
	m.mu.Unlock()

	go m.pollCycle()
}

// Start recovers all non-terminal jobs from the store and begins polling.
// Idempotent: only the first call performs recovery.
func (m *JobManager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.stopped = false
	m.mu.Unlock()

	jobs, err := m.repo.FindActiveJobs(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	for _, job := range jobs {
		if job.Status.Terminal() {
			continue
		}
		m.jobs[job.ID] = job
	}
	if len(m.jobs) > 0 {
		m.ensurePollingLocked()
	}
	m.mu.Unlock()

	m.log.Info().Int("recovered", len(jobs)).Msg("job manager started")
	if len(jobs) > 0 {
		go m.pollCycle()
	}
	return nil
}

// Stop cancels the timer and clears all tracked jobs and listeners. The
// manager stays stopped until a fresh Start.
func (m *JobManager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	m.started = false
	m.stopTickerLocked()
	m.jobs = make(map[uuid.UUID]*entities.Job)
	m.listeners = make(map[int]JobEventListener)
}

// OnJobEvent registers a listener and returns its unsubscribe function.
func (m *JobManager) OnJobEvent(listener JobEventListener) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextListener
	m.nextListener++
	m.listeners[id] = listener
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

func (m *JobManager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}

func (m *JobManager) IsTracking(id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.jobs[id]
	return ok
}

// ensurePollingLocked starts the recurring timer if it is not running.
// Caller holds m.mu.
func (m *JobManager) ensurePollingLocked() {
	if m.ticker != nil || m.stopped {
		return
	}
	m.ticker = time.NewTicker(m.interval)
	m.tickerStop = make(chan struct{})
	go m.runTicker(m.ticker, m.tickerStop)
}

func (m *JobManager) runTicker(ticker *time.Ticker, stop chan struct{}) {
	for {
		select {
		case <-ticker.C:
			m.pollCycle()
		case <-stop:
			return
		}
	}
}

// stopTickerLocked releases the timer. Caller holds m.mu.
func (m *JobManager) stopTickerLocked() {
	if m.ticker == nil {
		return
	}
	m.ticker.Stop()
	close(m.tickerStop)
	m.ticker = nil
	m.tickerStop = nil
}

// pollCycle runs one sweep over the tracked jobs. Overlapping cycles are
// skipped via the polling guard: a cycle slower than the interval simply
// drops ticks instead of stacking up.
func (m *JobManager) pollCycle() {
	m.mu.Lock()
	if m.polling || m.stopped {
		m.mu.Unlock()
		return
	}
	m.polling = true
	ids := make([]uuid.UUID, 0, len(m.jobs))
	for id := range m.jobs {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	ctx := m.log.WithContext(context.Background())

	for _, id := range ids {
		m.pollOne(ctx, id)
	}

	m.mu.Lock()
	m.polling = false
	if len(m.jobs) == 0 {
		m.stopTickerLocked()
	}
	m.mu.Unlock()
}

func (m *JobManager) pollOne(ctx context.Context, id uuid.UUID) {
	// Never trust the cached copy: a synchronous "poll now" may have already
	// advanced the job past terminal.
	fresh, err := m.repo.FindJobById(ctx, id)
	if err != nil {
		m.log.Error().Err(err).Str("job_id", id.String()).Msg("failed to re-read job, will retry next cycle")
		return
	}
	if fresh == nil || fresh.Status.Terminal() {
		m.untrack(id)
		return
	}

	result, err := m.poller.PollJob(ctx, fresh)
	if err != nil {
		// Provider hiccup. Keep the job tracked so the next cycle retries;
		// one misbehaving job must not halt polling of the others.
		m.log.Warn().Err(err).Str("job_id", id.String()).Msg("poll failed, job stays tracked")
		return
	}

	if result.Job.Status.Terminal() {
		m.untrack(id)
	} else {
		m.mu.Lock()
		if _, ok := m.jobs[id]; ok {
			m.jobs[id] = result.Job
		}
		m.mu.Unlock()
	}

	if result.Changed && result.PreviousStatus != nil {
		m.emit(dto.JobEvent{
			JobId:          result.Job.ID,
			RecordingId:    result.Job.RecordingId,
			Status:         result.Job.Status,
			PreviousStatus: *result.PreviousStatus,
		})
	}
}

func (m *JobManager) untrack(id uuid.UUID) {
	m.mu.Lock()
	delete(m.jobs, id)
	m.mu.Unlock()
}

func (m *JobManager) emit(event dto.JobEvent) {
	m.mu.Lock()
	listeners := make([]JobEventListener, 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.mu.Unlock()

	for _, listener := range listeners {
		m.notify(listener, event)
	}
}

// notify isolates one listener call; a panic is logged and emission continues
// with the remaining listeners.
func (m *JobManager) notify(listener JobEventListener, event dto.JobEvent) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().
				Interface("panic", r).
				Str("job_id", event.JobId.String()).
				Msg("job event listener panicked")
		}
	}()
	listener(event)
}
