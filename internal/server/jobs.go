package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jwhan/csvlingo/internal/constants"
	"github.com/jwhan/csvlingo/internal/domain"
	"github.com/jwhan/csvlingo/internal/translate"
)

// ErrTooManyRuns is returned when starting a job would exceed the concurrent
// run limit.
var ErrTooManyRuns = errors.New("too many concurrent runs")

// ErrJobNotFound is returned for unknown job IDs.
var ErrJobNotFound = errors.New("job not found")

// JobStatus tracks a run through its lifecycle.
type JobStatus string

const (
	JobStatusRunning  JobStatus = "running"
	JobStatusComplete JobStatus = "complete"
	JobStatusFailed   JobStatus = "failed"
	JobStatusCanceled JobStatus = "canceled"
)

// Job is one translation run owned by the registry. Events are buffered so
// subscribers can replay what they missed; the result table is kept until the
// job is pruned.
type Job struct {
	ID             string
	SourceLanguage string
	TargetLanguage string
	CreatedAt      time.Time
	FinishedAt     time.Time

	mu        sync.RWMutex
	status    JobStatus
	events    []translate.Event
	maxEvents int
	nextSub   int
	subs      map[int]chan translate.Event
	result    *domain.Table
	summary   *domain.RunSummary
	cancel    context.CancelFunc
}

func newJob(sourceLang, targetLang string, maxEvents int, cancel context.CancelFunc) *Job {
	if maxEvents <= 0 {
		maxEvents = constants.ServerConfig.JobEventBuffer
	}
	return &Job{
		ID:             uuid.NewString(),
		SourceLanguage: sourceLang,
		TargetLanguage: targetLang,
		CreatedAt:      time.Now().UTC(),
		status:         JobStatusRunning,
		maxEvents:      maxEvents,
		subs:           make(map[int]chan translate.Event),
		cancel:         cancel,
	}
}

// Status returns the job's current lifecycle state.
func (j *Job) Status() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status
}

// Result returns the translated table, or nil while the job is running or
// after a failure.
func (j *Job) Result() *domain.Table {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.result
}

// Summary returns the final run summary, or nil while running.
func (j *Job) Summary() *domain.RunSummary {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.summary
}

// Cancel requests cancellation of the underlying run. Safe on finished jobs.
func (j *Job) Cancel() {
	j.cancel()
}

// publish appends one event to the replay buffer and fans it out to live
// subscribers. Slow subscribers are skipped, never blocked on; they catch up
// via EventsSince.
func (j *Job) publish(e translate.Event) {
	j.mu.Lock()
	j.events = append(j.events, e)
	if len(j.events) > j.maxEvents {
		trim := len(j.events) - j.maxEvents
		j.events = append([]translate.Event(nil), j.events[trim:]...)
	}

	subs := make([]chan translate.Event, 0, len(j.subs))
	for _, ch := range j.subs {
		subs = append(subs, ch)
	}
	j.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// EventsSince returns buffered events with sequence strictly greater than seq.
func (j *Job) EventsSince(seq int64) []translate.Event {
	j.mu.RLock()
	defer j.mu.RUnlock()

	out := make([]translate.Event, 0, len(j.events))
	for _, e := range j.events {
		if e.Seq > seq {
			out = append(out, e)
		}
	}
	return out
}

// Subscribe registers a live event channel. The returned function removes the
// subscription and must be called exactly once.
func (j *Job) Subscribe(buffer int) (<-chan translate.Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan translate.Event, buffer)

	j.mu.Lock()
	id := j.nextSub
	j.nextSub++
	j.subs[id] = ch
	j.mu.Unlock()

	return ch, func() {
		j.mu.Lock()
		delete(j.subs, id)
		j.mu.Unlock()
	}
}

func (j *Job) finish(e translate.Event, targetLang string) {
	status := JobStatusComplete
	if e.Type == translate.EventError {
		status = JobStatusFailed
		if e.Message == "run canceled" {
			status = JobStatusCanceled
		}
	}

	j.mu.Lock()
	j.status = status
	j.FinishedAt = time.Now().UTC()
	if e.Type == translate.EventComplete {
		j.result = e.Result
	}
	j.summary = &domain.RunSummary{
		JobID:          j.ID,
		SourceLanguage: j.SourceLanguage,
		TargetLanguage: targetLang,
		TotalRows:      e.TotalRows,
		ProcessedRows:  e.ProcessedRows,
		FailedRows:     e.FailedRows,
		FailedBatches:  e.FailedBatches,
		DegradedCells:  e.DegradedCells,
		Status:         string(status),
		DurationMillis: time.Since(j.CreatedAt).Milliseconds(),
	}
	j.mu.Unlock()
}

// Runner starts translation runs. Satisfied by translate.Orchestrator.
type Runner interface {
	Run(ctx context.Context, table *domain.Table, cfg *domain.TranslationConfig) <-chan translate.Event
}

// Recorder persists finished run summaries. Satisfied by history.Repository.
type Recorder interface {
	Record(ctx context.Context, summary *domain.RunSummary) error
}

// Registry owns all jobs: admission control, event forwarding, summary
// recording, and retention pruning.
type Registry struct {
	runner    Runner
	recorder  Recorder
	maxActive int
	retention time.Duration

	mu   sync.RWMutex
	jobs map[string]*Job

	record func(summary *domain.RunSummary)
}

func NewRegistry(runner Runner, recorder Recorder, maxActive int, retention time.Duration) *Registry {
	if maxActive < 1 {
		maxActive = constants.ServerConfig.MaxConcurrentRuns
	}
	if retention <= 0 {
		retention = constants.ServerConfig.JobRetention
	}

	r := &Registry{
		runner:    runner,
		recorder:  recorder,
		maxActive: maxActive,
		retention: retention,
		jobs:      make(map[string]*Job),
	}
	r.record = r.recordSummary
	return r
}

// Start admits and launches a new run. The job forwards every orchestrator
// event into its buffer and finalizes itself on the terminal event.
func (r *Registry) Start(ctx context.Context, table *domain.Table, cfg *domain.TranslationConfig) (*Job, error) {
	targetLang := targetLanguageOf(cfg)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	r.mu.Lock()
	if r.activeLocked() >= r.maxActive {
		r.mu.Unlock()
		cancel()
		return nil, ErrTooManyRuns
	}
	job := newJob(cfg.SourceLanguage, targetLang, 0, cancel)
	r.jobs[job.ID] = job
	r.mu.Unlock()

	events := r.runner.Run(runCtx, table, cfg)

	go func() {
		defer cancel()
		for e := range events {
			if e.Terminal() {
				job.finish(e, targetLang)
			}
			job.publish(e)
		}
		if s := job.Summary(); s != nil {
			r.record(s)
		}
	}()

	return job, nil
}

// Get returns the job with the given ID.
func (r *Registry) Get(id string) (*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// ActiveCount reports how many jobs are still running.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeLocked()
}

func (r *Registry) activeLocked() int {
	active := 0
	for _, j := range r.jobs {
		if j.Status() == JobStatusRunning {
			active++
		}
	}
	return active
}

// Prune drops finished jobs older than the retention window and returns how
// many were removed.
func (r *Registry) Prune() int {
	cutoff := time.Now().UTC().Add(-r.retention)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, j := range r.jobs {
		if j.finishedBefore(cutoff) {
			delete(r.jobs, id)
			removed++
		}
	}
	return removed
}

func (j *Job) finishedBefore(cutoff time.Time) bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status != JobStatusRunning && j.FinishedAt.Before(cutoff)
}

// Shutdown cancels every running job.
func (r *Registry) Shutdown() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, j := range r.jobs {
		j.Cancel()
	}
}

func (r *Registry) recordSummary(summary *domain.RunSummary) {
	if r.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = r.recorder.Record(ctx, summary)
}

func targetLanguageOf(cfg *domain.TranslationConfig) string {
	if cfg == nil {
		return ""
	}
	for _, m := range cfg.ColumnMappings {
		if m.ShouldTranslate && m.TargetLanguage != "" {
			return m.TargetLanguage
		}
	}
	return ""
}
