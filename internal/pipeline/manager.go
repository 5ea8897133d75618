// Package pipeline runs analysis jobs through their stages (upload,
// extraction, remote analysis, summarizing, finalizing) in the background and
// tracks their progress for polling and streaming clients.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/BerylCAtieno/legal-doc-analyzer/internal/analyzer"
	"github.com/BerylCAtieno/legal-doc-analyzer/internal/extractor"
	"github.com/BerylCAtieno/legal-doc-analyzer/internal/models"
	"github.com/BerylCAtieno/legal-doc-analyzer/internal/report"
	"github.com/BerylCAtieno/legal-doc-analyzer/internal/repository"
	"github.com/BerylCAtieno/legal-doc-analyzer/internal/storage"
	"github.com/BerylCAtieno/legal-doc-analyzer/internal/utils"

	"golang.org/x/sync/semaphore"
)

var (
	ErrJobNotFound  = errors.New("job not found")
	ErrJobRunning   = errors.New("job is still running")
	ErrJobFinished  = errors.New("job has already finished")
	ErrEmptyText    = errors.New("text must not be empty")
	ErrShuttingDown = errors.New("pipeline is shutting down")
)

// JobError is returned by Result for jobs that failed or were cancelled.
type JobError struct {
	JobID   string
	Status  models.JobStatus
	Message string
}

func (e *JobError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("job %s %s", e.JobID, e.Status)
	}
	return fmt.Sprintf("job %s %s: %s", e.JobID, e.Status, e.Message)
}

const (
	subscriberBuffer   = 16
	persistTimeout     = 10 * time.Second
	interruptedMessage = "interrupted by restart"
)

type Options struct {
	MaxConcurrentJobs int
	MaxFileSize       int64
	// ProgressInterval is how often estimated progress is published while the
	// analysis service is working.
	ProgressInterval time.Duration
}

type jobState struct {
	job    *models.Job
	result *models.AnalysisResult

	// Input held until the first stage consumes it.
	upload []byte
	text   string

	cancel      context.CancelFunc
	done        chan struct{}
	subscribers []chan *models.Job
}

// Manager owns every job started in this process.
type Manager struct {
	repo     repository.Repository
	storage  storage.Storage
	analyzer analyzer.Analyzer
	logger   *utils.Logger
	opts     Options
	sem      *semaphore.Weighted
	now      func() time.Time

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu     sync.RWMutex
	jobs   map[string]*jobState
	closed bool
}

func NewManager(repo repository.Repository, store storage.Storage, az analyzer.Analyzer, logger *utils.Logger, opts Options) *Manager {
	if opts.MaxConcurrentJobs < 1 {
		opts.MaxConcurrentJobs = 1
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = time.Second
	}

	ctx, stop := context.WithCancel(context.Background())
	return &Manager{
		repo:     repo,
		storage:  store,
		analyzer: az,
		logger:   logger,
		opts:     opts,
		sem:      semaphore.NewWeighted(int64(opts.MaxConcurrentJobs)),
		now:      func() time.Time { return time.Now().UTC() },
		ctx:      ctx,
		stop:     stop,
		jobs:     make(map[string]*jobState),
	}
}

// Submit validates an uploaded file and queues it for analysis.
func (m *Manager) Submit(ctx context.Context, req *models.UploadRequest) (*models.Job, error) {
	contentType := extractor.DetectContentType(req.Filename, req.ContentType, req.File)
	if err := extractor.ValidateUpload(contentType, req.File, m.opts.MaxFileSize); err != nil {
		return nil, err
	}

	id := utils.GenerateID()
	now := m.now()
	job := &models.Job{
		ID:          id,
		Kind:        models.JobKindDocument,
		Filename:    req.Filename,
		FileSize:    int64(len(req.File)),
		ContentType: contentType,
		StagingKey:  storage.StagingKey(id, req.Filename),
		Status:      models.JobStatusQueued,
		Stage:       stageLabel(models.JobStatusQueued),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	return m.start(ctx, &jobState{job: job, upload: req.File})
}

// SubmitText queues raw text for analysis. Text jobs begin at the analyzing stage.
func (m *Manager) SubmitText(ctx context.Context, text string) (*models.Job, error) {
	text = extractor.CleanText(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	if m.opts.MaxFileSize > 0 && int64(len(text)) > m.opts.MaxFileSize {
		return nil, fmt.Errorf("%w of %s", extractor.ErrFileTooLarge, extractor.FormatSize(m.opts.MaxFileSize))
	}

	now := m.now()
	job := &models.Job{
		ID:          utils.GenerateID(),
		Kind:        models.JobKindText,
		FileSize:    int64(len(text)),
		ContentType: extractor.ContentTypeText,
		Status:      models.JobStatusQueued,
		Stage:       stageLabel(models.JobStatusQueued),
		TextLength:  utf8.RuneCountInString(text),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	return m.start(ctx, &jobState{job: job, text: text})
}

func (m *Manager) start(ctx context.Context, state *jobState) (*models.Job, error) {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return nil, ErrShuttingDown
	}

	if err := m.repo.SaveJob(ctx, state.job); err != nil {
		return nil, fmt.Errorf("failed to register job: %w", err)
	}

	jobCtx, cancel := context.WithCancel(m.ctx)
	state.cancel = cancel
	state.done = make(chan struct{})

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		cancel()
		return nil, ErrShuttingDown
	}
	m.jobs[state.job.ID] = state
	snapshot := state.job.Clone()
	m.wg.Add(1)
	m.mu.Unlock()

	m.logger.Info("Job queued",
		"job_id", snapshot.ID,
		"kind", snapshot.Kind,
		"filename", snapshot.Filename,
		"size", snapshot.FileSize,
	)

	go m.run(jobCtx, snapshot.ID)

	return snapshot, nil
}

func (m *Manager) run(ctx context.Context, id string) {
	defer m.wg.Done()

	logger := m.logger.With("job_id", id)
	started := time.Now()

	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline panicked: %v", r)
		}
		m.finish(ctx, id, err, logger, time.Since(started))
	}()

	if err = m.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer m.sem.Release(1)

	err = m.process(ctx, id, logger)
}

func (m *Manager) process(ctx context.Context, id string, logger *utils.Logger) error {
	m.mu.RLock()
	kind := m.jobs[id].job.Kind
	m.mu.RUnlock()

	var text string
	var err error
	if kind == models.JobKindDocument {
		text, err = m.prepareDocument(ctx, id, logger)
		if err != nil {
			return err
		}
	} else {
		text = m.takeText(id)
	}

	m.enter(id, models.JobStatusAnalyzing)
	analyzeStart := time.Now()
	raw, err := m.analyze(ctx, id, text)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}
	logger.Info("Analysis received",
		"clauses", len(raw.DetailedAnalysis),
		"duration_ms", time.Since(analyzeStart).Milliseconds(),
	)

	m.enter(id, models.JobStatusSummarizing)
	result := report.Build(id, raw, m.now())
	m.setStageProgress(id, models.JobStatusSummarizing, 100)

	m.enter(id, models.JobStatusFinalizing)
	if err := m.repo.SaveResult(ctx, result); err != nil {
		return fmt.Errorf("failed to store analysis result: %w", err)
	}

	m.mu.Lock()
	m.jobs[id].result = result
	m.mu.Unlock()

	m.setStageProgress(id, models.JobStatusFinalizing, 100)
	return nil
}

// prepareDocument stages the upload in object storage and extracts its text.
func (m *Manager) prepareDocument(ctx context.Context, id string, logger *utils.Logger) (string, error) {
	m.mu.Lock()
	state := m.jobs[id]
	data := state.upload
	state.upload = nil
	key, contentType := state.job.StagingKey, state.job.ContentType
	m.mu.Unlock()

	m.enter(id, models.JobStatusUploading)
	if err := m.storage.Upload(ctx, key, data, contentType); err != nil {
		return "", fmt.Errorf("failed to stage upload: %w", err)
	}
	m.setStageProgress(id, models.JobStatusUploading, 100)

	m.enter(id, models.JobStatusExtracting)
	staged, err := m.storage.Download(ctx, key)
	if err != nil {
		return "", fmt.Errorf("failed to read staged upload: %w", err)
	}

	var text string
	var pages int
	switch contentType {
	case extractor.ContentTypePDF:
		extraction, err := extractor.ExtractPDF(ctx, staged, func(done, total int) {
			if total > 0 {
				m.setStageProgress(id, models.JobStatusExtracting, float64(done)*100/float64(total))
			}
		})
		if err != nil {
			return "", fmt.Errorf("text extraction failed: %w", err)
		}
		if len(extraction.SkippedPages) > 0 {
			logger.Warn("Skipped unreadable pages", "pages", extraction.SkippedPages)
		}
		text, pages = extraction.Text, extraction.PageCount
	default:
		text, err = extractor.ExtractTXT(staged)
		if err != nil {
			return "", fmt.Errorf("text extraction failed: %w", err)
		}
	}

	m.update(id, true, func(j *models.Job) bool {
		j.PageCount = pages
		j.TextLength = utf8.RuneCountInString(text)
		j.StageProgress = 100
		j.Progress = max(j.Progress, overallProgress(models.JobStatusExtracting, 100))
		return true
	})

	logger.Info("Text extracted", "pages", pages, "characters", len(text))
	return text, nil
}

func (m *Manager) takeText(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	state := m.jobs[id]
	text := state.text
	state.text = ""
	return text
}

// analyze calls the analysis service, publishing estimated progress until it answers.
func (m *Manager) analyze(ctx context.Context, id, text string) (*models.RemoteAnalysis, error) {
	type reply struct {
		raw *models.RemoteAnalysis
		err error
	}
	replies := make(chan reply, 1)
	go func() {
		raw, err := m.analyzer.Analyze(ctx, text)
		replies <- reply{raw, err}
	}()

	ticker := time.NewTicker(m.opts.ProgressInterval)
	defer ticker.Stop()

	var pct float64
	for {
		select {
		case r := <-replies:
			return r.raw, r.err
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			// Approach 90% of the stage without reaching it.
			pct += (90 - pct) / 10
			m.setStageProgress(id, models.JobStatusAnalyzing, pct)
		}
	}
}

// enter moves a job into the next status and persists the transition.
func (m *Manager) enter(id string, status models.JobStatus) {
	m.update(id, true, func(j *models.Job) bool {
		if !j.Status.CanAdvanceTo(status) {
			return false
		}
		j.Status = status
		j.Stage = stageLabel(status)
		j.StageProgress = 0
		j.Progress = max(j.Progress, overallProgress(status, 0))
		return true
	})
}

func (m *Manager) setStageProgress(id string, status models.JobStatus, pct float64) {
	m.update(id, false, func(j *models.Job) bool {
		if j.Status != status {
			return false
		}
		pct = clamp(pct, 0, 100)
		if pct <= j.StageProgress {
			return false
		}
		j.StageProgress = pct
		j.Progress = min(max(j.Progress, overallProgress(status, pct)), maxRunningProgress)
		return true
	})
}

func (m *Manager) update(id string, persist bool, fn func(*models.Job) bool) {
	m.mu.Lock()
	state, ok := m.jobs[id]
	if !ok || state.job.Status.IsTerminal() || !fn(state.job) {
		m.mu.Unlock()
		return
	}
	state.job.UpdatedAt = m.now()
	snapshot := state.job.Clone()
	m.notifyLocked(state, snapshot)
	m.mu.Unlock()

	if persist {
		m.persist(snapshot)
	}
}

func (m *Manager) persist(job *models.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := m.repo.SaveJob(ctx, job); err != nil {
		m.logger.Warn("Failed to persist job state", "job_id", job.ID, "status", job.Status, "error", err)
	}
}

func (m *Manager) finish(ctx context.Context, id string, err error, logger *utils.Logger, elapsed time.Duration) {
	m.mu.Lock()
	state := m.jobs[id]
	job := state.job
	now := m.now()

	switch {
	case err == nil:
		job.Status = models.JobStatusComplete
		job.StageProgress = 100
		job.Progress = 100
	case ctx.Err() != nil:
		job.Status = models.JobStatusCancelled
		job.Error = "cancelled by user"
		if m.ctx.Err() != nil {
			job.Error = "cancelled by server shutdown"
		}
	default:
		job.Status = models.JobStatusFailed
		job.Error = err.Error()
	}
	job.Stage = stageLabel(job.Status)
	job.UpdatedAt = now
	job.CompletedAt = &now
	state.upload = nil
	state.text = ""
	snapshot := job.Clone()
	m.mu.Unlock()

	state.cancel()
	m.persist(snapshot)
	m.removeStaged(snapshot)

	m.mu.Lock()
	m.notifyLocked(state, snapshot)
	m.mu.Unlock()
	close(state.done)

	switch snapshot.Status {
	case models.JobStatusComplete:
		logger.Info("Job complete", "duration_ms", elapsed.Milliseconds())
	case models.JobStatusCancelled:
		logger.Info("Job cancelled", "reason", snapshot.Error)
	default:
		logger.Error("Job failed", "error", err, "duration_ms", elapsed.Milliseconds())
	}
}

func (m *Manager) removeStaged(job *models.Job) {
	if job.StagingKey == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := m.storage.Delete(ctx, job.StagingKey); err != nil {
		m.logger.Warn("Failed to remove staged upload", "job_id", job.ID, "key", job.StagingKey, "error", err)
	}
}

// notifyLocked fans a snapshot out to subscribers. Intermediate snapshots are
// dropped for full channels; a terminal snapshot always replaces the oldest
// queued one and closes the channel.
func (m *Manager) notifyLocked(state *jobState, snapshot *models.Job) {
	terminal := snapshot.Status.IsTerminal()

	for _, ch := range state.subscribers {
		if !terminal {
			select {
			case ch <- snapshot.Clone():
			default:
			}
			continue
		}

		select {
		case ch <- snapshot.Clone():
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snapshot.Clone()
		}
		close(ch)
	}

	if terminal {
		state.subscribers = nil
	}
}

// Get returns a snapshot of a job from memory, falling back to the repository.
func (m *Manager) Get(ctx context.Context, id string) (*models.Job, error) {
	m.mu.RLock()
	state, ok := m.jobs[id]
	if ok {
		snapshot := state.job.Clone()
		m.mu.RUnlock()
		return snapshot, nil
	}
	m.mu.RUnlock()

	job, err := m.repo.GetJob(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrJobNotFound
	}
	return job, err
}

// Result returns the analysis of a complete job.
func (m *Manager) Result(ctx context.Context, id string) (*models.AnalysisResult, error) {
	m.mu.RLock()
	var job *models.Job
	var result *models.AnalysisResult
	if state, ok := m.jobs[id]; ok {
		job = state.job.Clone()
		result = state.result
	}
	m.mu.RUnlock()

	if job == nil {
		var err error
		if job, err = m.Get(ctx, id); err != nil {
			return nil, err
		}
	}

	switch job.Status {
	case models.JobStatusComplete:
		if result != nil {
			return result, nil
		}
		result, err := m.repo.GetResult(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load result for job %s: %w", id, err)
		}
		return result, nil
	case models.JobStatusFailed, models.JobStatusCancelled:
		return nil, &JobError{JobID: id, Status: job.Status, Message: job.Error}
	default:
		return nil, ErrJobRunning
	}
}

// Subscribe streams snapshots of a job. The current snapshot is delivered
// first; the channel closes after the terminal snapshot. The returned func
// stops the subscription early.
func (m *Manager) Subscribe(ctx context.Context, id string) (<-chan *models.Job, func(), error) {
	m.mu.Lock()
	if state, ok := m.jobs[id]; ok {
		ch := make(chan *models.Job, subscriberBuffer)
		ch <- state.job.Clone()
		if state.job.Status.IsTerminal() {
			close(ch)
			m.mu.Unlock()
			return ch, func() {}, nil
		}
		state.subscribers = append(state.subscribers, ch)
		m.mu.Unlock()
		return ch, func() { m.unsubscribe(id, ch) }, nil
	}
	m.mu.Unlock()

	job, err := m.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	ch := make(chan *models.Job, 1)
	ch <- job
	close(ch)
	return ch, func() {}, nil
}

func (m *Manager) unsubscribe(id string, ch chan *models.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.jobs[id]
	if !ok {
		return
	}
	for i, sub := range state.subscribers {
		if sub == ch {
			state.subscribers = append(state.subscribers[:i], state.subscribers[i+1:]...)
			close(ch)
			return
		}
	}
}

// Cancel stops a running job and waits for it to settle. A job that finishes
// before the cancellation lands is returned as is.
func (m *Manager) Cancel(ctx context.Context, id string) (*models.Job, error) {
	m.mu.RLock()
	state, ok := m.jobs[id]
	var terminal bool
	if ok {
		terminal = state.job.Status.IsTerminal()
	}
	m.mu.RUnlock()

	if !ok {
		return m.cancelOrphan(ctx, id)
	}
	if terminal {
		return nil, ErrJobFinished
	}

	state.cancel()
	select {
	case <-state.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return m.Get(ctx, id)
}

// cancelOrphan handles jobs known only to the repository.
func (m *Manager) cancelOrphan(ctx context.Context, id string) (*models.Job, error) {
	job, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status.IsTerminal() {
		return nil, ErrJobFinished
	}

	now := m.now()
	job.Status = models.JobStatusCancelled
	job.Stage = stageLabel(job.Status)
	job.Error = "cancelled by user"
	job.UpdatedAt = now
	job.CompletedAt = &now
	if err := m.repo.SaveJob(ctx, job); err != nil {
		return nil, err
	}
	m.removeStaged(job)
	return job, nil
}

// CleanupOldJobs forgets terminal jobs last updated more than maxAge ago and
// returns how many were deleted from the repository.
func (m *Manager) CleanupOldJobs(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := m.now().Add(-maxAge)

	m.mu.Lock()
	evicted := 0
	for id, state := range m.jobs {
		if state.job.Status.IsTerminal() && state.job.UpdatedAt.Before(cutoff) {
			delete(m.jobs, id)
			evicted++
		}
	}
	m.mu.Unlock()

	deleted, err := m.repo.DeleteFinishedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired jobs: %w", err)
	}

	if evicted > 0 || deleted > 0 {
		m.logger.Info("Expired jobs removed", "evicted", evicted, "deleted", deleted)
	}
	return int(deleted), nil
}

// RecoverInterrupted fails jobs a previous process left unfinished.
func (m *Manager) RecoverInterrupted(ctx context.Context) (int, error) {
	jobs, err := m.repo.ListUnfinished(ctx)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, job := range jobs {
		m.mu.RLock()
		_, live := m.jobs[job.ID]
		m.mu.RUnlock()
		if live {
			continue
		}

		now := m.now()
		job.Status = models.JobStatusFailed
		job.Stage = stageLabel(job.Status)
		job.Error = interruptedMessage
		job.UpdatedAt = now
		job.CompletedAt = &now
		if err := m.repo.SaveJob(ctx, job); err != nil {
			return recovered, err
		}
		m.removeStaged(job)
		recovered++
	}

	if recovered > 0 {
		m.logger.Warn("Marked interrupted jobs as failed", "count", recovered)
	}
	return recovered, nil
}

// Stats counts in-memory jobs per status.
func (m *Manager) Stats() map[models.JobStatus]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[models.JobStatus]int)
	for _, state := range m.jobs {
		counts[state.job.Status]++
	}
	return counts
}

// Close cancels running jobs and waits for them to settle.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.stop()
	m.wg.Wait()
}
