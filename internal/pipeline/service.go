// Package pipeline orchestrates verification jobs: input normalization,
// claim extraction, bounded-parallel per-claim retrieval and debate, and
// verdict aggregation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentra/factcheck/internal/debate"
	"github.com/agentra/factcheck/internal/ingest"
	"github.com/agentra/factcheck/internal/llm"
	"github.com/agentra/factcheck/internal/model"
	"github.com/agentra/factcheck/internal/progress"
	"github.com/agentra/factcheck/internal/retrieval"
	"github.com/agentra/factcheck/internal/worker"
)

// Service accepts verification jobs and runs them asynchronously. Job state
// is owned by the service; callers see snapshots and progress events only.
type Service struct {
	cfg        *model.Config
	normalizer *ingest.Normalizer
	provider   llm.Provider
	planner    *retrieval.Planner
	engine     *debate.Engine
	publisher  *progress.Publisher
	logger     *zap.Logger

	mu   sync.Mutex
	jobs map[string]*jobHandle

	now func() time.Time
}

type jobHandle struct {
	mu     sync.Mutex
	job    *model.Job
	cancel context.CancelCauseFunc
	done   chan struct{}
}

// NewService wires the pipeline.
func NewService(cfg *model.Config, normalizer *ingest.Normalizer, provider llm.Provider, planner *retrieval.Planner, engine *debate.Engine, publisher *progress.Publisher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cfg:        cfg,
		normalizer: normalizer,
		provider:   provider,
		planner:    planner,
		engine:     engine,
		publisher:  publisher,
		logger:     logger,
		jobs:       make(map[string]*jobHandle),
		now:        time.Now,
	}
}

// Submit validates the input, assigns a job id, and starts the run in the
// background. It returns immediately.
func (s *Service) Submit(input model.Input) (string, error) {
	if input.Text == "" && input.URL == "" && input.ImagePath == "" && input.AudioPath == "" && input.VideoPath == "" {
		return "", model.ErrNoInput
	}

	jobID := uuid.NewString()
	ctx, cancel := context.WithCancelCause(context.Background())

	handle := &jobHandle{
		job: &model.Job{
			ID:        jobID,
			Input:     input,
			Status:    model.JobPending,
			CreatedAt: s.now(),
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	s.jobs[jobID] = handle
	s.mu.Unlock()

	go s.runJob(ctx, handle)
	return jobID, nil
}

// Result returns a snapshot of the job.
func (s *Service) Result(jobID string) (*model.JobResult, error) {
	handle, err := s.handle(jobID)
	if err != nil {
		return nil, err
	}

	handle.mu.Lock()
	defer handle.mu.Unlock()
	job := handle.job
	return &model.JobResult{
		JobID:         job.ID,
		Status:        job.Status,
		Source:        job.Source,
		Claims:        append([]model.Claim(nil), job.Claims...),
		Verdict:       job.Verdict,
		FailureReason: job.FailureReason,
		CreatedAt:     job.CreatedAt,
		CompletedAt:   job.CompletedAt,
	}, nil
}

// Wait blocks until the job reaches a terminal status or the context ends,
// then returns the result snapshot.
func (s *Service) Wait(ctx context.Context, jobID string) (*model.JobResult, error) {
	handle, err := s.handle(jobID)
	if err != nil {
		return nil, err
	}

	select {
	case <-handle.done:
		return s.Result(jobID)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel requests cancellation. The job observes it at the next state
// boundary and finishes as Failed with the reason recorded. Cancelling a
// terminal job is a no-op.
func (s *Service) Cancel(jobID, reason string) error {
	handle, err := s.handle(jobID)
	if err != nil {
		return err
	}
	if reason == "" {
		reason = "cancelled by caller"
	}
	handle.cancel(fmt.Errorf("%w: %s", model.ErrCancelled, reason))
	return nil
}

// Subscribe attaches a progress listener to the job.
func (s *Service) Subscribe(jobID string) (<-chan model.ProgressEvent, func(), error) {
	if _, err := s.handle(jobID); err != nil {
		return nil, nil, err
	}
	ch, cancel := s.publisher.Subscribe(jobID)
	return ch, cancel, nil
}

func (s *Service) handle(jobID string) (*jobHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	handle, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrJobNotFound, jobID)
	}
	return handle, nil
}

func (s *Service) runJob(ctx context.Context, handle *jobHandle) {
	defer close(handle.done)

	if s.cfg.Pipeline.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Pipeline.JobTimeout)
		defer cancel()
	}

	jobID := handle.job.ID
	defer s.publisher.CloseJob(jobID)

	// Extracting
	s.setStatus(handle, model.JobExtracting)
	s.publisher.Publish(jobID, "extracting", "", "normalizing input", nil)

	claims, source, notes, err := s.extract(ctx, handle)
	if err != nil {
		s.fail(handle, err)
		return
	}

	handle.mu.Lock()
	handle.job.Source = source
	handle.job.VisualNotes = notes
	handle.mu.Unlock()

	s.publisher.Publish(jobID, "extracting", "", fmt.Sprintf("extracted %d claims", len(claims)),
		map[string]interface{}{"claims": len(claims)})

	// Per-claim verification on a bounded pool. Results carry the claim's
	// submission index so aggregation sees claims in input order.
	s.setStatus(handle, model.JobRetrieving)

	pool := worker.NewPool(ctx, s.cfg.Pipeline.ClaimParallelism)
	pool.Start()
	// Submit from a separate goroutine so Wait drains results while jobs
	// queue. Submitting everything up front wedges once the claim count
	// outgrows the pool's buffers.
	go func() {
		for i, claim := range claims {
			pool.Submit(&claimJob{service: s, index: i, claim: claim})
		}
		pool.Close()
	}()
	results := pool.Wait()

	if ctx.Err() != nil {
		s.fail(handle, fmt.Errorf("%w: %v", model.ErrCancelled, context.Cause(ctx)))
		return
	}

	verified := make([]model.Claim, len(claims))
	copy(verified, claims)
	for _, result := range results {
		cr := result.(*claimResult)
		verified[cr.index] = cr.claim
	}

	s.setStatus(handle, model.JobDebating)
	verdict := Aggregate(verified, s.cfg.Debate)

	handle.mu.Lock()
	handle.job.Claims = verified
	handle.job.Verdict = verdict
	handle.job.Status = model.JobDone
	handle.job.CompletedAt = s.now()
	handle.mu.Unlock()

	s.publisher.Publish(jobID, "done", "", fmt.Sprintf("verdict %s (%.2f)", verdict.Label, verdict.Confidence),
		map[string]interface{}{"label": string(verdict.Label), "confidence": verdict.Confidence})

	s.logger.Info("job finished",
		zap.String("job", jobID),
		zap.String("label", string(verdict.Label)),
		zap.Float64("confidence", verdict.Confidence),
		zap.Int("claims", len(verified)))
}

// extract normalizes the input and turns the extraction plan into atomic
// claims, capped at the configured maximum.
func (s *Service) extract(ctx context.Context, handle *jobHandle) ([]model.Claim, model.SourceKind, []string, error) {
	normalized, err := s.normalizer.Normalize(ctx, handle.job.Input)
	if err != nil {
		return nil, "", nil, err
	}

	plan, err := s.provider.ExtractClaims(ctx, normalized.Text)
	if err != nil {
		return nil, "", nil, fmt.Errorf("%w: %v", model.ErrExtractionFailure, err)
	}
	if len(plan.Subclaims) == 0 {
		return nil, "", nil, fmt.Errorf("%w: no checkable claims in input", model.ErrExtractionFailure)
	}

	subclaims := plan.Subclaims
	if limit := s.cfg.Pipeline.MaxClaims; limit > 0 && len(subclaims) > limit {
		s.logger.Warn("claim plan truncated",
			zap.String("job", handle.job.ID),
			zap.Int("planned", len(subclaims)), zap.Int("max", limit))
		subclaims = subclaims[:limit]
	}

	claims := make([]model.Claim, 0, len(subclaims))
	for i, sub := range subclaims {
		claims = append(claims, model.Claim{
			ID:        fmt.Sprintf("%s-c%d", handle.job.ID[:8], i+1),
			JobID:     handle.job.ID,
			Text:      sub.Text,
			Subclaims: []model.Subclaim{sub},
			Status:    model.ClaimPending,
		})
	}
	return claims, normalized.Source, normalized.VisualNotes, nil
}

func (s *Service) setStatus(handle *jobHandle, status model.JobStatus) {
	handle.mu.Lock()
	handle.job.Status = status
	handle.mu.Unlock()
}

func (s *Service) fail(handle *jobHandle, cause error) {
	handle.mu.Lock()
	handle.job.Status = model.JobFailed
	handle.job.FailureReason = cause.Error()
	handle.job.CompletedAt = s.now()
	jobID := handle.job.ID
	handle.mu.Unlock()

	s.publisher.Publish(jobID, "failed", "", cause.Error(), nil)
	s.logger.Warn("job failed", zap.String("job", jobID), zap.Error(cause))
}

// claimJob verifies one claim: plan queries, retrieve evidence, debate.
type claimJob struct {
	service *Service
	index   int
	claim   model.Claim
}

type claimResult struct {
	index int
	claim model.Claim
	err   error
}

func (r *claimResult) GetError() error { return r.err }

func (j *claimJob) Execute(ctx context.Context) worker.Result {
	s := j.service
	claim := j.claim
	jobID := claim.JobID

	claim.Status = model.ClaimRetrieving
	s.publisher.Publish(jobID, "retrieving", claim.ID, "planning queries", nil)

	queries := s.planner.Plan(ctx, claim)
	items := s.planner.Retrieve(ctx, claim, queries)
	claim.Evidence = items

	s.publisher.Publish(jobID, "retrieving", claim.ID,
		fmt.Sprintf("retrieved %d evidence items", len(items)),
		map[string]interface{}{"evidence": len(items), "queries": len(queries)})

	claim.Status = model.ClaimDebating
	s.publisher.Publish(jobID, "debating", claim.ID, "debate opened", nil)

	outcome, err := s.engine.Run(ctx, claim, items)
	if outcome != nil {
		claim.Turns = outcome.Turns
		claim.Notes = append(claim.Notes, outcome.Notes...)
	}
	if err != nil {
		// Reasoning outage or cancellation degrades the claim, not the job.
		claim.Status = model.ClaimFailed
		claim.Verdict = &model.Verdict{
			Label:      model.LabelUnverified,
			Confidence: 0,
			Rationale:  "debate did not complete",
		}
		claim.Notes = append(claim.Notes, fmt.Sprintf("claim unverified: %v", err))
		if !errors.Is(err, model.ErrCancelled) {
			s.publisher.Publish(jobID, "debating", claim.ID, "debate unavailable, claim unverified", nil)
		}
		return &claimResult{index: j.index, claim: claim, err: err}
	}

	claim.Status = model.ClaimDone
	claim.Verdict = &outcome.Verdict
	s.publisher.Publish(jobID, "debating", claim.ID,
		fmt.Sprintf("verdict %s (%.2f)", outcome.Verdict.Label, outcome.Verdict.Confidence),
		map[string]interface{}{"label": string(outcome.Verdict.Label), "confidence": outcome.Verdict.Confidence})

	return &claimResult{index: j.index, claim: claim}
}
