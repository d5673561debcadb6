package worker

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/routeprofile/routeprofile/internal/geo"
	"github.com/routeprofile/routeprofile/internal/profile"
	"github.com/routeprofile/routeprofile/internal/report"
	"github.com/routeprofile/routeprofile/internal/routing"
	"github.com/routeprofile/routeprofile/internal/store"
	"github.com/routeprofile/routeprofile/internal/trackfile"
)

// ErrUnknownJobType is returned for a job type the batch cannot run.
var ErrUnknownJobType = errors.New("unknown job type")

// ProfileService builds and stores profiles. *report.Service implements it.
type ProfileService interface {
	RouteProfile(ctx context.Context, in report.RouteInput) (*store.Profile, error)
	MatchProfile(ctx context.Context, in report.MatchInput) (*store.Profile, error)
	Geocode(ctx context.Context, place string) (*routing.GeocodeResult, error)
}

// BatchJob builds the profiles of a job message with a bounded worker pool.
type BatchJob struct {
	config  BatchConfig
	service ProfileService
	logger  zerolog.Logger

	metrics *BatchMetrics
}

// BatchMetrics tracks batch job statistics.
type BatchMetrics struct {
	mu sync.RWMutex

	// Counters
	TotalBatches    int64
	ProfilesBuilt   int64
	ProfilesFailed  int64
	RouteProfiles   int64
	MatchedProfiles int64

	// Timings
	LastBatchAt       time.Time
	LastBatchDuration time.Duration
	TotalDuration     time.Duration
}

// BatchJobConfig holds configuration for creating a BatchJob.
type BatchJobConfig struct {
	Config  BatchConfig
	Service ProfileService
	Logger  zerolog.Logger
}

// NewBatchJob creates a new batch job processor.
func NewBatchJob(cfg BatchJobConfig) *BatchJob {
	return &BatchJob{
		config:  cfg.Config.withDefaults(),
		service: cfg.Service,
		logger:  cfg.Logger,
		metrics: &BatchMetrics{},
	}
}

// BatchResult contains the result of a batch.
type BatchResult struct {
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	Total      int
	Successful int
	Failed     int
	ProfileIDs []string
	Errors     []JobError
}

// JobError represents a failed profile build.
type JobError struct {
	JobID  string
	Reason string
	Error  string
}

// Transient reports whether every failure could succeed on a retry.
func (r *BatchResult) Transient() bool {
	if len(r.Errors) == 0 {
		return false
	}
	for _, e := range r.Errors {
		if !transientReason(e.Reason) {
			return false
		}
	}
	return true
}

func transientReason(reason string) bool {
	return reason == "provider_unavailable" || reason == "rate_limited"
}

// Run builds every job of jobType. Jobs without an ID are numbered by position.
func (j *BatchJob) Run(ctx context.Context, jobType string, jobs []ProfileJob) (*BatchResult, error) {
	if jobType != JobTypeRouteProfile && jobType != JobTypeMatchProfile {
		return nil, fmt.Errorf("%w: %q", ErrUnknownJobType, jobType)
	}

	startTime := time.Now()
	result := &BatchResult{
		StartTime: startTime,
		Total:     len(jobs),
	}

	j.logger.Info().
		Str("job_type", jobType).
		Int("jobs", len(jobs)).
		Int("concurrency", j.config.Concurrency).
		Msg("starting profile batch")

	// Create work channels
	jobsChan := make(chan ProfileJob, len(jobs))
	resultsChan := make(chan jobResult, len(jobs))

	// Start workers
	var wg sync.WaitGroup
	for i := 0; i < j.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j.buildWorker(ctx, jobType, jobsChan, resultsChan)
		}()
	}

	for i, job := range jobs {
		if job.ID == "" {
			job.ID = strconv.Itoa(i)
		}
		jobsChan <- job
	}
	close(jobsChan)

	// Wait for workers to complete
	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	// Collect results
	for jr := range resultsChan {
		if jr.err != nil {
			result.Failed++
			result.Errors = append(result.Errors, JobError{
				JobID:  jr.jobID,
				Reason: report.FailureReason(jr.err),
				Error:  jr.err.Error(),
			})
			continue
		}
		result.Successful++
		result.ProfileIDs = append(result.ProfileIDs, jr.profileID)
	}

	// Jobs never picked up because ctx was cancelled
	if skipped := result.Total - result.Successful - result.Failed; skipped > 0 {
		result.Failed += skipped
		result.Errors = append(result.Errors, JobError{
			Reason: "cancelled",
			Error:  fmt.Sprintf("%d jobs not started: %v", skipped, ctx.Err()),
		})
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(startTime)

	j.updateMetrics(jobType, result)

	j.logger.Info().
		Str("job_type", jobType).
		Dur("duration", result.Duration).
		Int("successful", result.Successful).
		Int("failed", result.Failed).
		Msg("profile batch completed")

	return result, nil
}

type jobResult struct {
	jobID     string
	profileID string
	err       error
}

func (j *BatchJob) buildWorker(ctx context.Context, jobType string, jobs <-chan ProfileJob, results chan<- jobResult) {
	for job := range jobs {
		select {
		case <-ctx.Done():
			return
		default:
			results <- j.build(ctx, jobType, job)
		}
	}
}

func (j *BatchJob) build(ctx context.Context, jobType string, job ProfileJob) jobResult {
	jobCtx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	var (
		p   *store.Profile
		err error
	)
	switch jobType {
	case JobTypeMatchProfile:
		p, err = j.service.MatchProfile(jobCtx, report.MatchInput{
			GPX:            []byte(job.GPX),
			FullResolution: job.FullResolution,
		})
	default:
		var in report.RouteInput
		in, err = routeInput(job)
		if err == nil {
			p, err = j.service.RouteProfile(jobCtx, in)
		}
	}

	if err != nil {
		j.logger.Warn().Err(err).Str("job_id", job.ID).Msg("profile job failed")
		return jobResult{jobID: job.ID, err: err}
	}
	if j.config.ExportDir != "" {
		j.export(p)
	}
	return jobResult{jobID: job.ID, profileID: p.ID}
}

// export writes p to the export directory. A failed export is logged and
// leaves the stored profile untouched.
func (j *BatchJob) export(p *store.Profile) {
	path := filepath.Join(j.config.ExportDir, p.ID+trackfile.Extension)
	data, err := trackfile.Export(path, p.Table(), trackfile.Options{Name: p.ID})
	if err != nil {
		j.logger.Warn().Err(err).Str("profile_id", p.ID).Str("path", path).Msg("exporting profile failed")
		return
	}
	j.logger.Debug().Str("profile_id", p.ID).Str("path", path).Int("bytes", len(data)).Msg("exported profile")
}

func routeInput(job ProfileJob) (report.RouteInput, error) {
	source, err := profile.ParseDistanceSource(job.DistanceSource)
	if err != nil {
		return report.RouteInput{}, fmt.Errorf("%w: %w", report.ErrInvalidInput, err)
	}
	in := report.RouteInput{
		Places:         job.Places,
		TransportMode:  routing.TransportMode(job.TransportMode),
		FullResolution: job.FullResolution,
		DistanceSource: source,
	}
	for _, wp := range job.Waypoints {
		in.Waypoints = append(in.Waypoints, geo.Coordinate{Lat: wp.Lat, Lon: wp.Lon})
	}
	if job.DepartureTime != nil {
		in.DepartureTime = *job.DepartureTime
	}
	return in, nil
}

// HealthCheck geocodes the configured query to verify provider connectivity.
func (j *BatchJob) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	if _, err := j.service.Geocode(ctx, j.config.HealthCheckQuery); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

func (j *BatchJob) updateMetrics(jobType string, result *BatchResult) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.TotalBatches++
	j.metrics.ProfilesBuilt += int64(result.Successful)
	j.metrics.ProfilesFailed += int64(result.Failed)
	if jobType == JobTypeMatchProfile {
		j.metrics.MatchedProfiles += int64(result.Successful)
	} else {
		j.metrics.RouteProfiles += int64(result.Successful)
	}
	j.metrics.LastBatchAt = result.EndTime
	j.metrics.LastBatchDuration = result.Duration
	j.metrics.TotalDuration += result.Duration
}

// GetMetrics returns a copy of the current metrics.
func (j *BatchJob) GetMetrics() BatchMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return BatchMetrics{
		TotalBatches:      j.metrics.TotalBatches,
		ProfilesBuilt:     j.metrics.ProfilesBuilt,
		ProfilesFailed:    j.metrics.ProfilesFailed,
		RouteProfiles:     j.metrics.RouteProfiles,
		MatchedProfiles:   j.metrics.MatchedProfiles,
		LastBatchAt:       j.metrics.LastBatchAt,
		LastBatchDuration: j.metrics.LastBatchDuration,
		TotalDuration:     j.metrics.TotalDuration,
	}
}

// MetricsSnapshot returns a snapshot of the current metrics as a map.
func (j *BatchJob) MetricsSnapshot() map[string]interface{} {
	m := j.GetMetrics()
	return map[string]interface{}{
		"total_batches":       m.TotalBatches,
		"profiles_built":      m.ProfilesBuilt,
		"profiles_failed":     m.ProfilesFailed,
		"route_profiles":      m.RouteProfiles,
		"matched_profiles":    m.MatchedProfiles,
		"last_batch_at":       m.LastBatchAt,
		"last_batch_duration": m.LastBatchDuration.String(),
		"total_duration":      m.TotalDuration.String(),
	}
}
