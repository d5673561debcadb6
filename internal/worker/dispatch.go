package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

var (
	// ErrTransient marks a message worth redelivering.
	ErrTransient = errors.New("transient job failure")

	// ErrPoisonMessage marks a message that can never succeed.
	ErrPoisonMessage = errors.New("malformed job message")
)

// Dispatcher decodes job messages and runs them on a BatchJob.
type Dispatcher struct {
	batch  *BatchJob
	logger zerolog.Logger
}

// NewDispatcher creates a dispatcher for batch.
func NewDispatcher(batch *BatchJob, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{batch: batch, logger: logger}
}

// Dispatch runs the job encoded in data. A message is only worth redelivering
// when nothing from it was stored and every failure was transient; such
// failures wrap ErrTransient. Everything else is final.
func (d *Dispatcher) Dispatch(ctx context.Context, data []byte) error {
	var msg JobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("%w: %w", ErrPoisonMessage, err)
	}

	switch msg.JobType {
	case JobTypeHealthCheck:
		if err := d.batch.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrTransient, err)
		}
		d.logger.Debug().Msg("health check passed")
		return nil
	case JobTypeRouteProfile, JobTypeMatchProfile:
	default:
		return fmt.Errorf("%w: %w: %q", ErrPoisonMessage, ErrUnknownJobType, msg.JobType)
	}

	if len(msg.Jobs) == 0 {
		return fmt.Errorf("%w: no jobs", ErrPoisonMessage)
	}

	result, err := d.batch.Run(ctx, msg.JobType, msg.Jobs)
	if err != nil {
		return err
	}

	for _, e := range result.Errors {
		d.logger.Warn().
			Str("job_id", e.JobID).
			Str("reason", e.Reason).
			Str("error", e.Error).
			Msg("profile job not built")
	}

	if result.Successful == 0 && result.Transient() {
		return fmt.Errorf("%w: %d of %d jobs failed", ErrTransient, result.Failed, result.Total)
	}
	return nil
}
