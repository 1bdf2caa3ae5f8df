package cron

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/pharmacy-backend/pkg/logger"
	"github.com/angelmondragon/pharmacy-backend/pkg/metrics"
)

const (
	defaultInterval   = time.Hour
	defaultJobTimeout = 10 * time.Minute
)

// ServiceParams configure the maintenance scheduler. Metrics is optional.
type ServiceParams struct {
	Logger     *logger.Logger
	Registry   *Registry
	Lock       Lock
	Metrics    *metrics.JobMetrics
	Interval   time.Duration
	JobTimeout time.Duration
}

// Report describes one cycle. Err combines every job failure.
type Report struct {
	Skipped bool
	Ran     []string
	Failed  []string
	Err     error
}

// Service runs the registered jobs on a fixed cadence. A cycle only runs
// while Lock is held, so a single replica does maintenance at a time.
type Service struct {
	logg       *logger.Logger
	registry   *Registry
	lock       Lock
	metrics    *metrics.JobMetrics
	interval   time.Duration
	jobTimeout time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Lock == nil {
		return nil, errors.New("lock required")
	}
	svc := &Service{
		logg:       params.Logger,
		registry:   params.Registry,
		lock:       params.Lock,
		metrics:    params.Metrics,
		interval:   params.Interval,
		jobTimeout: params.JobTimeout,
	}
	if svc.registry == nil {
		svc.registry = NewRegistry()
	}
	if svc.interval <= 0 {
		svc.interval = defaultInterval
	}
	if svc.jobTimeout <= 0 {
		svc.jobTimeout = defaultJobTimeout
	}
	return svc, nil
}

// Run starts with an immediate cycle and repeats every interval until ctx
// is done. Cycle failures are logged, never returned.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.cycle(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Service) cycle(ctx context.Context) {
	report, err := s.RunOnce(ctx)
	switch {
	case err != nil:
		s.logg.Error(ctx, "maintenance cycle aborted", err)
	case report.Err != nil:
		ctx = s.logg.WithField(ctx, "failed_jobs", report.Failed)
		s.logg.Warn(ctx, "maintenance cycle finished with failures")
	}
}

// RunOnce runs each job a single time. Job failures land in the report and
// do not stop later jobs; the returned error is reserved for the lock.
func (s *Service) RunOnce(ctx context.Context) (Report, error) {
	held, err := s.lock.Acquire(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("maintenance lock: %w", err)
	}
	if !held {
		s.logg.Info(ctx, "maintenance lock held elsewhere; skipping cycle")
		return Report{Skipped: true}, nil
	}
	defer func() {
		if err := s.lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logg.Error(ctx, "failed to release maintenance lock", err)
		}
	}()

	var report Report
	for _, job := range s.registry.Jobs() {
		report.Ran = append(report.Ran, job.Name())
		if err := s.runJob(ctx, job); err != nil {
			report.Failed = append(report.Failed, job.Name())
			report.Err = multierr.Append(report.Err, fmt.Errorf("%s: %w", job.Name(), err))
		}
	}
	return report, nil
}

func (s *Service) runJob(ctx context.Context, job Job) (err error) {
	name := job.Name()
	jobCtx, cancel := context.WithTimeout(ctx, s.jobTimeout)
	defer cancel()
	jobCtx = s.logg.WithFields(jobCtx, map[string]any{"job": name, "event": "maintenance.job"})

	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
			jobCtx = s.logg.WithField(jobCtx, "stack", string(debug.Stack()))
		}
		elapsed := time.Since(start)
		s.metrics.ObserveDuration(name, elapsed)
		jobCtx = s.logg.WithField(jobCtx, "duration_ms", elapsed.Milliseconds())
		if err != nil {
			s.metrics.IncFailure(name)
			s.logg.Error(jobCtx, "job failed", err)
			return
		}
		s.metrics.IncSuccess(name)
		s.logg.Info(jobCtx, "job completed")
	}()

	return job.Run(jobCtx)
}
