// Package cron keeps the snapshot cache warm so calculations can fall back
// to recent data when the ANEEL portal is down.
package cron

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/bher20/kwhmedio/internal/alerting"
	"github.com/bher20/kwhmedio/internal/log"
	"github.com/bher20/kwhmedio/internal/metrics"
	"github.com/bher20/kwhmedio/internal/rates"
	"github.com/bher20/kwhmedio/internal/storage"
)

const (
	JobName = "warm_cache"

	// ScheduleSetting overrides the configured schedule at runtime.
	ScheduleSetting = "refresh_schedule"

	defaultInterval = time.Hour
	controlTick     = 10 * time.Second
)

// lockKey is the postgres advisory lock taken for the duration of a run.
const lockKey int64 = 0x6b77686d

// Notifier is told about runs with failures.
type Notifier interface {
	SendWarmupAlert(ctx context.Context, alert alerting.WarmupAlert) error
}

// Warmer refreshes the flag series and every distributor profile's tariffs.
// src must write through to the cache on success and must not fall back to
// it on failure, otherwise stale data would count as a successful refresh.
type Warmer struct {
	src          rates.Source
	st           storage.Storage
	notifier     Notifier
	distributors func() []rates.DistributorDescriptor
	tick         time.Duration
}

// NewWarmer returns a Warmer. st records job outcomes and provides the
// advisory lock when it implements storage.Locker; notifier may be nil.
func NewWarmer(src rates.Source, st storage.Storage, notifier Notifier) *Warmer {
	return &Warmer{
		src:          src,
		st:           st,
		notifier:     notifier,
		distributors: rates.Distributors,
		tick:         controlTick,
	}
}

// Report describes one warm-up run.
type Report struct {
	RunID    string
	Skipped  bool
	Total    int
	Failures []alerting.TargetFailure
	Duration time.Duration
}

// NextRun interprets setting as integer seconds or a standard cron
// expression. Anything else schedules the next run an hour after last.
func NextRun(setting string, last time.Time) time.Time {
	if v, err := strconv.Atoi(setting); err == nil && v > 0 {
		return last.Add(time.Duration(v) * time.Second)
	}
	if sched, err := cron.ParseStandard(setting); err == nil {
		return sched.Next(last)
	}
	return last.Add(defaultInterval)
}

// ValidateSchedule reports whether setting is something NextRun understands
// without falling back to the default interval.
func ValidateSchedule(setting string) error {
	if v, err := strconv.Atoi(setting); err == nil {
		if v <= 0 {
			return fmt.Errorf("interval must be positive, got %d", v)
		}
		return nil
	}
	if _, err := cron.ParseStandard(setting); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", setting, err)
	}
	return nil
}

// Run executes a warm-up immediately and then on schedule until ctx is done.
func (w *Warmer) Run(ctx context.Context, schedule string) error {
	logger := log.Ctx(ctx).With("job", JobName)

	if val := w.scheduleOverride(ctx); val != "" {
		schedule = val
	}

	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()

	nextRun := time.Now()
	logger.Info("cache warm-up worker starting", "schedule", schedule)

	for {
		if !time.Now().Before(nextRun) {
			if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("cache warm-up finished with errors", "error", err)
			}
			nextRun = NextRun(schedule, time.Now())
			logger.Debug("next cache warm-up scheduled", "at", nextRun)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if val := w.scheduleOverride(ctx); val != "" && val != schedule {
				logger.Info("warm-up schedule updated", "from", schedule, "to", val)
				schedule = val
				nextRun = NextRun(schedule, time.Now())
			}
		}
	}
}

func (w *Warmer) scheduleOverride(ctx context.Context) string {
	if w.st == nil {
		return ""
	}
	val, err := w.st.GetSetting(ctx, ScheduleSetting)
	if err != nil {
		log.Ctx(ctx).Warn("failed to read warm-up schedule setting", "error", err)
		return ""
	}
	return val
}

// RunOnce performs a single warm-up pass. The returned error joins every
// target failure; a run skipped because another replica holds the lock
// returns no error.
func (w *Warmer) RunOnce(ctx context.Context) (Report, error) {
	started := time.Now()
	report := Report{RunID: uuid.NewString()}
	logger := log.Ctx(ctx).With("job", JobName, "run_id", report.RunID)
	ctx = log.With(ctx, logger)

	if locker, ok := w.st.(storage.Locker); ok {
		held, err := locker.AcquireAdvisoryLock(ctx, lockKey)
		if err != nil {
			metrics.UpdateJobMetrics(JobName, started, err)
			return report, fmt.Errorf("acquire advisory lock: %w", err)
		}
		if !held {
			logger.Info("advisory lock held by another worker, skipping run")
			report.Skipped = true
			return report, nil
		}
		defer func() {
			if _, err := locker.ReleaseAdvisoryLock(context.WithoutCancel(ctx), lockKey); err != nil {
				logger.Warn("release advisory lock failed", "error", err)
			}
		}()
	}

	var errs []error
	fail := func(target string, err error) {
		logger.Warn("warm-up target failed", "target", target, "error", err)
		report.Failures = append(report.Failures, alerting.TargetFailure{Target: target, Error: err.Error()})
		errs = append(errs, fmt.Errorf("%s: %w", target, err))
	}

	report.Total++
	if _, err := w.src.FlagActivations(ctx); err != nil {
		fail("flags", err)
	}

	for _, d := range w.distributors() {
		for _, p := range d.Profiles {
			if ctx.Err() != nil {
				break
			}
			target := targetName(d, p)
			report.Total++
			if _, err := w.src.ApplicableTariffs(ctx, d.Query(p)); err != nil {
				fail(target, err)
			}
		}
	}

	report.Duration = time.Since(started)
	runErr := errors.Join(errs...)
	if runErr == nil {
		runErr = ctx.Err()
	}
	w.record(ctx, started, report, runErr)
	return report, runErr
}

func (w *Warmer) record(ctx context.Context, started time.Time, report Report, runErr error) {
	logger := log.Ctx(ctx)
	metrics.UpdateJobMetrics(JobName, started, runErr)

	// bookkeeping must survive a cancelled run
	bctx := context.WithoutCancel(ctx)
	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
	}
	if w.st != nil {
		if err := w.st.UpdateScheduledJob(bctx, JobName, started, report.Duration, runErr == nil, errMsg); err != nil {
			logger.Warn("update scheduled job failed", "error", err)
		}
	}

	if len(report.Failures) == 0 {
		logger.Info("cache warm-up completed", "targets", report.Total, "duration", report.Duration)
		return
	}
	logger.Warn("cache warm-up completed with failures",
		"targets", report.Total, "failed", len(report.Failures), "duration", report.Duration)

	if w.notifier == nil {
		return
	}
	alert := alerting.WarmupAlert{
		JobName:      JobName,
		RunID:        report.RunID,
		TotalCount:   report.Total,
		SuccessCount: report.Total - len(report.Failures),
		FailedCount:  len(report.Failures),
		Duration:     report.Duration,
		Failures:     report.Failures,
		Timestamp:    time.Now(),
	}
	if err := w.notifier.SendWarmupAlert(bctx, alert); err != nil {
		logger.Warn("send warm-up alert failed", "error", err)
	}
}

func targetName(d rates.DistributorDescriptor, p rates.Profile) string {
	sub := p.SubClass
	if sub == "" {
		sub = "*"
	}
	return fmt.Sprintf("%s %s/%s/%s", d.Key, p.SubGroup, p.Modality, sub)
}
