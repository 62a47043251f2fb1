package reaper

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/abmercy035/chesschamp-api/internal/obslog"
)

// Job is one periodic maintenance task. Jobs never overlap themselves.
type Job struct {
	Name  string
	Every time.Duration
	// Immediate runs the job once on start, before the first interval.
	Immediate bool
	Run       func(ctx context.Context) error
}

type Scheduler struct {
	s      gocron.Scheduler
	ctx    context.Context
	cancel context.CancelFunc
}

type zapLogger struct{ l *zap.SugaredLogger }

func (z zapLogger) Debug(msg string, args ...any) { z.l.Debugw(msg, args...) }
func (z zapLogger) Info(msg string, args ...any)  { z.l.Infow(msg, args...) }
func (z zapLogger) Warn(msg string, args ...any)  { z.l.Warnw(msg, args...) }
func (z zapLogger) Error(msg string, args ...any) { z.l.Errorw(msg, args...) }

// NewScheduler registers jobs on a gocron scheduler driven by clock. Nothing
// runs until Start.
func NewScheduler(clock clockwork.Clock, jobs ...Job) (*Scheduler, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s, err := gocron.NewScheduler(
		gocron.WithClock(clock),
		gocron.WithLocation(time.UTC),
		gocron.WithLogger(zapLogger{l: obslog.L().Sugar()}),
		gocron.WithGlobalJobOptions(gocron.WithSingletonMode(gocron.LimitModeReschedule)),
	)
	if err != nil {
		return nil, fmt.Errorf("new scheduler: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	sch := &Scheduler{s: s, ctx: ctx, cancel: cancel}
	for _, j := range jobs {
		if err := sch.add(j); err != nil {
			cancel()
			_ = s.Shutdown()
			return nil, err
		}
	}
	return sch, nil
}

func (s *Scheduler) add(j Job) error {
	if j.Every <= 0 || j.Run == nil {
		return fmt.Errorf("job %q: interval and run func are required", j.Name)
	}
	opts := []gocron.JobOption{
		gocron.WithName(j.Name),
		gocron.WithEventListeners(
			gocron.AfterJobRunsWithError(func(_ uuid.UUID, name string, err error) {
				obslog.L().Error("job_failed", zap.String("job", name), zap.Error(err))
			}),
		),
	}
	if j.Immediate {
		opts = append(opts, gocron.WithStartAt(gocron.WithStartImmediately()))
	}
	run := j.Run
	_, err := s.s.NewJob(
		gocron.DurationJob(j.Every),
		gocron.NewTask(func() error { return run(s.ctx) }),
		opts...,
	)
	if err != nil {
		return fmt.Errorf("job %q: %w", j.Name, err)
	}
	obslog.L().Info("job_registered", zap.String("job", j.Name), zap.Duration("every", j.Every), zap.Bool("immediate", j.Immediate))
	return nil
}

func (s *Scheduler) Start() { s.s.Start() }

// Shutdown cancels in-flight jobs and waits for them to return.
func (s *Scheduler) Shutdown() error {
	s.cancel()
	return s.s.Shutdown()
}

// SweepJob runs the reaper every interval and once at startup.
func SweepJob(r *Reaper, every time.Duration) Job {
	return Job{
		Name:      "reaper_sweep",
		Every:     every,
		Immediate: true,
		Run: func(ctx context.Context) error {
			_, err := r.Sweep(ctx)
			return err
		},
	}
}

// CountingJob adapts a sweep returning a count, such as the forfeit and
// reminder sweeps, into a Job.
func CountingJob(name string, every time.Duration, sweep func(ctx context.Context) (int, error)) Job {
	return Job{
		Name:  name,
		Every: every,
		Run: func(ctx context.Context) error {
			n, err := sweep(ctx)
			if n > 0 {
				obslog.L().Info(name, zap.Int("count", n))
			}
			return err
		},
	}
}
