// Package schedule runs the monthly import as durable queue jobs, one
// per reporting period. Jobs survive process restarts: each period's
// job is enqueued with a per-period unique ID, and completing a period
// transactionally enqueues the next one.
package schedule

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/qor5/go-bus/quex"
	"github.com/qor5/go-que"
	"github.com/qor5/go-que/pg"
	"github.com/qor5/x/v3/goquex"
	"github.com/qor5/x/v3/sqlx"
	"github.com/theplant/appkit/errornotifier"
	"github.com/theplant/appkit/logtracing"
)

// ImportFunc imports one reporting period end to end. The scheduler
// does not care how; the CLI wires it to an ingest runner with the
// right sources.
type ImportFunc func(ctx context.Context, periodDate time.Time) error

// Config contains configuration for the scheduler.
type Config struct {
	Import ImportFunc

	// QueueDB is the Postgres handle backing the durable job queue.
	QueueDB   *sql.DB
	QueueName string

	// ConsistencyDelay is how long after a period ends before its
	// extract is expected to be published and safe to import.
	ConsistencyDelay time.Duration

	RetryPolicy *que.RetryPolicy

	Notifier errornotifier.Notifier
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.Import == nil {
		return errors.New("Import is required")
	}
	if c.QueueDB == nil {
		return errors.New("QueueDB is required")
	}
	if c.QueueName == "" {
		return errors.New("QueueName is required")
	}
	if c.ConsistencyDelay < 0 {
		return errors.New("ConsistencyDelay must be greater than or equal to 0")
	}
	if c.RetryPolicy == nil {
		return errors.New("RetryPolicy is required")
	}
	return nil
}

type Scheduler struct {
	*Config
	queue que.Queue
}

// New creates a new Scheduler instance.
func New(conf *Config) (*Scheduler, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	queue, err := pg.NewWithOptions(pg.Options{DB: conf.QueueDB, DBMigrate: false})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create queue")
	}

	return &Scheduler{Config: conf, queue: queue}, nil
}

// importJobArgs is the durable payload of one period's job.
type importJobArgs struct {
	PeriodDate time.Time `json:"period_date"`
}

// Start enqueues the seed period and starts the worker loop.
func (s *Scheduler) Start(ctx context.Context, seedPeriod time.Time) (quex.WorkerController, error) {
	if err := s.enqueueSeedJob(ctx, seedPeriod); err != nil {
		return nil, err
	}

	worker, err := quex.StartWorker(ctx, que.WorkerOptions{
		Mutex:   s.queue.Mutex(),
		Queue:   s.QueueName,
		Perform: goquex.PerformWithTracing(s.Notifier)(s.process),
	})
	if err != nil {
		return nil, err
	}

	return worker, nil
}

func (s *Scheduler) enqueueSeedJob(ctx context.Context, seedPeriod time.Time) error {
	err := sqlx.Transaction(ctx, s.QueueDB, func(ctx context.Context, tx *sql.Tx) error {
		return s.enqueueJob(ctx, tx, seedPeriod)
	})
	if err != nil && !errors.Is(err, que.ErrViolateUniqueConstraint) {
		return errors.Wrap(err, "failed to enqueue seed job")
	}
	return nil
}

// enqueueJob enqueues one period's import. The per-period unique ID
// makes re-enqueueing the same period a no-op, so crashed workers and
// overlapping deploys cannot double-schedule a month.
func (s *Scheduler) enqueueJob(ctx context.Context, tx *sql.Tx, periodDate time.Time) error {
	uniqueID := fmt.Sprintf("regsync_import_%s", periodDate.Format("2006_01"))

	runAt := periodDate.Add(s.ConsistencyDelay)
	if now := time.Now(); runAt.Before(now) {
		runAt = now
	}

	plan := que.Plan{
		Queue:           s.QueueName,
		Args:            que.Args(&importJobArgs{PeriodDate: periodDate}),
		RunAt:           runAt,
		RetryPolicy:     *s.RetryPolicy,
		UniqueID:        &uniqueID,
		UniqueLifecycle: que.Lockable,
	}

	jobIDs, err := s.queue.Enqueue(ctx, tx, plan)
	if err != nil {
		return errors.Wrap(err, "failed to enqueue job")
	}
	if len(jobIDs) != 1 {
		return errors.New("unexpected number of job IDs returned")
	}
	return nil
}

// process imports one period and schedules the next.
func (s *Scheduler) process(ctx context.Context, job que.Job) error {
	var args importJobArgs
	if _, err := que.ParseArgs(job.Plan().Args, &args); err != nil {
		return errors.Wrap(err, "failed to parse import job args")
	}

	logtracing.AppendSpanKVs(ctx, "period_date", args.PeriodDate.Format("2006-01-02"))

	if err := s.Import(ctx, args.PeriodDate); err != nil {
		return s.handleFailure(ctx, job, &args, err)
	}
	return s.handleSuccess(ctx, job, &args)
}

func nextPeriod(periodDate time.Time) time.Time {
	return periodDate.AddDate(0, 1, 0)
}

// handleSuccess destroys the finished job and enqueues the next period
// in the same transaction, so the chain never breaks between the two.
func (s *Scheduler) handleSuccess(ctx context.Context, job que.Job, args *importJobArgs) error {
	return sqlx.Transaction(ctx, s.QueueDB, func(ctx context.Context, tx *sql.Tx) error {
		job.In(tx)
		defer job.In(nil)

		if err := job.Destroy(ctx); err != nil {
			return errors.Wrap(err, "failed to mark job as done")
		}

		if err := s.enqueueJob(ctx, tx, nextPeriod(args.PeriodDate)); err != nil {
			return errors.Wrap(err, "failed to enqueue next period")
		}

		logtracing.AppendSpanKVs(ctx, "job_completed", true)
		return nil
	})
}

// handleFailure lets the retry policy run its course; once retries are
// exhausted the period is skipped, the next one is scheduled, and the
// notifier is told. A skipped period stays in the importing state and
// can be finished by hand with a resume run.
func (s *Scheduler) handleFailure(ctx context.Context, job que.Job, args *importJobArgs, importErr error) error {
	_, hasMoreRetries := job.Plan().RetryPolicy.NextInterval(job.RetryCount())
	if hasMoreRetries {
		return importErr
	}

	return sqlx.Transaction(ctx, s.QueueDB, func(ctx context.Context, tx *sql.Tx) error {
		job.In(tx)
		defer job.In(nil)

		if err := job.Expire(ctx, importErr); err != nil {
			return errors.Wrap(err, "failed to expire job")
		}

		if err := s.enqueueJob(ctx, tx, nextPeriod(args.PeriodDate)); err != nil {
			return errors.Wrap(err, "failed to enqueue next period after failure")
		}

		logtracing.AppendSpanKVs(ctx,
			"job_skipped", true,
			"process_error", fmt.Sprintf("%+v", importErr),
		)

		if s.Notifier != nil {
			s.Notifier.Notify(errors.Wrapf(importErr, "import of period %s skipped after retries", args.PeriodDate.Format("2006-01-02")), nil, map[string]any{
				"period_date": args.PeriodDate.Format("2006-01-02"),
			})
		}

		return nil
	})
}
