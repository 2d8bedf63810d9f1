// Package sweeper closes attempts that outlived their time budget and
// removes stale unfinished records.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"quiz-engine/internal/attempt"
)

const (
	DefaultSchedule        = "@every 1m"
	DefaultRetentionWindow = 24 * time.Hour
	DefaultBatchSize       = 500
)

// Transitioner is the slice of attempt.Service the sweeper drives. Both calls
// re-check their condition under the attempt lock.
type Transitioner interface {
	ExpireAttempt(ctx context.Context, attemptID string) (bool, error)
	AbandonAttempt(ctx context.Context, attemptID string, idleSince time.Time) (bool, error)
}

// Finalizer grades an attempt the sweeper expired.
type Finalizer func(ctx context.Context, attemptID string) error

// Recorder receives the outcome of each pass.
type Recorder interface {
	ObserveSweep(report Report, elapsed time.Duration)
}

type Config struct {
	Schedule        string
	RetentionWindow time.Duration
	// AbandonAfter closes started attempts idle this long. Zero disables it.
	AbandonAfter time.Duration
	BatchSize    int
}

type Report struct {
	Scanned   int   `json:"scanned"`
	Expired   int   `json:"expired"`
	Abandoned int   `json:"abandoned"`
	Deleted   int64 `json:"deleted"`
	Graded    int   `json:"graded"`
	Failed    int   `json:"failed"`
}

func (r Report) Transitioned() int64 {
	return int64(r.Expired+r.Abandoned) + r.Deleted
}

type Sweeper struct {
	store       attempt.Store
	transitions Transitioner
	finalize    Finalizer
	recorder    Recorder
	cfg         Config
	now         func() time.Time
	logger      zerolog.Logger

	runMu sync.Mutex
	cron  *cron.Cron
}

type Option func(*Sweeper)

func WithFinalizer(finalize Finalizer) Option {
	return func(s *Sweeper) { s.finalize = finalize }
}

func WithRecorder(recorder Recorder) Option {
	return func(s *Sweeper) { s.recorder = recorder }
}

func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Sweeper) { s.logger = logger }
}

func New(store attempt.Store, transitions Transitioner, cfg Config, opts ...Option) *Sweeper {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.RetentionWindow <= 0 {
		cfg.RetentionWindow = DefaultRetentionWindow
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}

	s := &Sweeper{
		store:       store,
		transitions: transitions,
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      log.With().Str("component", "sweeper").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run performs one pass over every started and in_progress attempt, reading
// them BatchSize at a time. Failures on individual attempts are logged and
// counted; only a failed scan aborts the pass.
func (s *Sweeper) Run(ctx context.Context) (Report, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	started := time.Now()
	now := s.now()
	var report Report

	var after *attempt.Cursor
	for ctx.Err() == nil {
		page, err := s.store.ListByStatus(ctx, attempt.SweepStatuses, after, s.cfg.BatchSize)
		if err != nil {
			return report, fmt.Errorf("list sweep candidates: %w", err)
		}
		if page.Malformed > 0 {
			report.Failed += page.Malformed
			s.logger.Warn().Int("count", page.Malformed).Msg("skipped undecodable attempts")
		}
		s.sweepPage(ctx, now, page.Attempts, &report)

		if page.Next == nil || page.Next.Same(after) {
			break
		}
		after = page.Next
	}

	cutoff := now.Add(-s.cfg.RetentionWindow)
	deleted, err := s.store.DeleteStale(ctx, attempt.RetentionStatuses, cutoff)
	if err != nil {
		report.Failed++
		s.logger.Error().Err(err).Time("cutoff", cutoff).Msg("delete stale attempts failed")
	}
	report.Deleted = deleted

	elapsed := time.Since(started)
	if s.recorder != nil {
		s.recorder.ObserveSweep(report, elapsed)
	}

	logEvent := s.logger.Debug()
	if report.Transitioned() > 0 || report.Failed > 0 {
		logEvent = s.logger.Info()
	}
	logEvent.
		Int("scanned", report.Scanned).
		Int("expired", report.Expired).
		Int("abandoned", report.Abandoned).
		Int64("deleted", report.Deleted).
		Int("graded", report.Graded).
		Int("failed", report.Failed).
		Dur("elapsed", elapsed).
		Msg("sweep finished")
	return report, nil
}

func (s *Sweeper) sweepPage(ctx context.Context, now time.Time, candidates []*attempt.Attempt, report *Report) {
	idleSince := now.Add(-s.cfg.AbandonAfter)
	for _, a := range candidates {
		if ctx.Err() != nil {
			return
		}
		report.Scanned++

		switch {
		case a.Overdue(now):
			s.expire(ctx, a, report)
		case s.cfg.AbandonAfter > 0 && a.Status == attempt.StatusStarted && a.LastActiveAt.Before(idleSince):
			abandoned, err := s.transitions.AbandonAttempt(ctx, a.ID, idleSince)
			if err != nil {
				report.Failed++
				s.logger.Error().Err(err).Str("attempt_id", a.ID).Msg("abandon attempt failed")
				continue
			}
			if abandoned {
				report.Abandoned++
			}
		}
	}
}

func (s *Sweeper) expire(ctx context.Context, a *attempt.Attempt, report *Report) {
	expired, err := s.transitions.ExpireAttempt(ctx, a.ID)
	if err != nil {
		report.Failed++
		s.logger.Error().Err(err).Str("attempt_id", a.ID).Msg("expire attempt failed")
		return
	}
	if !expired {
		return
	}
	report.Expired++

	if s.finalize == nil {
		return
	}
	if err := s.finalize(ctx, a.ID); err != nil {
		report.Failed++
		s.logger.Error().Err(err).Str("attempt_id", a.ID).Msg("grade expired attempt failed")
		return
	}
	report.Graded++
}

// Start schedules Run on the configured cron schedule. Overlapping runs are skipped.
func (s *Sweeper) Start(ctx context.Context) error {
	if s.cron != nil {
		return errors.New("sweeper already started")
	}

	logger := cronLogger{logger: s.logger}
	c := cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))
	_, err := c.AddFunc(s.cfg.Schedule, func() {
		if _, err := s.Run(ctx); err != nil {
			s.logger.Error().Err(err).Msg("sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule sweeper %q: %w", s.cfg.Schedule, err)
	}

	s.cron = c
	c.Start()
	s.logger.Info().Str("schedule", s.cfg.Schedule).Dur("retention", s.cfg.RetentionWindow).Msg("sweeper started")
	return nil
}

// Stop halts scheduling and waits for a running pass to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
	s.logger.Info().Msg("sweeper stopped")
}

type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
