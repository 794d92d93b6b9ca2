// Package housekeeping runs periodic maintenance against the token tables.
package housekeeping

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule runs the purge once an hour.
const DefaultSchedule = "@hourly"

// InviteGrace keeps expired invite tokens around long enough for the
// registration page to report them as expired instead of unknown.
const InviteGrace = 24 * time.Hour

// RefreshTokenPurger deletes refresh tokens that are revoked or expired at reference.
type RefreshTokenPurger interface {
	DeleteExpiredRefreshTokens(ctx context.Context, reference time.Time) (int64, error)
}

// InviteTokenPurger deletes invite tokens that expired before the given time.
type InviteTokenPurger interface {
	DeleteExpiredInviteTokens(ctx context.Context, before time.Time) (int64, error)
}

// PurgeResult reports how many rows a purge removed.
type PurgeResult struct {
	RefreshTokens int64
	InviteTokens  int64
}

// Purger removes dead credentials.
type Purger struct {
	refresh RefreshTokenPurger
	invites InviteTokenPurger
	now     func() time.Time
	logger  *slog.Logger
}

// NewPurger constructs a Purger. A nil now uses the wall clock.
func NewPurger(refresh RefreshTokenPurger, invites InviteTokenPurger, now func() time.Time, logger *slog.Logger) *Purger {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Purger{refresh: refresh, invites: invites, now: now, logger: logger.With("component", "housekeeping")}
}

// PurgeExpiredTokens deletes revoked or expired refresh tokens and invite
// tokens that expired more than InviteGrace ago. Both deletions are attempted
// even when the first fails.
func (p *Purger) PurgeExpiredTokens(ctx context.Context) (PurgeResult, error) {
	var (
		result PurgeResult
		errs   []error
	)
	now := p.now().UTC()

	if p.refresh != nil {
		n, err := p.refresh.DeleteExpiredRefreshTokens(ctx, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("purge refresh tokens: %w", err))
		}
		result.RefreshTokens = n
	}
	if p.invites != nil {
		n, err := p.invites.DeleteExpiredInviteTokens(ctx, now.Add(-InviteGrace))
		if err != nil {
			errs = append(errs, fmt.Errorf("purge invite tokens: %w", err))
		}
		result.InviteTokens = n
	}

	err := errors.Join(errs...)
	if err != nil {
		p.logger.ErrorContext(ctx, "token purge failed", "error", err)
	} else {
		p.logger.InfoContext(ctx, "expired tokens purged",
			"refresh_tokens", result.RefreshTokens,
			"invite_tokens", result.InviteTokens)
	}
	return result, err
}

// Scheduler drives a Purger from a cron expression.
type Scheduler struct {
	cron   *cron.Cron
	purger *Purger
}

// NewScheduler registers the purge under spec. An empty spec uses DefaultSchedule.
func NewScheduler(purger *Purger, spec string) (*Scheduler, error) {
	if purger == nil {
		return nil, errors.New("housekeeping: purger is required")
	}
	if spec == "" {
		spec = DefaultSchedule
	}
	c := cron.New(
		cron.WithLogger(cronLogger{logger: purger.logger}),
		cron.WithChain(cron.Recover(cronLogger{logger: purger.logger}), cron.SkipIfStillRunning(cronLogger{logger: purger.logger})),
	)
	if _, err := c.AddFunc(spec, func() {
		_, _ = purger.PurgeExpiredTokens(context.Background())
	}); err != nil {
		return nil, fmt.Errorf("housekeeping: invalid schedule %q: %w", spec, err)
	}
	return &Scheduler{cron: c, purger: purger}, nil
}

// Schedule registers an additional job under spec.
func (s *Scheduler) Schedule(spec string, job func()) error {
	if _, err := s.cron.AddFunc(spec, job); err != nil {
		return fmt.Errorf("housekeeping: invalid schedule %q: %w", spec, err)
	}
	return nil
}

// Start runs the schedule in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for a running purge to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
}
