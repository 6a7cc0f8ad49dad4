// Package escalation watches for emergency referrals that nobody has
// acknowledged in time and flags them for admins. Escalation is an audit
// annotation plus notifications; the referral's own status never changes.
package escalation

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/referralhub/referralhub/internal/domain/audit"
	"github.com/referralhub/referralhub/internal/domain/referral"
)

// Notifier alerts admins about an escalated referral. The notification
// dispatcher implements it.
type Notifier interface {
	NotifyAdminsForEscalation(ctx context.Context, r *referral.Referral) error
}

// Sweeper periodically scans for overdue emergency referrals. The escalated
// audit entry doubles as the at-most-once guard: a referral with one is never
// escalated again.
type Sweeper struct {
	referrals referral.Repository
	audit     *audit.Service
	notifier  Notifier
	threshold time.Duration
	logger    zerolog.Logger

	// now is injectable for tests.
	now func() time.Time
}

func NewSweeper(referrals referral.Repository, auditSvc *audit.Service, notifier Notifier, threshold time.Duration, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		referrals: referrals,
		audit:     auditSvc,
		notifier:  notifier,
		threshold: threshold,
		logger:    logger.With().Str("component", "escalation").Logger(),
		now:       time.Now,
	}
}

// Start runs the sweep loop until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) {
	s.logger.Info().
		Dur("interval", interval).
		Dur("threshold", s.threshold).
		Msg("escalation sweeper started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("escalation sweeper stopped")
			return
		case <-ticker.C:
			if err := s.Run(ctx); err != nil {
				s.logger.Error().Err(err).Msg("sweep failed")
			}
		}
	}
}

// Run performs one sweep. Overdue means: emergency urgency, never
// acknowledged, non-terminal, and the reference timestamp (processed_at when
// triage finished, otherwise created_at) older than the threshold.
func (s *Sweeper) Run(ctx context.Context) error {
	cutoff := s.now().Add(-s.threshold)
	overdue, err := s.referrals.ListEmergencyUnacknowledged(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("list overdue referrals: %w", err)
	}

	for _, r := range overdue {
		if err := s.escalate(ctx, r); err != nil {
			s.logger.Error().Err(err).Str("referral_id", r.ID.String()).Msg("escalation failed")
		}
	}
	return nil
}

func (s *Sweeper) escalate(ctx context.Context, r *referral.Referral) error {
	// Re-verify between listing and acting: a concurrent sweep, an
	// acknowledgment, or a cancellation may have landed in the gap.
	already, err := s.audit.HasAction(ctx, r.ID, audit.ActionEscalated)
	if err != nil {
		return fmt.Errorf("check escalation guard: %w", err)
	}
	if already {
		return nil
	}

	current, err := s.referrals.GetByID(ctx, r.ID)
	if err != nil {
		return fmt.Errorf("reload referral: %w", err)
	}
	if !current.IsEmergency() || current.AcknowledgedAt != nil || current.IsTerminal() {
		return nil
	}

	field := "status"
	meta := map[string]string{
		"reason":       fmt.Sprintf("Not acknowledged within %d minutes", int(s.threshold.Minutes())),
		"escalated_at": s.now().UTC().Format(time.RFC3339),
	}
	if err := s.audit.LogChange(ctx, current.ID, nil, audit.ActionEscalated, &field, current.Status, "escalated", meta); err != nil {
		return fmt.Errorf("write escalation entry: %w", err)
	}

	s.logger.Warn().
		Str("referral_id", current.ID.String()).
		Str("status", current.Status).
		Msg("emergency referral escalated")

	if s.notifier != nil {
		if err := s.notifier.NotifyAdminsForEscalation(ctx, current); err != nil {
			return fmt.Errorf("notify admins: %w", err)
		}
	}
	return nil
}
