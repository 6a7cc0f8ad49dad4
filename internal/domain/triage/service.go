package triage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/referralhub/referralhub/internal/domain/audit"
	"github.com/referralhub/referralhub/internal/domain/department"
	"github.com/referralhub/referralhub/internal/domain/referral"
	"github.com/referralhub/referralhub/internal/platform/ai"
	"github.com/referralhub/referralhub/internal/platform/taskqueue"
)

// Fallback values applied when every triage attempt fails. The referral still
// reaches triaged so it never blocks the assignment workflow.
const (
	fallbackUrgency    = referral.UrgencyRoutine
	fallbackDepartment = "general"
)

// TriagedNotifier fans a successfully triaged referral out to its department
// cohort. The notification dispatcher implements it.
type TriagedNotifier interface {
	NotifyStaffForReferral(ctx context.Context, r *referral.Referral) error
}

type ServiceConfig struct {
	// MaxRetries is how many retries follow the initial attempt.
	MaxRetries int
	// RetryDelay is the base backoff; retry n waits n*RetryDelay.
	RetryDelay time.Duration
	// NotifyOnFallback controls whether the cohort notification fires when
	// triage lands on fallback values. Off by default: fallback routing is a
	// guess and admins assign manually from the dashboard.
	NotifyOnFallback bool
}

// Service orchestrates AI triage: prompt assembly, the provider call, parsing,
// retries with linear backoff, and the fallback path. It implements
// referral.Triager.
type Service struct {
	referrals   referral.Repository
	logs        Repository
	departments department.Repository
	suggester   *department.Suggester
	provider    ai.Provider
	audit       *audit.Service
	tasks       taskqueue.Scheduler
	notifier    TriagedNotifier
	cfg         ServiceConfig
	logger      zerolog.Logger
}

var _ referral.Triager = (*Service)(nil)

func NewService(
	referrals referral.Repository,
	logs Repository,
	departments department.Repository,
	suggester *department.Suggester,
	provider ai.Provider,
	auditSvc *audit.Service,
	tasks taskqueue.Scheduler,
	cfg ServiceConfig,
	logger zerolog.Logger,
) *Service {
	return &Service{
		referrals:   referrals,
		logs:        logs,
		departments: departments,
		suggester:   suggester,
		provider:    provider,
		audit:       auditSvc,
		tasks:       tasks,
		cfg:         cfg,
		logger:      logger.With().Str("component", "triage").Logger(),
	}
}

// SetNotifier attaches the cohort notifier called after successful triage.
func (s *Service) SetNotifier(n TriagedNotifier) { s.notifier = n }

// Triage starts the triage sequence for a freshly submitted referral. The
// first attempt runs synchronously; retries are scheduled on the task queue.
func (s *Service) Triage(ctx context.Context, r *referral.Referral) error {
	if r.Status != referral.StatusSubmitted {
		return fmt.Errorf("referral %s is %s, only submitted referrals are triaged", r.ID, r.Status)
	}

	log := &Log{
		ReferralID: r.ID,
		Status:     StatusRetrying,
		InputData: map[string]interface{}{
			"diagnosis_codes": r.DiagnosisCodes,
			"clinical_notes":  r.ClinicalNotes,
			"urgency":         r.Urgency,
		},
	}
	if err := s.logs.Create(ctx, log); err != nil {
		return fmt.Errorf("create triage log: %w", err)
	}

	if err := s.attempt(ctx, r.ID, log.ID, 0); err != nil {
		return err
	}

	// Reflect the attempt's writes back onto the caller's copy.
	updated, err := s.referrals.GetByID(ctx, r.ID)
	if err != nil {
		return err
	}
	*r = *updated
	return nil
}

// ListLogs returns a referral's triage history.
func (s *Service) ListLogs(ctx context.Context, referralID uuid.UUID) ([]*Log, error) {
	return s.logs.ListByReferral(ctx, referralID)
}

func (s *Service) attempt(ctx context.Context, referralID, logID uuid.UUID, attempt int) error {
	r, err := s.referrals.GetByID(ctx, referralID)
	if err != nil {
		return fmt.Errorf("reload referral: %w", err)
	}
	// Cancelled or manually advanced while a retry was queued. Close out the
	// log so it does not sit in retrying forever.
	if r.Status != referral.StatusSubmitted {
		s.logger.Info().
			Str("referral_id", referralID.String()).
			Str("status", r.Status).
			Msg("referral left submitted state, skipping triage attempt")
		log, err := s.logs.GetByID(ctx, logID)
		if err != nil {
			return err
		}
		msg := fmt.Sprintf("referral is %s, triage abandoned", r.Status)
		log.Status = StatusFailed
		log.ErrorMessage = &msg
		return s.logs.Update(ctx, log)
	}

	log, err := s.logs.GetByID(ctx, logID)
	if err != nil {
		return err
	}

	res, runErr := s.runModel(ctx, r)
	if runErr == nil {
		return s.applyResult(ctx, r, log, res)
	}

	s.logger.Warn().Err(runErr).
		Str("referral_id", referralID.String()).
		Int("attempt", attempt).
		Msg("triage attempt failed")

	msg := runErr.Error()
	log.ErrorMessage = &msg
	log.RetryCount = attempt + 1

	if attempt >= s.cfg.MaxRetries {
		log.Status = StatusFailed
		if err := s.logs.Update(ctx, log); err != nil {
			return err
		}
		return s.applyFallback(ctx, r)
	}

	if err := s.logs.Update(ctx, log); err != nil {
		return err
	}
	delay := time.Duration(attempt+1) * s.cfg.RetryDelay
	s.tasks.EnqueueAfter("triage-retry", delay, func(jobCtx context.Context) error {
		return s.attempt(jobCtx, referralID, logID, attempt+1)
	})
	return nil
}

func (s *Service) runModel(ctx context.Context, r *referral.Referral) (*Result, error) {
	suggestions, err := s.suggester.SuggestForCodes(ctx, r.DiagnosisCodes)
	if err != nil {
		return nil, fmt.Errorf("suggest departments: %w", err)
	}
	active, err := s.departments.ListActiveNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}

	prompt := BuildTriagePrompt(r, suggestions, active)
	raw, err := s.provider.Complete(ctx, triageInstructions, prompt)
	if err != nil {
		return nil, fmt.Errorf("completion: %w", err)
	}

	res, err := ParseTriageResponse(raw)
	if err != nil {
		return nil, err
	}

	// The model must pick from the live vocabulary. An off-list answer is
	// replaced by the top rule-based suggestion when one exists.
	if !contains(active, res.Department) {
		if len(suggestions) > 0 {
			res.Department = suggestions[0].Department.Name
		} else {
			return nil, fmt.Errorf("model chose unknown department %q", res.Department)
		}
	}
	return res, nil
}

func (s *Service) applyResult(ctx context.Context, r *referral.Referral, log *Log, res *Result) error {
	oldUrgency := r.Urgency
	oldDepartment := r.Department

	r.Urgency = res.Urgency
	r.Department = res.Department
	if dept, err := s.departments.GetByName(ctx, res.Department); err == nil {
		r.DepartmentID = &dept.ID
	}
	r.AIConfidenceScore = &res.Confidence
	now := time.Now()
	r.ProcessedAt = &now
	oldStatus := r.Status
	r.Status = referral.StatusTriaged

	if err := s.referrals.Update(ctx, r); err != nil {
		return fmt.Errorf("persist triage result: %w", err)
	}

	log.Status = StatusSuccess
	log.OutputData = map[string]interface{}{
		"urgency":    res.Urgency,
		"department": res.Department,
		"confidence": res.Confidence,
		"reasoning":  res.Reasoning,
	}
	if err := s.logs.Update(ctx, log); err != nil {
		return err
	}

	if err := s.auditChanges(ctx, r.ID, oldUrgency, oldDepartment, oldStatus, r, nil, nil); err != nil {
		return err
	}

	s.logger.Info().
		Str("referral_id", r.ID.String()).
		Str("urgency", r.Urgency).
		Str("department", r.Department).
		Float64("confidence", res.Confidence).
		Msg("triage complete")

	if s.notifier != nil {
		if err := s.notifier.NotifyStaffForReferral(ctx, r); err != nil {
			s.logger.Error().Err(err).Str("referral_id", r.ID.String()).Msg("cohort notification failed")
		}
	}
	return nil
}

func (s *Service) applyFallback(ctx context.Context, r *referral.Referral) error {
	oldUrgency := r.Urgency
	oldDepartment := r.Department
	oldStatus := r.Status

	r.Urgency = fallbackUrgency
	r.Department = fallbackDepartment
	if dept, err := s.departments.GetByName(ctx, fallbackDepartment); err == nil {
		r.DepartmentID = &dept.ID
	}
	now := time.Now()
	r.ProcessedAt = &now
	r.Status = referral.StatusTriaged

	if err := s.referrals.Update(ctx, r); err != nil {
		return fmt.Errorf("persist fallback: %w", err)
	}

	meta := map[string]string{"reason": "AI triage failed, using fallback values"}
	if err := s.auditChanges(ctx, r.ID, oldUrgency, oldDepartment, oldStatus, r, meta, meta); err != nil {
		return err
	}

	s.logger.Error().
		Str("referral_id", r.ID.String()).
		Msg("triage exhausted retries, fallback applied")

	if s.cfg.NotifyOnFallback && s.notifier != nil {
		if err := s.notifier.NotifyStaffForReferral(ctx, r); err != nil {
			s.logger.Error().Err(err).Str("referral_id", r.ID.String()).Msg("cohort notification failed")
		}
	}
	return nil
}

// auditChanges writes change-only entries: a field that kept its value gets no
// entry. The status entry is always written because triage always moves
// submitted to triaged.
func (s *Service) auditChanges(ctx context.Context, referralID uuid.UUID, oldUrgency, oldDepartment, oldStatus string, r *referral.Referral, fieldMeta, statusMeta map[string]string) error {
	if oldUrgency != r.Urgency {
		field := "urgency"
		if err := s.audit.LogChange(ctx, referralID, nil, audit.ActionUrgencyChanged, &field, oldUrgency, r.Urgency, fieldMeta); err != nil {
			return err
		}
	}
	if oldDepartment != r.Department {
		field := "department"
		if err := s.audit.LogChange(ctx, referralID, nil, audit.ActionDepartmentChanged, &field, oldDepartment, r.Department, fieldMeta); err != nil {
			return err
		}
	}
	if oldStatus != r.Status {
		field := "status"
		if err := s.audit.LogChange(ctx, referralID, nil, audit.ActionStatusChanged, &field, oldStatus, r.Status, statusMeta); err != nil {
			return err
		}
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
