package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"autocare/internal/diagnosis"
	"autocare/internal/metrics"
	"autocare/internal/models"
	"autocare/internal/queue"
	"autocare/internal/repository"
	"autocare/internal/security"
)

type DiagnosticStore interface {
	GetByID(ctx context.Context, id string) (models.Diagnostic, error)
	Complete(ctx context.Context, id string, findings []models.Finding) error
	MarkFailed(ctx context.Context, id string) error
}

type SessionPurger interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

type ObjectChecker interface {
	Exists(ctx context.Context, key string) (bool, error)
}

type Processor struct {
	diagnostics DiagnosticStore
	sessions    SessionPurger
	objects     ObjectChecker
	secret      string
	logger      zerolog.Logger
}

type TaskPayload struct {
	Type         string `json:"type"`
	DiagnosticID string `json:"diagnosticId"`
}

// NewProcessor builds the task handler. secret verifies that a diagnostic's
// object key was issued by the api.
func NewProcessor(diagnostics DiagnosticStore, sessions SessionPurger, objects ObjectChecker, secret string, logger zerolog.Logger) *Processor {
	return &Processor{
		diagnostics: diagnostics,
		sessions:    sessions,
		objects:     objects,
		secret:      secret,
		logger:      logger,
	}
}

func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) error {
	var payload TaskPayload
	if err := decodePayload(msg.Values, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	switch payload.Type {
	case queue.TaskDiagnose:
		return p.handleDiagnose(ctx, payload)
	case queue.TaskCleanup:
		return p.handleCleanup(ctx)
	default:
		p.logger.Warn().Str("type", payload.Type).Str("message_id", msg.ID).Msg("unknown task type")
		return nil
	}
}

func decodePayload(values map[string]interface{}, out *TaskPayload) error {
	bytes, err := json.Marshal(values)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, out)
}

func (p *Processor) handleDiagnose(ctx context.Context, payload TaskPayload) error {
	if payload.DiagnosticID == "" {
		p.logger.Warn().Msg("diagnose task without diagnostic id")
		return nil
	}
	log := p.logger.With().Str("diagnostic_id", payload.DiagnosticID).Logger()

	d, err := p.diagnostics.GetByID(ctx, payload.DiagnosticID)
	if errors.Is(err, repository.ErrDiagnosticNotFound) {
		log.Warn().Msg("diagnostic vanished before processing")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load diagnostic: %w", err)
	}
	if d.Status != models.DiagnosticPending {
		log.Debug().Str("status", string(d.Status)).Msg("diagnostic already settled")
		return nil
	}

	if key := d.Input.ObjectKey; key != "" {
		if !security.VerifyResource(p.secret, d.Signature, d.ID, key) {
			log.Warn().Str("object_key", key).Msg("media signature mismatch, marking failed")
			return p.fail(ctx, d)
		}
		ok, err := p.objects.Exists(ctx, key)
		if err != nil {
			return fmt.Errorf("stat media: %w", err)
		}
		if !ok {
			log.Warn().Str("object_key", key).Msg("media missing, marking failed")
			return p.fail(ctx, d)
		}
	}

	err = p.diagnostics.Complete(ctx, d.ID, diagnosis.Findings())
	if errors.Is(err, repository.ErrDiagnosticNotFound) {
		// settled by a concurrent delivery
		return nil
	}
	if err != nil {
		return fmt.Errorf("complete diagnostic: %w", err)
	}
	metrics.Diagnostic(mediaKind(d.Input), models.DiagnosticDone)
	log.Info().Msg("diagnostic completed")
	return nil
}

func (p *Processor) fail(ctx context.Context, d models.Diagnostic) error {
	if err := p.diagnostics.MarkFailed(ctx, d.ID); err != nil && !errors.Is(err, repository.ErrDiagnosticNotFound) {
		return fmt.Errorf("mark failed: %w", err)
	}
	metrics.Diagnostic(mediaKind(d.Input), models.DiagnosticFailed)
	return nil
}

func (p *Processor) handleCleanup(ctx context.Context) error {
	n, err := p.sessions.DeleteExpired(ctx)
	if err != nil {
		return fmt.Errorf("delete expired sessions: %w", err)
	}
	p.logger.Info().Int64("sessions", n).Msg("expired sessions purged")
	return nil
}

func mediaKind(in models.DiagnosticInput) string {
	if in.MediaType == "" {
		return "media"
	}
	return in.MediaType
}
