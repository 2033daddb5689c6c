package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"autocare/internal/config"
	"autocare/internal/diagnosis"
	"autocare/internal/ids"
	"autocare/internal/media/sniffer"
	"autocare/internal/metrics"
	"autocare/internal/models"
	"autocare/internal/queue"
	"autocare/internal/repository"
	"autocare/internal/security"
)

var (
	ErrEmptyInput    = errors.New("describe the problem or attach a photo or video")
	ErrMediaTooLarge = errors.New("media exceeds the size limit")
	ErrMIMEMismatch  = errors.New("content type mismatch")
)

type DiagnosticStore interface {
	Create(ctx context.Context, d models.Diagnostic) (models.Diagnostic, error)
	GetByID(ctx context.Context, id string) (models.Diagnostic, error)
}

type MediaStore interface {
	Put(ctx context.Context, key, contentType string, r io.Reader, size int64) (int64, error)
}

type TaskQueue interface {
	Enqueue(ctx context.Context, values map[string]any) (string, error)
}

// DiagnosticsService accepts diagnosis requests. Text requests are answered
// at once; media requests are stored and analysed by the worker.
type DiagnosticsService struct {
	diagnostics DiagnosticStore
	vehicles    VehicleStore
	media       MediaStore
	queue       TaskQueue
	cfg         *config.AppConfig
	log         zerolog.Logger
	now         func() time.Time
}

func NewDiagnosticsService(diagnostics DiagnosticStore, vehicles VehicleStore, media MediaStore, tasks TaskQueue, cfg *config.AppConfig, log zerolog.Logger) *DiagnosticsService {
	return &DiagnosticsService{
		diagnostics: diagnostics,
		vehicles:    vehicles,
		media:       media,
		queue:       tasks,
		cfg:         cfg,
		log:         log.With().Str("component", "diagnostics_service").Logger(),
		now:         time.Now,
	}
}

func (s *DiagnosticsService) Submit(ctx context.Context, caller models.User, req models.DiagnosticRequest) (models.Diagnostic, error) {
	if req.VehicleID != nil {
		owned, err := s.vehicles.OwnedBy(ctx, *req.VehicleID, caller.ID)
		if err != nil {
			return models.Diagnostic{}, err
		}
		if !owned {
			return models.Diagnostic{}, ErrUnknownVehicle
		}
	}

	if req.Input.MediaBase64 == "" {
		return s.submitText(ctx, caller, req)
	}
	return s.submitMedia(ctx, caller, req)
}

func (s *DiagnosticsService) submitText(ctx context.Context, caller models.User, req models.DiagnosticRequest) (models.Diagnostic, error) {
	if req.Input.Text == nil || strings.TrimSpace(*req.Input.Text) == "" {
		return models.Diagnostic{}, &ValidationError{Err: ErrEmptyInput}
	}
	text := strings.TrimSpace(*req.Input.Text)

	userID := caller.ID
	d, err := s.diagnostics.Create(ctx, models.Diagnostic{
		ID:        ids.New(),
		ChatID:    req.ChatID,
		UserID:    &userID,
		VehicleID: req.VehicleID,
		Input:     models.DiagnosticInput{Text: &text},
		Result:    diagnosis.Findings(),
		Status:    models.DiagnosticDone,
	})
	if err != nil {
		return models.Diagnostic{}, fmt.Errorf("save diagnostic: %w", err)
	}
	metrics.Diagnostic("text", d.Status)
	return d, nil
}

func (s *DiagnosticsService) submitMedia(ctx context.Context, caller models.User, req models.DiagnosticRequest) (models.Diagnostic, error) {
	data, err := decodeBase64(req.Input.MediaBase64)
	if err != nil {
		return models.Diagnostic{}, &ValidationError{Err: fmt.Errorf("decode media: %w", err)}
	}
	if len(data) == 0 {
		return models.Diagnostic{}, &ValidationError{Err: ErrEmptyInput}
	}
	if limit := s.cfg.Diagnostics.MaxMediaSize; limit > 0 && int64(len(data)) > limit {
		return models.Diagnostic{}, ErrMediaTooLarge
	}

	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	detected, err := sniffer.DetectHead(head)
	if err != nil {
		return models.Diagnostic{}, &ValidationError{Err: err}
	}

	kind := "image"
	if detected.Video() {
		kind = "video"
	}
	declared := sniffer.NormalizeMIME(req.Input.MIME)
	if declared != "" && declared != detected.MIME {
		return models.Diagnostic{}, fmt.Errorf("%w: declared %s, actual %s", ErrMIMEMismatch, declared, detected.MIME)
	}
	if req.Input.MediaType != "" && req.Input.MediaType != kind {
		return models.Diagnostic{}, fmt.Errorf("%w: declared %s, actual %s", ErrMIMEMismatch, req.Input.MediaType, kind)
	}

	id := ids.New()
	objectKey := s.buildObjectKey(caller.ID, id, string(detected.Type))
	if _, err := s.media.Put(ctx, objectKey, detected.MIME, bytes.NewReader(data), int64(len(data))); err != nil {
		return models.Diagnostic{}, fmt.Errorf("store media: %w", err)
	}

	name := req.Input.Name
	if name == "" {
		name = path.Base(objectKey)
	}

	userID := caller.ID
	d, err := s.diagnostics.Create(ctx, models.Diagnostic{
		ID:        id,
		ChatID:    req.ChatID,
		UserID:    &userID,
		VehicleID: req.VehicleID,
		Input: models.DiagnosticInput{
			MediaType: kind,
			MIME:      detected.MIME,
			Name:      name,
			ObjectKey: objectKey,
		},
		Status:    models.DiagnosticPending,
		Signature: security.SignResource(s.cfg.Security.SignatureSecret, id, objectKey),
	})
	if err != nil {
		return models.Diagnostic{}, fmt.Errorf("save diagnostic: %w", err)
	}

	if s.queue != nil {
		if _, err := s.queue.Enqueue(ctx, queue.DiagnoseTask(d.ID)); err != nil {
			// The pending sweep picks it up later.
			s.log.Warn().Err(err).Str("diagnostic_id", d.ID).Msg("enqueue diagnose failed")
		}
	}

	metrics.Diagnostic(kind, d.Status)
	s.log.Info().
		Str("diagnostic_id", d.ID).
		Str("user_id", caller.ID).
		Str("mime", detected.MIME).
		Int("size", len(data)).
		Msg("media diagnostic queued")
	return d, nil
}

// Get returns one of the caller's diagnostics.
func (s *DiagnosticsService) Get(ctx context.Context, caller models.User, id string) (models.Diagnostic, error) {
	d, err := s.diagnostics.GetByID(ctx, id)
	if err != nil {
		return models.Diagnostic{}, err
	}
	if d.UserID == nil || *d.UserID != caller.ID {
		return models.Diagnostic{}, repository.ErrDiagnosticNotFound
	}
	return d, nil
}

func (s *DiagnosticsService) buildObjectKey(userID, id, ext string) string {
	datePrefix := s.now().UTC().Format("2006/01/02")
	return path.Join(userID, datePrefix, fmt.Sprintf("%s.%s", id, ext))
}

// decodeBase64 accepts padded or unpadded input, optionally as a data URL.
func decodeBase64(raw string) ([]byte, error) {
	if strings.HasPrefix(raw, "data:") {
		if idx := strings.Index(raw, ","); idx >= 0 {
			raw = raw[idx+1:]
		}
	}
	raw = strings.TrimSpace(raw)
	if data, err := base64.StdEncoding.DecodeString(raw); err == nil {
		return data, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(raw, "="))
}
