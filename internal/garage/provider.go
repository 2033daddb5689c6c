// Package garage is the client-side data layer for a signed-in driver:
// their vehicles, workshop appointments, expenses and diagnosis chat.
package garage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"autocare/internal/client"
	"autocare/internal/models"
)

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrPastDate         = errors.New("appointment must be scheduled in the future")
	ErrUnknownService   = errors.New("unknown service")
)

type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

type SessionSource interface {
	GetSession(ctx context.Context) (*models.AuthSession, error)
}

type VehicleStore interface {
	List(ctx context.Context) ([]models.Vehicle, error)
	Insert(ctx context.Context, in models.VehicleInput) (*models.Vehicle, error)
}

type AppointmentStore interface {
	List(ctx context.Context) ([]models.Appointment, error)
	Insert(ctx context.Context, in models.AppointmentInput) (*models.Appointment, error)
}

type ExpenseStore interface {
	List(ctx context.Context) ([]models.Expense, error)
}

type Catalog interface {
	List(ctx context.Context) ([]models.Service, error)
}

type DiagnosticSubmitter interface {
	Submit(ctx context.Context, req models.DiagnosticRequest) (*models.Diagnostic, error)
}

// Backend groups the remote tables the provider reads and writes.
type Backend struct {
	Auth         SessionSource
	Vehicles     VehicleStore
	Appointments AppointmentStore
	Expenses     ExpenseStore
	Services     Catalog
	Diagnostics  DiagnosticSubmitter
}

func FromClient(c *client.Client) Backend {
	return Backend{
		Auth:         c.Auth,
		Vehicles:     c.Vehicles,
		Appointments: c.Appointments,
		Expenses:     c.Expenses,
		Services:     c.Services,
		Diagnostics:  c.Diagnostics,
	}
}

// Provider caches the driver's rows. Snapshots are copies.
type Provider struct {
	backend Backend
	log     zerolog.Logger
	now     func() time.Time

	mu           sync.RWMutex
	vehicles     []models.Vehicle
	appointments []models.Appointment
	expenses     []models.Expense
}

func New(backend Backend, log zerolog.Logger) *Provider {
	return &Provider{
		backend: backend,
		log:     log.With().Str("component", "garage").Logger(),
		now:     time.Now,
	}
}

// Load refreshes every table. A table that fails to load is left empty.
func (p *Provider) Load(ctx context.Context) {
	vehicles, err := p.backend.Vehicles.List(ctx)
	if err != nil {
		p.log.Error().Err(err).Str("table", "vehicles").Msg("load failed")
		vehicles = nil
	}
	appointments, err := p.backend.Appointments.List(ctx)
	if err != nil {
		p.log.Error().Err(err).Str("table", "appointments").Msg("load failed")
		appointments = nil
	}
	expenses, err := p.backend.Expenses.List(ctx)
	if err != nil {
		p.log.Error().Err(err).Str("table", "expenses").Msg("load failed")
		expenses = nil
	}

	p.mu.Lock()
	p.vehicles = vehicles
	p.appointments = appointments
	p.expenses = expenses
	p.mu.Unlock()
}

// AddVehicle registers a vehicle for the signed-in user and puts it first
// in the local list.
func (p *Provider) AddVehicle(ctx context.Context, in models.VehicleInput) (*models.Vehicle, error) {
	if err := p.requireSession(ctx); err != nil {
		return nil, err
	}

	v, err := p.backend.Vehicles.Insert(ctx, in.Normalize())
	if err != nil {
		p.log.Error().Err(err).Msg("add vehicle failed")
		return nil, fmt.Errorf("add vehicle: %w", err)
	}

	p.mu.Lock()
	p.vehicles = append([]models.Vehicle{*v}, p.vehicles...)
	p.mu.Unlock()
	return v, nil
}

var extPattern = regexp.MustCompile(`\.([a-zA-Z0-9]+)(?:\?.*)?$`)

// SendMessage submits a diagnosis request. With mediaPath set, the file is
// uploaded and the text is not sent.
func (p *Provider) SendMessage(ctx context.Context, chatID, message, mediaPath string, mediaType MediaType) (*models.Diagnostic, error) {
	req := models.DiagnosticRequest{ChatID: chatID}

	if mediaPath == "" {
		text := message
		req.Input = models.DiagnosticInput{Text: &text}
	} else {
		input, err := p.mediaInput(mediaPath, mediaType)
		if err != nil {
			return nil, err
		}
		req.Input = input
	}

	d, err := p.backend.Diagnostics.Submit(ctx, req)
	if err != nil {
		p.log.Error().Err(err).Str("chat_id", chatID).Msg("submit diagnostic failed")
		return nil, fmt.Errorf("submit diagnostic: %w", err)
	}
	return d, nil
}

func (p *Provider) mediaInput(path string, mediaType MediaType) (models.DiagnosticInput, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return models.DiagnosticInput{}, fmt.Errorf("read media: %w", err)
	}

	ext := mediaExtension(path, mediaType)
	mime := "image/" + ext
	if mediaType == MediaVideo {
		mime = "video/" + ext
	}

	return models.DiagnosticInput{
		MediaBase64: base64.StdEncoding.EncodeToString(raw),
		MediaType:   string(mediaType),
		MIME:        mime,
		Name:        "upload_" + strconv.FormatInt(p.now().UnixMilli(), 10) + "." + ext,
	}, nil
}

func mediaExtension(path string, mediaType MediaType) string {
	if m := extPattern.FindStringSubmatch(path); m != nil {
		return m[1]
	}
	if mediaType == MediaVideo {
		return "mp4"
	}
	return "jpg"
}

type BookingInput struct {
	VehicleID *int64
	// Service is a catalog id or code.
	Service       string
	ScheduledFrom time.Time
	Notes         string
}

// Book requests a workshop appointment. The slot ends after the service's
// estimated duration.
func (p *Provider) Book(ctx context.Context, in BookingInput) (*models.Appointment, error) {
	if !in.ScheduledFrom.After(p.now()) {
		return nil, ErrPastDate
	}
	if err := p.requireSession(ctx); err != nil {
		return nil, err
	}

	services, err := p.backend.Services.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	svc, ok := findService(services, in.Service)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownService, in.Service)
	}

	req := models.AppointmentInput{
		VehicleID:     in.VehicleID,
		ServiceID:     svc.ID,
		ScheduledFrom: in.ScheduledFrom.UTC(),
		Notes:         in.Notes,
	}
	if svc.EstDurationMinutes > 0 {
		to := req.ScheduledFrom.Add(time.Duration(svc.EstDurationMinutes) * time.Minute)
		req.ScheduledTo = &to
	}

	a, err := p.backend.Appointments.Insert(ctx, req)
	if err != nil {
		p.log.Error().Err(err).Msg("book appointment failed")
		return nil, fmt.Errorf("book appointment: %w", err)
	}

	p.mu.Lock()
	p.appointments = append([]models.Appointment{*a}, p.appointments...)
	p.mu.Unlock()
	return a, nil
}

func findService(services []models.Service, ref string) (models.Service, bool) {
	for _, s := range services {
		if strconv.FormatInt(s.ID, 10) == ref || s.Code == ref {
			return s, true
		}
	}
	return models.Service{}, false
}

func (p *Provider) requireSession(ctx context.Context) error {
	sess, err := p.backend.Auth.GetSession(ctx)
	if err != nil {
		p.log.Warn().Err(err).Msg("session lookup failed")
		return ErrNotAuthenticated
	}
	if sess == nil || sess.User.ID == "" {
		return ErrNotAuthenticated
	}
	return nil
}

func (p *Provider) Vehicles() []models.Vehicle {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]models.Vehicle(nil), p.vehicles...)
}

func (p *Provider) Appointments() []models.Appointment {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]models.Appointment(nil), p.appointments...)
}

func (p *Provider) Expenses() []models.Expense {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]models.Expense(nil), p.expenses...)
}
