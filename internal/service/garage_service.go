package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"autocare/internal/models"
	"autocare/internal/repository"
)

var (
	ErrPastDate       = errors.New("appointment must be scheduled in the future")
	ErrUnknownService = errors.New("unknown service")
	ErrUnknownVehicle = errors.New("unknown vehicle")
)

// ValidationError wraps input that failed validation.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return "invalid input: " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

type VehicleStore interface {
	ListByOwner(ctx context.Context, ownerID string) ([]models.Vehicle, error)
	Create(ctx context.Context, ownerID string, in models.VehicleInput) (models.Vehicle, error)
	OwnedBy(ctx context.Context, id int64, ownerID string) (bool, error)
}

type AppointmentStore interface {
	ListByUser(ctx context.Context, userID string) ([]models.Appointment, error)
	Create(ctx context.Context, userID string, in models.AppointmentInput) (models.Appointment, error)
}

type ExpenseStore interface {
	ListByUser(ctx context.Context, userID string) ([]models.Expense, error)
	Create(ctx context.Context, userID string, in models.ExpenseInput) (models.Expense, error)
}

type CatalogStore interface {
	List(ctx context.Context) ([]models.Service, error)
	GetByID(ctx context.Context, id int64) (models.Service, error)
	Upsert(ctx context.Context, services []models.Service) ([]models.Service, error)
}

// GarageService serves the caller-scoped vehicle, appointment and expense
// tables and the shared service catalog.
type GarageService struct {
	vehicles     VehicleStore
	appointments AppointmentStore
	expenses     ExpenseStore
	catalog      CatalogStore
	validate     *validator.Validate
	log          zerolog.Logger
	now          func() time.Time
}

func NewGarageService(vehicles VehicleStore, appointments AppointmentStore, expenses ExpenseStore, catalog CatalogStore, log zerolog.Logger) *GarageService {
	return &GarageService{
		vehicles:     vehicles,
		appointments: appointments,
		expenses:     expenses,
		catalog:      catalog,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		log:          log.With().Str("component", "garage_service").Logger(),
		now:          time.Now,
	}
}

func (s *GarageService) Vehicles(ctx context.Context, caller models.User) ([]models.Vehicle, error) {
	return s.vehicles.ListByOwner(ctx, caller.ID)
}

// AddVehicle stores a vehicle owned by the caller. Either spelling of
// make/brand and odometer/km fills the other.
func (s *GarageService) AddVehicle(ctx context.Context, caller models.User, in models.VehicleInput) (models.Vehicle, error) {
	in = in.Normalize()
	if in.Year != nil && (*in.Year < 1886 || *in.Year > s.now().Year()+1) {
		return models.Vehicle{}, &ValidationError{Err: fmt.Errorf("year %d out of range", *in.Year)}
	}
	if in.Odometer != nil && *in.Odometer < 0 {
		return models.Vehicle{}, &ValidationError{Err: errors.New("odometer must not be negative")}
	}
	return s.vehicles.Create(ctx, caller.ID, in)
}

func (s *GarageService) Appointments(ctx context.Context, caller models.User) ([]models.Appointment, error) {
	return s.appointments.ListByUser(ctx, caller.ID)
}

// Book inserts a pending appointment. The end of the slot defaults to the
// service's estimated duration.
func (s *GarageService) Book(ctx context.Context, caller models.User, in models.AppointmentInput) (models.Appointment, error) {
	if !in.ScheduledFrom.After(s.now()) {
		return models.Appointment{}, ErrPastDate
	}
	if in.ScheduledTo != nil && !in.ScheduledTo.After(in.ScheduledFrom) {
		return models.Appointment{}, &ValidationError{Err: errors.New("scheduled_to must be after scheduled_from")}
	}

	svc, err := s.catalog.GetByID(ctx, in.ServiceID)
	if err != nil {
		if errors.Is(err, repository.ErrServiceNotFound) {
			return models.Appointment{}, ErrUnknownService
		}
		return models.Appointment{}, err
	}

	if in.VehicleID != nil {
		owned, err := s.vehicles.OwnedBy(ctx, *in.VehicleID, caller.ID)
		if err != nil {
			return models.Appointment{}, err
		}
		if !owned {
			return models.Appointment{}, ErrUnknownVehicle
		}
	}

	if in.ScheduledTo == nil && svc.EstDurationMinutes > 0 {
		to := in.ScheduledFrom.Add(time.Duration(svc.EstDurationMinutes) * time.Minute)
		in.ScheduledTo = &to
	}

	a, err := s.appointments.Create(ctx, caller.ID, in)
	if err != nil {
		return models.Appointment{}, err
	}
	s.log.Info().Int64("appointment_id", a.ID).Str("user_id", caller.ID).Str("service", svc.Code).Msg("appointment booked")
	return a, nil
}

func (s *GarageService) Expenses(ctx context.Context, caller models.User) ([]models.Expense, error) {
	return s.expenses.ListByUser(ctx, caller.ID)
}

type expenseRules struct {
	Amount      float64 `validate:"gt=0"`
	Description string  `validate:"max=500"`
}

func (s *GarageService) AddExpense(ctx context.Context, caller models.User, in models.ExpenseInput) (models.Expense, error) {
	if err := s.validate.Struct(expenseRules{Amount: in.Amount, Description: in.Description}); err != nil {
		return models.Expense{}, &ValidationError{Err: err}
	}
	if in.VehicleID != nil {
		owned, err := s.vehicles.OwnedBy(ctx, *in.VehicleID, caller.ID)
		if err != nil {
			return models.Expense{}, err
		}
		if !owned {
			return models.Expense{}, ErrUnknownVehicle
		}
	}
	return s.expenses.Create(ctx, caller.ID, in)
}

func (s *GarageService) Services(ctx context.Context) ([]models.Service, error) {
	return s.catalog.List(ctx)
}

type catalogEntry struct {
	Code               string  `validate:"required,max=64"`
	Title              string  `validate:"required"`
	EstPrice           float64 `validate:"gte=0"`
	EstDurationMinutes int     `validate:"gte=0"`
}

// UpsertServices writes catalog entries keyed by code.
func (s *GarageService) UpsertServices(ctx context.Context, services []models.Service) ([]models.Service, error) {
	if len(services) == 0 {
		return nil, &ValidationError{Err: errors.New("no services given")}
	}
	for i := range services {
		services[i].Code = strings.ToUpper(strings.TrimSpace(services[i].Code))
		entry := catalogEntry{
			Code:               services[i].Code,
			Title:              strings.TrimSpace(services[i].Title),
			EstPrice:           services[i].EstPrice,
			EstDurationMinutes: services[i].EstDurationMinutes,
		}
		if err := s.validate.Struct(entry); err != nil {
			return nil, &ValidationError{Err: fmt.Errorf("service %d: %w", i, err)}
		}
	}
	return s.catalog.Upsert(ctx, services)
}
