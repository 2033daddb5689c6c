package client

import (
	"context"
	"net/url"

	"autocare/internal/models"
	"autocare/internal/session"
)

var _ session.Profiles = (*ProfilesService)(nil)

// ProfilesService reads and writes rows of the profiles table.
type ProfilesService struct {
	client *Client
}

func (s *ProfilesService) Get(ctx context.Context, id string) (models.Profile, error) {
	var p models.Profile
	err := s.client.get(ctx, "/rest/v1/profiles/"+url.PathEscape(id), &p)
	return p, err
}

func (s *ProfilesService) Insert(ctx context.Context, profile models.Profile) (models.Profile, error) {
	var p models.Profile
	err := s.client.post(ctx, "/rest/v1/profiles", profile, &p)
	return p, err
}

// Update applies a partial update and returns the row as stored.
func (s *ProfilesService) Update(ctx context.Context, id string, update models.ProfileUpdate) (models.Profile, error) {
	var p models.Profile
	err := s.client.patch(ctx, "/rest/v1/profiles/"+url.PathEscape(id), update, &p)
	return p, err
}

type VehiclesService struct {
	client *Client
}

func (s *VehiclesService) List(ctx context.Context) ([]models.Vehicle, error) {
	var out []models.Vehicle
	if err := s.client.get(ctx, "/rest/v1/vehicles", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *VehiclesService) Insert(ctx context.Context, in models.VehicleInput) (*models.Vehicle, error) {
	var v models.Vehicle
	if err := s.client.post(ctx, "/rest/v1/vehicles", in, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

type AppointmentsService struct {
	client *Client
}

func (s *AppointmentsService) List(ctx context.Context) ([]models.Appointment, error) {
	var out []models.Appointment
	if err := s.client.get(ctx, "/rest/v1/appointments", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *AppointmentsService) Insert(ctx context.Context, in models.AppointmentInput) (*models.Appointment, error) {
	var a models.Appointment
	if err := s.client.post(ctx, "/rest/v1/appointments", in, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

type ExpensesService struct {
	client *Client
}

func (s *ExpensesService) List(ctx context.Context) ([]models.Expense, error) {
	var out []models.Expense
	if err := s.client.get(ctx, "/rest/v1/expenses", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *ExpensesService) Insert(ctx context.Context, in models.ExpenseInput) (*models.Expense, error) {
	var e models.Expense
	if err := s.client.post(ctx, "/rest/v1/expenses", in, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// CatalogService reads the workshop service catalog.
type CatalogService struct {
	client *Client
}

func (s *CatalogService) List(ctx context.Context) ([]models.Service, error) {
	var out []models.Service
	if err := s.client.get(ctx, "/rest/v1/services", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Upsert inserts or updates catalog entries by code. Admin only.
func (s *CatalogService) Upsert(ctx context.Context, services []models.Service) ([]models.Service, error) {
	var out []models.Service
	if err := s.client.put(ctx, "/rest/v1/services", services, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type DiagnosticsService struct {
	client *Client
}

func (s *DiagnosticsService) Submit(ctx context.Context, req models.DiagnosticRequest) (*models.Diagnostic, error) {
	var d models.Diagnostic
	if err := s.client.post(ctx, "/rest/v1/diagnostics", req, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *DiagnosticsService) Get(ctx context.Context, id string) (*models.Diagnostic, error) {
	var d models.Diagnostic
	if err := s.client.get(ctx, "/rest/v1/diagnostics/"+url.PathEscape(id), &d); err != nil {
		return nil, err
	}
	return &d, nil
}
