package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"

	"autocare/internal/models"
)

var ErrInvalidReference = errors.New("referenced row does not exist")

type AppointmentRepository struct {
	pool *pgxpool.Pool
}

func NewAppointmentRepository(pool *pgxpool.Pool) *AppointmentRepository {
	return &AppointmentRepository{pool: pool}
}

const appointmentSelect = `
	SELECT a.id, a.user_id, a.vehicle_id, a.service_id, s.title, a.workshop,
	       a.scheduled_from, a.scheduled_to, a.notes, a.status, a.created_at
	FROM appointments a
	JOIN services s ON s.id = a.service_id
`

func (r *AppointmentRepository) ListByUser(ctx context.Context, userID string) ([]models.Appointment, error) {
	rows, err := r.pool.Query(ctx, appointmentSelect+` WHERE a.user_id = $1 ORDER BY a.scheduled_from DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Create books an appointment and returns it with the service title filled in.
func (r *AppointmentRepository) Create(ctx context.Context, userID string, in models.AppointmentInput) (models.Appointment, error) {
	const query = `
		WITH inserted AS (
			INSERT INTO appointments (user_id, vehicle_id, service_id, workshop, scheduled_from, scheduled_to, notes, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING *
		)
		SELECT a.id, a.user_id, a.vehicle_id, a.service_id, s.title, a.workshop,
		       a.scheduled_from, a.scheduled_to, a.notes, a.status, a.created_at
		FROM inserted a
		JOIN services s ON s.id = a.service_id
	`

	row := r.pool.QueryRow(ctx, query,
		userID,
		in.VehicleID,
		in.ServiceID,
		in.Workshop,
		in.ScheduledFrom,
		in.ScheduledTo,
		in.Notes,
		models.AppointmentPending,
	)
	a, err := scanAppointment(row)
	if err != nil {
		if isForeignKeyViolation(err) {
			return models.Appointment{}, ErrInvalidReference
		}
		return models.Appointment{}, err
	}
	return a, nil
}

func scanAppointment(row scanner) (models.Appointment, error) {
	var a models.Appointment
	err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.VehicleID,
		&a.ServiceID,
		&a.Service,
		&a.Workshop,
		&a.ScheduledFrom,
		&a.ScheduledTo,
		&a.Notes,
		&a.Status,
		&a.CreatedAt,
	)
	return a, err
}
