package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"autocare/internal/models"
)

var ErrServiceNotFound = errors.New("service not found")

// ServiceRepository stores the workshop service catalog.
type ServiceRepository struct {
	pool *pgxpool.Pool
}

func NewServiceRepository(pool *pgxpool.Pool) *ServiceRepository {
	return &ServiceRepository{pool: pool}
}

const serviceColumns = `id, code, title, est_price::float8, est_duration_minutes, description, updated_at`

func (r *ServiceRepository) List(ctx context.Context) ([]models.Service, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+serviceColumns+` FROM services ORDER BY title`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Service{}
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *ServiceRepository) GetByID(ctx context.Context, id int64) (models.Service, error) {
	s, err := scanService(r.pool.QueryRow(ctx, `SELECT `+serviceColumns+` FROM services WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Service{}, ErrServiceNotFound
	}
	return s, err
}

// Upsert writes every entry in one transaction, matching rows on code.
func (r *ServiceRepository) Upsert(ctx context.Context, services []models.Service) ([]models.Service, error) {
	const query = `
		INSERT INTO services (code, title, est_price, est_duration_minutes, description, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (code) DO UPDATE SET
			title = EXCLUDED.title,
			est_price = EXCLUDED.est_price,
			est_duration_minutes = EXCLUDED.est_duration_minutes,
			description = EXCLUDED.description,
			updated_at = NOW()
		RETURNING ` + serviceColumns

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	out := make([]models.Service, 0, len(services))
	for _, s := range services {
		stored, err := scanService(tx.QueryRow(ctx, query, s.Code, s.Title, s.EstPrice, s.EstDurationMinutes, s.Description))
		if err != nil {
			return nil, err
		}
		out = append(out, stored)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func scanService(row scanner) (models.Service, error) {
	var s models.Service
	err := row.Scan(&s.ID, &s.Code, &s.Title, &s.EstPrice, &s.EstDurationMinutes, &s.Description, &s.UpdatedAt)
	return s, err
}
