package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"autocare/internal/models"
)

type VehicleRepository struct {
	pool *pgxpool.Pool
}

func NewVehicleRepository(pool *pgxpool.Pool) *VehicleRepository {
	return &VehicleRepository{pool: pool}
}

const vehicleColumns = `id, owner_id, make, brand, model, year, plate, odometer, km, vin, color, photo_url, status, meta, created_at`

// ListByOwner returns the owner's vehicles, newest first.
func (r *VehicleRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.Vehicle, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE owner_id = $1 ORDER BY created_at DESC, id DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	vehicles := []models.Vehicle{}
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, err
		}
		vehicles = append(vehicles, v)
	}
	return vehicles, rows.Err()
}

func (r *VehicleRepository) Create(ctx context.Context, ownerID string, in models.VehicleInput) (models.Vehicle, error) {
	var meta []byte
	if in.Meta != nil {
		encoded, err := json.Marshal(in.Meta)
		if err != nil {
			return models.Vehicle{}, fmt.Errorf("encode meta: %w", err)
		}
		meta = encoded
	}

	query := `
		INSERT INTO vehicles (owner_id, make, brand, model, year, plate, odometer, km, vin, color, photo_url, status, meta)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING ` + vehicleColumns

	row := r.pool.QueryRow(ctx, query,
		ownerID,
		in.Make,
		in.Brand,
		in.Model,
		in.Year,
		in.Plate,
		in.Odometer,
		in.Km,
		in.VIN,
		in.Color,
		in.PhotoURL,
		in.Status,
		meta,
	)
	return scanVehicle(row)
}

// OwnedBy reports whether the vehicle exists and belongs to ownerID.
func (r *VehicleRepository) OwnedBy(ctx context.Context, id int64, ownerID string) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM vehicles WHERE id = $1 AND owner_id = $2)`, id, ownerID).Scan(&ok)
	return ok, err
}

func scanVehicle(row scanner) (models.Vehicle, error) {
	var (
		v    models.Vehicle
		meta []byte
	)
	if err := row.Scan(
		&v.ID,
		&v.OwnerID,
		&v.Make,
		&v.Brand,
		&v.Model,
		&v.Year,
		&v.Plate,
		&v.Odometer,
		&v.Km,
		&v.VIN,
		&v.Color,
		&v.PhotoURL,
		&v.Status,
		&meta,
		&v.CreatedAt,
	); err != nil {
		return models.Vehicle{}, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &v.Meta); err != nil {
			return models.Vehicle{}, fmt.Errorf("decode meta: %w", err)
		}
	}
	return v, nil
}
