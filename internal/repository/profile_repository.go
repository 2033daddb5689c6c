package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"autocare/internal/models"
)

var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrProfileExists   = errors.New("profile already exists")
)

type ProfileRepository struct {
	pool *pgxpool.Pool
}

func NewProfileRepository(pool *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{pool: pool}
}

const profileColumns = `id, email, name, username, bio, phone, gender, avatar_url, created_at, updated_at`

func (r *ProfileRepository) Get(ctx context.Context, id string) (models.Profile, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id)
	return scanProfile(row)
}

func (r *ProfileRepository) Insert(ctx context.Context, p models.Profile) (models.Profile, error) {
	query := `
		INSERT INTO profiles (id, email, name, username, bio, phone, gender, avatar_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING ` + profileColumns

	row := r.pool.QueryRow(ctx, query,
		p.ID,
		p.Email,
		p.Name,
		p.Username,
		p.Bio,
		p.Phone,
		p.Gender,
		p.AvatarURL,
	)
	created, err := scanProfile(row)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Profile{}, ErrProfileExists
		}
		return models.Profile{}, err
	}
	return created, nil
}

// Update writes the set fields of u and returns the stored row. An empty
// update just reads the row back.
func (r *ProfileRepository) Update(ctx context.Context, id string, u models.ProfileUpdate) (models.Profile, error) {
	fields := u.Fields()
	if len(fields) == 0 {
		return r.Get(ctx, id)
	}

	sets := make([]string, 0, len(fields)+1)
	args := []any{id}
	for _, column := range models.ProfileFields {
		value, ok := fields[column]
		if !ok {
			continue
		}
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	sets = append(sets, "updated_at = NOW()")

	query := `UPDATE profiles SET ` + strings.Join(sets, ", ") + ` WHERE id = $1 RETURNING ` + profileColumns
	return scanProfile(r.pool.QueryRow(ctx, query, args...))
}

func scanProfile(row scanner) (models.Profile, error) {
	var p models.Profile
	if err := row.Scan(
		&p.ID,
		&p.Email,
		&p.Name,
		&p.Username,
		&p.Bio,
		&p.Phone,
		&p.Gender,
		&p.AvatarURL,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Profile{}, ErrProfileNotFound
		}
		return models.Profile{}, err
	}
	return p, nil
}
