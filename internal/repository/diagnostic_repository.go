package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"autocare/internal/models"
)

var ErrDiagnosticNotFound = errors.New("diagnostic not found")

type DiagnosticRepository struct {
	pool *pgxpool.Pool
}

func NewDiagnosticRepository(pool *pgxpool.Pool) *DiagnosticRepository {
	return &DiagnosticRepository{pool: pool}
}

const diagnosticColumns = `id, chat_id, user_id, vehicle_id, input, result, status, signature, created_at, updated_at`

func (r *DiagnosticRepository) Create(ctx context.Context, d models.Diagnostic) (models.Diagnostic, error) {
	// The raw media never reaches the database, only its object key.
	in := d.Input
	in.MediaBase64 = ""
	input, err := json.Marshal(in)
	if err != nil {
		return models.Diagnostic{}, fmt.Errorf("encode input: %w", err)
	}
	result, err := encodeFindings(d.Result)
	if err != nil {
		return models.Diagnostic{}, err
	}

	query := `
		INSERT INTO diagnostics (id, chat_id, user_id, vehicle_id, input, result, status, signature, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING ` + diagnosticColumns

	row := r.pool.QueryRow(ctx, query,
		d.ID,
		d.ChatID,
		d.UserID,
		d.VehicleID,
		input,
		result,
		d.Status,
		d.Signature,
	)
	return scanDiagnostic(row)
}

func (r *DiagnosticRepository) GetByID(ctx context.Context, id string) (models.Diagnostic, error) {
	return scanDiagnostic(r.pool.QueryRow(ctx, `SELECT `+diagnosticColumns+` FROM diagnostics WHERE id = $1`, id))
}

// Complete stores the findings of a pending diagnostic. A diagnostic that
// already left the pending state is not touched and ErrDiagnosticNotFound
// is returned.
func (r *DiagnosticRepository) Complete(ctx context.Context, id string, findings []models.Finding) error {
	result, err := encodeFindings(findings)
	if err != nil {
		return err
	}
	const query = `
		UPDATE diagnostics SET result = $2, status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $4
	`
	cmd, err := r.pool.Exec(ctx, query, id, result, models.DiagnosticDone, models.DiagnosticPending)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrDiagnosticNotFound
	}
	return nil
}

func (r *DiagnosticRepository) MarkFailed(ctx context.Context, id string) error {
	const query = `UPDATE diagnostics SET status = $2, updated_at = NOW() WHERE id = $1 AND status = $3`
	_, err := r.pool.Exec(ctx, query, id, models.DiagnosticFailed, models.DiagnosticPending)
	return err
}

// ListPendingBefore returns ids of diagnostics still pending since before t.
func (r *DiagnosticRepository) ListPendingBefore(ctx context.Context, t time.Time, limit int) ([]string, error) {
	const query = `
		SELECT id FROM diagnostics
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at
		LIMIT $3
	`
	rows, err := r.pool.Query(ctx, query, models.DiagnosticPending, t, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func encodeFindings(findings []models.Finding) ([]byte, error) {
	if findings == nil {
		findings = []models.Finding{}
	}
	out, err := json.Marshal(findings)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return out, nil
}

func scanDiagnostic(row scanner) (models.Diagnostic, error) {
	var (
		d      models.Diagnostic
		input  []byte
		result []byte
	)
	if err := row.Scan(
		&d.ID,
		&d.ChatID,
		&d.UserID,
		&d.VehicleID,
		&input,
		&result,
		&d.Status,
		&d.Signature,
		&d.CreatedAt,
		&d.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Diagnostic{}, ErrDiagnosticNotFound
		}
		return models.Diagnostic{}, err
	}
	if err := json.Unmarshal(input, &d.Input); err != nil {
		return models.Diagnostic{}, fmt.Errorf("decode input: %w", err)
	}
	if len(result) > 0 {
		if err := json.Unmarshal(result, &d.Result); err != nil {
			return models.Diagnostic{}, fmt.Errorf("decode result: %w", err)
		}
	}
	return d, nil
}
