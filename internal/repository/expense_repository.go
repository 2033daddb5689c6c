package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"autocare/internal/models"
)

type ExpenseRepository struct {
	pool *pgxpool.Pool
}

func NewExpenseRepository(pool *pgxpool.Pool) *ExpenseRepository {
	return &ExpenseRepository{pool: pool}
}

const expenseColumns = `id, user_id, vehicle_id, amount::float8, description, date, created_at`

func (r *ExpenseRepository) ListByUser(ctx context.Context, userID string) ([]models.Expense, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE user_id = $1 ORDER BY date DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Expense{}
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *ExpenseRepository) Create(ctx context.Context, userID string, in models.ExpenseInput) (models.Expense, error) {
	date := time.Now().UTC()
	if in.Date != nil {
		date = in.Date.UTC()
	}

	query := `
		INSERT INTO expenses (user_id, vehicle_id, amount, description, date)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + expenseColumns

	e, err := scanExpense(r.pool.QueryRow(ctx, query, userID, in.VehicleID, in.Amount, in.Description, date))
	if err != nil {
		if isForeignKeyViolation(err) {
			return models.Expense{}, ErrInvalidReference
		}
		return models.Expense{}, err
	}
	return e, nil
}

func scanExpense(row scanner) (models.Expense, error) {
	var e models.Expense
	err := row.Scan(&e.ID, &e.UserID, &e.VehicleID, &e.Amount, &e.Description, &e.Date, &e.CreatedAt)
	return e, err
}
