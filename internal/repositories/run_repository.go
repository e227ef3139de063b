package repositories

import (
	"context"
	"encoding/json"
	stderrors "errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"postcraft/internal/models"
	"postcraft/internal/pkg/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS run_history (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL,
	body        JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS run_history_created_at_idx ON run_history (created_at DESC);
`

// RunRepository persists runs as JSONB documents in Postgres.
type RunRepository struct {
	db *pgxpool.Pool
}

func NewRunRepository(db *pgxpool.Pool) *RunRepository {
	return &RunRepository{db: db}
}

// EnsureSchema creates the history table when it is missing.
func (r *RunRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return errors.Wrap(err, "runs.schema", "create run_history")
	}
	return nil
}

// Set upserts the whole run.
func (r *RunRepository) Set(ctx context.Context, run *models.Run) error {
	body, err := json.Marshal(run)
	if err != nil {
		return errors.Wrap(err, "runs.set", "encode run")
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO run_history (id, status, body, created_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (id) DO UPDATE
		SET status=EXCLUDED.status, body=EXCLUDED.body, updated_at=now()
	`, run.ID, string(run.Status), body, run.CreatedAt)
	if err != nil {
		return r.classify(err, "runs.set")
	}
	return nil
}

func (r *RunRepository) Get(ctx context.Context, id string) (*models.Run, error) {
	var body []byte
	err := r.db.QueryRow(ctx, `SELECT body FROM run_history WHERE id=$1`, id).Scan(&body)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.NotFound("run", id)
		}
		return nil, r.classify(err, "runs.get")
	}

	var run models.Run
	if err := json.Unmarshal(body, &run); err != nil {
		return nil, errors.Wrap(err, "runs.get", "decode run")
	}
	return &run, nil
}

// List returns the newest runs first.
func (r *RunRepository) List(ctx context.Context, limit int) ([]models.Run, error) {
	rows, err := r.db.Query(ctx, `
		SELECT body
		FROM run_history
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, r.classify(err, "runs.list")
	}
	defer rows.Close()

	out := []models.Run{}
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, errors.Wrap(err, "runs.list", "scan run")
		}
		var run models.Run
		if err := json.Unmarshal(body, &run); err != nil {
			return nil, errors.Wrap(err, "runs.list", "decode run")
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, r.classify(err, "runs.list")
	}
	return out, nil
}

func (r *RunRepository) Clear(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM run_history`); err != nil {
		return r.classify(err, "runs.clear")
	}
	return nil
}

func (r *RunRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func (r *RunRepository) classify(err error, op string) error {
	switch {
	case isUndefinedTable(err):
		return errors.WrapWithCode(err, errors.CodeUnavailable, op, "run_history table missing")
	case isUniqueViolation(err):
		return errors.WrapWithCode(err, errors.CodeConflict, op, "run already exists")
	default:
		return errors.Wrap(err, op, "query failed")
	}
}
