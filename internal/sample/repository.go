package sample

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"samples-backend/internal/db"
)

var ErrNotFound = errors.New("sample not found")

const (
	sampleColumns = `s.id, s.name, s.description, s.image_url, s.image_public_id, s.user_id, u.username, s.created_at, s.updated_at`
	sampleFrom    = ` FROM samples s JOIN users u ON u.id = s.user_id`
	changedFrom   = ` FROM changed s JOIN users u ON u.id = s.user_id`
	sampleOrder   = ` ORDER BY s.created_at DESC, s.id DESC`
)

type PostgresRepository struct {
	db db.DB
}

func NewRepository(database db.DB) *PostgresRepository {
	return &PostgresRepository{db: database}
}

func scanSample(row pgx.Row) (Sample, error) {
	var s Sample
	err := row.Scan(&s.ID, &s.Name, &s.Description, &s.ImageURL, &s.ImagePublicID, &s.UserID, &s.Username, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sample{}, ErrNotFound
		}
		return Sample{}, err
	}
	return s, nil
}

func (r *PostgresRepository) Create(ctx context.Context, s Sample) (Sample, error) {
	now := time.Now().UTC()
	created, err := scanSample(r.db.QueryRow(ctx, `
		WITH changed AS (
			INSERT INTO samples (name, description, image_url, image_public_id, user_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $6)
			RETURNING *
		)
		SELECT `+sampleColumns+changedFrom,
		s.Name, s.Description, s.ImageURL, s.ImagePublicID, s.UserID, now,
	))
	if err != nil {
		return Sample{}, fmt.Errorf("insert sample: %w", err)
	}
	return created, nil
}

func (r *PostgresRepository) FindByID(ctx context.Context, id int64) (Sample, error) {
	s, err := scanSample(r.db.QueryRow(ctx, `SELECT `+sampleColumns+sampleFrom+` WHERE s.id = $1`, id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Sample{}, fmt.Errorf("query sample: %w", err)
	}
	return s, err
}

func (r *PostgresRepository) List(ctx context.Context, page, size int) ([]Sample, int64, error) {
	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM samples`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count samples: %w", err)
	}

	samples, err := r.query(ctx, `SELECT `+sampleColumns+sampleFrom+sampleOrder+` LIMIT $1 OFFSET $2`, size, page*size)
	if err != nil {
		return nil, 0, err
	}
	return samples, total, nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID int64, page, size int) ([]Sample, int64, error) {
	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM samples WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count user samples: %w", err)
	}

	samples, err := r.query(ctx, `SELECT `+sampleColumns+sampleFrom+` WHERE s.user_id = $1`+sampleOrder+` LIMIT $2 OFFSET $3`, userID, size, page*size)
	if err != nil {
		return nil, 0, err
	}
	return samples, total, nil
}

func (r *PostgresRepository) ListAllByUser(ctx context.Context, userID int64) ([]Sample, error) {
	return r.query(ctx, `SELECT `+sampleColumns+sampleFrom+` WHERE s.user_id = $1`+sampleOrder, userID)
}

func (r *PostgresRepository) Update(ctx context.Context, s Sample) (Sample, error) {
	updated, err := scanSample(r.db.QueryRow(ctx, `
		WITH changed AS (
			UPDATE samples
			SET name = $2, description = $3, image_url = $4, image_public_id = $5, updated_at = $6
			WHERE id = $1
			RETURNING *
		)
		SELECT `+sampleColumns+changedFrom,
		s.ID, s.Name, s.Description, s.ImageURL, s.ImagePublicID, time.Now().UTC(),
	))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Sample{}, err
		}
		return Sample{}, fmt.Errorf("update sample: %w", err)
	}
	return updated, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM samples WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete sample: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) query(ctx context.Context, sql string, args ...any) ([]Sample, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	samples := make([]Sample, 0)
	for rows.Next() {
		s, err := scanSample(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		samples = append(samples, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate samples: %w", err)
	}

	return samples, nil
}
