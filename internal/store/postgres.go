package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/agrismart/pkg/models"
)

var _ Store = (*PostgresStore)(nil)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Insert(ctx context.Context, draft *models.QueryLogDraft) (*models.QueryLogEntry, error) {
	disease, err := encodeJSON(draft.Disease)
	if err != nil {
		return nil, fmt.Errorf("encode disease result: %w", err)
	}
	ifs, err := encodeJSON(draft.IFS)
	if err != nil {
		return nil, fmt.Errorf("encode ifs result: %w", err)
	}

	entry := &models.QueryLogEntry{QueryLogDraft: *draft}
	in := draft.Input
	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx,
			`INSERT INTO query_log (location, district, crop, soil_type, image_supplied, image_size,
			                        image_content_type, disease_result, ifs_result, status, error_message)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			 RETURNING id, created_at`,
			in.Location, in.District, in.Crop, in.SoilType, in.ImageSupplied, in.ImageSize,
			in.ImageContentType, disease, ifs, string(draft.Status), draft.ErrorMessage,
		).Scan(&entry.ID, &entry.CreatedAt)
	})
	if err != nil {
		return nil, storageErr("insert query log", err)
	}
	entry.CreatedAt = entry.CreatedAt.UTC()
	return entry, nil
}

// List counts and pages inside one read-only snapshot so total and items agree.
func (s *PostgresStore) List(ctx context.Context, limit, offset int) ([]models.QueryLogSummary, int, error) {
	limit, offset = clampWindow(limit, offset)

	var total int
	summaries := make([]models.QueryLogSummary, 0, limit)
	txOpts := pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
	err := pgx.BeginTxFunc(ctx, s.pool, txOpts, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM query_log`).Scan(&total); err != nil {
			return fmt.Errorf("count: %w", err)
		}

		rows, err := tx.Query(ctx,
			`SELECT id, created_at, location, district, crop, soil_type, image_supplied, image_size,
			        image_content_type, status
			 FROM query_log ORDER BY id DESC LIMIT $1 OFFSET $2`, limit, offset)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var sum models.QueryLogSummary
			var status string
			in := &sum.Input
			if err := rows.Scan(&sum.ID, &sum.CreatedAt, &in.Location, &in.District, &in.Crop, &in.SoilType,
				&in.ImageSupplied, &in.ImageSize, &in.ImageContentType, &status); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			sum.CreatedAt = sum.CreatedAt.UTC()
			sum.Status = models.Status(status)
			summaries = append(summaries, sum)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, storageErr("list query log", err)
	}
	return summaries, total, nil
}

func (s *PostgresStore) Get(ctx context.Context, id int64) (*models.QueryLogEntry, error) {
	var e models.QueryLogEntry
	var status string
	var disease, ifs []byte
	in := &e.Input
	txOpts := pgx.TxOptions{AccessMode: pgx.ReadOnly}
	err := pgx.BeginTxFunc(ctx, s.pool, txOpts, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx,
			`SELECT id, created_at, location, district, crop, soil_type, image_supplied, image_size,
			        image_content_type, disease_result, ifs_result, status, error_message
			 FROM query_log WHERE id = $1`, id,
		).Scan(&e.ID, &e.CreatedAt, &in.Location, &in.District, &in.Crop, &in.SoilType,
			&in.ImageSupplied, &in.ImageSize, &in.ImageContentType, &disease, &ifs, &status, &e.ErrorMessage)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageErr("get query log", err)
	}

	e.CreatedAt = e.CreatedAt.UTC()
	e.Status = models.Status(status)
	if e.Disease, err = decodeJSON[models.DiseaseResult](disease); err != nil {
		return nil, storageErr("decode disease result", err)
	}
	if e.IFS, err = decodeJSON[models.IFSResult](ifs); err != nil {
		return nil, storageErr("decode ifs result", err)
	}
	return &e, nil
}
