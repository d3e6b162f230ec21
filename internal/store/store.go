package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kiranshivaraju/agrismart/internal/config"
	"github.com/kiranshivaraju/agrismart/pkg/models"
)

var ErrNotFound = errors.New("resource not found")

// ErrStorage wraps every persistence failure other than ErrNotFound.
var ErrStorage = errors.New("storage error")

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// Store is the query log. Entries are append-only: there is no update or
// delete. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	// Insert persists draft and returns the entry with its assigned id and
	// creation time. Ids are unique and strictly increasing.
	Insert(ctx context.Context, draft *models.QueryLogDraft) (*models.QueryLogEntry, error)

	// List returns summaries newest first plus the total number of entries.
	List(ctx context.Context, limit, offset int) ([]models.QueryLogSummary, int, error)

	Get(ctx context.Context, id int64) (*models.QueryLogEntry, error)

	Close() error
}

// Open connects to the backend named by cfg.URL and prepares its schema.
func Open(ctx context.Context, cfg config.DatabaseConfig) (Store, error) {
	scheme, err := config.DatabaseScheme(cfg.URL)
	if err != nil {
		return nil, err
	}

	switch scheme {
	case "postgres":
		if err := RunMigrations(cfg.URL); err != nil {
			return nil, err
		}
		pool, err := Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewPostgresStore(pool), nil
	case "mysql":
		return OpenMySQL(ctx, strings.TrimPrefix(cfg.URL, "mysql://"), cfg)
	default:
		return OpenSQLite(ctx, sqlitePath(cfg.URL))
	}
}

func sqlitePath(url string) string {
	if strings.HasPrefix(url, "sqlite://") {
		return strings.TrimPrefix(url, "sqlite://")
	}
	return url
}

// clampWindow applies the listing bounds. Out-of-range values are corrected
// rather than rejected; request validation happens in the API layer.
func clampWindow(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

func encodeJSON[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func decodeJSON[T any](b []byte) (*T, error) {
	if len(b) == 0 || string(b) == "null" {
		return nil, nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return &v, nil
}
