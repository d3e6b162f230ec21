package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kiranshivaraju/agrismart/internal/config"
	"github.com/kiranshivaraju/agrismart/pkg/models"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var _ Store = (*GormStore)(nil)

// queryLogRow is the gorm mapping of the query_log table. Result payloads
// are stored as JSON text.
type queryLogRow struct {
	ID               int64     `gorm:"primaryKey;autoIncrement"`
	CreatedAt        time.Time `gorm:"not null;index"`
	Location         string    `gorm:"size:512;not null"`
	District         string    `gorm:"size:256;not null"`
	Crop             string    `gorm:"size:128;not null"`
	SoilType         string    `gorm:"size:128;not null"`
	ImageSupplied    bool      `gorm:"not null"`
	ImageSize        int       `gorm:"not null"`
	ImageContentType string    `gorm:"size:128;not null"`
	DiseaseResult    *string   `gorm:"type:text"`
	IFSResult        *string   `gorm:"column:ifs_result;type:text"`
	Status           string    `gorm:"size:16;not null"`
	ErrorMessage     string    `gorm:"type:text"`
}

func (queryLogRow) TableName() string { return "query_log" }

// GormStore implements the Store interface on gorm for the embedded SQLite
// and MySQL backends.
type GormStore struct {
	db *gorm.DB
}

// OpenSQLite opens (creating if needed) the SQLite database at path. Writes
// are serialized through a single connection.
func OpenSQLite(ctx context.Context, path string) (*GormStore, error) {
	dsn := path
	if strings.Contains(dsn, "?") {
		dsn += "&_busy_timeout=5000"
	} else {
		dsn += "?_busy_timeout=5000"
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormLogger()})
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	return newGormStore(ctx, db)
}

// OpenMySQL opens a MySQL database from a go-sql-driver DSN
// (user:pass@tcp(host:3306)/db).
func OpenMySQL(ctx context.Context, dsn string, cfg config.DatabaseConfig) (*GormStore, error) {
	if !strings.Contains(dsn, "parseTime=") {
		if strings.Contains(dsn, "?") {
			dsn += "&parseTime=true"
		} else {
			dsn += "?parseTime=true"
		}
	}

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: gormLogger()})
	if err != nil {
		return nil, fmt.Errorf("open mysql database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("open mysql database: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return newGormStore(ctx, db)
}

func newGormStore(ctx context.Context, db *gorm.DB) (*GormStore, error) {
	if err := db.WithContext(ctx).AutoMigrate(&queryLogRow{}); err != nil {
		return nil, fmt.Errorf("migrate query_log: %w", err)
	}
	return &GormStore{db: db}, nil
}

// slogWriter routes gorm's slow-query and error lines into the process logger.
type slogWriter struct{}

func (slogWriter) Printf(format string, args ...any) {
	slog.Warn("gorm", "message", fmt.Sprintf(format, args...))
}

func gormLogger() logger.Interface {
	return logger.New(slogWriter{}, logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) Insert(ctx context.Context, draft *models.QueryLogDraft) (*models.QueryLogEntry, error) {
	row, err := rowFromDraft(draft)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(row).Error
	})
	if err != nil {
		return nil, storageErr("insert query log", err)
	}

	return &models.QueryLogEntry{ID: row.ID, CreatedAt: row.CreatedAt, QueryLogDraft: *draft}, nil
}

func (s *GormStore) List(ctx context.Context, limit, offset int) ([]models.QueryLogSummary, int, error) {
	limit, offset = clampWindow(limit, offset)

	var total int64
	var rows []queryLogRow
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&queryLogRow{}).Count(&total).Error; err != nil {
			return fmt.Errorf("count: %w", err)
		}
		return tx.Select("id", "created_at", "location", "district", "crop", "soil_type",
			"image_supplied", "image_size", "image_content_type", "status").
			Order("id DESC").Limit(limit).Offset(offset).Find(&rows).Error
	})
	if err != nil {
		return nil, 0, storageErr("list query log", err)
	}

	summaries := make([]models.QueryLogSummary, 0, len(rows))
	for i := range rows {
		summaries = append(summaries, models.QueryLogSummary{
			ID:        rows[i].ID,
			CreatedAt: rows[i].CreatedAt.UTC(),
			Input:     rows[i].input(),
			Status:    models.Status(rows[i].Status),
		})
	}
	return summaries, int(total), nil
}

func (s *GormStore) Get(ctx context.Context, id int64) (*models.QueryLogEntry, error) {
	var row queryLogRow
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.First(&row, id).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageErr("get query log", err)
	}
	return row.entry()
}

func rowFromDraft(draft *models.QueryLogDraft) (*queryLogRow, error) {
	disease, err := encodeJSON(draft.Disease)
	if err != nil {
		return nil, fmt.Errorf("encode disease result: %w", err)
	}
	ifs, err := encodeJSON(draft.IFS)
	if err != nil {
		return nil, fmt.Errorf("encode ifs result: %w", err)
	}

	in := draft.Input
	return &queryLogRow{
		CreatedAt:        time.Now().UTC().Truncate(time.Millisecond),
		Location:         in.Location,
		District:         in.District,
		Crop:             in.Crop,
		SoilType:         in.SoilType,
		ImageSupplied:    in.ImageSupplied,
		ImageSize:        in.ImageSize,
		ImageContentType: in.ImageContentType,
		DiseaseResult:    textPtr(disease),
		IFSResult:        textPtr(ifs),
		Status:           string(draft.Status),
		ErrorMessage:     draft.ErrorMessage,
	}, nil
}

func (r *queryLogRow) input() models.InputSnapshot {
	return models.InputSnapshot{
		Location:         r.Location,
		District:         r.District,
		Crop:             r.Crop,
		SoilType:         r.SoilType,
		ImageSupplied:    r.ImageSupplied,
		ImageSize:        r.ImageSize,
		ImageContentType: r.ImageContentType,
	}
}

func (r *queryLogRow) entry() (*models.QueryLogEntry, error) {
	e := &models.QueryLogEntry{
		ID:        r.ID,
		CreatedAt: r.CreatedAt.UTC(),
		QueryLogDraft: models.QueryLogDraft{
			Input:        r.input(),
			Status:       models.Status(r.Status),
			ErrorMessage: r.ErrorMessage,
		},
	}
	var err error
	if r.DiseaseResult != nil {
		if e.Disease, err = decodeJSON[models.DiseaseResult]([]byte(*r.DiseaseResult)); err != nil {
			return nil, storageErr("decode disease result", err)
		}
	}
	if r.IFSResult != nil {
		if e.IFS, err = decodeJSON[models.IFSResult]([]byte(*r.IFSResult)); err != nil {
			return nil, storageErr("decode ifs result", err)
		}
	}
	return e, nil
}

func textPtr(b []byte) *string {
	if b == nil {
		return nil
	}
	s := string(b)
	return &s
}
