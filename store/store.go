// Package store - SQLite persistence sink for detection records and their images.
package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mudler/xlog"
	"github.com/nvr-ai/go-detect/detection"
	"github.com/nvr-ai/go-detect/dispatch"
	"github.com/pkg/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Config configures the store.
type Config struct {
	// DSN is the SQLite data source, a file path or ":memory:".
	DSN string `json:"dsn" yaml:"dsn"`
	// ImageDir is where linked images are written.
	ImageDir string `json:"image_dir" yaml:"image_dir"`
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() Config {
	return Config{
		DSN:      "detections.db",
		ImageDir: "images",
	}
}

// DetectionRecord is one persisted detection outcome.
type DetectionRecord struct {
	ID             string          `gorm:"primaryKey;size:36" json:"id"`
	Backend        string          `gorm:"index;size:32" json:"backend"`
	Results        json.RawMessage `gorm:"type:text" json:"results"`
	Count          int             `json:"count"`
	ElapsedSeconds float64         `json:"elapsed_seconds"`
	CreatedAt      time.Time       `json:"created_at"`
	Images         []ImageRecord   `gorm:"foreignKey:DetectionID" json:"images,omitempty"`
}

// ImageRecord is an image stored next to a detection.
type ImageRecord struct {
	ID                string          `gorm:"primaryKey;size:36" json:"id"`
	DetectionID       string          `gorm:"index;size:36" json:"detection_id"`
	Path              string          `json:"path"`
	Format            string          `gorm:"size:8" json:"format"`
	TakenAt           time.Time       `json:"taken_at"`
	LightingCondition string          `gorm:"size:64" json:"lighting_condition,omitempty"`
	Processed         bool            `json:"processed"`
	Metadata          json.RawMessage `gorm:"type:text" json:"metadata,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// Store is a GORM-backed persistence sink.
type Store struct {
	db       *gorm.DB
	imageDir string
}

// Open opens the database and migrates the schema.
//
// Arguments:
//   - config: The store configuration.
//
// Returns:
//   - *Store: The store.
//   - error: An error if the database cannot be opened or migrated.
func Open(config Config) (*Store, error) {
	if config.DSN == "" {
		config.DSN = DefaultConfig().DSN
	}
	db, err := gorm.Open(sqlite.Open(config.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database %s", config.DSN)
	}
	if err := db.AutoMigrate(&DetectionRecord{}, &ImageRecord{}); err != nil {
		return nil, errors.Wrap(err, "failed to migrate schema")
	}
	return &Store{db: db, imageDir: config.ImageDir}, nil
}

// Record persists result and returns its identifier.
//
// Arguments:
//   - ctx: The context.
//   - result: The normalized result.
//   - elapsed: The processing time.
//   - kind: The backend that produced the result.
//
// Returns:
//   - string: The record identifier (UUID).
//   - error: An error if the record cannot be written.
func (s *Store) Record(ctx context.Context, result *detection.Result, elapsed time.Duration, kind detection.BackendKind) (string, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode result")
	}

	rec := DetectionRecord{
		ID:             uuid.NewString(),
		Backend:        string(kind),
		Results:        payload,
		Count:          result.Count,
		ElapsedSeconds: elapsed.Seconds(),
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return "", errors.Wrap(err, "failed to insert detection")
	}
	return rec.ID, nil
}

// LinkImage writes the image under the image directory and records it against its detection.
//
// Arguments:
//   - ctx: The context.
//   - upload: The image and its attributes.
//
// Returns:
//   - *dispatch.SavedImage: The stored image reference.
//   - error: An error if the file or the record cannot be written.
func (s *Store) LinkImage(ctx context.Context, upload dispatch.ImageUpload) (*dispatch.SavedImage, error) {
	if s.imageDir == "" {
		return nil, errors.New("no image directory configured")
	}
	metadata, err := json.Marshal(upload.Metadata)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode image metadata")
	}

	id := uuid.NewString()
	ext := string(upload.Format)
	if ext == "" {
		ext = "bin"
	}
	path := filepath.Join(s.imageDir, id+"."+ext)

	if err := os.MkdirAll(s.imageDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create image directory")
	}
	if err := os.WriteFile(path, upload.Data, 0o644); err != nil {
		return nil, errors.Wrap(err, "failed to write image")
	}

	rec := ImageRecord{
		ID:                id,
		DetectionID:       upload.DetectionID,
		Path:              path,
		Format:            string(upload.Format),
		TakenAt:           upload.TakenAt,
		LightingCondition: upload.LightingCondition,
		Processed:         true,
		Metadata:          metadata,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if rmErr := os.Remove(path); rmErr != nil {
			xlog.Warn("Failed to remove orphaned image", "path", path, "error", rmErr)
		}
		return nil, errors.Wrap(err, "failed to insert image")
	}

	xlog.Info("Image stored", "id", id, "detection_id", upload.DetectionID, "path", path)
	return &dispatch.SavedImage{ID: id, Path: path}, nil
}

// Get returns the detection record with its images.
//
// Arguments:
//   - ctx: The context.
//   - id: The record identifier.
//
// Returns:
//   - *DetectionRecord: The record.
//   - error: ErrNotFound when no record has that id.
func (s *Store) Get(ctx context.Context, id string) (*DetectionRecord, error) {
	var rec DetectionRecord
	err := s.db.WithContext(ctx).Preload("Images").First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read detection")
	}
	return &rec, nil
}

// Page bounds.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ListQuery selects one page of detection records.
type ListQuery struct {
	// Limit is the page size. Zero takes DefaultPageSize; it is capped at MaxPageSize.
	Limit int
	// Offset is the number of records skipped.
	Offset int
	// Backend keeps only records of one backend when set.
	Backend string
}

// Page is one page of detection records, newest first.
type Page struct {
	Total   int64             `json:"total"`
	Limit   int               `json:"limit"`
	Offset  int               `json:"offset"`
	Records []DetectionRecord `json:"records"`
}

// List returns a page of detection records with their images, newest first.
//
// Arguments:
//   - ctx: The context.
//   - query: The page to read.
//
// Returns:
//   - *Page: The page. Records is empty, never nil, past the last record.
//   - error: An error if the query fails.
func (s *Store) List(ctx context.Context, query ListQuery) (*Page, error) {
	if query.Limit <= 0 {
		query.Limit = DefaultPageSize
	}
	if query.Limit > MaxPageSize {
		query.Limit = MaxPageSize
	}
	if query.Offset < 0 {
		query.Offset = 0
	}

	byBackend := func(db *gorm.DB) *gorm.DB {
		if query.Backend == "" {
			return db
		}
		return db.Where("backend = ?", query.Backend)
	}

	page := &Page{Limit: query.Limit, Offset: query.Offset, Records: []DetectionRecord{}}
	err := s.db.WithContext(ctx).Model(&DetectionRecord{}).Scopes(byBackend).Count(&page.Total).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to count detections")
	}
	err = s.db.WithContext(ctx).Scopes(byBackend).
		Preload("Images").
		Order("created_at DESC").
		Order("id").
		Limit(query.Limit).
		Offset(query.Offset).
		Find(&page.Records).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list detections")
	}
	return page, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
