package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/skylee01244/fx-terminal/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Storage is the SQLite-backed trade journal. Writes are best-effort from
// the engine's point of view; a journal failure never blocks trading.
type Storage struct {
	db *gorm.DB
}

// NewStorage opens (or creates) the journal database. An empty path falls
// back to the per-user config directory.
func NewStorage(path string) (*Storage, error) {
	dbPath := path
	if dbPath == "" {
		var err error
		dbPath, err = defaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve DB path: %w", err)
		}
	}

	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	// Pure Go SQLite driver, no cgo
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&domain.OrderRecord{}, &domain.FillRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

func defaultDBPath() (string, error) {
	var configDir string
	var err error

	if runtime.GOOS == "windows" {
		configDir = os.Getenv("LOCALAPPDATA")
		if configDir == "" {
			configDir, err = os.UserConfigDir()
		}
	} else {
		configDir, err = os.UserConfigDir()
	}

	if err != nil {
		return "", err
	}

	return filepath.Join(configDir, "FxTerminal", "data", "journal.db"), nil
}

// SaveOrder upserts the order's journal record. Every state change writes
// the full row; the journal keeps only the latest state per order.
func (s *Storage) SaveOrder(rec domain.OrderRecord) error {
	return s.db.Save(&rec).Error
}

// SaveFill appends a confirmed execution.
func (s *Storage) SaveFill(rec domain.FillRecord) error {
	return s.db.Create(&rec).Error
}

// Orders returns journaled orders, newest first. status filters when
// non-empty.
func (s *Storage) Orders(status string, limit int) ([]domain.OrderRecord, error) {
	q := s.db.Order("created_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var records []domain.OrderRecord
	err := q.Find(&records).Error
	return records, err
}

// Fills returns the execution history for an order, oldest first. An empty
// orderID returns all fills.
func (s *Storage) Fills(orderID string) ([]domain.FillRecord, error) {
	q := s.db.Order("executed_at ASC")
	if orderID != "" {
		q = q.Where("order_id = ?", orderID)
	}

	var records []domain.FillRecord
	err := q.Find(&records).Error
	return records, err
}

// Close releases the underlying connection.
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
