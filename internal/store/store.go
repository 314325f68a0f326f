package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/LeonardoBeccarini/smart_irrigation/internal/model"
)

var (
	ErrNotFound      = errors.New("store: record not found")
	ErrNoDatabase    = errors.New("store: database not found")
	ErrNoReadingsTab = errors.New("store: readings table not found")
)

// Store is the Reading Store: sensor readings and irrigation sessions in
// SQLite. One handle is shared by the listener and the HTTP handlers; every
// operation touches a single row.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

func gormConfig() *gorm.Config {
	return &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}
}

// Open opens (or creates) the database at path and migrates the schema.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := db.AutoMigrate(&model.Reading{}, &model.IrrigationSession{}); err != nil {
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// OpenExisting opens a database that must already exist and hold the
// readings table. It never creates files or tables.
func OpenExisting(path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w at: %s", ErrNoDatabase, path)
		}
		return nil, err
	}
	db, err := gorm.Open(sqlite.Open(path), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if !db.Migrator().HasTable(&model.Reading{}) {
		return nil, fmt.Errorf("%w: %s in %s", ErrNoReadingsTab, model.Reading{}.TableName(), path)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// SaveReading persists a telemetry sample with a server-side timestamp.
func (s *Store) SaveReading(ctx context.Context, t model.Telemetry) (model.Reading, error) {
	r := model.Reading{
		Temperature:  t.Temperature,
		Humidity:     t.Humidity,
		SoilMoisture: t.SoilMoisture,
		Timestamp:    s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&r).Error; err != nil {
		return model.Reading{}, fmt.Errorf("save reading: %w", err)
	}
	return r, nil
}

// LatestReading returns the most recently inserted reading.
func (s *Store) LatestReading(ctx context.Context) (model.Reading, error) {
	var r model.Reading
	err := s.db.WithContext(ctx).Order("id desc").Take(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Reading{}, ErrNotFound
	}
	if err != nil {
		return model.Reading{}, fmt.Errorf("latest reading: %w", err)
	}
	return r, nil
}

// RecentReadings returns up to limit readings, newest first.
func (s *Store) RecentReadings(ctx context.Context, limit int) ([]model.Reading, error) {
	out := make([]model.Reading, 0, limit)
	err := s.db.WithContext(ctx).
		Order("timestamp desc").Order("id desc").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("recent readings: %w", err)
	}
	return out, nil
}

// ReadingsByTime returns every reading, oldest first.
func (s *Store) ReadingsByTime(ctx context.Context) ([]model.Reading, error) {
	var out []model.Reading
	err := s.db.WithContext(ctx).
		Order("timestamp asc").Order("id asc").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("readings: %w", err)
	}
	return out, nil
}

func (s *Store) CreateSession(ctx context.Context, sess *model.IrrigationSession) error {
	if err := s.db.WithContext(ctx).Omit("SensorData").Create(sess).Error; err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// Sessions lists all irrigation sessions in creation order.
func (s *Store) Sessions(ctx context.Context) ([]model.IrrigationSession, error) {
	var out []model.IrrigationSession
	err := s.db.WithContext(ctx).Preload("SensorData").Order("id asc").Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("sessions: %w", err)
	}
	return out, nil
}

// UpdateSession loads session id, applies fn and saves the result in one
// transaction. Nothing is written when fn returns an error.
func (s *Store) UpdateSession(ctx context.Context, id uint, fn func(*model.IrrigationSession) error) (model.IrrigationSession, error) {
	var sess model.IrrigationSession
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Take(&sess, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if err := fn(&sess); err != nil {
			return err
		}
		return tx.Model(&sess).Select("end_time", "water_used").Updates(&sess).Error
	})
	if err != nil {
		return model.IrrigationSession{}, err
	}
	return sess, nil
}
