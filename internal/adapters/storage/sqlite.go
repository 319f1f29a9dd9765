// Package storage records lifecycle events and capture files in SQLite.
// The scene never reads it back; in-memory state stays authoritative.
package storage

import (
	"log"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/lcalzada-xor/netsim/internal/core/domain"
)

// EventRecord is one lifecycle event: chip add/remove (which a session's
// connect and disconnect trigger) or scene reset.
type EventRecord struct {
	ID         uint `gorm:"primaryKey"`
	CreatedAt  time.Time
	Kind       string
	DeviceGUID string
	Detail     string
}

// CaptureRecord indexes a capture file opened for a chip.
type CaptureRecord struct {
	ID         uint `gorm:"primaryKey"`
	CreatedAt  time.Time
	DeviceGUID string
	ChipID     uint32
	Path       string
}

// SQLiteStore implements ports.EventStore using GORM and SQLite.
type SQLiteStore struct {
	db *gorm.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.Use(tracing.NewPlugin()); err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&EventRecord{}, &CaptureRecord{}); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) RecordEvent(kind, deviceGUID, detail string) {
	rec := EventRecord{Kind: kind, DeviceGUID: deviceGUID, Detail: detail}
	if err := s.db.Create(&rec).Error; err != nil {
		log.Printf("storage: record event: %v", err)
	}
}

func (s *SQLiteStore) RecordCapture(deviceGUID string, chipID domain.ChipID, path string) {
	rec := CaptureRecord{DeviceGUID: deviceGUID, ChipID: uint32(chipID), Path: path}
	if err := s.db.Create(&rec).Error; err != nil {
		log.Printf("storage: record capture: %v", err)
	}
}

// Events returns the most recent events, newest first.
func (s *SQLiteStore) Events(limit int) ([]EventRecord, error) {
	var records []EventRecord
	err := s.db.Order("id desc").Limit(limit).Find(&records).Error
	return records, err
}

func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
