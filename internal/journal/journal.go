// Package journal records every request served by a mock server in a sqlite
// database so tests can inspect traffic after the fact.
package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Entry is one recorded request.
type Entry struct {
	Seq         uint64              `gorm:"primaryKey;autoIncrement"`
	ID          string              `gorm:"uniqueIndex;size:36"`
	Method      string              `gorm:"size:16;index"`
	URL         string
	Path        string              `gorm:"index"`
	Headers     map[string][]string `gorm:"serializer:json"`
	Body        []byte
	Matched     bool `gorm:"index"`
	Expectation string
	StatusCode  int
	ReceivedAt  time.Time
}

// TableName keeps the table name stable regardless of gorm naming strategy.
func (Entry) TableName() string { return "journal_entries" }

// Store persists journal entries.
type Store struct {
	db *gorm.DB
}

// OpenMemory opens a private in-memory database. Each call gets its own
// database, so parallel servers never see each other's traffic.
func OpenMemory(log zerolog.Logger) (*Store, error) {
	dsn := fmt.Sprintf("file:journal-%s?mode=memory&cache=shared", uuid.NewString())
	return Open(dsn, log)
}

// Open opens (and migrates) the database at dsn.
func Open(dsn string, log zerolog.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: NewGormLogger(log)})
	if err != nil {
		return nil, fmt.Errorf("open journal %q: %w", dsn, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("journal connection: %w", err)
	}
	// one connection keeps an in-memory database alive and serialises writers
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&Entry{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return &Store{db: db}, nil
}

// Record stores e, assigning an ID and timestamp when missing.
func (s *Store) Record(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = time.Now()
	}
	if err := s.db.WithContext(ctx).Create(e).Error; err != nil {
		return fmt.Errorf("record journal entry: %w", err)
	}
	return nil
}

// Filter narrows List results. Zero fields match everything.
type Filter struct {
	Method    string
	Path      string
	Unmatched bool
}

// scope applies f to a query.
func (f Filter) scope(db *gorm.DB) *gorm.DB {
	if f.Method != "" {
		db = db.Where("method = ?", f.Method)
	}
	if f.Path != "" {
		db = db.Where("path = ?", f.Path)
	}
	if f.Unmatched {
		db = db.Where("matched = ?", false)
	}
	return db
}

// List returns entries in arrival order.
func (s *Store) List(ctx context.Context, f Filter) ([]Entry, error) {
	var entries []Entry
	if err := s.db.WithContext(ctx).Model(&Entry{}).Scopes(f.scope).Order("seq").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list journal: %w", err)
	}
	return entries, nil
}

// Count returns the number of recorded entries.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&Entry{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count journal: %w", err)
	}
	return n, nil
}

// Delete removes the entries selected by f.
func (s *Store) Delete(ctx context.Context, f Filter) error {
	q := s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Scopes(f.scope)
	if err := q.Delete(&Entry{}).Error; err != nil {
		return fmt.Errorf("delete journal entries: %w", err)
	}
	return nil
}

// Clear deletes every entry.
func (s *Store) Clear(ctx context.Context) error {
	return s.Delete(ctx, Filter{})
}

// Close releases the database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
