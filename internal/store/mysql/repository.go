// Package mysql is the reference GORM/MySQL PortfolioRepository adapter:
// each portfolio is persisted as one row carrying its JSON snapshot.
package mysql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	aggregator "github.com/nyxfolio/portfolio-aggregator"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// PortfolioRecord is the database row backing one Portfolio.
type PortfolioRecord struct {
	ID          string    `gorm:"primaryKey;type:varchar(128)"`
	UserID      string    `gorm:"index;type:varchar(128)"`
	Snapshot    string    `gorm:"type:longtext;not null;comment:portfolio JSON snapshot"`
	LastUpdated time.Time `gorm:"index;not null"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (PortfolioRecord) TableName() string { return "portfolios" }

// Repository implements aggregator.PortfolioRepository over MySQL via GORM.
type Repository struct {
	db *gorm.DB
}

// NewRepository opens a MySQL connection at dsn and migrates the schema.
// dsn format: "user:password@tcp(host:port)/dbname?charset=utf8mb4&parseTime=True&loc=Local"
func NewRepository(dsn string) (*Repository, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("mysql: connect: %w", err)
	}
	return NewRepositoryWithDB(db)
}

// NewRepositoryWithDB wraps an already-open *gorm.DB, migrating the schema.
func NewRepositoryWithDB(db *gorm.DB) (*Repository, error) {
	if err := db.AutoMigrate(&PortfolioRecord{}); err != nil {
		return nil, fmt.Errorf("mysql: migrate schema: %w", err)
	}
	return &Repository{db: db}, nil
}

// Save upserts the portfolio's current snapshot.
func (r *Repository) Save(ctx context.Context, p *aggregator.Portfolio) error {
	snap := p.Snapshot()
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("mysql: marshal snapshot: %w", err)
	}

	record := PortfolioRecord{
		ID:          p.ID(),
		UserID:      p.UserID(),
		Snapshot:    string(payload),
		LastUpdated: snap.LastUpdated,
	}

	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "snapshot", "last_updated", "updated_at"}),
	}).Create(&record)
	if result.Error != nil {
		return fmt.Errorf("mysql: save portfolio %s: %w", p.ID(), result.Error)
	}
	return nil
}

func (r *Repository) findOne(ctx context.Context, query string, args ...interface{}) (*aggregator.Portfolio, error) {
	var record PortfolioRecord
	result := r.db.WithContext(ctx).Where(query, args...).First(&record)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, aggregator.ErrPortfolioNotFound
		}
		return nil, fmt.Errorf("mysql: find portfolio: %w", result.Error)
	}
	var snap aggregator.PortfolioSnapshot
	if err := json.Unmarshal([]byte(record.Snapshot), &snap); err != nil {
		return nil, fmt.Errorf("mysql: unmarshal snapshot: %w", err)
	}
	return aggregator.FromSnapshot(snap), nil
}

// FindByID returns the portfolio with the given id, or
// aggregator.ErrPortfolioNotFound if none exists.
func (r *Repository) FindByID(ctx context.Context, id string) (*aggregator.Portfolio, error) {
	return r.findOne(ctx, "id = ?", id)
}

// FindByUserID returns the most recently updated portfolio for userID.
func (r *Repository) FindByUserID(ctx context.Context, userID string) (*aggregator.Portfolio, error) {
	var record PortfolioRecord
	result := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("last_updated DESC").First(&record)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, aggregator.ErrPortfolioNotFound
		}
		return nil, fmt.Errorf("mysql: find portfolio by user: %w", result.Error)
	}
	var snap aggregator.PortfolioSnapshot
	if err := json.Unmarshal([]byte(record.Snapshot), &snap); err != nil {
		return nil, fmt.Errorf("mysql: unmarshal snapshot: %w", err)
	}
	return aggregator.FromSnapshot(snap), nil
}

// Delete removes the portfolio with the given id.
func (r *Repository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&PortfolioRecord{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("mysql: delete portfolio %s: %w", id, result.Error)
	}
	return nil
}

// Exists reports whether a portfolio with the given id is stored.
func (r *Repository) Exists(ctx context.Context, id string) (bool, error) {
	var count int64
	result := r.db.WithContext(ctx).Model(&PortfolioRecord{}).Where("id = ?", id).Count(&count)
	if result.Error != nil {
		return false, fmt.Errorf("mysql: check existence of %s: %w", id, result.Error)
	}
	return count > 0, nil
}

// Close releases the underlying database connection.
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("mysql: get underlying db: %w", err)
	}
	return sqlDB.Close()
}
