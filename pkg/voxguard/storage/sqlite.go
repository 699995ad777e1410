//go:build !js && !wasm
// +build !js,!wasm

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/himanishpuri/VoxGuard/pkg/utils"
)

const DefaultDBFile = "voxguard.sqlite3"
const errDBClientNil = "db client is nil"

type DBClient struct {
	DB *gorm.DB
	db *sql.DB
}

// Prediction is one classified clip.
type Prediction struct {
	ID          string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Filename    string    `json:"filename"`
	Source      string    `gorm:"index:idx_source" json:"source"`
	Label       string    `gorm:"index:idx_label" json:"label"`
	Probability float64   `json:"probability"`
	Threshold   float64   `json:"threshold"`
	Frames      int       `json:"frames"`
	DurationMs  int64     `json:"duration_ms"`
	CreatedAt   time.Time `gorm:"index:idx_created_at" json:"created_at"`
}

// Stats aggregates the whole ledger.
type Stats struct {
	Total          int64            `json:"total"`
	ByLabel        map[string]int64 `json:"by_label"`
	AvgProbability float64          `json:"avg_probability"`
	Last           *time.Time       `json:"last,omitempty"`
}

func NewDBClientWithPath(dbPath string) (*DBClient, error) {
	if err := utils.EnsureParentDir(dbPath); err != nil {
		return nil, fmt.Errorf("creating db dir: %w", err)
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	db, err := gorm.Open(sqlite.Open(dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}

	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&Prediction{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &DBClient{DB: db, db: sqlDB}, nil
}

func (c *DBClient) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Record inserts p, assigning an ID and timestamp when missing.
func (c *DBClient) Record(ctx context.Context, p *Prediction) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	if p.ID == "" {
		p.ID = utils.GenerateUUID()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if err := c.DB.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("inserting prediction: %w", err)
	}
	return nil
}

// Recent returns up to limit predictions, newest first.
func (c *DBClient) Recent(ctx context.Context, limit int) ([]Prediction, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	if limit <= 0 {
		limit = 20
	}
	var rows []Prediction
	err := c.DB.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("querying predictions: %w", err)
	}
	return rows, nil
}

// GetByID returns a single prediction or gorm.ErrRecordNotFound.
func (c *DBClient) GetByID(ctx context.Context, id string) (*Prediction, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	var p Prediction
	if err := c.DB.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *DBClient) Stats(ctx context.Context) (Stats, error) {
	if c == nil || c.DB == nil {
		return Stats{}, errors.New(errDBClientNil)
	}

	var groups []struct {
		Label   string
		Count   int64
		ProbSum float64
	}
	err := c.DB.WithContext(ctx).
		Model(&Prediction{}).
		Select("label, COUNT(*) AS count, COALESCE(SUM(probability), 0) AS prob_sum").
		Group("label").
		Scan(&groups).Error
	if err != nil {
		return Stats{}, fmt.Errorf("aggregating predictions: %w", err)
	}

	st := Stats{ByLabel: make(map[string]int64, len(groups))}
	var probSum float64
	for _, g := range groups {
		st.ByLabel[g.Label] = g.Count
		st.Total += g.Count
		probSum += g.ProbSum
	}
	if st.Total == 0 {
		return st, nil
	}
	st.AvgProbability = probSum / float64(st.Total)

	var last Prediction
	if err := c.DB.WithContext(ctx).Order("created_at DESC").First(&last).Error; err == nil {
		st.Last = &last.CreatedAt
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return Stats{}, fmt.Errorf("querying latest prediction: %w", err)
	}
	return st, nil
}

// DeleteBefore removes predictions older than cutoff and reports how many.
func (c *DBClient) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if c == nil || c.DB == nil {
		return 0, errors.New(errDBClientNil)
	}
	res := c.DB.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&Prediction{})
	if res.Error != nil {
		return 0, fmt.Errorf("pruning predictions: %w", res.Error)
	}
	return res.RowsAffected, nil
}
