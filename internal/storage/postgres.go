// Package storage owns the durable state of the pipeline: raw items, pain
// points, and job audit rows in Postgres, plus a small redis side store.
// Dedup relies on database-level uniqueness constraints, not application
// locks.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"painscope/internal/model"
)

// Store wraps the relational database.
type Store struct {
	db *gorm.DB
}

// Open connects to Postgres and migrates the schema.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return NewStore(db)
}

// NewStore wraps an existing gorm handle and migrates the schema. Tests use
// this with a sqlite dialector.
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&model.RawItem{}, &model.PainPoint{}, &model.Job{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// InsertRawItem persists item unless a row with the same (source, source_id)
// already exists. A duplicate is not an error; it reports inserted=false and
// leaves existing data untouched.
func (s *Store) InsertRawItem(ctx context.Context, item *model.RawItem) (inserted bool, err error) {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "source"}, {Name: "source_id"}},
			DoNothing: true,
		}).
		Create(item)
	if res.Error != nil {
		return false, fmt.Errorf("insert raw item: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// InsertPainPoint persists point unless one already exists for its raw item;
// a second attempt returns the existing record unchanged.
func (s *Store) InsertPainPoint(ctx context.Context, point *model.PainPoint) (created bool, existing *model.PainPoint, err error) {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "raw_item_id"}},
			DoNothing: true,
		}).
		Create(point)
	if res.Error != nil {
		return false, nil, fmt.Errorf("insert pain point: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return true, point, nil
	}
	prior, err := s.PainPointByRawItem(ctx, point.RawItemID)
	if err != nil {
		return false, nil, err
	}
	return false, prior, nil
}

// PainPointByRawItem returns the pain point owned by a raw item, or nil.
func (s *Store) PainPointByRawItem(ctx context.Context, rawItemID uint) (*model.PainPoint, error) {
	var p model.PainPoint
	err := s.db.WithContext(ctx).Where("raw_item_id = ?", rawItemID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load pain point: %w", err)
	}
	return &p, nil
}

// UncheckedSentiment returns up to limit raw items awaiting the sentiment
// gate, in scrape order so downstream behavior stays deterministic.
func (s *Store) UncheckedSentiment(ctx context.Context, limit int) ([]model.RawItem, error) {
	var items []model.RawItem
	err := s.db.WithContext(ctx).
		Where("sentiment_checked = ?", false).
		Order("scraped_at ASC, id ASC").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("load unchecked items: %w", err)
	}
	return items, nil
}

// AdmittedUnextracted returns up to limit gate-admitted items (negative at
// or above the confidence threshold) that have not been through extraction
// yet.
func (s *Store) AdmittedUnextracted(ctx context.Context, threshold float64, limit int) ([]model.RawItem, error) {
	var items []model.RawItem
	err := s.db.WithContext(ctx).
		Where("sentiment_checked = ? AND sentiment_label = ? AND sentiment_score >= ? AND extraction_checked = ?",
			true, model.SentimentNegative, threshold, false).
		Order("scraped_at ASC, id ASC").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("load admitted items: %w", err)
	}
	return items, nil
}

// MarkSentiment records the gate's verdict. Already-checked rows are left
// alone so a second pass never reclassifies an item.
func (s *Store) MarkSentiment(ctx context.Context, id uint, label string, score float64) error {
	err := s.db.WithContext(ctx).Model(&model.RawItem{}).
		Where("id = ? AND sentiment_checked = ?", id, false).
		Updates(map[string]any{
			"sentiment_checked": true,
			"sentiment_label":   label,
			"sentiment_score":   score,
		}).Error
	if err != nil {
		return fmt.Errorf("mark sentiment: %w", err)
	}
	return nil
}

// MarkExtracted flags a raw item as processed by the extraction stage.
func (s *Store) MarkExtracted(ctx context.Context, id uint) error {
	err := s.db.WithContext(ctx).Model(&model.RawItem{}).
		Where("id = ?", id).
		Update("extraction_checked", true).Error
	if err != nil {
		return fmt.Errorf("mark extracted: %w", err)
	}
	return nil
}

// RawItemBySourceID loads one raw item by its dedup key.
func (s *Store) RawItemBySourceID(ctx context.Context, source model.Source, sourceID string) (*model.RawItem, error) {
	var item model.RawItem
	err := s.db.WithContext(ctx).
		Where("source = ? AND source_id = ?", source, sourceID).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load raw item: %w", err)
	}
	return &item, nil
}

// PainPointFilter narrows ListPainPoints results. Zero values mean "any".
type PainPointFilter struct {
	Category string
	Severity string
	MinScore int
	Since    time.Time
}

// ListPainPoints returns one page of pain points ordered by created_at
// descending with id as a stable tiebreak, so pagination stays deterministic
// under concurrent inserts.
func (s *Store) ListPainPoints(ctx context.Context, f PainPointFilter, page, perPage int) ([]model.PainPoint, error) {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 50
	}
	q := s.db.WithContext(ctx).Model(&model.PainPoint{})
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	if f.Severity != "" {
		q = q.Where("severity = ?", f.Severity)
	}
	if f.MinScore > 0 {
		q = q.Where("opportunity_score >= ?", f.MinScore)
	}
	if !f.Since.IsZero() {
		q = q.Where("created_at >= ?", f.Since)
	}
	var points []model.PainPoint
	err := q.Order("created_at DESC, id DESC").
		Limit(perPage).
		Offset((page - 1) * perPage).
		Find(&points).Error
	if err != nil {
		return nil, fmt.Errorf("list pain points: %w", err)
	}
	return points, nil
}

// Stats aggregates pain-point counts for summary reporting.
type Stats struct {
	TotalRawItems   int64            `json:"total_raw_items"`
	TotalPainPoints int64            `json:"total_pain_points"`
	AvgOpportunity  float64          `json:"avg_opportunity_score"`
	ByCategory      map[string]int64 `json:"by_category"`
	BySeverity      map[string]int64 `json:"by_severity"`
}

type bucketCount struct {
	Bucket string
	Count  int64
}

// Stats returns aggregate counts by category and severity.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	out := &Stats{
		ByCategory: map[string]int64{},
		BySeverity: map[string]int64{},
	}
	db := s.db.WithContext(ctx)
	if err := db.Model(&model.RawItem{}).Count(&out.TotalRawItems).Error; err != nil {
		return nil, fmt.Errorf("stats raw count: %w", err)
	}
	if err := db.Model(&model.PainPoint{}).Count(&out.TotalPainPoints).Error; err != nil {
		return nil, fmt.Errorf("stats pain count: %w", err)
	}
	if out.TotalPainPoints > 0 {
		var avg *float64
		if err := db.Model(&model.PainPoint{}).Select("AVG(opportunity_score)").Scan(&avg).Error; err != nil {
			return nil, fmt.Errorf("stats avg: %w", err)
		}
		if avg != nil {
			out.AvgOpportunity = *avg
		}
	}
	var cats []bucketCount
	if err := db.Model(&model.PainPoint{}).
		Select("category AS bucket, COUNT(*) AS count").
		Group("category").Scan(&cats).Error; err != nil {
		return nil, fmt.Errorf("stats by category: %w", err)
	}
	for _, c := range cats {
		out.ByCategory[c.Bucket] = c.Count
	}
	var sevs []bucketCount
	if err := db.Model(&model.PainPoint{}).
		Select("severity AS bucket, COUNT(*) AS count").
		Group("severity").Scan(&sevs).Error; err != nil {
		return nil, fmt.Errorf("stats by severity: %w", err)
	}
	for _, sv := range sevs {
		out.BySeverity[sv.Bucket] = sv.Count
	}
	return out, nil
}

// CreateJob persists a new job row. Every run writes exactly one, including
// on failure paths.
func (s *Store) CreateJob(ctx context.Context, job *model.Job) error {
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// SaveJob persists updated job state. Only the owning run mutates a job.
func (s *Store) SaveJob(ctx context.Context, job *model.Job) error {
	if err := s.db.WithContext(ctx).Save(job).Error; err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	return nil
}

// GetJob loads one job by id, or nil when it does not exist.
func (s *Store) GetJob(ctx context.Context, id uint) (*model.Job, error) {
	var job model.Job
	err := s.db.WithContext(ctx).First(&job, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}
	return &job, nil
}
