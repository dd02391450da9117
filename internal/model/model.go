package model

import (
	"fmt"
	"strings"
	"time"
)

// Source identifies the provider a RawItem was scraped from.
type Source string

const (
	SourceRedditPost    Source = "reddit_post"
	SourceRedditComment Source = "reddit_comment"
	SourceTwitter       Source = "twitter"
	SourceReview        Source = "review"
)

// SortMode is a Reddit listing sort order.
type SortMode string

const (
	SortHot           SortMode = "hot"
	SortNew           SortMode = "new"
	SortTop           SortMode = "top"
	SortControversial SortMode = "controversial"
	SortRising        SortMode = "rising"
)

// ParseSortMode validates a sort mode coming from the boundary.
func ParseSortMode(s string) (SortMode, error) {
	switch SortMode(strings.ToLower(strings.TrimSpace(s))) {
	case SortHot:
		return SortHot, nil
	case SortNew:
		return SortNew, nil
	case SortTop:
		return SortTop, nil
	case SortControversial:
		return SortControversial, nil
	case SortRising:
		return SortRising, nil
	}
	return "", fmt.Errorf("unknown sort mode %q", s)
}

// TimeWindow restricts top/controversial listings.
type TimeWindow string

const (
	WindowHour  TimeWindow = "hour"
	WindowDay   TimeWindow = "day"
	WindowWeek  TimeWindow = "week"
	WindowMonth TimeWindow = "month"
	WindowYear  TimeWindow = "year"
	WindowAll   TimeWindow = "all"
)

// ParseTimeWindow validates a time window. Empty is allowed; it only applies
// to top/controversial sorts.
func ParseTimeWindow(s string) (TimeWindow, error) {
	if strings.TrimSpace(s) == "" {
		return "", nil
	}
	switch TimeWindow(strings.ToLower(strings.TrimSpace(s))) {
	case WindowHour:
		return WindowHour, nil
	case WindowDay:
		return WindowDay, nil
	case WindowWeek:
		return WindowWeek, nil
	case WindowMonth:
		return WindowMonth, nil
	case WindowYear:
		return WindowYear, nil
	case WindowAll:
		return WindowAll, nil
	}
	return "", fmt.Errorf("unknown time window %q", s)
}

// Sentiment labels produced by the classifier.
const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
)

// Category is the closed pain-point category enum.
type Category string

const (
	CategoryPricing     Category = "pricing"
	CategoryUsability   Category = "usability"
	CategoryFeatures    Category = "features"
	CategorySupport     Category = "support"
	CategoryPerformance Category = "performance"
	CategoryBugs        Category = "bugs"
	CategoryIntegration Category = "integration"
	CategoryOther       Category = "other"
)

// ValidCategory reports whether c is one of the closed enum values.
func ValidCategory(c string) bool {
	switch Category(c) {
	case CategoryPricing, CategoryUsability, CategoryFeatures, CategorySupport,
		CategoryPerformance, CategoryBugs, CategoryIntegration, CategoryOther:
		return true
	}
	return false
}

// Severity is the closed pain-point severity enum.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// ValidSeverity reports whether s is one of the closed enum values.
func ValidSeverity(s string) bool {
	switch Severity(s) {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// RawItem is one scraped unit (post or comment) before extraction.
// (source, source_id) is unique at the database level; re-ingestion of the
// same provider item never creates a second row.
type RawItem struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	Source         Source         `gorm:"size:32;not null;uniqueIndex:idx_source_source_id" json:"source"`
	SourceID       string         `gorm:"size:255;not null;uniqueIndex:idx_source_source_id" json:"source_id"`
	Content        string         `gorm:"type:text;not null" json:"content"`
	Author         string         `gorm:"size:255" json:"author"`
	URL            string         `gorm:"type:text" json:"url"`
	Community      string         `gorm:"size:255;index" json:"community"`
	UpstreamScore  int            `json:"upstream_score"`
	SourceMetadata map[string]any `gorm:"serializer:json" json:"source_metadata,omitempty"`
	ScrapedAt      time.Time      `gorm:"index" json:"scraped_at"`

	SentimentChecked  bool    `gorm:"default:false;index" json:"sentiment_checked"`
	SentimentLabel    string  `gorm:"size:16" json:"sentiment_label,omitempty"`
	SentimentScore    float64 `json:"sentiment_score,omitempty"`
	ExtractionChecked bool    `gorm:"default:false;index" json:"extraction_checked"`
}

// PainPoint is a structured complaint derived from exactly one RawItem.
// Immutable after creation; at most one per raw_item_id.
type PainPoint struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	RawItemID        uint      `gorm:"not null;uniqueIndex" json:"raw_item_id"`
	ProblemStatement string    `gorm:"type:text;not null" json:"problem_statement"`
	Category         Category  `gorm:"size:32;index" json:"category"`
	Severity         Severity  `gorm:"size:16;index" json:"severity"`
	OpportunityScore int       `gorm:"index" json:"opportunity_score"`
	Tags             []string  `gorm:"serializer:json" json:"tags"`
	Context          string    `gorm:"type:text" json:"context"`
	CreatedAt        time.Time `gorm:"index" json:"created_at"`
}

// JobType identifies a pipeline stage run.
type JobType string

const (
	JobIngest     JobType = "ingest"
	JobSentiment  JobType = "sentiment"
	JobExtraction JobType = "extraction"
)

// JobStatus is the job state machine: PENDING -> RUNNING -> SUCCEEDED|FAILED.
// Terminal states are never resumed in place; a retry is a new Job.
type JobStatus string

const (
	JobPending   JobStatus = "PENDING"
	JobRunning   JobStatus = "RUNNING"
	JobSucceeded JobStatus = "SUCCEEDED"
	JobFailed    JobStatus = "FAILED"
)

// Job is the audit record of one pipeline stage run.
type Job struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	JobType    JobType        `gorm:"size:32;not null;index" json:"job_type"`
	Parameters map[string]any `gorm:"serializer:json" json:"parameters,omitempty"`
	Status     JobStatus      `gorm:"size:16;not null;index" json:"status"`

	ItemsSeen             int `json:"items_seen"`
	ItemsSkippedDuplicate int `json:"items_skipped_duplicate"`
	ItemsFailed           int `json:"items_failed"`
	ItemsAdmitted         int `json:"items_admitted"`
	PainPointsExtracted   int `json:"pain_points_extracted"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ErrorDetail string     `gorm:"type:text" json:"error_detail,omitempty"`
}

// CommunityMetadata describes a community for ingestion discovery. It is a
// pure read from the provider and never persisted to the relational store.
type CommunityMetadata struct {
	Name        string    `json:"name"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Subscribers int       `json:"subscribers"`
	ActiveUsers int       `json:"active_users"`
	CreatedAt   time.Time `json:"created_at"`
	NSFW        bool      `json:"nsfw"`
	URL         string    `json:"url"`
	Flairs      []Flair   `json:"flairs,omitempty"`
	Rules       []Rule    `json:"rules,omitempty"`
}

// Flair is a link flair available in a community.
type Flair struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Rule is a community posting rule.
type Rule struct {
	ShortName   string `json:"short_name"`
	Description string `json:"description"`
	Kind        string `json:"kind"`
}
