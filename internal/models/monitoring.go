package models

import (
	"time"
)

// ErrorLog records a failure worth an operator's attention, e.g. a scheduled
// transition the reconciliation tick could not apply.
type ErrorLog struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Level       string     `gorm:"size:20;not null;index" json:"level"`   // ERROR, WARN, INFO
	Source      string     `gorm:"size:100;not null;index" json:"source"` // scheduler, publication, events
	ArticleID   string     `gorm:"size:128;index" json:"article_id"`
	Action      string     `gorm:"size:64" json:"action"`
	Title       string     `gorm:"size:500;not null" json:"title"`
	Message     string     `gorm:"type:text;not null" json:"message"`
	StackTrace  string     `gorm:"type:text" json:"stack_trace"`
	Context     string     `gorm:"type:text" json:"context"`
	Occurrences int        `gorm:"not null;default:1" json:"occurrences"`
	Resolved    bool       `gorm:"default:false;index" json:"resolved"`
	ResolvedAt  *time.Time `json:"resolved_at"`
	CreatedAt   time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// MetricsSample is one sampled value.
type MetricsSample struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	MetricName string    `gorm:"size:100;not null;index" json:"metric_name"`
	MetricType string    `gorm:"size:50;not null" json:"metric_type"` // gauge, counter
	Value      float64   `gorm:"not null" json:"value"`
	Tags       string    `gorm:"type:text" json:"tags"`
	Timestamp  time.Time `gorm:"not null;index" json:"timestamp"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// PublicationSummary is a single-row snapshot for the dashboard.
type PublicationSummary struct {
	ID                     uint       `gorm:"primaryKey" json:"id"`
	DraftCount             int        `gorm:"default:0" json:"draft_count"`
	StagedCount            int        `gorm:"default:0" json:"staged_count"`
	PublishedCount         int        `gorm:"default:0" json:"published_count"`
	UnpublishedCount       int        `gorm:"default:0" json:"unpublished_count"`
	PendingUnpublishCount  int        `gorm:"default:0" json:"pending_unpublish_count"`
	PublishedToday         int        `gorm:"default:0" json:"published_today"`
	FailedTransitionsToday int        `gorm:"default:0" json:"failed_transitions_today"`
	UnresolvedErrorsCount  int        `gorm:"default:0" json:"unresolved_errors_count"`
	LastTickTime           *time.Time `json:"last_tick_time"`
	LastPublishTime        *time.Time `json:"last_publish_time"`
	UpdatedAt              time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
