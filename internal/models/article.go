package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/ifuryst/quill/internal/publication"
)

// StringArray is stored as a JSON array in a text column so it works on both
// postgres and sqlite.
type StringArray []string

// Scan implements the sql.Scanner interface
func (s *StringArray) Scan(value interface{}) error {
	if value == nil {
		*s = StringArray{}
		return nil
	}

	switch v := value.(type) {
	case string:
		return s.Scan([]byte(v))
	case []byte:
		trimmed := strings.TrimSpace(string(v))
		if trimmed == "" || trimmed == "{}" || trimmed == "[]" {
			*s = StringArray{}
			return nil
		}
		var arr []string
		if err := json.Unmarshal(v, &arr); err == nil {
			*s = arr
			return nil
		}
		// Legacy postgres array literal: {value1,value2}
		parts := strings.Split(strings.Trim(trimmed, "{}"), ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			if part = strings.Trim(strings.TrimSpace(part), "\""); part != "" {
				result = append(result, part)
			}
		}
		*s = result
		return nil
	default:
		return fmt.Errorf("cannot scan %T into StringArray", value)
	}
}

// Value implements the driver.Valuer interface
func (s StringArray) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal([]string(s))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Article is one language variant of an editorial article. A draft that edits
// an existing article in place points at it through TargetPageID.
type Article struct {
	ID               string            `gorm:"primaryKey;size:64" json:"id"`
	Lang             string            `gorm:"primaryKey;size:16;default:''" json:"lang"`
	TargetPageID     string            `gorm:"size:64;index" json:"target_page_id,omitempty"`
	SpaceID          string            `gorm:"size:64;index" json:"space_id"`
	Name             string            `gorm:"size:255" json:"name"`
	Title            string            `gorm:"not null;size:500" json:"title"`
	Summary          string            `gorm:"type:text" json:"summary"`
	Body             string            `gorm:"type:text" json:"body"`
	Author           string            `gorm:"size:255;index" json:"author"`
	Updater          string            `gorm:"size:255" json:"updater"`
	PublicationState publication.State `gorm:"size:32;index;not null" json:"publication_state"`
	PublicationDate  *time.Time        `json:"publication_date"`
	PublishDate      *time.Time        `json:"publish_date"`
	SchedulePostDate *time.Time        `json:"schedule_post_date"`
	UnpublishDate    *time.Time        `json:"unpublish_date"`
	TimeZoneID       string            `gorm:"size:64" json:"time_zone_id"`
	Audience         string            `gorm:"size:32" json:"audience"`
	Targets          StringArray       `gorm:"type:text" json:"targets"`
	IllustrationURL  string            `gorm:"size:1000" json:"illustration_url"`
	URL              string            `gorm:"size:1000" json:"url"`
	Version          int               `gorm:"not null;default:1" json:"version"`
	CreatedAt        time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt        gorm.DeletedAt    `gorm:"index" json:"deleted_at"`
}

func (a *Article) Ref() publication.ArticleRef {
	return publication.ArticleRef{ID: a.ID, Lang: a.Lang}
}

// IsLatestDraft reports whether the article is an edit-in-place draft of another article.
func (a *Article) IsLatestDraft() bool {
	return a.TargetPageID != ""
}

// ScheduleInfo is present only while an article is STAGED.
type ScheduleInfo struct {
	PostDate   time.Time
	TimeZoneID string
}

func (a *Article) Schedule() *ScheduleInfo {
	if a.PublicationState != publication.StateStaged || a.SchedulePostDate == nil {
		return nil
	}
	return &ScheduleInfo{PostDate: *a.SchedulePostDate, TimeZoneID: a.TimeZoneID}
}

// Snapshot is the view of the article the state machine works on.
func (a *Article) Snapshot() publication.Snapshot {
	return publication.Snapshot{
		State:            a.PublicationState,
		UnpublishPending: a.PublicationState == publication.StatePublished && a.UnpublishDate != nil,
	}
}

// Clone returns a copy safe to mutate independently.
func (a *Article) Clone() *Article {
	c := *a
	c.Targets = append(StringArray(nil), a.Targets...)
	c.PublicationDate = cloneTime(a.PublicationDate)
	c.PublishDate = cloneTime(a.PublishDate)
	c.SchedulePostDate = cloneTime(a.SchedulePostDate)
	c.UnpublishDate = cloneTime(a.UnpublishDate)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
