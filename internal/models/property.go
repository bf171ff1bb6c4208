package models

import "time"

// PropertyEntry is one named value of a property record. A record is the set of
// entries sharing (ObjectType, ObjectID); the unique index keeps at most one
// entry per name.
type PropertyEntry struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ObjectType string    `gorm:"not null;size:64;uniqueIndex:idx_property_scope,priority:1;index:idx_property_lookup,priority:1" json:"object_type"`
	ObjectID   string    `gorm:"not null;size:128;uniqueIndex:idx_property_scope,priority:2" json:"object_id"`
	Name       string    `gorm:"not null;size:128;uniqueIndex:idx_property_scope,priority:3;index:idx_property_lookup,priority:2" json:"name"`
	Value      string    `gorm:"type:text;index:idx_property_lookup,priority:3" json:"value"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Target is a named distribution group articles are published into.
// Permissions lists the groups allowed to publish into it; empty means everyone.
type Target struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	Name        string      `gorm:"uniqueIndex;not null;size:255" json:"name"`
	Label       string      `gorm:"size:255" json:"label"`
	Description string      `gorm:"type:text" json:"description"`
	Permissions StringArray `gorm:"type:text" json:"permissions"`
	CreatedBy   string      `gorm:"size:255" json:"created_by"`
	CreatedAt   time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

// ArticleTarget links an article to a target.
type ArticleTarget struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ArticleID  string    `gorm:"not null;size:64;uniqueIndex:idx_article_target,priority:1" json:"article_id"`
	TargetName string    `gorm:"not null;size:255;uniqueIndex:idx_article_target,priority:2;index" json:"target_name"`
	Displayed  bool      `gorm:"not null" json:"displayed"`
	LinkedBy   string    `gorm:"size:255" json:"linked_by"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}
