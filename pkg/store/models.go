package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence. The plan, evaluation and metadata
// documents are stored as opaque JSON blobs, not normalized into columns.
type LessonModel struct {
	ID                     string `gorm:"primaryKey"`
	OwnerID                string `gorm:"not null;index"`
	Title                  string
	Topic                  string         `gorm:"not null"`
	Grade                  string         `gorm:"not null"`
	Duration               int            `gorm:"not null"`
	Plan                   datatypes.JSON `gorm:"type:jsonb;not null"`
	AgentThoughts          datatypes.JSON `gorm:"type:jsonb"`
	Evaluation             datatypes.JSON `gorm:"type:jsonb"`
	GenerationMeta         datatypes.JSON `gorm:"type:jsonb"`
	LatestRevisionPlan     datatypes.JSON `gorm:"type:jsonb"`
	LatestRevisionFeedback string
	RevisionCount          int `gorm:"not null;default:0"`
	UserRating             *bool
	CreatedAt              time.Time `gorm:"not null"`
	UpdatedAt              time.Time `gorm:"not null"`
}

type RevisionModel struct {
	ID             string         `gorm:"primaryKey"`
	LessonID       string         `gorm:"not null;uniqueIndex:idx_lesson_revision"`
	RevisionNumber int            `gorm:"not null;uniqueIndex:idx_lesson_revision"`
	Plan           datatypes.JSON `gorm:"type:jsonb;not null"`
	Feedback       string         `gorm:"not null"`
	Metadata       datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt      time.Time      `gorm:"not null;index"`
}
