package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ClaimCard hält eine Aussage aus einem Werk samt Kontext und optionalen Seitenangaben fest.
type ClaimCard struct {
	ID          string    `json:"id" gorm:"primaryKey;size:36"`
	WorkID      string    `json:"work_id" gorm:"size:36;index;not null"`
	ClaimText   string    `json:"claim_text" gorm:"type:text;not null"`
	Context     string    `json:"context" gorm:"type:text;not null"`
	PageNumbers *string   `json:"page_numbers,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func (c *ClaimCard) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// ReadingScore ist die abgeleitete Lese-Evidenz eines Werks; wird nicht gespeichert.
type ReadingScore struct {
	WorkID        string `json:"work_id"`
	Score         int    `json:"score"`
	PageCoverage  *int   `json:"page_coverage,omitempty"`
	CardCount     int    `json:"card_count"`
	EvidenceCount int    `json:"evidence_count"`
	PagesCovered  int    `json:"pages_covered"`
}
