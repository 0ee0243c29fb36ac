package models

import (
	"time"

	"gorm.io/datatypes"
)

// CheckStatus ist das dreistufige Ergebnis eines Checks.
type CheckStatus string

const (
	StatusSuccess CheckStatus = "success"
	StatusWarning CheckStatus = "warning"
	StatusError   CheckStatus = "error"
)

// Outcome ist die fachliche Antwort einer Quelle.
type Outcome string

const (
	OutcomeExists      Outcome = "exists"
	OutcomeNotFound    Outcome = "not_found"
	OutcomeAmbiguous   Outcome = "ambiguous"
	OutcomeRetracted   Outcome = "retracted"
	OutcomeUnavailable Outcome = "unavailable"
)

// Status bildet eine Quellenantwort auf den Check-Status ab.
func (o Outcome) Status() CheckStatus {
	switch o {
	case OutcomeExists:
		return StatusSuccess
	case OutcomeNotFound, OutcomeRetracted:
		return StatusError
	default:
		return StatusWarning
	}
}

// Check ist ein einzelner, unveränderlicher Verifikationsversuch gegen eine Quelle.
// Die ID steigt monoton und definiert die Reihenfolge der Historie.
type Check struct {
	ID        uint           `json:"id" gorm:"primaryKey;autoIncrement"`
	WorkID    string         `json:"work_id" gorm:"size:36;index;not null"`
	RunID     string         `json:"run_id" gorm:"size:36;index"`
	CheckType string         `json:"check_type" gorm:"not null"`
	Status    CheckStatus    `json:"status" gorm:"not null"`
	Outcome   Outcome        `json:"outcome"`
	Message   string         `json:"message"`
	Evidence  datatypes.JSON `json:"evidence,omitempty"`
	CheckedAt time.Time      `json:"checked_at"`
}
