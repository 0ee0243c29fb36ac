package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PeerReviewStatus ist der dreiwertige Begutachtungsstatus eines Werks.
type PeerReviewStatus string

const (
	PeerReviewed      PeerReviewStatus = "reviewed"
	NotPeerReviewed   PeerReviewStatus = "not_reviewed"
	PeerReviewUnknown PeerReviewStatus = "unknown"
)

// Work repräsentiert einen bibliographischen Eintrag (Artikel, Buch, Webseite, ...).
type Work struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
	UpdatedAt time.Time `json:"updated_at"`

	// CSL-Typ, z.B. "article-journal", "book", "webpage"
	Type    string   `json:"type" gorm:"not null;default:'article'"`
	Title   string   `json:"title" gorm:"not null"`
	Authors []Author `json:"authors" gorm:"constraint:OnDelete:CASCADE"`

	IssuedYear     *int    `json:"issued_year,omitempty"`
	ContainerTitle *string `json:"container_title,omitempty"`
	Volume         *string `json:"volume,omitempty"`
	Issue          *string `json:"issue,omitempty"`
	Page           *string `json:"page,omitempty"`
	Publisher      *string `json:"publisher,omitempty"`

	DOI     *string `json:"doi,omitempty" gorm:"column:doi;uniqueIndex"`
	URL     *string `json:"url,omitempty"`
	PMID    *string `json:"pmid,omitempty" gorm:"column:pmid;index"`
	ArxivID *string `json:"arxiv_id,omitempty" gorm:"index"`

	// Hash aus normalisiertem Titel, Erstautor und Jahr zur Dublettenerkennung ohne DOI
	Signature *string `json:"-" gorm:"size:32;index"`

	PageCount *int    `json:"page_count,omitempty"`
	PDFLink   *string `json:"pdf_link,omitempty"`
	Source    string  `json:"source" gorm:"default:'csl'"`

	// Konsensfelder, nur von der Verifikation geschrieben
	PeerReviewed   PeerReviewStatus `json:"peer_reviewed" gorm:"default:'unknown'"`
	Retracted      bool             `json:"retracted"`
	ConsensusScore *int             `json:"consensus_score,omitempty"`
	CitationCount  *int             `json:"citation_count,omitempty"`
	LastVerifiedAt *time.Time       `json:"last_verified_at,omitempty" gorm:"index"`

	RawCSL datatypes.JSON `json:"-" gorm:"column:raw_csl"`
}

// Author ist ein Autor eines Werks; Position bestimmt die Reihenfolge.
type Author struct {
	ID       uint   `json:"-" gorm:"primaryKey"`
	WorkID   string `json:"-" gorm:"size:36;index"`
	Position int    `json:"-"`
	Family   string `json:"family" gorm:"not null"`
	Given    string `json:"given,omitempty"`
}

// BeforeCreate vergibt eine UUID, falls noch keine ID gesetzt ist.
func (w *Work) BeforeCreate(tx *gorm.DB) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.PeerReviewed == "" {
		w.PeerReviewed = PeerReviewUnknown
	}
	for i := range w.Authors {
		w.Authors[i].Position = i
	}
	return nil
}

// HasDOI meldet, ob eine nicht-leere DOI vorhanden ist.
func (w *Work) HasDOI() bool {
	return w.DOI != nil && strings.TrimSpace(*w.DOI) != ""
}

// HasURL meldet, ob eine nicht-leere URL vorhanden ist.
func (w *Work) HasURL() bool {
	return w.URL != nil && strings.TrimSpace(*w.URL) != ""
}

// FirstAuthorFamily liefert den Nachnamen des Erstautors oder "".
func (w *Work) FirstAuthorFamily() string {
	if len(w.Authors) == 0 {
		return ""
	}
	return w.Authors[0].Family
}

// Str ist ein kleiner Helfer für optionale String-Felder.
func Str(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

// StrPtr liefert nil für leere Strings.
func StrPtr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// IntPtr liefert einen Zeiger auf i.
func IntPtr(i int) *int {
	return &i
}

// ConsensusUpdate bündelt die Werkfelder, die zusammen mit einem Check-Batch geschrieben werden.
// Nil-Felder bleiben unverändert.
type ConsensusUpdate struct {
	Score         int
	Retracted     *bool
	PeerReviewed  PeerReviewStatus
	CitationCount *int
	VerifiedAt    time.Time
}
