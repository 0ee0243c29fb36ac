package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"refcheck/models"
)

var (
	// ErrNotFound wird zurückgegeben, wenn ein Werk nicht existiert.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateDOI wird beim Anlegen eines Werks mit bereits vorhandener DOI zurückgegeben.
	ErrDuplicateDOI = errors.New("work with this DOI already exists")
)

// Repository kapselt den Datenbankzugriff für Werke, Checks und Claim Cards.
type Repository struct {
	DB *gorm.DB
}

// NewRepository erstellt ein neues Repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{DB: db}
}

func wrapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}

func preloadAuthors(db *gorm.DB) *gorm.DB {
	return db.Order("position asc")
}

// CreateWork legt ein Werk samt Autoren an.
func (r *Repository) CreateWork(ctx context.Context, w *models.Work) error {
	if w.HasDOI() {
		if _, err := r.FindByDOI(ctx, *w.DOI); err == nil {
			return fmt.Errorf("%w: %s", ErrDuplicateDOI, *w.DOI)
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	if err := r.DB.WithContext(ctx).Create(w).Error; err != nil {
		// Zwei gleichzeitige Importe können beide an FindByDOI vorbeikommen; dann greift der Unique-Index.
		if errors.Is(err, gorm.ErrDuplicatedKey) && w.HasDOI() {
			return fmt.Errorf("%w: %s", ErrDuplicateDOI, *w.DOI)
		}
		return fmt.Errorf("create work: %w", err)
	}
	return nil
}

// FindBySignature sucht das älteste Werk mit derselben Titel/Autor/Jahr-Signatur.
func (r *Repository) FindBySignature(ctx context.Context, signature string) (*models.Work, error) {
	var w models.Work
	err := r.DB.WithContext(ctx).
		Where("signature = ?", signature).
		Order("created_at asc").
		First(&w).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &w, nil
}

// SetPDFLink hinterlegt den Link zum abgelegten PDF.
func (r *Repository) SetPDFLink(ctx context.Context, workID, link string) error {
	res := r.DB.WithContext(ctx).Model(&models.Work{}).Where("id = ?", workID).Update("pdf_link", link)
	if res.Error != nil {
		return fmt.Errorf("set pdf link: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: work %s", ErrNotFound, workID)
	}
	return nil
}

// GetWork lädt ein Werk mit Autoren in Reihenfolge.
func (r *Repository) GetWork(ctx context.Context, id string) (*models.Work, error) {
	var w models.Work
	err := r.DB.WithContext(ctx).
		Preload("Authors", preloadAuthors).
		First(&w, "id = ?", id).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &w, nil
}

// FindByDOI sucht ein Werk über die normalisierte DOI.
func (r *Repository) FindByDOI(ctx context.Context, doi string) (*models.Work, error) {
	var w models.Work
	err := r.DB.WithContext(ctx).
		Preload("Authors", preloadAuthors).
		Where("doi = ?", doi).
		First(&w).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &w, nil
}

// ListWorks liefert die Werke, neueste zuerst. limit <= 0 bedeutet ohne Begrenzung.
func (r *Repository) ListWorks(ctx context.Context, limit int) ([]models.Work, error) {
	query := r.DB.WithContext(ctx).
		Preload("Authors", preloadAuthors).
		Order("created_at desc").Order("id desc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var works []models.Work
	if err := query.Find(&works).Error; err != nil {
		return nil, err
	}
	return works, nil
}

// StaleWorks liefert Werke, die nie oder zuletzt vor cutoff verifiziert wurden.
func (r *Repository) StaleWorks(ctx context.Context, cutoff time.Time, limit int) ([]models.Work, error) {
	query := r.DB.WithContext(ctx).
		Preload("Authors", preloadAuthors).
		Where("last_verified_at IS NULL OR last_verified_at < ?", cutoff).
		Order("last_verified_at IS NOT NULL, last_verified_at asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var works []models.Work
	if err := query.Find(&works).Error; err != nil {
		return nil, err
	}
	return works, nil
}

// EachWorkBatch ruft fn für alle Werke in Batches der Größe size auf.
func (r *Repository) EachWorkBatch(ctx context.Context, size int, fn func([]models.Work) error) error {
	var batch []models.Work
	res := r.DB.WithContext(ctx).
		Preload("Authors", preloadAuthors).
		FindInBatches(&batch, size, func(tx *gorm.DB, _ int) error {
			return fn(batch)
		})
	return res.Error
}

// RecordVerification schreibt einen Check-Batch und optional die Konsensfelder in einer Transaktion.
// Ist update nil, bleibt das Werk unverändert.
func (r *Repository) RecordVerification(ctx context.Context, workID string, checks []models.Check, update *models.ConsensusUpdate) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(checks) > 0 {
			if err := tx.Create(&checks).Error; err != nil {
				return fmt.Errorf("insert checks: %w", err)
			}
		}
		if update == nil {
			return nil
		}

		fields := map[string]interface{}{
			"consensus_score":  update.Score,
			"last_verified_at": update.VerifiedAt,
		}
		if update.Retracted != nil {
			fields["retracted"] = *update.Retracted
		}
		if update.PeerReviewed != "" {
			fields["peer_reviewed"] = update.PeerReviewed
		}
		if update.CitationCount != nil {
			fields["citation_count"] = *update.CitationCount
		}
		res := tx.Model(&models.Work{}).Where("id = ?", workID).Updates(fields)
		if res.Error != nil {
			return fmt.Errorf("update consensus: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: work %s", ErrNotFound, workID)
		}
		return nil
	})
}

// ListChecks liefert die komplette Check-Historie eines Werks, älteste zuerst.
func (r *Repository) ListChecks(ctx context.Context, workID string) ([]models.Check, error) {
	var checks []models.Check
	err := r.DB.WithContext(ctx).
		Where("work_id = ?", workID).
		Order("id asc").
		Find(&checks).Error
	if err != nil {
		return nil, err
	}
	return checks, nil
}

// CreateCard speichert eine Claim Card.
func (r *Repository) CreateCard(ctx context.Context, card *models.ClaimCard) error {
	if err := r.DB.WithContext(ctx).Create(card).Error; err != nil {
		return fmt.Errorf("create claim card: %w", err)
	}
	return nil
}

// ListCards liefert alle Claim Cards eines Werks, älteste zuerst.
func (r *Repository) ListCards(ctx context.Context, workID string) ([]models.ClaimCard, error) {
	var cards []models.ClaimCard
	err := r.DB.WithContext(ctx).
		Where("work_id = ?", workID).
		Order("created_at asc").
		Find(&cards).Error
	if err != nil {
		return nil, err
	}
	return cards, nil
}
