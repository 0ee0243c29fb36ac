package services

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"refcheck/models"
)

const maxClaimRunes = 10000

// CardStore speichert Claim Cards zu bestehenden Werken.
type CardStore interface {
	GetWork(ctx context.Context, id string) (*models.Work, error)
	CreateCard(ctx context.Context, card *models.ClaimCard) error
	ListCards(ctx context.Context, workID string) ([]models.ClaimCard, error)
}

// CardInput ist der Request-Body zum Anlegen einer Claim Card.
type CardInput struct {
	ClaimText   string  `json:"claim_text"`
	Context     string  `json:"context"`
	PageNumbers *string `json:"page_numbers"`
}

// CardService verwaltet Claim Cards und den daraus abgeleiteten Reading-Score.
type CardService struct {
	Store  CardStore
	Scorer ReadingScorer
	Logger *zap.Logger
}

func NewCardService(store CardStore, logger *zap.Logger) *CardService {
	return &CardService{Store: store, Logger: logger}
}

// CreateCard prüft die Eingabe und legt die Karte an. Das Werk muss existieren.
func (s *CardService) CreateCard(ctx context.Context, workID string, in CardInput) (*models.ClaimCard, error) {
	claim := strings.TrimSpace(in.ClaimText)
	if claim == "" {
		return nil, invalid("claim_text", "must not be empty")
	}
	if utf8.RuneCountInString(claim) > maxClaimRunes {
		return nil, invalid("claim_text", "must not exceed %d characters", maxClaimRunes)
	}
	excerpt := strings.TrimSpace(in.Context)
	if excerpt == "" {
		return nil, invalid("context", "must not be empty")
	}
	if utf8.RuneCountInString(excerpt) > maxClaimRunes {
		return nil, invalid("context", "must not exceed %d characters", maxClaimRunes)
	}

	if _, err := s.Store.GetWork(ctx, workID); err != nil {
		return nil, err
	}

	card := &models.ClaimCard{
		WorkID:      workID,
		ClaimText:   claim,
		Context:     excerpt,
		PageNumbers: models.StrPtr(models.Str(in.PageNumbers)),
	}
	if err := s.Store.CreateCard(ctx, card); err != nil {
		return nil, err
	}
	s.Logger.Debug("Claim Card angelegt", zap.String("work_id", workID), zap.String("card_id", card.ID))
	return card, nil
}

// ListCards liefert die Karten eines existierenden Werks, älteste zuerst.
func (s *CardService) ListCards(ctx context.Context, workID string) ([]models.ClaimCard, error) {
	if _, err := s.Store.GetWork(ctx, workID); err != nil {
		return nil, err
	}
	return s.Store.ListCards(ctx, workID)
}

// ReadingScore berechnet den Reading-Score aus den gespeicherten Karten.
func (s *CardService) ReadingScore(ctx context.Context, workID string) (*models.ReadingScore, error) {
	w, err := s.Store.GetWork(ctx, workID)
	if err != nil {
		return nil, err
	}
	cards, err := s.Store.ListCards(ctx, workID)
	if err != nil {
		return nil, err
	}
	rs := s.Scorer.Score(w, cards)
	return &rs, nil
}
