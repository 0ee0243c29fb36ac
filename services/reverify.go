package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"refcheck/config"
	"refcheck/models"
)

// StaleLister liefert Werke, deren letzte Verifikation vor cutoff liegt.
type StaleLister interface {
	StaleWorks(ctx context.Context, cutoff time.Time, limit int) ([]models.Work, error)
}

// Verifier führt einen Verifikationslauf für ein geladenes Werk aus.
type Verifier interface {
	VerifyWork(ctx context.Context, w *models.Work) (*VerificationReport, error)
	InFlight(workID string) bool
}

// Reverifier prüft veraltete Werke im Cron-Job nacheinander erneut.
type Reverifier struct {
	Works     StaleLister
	Engine    Verifier
	After     time.Duration
	BatchSize int
	Logger    *zap.Logger
	now       func() time.Time

	mu sync.Mutex
	// deferred hält Werke zurück, deren letzter Lauf keinen Score ergab
	// (keine passende Quelle oder alle Quellen nicht erreichbar), bis After vergangen ist.
	deferred map[string]time.Time
}

func NewReverifier(cfg *config.Config, works StaleLister, engine Verifier, logger *zap.Logger) *Reverifier {
	return &Reverifier{
		Works:     works,
		Engine:    engine,
		After:     cfg.ReverifyAfter,
		BatchSize: cfg.ReverifyBatchSize,
		Logger:    logger,
		deferred:  map[string]time.Time{},
	}
}

// RunOnce verifiziert bis zu BatchSize veraltete Werke. Werke mit laufender
// Verifikation werden übersprungen, Fehler einzelner Werke brechen den Lauf nicht ab.
func (r *Reverifier) RunOnce(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if r.now != nil {
		now = r.now()
	}
	if r.deferred == nil {
		r.deferred = map[string]time.Time{}
	}
	for id, until := range r.deferred {
		if !now.Before(until) {
			delete(r.deferred, id)
		}
	}

	limit := 0
	if r.BatchSize > 0 {
		limit = r.BatchSize + len(r.deferred)
	}
	works, err := r.Works.StaleWorks(ctx, now.Add(-r.After), limit)
	if err != nil {
		return 0, err
	}

	verified, attempted := 0, 0
	for i := range works {
		if ctx.Err() != nil {
			return verified, ctx.Err()
		}
		w := &works[i]
		if _, ok := r.deferred[w.ID]; ok {
			continue
		}
		if r.BatchSize > 0 && attempted == r.BatchSize {
			break
		}
		attempted++
		log := r.Logger.With(zap.String("work_id", w.ID))
		if r.Engine.InFlight(w.ID) {
			log.Debug("Verifikation läuft bereits, überspringe Werk")
			continue
		}
		report, err := r.Engine.VerifyWork(ctx, w)
		if err != nil {
			switch {
			case errors.Is(err, ErrVerificationInProgress):
				log.Debug("Verifikation läuft bereits, überspringe Werk")
			case IsValidation(err):
				log.Warn("Werk kann nicht verifiziert werden", zap.Error(err))
				r.deferred[w.ID] = now.Add(r.After)
			default:
				log.Error("Re-verification failed", zap.Error(err))
			}
			continue
		}
		if !report.ScoreUpdated {
			r.deferred[w.ID] = now.Add(r.After)
		}
		verified++
	}
	return verified, nil
}
