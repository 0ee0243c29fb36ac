package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"refcheck/config"
	"refcheck/models"
	"refcheck/providers"
)

var errSourceTimedOut = errors.New("timed out before the verification deadline")

// WorkStore ist der Teil des Repositories, den die Verifikation braucht.
type WorkStore interface {
	GetWork(ctx context.Context, id string) (*models.Work, error)
	RecordVerification(ctx context.Context, workID string, checks []models.Check, update *models.ConsensusUpdate) error
}

// ConsensusPolicy enthält die Gewichte für die Konsensberechnung.
type ConsensusPolicy struct {
	Baseline          int
	SuccessWeight     int
	NotFoundPenalty   int
	RetractionPenalty int
	RetractionCeiling int
}

// PolicyFromConfig übernimmt die CONSENSUS_*-Werte.
func PolicyFromConfig(cfg *config.Config) ConsensusPolicy {
	return ConsensusPolicy{
		Baseline:          cfg.ConsensusBaseline,
		SuccessWeight:     cfg.ConsensusSuccessWeight,
		NotFoundPenalty:   cfg.ConsensusNotFoundPenalty,
		RetractionPenalty: cfg.ConsensusRetractionPenalty,
		RetractionCeiling: cfg.ConsensusRetractionCeiling,
	}
}

// DefaultPolicy: Basis 50, +10 je Erfolg, -30 je Nichtfund, -100 und Deckel 15 bei Retraktion.
var DefaultPolicy = ConsensusPolicy{
	Baseline:          50,
	SuccessWeight:     10,
	NotFoundPenalty:   30,
	RetractionPenalty: 100,
	RetractionCeiling: 15,
}

// Score berechnet den Konsens aus den Antworten eines Laufs. Nicht erreichbare Quellen
// zählen nicht; ok ist false, wenn keine einzige Antwort verwertbar war.
func (p ConsensusPolicy) Score(outcomes []models.Outcome) (score int, ok bool) {
	score = p.Baseline
	retracted := false
	for _, o := range outcomes {
		switch o {
		case models.OutcomeUnavailable, "":
			continue
		case models.OutcomeExists:
			score += p.SuccessWeight
		case models.OutcomeNotFound:
			score -= p.NotFoundPenalty
		case models.OutcomeRetracted:
			score -= p.RetractionPenalty
			retracted = true
		}
		ok = true
	}
	if !ok {
		return 0, false
	}
	score = clamp(score, 0, 100)
	if retracted && score > p.RetractionCeiling {
		score = clamp(p.RetractionCeiling, 0, 100)
	}
	return score, true
}

// Cap begrenzt einen Score für zurückgezogene Werke auf die RetractionCeiling.
func (p ConsensusPolicy) Cap(score int) int {
	ceiling := clamp(p.RetractionCeiling, 0, 100)
	if score > ceiling {
		return ceiling
	}
	return score
}

// ConsensusLabel ordnet einen Score einer groben Vertrauensstufe zu.
func ConsensusLabel(score int) string {
	switch {
	case score >= 80:
		return "very_high"
	case score >= 65:
		return "high"
	case score >= 50:
		return "moderate"
	case score >= 35:
		return "fairly_low"
	default:
		return "low"
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// VerificationReport ist das Ergebnis eines Verifikationslaufs.
type VerificationReport struct {
	WorkID         string                  `json:"work_id"`
	RunID          string                  `json:"run_id"`
	Checks         []models.Check          `json:"checks"`
	ConsensusScore *int                    `json:"consensus_score"`
	ConsensusLabel string                  `json:"consensus_label,omitempty"`
	ScoreUpdated   bool                    `json:"score_updated"`
	Retracted      bool                    `json:"retracted"`
	PeerReviewed   models.PeerReviewStatus `json:"peer_reviewed"`
}

// VerificationEngine fragt alle anwendbaren Quellen parallel ab und reduziert die Antworten
// auf einen Konsens. Pro Werk läuft höchstens ein Lauf gleichzeitig.
type VerificationEngine struct {
	Store         WorkStore
	Sources       []providers.Source
	Policy        ConsensusPolicy
	Timeout       time.Duration
	SourceTimeout time.Duration
	Logger        *zap.Logger

	now      func() time.Time
	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewVerificationEngine erstellt eine Engine mit den Zeitlimits und Gewichten aus cfg.
func NewVerificationEngine(cfg *config.Config, store WorkStore, sources []providers.Source, logger *zap.Logger) *VerificationEngine {
	return &VerificationEngine{
		Store:         store,
		Sources:       sources,
		Policy:        PolicyFromConfig(cfg),
		Timeout:       cfg.VerifyTimeout,
		SourceTimeout: cfg.SourceTimeout,
		Logger:        logger,
		now:           time.Now,
		inFlight:      make(map[string]struct{}),
	}
}

func (e *VerificationEngine) acquire(workID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inFlight == nil {
		e.inFlight = make(map[string]struct{})
	}
	if _, busy := e.inFlight[workID]; busy {
		return false
	}
	e.inFlight[workID] = struct{}{}
	return true
}

func (e *VerificationEngine) release(workID string) {
	e.mu.Lock()
	delete(e.inFlight, workID)
	e.mu.Unlock()
}

func (e *VerificationEngine) clock() time.Time {
	if e.now == nil {
		return time.Now()
	}
	return e.now()
}

// InFlight meldet, ob für das Werk gerade ein Lauf aktiv ist.
func (e *VerificationEngine) InFlight(workID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, busy := e.inFlight[workID]
	return busy
}

// Verify lädt das Werk und führt einen Verifikationslauf aus.
func (e *VerificationEngine) Verify(ctx context.Context, workID string) (*VerificationReport, error) {
	if !e.acquire(workID) {
		return nil, ErrVerificationInProgress
	}
	defer e.release(workID)

	w, err := e.Store.GetWork(ctx, workID)
	if err != nil {
		return nil, err
	}
	return e.run(ctx, w)
}

// VerifyWork führt einen Lauf für ein bereits geladenes Werk aus.
func (e *VerificationEngine) VerifyWork(ctx context.Context, w *models.Work) (*VerificationReport, error) {
	if !e.acquire(w.ID) {
		return nil, ErrVerificationInProgress
	}
	defer e.release(w.ID)
	return e.run(ctx, w)
}

type sourceResult struct {
	finding providers.Finding
	err     error
	elapsed time.Duration
}

func (e *VerificationEngine) run(ctx context.Context, w *models.Work) (*VerificationReport, error) {
	if strings.TrimSpace(w.Title) == "" {
		return nil, invalid("title", "work has no title")
	}
	runID := uuid.NewString()
	log := e.Logger.With(zap.String("work_id", w.ID), zap.String("run_id", runID))

	var applicable []providers.Source
	for _, src := range e.Sources {
		if src.Applies(w) {
			applicable = append(applicable, src)
		}
	}

	report := &VerificationReport{
		WorkID:         w.ID,
		RunID:          runID,
		Checks:         []models.Check{},
		ConsensusScore: w.ConsensusScore,
		Retracted:      w.Retracted,
		PeerReviewed:   w.PeerReviewed,
	}
	if w.ConsensusScore != nil {
		report.ConsensusLabel = ConsensusLabel(*w.ConsensusScore)
	}
	if len(applicable) == 0 {
		log.Info("Keine anwendbare Quelle für das Werk, Lauf übersprungen")
		verificationRuns.WithLabelValues("skipped").Inc()
		return report, nil
	}

	log.Info("Starte Verifikation", zap.Int("sources", len(applicable)))
	results := e.collect(ctx, w, applicable)

	checks := make([]models.Check, 0, len(applicable))
	outcomes := make([]models.Outcome, 0, len(applicable))
	for i, src := range applicable {
		check, outcome := e.toCheck(w.ID, runID, src.Name(), results[i])
		if results[i].err != nil {
			log.Warn("Quelle nicht erreichbar", zap.String("source", src.Name()), zap.Error(results[i].err))
		}
		sourceLatency.WithLabelValues(src.Name()).Observe(results[i].elapsed.Seconds())
		checks = append(checks, check)
		outcomes = append(outcomes, outcome)
	}

	update := e.consensus(w.Retracted, outcomes, results)
	if err := e.Store.RecordVerification(ctx, w.ID, checks, update); err != nil {
		verificationRuns.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("record verification: %w", err)
	}
	for _, c := range checks {
		checksRecorded.WithLabelValues(c.CheckType, string(c.Status)).Inc()
	}

	report.Checks = checks
	if update == nil {
		log.Warn("Alle Quellen nicht erreichbar, Konsens unverändert")
		verificationRuns.WithLabelValues("unchanged").Inc()
		return report, nil
	}

	score := update.Score
	report.ConsensusScore = &score
	report.ConsensusLabel = ConsensusLabel(score)
	report.ScoreUpdated = true
	if update.Retracted != nil {
		report.Retracted = *update.Retracted
	}
	if update.PeerReviewed != "" {
		report.PeerReviewed = update.PeerReviewed
	}
	verificationRuns.WithLabelValues("scored").Inc()
	log.Info("Verifikation abgeschlossen", zap.Int("consensus_score", score), zap.Bool("retracted", report.Retracted))
	return report, nil
}

// collect startet jede Quelle in einer eigenen Goroutine mit eigenem Kanal. Quellen, die bis
// zur Gesamtfrist nicht antworten, gelten als nicht erreichbar.
func (e *VerificationEngine) collect(ctx context.Context, w *models.Work, sources []providers.Source) []sourceResult {
	runCtx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	chans := make([]chan sourceResult, len(sources))
	for i, src := range sources {
		ch := make(chan sourceResult, 1)
		chans[i] = ch
		go func(src providers.Source) {
			start := time.Now()
			defer func() {
				if r := recover(); r != nil {
					ch <- sourceResult{err: fmt.Errorf("source panicked: %v", r), elapsed: time.Since(start)}
				}
			}()
			srcCtx, srcCancel := context.WithTimeout(runCtx, e.SourceTimeout)
			defer srcCancel()
			f, err := src.Check(srcCtx, w)
			ch <- sourceResult{finding: f, err: err, elapsed: time.Since(start)}
		}(src)
	}

	results := make([]sourceResult, len(sources))
	for i, ch := range chans {
		select {
		case r := <-ch:
			results[i] = r
		case <-runCtx.Done():
			select {
			case r := <-ch:
				results[i] = r
			default:
				results[i] = sourceResult{err: errSourceTimedOut, elapsed: e.Timeout}
			}
		}
	}
	return results
}

func (e *VerificationEngine) toCheck(workID, runID, checkType string, r sourceResult) (models.Check, models.Outcome) {
	outcome := r.finding.Outcome
	message := r.finding.Message
	evidence := r.finding.Evidence
	switch {
	case r.err != nil:
		outcome = models.OutcomeUnavailable
		message = fmt.Sprintf("source could not be reached: %v", r.err)
		evidence = nil
	case outcome == "":
		outcome = models.OutcomeUnavailable
		message = "source could not be reached: empty answer"
	case outcome == models.OutcomeUnavailable && message == "":
		message = "source could not be reached"
	}

	check := models.Check{
		WorkID:    workID,
		RunID:     runID,
		CheckType: checkType,
		Status:    outcome.Status(),
		Outcome:   outcome,
		Message:   message,
		CheckedAt: e.clock().UTC(),
	}
	if len(evidence) > 0 {
		if raw, err := json.Marshal(evidence); err == nil {
			check.Evidence = raw
		}
	}
	return check, outcome
}

// consensus liefert nil, wenn keine Quelle verwertbar geantwortet hat. Eine früher bestätigte
// Retraktion bleibt bestehen, solange keine Quelle in diesem Lauf ausdrücklich widerspricht.
func (e *VerificationEngine) consensus(wasRetracted bool, outcomes []models.Outcome, results []sourceResult) *models.ConsensusUpdate {
	score, ok := e.Policy.Score(outcomes)
	if !ok {
		return nil
	}
	update := &models.ConsensusUpdate{Score: score, VerifiedAt: e.clock().UTC()}

	for i, r := range results {
		if outcomes[i] == models.OutcomeUnavailable {
			continue
		}
		f := r.finding
		// Eine bestätigte Retraktion schlägt jede Entwarnung.
		if outcomes[i] == models.OutcomeRetracted || (f.Retracted != nil && *f.Retracted) {
			update.Retracted = providers.BoolPtr(true)
		} else if f.Retracted != nil && update.Retracted == nil {
			update.Retracted = providers.BoolPtr(false)
		}
		if f.PeerReviewed == models.PeerReviewed || f.PeerReviewed == models.NotPeerReviewed {
			if update.PeerReviewed != models.PeerReviewed {
				update.PeerReviewed = f.PeerReviewed
			}
		}
		if f.CitationCount != nil {
			if update.CitationCount == nil || *f.CitationCount > *update.CitationCount {
				c := *f.CitationCount
				update.CitationCount = &c
			}
		}
	}
	if wasRetracted && update.Retracted == nil {
		update.Retracted = providers.BoolPtr(true)
	}
	if update.Retracted != nil && *update.Retracted {
		update.Score = e.Policy.Cap(update.Score)
	}
	return update
}
