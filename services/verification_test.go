package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"refcheck/models"
	"refcheck/providers"
	"refcheck/storage"
	"refcheck/storage/storagetest"
)

// fakeSource liefert eine feste Antwort; block hält den Aufruf bis zur Freigabe oder zum Kontextende an.
type fakeSource struct {
	name    string
	applies bool
	finding providers.Finding
	err     error
	panics  bool
	block   chan struct{}
	started chan struct{}
}

func (s *fakeSource) Name() string { return s.name }
func (s *fakeSource) Applies(*models.Work) bool { return s.applies }

func (s *fakeSource) Check(ctx context.Context, _ *models.Work) (providers.Finding, error) {
	if s.started != nil {
		close(s.started)
	}
	if s.panics {
		panic("kaputt")
	}
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return providers.Finding{}, ctx.Err()
		}
	}
	return s.finding, s.err
}

func answer(name string, o models.Outcome) *fakeSource {
	f := providers.Finding{Outcome: o, Message: string(o)}
	if o == models.OutcomeRetracted {
		f.Retracted = providers.BoolPtr(true)
	}
	return &fakeSource{name: name, applies: true, finding: f}
}

func unavailable(name string) *fakeSource {
	return &fakeSource{name: name, applies: true, err: errors.New("connection refused")}
}

func newEngine(t *testing.T, sources ...providers.Source) (*VerificationEngine, *storage.Repository, *models.Work) {
	t.Helper()
	repo := storagetest.NewRepository(t)
	w := &models.Work{Title: "Deep Residual Learning", DOI: models.StrPtr("10.1109/cvpr.2016.90"),
		Authors: []models.Author{{Family: "He", Given: "Kaiming"}}}
	require.NoError(t, repo.CreateWork(context.Background(), w))

	e := &VerificationEngine{
		Store:         repo,
		Sources:       sources,
		Policy:        DefaultPolicy,
		Timeout:       2 * time.Second,
		SourceTimeout: time.Second,
		Logger:        zaptest.NewLogger(t),
	}
	return e, repo, w
}

func TestPolicyScore(t *testing.T) {
	tests := []struct {
		name     string
		outcomes []models.Outcome
		want     int
		wantOK   bool
	}{
		{"all exist", []models.Outcome{"exists", "exists", "exists"}, 80, true},
		{"warnings are neutral", []models.Outcome{"ambiguous", "ambiguous"}, 50, true},
		{"not found", []models.Outcome{"exists", "not_found"}, 30, true},
		{"retraction caps", []models.Outcome{"exists", "exists", "exists", "exists", "retracted"}, 0, true},
		{"only unavailable", []models.Outcome{"unavailable", "unavailable"}, 0, false},
		{"empty", nil, 0, false},
		{"clamped at 100", []models.Outcome{"exists", "exists", "exists", "exists", "exists", "exists", "exists"}, 100, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DefaultPolicy.Score(tt.outcomes)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPolicyRetractionCeiling(t *testing.T) {
	p := DefaultPolicy
	p.RetractionPenalty = 0
	got, ok := p.Score([]models.Outcome{"exists", "exists", "exists", "retracted"})
	require.True(t, ok)
	assert.Equal(t, 15, got)
	assert.Less(t, got, 20)
}

func TestVerifyAllSuccess(t *testing.T) {
	e, repo, w := newEngine(t,
		answer("doi_exists", models.OutcomeExists),
		answer("retraction", models.OutcomeExists),
		answer("peer_review", models.OutcomeAmbiguous),
	)
	report, err := e.Verify(context.Background(), w.ID)
	require.NoError(t, err)

	require.Len(t, report.Checks, 3)
	assert.True(t, report.ScoreUpdated)
	assert.Equal(t, 70, *report.ConsensusScore)
	assert.Equal(t, models.StatusSuccess, report.Checks[0].Status)
	assert.Equal(t, models.StatusWarning, report.Checks[2].Status)

	got, err := repo.GetWork(context.Background(), w.ID)
	require.NoError(t, err)
	assert.Equal(t, 70, *got.ConsensusScore)
	assert.NotNil(t, got.LastVerifiedAt)
}

func TestVerifyRetractionKeepsScoreLow(t *testing.T) {
	e, repo, w := newEngine(t,
		answer("doi_exists", models.OutcomeExists),
		answer("retraction", models.OutcomeRetracted),
		answer("citation_count", models.OutcomeExists),
	)
	report, err := e.Verify(context.Background(), w.ID)
	require.NoError(t, err)
	assert.Less(t, *report.ConsensusScore, 20)
	assert.True(t, report.Retracted)
	assert.Equal(t, models.StatusError, report.Checks[1].Status)

	got, err := repo.GetWork(context.Background(), w.ID)
	require.NoError(t, err)
	assert.True(t, got.Retracted)
}

func TestVerifyRememberedRetractionOnLaterRun(t *testing.T) {
	e, repo, w := newEngine(t,
		answer("doi_exists", models.OutcomeExists),
		answer("retraction", models.OutcomeRetracted),
		answer("citation_count", models.OutcomeExists),
	)
	_, err := e.Verify(context.Background(), w.ID)
	require.NoError(t, err)

	e.Sources = []providers.Source{
		answer("doi_exists", models.OutcomeExists),
		unavailable("retraction"),
		answer("citation_count", models.OutcomeExists),
	}
	report, err := e.Verify(context.Background(), w.ID)
	require.NoError(t, err)
	require.True(t, report.ScoreUpdated)
	assert.Less(t, *report.ConsensusScore, 20)
	assert.True(t, report.Retracted)
	assert.Equal(t, "low", report.ConsensusLabel)

	got, err := repo.GetWork(context.Background(), w.ID)
	require.NoError(t, err)
	assert.True(t, got.Retracted)
	assert.Less(t, *got.ConsensusScore, 20)
}

func TestVerifyExplicitClearanceLiftsRetraction(t *testing.T) {
	e, repo, w := newEngine(t, answer("retraction", models.OutcomeRetracted))
	_, err := e.Verify(context.Background(), w.ID)
	require.NoError(t, err)

	cleared := answer("retraction", models.OutcomeExists)
	cleared.finding.Retracted = providers.BoolPtr(false)
	e.Sources = []providers.Source{answer("doi_exists", models.OutcomeExists), cleared}
	report, err := e.Verify(context.Background(), w.ID)
	require.NoError(t, err)
	assert.False(t, report.Retracted)
	assert.Equal(t, 70, *report.ConsensusScore)

	got, err := repo.GetWork(context.Background(), w.ID)
	require.NoError(t, err)
	assert.False(t, got.Retracted)
}

func TestConsensusLabel(t *testing.T) {
	tests := []struct {
		score int
		want  string
	}{
		{100, "very_high"},
		{80, "very_high"},
		{79, "high"},
		{65, "high"},
		{50, "moderate"},
		{35, "fairly_low"},
		{34, "low"},
		{0, "low"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ConsensusLabel(tt.score), tt.score)
	}
}

func TestVerifyAllUnavailableLeavesScore(t *testing.T) {
	e, repo, w := newEngine(t, answer("doi_exists", models.OutcomeExists))
	_, err := e.Verify(context.Background(), w.ID)
	require.NoError(t, err)

	e.Sources = []providers.Source{unavailable("doi_exists"), unavailable("retraction")}
	report, err := e.Verify(context.Background(), w.ID)
	require.NoError(t, err)
	assert.False(t, report.ScoreUpdated)
	assert.Equal(t, 60, *report.ConsensusScore)
	require.Len(t, report.Checks, 2)
	for _, c := range report.Checks {
		assert.Equal(t, models.StatusWarning, c.Status)
		assert.Equal(t, models.OutcomeUnavailable, c.Outcome)
		assert.Contains(t, c.Message, "could not be reached")
	}

	got, err := repo.GetWork(context.Background(), w.ID)
	require.NoError(t, err)
	assert.Equal(t, 60, *got.ConsensusScore)

	history, err := repo.ListChecks(context.Background(), w.ID)
	require.NoError(t, err)
	assert.Len(t, history, 3)
}

func TestVerifyFirstRunAllUnavailableKeepsNull(t *testing.T) {
	e, repo, w := newEngine(t, unavailable("doi_exists"))
	report, err := e.Verify(context.Background(), w.ID)
	require.NoError(t, err)
	assert.Nil(t, report.ConsensusScore)

	got, err := repo.GetWork(context.Background(), w.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ConsensusScore)
}

func TestVerifyIsDeterministic(t *testing.T) {
	e, _, w := newEngine(t,
		answer("doi_exists", models.OutcomeExists),
		answer("retraction", models.OutcomeNotFound),
		unavailable("peer_review"),
	)
	first, err := e.Verify(context.Background(), w.ID)
	require.NoError(t, err)
	second, err := e.Verify(context.Background(), w.ID)
	require.NoError(t, err)
	assert.Equal(t, *first.ConsensusScore, *second.ConsensusScore)
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestVerifyRecoversPanickingSource(t *testing.T) {
	e, _, w := newEngine(t,
		answer("doi_exists", models.OutcomeExists),
		&fakeSource{name: "retraction", applies: true, panics: true},
	)
	report, err := e.Verify(context.Background(), w.ID)
	require.NoError(t, err)
	require.Len(t, report.Checks, 2)
	assert.Equal(t, models.OutcomeUnavailable, report.Checks[1].Outcome)
	assert.Equal(t, 60, *report.ConsensusScore)
}

func TestVerifyDeadlineMarksPendingUnavailable(t *testing.T) {
	slow := &fakeSource{name: "retraction", applies: true, block: make(chan struct{}),
		finding: providers.Finding{Outcome: models.OutcomeExists}}
	e, _, w := newEngine(t, answer("doi_exists", models.OutcomeExists), slow)
	e.Timeout = 50 * time.Millisecond
	e.SourceTimeout = time.Second

	report, err := e.Verify(context.Background(), w.ID)
	require.NoError(t, err)
	require.Len(t, report.Checks, 2)
	assert.Equal(t, models.OutcomeExists, report.Checks[0].Outcome)
	assert.Equal(t, models.OutcomeUnavailable, report.Checks[1].Outcome)
	close(slow.block)
}

func TestVerifySkipsInapplicableSources(t *testing.T) {
	e, repo, w := newEngine(t, &fakeSource{name: "pubmed", applies: false})
	report, err := e.Verify(context.Background(), w.ID)
	require.NoError(t, err)
	assert.Empty(t, report.Checks)
	assert.False(t, report.ScoreUpdated)

	history, err := repo.ListChecks(context.Background(), w.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestVerifyRejectsConcurrentRun(t *testing.T) {
	slow := &fakeSource{name: "doi_exists", applies: true, block: make(chan struct{}), started: make(chan struct{}),
		finding: providers.Finding{Outcome: models.OutcomeExists}}
	e, _, w := newEngine(t, slow)

	var wg sync.WaitGroup
	wg.Add(1)
	var firstErr error
	go func() {
		defer wg.Done()
		_, firstErr = e.Verify(context.Background(), w.ID)
	}()
	<-slow.started

	_, err := e.Verify(context.Background(), w.ID)
	assert.ErrorIs(t, err, ErrVerificationInProgress)
	assert.True(t, e.InFlight(w.ID))

	close(slow.block)
	wg.Wait()
	require.NoError(t, firstErr)
	assert.False(t, e.InFlight(w.ID))
}

func TestVerifyUnknownWork(t *testing.T) {
	e, _, _ := newEngine(t)
	_, err := e.Verify(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrWorkNotFound)
}

func TestVerifyRequiresTitle(t *testing.T) {
	e, _, _ := newEngine(t, answer("doi_exists", models.OutcomeExists))
	_, err := e.VerifyWork(context.Background(), &models.Work{ID: "x", Title: "  "})
	assert.True(t, IsValidation(err))
}

func TestVerifySideSignals(t *testing.T) {
	peer := &fakeSource{name: "peer_review", applies: true,
		finding: providers.Finding{Outcome: models.OutcomeExists, PeerReviewed: models.PeerReviewed}}
	citations := &fakeSource{name: "citation_count", applies: true,
		finding: providers.Finding{Outcome: models.OutcomeExists, CitationCount: models.IntPtr(12)}}
	clean := &fakeSource{name: "retraction", applies: true,
		finding: providers.Finding{Outcome: models.OutcomeExists, Retracted: providers.BoolPtr(false)}}
	e, repo, w := newEngine(t, peer, citations, clean)

	_, err := e.Verify(context.Background(), w.ID)
	require.NoError(t, err)

	got, err := repo.GetWork(context.Background(), w.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PeerReviewed, got.PeerReviewed)
	assert.Equal(t, 12, *got.CitationCount)
	assert.False(t, got.Retracted)
	assert.Equal(t, 80, *got.ConsensusScore)
}
