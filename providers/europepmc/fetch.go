package europepmc

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"refcheck/config"
	"refcheck/models"
	"refcheck/providers"
)

// Fetcher implementiert die Peer-Review-Quelle über Europe PMC.
type Fetcher struct {
	Config *config.Config
	Logger *zap.Logger
	client *providers.Client
}

// NewFetcher erstellt einen neuen Europe PMC Fetcher.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	return &Fetcher{Config: cfg, Logger: logger, client: providers.NewClient(cfg)}
}

// Name gibt den Check-Typ zurück.
func (f *Fetcher) Name() string {
	return providers.CheckPeerReview
}

// Applies meldet, ob DOI oder PMID vorhanden sind.
func (f *Fetcher) Applies(w *models.Work) bool {
	return w.HasDOI() || models.Str(w.PMID) != ""
}

func (f *Fetcher) query(w *models.Work) string {
	if w.HasDOI() {
		return fmt.Sprintf(`DOI:"%s"`, models.Str(w.DOI))
	}
	return fmt.Sprintf("EXT_ID:%s AND SRC:MED", models.Str(w.PMID))
}

// Check bestimmt, ob das Werk als begutachteter Zeitschriftenartikel indexiert ist.
func (f *Fetcher) Check(ctx context.Context, w *models.Work) (providers.Finding, error) {
	query := f.query(w)
	searchURL := fmt.Sprintf("%s/search?query=%s&format=json&resultType=core&pageSize=5",
		strings.TrimRight(f.Config.EuropePMCBaseURL, "/"), url.QueryEscape(query))
	log := f.Logger.With(zap.String("query", query))
	log.Debug("Rufe Europe PMC API auf", zap.String("url", searchURL))

	var resp SearchResponse
	status, err := f.client.GetJSON(ctx, searchURL, &resp)
	if err != nil {
		return providers.Finding{}, fmt.Errorf("europepmc search: %w", err)
	}
	if status != http.StatusOK {
		return providers.Finding{}, fmt.Errorf("%w: europepmc status %d", providers.ErrUnavailable, status)
	}

	results := resp.ResultList.Result
	if len(results) == 0 {
		return providers.Finding{
			Outcome:      models.OutcomeAmbiguous,
			Message:      "not indexed by Europe PMC; peer-review status unknown",
			PeerReviewed: models.PeerReviewUnknown,
		}, nil
	}
	return Evaluate(results), nil
}

// Evaluate leitet den Begutachtungsstatus aus den Treffern ab. Ein Zeitschriftenartikel
// aus MED oder PMC hat Vorrang vor einem Preprint-Eintrag derselben Arbeit.
func Evaluate(results []Article) providers.Finding {
	var preprint *Article
	for i := range results {
		a := results[i]
		if a.IsPreprint() {
			if preprint == nil {
				preprint = &results[i]
			}
			continue
		}
		if (strings.EqualFold(a.Source, "MED") || strings.EqualFold(a.Source, "PMC")) && a.Journal() != "" {
			return providers.Finding{
				Outcome:      models.OutcomeExists,
				Message:      fmt.Sprintf("published in peer-reviewed journal %s", a.Journal()),
				Evidence:     map[string]any{"source": a.Source, "id": a.ID, "journal": a.Journal()},
				PeerReviewed: models.PeerReviewed,
			}
		}
	}
	if preprint != nil {
		return providers.Finding{
			Outcome:      models.OutcomeAmbiguous,
			Message:      "only available as preprint",
			Evidence:     map[string]any{"source": preprint.Source, "id": preprint.ID},
			PeerReviewed: models.NotPeerReviewed,
		}
	}
	return providers.Finding{
		Outcome:      models.OutcomeAmbiguous,
		Message:      "indexed without journal information; peer-review status unknown",
		Evidence:     map[string]any{"source": results[0].Source, "id": results[0].ID},
		PeerReviewed: models.PeerReviewUnknown,
	}
}
