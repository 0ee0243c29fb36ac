package pubmed

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"refcheck/config"
	"refcheck/models"
	"refcheck/providers"
)

// Fetcher ist eine Struktur, die die Logik zur Interaktion mit PubMed kapselt.
type Fetcher struct {
	Config *config.Config
	Logger *zap.Logger
	client *providers.Client
}

// NewFetcher erstellt eine neue Instanz des PubMed-Fetchers.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	return &Fetcher{Config: cfg, Logger: logger, client: providers.NewClient(cfg)}
}

// Name gibt den Check-Typ zurück.
func (f *Fetcher) Name() string {
	return providers.CheckPubMed
}

// Applies meldet, ob eine PMID vorhanden ist.
func (f *Fetcher) Applies(w *models.Work) bool {
	return models.Str(w.PMID) != ""
}

func (f *Fetcher) buildEfetchURL(pmid string) string {
	q := url.Values{}
	q.Set("db", "pubmed")
	q.Set("id", pmid)
	q.Set("retmode", "xml")
	if f.Config.PubMedAPIKey != "" {
		q.Set("api_key", f.Config.PubMedAPIKey)
	}
	if f.Config.PubMedTool != "" {
		q.Set("tool", f.Config.PubMedTool)
	}
	return fmt.Sprintf("%s/efetch.fcgi?%s", strings.TrimRight(f.Config.PubMedBaseURL, "/"), q.Encode())
}

// Check holt die Metadaten via EFetch und prüft Existenz und Retraktionsstatus.
func (f *Fetcher) Check(ctx context.Context, w *models.Work) (providers.Finding, error) {
	pmid := models.Str(w.PMID)
	efetchURL := f.buildEfetchURL(pmid)
	log := f.Logger.With(zap.String("pmid", pmid))
	log.Debug("Rufe EFetch-URL auf", zap.String("url", efetchURL))

	resp, err := f.client.Get(ctx, efetchURL)
	if err != nil {
		return providers.Finding{}, fmt.Errorf("efetch: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusBadRequest, resp.StatusCode == http.StatusNotFound:
		return notFound(pmid), nil
	case resp.StatusCode != http.StatusOK:
		return providers.Finding{}, fmt.Errorf("%w: efetch status %d", providers.ErrUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return providers.Finding{}, fmt.Errorf("read efetch body: %w", err)
	}
	var set PubmedArticleSet
	if err := xml.Unmarshal(body, &set); err != nil {
		// Für unbekannte PMIDs antwortet EFetch teils mit einem leeren Fehlerdokument.
		log.Debug("EFetch-Antwort ist kein PubmedArticleSet", zap.Error(err))
		return notFound(pmid), nil
	}
	if len(set.PubmedArticle) == 0 {
		return notFound(pmid), nil
	}
	return Evaluate(&set.PubmedArticle[0]), nil
}

func notFound(pmid string) providers.Finding {
	return providers.Finding{
		Outcome:  models.OutcomeNotFound,
		Message:  fmt.Sprintf("PMID %s not found in PubMed", pmid),
		Evidence: map[string]any{"pmid": pmid},
	}
}

// Evaluate wertet einen PubMed-Artikel aus.
func Evaluate(a *PubmedArticle) providers.Finding {
	art := a.MedlineCitation.Article
	evidence := map[string]any{
		"pmid":    a.MedlineCitation.PMID,
		"title":   art.Title,
		"journal": art.Journal.Title,
	}
	notices := a.RetractionNotices()
	if a.HasPublicationType("Retracted Publication") || len(notices) > 0 {
		if len(notices) > 0 {
			evidence["retraction_notices"] = notices
		}
		return providers.Finding{
			Outcome:   models.OutcomeRetracted,
			Message:   "PubMed lists this article as retracted",
			Evidence:  evidence,
			Retracted: providers.BoolPtr(true),
		}
	}
	return providers.Finding{
		Outcome:  models.OutcomeExists,
		Message:  "article found in PubMed",
		Evidence: evidence,
	}
}
