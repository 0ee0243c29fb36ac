// Package arxiv prüft arXiv-Identifikatoren gegen die arXiv-API.
package arxiv

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"refcheck/config"
	"refcheck/models"
	"refcheck/providers"
)

// Feed ist der relevante Ausschnitt des Atom-Feeds der arXiv-API.
type Feed struct {
	XMLName xml.Name `xml:"feed"`
	Entries []Entry  `xml:"entry"`
}

// Entry ist ein Eintrag im Atom-Feed.
type Entry struct {
	ID         string `xml:"id"`
	Title      string `xml:"title"`
	Summary    string `xml:"summary"`
	JournalRef string `xml:"journal_ref"`
	DOI        string `xml:"doi"`
}

// isError erkennt die Fehler-Einträge, mit denen arXiv auf ungültige IDs antwortet.
func (e Entry) isError() bool {
	return strings.Contains(e.ID, "/api/errors") || strings.EqualFold(strings.TrimSpace(e.Title), "error")
}

func (e Entry) withdrawn() bool {
	s := strings.ToLower(e.Summary)
	return strings.Contains(s, "this paper has been withdrawn") || strings.Contains(s, "this article has been withdrawn")
}

// Fetcher fragt die arXiv-API ab.
type Fetcher struct {
	Config *config.Config
	Logger *zap.Logger
	client *providers.Client
}

// NewFetcher erstellt einen neuen arXiv-Fetcher.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	return &Fetcher{Config: cfg, Logger: logger, client: providers.NewClient(cfg)}
}

// Name gibt den Check-Typ zurück.
func (f *Fetcher) Name() string {
	return providers.CheckArxiv
}

// Applies meldet, ob eine arXiv-ID vorhanden ist.
func (f *Fetcher) Applies(w *models.Work) bool {
	return models.Str(w.ArxivID) != ""
}

// Check sucht den Eintrag über id_list.
func (f *Fetcher) Check(ctx context.Context, w *models.Work) (providers.Finding, error) {
	id := models.Str(w.ArxivID)
	u := fmt.Sprintf("%s/query?id_list=%s&max_results=1", strings.TrimRight(f.Config.ArxivBaseURL, "/"), url.QueryEscape(id))
	f.Logger.Debug("Rufe arXiv-API auf", zap.String("arxiv_id", id), zap.String("url", u))

	resp, err := f.client.Get(ctx, u)
	if err != nil {
		return providers.Finding{}, fmt.Errorf("arxiv query: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest {
		return notFound(id), nil
	}
	if resp.StatusCode != http.StatusOK {
		return providers.Finding{}, fmt.Errorf("%w: arxiv status %d", providers.ErrUnavailable, resp.StatusCode)
	}

	var feed Feed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return providers.Finding{}, fmt.Errorf("decode arxiv feed: %w", err)
	}
	for _, e := range feed.Entries {
		if e.isError() {
			continue
		}
		evidence := map[string]any{"arxiv_id": id, "entry": strings.TrimSpace(e.ID), "title": strings.TrimSpace(e.Title)}
		if e.JournalRef != "" {
			evidence["journal_ref"] = strings.TrimSpace(e.JournalRef)
		}
		if e.withdrawn() {
			return providers.Finding{
				Outcome:   models.OutcomeRetracted,
				Message:   "arXiv submission has been withdrawn",
				Evidence:  evidence,
				Retracted: providers.BoolPtr(true),
			}, nil
		}
		return providers.Finding{
			Outcome:  models.OutcomeExists,
			Message:  "arXiv entry found",
			Evidence: evidence,
		}, nil
	}
	return notFound(id), nil
}

func notFound(id string) providers.Finding {
	return providers.Finding{
		Outcome:  models.OutcomeNotFound,
		Message:  fmt.Sprintf("arXiv id %s not found", id),
		Evidence: map[string]any{"arxiv_id": id},
	}
}
