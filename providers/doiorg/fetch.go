// Package doiorg prüft, ob eine DOI beim Resolver doi.org registriert ist.
package doiorg

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"refcheck/config"
	"refcheck/models"
	"refcheck/providers"
)

// Fetcher fragt den DOI-Resolver per HEAD ab, ohne Redirects zu folgen.
type Fetcher struct {
	Config *config.Config
	Logger *zap.Logger
	client *providers.Client
}

// NewFetcher erstellt einen neuen DOI-Resolver-Check.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		Config: cfg,
		Logger: logger,
		client: providers.NewClient(cfg, providers.WithoutRedirects()),
	}
}

// Name gibt den Check-Typ zurück.
func (f *Fetcher) Name() string {
	return providers.CheckDOIExists
}

// Applies meldet, ob eine DOI vorhanden ist.
func (f *Fetcher) Applies(w *models.Work) bool {
	return w.HasDOI()
}

// Check löst die DOI auf. 200 und 3xx bedeuten registriert, 404 nicht registriert.
func (f *Fetcher) Check(ctx context.Context, w *models.Work) (providers.Finding, error) {
	doi := models.Str(w.DOI)
	target := fmt.Sprintf("%s/%s", strings.TrimRight(f.Config.DOIBaseURL, "/"), providers.EscapeDOI(doi))
	log := f.Logger.With(zap.String("doi", doi))
	log.Debug("Prüfe DOI beim Resolver", zap.String("url", target))

	resp, err := f.client.Head(ctx, target)
	if err != nil {
		return providers.Finding{}, fmt.Errorf("doi resolver: %w", err)
	}
	defer resp.Body.Close()

	evidence := map[string]any{"status_code": resp.StatusCode}
	switch {
	case resp.StatusCode == http.StatusOK,
		resp.StatusCode == http.StatusMovedPermanently,
		resp.StatusCode == http.StatusFound,
		resp.StatusCode == http.StatusSeeOther,
		resp.StatusCode == http.StatusTemporaryRedirect,
		resp.StatusCode == http.StatusPermanentRedirect:
		if loc := resp.Header.Get("Location"); loc != "" {
			evidence["resolves_to"] = loc
		}
		return providers.Finding{
			Outcome:  models.OutcomeExists,
			Message:  "DOI is registered and resolves",
			Evidence: evidence,
		}, nil
	case resp.StatusCode == http.StatusNotFound:
		log.Info("DOI beim Resolver nicht gefunden")
		return providers.Finding{
			Outcome:  models.OutcomeNotFound,
			Message:  "DOI is not registered",
			Evidence: evidence,
		}, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return providers.Finding{}, fmt.Errorf("%w: doi resolver status %d", providers.ErrUnavailable, resp.StatusCode)
	default:
		return providers.Finding{
			Outcome:  models.OutcomeAmbiguous,
			Message:  fmt.Sprintf("DOI resolver answered with unexpected status %d", resp.StatusCode),
			Evidence: evidence,
		}, nil
	}
}
