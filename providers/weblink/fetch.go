// Package weblink prüft, ob die URL eines Werks erreichbar ist.
package weblink

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"refcheck/config"
	"refcheck/models"
	"refcheck/providers"
)

// AlternativeFinder liefert Ersatz-Links für eine DOI (z.B. Unpaywall).
type AlternativeFinder interface {
	Enabled() bool
	GetAlternativeLinks(ctx context.Context, doi string) ([]string, error)
}

// Fetcher prüft die Erreichbarkeit per HEAD mit GET-Fallback, ohne Redirects zu folgen.
type Fetcher struct {
	Config       *config.Config
	Logger       *zap.Logger
	Alternatives AlternativeFinder
	client       *providers.Client
}

// NewFetcher erstellt den URL-Check. alternatives darf nil sein.
func NewFetcher(cfg *config.Config, logger *zap.Logger, alternatives AlternativeFinder) *Fetcher {
	return &Fetcher{
		Config:       cfg,
		Logger:       logger,
		Alternatives: alternatives,
		client:       providers.NewClient(cfg, providers.WithoutRedirects()),
	}
}

// Name gibt den Check-Typ zurück.
func (f *Fetcher) Name() string {
	return providers.CheckURLReachable
}

// Applies meldet, ob eine URL vorhanden ist.
func (f *Fetcher) Applies(w *models.Work) bool {
	return w.HasURL()
}

func (f *Fetcher) status(ctx context.Context, target string) (int, string, error) {
	resp, err := f.client.Head(ctx, target)
	if err != nil {
		return 0, "", err
	}
	resp.Body.Close()

	// Manche Server unterstützen HEAD nicht oder verweigern es.
	switch resp.StatusCode {
	case http.StatusMethodNotAllowed, http.StatusNotImplemented, http.StatusForbidden:
		resp, err = f.client.Get(ctx, target)
		if err != nil {
			return 0, "", err
		}
		resp.Body.Close()
	}
	return resp.StatusCode, resp.Header.Get("Location"), nil
}

// Check ruft die URL auf. 404/410 gelten als tot; dann werden Alternativen gesucht.
func (f *Fetcher) Check(ctx context.Context, w *models.Work) (providers.Finding, error) {
	target := models.Str(w.URL)
	log := f.Logger.With(zap.String("url", target))

	code, location, err := f.status(ctx, target)
	if err != nil {
		return providers.Finding{}, fmt.Errorf("url check: %w", err)
	}
	evidence := map[string]any{"status_code": code}

	switch {
	case code >= 200 && code < 400:
		if location != "" {
			evidence["redirects_to"] = location
		}
		return providers.Finding{
			Outcome:  models.OutcomeExists,
			Message:  fmt.Sprintf("URL reachable (HTTP %d)", code),
			Evidence: evidence,
		}, nil
	case code == http.StatusNotFound || code == http.StatusGone:
		log.Info("URL nicht mehr erreichbar", zap.Int("status", code))
		if alts := f.alternatives(ctx, w); len(alts) > 0 {
			evidence["alternatives"] = alts
		}
		return providers.Finding{
			Outcome:  models.OutcomeNotFound,
			Message:  fmt.Sprintf("URL is dead (HTTP %d)", code),
			Evidence: evidence,
		}, nil
	case code == http.StatusTooManyRequests || code >= 500:
		return providers.Finding{}, fmt.Errorf("%w: url status %d", providers.ErrUnavailable, code)
	default:
		return providers.Finding{
			Outcome:  models.OutcomeAmbiguous,
			Message:  fmt.Sprintf("URL answered with HTTP %d", code),
			Evidence: evidence,
		}, nil
	}
}

func (f *Fetcher) alternatives(ctx context.Context, w *models.Work) []string {
	if f.Alternatives == nil || !f.Alternatives.Enabled() || !w.HasDOI() {
		return nil
	}
	links, err := f.Alternatives.GetAlternativeLinks(ctx, models.Str(w.DOI))
	if err != nil {
		f.Logger.Warn("Alternative Links konnten nicht ermittelt werden", zap.Error(err))
		return nil
	}
	return links
}
