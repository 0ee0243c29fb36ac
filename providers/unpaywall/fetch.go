// Package unpaywall findet frei zugängliche Alternativ-Links zu einer DOI.
package unpaywall

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"refcheck/config"
	"refcheck/providers"
)

// Location ist ein Open-Access-Fundort.
type Location struct {
	URL               string `json:"url"`
	URLForPDF         string `json:"url_for_pdf"`
	URLForLandingPage string `json:"url_for_landing_page"`
}

// Response repräsentiert die JSON-Antwort der Unpaywall-API.
type Response struct {
	BestOALocation *Location  `json:"best_oa_location"`
	OALocations    []Location `json:"oa_locations"`
}

// Fetcher kapselt die Logik für Unpaywall.
type Fetcher struct {
	Config *config.Config
	Logger *zap.Logger
	client *providers.Client
}

// NewFetcher erstellt einen neuen Unpaywall-Fetcher.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	return &Fetcher{Config: cfg, Logger: logger, client: providers.NewClient(cfg)}
}

// Enabled meldet, ob eine Kontakt-E-Mail konfiguriert ist; ohne sie lehnt Unpaywall ab.
func (f *Fetcher) Enabled() bool {
	return f.Config.UnpaywallEmail != ""
}

// GetAlternativeLinks liefert eindeutige OA-Links zur DOI, bester Fundort zuerst.
func (f *Fetcher) GetAlternativeLinks(ctx context.Context, doi string) ([]string, error) {
	if !f.Enabled() {
		return nil, fmt.Errorf("unpaywall email ist nicht konfiguriert")
	}

	u := fmt.Sprintf("%s/%s?email=%s", strings.TrimRight(f.Config.UnpaywallBaseURL, "/"), doi, url.QueryEscape(f.Config.UnpaywallEmail))
	log := f.Logger.With(zap.String("doi", doi))
	log.Debug("Rufe Unpaywall API auf.")

	var ur Response
	status, err := f.client.GetJSON(ctx, u, &ur)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("unpaywall request failed with status: %d", status)
	}

	seen := map[string]bool{}
	var links []string
	add := func(l *Location) {
		if l == nil {
			return
		}
		for _, s := range []string{l.URLForPDF, l.URL, l.URLForLandingPage} {
			if s != "" && !seen[s] {
				seen[s] = true
				links = append(links, s)
			}
		}
	}
	add(ur.BestOALocation)
	for i := range ur.OALocations {
		add(&ur.OALocations[i])
	}

	log.Debug("Unpaywall-Links gefunden", zap.Int("count", len(links)))
	return links, nil
}
