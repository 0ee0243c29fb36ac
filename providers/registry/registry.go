// Package registry baut die aktivierten Verifikationsquellen aus der Konfiguration.
package registry

import (
	"go.uber.org/zap"

	"refcheck/config"
	"refcheck/providers"
	"refcheck/providers/arxiv"
	"refcheck/providers/crossref"
	"refcheck/providers/doiorg"
	"refcheck/providers/europepmc"
	"refcheck/providers/pubmed"
	"refcheck/providers/unpaywall"
	"refcheck/providers/weblink"
)

// Build erstellt die Quellen aus ENABLED_SOURCES in Konfigurationsreihenfolge.
// Alle Quellen teilen sich einen Cache; unbekannte Namen werden geloggt und übersprungen.
// retraction und citation_count nutzen denselben Crossref-Client, damit eine DOI pro
// Lauf nur einmal abgefragt wird.
func Build(cfg *config.Config, logger *zap.Logger) []providers.Source {
	cache := providers.NewCache(cfg.SourceCacheTTL)

	var (
		retraction *crossref.RetractionFetcher
		citations  *crossref.CitationCountFetcher
	)
	crossrefPair := func() {
		if retraction == nil {
			retraction, citations = crossref.NewFetchers(cfg, logger)
		}
	}

	var sources []providers.Source
	seen := map[string]bool{}
	for _, name := range cfg.SourceNames() {
		if seen[name] {
			continue
		}
		seen[name] = true

		var src providers.Source
		switch name {
		case providers.CheckDOIExists:
			src = doiorg.NewFetcher(cfg, logger)
		case providers.CheckRetraction:
			crossrefPair()
			src = retraction
		case providers.CheckCitationCount:
			crossrefPair()
			src = citations
		case providers.CheckPeerReview:
			src = europepmc.NewFetcher(cfg, logger)
		case providers.CheckPubMed:
			src = pubmed.NewFetcher(cfg, logger)
		case providers.CheckArxiv:
			src = arxiv.NewFetcher(cfg, logger)
		case providers.CheckURLReachable:
			src = weblink.NewFetcher(cfg, logger, unpaywall.NewFetcher(cfg, logger))
		default:
			logger.Warn("Unknown source in config", zap.String("source_name", name))
			continue
		}
		sources = append(sources, providers.Cached(src, cache))
	}
	return sources
}
