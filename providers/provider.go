package providers

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"refcheck/models"
)

// Check-Typen der eingebauten Quellen.
const (
	CheckDOIExists     = "doi_exists"
	CheckRetraction    = "retraction"
	CheckPeerReview    = "peer_review"
	CheckCitationCount = "citation_count"
	CheckPubMed        = "pubmed"
	CheckArxiv         = "arxiv"
	CheckURLReachable  = "url_reachable"
)

// ErrUnavailable markiert Fehler, bei denen die Quelle nicht (sinnvoll) antworten konnte.
var ErrUnavailable = errors.New("source unavailable")

// Source ist das Interface, das jede Verifikationsquelle (z.B. Crossref, PubMed) implementieren muss.
type Source interface {
	// Name gibt den eindeutigen Check-Typ der Quelle zurück (z.B. "doi_exists").
	Name() string

	// Applies meldet, ob die Quelle für dieses Werk etwas prüfen kann.
	Applies(w *models.Work) bool

	// Check fragt die Quelle ab. Ein Fehler bedeutet "Quelle nicht erreichbar".
	Check(ctx context.Context, w *models.Work) (Finding, error)
}

// Finding ist die Antwort einer Quelle auf ein Werk.
type Finding struct {
	Outcome  models.Outcome
	Message  string
	Evidence map[string]any

	// Nebensignale für die Konsensfelder des Werks
	Retracted     *bool
	PeerReviewed  models.PeerReviewStatus
	CitationCount *int
}

// Definitive meldet, ob das Finding gecacht werden darf.
func (f Finding) Definitive() bool {
	return f.Outcome == models.OutcomeExists || f.Outcome == models.OutcomeNotFound || f.Outcome == models.OutcomeRetracted
}

// BoolPtr liefert einen Zeiger auf b.
func BoolPtr(b bool) *bool {
	return &b
}

// EscapeDOI maskiert jedes Pfadsegment einer DOI einzeln; Schrägstriche bleiben erhalten.
func EscapeDOI(doi string) string {
	parts := strings.Split(doi, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
