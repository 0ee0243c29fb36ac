package crossref

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"refcheck/config"
	"refcheck/models"
	"refcheck/providers"
)

var (
	retractionTypes = map[string]bool{"retraction": true, "removal": true, "withdrawal": true}
	correctionTypes = map[string]bool{"correction": true, "erratum": true, "corrigendum": true, "expression_of_concern": true}
)

// lookupMemoTTL hält DOI-Antworten gerade so lange, dass Retraktions- und Zitationsquelle
// eines Laufs sich einen Abruf teilen.
const lookupMemoTTL = time.Minute

// api kapselt den gemeinsamen Zugriff auf die Crossref REST API.
type api struct {
	Config *config.Config
	Logger *zap.Logger
	client *providers.Client

	mu       sync.Mutex
	recent   *gocache.Cache
	inflight map[string]*lookupCall
}

type lookupCall struct {
	done  chan struct{}
	item  Item
	found bool
	err   error
}

func newAPI(cfg *config.Config, logger *zap.Logger) *api {
	return &api{
		Config:   cfg,
		Logger:   logger,
		client:   providers.NewClient(cfg),
		recent:   gocache.New(lookupMemoTTL, 2*lookupMemoTTL),
		inflight: map[string]*lookupCall{},
	}
}

// NewFetchers erstellt Retraktions- und Zitationsquelle über einen gemeinsamen Client,
// sodass Rate-Limit und DOI-Abrufe geteilt werden.
func NewFetchers(cfg *config.Config, logger *zap.Logger) (*RetractionFetcher, *CitationCountFetcher) {
	a := newAPI(cfg, logger)
	return &RetractionFetcher{api: a}, &CitationCountFetcher{api: a}
}

func (a *api) withMailto(q url.Values) string {
	if a.Config.CrossrefMailto != "" {
		q.Set("mailto", a.Config.CrossrefMailto)
	}
	return q.Encode()
}

// lookupDOI holt den Eintrag zu einer DOI. found=false bei 404. Gleichzeitige Anfragen
// für dieselbe DOI warten auf einen einzigen Abruf.
func (a *api) lookupDOI(ctx context.Context, doi string) (Item, bool, error) {
	key := strings.ToLower(doi)
	a.mu.Lock()
	if v, ok := a.recent.Get(key); ok {
		a.mu.Unlock()
		call := v.(*lookupCall)
		return call.item, call.found, nil
	}
	if call, ok := a.inflight[key]; ok {
		a.mu.Unlock()
		select {
		case <-call.done:
			return call.item, call.found, call.err
		case <-ctx.Done():
			return Item{}, false, fmt.Errorf("crossref lookup: %w", ctx.Err())
		}
	}
	call := &lookupCall{done: make(chan struct{})}
	a.inflight[key] = call
	a.mu.Unlock()

	call.item, call.found, call.err = a.fetchDOI(ctx, doi)

	a.mu.Lock()
	delete(a.inflight, key)
	if call.err == nil {
		a.recent.SetDefault(key, call)
	}
	a.mu.Unlock()
	close(call.done)
	return call.item, call.found, call.err
}

func (a *api) fetchDOI(ctx context.Context, doi string) (item Item, found bool, err error) {
	u := fmt.Sprintf("%s/works/%s", strings.TrimRight(a.Config.CrossrefBaseURL, "/"), providers.EscapeDOI(doi))
	if q := a.withMailto(url.Values{}); q != "" {
		u += "?" + q
	}
	a.Logger.Debug("Rufe Crossref-Work auf", zap.String("url", u))

	var resp WorkResponse
	status, err := a.client.GetJSON(ctx, u, &resp)
	if err != nil {
		return Item{}, false, fmt.Errorf("crossref lookup: %w", err)
	}
	switch {
	case status == http.StatusOK:
		return resp.Message, true, nil
	case status == http.StatusNotFound:
		return Item{}, false, nil
	default:
		return Item{}, false, fmt.Errorf("%w: crossref status %d", providers.ErrUnavailable, status)
	}
}

// search sucht über Titel und Erstautor und liefert nur einen Treffer mit gleichem Titel.
func (a *api) search(ctx context.Context, title, author string) (Item, bool, error) {
	q := url.Values{}
	q.Set("query.bibliographic", title)
	if author != "" {
		q.Set("query.author", author)
	}
	q.Set("rows", "5")
	u := fmt.Sprintf("%s/works?%s", strings.TrimRight(a.Config.CrossrefBaseURL, "/"), a.withMailto(q))
	a.Logger.Debug("Crossref-Suche über Titel", zap.String("url", u))

	var resp SearchResponse
	status, err := a.client.GetJSON(ctx, u, &resp)
	if err != nil {
		return Item{}, false, fmt.Errorf("crossref search: %w", err)
	}
	if status != http.StatusOK {
		return Item{}, false, fmt.Errorf("%w: crossref search status %d", providers.ErrUnavailable, status)
	}

	want := titleKey(title)
	for _, it := range resp.Message.Items {
		if titleKey(stripRetractedPrefix(it.FirstTitle())) == want {
			return it, true, nil
		}
	}
	return Item{}, false, nil
}

// titleKey reduziert einen Titel auf Kleinbuchstaben und Ziffern.
func titleKey(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func stripRetractedPrefix(title string) string {
	lower := strings.ToLower(title)
	for _, p := range []string{"retracted article:", "retracted:", "retraction:"} {
		if strings.HasPrefix(lower, p) {
			return strings.TrimSpace(title[len(p):])
		}
	}
	return title
}

// RetractionFetcher prüft über Crossmark-Metadaten, ob ein Werk zurückgezogen wurde.
type RetractionFetcher struct {
	*api
}

// NewRetractionFetcher erstellt die Retraktionsquelle.
func NewRetractionFetcher(cfg *config.Config, logger *zap.Logger) *RetractionFetcher {
	return &RetractionFetcher{api: newAPI(cfg, logger)}
}

// Name gibt den Check-Typ zurück.
func (f *RetractionFetcher) Name() string {
	return providers.CheckRetraction
}

// Applies: DOI oder Titel plus mindestens ein Autor.
func (f *RetractionFetcher) Applies(w *models.Work) bool {
	return w.HasDOI() || (strings.TrimSpace(w.Title) != "" && len(w.Authors) > 0)
}

// Check sucht nach Retraktions- und Korrekturhinweisen.
func (f *RetractionFetcher) Check(ctx context.Context, w *models.Work) (providers.Finding, error) {
	var (
		item  Item
		found bool
		err   error
		via   string
	)
	if w.HasDOI() {
		via = "doi"
		item, found, err = f.lookupDOI(ctx, models.Str(w.DOI))
		if err != nil {
			return providers.Finding{}, err
		}
		if !found {
			return providers.Finding{
				Outcome:  models.OutcomeAmbiguous,
				Message:  "DOI unknown to Crossref; retraction status undetermined",
				Evidence: map[string]any{"lookup": via},
			}, nil
		}
	} else {
		via = "title"
		item, found, err = f.search(ctx, w.Title, w.FirstAuthorFamily())
		if err != nil {
			return providers.Finding{}, err
		}
		if !found {
			return providers.Finding{
				Outcome:  models.OutcomeAmbiguous,
				Message:  "no confident Crossref match for title and author",
				Evidence: map[string]any{"lookup": via},
			}, nil
		}
	}
	return Evaluate(item, via), nil
}

// Evaluate wertet einen Crossref-Eintrag auf Retraktionen und Korrekturen aus.
func Evaluate(item Item, via string) providers.Finding {
	evidence := map[string]any{"lookup": via, "doi": item.DOI}

	var notices []string
	for _, rel := range item.Relation["is-retracted-by"] {
		notices = append(notices, rel.ID)
	}
	var corrections []string
	for _, u := range item.UpdatedBy {
		t := strings.ToLower(u.Type)
		switch {
		case retractionTypes[t]:
			notices = append(notices, u.DOI)
		case correctionTypes[t]:
			corrections = append(corrections, u.DOI)
		}
	}
	// Ein Eintrag mit update-to ist selbst die Mitteilung, nicht das betroffene Werk.
	var updates []string
	for _, u := range item.UpdateTo {
		if retractionTypes[strings.ToLower(u.Type)] {
			updates = append(updates, u.DOI)
		}
	}
	if len(updates) > 0 && len(notices) == 0 {
		evidence["retracts"] = updates
		return providers.Finding{
			Outcome:   models.OutcomeAmbiguous,
			Message:   "DOI belongs to a retraction notice, not to the retracted work",
			Evidence:  evidence,
			Retracted: providers.BoolPtr(false),
		}
	}

	titleFlag := stripRetractedPrefix(item.FirstTitle()) != item.FirstTitle()

	if len(notices) > 0 || titleFlag {
		if len(notices) > 0 {
			evidence["retraction_notices"] = notices
		}
		if titleFlag {
			evidence["title"] = item.FirstTitle()
		}
		return providers.Finding{
			Outcome:   models.OutcomeRetracted,
			Message:   "work has been retracted",
			Evidence:  evidence,
			Retracted: providers.BoolPtr(true),
		}
	}
	if len(corrections) > 0 {
		evidence["corrections"] = corrections
		return providers.Finding{
			Outcome:   models.OutcomeAmbiguous,
			Message:   "work has published corrections or expressions of concern",
			Evidence:  evidence,
			Retracted: providers.BoolPtr(false),
		}
	}
	return providers.Finding{
		Outcome:   models.OutcomeExists,
		Message:   "no retraction recorded",
		Evidence:  evidence,
		Retracted: providers.BoolPtr(false),
	}
}

// CitationCountFetcher liest die Zitationszahl aus Crossref.
type CitationCountFetcher struct {
	*api
}

// NewCitationCountFetcher erstellt die Zitationsquelle.
func NewCitationCountFetcher(cfg *config.Config, logger *zap.Logger) *CitationCountFetcher {
	return &CitationCountFetcher{api: newAPI(cfg, logger)}
}

// Name gibt den Check-Typ zurück.
func (f *CitationCountFetcher) Name() string {
	return providers.CheckCitationCount
}

// Applies meldet, ob eine DOI vorhanden ist.
func (f *CitationCountFetcher) Applies(w *models.Work) bool {
	return w.HasDOI()
}

// Check liefert is-referenced-by-count.
func (f *CitationCountFetcher) Check(ctx context.Context, w *models.Work) (providers.Finding, error) {
	item, found, err := f.lookupDOI(ctx, models.Str(w.DOI))
	if err != nil {
		return providers.Finding{}, err
	}
	if !found {
		return providers.Finding{
			Outcome: models.OutcomeAmbiguous,
			Message: "DOI unknown to Crossref; citation count unavailable",
		}, nil
	}
	if item.IsReferencedByCount == nil {
		return providers.Finding{
			Outcome: models.OutcomeAmbiguous,
			Message: "Crossref record carries no citation count",
		}, nil
	}
	count := *item.IsReferencedByCount
	if count < 0 {
		count = 0
	}
	return providers.Finding{
		Outcome:       models.OutcomeExists,
		Message:       fmt.Sprintf("cited %d times", count),
		Evidence:      map[string]any{"citation_count": count},
		CitationCount: &count,
	}, nil
}
