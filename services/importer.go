package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"refcheck/models"
	"refcheck/storage"
)

const (
	SourceCSL = "csl"
	SourcePDF = "pdf"
)

var (
	yearPattern     = regexp.MustCompile(`\b(1[5-9]\d{2}|2\d{3})\b`)
	arxivURLPattern = regexp.MustCompile(`(?i)arxiv\.org/(?:abs|pdf)/([^\s?#]+)`)
)

// FlexibleString akzeptiert JSON-Strings und -Zahlen.
type FlexibleString string

func (f *FlexibleString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexibleString(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = FlexibleString(n.String())
		return nil
	}

	return fmt.Errorf("cannot unmarshal %s into FlexibleString", string(data))
}

func (f FlexibleString) String() string {
	return strings.TrimSpace(string(f))
}

// FlexibleText akzeptiert zusätzlich Arrays und nimmt den ersten nicht-leeren Eintrag
// (CSL erlaubt z.B. "container-title" als Liste).
type FlexibleText string

func (f *FlexibleText) UnmarshalJSON(data []byte) error {
	var list []FlexibleString
	if err := json.Unmarshal(data, &list); err == nil {
		*f = ""
		for _, s := range list {
			if s.String() != "" {
				*f = FlexibleText(s.String())
				break
			}
		}
		return nil
	}
	var s FlexibleString
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("cannot unmarshal %s into FlexibleText", string(data))
	}
	*f = FlexibleText(s)
	return nil
}

func (f FlexibleText) String() string {
	return strings.TrimSpace(string(f))
}

// CSLName ist ein Personenname im CSL-JSON-Format.
type CSLName struct {
	Family  string `json:"family"`
	Given   string `json:"given"`
	Literal string `json:"literal"`
}

// CSLDate ist ein CSL-Datum; date-parts kann Zahlen oder Strings enthalten.
type CSLDate struct {
	DateParts [][]FlexibleString `json:"date-parts"`
	Raw       FlexibleString     `json:"raw"`
	Literal   FlexibleString     `json:"literal"`
}

// Year liefert das Jahr aus date-parts, ersatzweise aus raw oder literal.
func (d *CSLDate) Year() (int, bool) {
	if d == nil {
		return 0, false
	}
	if len(d.DateParts) > 0 && len(d.DateParts[0]) > 0 {
		if y, err := strconv.Atoi(d.DateParts[0][0].String()); err == nil && y > 0 {
			return y, true
		}
	}
	for _, s := range []FlexibleString{d.Raw, d.Literal} {
		if m := yearPattern.FindString(s.String()); m != "" {
			y, _ := strconv.Atoi(m)
			return y, true
		}
	}
	return 0, false
}

// CSLRecord ist ein einzelner CSL-JSON-Eintrag; unbekannte Felder werden ignoriert.
type CSLRecord struct {
	ID             FlexibleString `json:"id"`
	Type           string         `json:"type"`
	Title          FlexibleText   `json:"title"`
	Author         []CSLName      `json:"author"`
	Issued         *CSLDate       `json:"issued"`
	ContainerTitle FlexibleText   `json:"container-title"`
	Volume         FlexibleString `json:"volume"`
	Issue          FlexibleString `json:"issue"`
	Page           FlexibleString `json:"page"`
	Publisher      FlexibleText   `json:"publisher"`
	DOI            FlexibleString `json:"DOI"`
	URL            FlexibleString `json:"URL"`
	PMID           FlexibleString `json:"PMID"`
	ArXiv          FlexibleString `json:"arxiv"`
	NumberOfPages  FlexibleString `json:"number-of-pages"`
}

// ImportError beschreibt einen abgelehnten Eintrag.
type ImportError struct {
	Index  int    `json:"index"`
	ID     string `json:"id,omitempty"`
	Reason string `json:"reason"`
}

// ImportReport fasst einen Importlauf zusammen.
type ImportReport struct {
	Imported int           `json:"imported"`
	Rejected int           `json:"rejected"`
	IDs      []string      `json:"ids"`
	Errors   []ImportError `json:"errors"`
	Warnings []string      `json:"warnings"`
}

// WorkCreator ist der Teil des Repositories, den der Import braucht.
type WorkCreator interface {
	CreateWork(ctx context.Context, w *models.Work) error
	FindBySignature(ctx context.Context, signature string) (*models.Work, error)
	SetPDFLink(ctx context.Context, workID, link string) error
}

// PDFUploader legt PDF-Dateien ab und liefert den Link.
type PDFUploader interface {
	Upload(ctx context.Context, workID string, data []byte) (string, error)
}

// ImportService legt Werke aus CSL-JSON oder hochgeladenen PDFs an.
type ImportService struct {
	Store     WorkCreator
	Extractor *PDFExtractor
	PDFs      PDFUploader
	Logger    *zap.Logger
}

func NewImportService(store WorkCreator, extractor *PDFExtractor, pdfs PDFUploader, logger *zap.Logger) *ImportService {
	return &ImportService{Store: store, Extractor: extractor, PDFs: pdfs, Logger: logger}
}

// Import liest ein CSL-JSON-Array (oder ein einzelnes Objekt) und legt jeden gültigen
// Eintrag an. Ungültige Einträge landen im Report, nicht im Fehler.
func (s *ImportService) Import(ctx context.Context, body []byte) (*ImportReport, error) {
	raws, err := splitCSL(body)
	if err != nil {
		return nil, err
	}

	report := &ImportReport{IDs: []string{}, Errors: []ImportError{}, Warnings: []string{}}
	reject := func(i int, id, reason string) {
		report.Rejected++
		report.Errors = append(report.Errors, ImportError{Index: i, ID: id, Reason: reason})
	}

	for i, raw := range raws {
		var rec CSLRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			reject(i, "", fmt.Sprintf("malformed record: %v", err))
			continue
		}

		w, warnings, err := rec.ToWork()
		for _, warn := range warnings {
			report.Warnings = append(report.Warnings, fmt.Sprintf("record %d: %s", i, warn))
		}
		if err != nil {
			reject(i, rec.ID.String(), err.Error())
			continue
		}
		w.RawCSL = datatypes.JSON(raw)
		w.Signature = models.StrPtr(WorkSignature(w))

		if !w.HasDOI() && w.Signature != nil {
			existing, err := s.Store.FindBySignature(ctx, *w.Signature)
			switch {
			case err == nil:
				reject(i, rec.ID.String(), fmt.Sprintf("duplicate of work %s (same title, first author and year)", existing.ID))
				continue
			case !errors.Is(err, storage.ErrNotFound):
				if ctx.Err() != nil {
					return nil, fmt.Errorf("import record %d: %w", i, err)
				}
				s.Logger.Error("Dublettenprüfung fehlgeschlagen", zap.Int("index", i), zap.Error(err))
				reject(i, rec.ID.String(), "record could not be stored")
				continue
			}
		}

		if err := s.Store.CreateWork(ctx, w); err != nil {
			if errors.Is(err, storage.ErrDuplicateDOI) {
				reject(i, rec.ID.String(), fmt.Sprintf("duplicate DOI %s", models.Str(w.DOI)))
				continue
			}
			if ctx.Err() != nil {
				return nil, fmt.Errorf("import record %d: %w", i, err)
			}
			s.Logger.Error("Eintrag konnte nicht gespeichert werden", zap.Int("index", i), zap.Error(err))
			reject(i, rec.ID.String(), "record could not be stored")
			continue
		}
		report.Imported++
		report.IDs = append(report.IDs, w.ID)
		worksImported.WithLabelValues(SourceCSL).Inc()
	}

	s.Logger.Info("CSL-Import abgeschlossen",
		zap.Int("imported", report.Imported),
		zap.Int("rejected", report.Rejected),
		zap.Int("warnings", len(report.Warnings)))
	return report, nil
}

// ImportPDF extrahiert Metadaten aus einem PDF, legt das Werk an und lädt die Datei
// danach (falls konfiguriert) in den Objektspeicher.
func (s *ImportService) ImportPDF(ctx context.Context, filename string, data []byte) (*models.Work, error) {
	if s.Extractor == nil {
		return nil, errors.New("pdf extraction is not configured")
	}
	w, err := s.Extractor.Extract(ctx, filename, data)
	if err != nil {
		return nil, err
	}
	return s.storePDFWork(ctx, w, filename, data)
}

// storePDFWork speichert erst das Werk und lädt dann das PDF hoch, damit abgelehnte
// Werke keine verwaisten Objekte hinterlassen.
func (s *ImportService) storePDFWork(ctx context.Context, w *models.Work, filename string, data []byte) (*models.Work, error) {
	w.ID = uuid.NewString()
	w.Signature = models.StrPtr(WorkSignature(w))
	log := s.Logger.With(zap.String("work_id", w.ID), zap.String("filename", filename))

	if err := s.Store.CreateWork(ctx, w); err != nil {
		return nil, err
	}
	worksImported.WithLabelValues(SourcePDF).Inc()

	if s.PDFs != nil {
		link, err := s.PDFs.Upload(ctx, w.ID, data)
		if err != nil {
			log.Warn("PDF-Upload fehlgeschlagen, Werk bleibt ohne Link", zap.Error(err))
		} else if err := s.Store.SetPDFLink(ctx, w.ID, link); err != nil {
			log.Warn("PDF-Link konnte nicht gespeichert werden", zap.String("link", link), zap.Error(err))
		} else {
			w.PDFLink = &link
		}
	}

	log.Info("Werk aus PDF angelegt", zap.Int("pages", derefInt(w.PageCount)), zap.Bool("has_doi", w.HasDOI()))
	return w, nil
}

// ToWork normalisiert den Eintrag. Nicht verwertbare Identifikatoren werden mit
// Warnung verworfen; fehlender Titel oder Nachname führt zur Ablehnung.
func (r *CSLRecord) ToWork() (*models.Work, []string, error) {
	var warnings []string

	title := strings.Join(strings.Fields(r.Title.String()), " ")
	if title == "" {
		return nil, nil, invalid("title", "is required")
	}

	w := &models.Work{
		Type:           strings.ToLower(strings.TrimSpace(r.Type)),
		Title:          title,
		ContainerTitle: models.StrPtr(r.ContainerTitle.String()),
		Volume:         models.StrPtr(r.Volume.String()),
		Issue:          models.StrPtr(r.Issue.String()),
		Page:           models.StrPtr(r.Page.String()),
		Publisher:      models.StrPtr(r.Publisher.String()),
		URL:            models.StrPtr(r.URL.String()),
		Source:         SourceCSL,
	}
	if w.Type == "" {
		w.Type = "article"
	}

	for i, a := range r.Author {
		family := strings.TrimSpace(a.Family)
		given := strings.TrimSpace(a.Given)
		if family == "" {
			family = strings.TrimSpace(a.Literal)
		}
		if family == "" {
			return nil, warnings, invalid(fmt.Sprintf("author[%d].family", i), "is required")
		}
		w.Authors = append(w.Authors, models.Author{Family: family, Given: given})
	}

	if y, ok := r.Issued.Year(); ok {
		w.IssuedYear = &y
	}

	if raw := r.DOI.String(); raw != "" {
		if doi, ok := NormalizeDOI(raw); ok {
			w.DOI = &doi
		} else {
			warnings = append(warnings, fmt.Sprintf("invalid DOI %q dropped", raw))
		}
	}
	if raw := r.PMID.String(); raw != "" {
		if pmid, ok := NormalizePMID(raw); ok {
			w.PMID = &pmid
		} else {
			warnings = append(warnings, fmt.Sprintf("invalid PMID %q dropped", raw))
		}
	}

	arxivRaw := r.ArXiv.String()
	if arxivRaw == "" {
		if m := arxivURLPattern.FindStringSubmatch(r.URL.String()); m != nil {
			arxivRaw = m[1]
		}
	}
	if arxivRaw != "" {
		if id, ok := NormalizeArxivID(arxivRaw); ok {
			w.ArxivID = &id
		} else {
			warnings = append(warnings, fmt.Sprintf("invalid arXiv id %q dropped", arxivRaw))
		}
	}

	if raw := r.NumberOfPages.String(); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			w.PageCount = &n
		} else {
			warnings = append(warnings, fmt.Sprintf("invalid number-of-pages %q ignored", raw))
		}
	}
	return w, warnings, nil
}

// splitCSL zerlegt den Body in einzelne Einträge; ein einzelnes Objekt wird als
// Liste mit einem Eintrag behandelt.
func splitCSL(body []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, invalid("body", "is empty")
	}
	switch trimmed[0] {
	case '[':
		var raws []json.RawMessage
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return nil, invalid("body", "malformed CSL-JSON: %v", err)
		}
		if len(raws) == 0 {
			return nil, invalid("body", "contains no records")
		}
		return raws, nil
	case '{':
		if !json.Valid(trimmed) {
			return nil, invalid("body", "malformed CSL-JSON object")
		}
		return []json.RawMessage{json.RawMessage(trimmed)}, nil
	}
	return nil, invalid("body", "expected a CSL-JSON array or object")
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
