package services

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"refcheck/models"
)

const (
	doiSearchPages = 3
	minTitleRunes  = 20
	maxTitleRunes  = 300
)

var (
	doiCandidate      = regexp.MustCompile(`10\.\d{4,9}/[^\s<>"{}|\\^~\[\]` + "`" + `]+`)
	arxivCandidate    = regexp.MustCompile(`(?i)arXiv:\s*(\d{4}\.\d{4,5}(?:v\d+)?)`)
	referencesHeading = regexp.MustCompile(`(?im)^\s*#*\s*(?:\d+\.?\s*)?(?:references|bibliography|literature|literatur(?:verzeichnis)?|quellen)\s*$`)
	stemSeparators    = strings.NewReplacer("_", " ", "-", " ", ".", " ")
)

// PDFExtractor liest Metadaten aus hochgeladenen PDFs.
type PDFExtractor struct {
	Normalizer *TextNormalizer
}

func NewPDFExtractor(normalizer *TextNormalizer) *PDFExtractor {
	return &PDFExtractor{Normalizer: normalizer}
}

// Extract liefert ein noch nicht gespeichertes Werk mit Titel, Seitenzahl und,
// falls auffindbar, DOI und arXiv-ID. Nicht lesbare Dateien ergeben einen ValidationError.
func (e *PDFExtractor) Extract(ctx context.Context, filename string, data []byte) (*models.Work, error) {
	if len(data) == 0 {
		return nil, invalid("file", "is empty")
	}

	pageTexts, err := readPages(ctx, data)
	if err != nil {
		return nil, err
	}

	w := &models.Work{Type: "article", Source: SourcePDF}
	n := len(pageTexts)
	w.PageCount = &n

	normalized, err := e.Normalizer.Normalize(pageTexts, DefaultNormalizeOptions)
	if err == nil {
		head := make([]string, 0, doiSearchPages)
		for i := 0; i < len(normalized.Pages) && i < doiSearchPages; i++ {
			head = append(head, normalized.Pages[i].Text)
		}
		frontMatter := beforeReferences(strings.Join(head, "\n"))

		if doi, ok := NormalizeDOI(findDOI(frontMatter)); ok {
			w.DOI = &doi
		}
		if m := arxivCandidate.FindStringSubmatch(frontMatter); m != nil {
			if id, ok := NormalizeArxivID(m[1]); ok {
				w.ArxivID = &id
			}
		}
		if len(normalized.Pages) > 0 {
			w.Title = guessTitle(normalized.Pages[0].Text)
		}
	}
	if w.Title == "" {
		w.Title = titleFromFilename(filename)
	}
	if w.Title == "" {
		return nil, invalid("file", "no title could be derived from the PDF or its file name")
	}
	return w, nil
}

// readPages liest den Klartext aller Seiten. Fehlerhafte Einzelseiten bleiben leer.
func readPages(ctx context.Context, data []byte) (pages []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, invalid("file", "unreadable PDF: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, invalid("file", "unreadable PDF: %v", err)
	}
	num := reader.NumPage()
	if num < 1 {
		return nil, invalid("file", "PDF has no pages")
	}

	pages = make([]string, 0, num)
	for i := 1; i <= num; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("read pdf: %w", err)
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			text = ""
		}
		pages = append(pages, text)
	}
	return pages, nil
}

// beforeReferences schneidet den Text am Literaturverzeichnis ab, damit zitierte DOIs
// nicht als eigene DOI erkannt werden.
func beforeReferences(text string) string {
	if loc := referencesHeading.FindStringIndex(text); loc != nil {
		return text[:loc[0]]
	}
	return text
}

func findDOI(text string) string {
	for _, match := range doiCandidate.FindAllString(text, -1) {
		match = strings.TrimRight(match, ".,;:)")
		if i := strings.Index(match, "/"); i > 0 && i < len(match)-1 {
			return match
		}
	}
	return ""
}

// guessTitle nimmt die erste ausreichend lange Zeile, die nicht nach Kopfzeile aussieht.
func guessTitle(firstPage string) string {
	for _, line := range strings.Split(firstPage, "\n") {
		line = strings.TrimSpace(line)
		n := utf8.RuneCountInString(line)
		if n < minTitleRunes || n > maxTitleRunes {
			continue
		}
		if isHeaderLine(line) {
			continue
		}
		return line
	}
	return ""
}

func isHeaderLine(line string) bool {
	lower := strings.ToLower(line)
	switch {
	case strings.Contains(lower, "journal"),
		strings.Contains(lower, "copyright"),
		strings.Contains(lower, "©"),
		strings.Contains(lower, "http://"),
		strings.Contains(lower, "https://"),
		strings.Contains(lower, "doi:"),
		strings.Contains(lower, "doi.org"),
		strings.Contains(lower, "arxiv:"),
		strings.Contains(lower, "volume") && strings.Contains(lower, "issue"),
		strings.Contains(lower, "article") && strings.Contains(lower, "published"):
		return true
	}
	return false
}

func titleFromFilename(filename string) string {
	base := filepath.Base(strings.TrimSpace(filename))
	if base == "." || base == "/" {
		return ""
	}
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return strings.Join(strings.Fields(stemSeparators.Replace(stem)), " ")
}
