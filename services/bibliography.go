package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"refcheck/models"
)

const maxExportWorks = 1000

// WorkGetter lädt ein einzelnes Werk.
type WorkGetter interface {
	GetWork(ctx context.Context, id string) (*models.Work, error)
}

// Bibliography ist ein fertig formatiertes Literaturverzeichnis.
type Bibliography struct {
	Format   Style    `json:"format"`
	Text     string   `json:"bibliography"`
	Entries  []string `json:"entries"`
	Warnings []string `json:"warnings"`
}

// ExportService baut Literaturverzeichnisse aus einer Liste von Werk-IDs.
type ExportService struct {
	Store     WorkGetter
	Formatter *CitationFormatter
	Logger    *zap.Logger
}

func NewExportService(store WorkGetter, formatter *CitationFormatter, logger *zap.Logger) *ExportService {
	return &ExportService{Store: store, Formatter: formatter, Logger: logger}
}

// Export formatiert die Werke in Eingabereihenfolge. Fehlende oder nicht ladbare
// Werke erscheinen als Platzhalter und erzeugen eine Warnung.
func (s *ExportService) Export(ctx context.Context, ids []string, style Style) (*Bibliography, error) {
	if _, err := ParseStyle(string(style)); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, invalid("work_ids", "must contain at least one id")
	}
	if len(ids) > maxExportWorks {
		return nil, invalid("work_ids", "at most %d ids per export", maxExportWorks)
	}

	bib := &Bibliography{Format: style, Entries: make([]string, 0, len(ids)), Warnings: []string{}}
	usedKeys := map[string]bool{}

	for i, id := range ids {
		w, err := s.Store.GetWork(ctx, id)
		if err != nil {
			if errors.Is(err, ErrWorkNotFound) {
				bib.Warnings = append(bib.Warnings, fmt.Sprintf("work %s not found", id))
			} else {
				s.Logger.Warn("Werk konnte für den Export nicht geladen werden", zap.String("work_id", id), zap.Error(err))
				bib.Warnings = append(bib.Warnings, fmt.Sprintf("work %s could not be loaded", id))
			}
			bib.Entries = append(bib.Entries, placeholder(id, style, i+1))
			continue
		}

		var entry string
		switch style {
		case StyleBibTeX:
			key := uniqueKey(BibTeXKey(w), w.Title, usedKeys)
			usedKeys[key] = true
			entry = s.Formatter.BibTeX(w, key)
		case StyleIEEE:
			entry = fmt.Sprintf("[%d] %s", i+1, s.Formatter.IEEE(w))
		default:
			entry = s.Formatter.APA(w)
		}
		if w.Retracted {
			bib.Warnings = append(bib.Warnings, fmt.Sprintf("work %s is retracted", id))
		}
		bib.Entries = append(bib.Entries, entry)
	}

	sep := "\n\n"
	if style == StyleBibTeX {
		sep = "\n"
	}
	bib.Text = strings.Join(bib.Entries, sep)
	return bib, nil
}

func placeholder(id string, style Style, n int) string {
	switch style {
	case StyleBibTeX:
		return fmt.Sprintf("%% WARNING: work %s not found", id)
	case StyleIEEE:
		return fmt.Sprintf("[%d] [missing work: %s]", n, id)
	default:
		return fmt.Sprintf("[missing work: %s]", id)
	}
}

// uniqueKey hängt bei Kollision den Anfangsbuchstaben des ersten Titelworts an,
// danach fortlaufende Buchstaben.
func uniqueKey(base, title string, used map[string]bool) string {
	if !used[base] {
		return base
	}
	if word := asciiKey(firstWord(title)); word != "" {
		base += word[:1]
		if !used[base] {
			return base
		}
	}
	for c := 'a'; c <= 'z'; c++ {
		if k := base + string(c); !used[k] {
			return k
		}
	}
	for n := 2; ; n++ {
		if k := base + strconv.Itoa(n); !used[k] {
			return k
		}
	}
}
