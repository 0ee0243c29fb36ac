package services

import (
	"errors"
	"math"
	"regexp"
	"strings"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

// NormalizeOptions steuern die Heuristiken für die Text-Normalisierung
type NormalizeOptions struct {
	NormalizeUnicode      bool
	FixHyphenation        bool
	CollapseWhitespace    bool
	HeaderFooterDetection bool
	HeaderFooterThreshold float64
}

// DefaultNormalizeOptions schaltet alle Heuristiken ein.
var DefaultNormalizeOptions = NormalizeOptions{
	NormalizeUnicode:      true,
	FixHyphenation:        true,
	CollapseWhitespace:    true,
	HeaderFooterDetection: true,
	HeaderFooterThreshold: 0.6,
}

// Page repräsentiert normalisierten Seitentext
type Page struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// Stats enthält Kennzahlen zur Normalisierung
type Stats struct {
	NumPages       int `json:"num_pages"`
	NumWords       int `json:"num_words"`
	HyphenFixes    int `json:"hyphen_fixes"`
	HeadersRemoved int `json:"headers_removed"`
	FootersRemoved int `json:"footers_removed"`
}

// NormalizedText bündelt Ergebnis der Normalisierung
type NormalizedText struct {
	FullText string `json:"full_text"`
	Pages    []Page `json:"pages"`
	Stats    Stats  `json:"stats"`
}

var (
	ligatures = strings.NewReplacer(
		"ﬁ", "fi",
		"ﬂ", "fl",
		"ﬀ", "ff",
		"ﬃ", "ffi",
		"ﬄ", "ffl",
		"ﬆ", "st",
	)
	hyphenBreak   = regexp.MustCompile(`(?m)([\p{L}\p{N}])-(?:\r?\n)([\p{Ll}])`)
	spaceRun      = regexp.MustCompile("[\t\f\v ]+")
	multiSpace    = regexp.MustCompile(` {2,}`)
	multiNewlines = regexp.MustCompile(`\n{3,}`)
	pageNumber    = regexp.MustCompile(`^(?:[Pp]age\s*)?\d+(?:\s*/\s*\d+)?$`)
	doiInText     = regexp.MustCompile(`(?i)\b10\.\d{4,9}/\S+`)
	wordSplit     = regexp.MustCompile(`\s+`)
)

// TextNormalizer bereinigt seitenweise extrahierten PDF-Text.
type TextNormalizer struct {
	logger *zap.Logger
}

func NewTextNormalizer(logger *zap.Logger) *TextNormalizer {
	return &TextNormalizer{logger: logger}
}

// Normalize bereinigt die Seiten und fügt sie zu einem Volltext zusammen.
// Wiederkehrende Kopf-/Fußzeilen und Seitenzahlen werden entfernt, Zeilen mit DOI bleiben erhalten.
func (tn *TextNormalizer) Normalize(pageTexts []string, opts NormalizeOptions) (NormalizedText, error) {
	if opts.HeaderFooterThreshold <= 0 {
		opts.HeaderFooterThreshold = 0.6
	}

	var stats Stats
	headerLines, footerLines := map[string]int{}, map[string]int{}
	if opts.HeaderFooterDetection && len(pageTexts) > 1 {
		headerLines, footerLines = detectHeaderFooterLines(pageTexts)
	}
	thresholdCount := int(math.Ceil(opts.HeaderFooterThreshold * float64(len(pageTexts))))
	if thresholdCount < 2 {
		thresholdCount = 2
	}

	pages := make([]Page, 0, len(pageTexts))
	for i, processed := range pageTexts {
		if opts.NormalizeUnicode {
			processed = normalizeUnicodeAndLigatures(processed)
		}
		if opts.FixHyphenation {
			var count int
			processed, count = fixHyphenation(processed)
			stats.HyphenFixes += count
		}

		lines := splitLines(processed)
		headerSet := map[string]bool{}
		footerSet := map[string]bool{}
		for _, l := range firstNNonEmpty(lines, 3) {
			key := strings.TrimSpace(l)
			if headerLines[key] >= thresholdCount || isLikelyPageNumber(key) {
				headerSet[key] = true
			}
		}
		for _, l := range lastNNonEmpty(lines, 3) {
			key := strings.TrimSpace(l)
			if footerLines[key] >= thresholdCount || isLikelyPageNumber(key) {
				footerSet[key] = true
			}
		}

		kept := make([]string, 0, len(lines))
		for _, l := range lines {
			trimmed := strings.TrimSpace(l)
			protected := doiInText.MatchString(trimmed)
			if headerSet[trimmed] && !protected {
				stats.HeadersRemoved++
				continue
			}
			if footerSet[trimmed] && !protected {
				stats.FootersRemoved++
				continue
			}
			kept = append(kept, l)
		}
		processed = strings.Join(kept, "\n")

		if opts.CollapseWhitespace {
			processed = collapseWhitespace(processed)
		}
		pages = append(pages, Page{Index: i, Text: strings.TrimSpace(processed)})
	}

	joined := make([]string, 0, len(pages))
	for _, p := range pages {
		if p.Text != "" {
			joined = append(joined, p.Text)
		}
	}
	fullText := strings.Join(joined, "\n\n")
	if fullText == "" {
		return NormalizedText{}, errors.New("no text extracted")
	}

	stats.NumPages = len(pages)
	stats.NumWords = wordCount(fullText)
	if tn.logger != nil {
		tn.logger.Debug("Text normalisiert",
			zap.Int("pages", stats.NumPages),
			zap.Int("words", stats.NumWords),
			zap.Int("hyphen_fixes", stats.HyphenFixes),
			zap.Int("headers_removed", stats.HeadersRemoved))
	}
	return NormalizedText{FullText: fullText, Pages: pages, Stats: stats}, nil
}

// detectHeaderFooterLines sammelt Top/Bottom-Zeilen über Seiten und zählt Häufigkeiten
func detectHeaderFooterLines(pageTexts []string) (map[string]int, map[string]int) {
	headerCounts := map[string]int{}
	footerCounts := map[string]int{}
	for _, text := range pageTexts {
		lines := splitLines(text)
		for _, l := range firstNNonEmpty(lines, 3) {
			headerCounts[strings.TrimSpace(l)]++
		}
		for _, l := range lastNNonEmpty(lines, 3) {
			footerCounts[strings.TrimSpace(l)]++
		}
	}
	return headerCounts, footerCounts
}

// normalizeUnicodeAndLigatures ersetzt Ligaturen und normalisiert nach NFKC
func normalizeUnicodeAndLigatures(s string) string {
	return norm.NFKC.String(ligatures.Replace(s))
}

// fixHyphenation entfernt Trennstriche am Zeilenende zwischen Wort und kleinem Anfangsbuchstaben der Folgezeile
func fixHyphenation(s string) (string, int) {
	// "ab-\nweichung" -> "abweichung"
	count := len(hyphenBreak.FindAllStringIndex(s, -1))
	if count == 0 {
		return s, 0
	}
	return hyphenBreak.ReplaceAllString(s, "$1$2"), count
}

func collapseWhitespace(s string) string {
	s = spaceRun.ReplaceAllString(s, " ")
	s = multiSpace.ReplaceAllString(s, " ")
	s = multiNewlines.ReplaceAllString(s, "\n\n")
	lines := splitLines(s)
	for i := range lines {
		lines[i] = strings.TrimRightFunc(lines[i], unicode.IsSpace)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func isLikelyPageNumber(s string) bool {
	trimmed := strings.TrimSpace(s)
	return trimmed != "" && pageNumber.MatchString(trimmed)
}

func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.Split(s, "\n")
}

func firstNNonEmpty(lines []string, n int) []string {
	var out []string
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		out = append(out, l)
		if len(out) == n {
			break
		}
	}
	return out
}

func lastNNonEmpty(lines []string, n int) []string {
	var out []string
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) == "" {
			continue
		}
		out = append(out, lines[i])
		if len(out) == n {
			break
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func wordCount(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	return len(wordSplit.Split(s, -1))
}
