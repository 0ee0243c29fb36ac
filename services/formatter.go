package services

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"refcheck/models"
)

// Style ist ein Zitierstil.
type Style string

const (
	StyleAPA    Style = "apa"
	StyleIEEE   Style = "ieee"
	StyleBibTeX Style = "bibtex"
)

// ParseStyle akzeptiert apa, ieee und bibtex (Groß-/Kleinschreibung egal).
func ParseStyle(s string) (Style, error) {
	switch Style(strings.ToLower(strings.TrimSpace(s))) {
	case StyleAPA:
		return StyleAPA, nil
	case StyleIEEE:
		return StyleIEEE, nil
	case StyleBibTeX:
		return StyleBibTeX, nil
	}
	return "", invalid("format", "unsupported citation style %q (use apa, ieee or bibtex)", s)
}

var (
	bibtexEscaper = strings.NewReplacer(
		`{`, `\{`,
		`}`, `\}`,
		`&`, `\&`,
		`%`, `\%`,
		`_`, `\_`,
		`#`, `\#`,
	)
	pageRangeDash = regexp.MustCompile(`\s*[-‐‑‒–—]+\s*`)
	specialFolds  = strings.NewReplacer("ß", "ss", "ø", "o", "Ø", "O", "ł", "l", "Ł", "L", "æ", "ae", "Æ", "AE", "œ", "oe", "đ", "d")
)

// CitationFormatter rendert Werke in APA, IEEE oder BibTeX. Fehlende Felder werden
// in allen Stilen ausgelassen, nie durch Platzhalter ersetzt.
type CitationFormatter struct {
	MaxIEEEAuthors int
}

// NewCitationFormatter erstellt einen Formatter; maxIEEEAuthors < 1 bedeutet 6.
func NewCitationFormatter(maxIEEEAuthors int) *CitationFormatter {
	if maxIEEEAuthors < 1 {
		maxIEEEAuthors = 6
	}
	return &CitationFormatter{MaxIEEEAuthors: maxIEEEAuthors}
}

// Format rendert das Werk im gewünschten Stil.
func (f *CitationFormatter) Format(w *models.Work, style Style) (string, error) {
	switch style {
	case StyleAPA:
		return f.APA(w), nil
	case StyleIEEE:
		return f.IEEE(w), nil
	case StyleBibTeX:
		return f.BibTeX(w, BibTeXKey(w)), nil
	}
	return "", invalid("format", "unsupported citation style %q", string(style))
}

// InText rendert den Verweis im Fließtext: APA "(He, 2016, p. 5)", IEEE "[3, p. 5]",
// BibTeX "\cite{he2016}". IEEE braucht die Nummer des Eintrags im Literaturverzeichnis.
func (f *CitationFormatter) InText(w *models.Work, style Style, page string, number int) (string, error) {
	page = normalizePageRange(page, "–")
	switch style {
	case StyleAPA:
		parts := []string{apaInTextAuthors(w)}
		if year := yearString(w); year != "" {
			parts = append(parts, year)
		}
		if page != "" {
			parts = append(parts, pageLocator(page))
		}
		return "(" + strings.Join(parts, ", ") + ")", nil
	case StyleIEEE:
		if number < 1 {
			return "", invalid("number", "IEEE in-text citations need the reference number")
		}
		if page != "" {
			return fmt.Sprintf("[%d, %s]", number, pageLocator(page)), nil
		}
		return fmt.Sprintf("[%d]", number), nil
	case StyleBibTeX:
		return `\cite{` + BibTeXKey(w) + `}`, nil
	}
	return "", invalid("format", "unsupported citation style %q", string(style))
}

// apaInTextAuthors: ein Autor "He", zwei "He & Sun", ab drei "He et al.".
// Ohne Autoren steht der Titel in Anführungszeichen.
func apaInTextAuthors(w *models.Work) string {
	var families []string
	for _, a := range w.Authors {
		if family := strings.TrimSpace(a.Family); family != "" {
			families = append(families, family)
		}
	}
	switch len(families) {
	case 0:
		return `"` + strings.TrimSpace(w.Title) + `"`
	case 1:
		return families[0]
	case 2:
		return families[0] + " & " + families[1]
	}
	return families[0] + " et al."
}

func pageLocator(page string) string {
	if strings.ContainsAny(page, "–,") {
		return "pp. " + page
	}
	return "p. " + page
}

// --- APA ---

// APA rendert z.B. "He, K. (2016). Deep Residual Learning. CVPR."
func (f *CitationFormatter) APA(w *models.Work) string {
	var parts []string

	title := strings.TrimSpace(w.Title)
	authors := apaAuthors(w.Authors)
	year := yearString(w)

	switch {
	case authors != "" && year != "":
		parts = append(parts, sentence(authors+" ("+year+")"))
	case authors != "":
		parts = append(parts, sentence(authors))
	}
	if title != "" {
		parts = append(parts, sentence(title))
	}
	if authors == "" && year != "" {
		parts = append(parts, "("+year+").")
	}

	if src := apaSource(w); src != "" {
		parts = append(parts, sentence(src))
	}
	if isBookLike(w.Type) && models.Str(w.Publisher) != "" && models.Str(w.Publisher) != models.Str(w.ContainerTitle) {
		parts = append(parts, sentence(models.Str(w.Publisher)))
	}
	if link := doiOrURL(w); link != "" {
		parts = append(parts, link)
	}
	return strings.Join(parts, " ")
}

func apaSource(w *models.Work) string {
	container := models.Str(w.ContainerTitle)
	if container == "" {
		return ""
	}
	s := container
	volume, issue := models.Str(w.Volume), models.Str(w.Issue)
	switch {
	case volume != "" && issue != "":
		s += ", " + volume + "(" + issue + ")"
	case volume != "":
		s += ", " + volume
	case issue != "":
		s += ", (" + issue + ")"
	}
	if page := models.Str(w.Page); page != "" {
		s += ", " + normalizePageRange(page, "–")
	}
	return s
}

func apaAuthors(authors []models.Author) string {
	names := make([]string, 0, len(authors))
	for _, a := range authors {
		family := strings.TrimSpace(a.Family)
		if family == "" {
			continue
		}
		if ini := initials(a.Given); ini != "" {
			names = append(names, family+", "+ini)
		} else {
			names = append(names, family)
		}
	}
	switch n := len(names); {
	case n == 0:
		return ""
	case n == 1:
		return names[0]
	case n > 20:
		// Ab 21 Autoren: die ersten 19, Auslassung, letzter Autor.
		return strings.Join(names[:19], ", ") + ", . . . " + names[n-1]
	default:
		return strings.Join(names[:n-1], ", ") + ", & " + names[n-1]
	}
}

// --- IEEE ---

// IEEE rendert z.B. `K. He, "Deep Residual Learning," CVPR, 2016.`
func (f *CitationFormatter) IEEE(w *models.Work) string {
	limit := f.MaxIEEEAuthors
	if limit < 1 {
		limit = 6
	}
	authors := ieeeAuthors(w.Authors, limit)
	title := strings.TrimRight(strings.TrimSpace(w.Title), ".")
	year := yearString(w)

	var tail []string
	if isBookLike(w.Type) {
		if p := models.Str(w.Publisher); p != "" {
			tail = append(tail, p)
		}
	} else {
		if c := models.Str(w.ContainerTitle); c != "" {
			tail = append(tail, c)
		}
		if v := models.Str(w.Volume); v != "" {
			tail = append(tail, "vol. "+v)
		}
		if n := models.Str(w.Issue); n != "" {
			tail = append(tail, "no. "+n)
		}
		if p := models.Str(w.Page); p != "" {
			p = normalizePageRange(p, "–")
			if strings.Contains(p, "–") {
				tail = append(tail, "pp. "+p)
			} else {
				tail = append(tail, "p. "+p)
			}
		}
	}
	if year != "" {
		tail = append(tail, year)
	}

	var b strings.Builder
	if authors != "" {
		b.WriteString(authors)
		if title != "" || len(tail) > 0 {
			b.WriteString(", ")
		}
	}
	rest := strings.Join(tail, ", ")
	switch {
	case title == "":
		if rest != "" {
			b.WriteString(rest + ".")
		}
	case isBookLike(w.Type):
		b.WriteString(sentence(title))
		if rest != "" {
			b.WriteString(" " + rest + ".")
		}
	case rest == "":
		b.WriteString(`"` + sentence(title) + `"`)
	default:
		b.WriteString(`"` + title + `,"` + " " + rest + ".")
	}
	out := strings.TrimSpace(b.String())

	if doi := models.Str(w.DOI); doi != "" {
		out += " doi: " + doi + "."
	} else if u := models.Str(w.URL); u != "" {
		out += " [Online]. Available: " + u
	}
	return out
}

func ieeeAuthors(authors []models.Author, limit int) string {
	names := make([]string, 0, len(authors))
	for _, a := range authors {
		family := strings.TrimSpace(a.Family)
		if family == "" {
			continue
		}
		if ini := initials(a.Given); ini != "" {
			names = append(names, ini+" "+family)
		} else {
			names = append(names, family)
		}
	}
	switch n := len(names); {
	case n == 0:
		return ""
	case n > limit:
		return strings.Join(names[:limit], ", ") + ", et al."
	case n == 1:
		return names[0]
	case n == 2:
		return names[0] + " and " + names[1]
	default:
		return strings.Join(names[:n-1], ", ") + ", and " + names[n-1]
	}
}

// --- BibTeX ---

// BibTeX rendert einen vollständigen Eintrag mit dem gegebenen Schlüssel.
func (f *CitationFormatter) BibTeX(w *models.Work, key string) string {
	entryType := BibTeXEntryType(w.Type)

	type field struct{ name, value string }
	var fields []field
	add := func(name, value string, escape bool) {
		value = strings.TrimSpace(value)
		if value == "" {
			return
		}
		if escape {
			value = bibtexEscaper.Replace(value)
		}
		fields = append(fields, field{name, value})
	}

	add("author", bibtexAuthors(w.Authors), true)
	add("title", w.Title, true)
	container := models.Str(w.ContainerTitle)
	publisher := models.Str(w.Publisher)
	switch entryType {
	case "article":
		add("journal", container, true)
	case "inproceedings", "incollection":
		add("booktitle", container, true)
	case "misc":
		add("howpublished", container, true)
	}
	add("year", yearString(w), false)
	add("volume", models.Str(w.Volume), true)
	add("number", models.Str(w.Issue), true)
	add("pages", normalizePageRange(models.Str(w.Page), "--"), true)
	switch entryType {
	case "techreport":
		add("institution", publisher, true)
	case "phdthesis":
		add("school", publisher, true)
	default:
		add("publisher", publisher, true)
	}
	add("doi", models.Str(w.DOI), false)
	add("url", models.Str(w.URL), false)

	var b strings.Builder
	fmt.Fprintf(&b, "@%s{%s", entryType, key)
	for _, fl := range fields {
		fmt.Fprintf(&b, ",\n  %s = {%s}", fl.name, fl.value)
	}
	b.WriteString("\n}")
	return b.String()
}

// BibTeXEntryType bildet den CSL-Typ auf einen BibTeX-Eintragstyp ab.
func BibTeXEntryType(cslType string) string {
	switch strings.ToLower(strings.TrimSpace(cslType)) {
	case "article", "article-journal", "article-magazine", "article-newspaper":
		return "article"
	case "book":
		return "book"
	case "paper-conference":
		return "inproceedings"
	case "chapter":
		return "incollection"
	case "report":
		return "techreport"
	case "thesis":
		return "phdthesis"
	default:
		return "misc"
	}
}

// BibTeXKey bildet den Basisschlüssel: ASCII-Nachname des Erstautors plus Jahr.
func BibTeXKey(w *models.Work) string {
	base := asciiKey(w.FirstAuthorFamily())
	if base == "" {
		base = asciiKey(firstWord(w.Title))
	}
	if base == "" {
		base = "ref"
	}
	return base + yearString(w)
}

func bibtexAuthors(authors []models.Author) string {
	names := make([]string, 0, len(authors))
	for _, a := range authors {
		family := strings.TrimSpace(a.Family)
		if family == "" {
			continue
		}
		if given := strings.TrimSpace(a.Given); given != "" {
			names = append(names, family+", "+given)
		} else {
			names = append(names, family)
		}
	}
	return strings.Join(names, " and ")
}

// --- Hilfsfunktionen ---

// initials: "Kaiming" -> "K.", "Ronald S." -> "R. S.", "Jean-Paul" -> "J.-P."
func initials(given string) string {
	var out []string
	for _, word := range strings.Fields(given) {
		var hy []string
		for _, part := range strings.Split(word, "-") {
			part = strings.Trim(part, ".")
			if part == "" {
				continue
			}
			r, _ := utf8.DecodeRuneInString(part)
			hy = append(hy, string(unicode.ToUpper(r))+".")
		}
		if len(hy) > 0 {
			out = append(out, strings.Join(hy, "-"))
		}
	}
	return strings.Join(out, " ")
}

func yearString(w *models.Work) string {
	if w.IssuedYear == nil {
		return ""
	}
	return strconv.Itoa(*w.IssuedYear)
}

// sentence hängt einen Punkt an, sofern der Text nicht schon mit einem Satzzeichen endet.
func sentence(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	switch s[len(s)-1] {
	case '.', '?', '!':
		return s
	}
	return s + "."
}

func doiOrURL(w *models.Work) string {
	if doi := models.Str(w.DOI); doi != "" {
		return "https://doi.org/" + doi
	}
	return models.Str(w.URL)
}

func isBookLike(cslType string) bool {
	switch strings.ToLower(cslType) {
	case "book", "report", "thesis":
		return true
	}
	return false
}

func normalizePageRange(p, dash string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	return pageRangeDash.ReplaceAllString(p, dash)
}

func firstWord(s string) string {
	for _, w := range strings.Fields(s) {
		if k := asciiKey(w); len(k) > 0 {
			return w
		}
	}
	return ""
}

// asciiKey faltet Diakritika und behält nur Kleinbuchstaben a-z.
// Die Transformer-Kette hält Zustand und wird deshalb pro Aufruf gebaut.
func asciiKey(s string) string {
	folder := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(folder, specialFolds.Replace(s))
	if err != nil {
		folded = s
	}
	var b strings.Builder
	for _, r := range strings.ToLower(folded) {
		if r >= 'a' && r <= 'z' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
