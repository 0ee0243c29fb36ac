package services

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"

	"refcheck/models"
)

var (
	doiPrefixPattern = regexp.MustCompile(`(?i)^(?:https?://(?:dx\.)?doi\.org/|doi:\s*)`)
	doiPattern       = regexp.MustCompile(`(?i)^10\.\d{4,9}/[-._;()/:<>A-Z0-9]+$`)
	pmidPattern      = regexp.MustCompile(`^\d{1,9}$`)
	arxivNewPattern  = regexp.MustCompile(`^\d{4}\.\d{4,5}(v\d+)?$`)
	arxivOldPattern  = regexp.MustCompile(`^[a-z-]+(\.[A-Z]{2})?/\d{7}(v\d+)?$`)
	arxivPrefix      = regexp.MustCompile(`(?i)^(?:https?://arxiv\.org/(?:abs|pdf)/|arxiv:\s*)`)
	signatureStrip   = regexp.MustCompile(`[^\p{L}\p{N}_\s]+`)
)

// NormalizeDOI entfernt Resolver-Präfixe, wandelt in Kleinbuchstaben und validiert.
// ok ist false für leere oder ungültige DOIs.
func NormalizeDOI(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	s = doiPrefixPattern.ReplaceAllString(s, "")
	s = strings.TrimRight(s, ".,;")
	s = strings.ToLower(s)
	if s == "" || !doiPattern.MatchString(s) {
		return "", false
	}
	return s, true
}

// NormalizePMID akzeptiert reine Ziffern, optional mit "PMID:"-Präfix.
func NormalizePMID(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if len(s) >= 5 && strings.EqualFold(s[:5], "pmid:") {
		s = strings.TrimSpace(s[5:])
	}
	s = strings.TrimLeft(s, "0")
	if !pmidPattern.MatchString(s) {
		return "", false
	}
	return s, true
}

// NormalizeArxivID akzeptiert neue (2101.00001) und alte (hep-th/9901001) Schemata.
func NormalizeArxivID(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	s = arxivPrefix.ReplaceAllString(s, "")
	s = strings.TrimSuffix(s, ".pdf")
	if arxivNewPattern.MatchString(s) || arxivOldPattern.MatchString(s) {
		return s, true
	}
	return "", false
}

// WorkSignature bildet aus Titel, Erstautor und Jahr einen Hash, der Schreibvarianten
// wie Groß-/Kleinschreibung und Satzzeichen ignoriert. Ohne Titel ist die Signatur leer.
func WorkSignature(w *models.Work) string {
	title := strings.Join(strings.Fields(signatureStrip.ReplaceAllString(strings.ToLower(w.Title), "")), " ")
	if title == "" {
		return ""
	}
	parts := []string{title}
	if family := strings.ToLower(strings.TrimSpace(w.FirstAuthorFamily())); family != "" {
		parts = append(parts, family)
	}
	if w.IssuedYear != nil {
		parts = append(parts, strconv.Itoa(*w.IssuedYear))
	}
	sum := md5.Sum([]byte(strings.Join(parts, "_")))
	return hex.EncodeToString(sum[:])
}
