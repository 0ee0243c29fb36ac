package services

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"refcheck/models"
)

const (
	maxPageSpan    = 10000
	cardSaturation = 10
	weightCard     = 40.0
	weightEvidence = 30.0
	weightCoverage = 30.0
	weightCardNoPC = 55.0
	weightEvidNoPC = 45.0
)

var pageToken = regexp.MustCompile(`(?i)^(?:pp?\.?\s*)?(\d+)(?:\s*[-‐‑‒–—]\s*(\d+))?$`)

// ReadingScorer leitet aus den Claim-Cards eines Werks die Lese-Evidenz ab.
type ReadingScorer struct{}

// ParsePages liest freie Seitenangaben wie "pp. 3-5; 9, 12–14" und liefert die
// sortierten, eindeutigen Seiten. pageCount > 0 begrenzt auf [1, pageCount].
func ParsePages(s string, pageCount int) []int {
	seen := map[int]bool{}
	for _, token := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' }) {
		m := pageToken.FindStringSubmatch(strings.TrimSpace(token))
		if m == nil {
			continue
		}
		from, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		to := from
		if m[2] != "" {
			if to, err = strconv.Atoi(m[2]); err != nil {
				continue
			}
		}
		if from > to {
			from, to = to, from
		}
		if to-from+1 > maxPageSpan {
			continue
		}
		if from < 1 {
			from = 1
		}
		if pageCount > 0 && to > pageCount {
			to = pageCount
		}
		for p := from; p <= to; p++ {
			seen[p] = true
		}
	}

	pages := make([]int, 0, len(seen))
	for p := range seen {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	return pages
}

// Score berechnet den Reading-Score. Ohne Karten ist der Score 0.
func (ReadingScorer) Score(w *models.Work, cards []models.ClaimCard) models.ReadingScore {
	rs := models.ReadingScore{WorkID: w.ID, CardCount: len(cards)}

	pageCount := 0
	if w.PageCount != nil && *w.PageCount > 0 {
		pageCount = *w.PageCount
	}

	covered := map[int]bool{}
	for _, c := range cards {
		raw := strings.TrimSpace(models.Str(c.PageNumbers))
		if raw == "" {
			continue
		}
		rs.EvidenceCount++
		for _, p := range ParsePages(raw, pageCount) {
			covered[p] = true
		}
	}
	rs.PagesCovered = len(covered)

	var coverage float64
	if pageCount > 0 {
		coverage = float64(len(covered)) / float64(pageCount)
		pct := int(math.Round(100 * coverage))
		rs.PageCoverage = &pct
	}

	if len(cards) == 0 {
		return rs
	}

	cardTerm := math.Min(1, math.Log2(1+float64(len(cards)))/math.Log2(1+cardSaturation))
	evidence := float64(rs.EvidenceCount) / float64(len(cards))

	var score float64
	if pageCount > 0 {
		score = weightCard*cardTerm + weightEvidence*evidence + weightCoverage*coverage
	} else {
		score = weightCardNoPC*cardTerm + weightEvidNoPC*evidence
	}
	rs.Score = clamp(int(math.Round(score)), 0, 100)
	return rs
}
