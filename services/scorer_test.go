package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"refcheck/models"
)

func card(pages string) models.ClaimCard {
	return models.ClaimCard{ClaimText: "claim", Context: "ctx", PageNumbers: models.StrPtr(pages)}
}

func TestParsePages(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		pageCount int
		want      []int
	}{
		{"single", "7", 0, []int{7}},
		{"list", "1, 3; 5", 0, []int{1, 3, 5}},
		{"prefixes", "p. 4, pp.6-7, PP 9", 0, []int{4, 6, 7, 9}},
		{"dashes", "1-2, 4–5, 7—8", 0, []int{1, 2, 4, 5, 7, 8}},
		{"reversed range", "5-3", 0, []int{3, 4, 5}},
		{"garbage ignored", "abc, 2, x-y, 3a", 0, []int{2}},
		{"overlap deduped", "1-3, 2-4", 0, []int{1, 2, 3, 4}},
		{"huge range ignored", "1-20000, 8", 0, []int{8}},
		{"clamped to page count", "8-12, 40", 10, []int{8, 9, 10}},
		{"zero dropped", "0-2", 0, []int{1, 2}},
		{"empty", "", 0, []int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParsePages(tt.in, tt.pageCount))
		})
	}
}

func TestReadingScoreEmpty(t *testing.T) {
	rs := ReadingScorer{}.Score(&models.Work{ID: "w", PageCount: models.IntPtr(10)}, nil)
	assert.Equal(t, 0, rs.Score)
	assert.Equal(t, 0, rs.CardCount)
	require.NotNil(t, rs.PageCoverage)
	assert.Equal(t, 0, *rs.PageCoverage)
}

func TestReadingScoreWithPageCount(t *testing.T) {
	w := &models.Work{ID: "w", PageCount: models.IntPtr(10)}
	rs := ReadingScorer{}.Score(w, []models.ClaimCard{card("1-2")})

	assert.Equal(t, 48, rs.Score)
	assert.Equal(t, 1, rs.CardCount)
	assert.Equal(t, 1, rs.EvidenceCount)
	assert.Equal(t, 2, rs.PagesCovered)
	require.NotNil(t, rs.PageCoverage)
	assert.Equal(t, 20, *rs.PageCoverage)
}

func TestReadingScoreWithoutPageCount(t *testing.T) {
	w := &models.Work{ID: "w"}
	rs := ReadingScorer{}.Score(w, []models.ClaimCard{{ClaimText: "c", Context: "x"}})
	assert.Equal(t, 16, rs.Score)
	assert.Nil(t, rs.PageCoverage)
	assert.Equal(t, 0, rs.EvidenceCount)

	var cards []models.ClaimCard
	for i := 0; i < 10; i++ {
		cards = append(cards, card("3"))
	}
	assert.Equal(t, 100, ReadingScorer{}.Score(w, cards).Score)
}

func TestReadingScoreFullCoverageCapsAt100(t *testing.T) {
	w := &models.Work{ID: "w", PageCount: models.IntPtr(3)}
	var cards []models.ClaimCard
	for i := 0; i < 25; i++ {
		cards = append(cards, card("1-3"))
	}
	rs := ReadingScorer{}.Score(w, cards)
	assert.Equal(t, 100, rs.Score)
	assert.Equal(t, 100, *rs.PageCoverage)
}

func TestReadingScoreMonotonic(t *testing.T) {
	for _, pc := range []*int{nil, models.IntPtr(50)} {
		w := &models.Work{ID: "w", PageCount: pc}
		var cards []models.ClaimCard
		for i := 0; i < 15; i++ {
			if i%3 == 0 {
				cards = append(cards, models.ClaimCard{ClaimText: "c", Context: "x"})
			} else {
				cards = append(cards, card("2"))
			}
			before := ReadingScorer{}.Score(w, cards).Score
			after := ReadingScorer{}.Score(w, append(cards, card("7"))).Score
			assert.GreaterOrEqual(t, after, before)
			assert.GreaterOrEqual(t, before, 0)
			assert.LessOrEqual(t, after, 100)
		}
	}
}
