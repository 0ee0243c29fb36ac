package services

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"refcheck/models"
)

func resnet() *models.Work {
	return &models.Work{
		Type:           "paper-conference",
		Title:          "Deep Residual Learning",
		Authors:        []models.Author{{Family: "He", Given: "Kaiming"}},
		IssuedYear:     models.IntPtr(2016),
		ContainerTitle: models.StrPtr("CVPR"),
	}
}

func authorsN(n int) []models.Author {
	var out []models.Author
	for i := 0; i < n; i++ {
		out = append(out, models.Author{Family: "Author" + string(rune('A'+i)), Given: "Given"})
	}
	return out
}

func TestParseStyle(t *testing.T) {
	for _, in := range []string{"apa", "APA", " ieee ", "BibTeX"} {
		_, err := ParseStyle(in)
		assert.NoError(t, err, in)
	}
	_, err := ParseStyle("chicago")
	assert.True(t, IsValidation(err))
	_, err = ParseStyle("")
	assert.True(t, IsValidation(err))
}

func TestAPA(t *testing.T) {
	f := NewCitationFormatter(6)

	tests := []struct {
		name string
		work *models.Work
		want string
	}{
		{"reference example", resnet(), "He, K. (2016). Deep Residual Learning. CVPR."},
		{"two authors use ampersand", &models.Work{
			Title:      "Attention",
			Authors:    []models.Author{{Family: "Vaswani", Given: "Ashish"}, {Family: "Shazeer", Given: "Noam"}},
			IssuedYear: models.IntPtr(2017),
		}, "Vaswani, A., & Shazeer, N. (2017). Attention."},
		{"three authors and full source", &models.Work{
			Title:          "Paper",
			Authors:        []models.Author{{Family: "A", Given: "Ronald S."}, {Family: "B", Given: "Jean-Paul"}, {Family: "C"}},
			IssuedYear:     models.IntPtr(2020),
			ContainerTitle: models.StrPtr("Nature"),
			Volume:         models.StrPtr("580"),
			Issue:          models.StrPtr("7"),
			Page:           models.StrPtr("12-19"),
			DOI:            models.StrPtr("10.1038/x"),
		}, "A, R. S., B, J.-P., & C (2020). Paper. Nature, 580(7), 12–19. https://doi.org/10.1038/x"},
		{"missing year is omitted", &models.Work{
			Title:   "Untimed",
			Authors: []models.Author{{Family: "Doe", Given: "Jane"}},
		}, "Doe, J. Untimed."},
		{"no authors moves title first", &models.Work{
			Title:          "Anonymous Report",
			IssuedYear:     models.IntPtr(1999),
			ContainerTitle: models.StrPtr("Gazette"),
		}, "Anonymous Report. (1999). Gazette."},
		{"url when no doi", &models.Work{
			Title: "Site", URL: models.StrPtr("https://example.org"),
		}, "Site. https://example.org"},
		{"title with question mark", &models.Work{
			Title: "Why?", Authors: []models.Author{{Family: "Q"}},
		}, "Q. Why?"},
		{"book publisher", &models.Work{
			Type: "book", Title: "Book", Authors: []models.Author{{Family: "Knuth", Given: "Donald"}},
			IssuedYear: models.IntPtr(1968), Publisher: models.StrPtr("Addison-Wesley"),
		}, "Knuth, D. (1968). Book. Addison-Wesley."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.APA(tt.work))
		})
	}
}

func TestIEEE(t *testing.T) {
	f := NewCitationFormatter(6)

	tests := []struct {
		name string
		work *models.Work
		want string
	}{
		{"reference example", resnet(), `K. He, "Deep Residual Learning," CVPR, 2016.`},
		{"two authors", &models.Work{
			Title:   "T",
			Authors: []models.Author{{Family: "Smith", Given: "John"}, {Family: "Doe", Given: "Jane"}},
		}, `J. Smith and J. Doe, "T."`},
		{"three authors with volume and pages", &models.Work{
			Title:          "Learning",
			Authors:        []models.Author{{Family: "A", Given: "Al"}, {Family: "B", Given: "Bo"}, {Family: "C", Given: "Cy"}},
			ContainerTitle: models.StrPtr("IEEE Trans. Neural Netw."),
			Volume:         models.StrPtr("5"),
			Issue:          models.StrPtr("2"),
			Page:           models.StrPtr("157-166"),
			IssuedYear:     models.IntPtr(1994),
			DOI:            models.StrPtr("10.1109/72.279181"),
		}, `A. A, B. B, and C. C, "Learning," IEEE Trans. Neural Netw., vol. 5, no. 2, pp. 157–166, 1994. doi: 10.1109/72.279181.`},
		{"url available", &models.Work{
			Title: "Page", URL: models.StrPtr("https://example.org/p"), IssuedYear: models.IntPtr(2021),
		}, `"Page," 2021. [Online]. Available: https://example.org/p`},
		{"book title unquoted", &models.Work{
			Type: "book", Title: "The Art of Computer Programming", Authors: []models.Author{{Family: "Knuth", Given: "Donald E."}},
			Publisher: models.StrPtr("Addison-Wesley"), IssuedYear: models.IntPtr(1968),
		}, `D. E. Knuth, The Art of Computer Programming. Addison-Wesley, 1968.`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.IEEE(tt.work))
		})
	}
}

func TestIEEETruncatesAuthors(t *testing.T) {
	w := &models.Work{Title: "Many", Authors: authorsN(8)}

	out := NewCitationFormatter(6).IEEE(w)
	assert.Contains(t, out, "G. AuthorF, et al.")
	assert.NotContains(t, out, "AuthorG")

	exact := &models.Work{Title: "Six", Authors: authorsN(6)}
	assert.NotContains(t, NewCitationFormatter(6).IEEE(exact), "et al.")
	assert.Contains(t, NewCitationFormatter(6).IEEE(exact), "and G. AuthorF")
}

func TestBibTeX(t *testing.T) {
	f := NewCitationFormatter(6)
	w := &models.Work{
		Type:           "article-journal",
		Title:          "Costs & Benefits of 100% {Open} Data_Sets #1",
		Authors:        []models.Author{{Family: "Müller", Given: "Jürgen"}, {Family: "Smith"}},
		IssuedYear:     models.IntPtr(2019),
		ContainerTitle: models.StrPtr("Data & Society"),
		Page:           models.StrPtr("5–7"),
		DOI:            models.StrPtr("10.1000/a_b%c"),
		URL:            models.StrPtr("https://example.org/a_b?x=1&y=2"),
	}
	out, err := f.Format(w, StyleBibTeX)
	require.NoError(t, err)

	want := "@article{muller2019,\n" +
		"  author = {Müller, Jürgen and Smith},\n" +
		`  title = {Costs \& Benefits of 100\% \{Open\} Data\_Sets \#1},` + "\n" +
		`  journal = {Data \& Society},` + "\n" +
		"  year = {2019},\n" +
		"  pages = {5--7},\n" +
		"  doi = {10.1000/a_b%c},\n" +
		"  url = {https://example.org/a_b?x=1&y=2}\n" +
		"}"
	assert.Equal(t, want, out)
}

func TestBibTeXEntryType(t *testing.T) {
	tests := map[string]string{
		"article":          "article",
		"article-journal":  "article",
		"book":             "book",
		"paper-conference": "inproceedings",
		"chapter":          "incollection",
		"report":           "techreport",
		"thesis":           "phdthesis",
		"webpage":          "misc",
		"":                 "misc",
	}
	for in, want := range tests {
		assert.Equal(t, want, BibTeXEntryType(in), in)
	}
}

func TestBibTeXConferenceUsesBooktitle(t *testing.T) {
	out := NewCitationFormatter(6).BibTeX(resnet(), "he2016")
	assert.True(t, strings.HasPrefix(out, "@inproceedings{he2016,"))
	assert.Contains(t, out, "booktitle = {CVPR}")
	assert.NotContains(t, out, "journal")
}

func TestBibTeXKey(t *testing.T) {
	assert.Equal(t, "he2016", BibTeXKey(resnet()))
	assert.Equal(t, "oconnor", BibTeXKey(&models.Work{Title: "X", Authors: []models.Author{{Family: "O'Connor"}}}))
	assert.Equal(t, "strasse2001", BibTeXKey(&models.Work{Title: "X", Authors: []models.Author{{Family: "Straße"}}, IssuedYear: models.IntPtr(2001)}))
	assert.Equal(t, "deep2016", BibTeXKey(&models.Work{Title: "Deep Learning", IssuedYear: models.IntPtr(2016)}))
	assert.Equal(t, "ref", BibTeXKey(&models.Work{Title: "2020"}))
}

func TestMissingFieldsNeverRenderPlaceholders(t *testing.T) {
	f := NewCitationFormatter(6)
	minimal := &models.Work{Title: "Only a title"}
	for _, style := range []Style{StyleAPA, StyleIEEE, StyleBibTeX} {
		out, err := f.Format(minimal, style)
		require.NoError(t, err)
		for _, token := range []string{"n.d.", "Unknown", "undefined", "null", "<nil>", "{}", "()", ", ,"} {
			assert.NotContains(t, out, token, "%s output %q", style, out)
		}
	}
}

func TestFormatIsDeterministic(t *testing.T) {
	f := NewCitationFormatter(6)
	for _, style := range []Style{StyleAPA, StyleIEEE, StyleBibTeX} {
		a, _ := f.Format(resnet(), style)
		b, _ := f.Format(resnet(), style)
		assert.Equal(t, a, b)
	}
}

func TestInText(t *testing.T) {
	f := NewCitationFormatter(6)
	two := resnet()
	two.Authors = append(two.Authors, models.Author{Family: "Sun", Given: "Jian"})
	many := resnet()
	many.Authors = authorsN(3)
	anon := resnet()
	anon.Authors = nil
	anon.IssuedYear = nil

	tests := []struct {
		name   string
		work   *models.Work
		style  Style
		page   string
		number int
		want   string
	}{
		{"apa single", resnet(), StyleAPA, "", 0, "(He, 2016)"},
		{"apa page", resnet(), StyleAPA, "5", 0, "(He, 2016, p. 5)"},
		{"apa range", resnet(), StyleAPA, "5-7", 0, "(He, 2016, pp. 5–7)"},
		{"apa two authors", two, StyleAPA, "", 0, "(He & Sun, 2016)"},
		{"apa many authors", many, StyleAPA, "", 0, "(AuthorA et al., 2016)"},
		{"apa anonymous", anon, StyleAPA, "", 0, `("Deep Residual Learning")`},
		{"ieee", resnet(), StyleIEEE, "", 3, "[3]"},
		{"ieee page", resnet(), StyleIEEE, "12", 3, "[3, p. 12]"},
		{"bibtex", resnet(), StyleBibTeX, "", 0, `\cite{he2016}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.InText(tt.work, tt.style, tt.page, tt.number)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := f.InText(resnet(), StyleIEEE, "", 0)
	assert.True(t, IsValidation(err))
}

func TestBibTeXKeyConcurrent(t *testing.T) {
	w := &models.Work{Title: "Stadtgeschichte", Authors: []models.Author{{Family: "Müller-Lüdenscheidt"}}, IssuedYear: models.IntPtr(2001)}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if key := BibTeXKey(w); key != "mullerludenscheidt2001" {
					t.Errorf("unexpected key %q", key)
					return
				}
			}
		}()
	}
	wg.Wait()
}
