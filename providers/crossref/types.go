// Package crossref enthält die Crossref-Quellen für Retraktionen und Zitationszahlen.
package crossref

// WorkResponse ist die Antwort von /works/{doi}.
type WorkResponse struct {
	Status  string `json:"status"`
	Message Item   `json:"message"`
}

// SearchResponse ist die Antwort von /works?query...
type SearchResponse struct {
	Status  string `json:"status"`
	Message struct {
		TotalResults int    `json:"total-results"`
		Items        []Item `json:"items"`
	} `json:"message"`
}

// Item ist ein einzelner Crossref-Eintrag (nur die benötigten Felder).
type Item struct {
	DOI                 string                `json:"DOI"`
	Type                string                `json:"type"`
	Title               []string              `json:"title"`
	ContainerTitle      []string              `json:"container-title"`
	IsReferencedByCount *int                  `json:"is-referenced-by-count"`
	Relation            map[string][]Relation `json:"relation"`
	UpdatedBy           []Update              `json:"updated-by"`
	UpdateTo            []Update              `json:"update-to"`
	Author              []struct {
		Family string `json:"family"`
		Given  string `json:"given"`
	} `json:"author"`
}

// Relation ist ein Eintrag in relation.*.
type Relation struct {
	ID         string `json:"id"`
	IDType     string `json:"id-type"`
	AssertedBy string `json:"asserted-by"`
}

// Update beschreibt eine Crossmark-Aktualisierung (Retraction, Correction, ...).
type Update struct {
	DOI   string `json:"DOI"`
	Type  string `json:"type"`
	Label string `json:"label"`
}

// FirstTitle liefert den ersten Titel oder "".
func (i Item) FirstTitle() string {
	if len(i.Title) == 0 {
		return ""
	}
	return i.Title[0]
}
