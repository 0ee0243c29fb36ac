// Package europepmc liefert den Begutachtungsstatus eines Werks aus Europe PMC.
package europepmc

import "strings"

// SearchResponse ist die Top-Level-Struktur der Europe PMC API-Antwort.
type SearchResponse struct {
	HitCount   int `json:"hitCount"`
	ResultList struct {
		Result []Article `json:"result"`
	} `json:"resultList"`
}

// Article repräsentiert einen einzelnen Artikel in der API-Antwort.
type Article struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	PMID         string `json:"pmid"`
	DOI          string `json:"doi"`
	Title        string `json:"title"`
	JournalTitle string `json:"journalTitle"`
	JournalInfo  struct {
		Journal struct {
			Title string `json:"title"`
		} `json:"journal"`
	} `json:"journalInfo"`
	PubTypeList struct {
		PubType []string `json:"pubType"`
	} `json:"pubTypeList"`
}

// Journal liefert den Zeitschriftentitel aus lite- oder core-Antworten.
func (a Article) Journal() string {
	if a.JournalTitle != "" {
		return a.JournalTitle
	}
	return a.JournalInfo.Journal.Title
}

// IsPreprint meldet Preprint-Server-Einträge (Quelle PPR) oder Preprint-Publikationstyp.
func (a Article) IsPreprint() bool {
	if strings.EqualFold(a.Source, "PPR") {
		return true
	}
	for _, t := range a.PubTypeList.PubType {
		if strings.Contains(strings.ToLower(t), "preprint") {
			return true
		}
	}
	return false
}
