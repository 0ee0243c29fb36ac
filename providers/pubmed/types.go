// Package pubmed enthält die Logik für die Interaktion mit der PubMed E-Utilities API.
package pubmed

import (
	"encoding/xml"
)

// PubmedArticleSet repräsentiert das gesamte XML-Dokument von efetch.
type PubmedArticleSet struct {
	XMLName       xml.Name        `xml:"PubmedArticleSet"`
	PubmedArticle []PubmedArticle `xml:"PubmedArticle"`
}

// PubmedArticle repräsentiert einen einzelnen Artikel in der XML-Antwort.
type PubmedArticle struct {
	MedlineCitation struct {
		PMID    string `xml:"PMID"`
		Article struct {
			Title   string `xml:"ArticleTitle"`
			Journal struct {
				Title   string `xml:"Title"`
				PubDate struct {
					Year string `xml:"Year"`
				} `xml:"JournalIssue>PubDate"`
			} `xml:"Journal"`
			PublicationTypes []string `xml:"PublicationTypeList>PublicationType"`
		} `xml:"Article"`
		CommentsCorrections []struct {
			RefType string `xml:"RefType,attr"`
			Source  string `xml:"RefSource"`
			PMID    string `xml:"PMID"`
		} `xml:"CommentsCorrectionsList>CommentsCorrections"`
	} `xml:"MedlineCitation"`
}

// RetractionNotices liefert Verweise auf Retraktionsmitteilungen.
func (a *PubmedArticle) RetractionNotices() []string {
	var notices []string
	for _, cc := range a.MedlineCitation.CommentsCorrections {
		if cc.RefType == "RetractionIn" {
			notices = append(notices, cc.Source)
		}
	}
	return notices
}

// HasPublicationType prüft auf einen PubMed-Publikationstyp.
func (a *PubmedArticle) HasPublicationType(t string) bool {
	for _, pt := range a.MedlineCitation.Article.PublicationTypes {
		if pt == t {
			return true
		}
	}
	return false
}
