package analysis

import (
	"github.com/toricodesthings/doc-insight-service/internal/patterns"
	"github.com/toricodesthings/doc-insight-service/internal/rank"
)

// Result is the merged output of every pipeline stage for one document. It is
// built once and not modified afterwards.
type Result struct {
	ID string `json:"id"`

	// Source is set when the document came through a DescribedSource.
	Source *SourceInfo `json:"source,omitempty"`

	SentenceCount int `json:"sentenceCount"`
	WordCount     int `json:"wordCount"`
	CharCount     int `json:"charCount"`

	Adverbs    []string `json:"adverbs"`
	Nouns      []string `json:"nouns"`
	Adjectives []string `json:"adjectives"`

	Emails      []rank.Ranked[string] `json:"emails"`
	Phones      []string              `json:"phones"`
	WebLinks    []patterns.WebLink    `json:"webLinks"`
	Addresses   []string              `json:"addresses"`
	Dates       []string              `json:"dates"`
	PersonNames []string              `json:"personNames"`

	TopTerms []rank.Ranked[string] `json:"topTerms"`

	Keyword       string                `json:"keyword,omitempty"`
	KeywordCounts []rank.Ranked[string] `json:"keywordCounts,omitempty"`
	KeywordLines  []string              `json:"keywordLines,omitempty"`

	Text        string `json:"text"`
	CleanedText string `json:"cleanedText"`
}

// SourceInfo describes how a document's text was obtained.
type SourceInfo struct {
	Method   string            `json:"method"`
	FileType string            `json:"fileType"`
	MIMEType string            `json:"mimeType"`
	Metadata map[string]string `json:"metadata,omitempty"`
}
