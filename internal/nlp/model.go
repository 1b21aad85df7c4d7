// Package nlp wraps the natural-language model used by the analysis pipeline.
//
// The pipeline depends only on Model, so any backend offering sentence and
// word segmentation, part-of-speech tagging and entity recognition can be
// substituted. The bundled backend is prose (see Prose).
package nlp

import "strings"

// Part-of-speech tag prefixes (Penn Treebank) used for bucketing.
const (
	AdverbPrefix    = "RB"
	NounPrefix      = "NN"
	AdjectivePrefix = "JJ"
)

// PersonLabel is the entity label for people.
const PersonLabel = "PERSON"

type TaggedToken struct {
	Word string `json:"word"`
	Tag  string `json:"tag"`
}

type Entity struct {
	Text  string `json:"text"`
	Label string `json:"label"`
}

// Model is a natural-language backend. Implementations must be safe for
// concurrent use; the process shares one instance across requests.
type Model interface {
	// Tokenize segments text into sentences and words, both in source order.
	Tokenize(text string) (sentences []string, words []string, err error)
	// Tag returns exactly one tagged token per input word, in input order.
	Tag(words []string) ([]TaggedToken, error)
	// Entities returns the labelled named entities found in text.
	Entities(text string) ([]Entity, error)
}

// PersonNames returns the text of every PERSON entity the model finds.
func PersonNames(m Model, text string) ([]string, error) {
	ents, err := m.Entities(text)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0)
	for _, e := range ents {
		if e.Label == PersonLabel {
			out = append(out, e.Text)
		}
	}
	return out, nil
}

// Bucket returns the words whose tag starts with prefix, in order.
func Bucket(tagged []TaggedToken, prefix string) []string {
	out := make([]string, 0)
	for _, t := range tagged {
		if strings.HasPrefix(t.Tag, prefix) {
			out = append(out, t.Word)
		}
	}
	return out
}
