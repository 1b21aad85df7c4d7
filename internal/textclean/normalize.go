// Package textclean derives the cleaned text variant used for word statistics
// and entity recognition. Pattern extraction never sees cleaned text.
package textclean

import (
	"regexp"
	"strings"
)

var (
	lineBreaks  = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")
	punctuation = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)
	digitRuns   = regexp.MustCompile(`\p{Nd}+`)
	linkRuns    = regexp.MustCompile(`http\S+`)
)

type Normalizer struct {
	stops *Stopwords
}

func NewNormalizer(stops *Stopwords) *Normalizer {
	return &Normalizer{stops: stops}
}

// Normalize lowercases text, flattens line breaks, strips punctuation, drops
// stop-words, then removes digit runs and http links. The steps run in that
// order; digits and links are removed after stop-word filtering, so spacing
// left behind by them is not collapsed.
func (n *Normalizer) Normalize(text string) string {
	text = strings.ToLower(text)
	text = lineBreaks.Replace(text)
	text = punctuation.ReplaceAllString(text, "")

	fields := strings.Fields(text)
	kept := fields[:0]
	for _, w := range fields {
		if !n.stops.Contains(w) {
			kept = append(kept, w)
		}
	}
	text = strings.Join(kept, " ")

	text = digitRuns.ReplaceAllString(text, "")
	text = linkRuns.ReplaceAllString(text, "")
	return text
}

// Normalize cleans text with the bundled English stop-words.
func Normalize(text string) string {
	return NewNormalizer(English()).Normalize(text)
}
