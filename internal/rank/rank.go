// Package rank counts repeated findings and keeps the most frequent ones.
package rank

import (
	"sort"
	"strings"

	"github.com/kljensen/snowball"
)

// DefaultLimit is the number of entries kept when callers have no preference.
const DefaultLimit = 5

// Ranked pairs an item with the number of times it occurred.
type Ranked[T comparable] struct {
	Item  T   `json:"item"`
	Count int `json:"count"`
}

// Top counts each distinct item and returns at most limit entries ordered by
// count, highest first. Equal counts keep the order in which the items were
// first seen.
func Top[T comparable](items []T, limit int) []Ranked[T] {
	if limit <= 0 || len(items) == 0 {
		return []Ranked[T]{}
	}

	index := make(map[T]int, len(items))
	counts := make([]Ranked[T], 0)
	for _, it := range items {
		if i, ok := index[it]; ok {
			counts[i].Count++
			continue
		}
		index[it] = len(counts)
		counts = append(counts, Ranked[T]{Item: it, Count: 1})
	}

	sort.SliceStable(counts, func(i, j int) bool {
		return counts[i].Count > counts[j].Count
	})

	if len(counts) > limit {
		counts = counts[:limit]
	}
	return counts
}

// KeywordCounts ranks the whitespace-separated words of text that contain
// keyword.
func KeywordCounts(text, keyword string, limit int) []Ranked[string] {
	matches := make([]string, 0)
	for _, w := range strings.Fields(text) {
		if strings.Contains(w, keyword) {
			matches = append(matches, w)
		}
	}
	return Top(matches, limit)
}

// MatchingLines returns every line of text that contains keyword.
func MatchingLines(text, keyword string) []string {
	out := make([]string, 0)
	for _, line := range strings.Split(text, "\n") {
		if strings.Contains(line, keyword) {
			out = append(out, line)
		}
	}
	return out
}

// TopStems groups words by their English Snowball stem and ranks the stems.
// Words the stemmer rejects are counted as themselves.
func TopStems(words []string, limit int) []Ranked[string] {
	stems := make([]string, 0, len(words))
	for _, w := range words {
		stem, err := snowball.Stem(w, "english", false)
		if err != nil || stem == "" {
			stem = w
		}
		stems = append(stems, stem)
	}
	return Top(stems, limit)
}
