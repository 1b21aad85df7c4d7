package textclean

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed stopwords.yaml
var stopwordsYAML []byte

// Stopwords is a read-only set of lowercase stop-words for one language.
type Stopwords struct {
	language string
	words    map[string]struct{}
}

func NewStopwords(language string, words []string) *Stopwords {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			set[w] = struct{}{}
		}
	}
	return &Stopwords{language: language, words: set}
}

func (s *Stopwords) Language() string { return s.language }

func (s *Stopwords) Len() int { return len(s.words) }

func (s *Stopwords) Contains(word string) bool {
	if s == nil {
		return false
	}
	_, ok := s.words[word]
	return ok
}

var (
	bundledOnce sync.Once
	bundled     map[string][]string
	bundledErr  error

	stopsMu sync.Mutex
	stops   = map[string]*Stopwords{}
)

// LoadStopwords returns the bundled stop-word set for language. Sets are
// parsed once per process and shared afterwards.
func LoadStopwords(language string) (*Stopwords, error) {
	lang := strings.ToLower(strings.TrimSpace(language))
	if lang == "" {
		lang = "english"
	}

	bundledOnce.Do(func() {
		bundledErr = yaml.Unmarshal(stopwordsYAML, &bundled)
	})
	if bundledErr != nil {
		return nil, fmt.Errorf("parse bundled stopwords: %w", bundledErr)
	}

	stopsMu.Lock()
	defer stopsMu.Unlock()

	if s, ok := stops[lang]; ok {
		return s, nil
	}
	words, ok := bundled[lang]
	if !ok {
		return nil, fmt.Errorf("no stopwords bundled for language %q", lang)
	}
	s := NewStopwords(lang, words)
	stops[lang] = s
	return s, nil
}

// English is the bundled English set. It panics only if the embedded data is
// corrupt, which is a build defect.
func English() *Stopwords {
	s, err := LoadStopwords("english")
	if err != nil {
		panic(err)
	}
	return s
}
