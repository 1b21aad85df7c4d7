package nlp

import (
	"fmt"
	"strings"
	"sync"

	"github.com/jdkato/prose/v2"
)

// ModelName names the bundled prose tagger and entity model.
const ModelName = "en-v2.0.0"

// Prose is a Model backed by github.com/jdkato/prose. The tagger and entity
// model are loaded once in NewProse and only read afterwards.
type Prose struct {
	model *prose.Model
}

// NewProse loads the prose tagger and entity model.
func NewProse() *Prose {
	return &Prose{model: prose.ModelFromData(ModelName)}
}

var (
	defaultOnce  sync.Once
	defaultModel Model
)

// Default returns the process-wide model, constructing it on first use.
func Default() Model {
	defaultOnce.Do(func() {
		defaultModel = NewProse()
	})
	return defaultModel
}

func (p *Prose) Tokenize(text string) ([]string, []string, error) {
	if strings.TrimSpace(text) == "" {
		return []string{}, []string{}, nil
	}

	doc, err := prose.NewDocument(text,
		prose.UsingModel(p.model),
		prose.WithTagging(false),
		prose.WithExtraction(false))
	if err != nil {
		return nil, nil, fmt.Errorf("prose tokenize: %w", err)
	}

	sents := doc.Sentences()
	sentences := make([]string, 0, len(sents))
	for _, s := range sents {
		sentences = append(sentences, s.Text)
	}

	toks := doc.Tokens()
	words := make([]string, 0, len(toks))
	for _, t := range toks {
		words = append(words, t.Text)
	}
	return sentences, words, nil
}

// Tag tags the words as one run of text so the tagger sees their context.
// When the tagger's own tokenizer splits the run differently, each word is
// tagged on its own instead so the result still lines up with the input.
func (p *Prose) Tag(words []string) ([]TaggedToken, error) {
	out := make([]TaggedToken, 0, len(words))
	if len(words) == 0 {
		return out, nil
	}

	toks, err := p.tagText(strings.Join(words, " "))
	if err != nil {
		return nil, err
	}
	if len(toks) == len(words) {
		for i, w := range words {
			out = append(out, TaggedToken{Word: w, Tag: toks[i].Tag})
		}
		return out, nil
	}

	for _, w := range words {
		toks, err := p.tagText(w)
		if err != nil {
			return nil, err
		}
		tag := ""
		if len(toks) > 0 {
			tag = toks[0].Tag
		}
		out = append(out, TaggedToken{Word: w, Tag: tag})
	}
	return out, nil
}

func (p *Prose) tagText(text string) ([]prose.Token, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	doc, err := prose.NewDocument(text,
		prose.UsingModel(p.model),
		prose.WithSegmentation(false),
		prose.WithExtraction(false))
	if err != nil {
		return nil, fmt.Errorf("prose tag: %w", err)
	}
	return doc.Tokens(), nil
}

func (p *Prose) Entities(text string) ([]Entity, error) {
	if strings.TrimSpace(text) == "" {
		return []Entity{}, nil
	}

	doc, err := prose.NewDocument(text, prose.UsingModel(p.model), prose.WithSegmentation(false))
	if err != nil {
		return nil, fmt.Errorf("prose entities: %w", err)
	}

	ents := doc.Entities()
	out := make([]Entity, 0, len(ents))
	for _, e := range ents {
		out = append(out, Entity{Text: e.Text, Label: e.Label})
	}
	return out, nil
}
