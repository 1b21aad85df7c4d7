// Package analysis runs the text-analysis pipeline over one document and
// merges every stage's findings into a single Result.
package analysis

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"github.com/toricodesthings/doc-insight-service/internal/nlp"
	"github.com/toricodesthings/doc-insight-service/internal/patterns"
	"github.com/toricodesthings/doc-insight-service/internal/rank"
	"github.com/toricodesthings/doc-insight-service/internal/textclean"
)

// DocumentSource yields the raw text of one document.
type DocumentSource interface {
	Text(ctx context.Context) (string, error)
}

// DescribedSource is a DocumentSource that also reports how the text was
// obtained. AnalyzeSource prefers Document over Text when both exist.
type DescribedSource interface {
	Document(ctx context.Context) (string, SourceInfo, error)
}

// StringSource is a DocumentSource for text already in memory.
type StringSource string

func (s StringSource) Text(context.Context) (string, error) { return string(s), nil }

// Options configures an Analyzer. Zero values fall back to the process-wide
// model, the bundled English stop-words and rank.DefaultLimit.
type Options struct {
	Model     nlp.Model
	Stopwords *textclean.Stopwords
	RankLimit int
}

// Analyzer holds the shared read-only collaborators. One Analyzer serves
// any number of concurrent requests; each call works on its own data.
type Analyzer struct {
	model      nlp.Model
	normalizer *textclean.Normalizer
	limit      int
}

func New(opts Options) *Analyzer {
	if opts.Model == nil {
		opts.Model = nlp.Default()
	}
	if opts.Stopwords == nil {
		opts.Stopwords = textclean.English()
	}
	if opts.RankLimit <= 0 {
		opts.RankLimit = rank.DefaultLimit
	}
	return &Analyzer{
		model:      opts.Model,
		normalizer: textclean.NewNormalizer(opts.Stopwords),
		limit:      opts.RankLimit,
	}
}

// AnalyzeSource reads the document from src and analyzes it. A non-empty
// keyword adds keyword counts and matching lines to the result.
func (a *Analyzer) AnalyzeSource(ctx context.Context, src DocumentSource, keyword string) (Result, error) {
	ds, ok := src.(DescribedSource)
	if !ok {
		raw, err := src.Text(ctx)
		if err != nil {
			return Result{}, sourceErr("read document", err)
		}
		return a.analyze(raw, keyword)
	}

	raw, info, err := ds.Document(ctx)
	if err != nil {
		return Result{}, sourceErr("read document", err)
	}
	res, err := a.analyze(raw, keyword)
	if err != nil {
		return Result{}, err
	}
	res.Source = &info
	return res, nil
}

// Analyze runs every stage over raw. Empty input yields zero counts and empty
// finding lists.
func (a *Analyzer) Analyze(raw string) (Result, error) {
	return a.analyze(raw, "")
}

func (a *Analyzer) analyze(raw, keyword string) (Result, error) {
	res := Result{
		ID:        ulid.Make().String(),
		Emails:    rank.Top(patterns.Emails(raw), a.limit),
		Phones:    patterns.Phones(raw),
		WebLinks:  patterns.WebLinks(raw),
		Addresses: nonNil(patterns.Addresses(raw)),
		Dates:     patterns.Dates(raw),
		Text:      raw,
	}

	cleaned := a.normalizer.Normalize(raw)
	res.CleanedText = cleaned

	var (
		sentences []string
		words     []string
		tagged    []nlp.TaggedToken
		people    []string
	)
	if strings.TrimSpace(cleaned) != "" {
		var err error
		if sentences, words, err = a.model.Tokenize(cleaned); err != nil {
			return Result{}, modelErr("tokenize", err)
		}
		if tagged, err = a.model.Tag(words); err != nil {
			return Result{}, modelErr("tag", err)
		}
		if people, err = nlp.PersonNames(a.model, cleaned); err != nil {
			return Result{}, modelErr("recognize entities", err)
		}
	}

	res.SentenceCount = len(sentences)
	res.WordCount = len(words)
	for _, w := range words {
		res.CharCount += utf8.RuneCountInString(w)
	}

	res.Adverbs = nlp.Bucket(tagged, nlp.AdverbPrefix)
	res.Nouns = nlp.Bucket(tagged, nlp.NounPrefix)
	res.Adjectives = nlp.Bucket(tagged, nlp.AdjectivePrefix)
	res.PersonNames = nonNil(people)
	res.TopTerms = rank.TopStems(words, a.limit)

	if keyword != "" {
		res.Keyword = keyword
		res.KeywordCounts = rank.KeywordCounts(raw, keyword, a.limit)
		res.KeywordLines = rank.MatchingLines(raw, keyword)
	}
	return res, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
