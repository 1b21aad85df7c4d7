package textclean

import (
	"strings"
	"testing"
	"unicode"
)

func TestNormalizeSteps(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"lowercase and stopwords", "The Quick Brown Fox", "quick brown fox"},
		{"line breaks", "alpha\nbeta\r\ngamma", "alpha beta gamma"},
		{"punctuation", "hello, world! (really)", "hello world really"},
		{"digits leave spacing", "order 66 shipped", "order  shipped"},
		{"links after punctuation strip", "see https://example.com/page later", "see  later"},
		{"underscore kept", "snake_case names", "snake_case names"},
		{"only stopwords", "it is what it is", ""},
		{"digits stripped after stopword filter", "a1 x2 the3 fox", "a x the fox"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Normalize(tc.in); got != tc.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalizeOutputInvariants(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"Contact me at a@b.com or a@b.com, call +12025550123",
		"Born 3rd May 1990 in Springfield.\nVisit https://example.com/page today!",
		"123 Main St., Springfield, IL 62704",
		"ALL CAPS SHOUTING ABOUT 2024",
	}

	stops := English()
	for _, in := range inputs {
		out := Normalize(in)
		for _, r := range out {
			if unicode.IsDigit(r) {
				t.Fatalf("Normalize(%q) = %q contains digit %q", in, out, r)
			}
			if unicode.IsUpper(r) {
				t.Fatalf("Normalize(%q) = %q contains uppercase %q", in, out, r)
			}
		}
		for _, w := range strings.Fields(out) {
			if stops.Contains(w) {
				t.Fatalf("Normalize(%q) = %q kept stop-word %q", in, out, w)
			}
		}
	}
}

func TestNormalizeIsStable(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"Quick brown foxes jump lazily",
		"Léa visited Zürich\nand Montréal",
		"  spaced   out\twords ",
	}
	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Fatalf("normalize not stable for %q: %q then %q", in, once, twice)
		}
	}
}

func TestLoadStopwords(t *testing.T) {
	t.Parallel()

	s, err := LoadStopwords("English")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.Language() != "english" {
		t.Fatalf("language = %q", s.Language())
	}
	if s.Len() != 179 {
		t.Fatalf("expected 179 english stopwords, got %d", s.Len())
	}
	for _, w := range []string{"the", "and", "wouldn't", "ourselves"} {
		if !s.Contains(w) {
			t.Fatalf("expected %q to be a stopword", w)
		}
	}
	if s.Contains("fox") {
		t.Fatalf("fox is not a stopword")
	}

	again, _ := LoadStopwords("english")
	if again != s {
		t.Fatalf("expected the shared set to be returned")
	}

	if _, err := LoadStopwords("klingon"); err == nil {
		t.Fatalf("expected error for unknown language")
	}
}
