package patterns

import (
	"strings"
	"unicode"
)

// Dates finds day-first dates in two shapes:
//
//	3rd May 1990, 14 of June 21, 7 2004   spoken form, year must be followed
//	                                       by whitespace, . , ? ! or the end
//	12/05/2023, 1-2-99                     numeric form
//
// The spoken form needs a trailing-context check that RE2 cannot express, so
// both shapes are matched by hand. Candidates at a position are tried in the
// same order a backtracking engine would try them: longer day first, ordinal
// suffix before none, month word before none, four digit year before two.
func Dates(text string) []string {
	rs := []rune(text)
	out := make([]string, 0)

	for i := 0; i < len(rs); {
		if unicode.IsDigit(rs[i]) && (i == 0 || !isWordRune(rs[i-1])) {
			end := spokenDateEnd(rs, i)
			if end < 0 {
				end = numericDateEnd(rs, i)
			}
			if end > i {
				out = append(out, string(rs[i:end]))
				i = end
				continue
			}
		}
		i++
	}
	return out
}

func spokenDateEnd(rs []rune, i int) int {
	for _, nd := range []int{2, 1} {
		if !digitsAt(rs, i, nd) {
			continue
		}
		p := i + nd
		for _, q := range ordinalEnds(rs, p) {
			for _, r := range monthEnds(rs, q) {
				if end := yearEnd(rs, r); end >= 0 {
					return end
				}
			}
		}
	}
	return -1
}

func ordinalEnds(rs []rune, p int) []int {
	if p+2 <= len(rs) {
		switch string(rs[p : p+2]) {
		case "st", "nd", "rd", "th":
			return []int{p + 2, p}
		}
	}
	return []int{p}
}

// monthEnds lists where an optional "[of] Month" group can end, preferred
// first. The bare position q is always last.
func monthEnds(rs []rune, q int) []int {
	s := skipSpace(rs, q)
	if s == q {
		return []int{q}
	}

	ends := make([]int, 0, 3)
	if s+2 <= len(rs) && rs[s] == 'o' && rs[s+1] == 'f' {
		if w := skipSpace(rs, s+2); w > s+2 {
			if e := skipASCIILetters(rs, w); e > w {
				ends = append(ends, e)
			}
		}
	}
	if e := skipASCIILetters(rs, s); e > s {
		ends = append(ends, e)
	}
	return append(ends, q)
}

func yearEnd(rs []rune, r int) int {
	s := skipSpace(rs, r)
	if s == r {
		return -1
	}
	for _, n := range []int{4, 2} {
		if digitsAt(rs, s, n) && dateBoundary(rs, s+n) {
			return s + n
		}
	}
	return -1
}

func dateBoundary(rs []rune, end int) bool {
	if end >= len(rs) {
		return true
	}
	return unicode.IsSpace(rs[end]) || strings.ContainsRune(".,?!", rs[end])
}

func numericDateEnd(rs []rune, i int) int {
	for _, a := range []int{2, 1} {
		if !digitsAt(rs, i, a) || !isDateSep(rs, i+a) {
			continue
		}
		j := i + a + 1
		for _, b := range []int{2, 1} {
			if !digitsAt(rs, j, b) || !isDateSep(rs, j+b) {
				continue
			}
			k := j + b + 1
			for _, c := range []int{4, 3, 2} {
				if digitsAt(rs, k, c) && (k+c == len(rs) || !isWordRune(rs[k+c])) {
					return k + c
				}
			}
		}
	}
	return -1
}

func isDateSep(rs []rune, i int) bool {
	return i < len(rs) && (rs[i] == '/' || rs[i] == '-')
}

func digitsAt(rs []rune, i, n int) bool {
	if i+n > len(rs) {
		return false
	}
	for _, r := range rs[i : i+n] {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func skipSpace(rs []rune, i int) int {
	for i < len(rs) && unicode.IsSpace(rs[i]) {
		i++
	}
	return i
}

func skipASCIILetters(rs []rune, i int) int {
	for i < len(rs) && (('a' <= rs[i] && rs[i] <= 'z') || ('A' <= rs[i] && rs[i] <= 'Z')) {
		i++
	}
	return i
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
