// Package patterns scans raw document text for contact details, links,
// postal addresses and dates. Every scanner is a pure left-to-right pass that
// keeps duplicates in the order they occur.
//
// The expressions are intentionally loose and their known gaps are part of
// the observable behaviour: phone numbers are only found when written with a
// leading '+', and addresses must end in a five digit code.
package patterns

import (
	"regexp"
	"strings"
)

// space is the body of a character class matching Unicode whitespace, which
// RE2's \s (ASCII only) does not.
const space = `\t\n\v\f\r\x{1c}-\x{1f}\x{85}\p{Z}`

var (
	emailRe   = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Z|a-z]{2,}\b`)
	phoneRe   = regexp.MustCompile(`\+\p{Nd}+`)
	addressRe = regexp.MustCompile(`\p{Nd}+[` + space + `]+[a-zA-Z0-9` + space + `.,#-]+[^\p{Nd}` + space + `]\p{Nd}{5}`)

	// Scheme-qualified links. The optional "s" and the last path segment are
	// the capture groups callers historically received.
	schemeLinkRe = regexp.MustCompile(`http(s)?://[a-zA-Z0-9-]+\.[a-zA-Z]+(/[a-zA-Z0-9-]+)*`)
	// www-prefixed or bare host links.
	hostLinkRe = regexp.MustCompile(`www\.[a-zA-Z0-9-]+\.[a-zA-Z]+(/[a-zA-Z0-9-]+)*|[a-zA-Z0-9-]+\.[a-zA-Z]+(/[a-zA-Z0-9-]+)*`)

	phoneNoise = strings.NewReplacer(" ", "", "(", "", ")", "", "-", "")
)

// WebLink is one link match. Match is the full matched substring; Groups holds
// the capture groups of the expression that matched, with "" for groups that
// did not participate.
type WebLink struct {
	Match  string   `json:"match"`
	Groups []string `json:"groups"`
}

func Emails(text string) []string {
	return emailRe.FindAllString(text, -1)
}

// Phones strips whitespace, parentheses and hyphens from text and returns the
// digits of every '+'-prefixed run.
func Phones(text string) []string {
	flat := phoneNoise.Replace(strings.Join(strings.Fields(text), " "))

	matches := phoneRe.FindAllString(flat, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.TrimPrefix(m, "+"))
	}
	return out
}

// WebLinks returns all scheme-qualified links followed by all www/bare host
// links. A scheme link is also reported by the second scan as a bare host.
func WebLinks(text string) []WebLink {
	out := make([]WebLink, 0)
	out = appendLinks(out, schemeLinkRe, text)
	out = appendLinks(out, hostLinkRe, text)
	return out
}

func appendLinks(out []WebLink, re *regexp.Regexp, text string) []WebLink {
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		groups := make([]string, len(m)-1)
		copy(groups, m[1:])
		out = append(out, WebLink{Match: m[0], Groups: groups})
	}
	return out
}

func Addresses(text string) []string {
	return addressRe.FindAllString(text, -1)
}
