// Package filter selects harvested records by keyword and author fragments.
package filter

import (
	"strings"

	"github.com/ryosukesatoh/arxiv-digest/internal/fetcher"
)

// MatchSet holds case-folded keywords and author-name fragments.
type MatchSet struct {
	Keywords []string
	Authors  []string
}

// NewMatchSet lowercases and trims every term and drops blank ones.
func NewMatchSet(keywords, authors []string) MatchSet {
	return MatchSet{
		Keywords: fold(keywords),
		Authors:  fold(authors),
	}
}

// Empty reports whether no filtering was requested.
func (m MatchSet) Empty() bool {
	return len(m.Keywords) == 0 && len(m.Authors) == 0
}

// Result is a filtered view of a corpus. Membership is parallel to the corpus
// and Selected keeps the corpus order.
type Result struct {
	Selected   []fetcher.Record
	Membership []bool
}

// Apply selects every record whose searchable text contains a keyword or
// whose author list has an entry containing an author fragment. An empty
// MatchSet selects nothing; callers wanting "unfiltered" use All.
func Apply(corpus []fetcher.Record, m MatchSet) Result {
	res := Result{
		Selected:   []fetcher.Record{},
		Membership: make([]bool, len(corpus)),
	}
	for i, r := range corpus {
		if matchesKeyword(r, m.Keywords) || matchesAuthor(r, m.Authors) {
			res.Membership[i] = true
			res.Selected = append(res.Selected, r)
		}
	}
	return res
}

// All selects the whole corpus.
func All(corpus []fetcher.Record) Result {
	membership := make([]bool, len(corpus))
	for i := range membership {
		membership[i] = true
	}
	selected := make([]fetcher.Record, len(corpus))
	copy(selected, corpus)
	return Result{Selected: selected, Membership: membership}
}

func matchesKeyword(r fetcher.Record, keywords []string) bool {
	text := strings.ToLower(r.SearchableText)
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func matchesAuthor(r fetcher.Record, fragments []string) bool {
	for _, frag := range fragments {
		for _, name := range r.Authors {
			if strings.Contains(strings.ToLower(name), frag) {
				return true
			}
		}
	}
	return false
}

func fold(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			out = append(out, t)
		}
	}
	return out
}
