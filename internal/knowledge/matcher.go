package knowledge

import (
	"fmt"
	"strings"
)

const (
	PolicyFirst   = "first"
	PolicyLongest = "longest"
)

// Match describes which entry answered an utterance.
type Match struct {
	Index   int
	Keyword string
	Answer  string
}

// Matcher maps an utterance to an optional answer. Implementations must be
// pure and safe for concurrent use.
type Matcher interface {
	Match(utterance string) (Match, bool)
}

// FirstMatch returns the first entry, in declaration order, that has any
// keyword contained in the lowercased utterance.
type FirstMatch struct {
	base *Base
}

func NewFirstMatch(b *Base) *FirstMatch {
	return &FirstMatch{base: b}
}

func (m *FirstMatch) Match(utterance string) (Match, bool) {
	text := normalize(utterance)
	for i, e := range m.base.entries {
		for _, kw := range e.Keywords {
			if strings.Contains(text, kw) {
				return Match{Index: i, Keyword: kw, Answer: e.Answer}, true
			}
		}
	}
	return Match{}, false
}

// LongestKeyword picks the entry whose matching keyword is longest, so a
// specific keyword wins over a generic one declared earlier. Ties go to the
// earlier entry.
type LongestKeyword struct {
	base *Base
}

func NewLongestKeyword(b *Base) *LongestKeyword {
	return &LongestKeyword{base: b}
}

func (m *LongestKeyword) Match(utterance string) (Match, bool) {
	text := normalize(utterance)
	best := Match{Index: -1}
	bestLen := 0
	for i, e := range m.base.entries {
		for _, kw := range e.Keywords {
			n := len([]rune(kw))
			if n > bestLen && strings.Contains(text, kw) {
				best = Match{Index: i, Keyword: kw, Answer: e.Answer}
				bestLen = n
			}
		}
	}
	if best.Index < 0 {
		return Match{}, false
	}
	return best, true
}

// NewMatcher builds the matcher for a configured policy name.
func NewMatcher(policy string, b *Base) (Matcher, error) {
	if b == nil {
		return nil, fmt.Errorf("knowledge: base must not be nil")
	}
	switch strings.ToLower(strings.TrimSpace(policy)) {
	case "", PolicyFirst:
		return NewFirstMatch(b), nil
	case PolicyLongest:
		return NewLongestKeyword(b), nil
	default:
		return nil, fmt.Errorf("knowledge: unknown match policy %q", policy)
	}
}

func normalize(s string) string {
	return strings.ToLower(s)
}
