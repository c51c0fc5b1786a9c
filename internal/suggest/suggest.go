// Package suggest finds the station a user most likely meant when they typed
// an id that does not exist.
//
// Matching runs in two passes. Double Metaphone codes are computed for every
// word of the input and of each candidate name; a candidate whose codes
// overlap the input's is a phonetic candidate and is accepted at a lower
// Jaro-Winkler threshold. Without any phonetic candidate, plain Jaro-Winkler
// similarity must clear a stricter threshold.
package suggest

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Candidate is something the user may have meant. Key is returned on a
// match; Names are the strings compared against the input (for a station:
// its id and display names).
type Candidate struct {
	Key   string
	Names []string
}

// Option configures a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum score for a phonetic candidate.
// Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) { m.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum score for a non-phonetic candidate.
// Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) { m.fuzzyThreshold = threshold }
}

// Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a Matcher.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Best returns the key of the candidate closest to input. ok is false when no
// candidate clears its threshold.
func (m *Matcher) Best(input string, candidates []Candidate) (key string, score float64, ok bool) {
	in := normalize(input)
	if in == "" {
		return "", 0, false
	}
	inTokens := strings.Fields(in)
	inCodes := codesForTokens(inTokens)

	var (
		bestKey      string
		bestScore    float64
		bestPhonetic bool
	)
	for _, c := range candidates {
		for _, name := range c.Names {
			n := normalize(name)
			if n == "" {
				continue
			}
			nTokens := strings.Fields(n)
			phonetic := codesOverlap(inCodes, codesForTokens(nTokens))
			s := bestJWScore(inTokens, nTokens, in, n)

			switch {
			case phonetic && s >= m.phoneticThreshold:
				if !bestPhonetic || s > bestScore {
					bestKey, bestScore, bestPhonetic = c.Key, s, true
				}
			case !phonetic && !bestPhonetic && s >= m.fuzzyThreshold && s > bestScore:
				bestKey, bestScore = c.Key, s
			}
		}
	}
	if bestKey == "" {
		return "", 0, false
	}
	return bestKey, bestScore, true
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// codesForTokens returns the non-empty Double Metaphone codes of tokens.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestJWScore is the highest Jaro-Winkler similarity over the full strings,
// the strings with spaces removed and every token pair. Station ids are
// usually brand names with the spaces dropped ("thebreeze"), so the
// concatenated form matters.
func bestJWScore(inTokens, nTokens []string, in, n string) float64 {
	score := matchr.JaroWinkler(in, n, false)

	c1, c2 := strings.Join(inTokens, ""), strings.Join(nTokens, "")
	if s := matchr.JaroWinkler(c1, c2, false); s > score {
		score = s
	}
	for _, it := range inTokens {
		for _, nt := range nTokens {
			if s := matchr.JaroWinkler(it, nt, false); s > score {
				score = s
			}
		}
	}
	return score
}
