package assistant

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

const (
	defaultWakeThreshold = 0.85
	phoneticWakeFloor    = 0.70
)

// WakeMatcher decides whether a transcript addresses the assistant by name.
// Transcription often mangles unusual names, so a word counts as the name
// when it is close in Jaro-Winkler similarity, or shares a Double Metaphone
// code with it and clears a lower similarity floor.
//
// WakeMatcher is read-only after construction and safe for concurrent use.
type WakeMatcher struct {
	name      string
	codes     map[string]struct{}
	threshold float64
}

// NewWakeMatcher returns a matcher for name. A non-positive threshold
// selects 0.85.
func NewWakeMatcher(name string, threshold float64) *WakeMatcher {
	if threshold <= 0 {
		threshold = defaultWakeThreshold
	}
	name = strings.ToLower(strings.TrimSpace(name))
	return &WakeMatcher{
		name:      name,
		codes:     metaphoneCodes(name),
		threshold: threshold,
	}
}

// Name returns the lower-cased wake name.
func (m *WakeMatcher) Name() string { return m.name }

// Addressed reports whether any word in text matches the wake name, and the
// best similarity score seen.
func (m *WakeMatcher) Addressed(text string) (bool, float64) {
	if m.name == "" {
		return false, 0
	}
	var best float64
	for _, word := range words(text) {
		if word == m.name {
			return true, 1
		}
		score := matchr.JaroWinkler(word, m.name, false)
		if score > best {
			best = score
		}
		if score >= m.threshold {
			return true, score
		}
		if score >= phoneticWakeFloor && overlaps(metaphoneCodes(word), m.codes) {
			return true, score
		}
	}
	return false, best
}

func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func metaphoneCodes(word string) map[string]struct{} {
	codes := make(map[string]struct{}, 2)
	p, s := matchr.DoubleMetaphone(word)
	if p != "" {
		codes[p] = struct{}{}
	}
	if s != "" {
		codes[s] = struct{}{}
	}
	return codes
}

func overlaps(a, b map[string]struct{}) bool {
	for c := range a {
		if _, ok := b[c]; ok {
			return true
		}
	}
	return false
}
