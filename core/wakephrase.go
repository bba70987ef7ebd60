package orchestration

import (
	"regexp"
	"strings"
	"unicode"
)

const DefaultWakePhrase = "hey siva"

// wakePhrase matches a trigger phrase inside free-form transcripts. Matching
// ignores case and treats any run of punctuation or whitespace between the
// words as a single separator, so "Hey, Siva!" matches "hey siva".
//
// The phrase only matches as whole words: neither "hey sivakumar" nor
// "they siva" wakes the assistant.
type wakePhrase struct {
	phrase  string
	pattern *regexp.Regexp
}

func newWakePhrase(phrase string) wakePhrase {
	words := strings.Fields(strings.ToLower(phrase))
	if len(words) == 0 {
		return wakePhrase{}
	}

	quoted := make([]string, len(words))
	for i, word := range words {
		quoted[i] = regexp.QuoteMeta(word)
	}

	return wakePhrase{
		phrase:  strings.Join(words, " "),
		pattern: regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}])` + strings.Join(quoted, `[^\p{L}\p{N}]+`) + `(?:$|[^\p{L}\p{N}])`),
	}
}

func (w wakePhrase) String() string {
	return w.phrase
}

// Detect reports whether transcript contains the phrase as whole words, so
// a word that only starts or ends with the phrase does not count.
func (w wakePhrase) Detect(transcript string) bool {
	return w.pattern != nil && w.pattern.MatchString(transcript)
}

// Strip removes every occurrence of the phrase from transcript and returns
// what is left, without leading punctuation and surrounding whitespace.
func (w wakePhrase) Strip(transcript string) string {
	if w.pattern != nil {
		transcript = w.pattern.ReplaceAllString(transcript, " ")
	}
	return strings.TrimSpace(strings.TrimLeftFunc(transcript, isSeparator))
}

// Remainder returns the text that follows the first occurrence of the phrase,
// or an empty string if the phrase is absent.
func (w wakePhrase) Remainder(transcript string) string {
	if w.pattern == nil {
		return ""
	}
	loc := w.pattern.FindStringIndex(transcript)
	if loc == nil {
		return ""
	}
	return w.Strip(transcript[loc[1]:])
}

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
