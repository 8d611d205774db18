// Package segmenter splits utterance text into bounded-length segments at
// natural boundaries so that per-segment synthesis latency stays low without
// producing segments short enough to cause audible seams.
package segmenter

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Mode selects the splitting strategy.
type Mode string

const (
	// ModeClause accumulates words until a clause boundary past the minimum
	// length, force-splitting at whitespace when the hard maximum is hit.
	ModeClause Mode = "clause"
	// ModeSentence emits one segment per sentence.
	ModeSentence Mode = "sentence"
	// ModeBalanced rebundles sentences into segments of near-equal length.
	ModeBalanced Mode = "balanced"
	// ModeNone emits the whole text as a single segment, subject only to the
	// hard maximum.
	ModeNone Mode = "none"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "":
		return ModeClause, nil
	case ModeClause, ModeSentence, ModeBalanced, ModeNone:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown split mode %q, expected one of clause, sentence, balanced, none", s)
	}
}

type Config struct {
	MinChars int  `yaml:"min_chars"`
	MaxChars int  `yaml:"max_chars"`
	Mode     Mode `yaml:"mode"`
}

const (
	DefaultMinChars = 40
	// DefaultMaxChars is the engine's per-call character limit.
	DefaultMaxChars = 255
)

// Segment is one ordered slice of the input text scheduled for a single
// synthesis call. Sequence numbers are contiguous from 0.
type Segment struct {
	Sequence uint32
	Text     string
}

// Split produces the ordered segment sequence for text. It is pure: the same
// text and config always yield the identical sequence. Empty and
// all-whitespace input yields no segments. Joined segment texts preserve the
// input's word sequence.
func Split(text string, cfg Config) []Segment {
	minChars := cfg.MinChars
	if minChars <= 0 {
		minChars = DefaultMinChars
	}

	maxChars := cfg.MaxChars
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}

	if minChars > maxChars {
		minChars = maxChars
	}

	mode := cfg.Mode
	if mode == "" {
		mode = ModeClause
	}

	var parts []string

	switch mode {
	case ModeSentence:
		for _, sentence := range splitSentences(text) {
			parts = append(parts, forceSplit(strings.Fields(sentence), maxChars)...)
		}
	case ModeBalanced:
		parts = balanceSentences(splitSentences(text), maxChars)
	case ModeNone:
		parts = forceSplit(strings.Fields(text), maxChars)
	default:
		parts = splitClauses(strings.Fields(text), minChars, maxChars)
	}

	segments := make([]Segment, 0, len(parts))
	for i, part := range parts {
		segments = append(segments, Segment{
			Sequence: uint32(i),
			Text:     part,
		})
	}

	return segments
}

// splitClauses accumulates words until a boundary word is seen past minChars,
// or maxChars forces a split at the preceding whitespace. A single word
// longer than maxChars becomes its own oversized segment.
func splitClauses(words []string, minChars, maxChars int) []string {
	var out []string

	var cur []string
	curLen := 0

	flush := func() {
		if len(cur) > 0 {
			out = append(out, strings.Join(cur, " "))
			cur = cur[:0]
			curLen = 0
		}
	}

	for i, word := range words {
		wordLen := utf8.RuneCountInString(word)

		if curLen > 0 && curLen+1+wordLen > maxChars {
			flush()
		}

		if wordLen > maxChars {
			flush()
			out = append(out, word)

			continue
		}

		if curLen == 0 {
			curLen = wordLen
		} else {
			curLen += 1 + wordLen
		}
		cur = append(cur, word)

		if curLen < minChars {
			continue
		}

		if endsClause(word) || (i+1 < len(words) && isConjunction(words[i+1])) {
			flush()
		}
	}

	flush()

	return out
}

// forceSplit packs words into runs of at most maxChars, splitting only at
// word boundaries. Oversized single words pass through alone.
func forceSplit(words []string, maxChars int) []string {
	var out []string

	var cur []string
	curLen := 0

	for _, word := range words {
		wordLen := utf8.RuneCountInString(word)

		if curLen > 0 && curLen+1+wordLen > maxChars {
			out = append(out, strings.Join(cur, " "))
			cur = cur[:0]
			curLen = 0
		}

		if wordLen > maxChars {
			out = append(out, word)

			continue
		}

		if curLen == 0 {
			curLen = wordLen
		} else {
			curLen += 1 + wordLen
		}
		cur = append(cur, word)
	}

	if len(cur) > 0 {
		out = append(out, strings.Join(cur, " "))
	}

	return out
}

// balanceSentences rebundles sentences so segment lengths come out near
// total/ceil(total/maxChars) instead of one long segment followed by a
// short tail. A sentence longer than maxChars passes through as its own
// segment; the engine decides what to do with it.
func balanceSentences(sentences []string, maxChars int) []string {
	if len(sentences) == 0 {
		return nil
	}

	total := 0
	for _, sentence := range sentences {
		total += utf8.RuneCountInString(sentence)
	}

	bundles := (total + maxChars - 1) / maxChars
	if bundles < 1 {
		bundles = 1
	}
	target := total / bundles

	var out []string

	var cur []string
	curLen := 0

	flush := func() {
		if len(cur) > 0 {
			out = append(out, strings.Join(cur, " "))
			cur = cur[:0]
			curLen = 0
		}
	}

	for _, sentence := range sentences {
		sentenceLen := utf8.RuneCountInString(sentence)

		if sentenceLen > maxChars {
			flush()
			out = append(out, sentence)

			continue
		}

		if curLen > 0 && curLen+1+sentenceLen > maxChars {
			flush()
		}

		if curLen == 0 {
			curLen = sentenceLen
		} else {
			curLen += 1 + sentenceLen
		}
		cur = append(cur, sentence)

		if curLen >= target {
			flush()
		}
	}

	flush()

	return out
}

// splitSentences cuts text after terminal punctuation. Latin terminators cut
// at a following space or end of input; CJK terminators cut immediately
// since they are not space-separated.
func splitSentences(text string) []string {
	var out []string

	var b strings.Builder
	runes := []rune(text)

	emit := func() {
		if s := strings.TrimSpace(b.String()); s != "" {
			out = append(out, s)
		}
		b.Reset()
	}

	for i, r := range runes {
		b.WriteRune(r)

		switch {
		case isCJKTerminal(r):
			emit()
		case isLatinTerminal(r):
			if i+1 == len(runes) || unicode.IsSpace(runes[i+1]) {
				emit()
			}
		}
	}

	emit()

	return out
}

// trailing closers that may follow a boundary mark, e.g. `word."` or `word,)`
const closingRunes = "\"')]}»”’"

func endsClause(word string) bool {
	trimmed := strings.TrimRight(word, closingRunes)
	if trimmed == "" {
		return false
	}

	last, _ := utf8.DecodeLastRuneInString(trimmed)

	return isLatinTerminal(last) || isCJKTerminal(last) || isComma(last)
}

func isLatinTerminal(r rune) bool {
	switch r {
	case '.', '!', '?', ';', ':':
		return true
	default:
		return false
	}
}

func isCJKTerminal(r rune) bool {
	switch r {
	case '。', '！', '？':
		return true
	default:
		return false
	}
}

func isComma(r rune) bool {
	switch r {
	case ',', '、', '，':
		return true
	default:
		return false
	}
}

var conjunctions = map[string]struct{}{
	"and":     {},
	"but":     {},
	"or":      {},
	"nor":     {},
	"so":      {},
	"yet":     {},
	"because": {},
}

func isConjunction(word string) bool {
	_, ok := conjunctions[strings.ToLower(word)]

	return ok
}
