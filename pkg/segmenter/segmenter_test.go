package segmenter_test

import (
	"strings"
	"testing"

	"github.com/witwicki/streaming-xtts/pkg/segmenter"

	"github.com/kylelemons/godebug/pretty"
	"github.com/stretchr/testify/require"
)

func texts(segments []segmenter.Segment) []string {
	out := make([]string, 0, len(segments))
	for _, s := range segments {
		out = append(out, s.Text)
	}

	return out
}

func TestSplitClauseMode(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		text     string
		cfg      segmenter.Config
		expected []string
	}{
		{
			name:     "sentence per segment with tiny minimum",
			text:     "A. B. C.",
			cfg:      segmenter.Config{MinChars: 1, MaxChars: 255},
			expected: []string{"A.", "B.", "C."},
		},
		{
			name:     "empty input",
			text:     "",
			cfg:      segmenter.Config{},
			expected: nil,
		},
		{
			name:     "whitespace only",
			text:     " \n\t ",
			cfg:      segmenter.Config{},
			expected: nil,
		},
		{
			name:     "short text without boundaries stays whole",
			text:     "no punctuation here at all",
			cfg:      segmenter.Config{},
			expected: []string{"no punctuation here at all"},
		},
		{
			name:     "minimum keeps short clauses together",
			text:     "Hello there, my friend. This is a test.",
			cfg:      segmenter.Config{MinChars: 40, MaxChars: 255},
			expected: []string{"Hello there, my friend. This is a test."},
		},
		{
			name:     "comma boundary past minimum",
			text:     "First clause here, second clause there.",
			cfg:      segmenter.Config{MinChars: 10, MaxChars: 255},
			expected: []string{"First clause here,", "second clause there."},
		},
		{
			name:     "conjunction boundary",
			text:     "I wanted to go home but the road was closed",
			cfg:      segmenter.Config{MinChars: 10, MaxChars: 255},
			expected: []string{"I wanted to go home", "but the road was closed"},
		},
		{
			name:     "hard maximum splits at whitespace",
			text:     "aaa bbb ccc ddd",
			cfg:      segmenter.Config{MinChars: 10, MaxChars: 10},
			expected: []string{"aaa bbb", "ccc ddd"},
		},
		{
			name:     "oversized word becomes its own segment",
			text:     "hi extraordinary yo",
			cfg:      segmenter.Config{MinChars: 5, MaxChars: 5},
			expected: []string{"hi", "extraordinary", "yo"},
		},
	}

	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			got := texts(segmenter.Split(c.text, c.cfg))

			if diff := pretty.Compare(got, c.expected); diff != "" {
				t.Errorf("segments mismatch (-got +want):\n%s", diff)
			}
		})
	}
}

func TestSplitSentenceMode(t *testing.T) {
	t.Parallel()

	assert := require.New(t)

	segs := segmenter.Split("One two. Three four! Five?", segmenter.Config{Mode: segmenter.ModeSentence})
	assert.Equal([]string{"One two.", "Three four!", "Five?"}, texts(segs))

	segs = segmenter.Split("こんにちは。元気ですか。", segmenter.Config{Mode: segmenter.ModeSentence})
	assert.Equal([]string{"こんにちは。", "元気ですか。"}, texts(segs))

	// abbreviation-like dots without a following space do not cut
	segs = segmenter.Split("pi is 3.14 exactly. done", segmenter.Config{Mode: segmenter.ModeSentence})
	assert.Equal([]string{"pi is 3.14 exactly.", "done"}, texts(segs))
}

func TestSplitBalancedMode(t *testing.T) {
	t.Parallel()

	assert := require.New(t)

	segs := segmenter.Split("AAAA. BBBB. CCCC. DDDD.", segmenter.Config{
		Mode:     segmenter.ModeBalanced,
		MinChars: 1,
		MaxChars: 12,
	})
	assert.Equal([]string{"AAAA. BBBB.", "CCCC. DDDD."}, texts(segs))

	// an oversized sentence passes through untouched
	segs = segmenter.Split("Supercalifragilisticexpialidocious indeed.", segmenter.Config{
		Mode:     segmenter.ModeBalanced,
		MinChars: 1,
		MaxChars: 10,
	})
	assert.Equal([]string{"Supercalifragilisticexpialidocious indeed."}, texts(segs))
}

func TestSplitNoneMode(t *testing.T) {
	t.Parallel()

	assert := require.New(t)

	segs := segmenter.Split("keep it all together please", segmenter.Config{Mode: segmenter.ModeNone})
	assert.Equal([]string{"keep it all together please"}, texts(segs))

	segs = segmenter.Split("one two three", segmenter.Config{Mode: segmenter.ModeNone, MaxChars: 5})
	assert.Equal([]string{"one", "two", "three"}, texts(segs))
}

func TestSplitSequenceNumbersContiguous(t *testing.T) {
	t.Parallel()

	assert := require.New(t)

	segs := segmenter.Split("A. B. C. D. E.", segmenter.Config{MinChars: 1, MaxChars: 255})
	assert.Len(segs, 5)

	for i, seg := range segs {
		assert.EqualValues(i, seg.Sequence)
	}
}

func TestSplitPreservesWordSequence(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"A. B. C.",
		"Hello there, my friend. This is a longer test with commas, clauses and conjunctions because why not.",
		"no punctuation here at all just a very long run of words that keeps going and going until it finally stops",
		"Short. Short. Short. Short. Short. Short. Short. Short.",
		"word",
	}

	modes := []segmenter.Mode{
		segmenter.ModeClause,
		segmenter.ModeSentence,
		segmenter.ModeBalanced,
		segmenter.ModeNone,
	}

	for _, input := range inputs {
		for _, mode := range modes {
			segs := segmenter.Split(input, segmenter.Config{MinChars: 10, MaxChars: 40, Mode: mode})

			joined := strings.Join(texts(segs), " ")
			require.Equal(t, strings.Fields(input), strings.Fields(joined),
				"mode %s dropped or duplicated words for %q", mode, input)
		}
	}
}

func TestSplitIdempotent(t *testing.T) {
	t.Parallel()

	assert := require.New(t)

	text := "First clause here, second clause there. And a third one because it matters."
	cfg := segmenter.Config{MinChars: 15, MaxChars: 60}

	first := segmenter.Split(text, cfg)
	second := segmenter.Split(text, cfg)

	assert.Equal(first, second)
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	assert := require.New(t)

	mode, err := segmenter.ParseMode("")
	assert.NoError(err)
	assert.Equal(segmenter.ModeClause, mode)

	mode, err = segmenter.ParseMode("balanced")
	assert.NoError(err)
	assert.Equal(segmenter.ModeBalanced, mode)

	_, err = segmenter.ParseMode("chunky")
	assert.Error(err)
}
