package pipeline

import (
	"strings"
	"unicode/utf8"

	"github.com/capgen-ai/capgen/internal/domain"
)

const (
	defaultPauseThreshold = 0.4
	defaultMaxDuration    = 5.0
	defaultMaxChars       = 30
	defaultMinChars       = 2
)

var terminalPunctuation = map[rune]bool{
	'。': true, '？': true, '！': true, '?': true, '!': true,
}

var weakPunctuation = map[rune]bool{
	',': true, '、': true, '；': true, '：': true,
}

// SplitConfig holds the sentence-splitting thresholds.
type SplitConfig struct {
	PauseThreshold float64
	MaxDuration    float64
	MaxChars       int
	MinChars       int
}

func DefaultSplitConfig() SplitConfig {
	return SplitConfig{
		PauseThreshold: defaultPauseThreshold,
		MaxDuration:    defaultMaxDuration,
		MaxChars:       defaultMaxChars,
		MinChars:       defaultMinChars,
	}
}

// draftSentence is one committed group of words before it's handed to the
// Subtitle Session for id/index assignment.
type draftSentence struct {
	Start float64
	End   float64
	Words []domain.WordTimestamp
}

func (d draftSentence) text() string {
	var b strings.Builder
	for i, w := range d.Words {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(w.Text)
	}
	return b.String()
}

func (d draftSentence) avgConfidence() float64 {
	if len(d.Words) == 0 {
		return 0
	}
	var sum float64
	for _, w := range d.Words {
		sum += w.Confidence
	}
	return sum / float64(len(d.Words))
}

// SplitSentences takes one chunk's ordered word timestamps and produces
// committed sentence groups. Sentences below cfg.MinChars (after stripping
// whitespace) are merged into the following sentence rather than emitted
// standalone.
func SplitSentences(words []domain.WordTimestamp, cfg SplitConfig) []draftSentence {
	if len(words) == 0 {
		return nil
	}

	var drafts []draftSentence
	var acc []domain.WordTimestamp

	commit := func(upTo int) {
		if upTo <= 0 {
			return
		}
		group := acc[:upTo]
		drafts = append(drafts, draftSentence{
			Start: group[0].Start,
			End:   group[len(group)-1].End,
			Words: append([]domain.WordTimestamp(nil), group...),
		})
		acc = append([]domain.WordTimestamp(nil), acc[upTo:]...)
	}

	for i, w := range words {
		acc = append(acc, w)

		if endsWithTerminalPunctuation(w.Text) {
			commit(len(acc))
			continue
		}

		if i+1 < len(words) {
			gap := words[i+1].Start - w.End
			if gap > cfg.PauseThreshold {
				commit(len(acc))
				continue
			}
		}

		if accumulatedDuration(acc) >= cfg.MaxDuration {
			commit(len(acc))
			continue
		}

		if accumulatedChars(acc) >= cfg.MaxChars {
			if boundary := findWeakBoundary(acc); boundary > 0 {
				commit(boundary)
			} else {
				commit(len(acc))
			}
			continue
		}
	}
	if len(acc) > 0 {
		drafts = append(drafts, draftSentence{
			Start: acc[0].Start,
			End:   acc[len(acc)-1].End,
			Words: acc,
		})
	}

	return mergeShortSentences(drafts, cfg.MinChars)
}

func endsWithTerminalPunctuation(text string) bool {
	if text == "" {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(text)
	return terminalPunctuation[r]
}

func accumulatedDuration(words []domain.WordTimestamp) float64 {
	if len(words) == 0 {
		return 0
	}
	return words[len(words)-1].End - words[0].Start
}

func accumulatedChars(words []domain.WordTimestamp) int {
	n := 0
	for _, w := range words {
		n += utf8.RuneCountInString(w.Text)
	}
	return n
}

// findWeakBoundary searches backwards for the nearest word ending in weak
// punctuation and returns the count of words up to and including it, or 0
// if none is found.
func findWeakBoundary(words []domain.WordTimestamp) int {
	for i := len(words) - 1; i >= 0; i-- {
		if words[i].Text == "" {
			continue
		}
		r, _ := utf8.DecodeLastRuneInString(words[i].Text)
		if weakPunctuation[r] {
			return i + 1
		}
	}
	return 0
}

// mergeShortSentences folds any draft whose stripped text is below minChars
// into the following sentence. A short trailing draft with nothing to merge
// into is kept as-is rather than dropped.
func mergeShortSentences(drafts []draftSentence, minChars int) []draftSentence {
	var out []draftSentence
	for i := 0; i < len(drafts); i++ {
		d := drafts[i]
		if utf8.RuneCountInString(strings.TrimSpace(d.text())) < minChars && i+1 < len(drafts) {
			drafts[i+1] = draftSentence{
				Start: d.Start,
				End:   drafts[i+1].End,
				Words: append(append([]domain.WordTimestamp(nil), d.Words...), drafts[i+1].Words...),
			}
			continue
		}
		out = append(out, d)
	}
	return out
}
