// Package subtitle is the ordered, stable-id collection of Sentences a job
// accumulates as it transcribes, corrects, and translates.
package subtitle

import (
	"sync"
	"unicode"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/google/uuid"

	"github.com/capgen-ai/capgen/internal/domain"
)

const defaultWarnConfidence = 0.6

// Session is one job's subtitle accumulator. Safe for concurrent use:
// a single runner goroutine writes while HTTP reads (GET /text, SSE
// snapshots) happen concurrently.
type Session struct {
	mu             sync.RWMutex
	sentences      *orderedmap.OrderedMap[string, *domain.Sentence]
	nextIndex      int
	warnConfidence float64
	emit           domain.Emitter
	jobID          string
}

func New(jobID string, emit domain.Emitter) *Session {
	if emit == nil {
		emit = domain.NopEmitter{}
	}
	return &Session{
		sentences:      orderedmap.New[string, *domain.Sentence](),
		warnConfidence: defaultWarnConfidence,
		emit:           emit,
		jobID:          jobID,
	}
}

// Restore rebuilds a session from a previously persisted sentence list,
// preserving ids and indexes so a resumed run appends after the last
// committed sentence instead of renumbering from zero.
func Restore(jobID string, emit domain.Emitter, sentences []domain.Sentence) *Session {
	s := New(jobID, emit)
	for i := range sentences {
		sent := sentences[i]
		if sent.ID == "" {
			sent.ID = uuid.NewString()
		}
		s.sentences.Set(sent.ID, &sent)
		if sent.Index >= s.nextIndex {
			s.nextIndex = sent.Index + 1
		}
	}
	return s
}

// Append assigns the next index and a fresh id, stores the sentence, and
// emits subtitle.primary_sentence.
func (s *Session) Append(sentence domain.Sentence) domain.Sentence {
	s.mu.Lock()
	defer s.mu.Unlock()

	sentence.ID = uuid.NewString()
	sentence.Index = s.nextIndex
	s.nextIndex++
	sentence.Warning = domain.DeriveWarning(sentence.Confidence, sentence.Perplexity, s.warnConfidence)

	s.sentences.Set(sentence.ID, &sentence)
	s.emit.Publish(s.jobID, domain.EventSubtitlePrimary, sentence)
	return sentence
}

// ReplaceText swaps in corrected or translated text for an existing
// sentence. The (start,end) interval never changes, original_text is
// captured the first time a sentence is modified, words are rewritten by
// pseudo-alignment, and warning is recomputed. The emitted tag depends on
// the new source.
func (s *Session) ReplaceText(id string, newText string, newSource domain.SentenceSource, newConfidence *float64, newPerplexity *float64) (domain.Sentence, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sent, ok := s.sentences.Get(id)
	if !ok {
		return domain.Sentence{}, false
	}

	if sent.OriginalText == nil {
		original := sent.Text
		sent.OriginalText = &original
	}

	sent.Text = newText
	sent.Source = newSource
	sent.IsModified = true
	if newConfidence != nil {
		sent.Confidence = *newConfidence
	}
	if newPerplexity != nil {
		sent.Perplexity = newPerplexity
	}
	sent.Words = pseudoAlign(sent.Start, sent.End, newText)
	sent.Warning = domain.DeriveWarning(sent.Confidence, sent.Perplexity, s.warnConfidence)

	tag := domain.EventSubtitlePatch
	if newSource == domain.SourceLLMCorrection {
		tag = domain.EventSubtitleLLMProof
	}
	s.emit.Publish(s.jobID, tag, *sent)
	return *sent, true
}

// SetTranslation attaches a translated line to an existing sentence.
func (s *Session) SetTranslation(id, translation string, confidence float64) (domain.Sentence, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sent, ok := s.sentences.Get(id)
	if !ok {
		return domain.Sentence{}, false
	}
	sent.Translation = &translation
	s.emit.Publish(s.jobID, domain.EventSubtitleLLMTrans, *sent)
	return *sent, true
}

// ContextWindow returns the k sentences immediately preceding index, in
// order, for use as LLM prompt context.
func (s *Session) ContextWindow(index, k int) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []string
	for pair := s.sentences.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value.Index < index {
			all = append(all, pair.Value.Text)
		}
	}
	if len(all) <= k {
		return all
	}
	return all[len(all)-k:]
}

// All returns a sorted (by Index) snapshot of every sentence.
func (s *Session) All() []domain.Sentence {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Sentence, 0, s.sentences.Len())
	for pair := s.sentences.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, *pair.Value)
	}
	return out
}

// Get returns a single sentence by id.
func (s *Session) Get(id string) (domain.Sentence, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sent, ok := s.sentences.Get(id)
	if !ok {
		return domain.Sentence{}, false
	}
	return *sent, true
}

// pseudoAlign distributes a string's non-whitespace characters evenly
// across a preserved (start,end) interval, each flagged is_pseudo since no
// real forced-alignment pass has run on the corrected text.
func pseudoAlign(start, end float64, text string) []domain.WordTimestamp {
	chars := nonWhitespaceChars(text)
	n := len(chars)
	if n == 0 {
		return nil
	}

	duration := (end - start) / float64(n)
	words := make([]domain.WordTimestamp, n)
	for i, ch := range chars {
		words[i] = domain.WordTimestamp{
			Text:     ch,
			Start:    start + float64(i)*duration,
			End:      start + float64(i+1)*duration,
			IsPseudo: true,
		}
	}
	return words
}

func nonWhitespaceChars(text string) []string {
	var out []string
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		out = append(out, string(r))
	}
	return out
}
