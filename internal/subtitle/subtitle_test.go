package subtitle

import (
	"testing"

	"github.com/capgen-ai/capgen/internal/domain"
)

func TestAppendAssignsIndexAndID(t *testing.T) {
	s := New("job-1", nil)

	first := s.Append(domain.Sentence{Text: "hello", Confidence: 0.9})
	second := s.Append(domain.Sentence{Text: "world", Confidence: 0.9})

	if first.Index != 0 || second.Index != 1 {
		t.Errorf("indexes = %d, %d, want 0, 1", first.Index, second.Index)
	}
	if first.ID == "" || first.ID == second.ID {
		t.Errorf("expected distinct non-empty ids, got %q and %q", first.ID, second.ID)
	}
}

func TestAppendDerivesWarning(t *testing.T) {
	s := New("job-1", nil)
	low := s.Append(domain.Sentence{Text: "x", Confidence: 0.1})
	if low.Warning != domain.WarningLowConfidence {
		t.Errorf("Warning = %v, want low_confidence", low.Warning)
	}
}

func TestReplaceTextPreservesIntervalAndCapturesOriginal(t *testing.T) {
	s := New("job-1", nil)
	added := s.Append(domain.Sentence{Text: "helo wrold", Start: 1.0, End: 2.0, Confidence: 0.9})

	conf := 0.95
	updated, ok := s.ReplaceText(added.ID, "hello world", domain.SourceSecondaryPatch, &conf, nil)
	if !ok {
		t.Fatal("ReplaceText() returned not-ok for an existing id")
	}
	if updated.Start != 1.0 || updated.End != 2.0 {
		t.Errorf("interval changed: (%v, %v), want (1.0, 2.0)", updated.Start, updated.End)
	}
	if updated.OriginalText == nil || *updated.OriginalText != "helo wrold" {
		t.Errorf("OriginalText = %v, want the first text", updated.OriginalText)
	}
	if !updated.IsModified {
		t.Error("IsModified should be true after ReplaceText()")
	}
	if updated.Confidence != 0.95 {
		t.Errorf("Confidence = %v, want 0.95", updated.Confidence)
	}

	// A second replace should not overwrite the already-captured original.
	updated2, _ := s.ReplaceText(added.ID, "hello world!", domain.SourceLLMCorrection, nil, nil)
	if *updated2.OriginalText != "helo wrold" {
		t.Errorf("OriginalText changed on a second edit: %v", *updated2.OriginalText)
	}
}

func TestReplaceTextUnknownIDFails(t *testing.T) {
	s := New("job-1", nil)
	if _, ok := s.ReplaceText("no-such-id", "x", domain.SourceSecondaryPatch, nil, nil); ok {
		t.Error("ReplaceText() on an unknown id should return false")
	}
}

func TestSetTranslation(t *testing.T) {
	s := New("job-1", nil)
	added := s.Append(domain.Sentence{Text: "hello"})

	updated, ok := s.SetTranslation(added.ID, "hola", 0.8)
	if !ok {
		t.Fatal("SetTranslation() returned not-ok for an existing id")
	}
	if updated.Translation == nil || *updated.Translation != "hola" {
		t.Errorf("Translation = %v, want hola", updated.Translation)
	}
}

func TestContextWindowReturnsPrecedingSentencesOnly(t *testing.T) {
	s := New("job-1", nil)
	for _, text := range []string{"one", "two", "three", "four"} {
		s.Append(domain.Sentence{Text: text})
	}

	window := s.ContextWindow(3, 2)
	if len(window) != 2 || window[0] != "two" || window[1] != "three" {
		t.Errorf("ContextWindow(3, 2) = %v, want [two three]", window)
	}
}

func TestAllReturnsSentencesInOrder(t *testing.T) {
	s := New("job-1", nil)
	s.Append(domain.Sentence{Text: "one"})
	s.Append(domain.Sentence{Text: "two"})

	all := s.All()
	if len(all) != 2 || all[0].Text != "one" || all[1].Text != "two" {
		t.Errorf("All() = %+v, want [one two] in order", all)
	}
}

func TestPseudoAlignDistributesEvenlyAcrossNonWhitespaceChars(t *testing.T) {
	s := New("job-1", nil)
	added := s.Append(domain.Sentence{Text: "x", Start: 0, End: 1.0})
	updated, _ := s.ReplaceText(added.ID, "ab cd", domain.SourceSecondaryPatch, nil, nil)

	if len(updated.Words) != 4 {
		t.Fatalf("Words has %d entries, want 4 non-whitespace chars", len(updated.Words))
	}
	for _, w := range updated.Words {
		if !w.IsPseudo {
			t.Error("every pseudo-aligned word should be flagged IsPseudo")
		}
	}
	if updated.Words[0].Start != 0 || updated.Words[3].End != 1.0 {
		t.Errorf("pseudo-aligned span = [%v, %v], want [0, 1.0]", updated.Words[0].Start, updated.Words[3].End)
	}
}
