package domain

import "testing"

func TestDeriveWarning(t *testing.T) {
	highPerplexity := 60.0
	lowPerplexity := 10.0

	cases := []struct {
		name       string
		confidence float64
		perplexity *float64
		threshold  float64
		want       SentenceWarning
	}{
		{"clean", 0.9, &lowPerplexity, 0.5, WarningNone},
		{"low confidence only", 0.2, &lowPerplexity, 0.5, WarningLowConfidence},
		{"high perplexity only", 0.9, &highPerplexity, 0.5, WarningHighPerplexity},
		{"both", 0.2, &highPerplexity, 0.5, WarningBoth},
		{"nil perplexity treated as not-high", 0.9, nil, 0.5, WarningNone},
	}
	for _, c := range cases {
		got := DeriveWarning(c.confidence, c.perplexity, c.threshold)
		if got != c.want {
			t.Errorf("%s: DeriveWarning() = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestJobCloneIsIndependentOfSentences(t *testing.T) {
	original := &Job{
		ID:     "job-1",
		Status: JobProcessing,
		Sentences: []Sentence{
			{ID: "0", Index: 0, Text: "hello"},
		},
	}
	clone := original.Clone()

	clone.Sentences[0].Text = "changed"
	if original.Sentences[0].Text != "hello" {
		t.Error("mutating the clone's sentences mutated the original")
	}

	clone.Status = JobFailed
	if original.Status != JobProcessing {
		t.Error("mutating the clone's status mutated the original")
	}
}

func TestJobStatusTerminal(t *testing.T) {
	terminal := []JobStatus{JobFinished, JobFailed, JobCanceled}
	nonTerminal := []JobStatus{JobCreated, JobQueued, JobProcessing, JobPaused}

	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%v.Terminal() = false, want true", s)
		}
	}
	for _, s := range nonTerminal {
		if s.Terminal() {
			t.Errorf("%v.Terminal() = true, want false", s)
		}
	}
}

func TestNextTierProgression(t *testing.T) {
	if NextTier(SeparatorNone) != SeparatorLight {
		t.Error("NextTier(none) should be light")
	}
	if NextTier(SeparatorLight) != SeparatorHeavy {
		t.Error("NextTier(light) should be heavy")
	}
	if NextTier(SeparatorHeavy) != SeparatorHeavy {
		t.Error("NextTier(heavy) should stay heavy")
	}
}
