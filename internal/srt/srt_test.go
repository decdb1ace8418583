package srt

import (
	"testing"

	"github.com/capgen-ai/capgen/internal/domain"
)

func sampleSentences() []domain.Sentence {
	return []domain.Sentence{
		{Index: 0, Start: 0, End: 1.5, Text: "Hello there."},
		{Index: 1, Start: 1.5, End: 3.25, Text: "General Kenobi."},
	}
}

func TestEncodeProducesNumberedBlocks(t *testing.T) {
	out := Encode(sampleSentences())
	want := "1\n00:00:00,000 --> 00:00:01,500\nHello there.\n\n2\n00:00:01,500 --> 00:00:03,250\nGeneral Kenobi.\n"
	if out != want {
		t.Errorf("Encode() = %q, want %q", out, want)
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	original := sampleSentences()
	entries, err := Decode(Encode(original))
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if len(entries) != len(original) {
		t.Fatalf("Decode() returned %d entries, want %d", len(entries), len(original))
	}
	for i, e := range entries {
		if e.Text != original[i].Text {
			t.Errorf("entry %d text = %q, want %q", i, e.Text, original[i].Text)
		}
		if e.Start != original[i].Start || e.End != original[i].End {
			t.Errorf("entry %d timing = (%v, %v), want (%v, %v)", i, e.Start, e.End, original[i].Start, original[i].End)
		}
	}
}

func TestEncodeDecodeEncodeIsStable(t *testing.T) {
	first := Encode(sampleSentences())
	entries, err := Decode(first)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	second := Encode(sentencesFromEntries(entries))
	if first != second {
		t.Errorf("Encode(Decode(Encode(x))) != Encode(x):\nfirst:  %q\nsecond: %q", first, second)
	}
}

func TestDecodeToleratesCRLFAndTrailingBlankLine(t *testing.T) {
	input := "1\r\n00:00:00,000 --> 00:00:01,000\r\nHi\r\n\r\n"
	entries, err := Decode(input)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if len(entries) != 1 || entries[0].Text != "Hi" {
		t.Errorf("Decode() = %+v, want one entry with text \"Hi\"", entries)
	}
}

func TestDecodeRejectsMalformedIndex(t *testing.T) {
	if _, err := Decode("not-a-number\n00:00:00,000 --> 00:00:01,000\nHi\n"); err == nil {
		t.Error("expected Decode() to reject a non-numeric entry index")
	}
}

func sentencesFromEntries(entries []Entry) []domain.Sentence {
	sentences := make([]domain.Sentence, len(entries))
	for i, e := range entries {
		sentences[i] = domain.Sentence{Index: i, Start: e.Start, End: e.End, Text: e.Text}
	}
	return sentences
}
