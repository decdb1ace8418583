package domain

// WordTimestamp is one word's time span within a sentence.
type WordTimestamp struct {
	Text       string  `json:"text"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
	IsPseudo   bool    `json:"is_pseudo"`
}

// SentenceSource identifies which stage last produced a sentence's text.
type SentenceSource string

const (
	SourcePrimary        SentenceSource = "PRIMARY"
	SourceSecondaryPatch SentenceSource = "SECONDARY_PATCH"
	SourceLLMCorrection  SentenceSource = "LLM_CORRECTION"
	SourceLLMTranslation SentenceSource = "LLM_TRANSLATION"
)

// SentenceWarning flags low-quality text for the editor UI.
type SentenceWarning string

const (
	WarningNone          SentenceWarning = "none"
	WarningLowConfidence SentenceWarning = "low_confidence"
	WarningHighPerplexity SentenceWarning = "high_perplexity"
	WarningBoth          SentenceWarning = "both"
)

// Sentence is the unit of the Subtitle Session.
type Sentence struct {
	ID           string          `json:"id"`
	Index        int             `json:"index"`
	Start        float64         `json:"start"`
	End          float64         `json:"end"`
	Text         string          `json:"text"`
	Confidence   float64         `json:"confidence"`
	Source       SentenceSource  `json:"source"`
	IsModified   bool            `json:"is_modified"`
	OriginalText *string         `json:"original_text,omitempty"`
	AltText      *string         `json:"alt_text,omitempty"`
	Warning      SentenceWarning `json:"warning"`
	Perplexity   *float64        `json:"perplexity,omitempty"`
	Translation  *string         `json:"translation,omitempty"`
	Words        []WordTimestamp `json:"words"`
}

// DeriveWarning flags low confidence when it's below the threshold,
// high_perplexity when perplexity is at or above 50, both if both hold,
// else none.
func DeriveWarning(confidence float64, perplexity *float64, warnConfidence float64) SentenceWarning {
	low := confidence < warnConfidence
	high := perplexity != nil && *perplexity >= 50.0
	switch {
	case low && high:
		return WarningBoth
	case low:
		return WarningLowConfidence
	case high:
		return WarningHighPerplexity
	default:
		return WarningNone
	}
}
