package engine

import (
	"context"
	"fmt"

	"github.com/capgen-ai/capgen/internal/models"
	"github.com/capgen-ai/capgen/internal/pipeline"
)

// proofSystemPrompt and translateSystemPrompt give the shared AgentLLM two
// distinct, fixed personas instead of letting pipeline callers improvise a
// prompt per call site.
const (
	proofSystemPrompt = "You correct transcription errors in a single subtitle " +
		"sentence using the surrounding sentences as context. Fix misheard words, " +
		"punctuation, and casing. Keep the meaning and language unchanged. Reply " +
		"with the corrected sentence only, no commentary."

	translateSystemPrompt = "You translate a single subtitle sentence into the " +
		"requested target language, using the surrounding sentences as context for " +
		"tone and terminology. Reply with the translation only, no commentary."
)

// AgentLLMEngine adapts pipeline.AgentLLM's streaming Chat call into the
// engine.LLM interface's two one-shot operations. Proof and Translate never
// stream tokens to a caller, so onToken is always nil.
//
// Load/Unload only do real work for the "ollama" backend: ollamaURL set
// means this engine owns a local Ollama model's VRAM residency (preload on
// startup, unload on shutdown). Other backends (openai, anthropic) are
// remote services with no residency to manage, so Load/Unload are no-ops
// for them.
type AgentLLMEngine struct {
	llm        *pipeline.AgentLLM
	engineName string
	model      string
	ollamaURL  string
}

func NewAgentLLMEngine(llm *pipeline.AgentLLM, engineName, model string) *AgentLLMEngine {
	return &AgentLLMEngine{llm: llm, engineName: engineName, model: model}
}

// NewOllamaAgentLLMEngine is NewAgentLLMEngine for the "ollama" backend,
// wiring Load/Unload to the Ollama VRAM preload/unload calls.
func NewOllamaAgentLLMEngine(llm *pipeline.AgentLLM, model, ollamaURL string) *AgentLLMEngine {
	return &AgentLLMEngine{llm: llm, engineName: "ollama", model: model, ollamaURL: ollamaURL}
}

func (e *AgentLLMEngine) Load(ctx context.Context) error {
	if e.ollamaURL == "" {
		return nil
	}
	return models.PreloadLLM(ctx, e.ollamaURL, e.model)
}

func (e *AgentLLMEngine) Unload(ctx context.Context) error {
	if e.ollamaURL == "" {
		return nil
	}
	return models.UnloadLLM(ctx, e.ollamaURL, e.model)
}

// Proof implements LLM. context holds the neighboring sentences (already
// ordered) that give the model enough to disambiguate a misheard word.
// Only the corrected text is filled in: ProofResult.Perplexity is always 0.
func (e *AgentLLMEngine) Proof(ctx context.Context, text string, context []string) (*ProofResult, error) {
	prompt := withContext(text, context)
	result, err := e.llm.Chat(ctx, prompt, proofSystemPrompt, e.model, e.engineName, nil)
	if err != nil {
		return nil, fmt.Errorf("proof: %w", err)
	}
	return &ProofResult{Text: result.Text}, nil
}

// Translate implements LLM. Confidence is always reported as 1; no
// confidence estimate is read from the provider's reply.
func (e *AgentLLMEngine) Translate(ctx context.Context, text, targetLang string, context []string) (*TranslateResult, error) {
	prompt := fmt.Sprintf("Target language: %s\n\n%s", targetLang, withContext(text, context))
	result, err := e.llm.Chat(ctx, prompt, translateSystemPrompt, e.model, e.engineName, nil)
	if err != nil {
		return nil, fmt.Errorf("translate: %w", err)
	}
	return &TranslateResult{Text: result.Text, Confidence: 1}, nil
}

func withContext(text string, context []string) string {
	if len(context) == 0 {
		return "Sentence:\n" + text
	}
	prompt := "Surrounding sentences:\n"
	for _, c := range context {
		prompt += "- " + c + "\n"
	}
	prompt += "\nSentence to process:\n" + text
	return prompt
}
