package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/capgen-ai/capgen/internal/audio"
	"github.com/capgen-ai/capgen/internal/domain"
	"github.com/capgen-ai/capgen/internal/httpx"
	"github.com/capgen-ai/capgen/internal/metrics"
)

// HTTPPrimaryASR sends audio to a whisper.cpp-style transcription server
// as a multipart WAV upload and returns word-level timestamps, a
// confidence score, and an ambient-audio event tag the fuse controller
// reads.
type HTTPPrimaryASR struct {
	url    string
	client *http.Client
}

func NewHTTPPrimaryASR(url string, poolSize int) *HTTPPrimaryASR {
	return &HTTPPrimaryASR{url: url, client: httpx.NewPooledHTTPClient(poolSize, 30*time.Second)}
}

func (c *HTTPPrimaryASR) Load(ctx context.Context) error   { return nil }
func (c *HTTPPrimaryASR) Unload(ctx context.Context) error { return nil }

type whisperWord struct {
	Text       string  `json:"text"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
}

type whisperResponse struct {
	Text            string        `json:"text"`
	TextClean       string        `json:"text_clean"`
	AvgLogprob      float64       `json:"avg_logprob"`
	AvgNoSpeechProb float64       `json:"avg_no_speech_prob"`
	Words           []whisperWord `json:"words"`
	EventTag        string        `json:"event_tag"`
	Language        string        `json:"language"`
}

// Transcribe implements PrimaryASR.
func (c *HTTPPrimaryASR) Transcribe(ctx context.Context, samples []float32, sampleRate int, languageHint string) (*PrimaryASRResult, error) {
	start := time.Now()

	body, contentType, err := buildMultipartWAV(samples, sampleRate, languageHint)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+"/inference", body)
	if err != nil {
		return nil, fmt.Errorf("create asr request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.Errors.WithLabelValues("primary_asr", "http").Inc()
		return nil, fmt.Errorf("asr request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		metrics.Errors.WithLabelValues("primary_asr", "status").Inc()
		return nil, fmt.Errorf("asr status %d: %s", resp.StatusCode, respBody)
	}

	var wr whisperResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return nil, fmt.Errorf("decode asr response: %w", err)
	}

	metrics.StageDuration.WithLabelValues("primary_asr").Observe(time.Since(start).Seconds())

	words := make([]domain.WordTimestamp, len(wr.Words))
	for i, w := range wr.Words {
		words[i] = domain.WordTimestamp{Text: w.Text, Start: w.Start, End: w.End, Confidence: w.Confidence}
	}

	return &PrimaryASRResult{
		Text:          wr.Text,
		TextClean:     wr.TextClean,
		AvgConfidence: confidenceFromLogprob(wr.AvgLogprob, wr.AvgNoSpeechProb),
		Words:         words,
		EventTag:      wr.EventTag,
		Language:      wr.Language,
	}, nil
}

// confidenceFromLogprob derives a [0,1] confidence from whisper-style
// log-probabilities: min(1, max(0, 1 + avg_logprob)) × (1 − avg_no_speech_prob).
func confidenceFromLogprob(avgLogprob, avgNoSpeechProb float64) float64 {
	base := 1 + avgLogprob
	if base > 1 {
		base = 1
	}
	if base < 0 {
		base = 0
	}
	return base * (1 - avgNoSpeechProb)
}

func buildMultipartWAV(samples []float32, sampleRate int, languageHint string) (*bytes.Buffer, string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "chunk.wav")
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	wavBytes, err := audio.EncodeWAV(samples, sampleRate)
	if err != nil {
		return nil, "", fmt.Errorf("encode wav: %w", err)
	}
	if _, err := part.Write(wavBytes); err != nil {
		return nil, "", fmt.Errorf("write wav data: %w", err)
	}

	if languageHint != "" {
		if err := writer.WriteField("language", languageHint); err != nil {
			return nil, "", fmt.Errorf("write language field: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close writer: %w", err)
	}
	return &body, writer.FormDataContentType(), nil
}

// HTTPSecondaryASR calls a higher-accuracy, text-only transcription
// server. Same wire shape as HTTPPrimaryASR, but its timestamps (if any)
// are never parsed into the result: the secondary pass only ever patches
// text.
type HTTPSecondaryASR struct {
	url    string
	client *http.Client
}

func NewHTTPSecondaryASR(url string, poolSize int) *HTTPSecondaryASR {
	return &HTTPSecondaryASR{url: url, client: httpx.NewPooledHTTPClient(poolSize, 30*time.Second)}
}

func (c *HTTPSecondaryASR) Load(ctx context.Context) error   { return nil }
func (c *HTTPSecondaryASR) Unload(ctx context.Context) error { return nil }

func (c *HTTPSecondaryASR) TranscribeTextOnly(ctx context.Context, samples []float32, sampleRate int, contextPrompt, languageHint string) (*SecondaryASRResult, error) {
	start := time.Now()

	body, contentType, err := buildMultipartWAV(samples, sampleRate, languageHint)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+"/inference", body)
	if err != nil {
		return nil, fmt.Errorf("create secondary asr request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if contextPrompt != "" {
		req.Header.Set("X-Context-Prompt", contextPrompt)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.Errors.WithLabelValues("secondary_asr", "http").Inc()
		return nil, fmt.Errorf("secondary asr request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		metrics.Errors.WithLabelValues("secondary_asr", "status").Inc()
		return nil, fmt.Errorf("secondary asr status %d: %s", resp.StatusCode, respBody)
	}

	var wr whisperResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return nil, fmt.Errorf("decode secondary asr response: %w", err)
	}

	metrics.StageDuration.WithLabelValues("secondary_asr").Observe(time.Since(start).Seconds())

	return &SecondaryASRResult{
		Text:          wr.Text,
		AvgConfidence: confidenceFromLogprob(wr.AvgLogprob, wr.AvgNoSpeechProb),
	}, nil
}
