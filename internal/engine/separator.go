package engine

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/capgen-ai/capgen/internal/denoise"
	"github.com/capgen-ai/capgen/internal/domain"
	"github.com/capgen-ai/capgen/internal/httpx"
	"github.com/capgen-ai/capgen/internal/metrics"
)

// TieredSeparator dispatches to an in-process light tier (RNNoise, via a
// cgo binding) or a heavy remote sidecar tier (a source-separation model
// server). The "none" tier is a passthrough.
type TieredSeparator struct {
	light  *denoise.Denoiser
	heavy  *heavySeparatorClient
}

// NewTieredSeparator wires the light in-process denoiser and the heavy
// sidecar URL. heavyURL may be empty if no heavy separator is deployed;
// requests for the heavy tier then fall back to light.
func NewTieredSeparator(heavyURL string, poolSize int) *TieredSeparator {
	return &TieredSeparator{
		light: denoise.New(),
		heavy: newHeavySeparatorClient(heavyURL, poolSize),
	}
}

func (s *TieredSeparator) Load(ctx context.Context) error   { return nil }
func (s *TieredSeparator) Unload(ctx context.Context) error { return nil }

// Separate dispatches to the requested tier. Input length and sample rate
// are preserved; the output is voice-prominent.
func (s *TieredSeparator) Separate(ctx context.Context, samples []float32, sampleRate int, tier domain.SeparatorTier) ([]float32, error) {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues("separate_" + string(tier)).Observe(time.Since(start).Seconds())
	}()

	switch tier {
	case domain.SeparatorNone:
		return samples, nil
	case domain.SeparatorLight:
		return s.light.Denoise(samples), nil
	case domain.SeparatorHeavy:
		if s.heavy.url == "" {
			return s.light.Denoise(samples), nil
		}
		return s.heavy.separate(ctx, samples)
	default:
		return nil, fmt.Errorf("unknown separator tier %q", tier)
	}
}

func (s *TieredSeparator) Close() {
	s.light.Close()
}

// heavySeparatorClient calls an external heavy-tier separation model
// (e.g. a demucs-class sidecar) over raw float32 HTTP.
type heavySeparatorClient struct {
	url    string
	client *http.Client
}

func newHeavySeparatorClient(url string, poolSize int) *heavySeparatorClient {
	return &heavySeparatorClient{
		url:    url,
		client: httpx.NewPooledHTTPClient(poolSize, 60*time.Second),
	}
}

func (c *heavySeparatorClient) separate(ctx context.Context, samples []float32) ([]float32, error) {
	buf := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(s))
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+"/separate", bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("separator request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.Errors.WithLabelValues("separator", "http").Inc()
		return nil, fmt.Errorf("separator http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		metrics.Errors.WithLabelValues("separator", "status").Inc()
		return nil, fmt.Errorf("separator status %d: %s", resp.StatusCode, body)
	}

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("separator read: %w", err)
	}
	if len(respBytes)%4 != 0 {
		return nil, fmt.Errorf("separator response not aligned to float32")
	}

	out := make([]float32, len(respBytes)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(respBytes[i*4:]))
	}
	return out, nil
}
