package audio

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// ExtractMono16k shells out to ffmpeg to demux inputPath's audio track
// into mono 16kHz float32 PCM samples. Container demuxing is treated as an
// opaque external tool; this is the one place capgen shells out to it.
func ExtractMono16k(ctx context.Context, inputPath string) ([]float32, error) {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-f", "s16le",
		"-",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg extract %s: %w: %s", inputPath, err, stderr.String())
	}

	return DecodePCM16(stdout.Bytes()), nil
}

// Peaks downsamples samples to count waveform peak values in [0,1] for the
// editor's scrubber, and the total duration in seconds.
func Peaks(samples []float32, sampleRate, count int) (duration float64, peaks []float64) {
	duration = float64(len(samples)) / float64(sampleRate)
	if count <= 0 || len(samples) == 0 {
		return duration, nil
	}
	peaks = make([]float64, count)
	bucket := len(samples) / count
	if bucket == 0 {
		bucket = 1
	}
	for i := 0; i < count; i++ {
		start := i * bucket
		if start >= len(samples) {
			break
		}
		end := start + bucket
		if end > len(samples) {
			end = len(samples)
		}
		var peak float32
		for _, s := range samples[start:end] {
			a := s
			if a < 0 {
				a = -a
			}
			if a > peak {
				peak = a
			}
		}
		peaks[i] = float64(peak)
	}
	return duration, peaks
}
