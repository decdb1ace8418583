package engine

import (
	"context"

	"github.com/capgen-ai/capgen/internal/audio"
	"github.com/capgen-ai/capgen/internal/domain"
)

// EnergyVADConfig controls the default energy-based VAD adapter.
type EnergyVADConfig struct {
	SpeechThresholdDB   float64
	SilenceGapSec       float64 // silence run that ends a raw speech block
	MinSpeechSec        float64 // raw blocks shorter than this are dropped
	FrameSec            float64
	CalibrationSec      float64 // 0 disables adaptive threshold
	AdaptiveMarginDB    float64
	TargetMinSec        float64 // merge adjacent blocks up to this duration
	TargetMaxSec        float64 // never merge past this duration
}

// DefaultEnergyVADConfig returns thresholds tuned for 15-30s subtitle
// chunks.
func DefaultEnergyVADConfig() EnergyVADConfig {
	return EnergyVADConfig{
		SpeechThresholdDB: -30,
		SilenceGapSec:     0.6,
		MinSpeechSec:      0.3,
		FrameSec:          0.03,
		CalibrationSec:    0.5,
		AdaptiveMarginDB:  10,
		TargetMinSec:      15,
		TargetMaxSec:      30,
	}
}

// EnergyVAD is the default VAD adapter: energy-threshold speech detection
// with an adaptive noise-floor calibration window. It operates on a whole
// bounded buffer and merges raw speech runs up to a 15-30s target chunk
// duration.
type EnergyVAD struct {
	cfg EnergyVADConfig
}

func NewEnergyVAD(cfg EnergyVADConfig) *EnergyVAD {
	return &EnergyVAD{cfg: cfg}
}

func (e *EnergyVAD) Load(ctx context.Context) error   { return nil }
func (e *EnergyVAD) Unload(ctx context.Context) error { return nil }

// Segment implements the VAD interface. An input with no detected speech
// returns an empty slice with no error; callers treat empty as "no
// speech".
func (e *EnergyVAD) Segment(ctx context.Context, samples []float32, sampleRate int) ([]domain.VADSegment, error) {
	if len(samples) == 0 {
		return nil, nil
	}

	frameLen := int(e.cfg.FrameSec * float64(sampleRate))
	if frameLen <= 0 {
		frameLen = 480
	}

	threshold := e.cfg.SpeechThresholdDB
	if e.cfg.CalibrationSec > 0 {
		threshold = e.calibrate(samples, sampleRate, frameLen)
	}

	raw := e.detectRawBlocks(samples, sampleRate, frameLen, threshold)
	merged := mergeBlocks(raw, e.cfg.TargetMinSec, e.cfg.TargetMaxSec)

	segments := make([]domain.VADSegment, 0, len(merged))
	for i, b := range merged {
		if b.end <= b.start {
			continue
		}
		segments = append(segments, domain.VADSegment{Index: i, StartSec: b.start, EndSec: b.end})
	}
	return segments, nil
}

type rawBlock struct{ start, end float64 }

// calibrate averages the energy of the first CalibrationSec of audio to
// derive a noise floor, then raises the threshold above it, but only if
// that's stricter than the static default.
func (e *EnergyVAD) calibrate(samples []float32, sampleRate, frameLen int) float64 {
	calibSamples := int(e.cfg.CalibrationSec * float64(sampleRate))
	if calibSamples > len(samples) {
		calibSamples = len(samples)
	}

	var sum float64
	count := 0
	for off := 0; off+frameLen <= calibSamples; off += frameLen {
		sum += audio.EnergyDB(samples[off : off+frameLen])
		count++
	}
	if count == 0 {
		return e.cfg.SpeechThresholdDB
	}

	noiseFloor := sum / float64(count)
	adaptive := noiseFloor + e.cfg.AdaptiveMarginDB
	if adaptive > e.cfg.SpeechThresholdDB {
		return adaptive
	}
	return e.cfg.SpeechThresholdDB
}

func (e *EnergyVAD) detectRawBlocks(samples []float32, sampleRate, frameLen int, threshold float64) []rawBlock {
	var blocks []rawBlock
	inSpeech := false
	var blockStart float64
	var lastSpeechEnd float64

	secPerFrame := float64(frameLen) / float64(sampleRate)

	for off := 0; off < len(samples); off += frameLen {
		end := off + frameLen
		if end > len(samples) {
			end = len(samples)
		}
		frame := samples[off:end]
		t0 := float64(off) / float64(sampleRate)
		t1 := t0 + float64(len(frame))/float64(sampleRate)

		isSpeech := audio.EnergyDB(frame) >= threshold

		switch {
		case isSpeech && !inSpeech:
			inSpeech = true
			blockStart = t0
			lastSpeechEnd = t1
		case isSpeech && inSpeech:
			lastSpeechEnd = t1
		case !inSpeech:
			// still silence
		case t0-lastSpeechEnd >= e.cfg.SilenceGapSec:
			inSpeech = false
			if lastSpeechEnd-blockStart >= e.cfg.MinSpeechSec {
				blocks = append(blocks, rawBlock{blockStart, lastSpeechEnd})
			}
		}
		_ = secPerFrame
	}

	if inSpeech && lastSpeechEnd-blockStart >= e.cfg.MinSpeechSec {
		blocks = append(blocks, rawBlock{blockStart, lastSpeechEnd})
	}

	return blocks
}

// mergeBlocks combines adjacent raw speech blocks so each resulting chunk
// lands in [targetMin, targetMax] seconds where possible, never splitting
// a single raw block and never merging past targetMax.
func mergeBlocks(blocks []rawBlock, targetMin, targetMax float64) []rawBlock {
	if len(blocks) == 0 {
		return nil
	}

	merged := make([]rawBlock, 0, len(blocks))
	cur := blocks[0]

	for _, b := range blocks[1:] {
		combinedDur := b.end - cur.start
		if cur.end-cur.start >= targetMin || combinedDur > targetMax {
			merged = append(merged, cur)
			cur = b
			continue
		}
		cur.end = b.end
	}
	merged = append(merged, cur)
	return merged
}
