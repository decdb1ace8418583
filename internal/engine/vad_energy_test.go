package engine

import (
	"context"
	"testing"
)

const testSampleRate = 16000

func tone(frames int, frameLen int, amplitude float32) []float32 {
	out := make([]float32, frames*frameLen)
	for i := range out {
		out[i] = amplitude
	}
	return out
}

func TestSegmentEmptyInputReturnsNoSegments(t *testing.T) {
	vad := NewEnergyVAD(DefaultEnergyVADConfig())
	segs, err := vad.Segment(context.Background(), nil, testSampleRate)
	if err != nil {
		t.Fatalf("Segment() error: %v", err)
	}
	if len(segs) != 0 {
		t.Errorf("Segment(nil) = %v, want empty", segs)
	}
}

func TestSegmentAllSilenceReturnsNoSegments(t *testing.T) {
	cfg := DefaultEnergyVADConfig()
	cfg.CalibrationSec = 0
	vad := NewEnergyVAD(cfg)

	frameLen := int(cfg.FrameSec * testSampleRate)
	silence := tone(50, frameLen, 0)

	segs, err := vad.Segment(context.Background(), silence, testSampleRate)
	if err != nil {
		t.Fatalf("Segment() error: %v", err)
	}
	if len(segs) != 0 {
		t.Errorf("Segment(all silence) = %v, want empty", segs)
	}
}

func TestSegmentDetectsOneSpeechBlock(t *testing.T) {
	cfg := EnergyVADConfig{
		SpeechThresholdDB: -20,
		SilenceGapSec:     0.15,
		MinSpeechSec:      0.3,
		FrameSec:          0.1,
		CalibrationSec:    0,
		TargetMinSec:      100,
		TargetMaxSec:      1000,
	}
	vad := NewEnergyVAD(cfg)
	frameLen := int(cfg.FrameSec * testSampleRate)

	samples := append(append(
		tone(5, frameLen, 0),
		tone(5, frameLen, 0.5)...),
		tone(5, frameLen, 0)...)

	segs, err := vad.Segment(context.Background(), samples, testSampleRate)
	if err != nil {
		t.Fatalf("Segment() error: %v", err)
	}
	if len(segs) != 1 {
		t.Fatalf("Segment() returned %d segments, want 1: %+v", len(segs), segs)
	}
	if segs[0].StartSec != 0.5 || segs[0].EndSec != 1.0 {
		t.Errorf("segment = {%v, %v}, want {0.5, 1.0}", segs[0].StartSec, segs[0].EndSec)
	}
}

func TestSegmentDropsBlocksShorterThanMinSpeechSec(t *testing.T) {
	cfg := EnergyVADConfig{
		SpeechThresholdDB: -20,
		SilenceGapSec:     0.15,
		MinSpeechSec:      1.0,
		FrameSec:          0.1,
		CalibrationSec:    0,
		TargetMinSec:      100,
		TargetMaxSec:      1000,
	}
	vad := NewEnergyVAD(cfg)
	frameLen := int(cfg.FrameSec * testSampleRate)

	// A 0.2s blip of loud audio, well under MinSpeechSec.
	samples := append(append(
		tone(5, frameLen, 0),
		tone(2, frameLen, 0.5)...),
		tone(5, frameLen, 0)...)

	segs, err := vad.Segment(context.Background(), samples, testSampleRate)
	if err != nil {
		t.Fatalf("Segment() error: %v", err)
	}
	if len(segs) != 0 {
		t.Errorf("Segment() with a too-short speech blip = %v, want empty", segs)
	}
}
