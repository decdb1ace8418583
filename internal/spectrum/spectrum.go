// Package spectrum is a pure function of one chunk's samples that scores
// how music-like, noise-like, or clean the audio is and recommends a
// separator tier.
//
// The spectral features below are computed with a direct (O(n*k))
// discrete Fourier transform over a fixed bin count rather than an
// imported FFT. Chunks are at most ~30s of 16kHz audio, so the direct
// transform over a few hundred bins stays cheap relative to the
// surrounding network calls.
package spectrum

import (
	"math"

	"github.com/capgen-ai/capgen/internal/audio"
	"github.com/capgen-ai/capgen/internal/domain"
)

// Thresholds configures the additive-contribution scoring below. Defaults
// are deliberately conservative: real tuning of these constants belongs to
// a labeled dataset this module doesn't have access to.
type Thresholds struct {
	MusicThreshold float64
	NoiseThreshold float64
	HeavyThreshold float64

	NumBins    int // DFT bins examined, covering 0-8kHz at 16kHz sample rate
	HighFreqHz float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		MusicThreshold: 0.5,
		NoiseThreshold: 0.5,
		HeavyThreshold: 0.75,
		NumBins:        256,
		HighFreqHz:     4000,
	}
}

// Classifier is a pure, stateless feature extractor — Diagnose has no
// internal state and is safe to call concurrently across chunks.
type Classifier struct {
	th Thresholds
}

func NewClassifier(th Thresholds) *Classifier {
	return &Classifier{th: th}
}

// Diagnose scores a single chunk's samples.
func (c *Classifier) Diagnose(chunkIndex int, samples []float32, sampleRate int) domain.SpectrumDiagnosis {
	if len(samples) == 0 {
		return domain.SpectrumDiagnosis{
			ChunkIndex:           chunkIndex,
			Verdict:              domain.VerdictClean,
			RecommendedSeparator: domain.SeparatorNone,
		}
	}

	zcrMean, zcrVar := zeroCrossingStats(samples)
	rmsMean, rmsVar := rmsStats(samples)

	mags := magnitudeSpectrum(samples, c.th.NumBins)
	centroid, bandwidth := spectralCentroidBandwidth(mags, sampleRate)
	flatness := spectralFlatness(mags)
	rolloff := spectralRolloff(mags, sampleRate, 0.85)
	highFreqFraction := highFrequencyEnergyFraction(mags, sampleRate, c.th.HighFreqHz)
	harmonicRatio := harmonicToTotalRatio(mags)
	onsetStrength := onsetStrengthEstimate(samples, sampleRate)
	tempo := tempoEstimate(samples, sampleRate)

	features := []float64{
		zcrMean, zcrVar,
		centroid, bandwidth, flatness, rolloff,
		harmonicRatio,
		rmsMean, rmsVar,
		highFreqFraction,
		onsetStrength,
		tempo,
	}

	musicScore := clamp01(0.4*harmonicRatio + 0.3*(1-flatness) + 0.3*normalizedTempoConfidence(tempo))
	noiseScore := clamp01(0.5*flatness + 0.3*highFreqFraction + 0.2*normalizedZCR(zcrMean))
	cleanScore := clamp01(1 - math.Max(musicScore, noiseScore))

	verdict := verdictFromScores(musicScore, noiseScore, c.th.MusicThreshold, c.th.NoiseThreshold)

	return domain.SpectrumDiagnosis{
		ChunkIndex:           chunkIndex,
		Verdict:              verdict,
		MusicScore:           musicScore,
		NoiseScore:           noiseScore,
		CleanScore:           cleanScore,
		RecommendedSeparator: recommendSeparator(verdict, musicScore, c.th.HeavyThreshold),
		FeatureVector:        features,
	}
}

// verdictFromScores is an argmax rule. When the music score clears its
// threshold and is at least the noise score, the verdict is MIXED if the
// noise score also clears its own threshold, else MUSIC. When the noise
// score clears its threshold and strictly beats the music score, the
// verdict is NOISE, whether or not music also clears its threshold.
// Otherwise the chunk is CLEAN.
func verdictFromScores(musicScore, noiseScore, musicThreshold, noiseThreshold float64) domain.SpectrumVerdict {
	musicWins := musicScore >= musicThreshold && musicScore >= noiseScore
	noiseWins := noiseScore >= noiseThreshold && noiseScore > musicScore

	switch {
	case musicWins && noiseScore >= noiseThreshold:
		return domain.VerdictMixed
	case musicWins:
		return domain.VerdictMusic
	case noiseWins:
		return domain.VerdictNoise
	default:
		return domain.VerdictClean
	}
}

func recommendSeparator(verdict domain.SpectrumVerdict, musicScore, heavyThreshold float64) domain.SeparatorTier {
	if musicScore >= heavyThreshold {
		return domain.SeparatorHeavy
	}
	if verdict != domain.VerdictClean {
		return domain.SeparatorLight
	}
	return domain.SeparatorNone
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func zeroCrossingStats(samples []float32) (mean, variance float64) {
	const frameLen = 1024
	var rates []float64
	for off := 0; off < len(samples); off += frameLen {
		end := off + frameLen
		if end > len(samples) {
			end = len(samples)
		}
		rates = append(rates, audio.ZeroCrossingRate(samples[off:end]))
	}
	return meanVariance(rates)
}

func rmsStats(samples []float32) (mean, variance float64) {
	const frameLen = 1024
	var vals []float64
	for off := 0; off < len(samples); off += frameLen {
		end := off + frameLen
		if end > len(samples) {
			end = len(samples)
		}
		vals = append(vals, float64(audio.RMS(samples[off:end])))
	}
	return meanVariance(vals)
}

func meanVariance(vals []float64) (mean, variance float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	mean = sum / float64(len(vals))
	var sqDiff float64
	for _, v := range vals {
		d := v - mean
		sqDiff += d * d
	}
	variance = sqDiff / float64(len(vals))
	return mean, variance
}

func normalizedZCR(zcr float64) float64 {
	return clamp01(zcr * 4)
}

func normalizedTempoConfidence(bpm float64) float64 {
	// Music tends to land in a recognizable tempo band; silence/noise
	// produces an unstable or near-zero estimate.
	if bpm < 40 || bpm > 220 {
		return 0
	}
	return 1
}
