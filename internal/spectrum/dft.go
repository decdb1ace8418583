package spectrum

import "math"

// magnitudeSpectrum computes a direct DFT magnitude spectrum of samples at
// numBins frequencies evenly spaced from 0 Hz up to Nyquist, after applying
// a Hann window.
// Direct O(n*k) transform: see the package doc comment for why this isn't
// an imported FFT.
func magnitudeSpectrum(samples []float32, numBins int) []float64 {
	n := len(samples)
	if n == 0 {
		return make([]float64, numBins)
	}
	if numBins > n/2 {
		numBins = n / 2
	}
	if numBins <= 0 {
		numBins = 1
	}

	windowed := make([]float64, n)
	for i, s := range samples {
		w := 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1))
		windowed[i] = float64(s) * w
	}

	mags := make([]float64, numBins)
	for k := 0; k < numBins; k++ {
		var re, im float64
		omega := math.Pi * float64(k) / float64(numBins)
		for i, x := range windowed {
			angle := omega * float64(i)
			re += x * math.Cos(angle)
			im -= x * math.Sin(angle)
		}
		mags[k] = math.Hypot(re, im)
	}
	return mags
}

func binHz(k, numBins, sampleRate int) float64 {
	// numBins covers 0..Nyquist over the transform length; approximate the
	// per-bin frequency assuming bins are evenly spaced to Nyquist.
	return float64(k) / float64(numBins) * (float64(sampleRate) / 2)
}

func spectralCentroidBandwidth(mags []float64, sampleRate int) (centroid, bandwidth float64) {
	var weightedSum, magSum float64
	for k, m := range mags {
		f := binHz(k, len(mags), sampleRate)
		weightedSum += f * m
		magSum += m
	}
	if magSum == 0 {
		return 0, 0
	}
	centroid = weightedSum / magSum

	var varSum float64
	for k, m := range mags {
		f := binHz(k, len(mags), sampleRate)
		d := f - centroid
		varSum += d * d * m
	}
	bandwidth = math.Sqrt(varSum / magSum)
	return centroid, bandwidth
}

func spectralFlatness(mags []float64) float64 {
	n := float64(len(mags))
	if n == 0 {
		return 0
	}
	var logSum, sum float64
	nonZero := 0
	for _, m := range mags {
		if m <= 0 {
			continue
		}
		logSum += math.Log(m)
		sum += m
		nonZero++
	}
	if nonZero == 0 || sum == 0 {
		return 0
	}
	geoMean := math.Exp(logSum / float64(nonZero))
	arithMean := sum / float64(nonZero)
	return clamp01(geoMean / arithMean)
}

func spectralRolloff(mags []float64, sampleRate int, fraction float64) float64 {
	var total float64
	for _, m := range mags {
		total += m
	}
	if total == 0 {
		return 0
	}
	target := total * fraction
	var cum float64
	for k, m := range mags {
		cum += m
		if cum >= target {
			return binHz(k, len(mags), sampleRate)
		}
	}
	return binHz(len(mags)-1, len(mags), sampleRate)
}

func highFrequencyEnergyFraction(mags []float64, sampleRate int, cutoffHz float64) float64 {
	var total, high float64
	for k, m := range mags {
		f := binHz(k, len(mags), sampleRate)
		energy := m * m
		total += energy
		if f >= cutoffHz {
			high += energy
		}
	}
	if total == 0 {
		return 0
	}
	return high / total
}

// harmonicToTotalRatio approximates a harmonic-percussive split by treating
// narrow, well-separated spectral peaks as harmonic content and broadband
// energy as percussive/noise content, rather than running a full HPSS
// median-filter decomposition (no such library exists in the corpus).
func harmonicToTotalRatio(mags []float64) float64 {
	if len(mags) < 3 {
		return 0
	}
	var peakEnergy, totalEnergy float64
	for k := 1; k < len(mags)-1; k++ {
		e := mags[k] * mags[k]
		totalEnergy += e
		if mags[k] > mags[k-1] && mags[k] > mags[k+1] {
			peakEnergy += e
		}
	}
	if totalEnergy == 0 {
		return 0
	}
	return clamp01(peakEnergy / totalEnergy)
}

// onsetStrengthEstimate sums frame-to-frame RMS energy increases, a cheap
// stand-in for a spectral-flux onset detector.
func onsetStrengthEstimate(samples []float32, sampleRate int) float64 {
	const frameLen = 1024
	var prev float64
	var strength float64
	first := true
	for off := 0; off < len(samples); off += frameLen {
		end := off + frameLen
		if end > len(samples) {
			end = len(samples)
		}
		var sum float64
		for _, s := range samples[off:end] {
			sum += float64(s) * float64(s)
		}
		rms := math.Sqrt(sum / float64(end-off))
		if !first && rms > prev {
			strength += rms - prev
		}
		prev = rms
		first = false
	}
	return strength
}

// tempoEstimate derives a rough BPM from the spacing between energy onsets,
// a cheap autocorrelation-free substitute for a full tempo tracker.
func tempoEstimate(samples []float32, sampleRate int) float64 {
	const frameLen = 1024
	secPerFrame := float64(frameLen) / float64(sampleRate)

	var energies []float64
	for off := 0; off < len(samples); off += frameLen {
		end := off + frameLen
		if end > len(samples) {
			end = len(samples)
		}
		var sum float64
		for _, s := range samples[off:end] {
			sum += float64(s) * float64(s)
		}
		energies = append(energies, sum)
	}
	if len(energies) < 3 {
		return 0
	}

	var peakGaps []int
	lastPeak := -1
	for i := 1; i < len(energies)-1; i++ {
		if energies[i] > energies[i-1] && energies[i] > energies[i+1] {
			if lastPeak >= 0 {
				peakGaps = append(peakGaps, i-lastPeak)
			}
			lastPeak = i
		}
	}
	if len(peakGaps) == 0 {
		return 0
	}
	var sum int
	for _, g := range peakGaps {
		sum += g
	}
	avgGapFrames := float64(sum) / float64(len(peakGaps))
	avgGapSec := avgGapFrames * secPerFrame
	if avgGapSec <= 0 {
		return 0
	}
	return 60 / avgGapSec
}
