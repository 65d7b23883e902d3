package dsp

import "math"

// HzToMel converts frequency in Hz to the mel scale.
func HzToMel(hz float64) float64 {
	return 2595.0 * math.Log10(1.0+hz/700.0)
}

// MelToHz converts mel scale back to frequency in Hz.
func MelToHz(mel float64) float64 {
	return 700.0 * (math.Pow(10.0, mel/2595.0) - 1.0)
}

// MelFilterBank builds numFilters triangular filters over fftSize/2 bins,
// equally spaced on the mel scale between lowFreq and highFreq.
func MelFilterBank(numFilters, fftSize, sampleRate int, lowFreq, highFreq float64) [][]float64 {
	if numFilters <= 0 || fftSize <= 0 {
		return nil
	}

	lowMel := HzToMel(lowFreq)
	highMel := HzToMel(highFreq)

	melPoints := make([]float64, numFilters+2)
	melStep := (highMel - lowMel) / float64(numFilters+1)
	for i := range melPoints {
		melPoints[i] = lowMel + float64(i)*melStep
	}

	numBins := fftSize / 2
	binPoints := make([]int, len(melPoints))
	for i, mel := range melPoints {
		hz := MelToHz(mel)
		bin := int(math.Floor(float64(fftSize)*hz/float64(sampleRate) + 0.5))
		if bin > numBins-1 {
			bin = numBins - 1
		}
		binPoints[i] = bin
	}

	filterBank := make([][]float64, numFilters)
	for m := 1; m <= numFilters; m++ {
		filter := make([]float64, numBins)
		left, center, right := binPoints[m-1], binPoints[m], binPoints[m+1]

		for k := left; k < center && k < numBins; k++ {
			if center != left {
				filter[k] = float64(k-left) / float64(center-left)
			}
		}
		for k := center; k < right && k < numBins; k++ {
			if right != center {
				filter[k] = float64(right-k) / float64(right-center)
			}
		}
		filterBank[m-1] = filter
	}
	return filterBank
}

// ApplyFilterBank projects a power spectrum through the filter bank.
func ApplyFilterBank(powerSpectrum []float64, filterBank [][]float64) []float64 {
	melSpectrum := make([]float64, len(filterBank))
	for i, filter := range filterBank {
		sum := 0.0
		for j := 0; j < len(filter) && j < len(powerSpectrum); j++ {
			sum += powerSpectrum[j] * filter[j]
		}
		melSpectrum[i] = sum
	}
	return melSpectrum
}
