package dsp

import (
	"fmt"
	"math"
)

// MFCC computes mel-frequency cepstral coefficients from magnitude spectra.
type MFCC struct {
	numCoefficients int
	numMelFilters   int
	sampleRate      int

	filterBank [][]float64
	dctMatrix  [][]float64
	fftSize    int
}

// NewMFCC creates an MFCC computer. The filter bank spans 0 Hz to Nyquist.
func NewMFCC(sampleRate, numCoefficients, numMelFilters int) *MFCC {
	return &MFCC{
		numCoefficients: numCoefficients,
		numMelFilters:   numMelFilters,
		sampleRate:      sampleRate,
	}
}

func (m *MFCC) init(fftSize int) error {
	if fftSize <= 0 {
		return fmt.Errorf("invalid FFT size: %d", fftSize)
	}
	if m.fftSize == fftSize && m.filterBank != nil {
		return nil
	}
	m.filterBank = MelFilterBank(m.numMelFilters, fftSize, m.sampleRate, 0, float64(m.sampleRate)/2)
	if len(m.filterBank) == 0 {
		return fmt.Errorf("failed to create mel filter bank")
	}
	m.dctMatrix = dctMatrix(m.numCoefficients, m.numMelFilters)
	m.fftSize = fftSize
	return nil
}

// Compute calculates the coefficients for a single magnitude spectrum frame.
func (m *MFCC) Compute(magnitudeSpectrum []float64) ([]float64, error) {
	if len(magnitudeSpectrum) == 0 {
		return nil, fmt.Errorf("empty magnitude spectrum")
	}
	if err := m.init(len(magnitudeSpectrum) * 2); err != nil {
		return nil, err
	}

	powerSpectrum := make([]float64, len(magnitudeSpectrum))
	for i, mag := range magnitudeSpectrum {
		powerSpectrum[i] = mag * mag
	}

	melSpectrum := ApplyFilterBank(powerSpectrum, m.filterBank)

	// Log with a floor to avoid log(0)
	logMel := make([]float64, len(melSpectrum))
	for i, mel := range melSpectrum {
		if mel > 1e-10 {
			logMel[i] = math.Log(mel)
		} else {
			logMel[i] = math.Log(1e-10)
		}
	}

	coeffs := make([]float64, m.numCoefficients)
	for k := 0; k < m.numCoefficients; k++ {
		sum := 0.0
		row := m.dctMatrix[k]
		for n := 0; n < len(logMel) && n < len(row); n++ {
			sum += logMel[n] * row[n]
		}
		coeffs[k] = sum
	}
	return coeffs, nil
}

// ComputeFrames processes a whole magnitude spectrogram, one coefficient
// vector per time frame.
func (m *MFCC) ComputeFrames(spectrogram [][]float64) ([][]float64, error) {
	frames := make([][]float64, len(spectrogram))
	for t, magnitudeSpectrum := range spectrogram {
		coeffs, err := m.Compute(magnitudeSpectrum)
		if err != nil {
			return nil, fmt.Errorf("computing MFCC for frame %d: %w", t, err)
		}
		frames[t] = coeffs
	}
	return frames, nil
}

// dctMatrix builds an orthonormal DCT-II matrix of numCoefficients rows over
// numFilters inputs.
func dctMatrix(numCoefficients, numFilters int) [][]float64 {
	mat := make([][]float64, numCoefficients)
	for k := 0; k < numCoefficients; k++ {
		mat[k] = make([]float64, numFilters)
		for n := 0; n < numFilters; n++ {
			v := math.Cos(math.Pi * float64(k) * (float64(n) + 0.5) / float64(numFilters))
			if k == 0 {
				v *= math.Sqrt(1.0 / float64(numFilters))
			} else {
				v *= math.Sqrt(2.0 / float64(numFilters))
			}
			mat[k][n] = v
		}
	}
	return mat
}
