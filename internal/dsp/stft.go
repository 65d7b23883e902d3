package dsp

import (
	"errors"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// Defaults for the analysis frames.
const (
	WindowSize = 2048
	HopSize    = 512
)

// MagnitudeSpectrum converts a complex spectrum into a magnitude spectrum
// over the positive frequency bins.
func MagnitudeSpectrum(spectrum []complex128) []float64 {
	half := len(spectrum) / 2
	mag := make([]float64, half)
	for i := 0; i < half; i++ {
		mag[i] = cmplx.Abs(spectrum[i])
	}
	return mag
}

// STFT computes the short-time Fourier transform and returns a time-major
// magnitude spectrogram: spectrogram[frame][bin], with windowSize/2 bins.
func STFT(samples []float64, windowSize, hopSize int, window []float64) ([][]float64, error) {
	if windowSize <= 0 || hopSize <= 0 {
		return nil, errors.New("window and hop sizes must be positive")
	}
	if len(window) != windowSize {
		return nil, errors.New("window length must equal windowSize")
	}
	if len(samples) < windowSize {
		return nil, errors.New("input shorter than window size")
	}

	numFrames := (len(samples)-windowSize)/hopSize + 1
	spectrogram := make([][]float64, 0, numFrames)
	frame := make([]float64, windowSize)
	for start := 0; start+windowSize <= len(samples); start += hopSize {
		copy(frame, samples[start:start+windowSize])
		for i := range frame {
			frame[i] *= window[i]
		}
		spec := fft.FFTReal(frame)
		spectrogram = append(spectrogram, MagnitudeSpectrum(spec))
	}
	return spectrogram, nil
}
