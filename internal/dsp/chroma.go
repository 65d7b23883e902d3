package dsp

import "math"

// Chroma folds magnitude spectra into 12 pitch-class energy bins
// (C, C#, ..., B), octave-independent.
type Chroma struct {
	sampleRate int
	tuningFreq float64
	minFreq    float64
	maxFreq    float64

	mapping []int
	fftSize int
}

// NumChromaBins is fixed by the twelve-tone pitch classes.
const NumChromaBins = 12

// NewChroma creates a chroma computer with A4 = 440 Hz tuning over the
// musically useful 80 Hz - 8 kHz band.
func NewChroma(sampleRate int) *Chroma {
	return &Chroma{
		sampleRate: sampleRate,
		tuningFreq: 440.0,
		minFreq:    80.0,
		maxFreq:    8000.0,
	}
}

// Compute folds one magnitude spectrum frame into a chroma vector. Each frame
// is peak-normalized so loudness does not dominate the pitch-class profile.
func (c *Chroma) Compute(magnitudeSpectrum []float64) []float64 {
	c.initMapping(len(magnitudeSpectrum) * 2)

	frame := make([]float64, NumChromaBins)
	for f, mag := range magnitudeSpectrum {
		bin := c.mapping[f]
		if bin < 0 {
			continue
		}
		frame[bin] += mag * mag
	}

	peak := 0.0
	for _, e := range frame {
		if e > peak {
			peak = e
		}
	}
	if peak > 1e-10 {
		for i := range frame {
			frame[i] /= peak
		}
	}
	return frame
}

// ComputeFrames folds a whole spectrogram, one chroma vector per time frame.
func (c *Chroma) ComputeFrames(spectrogram [][]float64) [][]float64 {
	chromagram := make([][]float64, len(spectrogram))
	for t, magnitudeSpectrum := range spectrogram {
		chromagram[t] = c.Compute(magnitudeSpectrum)
	}
	return chromagram
}

// initMapping precomputes which chroma bin each FFT bin lands in.
func (c *Chroma) initMapping(fftSize int) {
	if c.fftSize == fftSize && c.mapping != nil {
		return
	}
	numBins := fftSize / 2
	freqResolution := float64(c.sampleRate) / float64(fftSize)

	c.mapping = make([]int, numBins)
	for f := 0; f < numBins; f++ {
		frequency := float64(f) * freqResolution
		if frequency < c.minFreq || frequency > c.maxFreq {
			c.mapping[f] = -1
			continue
		}
		// MIDI note number: A4 (tuning frequency) = 69
		midi := 69.0 + 12.0*math.Log2(frequency/c.tuningFreq)
		bin := int(math.Round(midi)) % NumChromaBins
		if bin < 0 {
			bin += NumChromaBins
		}
		c.mapping[f] = bin
	}
	c.fftSize = fftSize
}
