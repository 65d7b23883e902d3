package feature

import (
	"context"
	"fmt"

	"melodex/internal/audio"
	"melodex/internal/dsp"
)

// Vector is one fixed-length feature vector: NumMFCC cepstral means followed
// by NumChroma pitch-class means, single precision.
type Vector []float32

// Extractor turns audio windows into feature vectors. It carries per-instance
// DSP state (filter banks, bin mappings), so share one per goroutine, not
// across goroutines.
type Extractor struct {
	dec    audio.Decoder
	params Params

	window []float64
	mfcc   *dsp.MFCC
	chroma *dsp.Chroma
}

func NewExtractor(dec audio.Decoder, params Params) *Extractor {
	return &Extractor{
		dec:    dec,
		params: params,
		window: dsp.Hann(params.WindowSize),
		mfcc:   dsp.NewMFCC(params.SampleRate, params.NumMFCC, params.NumMelFilters),
		chroma: dsp.NewChroma(params.SampleRate),
	}
}

func (e *Extractor) Params() Params { return e.params }

// ExtractWindow computes the feature vector for one segment of the file.
// The middle return reports presence: a window past end-of-file, or too short
// to fill a single analysis frame, yields (nil, false, nil) — an absent
// result, not an error. Callers skip absent windows.
func (e *Extractor) ExtractWindow(ctx context.Context, path string, w Window) (Vector, bool, error) {
	samples, err := e.dec.DecodeWindow(ctx, path, w.Offset, w.Duration)
	if err != nil {
		return nil, false, err
	}
	if len(samples) < e.params.WindowSize {
		return nil, false, nil
	}

	spectrogram, err := dsp.STFT(samples, e.params.WindowSize, e.params.HopSize, e.window)
	if err != nil {
		return nil, false, fmt.Errorf("stft on %s: %w", path, err)
	}

	mfccFrames, err := e.mfcc.ComputeFrames(spectrogram)
	if err != nil {
		return nil, false, fmt.Errorf("mfcc on %s: %w", path, err)
	}
	chromaFrames := e.chroma.ComputeFrames(spectrogram)

	vec := make(Vector, 0, e.params.Dim())
	for _, m := range columnMeans(mfccFrames, e.params.NumMFCC) {
		vec = append(vec, float32(m))
	}
	for _, m := range columnMeans(chromaFrames, e.params.NumChroma) {
		vec = append(vec, float32(m))
	}
	return vec, true, nil
}

// ExtractSong samples IndexSegmentCount segments and reduces the surviving
// vectors to their elementwise mean. All segments absent means the whole
// track is absent (short or silent file) — reported as (nil, false, nil) so
// the builder can skip it without failing the batch.
func (e *Extractor) ExtractSong(ctx context.Context, path string) (Vector, bool, error) {
	sums := make([]float64, e.params.Dim())
	survived := 0

	for _, w := range Windows(e.params.SegmentDuration, e.params.IndexSegmentCount) {
		vec, ok, err := e.ExtractWindow(ctx, path, w)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			continue
		}
		for i, v := range vec {
			sums[i] += float64(v)
		}
		survived++
	}

	if survived == 0 {
		return nil, false, nil
	}

	mean := make(Vector, len(sums))
	for i, s := range sums {
		mean[i] = float32(s / float64(survived))
	}
	return mean, true, nil
}

// columnMeans averages each of the first dim columns across time frames.
func columnMeans(frames [][]float64, dim int) []float64 {
	means := make([]float64, dim)
	if len(frames) == 0 {
		return means
	}
	for _, frame := range frames {
		for i := 0; i < dim && i < len(frame); i++ {
			means[i] += frame[i]
		}
	}
	for i := range means {
		means[i] /= float64(len(frames))
	}
	return means
}
