package feature

import "fmt"

// Params holds every tunable of the extraction pipeline. A feature database
// is only comparable with vectors extracted under identical Params; the
// store persists them alongside the matrix and refuses mismatched loads.
type Params struct {
	SampleRate    int // Hz, mono
	NumMFCC       int // leading cepstral coefficients kept
	NumChroma     int // pitch-class bins
	NumMelFilters int // triangular filters behind the MFCCs
	WindowSize    int // STFT frame length in samples
	HopSize       int // samples between successive frames

	SegmentDuration   float64 // seconds per sampled segment
	IndexSegmentCount int     // segments per song at build time
	QuerySegmentCount int     // segments per clip at recognition time
}

// DefaultParams returns the out-of-the-box configuration. Indexing samples a
// longer stretch of each song (10x6s) than recognition does (8x6s); the
// asymmetry is deliberate and the two counts stay independently settable.
func DefaultParams() Params {
	return Params{
		SampleRate:        22050,
		NumMFCC:           20,
		NumChroma:         12,
		NumMelFilters:     26,
		WindowSize:        2048,
		HopSize:           512,
		SegmentDuration:   6,
		IndexSegmentCount: 10,
		QuerySegmentCount: 8,
	}
}

// Dim is the feature vector length: MFCC means followed by chroma means.
func (p Params) Dim() int {
	return p.NumMFCC + p.NumChroma
}

func (p Params) Validate() error {
	if p.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", p.SampleRate)
	}
	if p.NumMFCC <= 0 || p.NumChroma <= 0 {
		return fmt.Errorf("feature counts must be positive, got %d MFCC / %d chroma", p.NumMFCC, p.NumChroma)
	}
	if p.WindowSize <= 0 || p.HopSize <= 0 {
		return fmt.Errorf("window/hop sizes must be positive, got %d/%d", p.WindowSize, p.HopSize)
	}
	if p.NumMelFilters < p.NumMFCC {
		return fmt.Errorf("need at least %d mel filters for %d coefficients", p.NumMFCC, p.NumMFCC)
	}
	if p.SegmentDuration <= 0 {
		return fmt.Errorf("segment duration must be positive, got %v", p.SegmentDuration)
	}
	if p.IndexSegmentCount < 1 || p.QuerySegmentCount < 1 {
		return fmt.Errorf("segment counts must be at least 1, got %d/%d", p.IndexSegmentCount, p.QuerySegmentCount)
	}
	return nil
}
