package audio

import (
	"context"
	"math"
	"path/filepath"
	"testing"
)

func TestWAVRoundTrip(t *testing.T) {
	sampleRate := 8000
	samples := make([]float64, sampleRate) // 1 second
	for i := range samples {
		samples[i] = 0.5 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate))
	}

	path := filepath.Join(t.TempDir(), "tone.wav")
	if err := WriteWAV(path, samples, sampleRate); err != nil {
		t.Fatalf("WriteWAV failed: %v", err)
	}

	dec := NewWAVDecoder(sampleRate)
	got, err := dec.DecodeWindow(context.Background(), path, 0, 1)
	if err != nil {
		t.Fatalf("DecodeWindow failed: %v", err)
	}
	if len(got) != len(samples) {
		t.Fatalf("decoded %d samples, want %d", len(got), len(samples))
	}
	for i := 0; i < len(got); i += 1000 {
		if math.Abs(got[i]-samples[i]) > 1e-3 {
			t.Fatalf("sample %d = %v, want %v (16-bit tolerance)", i, got[i], samples[i])
		}
	}
}

func TestDecodeWindowOffsets(t *testing.T) {
	sampleRate := 8000
	samples := make([]float64, 2*sampleRate)
	for i := range samples {
		samples[i] = 0.25
	}
	path := filepath.Join(t.TempDir(), "flat.wav")
	if err := WriteWAV(path, samples, sampleRate); err != nil {
		t.Fatalf("WriteWAV failed: %v", err)
	}

	dec := NewWAVDecoder(sampleRate)

	// Window fully inside the file.
	got, err := dec.DecodeWindow(context.Background(), path, 0.5, 1)
	if err != nil {
		t.Fatalf("DecodeWindow failed: %v", err)
	}
	if len(got) != sampleRate {
		t.Errorf("interior window: %d samples, want %d", len(got), sampleRate)
	}

	// Window truncated by end of file.
	got, err = dec.DecodeWindow(context.Background(), path, 1.5, 1)
	if err != nil {
		t.Fatalf("DecodeWindow failed: %v", err)
	}
	if len(got) != sampleRate/2 {
		t.Errorf("truncated window: %d samples, want %d", len(got), sampleRate/2)
	}

	// Window entirely past end of file: absent, not an error.
	got, err = dec.DecodeWindow(context.Background(), path, 5, 1)
	if err != nil {
		t.Fatalf("window past EOF should not error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("window past EOF: %d samples, want 0", len(got))
	}
}

func TestDecodeWindowWrongRate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rate.wav")
	if err := WriteWAV(path, make([]float64, 1000), 8000); err != nil {
		t.Fatalf("WriteWAV failed: %v", err)
	}

	dec := NewWAVDecoder(22050)
	if _, err := dec.DecodeWindow(context.Background(), path, 0, 1); err == nil {
		t.Error("expected an error for mismatched sample rate")
	}
}

func TestDecodeWindowMissingFile(t *testing.T) {
	dec := NewWAVDecoder(8000)
	if _, err := dec.DecodeWindow(context.Background(), filepath.Join(t.TempDir(), "nope.wav"), 0, 1); err == nil {
		t.Error("expected an error for a missing file")
	}
}
