package melodex

import (
	"context"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"melodex/internal/audio"
	"melodex/internal/feature"
	"melodex/internal/store"
)

// testParams keeps the end-to-end fixtures small and fast.
func testParams() feature.Params {
	p := feature.DefaultParams()
	p.SampleRate = 8000
	p.SegmentDuration = 1
	p.IndexSegmentCount = 3
	p.QuerySegmentCount = 2
	return p
}

func writeTone(t *testing.T, path string, freq float64, seconds float64, sampleRate int) {
	t.Helper()
	n := int(seconds * float64(sampleRate))
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := audio.WriteWAV(path, samples, sampleRate); err != nil {
		t.Fatalf("writing fixture %s: %v", path, err)
	}
}

func newTestService(t *testing.T, dbPath string, params feature.Params) Service {
	t.Helper()
	svc, err := NewService(
		WithDBPath(dbPath),
		WithParams(params),
		WithDecoder(audio.NewWAVDecoder(params.SampleRate)),
		WithProgress(io.Discard),
		WithWorkers(2),
	)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return svc
}

func TestBuildAndRecognize(t *testing.T) {
	params := testParams()
	dir := t.TempDir()
	songsDir := filepath.Join(dir, "songs")
	dbPath := filepath.Join(dir, "test.sqlite3")

	// Three tones with distinct pitch classes: C4, E4, A4.
	writeTone(t, filepath.Join(songsDir, "c4.wav"), 261.63, 3.5, params.SampleRate)
	writeTone(t, filepath.Join(songsDir, "e4.wav"), 329.63, 3.5, params.SampleRate)
	writeTone(t, filepath.Join(songsDir, "a4.wav"), 440.00, 3.5, params.SampleRate)

	svc := newTestService(t, dbPath, params)

	report, err := svc.BuildDatabase(context.Background(), songsDir)
	if err != nil {
		t.Fatalf("BuildDatabase failed: %v", err)
	}
	if len(report.Indexed) != 3 {
		t.Fatalf("indexed %d songs, want 3: %s", len(report.Indexed), report.Summary())
	}

	// A clip of the same stationary tone must come back as its own song.
	clip := filepath.Join(dir, "clip.wav")
	writeTone(t, clip, 329.63, 2.5, params.SampleRate)

	result, err := svc.Recognize(context.Background(), clip)
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if result.Best().Song.Filename != "e4.wav" {
		t.Errorf("recognized %q, want e4.wav", result.Best().Song.Filename)
	}
	if result.SegmentsUsed != params.QuerySegmentCount {
		t.Errorf("used %d segments, want %d", result.SegmentsUsed, params.QuerySegmentCount)
	}
}

func TestRecognizeWithoutDatabase(t *testing.T) {
	params := testParams()
	dir := t.TempDir()
	svc := newTestService(t, filepath.Join(dir, "test.sqlite3"), params)

	clip := filepath.Join(dir, "clip.wav")
	writeTone(t, clip, 440, 2.5, params.SampleRate)

	if _, err := svc.Recognize(context.Background(), clip); !errors.Is(err, store.ErrNoDatabase) {
		t.Errorf("expected ErrNoDatabase, got %v", err)
	}
}

func TestRecognizeStaleDatabase(t *testing.T) {
	params := testParams()
	dir := t.TempDir()
	songsDir := filepath.Join(dir, "songs")
	dbPath := filepath.Join(dir, "test.sqlite3")
	writeTone(t, filepath.Join(songsDir, "a4.wav"), 440, 3.5, params.SampleRate)

	svc := newTestService(t, dbPath, params)
	if _, err := svc.BuildDatabase(context.Background(), songsDir); err != nil {
		t.Fatalf("BuildDatabase failed: %v", err)
	}
	svc.Close()

	// Reopening with different extraction parameters must refuse to match
	// against the old matrix.
	changed := params
	changed.NumMelFilters = 30
	stale := newTestService(t, dbPath, changed)

	clip := filepath.Join(dir, "clip.wav")
	writeTone(t, clip, 440, 2.5, params.SampleRate)

	if _, err := stale.Recognize(context.Background(), clip); !errors.Is(err, store.ErrParamsMismatch) {
		t.Errorf("expected ErrParamsMismatch, got %v", err)
	}
}

func TestListSongs(t *testing.T) {
	params := testParams()
	dir := t.TempDir()
	songsDir := filepath.Join(dir, "songs")
	writeTone(t, filepath.Join(songsDir, "b.wav"), 440, 3.5, params.SampleRate)
	writeTone(t, filepath.Join(songsDir, "a.wav"), 330, 3.5, params.SampleRate)

	svc := newTestService(t, filepath.Join(dir, "test.sqlite3"), params)

	// An unbuilt database lists as empty.
	songs, err := svc.ListSongs()
	if err != nil {
		t.Fatalf("ListSongs failed: %v", err)
	}
	if len(songs) != 0 {
		t.Fatalf("expected no songs before a build, got %d", len(songs))
	}

	if _, err := svc.BuildDatabase(context.Background(), songsDir); err != nil {
		t.Fatalf("BuildDatabase failed: %v", err)
	}
	songs, err = svc.ListSongs()
	if err != nil {
		t.Fatalf("ListSongs failed: %v", err)
	}
	if len(songs) != 2 {
		t.Fatalf("listed %d songs, want 2", len(songs))
	}
	if songs[0].Filename != "a.wav" || songs[1].Filename != "b.wav" {
		t.Errorf("unexpected order: %+v", songs)
	}
}

func TestNewServiceRejectsBadParams(t *testing.T) {
	p := feature.DefaultParams()
	p.WindowSize = 0
	if _, err := NewService(WithParams(p), WithDBPath(filepath.Join(t.TempDir(), "x.sqlite3"))); err == nil {
		t.Error("expected an error for invalid parameters")
	}
}
