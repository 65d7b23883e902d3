package build

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

type captureStorage struct {
	songs   []store.SongRecord
	vectors []feature.Vector
	params  feature.Params
	calls   int
}

func (c *captureStorage) Replace(songs []store.SongRecord, vectors []feature.Vector, params feature.Params) error {
	c.songs = songs
	c.vectors = vectors
	c.params = params
	c.calls++
	return nil
}

type testLogger struct{ t *testing.T }

func (l testLogger) Infof(format string, args ...any) { l.t.Logf("INFO "+format, args...) }
func (l testLogger) Warnf(format string, args ...any) { l.t.Logf("WARN "+format, args...) }

func testParams() feature.Params {
	p := feature.DefaultParams()
	p.SampleRate = 8000
	p.SegmentDuration = 1
	p.IndexSegmentCount = 2
	return p
}

func writeTone(t *testing.T, dir, name string, seconds float64, sampleRate int) {
	t.Helper()
	n := int(seconds * float64(sampleRate))
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = 0.5 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate))
	}
	if err := audio.WriteWAV(filepath.Join(dir, name), samples, sampleRate); err != nil {
		t.Fatalf("writing fixture %s: %v", name, err)
	}
}

func newTestBuilder(t *testing.T, storage Storage, params feature.Params) *Builder {
	t.Helper()
	dec := audio.NewWAVDecoder(params.SampleRate)
	return NewBuilder(storage, dec, params, Options{Workers: 2, Progress: io.Discard}, testLogger{t})
}

func TestBuildIndexesInFilenameOrder(t *testing.T) {
	params := testParams()
	dir := t.TempDir()
	// Written out of order on purpose.
	writeTone(t, dir, "charlie.wav", 2.5, params.SampleRate)
	writeTone(t, dir, "alpha.wav", 2.5, params.SampleRate)
	writeTone(t, dir, "bravo.wav", 2.5, params.SampleRate)

	storage := &captureStorage{}
	report, err := newTestBuilder(t, storage, params).Build(context.Background(), dir)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if report.Total != 3 || len(report.Indexed) != 3 || len(report.Skipped) != 0 {
		t.Fatalf("unexpected report: %s", report.Summary())
	}
	want := []string{"alpha.wav", "bravo.wav", "charlie.wav"}
	for i, song := range storage.songs {
		if song.ID != i {
			t.Errorf("song %d has id %d", i, song.ID)
		}
		if song.Filename != want[i] {
			t.Errorf("position %d is %q, want %q", i, song.Filename, want[i])
		}
		if len(storage.vectors[i]) != params.Dim() {
			t.Errorf("vector %d has length %d, want %d", i, len(storage.vectors[i]), params.Dim())
		}
	}
	if storage.params != params {
		t.Error("storage should receive the extraction parameters")
	}
}

func TestBuildSkipsBadFilesWithoutGaps(t *testing.T) {
	params := testParams()
	dir := t.TempDir()
	writeTone(t, dir, "a.wav", 2.5, params.SampleRate)
	writeTone(t, dir, "b.wav", 0.01, params.SampleRate) // too short for one frame
	writeTone(t, dir, "c.wav", 2.5, params.SampleRate)

	storage := &captureStorage{}
	report, err := newTestBuilder(t, storage, params).Build(context.Background(), dir)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if len(report.Indexed) != 2 || len(report.Skipped) != 1 {
		t.Fatalf("unexpected report: %s", report.Summary())
	}
	if report.Skipped[0].Filename != "b.wav" {
		t.Errorf("skipped %q, want b.wav", report.Skipped[0].Filename)
	}
	// The survivors close ranks: c.wav takes id 1.
	if storage.songs[0].Filename != "a.wav" || storage.songs[0].ID != 0 {
		t.Errorf("unexpected first song: %+v", storage.songs[0])
	}
	if storage.songs[1].Filename != "c.wav" || storage.songs[1].ID != 1 {
		t.Errorf("unexpected second song: %+v", storage.songs[1])
	}
}

func TestBuildIsReproducible(t *testing.T) {
	params := testParams()
	dir := t.TempDir()
	writeTone(t, dir, "alpha.wav", 2.5, params.SampleRate)
	writeTone(t, dir, "bravo.wav", 2.5, params.SampleRate)
	writeTone(t, dir, "charlie.wav", 2.5, params.SampleRate)

	// Two full builds from the unchanged directory, pooled extraction both
	// times, must persist identical records and bit-identical vectors.
	dec := audio.NewWAVDecoder(params.SampleRate)
	first := &captureStorage{}
	b1 := NewBuilder(first, dec, params, Options{Workers: 4, Progress: io.Discard}, testLogger{t})
	if _, err := b1.Build(context.Background(), dir); err != nil {
		t.Fatalf("first Build failed: %v", err)
	}

	second := &captureStorage{}
	b2 := NewBuilder(second, dec, params, Options{Workers: 4, Progress: io.Discard}, testLogger{t})
	if _, err := b2.Build(context.Background(), dir); err != nil {
		t.Fatalf("second Build failed: %v", err)
	}

	if len(first.songs) != len(second.songs) {
		t.Fatalf("song counts differ: %d vs %d", len(first.songs), len(second.songs))
	}
	for i := range first.songs {
		if first.songs[i] != second.songs[i] {
			t.Errorf("record %d differs: %+v vs %+v", i, first.songs[i], second.songs[i])
		}
		if len(first.vectors[i]) != len(second.vectors[i]) {
			t.Fatalf("vector %d lengths differ", i)
		}
		for j := range first.vectors[i] {
			if first.vectors[i][j] != second.vectors[i][j] {
				t.Errorf("vector[%d][%d] differs: %v vs %v", i, j, first.vectors[i][j], second.vectors[i][j])
			}
		}
	}
}

func TestBuildIgnoresNonAudioFiles(t *testing.T) {
	params := testParams()
	dir := t.TempDir()
	writeTone(t, dir, "song.wav", 2.5, params.SampleRate)
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "subdir"), 0o755); err != nil {
		t.Fatal(err)
	}

	storage := &captureStorage{}
	report, err := newTestBuilder(t, storage, params).Build(context.Background(), dir)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if report.Total != 1 || len(report.Indexed) != 1 {
		t.Errorf("unexpected report: %s", report.Summary())
	}
}

func TestBuildMissingDir(t *testing.T) {
	storage := &captureStorage{}
	_, err := newTestBuilder(t, storage, testParams()).Build(context.Background(), filepath.Join(t.TempDir(), "nope"))
	if !errors.Is(err, ErrNoSongsDir) {
		t.Errorf("expected ErrNoSongsDir, got %v", err)
	}
	if storage.calls != 0 {
		t.Error("storage must not be touched on a failed scan")
	}
}

func TestBuildEmptyDir(t *testing.T) {
	_, err := newTestBuilder(t, &captureStorage{}, testParams()).Build(context.Background(), t.TempDir())
	if !errors.Is(err, ErrNoEligibleFiles) {
		t.Errorf("expected ErrNoEligibleFiles, got %v", err)
	}
}

func TestBuildNothingIndexed(t *testing.T) {
	params := testParams()
	dir := t.TempDir()
	writeTone(t, dir, "tiny.wav", 0.01, params.SampleRate)

	storage := &captureStorage{}
	report, err := newTestBuilder(t, storage, params).Build(context.Background(), dir)
	if !errors.Is(err, ErrNothingIndexed) {
		t.Fatalf("expected ErrNothingIndexed, got %v", err)
	}
	if report == nil || len(report.Skipped) != 1 {
		t.Error("the report should still describe what was skipped")
	}
	if storage.calls != 0 {
		t.Error("an all-failed build must leave storage untouched")
	}
}

func TestBuildCanceledContext(t *testing.T) {
	params := testParams()
	dir := t.TempDir()
	writeTone(t, dir, "song.wav", 2.5, params.SampleRate)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	storage := &captureStorage{}
	_, err := newTestBuilder(t, storage, params).Build(ctx, dir)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if storage.calls != 0 {
		t.Error("a canceled build must leave storage untouched")
	}
}
