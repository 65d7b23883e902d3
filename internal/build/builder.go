package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"melodex/internal/audio"
	"melodex/internal/feature"
	"melodex/internal/store"
)

var (
	// ErrNoSongsDir indicates the songs directory does not exist.
	ErrNoSongsDir = errors.New("songs directory not found")

	// ErrNoEligibleFiles indicates the directory holds no recognized audio files.
	ErrNoEligibleFiles = errors.New("no eligible audio files found")

	// ErrNothingIndexed indicates every candidate file failed extraction; no
	// database was produced and any previous one is left untouched.
	ErrNothingIndexed = errors.New("no features could be extracted from any song")

	// errNoFeature marks a file whose every segment came back absent.
	errNoFeature = errors.New("no feature extracted (file empty or shorter than one analysis frame)")
)

// eligibleExtensions are matched case-insensitively against file suffixes.
var eligibleExtensions = map[string]struct{}{
	".mp3":  {},
	".wav":  {},
	".flac": {},
	".m4a":  {},
	".ogg":  {},
}

// SkippedFile records one candidate that did not make it into the database.
type SkippedFile struct {
	Filename string
	Reason   error
}

// Report summarizes one build run.
type Report struct {
	Total   int // eligible candidate files
	Indexed []store.SongRecord
	Skipped []SkippedFile
}

func (r *Report) Summary() string {
	return fmt.Sprintf("indexed %d/%d songs (%d skipped)", len(r.Indexed), r.Total, len(r.Skipped))
}

// Storage is the slice of the store the builder needs.
type Storage interface {
	Replace(songs []store.SongRecord, vectors []feature.Vector, params feature.Params) error
}

// Logger is the minimal logging surface the builder uses.
type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
}

// Options tunes a build run.
type Options struct {
	Workers  int       // 0 = auto (NumCPU-1, min 2)
	Progress io.Writer // progress bar destination; io.Discard silences it
}

// Builder turns a directory of songs into a freshly persisted feature
// database. Extraction runs on a worker pool, but results are assembled in
// filename order, so ids and the stored matrix are identical to a sequential
// run.
type Builder struct {
	storage Storage
	dec     audio.Decoder
	params  feature.Params
	opts    Options
	log     Logger
}

func NewBuilder(storage Storage, dec audio.Decoder, params feature.Params, opts Options, log Logger) *Builder {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU() - 1
		if opts.Workers < 2 {
			opts.Workers = 2
		}
	}
	if opts.Progress == nil {
		opts.Progress = os.Stdout
	}
	return &Builder{storage: storage, dec: dec, params: params, opts: opts, log: log}
}

// Build scans songsDir (non-recursive), extracts one aggregate vector per
// eligible file, and replaces the persisted database wholesale. A file that
// fails is logged, reported, and skipped; only a run with zero successes is
// an overall failure.
func (b *Builder) Build(ctx context.Context, songsDir string) (*Report, error) {
	files, err := eligibleFiles(songsDir)
	if err != nil {
		return nil, err
	}

	b.log.Infof("found %d songs in %s, building feature database", len(files), songsDir)

	type extraction struct {
		vec feature.Vector
		ok  bool
		err error
	}
	results := make([]extraction, len(files))

	progress := mpb.New(mpb.WithWidth(64), mpb.WithOutput(b.opts.Progress))
	bar := progress.AddBar(int64(len(files)),
		mpb.PrependDecorators(
			decor.Name("Indexing: "),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(decor.Percentage()),
	)

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < b.opts.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Extractors carry filter-bank state, one per worker.
			ext := feature.NewExtractor(b.dec, b.params)
			for i := range jobs {
				if ctx.Err() != nil {
					results[i] = extraction{err: ctx.Err()}
					bar.Increment()
					continue
				}
				vec, ok, err := ext.ExtractSong(ctx, filepath.Join(songsDir, files[i]))
				results[i] = extraction{vec: vec, ok: ok, err: err}
				bar.Increment()
			}
		}()
	}
	for i := range files {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	progress.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := &Report{Total: len(files)}
	var vectors []feature.Vector
	for i, name := range files {
		r := results[i]
		switch {
		case r.err != nil:
			b.log.Warnf("skipping %s: %v", name, r.err)
			report.Skipped = append(report.Skipped, SkippedFile{Filename: name, Reason: r.err})
		case !r.ok:
			b.log.Warnf("skipping %s: %v", name, errNoFeature)
			report.Skipped = append(report.Skipped, SkippedFile{Filename: name, Reason: errNoFeature})
		default:
			// Ids stay gapless: the next successful file takes the next row.
			report.Indexed = append(report.Indexed, store.SongRecord{ID: len(vectors), Filename: name})
			vectors = append(vectors, r.vec)
		}
	}

	if len(vectors) == 0 {
		return report, ErrNothingIndexed
	}

	if err := b.storage.Replace(report.Indexed, vectors, b.params); err != nil {
		return report, fmt.Errorf("persisting database: %w", err)
	}

	b.log.Infof("%s", report.Summary())
	return report, nil
}

// eligibleFiles lists recognized audio files directly inside dir, sorted
// lexicographically for reproducible id assignment.
func eligibleFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", dir, ErrNoSongsDir)
		}
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if _, ok := eligibleExtensions[ext]; ok {
			files = append(files, e.Name())
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%s: %w", dir, ErrNoEligibleFiles)
	}
	sort.Strings(files)
	return files, nil
}
