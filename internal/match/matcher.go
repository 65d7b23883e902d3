package match

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"melodex/internal/feature"
	"melodex/internal/store"
)

var (
	// ErrNoFeatures indicates not a single query segment produced a usable
	// feature vector; the clip cannot be recognized.
	ErrNoFeatures = errors.New("no features could be extracted from the query clip")

	// ErrDimensionMismatch indicates the query vectors and the loaded
	// database disagree on feature dimensionality. The database is stale.
	ErrDimensionMismatch = errors.New("query feature dimension does not match database")
)

// Verdict is the two-state outcome of a recognition run.
type Verdict string

const (
	// VerdictCertain: the top candidate clears both the confidence and the
	// margin thresholds.
	VerdictCertain Verdict = "certain"
	// VerdictAmbiguous: no single answer is asserted; ranked candidates are
	// reported instead.
	VerdictAmbiguous Verdict = "ambiguous"
)

// Candidate pairs one indexed song with its averaged similarity score.
type Candidate struct {
	Song  store.SongRecord
	Score float64
}

// Result is the outcome of recognizing one clip.
type Result struct {
	Verdict      Verdict
	Candidates   []Candidate // descending score, at most TopK entries
	Margin       float64     // best minus runner-up; meaningful only with >= 2 songs
	SegmentsUsed int         // query segments that produced a feature
}

// Best returns the top-ranked candidate.
func (r *Result) Best() Candidate { return r.Candidates[0] }

// Config holds the decision thresholds.
type Config struct {
	ConfidenceThreshold float64 // minimum best score for a certain verdict (inclusive)
	MarginThreshold     float64 // minimum gap to the runner-up (inclusive)
	TopK                int     // candidates listed on an ambiguous verdict
}

func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: 0.75,
		MarginThreshold:     0.03,
		TopK:                3,
	}
}

// SegmentExtractor is the slice of the feature extractor the matcher needs.
type SegmentExtractor interface {
	ExtractWindow(ctx context.Context, path string, w feature.Window) (feature.Vector, bool, error)
	Params() feature.Params
}

// Logger is the minimal logging surface the matcher uses.
type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Debugf(format string, args ...any)
}

// Matcher scores query clips against one loaded feature database. The scaler
// is fitted on the database matrix at construction and reused for every
// query; the database is never mutated.
type Matcher struct {
	db     *store.Database
	rows   *mat.Dense // standardized database matrix
	scaler *Scaler
	ext    SegmentExtractor
	cfg    Config
	log    Logger
}

func NewMatcher(db *store.Database, ext SegmentExtractor, cfg Config, log Logger) (*Matcher, error) {
	if db.Size() == 0 {
		return nil, store.ErrNoDatabase
	}
	if cfg.TopK < 1 {
		cfg.TopK = DefaultConfig().TopK
	}

	scaler := FitScaler(db.Features)
	rows, err := scaler.TransformMatrix(db.Features)
	if err != nil {
		return nil, fmt.Errorf("standardizing database: %w", err)
	}

	return &Matcher{
		db:     db,
		rows:   rows,
		scaler: scaler,
		ext:    ext,
		cfg:    cfg,
		log:    log,
	}, nil
}

// Recognize samples the query clip, scores every segment against every
// database row, averages the per-segment similarity vectors, and applies the
// confidence/margin decision rule.
func (m *Matcher) Recognize(ctx context.Context, path string) (*Result, error) {
	params := m.ext.Params()
	sums := make([]float64, m.db.Size())
	used := 0

	for _, w := range feature.Windows(params.SegmentDuration, params.QuerySegmentCount) {
		vec, ok, err := m.ext.ExtractWindow(ctx, path, w)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			m.log.Warnf("segment at %.0fs failed, skipping: %v", w.Offset, err)
			continue
		}
		if !ok {
			m.log.Debugf("segment at %.0fs yielded no audio, skipping", w.Offset)
			continue
		}
		if len(vec) != m.scaler.Dim() {
			return nil, fmt.Errorf("segment vector has %d values, database has %d columns: %w",
				len(vec), m.scaler.Dim(), ErrDimensionMismatch)
		}

		q := make([]float64, len(vec))
		for i, v := range vec {
			q[i] = float64(v)
		}
		if err := m.scaler.Transform(q); err != nil {
			return nil, err
		}

		qNorm := floats.Norm(q, 2)
		for i := 0; i < m.db.Size(); i++ {
			sums[i] += cosine(q, qNorm, m.rows.RawRowView(i))
		}
		used++
	}

	if used == 0 {
		return nil, ErrNoFeatures
	}

	candidates := make([]Candidate, m.db.Size())
	for i := range candidates {
		candidates[i] = Candidate{
			Song:  m.db.Songs[i],
			Score: sums[i] / float64(used),
		}
	}
	// Descending score; equal scores break ties by id for determinism.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Song.ID < candidates[j].Song.ID
	})

	res := &Result{
		Verdict:      VerdictAmbiguous,
		SegmentsUsed: used,
	}

	if len(candidates) >= 2 {
		res.Margin = candidates[0].Score - candidates[1].Score
		if candidates[0].Score >= m.cfg.ConfidenceThreshold && res.Margin >= m.cfg.MarginThreshold {
			res.Verdict = VerdictCertain
		}
	}
	// A single-song database has no runner-up, so the margin is undefined
	// and the verdict stays ambiguous regardless of the score.

	k := m.cfg.TopK
	if res.Verdict == VerdictCertain {
		k = 1
	}
	if k > len(candidates) {
		k = len(candidates)
	}
	res.Candidates = candidates[:k]
	return res, nil
}

// cosine computes cosine similarity between the standardized query (with its
// precomputed norm) and one database row. Zero-magnitude vectors score 0.
func cosine(q []float64, qNorm float64, row []float64) float64 {
	rNorm := floats.Norm(row, 2)
	if qNorm == 0 || rNorm == 0 {
		return 0
	}
	return floats.Dot(q, row) / (qNorm * rNorm)
}
