package store

import (
	"errors"
	"time"

	"gonum.org/v1/gonum/mat"

	"melodex/internal/feature"
)

// Default location of the feature database file.
const DefaultDBFile = "melodex.sqlite3"

var (
	// ErrNoDatabase indicates no database has been built yet (or the file
	// holds no usable build).
	ErrNoDatabase = errors.New("no feature database found; run a build first")

	// ErrParamsMismatch indicates the persisted database was built with
	// different extraction parameters than the caller is configured with.
	// The database must be rebuilt; comparing across parameter sets would
	// silently miscompute.
	ErrParamsMismatch = errors.New("feature database parameters do not match current configuration")
)

// SongRecord identifies one indexed song. ID is the zero-based row index of
// the song's vector in the feature matrix, assigned once at build time in
// filename-sorted order and never renumbered.
type SongRecord struct {
	ID       int
	Filename string
}

// Database is one loaded feature database: the row-per-song feature matrix
// and the metadata records in matching order, plus the build identity and
// the parameters it was extracted with. Read-only after load.
type Database struct {
	Features *mat.Dense // N x Params.Dim(), row i belongs to Songs[i]
	Songs    []SongRecord
	Params   feature.Params
	BuildID  string
	BuiltAt  time.Time
}

// Size returns the number of indexed songs.
func (d *Database) Size() int {
	return len(d.Songs)
}

// Row returns the feature row for song i without copying.
func (d *Database) Row(i int) []float64 {
	return d.Features.RawRowView(i)
}
