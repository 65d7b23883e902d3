package store

import (
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"melodex/internal/feature"
)

type songRow struct {
	ID       int    `gorm:"primaryKey;autoIncrement:false"`
	Filename string `gorm:"not null"`
	Feature  []byte `gorm:"not null"` // Dim() little-endian float32 values
}

func (songRow) TableName() string { return "songs" }

// buildRow is the single-row table versioning the database: one build UUID
// plus the full extraction parameter set. Matrix and metadata are only valid
// together under these parameters.
type buildRow struct {
	ID              int `gorm:"primaryKey"`
	BuildID         string
	CreatedAt       time.Time
	SampleRate      int
	NumMFCC         int
	NumChroma       int
	NumMelFilters   int
	WindowSize      int
	HopSize         int
	SegmentDuration float64
	SegmentCount    int
	Dim             int
}

func (buildRow) TableName() string { return "build_info" }

// Store persists the feature database in a single SQLite file.
type Store struct {
	orm *gorm.DB
	db  *sql.DB
}

func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	orm, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	db, err := orm.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}

	if err := orm.AutoMigrate(&songRow{}, &buildRow{}); err != nil {
		db.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &Store{orm: orm, db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Replace atomically swaps in a freshly built database. Any previous build is
// discarded wholesale; there is no incremental update path.
func (s *Store) Replace(songs []SongRecord, vectors []feature.Vector, params feature.Params) error {
	if len(songs) != len(vectors) {
		return fmt.Errorf("record/vector count mismatch: %d vs %d", len(songs), len(vectors))
	}
	dim := params.Dim()

	rows := make([]songRow, len(songs))
	for i, rec := range songs {
		if rec.ID != i {
			return fmt.Errorf("song %q has id %d, want row index %d", rec.Filename, rec.ID, i)
		}
		if len(vectors[i]) != dim {
			return fmt.Errorf("song %q vector has %d values, want %d", rec.Filename, len(vectors[i]), dim)
		}
		rows[i] = songRow{ID: rec.ID, Filename: rec.Filename, Feature: encodeVector(vectors[i])}
	}

	info := buildRow{
		ID:              1,
		BuildID:         uuid.NewString(),
		CreatedAt:       time.Now().UTC(),
		SampleRate:      params.SampleRate,
		NumMFCC:         params.NumMFCC,
		NumChroma:       params.NumChroma,
		NumMelFilters:   params.NumMelFilters,
		WindowSize:      params.WindowSize,
		HopSize:         params.HopSize,
		SegmentDuration: params.SegmentDuration,
		SegmentCount:    params.IndexSegmentCount,
		Dim:             dim,
	}

	return s.orm.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&songRow{}).Error; err != nil {
			return fmt.Errorf("clearing songs: %w", err)
		}
		if err := tx.Where("1 = 1").Delete(&buildRow{}).Error; err != nil {
			return fmt.Errorf("clearing build info: %w", err)
		}
		if err := tx.Create(&info).Error; err != nil {
			return fmt.Errorf("writing build info: %w", err)
		}
		if len(rows) > 0 {
			if err := tx.CreateInBatches(rows, 500).Error; err != nil {
				return fmt.Errorf("inserting songs: %w", err)
			}
		}
		return nil
	})
}

// Load reads the whole database into memory and validates it against the
// caller's extraction parameters. A parameter or dimension mismatch is fatal:
// scores computed against a stale build would be garbage.
func (s *Store) Load(params feature.Params) (*Database, error) {
	var info buildRow
	if err := s.orm.First(&info, 1).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoDatabase
		}
		return nil, fmt.Errorf("reading build info: %w", err)
	}

	if err := checkParams(info, params); err != nil {
		return nil, err
	}

	var rows []songRow
	if err := s.orm.Order("id asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("reading songs: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("build %s holds zero songs: %w", info.BuildID, ErrNoDatabase)
	}

	dim := params.Dim()
	features := mat.NewDense(len(rows), dim, nil)
	songs := make([]SongRecord, len(rows))
	for i, row := range rows {
		if row.ID != i {
			return nil, fmt.Errorf("song ids not contiguous: row %d has id %d", i, row.ID)
		}
		if len(row.Feature) != 4*dim {
			return nil, fmt.Errorf("song %q: feature blob is %d bytes, want %d: %w",
				row.Filename, len(row.Feature), 4*dim, ErrParamsMismatch)
		}
		for j := 0; j < dim; j++ {
			bits := binary.LittleEndian.Uint32(row.Feature[4*j:])
			features.Set(i, j, float64(math.Float32frombits(bits)))
		}
		songs[i] = SongRecord{ID: row.ID, Filename: row.Filename}
	}

	return &Database{
		Features: features,
		Songs:    songs,
		Params:   params,
		BuildID:  info.BuildID,
		BuiltAt:  info.CreatedAt,
	}, nil
}

// ListSongs returns the metadata records in id order.
func (s *Store) ListSongs() ([]SongRecord, error) {
	var rows []songRow
	if err := s.orm.Select("id", "filename").Order("id asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing songs: %w", err)
	}
	out := make([]SongRecord, len(rows))
	for i, r := range rows {
		out[i] = SongRecord{ID: r.ID, Filename: r.Filename}
	}
	return out, nil
}

func checkParams(info buildRow, params feature.Params) error {
	switch {
	case info.Dim != params.Dim():
		return fmt.Errorf("dimension %d vs %d: %w", info.Dim, params.Dim(), ErrParamsMismatch)
	case info.SampleRate != params.SampleRate:
		return fmt.Errorf("sample rate %d vs %d: %w", info.SampleRate, params.SampleRate, ErrParamsMismatch)
	case info.NumMFCC != params.NumMFCC || info.NumChroma != params.NumChroma:
		return fmt.Errorf("feature layout %d+%d vs %d+%d: %w",
			info.NumMFCC, info.NumChroma, params.NumMFCC, params.NumChroma, ErrParamsMismatch)
	case info.NumMelFilters != params.NumMelFilters:
		return fmt.Errorf("mel filters %d vs %d: %w", info.NumMelFilters, params.NumMelFilters, ErrParamsMismatch)
	case info.WindowSize != params.WindowSize || info.HopSize != params.HopSize:
		return fmt.Errorf("stft frames %d/%d vs %d/%d: %w",
			info.WindowSize, info.HopSize, params.WindowSize, params.HopSize, ErrParamsMismatch)
	case info.SegmentDuration != params.SegmentDuration:
		return fmt.Errorf("segment duration %v vs %v: %w", info.SegmentDuration, params.SegmentDuration, ErrParamsMismatch)
	case info.SegmentCount != params.IndexSegmentCount:
		return fmt.Errorf("index segment count %d vs %d: %w", info.SegmentCount, params.IndexSegmentCount, ErrParamsMismatch)
	}
	return nil
}

func encodeVector(v feature.Vector) []byte {
	out := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(f))
	}
	return out
}
