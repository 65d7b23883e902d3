// Package melodex recognizes short audio clips against a pre-built library of
// songs. Each song is reduced to a 32-dimensional timbre/harmony vector (MFCC
// and chroma means averaged over sampled segments); recognition standardizes
// the library, scores query segments by cosine similarity, and votes across
// segments for a certain or ambiguous verdict.
package melodex

import (
	"context"
	"errors"
	"fmt"

	"melodex/internal/audio"
	"melodex/internal/build"
	"melodex/internal/feature"
	"melodex/internal/match"
	"melodex/internal/store"
	"melodex/pkg/logger"
)

// melodexService is the default implementation of the Service interface.
type melodexService struct {
	store  *store.Store
	dec    audio.Decoder
	log    Logger
	config *Config
}

func NewService(opts ...Option) (Service, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if err := cfg.Params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid extraction parameters: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}
	if cfg.Decoder == nil {
		cfg.Decoder = &audio.FFmpegDecoder{SampleRate: cfg.Params.SampleRate}
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	return &melodexService{
		store:  st,
		dec:    cfg.Decoder,
		log:    cfg.Logger,
		config: cfg,
	}, nil
}

// BuildDatabase extracts features for every song in songsDir and replaces the
// persisted database wholesale. Per-file failures are skipped and reported;
// the build fails only when nothing at all could be indexed.
func (s *melodexService) BuildDatabase(ctx context.Context, songsDir string) (*build.Report, error) {
	b := build.NewBuilder(s.store, s.dec, s.config.Params, build.Options{
		Workers:  s.config.Workers,
		Progress: s.config.Progress,
	}, s.log)
	return b.Build(ctx, songsDir)
}

// Recognize matches a query clip against the persisted database.
func (s *melodexService) Recognize(ctx context.Context, audioPath string) (*match.Result, error) {
	db, err := s.store.Load(s.config.Params)
	if err != nil {
		if errors.Is(err, store.ErrNoDatabase) {
			return nil, fmt.Errorf("no song database at %s, run a build first: %w", s.config.DBPath, err)
		}
		if errors.Is(err, store.ErrParamsMismatch) {
			return nil, fmt.Errorf("database was built with different extraction parameters, rebuild it: %w", err)
		}
		return nil, fmt.Errorf("loading database: %w", err)
	}

	ext := feature.NewExtractor(s.dec, s.config.Params)
	m, err := match.NewMatcher(db, ext, s.config.Match, s.log)
	if err != nil {
		return nil, err
	}
	return m.Recognize(ctx, audioPath)
}

func (s *melodexService) ListSongs() ([]store.SongRecord, error) {
	return s.store.ListSongs()
}

func (s *melodexService) Close() error {
	return s.store.Close()
}
