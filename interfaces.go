package melodex

import (
	"context"

	"melodex/internal/build"
	"melodex/internal/match"
	"melodex/internal/store"
)

type Service interface {
	BuildDatabase(ctx context.Context, songsDir string) (*build.Report, error)
	Recognize(ctx context.Context, audioPath string) (*match.Result, error)
	ListSongs() ([]store.SongRecord, error)
	Close() error
}

type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
}
