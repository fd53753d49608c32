package logger

import (
	"time"

	wal "github.com/aarthikrao/wal"
	"go.uber.org/zap"

	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/segment"
)

// WALOptions size the write-ahead log of one index shard.
type WALOptions struct {
	MaxLogSize        int64
	MaxSegments       int
	MaxWaitBeforeSync time.Duration
	SyncMaxBytes      int64
}

// DefaultWALOptions rotates at 40 MB and syncs at least once a second.
var DefaultWALOptions = WALOptions{
	MaxLogSize:        40 * 1024 * 1024,
	MaxSegments:       2,
	MaxWaitBeforeSync: 1 * time.Second,
	SyncMaxBytes:      1000,
}

// InitWAL opens the write-ahead log in dir.
func InitWAL(dir string, o WALOptions, log *zap.Logger) (*wal.WriteAheadLog, error) {
	return wal.NewWriteAheadLog(&wal.WALOptions{
		LogDir:            dir,
		MaxLogSize:        o.MaxLogSize,
		MaxSegments:       o.MaxSegments,
		Log:               log,
		MaxWaitBeforeSync: o.MaxWaitBeforeSync,
		SyncMaxBytes:      o.SyncMaxBytes,
	})
}

// WALOpener returns a function opening one log per shard directory, for use
// as indexer.Config.OpenLog. Opened logs are passed to track so the caller
// can close them on shutdown.
func WALOpener(o WALOptions, log *zap.Logger, track func(*wal.WriteAheadLog)) func(dir string) (segment.Log, error) {
	return func(dir string) (segment.Log, error) {
		w, err := InitWAL(dir, o, log.With(zap.String("wal", dir)))
		if err != nil {
			return nil, err
		}
		if track != nil {
			track(w)
		}
		return w, nil
	}
}
