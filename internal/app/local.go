package app

import (
	"fmt"

	"github.com/MrSnakeDoc/hometab/internal/logger"
	"github.com/MrSnakeDoc/hometab/internal/store/local"
	"github.com/MrSnakeDoc/hometab/internal/workspace"
)

// Local is the device-side storage: the SQLite key/value file and the
// cache built on top of it.
type Local struct {
	KV    *local.SQLiteKV
	Cache *local.Cache
}

// OpenLocal opens the device cache at path.
func OpenLocal(path string) (*Local, error) {
	kv, err := local.OpenSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open local cache %s: %w", path, err)
	}
	return &Local{KV: kv, Cache: local.NewCache(kv)}, nil
}

// Workspace builds a working set persisted to the cache and seeded with
// the last cached snapshot. A corrupt snapshot starts empty.
func (l *Local) Workspace(log logger.Logger) *workspace.Workspace {
	ws := workspace.New(l.Cache, log)
	records, settings, ok, err := l.Cache.LoadSnapshot()
	switch {
	case err != nil:
		log.Warn("cached working set unreadable, starting empty", logger.Error(err))
	case ok:
		ws.Load(records, settings)
	}
	return ws
}

func (l *Local) Close() error {
	return l.KV.Close()
}
