package scheduler

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/MrSnakeDoc/hometab/internal/domain"
	"github.com/MrSnakeDoc/hometab/internal/logger"
	"github.com/MrSnakeDoc/hometab/internal/sources/homepage"
)

// Importer adds records whose URL is not known yet.
type Importer interface {
	Import(records []domain.BookmarkRecord) (int, error)
}

// HomepageReloader imports gethomepage config files into the working set,
// once at start, on manual trigger and, when watching, whenever the files
// change on disk.
type HomepageReloader struct {
	source        homepage.Source
	importer      Importer
	logger        logger.Logger
	watch         bool
	settle        time.Duration
	stopCh        chan struct{}
	stopOnce      sync.Once
	manualTrigger chan struct{}
	wg            sync.WaitGroup
}

// NewHomepageReloader creates a new homepage reloader. settle is how long
// file events must be quiet before a re-import runs.
func NewHomepageReloader(
	source homepage.Source,
	importer Importer,
	log logger.Logger,
	watch bool,
	settle time.Duration,
	manualTrigger chan struct{},
) *HomepageReloader {
	if settle <= 0 {
		settle = 500 * time.Millisecond
	}
	return &HomepageReloader{
		source:        source,
		importer:      importer,
		logger:        log,
		watch:         watch,
		settle:        settle,
		stopCh:        make(chan struct{}),
		manualTrigger: manualTrigger,
	}
}

// Start runs the initial import and the reload loop.
func (hr *HomepageReloader) Start(ctx context.Context) error {
	// Load immediately on start
	if _, err := hr.Reload(); err != nil {
		return fmt.Errorf("initial homepage import failed: %w", err)
	}

	var events <-chan fsnotify.Event
	var errs <-chan error
	var watcher *fsnotify.Watcher
	if hr.watch {
		w, err := hr.newWatcher()
		if err != nil {
			return err
		}
		watcher = w
		events, errs = w.Events, w.Errors
	}

	hr.wg.Add(1)
	go func() {
		defer hr.wg.Done()
		if watcher != nil {
			defer func() { _ = watcher.Close() }()
		}

		var settle <-chan time.Time
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					events = nil
					continue
				}
				if hr.relevant(ev) {
					settle = time.After(hr.settle)
				}
			case err, ok := <-errs:
				if !ok {
					errs = nil
					continue
				}
				hr.logger.Warn("homepage watcher error", logger.Error(err))
			case <-settle:
				settle = nil
				hr.logger.Info("homepage config changed, re-importing")
				hr.reloadLogged()
			case <-hr.manualTrigger:
				hr.logger.Info("manual homepage import triggered")
				hr.reloadLogged()
			case <-hr.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the reloader and waits for its loop to exit.
func (hr *HomepageReloader) Stop() {
	hr.stopOnce.Do(func() { close(hr.stopCh) })
	hr.wg.Wait()
}

// Reload imports the configured files and returns how many records were
// added.
func (hr *HomepageReloader) Reload() (int, error) {
	records, err := hr.source.Load()
	if err != nil {
		return 0, fmt.Errorf("failed to load homepage config: %w", err)
	}
	added, err := hr.importer.Import(records)
	if err != nil {
		return 0, fmt.Errorf("failed to import homepage records: %w", err)
	}
	hr.logger.Info("imported homepage records",
		logger.Int("found", len(records)),
		logger.Int("added", added))
	return added, nil
}

func (hr *HomepageReloader) reloadLogged() {
	if _, err := hr.Reload(); err != nil {
		hr.logger.Error("failed to import homepage config", logger.Error(err))
	}
}

// newWatcher watches the parent directories: editors and config
// management replace files by rename, which drops a watch on the file.
func (hr *HomepageReloader) newWatcher() (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	dirs := make(map[string]bool)
	for _, p := range hr.source.Paths() {
		dir := filepath.Dir(p)
		if dirs[dir] {
			continue
		}
		dirs[dir] = true
		if err := w.Add(dir); err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}
	return w, nil
}

func (hr *HomepageReloader) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
		return false
	}
	name := filepath.Clean(ev.Name)
	for _, p := range hr.source.Paths() {
		if filepath.Clean(p) == name {
			return true
		}
	}
	return false
}
