// Package workspace holds the live working set the UI edits: the ordered
// bookmark collection and the settings document.
package workspace

import (
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/MrSnakeDoc/hometab/internal/domain"
	"github.com/MrSnakeDoc/hometab/internal/logger"
)

// errNoop aborts a mutation that changed nothing.
var errNoop = errors.New("no change")

// Persister caches the working set on the device.
type Persister interface {
	SaveSnapshot(records []domain.BookmarkRecord, settings domain.Settings) error
}

// ChangeKind names a mutation.
type ChangeKind string

const (
	ChangeAdded     ChangeKind = "added"
	ChangeUpdated   ChangeKind = "updated"
	ChangeDeleted   ChangeKind = "deleted"
	ChangeVisited   ChangeKind = "visited"
	ChangeReordered ChangeKind = "reordered"
	ChangeSettings  ChangeKind = "settings"
	ChangeImported  ChangeKind = "imported"
	ChangeReplaced  ChangeKind = "replaced"
)

// Change describes one applied mutation.
type Change struct {
	Kind ChangeKind `json:"kind"`
	IDs  []string   `json:"ids,omitempty"`
}

// RecordPatch is a partial record update. Nil fields are left unchanged.
type RecordPatch struct {
	Name    *string   `json:"name,omitempty"`
	URL     *string   `json:"url,omitempty"`
	Favicon *string   `json:"favicon,omitempty"`
	Tags    *[]string `json:"tags,omitempty"`
	Note    *string   `json:"note,omitempty"`
}

// Workspace owns the working set. Every read returns copies and every
// mutation notifies observers after the lock is released.
type Workspace struct {
	mu         sync.RWMutex
	records    []domain.BookmarkRecord // display order
	settings   domain.Settings
	lastChange time.Time

	persist   Persister
	logger    logger.Logger
	now       func() time.Time
	obsMu     sync.RWMutex
	observers []func(Change)
}

// New creates an empty workspace. persist may be nil.
func New(persist Persister, log logger.Logger) *Workspace {
	return &Workspace{
		persist: persist,
		logger:  log,
		now:     time.Now,
	}
}

// OnChange registers an observer called after every mutation.
func (w *Workspace) OnChange(fn func(Change)) {
	w.obsMu.Lock()
	defer w.obsMu.Unlock()
	w.observers = append(w.observers, fn)
}

// Snapshot returns a copy of the working set.
func (w *Workspace) Snapshot() ([]domain.BookmarkRecord, domain.Settings) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return domain.CloneRecords(w.records), w.settings.Clone()
}

// Records returns a copy of the records in display order.
func (w *Workspace) Records() []domain.BookmarkRecord {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return domain.CloneRecords(w.records)
}

// Settings returns a copy of the settings document.
func (w *Workspace) Settings() domain.Settings {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.settings.Clone()
}

// Get retrieves a record by ID
func (w *Workspace) Get(id string) (domain.BookmarkRecord, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if i := w.indexLocked(id); i >= 0 {
		return w.records[i].Clone(), true
	}
	return domain.BookmarkRecord{}, false
}

// Count returns the number of records
func (w *Workspace) Count() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.records)
}

// LastChange returns the time of the last mutation.
func (w *Workspace) LastChange() time.Time {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastChange
}

// Load installs a cached working set at startup without notifying
// observers or persisting.
func (w *Workspace) Load(records []domain.BookmarkRecord, settings domain.Settings) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.records = dedupeIDs(records)
	w.settings = settings.Normalize()
}

// Replace swaps in a whole working set, e.g. the bootstrap merge result.
func (w *Workspace) Replace(records []domain.BookmarkRecord, settings domain.Settings) {
	_ = w.apply(ChangeReplaced, func() ([]string, error) {
		w.records = dedupeIDs(records)
		w.settings = settings.Normalize()
		return nil, nil
	})
}

// Add creates a record with a fresh id and appends it.
func (w *Workspace) Add(name, url string, tags []string, note string) (domain.BookmarkRecord, error) {
	return w.Create(domain.BookmarkRecord{Name: name, URL: url, Tags: tags, Note: note})
}

// Create appends a record built from draft. The draft's id and visit
// count are ignored.
func (w *Workspace) Create(draft domain.BookmarkRecord) (domain.BookmarkRecord, error) {
	rec := domain.NewRecord(draft.Name, draft.URL, draft.Tags, draft.Note)
	rec.Favicon = draft.Favicon
	if !rec.Valid() {
		return domain.BookmarkRecord{}, domain.ErrInvalidRecord
	}
	err := w.apply(ChangeAdded, func() ([]string, error) {
		w.records = append(w.records, rec.Clone())
		return []string{rec.ID}, nil
	})
	return rec, err
}

// Update applies a patch to an existing record.
func (w *Workspace) Update(id string, patch RecordPatch) (domain.BookmarkRecord, error) {
	var out domain.BookmarkRecord
	err := w.apply(ChangeUpdated, func() ([]string, error) {
		i := w.indexLocked(id)
		if i < 0 {
			return nil, domain.ErrRecordNotFound
		}
		rec := w.records[i].Clone()
		if patch.Name != nil {
			rec.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.URL != nil {
			rec.URL = strings.TrimSpace(*patch.URL)
		}
		if patch.Favicon != nil {
			rec.Favicon = *patch.Favicon
		}
		if patch.Tags != nil {
			rec.Tags = domain.NormalizeTags(*patch.Tags)
		}
		if patch.Note != nil {
			rec.Note = *patch.Note
		}
		if !rec.Valid() {
			return nil, domain.ErrInvalidRecord
		}
		w.records[i] = rec
		out = rec.Clone()
		return []string{id}, nil
	})
	return out, err
}

// Delete removes a record. Its id is never reused.
func (w *Workspace) Delete(id string) error {
	return w.apply(ChangeDeleted, func() ([]string, error) {
		i := w.indexLocked(id)
		if i < 0 {
			return nil, domain.ErrRecordNotFound
		}
		w.records = append(w.records[:i], w.records[i+1:]...)
		return []string{id}, nil
	})
}

// Visit increments the record's visit counter.
func (w *Workspace) Visit(id string) (domain.BookmarkRecord, error) {
	var out domain.BookmarkRecord
	err := w.apply(ChangeVisited, func() ([]string, error) {
		i := w.indexLocked(id)
		if i < 0 {
			return nil, domain.ErrRecordNotFound
		}
		w.records[i].VisitCount++
		out = w.records[i].Clone()
		return []string{id}, nil
	})
	return out, err
}

// Reorder moves the listed ids to the front in the given order. Unknown
// ids are rejected; unlisted records keep their relative order after them.
func (w *Workspace) Reorder(ids []string) error {
	return w.apply(ChangeReordered, func() ([]string, error) {
		picked := make(map[string]bool, len(ids))
		out := make([]domain.BookmarkRecord, 0, len(w.records))
		for _, id := range ids {
			i := w.indexLocked(id)
			if i < 0 {
				return nil, domain.ErrRecordNotFound
			}
			if picked[id] {
				continue
			}
			picked[id] = true
			out = append(out, w.records[i])
		}
		for _, r := range w.records {
			if !picked[r.ID] {
				out = append(out, r)
			}
		}
		w.records = out
		return ids, nil
	})
}

// UpdateSettings overlays the set fields of patch onto the settings.
func (w *Workspace) UpdateSettings(patch domain.Settings) domain.Settings {
	var out domain.Settings
	_ = w.apply(ChangeSettings, func() ([]string, error) {
		w.settings = domain.MergeSettings(w.settings, patch).Normalize()
		out = w.settings.Clone()
		return nil, nil
	})
	return out
}

// Import appends records whose normalised URL is not present yet and
// returns how many were added. Imported records get fresh ids.
func (w *Workspace) Import(records []domain.BookmarkRecord) (int, error) {
	added := 0
	err := w.apply(ChangeImported, func() ([]string, error) {
		var ids []string
		known := make(map[string]bool, len(w.records))
		for _, r := range w.records {
			known[domain.NormalizeURL(r.URL)] = true
		}
		for _, r := range records {
			key := domain.NormalizeURL(r.URL)
			if key == "" || known[key] {
				continue
			}
			rec := domain.NewRecord(r.Name, r.URL, r.Tags, r.Note)
			rec.Favicon = r.Favicon
			if !rec.Valid() {
				continue
			}
			known[key] = true
			w.records = append(w.records, rec)
			ids = append(ids, rec.ID)
		}
		if len(ids) == 0 {
			return nil, errNoop
		}
		added = len(ids)
		return ids, nil
	})
	if errors.Is(err, errNoop) {
		return 0, nil
	}
	return added, err
}

// Search ranks records against a launcher query.
func (w *Workspace) Search(query string) []domain.RecordCandidate {
	return domain.RankRecords(query, w.Records())
}

// MostVisited returns the records ordered by visit count.
func (w *Workspace) MostVisited() []domain.BookmarkRecord {
	return domain.MostVisited(w.Records())
}

// apply runs mutate under the write lock, then persists and notifies.
// mutate returns the ids it touched.
func (w *Workspace) apply(kind ChangeKind, mutate func() ([]string, error)) error {
	w.mu.Lock()
	ids, err := mutate()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.lastChange = w.now()
	records := domain.CloneRecords(w.records)
	settings := w.settings.Clone()
	w.mu.Unlock()

	change := Change{Kind: kind, IDs: ids}

	if w.persist != nil {
		if err := w.persist.SaveSnapshot(records, settings); err != nil {
			w.logger.Warn("failed to persist local snapshot",
				logger.String("change", string(change.Kind)),
				logger.Error(err))
		}
	}

	w.obsMu.RLock()
	observers := slices.Clone(w.observers)
	w.obsMu.RUnlock()
	for _, fn := range observers {
		fn(change)
	}
	return nil
}

func (w *Workspace) indexLocked(id string) int {
	for i := range w.records {
		if w.records[i].ID == id {
			return i
		}
	}
	return -1
}

// dedupeIDs copies records keeping the first occurrence of each id.
func dedupeIDs(records []domain.BookmarkRecord) []domain.BookmarkRecord {
	seen := make(map[string]bool, len(records))
	out := make([]domain.BookmarkRecord, 0, len(records))
	for _, r := range records {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		out = append(out, r.Clone())
	}
	return out
}
