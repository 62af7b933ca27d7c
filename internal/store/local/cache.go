package local

import (
	"encoding/json"
	"fmt"

	"github.com/MrSnakeDoc/hometab/internal/domain"
)

const (
	// KeySnapshot holds the device's last known working set. It is not
	// scoped to a user: like browser storage it belongs to the device.
	KeySnapshot = "hometab:snapshot"
	// KeyPrefixFingerprint is the prefix for last-synced fingerprints.
	KeyPrefixFingerprint = "hometab:fingerprint:"
)

// FingerprintKey returns the key holding a user's last synced fingerprint.
func FingerprintKey(userID string) string {
	return KeyPrefixFingerprint + userID
}

// snapshot is the persisted form of the working set.
type snapshot struct {
	Records  []domain.BookmarkRecord `json:"records"`
	Settings domain.Settings         `json:"settings"`
}

// Cache reads and writes the local snapshot and fingerprints on a KV.
type Cache struct {
	kv KV
}

// NewCache wraps kv.
func NewCache(kv KV) *Cache {
	return &Cache{kv: kv}
}

// LoadSnapshot returns the cached working set. ok is false when nothing
// was cached yet.
func (c *Cache) LoadSnapshot() (records []domain.BookmarkRecord, settings domain.Settings, ok bool, err error) {
	raw, found, err := c.kv.GetItem(KeySnapshot)
	if err != nil || !found {
		return nil, domain.Settings{}, false, err
	}
	var snap snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, domain.Settings{}, false, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return snap.Records, snap.Settings, true, nil
}

// SaveSnapshot caches the working set.
func (c *Cache) SaveSnapshot(records []domain.BookmarkRecord, settings domain.Settings) error {
	data, err := json.Marshal(snapshot{Records: records, Settings: settings})
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return c.kv.SetItem(KeySnapshot, string(data))
}

// LoadFingerprint returns the last synced fingerprint for a user. It
// outlives sign-out so offline tooling can compare against it.
func (c *Cache) LoadFingerprint(userID string) (string, bool, error) {
	return c.kv.GetItem(FingerprintKey(userID))
}

// SaveFingerprint records the last synced fingerprint for a user.
func (c *Cache) SaveFingerprint(userID, fingerprint string) error {
	return c.kv.SetItem(FingerprintKey(userID), fingerprint)
}
