package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// fingerprintRecord is the projection of a record that participates in
// change detection. Tags, note and favicon are left out on purpose: an
// edit touching only those does not schedule a push by itself.
type fingerprintRecord struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	URL        string `json:"url"`
	VisitCount int64  `json:"visitCount"`
}

type fingerprintPayload struct {
	Records  []fingerprintRecord `json:"records"`
	Settings Settings            `json:"settings"`
}

// ComputeFingerprint returns a deterministic digest of the syncable state.
// It does not depend on record order. It is only used to detect change;
// a collision merely suppresses a push that would have been a no-op.
func ComputeFingerprint(records []BookmarkRecord, settings Settings) string {
	projected := make([]fingerprintRecord, 0, len(records))
	for _, r := range records {
		projected = append(projected, fingerprintRecord{
			ID:         r.ID,
			Name:       r.Name,
			URL:        r.URL,
			VisitCount: r.VisitCount,
		})
	}
	sort.Slice(projected, func(i, j int) bool {
		a, b := projected[i], projected[j]
		if a.ID != b.ID {
			return a.ID < b.ID
		}
		if a.URL != b.URL {
			return a.URL < b.URL
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.VisitCount < b.VisitCount
	})

	// Struct field order fixes the key order; marshalling these types
	// cannot fail.
	data, _ := json.Marshal(fingerprintPayload{Records: projected, Settings: settings})
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
