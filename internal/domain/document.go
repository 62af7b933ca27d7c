package domain

import "time"

// User is the minimal projection of the authenticated account the sync
// subsystem needs. Nothing else about authentication leaks in here.
type User struct {
	ID            string `json:"id"`
	EmailVerified bool   `json:"emailVerified"`
}

// Eligible reports whether the user may read or write cloud data.
func (u *User) Eligible() bool {
	return u != nil && u.ID != "" && u.EmailVerified
}

// Document is the cloud-side representation for one user. It is always
// read and written whole: last writer wins at the document level.
type Document struct {
	Records   []BookmarkRecord `json:"records"`
	Settings  Settings         `json:"settings"`
	UpdatedAt time.Time        `json:"updatedAt"`

	// Origin is the device id of the writer. Used to drop our own echoes
	// from the change feed.
	Origin string `json:"origin,omitempty"`
}

// Clone returns a deep copy.
func (d Document) Clone() Document {
	d.Records = CloneRecords(d.Records)
	d.Settings = d.Settings.Clone()
	return d
}

// ChangeNotification is delivered by the remote change feed whenever any
// device rewrites a user's document.
type ChangeNotification struct {
	UserID   string           `json:"userId"`
	Records  []BookmarkRecord `json:"records"`
	Settings *Settings        `json:"settings,omitempty"`
	Origin   string           `json:"origin,omitempty"`
}

// NotificationFor builds the change notification announced after doc is
// written for userID. Records is never nil so the payload always carries
// an array.
func NotificationFor(userID string, doc Document) ChangeNotification {
	settings := doc.Settings.Clone()
	records := CloneRecords(doc.Records)
	if records == nil {
		records = []BookmarkRecord{}
	}
	return ChangeNotification{
		UserID:   userID,
		Records:  records,
		Settings: &settings,
		Origin:   doc.Origin,
	}
}
