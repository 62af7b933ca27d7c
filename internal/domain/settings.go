package domain

const (
	// MinAutoSyncInterval and MaxAutoSyncInterval bound the autosync
	// debounce window, in seconds.
	MinAutoSyncInterval = 3
	MaxAutoSyncInterval = 60

	// DefaultAutoSyncInterval is used when the setting is unset.
	DefaultAutoSyncInterval = 5
)

// Settings is the flat preference document shown in the settings panel.
//
// Every field is a pointer: nil means "unset", which is what lets the
// merge rule fall back to the local value field by field.
type Settings struct {
	Theme       *string `json:"theme,omitempty"`
	AccentColor *string `json:"accentColor,omitempty"`

	CardOpacity      *float64 `json:"cardOpacity,omitempty"`
	SearchBarOpacity *float64 `json:"searchBarOpacity,omitempty"`
	WallpaperBlur    *float64 `json:"wallpaperBlur,omitempty"`

	WallpaperEnabled  *bool `json:"wallpaperEnabled,omitempty"`
	WallpaperInterval *int  `json:"wallpaperInterval,omitempty"`
	SnowEnabled       *bool `json:"snowEnabled,omitempty"`
	ShowClock         *bool `json:"showClock,omitempty"`
	ShowSearchBar     *bool `json:"showSearchBar,omitempty"`
	OpenInNewTab      *bool `json:"openInNewTab,omitempty"`
	CardsPerRow       *int  `json:"cardsPerRow,omitempty"`

	AutoSyncEnabled         *bool `json:"autoSyncEnabled,omitempty"`
	AutoSyncIntervalSeconds *int  `json:"autoSyncIntervalSeconds,omitempty"`
}

// Clone returns a deep copy.
func (s Settings) Clone() Settings {
	return Settings{
		Theme:                   clonePtr(s.Theme),
		AccentColor:             clonePtr(s.AccentColor),
		CardOpacity:             clonePtr(s.CardOpacity),
		SearchBarOpacity:        clonePtr(s.SearchBarOpacity),
		WallpaperBlur:           clonePtr(s.WallpaperBlur),
		WallpaperEnabled:        clonePtr(s.WallpaperEnabled),
		WallpaperInterval:       clonePtr(s.WallpaperInterval),
		SnowEnabled:             clonePtr(s.SnowEnabled),
		ShowClock:               clonePtr(s.ShowClock),
		ShowSearchBar:           clonePtr(s.ShowSearchBar),
		OpenInNewTab:            clonePtr(s.OpenInNewTab),
		CardsPerRow:             clonePtr(s.CardsPerRow),
		AutoSyncEnabled:         clonePtr(s.AutoSyncEnabled),
		AutoSyncIntervalSeconds: clonePtr(s.AutoSyncIntervalSeconds),
	}
}

// Normalize clamps every ranged field into its valid range.
func (s Settings) Normalize() Settings {
	out := s.Clone()
	if out.AutoSyncIntervalSeconds != nil {
		v := ClampAutoSyncInterval(*out.AutoSyncIntervalSeconds)
		out.AutoSyncIntervalSeconds = &v
	}
	out.CardOpacity = clampFloat(out.CardOpacity, 0, 1)
	out.SearchBarOpacity = clampFloat(out.SearchBarOpacity, 0, 1)
	out.WallpaperBlur = clampFloat(out.WallpaperBlur, 0, 40)
	if out.CardsPerRow != nil && *out.CardsPerRow < 1 {
		v := 1
		out.CardsPerRow = &v
	}
	if out.WallpaperInterval != nil && *out.WallpaperInterval < 0 {
		v := 0
		out.WallpaperInterval = &v
	}
	return out
}

// AutoSync returns the effective autosync switch and interval, applying
// defaults for unset fields.
func (s Settings) AutoSync() (enabled bool, intervalSeconds int) {
	enabled = true
	if s.AutoSyncEnabled != nil {
		enabled = *s.AutoSyncEnabled
	}
	intervalSeconds = DefaultAutoSyncInterval
	if s.AutoSyncIntervalSeconds != nil {
		intervalSeconds = ClampAutoSyncInterval(*s.AutoSyncIntervalSeconds)
	}
	return enabled, intervalSeconds
}

// ClampAutoSyncInterval bounds v into [MinAutoSyncInterval, MaxAutoSyncInterval].
func ClampAutoSyncInterval(v int) int {
	if v < MinAutoSyncInterval {
		return MinAutoSyncInterval
	}
	if v > MaxAutoSyncInterval {
		return MaxAutoSyncInterval
	}
	return v
}

// Ptr returns a pointer to v. Handy for building Settings literals.
func Ptr[T any](v T) *T {
	return &v
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func clampFloat(p *float64, lo, hi float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	if v < lo {
		v = lo
	}
	if v > hi {
		v = hi
	}
	return &v
}
