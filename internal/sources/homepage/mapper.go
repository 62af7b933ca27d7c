package homepage

import (
	"net/url"
	"sort"
	"strings"

	"github.com/MrSnakeDoc/hometab/internal/domain"
)

// MapServices converts services.yaml entries into records. The group name
// becomes the record's tag and the description its note. Entries without
// a usable http(s) href are skipped.
func MapServices(config ServicesConfig) []domain.BookmarkRecord {
	var records []domain.BookmarkRecord

	for _, groupMap := range config {
		for _, group := range sortedKeys(groupMap) {
			for _, serviceMap := range groupMap[group] {
				for _, name := range sortedKeys(serviceMap) {
					props := serviceMap[name]
					host, ok := hostOf(props.Href)
					if !ok {
						continue
					}
					if strings.TrimSpace(name) == "" {
						name = extractServiceName(host)
					}
					records = append(records, newRecord(name, props.Href, props.Icon, group, props.Description))
				}
			}
		}
	}
	return records
}

// MapBookmarks converts bookmarks.yaml entries into records. The category
// becomes the tag; the abbreviation is used only when the entry has no
// name.
func MapBookmarks(config BookmarksConfig) []domain.BookmarkRecord {
	var records []domain.BookmarkRecord

	for _, category := range config {
		for _, categoryName := range sortedKeys(category) {
			for _, bookmarkMap := range category[categoryName] {
				for _, name := range sortedKeys(bookmarkMap) {
					entries := bookmarkMap[name]
					// Each bookmark has a list with a single entry
					if len(entries) == 0 {
						continue
					}
					entry := entries[0]
					if _, ok := hostOf(entry.Href); !ok {
						continue
					}
					if strings.TrimSpace(name) == "" {
						name = entry.Abbr
					}
					records = append(records, newRecord(name, entry.Href, entry.Icon, categoryName, entry.Description))
				}
			}
		}
	}
	return records
}

func newRecord(name, href, icon, tag, note string) domain.BookmarkRecord {
	return domain.BookmarkRecord{
		Name:    strings.TrimSpace(name),
		URL:     strings.TrimSpace(href),
		Favicon: icon,
		Tags:    domain.NormalizeTags([]string{tag}),
		Note:    strings.TrimSpace(note),
	}
}

func hostOf(href string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", false
	}
	host := u.Hostname()
	return host, host != ""
}

// extractServiceName extracts the first DNS label as service name
// Example: "jellyfin.domain.ext" -> "jellyfin"
func extractServiceName(hostname string) string {
	parts := strings.Split(hostname, ".")
	if len(parts) > 0 {
		return parts[0]
	}
	return hostname
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
