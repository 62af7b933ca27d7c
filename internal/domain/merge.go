package domain

import "slices"

// MergeBookmarks combines the locally cached collection with the cloud
// collection into one conflict-free collection.
//
// Rules:
//   - Cloud records sharing an id or a normalised URL form one group.
//   - A local record joins the cloud group holding its id, or failing that
//     the group holding its normalised URL. A local record matched by id
//     stays in that group even when its URL was edited to another cloud
//     record's URL.
//   - Remaining local records are grouped the same way among themselves.
//   - Each group resolves to one record: the highest VisitCount wins, the
//     cloud copy wins a tie. The winner keeps its id.
//   - Tags are the union of the tied winners' tags, or of every copy's
//     tags when the winners carry none. An empty note is filled from the
//     first copy that has one.
//   - Output order is cloud groups first, then local-only groups, each at
//     the position of its first record.
//
// Nothing present in either input is dropped except collapsed duplicates.
// Inputs are never modified and the result shares no memory with them.
// The function is idempotent: MergeBookmarks(MergeBookmarks(a, b), b)
// equals MergeBookmarks(a, b).
func MergeBookmarks(local, cloud []BookmarkRecord) []BookmarkRecord {
	local = resolveGroups(groupRecords(local, false))

	groups := groupRecords(cloud, true)
	groupOfID := make(map[string]int, len(cloud))
	groupOfURL := make(map[string]int, len(cloud))
	for g, members := range groups {
		for _, r := range members {
			groupOfID[r.ID] = g
			if key := NormalizeURL(r.URL); key != "" {
				groupOfURL[key] = g
			}
		}
	}

	var localOnly []BookmarkRecord
	for _, l := range local {
		if g, ok := groupOfID[l.ID]; ok {
			groups[g] = append(groups[g], l)
			continue
		}
		if key := NormalizeURL(l.URL); key != "" {
			if g, ok := groupOfURL[key]; ok {
				groups[g] = append(groups[g], l)
				continue
			}
		}
		localOnly = append(localOnly, l)
	}

	merged := resolveGroups(groups)
	return append(merged, resolveGroups(groupRecords(localOnly, true))...)
}

// groupRecords partitions records into groups of copies of the same
// bookmark: equal ids, and equal normalised URLs when byURL is set. Groups
// are ordered by their first record and keep input order inside.
func groupRecords(records []BookmarkRecord, byURL bool) [][]BookmarkRecord {
	parent := make([]int, len(records))
	for i := range parent {
		parent[i] = i
	}
	find := func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	union := func(i, j int) {
		ri, rj := find(i), find(j)
		if ri < rj {
			parent[rj] = ri
		} else if rj < ri {
			parent[ri] = rj
		}
	}

	firstByID := make(map[string]int, len(records))
	firstByURL := make(map[string]int, len(records))
	for i, r := range records {
		if j, ok := firstByID[r.ID]; ok {
			union(i, j)
		} else {
			firstByID[r.ID] = i
		}
		if !byURL {
			continue
		}
		if key := NormalizeURL(r.URL); key != "" {
			if j, ok := firstByURL[key]; ok {
				union(i, j)
			} else {
				firstByURL[key] = i
			}
		}
	}

	var groups [][]BookmarkRecord
	index := make(map[int]int, len(records))
	for i, r := range records {
		root := find(i)
		g, ok := index[root]
		if !ok {
			g = len(groups)
			index[root] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], r)
	}
	return groups
}

func resolveGroups(groups [][]BookmarkRecord) []BookmarkRecord {
	out := make([]BookmarkRecord, 0, len(groups))
	for _, members := range groups {
		out = append(out, resolveGroup(members))
	}
	return out
}

// resolveGroup merges copies of the same logical bookmark. The first copy
// with the highest VisitCount wins, so earlier copies win ties.
func resolveGroup(members []BookmarkRecord) BookmarkRecord {
	winner := 0
	for i, r := range members {
		if r.VisitCount > members[winner].VisitCount {
			winner = i
		}
	}
	top := members[winner].VisitCount

	var tied, all []string
	for _, r := range members {
		all = append(all, r.Tags...)
		if r.VisitCount == top {
			tied = append(tied, r.Tags...)
		}
	}
	tags := NormalizeTags(tied)
	if tags == nil {
		tags = NormalizeTags(all)
	}

	out := members[winner].Clone()
	if !slices.Equal(NormalizeTags(out.Tags), tags) {
		out.Tags = tags
	}
	if out.Note == "" {
		for _, r := range members {
			if r.Note != "" {
				out.Note = r.Note
				break
			}
		}
	}
	return out
}

// MergeSettings merges two settings documents field by field. The cloud
// value wins unless it is unset, in which case the local value is used.
func MergeSettings(local, cloud Settings) Settings {
	return Settings{
		Theme:                   pick(cloud.Theme, local.Theme),
		AccentColor:             pick(cloud.AccentColor, local.AccentColor),
		CardOpacity:             pick(cloud.CardOpacity, local.CardOpacity),
		SearchBarOpacity:        pick(cloud.SearchBarOpacity, local.SearchBarOpacity),
		WallpaperBlur:           pick(cloud.WallpaperBlur, local.WallpaperBlur),
		WallpaperEnabled:        pick(cloud.WallpaperEnabled, local.WallpaperEnabled),
		WallpaperInterval:       pick(cloud.WallpaperInterval, local.WallpaperInterval),
		SnowEnabled:             pick(cloud.SnowEnabled, local.SnowEnabled),
		ShowClock:               pick(cloud.ShowClock, local.ShowClock),
		ShowSearchBar:           pick(cloud.ShowSearchBar, local.ShowSearchBar),
		OpenInNewTab:            pick(cloud.OpenInNewTab, local.OpenInNewTab),
		CardsPerRow:             pick(cloud.CardsPerRow, local.CardsPerRow),
		AutoSyncEnabled:         pick(cloud.AutoSyncEnabled, local.AutoSyncEnabled),
		AutoSyncIntervalSeconds: pick(cloud.AutoSyncIntervalSeconds, local.AutoSyncIntervalSeconds),
	}
}

func pick[T any](cloud, local *T) *T {
	if cloud != nil {
		return clonePtr(cloud)
	}
	return clonePtr(local)
}
