package store

import (
	"sort"
	"time"
)

// SortProviders orders providers by creation time, then id.
func SortProviders(ps []*Provider) {
	sort.Slice(ps, func(i, j int) bool {
		if !ps[i].CreatedAt.Equal(ps[j].CreatedAt) {
			return ps[i].CreatedAt.Before(ps[j].CreatedAt)
		}
		return ps[i].ID < ps[j].ID
	})
}

// SortFolders orders folders by name, then id.
func SortFolders(fs []*Folder) {
	sort.Slice(fs, func(i, j int) bool {
		if fs[i].Name != fs[j].Name {
			return fs[i].Name < fs[j].Name
		}
		return fs[i].ID < fs[j].ID
	})
}

// SortFiles orders files by name, then id.
func SortFiles(fs []*File) {
	sort.Slice(fs, func(i, j int) bool {
		if fs[i].Name != fs[j].Name {
			return fs[i].Name < fs[j].Name
		}
		return fs[i].ID < fs[j].ID
	})
}

// Prefer reports whether candidate a beats b when several rows match a remote
// id or path lookup: live rows win, then the most recently updated.
func Prefer(aDeleted bool, aUpdated time.Time, bDeleted bool, bUpdated time.Time) bool {
	if aDeleted != bDeleted {
		return !aDeleted
	}
	return aUpdated.After(bUpdated)
}
