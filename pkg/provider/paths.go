package provider

import "strings"

// nameReplacer maps path separators inside a single remote name to "-" so a
// name can never introduce a spurious virtual path segment.
var nameReplacer = strings.NewReplacer("/", "-", "\\", "-")

// SanitizeName makes a remote name safe to use as one virtual path segment.
func SanitizeName(name string) string {
	return nameReplacer.Replace(name)
}

// JoinFolderPath returns the virtual path of a folder named name inside
// parent. Folder paths always end with "/". An empty parent is the root "/".
func JoinFolderPath(parent, name string) string {
	return normalizeParent(parent) + SanitizeName(name) + "/"
}

// JoinFilePath returns the virtual path of a file named name inside parent.
func JoinFilePath(parent, name string) string {
	return normalizeParent(parent) + SanitizeName(name)
}

func normalizeParent(parent string) string {
	if parent == "" {
		return "/"
	}
	if !strings.HasSuffix(parent, "/") {
		return parent + "/"
	}
	return parent
}
