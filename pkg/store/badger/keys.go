package badger

// Database Key Namespace Design
// ==============================
//
// Rows are stored as JSON under their own prefix; every lookup the catalog
// needs is served by an index key whose value is empty and whose key carries
// the row id as its last component. Index components are separated by a NUL
// byte, since remote ids and paths may contain ":" but never NUL.
//
// Data Type               Prefix   Key Format                               Value
// ===================================================================================
// Provider record         "prov:"  prov:<id>                                Provider (JSON)
// Workspace index         "ws:"    ws:<workspaceID>\0<id>                   -
// Folder row              "fo:"    fo:<id>                                  Folder (JSON)
// File row                "fi:"    fi:<id>                                  File (JSON)
// Folder by remote id     "fo-r:"  fo-r:<providerID>\0<remoteID>\0<id>      -
// File by remote id       "fi-r:"  fi-r:<providerID>\0<remoteID>\0<id>      -
// Folder by path          "fo-v:"  fo-v:<providerID>\0<virtualPath>\0<id>   -
// File by path            "fi-v:"  fi-v:<providerID>\0<virtualPath>\0<id>   -
// Folder children         "fo-c:"  fo-c:<providerID>\0<parentID>\0<id>      -
// File children           "fi-c:"  fi-c:<providerID>\0<folderID>\0<id>      -
// Folders of a provider   "fo-p:"  fo-p:<providerID>\0<id>                  -
// Files of a provider     "fi-p:"  fi-p:<providerID>\0<id>                  -
// Permission              "perm:"  perm:<folderID>\0<userID>                Permission (JSON)
//
// Remote id and path indexes admit several rows (a live one plus deleted
// ones); lookups load all candidates and keep the preferred one.

const (
	prefixProvider  = "prov:"
	prefixWorkspace = "ws:"

	prefixFolder = "fo:"
	prefixFile   = "fi:"

	prefixFolderRemote   = "fo-r:"
	prefixFileRemote     = "fi-r:"
	prefixFolderPath     = "fo-v:"
	prefixFilePath       = "fi-v:"
	prefixFolderChild    = "fo-c:"
	prefixFileChild      = "fi-c:"
	prefixFolderProvider = "fo-p:"
	prefixFileProvider   = "fi-p:"

	prefixPermission = "perm:"

	sep = "\x00"
)

func keyProvider(id string) []byte { return []byte(prefixProvider + id) }

func keyWorkspacePrefix(workspaceID string) []byte {
	return []byte(prefixWorkspace + workspaceID + sep)
}

func keyWorkspace(workspaceID, id string) []byte {
	return append(keyWorkspacePrefix(workspaceID), id...)
}

func keyFolder(id string) []byte { return []byte(prefixFolder + id) }
func keyFile(id string) []byte   { return []byte(prefixFile + id) }

// indexPrefix builds "<prefix><a>\0<b>\0", the scan prefix of a two-part
// index.
func indexPrefix(prefix, a, b string) []byte {
	return []byte(prefix + a + sep + b + sep)
}

// indexKey appends the row id to an index prefix.
func indexKey(prefix, a, b, id string) []byte {
	return append(indexPrefix(prefix, a, b), id...)
}

func keyProviderRowsPrefix(prefix, providerID string) []byte {
	return []byte(prefix + providerID + sep)
}

func keyPermissionPrefix(folderID string) []byte {
	return []byte(prefixPermission + folderID + sep)
}

func keyPermission(folderID, userID string) []byte {
	return append(keyPermissionPrefix(folderID), userID...)
}

// idFromKey returns the trailing id component of an index key.
func idFromKey(key, prefix []byte) string {
	return string(key[len(prefix):])
}
