// Package provider defines the uniform contract every storage backend adapter
// implements, plus the registry and config codec used to build adapters.
//
// Callers never special-case a backend type: folders that are first-class
// objects (drive APIs), key prefixes (object stores) or paths (WebDAV, local
// disks) all surface as opaque remote ids scoped to (provider, node type).
//
// An adapter instance is built fresh from decrypted configuration for every
// logical operation and must be released with Cleanup exactly once.
package provider

import (
	"context"
	"io"
	"time"
)

// AuthType describes how a backend obtains credentials.
type AuthType string

const (
	// AuthOAuthRedirect backends redirect the user to an authorization page and
	// receive a code on a callback URL.
	AuthOAuthRedirect AuthType = "oauth_redirect"

	// AuthOAuthPoll backends hand out a login URL and are polled until the
	// user finishes the flow (device code / login flow style).
	AuthOAuthPoll AuthType = "oauth_poll"

	// AuthAPIKey backends are configured with static keys.
	AuthAPIKey AuthType = "api_key"

	// AuthNone backends need no credentials.
	AuthNone AuthType = "none"
)

// NeedsAuthorization reports whether the auth type goes through the
// pending_auth state before becoming active.
func (a AuthType) NeedsAuthorization() bool {
	return a == AuthOAuthRedirect || a == AuthOAuthPoll
}

// StorageProvider is the contract implemented by every backend adapter.
//
// All methods except TestConnection and Cleanup return domain errors from
// this package: raw transport errors never cross the adapter boundary.
//
// Thread safety:
// An initialized adapter may be used from several goroutines. Initialize and
// Cleanup must not run concurrently with any other method.
type StorageProvider interface {
	// Type returns the registry type tag of the adapter.
	Type() string

	// Initialize validates config against the adapter schema. Backends with a
	// redirect or poll auth flow succeed in a pending state when tokens are
	// missing; every other operation then fails with *NotAuthorizedError.
	Initialize(ctx context.Context, config map[string]any) error

	// TestConnection is a best-effort reachability check. It never fails,
	// returning false on any error including the pending state.
	TestConnection(ctx context.Context) bool

	// GetQuota reports storage usage. Some backends compute it with a full
	// paginated scan.
	GetQuota(ctx context.Context) (Quota, error)

	// RequestUpload prepares an upload. Adapters able to mint a time-limited
	// direct-write URL set UseDirectUpload; otherwise the caller must follow up
	// with UploadFile using the returned FileID.
	RequestUpload(ctx context.Context, req UploadRequest) (UploadTicket, error)

	// UploadFile writes bytes for remoteID through the proxy path. A non-empty
	// return value replaces remoteID (create-then-fill backends).
	UploadFile(ctx context.Context, remoteID string, r io.Reader, size int64) (string, error)

	// RequestDownload returns a direct URL when the backend can mint one.
	RequestDownload(ctx context.Context, remoteID string) (DownloadTicket, error)

	// DownloadFile opens a byte stream for remoteID. The caller closes it.
	DownloadFile(ctx context.Context, remoteID string) (io.ReadCloser, error)

	// CreateFolder creates name under parentID (root when empty).
	CreateFolder(ctx context.Context, name string, parentID string) (RemoteFolder, error)

	// Delete removes a file, or a folder with everything below it.
	//
	// Parameters:
	//   - remoteID: Backend id of the item
	//   - isFolder: Selects folder semantics on backends that key both kinds
	//     the same way
	//
	// Returns:
	//   - error: *NotFoundError when the item does not exist
	Delete(ctx context.Context, remoteID string, isFolder bool) error

	// Move renames and/or reparents an item. A nil pointer leaves that
	// attribute unchanged.
	Move(ctx context.Context, remoteID string, newParentID, newName *string) error

	// Copy duplicates an item and returns the id of the copy. A nil
	// targetParentID keeps the source parent.
	Copy(ctx context.Context, remoteID string, targetParentID, newName *string) (string, error)

	// List returns one page of the children of FolderID (root when empty).
	List(ctx context.Context, req ListRequest) (ListResult, error)

	GetFileMetadata(ctx context.Context, remoteID string) (RemoteFile, error)
	GetFolderMetadata(ctx context.Context, remoteID string) (RemoteFolder, error)

	// Cleanup releases network clients and other held resources.
	Cleanup() error
}

// Quota describes storage usage. Total and Available are nil for backends
// without a limit.
type Quota struct {
	Used      int64
	Total     *int64
	Available *int64
}

// NewQuota builds a Quota, deriving Available when total is known.
func NewQuota(used int64, total *int64) Quota {
	q := Quota{Used: used, Total: total}
	if total != nil {
		avail := *total - used
		if avail < 0 {
			avail = 0
		}
		q.Available = &avail
	}
	return q
}

// UploadRequest describes a file about to be uploaded.
type UploadRequest struct {
	Name     string
	MimeType string
	Size     int64
	ParentID string
}

// UploadTicket is the answer to RequestUpload.
type UploadTicket struct {
	FileID          string
	UploadURL       string
	UploadFields    map[string]string
	UseDirectUpload bool
}

// DownloadTicket is the answer to RequestDownload.
type DownloadTicket struct {
	DownloadURL       string
	UseDirectDownload bool
}

// ListRequest selects one page of a folder listing.
type ListRequest struct {
	FolderID  string
	PageToken string
	Limit     int
}

// ListResult is one page of children. An empty NextPageToken ends the listing.
type ListResult struct {
	Files         []RemoteFile
	Folders       []RemoteFolder
	NextPageToken string
}

// RemoteFile is a file as reported by a backend.
type RemoteFile struct {
	RemoteID   string
	Name       string
	ParentID   string
	MimeType   string
	Size       int64
	Hash       string
	ModifiedAt time.Time
}

// RemoteFolder is a folder as reported by a backend.
type RemoteFolder struct {
	RemoteID   string
	Name       string
	ParentID   string
	ModifiedAt time.Time
}

// AccountInfo identifies the remote account, for display only.
type AccountInfo struct {
	Email string
	Name  string
}

// Factory creates an uninitialized adapter instance.
type Factory func() StorageProvider
