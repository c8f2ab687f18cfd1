// Package store defines the catalog: persisted provider records and the cache
// rows materialized from their remote trees.
//
// Two implementations exist: store/memory for tests and ephemeral setups, and
// store/badger for persistence across restarts. Both run the conformance suite
// in store/testing.
package store

import (
	"context"
	"time"
)

// AuthState is the connection state of a provider record.
type AuthState string

const (
	AuthDisconnected AuthState = "disconnected"
	AuthPending      AuthState = "pending_auth"
	AuthActive       AuthState = "active"
)

// Provider is one connected backend account, bucket or share.
//
// EncryptedConfig is the only place credentials live. Adapters are built from
// a fresh decrypt of it for every operation.
type Provider struct {
	ID              string    `json:"id"`
	WorkspaceID     string    `json:"workspace_id"`
	Type            string    `json:"type"`
	Name            string    `json:"name"`
	EncryptedConfig string    `json:"encrypted_config"`
	IsActive        bool      `json:"is_active"`
	AuthState       AuthState `json:"auth_state"`

	AccountEmail string `json:"account_email,omitempty"`
	AccountName  string `json:"account_name,omitempty"`

	// QuotaTotal is nil for backends without a limit.
	QuotaTotal *int64 `json:"quota_total,omitempty"`
	QuotaUsed  int64  `json:"quota_used"`

	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`
	CreatedBy  string     `json:"created_by"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Clone returns a deep copy of p.
func (p *Provider) Clone() *Provider {
	if p == nil {
		return nil
	}
	c := *p
	if p.QuotaTotal != nil {
		v := *p.QuotaTotal
		c.QuotaTotal = &v
	}
	if p.LastSyncAt != nil {
		v := *p.LastSyncAt
		c.LastSyncAt = &v
	}
	return &c
}

// Folder is a cached folder node. VirtualPath always ends with "/". ParentID
// is empty for folders at the provider root.
type Folder struct {
	ID               string    `json:"id"`
	ProviderID       string    `json:"provider_id"`
	RemoteID         string    `json:"remote_id,omitempty"`
	Name             string    `json:"name"`
	VirtualPath      string    `json:"virtual_path"`
	ParentID         string    `json:"parent_id,omitempty"`
	IsDeleted        bool      `json:"is_deleted"`
	CreatedBy        string    `json:"created_by,omitempty"`
	RemoteModifiedAt time.Time `json:"remote_modified_at"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Clone returns a copy of f.
func (f *Folder) Clone() *Folder {
	if f == nil {
		return nil
	}
	c := *f
	return &c
}

// File is a cached file node. FolderID is empty for files at the provider
// root.
type File struct {
	ID               string    `json:"id"`
	ProviderID       string    `json:"provider_id"`
	RemoteID         string    `json:"remote_id"`
	Name             string    `json:"name"`
	VirtualPath      string    `json:"virtual_path"`
	FolderID         string    `json:"folder_id,omitempty"`
	MimeType         string    `json:"mime_type,omitempty"`
	Size             int64     `json:"size"`
	Hash             string    `json:"hash,omitempty"`
	IsDeleted        bool      `json:"is_deleted"`
	UploadedBy       string    `json:"uploaded_by,omitempty"`
	RemoteModifiedAt time.Time `json:"remote_modified_at"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Clone returns a copy of f.
func (f *File) Clone() *File {
	if f == nil {
		return nil
	}
	c := *f
	return &c
}

// Role is a folder access level.
type Role string

const (
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
	RoleOwner  Role = "owner"
)

// Permission is an explicit role grant on a folder.
type Permission struct {
	FolderID  string    `json:"folder_id"`
	UserID    string    `json:"user_id"`
	Role      Role      `json:"role"`
	GrantedBy string    `json:"granted_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the catalog persistence interface.
//
// Missing rows are reported as *provider.NotFoundError. Writing a row whose
// (ProviderID, RemoteID) is held by another live row of the same node type
// fails with *provider.ConflictError. Every returned row is a copy.
type Store interface {
	// CreateProvider inserts p, assigning an ID when empty.
	CreateProvider(ctx context.Context, p *Provider) error
	GetProvider(ctx context.Context, id string) (*Provider, error)
	UpdateProvider(ctx context.Context, p *Provider) error

	// DeleteProvider removes the record together with its folder, file and
	// permission rows.
	DeleteProvider(ctx context.Context, id string) error

	// ListProviders returns the providers of a workspace, or all of them when
	// workspaceID is empty, ordered by creation time.
	ListProviders(ctx context.Context, workspaceID string) ([]*Provider, error)

	GetFolder(ctx context.Context, id string) (*Folder, error)
	FindFolderByRemoteID(ctx context.Context, providerID, remoteID string) (*Folder, error)
	FindFolderByPath(ctx context.Context, providerID, virtualPath string) (*Folder, error)

	// PutFolder inserts f when f.ID is empty (assigning one) and updates the
	// existing row otherwise.
	PutFolder(ctx context.Context, f *Folder) error

	// ListFolders returns the folders directly under parentID ("" for the
	// provider root), ordered by name.
	ListFolders(ctx context.Context, providerID, parentID string, includeDeleted bool) ([]*Folder, error)
	DeleteFolder(ctx context.Context, id string) error

	GetFile(ctx context.Context, id string) (*File, error)
	FindFileByRemoteID(ctx context.Context, providerID, remoteID string) (*File, error)
	FindFileByPath(ctx context.Context, providerID, virtualPath string) (*File, error)
	PutFile(ctx context.Context, f *File) error
	ListFiles(ctx context.Context, providerID, folderID string, includeDeleted bool) ([]*File, error)

	// ListProviderFiles returns every file row of a provider, deleted ones
	// included.
	ListProviderFiles(ctx context.Context, providerID string) ([]*File, error)
	DeleteFile(ctx context.Context, id string) error

	GetPermission(ctx context.Context, folderID, userID string) (*Permission, error)
	PutPermission(ctx context.Context, p *Permission) error
	DeletePermission(ctx context.Context, folderID, userID string) error

	Close() error
}
