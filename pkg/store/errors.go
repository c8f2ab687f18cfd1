package store

import (
	"fmt"
	"strings"

	"github.com/marmos91/dittovfs/pkg/provider"
)

// NotFound builds the error returned for a missing row.
func NotFound(kind, id string) error {
	return &provider.NotFoundError{Kind: kind, ID: id}
}

// RemoteIDConflict builds the error returned when a remote id is already held
// by another live row.
func RemoteIDConflict(kind, providerID, remoteID, holder string) error {
	return &provider.ConflictError{
		Kind:    kind,
		Message: fmt.Sprintf("remote id %q of provider %s is held by %s", remoteID, providerID, holder),
	}
}

// ValidateFolder checks the fields every folder row must carry.
func ValidateFolder(f *Folder) error {
	switch {
	case f.ProviderID == "":
		return fmt.Errorf("folder %q: provider id is required", f.Name)
	case !strings.HasSuffix(f.VirtualPath, "/"):
		return fmt.Errorf("folder %q: virtual path %q must end with /", f.Name, f.VirtualPath)
	}
	return nil
}

// ValidateFile checks the fields every file row must carry.
func ValidateFile(f *File) error {
	switch {
	case f.ProviderID == "":
		return fmt.Errorf("file %q: provider id is required", f.Name)
	case f.RemoteID == "":
		return fmt.Errorf("file %q: remote id is required", f.Name)
	case f.VirtualPath == "" || strings.HasSuffix(f.VirtualPath, "/"):
		return fmt.Errorf("file %q: invalid virtual path %q", f.Name, f.VirtualPath)
	}
	return nil
}

// ValidatePermission rejects unknown roles.
func ValidatePermission(p *Permission) error {
	switch p.Role {
	case RoleViewer, RoleEditor, RoleAdmin, RoleOwner:
	default:
		return fmt.Errorf("unknown role %q", p.Role)
	}
	if p.FolderID == "" || p.UserID == "" {
		return fmt.Errorf("permission needs a folder and a user")
	}
	return nil
}
