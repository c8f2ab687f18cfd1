// Package permission resolves effective folder roles.
//
// A user's role on a folder is the explicit grant on that folder, else owner
// when the user created it, else whatever applies to the nearest ancestor.
// Reaching the root, or a cycle in corrupt data, means no access.
package permission

import (
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/dittovfs/pkg/provider"
	"github.com/marmos91/dittovfs/pkg/store"
)

// ErrOwnerGrant is returned when trying to grant the owner role explicitly.
var ErrOwnerGrant = errors.New("owner role cannot be granted")

var rank = map[store.Role]int{
	store.RoleViewer: 1,
	store.RoleEditor: 2,
	store.RoleAdmin:  3,
	store.RoleOwner:  4,
}

// Allows reports whether role satisfies needed. The empty role allows nothing.
func Allows(role, needed store.Role) bool {
	r, ok := rank[role]
	return ok && r >= rank[needed]
}

// Resolver computes effective roles from catalog rows.
type Resolver struct {
	store store.Store
}

// NewResolver creates a resolver over s.
func NewResolver(s store.Store) *Resolver {
	return &Resolver{store: s}
}

// EffectiveRole returns the user's role on folderID, or "" for no access.
func (r *Resolver) EffectiveRole(ctx context.Context, folderID, userID string) (store.Role, error) {
	visited := make(map[string]struct{})

	for id := folderID; id != ""; {
		if _, seen := visited[id]; seen {
			return "", nil
		}
		visited[id] = struct{}{}

		perm, err := r.store.GetPermission(ctx, id, userID)
		switch {
		case err == nil:
			return perm.Role, nil
		case !errors.Is(err, provider.ErrNotFound):
			return "", err
		}

		folder, err := r.store.GetFolder(ctx, id)
		if err != nil {
			if errors.Is(err, provider.ErrNotFound) && id != folderID {
				return "", nil
			}
			return "", err
		}
		if folder.CreatedBy != "" && folder.CreatedBy == userID {
			return store.RoleOwner, nil
		}
		id = folder.ParentID
	}
	return "", nil
}

// Check returns nil when the user holds at least needed on folderID.
func (r *Resolver) Check(ctx context.Context, folderID, userID string, needed store.Role) error {
	role, err := r.EffectiveRole(ctx, folderID, userID)
	if err != nil {
		return err
	}
	if !Allows(role, needed) {
		return fmt.Errorf("user %s lacks %s on folder %s: %w", userID, needed, folderID, ErrForbidden)
	}
	return nil
}

// ErrForbidden is wrapped by Check failures.
var ErrForbidden = errors.New("forbidden")

// Grant records an explicit role. Owner is implicit only.
func (r *Resolver) Grant(ctx context.Context, folderID, userID string, role store.Role, grantedBy string) error {
	if role == store.RoleOwner {
		return ErrOwnerGrant
	}
	return r.store.PutPermission(ctx, &store.Permission{
		FolderID:  folderID,
		UserID:    userID,
		Role:      role,
		GrantedBy: grantedBy,
	})
}

// Revoke removes an explicit grant.
func (r *Resolver) Revoke(ctx context.Context, folderID, userID string) error {
	return r.store.DeletePermission(ctx, folderID, userID)
}
