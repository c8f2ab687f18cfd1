package permission

import (
	"context"
	"testing"

	"github.com/marmos91/dittovfs/pkg/store"
	"github.com/marmos91/dittovfs/pkg/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tree struct {
	store           store.Store
	root, mid, leaf *store.Folder
	resolver        *Resolver
}

// newTree builds /root/mid/leaf, with root created by "creator".
func newTree(t *testing.T) *tree {
	t.Helper()
	ctx := context.Background()
	s := memory.NewMemoryStore()

	p := &store.Provider{Type: "memory"}
	require.NoError(t, s.CreateProvider(ctx, p))

	root := &store.Folder{ProviderID: p.ID, Name: "root", VirtualPath: "/root/", CreatedBy: "creator"}
	require.NoError(t, s.PutFolder(ctx, root))
	mid := &store.Folder{ProviderID: p.ID, Name: "mid", VirtualPath: "/root/mid/", ParentID: root.ID}
	require.NoError(t, s.PutFolder(ctx, mid))
	leaf := &store.Folder{ProviderID: p.ID, Name: "leaf", VirtualPath: "/root/mid/leaf/", ParentID: mid.ID}
	require.NoError(t, s.PutFolder(ctx, leaf))

	return &tree{store: s, root: root, mid: mid, leaf: leaf, resolver: NewResolver(s)}
}

func TestEffectiveRole(t *testing.T) {
	ctx := context.Background()

	t.Run("ExplicitGrant", func(t *testing.T) {
		tr := newTree(t)
		require.NoError(t, tr.resolver.Grant(ctx, tr.leaf.ID, "alice", store.RoleEditor, "creator"))

		role, err := tr.resolver.EffectiveRole(ctx, tr.leaf.ID, "alice")
		require.NoError(t, err)
		assert.Equal(t, store.RoleEditor, role)
	})

	t.Run("CreatorIsOwner", func(t *testing.T) {
		tr := newTree(t)
		role, err := tr.resolver.EffectiveRole(ctx, tr.root.ID, "creator")
		require.NoError(t, err)
		assert.Equal(t, store.RoleOwner, role)
	})

	t.Run("InheritedFromAncestor", func(t *testing.T) {
		tr := newTree(t)
		require.NoError(t, tr.resolver.Grant(ctx, tr.root.ID, "bob", store.RoleViewer, "creator"))

		role, err := tr.resolver.EffectiveRole(ctx, tr.leaf.ID, "bob")
		require.NoError(t, err)
		assert.Equal(t, store.RoleViewer, role)

		owner, err := tr.resolver.EffectiveRole(ctx, tr.leaf.ID, "creator")
		require.NoError(t, err)
		assert.Equal(t, store.RoleOwner, owner, "creator of an ancestor owns its descendants")
	})

	t.Run("NearestGrantWins", func(t *testing.T) {
		tr := newTree(t)
		require.NoError(t, tr.resolver.Grant(ctx, tr.root.ID, "bob", store.RoleAdmin, "creator"))
		require.NoError(t, tr.resolver.Grant(ctx, tr.mid.ID, "bob", store.RoleViewer, "creator"))

		role, err := tr.resolver.EffectiveRole(ctx, tr.leaf.ID, "bob")
		require.NoError(t, err)
		assert.Equal(t, store.RoleViewer, role)
	})

	t.Run("NoAccess", func(t *testing.T) {
		tr := newTree(t)
		role, err := tr.resolver.EffectiveRole(ctx, tr.leaf.ID, "stranger")
		require.NoError(t, err)
		assert.Empty(t, role)
	})

	t.Run("CycleTerminates", func(t *testing.T) {
		tr := newTree(t)
		tr.root.ParentID = tr.leaf.ID
		require.NoError(t, tr.store.PutFolder(ctx, tr.root))

		role, err := tr.resolver.EffectiveRole(ctx, tr.leaf.ID, "stranger")
		require.NoError(t, err)
		assert.Empty(t, role)
	})

	t.Run("MissingFolder", func(t *testing.T) {
		tr := newTree(t)
		_, err := tr.resolver.EffectiveRole(ctx, "missing", "alice")
		assert.Error(t, err)
	})
}

func TestGrant_RejectsOwner(t *testing.T) {
	tr := newTree(t)
	err := tr.resolver.Grant(context.Background(), tr.leaf.ID, "alice", store.RoleOwner, "creator")
	assert.ErrorIs(t, err, ErrOwnerGrant)
}

func TestCheck(t *testing.T) {
	ctx := context.Background()
	tr := newTree(t)
	require.NoError(t, tr.resolver.Grant(ctx, tr.mid.ID, "alice", store.RoleEditor, "creator"))

	assert.NoError(t, tr.resolver.Check(ctx, tr.leaf.ID, "alice", store.RoleViewer))
	assert.NoError(t, tr.resolver.Check(ctx, tr.leaf.ID, "alice", store.RoleEditor))
	assert.ErrorIs(t, tr.resolver.Check(ctx, tr.leaf.ID, "alice", store.RoleAdmin), ErrForbidden)

	require.NoError(t, tr.resolver.Revoke(ctx, tr.mid.ID, "alice"))
	assert.ErrorIs(t, tr.resolver.Check(ctx, tr.leaf.ID, "alice", store.RoleViewer), ErrForbidden)
}

func TestAllows(t *testing.T) {
	assert.True(t, Allows(store.RoleOwner, store.RoleAdmin))
	assert.True(t, Allows(store.RoleEditor, store.RoleEditor))
	assert.False(t, Allows(store.RoleViewer, store.RoleEditor))
	assert.False(t, Allows("", store.RoleViewer))
}
