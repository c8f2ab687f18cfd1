package lifecycle

import (
	"fmt"

	"github.com/marmos91/dittovfs/pkg/provider"
	"github.com/marmos91/dittovfs/pkg/store"
)

// allowed lists the legal auth state changes. Re-entering pending_auth
// restarts an authorization that was never completed.
var allowed = map[store.AuthState][]store.AuthState{
	store.AuthDisconnected: {store.AuthPending, store.AuthActive},
	store.AuthPending:      {store.AuthPending, store.AuthActive},
	store.AuthActive:       {store.AuthPending},
}

// transition checks that a provider may move from one auth state to another.
func transition(from, to store.AuthState) error {
	if from == "" {
		from = store.AuthDisconnected
	}
	for _, next := range allowed[from] {
		if next == to {
			return nil
		}
	}
	return &provider.ConflictError{
		Kind:    "provider",
		Message: fmt.Sprintf("cannot move from %s to %s", from, to),
	}
}
