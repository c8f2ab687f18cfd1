// Package memory implements an in-memory storage backend.
//
// The remote state lives in a Backend that outlives adapter instances, which
// mirrors real backends: every logical operation builds a fresh adapter while
// the remote tree persists. Backend also records per-operation call counts and
// supports error injection, which makes it the fake remote used throughout the
// engine, router and lifecycle tests.
package memory

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Backend is the shared remote state of one in-memory account.
type Backend struct {
	mu sync.Mutex

	nodes  map[string]*node
	nextID int

	// uploads holds parts of in-flight chunked uploads, keyed by upload id.
	uploads map[string]map[int][]byte

	calls    map[string]int
	failures map[string]error
	cleanups int

	// pageSize caps List pages regardless of the requested limit. 0 = no cap.
	pageSize int

	// directURLs makes RequestUpload/RequestDownload mint direct URLs.
	directURLs bool

	quotaTotal *int64
	account    AccountInfo

	// loginDone flips when a poll-based login is completed via Authorize.
	loginDone bool
	loginCode string

	now func() time.Time
}

// AccountInfo is the account the backend reports.
type AccountInfo struct {
	Email string
	Name  string
}

type node struct {
	id       string
	name     string
	parent   string
	folder   bool
	data     []byte
	mimeType string
	modified time.Time
}

// Option configures a Backend.
type Option func(*Backend)

// WithPageSize caps every List page at n entries.
func WithPageSize(n int) Option {
	return func(b *Backend) { b.pageSize = n }
}

// WithDirectURLs makes the backend hand out direct upload/download URLs.
func WithDirectURLs() Option {
	return func(b *Backend) { b.directURLs = true }
}

// WithQuotaTotal sets a storage limit.
func WithQuotaTotal(total int64) Option {
	return func(b *Backend) { b.quotaTotal = &total }
}

// WithAccount sets the reported account.
func WithAccount(email, name string) Option {
	return func(b *Backend) { b.account = AccountInfo{Email: email, Name: name} }
}

// WithClock overrides the time source used for modification times.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) { b.now = now }
}

// NewBackend creates an empty remote tree.
func NewBackend(opts ...Option) *Backend {
	b := &Backend{
		nodes:    make(map[string]*node),
		uploads:  make(map[string]map[int][]byte),
		calls:    make(map[string]int),
		failures: make(map[string]error),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// AddFolder creates a folder under parentID ("" = root) and returns its id.
func (b *Backend) AddFolder(parentID, name string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addLocked(parentID, name, true, nil, "")
}

// AddFile creates a file under parentID and returns its id.
func (b *Backend) AddFile(parentID, name string, data []byte) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addLocked(parentID, name, false, data, "application/octet-stream")
}

// Remove deletes a node and its descendants.
func (b *Backend) Remove(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(id)
}

// Rename changes the name of a node in place.
func (b *Backend) Rename(id, name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n, ok := b.nodes[id]; ok {
		n.name = name
		n.modified = b.now()
	}
}

// Reissue gives a node a new id, simulating a backend that hands out a new
// identifier for the same logical path (for example after a reconnect).
func (b *Backend) Reissue(id string) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	n, ok := b.nodes[id]
	if !ok {
		return ""
	}
	b.nextID++
	newID := fmt.Sprintf("m-%d", b.nextID)
	delete(b.nodes, id)
	n.id = newID
	b.nodes[newID] = n
	for _, c := range b.nodes {
		if c.parent == id {
			c.parent = newID
		}
	}
	return newID
}

// Content returns the bytes of a file.
func (b *Backend) Content(id string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n, ok := b.nodes[id]
	if !ok || n.folder {
		return nil, false
	}
	return append([]byte(nil), n.data...), true
}

// Exists reports whether id is present.
func (b *Backend) Exists(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.nodes[id]
	return ok
}

// Calls returns how many times op was invoked.
func (b *Backend) Calls(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[op]
}

// Cleanups returns how many adapter instances have been cleaned up.
func (b *Backend) Cleanups() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cleanups
}

// PendingUploads returns the number of chunked uploads not yet completed or
// aborted.
func (b *Backend) PendingUploads() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.uploads)
}

// FailOn makes op fail with err. key is an operation name ("list") or an
// operation scoped to a remote id ("list:m-3"). A nil err clears the rule.
func (b *Backend) FailOn(key string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.failures, key)
		return
	}
	b.failures[key] = err
}

// Authorize completes a pending poll login, as if the user approved it in a
// browser.
func (b *Backend) Authorize(code string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.loginDone = true
	b.loginCode = code
}

// record counts op and returns any injected failure.
func (b *Backend) record(op, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls[op]++
	if err, ok := b.failures[op+":"+id]; ok {
		return err
	}
	if err, ok := b.failures[op]; ok {
		return err
	}
	return nil
}

func (b *Backend) addLocked(parentID, name string, folder bool, data []byte, mimeType string) string {
	b.nextID++
	id := fmt.Sprintf("m-%d", b.nextID)
	b.nodes[id] = &node{
		id:       id,
		name:     name,
		parent:   parentID,
		folder:   folder,
		data:     append([]byte(nil), data...),
		mimeType: mimeType,
		modified: b.now(),
	}
	return id
}

func (b *Backend) removeLocked(id string) {
	for _, c := range b.childrenLocked(id) {
		b.removeLocked(c.id)
	}
	delete(b.nodes, id)
}

// childrenLocked returns children of parent sorted folders first, then by name.
func (b *Backend) childrenLocked(parent string) []*node {
	var out []*node
	for _, n := range b.nodes {
		if n.parent == parent {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].folder != out[j].folder {
			return out[i].folder
		}
		if out[i].name != out[j].name {
			return out[i].name < out[j].name
		}
		return out[i].id < out[j].id
	})
	return out
}

func (b *Backend) usedLocked() int64 {
	var used int64
	for _, n := range b.nodes {
		used += int64(len(n.data))
	}
	return used
}
