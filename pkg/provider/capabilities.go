package provider

import (
	"context"
	"io"
	"time"
)

// AccountInfoProvider is implemented by adapters able to describe the remote
// account.
type AccountInfoProvider interface {
	GetAccountInfo(ctx context.Context) (AccountInfo, error)
}

// UploadSession is the bookkeeping of one chunked upload. The adapter fills
// UploadID, RemoteID and any private State it needs to continue, complete or
// abort; the multipart orchestrator keeps the session between calls since
// adapter instances do not outlive a single request.
type UploadSession struct {
	UploadID  string
	RemoteID  string
	Name      string
	MimeType  string
	Size      int64
	ParentID  string
	State     map[string]string
	CreatedAt time.Time
}

// Set stores a bookkeeping value, allocating State on first use.
func (s *UploadSession) Set(key, value string) {
	if s.State == nil {
		s.State = make(map[string]string)
	}
	s.State[key] = value
}

// Get returns a bookkeeping value.
func (s *UploadSession) Get(key string) string {
	return s.State[key]
}

// Part identifies one uploaded chunk.
type Part struct {
	PartNumber int
	ETag       string
	Size       int64
}

// ChunkedUploader is implemented by adapters that support the multipart
// protocol: initiate, upload parts, complete, abort.
type ChunkedUploader interface {
	SupportsChunkedUpload() bool
	InitiateMultipart(ctx context.Context, req UploadRequest) (*UploadSession, error)
	UploadPart(ctx context.Context, session *UploadSession, partNumber int, r io.Reader, size int64) (Part, error)

	// CompleteMultipart finalizes the upload from parts sorted by PartNumber
	// and returns the final remote id.
	CompleteMultipart(ctx context.Context, session *UploadSession, parts []Part) (string, error)
	AbortMultipart(ctx context.Context, session *UploadSession) error
}

// OAuthFlow holds the redirect OAuth hooks of a backend type.
type OAuthFlow interface {
	AuthorizationURL(config map[string]any, callbackURL, state string) (string, error)

	// Exchange trades code for tokens and returns config updated with them.
	Exchange(ctx context.Context, config map[string]any, code, callbackURL string) (map[string]any, error)
}

// LoginStart is the result of starting a poll-based login.
type LoginStart struct {
	LoginURL string

	// Config is the input config extended with the poll coordinates that a
	// later, stateless Poll call needs.
	Config map[string]any
}

// PollFlow holds the poll-based login hooks of a backend type.
type PollFlow interface {
	StartLogin(ctx context.Context, config map[string]any) (LoginStart, error)

	// Poll returns (nil, nil) while the user has not finished the flow, and
	// the config with credentials once they have.
	Poll(ctx context.Context, config map[string]any) (map[string]any, error)
}

// CapabilitySet lists the optional capabilities of an adapter instance.
type CapabilitySet struct {
	AccountInfo AccountInfoProvider
	Chunked     ChunkedUploader
}

// Capabilities resolves the optional capabilities of p once, so callers test
// a field instead of probing interfaces ad hoc.
func Capabilities(p StorageProvider) CapabilitySet {
	var caps CapabilitySet
	if a, ok := p.(AccountInfoProvider); ok {
		caps.AccountInfo = a
	}
	if c, ok := p.(ChunkedUploader); ok && c.SupportsChunkedUpload() {
		caps.Chunked = c
	}
	return caps
}
