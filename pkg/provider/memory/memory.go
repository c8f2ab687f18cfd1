package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strconv"

	"github.com/google/uuid"
	"github.com/marmos91/dittovfs/pkg/provider"
)

// Type is the registry type tag.
const Type = "memory"

// Config is the decoded adapter configuration.
type Config struct {
	// Token is only meaningful for backends registered with an OAuth auth
	// type; its absence leaves the adapter pending.
	Token string `mapstructure:"token"`

	// LoginID identifies a started poll login.
	LoginID string `mapstructure:"login_id"`
}

var schema = provider.Schema{
	Type: Type,
	Fields: []provider.Field{
		{Name: "token", Sensitive: true, Credential: true},
		{Name: "login_id", Credential: true},
	},
}

// Schema returns the config schema.
func Schema() provider.Schema { return schema }

// Entry returns a registry entry whose adapters all talk to b. auth selects
// the lifecycle the entry goes through; provider.AuthNone when empty.
func Entry(b *Backend, auth provider.AuthType) provider.Entry {
	if auth == "" {
		auth = provider.AuthNone
	}
	e := provider.Entry{
		Type:        Type,
		DisplayName: "In-memory",
		AuthType:    auth,
		Schema:      schema,
		Factory:     func() provider.StorageProvider { return New(b, auth) },
	}
	switch auth {
	case provider.AuthOAuthRedirect:
		e.OAuth = &oauthFlow{backend: b}
	case provider.AuthOAuthPoll:
		e.Poll = &pollFlow{backend: b}
	}
	return e
}

// Provider is a StorageProvider over a Backend.
type Provider struct {
	backend *Backend
	auth    provider.AuthType
	config  Config
	pending bool
	ready   bool
}

var (
	_ provider.StorageProvider     = (*Provider)(nil)
	_ provider.ChunkedUploader     = (*Provider)(nil)
	_ provider.AccountInfoProvider = (*Provider)(nil)
)

// New creates an uninitialized adapter over b.
func New(b *Backend, auth provider.AuthType) *Provider {
	return &Provider{backend: b, auth: auth}
}

func (p *Provider) Type() string { return Type }

func (p *Provider) Initialize(ctx context.Context, config map[string]any) error {
	if err := p.backend.record("initialize", ""); err != nil {
		return err
	}
	var cfg Config
	if err := schema.Decode(config, &cfg); err != nil {
		return err
	}
	p.config = cfg
	p.pending = p.auth.NeedsAuthorization() && cfg.Token == ""
	p.ready = true
	return nil
}

func (p *Provider) guard(op, id string) error {
	if !p.ready {
		return &provider.ProviderError{Type: Type, Op: op, Message: "provider not initialized"}
	}
	if p.pending {
		return &provider.NotAuthorizedError{Type: Type}
	}
	if err := p.backend.record(op, id); err != nil {
		return provider.Wrap(Type, op, err)
	}
	return nil
}

func (p *Provider) TestConnection(ctx context.Context) bool {
	return p.guard("test", "") == nil
}

func (p *Provider) GetQuota(ctx context.Context) (provider.Quota, error) {
	if err := p.guard("quota", ""); err != nil {
		return provider.Quota{}, err
	}
	p.backend.mu.Lock()
	defer p.backend.mu.Unlock()
	return provider.NewQuota(p.backend.usedLocked(), p.backend.quotaTotal), nil
}

func (p *Provider) GetAccountInfo(ctx context.Context) (provider.AccountInfo, error) {
	if err := p.guard("account", ""); err != nil {
		return provider.AccountInfo{}, err
	}
	p.backend.mu.Lock()
	defer p.backend.mu.Unlock()
	return provider.AccountInfo{Email: p.backend.account.Email, Name: p.backend.account.Name}, nil
}

// RequestUpload creates an empty placeholder file and returns its id, so the
// proxied path fills it in UploadFile.
func (p *Provider) RequestUpload(ctx context.Context, req provider.UploadRequest) (provider.UploadTicket, error) {
	if err := p.guard("request_upload", req.ParentID); err != nil {
		return provider.UploadTicket{}, err
	}
	p.backend.mu.Lock()
	defer p.backend.mu.Unlock()

	if err := p.checkParentLocked("request_upload", req.ParentID); err != nil {
		return provider.UploadTicket{}, err
	}
	id := p.backend.addLocked(req.ParentID, req.Name, false, nil, req.MimeType)
	ticket := provider.UploadTicket{FileID: id}
	if p.backend.directURLs {
		ticket.UploadURL = "memory://upload/" + url.PathEscape(id)
		ticket.UseDirectUpload = true
	}
	return ticket, nil
}

func (p *Provider) UploadFile(ctx context.Context, remoteID string, r io.Reader, size int64) (string, error) {
	if err := p.guard("upload", remoteID); err != nil {
		return "", err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", provider.Wrap(Type, "upload", err)
	}

	p.backend.mu.Lock()
	defer p.backend.mu.Unlock()

	n, ok := p.backend.nodes[remoteID]
	if !ok || n.folder {
		return "", provider.StatusError(Type, "upload", 404, "file "+remoteID+" not found")
	}
	n.data = data
	n.modified = p.backend.now()
	return "", nil
}

func (p *Provider) RequestDownload(ctx context.Context, remoteID string) (provider.DownloadTicket, error) {
	if err := p.guard("request_download", remoteID); err != nil {
		return provider.DownloadTicket{}, err
	}
	if !p.backend.directURLs {
		return provider.DownloadTicket{}, nil
	}
	return provider.DownloadTicket{
		DownloadURL:       "memory://download/" + url.PathEscape(remoteID),
		UseDirectDownload: true,
	}, nil
}

func (p *Provider) DownloadFile(ctx context.Context, remoteID string) (io.ReadCloser, error) {
	if err := p.guard("download", remoteID); err != nil {
		return nil, err
	}
	data, ok := p.backend.Content(remoteID)
	if !ok {
		return nil, provider.StatusError(Type, "download", 404, "file "+remoteID+" not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (p *Provider) CreateFolder(ctx context.Context, name string, parentID string) (provider.RemoteFolder, error) {
	if err := p.guard("create_folder", parentID); err != nil {
		return provider.RemoteFolder{}, err
	}
	p.backend.mu.Lock()
	defer p.backend.mu.Unlock()

	if err := p.checkParentLocked("create_folder", parentID); err != nil {
		return provider.RemoteFolder{}, err
	}
	id := p.backend.addLocked(parentID, name, true, nil, "")
	return toFolder(p.backend.nodes[id]), nil
}

func (p *Provider) Delete(ctx context.Context, remoteID string, isFolder bool) error {
	if err := p.guard("delete", remoteID); err != nil {
		return err
	}
	p.backend.mu.Lock()
	defer p.backend.mu.Unlock()

	n, ok := p.backend.nodes[remoteID]
	if !ok || n.folder != isFolder {
		return provider.StatusError(Type, "delete", 404, remoteID+" not found")
	}
	p.backend.removeLocked(remoteID)
	return nil
}

func (p *Provider) Move(ctx context.Context, remoteID string, newParentID, newName *string) error {
	if err := p.guard("move", remoteID); err != nil {
		return err
	}
	p.backend.mu.Lock()
	defer p.backend.mu.Unlock()

	n, ok := p.backend.nodes[remoteID]
	if !ok {
		return provider.StatusError(Type, "move", 404, remoteID+" not found")
	}
	if newParentID != nil {
		if err := p.checkParentLocked("move", *newParentID); err != nil {
			return err
		}
		n.parent = *newParentID
	}
	if newName != nil {
		n.name = *newName
	}
	n.modified = p.backend.now()
	return nil
}

func (p *Provider) Copy(ctx context.Context, remoteID string, targetParentID, newName *string) (string, error) {
	if err := p.guard("copy", remoteID); err != nil {
		return "", err
	}
	p.backend.mu.Lock()
	defer p.backend.mu.Unlock()

	n, ok := p.backend.nodes[remoteID]
	if !ok {
		return "", provider.StatusError(Type, "copy", 404, remoteID+" not found")
	}
	parent, name := n.parent, n.name
	if targetParentID != nil {
		if err := p.checkParentLocked("copy", *targetParentID); err != nil {
			return "", err
		}
		parent = *targetParentID
	}
	if newName != nil {
		name = *newName
	}
	return p.copyLocked(n, parent, name), nil
}

func (p *Provider) copyLocked(n *node, parent, name string) string {
	id := p.backend.addLocked(parent, name, n.folder, n.data, n.mimeType)
	if n.folder {
		for _, c := range p.backend.childrenLocked(n.id) {
			p.copyLocked(c, id, c.name)
		}
	}
	return id
}

func (p *Provider) List(ctx context.Context, req provider.ListRequest) (provider.ListResult, error) {
	if err := p.guard("list", req.FolderID); err != nil {
		return provider.ListResult{}, err
	}
	p.backend.mu.Lock()
	defer p.backend.mu.Unlock()

	if err := p.checkParentLocked("list", req.FolderID); err != nil {
		return provider.ListResult{}, err
	}

	children := p.backend.childrenLocked(req.FolderID)

	offset := 0
	if req.PageToken != "" {
		n, err := strconv.Atoi(req.PageToken)
		if err != nil || n < 0 {
			return provider.ListResult{}, provider.StatusError(Type, "list", 400, "invalid page token")
		}
		offset = n
	}
	if offset > len(children) {
		offset = len(children)
	}

	limit := req.Limit
	if p.backend.pageSize > 0 && (limit <= 0 || limit > p.backend.pageSize) {
		limit = p.backend.pageSize
	}
	end := len(children)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	var result provider.ListResult
	for _, c := range children[offset:end] {
		if c.folder {
			result.Folders = append(result.Folders, toFolder(c))
		} else {
			result.Files = append(result.Files, toFile(c))
		}
	}
	if end < len(children) {
		result.NextPageToken = strconv.Itoa(end)
	}
	return result, nil
}

func (p *Provider) GetFileMetadata(ctx context.Context, remoteID string) (provider.RemoteFile, error) {
	if err := p.guard("file_metadata", remoteID); err != nil {
		return provider.RemoteFile{}, err
	}
	p.backend.mu.Lock()
	defer p.backend.mu.Unlock()

	n, ok := p.backend.nodes[remoteID]
	if !ok || n.folder {
		return provider.RemoteFile{}, provider.StatusError(Type, "file_metadata", 404, remoteID+" not found")
	}
	return toFile(n), nil
}

func (p *Provider) GetFolderMetadata(ctx context.Context, remoteID string) (provider.RemoteFolder, error) {
	if err := p.guard("folder_metadata", remoteID); err != nil {
		return provider.RemoteFolder{}, err
	}
	p.backend.mu.Lock()
	defer p.backend.mu.Unlock()

	n, ok := p.backend.nodes[remoteID]
	if !ok || !n.folder {
		return provider.RemoteFolder{}, provider.StatusError(Type, "folder_metadata", 404, remoteID+" not found")
	}
	return toFolder(n), nil
}

func (p *Provider) Cleanup() error {
	p.backend.mu.Lock()
	defer p.backend.mu.Unlock()
	p.backend.cleanups++
	return nil
}

// SupportsChunkedUpload is always true for the in-memory backend.
func (p *Provider) SupportsChunkedUpload() bool { return true }

func (p *Provider) InitiateMultipart(ctx context.Context, req provider.UploadRequest) (*provider.UploadSession, error) {
	if err := p.guard("initiate_multipart", req.ParentID); err != nil {
		return nil, err
	}
	p.backend.mu.Lock()
	defer p.backend.mu.Unlock()

	if err := p.checkParentLocked("initiate_multipart", req.ParentID); err != nil {
		return nil, err
	}
	uploadID := uuid.NewString()
	p.backend.uploads[uploadID] = make(map[int][]byte)

	s := &provider.UploadSession{
		UploadID: uploadID,
		Name:     req.Name,
		MimeType: req.MimeType,
		Size:     req.Size,
		ParentID: req.ParentID,
	}
	s.Set("parent", req.ParentID)
	return s, nil
}

func (p *Provider) UploadPart(ctx context.Context, s *provider.UploadSession, partNumber int, r io.Reader, size int64) (provider.Part, error) {
	if err := p.guard("upload_part", s.UploadID); err != nil {
		return provider.Part{}, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return provider.Part{}, provider.Wrap(Type, "upload_part", err)
	}

	p.backend.mu.Lock()
	defer p.backend.mu.Unlock()

	parts, ok := p.backend.uploads[s.UploadID]
	if !ok {
		return provider.Part{}, provider.StatusError(Type, "upload_part", 404, "upload "+s.UploadID+" not found")
	}
	parts[partNumber] = data
	return provider.Part{PartNumber: partNumber, ETag: fmt.Sprintf("etag-%d-%d", partNumber, len(data)), Size: int64(len(data))}, nil
}

func (p *Provider) CompleteMultipart(ctx context.Context, s *provider.UploadSession, parts []provider.Part) (string, error) {
	if err := p.guard("complete_multipart", s.UploadID); err != nil {
		return "", err
	}
	p.backend.mu.Lock()
	defer p.backend.mu.Unlock()

	stored, ok := p.backend.uploads[s.UploadID]
	if !ok {
		return "", provider.StatusError(Type, "complete_multipart", 404, "upload "+s.UploadID+" not found")
	}

	sorted := append([]provider.Part(nil), parts...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PartNumber < sorted[j].PartNumber })

	var buf bytes.Buffer
	for _, part := range sorted {
		data, ok := stored[part.PartNumber]
		if !ok {
			return "", provider.StatusError(Type, "complete_multipart", 400, fmt.Sprintf("part %d was never uploaded", part.PartNumber))
		}
		buf.Write(data)
	}

	delete(p.backend.uploads, s.UploadID)
	id := p.backend.addLocked(s.Get("parent"), s.Name, false, buf.Bytes(), s.MimeType)
	s.RemoteID = id
	return id, nil
}

func (p *Provider) AbortMultipart(ctx context.Context, s *provider.UploadSession) error {
	if err := p.guard("abort_multipart", s.UploadID); err != nil {
		return err
	}
	p.backend.mu.Lock()
	defer p.backend.mu.Unlock()
	delete(p.backend.uploads, s.UploadID)
	return nil
}

func (p *Provider) checkParentLocked(op, parentID string) error {
	if parentID == "" {
		return nil
	}
	n, ok := p.backend.nodes[parentID]
	if !ok || !n.folder {
		return provider.StatusError(Type, op, 404, "folder "+parentID+" not found")
	}
	return nil
}

func toFolder(n *node) provider.RemoteFolder {
	return provider.RemoteFolder{RemoteID: n.id, Name: n.name, ParentID: n.parent, ModifiedAt: n.modified}
}

func toFile(n *node) provider.RemoteFile {
	return provider.RemoteFile{
		RemoteID:   n.id,
		Name:       n.name,
		ParentID:   n.parent,
		MimeType:   n.mimeType,
		Size:       int64(len(n.data)),
		ModifiedAt: n.modified,
	}
}
