// Package local implements the storage provider contract over a directory of
// the local filesystem. It needs no authorization and is mostly used for
// development, demos and as a reference backend.
//
// Remote ids are slash paths relative to the root directory. Folder ids end
// with "/", the root is "".
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/marmos91/dittovfs/internal/logger"
	"github.com/marmos91/dittovfs/pkg/provider"
)

// Type is the registry type tag.
const Type = "local"

// uploadsDir holds in-progress chunked uploads under the root. It is hidden
// from listings and quota.
const uploadsDir = ".uploads"

// Config is the decoded adapter configuration.
type Config struct {
	RootPath string `mapstructure:"root_path" validate:"required"`

	// CreateRoot creates RootPath when missing instead of failing.
	CreateRoot bool `mapstructure:"create_root"`
}

var schema = provider.Schema{
	Type: Type,
	Fields: []provider.Field{
		{Name: "root_path", Required: true},
		{Name: "create_root", Default: false},
	},
}

// Schema returns the config schema.
func Schema() provider.Schema { return schema }

// Entry returns the registry entry for the local adapter.
func Entry() provider.Entry {
	return provider.Entry{
		Type:        Type,
		DisplayName: "Local directory",
		AuthType:    provider.AuthNone,
		Schema:      schema,
		Factory:     func() provider.StorageProvider { return New() },
	}
}

// Provider is the local filesystem adapter.
type Provider struct {
	root string
}

var (
	_ provider.StorageProvider     = (*Provider)(nil)
	_ provider.ChunkedUploader     = (*Provider)(nil)
	_ provider.AccountInfoProvider = (*Provider)(nil)
)

// New creates an uninitialized adapter.
func New() *Provider {
	return &Provider{}
}

func (p *Provider) Type() string { return Type }

func (p *Provider) Initialize(ctx context.Context, config map[string]any) error {
	var cfg Config
	if err := schema.Decode(config, &cfg); err != nil {
		return err
	}

	root, err := filepath.Abs(cfg.RootPath)
	if err != nil {
		return &provider.ConfigurationError{Type: Type, Field: "root_path", Message: err.Error()}
	}

	if cfg.CreateRoot {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return provider.Wrap(Type, "initialize", err)
		}
	}

	info, err := os.Stat(root)
	if err != nil {
		return &provider.ConfigurationError{Type: Type, Field: "root_path", Message: err.Error()}
	}
	if !info.IsDir() {
		return &provider.ConfigurationError{Type: Type, Field: "root_path", Message: "not a directory"}
	}

	p.root = root
	logger.Debug("Local provider initialized: root=%s", root)
	return nil
}

func (p *Provider) ready(op string) error {
	if p.root == "" {
		return &provider.ProviderError{Type: Type, Op: op, Message: "provider not initialized"}
	}
	return nil
}

// resolve maps a remote id to an absolute path. Ids containing ".." segments
// are rejected so no id can reach outside the root.
func (p *Provider) resolve(op, remoteID string) (string, error) {
	rel := strings.Trim(remoteID, "/")
	for _, seg := range strings.Split(rel, "/") {
		if seg == ".." {
			return "", provider.StatusError(Type, op, http.StatusBadRequest, "path escapes root: "+remoteID)
		}
	}
	return filepath.Join(p.root, filepath.FromSlash(rel)), nil
}

func (p *Provider) TestConnection(ctx context.Context) bool {
	if p.ready("test") != nil {
		return false
	}
	info, err := os.Stat(p.root)
	return err == nil && info.IsDir()
}

// GetQuota walks the tree summing file sizes. The filesystem size is not
// reported, so Total is nil.
func (p *Provider) GetQuota(ctx context.Context) (provider.Quota, error) {
	if err := p.ready("quota"); err != nil {
		return provider.Quota{}, err
	}

	var used int64
	uploads := filepath.Join(p.root, uploadsDir)
	err := filepath.WalkDir(p.root, func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if name == uploads {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		used += info.Size()
		return nil
	})
	if err != nil {
		return provider.Quota{}, wrapErr("quota", err)
	}
	return provider.NewQuota(used, nil), nil
}

// GetAccountInfo names the account after the root directory.
func (p *Provider) GetAccountInfo(ctx context.Context) (provider.AccountInfo, error) {
	if err := p.ready("account"); err != nil {
		return provider.AccountInfo{}, err
	}
	return provider.AccountInfo{Name: p.root}, nil
}

// List reads the directory and pages through it by offset, folders first.
func (p *Provider) List(ctx context.Context, req provider.ListRequest) (provider.ListResult, error) {
	if err := p.ready("list"); err != nil {
		return provider.ListResult{}, err
	}

	dir, err := p.resolve("list", req.FolderID)
	if err != nil {
		return provider.ListResult{}, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return provider.ListResult{}, wrapErr("list", err)
	}

	prefix := folderID(req.FolderID)
	visible := entries[:0]
	for _, e := range entries {
		if prefix == "" && e.Name() == uploadsDir {
			continue
		}
		visible = append(visible, e)
	}
	sort.SliceStable(visible, func(i, j int) bool {
		if visible[i].IsDir() != visible[j].IsDir() {
			return visible[i].IsDir()
		}
		return visible[i].Name() < visible[j].Name()
	})

	offset := 0
	if req.PageToken != "" {
		offset, err = strconv.Atoi(req.PageToken)
		if err != nil || offset < 0 {
			return provider.ListResult{}, provider.StatusError(Type, "list", http.StatusBadRequest, "invalid page token")
		}
	}
	if offset > len(visible) {
		offset = len(visible)
	}
	end := len(visible)
	if req.Limit > 0 && offset+req.Limit < end {
		end = offset + req.Limit
	}

	var result provider.ListResult
	for _, e := range visible[offset:end] {
		info, err := e.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		if e.IsDir() {
			result.Folders = append(result.Folders, provider.RemoteFolder{
				RemoteID:   prefix + e.Name() + "/",
				Name:       e.Name(),
				ParentID:   req.FolderID,
				ModifiedAt: info.ModTime(),
			})
			continue
		}
		result.Files = append(result.Files, provider.RemoteFile{
			RemoteID:   prefix + e.Name(),
			Name:       e.Name(),
			ParentID:   req.FolderID,
			Size:       info.Size(),
			ModifiedAt: info.ModTime(),
		})
	}
	if end < len(visible) {
		result.NextPageToken = strconv.Itoa(end)
	}
	return result, nil
}

// RequestUpload returns the destination id; content arrives via UploadFile.
func (p *Provider) RequestUpload(ctx context.Context, req provider.UploadRequest) (provider.UploadTicket, error) {
	if err := p.ready("request_upload"); err != nil {
		return provider.UploadTicket{}, err
	}
	return provider.UploadTicket{FileID: folderID(req.ParentID) + provider.SanitizeName(req.Name)}, nil
}

// UploadFile writes to a temporary file next to the destination and renames
// it into place, so readers never observe a partial file.
func (p *Provider) UploadFile(ctx context.Context, remoteID string, r io.Reader, size int64) (string, error) {
	if err := p.ready("upload"); err != nil {
		return "", err
	}

	dest, err := p.resolve("upload", remoteID)
	if err != nil {
		return "", err
	}
	if err := writeAtomic(dest, r); err != nil {
		return "", wrapErr("upload", err)
	}
	return "", nil
}

func writeAtomic(dest string, r io.Reader) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".upload-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), dest)
}

func (p *Provider) RequestDownload(ctx context.Context, remoteID string) (provider.DownloadTicket, error) {
	if err := p.ready("request_download"); err != nil {
		return provider.DownloadTicket{}, err
	}
	return provider.DownloadTicket{}, nil
}

func (p *Provider) DownloadFile(ctx context.Context, remoteID string) (io.ReadCloser, error) {
	if err := p.ready("download"); err != nil {
		return nil, err
	}
	name, err := p.resolve("download", remoteID)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, wrapErr("download", err)
	}
	return f, nil
}

func (p *Provider) CreateFolder(ctx context.Context, name string, parentID string) (provider.RemoteFolder, error) {
	if err := p.ready("create_folder"); err != nil {
		return provider.RemoteFolder{}, err
	}

	id := folderID(parentID) + provider.SanitizeName(name) + "/"
	dir, err := p.resolve("create_folder", id)
	if err != nil {
		return provider.RemoteFolder{}, err
	}
	if err := os.Mkdir(dir, 0o755); err != nil {
		return provider.RemoteFolder{}, wrapErr("create_folder", err)
	}
	return provider.RemoteFolder{RemoteID: id, Name: name, ParentID: parentID}, nil
}

func (p *Provider) Delete(ctx context.Context, remoteID string, isFolder bool) error {
	if err := p.ready("delete"); err != nil {
		return err
	}
	name, err := p.resolve("delete", remoteID)
	if err != nil {
		return err
	}
	if name == p.root {
		return provider.StatusError(Type, "delete", http.StatusForbidden, "cannot delete the root")
	}
	if _, err := os.Stat(name); err != nil {
		return wrapErr("delete", err)
	}
	if isFolder {
		return wrapErr("delete", os.RemoveAll(name))
	}
	return wrapErr("delete", os.Remove(name))
}

// Move renames in place. An existing destination is a conflict.
func (p *Provider) Move(ctx context.Context, remoteID string, newParentID, newName *string) error {
	if err := p.ready("move"); err != nil {
		return err
	}
	src, dst, _, err := p.destination("move", remoteID, newParentID, newName)
	if err != nil {
		return err
	}
	return wrapErr("move", os.Rename(src, dst))
}

// Copy duplicates a file or a whole folder tree.
func (p *Provider) Copy(ctx context.Context, remoteID string, targetParentID, newName *string) (string, error) {
	if err := p.ready("copy"); err != nil {
		return "", err
	}
	src, dst, id, err := p.destination("copy", remoteID, targetParentID, newName)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(src)
	if err != nil {
		return "", wrapErr("copy", err)
	}
	if !info.IsDir() {
		return id, wrapErr("copy", copyFile(src, dst))
	}
	if strings.HasPrefix(dst+string(filepath.Separator), src+string(filepath.Separator)) {
		return "", provider.StatusError(Type, "copy", http.StatusConflict, "cannot copy a folder into itself")
	}

	err = filepath.WalkDir(src, func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, name)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(name, target)
	})
	if err != nil {
		return "", wrapErr("copy", err)
	}
	return id, nil
}

// destination resolves source and destination paths of a move or copy and
// returns the destination remote id.
func (p *Provider) destination(op, remoteID string, parentID, newName *string) (string, string, string, error) {
	src, err := p.resolve(op, remoteID)
	if err != nil {
		return "", "", "", err
	}

	isFolder := strings.HasSuffix(remoteID, "/")
	parent := parentOf(remoteID)
	if parentID != nil {
		parent = folderID(*parentID)
	}
	name := baseName(remoteID)
	if newName != nil {
		name = provider.SanitizeName(*newName)
	}

	id := parent + name
	if isFolder {
		id += "/"
	}
	dst, err := p.resolve(op, id)
	if err != nil {
		return "", "", "", err
	}
	if _, err := os.Stat(dst); err == nil {
		return "", "", "", provider.StatusError(Type, op, http.StatusConflict, "destination "+id+" already exists")
	}
	return src, dst, id, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	return writeAtomic(dst, in)
}

func (p *Provider) GetFileMetadata(ctx context.Context, remoteID string) (provider.RemoteFile, error) {
	if err := p.ready("file_metadata"); err != nil {
		return provider.RemoteFile{}, err
	}
	name, err := p.resolve("file_metadata", remoteID)
	if err != nil {
		return provider.RemoteFile{}, err
	}
	info, err := os.Stat(name)
	if err != nil {
		return provider.RemoteFile{}, wrapErr("file_metadata", err)
	}
	if info.IsDir() {
		return provider.RemoteFile{}, provider.StatusError(Type, "file_metadata", http.StatusNotFound, remoteID+" is a folder")
	}
	return provider.RemoteFile{
		RemoteID:   strings.Trim(remoteID, "/"),
		Name:       info.Name(),
		ParentID:   parentOf(remoteID),
		Size:       info.Size(),
		ModifiedAt: info.ModTime(),
	}, nil
}

func (p *Provider) GetFolderMetadata(ctx context.Context, remoteID string) (provider.RemoteFolder, error) {
	if err := p.ready("folder_metadata"); err != nil {
		return provider.RemoteFolder{}, err
	}
	name, err := p.resolve("folder_metadata", remoteID)
	if err != nil {
		return provider.RemoteFolder{}, err
	}
	info, err := os.Stat(name)
	if err != nil {
		return provider.RemoteFolder{}, wrapErr("folder_metadata", err)
	}
	if !info.IsDir() {
		return provider.RemoteFolder{}, provider.StatusError(Type, "folder_metadata", http.StatusNotFound, remoteID+" is not a folder")
	}
	id := folderID(strings.Trim(remoteID, "/"))
	return provider.RemoteFolder{
		RemoteID:   id,
		Name:       baseName(id),
		ParentID:   parentOf(id),
		ModifiedAt: info.ModTime(),
	}, nil
}

// Cleanup is a no-op; files are opened per call.
func (p *Provider) Cleanup() error { return nil }

// SupportsChunkedUpload reports chunked upload support.
func (p *Provider) SupportsChunkedUpload() bool { return true }

// InitiateMultipart creates a chunk directory under the uploads dir.
func (p *Provider) InitiateMultipart(ctx context.Context, req provider.UploadRequest) (*provider.UploadSession, error) {
	if err := p.ready("initiate_multipart"); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	if err := os.MkdirAll(filepath.Join(p.root, uploadsDir, id), 0o755); err != nil {
		return nil, wrapErr("initiate_multipart", err)
	}

	s := &provider.UploadSession{
		UploadID: id,
		RemoteID: folderID(req.ParentID) + provider.SanitizeName(req.Name),
		Name:     req.Name,
		MimeType: req.MimeType,
		Size:     req.Size,
		ParentID: req.ParentID,
	}
	return s, nil
}

func (p *Provider) chunkPath(s *provider.UploadSession, partNumber int) string {
	return filepath.Join(p.root, uploadsDir, s.UploadID, fmt.Sprintf("%05d", partNumber))
}

// UploadPart writes one chunk file. Re-uploading a part replaces it.
func (p *Provider) UploadPart(ctx context.Context, s *provider.UploadSession, partNumber int, r io.Reader, size int64) (provider.Part, error) {
	if err := p.ready("upload_part"); err != nil {
		return provider.Part{}, err
	}
	if _, err := uuid.Parse(s.UploadID); err != nil {
		return provider.Part{}, provider.StatusError(Type, "upload_part", http.StatusNotFound, "unknown upload "+s.UploadID)
	}

	f, err := os.Create(p.chunkPath(s, partNumber))
	if err != nil {
		return provider.Part{}, wrapErr("upload_part", err)
	}
	written, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return provider.Part{}, wrapErr("upload_part", err)
	}
	return provider.Part{PartNumber: partNumber, ETag: strconv.Itoa(partNumber), Size: written}, nil
}

// CompleteMultipart concatenates the chunks in part order into the
// destination and removes the chunk directory.
func (p *Provider) CompleteMultipart(ctx context.Context, s *provider.UploadSession, parts []provider.Part) (string, error) {
	if err := p.ready("complete_multipart"); err != nil {
		return "", err
	}

	sorted := append([]provider.Part(nil), parts...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PartNumber < sorted[j].PartNumber })

	readers := make([]io.Reader, 0, len(sorted))
	for _, part := range sorted {
		f, err := os.Open(p.chunkPath(s, part.PartNumber))
		if err != nil {
			return "", wrapErr("complete_multipart", err)
		}
		defer f.Close()
		readers = append(readers, f)
	}

	dest, err := p.resolve("complete_multipart", s.RemoteID)
	if err != nil {
		return "", err
	}
	if err := writeAtomic(dest, io.MultiReader(readers...)); err != nil {
		return "", wrapErr("complete_multipart", err)
	}

	if err := os.RemoveAll(filepath.Join(p.root, uploadsDir, s.UploadID)); err != nil {
		logger.Warn("Local provider failed to remove chunk dir %s: %v", s.UploadID, err)
	}
	return s.RemoteID, nil
}

// AbortMultipart removes the chunk directory.
func (p *Provider) AbortMultipart(ctx context.Context, s *provider.UploadSession) error {
	if err := p.ready("abort_multipart"); err != nil {
		return err
	}
	if _, err := uuid.Parse(s.UploadID); err != nil {
		return nil
	}
	return wrapErr("abort_multipart", os.RemoveAll(filepath.Join(p.root, uploadsDir, s.UploadID)))
}

func wrapErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrNotExist):
		return &provider.ProviderError{Type: Type, Op: op, StatusCode: http.StatusNotFound, Message: "not found", Cause: err}
	case errors.Is(err, fs.ErrExist):
		return &provider.ProviderError{Type: Type, Op: op, StatusCode: http.StatusConflict, Message: "already exists", Cause: err}
	case errors.Is(err, fs.ErrPermission):
		return &provider.ProviderError{Type: Type, Op: op, StatusCode: http.StatusForbidden, Message: "permission denied", Cause: err}
	}
	return provider.Wrap(Type, op, err)
}

func folderID(id string) string {
	id = strings.Trim(id, "/")
	if id == "" {
		return ""
	}
	return id + "/"
}

func parentOf(remoteID string) string {
	dir := path.Dir(strings.Trim(remoteID, "/"))
	if dir == "." || dir == "/" {
		return ""
	}
	return dir + "/"
}

func baseName(remoteID string) string {
	return path.Base(strings.Trim(remoteID, "/"))
}
