package gdrive

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/marmos91/dittovfs/pkg/provider"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
)

// List returns one page of the folder's children using Drive's own paging.
func (p *Provider) List(ctx context.Context, req provider.ListRequest) (provider.ListResult, error) {
	if err := p.ready("list"); err != nil {
		return provider.ListResult{}, err
	}

	call := p.service.Files.List().Context(ctx).
		Q("'" + escapeQuery(p.folder(req.FolderID)) + "' in parents and trashed = false").
		Fields("nextPageToken", googleapi.Field("files("+fileFields+")")).
		OrderBy("folder,name")
	if req.Limit > 0 {
		limit := req.Limit
		if limit > maxPageSize {
			limit = maxPageSize
		}
		call = call.PageSize(int64(limit))
	}
	if req.PageToken != "" {
		call = call.PageToken(req.PageToken)
	}

	res, err := call.Do()
	if err != nil {
		return provider.ListResult{}, wrapErr("list", err)
	}

	result := provider.ListResult{NextPageToken: res.NextPageToken}
	for _, f := range res.Files {
		if f.MimeType == folderMimeType {
			result.Folders = append(result.Folders, toFolder(f, req.FolderID))
		} else {
			result.Files = append(result.Files, toFile(f, req.FolderID))
		}
	}
	return result, nil
}

// RequestUpload creates an empty placeholder file and returns its id; the
// content is written by UploadFile. Drive offers no presigned upload URL.
func (p *Provider) RequestUpload(ctx context.Context, req provider.UploadRequest) (provider.UploadTicket, error) {
	if err := p.ready("request_upload"); err != nil {
		return provider.UploadTicket{}, err
	}

	created, err := p.service.Files.Create(&drive.File{
		Name:     req.Name,
		MimeType: req.MimeType,
		Parents:  []string{p.folder(req.ParentID)},
	}).Context(ctx).Fields("id").Do()
	if err != nil {
		return provider.UploadTicket{}, wrapErr("request_upload", err)
	}

	return provider.UploadTicket{FileID: created.Id}, nil
}

// UploadFile replaces the media of an existing file. The id is unchanged.
func (p *Provider) UploadFile(ctx context.Context, remoteID string, r io.Reader, size int64) (string, error) {
	if err := p.ready("upload"); err != nil {
		return "", err
	}

	_, err := p.service.Files.Update(remoteID, &drive.File{}).Context(ctx).Media(r).Fields("id").Do()
	if err != nil {
		return "", wrapErr("upload", err)
	}
	return "", nil
}

// RequestDownload never offers a direct URL: Drive media links require the
// bearer token.
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

	resp, err := p.service.Files.Get(remoteID).Context(ctx).Download()
	if err != nil {
		return nil, wrapErr("download", err)
	}
	return resp.Body, nil
}

func (p *Provider) CreateFolder(ctx context.Context, name string, parentID string) (provider.RemoteFolder, error) {
	if err := p.ready("create_folder"); err != nil {
		return provider.RemoteFolder{}, err
	}

	created, err := p.service.Files.Create(&drive.File{
		Name:     name,
		MimeType: folderMimeType,
		Parents:  []string{p.folder(parentID)},
	}).Context(ctx).Fields(fileFields).Do()
	if err != nil {
		return provider.RemoteFolder{}, wrapErr("create_folder", err)
	}
	return toFolder(created, parentID), nil
}

// Delete permanently deletes the file. Deleting a folder removes its
// descendants as well.
func (p *Provider) Delete(ctx context.Context, remoteID string, isFolder bool) error {
	if err := p.ready("delete"); err != nil {
		return err
	}
	return wrapErr("delete", p.service.Files.Delete(remoteID).Context(ctx).Do())
}

// Move reparents and/or renames in a single update.
func (p *Provider) Move(ctx context.Context, remoteID string, newParentID, newName *string) error {
	if err := p.ready("move"); err != nil {
		return err
	}

	update := &drive.File{}
	if newName != nil {
		update.Name = *newName
	}
	call := p.service.Files.Update(remoteID, update).Context(ctx).Fields("id")

	if newParentID != nil {
		current, err := p.service.Files.Get(remoteID).Context(ctx).Fields("parents").Do()
		if err != nil {
			return wrapErr("move", err)
		}
		call = call.AddParents(p.folder(*newParentID)).RemoveParents(strings.Join(current.Parents, ","))
	}

	_, err := call.Do()
	return wrapErr("move", err)
}

// Copy duplicates a file. Drive cannot copy folders, so a folder is recreated
// and its children copied recursively.
func (p *Provider) Copy(ctx context.Context, remoteID string, targetParentID, newName *string) (string, error) {
	if err := p.ready("copy"); err != nil {
		return "", err
	}

	src, err := p.service.Files.Get(remoteID).Context(ctx).Fields(fileFields).Do()
	if err != nil {
		return "", wrapErr("copy", err)
	}

	name := src.Name
	if newName != nil {
		name = *newName
	}
	parents := src.Parents
	if targetParentID != nil {
		parents = []string{p.folder(*targetParentID)}
	}

	if src.MimeType == folderMimeType {
		return p.copyFolder(ctx, src.Id, name, parents)
	}

	copied, err := p.service.Files.Copy(remoteID, &drive.File{Name: name, Parents: parents}).Context(ctx).Fields("id").Do()
	if err != nil {
		return "", wrapErr("copy", err)
	}
	return copied.Id, nil
}

func (p *Provider) copyFolder(ctx context.Context, srcID, name string, parents []string) (string, error) {
	created, err := p.service.Files.Create(&drive.File{
		Name:     name,
		MimeType: folderMimeType,
		Parents:  parents,
	}).Context(ctx).Fields("id").Do()
	if err != nil {
		return "", wrapErr("copy", err)
	}

	token := ""
	for {
		page, err := p.List(ctx, provider.ListRequest{FolderID: srcID, PageToken: token})
		if err != nil {
			return "", err
		}
		target := created.Id
		for _, f := range page.Folders {
			if _, err := p.Copy(ctx, f.RemoteID, &target, nil); err != nil {
				return "", err
			}
		}
		for _, f := range page.Files {
			if _, err := p.Copy(ctx, f.RemoteID, &target, nil); err != nil {
				return "", err
			}
		}
		if page.NextPageToken == "" {
			return created.Id, nil
		}
		token = page.NextPageToken
	}
}

func (p *Provider) GetFileMetadata(ctx context.Context, remoteID string) (provider.RemoteFile, error) {
	if err := p.ready("file_metadata"); err != nil {
		return provider.RemoteFile{}, err
	}

	f, err := p.service.Files.Get(remoteID).Context(ctx).Fields(fileFields).Do()
	if err != nil {
		return provider.RemoteFile{}, wrapErr("file_metadata", err)
	}
	if f.MimeType == folderMimeType {
		return provider.RemoteFile{}, provider.StatusError(Type, "file_metadata", http.StatusNotFound, remoteID+" is a folder")
	}
	return toFile(f, p.parentRef(f)), nil
}

func (p *Provider) GetFolderMetadata(ctx context.Context, remoteID string) (provider.RemoteFolder, error) {
	if err := p.ready("folder_metadata"); err != nil {
		return provider.RemoteFolder{}, err
	}

	f, err := p.service.Files.Get(p.folder(remoteID)).Context(ctx).Fields(fileFields).Do()
	if err != nil {
		return provider.RemoteFolder{}, wrapErr("folder_metadata", err)
	}
	if f.MimeType != folderMimeType {
		return provider.RemoteFolder{}, provider.StatusError(Type, "folder_metadata", http.StatusNotFound, remoteID+" is not a folder")
	}
	return toFolder(f, p.parentRef(f)), nil
}

func toFile(f *drive.File, parentID string) provider.RemoteFile {
	return provider.RemoteFile{
		RemoteID:   f.Id,
		Name:       f.Name,
		ParentID:   parentID,
		MimeType:   f.MimeType,
		Size:       f.Size,
		Hash:       f.Md5Checksum,
		ModifiedAt: parseTime(f.ModifiedTime),
	}
}

func toFolder(f *drive.File, parentID string) provider.RemoteFolder {
	return provider.RemoteFolder{
		RemoteID:   f.Id,
		Name:       f.Name,
		ParentID:   parentID,
		ModifiedAt: parseTime(f.ModifiedTime),
	}
}

// parentRef returns the folder remote id of f's first parent, "" for the
// configured root.
func (p *Provider) parentRef(f *drive.File) string {
	if len(f.Parents) == 0 || f.Parents[0] == p.rootID {
		return ""
	}
	return f.Parents[0]
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// escapeQuery escapes a value embedded in a single-quoted Drive query string.
func escapeQuery(v string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(v)
}
