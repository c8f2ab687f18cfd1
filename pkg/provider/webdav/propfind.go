package webdav

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/marmos91/dittovfs/pkg/provider"
)

const (
	propfindBasic = `<?xml version="1.0" encoding="utf-8"?>
<d:propfind xmlns:d="DAV:">
  <d:prop>
    <d:resourcetype/>
    <d:getcontentlength/>
    <d:getcontenttype/>
    <d:getlastmodified/>
    <d:getetag/>
  </d:prop>
</d:propfind>`

	propfindQuota = `<?xml version="1.0" encoding="utf-8"?>
<d:propfind xmlns:d="DAV:">
  <d:prop>
    <d:quota-used-bytes/>
    <d:quota-available-bytes/>
  </d:prop>
</d:propfind>`
)

type multistatus struct {
	XMLName   xml.Name   `xml:"DAV: multistatus"`
	Responses []response `xml:"DAV: response"`
}

type response struct {
	Href      string     `xml:"DAV: href"`
	Propstats []propstat `xml:"DAV: propstat"`
}

type propstat struct {
	Status string `xml:"DAV: status"`
	Prop   prop   `xml:"DAV: prop"`
}

type prop struct {
	ResourceType struct {
		Collection *struct{} `xml:"DAV: collection"`
	} `xml:"DAV: resourcetype"`
	ContentLength  string `xml:"DAV: getcontentlength"`
	ContentType    string `xml:"DAV: getcontenttype"`
	LastModified   string `xml:"DAV: getlastmodified"`
	ETag           string `xml:"DAV: getetag"`
	QuotaUsed      string `xml:"DAV: quota-used-bytes"`
	QuotaAvailable string `xml:"DAV: quota-available-bytes"`
}

// entry is one resource of a multistatus, with the 200 propstat merged.
type entry struct {
	id          string
	isDir       bool
	size        int64
	contentType string
	etag        string
	modified    time.Time
	quotaUsed   string
	quotaAvail  string
}

// propfind runs a PROPFIND and returns the entries that map into the files
// root, in document order.
func (p *Provider) propfind(ctx context.Context, op, remoteID, depth, body string) ([]entry, error) {
	header := http.Header{}
	header.Set("Depth", depth)
	header.Set("Content-Type", "application/xml; charset=utf-8")

	resp, err := p.do(ctx, op, "PROPFIND", p.resolve(remoteID), strings.NewReader(body), header)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var ms multistatus
	if err := xml.NewDecoder(resp.Body).Decode(&ms); err != nil {
		return nil, provider.Wrap(Type, op, fmt.Errorf("failed to decode multistatus: %w", err))
	}

	entries := make([]entry, 0, len(ms.Responses))
	for _, r := range ms.Responses {
		id, ok := p.relative(r.Href)
		if !ok {
			continue
		}
		e := entry{id: id}
		for _, ps := range r.Propstats {
			if !strings.Contains(ps.Status, " 200 ") {
				continue
			}
			e.merge(ps.Prop)
		}
		if e.isDir {
			e.id = folderID(e.id)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (e *entry) merge(pr prop) {
	if pr.ResourceType.Collection != nil {
		e.isDir = true
	}
	if pr.ContentLength != "" {
		e.size, _ = strconv.ParseInt(pr.ContentLength, 10, 64)
	}
	if pr.ContentType != "" {
		e.contentType = pr.ContentType
	}
	if pr.ETag != "" {
		e.etag = strings.Trim(pr.ETag, `"`)
	}
	if pr.LastModified != "" {
		if t, err := http.ParseTime(pr.LastModified); err == nil {
			e.modified = t
		}
	}
	if pr.QuotaUsed != "" {
		e.quotaUsed = pr.QuotaUsed
	}
	if pr.QuotaAvailable != "" {
		e.quotaAvail = pr.QuotaAvailable
	}
}

func (e entry) file(parentID string) provider.RemoteFile {
	return provider.RemoteFile{
		RemoteID:   e.id,
		Name:       baseName(e.id),
		ParentID:   parentID,
		MimeType:   e.contentType,
		Size:       e.size,
		Hash:       e.etag,
		ModifiedAt: e.modified,
	}
}

func (e entry) folder(parentID string) provider.RemoteFolder {
	return provider.RemoteFolder{
		RemoteID:   e.id,
		Name:       baseName(e.id),
		ParentID:   parentID,
		ModifiedAt: e.modified,
	}
}

// List issues a depth-1 PROPFIND. WebDAV has no server-side paging, so the
// page token is a decimal offset into the listing sorted with folders first,
// then by name.
func (p *Provider) List(ctx context.Context, req provider.ListRequest) (provider.ListResult, error) {
	if err := p.ready("list"); err != nil {
		return provider.ListResult{}, err
	}

	folder := folderID(req.FolderID)
	entries, err := p.propfind(ctx, "list", folder, "1", propfindBasic)
	if err != nil {
		return provider.ListResult{}, err
	}

	children := entries[:0]
	for _, e := range entries {
		if e.id == folder {
			continue
		}
		children = append(children, e)
	}
	sort.Slice(children, func(i, j int) bool {
		if children[i].isDir != children[j].isDir {
			return children[i].isDir
		}
		return children[i].id < children[j].id
	})

	offset := 0
	if req.PageToken != "" {
		offset, err = strconv.Atoi(req.PageToken)
		if err != nil || offset < 0 {
			return provider.ListResult{}, provider.StatusError(Type, "list", http.StatusBadRequest, "invalid page token")
		}
	}
	if offset > len(children) {
		offset = len(children)
	}
	end := len(children)
	if req.Limit > 0 && offset+req.Limit < end {
		end = offset + req.Limit
	}

	var result provider.ListResult
	for _, e := range children[offset:end] {
		if e.isDir {
			result.Folders = append(result.Folders, e.folder(req.FolderID))
		} else {
			result.Files = append(result.Files, e.file(req.FolderID))
		}
	}
	if end < len(children) {
		result.NextPageToken = strconv.Itoa(end)
	}
	return result, nil
}

// GetQuota reads the RFC 4331 quota properties of the root. A negative
// available value means the server reports no limit.
func (p *Provider) GetQuota(ctx context.Context) (provider.Quota, error) {
	if err := p.ready("quota"); err != nil {
		return provider.Quota{}, err
	}

	entries, err := p.propfind(ctx, "quota", "", "0", propfindQuota)
	if err != nil {
		return provider.Quota{}, err
	}
	if len(entries) == 0 {
		return provider.NewQuota(0, nil), nil
	}

	used, _ := strconv.ParseInt(entries[0].quotaUsed, 10, 64)
	avail, err := strconv.ParseInt(entries[0].quotaAvail, 10, 64)
	if err != nil || avail < 0 {
		return provider.NewQuota(used, nil), nil
	}
	total := used + avail
	return provider.NewQuota(used, &total), nil
}

func (p *Provider) GetFileMetadata(ctx context.Context, remoteID string) (provider.RemoteFile, error) {
	if err := p.ready("file_metadata"); err != nil {
		return provider.RemoteFile{}, err
	}

	entries, err := p.propfind(ctx, "file_metadata", remoteID, "0", propfindBasic)
	if err != nil {
		return provider.RemoteFile{}, err
	}
	if len(entries) == 0 || entries[0].isDir {
		return provider.RemoteFile{}, provider.StatusError(Type, "file_metadata", http.StatusNotFound, "file "+remoteID+" not found")
	}
	return entries[0].file(parentOf(remoteID)), nil
}

func (p *Provider) GetFolderMetadata(ctx context.Context, remoteID string) (provider.RemoteFolder, error) {
	if err := p.ready("folder_metadata"); err != nil {
		return provider.RemoteFolder{}, err
	}

	id := folderID(remoteID)
	entries, err := p.propfind(ctx, "folder_metadata", id, "0", propfindBasic)
	if err != nil {
		return provider.RemoteFolder{}, err
	}
	if len(entries) == 0 || !entries[0].isDir {
		return provider.RemoteFolder{}, provider.StatusError(Type, "folder_metadata", http.StatusNotFound, "folder "+remoteID+" not found")
	}
	return entries[0].folder(parentOf(id)), nil
}
