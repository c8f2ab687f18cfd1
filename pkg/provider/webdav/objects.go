package webdav

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/marmos91/dittovfs/pkg/provider"
)

// RequestUpload returns the destination path. WebDAV has no presigned URLs,
// so uploads always go through UploadFile.
func (p *Provider) RequestUpload(ctx context.Context, req provider.UploadRequest) (provider.UploadTicket, error) {
	if err := p.ready("request_upload"); err != nil {
		return provider.UploadTicket{}, err
	}
	return provider.UploadTicket{
		FileID: folderID(req.ParentID) + provider.SanitizeName(req.Name),
	}, nil
}

// UploadFile PUTs the content, replacing any existing file.
func (p *Provider) UploadFile(ctx context.Context, remoteID string, r io.Reader, size int64) (string, error) {
	if err := p.ready("upload"); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, p.resolve(remoteID), r)
	if err != nil {
		return "", provider.Wrap(Type, "upload", err)
	}
	if size >= 0 {
		req.ContentLength = size
		if size == 0 {
			req.Body = http.NoBody
		}
	}
	req.SetBasicAuth(p.username, p.password)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", provider.Wrap(Type, "upload", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", statusErr("upload", resp)
	}
	return "", nil
}

// RequestDownload never offers a direct URL: the server needs the app
// password on every request.
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
	resp, err := p.do(ctx, "download", http.MethodGet, p.resolve(remoteID), nil, nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (p *Provider) CreateFolder(ctx context.Context, name string, parentID string) (provider.RemoteFolder, error) {
	if err := p.ready("create_folder"); err != nil {
		return provider.RemoteFolder{}, err
	}

	id := folderID(parentID) + provider.SanitizeName(name) + "/"
	if err := p.exec(ctx, "create_folder", "MKCOL", p.resolve(id), nil, nil); err != nil {
		return provider.RemoteFolder{}, err
	}
	return provider.RemoteFolder{RemoteID: id, Name: name, ParentID: parentID}, nil
}

// Delete removes a file or a collection; WebDAV deletes collections
// recursively.
func (p *Provider) Delete(ctx context.Context, remoteID string, isFolder bool) error {
	if err := p.ready("delete"); err != nil {
		return err
	}
	if isFolder {
		remoteID = folderID(remoteID)
	}
	return p.exec(ctx, "delete", http.MethodDelete, p.resolve(remoteID), nil, nil)
}

func (p *Provider) Move(ctx context.Context, remoteID string, newParentID, newName *string) error {
	if err := p.ready("move"); err != nil {
		return err
	}
	_, err := p.transfer(ctx, "move", "MOVE", remoteID, newParentID, newName)
	return err
}

func (p *Provider) Copy(ctx context.Context, remoteID string, targetParentID, newName *string) (string, error) {
	if err := p.ready("copy"); err != nil {
		return "", err
	}
	return p.transfer(ctx, "copy", "COPY", remoteID, targetParentID, newName)
}

// transfer issues MOVE or COPY without overwrite and returns the destination
// remote id.
func (p *Provider) transfer(ctx context.Context, op, method, remoteID string, parentID, newName *string) (string, error) {
	isFolder := strings.HasSuffix(remoteID, "/")

	parent := parentOf(remoteID)
	if parentID != nil {
		parent = folderID(*parentID)
	}
	name := baseName(remoteID)
	if newName != nil {
		name = provider.SanitizeName(*newName)
	}

	dest := parent + name
	if isFolder {
		dest += "/"
	}

	header := http.Header{}
	header.Set("Destination", p.resolve(dest))
	header.Set("Overwrite", "F")

	if err := p.exec(ctx, op, method, p.resolve(remoteID), nil, header); err != nil {
		return "", err
	}
	return dest, nil
}

type ocsUser struct {
	OCS struct {
		Data struct {
			ID          string `json:"id"`
			Email       string `json:"email"`
			DisplayName string `json:"display-name"`
		} `json:"data"`
	} `json:"ocs"`
}

// GetAccountInfo reads the OCS user endpoint.
func (p *Provider) GetAccountInfo(ctx context.Context) (provider.AccountInfo, error) {
	if err := p.ready("account"); err != nil {
		return provider.AccountInfo{}, err
	}

	header := http.Header{}
	header.Set("OCS-APIRequest", "true")
	header.Set("Accept", "application/json")

	resp, err := p.do(ctx, "account", http.MethodGet, p.server+"/ocs/v2.php/cloud/user?format=json", nil, header)
	if err != nil {
		return provider.AccountInfo{}, err
	}
	defer resp.Body.Close()

	var user ocsUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return provider.AccountInfo{}, provider.Wrap(Type, "account", fmt.Errorf("failed to decode user: %w", err))
	}

	name := user.OCS.Data.DisplayName
	if name == "" {
		name = user.OCS.Data.ID
	}
	return provider.AccountInfo{Email: user.OCS.Data.Email, Name: name}, nil
}

func contentLength(size int64) string {
	return strconv.FormatInt(size, 10)
}
