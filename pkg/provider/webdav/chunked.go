package webdav

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/marmos91/dittovfs/internal/logger"
	"github.com/marmos91/dittovfs/pkg/provider"
)

// SupportsChunkedUpload reports Nextcloud chunked upload support.
func (p *Provider) SupportsChunkedUpload() bool { return true }

// InitiateMultipart creates a chunk collection under the uploads root. Chunks
// are stored there until the assembled file is moved into place.
func (p *Provider) InitiateMultipart(ctx context.Context, req provider.UploadRequest) (*provider.UploadSession, error) {
	if err := p.ready("initiate_multipart"); err != nil {
		return nil, err
	}

	dir := "dittovfs-" + uuid.NewString() + "/"
	if err := p.exec(ctx, "initiate_multipart", "MKCOL", resolveUnder(p.chunkURL, dir), nil, nil); err != nil {
		return nil, err
	}

	s := &provider.UploadSession{
		UploadID: dir,
		RemoteID: folderID(req.ParentID) + provider.SanitizeName(req.Name),
		Name:     req.Name,
		MimeType: req.MimeType,
		Size:     req.Size,
		ParentID: req.ParentID,
	}
	s.Set("chunk_dir", dir)
	return s, nil
}

// UploadPart PUTs one chunk. Chunk names are zero padded so the server
// assembles them in part order.
func (p *Provider) UploadPart(ctx context.Context, s *provider.UploadSession, partNumber int, r io.Reader, size int64) (provider.Part, error) {
	if err := p.ready("upload_part"); err != nil {
		return provider.Part{}, err
	}

	target := resolveUnder(p.chunkURL, s.Get("chunk_dir")+chunkName(partNumber))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, r)
	if err != nil {
		return provider.Part{}, provider.Wrap(Type, "upload_part", err)
	}
	if size >= 0 {
		req.ContentLength = size
	}
	req.SetBasicAuth(p.username, p.password)

	resp, err := p.client.Do(req)
	if err != nil {
		return provider.Part{}, provider.Wrap(Type, "upload_part", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return provider.Part{}, statusErr("upload_part", resp)
	}

	return provider.Part{PartNumber: partNumber, ETag: resp.Header.Get("ETag"), Size: size}, nil
}

// CompleteMultipart moves the virtual ".file" of the chunk collection onto
// the destination, which makes the server assemble the chunks.
func (p *Provider) CompleteMultipart(ctx context.Context, s *provider.UploadSession, parts []provider.Part) (string, error) {
	if err := p.ready("complete_multipart"); err != nil {
		return "", err
	}

	var total int64
	for _, part := range parts {
		total += part.Size
	}

	header := http.Header{}
	header.Set("Destination", p.resolve(s.RemoteID))
	header.Set("OC-Total-Length", contentLength(total))

	source := resolveUnder(p.chunkURL, s.Get("chunk_dir")+".file")
	if err := p.exec(ctx, "complete_multipart", "MOVE", source, nil, header); err != nil {
		return "", err
	}
	return s.RemoteID, nil
}

// AbortMultipart deletes the chunk collection. A collection that is already
// gone is not an error.
func (p *Provider) AbortMultipart(ctx context.Context, s *provider.UploadSession) error {
	if err := p.ready("abort_multipart"); err != nil {
		return err
	}

	err := p.exec(ctx, "abort_multipart", http.MethodDelete, resolveUnder(p.chunkURL, s.Get("chunk_dir")), nil, nil)
	if provider.StatusCode(err) == http.StatusNotFound {
		logger.Debug("WebDAV chunk dir %s already gone", s.Get("chunk_dir"))
		return nil
	}
	return err
}

func chunkName(partNumber int) string {
	return fmt.Sprintf("%05d", partNumber)
}
